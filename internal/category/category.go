// Package category holds the fixed catalog of event categories.
package category

type Category struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

var catalog = []Category{
	{ID: "tech", Label: "Technology", Description: "Tech meetups, hackathons, and developer conferences", Icon: "💻"},
	{ID: "music", Label: "Music", Description: "Concerts, festivals, and live performances", Icon: "🎵"},
	{ID: "sports", Label: "Sports", Description: "Sports events, tournaments, and fitness activities", Icon: "⚽"},
	{ID: "art", Label: "Art & Culture", Description: "Art exhibitions, cultural events, and creative workshops", Icon: "🎨"},
	{ID: "food", Label: "Food & Drink", Description: "Food festivals, cooking classes, and tastings", Icon: "🍕"},
	{ID: "business", Label: "Business", Description: "Networking events, conferences, and startup meetups", Icon: "💼"},
	{ID: "health", Label: "Health & Wellness", Description: "Yoga, meditation, and wellness workshops", Icon: "🧘"},
	{ID: "education", Label: "Education", Description: "Workshops, seminars, and learning sessions", Icon: "📚"},
	{ID: "gaming", Label: "Gaming", Description: "Gaming tournaments, esports, and game nights", Icon: "🎮"},
	{ID: "networking", Label: "Networking", Description: "Professional networking and career events", Icon: "🤝"},
	{ID: "outdoor", Label: "Outdoor & Adventure", Description: "Hiking, camping, and outdoor activities", Icon: "🏕️"},
	{ID: "community", Label: "Community", Description: "Local community gatherings and social events", Icon: "👥"},
}

var byID = func() map[string]Category {
	m := make(map[string]Category, len(catalog))
	for _, c := range catalog {
		m[c.ID] = c
	}
	return m
}()

// All returns a copy of the catalog in display order.
func All() []Category {
	out := make([]Category, len(catalog))
	copy(out, catalog)
	return out
}

func Lookup(id string) (Category, bool) {
	c, ok := byID[id]
	return c, ok
}

func Known(id string) bool {
	_, ok := byID[id]
	return ok
}
