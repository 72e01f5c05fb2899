package model

import "time"

type LocationType string

const (
	LocationPhysical LocationType = "physical"
	LocationOnline   LocationType = "online"
)

type TicketType string

const (
	TicketFree TicketType = "free"
	TicketPaid TicketType = "paid"
)

const RegistrationConfirmed = "confirmed"

// DefaultThemeColor is the only theme colour available to free-tier organizers.
const DefaultThemeColor = "#1e3a8a"

type Location struct {
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	Country string `json:"country"`
}

type User struct {
	ID                     string    `db:"id" json:"id"`
	TokenIdentifier        string    `db:"token_identifier" json:"-"`
	Name                   string    `db:"name" json:"name"`
	Email                  string    `db:"email" json:"email"`
	ImageURL               string    `db:"image_url,omitempty" json:"image_url,omitempty"`
	HasCompletedOnboarding bool      `db:"has_completed_onboarding" json:"has_completed_onboarding"`
	FreeEventsCreated      int       `db:"free_events_created" json:"free_events_created"`
	Location               *Location `db:"-" json:"location,omitempty"`
	Interests              []string  `db:"interests" json:"interests,omitempty"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

type Event struct {
	ID                string       `db:"id" json:"id"`
	Title             string       `db:"title" json:"title"`
	Description       string       `db:"description" json:"description"`
	Slug              string       `db:"slug" json:"slug"`
	OrganizerID       string       `db:"organizer_id" json:"organizer_id"`
	OrganizerName     string       `db:"organizer_name" json:"organizer_name"`
	Category          string       `db:"category" json:"category"`
	Tags              []string     `db:"tags" json:"tags"`
	StartDate         time.Time    `db:"start_date" json:"start_date"`
	EndDate           time.Time    `db:"end_date" json:"end_date"`
	Timezone          string       `db:"timezone" json:"timezone"`
	LocationType      LocationType `db:"location_type" json:"location_type"`
	Venue             string       `db:"venue,omitempty" json:"venue,omitempty"`
	Address           string       `db:"address,omitempty" json:"address,omitempty"`
	City              string       `db:"city" json:"city"`
	State             string       `db:"state,omitempty" json:"state,omitempty"`
	Country           string       `db:"country" json:"country"`
	Capacity          int          `db:"capacity" json:"capacity"`
	TicketType        TicketType   `db:"ticket_type" json:"ticket_type"`
	TicketPrice       *float64     `db:"ticket_price,omitempty" json:"ticket_price,omitempty"`
	RegistrationCount int          `db:"registration_count" json:"registration_count"`
	CoverImage        string       `db:"cover_image,omitempty" json:"cover_image,omitempty"`
	ThemeColor        string       `db:"theme_color" json:"theme_color"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

// Upcoming reports whether the event starts at or after now.
func (e Event) Upcoming(now time.Time) bool {
	return !e.StartDate.Before(now)
}

type Registration struct {
	ID            string    `db:"id" json:"id"`
	EventID       string    `db:"event_id" json:"event_id"`
	UserID        string    `db:"user_id" json:"user_id"`
	AttendeeName  string    `db:"attendee_name" json:"attendee_name"`
	AttendeeEmail string    `db:"attendee_email" json:"attendee_email"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
