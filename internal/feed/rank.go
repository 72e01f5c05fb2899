package feed

import (
	"cmp"
	"slices"

	"eventhive/internal/model"
)

// Rank orders events by registration count, highest first. Ties go to the
// earlier start date, then to the smaller id, so the order is deterministic.
func Rank(events []model.Event) {
	slices.SortStableFunc(events, func(a, b model.Event) int {
		if c := cmp.Compare(b.RegistrationCount, a.RegistrationCount); c != 0 {
			return c
		}
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// SortByInterests moves events whose category is in interests ahead of the
// rest, keeping the relative order inside both groups. With no interests the
// input slice is returned as is. Matching more than one interest gives no
// extra weight.
func SortByInterests(events []model.Event, interests []string) []model.Event {
	if len(interests) == 0 {
		return events
	}
	want := make(map[string]struct{}, len(interests))
	for _, c := range interests {
		want[c] = struct{}{}
	}

	out := make([]model.Event, 0, len(events))
	var rest []model.Event
	for _, e := range events {
		if _, ok := want[e.Category]; ok {
			out = append(out, e)
			continue
		}
		rest = append(rest, e)
	}
	return append(out, rest...)
}
