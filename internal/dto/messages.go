package dto

import "time"

// Routing keys on the notifications topic exchange.
const (
	RoutingEventCreated        = "event.created"
	RoutingEventDeleted        = "event.deleted"
	RoutingRegistrationCreated = "registration.created"
)

type EventCreatedMessage struct {
	EventID        string    `json:"event_id"`
	Slug           string    `json:"slug"`
	Title          string    `json:"title"`
	OrganizerName  string    `json:"organizer_name"`
	OrganizerEmail string    `json:"organizer_email"`
	StartDate      time.Time `json:"start_date"`
}

type Attendee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type EventDeletedMessage struct {
	EventID   string     `json:"event_id"`
	Title     string     `json:"title"`
	StartDate time.Time  `json:"start_date"`
	Attendees []Attendee `json:"attendees"`
}

type RegistrationCreatedMessage struct {
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	EventTitle     string    `json:"event_title"`
	EventSlug      string    `json:"event_slug"`
	StartDate      time.Time `json:"start_date"`
	AttendeeName   string    `json:"attendee_name"`
	AttendeeEmail  string    `json:"attendee_email"`
}
