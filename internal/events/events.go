// Package events implements the event write path: the creation gate with its
// free-tier quota and theme-colour policy, owner deletion with cascade, and
// attendee registration.
package events

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eventhive/internal/apperr"
	"eventhive/internal/auth"
	"eventhive/internal/category"
	"eventhive/internal/dto"
	"eventhive/internal/model"
	"eventhive/internal/repo"
	"eventhive/internal/slug"
)

// FreeEventLimit is the lifetime number of events a free-tier organizer may
// hold. Deleting a free event gives the slot back.
const FreeEventLimit = 1

type Store interface {
	CreateEventTx(ctx context.Context, e *model.Event, meterFreeTier bool, freeLimit int) error
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	GetEventBySlug(ctx context.Context, slug string) (*model.Event, error)
	ListEventsByOrganizer(ctx context.Context, organizerID string) ([]model.Event, error)
	DeleteEventTx(ctx context.Context, e model.Event, at time.Time) ([]model.Registration, error)
	RegisterTx(ctx context.Context, reg *model.Registration) error
	ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
}

// UserResolver maps an identity to its stored user, failing with
// apperr.ErrUnauthorized when there is none.
type UserResolver interface {
	Resolve(ctx context.Context, id *auth.Identity) (*model.User, error)
}

// Notifier publishes domain notifications. Publishing is best effort.
type Notifier interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

type Service struct {
	store    Store
	users    UserResolver
	plans    auth.PlanResolver
	slugs    *slug.Generator
	notifier Notifier
	now      func() time.Time
	log      *zerolog.Logger
	tracer   trace.Tracer
}

type Options struct {
	Store    Store
	Users    UserResolver
	Plans    auth.PlanResolver
	Slugs    *slug.Generator
	Notifier Notifier
	Now      func() time.Time
	Logger   *zerolog.Logger
}

func New(opts Options) *Service {
	s := &Service{
		store:    opts.Store,
		users:    opts.Users,
		plans:    opts.Plans,
		slugs:    opts.Slugs,
		notifier: opts.Notifier,
		now:      opts.Now,
		log:      opts.Logger,
		tracer:   otel.Tracer("eventhive/events"),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.plans == nil {
		s.plans = auth.ClaimPlanResolver{}
	}
	if s.slugs == nil {
		s.slugs = slug.NewGenerator(s.now)
	}
	if s.log == nil {
		nop := zerolog.Nop()
		s.log = &nop
	}
	return s
}

// CreateRequest is a complete event draft.
type CreateRequest struct {
	Title        string
	Description  string
	Category     string
	Tags         []string
	StartDate    time.Time
	EndDate      time.Time
	Timezone     string
	LocationType model.LocationType
	Venue        string
	Address      string
	City         string
	State        string
	Country      string
	Capacity     int
	TicketType   model.TicketType
	TicketPrice  *float64
	CoverImage   string
	ThemeColor   string
}

// grant is the outcome of the plan checks for one creation.
type grant struct {
	user  *model.User
	pro   bool
	theme string
}

// Authorize runs the plan checks of the creation gate without touching the
// draft: authentication, the free-tier quota, then theme colour gating.
// Callers that validate the draft themselves call it first so that plan
// failures are reported ahead of field errors.
func (s *Service) Authorize(ctx context.Context, id *auth.Identity, themeColor string) error {
	ctx, span := s.tracer.Start(ctx, "events.Authorize")
	defer span.End()

	_, err := s.authorize(ctx, id, themeColor)
	if err != nil {
		return fail(span, err)
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, id *auth.Identity, themeColor string) (*grant, error) {
	u, err := s.users.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	pro, err := s.plans.IsPro(ctx, *id)
	if err != nil {
		return nil, err
	}

	if !pro && u.FreeEventsCreated >= FreeEventLimit {
		return nil, apperr.New(apperr.KindQuotaExceeded,
			"free plan allows one event; delete it or upgrade to pro to create more")
	}

	theme := strings.TrimSpace(themeColor)
	switch {
	case !pro && theme != "" && !strings.EqualFold(theme, model.DefaultThemeColor):
		return nil, apperr.New(apperr.KindFeatureGated, "custom theme colours require the pro plan")
	case !pro, theme == "":
		theme = model.DefaultThemeColor
	}
	return &grant{user: u, pro: pro, theme: theme}, nil
}

// Create runs the creation gate for the caller and persists the event.
//
// Checks run in a fixed order: authentication, free-tier quota, theme colour
// gating, then the draft itself. The event insert and the free-tier counter
// increment commit together or not at all.
func (s *Service) Create(ctx context.Context, id *auth.Identity, req CreateRequest) (*model.Event, error) {
	ctx, span := s.tracer.Start(ctx, "events.Create")
	defer span.End()

	g, err := s.authorize(ctx, id, req.ThemeColor)
	if err != nil {
		return nil, fail(span, err)
	}
	u, pro := g.user, g.pro
	span.SetAttributes(attribute.String("user.id", u.ID), attribute.Bool("user.pro", pro))

	e, err := draft(req)
	if err != nil {
		return nil, fail(span, err)
	}

	now := s.now()
	e.Slug = s.slugs.Next(e.Title)
	e.ThemeColor = g.theme
	e.OrganizerID = u.ID
	e.OrganizerName = u.Name
	e.RegistrationCount = 0
	e.CreatedAt = now
	e.UpdatedAt = now

	if err := s.store.CreateEventTx(ctx, e, !pro, FreeEventLimit); err != nil {
		if errors.Is(err, repo.ErrQuotaExceeded) {
			return nil, fail(span, apperr.Wrap(apperr.KindQuotaExceeded, "free plan allows one event", err))
		}
		s.log.Error().Err(err).Str("user_id", u.ID).Msg("failed to create event")
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.String("event.id", e.ID), attribute.String("event.slug", e.Slug))
	s.log.Info().Str("event_id", e.ID).Str("slug", e.Slug).Bool("metered", !pro).Msg("event created")

	s.publish(ctx, dto.RoutingEventCreated, dto.EventCreatedMessage{
		EventID:        e.ID,
		Slug:           e.Slug,
		Title:          e.Title,
		OrganizerName:  u.Name,
		OrganizerEmail: u.Email,
		StartDate:      e.StartDate,
	})
	return e, nil
}

// draft validates req and builds the event it describes, normalising the
// fields that depend on location and ticket type.
func draft(req CreateRequest) (*model.Event, error) {
	e := &model.Event{
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		Category:     req.Category,
		Tags:         cleanTags(req.Tags),
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Timezone:     strings.TrimSpace(req.Timezone),
		LocationType: req.LocationType,
		Venue:        strings.TrimSpace(req.Venue),
		Address:      strings.TrimSpace(req.Address),
		City:         strings.TrimSpace(req.City),
		State:        strings.TrimSpace(req.State),
		Country:      strings.TrimSpace(req.Country),
		Capacity:     req.Capacity,
		TicketType:   req.TicketType,
		CoverImage:   strings.TrimSpace(req.CoverImage),
	}

	invalid := func(msg string) (*model.Event, error) {
		return nil, apperr.New(apperr.KindInvalid, msg)
	}
	switch {
	case e.Title == "":
		return invalid("title is required")
	case strings.ContainsFunc(e.Title, unicode.IsControl):
		return invalid("title must be a single line of text")
	case !category.Known(e.Category):
		return invalid("unknown category: " + e.Category)
	case e.StartDate.IsZero() || e.EndDate.IsZero():
		return invalid("start and end dates are required")
	case e.EndDate.Before(e.StartDate):
		return invalid("end date must not be before start date")
	case e.Capacity <= 0:
		return invalid("capacity must be positive")
	case e.City == "" || e.Country == "":
		return invalid("city and country are required")
	}
	if e.Timezone == "" {
		e.Timezone = "UTC"
	}

	switch e.LocationType {
	case "", model.LocationPhysical:
		e.LocationType = model.LocationPhysical
		if e.Venue == "" {
			return invalid("venue is required for physical events")
		}
	case model.LocationOnline:
		e.Venue, e.Address = "", ""
	default:
		return invalid("unknown location type: " + string(e.LocationType))
	}

	switch e.TicketType {
	case "", model.TicketFree:
		e.TicketType = model.TicketFree
		if req.TicketPrice != nil {
			return invalid("free events cannot have a ticket price")
		}
	case model.TicketPaid:
		if req.TicketPrice == nil || *req.TicketPrice <= 0 {
			return invalid("paid events need a positive ticket price")
		}
		p := *req.TicketPrice
		e.TicketPrice = &p
	default:
		return invalid("unknown ticket type: " + string(e.TicketType))
	}
	return e, nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Delete removes the caller's event with all its registrations and returns
// the free-tier slot when the event was free.
func (s *Service) Delete(ctx context.Context, id *auth.Identity, eventID string) error {
	ctx, span := s.tracer.Start(ctx, "events.Delete", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	u, err := s.users.Resolve(ctx, id)
	if err != nil {
		return fail(span, err)
	}
	e, err := s.event(ctx, eventID)
	if err != nil {
		return fail(span, err)
	}
	if e.OrganizerID != u.ID {
		return fail(span, apperr.New(apperr.KindForbidden, "only the organizer can delete this event"))
	}

	regs, err := s.store.DeleteEventTx(ctx, *e, s.now())
	if errors.Is(err, repo.ErrEventNotFound) {
		return fail(span, apperr.Wrap(apperr.KindNotFound, "event not found", err))
	}
	if err != nil {
		s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to delete event")
		return fail(span, err)
	}
	s.log.Info().Str("event_id", eventID).Int("registrations", len(regs)).Msg("event deleted")

	attendees := make([]dto.Attendee, 0, len(regs))
	for _, r := range regs {
		attendees = append(attendees, dto.Attendee{Name: r.AttendeeName, Email: r.AttendeeEmail})
	}
	s.publish(ctx, dto.RoutingEventDeleted, dto.EventDeletedMessage{
		EventID:   e.ID,
		Title:     e.Title,
		StartDate: e.StartDate,
		Attendees: attendees,
	})
	return nil
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*model.Event, error) {
	e, err := s.store.GetEventBySlug(ctx, slug)
	if errors.Is(err, repo.ErrEventNotFound) {
		return nil, apperr.Wrap(apperr.KindNotFound, "event not found", err)
	}
	return e, err
}

// Mine lists the caller's events, newest first.
func (s *Service) Mine(ctx context.Context, id *auth.Identity) ([]model.Event, error) {
	u, err := s.users.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListEventsByOrganizer(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

type RegisterRequest struct {
	AttendeeName  string
	AttendeeEmail string
}

// Register signs the caller up for an upcoming event. Attendee details
// default to the caller's profile.
func (s *Service) Register(ctx context.Context, id *auth.Identity, eventID string, req RegisterRequest) (*model.Registration, error) {
	ctx, span := s.tracer.Start(ctx, "events.Register", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	u, err := s.users.Resolve(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}
	e, err := s.event(ctx, eventID)
	if err != nil {
		return nil, fail(span, err)
	}
	now := s.now()
	if !e.Upcoming(now) {
		return nil, fail(span, apperr.New(apperr.KindInvalid, "event has already started"))
	}

	reg := &model.Registration{
		EventID:       e.ID,
		UserID:        u.ID,
		AttendeeName:  firstNonEmpty(req.AttendeeName, u.Name),
		AttendeeEmail: firstNonEmpty(req.AttendeeEmail, u.Email),
		Status:        model.RegistrationConfirmed,
		CreatedAt:     now,
	}
	if err := s.store.RegisterTx(ctx, reg); err != nil {
		switch {
		case errors.Is(err, repo.ErrEventNotFound):
			return nil, fail(span, apperr.Wrap(apperr.KindNotFound, "event not found", err))
		case errors.Is(err, repo.ErrEventFull):
			return nil, fail(span, apperr.Wrap(apperr.KindConflict, "event is full", err))
		case errors.Is(err, repo.ErrDuplicateRegistration):
			return nil, fail(span, apperr.Wrap(apperr.KindConflict, "you have already registered for this event", err))
		}
		s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to register")
		return nil, fail(span, err)
	}
	s.log.Info().Str("registration_id", reg.ID).Str("event_id", e.ID).Msg("registration created")

	s.publish(ctx, dto.RoutingRegistrationCreated, dto.RegistrationCreatedMessage{
		RegistrationID: reg.ID,
		EventID:        e.ID,
		EventTitle:     e.Title,
		EventSlug:      e.Slug,
		StartDate:      e.StartDate,
		AttendeeName:   reg.AttendeeName,
		AttendeeEmail:  reg.AttendeeEmail,
	})
	return reg, nil
}

// Registrations lists the attendees of the event at slug for its organizer.
func (s *Service) Registrations(ctx context.Context, id *auth.Identity, slug string) ([]model.Registration, error) {
	u, err := s.users.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	e, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if e.OrganizerID != u.ID {
		return nil, apperr.New(apperr.KindForbidden, "only the organizer can see registrations")
	}
	regs, err := s.store.ListRegistrationsByEvent(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	return regs, nil
}

func (s *Service) event(ctx context.Context, id string) (*model.Event, error) {
	e, err := s.store.GetEventByID(ctx, id)
	if errors.Is(err, repo.ErrEventNotFound) {
		return nil, apperr.Wrap(apperr.KindNotFound, "event not found", err)
	}
	return e, err
}

func (s *Service) publish(ctx context.Context, key string, msg any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishJSON(ctx, key, msg); err != nil {
		s.log.Warn().Err(err).Str("routing_key", key).Msg("failed to publish notification")
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
