package service

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventhive/cmd/middleware"
	"eventhive/internal/apperr"
	"eventhive/internal/category"
	"eventhive/internal/dto"
	"eventhive/internal/events"
	"eventhive/internal/feed"
	"eventhive/internal/model"
	"eventhive/internal/users"
	"eventhive/pkg/validator"
)

type Service interface {
	StoreUser(ctx *ginext.Context)
	CurrentUser(ctx *ginext.Context)
	CompleteOnboarding(ctx *ginext.Context)

	CreateEvent(ctx *ginext.Context)
	MyEvents(ctx *ginext.Context)
	GetEvent(ctx *ginext.Context)
	DeleteEvent(ctx *ginext.Context)
	Register(ctx *ginext.Context)
	EventRegistrations(ctx *ginext.Context)

	Featured(ctx *ginext.Context)
	Local(ctx *ginext.Context)
	Popular(ctx *ginext.Context)
	Categories(ctx *ginext.Context)
	CategoryPage(ctx *ginext.Context)
	Search(ctx *ginext.Context)
}

// ExploreDefaults is the location used by the local feed when neither the
// query nor the caller's profile names one.
type ExploreDefaults struct {
	City  string
	State string
}

var errNotFoundCategory = apperr.New(apperr.KindNotFound, "category not found")

type service struct {
	users    *users.Service
	events   *events.Service
	feed     *feed.Composer
	defaults ExploreDefaults
	log      *zerolog.Logger
}

func NewService(u *users.Service, e *events.Service, f *feed.Composer, defaults ExploreDefaults, logger *zerolog.Logger) Service {
	return &service{
		users:    u,
		events:   e,
		feed:     f,
		defaults: defaults,
		log:      logger,
	}
}

func (s *service) StoreUser(ctx *ginext.Context) {
	var req dto.StoreUserRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
			return
		}
		if verr := validator.Validate(ctx, req); verr != nil {
			dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
			return
		}
	}

	id := middleware.IdentityFrom(ctx)
	if id != nil && strings.TrimSpace(req.Name) != "" {
		named := *id
		named.Name = strings.TrimSpace(req.Name)
		id = &named
	}

	u, err := s.users.Store(ctx.Request.Context(), id)
	if err != nil {
		s.fail(ctx, err, "failed to store user")
		return
	}
	dto.SuccessResponse(ctx, u)
}

func (s *service) CurrentUser(ctx *ginext.Context) {
	u, err := s.users.Current(ctx.Request.Context(), middleware.IdentityFrom(ctx))
	if err != nil {
		s.fail(ctx, err, "failed to get current user")
		return
	}
	dto.SuccessResponse(ctx, u)
}

func (s *service) CompleteOnboarding(ctx *ginext.Context) {
	var req dto.OnboardingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	u, err := s.users.CompleteOnboarding(ctx.Request.Context(), middleware.IdentityFrom(ctx), users.OnboardingRequest{
		Location: model.Location{
			City:    req.Location.City,
			State:   req.Location.State,
			Country: req.Location.Country,
		},
		Interests: req.Interests,
	})
	if err != nil {
		s.fail(ctx, err, "failed to complete onboarding")
		return
	}
	dto.SuccessResponse(ctx, u)
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	var req dto.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.log.Error().Err(err).Msg("failed to parse create event request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	// Quota and theme gating outrank field validation, so a gated request is
	// reported as such even when the draft has other problems.
	id := middleware.IdentityFrom(ctx)
	if err := s.events.Authorize(ctx.Request.Context(), id, req.ThemeColor); err != nil {
		s.fail(ctx, err, "failed to authorize event creation")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		s.fail(ctx, apperr.Wrap(apperr.KindInvalid, verr.Error(), verr), "invalid event draft")
		return
	}

	e, err := s.events.Create(ctx.Request.Context(), id, events.CreateRequest{
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Tags:         req.Tags,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Timezone:     req.Timezone,
		LocationType: req.LocationType,
		Venue:        req.Venue,
		Address:      req.Address,
		City:         req.City,
		State:        req.State,
		Country:      req.Country,
		Capacity:     req.Capacity,
		TicketType:   req.TicketType,
		TicketPrice:  req.TicketPrice,
		CoverImage:   req.CoverImage,
		ThemeColor:   req.ThemeColor,
	})
	if err != nil {
		s.fail(ctx, err, "failed to create event")
		return
	}

	dto.SuccessCreatedResponse(ctx, dto.CreateEventResponse{ID: e.ID, Slug: e.Slug})
}

func (s *service) MyEvents(ctx *ginext.Context) {
	list, err := s.events.Mine(ctx.Request.Context(), middleware.IdentityFrom(ctx))
	if err != nil {
		s.fail(ctx, err, "failed to list organizer events")
		return
	}
	dto.SuccessResponse(ctx, list)
}

func (s *service) GetEvent(ctx *ginext.Context) {
	e, err := s.events.GetBySlug(ctx.Request.Context(), ctx.Param("slug"))
	if err != nil {
		s.fail(ctx, err, "failed to get event")
		return
	}
	dto.SuccessResponse(ctx, e)
}

func (s *service) DeleteEvent(ctx *ginext.Context) {
	if err := s.events.Delete(ctx.Request.Context(), middleware.IdentityFrom(ctx), ctx.Param("id")); err != nil {
		s.fail(ctx, err, "failed to delete event")
		return
	}
	dto.SuccessResponse(ctx, map[string]bool{"success": true})
}

func (s *service) Register(ctx *ginext.Context) {
	var req dto.CreateRegistrationRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
			return
		}
		if verr := validator.Validate(ctx, req); verr != nil {
			dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
			return
		}
	}

	reg, err := s.events.Register(ctx.Request.Context(), middleware.IdentityFrom(ctx), ctx.Param("id"), events.RegisterRequest{
		AttendeeName:  req.AttendeeName,
		AttendeeEmail: req.AttendeeEmail,
	})
	if err != nil {
		s.fail(ctx, err, "failed to register")
		return
	}
	dto.SuccessCreatedResponse(ctx, reg)
}

func (s *service) EventRegistrations(ctx *ginext.Context) {
	regs, err := s.events.Registrations(ctx.Request.Context(), middleware.IdentityFrom(ctx), ctx.Param("slug"))
	if err != nil {
		s.fail(ctx, err, "failed to list registrations")
		return
	}
	dto.SuccessResponse(ctx, regs)
}

func (s *service) Featured(ctx *ginext.Context) {
	limit, ok := limitParam(ctx)
	if !ok {
		return
	}
	list, err := s.feed.Featured(ctx.Request.Context(), feed.FeaturedRequest{Limit: limit})
	if err != nil {
		s.fail(ctx, err, "failed to compose featured feed")
		return
	}
	dto.SuccessResponse(ctx, list)
}

// Local filters by the query location, falling back to the caller's
// onboarding location and then to the configured default.
func (s *service) Local(ctx *ginext.Context) {
	limit, ok := limitParam(ctx)
	if !ok {
		return
	}
	req := feed.LocalRequest{
		City:  strings.TrimSpace(ctx.Query("city")),
		State: strings.TrimSpace(ctx.Query("state")),
		Limit: limit,
	}

	caller := s.caller(ctx)
	if req.City == "" && req.State == "" {
		if caller != nil && caller.Location != nil {
			req.City, req.State = caller.Location.City, caller.Location.State
		} else {
			req.City, req.State = s.defaults.City, s.defaults.State
		}
	}

	list, err := s.feed.Local(ctx.Request.Context(), req)
	if err != nil {
		s.fail(ctx, err, "failed to compose local feed")
		return
	}
	dto.SuccessResponse(ctx, personalise(list, caller))
}

func (s *service) Popular(ctx *ginext.Context) {
	limit, ok := limitParam(ctx)
	if !ok {
		return
	}
	list, err := s.feed.Popular(ctx.Request.Context(), feed.PopularRequest{Limit: limit})
	if err != nil {
		s.fail(ctx, err, "failed to compose popular feed")
		return
	}
	dto.SuccessResponse(ctx, personalise(list, s.caller(ctx)))
}

func (s *service) Categories(ctx *ginext.Context) {
	list, err := s.feed.Categories(ctx.Request.Context())
	if err != nil {
		s.fail(ctx, err, "failed to count categories")
		return
	}
	dto.SuccessResponse(ctx, list)
}

func (s *service) CategoryPage(ctx *ginext.Context) {
	cat, found := category.Lookup(ctx.Param("category"))
	if !found {
		dto.AppError(ctx, errNotFoundCategory)
		return
	}
	limit, ok := limitParam(ctx)
	if !ok {
		return
	}

	list, err := s.feed.ByCategory(ctx.Request.Context(), feed.CategoryRequest{Category: cat.ID, Limit: limit})
	if err != nil {
		s.fail(ctx, err, "failed to compose category feed")
		return
	}
	counts, err := s.feed.CategoryCounts(ctx.Request.Context())
	if err != nil {
		s.fail(ctx, err, "failed to count categories")
		return
	}
	dto.SuccessResponse(ctx, dto.CategoryPageResponse{Category: cat, Count: counts[cat.ID], Events: list})
}

func (s *service) Search(ctx *ginext.Context) {
	limit, ok := limitParam(ctx)
	if !ok {
		return
	}
	list, err := s.feed.Search(ctx.Request.Context(), feed.SearchRequest{Query: ctx.Query("q"), Limit: limit})
	if err != nil {
		s.fail(ctx, err, "failed to search events")
		return
	}
	dto.SuccessResponse(ctx, list)
}

// caller resolves the optional identity to a stored user, or nil.
func (s *service) caller(ctx *ginext.Context) *model.User {
	id := middleware.IdentityFrom(ctx)
	if id == nil {
		return nil
	}
	u, err := s.users.Resolve(ctx.Request.Context(), id)
	if err != nil {
		return nil
	}
	return u
}

func personalise(list []model.Event, caller *model.User) []model.Event {
	if caller == nil {
		return list
	}
	return feed.SortByInterests(list, caller.Interests)
}

func (s *service) fail(ctx *ginext.Context, err error, msg string) {
	if !dto.AppError(ctx, err) {
		s.log.Error().Err(err).Str("path", ctx.FullPath()).Msg(msg)
	}
}

func limitParam(ctx *ginext.Context) (int, bool) {
	raw := ctx.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		dto.FieldBadFormatError(ctx, "limit")
		return 0, false
	}
	return n, true
}
