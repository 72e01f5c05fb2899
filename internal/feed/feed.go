// Package feed composes the explore feeds from upcoming events.
//
// Every feed starts from the events whose start date is at or after the
// current time; the variants differ only in filtering, ordering and the
// default truncation. All operations are read-only and safe for concurrent use.
package feed

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"eventhive/internal/category"
	"eventhive/internal/model"
)

const (
	DefaultFeaturedLimit = 3
	DefaultLocalLimit    = 4
	DefaultPopularLimit  = 6
	DefaultCategoryLimit = 12
	DefaultSearchLimit   = 5
	MaxLimit             = 100

	// MinSearchQueryLen is the shortest query, in runes, that is searched at all.
	MinSearchQueryLen = 2
)

type Store interface {
	ListUpcoming(ctx context.Context, now time.Time) ([]model.Event, error)
	ListUpcomingByCategory(ctx context.Context, category string, now time.Time) ([]model.Event, error)
	CountUpcomingByCategory(ctx context.Context, now time.Time) (map[string]int, error)
}

type Composer struct {
	store  Store
	now    func() time.Time
	tracer trace.Tracer
}

func NewComposer(store Store, now func() time.Time) *Composer {
	if now == nil {
		now = time.Now
	}
	return &Composer{store: store, now: now, tracer: otel.Tracer("eventhive/feed")}
}

type FeaturedRequest struct {
	Limit int
}

type PopularRequest struct {
	Limit int
}

type LocalRequest struct {
	City  string
	State string
	Limit int
}

type CategoryRequest struct {
	Category string
	Limit    int
}

type SearchRequest struct {
	Query string
	Limit int
}

// CategoryCount is one catalog entry with its number of upcoming events.
type CategoryCount struct {
	category.Category
	Count int `json:"count"`
}

// Featured returns the most registered upcoming events.
func (c *Composer) Featured(ctx context.Context, req FeaturedRequest) ([]model.Event, error) {
	return c.ranked(ctx, "feed.Featured", limitOr(req.Limit, DefaultFeaturedLimit))
}

// Popular uses the same ranking as Featured with a longer default list.
func (c *Composer) Popular(ctx context.Context, req PopularRequest) ([]model.Event, error) {
	return c.ranked(ctx, "feed.Popular", limitOr(req.Limit, DefaultPopularLimit))
}

func (c *Composer) ranked(ctx context.Context, op string, limit int) ([]model.Event, error) {
	ctx, span := c.start(ctx, op, limit)
	defer span.End()

	events, err := c.upcoming(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	Rank(events)
	return truncate(events, limit), nil
}

// Local filters upcoming events by city, or by state when no city is given.
// Matching is case-insensitive. Store order is kept.
func (c *Composer) Local(ctx context.Context, req LocalRequest) ([]model.Event, error) {
	limit := limitOr(req.Limit, DefaultLocalLimit)
	ctx, span := c.start(ctx, "feed.Local", limit)
	defer span.End()
	span.SetAttributes(attribute.String("feed.city", req.City), attribute.String("feed.state", req.State))

	events, err := c.upcoming(ctx)
	if err != nil {
		return nil, fail(span, err)
	}

	fold := cases.Fold()
	city := fold.String(strings.TrimSpace(req.City))
	state := fold.String(strings.TrimSpace(req.State))
	var (
		want  string
		field func(model.Event) string
	)
	switch {
	case city != "":
		want = city
		field = func(e model.Event) string { return e.City }
	case state != "":
		want = state
		field = func(e model.Event) string { return e.State }
	default:
		return truncate(events, limit), nil
	}

	out := make([]model.Event, 0, limit)
	for _, e := range events {
		if fold.String(field(e)) != want {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ByCategory returns upcoming events of one category in store order.
func (c *Composer) ByCategory(ctx context.Context, req CategoryRequest) ([]model.Event, error) {
	limit := limitOr(req.Limit, DefaultCategoryLimit)
	ctx, span := c.start(ctx, "feed.ByCategory", limit)
	defer span.End()
	span.SetAttributes(attribute.String("feed.category", req.Category))

	now := c.now()
	events, err := c.store.ListUpcomingByCategory(ctx, req.Category, now)
	if err != nil {
		return nil, fail(span, err)
	}
	out := make([]model.Event, 0, min(len(events), limit))
	for _, e := range events {
		if e.Category != req.Category || !e.Upcoming(now) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// CategoryCounts maps each category to its number of upcoming events.
func (c *Composer) CategoryCounts(ctx context.Context) (map[string]int, error) {
	ctx, span := c.start(ctx, "feed.CategoryCounts", 0)
	defer span.End()

	counts, err := c.store.CountUpcomingByCategory(ctx, c.now())
	if err != nil {
		return nil, fail(span, err)
	}
	return counts, nil
}

// Categories lists the whole catalog with upcoming counts, zero when absent.
func (c *Composer) Categories(ctx context.Context) ([]CategoryCount, error) {
	counts, err := c.CategoryCounts(ctx)
	if err != nil {
		return nil, err
	}
	all := category.All()
	out := make([]CategoryCount, 0, len(all))
	for _, cat := range all {
		out = append(out, CategoryCount{Category: cat, Count: counts[cat.ID]})
	}
	return out, nil
}

// Search matches the query against upcoming event titles, case-folded.
// Queries shorter than MinSearchQueryLen return nothing.
func (c *Composer) Search(ctx context.Context, req SearchRequest) ([]model.Event, error) {
	limit := limitOr(req.Limit, DefaultSearchLimit)
	q := strings.TrimSpace(req.Query)
	if len([]rune(q)) < MinSearchQueryLen {
		return []model.Event{}, nil
	}

	ctx, span := c.start(ctx, "feed.Search", limit)
	defer span.End()

	events, err := c.upcoming(ctx)
	if err != nil {
		return nil, fail(span, err)
	}

	fold := cases.Fold()
	q = fold.String(q)
	out := make([]model.Event, 0, limit)
	for _, e := range events {
		if !strings.Contains(fold.String(e.Title), q) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// upcoming lists events starting at or after now. Past events are dropped here
// as well as in the store query.
func (c *Composer) upcoming(ctx context.Context) ([]model.Event, error) {
	now := c.now()
	events, err := c.store.ListUpcoming(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.Upcoming(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *Composer) start(ctx context.Context, op string, limit int) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, op)
	if limit > 0 {
		span.SetAttributes(attribute.Int("feed.limit", limit))
	}
	return ctx, span
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func truncate(events []model.Event, limit int) []model.Event {
	if events == nil {
		return []model.Event{}
	}
	if len(events) > limit {
		return events[:limit]
	}
	return events
}
