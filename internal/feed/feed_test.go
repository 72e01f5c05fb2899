package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"eventhive/internal/category"
	"eventhive/internal/model"
)

var now = time.Date(2026, time.May, 20, 18, 0, 0, 0, time.UTC)

// memStore hands back every event it holds, past ones included, so the
// composer's own filtering is what the tests observe.
type memStore struct {
	events []model.Event
	err    error
}

func (m *memStore) ListUpcoming(context.Context, time.Time) ([]model.Event, error) {
	if m.err != nil {
		return nil, m.err
	}
	return append([]model.Event(nil), m.events...), nil
}

func (m *memStore) ListUpcomingByCategory(_ context.Context, cat string, _ time.Time) ([]model.Event, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Event
	for _, e := range m.events {
		if e.Category == cat {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) CountUpcomingByCategory(_ context.Context, at time.Time) (map[string]int, error) {
	if m.err != nil {
		return nil, m.err
	}
	counts := map[string]int{}
	for _, e := range m.events {
		if e.Upcoming(at) {
			counts[e.Category]++
		}
	}
	return counts, nil
}

func ev(id, cat string, regs int, startIn time.Duration) model.Event {
	return model.Event{
		ID:                id,
		Title:             "Event " + id,
		Category:          cat,
		RegistrationCount: regs,
		StartDate:         now.Add(startIn),
		City:              "Pune",
		State:             "Maharashtra",
	}
}

func ids(events []model.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func equalIDs(t *testing.T, what string, got []model.Event, want ...string) {
	t.Helper()

	g := ids(got)
	if fmt.Sprint(g) != fmt.Sprint(want) {
		t.Fatalf("%s = %v, want %v", what, g, want)
	}
}

func newComposer(events ...model.Event) *Composer {
	return NewComposer(&memStore{events: events}, func() time.Time { return now })
}

func TestFeaturedRanksAndTruncates(t *testing.T) {
	t.Parallel()

	c := newComposer(
		ev("a", "tech", 5, time.Hour),
		ev("b", "music", 50, 2*time.Hour),
		ev("c", "tech", 20, 3*time.Hour),
		ev("d", "sports", 20, time.Hour),
		ev("past", "tech", 999, -time.Hour),
	)

	got, err := c.Featured(context.Background(), FeaturedRequest{})
	if err != nil {
		t.Fatalf("featured: %v", err)
	}
	// d and c tie on registrations; d starts first.
	equalIDs(t, "featured", got, "b", "d", "c")
}

func TestPopularSharesRankingWithLongerDefault(t *testing.T) {
	t.Parallel()

	var events []model.Event
	for i := 0; i < 10; i++ {
		events = append(events, ev(fmt.Sprintf("e%02d", i), "tech", i, time.Duration(i+1)*time.Hour))
	}
	c := newComposer(events...)

	popular, err := c.Popular(context.Background(), PopularRequest{})
	if err != nil {
		t.Fatalf("popular: %v", err)
	}
	equalIDs(t, "popular", popular, "e09", "e08", "e07", "e06", "e05", "e04")

	featured, err := c.Featured(context.Background(), FeaturedRequest{Limit: 6})
	if err != nil {
		t.Fatalf("featured: %v", err)
	}
	equalIDs(t, "featured(limit=6)", featured, ids(popular)...)
}

func TestRankTieBreakIsDeterministic(t *testing.T) {
	t.Parallel()

	events := []model.Event{
		ev("z", "tech", 3, 2*time.Hour),
		ev("y", "tech", 3, time.Hour),
		ev("x", "tech", 3, time.Hour),
	}
	Rank(events)
	equalIDs(t, "rank", events, "x", "y", "z")
}

func TestLocal(t *testing.T) {
	t.Parallel()

	pune := ev("pune", "tech", 0, time.Hour)
	mumbai := ev("mumbai", "tech", 0, 2*time.Hour)
	mumbai.City = "Mumbai"
	delhi := ev("delhi", "tech", 0, 3*time.Hour)
	delhi.City, delhi.State = "New Delhi", "Delhi"
	pastPune := ev("past-pune", "tech", 0, -time.Minute)

	c := newComposer(pune, mumbai, delhi, pastPune)
	ctx := context.Background()

	tests := []struct {
		name string
		req  LocalRequest
		want []string
	}{
		{"city case-insensitive", LocalRequest{City: "PUNE"}, []string{"pune"}},
		{"city wins over state", LocalRequest{City: "mumbai", State: "Delhi"}, []string{"mumbai"}},
		{"state fallback", LocalRequest{State: "maharashtra"}, []string{"pune", "mumbai"}},
		{"no filter", LocalRequest{}, []string{"pune", "mumbai", "delhi"}},
		{"limit", LocalRequest{State: "Maharashtra", Limit: 1}, []string{"pune"}},
		{"no match", LocalRequest{City: "Chennai"}, []string{}},
	}
	for _, tt := range tests {
		got, err := c.Local(ctx, tt.req)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		equalIDs(t, tt.name, got, tt.want...)
	}
}

func TestLocalDefaultLimit(t *testing.T) {
	t.Parallel()

	var events []model.Event
	for i := 0; i < 7; i++ {
		events = append(events, ev(fmt.Sprint(i), "tech", 0, time.Duration(i+1)*time.Minute))
	}
	got, err := newComposer(events...).Local(context.Background(), LocalRequest{City: "pune"})
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	if len(got) != DefaultLocalLimit {
		t.Fatalf("local returned %d, want %d", len(got), DefaultLocalLimit)
	}
}

func TestByCategory(t *testing.T) {
	t.Parallel()

	var events []model.Event
	for i := 0; i < 15; i++ {
		events = append(events, ev(fmt.Sprintf("t%02d", i), "tech", 100-i, time.Duration(i+1)*time.Hour))
	}
	events = append(events, ev("m", "music", 0, time.Hour), ev("old", "tech", 0, -time.Hour))
	c := newComposer(events...)

	got, err := c.ByCategory(context.Background(), CategoryRequest{Category: "tech"})
	if err != nil {
		t.Fatalf("by category: %v", err)
	}
	if len(got) != DefaultCategoryLimit {
		t.Fatalf("got %d events, want %d", len(got), DefaultCategoryLimit)
	}
	for i, e := range got {
		if e.Category != "tech" || !e.Upcoming(now) {
			t.Fatalf("event %s leaked into tech feed", e.ID)
		}
		if want := fmt.Sprintf("t%02d", i); e.ID != want {
			t.Fatalf("store order broken at %d: %s, want %s", i, e.ID, want)
		}
	}
}

func TestFeedsNeverReturnPastEvents(t *testing.T) {
	t.Parallel()

	events := []model.Event{
		ev("past1", "tech", 100, -time.Second),
		ev("past2", "music", 100, -24*time.Hour),
		ev("edge", "tech", 0, 0),
		ev("future", "music", 1, time.Hour),
	}
	c := newComposer(events...)
	ctx := context.Background()

	check := func(name string, got []model.Event, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		for _, e := range got {
			if e.StartDate.Before(now) {
				t.Fatalf("%s returned past event %s", name, e.ID)
			}
		}
	}
	got, err := c.Featured(ctx, FeaturedRequest{Limit: 10})
	check("featured", got, err)
	equalIDs(t, "featured", got, "future", "edge")
	got, err = c.Popular(ctx, PopularRequest{Limit: 10})
	check("popular", got, err)
	got, err = c.Local(ctx, LocalRequest{City: "pune", Limit: 10})
	check("local", got, err)
	got, err = c.ByCategory(ctx, CategoryRequest{Category: "tech", Limit: 10})
	check("category", got, err)
	got, err = c.Search(ctx, SearchRequest{Query: "event", Limit: 10})
	check("search", got, err)
}

func TestCategoryCountsSumToUpcoming(t *testing.T) {
	t.Parallel()

	events := []model.Event{
		ev("1", "tech", 0, time.Hour),
		ev("2", "tech", 0, 2*time.Hour),
		ev("3", "music", 0, time.Hour),
		ev("4", "custom", 0, time.Hour),
		ev("5", "music", 0, -time.Hour),
	}
	c := newComposer(events...)

	counts, err := c.CategoryCounts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total != 4 {
		t.Fatalf("counts sum to %d, want 4 (%v)", total, counts)
	}

	cats, err := c.Categories(context.Background())
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(cats) != len(category.All()) {
		t.Fatalf("categories = %d entries, want the full catalog", len(cats))
	}
	for _, cc := range cats {
		if cc.Count != counts[cc.ID] {
			t.Fatalf("category %s count = %d, want %d", cc.ID, cc.Count, counts[cc.ID])
		}
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	a := ev("a", "tech", 0, time.Hour)
	a.Title = "Summer Tech Meetup"
	b := ev("b", "music", 0, 2*time.Hour)
	b.Title = "STRASSE Festival"
	d := ev("d", "tech", 0, 3*time.Hour)
	d.Title = "Go meetup"
	c := newComposer(a, b, d)
	ctx := context.Background()

	got, err := c.Search(ctx, SearchRequest{Query: "MEETUP"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	equalIDs(t, "meetup", got, "a", "d")

	got, err = c.Search(ctx, SearchRequest{Query: "straße"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	equalIDs(t, "folded", got, "b")

	got, err = c.Search(ctx, SearchRequest{Query: " m "})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("short query returned %d events", len(got))
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	t.Parallel()

	boom := errors.New("store down")
	c := NewComposer(&memStore{err: boom}, func() time.Time { return now })
	ctx := context.Background()

	if _, err := c.Featured(ctx, FeaturedRequest{}); !errors.Is(err, boom) {
		t.Fatalf("featured err = %v", err)
	}
	if _, err := c.ByCategory(ctx, CategoryRequest{Category: "tech"}); !errors.Is(err, boom) {
		t.Fatalf("category err = %v", err)
	}
	if _, err := c.Categories(ctx); !errors.Is(err, boom) {
		t.Fatalf("categories err = %v", err)
	}
}

func TestComposerIsSafeForConcurrentUse(t *testing.T) {
	t.Parallel()

	var events []model.Event
	for i := 0; i < 50; i++ {
		events = append(events, ev(fmt.Sprint(i), "tech", i%7, time.Duration(i+1)*time.Minute))
	}
	c := newComposer(events...)
	want, err := c.Popular(context.Background(), PopularRequest{})
	if err != nil {
		t.Fatalf("popular: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Popular(context.Background(), PopularRequest{})
			if err != nil {
				errs <- err
				return
			}
			if fmt.Sprint(ids(got)) != fmt.Sprint(ids(want)) {
				errs <- fmt.Errorf("popular = %v, want %v", ids(got), ids(want))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestLimitClamp(t *testing.T) {
	t.Parallel()

	if got := limitOr(-1, 3); got != 3 {
		t.Fatalf("limitOr(-1) = %d", got)
	}
	if got := limitOr(MaxLimit+1, 3); got != MaxLimit {
		t.Fatalf("limitOr(max+1) = %d", got)
	}
	if got := limitOr(7, 3); got != 7 {
		t.Fatalf("limitOr(7) = %d", got)
	}
}
