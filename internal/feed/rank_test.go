package feed

import (
	"testing"
	"time"

	"eventhive/internal/model"
)

func TestSortByInterests(t *testing.T) {
	t.Parallel()

	a := ev("A", "sports", 0, time.Hour)
	b := ev("B", "music", 0, time.Hour)
	c := ev("C", "sports", 0, time.Hour)

	got := SortByInterests([]model.Event{a, b, c}, []string{"sports"})
	equalIDs(t, "sports first", got, "A", "C", "B")

	got = SortByInterests([]model.Event{a, b, c}, []string{"music", "sports"})
	equalIDs(t, "all match", got, "A", "B", "C")

	got = SortByInterests([]model.Event{a, b, c}, []string{"food"})
	equalIDs(t, "none match", got, "A", "B", "C")
}

func TestSortByInterestsEmptyIsIdentity(t *testing.T) {
	t.Parallel()

	in := []model.Event{ev("A", "sports", 0, 0), ev("B", "music", 0, 0)}
	got := SortByInterests(in, nil)
	if len(got) != len(in) || &got[0] != &in[0] {
		t.Fatal("empty interests must return the input unchanged")
	}
	if out := SortByInterests(nil, []string{"sports"}); len(out) != 0 {
		t.Fatalf("nil input returned %d events", len(out))
	}
}

func TestSortByInterestsDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := []model.Event{ev("A", "music", 0, 0), ev("B", "sports", 0, 0)}
	_ = SortByInterests(in, []string{"sports"})
	equalIDs(t, "input", in, "A", "B")
}
