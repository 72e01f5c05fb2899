package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("resolve user: %w", New(KindUnauthorized, "token not recognised"))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatal("expected unauthorized to match sentinel")
	}
	if errors.Is(New(KindQuotaExceeded, "free event limit reached"), ErrUnauthorized) {
		t.Fatal("quota exceeded must not match unauthorized")
	}
}

func TestKindOfWrapped(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("create event: %w", New(KindForbidden, "not your event"))
	if got := KindOf(err); got != KindForbidden {
		t.Fatalf("KindOf = %q, want %q", got, KindForbidden)
	}
	if got := KindOf(errors.New("boom")); got != KindUnknown {
		t.Fatalf("KindOf(plain) = %q, want %q", got, KindUnknown)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := Wrap(KindConflict, "slug taken", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if err.Error() != "slug taken: disk full" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
