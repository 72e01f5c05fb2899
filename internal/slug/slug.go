// Package slug derives URL-safe, globally unique event slugs from titles.
package slug

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// fallbackBase is used when a title has no ASCII letters or digits.
const fallbackBase = "event"

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Base lower-cases title, collapses every run of characters outside [a-z0-9]
// into a single hyphen and trims leading and trailing hyphens.
func Base(title string) string {
	s := nonAlnum.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(s, "-")
}

// Generator appends a strictly increasing millisecond suffix to slug bases.
// Two calls never return the same suffix, even within one millisecond.
type Generator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Next returns "<base>-<suffix>" for title.
func (g *Generator) Next(title string) string {
	base := Base(title)
	if base == "" {
		base = fallbackBase
	}
	return base + "-" + strconv.FormatInt(g.suffix(), 10)
}

func (g *Generator) suffix() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.now().UnixMilli()
	if n <= g.last {
		n = g.last + 1
	}
	g.last = n
	return n
}
