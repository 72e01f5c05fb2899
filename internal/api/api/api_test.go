package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"eventhive/internal/auth"
	"eventhive/internal/dto"
	"eventhive/internal/events"
	"eventhive/internal/feed"
	"eventhive/internal/model"
	"eventhive/internal/rabbit"
	"eventhive/internal/repo"
	"eventhive/internal/service"
	"eventhive/internal/users"
)

type envelope struct {
	Status string          `json:"status"`
	Error  *dto.Error      `json:"error"`
	Data   json.RawMessage `json:"data"`
}

type testServer struct {
	t        *testing.T
	handler  http.Handler
	verifier *auth.Verifier
	svc      service.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := zerolog.Nop()
	store, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "api.db"), &log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.MigrateUp(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	verifier, err := auth.NewVerifier("test-secret", "https://id.test")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	us := users.New(store, nil)
	es := events.New(events.Options{Store: store, Users: us, Notifier: rabbit.Nop{}, Logger: &log})
	fc := feed.NewComposer(store, nil)
	svc := service.NewService(us, es, fc, service.ExploreDefaults{City: "Pune"}, &log)

	app := NewRouters(&Routers{
		Service:  svc,
		Verifier: verifier,
		Logger:   &log,
		Mode:     "test",
	})
	return &testServer{t: t, handler: app, verifier: verifier, svc: svc}
}

func (s *testServer) token(sub, plan string) string {
	s.t.Helper()

	tok, err := s.verifier.Issue(sub, auth.Claims{Name: strings.ToUpper(sub[:1]) + sub[1:], Email: sub + "@example.com", Plan: plan}, time.Hour)
	if err != nil {
		s.t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (s *testServer) do(method, path, token string, body any) (int, envelope) {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		s.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func (s *testServer) signUp(sub, plan string) string {
	s.t.Helper()

	tok := s.token(sub, plan)
	if code, env := s.do(http.MethodPost, "/v1/users/me", tok, nil); code != http.StatusOK {
		s.t.Fatalf("sign up %s: %d %+v", sub, code, env.Error)
	}
	return tok
}

func eventBody(title string) map[string]any {
	start := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	return map[string]any{
		"title":         title,
		"description":   "Talks and pizza",
		"category":      "tech",
		"tags":          []string{"go"},
		"start_date":    start,
		"end_date":      start.Add(3 * time.Hour),
		"timezone":      "Asia/Kolkata",
		"location_type": "physical",
		"venue":         "Hall 1",
		"city":          "Pune",
		"state":         "Maharashtra",
		"country":       "India",
		"capacity":      50,
		"ticket_type":   "free",
	}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func TestEventLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	alice := s.signUp("alice", "")
	bob := s.signUp("bob", auth.PlanPro)

	if code, env := s.do(http.MethodPost, "/v1/events", "", eventBody("No token")); code != http.StatusUnauthorized {
		t.Fatalf("anonymous create = %d %+v", code, env.Error)
	}

	code, env := s.do(http.MethodPost, "/v1/events", alice, eventBody("Summer Tech Meetup 2024!"))
	if code != http.StatusCreated {
		t.Fatalf("create = %d %+v", code, env.Error)
	}
	created := decode[dto.CreateEventResponse](t, env.Data)
	if !strings.HasPrefix(created.Slug, "summer-tech-meetup-2024-") {
		t.Fatalf("slug = %q", created.Slug)
	}

	code, env = s.do(http.MethodPost, "/v1/events", alice, eventBody("Second"))
	if code != http.StatusPaymentRequired || env.Error == nil || env.Error.Code != "QUOTA_EXCEEDED" {
		t.Fatalf("second create = %d %+v", code, env.Error)
	}

	code, env = s.do(http.MethodGet, "/v1/events/"+created.Slug, "", nil)
	if code != http.StatusOK {
		t.Fatalf("get by slug = %d %+v", code, env.Error)
	}
	ev := decode[model.Event](t, env.Data)
	if ev.ID != created.ID || ev.ThemeColor != model.DefaultThemeColor {
		t.Fatalf("event = %+v", ev)
	}

	if code, env = s.do(http.MethodPost, "/v1/events/"+created.ID+"/register", bob, nil); code != http.StatusCreated {
		t.Fatalf("register = %d %+v", code, env.Error)
	}
	if code, env = s.do(http.MethodPost, "/v1/events/"+created.ID+"/register", bob, nil); code != http.StatusConflict {
		t.Fatalf("second register = %d %+v", code, env.Error)
	}

	code, env = s.do(http.MethodGet, "/v1/events/"+created.Slug+"/registrations", alice, nil)
	if code != http.StatusOK {
		t.Fatalf("registrations = %d %+v", code, env.Error)
	}
	if regs := decode[[]model.Registration](t, env.Data); len(regs) != 1 || regs[0].AttendeeEmail != "bob@example.com" {
		t.Fatalf("registrations = %+v", regs)
	}

	code, env = s.do(http.MethodGet, "/v1/explore/featured", "", nil)
	if code != http.StatusOK {
		t.Fatalf("featured = %d %+v", code, env.Error)
	}
	featured := decode[[]model.Event](t, env.Data)
	if len(featured) != 1 || featured[0].RegistrationCount != 1 {
		t.Fatalf("featured = %+v", featured)
	}

	if code, env = s.do(http.MethodDelete, "/v1/events/"+created.ID, bob, nil); code != http.StatusForbidden {
		t.Fatalf("foreign delete = %d %+v", code, env.Error)
	}
	if code, env = s.do(http.MethodDelete, "/v1/events/"+created.ID, alice, nil); code != http.StatusOK {
		t.Fatalf("delete = %d %+v", code, env.Error)
	}
	if code, _ = s.do(http.MethodGet, "/v1/events/"+created.Slug, "", nil); code != http.StatusNotFound {
		t.Fatalf("get deleted = %d", code)
	}

	if code, env = s.do(http.MethodPost, "/v1/events", alice, eventBody("After delete")); code != http.StatusCreated {
		t.Fatalf("create after delete = %d %+v", code, env.Error)
	}
}

func TestCreateEventErrors(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	carol := s.signUp("carol", "")

	body := eventBody("Colourful")
	body["theme_color"] = "#00ff00"
	code, env := s.do(http.MethodPost, "/v1/events", carol, body)
	if code != http.StatusPaymentRequired || env.Error.Code != "FEATURE_GATED" {
		t.Fatalf("gated create = %d %+v", code, env.Error)
	}

	body = eventBody("Bad category")
	body["category"] = "knitting"
	code, env = s.do(http.MethodPost, "/v1/events", carol, body)
	if code != http.StatusBadRequest || env.Error.Code != "INVALID_ARGUMENT" {
		t.Fatalf("invalid create = %d %+v", code, env.Error)
	}

	body = eventBody("Party")
	body["title"] = "Party\r\nReply-To: attacker@evil.test\r\n\r\nPay at http://evil.test"
	code, env = s.do(http.MethodPost, "/v1/events", carol, body)
	if code != http.StatusBadRequest || env.Error.Code != "INVALID_ARGUMENT" {
		t.Fatalf("multi-line title create = %d %+v", code, env.Error)
	}

	body = eventBody("Gated and invalid")
	body["theme_color"] = "#00ff00"
	body["category"] = "knitting"
	code, env = s.do(http.MethodPost, "/v1/events", carol, body)
	if code != http.StatusPaymentRequired || env.Error.Code != "FEATURE_GATED" {
		t.Fatalf("gated invalid create = %d %+v", code, env.Error)
	}

	ghost := s.token("ghost", "")
	if code, env = s.do(http.MethodPost, "/v1/events", ghost, eventBody("Ghost")); code != http.StatusUnauthorized {
		t.Fatalf("unstored user create = %d %+v", code, env.Error)
	}
	if code, _ = s.do(http.MethodPost, "/v1/events", "not-a-token", eventBody("Bad token")); code != http.StatusUnauthorized {
		t.Fatalf("bad token create = %d", code)
	}
}

func TestUserEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	dave := s.token("dave", "")

	if code, _ := s.do(http.MethodGet, "/v1/users/me", dave, nil); code != http.StatusNotFound {
		t.Fatalf("current before store = %d", code)
	}
	code, env := s.do(http.MethodPost, "/v1/users/me", dave, map[string]string{"name": "David"})
	if code != http.StatusOK {
		t.Fatalf("store = %d %+v", code, env.Error)
	}
	if u := decode[model.User](t, env.Data); u.Name != "David" || u.HasCompletedOnboarding {
		t.Fatalf("user = %+v", u)
	}

	code, env = s.do(http.MethodPost, "/v1/users/me/onboarding", dave, map[string]any{
		"location":  map[string]string{"city": "Pune", "state": "Maharashtra", "country": "India"},
		"interests": []string{"music", "tech"},
	})
	if code != http.StatusOK {
		t.Fatalf("onboarding = %d %+v", code, env.Error)
	}
	code, env = s.do(http.MethodGet, "/v1/users/me", dave, nil)
	if code != http.StatusOK {
		t.Fatalf("current = %d %+v", code, env.Error)
	}
	if u := decode[model.User](t, env.Data); !u.HasCompletedOnboarding || len(u.Interests) != 2 {
		t.Fatalf("user = %+v", u)
	}

	code, env = s.do(http.MethodPost, "/v1/users/me/onboarding", dave, map[string]any{
		"location":  map[string]string{"city": "Pune", "country": "India"},
		"interests": []string{"knitting"},
	})
	if code != http.StatusBadRequest {
		t.Fatalf("bad onboarding = %d %+v", code, env.Error)
	}
}

func TestExplorePersonalisesForCaller(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	org := s.signUp("org", auth.PlanPro)
	fan := s.signUp("fan", "")

	start := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	for i, c := range []string{"tech", "music"} {
		body := eventBody("A " + c + " night")
		body["category"] = c
		body["start_date"] = start.Add(time.Duration(i) * time.Hour)
		body["end_date"] = start.Add(time.Duration(i+2) * time.Hour)
		if code, env := s.do(http.MethodPost, "/v1/events", org, body); code != http.StatusCreated {
			t.Fatalf("create %s = %d %+v", c, code, env.Error)
		}
	}
	if code, env := s.do(http.MethodPost, "/v1/users/me/onboarding", fan, map[string]any{
		"location":  map[string]string{"city": "Pune", "country": "India"},
		"interests": []string{"music"},
	}); code != http.StatusOK {
		t.Fatalf("onboarding = %d %+v", code, env.Error)
	}

	_, env := s.do(http.MethodGet, "/v1/explore/local", "", nil)
	anon := decode[[]model.Event](t, env.Data)
	if len(anon) != 2 || anon[0].Category != "tech" {
		t.Fatalf("anonymous local = %+v", anon)
	}

	_, env = s.do(http.MethodGet, "/v1/explore/local", fan, nil)
	mine := decode[[]model.Event](t, env.Data)
	if len(mine) != 2 || mine[0].Category != "music" {
		t.Fatalf("personalised local = %+v", mine)
	}

	_, env = s.do(http.MethodGet, "/v1/explore/local?city=Mumbai", "", nil)
	if none := decode[[]model.Event](t, env.Data); len(none) != 0 {
		t.Fatalf("mumbai local = %+v", none)
	}

	_, env = s.do(http.MethodGet, "/v1/explore/popular", fan, nil)
	if popular := decode[[]model.Event](t, env.Data); len(popular) != 2 || popular[0].Category != "music" {
		t.Fatalf("personalised popular = %+v", popular)
	}
}

func TestExploreCatalogAndSearch(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	org := s.signUp("host", auth.PlanPro)
	if code, env := s.do(http.MethodPost, "/v1/events", org, eventBody("Gophers Unite")); code != http.StatusCreated {
		t.Fatalf("create = %d %+v", code, env.Error)
	}

	code, env := s.do(http.MethodGet, "/v1/explore/categories", "", nil)
	if code != http.StatusOK {
		t.Fatalf("categories = %d", code)
	}
	cats := decode[[]feed.CategoryCount](t, env.Data)
	if len(cats) != 12 {
		t.Fatalf("categories = %d entries", len(cats))
	}
	for _, c := range cats {
		if c.ID == "tech" && c.Count != 1 {
			t.Fatalf("tech count = %d", c.Count)
		}
	}

	code, env = s.do(http.MethodGet, "/v1/explore/categories/tech", "", nil)
	if code != http.StatusOK {
		t.Fatalf("category page = %d %+v", code, env.Error)
	}
	page := decode[dto.CategoryPageResponse](t, env.Data)
	if page.Category.ID != "tech" || page.Count != 1 || len(page.Events) != 1 {
		t.Fatalf("category page = %+v", page)
	}
	if code, _ = s.do(http.MethodGet, "/v1/explore/categories/knitting", "", nil); code != http.StatusNotFound {
		t.Fatalf("unknown category = %d", code)
	}

	_, env = s.do(http.MethodGet, "/v1/search?q=gopher", "", nil)
	if found := decode[[]model.Event](t, env.Data); len(found) != 1 {
		t.Fatalf("search = %+v", found)
	}
	_, env = s.do(http.MethodGet, "/v1/search?q=g", "", nil)
	if found := decode[[]model.Event](t, env.Data); len(found) != 0 {
		t.Fatalf("short search = %+v", found)
	}

	if code, _ = s.do(http.MethodGet, "/v1/explore/featured?limit=abc", "", nil); code != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	if code, _ := s.do(http.MethodGet, "/healthz", "", nil); code != http.StatusOK {
		t.Fatalf("healthz = %d", code)
	}

	log := zerolog.Nop()
	down := &testServer{t: t, verifier: s.verifier, handler: NewRouters(&Routers{
		Service:  s.svc,
		Verifier: s.verifier,
		Logger:   &log,
		Mode:     "test",
		Ping:     func(context.Context) error { return context.DeadlineExceeded },
	})}
	code, env := down.do(http.MethodGet, "/healthz", "", nil)
	if code != http.StatusServiceUnavailable || env.Error == nil || env.Error.Code != dto.ServiceUnavailable {
		t.Fatalf("unhealthy healthz = %d %+v", code, env.Error)
	}
}
