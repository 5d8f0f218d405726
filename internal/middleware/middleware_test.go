package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type session bool

func (s session) HasToken() bool { return bool(s) }

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequireSession(t *testing.T) {
	tests := []struct {
		name     string
		loggedIn bool
		path     string
		want     int
	}{
		{"logged in", true, "/v1/projects", http.StatusOK},
		{"anonymous", false, "/v1/projects", http.StatusUnauthorized},
		{"anonymous public", false, "/v1/guest/analyze", http.StatusOK},
		{"anonymous login", false, "/v1/auth/login", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequireSession(session(tt.loggedIn), "/v1/guest", "/v1/auth")(ok)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized {
				var body map[string]string
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
					t.Fatalf("error body = %q", rec.Body.String())
				}
			}
		})
	}
}

func TestRequestIDAndLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var seen string
	h := RequestID(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/projects", nil))
	if seen == "" || rec.Header().Get("X-Request-ID") != seen {
		t.Fatalf("request id %q header %q", seen, rec.Header().Get("X-Request-ID"))
	}
	if !strings.Contains(buf.String(), `"status":418`) || !strings.Contains(buf.String(), seen) {
		t.Fatalf("log line: %s", buf.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc" {
		t.Fatalf("incoming id not reused: %q", seen)
	}
}

func TestTokenBucket(t *testing.T) {
	start := time.Unix(0, 0)
	b := NewTokenBucket(2, 0.5, start)
	for i := 0; i < 2; i++ {
		if ok, _ := b.AllowAt(start); !ok {
			t.Fatalf("request %d rejected", i)
		}
	}
	allowed, wait := b.AllowAt(start)
	if allowed || wait != 2*time.Second {
		t.Fatalf("allowed=%v wait=%v", allowed, wait)
	}
	if ok, _ := b.AllowAt(start.Add(2 * time.Second)); !ok {
		t.Fatal("token not refilled")
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	rl := NewRateLimiter(1, 0)
	h := RateLimit(rl)(ok)

	do := func(addr, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	if rec := do("10.0.0.1:1000", "/v1/projects"); rec.Code != http.StatusOK {
		t.Fatalf("first = %d", rec.Code)
	}
	rec := do("10.0.0.1:2000", "/v1/projects")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("second = %d retry=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
	if rec := do("10.0.0.2:1000", "/v1/projects"); rec.Code != http.StatusOK {
		t.Fatalf("other client = %d", rec.Code)
	}
	if rec := do("10.0.0.1:3000", "/health"); rec.Code != http.StatusOK {
		t.Fatalf("health limited: %d", rec.Code)
	}

	rl.now = func() time.Time { return time.Now().Add(time.Hour) }
	if n := rl.Sweep(time.Minute); n != 2 {
		t.Fatalf("swept %d buckets", n)
	}
}

func TestHealthHandler(t *testing.T) {
	store := memStore{}
	checkers := map[string]HealthChecker{
		"storage": &StoreHealthChecker{Store: store},
		"backend": CheckFunc(func(ctx context.Context) error { return nil }),
	}
	rec := httptest.NewRecorder()
	HealthHandler(checkers)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(store) != 0 {
		t.Fatal("probe key left behind")
	}

	checkers["backend"] = CheckFunc(func(ctx context.Context) error { return errors.New("connection refused") })
	rec = httptest.NewRecorder()
	HealthHandler(checkers)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var st HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusServiceUnavailable || st.Checks["backend"].Message != "connection refused" || st.Checks["storage"].Status != "healthy" {
		t.Fatalf("unexpected health %d %+v", rec.Code, st)
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()
	m.AnalysisDone(true, false)
	m.AnalysisDone(false, true)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))

	s := m.Snapshot()
	checks := map[string]uint64{
		"requests_total":      2,
		"requests_success":    1,
		"requests_failed":     1,
		"analyses_total":      2,
		"analyses_guest":      1,
		"analyses_failed":     1,
		"detail_cache_hits":   1,
		"detail_cache_misses": 2,
	}
	for k, want := range checks {
		if got := s[k].(uint64); got != want {
			t.Errorf("%s = %d, want %d", k, got, want)
		}
	}
}

func TestValidators(t *testing.T) {
	if err := ValidateProjectID("65f1c2a9e4b0a1b2c3d4e5f6"); err != nil {
		t.Fatal(err)
	}
	if err := ValidateProjectID("local-1740839400000-1"); err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{"", "../etc", "a b", strings.Repeat("x", 65)} {
		if ValidateProjectID(bad) == nil {
			t.Errorf("project id %q accepted", bad)
		}
	}
	if ValidateSessionID("not-a-uuid") == nil || ValidateSessionID("0b9e7a4c-3f1e-4a55-9a8c-2f3d6b1e9c10") != nil {
		t.Error("session id validation")
	}
	if ValidateEmail("a@b.co") != nil || ValidateEmail("Ada <a@b.co>") == nil {
		t.Error("email validation")
	}
	for _, bad := range []string{"", "../x.pdf", "dir/x.pdf", `c:\x.pdf`} {
		if ValidateFilename(bad) == nil {
			t.Errorf("filename %q accepted", bad)
		}
	}
	if ValidateFilename("report.pdf") != nil {
		t.Error("plain filename rejected")
	}
	if got := SanitizeString("  hi\x00\x07 there\n "); got != "hi there" {
		t.Errorf("SanitizeString = %q", got)
	}
}

type memStore map[string]string

func (m memStore) Get(_ context.Context, k string) (string, bool, error) {
	v, ok := m[k]
	return v, ok, nil
}

func (m memStore) Set(_ context.Context, k, v string) error {
	m[k] = v
	return nil
}

func (m memStore) Remove(_ context.Context, k string) error {
	delete(m, k)
	return nil
}
