package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanwahyu/trustai-client/internal/application"
	domain "github.com/bryanwahyu/trustai-client/internal/domain/analysis"
	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type fakeAI struct {
	mu        sync.Mutex
	result    domain.Result
	remaining *int
	err       error
	credits   domain.Credits
	creditErr error
	calls     int
	gotText   []string
	block     chan struct{}
}

func (f *fakeAI) Analyze(ctx context.Context, text string, id projects.ProjectID) (domain.Result, error) {
	f.mu.Lock()
	f.calls++
	f.gotText = append(f.gotText, text)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.result, f.err
}

func (f *fakeAI) AnalyzeGuest(ctx context.Context, text string) (domain.GuestResult, error) {
	res, err := f.Analyze(ctx, text, "")
	return domain.GuestResult{Result: res, RemainingCredits: f.remaining}, err
}

func (f *fakeAI) GuestCredits(ctx context.Context) (domain.Credits, error) {
	return f.credits, f.creditErr
}

type creditErr struct {
	msg     string
	credits *int
}

func (e creditErr) Error() string   { return "backend returned 429: " + e.msg }
func (e creditErr) Message() string { return e.msg }
func (e creditErr) Credits() (int, bool) {
	if e.credits == nil {
		return 0, false
	}
	return *e.credits, true
}

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Extract(ctx context.Context, path string) (string, error) { return f.text, f.err }

type statsCounter struct{ done, failed int }

func (s *statsCounter) AnalysisDone(guest, failed bool) {
	s.done++
	if failed {
		s.failed++
	}
}

func intp(v int) *int { return &v }

func newSession(guest bool, ai *fakeAI) (*Session, *application.ToastQueue) {
	q := application.NewToastQueue(10)
	return NewSession("s1", guest, Deps{
		Analyzer:      ai,
		GuestAnalyzer: ai,
		Notifier:      q,
		Clock:         &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
	}), q
}

func TestSubmit_GuestEndToEnd(t *testing.T) {
	tests := []struct {
		name      string
		remaining *int
	}{
		{"backend reports credits", intp(2)},
		{"backend omits credits", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ai := &fakeAI{
				result:    domain.Result{Score: 92, Verdict: "trustworthy", AnalysisMarkdown: "**Solid.**"},
				remaining: tt.remaining,
			}
			s, _ := newSession(true, ai)
			if s.CanDownloadReport() {
				t.Fatal("report must be disabled before any analysis")
			}

			msg, err := s.Submit(context.Background(), "The sky is blue.")
			if err != nil {
				t.Fatal(err)
			}
			msgs := s.Messages()
			if len(msgs) != 2 || msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAI {
				t.Fatalf("expected user+ai messages, got %+v", msgs)
			}
			if msg.Status != projects.StatusTrustworthy || msg.TrustScore == nil || *msg.TrustScore != 92 {
				t.Fatalf("unexpected ai message: %+v", msg)
			}
			if s.Credits() != 2 {
				t.Fatalf("credits = %d, want 2", s.Credits())
			}
			if !s.CanDownloadReport() {
				t.Fatal("report should be enabled")
			}
			if snap := s.Snapshot(); snap.Title != "The sky is blue." || snap.Credits == nil {
				t.Fatalf("unexpected snapshot: %+v", snap)
			}
		})
	}
}

func TestSubmit_Guards(t *testing.T) {
	ctx := context.Background()

	s, _ := newSession(true, &fakeAI{})
	if _, err := s.Submit(ctx, "  \n "); !errors.Is(err, domain.ErrEmptyText) {
		t.Fatalf("blank: %v", err)
	}
	if _, err := s.Submit(ctx, strings.Repeat("a", domain.DefaultGuestTextLimit+1)); !errors.Is(err, domain.ErrTextTooLong) {
		t.Fatalf("too long: %v", err)
	}
	if _, err := s.Submit(ctx, strings.Repeat("é", domain.DefaultGuestTextLimit)); err != nil {
		t.Fatalf("limit counts characters, not bytes: %v", err)
	}

	empty, _ := newSession(true, &fakeAI{remaining: intp(0)})
	if _, err := empty.Submit(ctx, "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := empty.Submit(ctx, "two"); !errors.Is(err, domain.ErrNoCredits) {
		t.Fatalf("no credits: %v", err)
	}
	if len(empty.Messages()) != 2 {
		t.Fatal("rejected submit must not append messages")
	}

	authed, _ := newSession(false, &fakeAI{})
	if _, err := authed.Submit(ctx, strings.Repeat("a", domain.DefaultGuestTextLimit+10)); err != nil {
		t.Fatalf("limit applies to guests only: %v", err)
	}
}

func TestSubmit_BusyRejectsSecondSubmit(t *testing.T) {
	ai := &fakeAI{block: make(chan struct{})}
	s, _ := newSession(false, ai)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(ctx, "first")
		done <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !s.Snapshot().Busy {
		if time.Now().After(deadline) {
			t.Fatal("first submit never started")
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := s.Submit(ctx, "second"); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(ai.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if ai.calls != 1 {
		t.Fatalf("expected one backend call, got %d", ai.calls)
	}
}

func TestSubmit_FailureAppendsErrorMessage(t *testing.T) {
	ai := &fakeAI{err: creditErr{msg: "Daily limit reached", credits: intp(0)}}
	s, q := newSession(true, ai)

	msg, err := s.Submit(context.Background(), "claim")
	if err == nil {
		t.Fatal("expected error")
	}
	if !msg.Failed || msg.Status != projects.StatusNeutral || msg.Content != "Daily limit reached" {
		t.Fatalf("unexpected error message: %+v", msg)
	}
	if s.Credits() != 0 {
		t.Fatalf("credits should follow the 429 body, got %d", s.Credits())
	}
	if s.CanDownloadReport() {
		t.Fatal("failed reply must not enable the report")
	}
	if q.Len() != 1 {
		t.Fatal("expected error toast")
	}

	auth, _ := newSession(false, &fakeAI{err: errors.New("boom")})
	msg, _ = auth.Submit(context.Background(), "claim")
	if !strings.Contains(msg.Content, "encountered an error") {
		t.Fatalf("unexpected authenticated failure text: %q", msg.Content)
	}
}

func TestRegenerate(t *testing.T) {
	ai := &fakeAI{result: domain.Result{Score: 40, Verdict: "risky", AnalysisMarkdown: "first"}}
	s, _ := newSession(false, ai)
	ctx := context.Background()

	if _, err := s.Regenerate(ctx); !errors.Is(err, domain.ErrEmptyText) {
		t.Fatalf("regenerate with no messages: %v", err)
	}
	if _, err := s.Submit(ctx, "claim"); err != nil {
		t.Fatal(err)
	}
	ai.result = domain.Result{Score: 70, Verdict: "neutral", AnalysisMarkdown: "second"}
	msg, err := s.Regenerate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	msgs := s.Messages()
	if len(msgs) != 2 || msgs[1].Content != "second" || msg.Status != projects.StatusNeutral {
		t.Fatalf("regenerate should replace the reply: %+v", msgs)
	}
	if ai.gotText[1] != "claim" {
		t.Fatalf("regenerate resent %q", ai.gotText[1])
	}
}

func TestLastAnalysis(t *testing.T) {
	ai := &fakeAI{result: domain.Result{Score: 30, Verdict: "risky", AnalysisMarkdown: "nope"}}
	s, _ := newSession(false, ai)
	s.deps.Extractor = fakeExtractor{text: "page one"}
	ctx := context.Background()

	if _, err := s.LastAnalysis(); !errors.Is(err, domain.ErrNoAnalysis) {
		t.Fatalf("expected ErrNoAnalysis, got %v", err)
	}
	prefixed, err := s.AttachFile(ctx, "/tmp/upload/report.pdf", "")
	if err != nil {
		t.Fatal(err)
	}
	if prefixed != "[Extracted from report.pdf]:\npage one" {
		t.Fatalf("prefix = %q", prefixed)
	}
	if _, err := s.Submit(ctx, prefixed); err != nil {
		t.Fatal(err)
	}

	r, err := s.LastAnalysis()
	if err != nil {
		t.Fatal(err)
	}
	if r.Content != prefixed || r.AIResponse != "nope" || r.TrustScore != 30 || r.Status != projects.StatusRisky {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r.Type != projects.ContentPDF || r.FileName != "report.pdf" {
		t.Fatalf("attachment not recorded: %+v", r)
	}

	s.Clear()
	if len(s.Messages()) != 0 || s.CanDownloadReport() {
		t.Fatal("clear should empty the session")
	}
}

func TestAttachFile_Failure(t *testing.T) {
	s, q := newSession(false, &fakeAI{})
	s.deps.Extractor = fakeExtractor{err: errors.New("unsupported")}
	if _, err := s.AttachFile(context.Background(), "/tmp/x.docx", "x.docx"); err == nil {
		t.Fatal("expected error")
	}
	if q.Len() != 1 {
		t.Fatal("expected toast")
	}
}

func TestRefreshCredits(t *testing.T) {
	ai := &fakeAI{credits: domain.Credits{Remaining: 1, DailyLimit: 3}}
	s, _ := newSession(true, ai)
	if got := s.RefreshCredits(context.Background()); got != 1 {
		t.Fatalf("credits = %d", got)
	}
	ai.creditErr = errors.New("offline")
	if got := s.RefreshCredits(context.Background()); got != 1 {
		t.Fatalf("failed refresh should keep value, got %d", got)
	}

	fresh, _ := newSession(true, &fakeAI{creditErr: errors.New("offline")})
	if got := fresh.RefreshCredits(context.Background()); got != domain.DefaultGuestCredits {
		t.Fatalf("default credits = %d", got)
	}
}

func TestManager(t *testing.T) {
	stats := &statsCounter{}
	m := NewManager(Deps{Analyzer: &fakeAI{}, Stats: stats})
	s := m.Create(false)
	if s.ID == "" || m.Len() != 1 {
		t.Fatalf("create: %+v", s)
	}
	got, err := m.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("get: %v", err)
	}
	if _, err := got.Submit(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if stats.done != 1 {
		t.Fatalf("stats not recorded: %+v", stats)
	}
	if err := m.Delete(s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := m.Delete("missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestManager_DropAuthenticated(t *testing.T) {
	m := NewManager(Deps{Analyzer: &fakeAI{}})
	mine := m.Create(false)
	guest := m.Create(true)

	if n := m.DropAuthenticated(); n != 1 {
		t.Fatalf("dropped %d sessions, want 1", n)
	}
	if _, err := m.Get(mine.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("authenticated session survived: %v", err)
	}
	if _, err := m.Get(guest.ID); err != nil {
		t.Fatalf("guest session dropped: %v", err)
	}
}
