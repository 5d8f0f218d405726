package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bryanwahyu/trustai-client/internal/application"
	appanalysis "github.com/bryanwahyu/trustai-client/internal/application/analysis"
	appauth "github.com/bryanwahyu/trustai-client/internal/application/auth"
	appprojects "github.com/bryanwahyu/trustai-client/internal/application/projects"
	appreports "github.com/bryanwahyu/trustai-client/internal/application/reports"
	"github.com/bryanwahyu/trustai-client/internal/domain/analysis"
	"github.com/bryanwahyu/trustai-client/internal/domain/auth"
	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
	"github.com/bryanwahyu/trustai-client/internal/domain/reports"
	"github.com/bryanwahyu/trustai-client/internal/infra/report"
	"github.com/bryanwahyu/trustai-client/internal/infra/storage"
	"github.com/bryanwahyu/trustai-client/internal/middleware"
)

type backendErr struct{ code int }

func (e backendErr) Error() string   { return fmt.Sprintf("backend returned %d", e.code) }
func (e backendErr) HTTPStatus() int { return e.code }
func (e backendErr) Message() string { return "upstream said no" }

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{projects.ErrEmptyName, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", analysis.ErrTextTooLong), http.StatusBadRequest},
		{reports.ErrUnsupportedFormat, http.StatusBadRequest},
		{invalid("bad body"), http.StatusBadRequest},
		{auth.ErrNotAuthenticated, http.StatusUnauthorized},
		{projects.ErrNotFound, http.StatusNotFound},
		{analysis.ErrSessionNotFound, http.StatusNotFound},
		{analysis.ErrBusy, http.StatusConflict},
		{analysis.ErrNoCredits, http.StatusTooManyRequests},
		{backendErr{500}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Fatalf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// ==== fakes ====

type authBackend struct{}

func (authBackend) Signup(ctx context.Context, req auth.Signup) (auth.User, error) {
	return auth.User{ID: "u1", Email: req.Email, Name: req.Name}, nil
}

func (authBackend) Login(ctx context.Context, c auth.Credentials) (auth.TokenResponse, error) {
	if c.Password != "Secret123" {
		return auth.TokenResponse{}, auth.ErrNotAuthenticated
	}
	return auth.TokenResponse{AccessToken: "tok", User: auth.User{ID: "u1", Email: c.Email, Name: "Ada Lovelace"}}, nil
}

func (b authBackend) GoogleLogin(ctx context.Context, credential string) (auth.TokenResponse, error) {
	return b.Login(ctx, auth.Credentials{Email: "g@x.io", Password: "Secret123"})
}

func (authBackend) Me(ctx context.Context) (auth.User, error) {
	return auth.User{ID: "u1", Name: "Ada Lovelace"}, nil
}

func (authBackend) UpdateMe(ctx context.Context, u auth.ProfileUpdate) (auth.User, error) {
	return auth.User{ID: "u1"}, nil
}

func (authBackend) ForgotPassword(ctx context.Context, email string) error { return nil }

func (authBackend) ResetPassword(ctx context.Context, token, pw string) error { return nil }

type projectBackend struct {
	mu      sync.Mutex
	list    []projects.Project
	listErr error
}

// swap replaces what the backend serves, as if another user logged in.
func (b *projectBackend) swap(list []projects.Project, listErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.list, b.listErr = list, listErr
}

func (b *projectBackend) List(ctx context.Context) ([]projects.Project, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]projects.Project(nil), b.list...), nil
}

func (b *projectBackend) Create(ctx context.Context, d projects.ProjectDraft) (projects.Project, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := projects.Project{ID: "p2", Name: d.Name, Category: d.Category}
	b.list = append(b.list, p)
	return p, nil
}

func (b *projectBackend) Get(ctx context.Context, id projects.ProjectID) (projects.Project, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.list {
		if p.ID == id {
			return p, nil
		}
	}
	return projects.Project{}, projects.ErrNotFound
}

func (b *projectBackend) Delete(ctx context.Context, id projects.ProjectID) error { return nil }

func (b *projectBackend) AddNote(ctx context.Context, id projects.ProjectID, content string) (projects.Note, error) {
	return projects.Note{ID: "n1", Content: content}, nil
}

func (b *projectBackend) DeleteNote(ctx context.Context, id projects.ProjectID, noteID string) error {
	return nil
}

type fileBackend struct{}

func (fileBackend) Upload(ctx context.Context, id projects.ProjectID, name string, r io.Reader) (projects.File, error) {
	data, _ := io.ReadAll(r)
	return projects.File{ID: "f1", Filename: name, Size: int64(len(data)), Mimetype: "text/plain"}, nil
}

func (fileBackend) ListByProject(ctx context.Context, id projects.ProjectID) ([]projects.File, error) {
	return nil, nil
}

func (fileBackend) Delete(ctx context.Context, fileID string) error { return nil }

func (fileBackend) FileURL(fileID string) string { return "http://backend/files/" + fileID }

type messageBackend struct{}

func (messageBackend) List(ctx context.Context, id projects.ProjectID) ([]analysis.Message, error) {
	return []analysis.Message{}, nil
}

func (messageBackend) Send(ctx context.Context, id projects.ProjectID, m analysis.NewMessage) (analysis.Message, error) {
	return analysis.Message{ID: "m1", Role: m.Role, Content: m.Content}, nil
}

type analyzer struct{}

func (analyzer) Analyze(ctx context.Context, text string, id projects.ProjectID) (analysis.Result, error) {
	return analysis.Result{Score: 90, Verdict: "trustworthy", AnalysisMarkdown: "Looks right."}, nil
}

func (analyzer) AnalyzeGuest(ctx context.Context, text string) (analysis.GuestResult, error) {
	left := 2
	return analysis.GuestResult{
		Result:           analysis.Result{Score: 92, Verdict: "trustworthy", AnalysisMarkdown: "**Accurate.**"},
		RemainingCredits: &left,
	}, nil
}

func (analyzer) GuestCredits(ctx context.Context) (analysis.Credits, error) {
	return analysis.Credits{Remaining: 3, DailyLimit: 3}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *application.ToastQueue) {
	t.Helper()
	return newTestServerWith(t, &projectBackend{list: []projects.Project{{ID: "p1", Name: "Claims", Category: "General"}}})
}

func newTestServerWith(t *testing.T, backend *projectBackend) (*httptest.Server, *application.ToastQueue) {
	t.Helper()
	toasts := application.NewToastQueue(10)
	authSvc := &appauth.Service{Backend: authBackend{}, Local: storage.NewMemory(0)}
	store := &appprojects.Store{
		Backend:  backend,
		Session:  authSvc,
		Notifier: toasts,
	}
	detail := &appprojects.DetailService{
		Projects: store.Backend,
		Files:    fileBackend{},
		Messages: messageBackend{},
		Analyzer: analyzer{},
		Cache:    storage.NewMemory(0),
		Store:    store,
		Notifier: toasts,
	}
	srv := httptest.NewServer(NewRouter(Services{
		Auth:     authSvc,
		Projects: store,
		Detail:   detail,
		Sessions: appanalysis.NewManager(appanalysis.Deps{Analyzer: analyzer{}, GuestAnalyzer: analyzer{}, Notifier: toasts}),
		Reports:  &appreports.Service{Renderer: report.New()},
		Toasts:   toasts,
		Metrics:  middleware.NewMetrics(),
		Markdown: report.New(),
	}))
	t.Cleanup(srv.Close)
	return srv, toasts
}

func call(t *testing.T, srv *httptest.Server, method, path, body string, out any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp
}

func TestProjects_RequireLogin(t *testing.T) {
	srv, _ := newTestServer(t)

	if resp := call(t, srv, http.MethodGet, "/v1/projects", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous list = %d", resp.StatusCode)
	}
	if resp := call(t, srv, http.MethodPost, "/v1/auth/login", `{"email":"a@b.co","password":"nope"}`, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login = %d", resp.StatusCode)
	}
	if resp := call(t, srv, http.MethodPost, "/v1/auth/login", `{"email":"a@b.co","password":"Secret123"}`, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("login = %d", resp.StatusCode)
	}

	var list struct {
		Projects []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Pending bool   `json:"pending"`
		} `json:"projects"`
		Fetched bool `json:"fetched"`
	}
	if resp := call(t, srv, http.MethodGet, "/v1/projects", "", &list); resp.StatusCode != http.StatusOK {
		t.Fatalf("list = %d", resp.StatusCode)
	}
	if !list.Fetched || len(list.Projects) != 1 || list.Projects[0].Name != "Claims" || list.Projects[0].Pending {
		t.Fatalf("unexpected list %+v", list)
	}

	if resp := call(t, srv, http.MethodPost, "/v1/projects", `{"name":"   "}`, nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank create = %d", resp.StatusCode)
	}
	var created projects.Project
	if resp := call(t, srv, http.MethodPost, "/v1/projects", `{"name":"Press","category":"News"}`, &created); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d", resp.StatusCode)
	}
	if created.ID != "p2" {
		t.Fatalf("created %+v", created)
	}

	var note projects.Note
	if resp := call(t, srv, http.MethodPost, "/v1/projects/p1/notes", `{"content":"check sources"}`, &note); resp.StatusCode != http.StatusCreated {
		t.Fatalf("add note = %d", resp.StatusCode)
	}
	if resp := call(t, srv, http.MethodGet, "/v1/projects/bad%20id", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id = %d", resp.StatusCode)
	}
	if resp := call(t, srv, http.MethodGet, "/v1/projects/missing", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing project = %d", resp.StatusCode)
	}

	var analyzed struct {
		Result analysis.Result `json:"result"`
	}
	if resp := call(t, srv, http.MethodPost, "/v1/projects/p1/analyze", `{"text":"The sky is blue."}`, &analyzed); resp.StatusCode != http.StatusOK {
		t.Fatalf("analyze = %d", resp.StatusCode)
	}
	if analyzed.Result.Score != 90 {
		t.Fatalf("analyze result %+v", analyzed.Result)
	}
}

func TestGuestSession_EndToEnd(t *testing.T) {
	srv, _ := newTestServer(t)

	var snap appanalysis.Snapshot
	if resp := call(t, srv, http.MethodPost, "/v1/sessions", `{"guest":true}`, &snap); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session = %d", resp.StatusCode)
	}
	if snap.Credits == nil || *snap.Credits != 3 {
		t.Fatalf("initial credits %+v", snap.Credits)
	}
	base := "/v1/sessions/" + snap.ID

	if resp := call(t, srv, http.MethodGet, base+"/report?format=md", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("report before analysis = %d", resp.StatusCode)
	}
	if resp := call(t, srv, http.MethodPost, base+"/messages", `{"text":"   "}`, nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank submit = %d", resp.StatusCode)
	}
	if resp := call(t, srv, http.MethodPost, base+"/messages", `{"text":"The sky is blue."}`, &snap); resp.StatusCode != http.StatusOK {
		t.Fatalf("submit = %d", resp.StatusCode)
	}
	if len(snap.Messages) != 2 || *snap.Credits != 2 || !snap.CanDownloadReport {
		t.Fatalf("after submit %+v", snap)
	}

	var rendered struct {
		Messages []struct {
			Role string `json:"role"`
			HTML string `json:"html"`
		} `json:"messages"`
	}
	call(t, srv, http.MethodGet, base, "", &rendered)
	if len(rendered.Messages) != 2 || rendered.Messages[0].HTML != "" {
		t.Fatalf("user text must not be rendered: %+v", rendered.Messages)
	}
	if !strings.Contains(rendered.Messages[1].HTML, "<strong>Accurate.</strong>") {
		t.Fatalf("ai message html = %q", rendered.Messages[1].HTML)
	}

	resp, err := srv.Client().Get(srv.URL + base + "/report?format=md")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(body), "# Analysis Report") {
		t.Fatalf("report = %d %q", resp.StatusCode, body)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, ".md") {
		t.Fatalf("content disposition %q", cd)
	}

	if resp := call(t, srv, http.MethodPost, base+"/save", `{"newProjectName":"x"}`, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("guest save = %d", resp.StatusCode)
	}
	if resp := call(t, srv, http.MethodGet, "/v1/sessions/not-a-uuid", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad session id = %d", resp.StatusCode)
	}
	if resp := call(t, srv, http.MethodDelete, base, "", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete = %d", resp.StatusCode)
	}
	if resp := call(t, srv, http.MethodGet, base, "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted session = %d", resp.StatusCode)
	}
}

func TestSessions_AuthenticatedNeedsLogin(t *testing.T) {
	srv, _ := newTestServer(t)
	if resp := call(t, srv, http.MethodPost, "/v1/sessions", `{"guest":false}`, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous authenticated session = %d", resp.StatusCode)
	}
}

func TestToastsAndHealth(t *testing.T) {
	srv, toasts := newTestServer(t)
	toasts.Notify(application.Toast{Level: application.LevelInfo, Title: "hello"})

	var got []application.Toast
	call(t, srv, http.MethodGet, "/v1/toasts", "", &got)
	if len(got) != 1 || got[0].Title != "hello" {
		t.Fatalf("toasts %+v", got)
	}
	call(t, srv, http.MethodGet, "/v1/toasts", "", &got)
	if len(got) != 0 {
		t.Fatalf("toasts not drained: %+v", got)
	}

	if resp := call(t, srv, http.MethodGet, "/health", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %d", resp.StatusCode)
	}
	var m map[string]any
	call(t, srv, http.MethodGet, "/metrics", "", &m)
	if _, ok := m["requests_total"]; !ok {
		t.Fatalf("metrics %v", m)
	}
}

func TestLogout_ForgetsPreviousUser(t *testing.T) {
	backend := &projectBackend{list: []projects.Project{{ID: "p1", Name: "UserA-Secret"}}}
	srv, _ := newTestServerWith(t, backend)
	login := `{"email":"a@b.co","password":"Secret123"}`

	if resp := call(t, srv, http.MethodPost, "/v1/auth/login", login, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("login = %d", resp.StatusCode)
	}
	var det struct {
		Project   projects.Project `json:"project"`
		FromCache bool             `json:"fromCache"`
	}
	if resp := call(t, srv, http.MethodGet, "/v1/projects/p1", "", &det); resp.StatusCode != http.StatusOK {
		t.Fatalf("detail = %d", resp.StatusCode)
	}
	var sess appanalysis.Snapshot
	if resp := call(t, srv, http.MethodPost, "/v1/sessions", `{"guest":false}`, &sess); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session = %d", resp.StatusCode)
	}

	if resp := call(t, srv, http.MethodPost, "/v1/auth/logout", "", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout = %d", resp.StatusCode)
	}
	if resp := call(t, srv, http.MethodGet, "/v1/sessions/"+sess.ID, "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("authenticated session after logout = %d", resp.StatusCode)
	}

	// the next user owns nothing
	backend.swap(nil, nil)
	if resp := call(t, srv, http.MethodPost, "/v1/auth/login", login, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("second login = %d", resp.StatusCode)
	}
	if resp := call(t, srv, http.MethodGet, "/v1/projects/p1", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("previous user's project served after re-login: %d", resp.StatusCode)
	}
	var list struct {
		Projects []projects.Project `json:"projects"`
	}
	call(t, srv, http.MethodGet, "/v1/projects", "", &list)
	if len(list.Projects) != 0 {
		t.Fatalf("previous user's list kept: %+v", list.Projects)
	}
}

func TestLogin_FailedFetchLeavesNoStaleList(t *testing.T) {
	backend := &projectBackend{list: []projects.Project{{ID: "p1", Name: "UserA-Secret"}}}
	srv, _ := newTestServerWith(t, backend)
	login := `{"email":"a@b.co","password":"Secret123"}`

	call(t, srv, http.MethodPost, "/v1/auth/login", login, nil)
	backend.swap(nil, backendErr{503})
	if resp := call(t, srv, http.MethodPost, "/v1/auth/login", login, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("login with failing list = %d", resp.StatusCode)
	}

	var list struct {
		Projects []projects.Project `json:"projects"`
		Fetched  bool               `json:"fetched"`
	}
	call(t, srv, http.MethodGet, "/v1/projects", "", &list)
	if len(list.Projects) != 0 || list.Fetched {
		t.Fatalf("stale list after failed fetch: %+v", list)
	}
}
