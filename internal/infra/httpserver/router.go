package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/trustai-client/internal/application"
	appanalysis "github.com/bryanwahyu/trustai-client/internal/application/analysis"
	appauth "github.com/bryanwahyu/trustai-client/internal/application/auth"
	appprojects "github.com/bryanwahyu/trustai-client/internal/application/projects"
	appreports "github.com/bryanwahyu/trustai-client/internal/application/reports"
	"github.com/bryanwahyu/trustai-client/internal/domain/analysis"
	"github.com/bryanwahyu/trustai-client/internal/domain/auth"
	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
	"github.com/bryanwahyu/trustai-client/internal/domain/reports"
	"github.com/bryanwahyu/trustai-client/internal/middleware"
)

const maxUpload = 25 << 20

// Services is everything the router serves.
type Services struct {
	Auth     *appauth.Service
	Projects *appprojects.Store
	Detail   *appprojects.DetailService
	Sessions *appanalysis.Manager
	Reports  *appreports.Service
	Toasts   *application.ToastQueue
	Metrics  *middleware.Metrics
	Limiter  *middleware.RateLimiter
	Health   map[string]middleware.HealthChecker
	Markdown MarkdownRenderer
	Logger   *slog.Logger
}

type Router struct {
	Services
}

func NewRouter(s Services) http.Handler {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	r := &Router{Services: s}
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Logging(s.Logger))
	if s.Metrics != nil {
		mux.Use(s.Metrics.Middleware)
	}
	if s.Limiter != nil {
		mux.Use(middleware.RateLimit(s.Limiter))
	}

	mux.Get("/health", middleware.HealthHandler(s.Health))
	if s.Metrics != nil {
		mux.Get("/metrics", s.Metrics.Handler)
	}

	mux.Route("/v1", func(rt chi.Router) {
		rt.Route("/auth", func(a chi.Router) {
			a.Post("/login", r.wrap(r.handleLogin))
			a.Post("/google", r.wrap(r.handleGoogleLogin))
			a.Post("/signup", r.wrap(r.handleSignup))
			a.Post("/logout", r.wrap(r.handleLogout))
			a.Get("/me", r.wrap(r.handleMe))
			a.Put("/me", r.wrap(r.handleUpdateMe))
			a.Post("/forgot-password", r.wrap(r.handleForgotPassword))
			a.Post("/reset-password", r.wrap(r.handleResetPassword))
		})

		rt.Group(func(p chi.Router) {
			p.Use(middleware.RequireSession(s.Auth))
			p.Get("/projects", r.wrap(r.handleListProjects))
			p.Post("/projects", r.wrap(r.handleCreateProject))
			p.Route("/projects/{id}", func(pr chi.Router) {
				pr.Use(projectID)
				pr.Get("/", r.wrap(r.handleProjectDetail))
				pr.Patch("/", r.wrap(r.handleUpdateProject))
				pr.Delete("/", r.wrap(r.handleDeleteProject))
				pr.Post("/notes", r.wrap(r.handleAddNote))
				pr.Delete("/notes/{noteID}", r.wrap(r.handleDeleteNote))
				pr.Post("/files", r.wrap(r.handleUploadFile))
				pr.Delete("/files/{fileID}", r.wrap(r.handleDeleteFile))
				pr.Post("/analyze", r.wrap(r.handleProjectAnalyze))
				pr.Get("/report", r.wrap(r.handleProjectReport))
			})
		})

		rt.Post("/sessions", r.wrap(r.handleCreateSession))
		rt.Route("/sessions/{sid}", func(sr chi.Router) {
			sr.Get("/", r.wrap(r.handleGetSession))
			sr.Delete("/", r.wrap(r.handleDeleteSession))
			sr.Post("/messages", r.wrap(r.handleSubmit))
			sr.Post("/regenerate", r.wrap(r.handleRegenerate))
			sr.Post("/clear", r.wrap(r.handleClear))
			sr.Post("/attachments", r.wrap(r.handleAttach))
			sr.Get("/credits", r.wrap(r.handleCredits))
			sr.Get("/report", r.wrap(r.handleSessionReport))
			sr.Post("/save", r.wrap(r.handleSaveAnalysis))
		})

		rt.Get("/toasts", r.wrap(r.handleToasts))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks malformed input caught by the handlers themselves.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func invalid(format string, args ...any) error {
	return badRequest{fmt.Errorf(format, args...)}
}

var validationErrors = []error{
	projects.ErrEmptyName,
	projects.ErrEmptyNote,
	analysis.ErrEmptyText,
	analysis.ErrTextTooLong,
	analysis.ErrNoAnalysis,
	analysis.ErrUnsupportedFile,
	auth.ErrWeakPassword,
	auth.ErrMissingField,
	reports.ErrUnsupportedFormat,
}

// StatusFor maps an error from the services to the response status.
func StatusFor(err error) int {
	var br badRequest
	if errors.As(err, &br) {
		return http.StatusBadRequest
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, projects.ErrNotFound), errors.Is(err, analysis.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, analysis.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, analysis.ErrNoCredits):
		return http.StatusTooManyRequests
	}
	var backend interface{ HTTPStatus() int }
	if errors.As(err, &backend) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		code := StatusFor(err)
		msg := err.Error()
		var detail interface{ Message() string }
		if errors.As(err, &detail) && detail.Message() != "" {
			msg = detail.Message()
		}
		if code >= 500 {
			r.Logger.Error("request failed", "path", req.URL.Path, "status", code, "err", err,
				"request_id", middleware.GetRequestID(req.Context()))
		}
		writeJSON(w, code, map[string]string{"error": msg})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

func decode(req *http.Request, v any) error {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		return invalid("invalid JSON body: %v", err)
	}
	return nil
}

// projectID validates {id} once for every /projects/{id} route.
func projectID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if err := middleware.ValidateProjectID(chi.URLParam(req, "id")); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, req)
	})
}

func idOf(req *http.Request) projects.ProjectID {
	return projects.ProjectID(chi.URLParam(req, "id"))
}

func (r *Router) session(req *http.Request) (*appanalysis.Session, error) {
	sid := chi.URLParam(req, "sid")
	if err := middleware.ValidateSessionID(sid); err != nil {
		return nil, badRequest{err}
	}
	return r.Sessions.Get(sid)
}

//
// ==== AUTH ====
//

// POST /v1/auth/login
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) error {
	var body auth.Credentials
	if err := decode(req, &body); err != nil {
		return err
	}
	u, err := r.Auth.Login(req.Context(), body)
	if err != nil {
		return err
	}
	r.startSession(req.Context())
	return writeJSON(w, http.StatusOK, map[string]any{"user": u, "profile": r.Auth.Profile()})
}

// POST /v1/auth/google
// Body: {"credential": "<google id token>"}
func (r *Router) handleGoogleLogin(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Credential string `json:"credential"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	u, err := r.Auth.GoogleLogin(req.Context(), body.Credential)
	if err != nil {
		return err
	}
	r.startSession(req.Context())
	return writeJSON(w, http.StatusOK, map[string]any{"user": u, "profile": r.Auth.Profile()})
}

// POST /v1/auth/signup
func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) error {
	var body auth.Signup
	if err := decode(req, &body); err != nil {
		return err
	}
	if body.Email != "" {
		if err := middleware.ValidateEmail(body.Email); err != nil {
			return badRequest{err}
		}
	}
	u, err := r.Auth.Signup(req.Context(), body)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, u)
}

// forget drops everything cached for the signed-in user: the project
// list, detail snapshots and authenticated analysis sessions.
func (r *Router) forget(ctx context.Context) {
	r.Projects.Reset()
	r.Detail.Clear(ctx)
	if r.Sessions != nil {
		if n := r.Sessions.DropAuthenticated(); n > 0 {
			r.Logger.Debug("dropped analysis sessions", "count", n)
		}
	}
}

// startSession replaces whatever the previous user left with a fresh list.
// A failed fetch leaves the list empty, never stale.
func (r *Router) startSession(ctx context.Context) {
	r.forget(ctx)
	if err := r.Projects.FetchProjects(ctx, true); err != nil {
		r.Logger.Warn("initial project fetch after login", "err", err)
	}
}

// POST /v1/auth/logout
func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) error {
	r.forget(req.Context())
	if err := r.Auth.Logout(req.Context()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/auth/me
func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) error {
	p, err := r.Auth.Refresh(req.Context())
	if err != nil {
		return err
	}
	u, _ := r.Auth.User()
	return writeJSON(w, http.StatusOK, map[string]any{"user": u, "profile": p})
}

// PUT /v1/auth/me
func (r *Router) handleUpdateMe(w http.ResponseWriter, req *http.Request) error {
	if !r.Auth.HasToken() {
		return auth.ErrNotAuthenticated
	}
	var body appauth.ProfileChanges
	if err := decode(req, &body); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, r.Auth.UpdateProfile(req.Context(), body))
}

// POST /v1/auth/forgot-password
func (r *Router) handleForgotPassword(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Email string `json:"email"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	if err := r.Auth.ForgotPassword(req.Context(), body.Email); err != nil {
		return err
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

// POST /v1/auth/reset-password
func (r *Router) handleResetPassword(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	if err := r.Auth.ResetPassword(req.Context(), body.Token, body.NewPassword); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

//
// ==== PROJECTS ====
//

// projectView adds the identity of a list entry so the UI can tell pending
// creations apart.
type projectView struct {
	projects.Project
	Pending bool `json:"pending"`
}

func (p projectView) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(p.Project)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["pending"] = p.Pending
	return json.Marshal(m)
}

// GET /v1/projects?refresh=true
func (r *Router) handleListProjects(w http.ResponseWriter, req *http.Request) error {
	force, _ := strconv.ParseBool(req.URL.Query().Get("refresh"))
	// error list fetch cukup di-toast, tetap balikin state lokal
	_ = r.Projects.FetchProjects(req.Context(), force)

	list := r.Projects.Projects()
	out := make([]projectView, 0, len(list))
	for _, p := range list {
		v := projectView{Project: p}
		if id, ok := r.Projects.Identity(p.ID); ok {
			v.Pending = id.IsPending()
		}
		out = append(out, v)
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"projects": out,
		"loading":  r.Projects.IsLoading(),
		"fetched":  r.Projects.Fetched(),
	})
}

// POST /v1/projects
func (r *Router) handleCreateProject(w http.ResponseWriter, req *http.Request) error {
	var draft projects.ProjectDraft
	if err := decode(req, &draft); err != nil {
		return err
	}
	draft.Name = middleware.SanitizeString(draft.Name)
	p, err := r.Projects.AddProject(req.Context(), draft)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, p)
}

// GET /v1/projects/{id}
func (r *Router) handleProjectDetail(w http.ResponseWriter, req *http.Request) error {
	d, err := r.Detail.Load(req.Context(), idOf(req))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, r.detailView(d))
}

// PATCH /v1/projects/{id}
// A name change goes through the rename endpoint; other fields are local.
func (r *Router) handleUpdateProject(w http.ResponseWriter, req *http.Request) error {
	var patch projects.ProjectPatch
	if err := decode(req, &patch); err != nil {
		return err
	}
	if patch.Empty() {
		return invalid("patch changes nothing")
	}
	id := idOf(req)
	if patch.Name != nil {
		if err := r.Detail.Rename(req.Context(), id, *patch.Name); err != nil {
			return err
		}
		patch.Name = nil
	}
	if !patch.Empty() {
		if err := r.Projects.UpdateProject(req.Context(), id, patch); err != nil {
			return err
		}
	}
	p, ok := r.Projects.GetProject(id)
	if !ok {
		return projects.ErrNotFound
	}
	return writeJSON(w, http.StatusOK, p)
}

// DELETE /v1/projects/{id}
func (r *Router) handleDeleteProject(w http.ResponseWriter, req *http.Request) error {
	if err := r.Projects.DeleteProject(req.Context(), idOf(req)); err != nil {
		return err
	}
	r.Detail.Invalidate(req.Context(), idOf(req))
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/projects/{id}/notes
func (r *Router) handleAddNote(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Content string `json:"content"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	n, err := r.Detail.AddNote(req.Context(), idOf(req), body.Content)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, n)
}

// DELETE /v1/projects/{id}/notes/{noteID}
func (r *Router) handleDeleteNote(w http.ResponseWriter, req *http.Request) error {
	noteID := chi.URLParam(req, "noteID")
	if err := middleware.ValidateResourceID("note", noteID); err != nil {
		return badRequest{err}
	}
	if err := r.Detail.DeleteNote(req.Context(), idOf(req), noteID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/projects/{id}/files (multipart, field "file")
func (r *Router) handleUploadFile(w http.ResponseWriter, req *http.Request) error {
	file, name, err := formFile(w, req)
	if err != nil {
		return err
	}
	defer file.Close()
	doc, err := r.Detail.UploadFile(req.Context(), idOf(req), name, file)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, doc)
}

// DELETE /v1/projects/{id}/files/{fileID}
func (r *Router) handleDeleteFile(w http.ResponseWriter, req *http.Request) error {
	fileID := chi.URLParam(req, "fileID")
	if err := middleware.ValidateResourceID("file", fileID); err != nil {
		return badRequest{err}
	}
	if err := r.Detail.DeleteFile(req.Context(), idOf(req), fileID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/projects/{id}/analyze
// Body: {"text": "..."}
func (r *Router) handleProjectAnalyze(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Text string `json:"text"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	msgs, res, err := r.Detail.Analyze(req.Context(), idOf(req), body.Text)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"result": res, "messages": r.messageViews(msgs)})
}

// GET /v1/projects/{id}/report?format=pdf
func (r *Router) handleProjectReport(w http.ResponseWriter, req *http.Request) error {
	d, err := r.Detail.Load(req.Context(), idOf(req))
	if err != nil {
		return err
	}
	exp, err := r.Reports.Project(req.Context(), d.Project, formatParam(req))
	if err != nil {
		return err
	}
	return writeReport(w, exp)
}

//
// ==== SESSIONS ====
//

// POST /v1/sessions
// Body: {"guest": true}
func (r *Router) handleCreateSession(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Guest bool `json:"guest"`
	}
	if req.ContentLength != 0 {
		if err := decode(req, &body); err != nil {
			return err
		}
	}
	if !body.Guest && !r.Auth.HasToken() {
		return auth.ErrNotAuthenticated
	}
	s := r.Sessions.Create(body.Guest)
	if body.Guest {
		s.RefreshCredits(req.Context())
	}
	return writeJSON(w, http.StatusCreated, r.sessionView(s.Snapshot()))
}

// GET /v1/sessions/{sid}
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, r.sessionView(s.Snapshot()))
}

// DELETE /v1/sessions/{sid}
func (r *Router) handleDeleteSession(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	if err := r.Sessions.Delete(s.ID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/sessions/{sid}/messages
// Body: {"text": "..."}
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	if _, err := s.Submit(req.Context(), body.Text); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, r.sessionView(s.Snapshot()))
}

// POST /v1/sessions/{sid}/regenerate
func (r *Router) handleRegenerate(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	if _, err := s.Regenerate(req.Context()); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, r.sessionView(s.Snapshot()))
}

// POST /v1/sessions/{sid}/clear
func (r *Router) handleClear(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	s.Clear()
	return writeJSON(w, http.StatusOK, r.sessionView(s.Snapshot()))
}

// POST /v1/sessions/{sid}/attachments (multipart, field "file")
// Responds with the extracted text ready to prefix onto the input.
func (r *Router) handleAttach(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	file, name, err := formFile(w, req)
	if err != nil {
		return err
	}
	defer file.Close()

	// extractor kerja dari path, jadi simpan dulu ke temp file
	tmp, err := os.CreateTemp("", "trustai-*"+filepath.Ext(name))
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	text, err := s.AttachFile(req.Context(), tmp.Name(), name)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// GET /v1/sessions/{sid}/credits
func (r *Router) handleCredits(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]int{"remaining_credits": s.RefreshCredits(req.Context())})
}

// GET /v1/sessions/{sid}/report?format=md
func (r *Router) handleSessionReport(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	res, err := s.LastAnalysis()
	if err != nil {
		return err
	}
	exp, err := r.Reports.Analysis(req.Context(), "sessions/"+s.ID, res, formatParam(req))
	if err != nil {
		return err
	}
	return writeReport(w, exp)
}

// POST /v1/sessions/{sid}/save
// Body: {"projectId": "..."} or {"newProjectName": "..."}
func (r *Router) handleSaveAnalysis(w http.ResponseWriter, req *http.Request) error {
	if !r.Auth.HasToken() {
		return auth.ErrNotAuthenticated
	}
	s, err := r.session(req)
	if err != nil {
		return err
	}
	var target appprojects.SaveTarget
	if err := decode(req, &target); err != nil {
		return err
	}
	if target.ProjectID == "" && target.NewProjectName == "" {
		return invalid("projectId or newProjectName is required")
	}
	res, err := s.LastAnalysis()
	if err != nil {
		return err
	}
	p, err := r.Projects.SaveAnalysis(req.Context(), target, res)
	if err != nil {
		return err
	}
	r.Detail.Invalidate(req.Context(), p.ID)
	return writeJSON(w, http.StatusOK, p)
}

// GET /v1/toasts
func (r *Router) handleToasts(w http.ResponseWriter, req *http.Request) error {
	if r.Toasts == nil {
		return writeJSON(w, http.StatusOK, []application.Toast{})
	}
	return writeJSON(w, http.StatusOK, r.Toasts.Drain())
}

//
// ==== HELPERS ====
//

func formatParam(req *http.Request) string {
	if f := req.URL.Query().Get("format"); f != "" {
		return f
	}
	return string(reports.FormatPDF)
}

func writeReport(w http.ResponseWriter, exp appreports.Export) error {
	w.Header().Set("Content-Type", exp.Format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Filename()))
	if exp.URL != "" {
		w.Header().Set("X-Report-URL", exp.URL)
	}
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(exp.Data)
	return err
}

type multipartFile interface {
	io.Reader
	io.Closer
}

func formFile(w http.ResponseWriter, req *http.Request) (multipartFile, string, error) {
	req.Body = http.MaxBytesReader(w, req.Body, maxUpload)
	file, header, err := req.FormFile("file")
	if err != nil {
		return nil, "", invalid("file upload: %v", err)
	}
	if err := middleware.ValidateFilename(header.Filename); err != nil {
		file.Close()
		return nil, "", badRequest{err}
	}
	return file, header.Filename, nil
}
