package projects

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bryanwahyu/trustai-client/internal/application"
	authdomain "github.com/bryanwahyu/trustai-client/internal/domain/auth"
	domain "github.com/bryanwahyu/trustai-client/internal/domain/projects"
)

// Session tells the store whether there is a logged-in user to fetch for.
type Session interface {
	HasToken() bool
}

// Store keeps the in-memory project list in sync with the backend.
// Store is safe for concurrent use; the zero value of the unexported
// fields is ready to use.
type Store struct {
	Backend  domain.Backend
	Session  Session
	Notifier application.Notifier
	Clock    application.Clock
	Logger   *slog.Logger

	mu       sync.Mutex
	entries  []*entry
	fetched  bool
	loading  int
	fetchGen uint64
	// mutGen naik setiap ada perubahan lokal; dipakai buat nentuin
	// apakah hasil fetch lebih tua dari perubahan optimistic.
	mutGen  uint64
	seq     uint64
	deleted map[domain.ProjectID]uint64
	// epoch naik tiap Reset; create yang masih jalan dari epoch lama dibuang
	epoch uint64
}

type entry struct {
	identity domain.Identity
	project  domain.Project
	touched  uint64
}

// SaveTarget picks where an analysis is saved: an existing project, or a
// new project created with NewProjectName.
type SaveTarget struct {
	ProjectID      domain.ProjectID `json:"projectId,omitempty"`
	NewProjectName string           `json:"newProjectName,omitempty"`
}

func (s *Store) clock() application.Clock       { return application.ClockOrSystem(s.Clock) }
func (s *Store) notifier() application.Notifier { return application.NotifierOrDiscard(s.Notifier) }

func (s *Store) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Store) toastError(title, msg string) {
	s.notifier().Notify(application.Toast{Level: application.LevelError, Title: title, Message: msg, At: s.clock().Now()})
}

//
// ==== QUERIES ====
//

// Projects returns a copy of the list, newest first.
func (s *Store) Projects() []domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Project, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.project)
	}
	return out
}

// GetProject is a synchronous lookup in the in-memory list.
func (s *Store) GetProject(id domain.ProjectID) (domain.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.find(id); e != nil {
		return e.project, true
	}
	return domain.Project{}, false
}

// Identity returns whether id is still pending or already confirmed.
func (s *Store) Identity(id domain.ProjectID) (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.find(id); e != nil {
		return e.identity, true
	}
	return domain.Identity{}, false
}

// IsLoading reports whether a list fetch is in flight.
func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading > 0
}

// Fetched reports whether a list fetch has succeeded.
func (s *Store) Fetched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetched
}

func (s *Store) find(id domain.ProjectID) *entry {
	for _, e := range s.entries {
		if e.identity.ProjectID() == id {
			return e
		}
	}
	return nil
}

func (s *Store) indexOf(target *entry) int {
	for i, e := range s.entries {
		if e == target {
			return i
		}
	}
	return -1
}

//
// ==== USE CASES ====
//

// FetchProjects loads the list from the backend. Unless force is set it is
// a no-op after one successful fetch. Failures are logged and leave the
// current list in place without marking the fetch as done, so the next
// call retries.
func (s *Store) FetchProjects(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.fetched && !force {
		s.mu.Unlock()
		return nil
	}
	if s.Session != nil && !s.Session.HasToken() {
		s.mu.Unlock()
		s.logger().Debug("skip project fetch: no session token")
		return nil
	}
	s.fetchGen++
	gen, since := s.fetchGen, s.mutGen
	s.loading++
	s.mu.Unlock()

	list, err := s.Backend.List(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading--

	if err != nil {
		s.logger().Warn("fetch projects failed", "err", err)
		// auth-expiry ditangani lewat redirect, bukan toast
		if status := httpStatus(err); status != 0 && !errors.Is(err, authdomain.ErrNotAuthenticated) {
			s.toastError("Error", "Failed to load projects")
		}
		return fmt.Errorf("fetch projects: %w", err)
	}
	if gen != s.fetchGen {
		s.logger().Debug("discard superseded project list", "gen", gen, "latest", s.fetchGen)
		return nil
	}

	s.apply(list, since)
	s.fetched = true
	return nil
}

// apply replaces the list with a backend response. Entries changed locally
// after the fetch started keep their local version, projects deleted after
// it started stay deleted, and creations still in flight are kept.
func (s *Store) apply(list []domain.Project, since uint64) {
	now := s.clock().Now()
	current := make(map[domain.ProjectID]*entry, len(s.entries))
	var pending []*entry
	for _, e := range s.entries {
		if e.identity.IsPending() {
			pending = append(pending, e)
			continue
		}
		current[e.identity.ProjectID()] = e
	}

	fetched := make([]*entry, 0, len(list))
	seen := make(map[domain.ProjectID]bool, len(list))
	for _, p := range list {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		if g, ok := s.deleted[p.ID]; ok && g > since {
			continue
		}
		if e, ok := current[p.ID]; ok && e.touched > since {
			fetched = append(fetched, e)
			continue
		}
		p.Normalize(now)
		fetched = append(fetched, &entry{identity: domain.Confirmed(p.ID), project: p})
	}
	// created locally after the fetch started, not yet in the response;
	// they are newer than anything the backend listed
	var local []*entry
	for id, e := range current {
		if !seen[id] && e.touched > since {
			local = append(local, e)
		}
	}
	slices.SortFunc(local, func(a, b *entry) int { return cmp.Compare(b.touched, a.touched) })
	next := make([]*entry, 0, len(pending)+len(local)+len(fetched))
	next = append(next, pending...)
	next = append(next, local...)
	s.entries = append(next, fetched...)

	for id, g := range s.deleted {
		if g <= since {
			delete(s.deleted, id)
		}
	}
}

// Reset forgets every project and the fetched flag, for when the session
// ends. Fetches and creations still in flight are dropped when they return.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.fetched = false
	s.fetchGen++
	s.deleted = nil
	s.epoch++
}

// Refresh forces a refetch.
func (s *Store) Refresh(ctx context.Context) error {
	return s.FetchProjects(ctx, true)
}

// AddProject creates a project on the backend. A pending record is shown
// first and replaced by the confirmed one when the backend answers; on
// failure the pending record is removed.
func (s *Store) AddProject(ctx context.Context, draft domain.ProjectDraft) (domain.Project, error) {
	name, err := domain.ValidateName(draft.Name)
	if err != nil {
		return domain.Project{}, err
	}
	draft.Name = name
	now := s.clock().Now()

	s.mu.Lock()
	s.seq++
	epoch := s.epoch
	localID := domain.TemporaryID(now, s.seq)
	s.mutGen++
	pending := &entry{
		identity: domain.Pending(localID),
		project:  synthesize(domain.ProjectID(localID), draft, now),
		touched:  s.mutGen,
	}
	s.entries = append([]*entry{pending}, s.entries...)
	s.mu.Unlock()

	created, err := s.Backend.Create(ctx, draft)

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(pending)
	if err != nil {
		if i >= 0 {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
		}
		s.logger().Warn("create project failed", "name", draft.Name, "err", err)
		s.toastError("Error", "Failed to create project")
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}

	p := confirmed(created, draft, now)
	if epoch != s.epoch {
		s.logger().Debug("store reset during create, not listing", "id", p.ID)
		return p, nil
	}
	s.mutGen++
	done := &entry{identity: domain.Confirmed(p.ID), project: p, touched: s.mutGen}
	switch {
	case s.find(p.ID) != nil:
		// a refetch already brought the server copy in
		if i >= 0 {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
		}
		return s.find(p.ID).project, nil
	case i >= 0:
		s.entries[i] = done
	default:
		s.entries = append([]*entry{done}, s.entries...)
	}
	s.logger().Info("project created", "id", p.ID, "local_id", localID)
	return p, nil
}

// synthesize builds the pre-confirmation record.
func synthesize(id domain.ProjectID, d domain.ProjectDraft, now time.Time) domain.Project {
	return domain.Project{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		Priority:    d.Priority,
		Tags:        domain.Of(d.Tags...),
		Created:     now,
		LastUpdated: now,
		History:     domain.Of[domain.AnalysisResult](),
		Documents:   domain.Of[domain.ProjectDocument](),
		Notes:       domain.Of[domain.Note](),
		ActivityLog: domain.Of[domain.ActivityLog](),
	}
}

// confirmed merges the server response onto the draft with empty nested
// collections.
func confirmed(p domain.Project, d domain.ProjectDraft, now time.Time) domain.Project {
	out := synthesize(p.ID, d, now)
	if p.Name != "" {
		out.Name = p.Name
	}
	if p.Description != "" {
		out.Description = p.Description
	}
	if p.Category != "" {
		out.Category = p.Category
	}
	if p.Tags.Present() {
		out.Tags = p.Tags
	}
	out.TrustScore = p.TrustScore
	out.Files = p.Files
	if !p.Created.IsZero() {
		out.Created = p.Created
	}
	if !p.LastUpdated.IsZero() {
		out.LastUpdated = p.LastUpdated
	}
	return out
}

// UpdateProject applies patch to the in-memory project immediately. The
// backend has no general update endpoint, so the change is local only.
// If the update fails the whole list is refetched to resynchronize.
func (s *Store) UpdateProject(ctx context.Context, id domain.ProjectID, patch domain.ProjectPatch) error {
	if patch.Name != nil {
		name, err := domain.ValidateName(*patch.Name)
		if err != nil {
			return err
		}
		patch.Name = &name
	}

	if err := s.updateLocal(id, patch); err != nil {
		s.logger().Warn("update project failed, resyncing", "id", id, "err", err)
		s.toastError("Error", "Failed to update project")
		if ferr := s.FetchProjects(ctx, true); ferr != nil {
			s.logger().Warn("resync after failed update", "err", ferr)
		}
		return err
	}
	return nil
}

func (s *Store) updateLocal(id domain.ProjectID, patch domain.ProjectPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.find(id)
	if e == nil {
		return fmt.Errorf("update project %s: %w", id, domain.ErrNotFound)
	}
	e.project.Apply(patch)
	e.project.LastUpdated = s.clock().Now()
	s.mutGen++
	e.touched = s.mutGen
	return nil
}

// Rename is UpdateProject with only the name set. Blank names are rejected
// before anything changes.
func (s *Store) Rename(ctx context.Context, id domain.ProjectID, name string) error {
	return s.UpdateProject(ctx, id, domain.ProjectPatch{Name: &name})
}

// Mutate runs fn on the in-memory copy of id. It reports false when the
// project is not in the list; unlike UpdateProject it never resyncs.
func (s *Store) Mutate(id domain.ProjectID, fn func(p *domain.Project)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.find(id)
	if e == nil {
		return false
	}
	fn(&e.project)
	s.mutGen++
	e.touched = s.mutGen
	return true
}

// DeleteProject removes id on the backend and, only after success, from
// memory. Failures are surfaced as a toast and returned.
func (s *Store) DeleteProject(ctx context.Context, id domain.ProjectID) error {
	if err := s.Backend.Delete(ctx, id); err != nil {
		s.logger().Warn("delete project failed", "id", id, "err", err)
		s.toastError("Error", "Failed to delete project")
		return fmt.Errorf("delete project %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.find(id); e != nil {
		s.entries = append(s.entries[:s.indexOf(e)], s.entries[s.indexOf(e)+1:]...)
	}
	s.mutGen++
	if s.deleted == nil {
		s.deleted = make(map[domain.ProjectID]uint64)
	}
	s.deleted[id] = s.mutGen
	s.notifier().Notify(application.Toast{Level: application.LevelSuccess, Title: "Project deleted", At: s.clock().Now()})
	return nil
}

// RecordAnalysis appends r to the project's history and updates its
// running trust score.
func (s *Store) RecordAnalysis(id domain.ProjectID, r domain.AnalysisResult) error {
	now := s.clock().Now()
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	if !s.Mutate(id, func(p *domain.Project) { p.AppendAnalysis(r, now) }) {
		return fmt.Errorf("record analysis on %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SaveAnalysis stores r in an existing project, or creates one first when
// target names a new project.
func (s *Store) SaveAnalysis(ctx context.Context, target SaveTarget, r domain.AnalysisResult) (domain.Project, error) {
	id := target.ProjectID
	if id == "" {
		p, err := s.AddProject(ctx, domain.ProjectDraft{
			Name:        target.NewProjectName,
			Description: "Created from AI Tools",
			Category:    "General",
		})
		if err != nil {
			return domain.Project{}, err
		}
		id = p.ID
	}
	if err := s.RecordAnalysis(id, r); err != nil {
		return domain.Project{}, err
	}
	p, _ := s.GetProject(id)
	return p, nil
}

// httpStatus reads the status code of a backend error, 0 for transport
// failures.
func httpStatus(err error) int {
	var se interface{ HTTPStatus() int }
	if errors.As(err, &se) {
		return se.HTTPStatus()
	}
	return 0
}
