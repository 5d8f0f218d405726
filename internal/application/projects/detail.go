package projects

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bryanwahyu/trustai-client/internal/application"
	analysisdomain "github.com/bryanwahyu/trustai-client/internal/domain/analysis"
	domain "github.com/bryanwahyu/trustai-client/internal/domain/projects"
	"github.com/bryanwahyu/trustai-client/internal/domain/webstorage"
)

// DefaultSnapshotTTL is how long a detail snapshot may hydrate the view.
const DefaultSnapshotTTL = 5 * time.Minute

// Detail is everything the project view renders.
type Detail struct {
	Project   domain.Project           `json:"project"`
	Files     []domain.ProjectDocument `json:"files"`
	Messages  []analysisdomain.Message `json:"messages"`
	FromCache bool                     `json:"fromCache"`
	FetchedAt time.Time                `json:"fetchedAt"`
}

// snapshot is the JSON kept in session storage under SnapshotKey.
type snapshot struct {
	Project   *domain.Project          `json:"project"`
	Files     []domain.ProjectDocument `json:"files"`
	Messages  []analysisdomain.Message `json:"messages"`
	Timestamp int64                    `json:"timestamp"`
}

const snapshotPrefix = "project_"

// SnapshotKey is the session storage key for a project's detail snapshot.
func SnapshotKey(id domain.ProjectID) string { return snapshotPrefix + string(id) }

// CacheStats counts snapshot hits and misses.
type CacheStats interface {
	CacheHit()
	CacheMiss()
}

// DetailService loads the per-project view and applies its mutations.
// Every mutation removes the snapshot instead of patching it.
type DetailService struct {
	Projects domain.Backend
	Files    domain.FileBackend
	Messages analysisdomain.MessageBackend
	Analyzer analysisdomain.Analyzer
	Cache    webstorage.Store
	// Store is optional; when set, mutations are mirrored into the list.
	Store    *Store
	Notifier application.Notifier
	Clock    application.Clock
	Logger   *slog.Logger
	Stats    CacheStats
	TTL      time.Duration

	mu       sync.Mutex
	gens     map[domain.ProjectID]uint64
	inflight map[domain.ProjectID]bool
	written  map[domain.ProjectID]bool
}

func (d *DetailService) clock() application.Clock       { return application.ClockOrSystem(d.Clock) }
func (d *DetailService) notifier() application.Notifier { return application.NotifierOrDiscard(d.Notifier) }

func (d *DetailService) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d *DetailService) ttl() time.Duration {
	if d.TTL <= 0 {
		return DefaultSnapshotTTL
	}
	return d.TTL
}

func (d *DetailService) toast(level application.Level, title, msg string) {
	d.notifier().Notify(application.Toast{Level: level, Title: title, Message: msg, At: d.clock().Now()})
}

// bump starts a new generation for id and returns it.
func (d *DetailService) bump(id domain.ProjectID) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gens == nil {
		d.gens = make(map[domain.ProjectID]uint64)
	}
	d.gens[id]++
	return d.gens[id]
}

func (d *DetailService) current(id domain.ProjectID, gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gens[id] == gen
}

// Load returns the project view. A snapshot no older than the TTL is used
// as-is; otherwise project, files and messages are fetched and a new
// snapshot is written.
func (d *DetailService) Load(ctx context.Context, id domain.ProjectID) (Detail, error) {
	if det, ok := d.cached(ctx, id); ok {
		if d.Stats != nil {
			d.Stats.CacheHit()
		}
		return det, nil
	}
	if d.Stats != nil {
		d.Stats.CacheMiss()
	}

	gen := d.bump(id)
	now := d.clock().Now()

	p, err := d.Projects.Get(ctx, id)
	if err != nil {
		d.logger().Warn("load project failed", "id", id, "err", err)
		d.toast(application.LevelError, "Error", "Failed to load project")
		return Detail{}, fmt.Errorf("load project %s: %w", id, err)
	}
	p.Normalize(now)

	files, err := d.Files.ListByProject(ctx, id)
	if err != nil {
		d.logger().Warn("load project files failed", "id", id, "err", err)
		d.toast(application.LevelError, "Error", "Failed to load project files")
		return Detail{}, fmt.Errorf("load files of %s: %w", id, err)
	}
	msgs, err := d.Messages.List(ctx, id)
	if err != nil {
		d.logger().Warn("load project messages failed", "id", id, "err", err)
		d.toast(application.LevelError, "Error", "Failed to load messages")
		return Detail{}, fmt.Errorf("load messages of %s: %w", id, err)
	}

	det := Detail{
		Project:   p,
		Files:     d.documents(files),
		Messages:  msgs,
		FetchedAt: now,
	}
	if det.Messages == nil {
		det.Messages = []analysisdomain.Message{}
	}

	// response yang telat gak boleh nimpa snapshot yang lebih baru
	if !d.current(id, gen) {
		d.logger().Debug("skip snapshot of superseded load", "id", id)
		return det, nil
	}
	d.writeSnapshot(ctx, id, det)
	return det, nil
}

func (d *DetailService) documents(files []domain.File) []domain.ProjectDocument {
	out := make([]domain.ProjectDocument, 0, len(files))
	for _, f := range files {
		out = append(out, domain.DocumentFromFile(f, d.Files.FileURL(f.ID)))
	}
	return out
}

// cached reads a fresh snapshot. A snapshot that does not parse is removed.
func (d *DetailService) cached(ctx context.Context, id domain.ProjectID) (Detail, bool) {
	if d.Cache == nil {
		return Detail{}, false
	}
	key := SnapshotKey(id)
	raw, ok, err := d.Cache.Get(ctx, key)
	if err != nil {
		d.logger().Warn("read snapshot", "key", key, "err", err)
		return Detail{}, false
	}
	if !ok {
		return Detail{}, false
	}

	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil || snap.Project == nil {
		d.logger().Warn("drop unreadable snapshot", "key", key, "err", err)
		if rerr := d.Cache.Remove(ctx, key); rerr != nil {
			d.logger().Warn("remove snapshot", "key", key, "err", rerr)
		}
		return Detail{}, false
	}

	taken := time.UnixMilli(snap.Timestamp)
	if d.clock().Now().Sub(taken) > d.ttl() {
		return Detail{}, false
	}
	det := Detail{
		Project:   *snap.Project,
		Files:     snap.Files,
		Messages:  snap.Messages,
		FromCache: true,
		FetchedAt: taken,
	}
	if det.Files == nil {
		det.Files = []domain.ProjectDocument{}
	}
	if det.Messages == nil {
		det.Messages = []analysisdomain.Message{}
	}
	return det, true
}

// writeSnapshot stores det; failures (quota, backend down) are only logged.
func (d *DetailService) writeSnapshot(ctx context.Context, id domain.ProjectID, det Detail) {
	if d.Cache == nil {
		return
	}
	p := det.Project
	b, err := json.Marshal(snapshot{
		Project:   &p,
		Files:     det.Files,
		Messages:  det.Messages,
		Timestamp: d.clock().Now().UnixMilli(),
	})
	if err != nil {
		d.logger().Warn("encode snapshot", "id", id, "err", err)
		return
	}
	if err := d.Cache.Set(ctx, SnapshotKey(id), string(b)); err != nil {
		d.logger().Warn("write snapshot", "id", id, "err", err)
		return
	}
	d.mu.Lock()
	if d.written == nil {
		d.written = make(map[domain.ProjectID]bool)
	}
	d.written[id] = true
	d.mu.Unlock()
}

// Invalidate removes the snapshot of id and supersedes in-flight loads.
func (d *DetailService) Invalidate(ctx context.Context, id domain.ProjectID) {
	d.bump(id)
	if d.Cache == nil {
		return
	}
	if err := d.Cache.Remove(ctx, SnapshotKey(id)); err != nil {
		d.logger().Warn("invalidate snapshot", "id", id, "err", err)
	}
}

// Clear removes every snapshot and supersedes all in-flight loads. Called
// when the session ends so the next user never hydrates from them.
func (d *DetailService) Clear(ctx context.Context) {
	d.mu.Lock()
	for id := range d.gens {
		d.gens[id]++
	}
	written := d.written
	d.written = nil
	d.mu.Unlock()

	if d.Cache == nil {
		return
	}
	if pr, ok := d.Cache.(webstorage.PrefixRemover); ok {
		n, err := pr.RemovePrefix(ctx, snapshotPrefix)
		if err == nil {
			d.logger().Debug("snapshots cleared", "count", n)
			return
		}
		d.logger().Warn("clear snapshots", "err", err)
	}
	// fallback: hanya key yang pernah ditulis proses ini
	for id := range written {
		if err := d.Cache.Remove(ctx, SnapshotKey(id)); err != nil {
			d.logger().Warn("clear snapshot", "id", id, "err", err)
		}
	}
}

//
// ==== MUTATIONS ====
//

// Rename changes the project name in the list and drops the snapshot so
// the next Load refetches. Blank names and projects the list does not hold
// are rejected before any state changes.
func (d *DetailService) Rename(ctx context.Context, id domain.ProjectID, name string) error {
	trimmed, err := domain.ValidateName(name)
	if err != nil {
		return err
	}
	if d.Store == nil {
		return fmt.Errorf("rename %s: %w", id, domain.ErrNotFound)
	}
	if _, ok := d.Store.GetProject(id); !ok {
		return fmt.Errorf("rename %s: %w", id, domain.ErrNotFound)
	}
	if err := d.Store.Rename(ctx, id, trimmed); err != nil {
		return err
	}
	d.Invalidate(ctx, id)
	d.toast(application.LevelSuccess, "Project renamed", trimmed)
	return nil
}

// AddNote persists a note on the backend.
func (d *DetailService) AddNote(ctx context.Context, id domain.ProjectID, content string) (domain.Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Note{}, domain.ErrEmptyNote
	}
	n, err := d.Projects.AddNote(ctx, id, content)
	if err != nil {
		d.logger().Warn("add note failed", "id", id, "err", err)
		d.toast(application.LevelError, "Error", "Failed to add note")
		return domain.Note{}, fmt.Errorf("add note to %s: %w", id, err)
	}
	now := d.clock().Now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}
	d.Invalidate(ctx, id)
	d.mirror(id, func(p *domain.Project) { p.Notes = p.Notes.Append(n) })
	d.toast(application.LevelSuccess, "Note added", "")
	return n, nil
}

// DeleteNote removes a note on the backend.
func (d *DetailService) DeleteNote(ctx context.Context, id domain.ProjectID, noteID string) error {
	if err := d.Projects.DeleteNote(ctx, id, noteID); err != nil {
		d.logger().Warn("delete note failed", "id", id, "note", noteID, "err", err)
		d.toast(application.LevelError, "Error", "Failed to delete note")
		return fmt.Errorf("delete note %s: %w", noteID, err)
	}
	d.Invalidate(ctx, id)
	d.mirror(id, func(p *domain.Project) {
		p.Notes = p.Notes.Filter(func(n domain.Note) bool { return n.ID != noteID })
	})
	return nil
}

// UploadFile attaches a file to the project.
func (d *DetailService) UploadFile(ctx context.Context, id domain.ProjectID, filename string, r io.Reader) (domain.ProjectDocument, error) {
	f, err := d.Files.Upload(ctx, id, filename, r)
	if err != nil {
		d.logger().Warn("upload failed", "id", id, "file", filename, "err", err)
		d.toast(application.LevelError, "Upload failed", filename)
		return domain.ProjectDocument{}, fmt.Errorf("upload %s: %w", filename, err)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = d.clock().Now()
	}
	doc := domain.DocumentFromFile(f, d.Files.FileURL(f.ID))
	d.Invalidate(ctx, id)
	d.mirror(id, func(p *domain.Project) { p.Files++ })
	d.toast(application.LevelSuccess, "File uploaded", filename)
	return doc, nil
}

// DeleteFile removes one of the project's files.
func (d *DetailService) DeleteFile(ctx context.Context, id domain.ProjectID, fileID string) error {
	if err := d.Files.Delete(ctx, fileID); err != nil {
		d.logger().Warn("delete file failed", "id", id, "file", fileID, "err", err)
		d.toast(application.LevelError, "Error", "Failed to delete file")
		return fmt.Errorf("delete file %s: %w", fileID, err)
	}
	d.Invalidate(ctx, id)
	d.mirror(id, func(p *domain.Project) {
		if p.Files > 0 {
			p.Files--
		}
	})
	return nil
}

// Analyze posts text as a user message, runs the analysis against the
// project and returns the refreshed conversation. A second call for the
// same project while one is running gets ErrBusy.
func (d *DetailService) Analyze(ctx context.Context, id domain.ProjectID, text string) ([]analysisdomain.Message, analysisdomain.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, analysisdomain.Result{}, analysisdomain.ErrEmptyText
	}
	if !d.begin(id) {
		return nil, analysisdomain.Result{}, analysisdomain.ErrBusy
	}
	defer d.end(id)

	if _, err := d.Messages.Send(ctx, id, analysisdomain.NewMessage{Role: analysisdomain.RoleUser, Content: text}); err != nil {
		d.toast(application.LevelError, "Error", "Failed to send message")
		return nil, analysisdomain.Result{}, fmt.Errorf("send message to %s: %w", id, err)
	}
	res, err := d.Analyzer.Analyze(ctx, text, id)
	if err != nil {
		d.logger().Warn("project analysis failed", "id", id, "err", err)
		d.toast(application.LevelError, "Analysis failed", err.Error())
		d.Invalidate(ctx, id)
		return nil, analysisdomain.Result{}, fmt.Errorf("analyze in %s: %w", id, err)
	}
	d.Invalidate(ctx, id)

	now := d.clock().Now()
	if d.Store != nil {
		r := domain.AnalysisResult{
			ID:         fmt.Sprintf("%d", now.UnixMilli()),
			Content:    text,
			AIResponse: res.AnalysisMarkdown,
			TrustScore: res.Score,
			Status:     res.Status(),
			Timestamp:  now,
			Type:       domain.ContentText,
		}
		if err := d.Store.RecordAnalysis(id, r); err != nil {
			d.logger().Debug("project not in list, history not updated", "id", id)
		}
	}

	msgs, err := d.Messages.List(ctx, id)
	if err != nil {
		d.logger().Warn("refetch messages failed", "id", id, "err", err)
		return []analysisdomain.Message{}, res, nil
	}
	return msgs, res, nil
}

func (d *DetailService) begin(id domain.ProjectID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inflight == nil {
		d.inflight = make(map[domain.ProjectID]bool)
	}
	if d.inflight[id] {
		return false
	}
	d.inflight[id] = true
	return true
}

func (d *DetailService) end(id domain.ProjectID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, id)
}

func (d *DetailService) mirror(id domain.ProjectID, fn func(p *domain.Project)) {
	if d.Store != nil {
		d.Store.Mutate(id, fn)
	}
}
