package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bryanwahyu/trustai-client/internal/application"
	domain "github.com/bryanwahyu/trustai-client/internal/domain/analysis"
	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Analyzer      domain.Analyzer
	GuestAnalyzer domain.GuestAnalyzer
	Extractor     domain.Extractor
	Notifier      application.Notifier
	Clock         application.Clock
	Logger        *slog.Logger
	// TextLimit caps guest input in characters; 0 means DefaultGuestTextLimit.
	TextLimit int
	// Stats is optional.
	Stats Stats
}

// Stats counts finished analyses.
type Stats interface {
	AnalysisDone(guest bool, failed bool)
}

// Attachment is the last file whose text was pulled into the input.
type Attachment struct {
	Name string               `json:"name"`
	Type projects.ContentType `json:"type"`
}

// Session is one chat-style analysis conversation. Safe for concurrent use.
type Session struct {
	ID    string
	Guest bool

	deps Deps

	mu         sync.Mutex
	messages   []domain.ChatMessage
	credits    int
	busy       bool
	seq        int
	title      string
	attachment *Attachment
}

// NewSession starts an empty session. Guests start with the default credit
// allowance until RefreshCredits succeeds.
func NewSession(id string, guest bool, deps Deps) *Session {
	return &Session{ID: id, Guest: guest, deps: deps, credits: domain.DefaultGuestCredits}
}

func (s *Session) clock() application.Clock       { return application.ClockOrSystem(s.deps.Clock) }
func (s *Session) notifier() application.Notifier { return application.NotifierOrDiscard(s.deps.Notifier) }

func (s *Session) logger() *slog.Logger {
	l := s.deps.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("session", s.ID, "guest", s.Guest)
}

func (s *Session) textLimit() int {
	if s.deps.TextLimit > 0 {
		return s.deps.TextLimit
	}
	return domain.DefaultGuestTextLimit
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID                string               `json:"id"`
	Guest             bool                 `json:"guest"`
	Title             string               `json:"title"`
	Messages          []domain.ChatMessage `json:"messages"`
	Credits           *int                 `json:"credits,omitempty"`
	Busy              bool                 `json:"busy"`
	CanDownloadReport bool                 `json:"canDownloadReport"`
	Attachment        *Attachment          `json:"attachment,omitempty"`
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:                s.ID,
		Guest:             s.Guest,
		Title:             s.title,
		Messages:          append([]domain.ChatMessage{}, s.messages...),
		Busy:              s.busy,
		CanDownloadReport: s.canDownloadLocked(),
		Attachment:        s.attachment,
	}
	if s.Guest {
		c := s.credits
		snap.Credits = &c
	}
	return snap
}

// Messages returns a copy of the conversation.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChatMessage{}, s.messages...)
}

// Credits left for a guest session.
func (s *Session) Credits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credits
}

func (s *Session) nextID() string {
	s.seq++
	return strconv.FormatInt(s.clock().Now().UnixMilli(), 10) + "-" + strconv.Itoa(s.seq)
}

// Submit appends text as a user message and asks the backend for a
// verdict. The AI reply, or an error reply, is appended and returned.
func (s *Session) Submit(ctx context.Context, text string) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, domain.ErrEmptyText
	}

	s.mu.Lock()
	if err := s.admitLocked(text); err != nil {
		s.mu.Unlock()
		return domain.ChatMessage{}, err
	}
	s.messages = append(s.messages, domain.ChatMessage{
		ID:        s.nextID(),
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: s.clock().Now(),
	})
	if s.title == "" {
		s.title = titleFrom(text)
	}
	s.busy = true
	s.mu.Unlock()

	return s.respond(ctx, text)
}

// admitLocked checks the guards that run before any message is appended.
func (s *Session) admitLocked(text string) error {
	if s.busy {
		return domain.ErrBusy
	}
	if s.Guest {
		if s.credits <= 0 {
			return domain.ErrNoCredits
		}
		if utf8.RuneCountInString(text) > s.textLimit() {
			return fmt.Errorf("%w: %d characters, limit %d", domain.ErrTextTooLong, utf8.RuneCountInString(text), s.textLimit())
		}
	}
	return nil
}

// Regenerate drops the trailing AI reply and asks again for the last user
// message.
func (s *Session) Regenerate(ctx context.Context) (domain.ChatMessage, error) {
	s.mu.Lock()
	last := -1
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == domain.RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		s.mu.Unlock()
		return domain.ChatMessage{}, domain.ErrEmptyText
	}
	text := s.messages[last].Content
	if err := s.admitLocked(text); err != nil {
		s.mu.Unlock()
		return domain.ChatMessage{}, err
	}
	s.messages = s.messages[:last+1]
	s.busy = true
	s.mu.Unlock()

	return s.respond(ctx, text)
}

// respond runs the analysis for text; the caller has set busy.
func (s *Session) respond(ctx context.Context, text string) (domain.ChatMessage, error) {
	var (
		res       domain.Result
		remaining *int
		err       error
	)
	if s.Guest {
		var gr domain.GuestResult
		gr, err = s.deps.GuestAnalyzer.AnalyzeGuest(ctx, text)
		res = gr.Result
		remaining = gr.RemainingCredits
	} else {
		res, err = s.deps.Analyzer.Analyze(ctx, text, "")
	}

	now := s.clock().Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if s.deps.Stats != nil {
		s.deps.Stats.AnalysisDone(s.Guest, err != nil)
	}

	if err != nil {
		s.logger().Warn("analysis failed", "err", err)
		msg := domain.ChatMessage{
			ID:        s.nextID(),
			Role:      domain.RoleAI,
			Content:   s.failureText(err),
			Timestamp: now,
			Status:    projects.StatusNeutral,
			Failed:    true,
		}
		if s.Guest {
			if c, ok := creditsFrom(err); ok {
				s.credits = c
			}
		}
		s.messages = append(s.messages, msg)
		s.notifier().Notify(application.Toast{Level: application.LevelError, Title: "Analysis failed", Message: msg.Content, At: now})
		return msg, fmt.Errorf("analyze: %w", err)
	}

	score := res.Score
	msg := domain.ChatMessage{
		ID:         s.nextID(),
		Role:       domain.RoleAI,
		Content:    res.AnalysisMarkdown,
		Timestamp:  now,
		TrustScore: &score,
		Status:     res.Status(),
		Citations:  res.Citations,
	}
	if msg.Content == "" {
		msg.Content = "No analysis content returned."
	}
	s.messages = append(s.messages, msg)
	switch {
	case remaining != nil:
		s.credits = *remaining
	case s.Guest && s.credits > 0:
		s.credits--
	}
	if !s.Guest {
		s.notifier().Notify(application.Toast{Level: application.LevelSuccess, Title: "Analysis complete", At: now})
	}
	s.logger().Info("analysis complete", "score", score, "verdict", res.Verdict)
	return msg, nil
}

func (s *Session) failureText(err error) string {
	if s.Guest {
		var detail interface{ Message() string }
		if errors.As(err, &detail) && detail.Message() != "" {
			return detail.Message()
		}
		return "Failed to analyze text. Please try again later."
	}
	return "I apologize, but I encountered an error while analyzing your input. Please try again."
}

// creditsFrom reads remaining_credits carried by a 429 response.
func creditsFrom(err error) (int, bool) {
	var ce interface{ Credits() (int, bool) }
	if errors.As(err, &ce) {
		if c, ok := ce.Credits(); ok {
			return c, true
		}
	}
	if errors.Is(err, domain.ErrNoCredits) {
		return 0, true
	}
	return 0, false
}

// titleFrom shortens the first message into a session title.
func titleFrom(text string) string {
	const max = 30
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	r := []rune(text)
	return string(r[:max]) + "..."
}

// Clear empties the conversation. Credits are kept.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.title = ""
	s.attachment = nil
}

// CanDownloadReport is true once an AI message carries a score.
func (s *Session) CanDownloadReport() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canDownloadLocked()
}

func (s *Session) canDownloadLocked() bool {
	for _, m := range s.messages {
		if m.Scored() {
			return true
		}
	}
	return false
}

// LastAnalysis pairs the latest scored AI reply with the user message
// before it.
func (s *Session) LastAnalysis() (projects.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		ai := s.messages[i]
		if !ai.Scored() {
			continue
		}
		r := projects.AnalysisResult{
			ID:         ai.ID,
			AIResponse: ai.Content,
			TrustScore: *ai.TrustScore,
			Status:     ai.Status,
			Timestamp:  ai.Timestamp,
			Type:       projects.ContentText,
		}
		for j := i - 1; j >= 0; j-- {
			if s.messages[j].Role == domain.RoleUser {
				r.Content = s.messages[j].Content
				break
			}
		}
		if s.attachment != nil {
			r.Type = s.attachment.Type
			r.FileName = s.attachment.Name
		}
		return r, nil
	}
	return projects.AnalysisResult{}, domain.ErrNoAnalysis
}

// RefreshCredits asks the backend for the guest allowance. Failures keep
// the current value.
func (s *Session) RefreshCredits(ctx context.Context) int {
	if !s.Guest || s.deps.GuestAnalyzer == nil {
		return s.Credits()
	}
	c, err := s.deps.GuestAnalyzer.GuestCredits(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger().Warn("fetch guest credits", "err", err)
		return s.credits
	}
	s.credits = c.Remaining
	return s.credits
}

// AttachFile extracts text from the file at path and returns it formatted
// for prefixing onto the pending input.
func (s *Session) AttachFile(ctx context.Context, path, name string) (string, error) {
	if s.deps.Extractor == nil {
		return "", errors.New("no extractor configured")
	}
	if name == "" {
		name = filepath.Base(path)
	}
	text, err := s.deps.Extractor.Extract(ctx, path)
	if err != nil {
		s.logger().Warn("extract failed", "file", name, "err", err)
		s.notifier().Notify(application.Toast{Level: application.LevelError, Title: "Error processing file", Message: name, At: s.clock().Now()})
		return "", fmt.Errorf("extract %s: %w", name, err)
	}

	s.mu.Lock()
	s.attachment = &Attachment{Name: name, Type: contentTypeOf(name)}
	s.mu.Unlock()
	return PrefixExtracted(name, text), nil
}

// PrefixExtracted formats extracted text the way it is shown in the input.
func PrefixExtracted(name, text string) string {
	return "[Extracted from " + name + "]:\n" + text
}

func contentTypeOf(name string) projects.ContentType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return projects.ContentPDF
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp", ".tif", ".tiff":
		return projects.ContentImage
	default:
		return projects.ContentText
	}
}

//
// ==== MANAGER ====
//

// Manager keeps live sessions by id.
type Manager struct {
	Deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(deps Deps) *Manager {
	return &Manager{Deps: deps, sessions: make(map[string]*Session)}
}

// Create opens a new session with a random id.
func (m *Manager) Create(guest bool) *Session {
	s := NewSession(uuid.NewString(), guest, m.Deps)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// DropAuthenticated deletes every non-guest session, for when the user
// logs out. Guest sessions belong to nobody and stay.
func (m *Manager) DropAuthenticated() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if !s.Guest {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
