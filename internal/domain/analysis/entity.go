package analysis

import (
	"encoding/json"
	"time"

	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
)

// Role of a message author.
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// DefaultGuestCredits is what a guest starts with when the credit lookup fails.
const DefaultGuestCredits = 3

// DefaultGuestTextLimit is the maximum guest input length in characters.
const DefaultGuestTextLimit = 5000

// Result is the body returned by the analyze endpoints.
type Result struct {
	Score            float64  `json:"score"`
	Verdict          string   `json:"verdict"`
	Citations        []string `json:"citations"`
	AnalysisMarkdown string   `json:"analysis_markdown"`
}

// Status is the display label for the verdict.
func (r Result) Status() projects.Status { return projects.VerdictStatus(r.Verdict) }

// GuestResult adds the remaining daily credits. RemainingCredits is nil when
// the backend left it out.
type GuestResult struct {
	Result
	RemainingCredits *int `json:"remaining_credits"`
}

// Credits of a guest client.
type Credits struct {
	Remaining  int `json:"remaining_credits"`
	DailyLimit int `json:"daily_limit"`
}

// Message is a persisted project conversation entry.
type Message struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	Role             Role      `json:"role"`
	Content          string    `json:"content"`
	AnalysisMarkdown string    `json:"analysis_markdown,omitempty"`
	Score            *float64  `json:"score,omitempty"`
	Citations        []string  `json:"citations"`
	CreatedAt        time.Time `json:"created_at"`
}

func (m *Message) UnmarshalJSON(b []byte) error {
	var w struct {
		ID               string             `json:"id"`
		MongoID          string             `json:"_id"`
		ProjectID        string             `json:"project_id"`
		Role             Role               `json:"role"`
		Content          string             `json:"content"`
		AnalysisMarkdown string             `json:"analysis_markdown"`
		Score            *float64           `json:"score"`
		Citations        []string           `json:"citations"`
		CreatedAt        projects.Timestamp `json:"created_at"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	id := w.ID
	if id == "" {
		id = w.MongoID
	}
	if w.Citations == nil {
		w.Citations = []string{}
	}
	*m = Message{
		ID:               id,
		ProjectID:        w.ProjectID,
		Role:             w.Role,
		Content:          w.Content,
		AnalysisMarkdown: w.AnalysisMarkdown,
		Score:            w.Score,
		Citations:        w.Citations,
		CreatedAt:        w.CreatedAt.Time,
	}
	return nil
}

// NewMessage is the body sent to create a project message.
type NewMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatMessage is one turn of an in-memory analysis session.
type ChatMessage struct {
	ID         string          `json:"id"`
	Role       Role            `json:"role"`
	Content    string          `json:"content"`
	Timestamp  time.Time       `json:"timestamp"`
	TrustScore *float64        `json:"trustScore,omitempty"`
	Status     projects.Status `json:"status,omitempty"`
	Citations  []string        `json:"citations,omitempty"`
	Failed     bool            `json:"failed,omitempty"`
}

// Scored reports whether the message carries an analysis score.
func (m ChatMessage) Scored() bool { return m.Role == RoleAI && m.TrustScore != nil && !m.Failed }
