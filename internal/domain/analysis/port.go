package analysis

import (
	"context"

	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
)

// Analyzer runs an authenticated analysis. projectID may be empty; when set
// the backend also stores the AI reply as a project message.
type Analyzer interface {
	Analyze(ctx context.Context, text string, projectID projects.ProjectID) (Result, error)
}

// GuestAnalyzer is the unauthenticated, credit-capped flow.
type GuestAnalyzer interface {
	AnalyzeGuest(ctx context.Context, text string) (GuestResult, error)
	GuestCredits(ctx context.Context) (Credits, error)
}

// MessageBackend port for project conversation history.
type MessageBackend interface {
	List(ctx context.Context, id projects.ProjectID) ([]Message, error)
	Send(ctx context.Context, id projects.ProjectID, msg NewMessage) (Message, error)
}

// Extractor pulls plain text out of an uploaded file.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}
