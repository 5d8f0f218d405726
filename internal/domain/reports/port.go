package reports

import (
	"context"
	"time"

	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
)

// ArtifactStore port (penyimpanan hasil export report)
type ArtifactStore interface {
	Put(ctx context.Context, key string, r Report) (url string, err error)
}

// Renderer turns analyses and projects into export documents.
type Renderer interface {
	Analysis(r projects.AnalysisResult, f Format, now time.Time) (Report, error)
	Project(p projects.Project, f Format, now time.Time) (Report, error)
}
