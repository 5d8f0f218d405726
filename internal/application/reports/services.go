package reports

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bryanwahyu/trustai-client/internal/application"
	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
	domain "github.com/bryanwahyu/trustai-client/internal/domain/reports"
)

// Service renders exports and optionally publishes them to an artifact store.
type Service struct {
	Renderer  domain.Renderer
	Artifacts domain.ArtifactStore // nil: exports are only returned
	Clock     application.Clock
	Logger    *slog.Logger
}

// Export is a rendered report and, when published, where it was stored.
type Export struct {
	domain.Report
	URL string `json:"url,omitempty"`
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Analysis renders one analysis. key groups published artifacts, usually
// the session or project id.
func (s *Service) Analysis(ctx context.Context, key string, r projects.AnalysisResult, format string) (Export, error) {
	f, err := domain.ParseFormat(format)
	if err != nil {
		return Export{}, fmt.Errorf("%w: %q", err, format)
	}
	rep, err := s.Renderer.Analysis(r, f, application.ClockOrSystem(s.Clock).Now())
	if err != nil {
		return Export{}, err
	}
	return s.publish(ctx, key, rep)
}

// Project renders a whole project.
func (s *Service) Project(ctx context.Context, p projects.Project, format string) (Export, error) {
	f, err := domain.ParseFormat(format)
	if err != nil {
		return Export{}, fmt.Errorf("%w: %q", err, format)
	}
	rep, err := s.Renderer.Project(p, f, application.ClockOrSystem(s.Clock).Now())
	if err != nil {
		return Export{}, err
	}
	return s.publish(ctx, "projects/"+string(p.ID), rep)
}

func (s *Service) publish(ctx context.Context, key string, rep domain.Report) (Export, error) {
	out := Export{Report: rep}
	if s.Artifacts == nil {
		return out, nil
	}
	url, err := s.Artifacts.Put(ctx, key, rep)
	if err != nil {
		// export tetap dikembalikan walaupun upload gagal
		s.logger().Warn("publish report", "key", key, "file", rep.Filename(), "err", err)
		return out, nil
	}
	out.URL = url
	s.logger().Info("report published", "key", key, "url", url)
	return out, nil
}
