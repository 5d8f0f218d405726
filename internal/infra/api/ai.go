package api

import (
	"context"

	"github.com/bryanwahyu/trustai-client/internal/domain/analysis"
	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
)

// AIAPI implements analysis.Analyzer and analysis.GuestAnalyzer.
type AIAPI struct {
	c *Client
}

var (
	_ analysis.Analyzer      = (*AIAPI)(nil)
	_ analysis.GuestAnalyzer = (*AIAPI)(nil)
)

func (a *AIAPI) Analyze(ctx context.Context, text string, projectID projects.ProjectID) (analysis.Result, error) {
	body := struct {
		Text      string  `json:"text"`
		ProjectID *string `json:"project_id,omitempty"`
	}{Text: text}
	if projectID != "" {
		id := string(projectID)
		body.ProjectID = &id
	}
	var out analysis.Result
	err := a.c.postJSON(ctx, "/ai/analyze", true, body, &out)
	return out, err
}

// AnalyzeGuest never sends credentials.
func (a *AIAPI) AnalyzeGuest(ctx context.Context, text string) (analysis.GuestResult, error) {
	var out analysis.GuestResult
	err := a.c.postJSON(ctx, "/ai/analyze-guest", false, map[string]string{"text": text}, &out)
	return out, err
}

func (a *AIAPI) GuestCredits(ctx context.Context) (analysis.Credits, error) {
	var out analysis.Credits
	err := a.c.getJSON(ctx, "/ai/guest-credits", false, &out)
	return out, err
}
