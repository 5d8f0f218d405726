package httpserver

import (
	appanalysis "github.com/bryanwahyu/trustai-client/internal/application/analysis"
	appprojects "github.com/bryanwahyu/trustai-client/internal/application/projects"
	"github.com/bryanwahyu/trustai-client/internal/domain/analysis"
)

// MarkdownRenderer turns one message body into HTML. Bodies that fail to
// render come back as escaped plain text.
type MarkdownRenderer interface {
	RenderMarkdown(md string) string
}

type chatMessageView struct {
	analysis.ChatMessage
	HTML string `json:"html,omitempty"`
}

type sessionView struct {
	appanalysis.Snapshot
	Messages []chatMessageView `json:"messages"`
}

type messageView struct {
	analysis.Message
	HTML string `json:"html,omitempty"`
}

type detailView struct {
	appprojects.Detail
	Messages []messageView `json:"messages"`
}

// markdown renders AI output only; user text is shown as typed.
func (r *Router) markdown(role analysis.Role, md string) string {
	if r.Markdown == nil || role != analysis.RoleAI || md == "" {
		return ""
	}
	return r.Markdown.RenderMarkdown(md)
}

func (r *Router) sessionView(s appanalysis.Snapshot) sessionView {
	out := sessionView{Snapshot: s, Messages: make([]chatMessageView, 0, len(s.Messages))}
	for _, m := range s.Messages {
		v := chatMessageView{ChatMessage: m}
		if !m.Failed {
			v.HTML = r.markdown(m.Role, m.Content)
		}
		out.Messages = append(out.Messages, v)
	}
	return out
}

func (r *Router) messageViews(msgs []analysis.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		body := m.AnalysisMarkdown
		if body == "" {
			body = m.Content
		}
		out = append(out, messageView{Message: m, HTML: r.markdown(m.Role, body)})
	}
	return out
}

func (r *Router) detailView(d appprojects.Detail) detailView {
	return detailView{Detail: d, Messages: r.messageViews(d.Messages)}
}
