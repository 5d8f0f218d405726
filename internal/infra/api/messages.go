package api

import (
	"context"
	"net/url"

	"github.com/bryanwahyu/trustai-client/internal/domain/analysis"
	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
)

// MessagesAPI implements analysis.MessageBackend.
type MessagesAPI struct {
	c *Client
}

var _ analysis.MessageBackend = (*MessagesAPI)(nil)

func (a *MessagesAPI) List(ctx context.Context, id projects.ProjectID) ([]analysis.Message, error) {
	out := []analysis.Message{}
	if err := a.c.getJSON(ctx, "/projects/"+url.PathEscape(string(id))+"/messages/", true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *MessagesAPI) Send(ctx context.Context, id projects.ProjectID, msg analysis.NewMessage) (analysis.Message, error) {
	var out analysis.Message
	err := a.c.postJSON(ctx, "/projects/"+url.PathEscape(string(id))+"/messages/", true, msg, &out)
	return out, err
}
