package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
)

// ProjectsAPI implements projects.Backend.
type ProjectsAPI struct {
	c *Client
}

var _ projects.Backend = (*ProjectsAPI)(nil)

func (a *ProjectsAPI) List(ctx context.Context) ([]projects.Project, error) {
	var out []projects.Project
	if err := a.c.getJSON(ctx, "/projects/", true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *ProjectsAPI) Create(ctx context.Context, draft projects.ProjectDraft) (projects.Project, error) {
	if draft.Tags == nil {
		draft.Tags = []string{}
	}
	if draft.Category == "" {
		draft.Category = "General"
	}
	var out projects.Project
	err := a.c.postJSON(ctx, "/projects/", true, draft, &out)
	return out, err
}

func (a *ProjectsAPI) Get(ctx context.Context, id projects.ProjectID) (projects.Project, error) {
	var out projects.Project
	err := a.c.getJSON(ctx, "/projects/"+url.PathEscape(string(id)), true, &out)
	return out, err
}

func (a *ProjectsAPI) Delete(ctx context.Context, id projects.ProjectID) error {
	return a.c.do(ctx, http.MethodDelete, "/projects/"+url.PathEscape(string(id)), true, nil, nil)
}

func (a *ProjectsAPI) AddNote(ctx context.Context, id projects.ProjectID, content string) (projects.Note, error) {
	var out projects.Note
	body := map[string]string{"content": content}
	err := a.c.postJSON(ctx, "/projects/"+url.PathEscape(string(id))+"/notes", true, body, &out)
	return out, err
}

func (a *ProjectsAPI) DeleteNote(ctx context.Context, id projects.ProjectID, noteID string) error {
	path := "/projects/" + url.PathEscape(string(id)) + "/notes/" + url.PathEscape(noteID)
	return a.c.do(ctx, http.MethodDelete, path, true, nil, nil)
}
