package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
)

// FilesAPI implements projects.FileBackend.
type FilesAPI struct {
	c *Client
}

var _ projects.FileBackend = (*FilesAPI)(nil)

// Upload sends r as the multipart field "file".
func (a *FilesAPI) Upload(ctx context.Context, id projects.ProjectID, filename string, r io.Reader) (projects.File, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return projects.File{}, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return projects.File{}, fmt.Errorf("copying upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return projects.File{}, err
	}

	path := "/files/projects/" + url.PathEscape(string(id)) + "/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.c.baseURL+path, &buf)
	if err != nil {
		return projects.File{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out projects.File
	err = a.c.send(req, true, &out)
	return out, err
}

func (a *FilesAPI) ListByProject(ctx context.Context, id projects.ProjectID) ([]projects.File, error) {
	var out []projects.File
	if err := a.c.getJSON(ctx, "/files/project/"+url.PathEscape(string(id)), true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *FilesAPI) Delete(ctx context.Context, fileID string) error {
	return a.c.do(ctx, http.MethodDelete, "/files/"+url.PathEscape(fileID), true, nil, nil)
}

// FileURL is the download location of a stored file.
func (a *FilesAPI) FileURL(fileID string) string {
	return a.c.baseURL + "/files/" + url.PathEscape(fileID)
}
