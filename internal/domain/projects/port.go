package projects

import (
	"context"
	"io"
)

// Backend port (interface ke REST backend untuk project)
type Backend interface {
	List(ctx context.Context) ([]Project, error)
	Create(ctx context.Context, draft ProjectDraft) (Project, error)
	Get(ctx context.Context, id ProjectID) (Project, error)
	Delete(ctx context.Context, id ProjectID) error
	AddNote(ctx context.Context, id ProjectID, content string) (Note, error)
	DeleteNote(ctx context.Context, id ProjectID, noteID string) error
}

// FileBackend port for project file storage on the backend.
type FileBackend interface {
	Upload(ctx context.Context, id ProjectID, filename string, r io.Reader) (File, error)
	ListByProject(ctx context.Context, id ProjectID) ([]File, error)
	Delete(ctx context.Context, fileID string) error
	FileURL(fileID string) string
}
