package projects

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// ProjectID tipe untuk Project
type ProjectID string

// Status is the verdict label derived from a trust score.
type Status string

const (
	StatusTrustworthy Status = "Trustworthy"
	StatusNeutral     Status = "Neutral"
	StatusRisky       Status = "Risky"
	StatusPending     Status = "Pending"
)

// ContentType enum
type ContentType string

const (
	ContentText  ContentType = "Text"
	ContentPDF   ContentType = "PDF"
	ContentImage ContentType = "Image"
	ContentMixed ContentType = "Mixed"
)

// StatusFor maps a 0-100 trust score to its status. A score of zero means
// nothing has been analysed yet.
func StatusFor(score float64) Status {
	switch {
	case score <= 0:
		return StatusPending
	case score >= 80:
		return StatusTrustworthy
	case score >= 50:
		return StatusNeutral
	default:
		return StatusRisky
	}
}

// VerdictStatus converts a backend verdict ("trustworthy", "risky", ...) into
// the capitalised label the UI shows.
func VerdictStatus(verdict string) Status {
	v := strings.TrimSpace(verdict)
	if v == "" {
		return StatusNeutral
	}
	r, size := utf8.DecodeRuneInString(v)
	return Status(string(unicode.ToUpper(r)) + v[size:])
}

// Aggregate Root: Project
type Project struct {
	ID          ProjectID                   `json:"id"`
	Name        string                      `json:"name"`
	Description string                      `json:"description"`
	Category    string                      `json:"category"`
	Priority    string                      `json:"priority,omitempty"`
	Type        ContentType                 `json:"type,omitempty"`
	Tags        Collection[string]          `json:"tags"`
	TrustScore  float64                     `json:"trustScore"`
	Files       int                         `json:"files"`
	Created     time.Time                   `json:"created"`
	LastUpdated time.Time                   `json:"lastUpdated"`
	History     Collection[AnalysisResult]  `json:"history"`
	Documents   Collection[ProjectDocument] `json:"documents"`
	Notes       Collection[Note]            `json:"notes"`
	ActivityLog Collection[ActivityLog]     `json:"activityLog"`
}

// Status is always derived from the trust score, never stored.
func (p Project) Status() Status { return StatusFor(p.TrustScore) }

// AppendAnalysis adds r to the history and recomputes the trust score as the
// running average of every analysis in the project, rounded to a whole
// score.
func (p *Project) AppendAnalysis(r AnalysisResult, now time.Time) {
	n := float64(p.History.Len())
	p.TrustScore = math.Round((p.TrustScore*n + r.TrustScore) / (n + 1))
	p.History = p.History.Append(r)
	p.Files++
	p.LastUpdated = now
}

// Apply merges the non-nil fields of patch into p.
func (p *Project) Apply(patch ProjectPatch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Priority != nil {
		p.Priority = *patch.Priority
	}
	if patch.Tags != nil {
		p.Tags = Of(patch.Tags...)
	}
	if patch.Notes != nil {
		p.Notes = Of(patch.Notes...)
	}
	if patch.Files != nil {
		p.Files = *patch.Files
	}
}

// Normalize fills nested timestamps the backend left out with now, the same
// way a freshly created note or document would be stamped.
func (p *Project) Normalize(now time.Time) {
	p.Documents = p.Documents.Map(func(d ProjectDocument) ProjectDocument {
		if d.AddedAt.IsZero() {
			d.AddedAt = now
		}
		return d
	})
	p.Notes = p.Notes.Map(func(n Note) Note {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		if n.UpdatedAt.IsZero() {
			n.UpdatedAt = now
		}
		return n
	})
}

// ProjectPatch is a partial update; nil fields are left untouched.
type ProjectPatch struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Priority    *string  `json:"priority,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Notes       []Note   `json:"-"`
	Files       *int     `json:"files,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ProjectPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Category == nil &&
		p.Priority == nil && p.Tags == nil && p.Notes == nil && p.Files == nil
}

// ProjectDraft is what the user submits to create a project.
type ProjectDraft struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Priority    string   `json:"priority,omitempty"`
}

// AnalysisResult is one scored analysis kept in a project's history.
type AnalysisResult struct {
	ID         string      `json:"id"`
	Content    string      `json:"content"`
	AIResponse string      `json:"aiResponse"`
	TrustScore float64     `json:"trustScore"`
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Type       ContentType `json:"type"`
	FileName   string      `json:"fileName,omitempty"`
}

// Note value object
type Note struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Tags      []string  `json:"tags,omitempty"`
}

// ProjectDocument is a file attached to a project as the UI shows it.
type ProjectDocument struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Type       ContentType `json:"type"`
	URL        string      `json:"url,omitempty"`
	Size       string      `json:"size,omitempty"`
	AddedAt    time.Time   `json:"addedAt"`
	TrustScore *float64    `json:"trustScore,omitempty"`
}

// ActivityLog entry
type ActivityLog struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// File is an uploaded file record as returned by the files API.
type File struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	Filename      string    `json:"filename"`
	Mimetype      string    `json:"mimetype"`
	Size          int64     `json:"size"`
	ExtractedText string    `json:"extracted_text,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ContentTypeFor classifies a mimetype the way documents are labelled.
func ContentTypeFor(mimetype string) ContentType {
	m := strings.ToLower(mimetype)
	switch {
	case strings.Contains(m, "pdf"):
		return ContentPDF
	case strings.Contains(m, "image"):
		return ContentImage
	default:
		return ContentText
	}
}

// FormatSize renders a byte count as megabytes with two decimals.
func FormatSize(bytes int64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/(1024*1024))
}

// DocumentFromFile builds the display record for an uploaded file.
func DocumentFromFile(f File, url string) ProjectDocument {
	return ProjectDocument{
		ID:      f.ID,
		Name:    f.Filename,
		Type:    ContentTypeFor(f.Mimetype),
		Size:    FormatSize(f.Size),
		AddedAt: f.CreatedAt,
		URL:     url,
	}
}

// ValidateName trims name and rejects blank values.
func ValidateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrEmptyName
	}
	return trimmed, nil
}
