package projects

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Timestamp decodes the ISO strings the backend emits. Values without a zone
// are naive UTC datetimes.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses any of the accepted layouts. Blank input yields the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// first returns the first non-zero timestamp.
func first(ts ...Timestamp) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t.Time
		}
	}
	return time.Time{}
}

func firstString(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

type projectWire struct {
	ID          string                      `json:"id"`
	MongoID     string                      `json:"_id"`
	Name        string                      `json:"name"`
	Description *string                     `json:"description"`
	Category    string                      `json:"category"`
	Priority    string                      `json:"priority"`
	Type        ContentType                 `json:"type"`
	Tags        Collection[string]          `json:"tags"`
	TrustScore  *float64                    `json:"trustScore"`
	TrustScoreS *float64                    `json:"trust_score"`
	Files       int                         `json:"files"`
	Created     Timestamp                   `json:"created"`
	LastUpdated Timestamp                   `json:"lastUpdated"`
	History     Collection[AnalysisResult]  `json:"history"`
	Documents   Collection[ProjectDocument] `json:"documents"`
	Notes       Collection[Note]            `json:"notes"`
	ActivityLog Collection[ActivityLog]     `json:"activityLog"`
}

// UnmarshalJSON accepts both the serialised response model and raw documents
// (`_id`, `trust_score`).
func (p *Project) UnmarshalJSON(b []byte) error {
	var w projectWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*p = Project{
		ID:          ProjectID(firstString(w.ID, w.MongoID)),
		Name:        w.Name,
		Category:    w.Category,
		Priority:    w.Priority,
		Type:        w.Type,
		Tags:        w.Tags,
		Files:       w.Files,
		Created:     w.Created.Time,
		LastUpdated: w.LastUpdated.Time,
		History:     w.History,
		Documents:   w.Documents,
		Notes:       w.Notes,
		ActivityLog: w.ActivityLog,
	}
	if w.Description != nil {
		p.Description = *w.Description
	}
	switch {
	case w.TrustScore != nil:
		p.TrustScore = *w.TrustScore
	case w.TrustScoreS != nil:
		p.TrustScore = *w.TrustScoreS
	}
	return nil
}

// MarshalJSON adds the derived status.
func (p Project) MarshalJSON() ([]byte, error) {
	type plain Project
	return json.Marshal(struct {
		plain
		Status Status `json:"status"`
	}{plain: plain(p), Status: p.Status()})
}

func (n *Note) UnmarshalJSON(b []byte) error {
	var w struct {
		ID         string    `json:"id"`
		Content    string    `json:"content"`
		CreatedAt  Timestamp `json:"createdAt"`
		CreatedAtS Timestamp `json:"created_at"`
		UpdatedAt  Timestamp `json:"updatedAt"`
		UpdatedAtS Timestamp `json:"updated_at"`
		Tags       []string  `json:"tags"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*n = Note{
		ID:        w.ID,
		Content:   w.Content,
		CreatedAt: first(w.CreatedAt, w.CreatedAtS),
		UpdatedAt: first(w.UpdatedAt, w.UpdatedAtS),
		Tags:      w.Tags,
	}
	return nil
}

func (d *ProjectDocument) UnmarshalJSON(b []byte) error {
	var w struct {
		ID       string      `json:"id"`
		Name     string      `json:"name"`
		Type     ContentType `json:"type"`
		URL      string      `json:"url"`
		Size     string      `json:"size"`
		AddedAt  Timestamp   `json:"addedAt"`
		AddedAtS Timestamp   `json:"added_at"`
		Score    *float64    `json:"trustScore"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*d = ProjectDocument{
		ID:         w.ID,
		Name:       w.Name,
		Type:       w.Type,
		URL:        w.URL,
		Size:       w.Size,
		AddedAt:    first(w.AddedAt, w.AddedAtS),
		TrustScore: w.Score,
	}
	return nil
}

func (a *ActivityLog) UnmarshalJSON(b []byte) error {
	var w struct {
		ID        string    `json:"id"`
		Action    string    `json:"action"`
		Timestamp Timestamp `json:"timestamp"`
		Details   string    `json:"details"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*a = ActivityLog{ID: w.ID, Action: w.Action, Timestamp: w.Timestamp.Time, Details: w.Details}
	return nil
}

func (r *AnalysisResult) UnmarshalJSON(b []byte) error {
	var w struct {
		ID         string      `json:"id"`
		Content    string      `json:"content"`
		AIResponse string      `json:"aiResponse"`
		TrustScore float64     `json:"trustScore"`
		Status     Status      `json:"status"`
		Timestamp  Timestamp   `json:"timestamp"`
		Type       ContentType `json:"type"`
		FileName   string      `json:"fileName"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = AnalysisResult{
		ID:         w.ID,
		Content:    w.Content,
		AIResponse: w.AIResponse,
		TrustScore: w.TrustScore,
		Status:     w.Status,
		Timestamp:  w.Timestamp.Time,
		Type:       w.Type,
		FileName:   w.FileName,
	}
	return nil
}

func (f *File) UnmarshalJSON(b []byte) error {
	var w struct {
		ID            string    `json:"id"`
		MongoID       string    `json:"_id"`
		ProjectID     string    `json:"project_id"`
		Filename      string    `json:"filename"`
		Mimetype      string    `json:"mimetype"`
		Size          int64     `json:"size"`
		ExtractedText string    `json:"extracted_text"`
		CreatedAt     Timestamp `json:"created_at"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*f = File{
		ID:            firstString(w.ID, w.MongoID),
		ProjectID:     w.ProjectID,
		Filename:      w.Filename,
		Mimetype:      w.Mimetype,
		Size:          w.Size,
		ExtractedText: w.ExtractedText,
		CreatedAt:     w.CreatedAt.Time,
	}
	return nil
}
