package project

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a project's render.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusUploading  Status = "UPLOADING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether a render attempt ends in this status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// InFlight reports whether a render is running in this status.
func (s Status) InFlight() bool {
	return s == StatusUploading || s == StatusProcessing
}

// ErrNotFound is returned for unknown project ids.
var ErrNotFound = errors.New("project not found")

// Clip is one recorded segment bound to a slot.
type Clip struct {
	SlotID     string
	MediaPath  string
	Timestamp  time.Time
	Transcript string
}

// Project binds a recipe to the clips recorded for it.
type Project struct {
	ID        string
	RecipeID  string
	Title     string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	OutputURL string
	LastError string
	// Clips maps slot id to the current clip for that slot.
	Clips map[string]Clip
}

// HasOutput reports whether a finished render is available.
func (p *Project) HasOutput() bool {
	return p.OutputURL != ""
}
