package models

import "time"

// ExportStatus is the lifecycle state of a background export.
type ExportStatus string

const (
	ExportProcessing ExportStatus = "processing"
	ExportReady      ExportStatus = "ready"
	ExportError      ExportStatus = "error"
)

// ExportJob tracks one spreadsheet export. Only the job's own worker mutates it.
type ExportJob struct {
	ID        string       `json:"job_id"`
	Status    ExportStatus `json:"status"`
	Progress  int          `json:"progress"`
	File      string       `json:"file,omitempty"`
	Error     string       `json:"-"`
	CreatedAt time.Time    `json:"-"`
	UpdatedAt time.Time    `json:"-"`
}

// Done reports whether the job reached a terminal status.
func (j *ExportJob) Done() bool {
	return j.Status == ExportReady || j.Status == ExportError
}
