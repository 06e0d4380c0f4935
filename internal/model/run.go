package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	RunStatusAborted  RunStatus = "aborted"
)

// RunMode describes how duplicates were resolved.
type RunMode string

const (
	RunModeAuto        RunMode = "auto"
	RunModeInteractive RunMode = "interactive"
	RunModeServe       RunMode = "serve"
)

// Run represents a single normalisation run over a set of source files.
type Run struct {
	ID        string     `json:"id"`
	Mode      RunMode    `json:"mode"`
	Status    RunStatus  `json:"status"`
	Sources   []string   `json:"sources"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	InputCount        int    `json:"input_count"`
	OutputCount       int    `json:"output_count"`
	DuplicateClusters int    `json:"duplicate_clusters"`
	CrossSource       int    `json:"cross_source"`
	Deleted           int    `json:"deleted"`
	Written           int    `json:"written"`
	Skipped           int    `json:"skipped"`
	OutputPath        string `json:"output_path,omitempty"`
	Aborted           bool   `json:"aborted,omitempty"`
}

// RunFilter narrows a run listing.
type RunFilter struct {
	Status       RunStatus `json:"status,omitempty"`
	Mode         RunMode   `json:"mode,omitempty"`
	CreatedAfter time.Time `json:"created_after,omitempty"`
	Limit        int       `json:"limit,omitempty"`
	Offset       int       `json:"offset,omitempty"`
}
