// Package models provides the data structures for payloads used in the ingest service.
package models

import "time"

// BuildReport is the target model for a pipeline run report.
// It is the structure build reports are validated into before the data is
// inserted into the database.
type BuildReport struct {
	RunID      string     `json:"runId,omitempty"`
	Pipeline   string     `json:"pipeline,omitempty"`
	StartedAt  time.Time  `json:"startedAt,omitzero"`
	DurationMS int64      `json:"durationMs,omitempty"`
	ExitCode   int        `json:"exitCode,omitempty"`
	CacheHit   bool       `json:"cacheHit,omitempty"`
	Steps      []Step     `json:"steps,omitempty"`
	Artifacts  []Artifact `json:"artifacts,omitempty"`
	Error      string     `json:"error,omitempty"`

	// Extras contains any leftover fields that did not match the model.
	Extras map[string]any `json:"-" mapstructure:",remain"`
}

// Step is the recorded outcome of a single pipeline step.
type Step struct {
	Name       string `json:"name,omitempty"`
	DurationMS int64  `json:"durationMs,omitempty"`
	ExitCode   int    `json:"exitCode,omitempty"`
	Error      string `json:"error,omitempty"`

	Extras map[string]any `json:"-" mapstructure:",remain"`
}

// Artifact describes a packaged file produced by a pipeline run.
type Artifact struct {
	Name   string `json:"name,omitempty"`
	Size   int64  `json:"size,omitempty"`
	SHA256 string `json:"sha256,omitempty"`

	Extras map[string]any `json:"-" mapstructure:",remain"`
}
