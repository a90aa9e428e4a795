// Package models defines data structures shared across the capture pipeline.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Snapshot is one captured copy of the rendered listing at a specific
// page/scroll position. Snapshots are append-only: they are written exactly
// once per successful scroll step and never mutated.
type Snapshot struct {
	CollectionURL string `json:"collection_url" csv:"collection_url"`
	PageIndex     int    `json:"page_index" csv:"page_index"`
	ScrollIndex   int    `json:"scroll_index" csv:"scroll_index"`
	CapturedAt    string `json:"captured_at" csv:"captured_at"` // ISO-8601, fixed once per session
	Markup        string `json:"markup" csv:"-"`
}

// Key returns the uniqueness key of the snapshot. Two snapshots with the same
// key are the same logical capture regardless of markup content.
func (s *Snapshot) Key() string {
	return fmt.Sprintf("%s|%d|%d|%s", s.CollectionURL, s.PageIndex, s.ScrollIndex, s.CapturedAt)
}

// Validate ensures the snapshot carries the fields the store keys on.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if strings.TrimSpace(s.CollectionURL) == "" {
		return fmt.Errorf("snapshot missing collection URL")
	}
	if s.PageIndex < 0 {
		return fmt.Errorf("snapshot page index %d is negative", s.PageIndex)
	}
	if s.ScrollIndex < 0 {
		return fmt.Errorf("snapshot scroll index %d is negative", s.ScrollIndex)
	}
	if _, err := time.Parse(time.RFC3339, s.CapturedAt); err != nil {
		return fmt.Errorf("snapshot timestamp %q is not ISO-8601: %w", s.CapturedAt, err)
	}
	return nil
}

// SessionResult holds the overall outcome of one capture session run.
type SessionResult struct {
	FinalState        string
	StartTime         time.Time
	EndTime           time.Time
	PagesCaptured     int
	PagesSkipped      int
	SnapshotsWritten  int
	DuplicateInserts  int
	DegradedScrolls   int
	ReadinessTimeouts int
	PaginationRetries int
	Interventions     int
	StalledSnapshots  int
}
