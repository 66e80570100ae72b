// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// JobState is the lifecycle state of a bulk-import job.
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobRunning   JobState = "RUNNING"
	JobCompleted JobState = "COMPLETED"
	JobFailed    JobState = "FAILED"
)

// Terminal reports whether the job will make no further progress.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobStatus is a snapshot of a bulk-import job.
type JobStatus struct {
	ID                 string     `json:"id"`
	Status             JobState   `json:"status"`
	ProcessedEntities  int        `json:"processedEntities"`
	ProcessedRelations int        `json:"processedRelations"`
	ProcessedImages    int        `json:"processedImages"`
	Failures           int        `json:"failures"`
	StartedAt          time.Time  `json:"startedAt"`
	FinishedAt         *time.Time `json:"finishedAt,omitempty"`
}

// NewURIEntry maps a submitted source reference id to the URI the
// graph assigned.
type NewURIEntry struct {
	SourceReferenceID string `json:"sourceReferenceId"`
	URI               string `json:"uri"`
}

// ImportErrorEntry is one per-entity failure from the import error
// log.
type ImportErrorEntry struct {
	Reason    string    `json:"reason"`
	Severity  string    `json:"severity"`
	Position  int       `json:"position"`
	Timestamp time.Time `json:"timestamp"`
}

// NewURIPage and ImportErrorPage are the keyset-paginated responses
// of the bulk endpoints. PageID is an opaque backend cursor; an empty
// PageID means the last page.
type NewURIPage struct {
	URIs   []NewURIEntry `json:"uris"`
	PageID string        `json:"pageId,omitempty"`
}

// ImportErrorPage is a page of the import error log.
type ImportErrorPage struct {
	Errors []ImportErrorEntry `json:"errors"`
	PageID string             `json:"pageId,omitempty"`
}
