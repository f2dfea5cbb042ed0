// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package contract defines the versioned JSON request/response schemas
// of the analysis API. Adding optional fields is a MINOR version bump;
// removing or retyping required fields is a MAJOR bump.
package contract

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the semantic version of the request/response schemas.
const SchemaVersion = "1.0.0"

// Request constraint ceilings and defaults.
const (
	MaxIntentLength = 4000

	DefaultRowLimit = 200_000
	MaxRowLimit     = 200_000

	DefaultTimeoutSeconds = 30
	MaxTimeoutSeconds     = 180
)

// SourceType discriminates data source descriptors.
type SourceType string

const (
	SourceSQL  SourceType = "sql"
	SourceCSV  SourceType = "csv"
	SourceJSON SourceType = "json"
)

// DeliverableKind identifies a requested output type.
type DeliverableKind string

const (
	DeliverableTable   DeliverableKind = "table"
	DeliverableChart   DeliverableKind = "chart"
	DeliverableReport  DeliverableKind = "report"
	DeliverableSummary DeliverableKind = "summary"
)

// DataSource describes one input data source. Exactly one of
// ConnectionString (sql) or FilePath (csv, json) is set depending on
// Type.
type DataSource struct {
	Type              SourceType `json:"type"`
	ConnectionString  string     `json:"connection_string,omitempty"`
	FilePath          string     `json:"file_path,omitempty"`
	Table             string     `json:"table,omitempty"`
	SchemaFingerprint string     `json:"schema_fingerprint,omitempty"`
}

// Constraints bounds resource usage for one request.
type Constraints struct {
	RowLimit       int `json:"row_limit"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

// PolicyOverrides carries per-request column access policy.
type PolicyOverrides struct {
	AllowedColumns  []string `json:"allowed_columns,omitempty"`
	BlockedPatterns []string `json:"blocked_patterns,omitempty"`
}

// AnalysisRequest is a user's natural-language analysis intent plus
// execution constraints. Immutable once submitted: the orchestrator
// copies values out and never mutates the caller's request.
type AnalysisRequest struct {
	RequestID    string            `json:"request_id"`
	Intent       string            `json:"intent"`
	DataSources  []DataSource      `json:"data_sources"`
	Constraints  Constraints       `json:"constraints"`
	Deliverables []DeliverableKind `json:"deliverables"`
	Policy       PolicyOverrides   `json:"policy"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Normalize fills defaults: a fresh request ID when absent, the default
// row limit and timeout, a summary deliverable when none requested, and
// the submission timestamp.
func (r *AnalysisRequest) Normalize() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	if r.Constraints.RowLimit == 0 {
		r.Constraints.RowLimit = DefaultRowLimit
	}
	if r.Constraints.TimeoutSeconds == 0 {
		r.Constraints.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if len(r.Deliverables) == 0 {
		r.Deliverables = []DeliverableKind{DeliverableTable, DeliverableSummary}
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
}

// Validate checks request shape against the schema. Call Normalize
// first; Validate does not fill defaults.
func (r *AnalysisRequest) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}
	if r.Intent == "" {
		return fmt.Errorf("intent must not be empty")
	}
	if len(r.Intent) > MaxIntentLength {
		return fmt.Errorf("intent exceeds %d characters", MaxIntentLength)
	}
	if len(r.DataSources) == 0 {
		return fmt.Errorf("at least one data source is required")
	}
	for i, ds := range r.DataSources {
		if err := ds.validate(); err != nil {
			return fmt.Errorf("data_sources[%d]: %w", i, err)
		}
	}
	if r.Constraints.RowLimit < 1 || r.Constraints.RowLimit > MaxRowLimit {
		return fmt.Errorf("row_limit must be in [1, %d]", MaxRowLimit)
	}
	if r.Constraints.TimeoutSeconds < 1 || r.Constraints.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("timeout_seconds must be in [1, %d]", MaxTimeoutSeconds)
	}
	for _, d := range r.Deliverables {
		switch d {
		case DeliverableTable, DeliverableChart, DeliverableReport, DeliverableSummary:
		default:
			return fmt.Errorf("unknown deliverable kind: %q", d)
		}
	}
	return nil
}

func (ds DataSource) validate() error {
	switch ds.Type {
	case SourceSQL:
		if ds.ConnectionString == "" {
			return fmt.Errorf("sql source requires connection_string")
		}
	case SourceCSV, SourceJSON:
		if ds.FilePath == "" {
			return fmt.Errorf("%s source requires file_path", ds.Type)
		}
	default:
		return fmt.Errorf("unknown source type: %q", ds.Type)
	}
	return nil
}

// Timeout returns the request's wall-clock budget as a duration.
func (r *AnalysisRequest) Timeout() time.Duration {
	return time.Duration(r.Constraints.TimeoutSeconds) * time.Second
}

// WantsDeliverable reports whether the request asked for the given kind.
func (r *AnalysisRequest) WantsDeliverable(kind DeliverableKind) bool {
	for _, d := range r.Deliverables {
		if d == kind {
			return true
		}
	}
	return false
}
