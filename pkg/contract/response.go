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

package contract

// Status is the terminal state of one analysis request.
type Status string

const (
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusPartialSuccess Status = "partial_success"
)

// ErrorType categorizes a terminal failure.
type ErrorType string

const (
	ErrPolicyViolation ErrorType = "policy_violation"
	ErrGrounding       ErrorType = "grounding_error"
	ErrTimeout         ErrorType = "timeout"
	ErrResourceLimit   ErrorType = "resource_limit"
	ErrPlanInfeasible  ErrorType = "plan_infeasible"
	ErrInternal        ErrorType = "internal_error"
)

// ArtifactRef describes one produced artifact in the response.
type ArtifactRef struct {
	ArtifactID   string         `json:"artifact_id"`
	ArtifactType string         `json:"artifact_type"`
	ContentRef   string         `json:"content_ref"`
	ContentHash  string         `json:"content_hash"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	SizeBytes    int64          `json:"size_bytes"`
}

// Summary carries the natural-language result digest.
type Summary struct {
	KeyFindings []string `json:"key_findings"`
	Insights    string   `json:"insights"`
}

// Metrics reports execution measurements for one request.
type Metrics struct {
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
	RetriesCount         int     `json:"retries_count"`
	RecipeUsed           bool    `json:"recipe_used"`
}

// FailedToolCall records one exhausted subtask for diagnostics.
type FailedToolCall struct {
	TaskID   string `json:"task_id"`
	ToolName string `json:"tool_name"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// ResponseError is the structured failure detail of a non-completed
// response.
type ResponseError struct {
	ErrorType       ErrorType        `json:"error_type"`
	ErrorMessage    string           `json:"error_message"`
	FailedToolCalls []FailedToolCall `json:"failed_tool_calls,omitempty"`
}

// AnalysisResponse is the terminal result of one AnalysisRequest. A
// well-formed response is always returned, never a bare error.
type AnalysisResponse struct {
	RequestID   string         `json:"request_id"`
	Status      Status         `json:"status"`
	Artifacts   []ArtifactRef  `json:"artifacts"`
	Summary     Summary        `json:"summary"`
	Metrics     Metrics        `json:"metrics"`
	AuditLogRef string         `json:"audit_log_ref"`
	PlanRef     string         `json:"plan_ref,omitempty"`
	Error       *ResponseError `json:"error,omitempty"`
}
