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

package audit

import (
	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/internal/log"
	"github.com/teradata-labs/spindle/pkg/safety"
)

// Tracer wraps a Log with typed event emitters. Payloads pass through
// safety redaction before they are chained, so credentials in
// connection strings or tool arguments never reach disk.
type Tracer struct {
	log       *Log
	requestID string
}

// NewTracer creates a tracer bound to one request.
func NewTracer(l *Log, requestID string) *Tracer {
	return &Tracer{log: l, requestID: requestID}
}

// Log exposes the underlying chain (for verification or trace reads).
func (t *Tracer) Log() *Log {
	return t.log
}

func (t *Tracer) emit(kind EventKind, actor Actor, payload map[string]any) {
	redacted, _ := safety.Redact(payload).(map[string]any)
	if _, err := t.log.Append(t.requestID, kind, actor, redacted); err != nil {
		// An audit append failure must be loud: the step cannot be
		// considered complete without its entry.
		log.Error("audit append failed",
			zap.String("request_id", t.requestID),
			zap.String("event_kind", string(kind)),
			zap.Error(err))
	}
}

// RequestSubmitted records intake of a new request.
func (t *Tracer) RequestSubmitted(intent string, sourceCount int) {
	t.emit(EventRequestSubmitted, ActorSystem, map[string]any{
		"intent":       intent,
		"source_count": sourceCount,
	})
}

// PlanCreated records a validated plan.
func (t *Tracer) PlanCreated(planID string, subtasks int, estimatedSeconds float64, recipeID string) {
	payload := map[string]any{
		"plan_id":           planID,
		"subtask_count":     subtasks,
		"estimated_seconds": estimatedSeconds,
	}
	if recipeID != "" {
		payload["seeded_from_recipe"] = recipeID
	}
	t.emit(EventPlanCreated, ActorPlanner, payload)
}

// ToolCalled records one grounded tool call attempt.
func (t *Tracer) ToolCalled(callID, taskID, toolName string, attempt int, args map[string]any) {
	t.emit(EventToolCalled, ActorActor, map[string]any{
		"call_id":   callID,
		"task_id":   taskID,
		"tool_name": toolName,
		"attempt":   attempt,
		"arguments": args,
	})
}

// ObservationRecorded records the result of one tool call attempt.
func (t *Tracer) ObservationRecorded(observationID, callID, status, errorKind, errorMessage string, executionSeconds float64, rowCount int) {
	payload := map[string]any{
		"observation_id":    observationID,
		"call_id":           callID,
		"status":            status,
		"execution_seconds": executionSeconds,
	}
	if rowCount > 0 {
		payload["row_count"] = rowCount
	}
	if errorKind != "" {
		payload["error_kind"] = errorKind
	}
	if errorMessage != "" {
		payload["error_message"] = errorMessage
	}
	t.emit(EventObservationRecorded, ActorActor, payload)
}

// ArtifactGenerated records a produced artifact and its content hash.
func (t *Tracer) ArtifactGenerated(artifactID, kind, contentRef, contentHash string, sizeBytes int64) {
	t.emit(EventArtifactGenerated, ActorSystem, map[string]any{
		"artifact_id":  artifactID,
		"kind":         kind,
		"content_ref":  contentRef,
		"content_hash": contentHash,
		"size_bytes":   sizeBytes,
	})
}

// PolicyDecision records an allow or block decision with the matched
// rule.
func (t *Tracer) PolicyDecision(d safety.Decision, subject string) {
	decision := "allowed"
	if !d.Allowed {
		decision = "blocked"
	}
	payload := map[string]any{
		"decision": decision,
		"subject":  subject,
	}
	if d.Rule != "" {
		payload["rule"] = d.Rule
		payload["reason"] = d.Reason
		payload["severity"] = d.Severity
	}
	t.emit(EventPolicyDecision, ActorSafety, payload)
}

// RecipeRetrieved records a recipe-memory hit.
func (t *Tracer) RecipeRetrieved(recipeID, schemaFingerprint string, similarity float64) {
	t.emit(EventRecipeRetrieved, ActorPlanner, map[string]any{
		"recipe_id":          recipeID,
		"schema_fingerprint": schemaFingerprint,
		"similarity":         similarity,
	})
}

// RecipeStored records persistence of a successful plan as a recipe.
func (t *Tracer) RecipeStored(recipeID, schemaFingerprint, planID string) {
	t.emit(EventRecipeStored, ActorSystem, map[string]any{
		"recipe_id":          recipeID,
		"schema_fingerprint": schemaFingerprint,
		"plan_id":            planID,
	})
}

// RequestCompleted records the terminal status of the request.
func (t *Tracer) RequestCompleted(status string, durationSeconds float64, artifactCount, retries int) {
	t.emit(EventRequestCompleted, ActorSystem, map[string]any{
		"status":           status,
		"duration_seconds": durationSeconds,
		"artifact_count":   artifactCount,
		"retries":          retries,
	})
}
