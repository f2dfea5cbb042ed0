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

// Package actor grounds plan subtasks into tool calls, executes them
// through the sandbox, and drives the bounded repair loop over
// repairable failures.
package actor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/internal/log"
	"github.com/teradata-labs/spindle/pkg/audit"
	"github.com/teradata-labs/spindle/pkg/planner"
	"github.com/teradata-labs/spindle/pkg/safety"
	"github.com/teradata-labs/spindle/pkg/sandbox"
)

// MaxAttempts bounds grounding attempts per subtask, the first try
// included.
const MaxAttempts = 3

// TaskState tracks one subtask through execution.
type TaskState string

const (
	TaskPending         TaskState = "pending"
	TaskExecuting       TaskState = "executing"
	TaskSucceeded       TaskState = "succeeded"
	TaskFailedRetryable TaskState = "failed_retryable"
	TaskFailedTerminal  TaskState = "failed_terminal"
)

// Result is the terminal outcome of one subtask.
type Result struct {
	Subtask     *planner.Subtask
	State       TaskState
	Observation *sandbox.Observation
	LastCall    sandbox.ToolCall
	Attempts    int
}

// Succeeded reports whether the subtask finished successfully.
func (r *Result) Succeeded() bool { return r.State == TaskSucceeded }

// Actor executes subtasks with safety checks, auditing and repair.
type Actor struct {
	executor *sandbox.Executor
	planner  *planner.Planner
	policy   *safety.Policy
	tracer   *audit.Tracer
	logger   *zap.Logger
}

// New builds an actor.
func New(executor *sandbox.Executor, p *planner.Planner, policy *safety.Policy, tracer *audit.Tracer) *Actor {
	return &Actor{
		executor: executor,
		planner:  p,
		policy:   policy,
		tracer:   tracer,
		logger:   log.Named("actor"),
	}
}

// Run executes one subtask to a terminal state. Repairable failures
// (sql_syntax, type_mismatch, missing_column) get planner-proposed
// argument repairs up to MaxAttempts total attempts; policy blocks,
// timeouts and resource limits are terminal on the first observation.
func (a *Actor) Run(ctx context.Context, st *planner.Subtask, sources []planner.SourceInfo, timeout time.Duration) *Result {
	res := &Result{Subtask: st, State: TaskPending}
	args := st.Args

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		call := sandbox.ToolCall{
			CallID:    uuid.New().String(),
			TaskID:    st.ID,
			ToolName:  st.Tool,
			Arguments: args,
			Attempt:   attempt,
			Timeout:   timeout,
		}
		res.LastCall = call
		res.Attempts = attempt
		res.State = TaskExecuting

		// Allow and block decisions both land in the audit trail.
		decision := a.checkCall(call)
		a.tracer.PolicyDecision(decision, st.ID)
		if !decision.Allowed {
			res.State = TaskFailedTerminal
			res.Observation = &sandbox.Observation{
				CallID:       call.CallID,
				Status:       sandbox.StatusError,
				ErrorMessage: "blocked by policy rule " + decision.Rule + ": " + decision.Reason,
			}
			return res
		}

		a.tracer.ToolCalled(call.CallID, call.TaskID, call.ToolName, call.Attempt, call.Arguments)
		obs := a.executor.Execute(ctx, call)
		res.Observation = obs
		a.tracer.ObservationRecorded(uuid.New().String(), call.CallID,
			string(obs.Status), string(obs.ErrorKind), obs.ErrorMessage,
			obs.DurationSeconds, obs.RowCount)

		if obs.Status == sandbox.StatusSuccess {
			res.State = TaskSucceeded
			return res
		}
		if !obs.Retryable() || attempt == MaxAttempts {
			res.State = TaskFailedTerminal
			return res
		}

		repaired, err := a.planner.ProposeRepair(ctx, call, obs, sources)
		if err != nil {
			a.logger.Debug("No repair available",
				zap.String("task_id", st.ID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			res.State = TaskFailedTerminal
			return res
		}
		a.logger.Info("Retrying subtask with repaired arguments",
			zap.String("task_id", st.ID),
			zap.Int("next_attempt", attempt+1),
			zap.String("error_kind", string(obs.ErrorKind)))
		res.State = TaskFailedRetryable
		args = repaired
	}
	res.State = TaskFailedTerminal
	return res
}

// checkCall applies query and column policy to the grounded arguments.
func (a *Actor) checkCall(call sandbox.ToolCall) safety.Decision {
	if q, ok := call.Arguments["query"].(string); ok {
		if d := a.policy.CheckQuery(q); !d.Allowed {
			return d
		}
	}
	var cols []string
	if c, ok := call.Arguments["column"].(string); ok && c != "" {
		cols = append(cols, c)
	}
	if raw, ok := call.Arguments["columns"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				cols = append(cols, s)
			}
		}
	}
	if len(cols) > 0 {
		if d := a.policy.CheckColumns(cols); !d.Allowed {
			return d
		}
	}
	return safety.Decision{Allowed: true}
}
