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

package planner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/internal/log"
	"github.com/teradata-labs/spindle/pkg/memory"
	"github.com/teradata-labs/spindle/pkg/sandbox"
)

// Planner drives a proposer and validates its output into an
// executable plan.
type Planner struct {
	llm                 LLM
	knownTools          map[string]bool
	similarityThreshold float64
	logger              *zap.Logger
}

// New builds a planner over the given proposer and tool set.
func New(llm LLM, toolNames []string, similarityThreshold float64) *Planner {
	known := make(map[string]bool, len(toolNames))
	for _, n := range toolNames {
		known[n] = true
	}
	return &Planner{
		llm:                 llm,
		knownTools:          known,
		similarityThreshold: similarityThreshold,
		logger:              log.Named("planner"),
	}
}

// Plan drafts and validates a plan for the request. Recipe matches at
// or above the similarity threshold seed the proposal; the best one
// that survives validation is recorded on the plan. budgetSeconds
// bounds the estimated cost (zero disables the check).
func (p *Planner) Plan(ctx context.Context, requestID string, req *ProposalRequest, matches []*memory.Match, budgetSeconds float64) (*Plan, error) {
	hint := p.pickHint(matches)
	if hint != nil {
		req = &ProposalRequest{
			Intent:       req.Intent,
			Sources:      req.Sources,
			Deliverables: req.Deliverables,
			RowLimit:     req.RowLimit,
			Hint:         hint,
		}
		p.logger.Debug("Seeding plan from recipe",
			zap.String("recipe_id", hint.Recipe.RecipeID),
			zap.Float64("similarity", hint.Similarity))
	}

	proposal, err := p.llm.ProposePlan(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("plan proposal failed: %w", err)
	}

	plan := NewPlan(requestID, proposal.Subtasks)
	plan.Rationale = proposal.Rationale
	if hint != nil {
		plan.RecipeID = hint.Recipe.RecipeID
	}
	if err := plan.Validate(p.knownTools, budgetSeconds); err != nil {
		return nil, err
	}
	p.logger.Info("Plan validated",
		zap.String("plan_id", plan.PlanID),
		zap.Int("subtasks", len(plan.Subtasks)),
		zap.Float64("estimated_cost_seconds", plan.EstimatedCost))
	return plan, nil
}

// pickHint returns the best match above the threshold, or nil.
// Matches arrive ranked from the store.
func (p *Planner) pickHint(matches []*memory.Match) *memory.Match {
	for _, m := range matches {
		if m.Similarity >= p.similarityThreshold {
			return m
		}
	}
	return nil
}

// ProposeRepair asks for corrected arguments for one failed call. The
// plan shape never changes, only arguments do.
func (p *Planner) ProposeRepair(ctx context.Context, call sandbox.ToolCall, obs *sandbox.Observation, sources []SourceInfo) (map[string]any, error) {
	if !obs.Retryable() {
		return nil, fmt.Errorf("observation is not repairable (status %s, kind %s)", obs.Status, obs.ErrorKind)
	}
	args, err := p.llm.Repair(ctx, call, obs, sources)
	if err != nil {
		return nil, fmt.Errorf("repair proposal failed: %w", err)
	}
	return args, nil
}
