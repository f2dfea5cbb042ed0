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

	"github.com/teradata-labs/spindle/pkg/contract"
	"github.com/teradata-labs/spindle/pkg/fingerprint"
	"github.com/teradata-labs/spindle/pkg/memory"
	"github.com/teradata-labs/spindle/pkg/sandbox"
)

// SourceInfo is the schema context the proposer reasons over.
type SourceInfo struct {
	Name    string               `json:"name"`
	Type    contract.SourceType  `json:"type"`
	Table   string               `json:"table,omitempty"`
	Columns []fingerprint.Column `json:"columns"`
}

// ProposalRequest carries everything a proposer needs to draft a plan.
type ProposalRequest struct {
	Intent       string                     `json:"intent"`
	Sources      []SourceInfo               `json:"sources"`
	Deliverables []contract.DeliverableKind `json:"deliverables"`
	RowLimit     int                        `json:"row_limit"`
	Hint         *memory.Match              `json:"hint,omitempty"`
}

// Proposal is a drafted, not yet validated, set of subtasks.
type Proposal struct {
	Subtasks  []*Subtask `json:"subtasks"`
	Rationale string     `json:"rationale,omitempty"`
}

// LLM is the narrow proposer interface the planner depends on. The
// Anthropic client and the deterministic rule proposer both satisfy
// it.
type LLM interface {
	// ProposePlan drafts subtasks for an intent over the given sources.
	ProposePlan(ctx context.Context, req *ProposalRequest) (*Proposal, error)

	// Repair proposes corrected arguments for one failed call based on
	// its observation. It fixes arguments only; it never restructures
	// the plan.
	Repair(ctx context.Context, call sandbox.ToolCall, obs *sandbox.Observation, sources []SourceInfo) (map[string]any, error)
}
