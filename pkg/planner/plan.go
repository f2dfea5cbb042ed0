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

// Package planner turns an analysis intent into a validated DAG of
// tool subtasks and proposes argument repairs when execution
// observations report repairable failures.
package planner

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teradata-labs/spindle/pkg/contract"
)

// ErrPlanInfeasible means no plan can satisfy the request within its
// constraints.
var ErrPlanInfeasible = errors.New("plan infeasible")

// State tracks a plan through its lifecycle.
type State string

const (
	StateDraft     State = "draft"
	StateValidated State = "validated"
	StateExecuting State = "executing"
	StateCompleted State = "completed"
	StateAbandoned State = "abandoned"
)

var stateTransitions = map[State][]State{
	StateDraft:     {StateValidated, StateAbandoned},
	StateValidated: {StateExecuting, StateAbandoned},
	StateExecuting: {StateCompleted, StateAbandoned},
}

// Subtask is one node of the plan DAG. Invariants are free-text
// constraints the proposer asserts about the step; CostSeconds is
// filled from the per-tool estimate during validation when the
// proposer leaves it zero.
type Subtask struct {
	ID          string                   `json:"id"`
	Tool        string                   `json:"tool"`
	Description string                   `json:"description,omitempty"`
	Args        map[string]any           `json:"args"`
	DependsOn   []string                 `json:"depends_on,omitempty"`
	Invariants  []string                 `json:"invariants,omitempty"`
	CostSeconds float64                  `json:"estimated_cost_seconds,omitempty"`
	Deliverable contract.DeliverableKind `json:"deliverable,omitempty"`
}

// Plan is a validated DAG of subtasks with a cost estimate.
type Plan struct {
	PlanID        string     `json:"plan_id"`
	RequestID     string     `json:"request_id"`
	State         State      `json:"state"`
	Subtasks      []*Subtask `json:"subtasks"`
	EstimatedCost float64    `json:"estimated_cost_seconds"`
	RecipeID      string     `json:"recipe_id,omitempty"`
	Rationale     string     `json:"rationale,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`

	executionOrder []string
	subtasksByID   map[string]*Subtask
}

// toolCosts are per-tool time estimates in seconds, used to reject
// plans that cannot finish inside the request budget.
var toolCosts = map[string]float64{
	"sql.run":          2.0,
	"df.transform":     1.0,
	"plot.render":      1.5,
	"profiler.analyze": 0.5,
}

// NewPlan wraps proposed subtasks in a draft plan.
func NewPlan(requestID string, subtasks []*Subtask) *Plan {
	return &Plan{
		PlanID:    uuid.New().String(),
		RequestID: requestID,
		State:     StateDraft,
		Subtasks:  subtasks,
		CreatedAt: time.Now().UTC(),
	}
}

// Transition moves the plan to the next state, rejecting moves the
// state machine does not allow.
func (p *Plan) Transition(next State) error {
	for _, allowed := range stateTransitions[p.State] {
		if allowed == next {
			p.State = next
			return nil
		}
	}
	return fmt.Errorf("invalid plan transition: %s -> %s", p.State, next)
}

// Validate checks the DAG (unique IDs, known tools, resolvable
// dependencies, acyclic), computes the cost estimate, and verifies the
// plan fits inside budget seconds. A zero budget skips the cost check.
func (p *Plan) Validate(knownTools map[string]bool, budget float64) error {
	if len(p.Subtasks) == 0 {
		return fmt.Errorf("%w: empty plan", ErrPlanInfeasible)
	}

	p.subtasksByID = make(map[string]*Subtask, len(p.Subtasks))
	var cost float64
	for _, st := range p.Subtasks {
		if st.ID == "" {
			return fmt.Errorf("%w: subtask without id", ErrPlanInfeasible)
		}
		if _, dup := p.subtasksByID[st.ID]; dup {
			return fmt.Errorf("%w: duplicate subtask id %s", ErrPlanInfeasible, st.ID)
		}
		if !knownTools[st.Tool] {
			return fmt.Errorf("%w: unknown tool %s in subtask %s", ErrPlanInfeasible, st.Tool, st.ID)
		}
		p.subtasksByID[st.ID] = st
		if st.CostSeconds == 0 {
			st.CostSeconds = toolCosts[st.Tool]
		}
		cost += st.CostSeconds
	}
	for _, st := range p.Subtasks {
		for _, dep := range st.DependsOn {
			if _, ok := p.subtasksByID[dep]; !ok {
				return fmt.Errorf("%w: subtask %s depends on unknown subtask %s", ErrPlanInfeasible, st.ID, dep)
			}
		}
	}

	order, err := topoSort(p.Subtasks)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlanInfeasible, err)
	}
	p.executionOrder = order
	p.EstimatedCost = cost

	if budget > 0 && cost > budget {
		return fmt.Errorf("%w: estimated cost %.1fs exceeds budget %.1fs", ErrPlanInfeasible, cost, budget)
	}
	return p.Transition(StateValidated)
}

// ExecutionOrder returns subtask IDs in topological order. Valid only
// after Validate.
func (p *Plan) ExecutionOrder() []string { return p.executionOrder }

// Subtask returns a subtask by ID. Valid only after Validate.
func (p *Plan) Subtask(id string) *Subtask { return p.subtasksByID[id] }

// Ready returns the subtasks whose dependencies are all in done.
func (p *Plan) Ready(done map[string]bool) []*Subtask {
	var out []*Subtask
	for _, id := range p.executionOrder {
		if done[id] {
			continue
		}
		st := p.subtasksByID[id]
		ready := true
		for _, dep := range st.DependsOn {
			if !done[dep] {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, st)
		}
	}
	return out
}

// Structure returns a compact shape of the plan suitable for recipe
// storage: tool sequence and dependency edges, no literal arguments.
func (p *Plan) Structure() map[string]any {
	steps := make([]map[string]any, len(p.Subtasks))
	for i, st := range p.Subtasks {
		steps[i] = map[string]any{
			"id":         st.ID,
			"tool":       st.Tool,
			"depends_on": st.DependsOn,
		}
		if st.Deliverable != "" {
			steps[i]["deliverable"] = string(st.Deliverable)
		}
	}
	return map[string]any{"steps": steps}
}

// topoSort is Kahn's algorithm over the subtask DAG.
func topoSort(subtasks []*Subtask) ([]string, error) {
	indegree := make(map[string]int, len(subtasks))
	dependents := make(map[string][]string)
	for _, st := range subtasks {
		indegree[st.ID] = len(st.DependsOn)
		for _, dep := range st.DependsOn {
			dependents[dep] = append(dependents[dep], st.ID)
		}
	}

	var queue []string
	for _, st := range subtasks {
		if indegree[st.ID] == 0 {
			queue = append(queue, st.ID)
		}
	}
	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(order) != len(subtasks) {
		return nil, fmt.Errorf("dependency cycle detected")
	}
	return order, nil
}
