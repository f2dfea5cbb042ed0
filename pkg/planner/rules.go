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
	"strings"

	"github.com/teradata-labs/spindle/pkg/contract"
	"github.com/teradata-labs/spindle/pkg/sandbox"
)

// RuleProposer is a deterministic keyword-driven proposer. It serves
// as the fallback when no LLM API key is configured and as the
// predictable proposer in tests.
type RuleProposer struct{}

// NewRuleProposer returns the deterministic proposer.
func NewRuleProposer() *RuleProposer { return &RuleProposer{} }

// aggregationWords is ordered: the first cue found in the intent wins,
// so proposals stay deterministic.
var aggregationWords = []struct {
	word string
	agg  string
}{
	{"total", "sum"},
	{"sum", "sum"},
	{"average", "avg"},
	{"mean", "avg"},
	{"avg", "avg"},
	{"how many", "count"},
	{"count", "count"},
	{"minimum", "min"},
	{"lowest", "min"},
	{"maximum", "max"},
	{"highest", "max"},
	{"top", "max"},
}

var profileWords = []string{"profile", "describe", "schema", "quality", "distribution", "statistics", "summarize the data"}

var chartWords = []string{"chart", "plot", "graph", "visualize", "trend", "over time"}

// ProposePlan maps intent keywords onto a load → transform → render
// pipeline over the first source.
func (r *RuleProposer) ProposePlan(ctx context.Context, req *ProposalRequest) (*Proposal, error) {
	if len(req.Sources) == 0 {
		return nil, fmt.Errorf("no sources to plan over")
	}
	intent := strings.ToLower(req.Intent)
	src := req.Sources[0]

	var subtasks []*Subtask
	rationale := []string{}

	if containsAny(intent, profileWords) {
		for _, s := range req.Sources {
			subtasks = append(subtasks, &Subtask{
				ID:          "profile_" + s.Name,
				Tool:        "profiler.analyze",
				Description: "profile source " + s.Name,
				Args:        map[string]any{"source": s.Name},
				Deliverable: contract.DeliverableSummary,
			})
		}
		rationale = append(rationale, "intent asks for data profiling")
		return &Proposal{Subtasks: subtasks, Rationale: strings.Join(rationale, "; ")}, nil
	}

	dimension := pickDimension(src, intent)
	measure := pickMeasure(src, intent)
	aggregation := pickAggregation(intent)

	loadID := "load_" + src.Name
	if src.Type == contract.SourceSQL {
		subtasks = append(subtasks, &Subtask{
			ID:          loadID,
			Tool:        "sql.run",
			Description: "load rows from " + src.Name,
			Args: map[string]any{
				"source": src.Name,
				"query":  buildSelect(src, req.RowLimit),
				"output": loadID,
			},
			Invariants: []string{"query is read-only"},
		})
		rationale = append(rationale, "load "+src.Name+" via read-only query")
	} else {
		// File sources arrive pre-loaded under the source name; a
		// passthrough select keeps downstream naming uniform.
		subtasks = append(subtasks, &Subtask{
			ID:          loadID,
			Tool:        "df.transform",
			Description: "select working columns from " + src.Name,
			Args: map[string]any{
				"operation": "select",
				"input":     src.Name,
				"output":    loadID,
				"columns":   columnNames(src),
			},
		})
		rationale = append(rationale, "use pre-loaded file table "+src.Name)
	}

	lastID := loadID
	if aggregation != "" && dimension != "" {
		aggID := "aggregate_" + src.Name
		args := map[string]any{
			"operation":   "aggregate",
			"input":       lastID,
			"output":      aggID,
			"columns":     []any{dimension},
			"aggregation": aggregation,
		}
		if aggregation != "count" {
			if measure == "" {
				return nil, fmt.Errorf("intent needs a numeric column for %s but %s has none", aggregation, src.Name)
			}
			args["column"] = measure
		}
		subtasks = append(subtasks, &Subtask{
			ID:          aggID,
			Tool:        "df.transform",
			Description: fmt.Sprintf("%s of %s by %s", aggregation, measure, dimension),
			Args:        args,
			DependsOn:   []string{lastID},
			Invariants:  []string{"aggregate after load"},
			Deliverable: contract.DeliverableTable,
		})
		rationale = append(rationale, fmt.Sprintf("aggregate %s by %s", measure, dimension))
		lastID = aggID
	} else {
		// No aggregation cue: the loaded table is itself the result.
		subtasks[len(subtasks)-1].Deliverable = contract.DeliverableTable
	}

	wantsChart := containsAny(intent, chartWords) || hasDeliverable(req.Deliverables, contract.DeliverableChart)
	if wantsChart {
		yCol := measure
		if aggregation != "" {
			yCol = aggregation
			if aggregation != "count" && measure != "" {
				yCol = aggregation + "_" + measure
			}
		}
		if dimension == "" || yCol == "" {
			return nil, fmt.Errorf("cannot chart %s: need a category and a numeric column", src.Name)
		}
		subtasks = append(subtasks, &Subtask{
			ID:          "chart_" + src.Name,
			Tool:        "plot.render",
			Description: "render chart of " + yCol + " by " + dimension,
			Args: map[string]any{
				"input": lastID,
				"type":  pickChartType(intent),
				"x_col": dimension,
				"y_col": yCol,
				"title": req.Intent,
			},
			DependsOn:   []string{lastID},
			Invariants:  []string{"chart reads the final table"},
			Deliverable: contract.DeliverableChart,
		})
		rationale = append(rationale, "render requested chart")
	}

	return &Proposal{Subtasks: subtasks, Rationale: strings.Join(rationale, "; ")}, nil
}

// Repair applies mechanical fixes for the classified error kinds.
func (r *RuleProposer) Repair(ctx context.Context, call sandbox.ToolCall, obs *sandbox.Observation, sources []SourceInfo) (map[string]any, error) {
	args := make(map[string]any, len(call.Arguments))
	for k, v := range call.Arguments {
		args[k] = v
	}

	switch obs.ErrorKind {
	case sandbox.ErrMissingColumn:
		bad := extractColumnName(obs.ErrorMessage)
		if bad == "" {
			return nil, fmt.Errorf("cannot identify the missing column from: %s", obs.ErrorMessage)
		}
		repl := closestColumn(bad, sources)
		if repl == "" {
			return nil, fmt.Errorf("no column resembling %q exists in any source", bad)
		}
		replaced := false
		for k, v := range args {
			if s, ok := v.(string); ok && strings.Contains(s, bad) {
				args[k] = strings.ReplaceAll(s, bad, repl)
				replaced = true
			}
		}
		if !replaced {
			return nil, fmt.Errorf("column %q not present in call arguments", bad)
		}
		return args, nil

	case sandbox.ErrSQLSyntax:
		q, ok := args["query"].(string)
		if !ok {
			return nil, fmt.Errorf("syntax error on a call without a query argument")
		}
		fixed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(q), ";"))
		if fixed == q {
			return nil, fmt.Errorf("no mechanical fix for syntax error: %s", obs.ErrorMessage)
		}
		args["query"] = fixed
		return args, nil

	case sandbox.ErrTypeMismatch:
		// Comparisons against a non-numeric column degrade to
		// substring matching; aggregations degrade to count.
		if op, ok := args["op"].(string); ok && op != "contains" {
			args["op"] = "contains"
			return args, nil
		}
		if agg, ok := args["aggregation"].(string); ok && agg != "count" {
			args["aggregation"] = "count"
			delete(args, "column")
			return args, nil
		}
		return nil, fmt.Errorf("no mechanical fix for type mismatch: %s", obs.ErrorMessage)
	}
	return nil, fmt.Errorf("error kind %s is not repairable", obs.ErrorKind)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func hasDeliverable(kinds []contract.DeliverableKind, want contract.DeliverableKind) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

func pickAggregation(intent string) string {
	for _, c := range aggregationWords {
		if strings.Contains(intent, c.word) {
			return c.agg
		}
	}
	return ""
}

// pickDimension prefers a string column named in the intent, falling
// back to the first string column.
func pickDimension(src SourceInfo, intent string) string {
	var fallback string
	for _, c := range src.Columns {
		if isNumericType(c.Type) {
			continue
		}
		if strings.Contains(intent, strings.ToLower(c.Name)) {
			return c.Name
		}
		if fallback == "" {
			fallback = c.Name
		}
	}
	return fallback
}

// pickMeasure prefers a numeric column named in the intent, falling
// back to the first numeric column.
func pickMeasure(src SourceInfo, intent string) string {
	var fallback string
	for _, c := range src.Columns {
		if !isNumericType(c.Type) {
			continue
		}
		if strings.Contains(intent, strings.ToLower(c.Name)) {
			return c.Name
		}
		if fallback == "" {
			fallback = c.Name
		}
	}
	return fallback
}

func pickChartType(intent string) string {
	switch {
	case strings.Contains(intent, "trend"), strings.Contains(intent, "over time"), strings.Contains(intent, "line"):
		return "line"
	case strings.Contains(intent, "scatter"), strings.Contains(intent, "correlation"):
		return "scatter"
	case strings.Contains(intent, "share"), strings.Contains(intent, "proportion"), strings.Contains(intent, "pie"):
		return "pie"
	default:
		return "bar"
	}
}

func isNumericType(t string) bool {
	switch strings.ToLower(t) {
	case "integer", "float", "int", "int32", "int64", "bigint", "real", "double", "numeric", "decimal", "float64":
		return true
	}
	return false
}

func buildSelect(src SourceInfo, rowLimit int) string {
	if rowLimit <= 0 {
		rowLimit = contract.DefaultRowLimit
	}
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", src.Table, rowLimit)
}

func columnNames(src SourceInfo) []any {
	out := make([]any, len(src.Columns))
	for i, c := range src.Columns {
		out[i] = c.Name
	}
	return out
}

// extractColumnName pulls the offending identifier out of driver error
// text like `no such column: revenu`.
func extractColumnName(msg string) string {
	for _, marker := range []string{"no such column: ", "column not found: ", "unknown column "} {
		if i := strings.Index(strings.ToLower(msg), marker); i >= 0 {
			rest := msg[i+len(marker):]
			rest = strings.Trim(rest, "'\"` ")
			if j := strings.IndexAny(rest, " '\"`,)"); j > 0 {
				rest = rest[:j]
			}
			return rest
		}
	}
	// postgres: column "revenu" does not exist
	if i := strings.Index(msg, `column "`); i >= 0 {
		rest := msg[i+len(`column "`):]
		if j := strings.Index(rest, `"`); j > 0 {
			return rest[:j]
		}
	}
	return ""
}

// closestColumn finds the source column with the smallest edit
// distance to name, within a distance budget of half the name length.
func closestColumn(name string, sources []SourceInfo) string {
	best := ""
	bestDist := len(name)/2 + 1
	for _, src := range sources {
		for _, c := range src.Columns {
			d := editDistance(strings.ToLower(name), strings.ToLower(c.Name))
			if d < bestDist {
				bestDist = d
				best = c.Name
			}
		}
	}
	return best
}

func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
