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

// Package agent orchestrates one analysis request end to end:
// validate, safety pre-check, source resolution and fingerprinting,
// recipe lookup, planning, dependency-ordered execution with bounded
// parallelism, artifact collection, and recipe persistence.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/spindle/internal/log"
	"github.com/teradata-labs/spindle/pkg/artifact"
	"github.com/teradata-labs/spindle/pkg/audit"
	"github.com/teradata-labs/spindle/pkg/contract"
	"github.com/teradata-labs/spindle/pkg/fingerprint"
	"github.com/teradata-labs/spindle/pkg/memory"
	"github.com/teradata-labs/spindle/pkg/planner"
	"github.com/teradata-labs/spindle/pkg/safety"
	"github.com/teradata-labs/spindle/pkg/sandbox"
	"github.com/teradata-labs/spindle/pkg/source"
	"github.com/teradata-labs/spindle/pkg/tool"
	"github.com/teradata-labs/spindle/pkg/tool/builtin"

	actorpkg "github.com/teradata-labs/spindle/pkg/actor"
)

// maxParallelSubtasks bounds how many independent subtasks run at
// once within a single request.
const maxParallelSubtasks = 4

// Config wires an agent's collaborators.
type Config struct {
	// SafetyConfig is the base policy; per-request overrides merge
	// into it.
	SafetyConfig safety.Config
	// Memory is the recipe store. Nil disables recipe reuse.
	Memory *memory.Store
	// Artifacts stores analysis outputs.
	Artifacts *artifact.Store
	// AuditLog receives the hash-chained event trail.
	AuditLog *audit.Log
	// LLM proposes plans and repairs. Nil falls back to the
	// deterministic rule proposer.
	LLM planner.LLM
	// SimilarityThreshold gates recipe seeding (default 0: top match
	// always seeds).
	SimilarityThreshold float64
	// TopK caps recipe retrieval (default 3).
	TopK int
}

// ProgressFunc receives coarse progress updates during Analyze.
// stage names the phase; fraction advances from 0 to 1.
type ProgressFunc func(stage string, fraction float64)

// Agent executes analysis requests.
type Agent struct {
	cfg      Config
	logger   *zap.Logger
	progress ProgressFunc
}

// New builds an agent. Artifacts and AuditLog are required.
func New(cfg Config) (*Agent, error) {
	if cfg.Artifacts == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if cfg.AuditLog == nil {
		return nil, fmt.Errorf("audit log is required")
	}
	if cfg.LLM == nil {
		cfg.LLM = planner.NewRuleProposer()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	return &Agent{cfg: cfg, logger: log.Named("agent")}, nil
}

// SetProgress installs a progress callback. Not safe to call while
// requests are in flight.
func (a *Agent) SetProgress(fn ProgressFunc) {
	a.progress = fn
}

func (a *Agent) reportProgress(stage string, fraction float64) {
	if a.progress != nil {
		a.progress(stage, fraction)
	}
}

// Analyze runs one request to a terminal response. All failures are
// caught at this boundary: the caller always receives a well-formed
// response, never a raw error or panic.
func (a *Agent) Analyze(ctx context.Context, req *contract.AnalysisRequest) (resp *contract.AnalysisResponse) {
	start := time.Now()

	// The request is immutable after submission; work on a copy.
	r := *req
	r.Normalize()

	resp = &contract.AnalysisResponse{
		RequestID:   r.RequestID,
		Status:      contract.StatusFailed,
		Artifacts:   []contract.ArtifactRef{},
		AuditLogRef: a.cfg.AuditLog.Path(),
	}
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("Analysis panicked",
				zap.String("request_id", r.RequestID),
				zap.Any("panic", rec))
			resp.Status = contract.StatusFailed
			resp.Error = &contract.ResponseError{
				ErrorType:    contract.ErrInternal,
				ErrorMessage: "internal error during analysis",
			}
		}
		resp.Metrics.ExecutionTimeSeconds = time.Since(start).Seconds()
	}()

	if err := r.Validate(); err != nil {
		resp.Error = &contract.ResponseError{
			ErrorType:    contract.ErrPlanInfeasible,
			ErrorMessage: "invalid request: " + err.Error(),
		}
		return resp
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout())
	defer cancel()

	tracer := audit.NewTracer(a.cfg.AuditLog, r.RequestID)
	tracer.RequestSubmitted(r.Intent, len(r.DataSources))
	defer func() {
		tracer.RequestCompleted(string(resp.Status),
			time.Since(start).Seconds(), len(resp.Artifacts), resp.Metrics.RetriesCount)
	}()

	policy := a.policyFor(&r)

	// Intent pre-check fails fast, before any source is touched.
	// Every decision is logged, allowed ones included.
	intentDecision := policy.CheckIntent(r.Intent)
	tracer.PolicyDecision(intentDecision, "intent")
	if !intentDecision.Allowed {
		resp.Error = &contract.ResponseError{
			ErrorType:    contract.ErrPolicyViolation,
			ErrorMessage: fmt.Sprintf("intent blocked by rule %s: %s", intentDecision.Rule, intentDecision.Reason),
		}
		return resp
	}

	// The policy's resource ceilings can sit below the contract's; a
	// request over them never starts executing.
	limitDecision := policy.CheckLimits(r.Constraints.RowLimit, r.Constraints.TimeoutSeconds)
	tracer.PolicyDecision(limitDecision, "constraints")
	if !limitDecision.Allowed {
		resp.Error = &contract.ResponseError{
			ErrorType:    contract.ErrPolicyViolation,
			ErrorMessage: fmt.Sprintf("constraints blocked by rule %s: %s", limitDecision.Rule, limitDecision.Reason),
		}
		return resp
	}

	a.reportProgress("validated", 0.1)

	env := builtin.NewEnv(r.RequestID, policy, a.cfg.Artifacts, r.Constraints.RowLimit)
	defer env.Close()

	infos, combinedFP, err := a.resolveSources(ctx, env, &r)
	if err != nil {
		resp.Error = &contract.ResponseError{
			ErrorType:    contract.ErrGrounding,
			ErrorMessage: err.Error(),
		}
		return resp
	}

	a.reportProgress("sources_resolved", 0.2)

	matches := a.lookupRecipes(ctx, tracer, combinedFP, r.Intent)

	registry := tool.NewRegistry()
	builtin.Register(registry, env)
	pl := planner.New(a.cfg.LLM, registry.List(), a.cfg.SimilarityThreshold)

	plan, err := pl.Plan(ctx, r.RequestID, &planner.ProposalRequest{
		Intent:       r.Intent,
		Sources:      infos,
		Deliverables: r.Deliverables,
		RowLimit:     r.Constraints.RowLimit,
	}, matches, float64(r.Constraints.TimeoutSeconds))
	if err != nil {
		errType := contract.ErrInternal
		if errors.Is(err, planner.ErrPlanInfeasible) {
			errType = contract.ErrPlanInfeasible
		}
		resp.Error = &contract.ResponseError{ErrorType: errType, ErrorMessage: err.Error()}
		return resp
	}
	tracer.PlanCreated(plan.PlanID, len(plan.Subtasks), plan.EstimatedCost, plan.RecipeID)
	resp.PlanRef = plan.PlanID
	resp.Metrics.RecipeUsed = plan.RecipeID != ""
	if plan.RecipeID != "" && a.cfg.Memory != nil {
		if err := a.cfg.Memory.Touch(ctx, plan.RecipeID); err != nil {
			a.logger.Warn("Recipe touch failed",
				zap.String("recipe_id", plan.RecipeID), zap.Error(err))
		}
	}

	if err := plan.Transition(planner.StateExecuting); err != nil {
		resp.Error = &contract.ResponseError{ErrorType: contract.ErrInternal, ErrorMessage: err.Error()}
		return resp
	}

	a.reportProgress("planned", 0.3)

	act := actorpkg.New(sandbox.NewExecutor(registry), pl, policy, tracer)
	results := a.executePlan(ctx, act, plan, infos)
	a.reportProgress("executed", 0.9)

	// Response assembly runs on a detached context: when execution
	// exhausts the wall-clock budget, artifacts already written must
	// still reach the caller as partial results.
	execErr := ctx.Err()
	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer finishCancel()

	a.collectDeliverables(finishCtx, tracer, env, plan, results, &r, resp)
	a.finishResponse(finishCtx, execErr, tracer, plan, results, combinedFP, &r, resp)
	a.reportProgress("finished", 1.0)
	return resp
}

// policyFor merges per-request overrides into the base safety config.
func (a *Agent) policyFor(r *contract.AnalysisRequest) *safety.Policy {
	cfg := a.cfg.SafetyConfig
	cfg.BlockedPatterns = append(append([]string{}, cfg.BlockedPatterns...), r.Policy.BlockedPatterns...)
	cfg.AllowedColumns = append(append([]string{}, cfg.AllowedColumns...), r.Policy.AllowedColumns...)
	return safety.New(cfg)
}

// resolveSources opens every data source and returns planner schema
// context plus the composite fingerprint.
func (a *Agent) resolveSources(ctx context.Context, env *builtin.Env, r *contract.AnalysisRequest) ([]planner.SourceInfo, string, error) {
	var (
		infos []planner.SourceInfo
		fps   []string
	)
	for i, ds := range r.DataSources {
		name := sourceName(ds, i)
		resolved, err := source.Resolve(ctx, name, ds)
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve source %s: %w", name, err)
		}
		env.AddSource(resolved)
		infos = append(infos, planner.SourceInfo{
			Name:    resolved.Name,
			Type:    ds.Type,
			Table:   resolved.TableName,
			Columns: resolved.Columns,
		})
		fps = append(fps, resolved.Fingerprint)
	}
	combined, err := fingerprint.Combine(fps...)
	if err != nil {
		return nil, "", err
	}
	return infos, combined, nil
}

func (a *Agent) lookupRecipes(ctx context.Context, tracer *audit.Tracer, fp, intent string) []*memory.Match {
	if a.cfg.Memory == nil {
		return nil
	}
	matches, err := a.cfg.Memory.Retrieve(ctx, fp, intent, memory.Options{TopK: a.cfg.TopK})
	if err != nil {
		a.logger.Warn("Recipe retrieval failed", zap.Error(err))
		return nil
	}
	for _, m := range matches {
		tracer.RecipeRetrieved(m.Recipe.RecipeID, fp, m.Similarity)
	}
	return matches
}

// executePlan walks the DAG, running each wave of ready subtasks in
// parallel. A failed subtask blocks its descendants but not
// independent branches.
func (a *Agent) executePlan(ctx context.Context, act *actorpkg.Actor, plan *planner.Plan, infos []planner.SourceInfo) map[string]*actorpkg.Result {
	var (
		mu        sync.Mutex
		results   = make(map[string]*actorpkg.Result, len(plan.Subtasks))
		succeeded = make(map[string]bool, len(plan.Subtasks))
	)
	for {
		var wave []*planner.Subtask
		mu.Lock()
		for _, st := range plan.Ready(succeeded) {
			if _, ran := results[st.ID]; !ran {
				wave = append(wave, st)
			}
		}
		mu.Unlock()
		if len(wave) == 0 || ctx.Err() != nil {
			break
		}

		g := new(errgroup.Group)
		g.SetLimit(maxParallelSubtasks)
		for _, st := range wave {
			st := st
			g.Go(func() error {
				res := act.Run(ctx, st, infos, remainingBudget(ctx))
				mu.Lock()
				results[st.ID] = res
				if res.Succeeded() {
					succeeded[st.ID] = true
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}

// remainingBudget converts the context deadline into a per-call
// timeout.
func remainingBudget(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}

// collectDeliverables writes table and report artifacts for succeeded
// deliverable subtasks and registers everything stored for the
// request (charts write themselves during execution).
func (a *Agent) collectDeliverables(ctx context.Context, tracer *audit.Tracer, env *builtin.Env, plan *planner.Plan, results map[string]*actorpkg.Result, r *contract.AnalysisRequest, resp *contract.AnalysisResponse) {
	for _, st := range plan.Subtasks {
		res, ok := results[st.ID]
		if !ok || !res.Succeeded() {
			continue
		}
		if st.Deliverable == contract.DeliverableTable && r.WantsDeliverable(contract.DeliverableTable) {
			a.writeTableArtifact(ctx, env, st)
		}
	}
	if r.WantsDeliverable(contract.DeliverableReport) {
		a.writeReport(ctx, plan, results, r)
	}

	stored, err := a.cfg.Artifacts.List(ctx, r.RequestID)
	if err != nil {
		a.logger.Warn("Artifact listing failed", zap.Error(err))
		return
	}
	for _, art := range stored {
		tracer.ArtifactGenerated(art.ID, string(art.Kind), art.Path, art.Checksum, art.SizeBytes)
		meta := make(map[string]any, len(art.Metadata))
		for k, v := range art.Metadata {
			meta[k] = v
		}
		resp.Artifacts = append(resp.Artifacts, contract.ArtifactRef{
			ArtifactID:   art.ID,
			ArtifactType: string(art.Kind),
			ContentRef:   art.Path,
			ContentHash:  art.Checksum,
			Metadata:     meta,
			SizeBytes:    art.SizeBytes,
		})
	}
}

func (a *Agent) writeTableArtifact(ctx context.Context, env *builtin.Env, st *planner.Subtask) {
	outName, _ := st.Args["output"].(string)
	if outName == "" {
		return
	}
	t, err := env.Table(outName)
	if err != nil {
		return
	}
	content, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return
	}
	if _, err := a.cfg.Artifacts.Put(ctx, env.RequestID, artifact.KindTable,
		outName+".json", "application/json", content,
		map[string]string{"task_id": st.ID}); err != nil {
		a.logger.Warn("Table artifact write failed",
			zap.String("task_id", st.ID), zap.Error(err))
	}
}

func (a *Agent) writeReport(ctx context.Context, plan *planner.Plan, results map[string]*actorpkg.Result, r *contract.AnalysisRequest) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Analysis Report\n\n**Intent:** %s\n\n## Steps\n\n", r.Intent)
	for _, id := range plan.ExecutionOrder() {
		st := plan.Subtask(id)
		res, ok := results[id]
		switch {
		case !ok:
			fmt.Fprintf(&b, "- %s (%s): skipped\n", st.ID, st.Tool)
		case res.Succeeded():
			fmt.Fprintf(&b, "- %s (%s): %d rows in %.2fs\n",
				st.ID, st.Tool, res.Observation.RowCount, res.Observation.DurationSeconds)
		default:
			fmt.Fprintf(&b, "- %s (%s): failed after %d attempts: %s\n",
				st.ID, st.Tool, res.Attempts, res.Observation.ErrorMessage)
		}
	}
	if _, err := a.cfg.Artifacts.Put(ctx, r.RequestID, artifact.KindReport,
		"report.md", "text/markdown", []byte(b.String()), nil); err != nil {
		a.logger.Warn("Report artifact write failed", zap.Error(err))
	}
}

// finishResponse classifies the terminal status, builds the summary,
// and persists a recipe on full success. execErr carries the execution
// context's terminal error; ctx itself outlives the request deadline.
func (a *Agent) finishResponse(ctx context.Context, execErr error, tracer *audit.Tracer, plan *planner.Plan, results map[string]*actorpkg.Result, combinedFP string, r *contract.AnalysisRequest, resp *contract.AnalysisResponse) {
	var (
		ok     int
		failed []*actorpkg.Result
	)
	for _, id := range plan.ExecutionOrder() {
		res, ran := results[id]
		if !ran {
			continue
		}
		if res.Succeeded() {
			ok++
		} else {
			failed = append(failed, res)
		}
		resp.Metrics.RetriesCount += res.Attempts - 1
	}

	switch {
	case len(failed) == 0 && ok == len(plan.Subtasks):
		resp.Status = contract.StatusCompleted
		_ = plan.Transition(planner.StateCompleted)
	case ok > 0:
		resp.Status = contract.StatusPartialSuccess
		_ = plan.Transition(planner.StateAbandoned)
	default:
		resp.Status = contract.StatusFailed
		_ = plan.Transition(planner.StateAbandoned)
	}

	resp.Summary = buildSummary(plan, results, resp)

	// Anything short of full completion carries error detail, so a
	// timeout that left subtasks unran is reported even with no failed
	// observation.
	if len(failed) > 0 || resp.Status != contract.StatusCompleted {
		resp.Error = classifyFailure(execErr, failed)
	}

	if resp.Status == contract.StatusCompleted && a.cfg.Memory != nil {
		recipe, err := a.cfg.Memory.Save(ctx, combinedFP, r.Intent, plan.Structure(), nil)
		if err != nil {
			a.logger.Warn("Recipe save failed", zap.Error(err))
		} else {
			tracer.RecipeStored(recipe.RecipeID, combinedFP, plan.PlanID)
		}
	}
}

// classifyFailure maps the worst failed subtask onto the response
// error taxonomy. Policy blocks outrank everything, then timeouts and
// resource limits, then grounding errors.
func classifyFailure(execErr error, failed []*actorpkg.Result) *contract.ResponseError {
	re := &contract.ResponseError{ErrorType: contract.ErrInternal, ErrorMessage: "analysis failed"}
	if len(failed) == 0 {
		if errors.Is(execErr, context.DeadlineExceeded) {
			re.ErrorType = contract.ErrTimeout
			re.ErrorMessage = "analysis exceeded its time budget"
		}
		return re
	}

	rank := func(res *actorpkg.Result) int {
		obs := res.Observation
		switch {
		case strings.Contains(obs.ErrorMessage, "blocked by policy"):
			return 0
		case obs.Status == sandbox.StatusTimeout:
			return 1
		case obs.Status == sandbox.StatusResourceLimit:
			return 2
		case obs.ErrorKind.Repairable():
			return 3
		default:
			return 4
		}
	}
	worst := failed[0]
	for _, res := range failed[1:] {
		if rank(res) < rank(worst) {
			worst = res
		}
	}
	switch rank(worst) {
	case 0:
		re.ErrorType = contract.ErrPolicyViolation
	case 1:
		re.ErrorType = contract.ErrTimeout
	case 2:
		re.ErrorType = contract.ErrResourceLimit
	case 3:
		re.ErrorType = contract.ErrGrounding
	default:
		re.ErrorType = contract.ErrInternal
	}
	re.ErrorMessage = worst.Observation.ErrorMessage

	for _, res := range failed {
		re.FailedToolCalls = append(re.FailedToolCalls, contract.FailedToolCall{
			TaskID:   res.Subtask.ID,
			ToolName: res.Subtask.Tool,
			Attempts: res.Attempts,
			Error:    res.Observation.ErrorMessage,
		})
	}
	return re
}

func buildSummary(plan *planner.Plan, results map[string]*actorpkg.Result, resp *contract.AnalysisResponse) contract.Summary {
	var findings []string
	for _, id := range plan.ExecutionOrder() {
		res, ok := results[id]
		if !ok || !res.Succeeded() {
			continue
		}
		st := plan.Subtask(id)
		if st.Description != "" {
			findings = append(findings, fmt.Sprintf("%s: %d rows", st.Description, res.Observation.RowCount))
		}
	}
	insights := fmt.Sprintf("%d of %d steps completed", len(findings), len(plan.Subtasks))
	switch resp.Status {
	case contract.StatusCompleted:
		insights = fmt.Sprintf("All %d steps completed, %d artifacts produced.",
			len(plan.Subtasks), len(resp.Artifacts))
	case contract.StatusPartialSuccess:
		insights = fmt.Sprintf("%d of %d steps completed; partial results returned.",
			countSucceeded(results), len(plan.Subtasks))
	case contract.StatusFailed:
		insights = "Analysis failed; see error detail."
	}
	return contract.Summary{KeyFindings: findings, Insights: insights}
}

func countSucceeded(results map[string]*actorpkg.Result) int {
	n := 0
	for _, res := range results {
		if res.Succeeded() {
			n++
		}
	}
	return n
}

// sourceName derives a stable name for a source: its table, its file
// base name, or a positional fallback.
func sourceName(ds contract.DataSource, idx int) string {
	if ds.Table != "" {
		return ds.Table
	}
	if ds.FilePath != "" {
		base := filepath.Base(ds.FilePath)
		if i := strings.LastIndex(base, "."); i > 0 {
			base = base[:i]
		}
		return base
	}
	return fmt.Sprintf("source_%d", idx)
}
