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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/teradata-labs/spindle/pkg/sandbox"
)

const (
	// DefaultAnthropicModel is the default Claude model.
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
	// DefaultAnthropicEndpoint is the default Anthropic API endpoint.
	DefaultAnthropicEndpoint = "https://api.anthropic.com/v1/messages"
	// DefaultMaxTokens is the default maximum tokens per request.
	DefaultMaxTokens = 4096
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 60 * time.Second
)

// AnthropicClient proposes plans via Anthropic's Messages API.
type AnthropicClient struct {
	apiKey     string
	model      string
	endpoint   string
	maxTokens  int
	httpClient *http.Client
}

// AnthropicConfig holds configuration for the Anthropic proposer.
type AnthropicConfig struct {
	APIKey    string
	Model     string // Default: claude-sonnet-4-5-20250929
	Endpoint  string // Default: https://api.anthropic.com/v1/messages
	Timeout   time.Duration
	MaxTokens int // Default: 4096
}

// NewAnthropicClient creates a new Anthropic proposer.
func NewAnthropicClient(config AnthropicConfig) *AnthropicClient {
	if config.Model == "" {
		if envModel := os.Getenv("ANTHROPIC_DEFAULT_MODEL"); envModel != "" {
			config.Model = envModel
		} else {
			config.Model = DefaultAnthropicModel
		}
	}
	if config.Endpoint == "" {
		if envEndpoint := os.Getenv("ANTHROPIC_API_ENDPOINT"); envEndpoint != "" {
			config.Endpoint = envEndpoint
		} else {
			config.Endpoint = DefaultAnthropicEndpoint
		}
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	return &AnthropicClient{
		apiKey:     config.APIKey,
		model:      config.Model,
		endpoint:   config.Endpoint,
		maxTokens:  config.MaxTokens,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

const planSystemPrompt = `You are a data-analysis planner. You decompose an analysis request
into a JSON array of subtasks over exactly these tools:

- sql.run {source, query, params, timeout, output}: run a read-only SELECT against a SQL source; bind literals through "params" placeholders instead of inlining them
- df.transform {operation: filter|group|aggregate|sort|select|join, input, output, column, columns, op, value, aggregation, right, on, descending}
- plot.render {input, type: bar|line|scatter|pie, x_col, y_col, title}
- profiler.analyze {source}

Rules:
- Reference only columns listed in the schemas you are given.
- Name each subtask's result with "output" and reference it by name in later subtasks' "input".
- Express ordering with "depends_on": a list of earlier subtask ids.
- State any constraint a subtask asserts (e.g. "filter before aggregate") in "invariants": a list of short strings.
- Mark the subtask producing a requested deliverable with "deliverable": one of table|chart|report|summary.
- Respond with ONLY a JSON object: {"rationale": "...", "subtasks": [{"id", "tool", "description", "args", "depends_on", "invariants", "deliverable"}]}.`

const repairSystemPrompt = `You are a data-analysis repair assistant. A tool call failed. Propose
corrected arguments for the SAME tool that fix the reported error. Keep every argument you do not
need to change. Respond with ONLY a JSON object holding the corrected arguments.`

// ProposePlan asks the model for a subtask decomposition.
func (c *AnthropicClient) ProposePlan(ctx context.Context, req *ProposalRequest) (*Proposal, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Intent: %s\n\nSources:\n", req.Intent)
	for _, src := range req.Sources {
		fmt.Fprintf(&prompt, "- %s (%s", src.Name, src.Type)
		if src.Table != "" {
			fmt.Fprintf(&prompt, ", table %s", src.Table)
		}
		prompt.WriteString("): ")
		for i, col := range src.Columns {
			if i > 0 {
				prompt.WriteString(", ")
			}
			fmt.Fprintf(&prompt, "%s %s", col.Name, col.Type)
		}
		prompt.WriteString("\n")
	}
	if len(req.Deliverables) > 0 {
		fmt.Fprintf(&prompt, "\nRequested deliverables: %v\n", req.Deliverables)
	}
	fmt.Fprintf(&prompt, "\nRow limit: %d\n", req.RowLimit)
	if req.Hint != nil {
		hintJSON, err := json.Marshal(req.Hint.Recipe.PlanStructure)
		if err == nil {
			fmt.Fprintf(&prompt,
				"\nA previous successful analysis of this schema (intent %q, similarity %.2f) used this plan shape; reuse it where it fits:\n%s\n",
				req.Hint.Recipe.IntentTemplate, req.Hint.Similarity, hintJSON)
		}
	}

	text, err := c.complete(ctx, planSystemPrompt, prompt.String())
	if err != nil {
		return nil, err
	}
	var proposal Proposal
	if err := json.Unmarshal(extractJSON(text), &proposal); err != nil {
		return nil, fmt.Errorf("failed to parse plan proposal: %w", err)
	}
	if len(proposal.Subtasks) == 0 {
		return nil, fmt.Errorf("model returned an empty plan")
	}
	return &proposal, nil
}

// Repair asks the model for corrected arguments for one failed call.
func (c *AnthropicClient) Repair(ctx context.Context, call sandbox.ToolCall, obs *sandbox.Observation, sources []SourceInfo) (map[string]any, error) {
	argsJSON, err := json.Marshal(call.Arguments)
	if err != nil {
		return nil, err
	}
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Tool: %s\nArguments: %s\nError (%s): %s\n",
		call.ToolName, argsJSON, obs.ErrorKind, obs.ErrorMessage)
	if obs.Suggestion != "" {
		fmt.Fprintf(&prompt, "Hint: %s\n", obs.Suggestion)
	}
	prompt.WriteString("\nAvailable columns:\n")
	for _, src := range sources {
		fmt.Fprintf(&prompt, "- %s: ", src.Name)
		for i, col := range src.Columns {
			if i > 0 {
				prompt.WriteString(", ")
			}
			prompt.WriteString(col.Name)
		}
		prompt.WriteString("\n")
	}

	text, err := c.complete(ctx, repairSystemPrompt, prompt.String())
	if err != nil {
		return nil, err
	}
	var args map[string]any
	if err := json.Unmarshal(extractJSON(text), &args); err != nil {
		return nil, fmt.Errorf("failed to parse repaired arguments: %w", err)
	}
	return args, nil
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// complete makes one non-streaming Messages API call and returns the
// concatenated text content.
func (c *AnthropicClient) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(&messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(respBody))
	}

	var resp messagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

// extractJSON strips markdown code fences and leading prose the model
// may wrap around its JSON answer.
func extractJSON(text string) []byte {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+3:]
		text = strings.TrimPrefix(text, "json")
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	}
	if i := strings.IndexAny(text, "{["); i > 0 {
		text = text[i:]
	}
	return []byte(strings.TrimSpace(text))
}

var _ LLM = (*AnthropicClient)(nil)
var _ LLM = (*RuleProposer)(nil)
