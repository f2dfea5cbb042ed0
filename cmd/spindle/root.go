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
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/spindle/internal/version"
	"github.com/teradata-labs/spindle/pkg/agent"
	"github.com/teradata-labs/spindle/pkg/artifact"
	"github.com/teradata-labs/spindle/pkg/audit"
	"github.com/teradata-labs/spindle/pkg/config"
	"github.com/teradata-labs/spindle/pkg/memory"
	"github.com/teradata-labs/spindle/pkg/planner"
	"github.com/teradata-labs/spindle/pkg/safety"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "spindle",
	Short:   "Spindle - Autonomous data analysis agent",
	Long:    `Spindle turns natural-language analysis requests into validated plans over SQL and file data sources, executes them in a sandbox under a safety policy, and records every step in a tamper-evident audit log.`,
	Version: version.Get(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $SPINDLE_DATA_DIR/spindle.yaml)")

	rootCmd.PersistentFlags().String("addr", ":8690", "HTTP listen address")
	rootCmd.PersistentFlags().Int("workers", 4, "scheduler worker count")
	rootCmd.PersistentFlags().Int("queue-size", 64, "scheduler admission queue length")

	rootCmd.PersistentFlags().String("planner", "rules", "plan proposer (anthropic, rules)")
	rootCmd.PersistentFlags().String("anthropic-key", "", "Anthropic API key (or use ANTHROPIC_API_KEY)")
	rootCmd.PersistentFlags().String("anthropic-model", "", "Anthropic model override")

	_ = viper.BindPFlag("server.addr", rootCmd.PersistentFlags().Lookup("addr"))
	_ = viper.BindPFlag("scheduler.workers", rootCmd.PersistentFlags().Lookup("workers"))
	_ = viper.BindPFlag("scheduler.queue_size", rootCmd.PersistentFlags().Lookup("queue-size"))
	_ = viper.BindPFlag("planner.provider", rootCmd.PersistentFlags().Lookup("planner"))
	_ = viper.BindPFlag("planner.api_key", rootCmd.PersistentFlags().Lookup("anthropic-key"))
	_ = viper.BindPFlag("planner.model", rootCmd.PersistentFlags().Lookup("anthropic-model"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}

// runtime bundles the stores an agent needs and their lifecycles.
type runtime struct {
	agent     *agent.Agent
	auditLog  *audit.Log
	artifacts *artifact.Store
	memory    *memory.Store
}

func (rt *runtime) Close() {
	if rt.memory != nil {
		rt.memory.Close()
	}
	if rt.artifacts != nil {
		rt.artifacts.Close()
	}
	if rt.auditLog != nil {
		rt.auditLog.Close()
	}
}

// openRuntime wires the audit log, artifact store, recipe memory, and
// plan proposer from config.
func openRuntime() (*runtime, error) {
	logsDir, err := config.LogsDir()
	if err != nil {
		return nil, fmt.Errorf("failed to create logs dir: %w", err)
	}
	auditLog, err := audit.Open(filepath.Join(logsDir, "audit.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	artifactsDir, err := config.ArtifactsDir()
	if err != nil {
		auditLog.Close()
		return nil, fmt.Errorf("failed to create artifacts dir: %w", err)
	}
	artifacts, err := artifact.NewStore(artifactsDir)
	if err != nil {
		auditLog.Close()
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	mem, err := memory.NewStore(cfg.Memory.Path, memory.NewHashingEmbedder())
	if err != nil {
		artifacts.Close()
		auditLog.Close()
		return nil, fmt.Errorf("failed to open recipe store: %w", err)
	}

	var llm planner.LLM
	if cfg.Planner.Provider == "anthropic" {
		apiKey := cfg.Planner.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		llm = planner.NewAnthropicClient(planner.AnthropicConfig{
			APIKey: apiKey,
			Model:  cfg.Planner.Model,
		})
	}

	a, err := agent.New(agent.Config{
		SafetyConfig: safety.Config{
			BlockedPatterns: cfg.Safety.BlockedPatterns,
			AllowedColumns:  cfg.Safety.AllowedColumns,
		},
		Memory:              mem,
		Artifacts:           artifacts,
		AuditLog:            auditLog,
		LLM:                 llm,
		SimilarityThreshold: cfg.Memory.SimilarityThreshold,
		TopK:                cfg.Memory.TopK,
	})
	if err != nil {
		mem.Close()
		artifacts.Close()
		auditLog.Close()
		return nil, err
	}

	return &runtime{agent: a, auditLog: auditLog, artifacts: artifacts, memory: mem}, nil
}
