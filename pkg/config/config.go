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

// Package config loads spindle configuration from spindle.yaml plus
// SPINDLE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level spindle configuration.
type Config struct {
	// Server holds the HTTP listener settings.
	Server ServerConfig `mapstructure:"server"`

	// Scheduler bounds request admission.
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// Planner selects and configures the plan-generation backend.
	Planner PlannerConfig `mapstructure:"planner"`

	// Memory configures the recipe store.
	Memory MemoryConfig `mapstructure:"memory"`

	// Safety configures policy defaults.
	Safety SafetyConfig `mapstructure:"safety"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// SchedulerConfig bounds concurrent analysis work.
type SchedulerConfig struct {
	// Workers is the global concurrency cap for in-flight requests.
	Workers int `mapstructure:"workers"`

	// QueueSize is the bounded admission queue length. Requests beyond
	// Workers wait here rather than being rejected.
	QueueSize int `mapstructure:"queue_size"`
}

// PlannerConfig configures plan generation.
type PlannerConfig struct {
	// Provider is "anthropic" or "rules" (deterministic fallback).
	Provider string `mapstructure:"provider"`

	// APIKey for the LLM provider. Falls back to ANTHROPIC_API_KEY.
	APIKey string `mapstructure:"api_key"`

	// Model overrides the provider default model.
	Model string `mapstructure:"model"`
}

// MemoryConfig configures the recipe store.
type MemoryConfig struct {
	// Path to the recipe SQLite database. Defaults to
	// <data-dir>/db/recipes.db.
	Path string `mapstructure:"path"`

	// SimilarityThreshold below which retrieved recipes are discarded.
	// 0 returns the top-K regardless and lets the planner judge.
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`

	// TopK is the number of recipe candidates returned per lookup.
	TopK int `mapstructure:"top_k"`
}

// SafetyConfig configures policy defaults applied to every request.
type SafetyConfig struct {
	// BlockedPatterns are PII column-name patterns blocked in addition
	// to the built-in set.
	BlockedPatterns []string `mapstructure:"blocked_patterns"`

	// AllowedColumns is a global allow-list overriding PII blocks.
	AllowedColumns []string `mapstructure:"allowed_columns"`
}

// Load reads spindle.yaml from the data directory (or the explicit path
// when non-empty) and applies defaults and environment overrides.
// A missing config file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("spindle")
		v.AddConfigPath(DataDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SPINDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Memory.Path == "" {
		dbDir, err := DatabaseDir()
		if err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
		cfg.Memory.Path = filepath.Join(dbDir, "recipes.db")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8690")
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.queue_size", 64)
	v.SetDefault("planner.provider", "rules")
	v.SetDefault("memory.similarity_threshold", 0.0)
	v.SetDefault("memory.top_k", 3)
}
