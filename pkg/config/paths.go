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

package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDir returns the spindle data directory.
//
// Priority:
//  1. SPINDLE_DATA_DIR environment variable (if set and non-empty)
//  2. ~/.spindle (default)
//
// The returned path is always absolute. Tilde (~) is expanded to the
// user's home directory; relative paths are made absolute against the
// current working directory.
func DataDir() string {
	if dir := os.Getenv("SPINDLE_DATA_DIR"); dir != "" {
		return expandPath(dir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".spindle"
	}
	return filepath.Join(homeDir, ".spindle")
}

// SubDir returns a subdirectory within the data directory, creating it
// if necessary.
func SubDir(name string) (string, error) {
	dir := filepath.Join(DataDir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// ArtifactsDir returns the artifact storage root.
func ArtifactsDir() (string, error) { return SubDir("artifacts") }

// DatabaseDir returns the directory holding SQLite databases.
func DatabaseDir() (string, error) { return SubDir("db") }

// LogsDir returns the directory holding audit log chains.
func LogsDir() (string, error) { return SubDir("logs") }

// expandPath expands ~ and makes relative paths absolute.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
		}
	}
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err == nil {
			path = abs
		}
	}
	return path
}
