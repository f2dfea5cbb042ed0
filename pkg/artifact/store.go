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

// Package artifact stores analysis outputs (tables, charts, reports)
// as content-addressed files with SQLite-backed metadata.
package artifact

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "github.com/teradata-labs/spindle/internal/sqlitedriver"
)

// Kind classifies what an artifact holds.
type Kind string

const (
	KindTable   Kind = "table"
	KindChart   Kind = "chart"
	KindReport  Kind = "report"
	KindSummary Kind = "summary"
)

// Artifact is a stored analysis output with its integrity hash.
type Artifact struct {
	ID          string            `json:"id"`
	RequestID   string            `json:"request_id"`
	Kind        Kind              `json:"kind"`
	Name        string            `json:"name"`
	Path        string            `json:"path"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	Checksum    string            `json:"checksum"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Stats holds storage statistics.
type Stats struct {
	TotalFiles     int   `json:"total_files"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// Store writes artifacts under root/<request-id>/ and indexes them in
// SQLite for listing and verification.
type Store struct {
	root string
	db   *sql.DB
	mu   sync.Mutex
}

// NewStore opens (or creates) a store rooted at dir with its catalog
// database alongside at dir/artifacts.db.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(dir, "artifacts.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact catalog: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize artifact schema: %w", err)
	}
	return &Store{root: dir, db: db}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS artifacts (
	id            TEXT PRIMARY KEY,
	request_id    TEXT NOT NULL,
	kind          TEXT NOT NULL,
	name          TEXT NOT NULL,
	path          TEXT NOT NULL,
	content_type  TEXT NOT NULL,
	size_bytes    INTEGER NOT NULL,
	checksum      TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	metadata_json TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_artifacts_request ON artifacts(request_id);
`

// Put writes content to disk and records it in the catalog. The
// returned artifact carries the SHA-256 checksum of the content.
func (s *Store) Put(ctx context.Context, requestID string, kind Kind, name, contentType string, content []byte, metadata map[string]string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, requestID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create request directory: %w", err)
	}

	sum := sha256.Sum256(content)
	a := &Artifact{
		ID:          uuid.New().String(),
		RequestID:   requestID,
		Kind:        kind,
		Name:        name,
		Path:        filepath.Join(dir, name),
		ContentType: contentType,
		SizeBytes:   int64(len(content)),
		Checksum:    hex.EncodeToString(sum[:]),
		CreatedAt:   time.Now().UTC(),
		Metadata:    metadata,
	}
	if err := os.WriteFile(a.Path, content, 0640); err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, request_id, kind, name, path, content_type, size_bytes, checksum, created_at, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RequestID, string(a.Kind), a.Name, a.Path, a.ContentType,
		a.SizeBytes, a.Checksum, a.CreatedAt.Unix(), string(metaJSON))
	if err != nil {
		os.Remove(a.Path)
		return nil, fmt.Errorf("failed to index artifact: %w", err)
	}
	return a, nil
}

// Get returns artifact metadata by ID.
func (s *Store) Get(ctx context.Context, id string) (*Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, kind, name, path, content_type, size_bytes, checksum, created_at, metadata_json
		FROM artifacts WHERE id = ?`, id)
	return scanArtifact(row)
}

// List returns all artifacts recorded for a request, oldest first.
func (s *Store) List(ctx context.Context, requestID string) ([]*Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, kind, name, path, content_type, size_bytes, checksum, created_at, metadata_json
		FROM artifacts WHERE request_id = ? ORDER BY created_at, id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Read returns the artifact content after verifying its checksum.
func (s *Store) Read(ctx context.Context, id string) (*Artifact, []byte, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	content, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	sum := sha256.Sum256(content)
	if hex.EncodeToString(sum[:]) != a.Checksum {
		return nil, nil, fmt.Errorf("artifact %s: checksum mismatch, content modified on disk", id)
	}
	return a, content, nil
}

// Verify re-hashes the stored file and reports whether it still
// matches the recorded checksum.
func (s *Store) Verify(ctx context.Context, id string) (bool, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	content, err := os.ReadFile(a.Path)
	if err != nil {
		return false, fmt.Errorf("failed to read artifact: %w", err)
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]) == a.Checksum, nil
}

// GetStats returns storage statistics.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM artifacts`).
		Scan(&st.TotalFiles, &st.TotalSizeBytes)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Root returns the directory artifacts are written under.
func (s *Store) Root() string { return s.root }

// FindByPath looks up an artifact by its on-disk path.
func (s *Store) FindByPath(ctx context.Context, path string) (*Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, kind, name, path, content_type, size_bytes, checksum, created_at, metadata_json
		FROM artifacts WHERE path = ?`, path)
	return scanArtifact(row)
}

// Close closes the catalog database.
func (s *Store) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*Artifact, error) {
	var (
		a         Artifact
		kind      string
		createdAt int64
		metaJSON  string
	)
	err := row.Scan(&a.ID, &a.RequestID, &kind, &a.Name, &a.Path, &a.ContentType,
		&a.SizeBytes, &a.Checksum, &createdAt, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artifact not found")
	}
	if err != nil {
		return nil, err
	}
	a.Kind = Kind(kind)
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	if err := json.Unmarshal([]byte(metaJSON), &a.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &a, nil
}
