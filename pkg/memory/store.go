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

package memory

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	_ "github.com/teradata-labs/spindle/internal/sqlitedriver"
)

// Recipe is a reusable plan skeleton recorded after a fully successful
// analysis of a schema shape.
type Recipe struct {
	RecipeID          string         `json:"recipe_id"`
	SchemaFingerprint string         `json:"schema_fingerprint"`
	IntentTemplate    string         `json:"intent_template"`
	IntentEmbedding   []float32      `json:"-"`
	PlanStructure     map[string]any `json:"plan_structure"`
	ArgumentTemplates map[string]any `json:"argument_templates,omitempty"`
	SuccessCount      int            `json:"success_count"`
	CreatedAt         time.Time      `json:"created_at"`
	LastUsedAt        time.Time      `json:"last_used_at"`
}

// Match is a retrieved recipe with its similarity to the query intent.
type Match struct {
	Recipe     *Recipe `json:"recipe"`
	Similarity float64 `json:"similarity"`
}

// Store is a SQLite-backed recipe store.
type Store struct {
	db       *sql.DB
	embedder Embedder
}

// Options tune retrieval behavior.
type Options struct {
	// SimilarityThreshold filters matches below this cosine score.
	// Zero returns the full top-K and leaves relevance judgment to the
	// planner.
	SimilarityThreshold float64
	// TopK caps how many matches Retrieve returns (default 3).
	TopK int
}

// NewStore opens (or creates) the recipe database at path.
func NewStore(path string, embedder Embedder) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create recipe directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipe database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(recipeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize recipe schema: %w", err)
	}
	if embedder == nil {
		embedder = NewHashingEmbedder()
	}
	return &Store{db: db, embedder: embedder}, nil
}

const recipeSchema = `
CREATE TABLE IF NOT EXISTS recipes (
	recipe_id          TEXT PRIMARY KEY,
	schema_fingerprint TEXT NOT NULL,
	intent_template    TEXT NOT NULL,
	intent_embedding   BLOB NOT NULL,
	plan_structure     TEXT NOT NULL,
	argument_templates TEXT NOT NULL DEFAULT '{}',
	success_count      INTEGER NOT NULL DEFAULT 1,
	created_at         INTEGER NOT NULL,
	last_used_at       INTEGER NOT NULL,
	UNIQUE(schema_fingerprint, intent_template)
);
CREATE INDEX IF NOT EXISTS idx_recipes_fingerprint ON recipes(schema_fingerprint);
CREATE INDEX IF NOT EXISTS idx_recipes_last_used ON recipes(last_used_at DESC);
`

// Save records a successful analysis. An existing recipe for the same
// (fingerprint, intent template) pair gets its success count bumped
// instead of a duplicate row; both paths run in one transaction.
func (s *Store) Save(ctx context.Context, fingerprint, intentTemplate string, planStructure, argTemplates map[string]any) (*Recipe, error) {
	embedding := s.embedder.Embed(intentTemplate)
	planJSON, err := json.Marshal(planStructure)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan structure: %w", err)
	}
	argsJSON, err := json.Marshal(argTemplates)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal argument templates: %w", err)
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	r := &Recipe{
		RecipeID:          uuid.New().String(),
		SchemaFingerprint: fingerprint,
		IntentTemplate:    intentTemplate,
		IntentEmbedding:   embedding,
		PlanStructure:     planStructure,
		ArgumentTemplates: argTemplates,
		SuccessCount:      1,
		CreatedAt:         now,
		LastUsedAt:        now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO recipes (recipe_id, schema_fingerprint, intent_template, intent_embedding,
			plan_structure, argument_templates, success_count, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(schema_fingerprint, intent_template) DO UPDATE SET
			success_count = success_count + 1,
			last_used_at  = excluded.last_used_at`,
		r.RecipeID, fingerprint, intentTemplate, encodeEmbedding(embedding),
		string(planJSON), string(argsJSON), now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to save recipe: %w", err)
	}
	// Re-read to pick up the surviving row on the upsert path.
	row := tx.QueryRowContext(ctx, `
		SELECT recipe_id, success_count, created_at FROM recipes
		WHERE schema_fingerprint = ? AND intent_template = ?`,
		fingerprint, intentTemplate)
	var createdAt int64
	if err := row.Scan(&r.RecipeID, &r.SuccessCount, &createdAt); err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(createdAt, 0).UTC()

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r, nil
}

// Retrieve returns up to TopK recipes for the fingerprint, ranked by
// cosine similarity of the intent embedding, ties broken by success
// count.
func (s *Store) Retrieve(ctx context.Context, fingerprint, intent string, opts Options) ([]*Match, error) {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	query := s.embedder.Embed(intent)

	rows, err := s.db.QueryContext(ctx, `
		SELECT recipe_id, schema_fingerprint, intent_template, intent_embedding,
			plan_structure, argument_templates, success_count, created_at, last_used_at
		FROM recipes WHERE schema_fingerprint = ?`, fingerprint)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*Match
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		sim := Cosine(query, r.IntentEmbedding)
		if sim < opts.SimilarityThreshold {
			continue
		}
		matches = append(matches, &Match{Recipe: r, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Recipe.SuccessCount > matches[j].Recipe.SuccessCount
	})
	if len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}
	return matches, nil
}

// Touch refreshes a recipe's last-used timestamp after it seeded a
// plan.
func (s *Store) Touch(ctx context.Context, recipeID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE recipes SET last_used_at = ? WHERE recipe_id = ?`,
		time.Now().UTC().Unix(), recipeID)
	return err
}

// List returns all recipes, most recently used first.
func (s *Store) List(ctx context.Context, limit int) ([]*Recipe, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT recipe_id, schema_fingerprint, intent_template, intent_embedding,
			plan_structure, argument_templates, success_count, created_at, last_used_at
		FROM recipes ORDER BY last_used_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Recipe
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func scanRecipe(rows *sql.Rows) (*Recipe, error) {
	var (
		r         Recipe
		embedding []byte
		planJSON  string
		argsJSON  string
		createdAt int64
		lastUsed  int64
	)
	err := rows.Scan(&r.RecipeID, &r.SchemaFingerprint, &r.IntentTemplate, &embedding,
		&planJSON, &argsJSON, &r.SuccessCount, &createdAt, &lastUsed)
	if err != nil {
		return nil, err
	}
	r.IntentEmbedding, err = decodeEmbedding(embedding)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(planJSON), &r.PlanStructure); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan structure: %w", err)
	}
	if err := json.Unmarshal([]byte(argsJSON), &r.ArgumentTemplates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal argument templates: %w", err)
	}
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	r.LastUsedAt = time.Unix(lastUsed, 0).UTC()
	return &r, nil
}

func encodeEmbedding(vec []float32) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(vec)*4))
	for _, v := range vec {
		var word [4]byte
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
		buf.Write(word[:])
	}
	return buf.Bytes()
}

func decodeEmbedding(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("malformed embedding: %d bytes", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
