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
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "recipes.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

const fp = "a3f8c2d1e4b5a6978811223344556677889900aabbccddeeff00112233445566"

func TestSaveAndRetrieve(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	plan := map[string]any{"steps": []any{"sql.run", "df.transform"}}
	r, err := s.Save(ctx, fp, "total revenue by region", plan, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r.SuccessCount)

	matches, err := s.Retrieve(ctx, fp, "show revenue per region", Options{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Greater(t, matches[0].Similarity, 0.2)
	assert.Equal(t, r.RecipeID, matches[0].Recipe.RecipeID)
}

func TestSave_UpsertBumpsSuccessCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	plan := map[string]any{"steps": []any{"sql.run"}}
	first, err := s.Save(ctx, fp, "monthly totals", plan, nil)
	require.NoError(t, err)
	second, err := s.Save(ctx, fp, "monthly totals", plan, nil)
	require.NoError(t, err)

	assert.Equal(t, first.RecipeID, second.RecipeID)
	assert.Equal(t, 2, second.SuccessCount)

	recipes, err := s.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recipes, 1)
}

func TestRetrieve_FingerprintIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, fp, "revenue by region", map[string]any{}, nil)
	require.NoError(t, err)

	other := strings.Repeat("b", 64)
	matches, err := s.Retrieve(ctx, other, "revenue by region", Options{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRetrieve_RankingAndTopK(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	intents := []string{
		"total revenue by region for last quarter",
		"count distinct customers",
		"average order size over time",
		"revenue trend by region",
	}
	for _, in := range intents {
		_, err := s.Save(ctx, fp, in, map[string]any{}, nil)
		require.NoError(t, err)
	}

	matches, err := s.Retrieve(ctx, fp, "revenue by region", Options{TopK: 2})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.GreaterOrEqual(t, matches[0].Similarity, matches[1].Similarity)
	assert.Contains(t, matches[0].Recipe.IntentTemplate, "revenue")
}

func TestRetrieve_Threshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, fp, "count distinct customers", map[string]any{}, nil)
	require.NoError(t, err)

	matches, err := s.Retrieve(ctx, fp, "plot temperature anomalies", Options{SimilarityThreshold: 0.5})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestHashingEmbedder(t *testing.T) {
	e := NewHashingEmbedder()

	a := e.Embed("total revenue by region")
	b := e.Embed("total revenue by region")
	assert.Equal(t, a, b)
	require.Len(t, a, EmbeddingDim)

	// Unit length after normalization.
	assert.InDelta(t, 1.0, Cosine(a, b), 1e-6)

	c := e.Embed("completely different words here")
	assert.Less(t, Cosine(a, c), 0.5)
}

func TestCosine_Degenerate(t *testing.T) {
	assert.Equal(t, 0.0, Cosine(nil, nil))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{0}))
	assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{1}))
}
