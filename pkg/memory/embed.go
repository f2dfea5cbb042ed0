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

// Package memory persists successful analysis recipes keyed by schema
// fingerprint and ranks them by intent similarity for reuse as
// planning hints.
package memory

import (
	"hash/fnv"
	"math"
	"strings"
)

// EmbeddingDim is the fixed width of intent embeddings.
const EmbeddingDim = 256

// Embedder turns an intent string into a fixed-width vector.
type Embedder interface {
	Embed(text string) []float32
}

// HashingEmbedder is a deterministic local embedder: term-frequency
// feature hashing into a fixed-width vector, L2-normalized. It needs
// no model and gives identical vectors across restarts, which is all
// recipe ranking requires.
type HashingEmbedder struct{}

// NewHashingEmbedder returns the default local embedder.
func NewHashingEmbedder() *HashingEmbedder { return &HashingEmbedder{} }

// Embed hashes whitespace-delimited, lowercased terms into buckets and
// normalizes the result to unit length.
func (e *HashingEmbedder) Embed(text string) []float32 {
	vec := make([]float32, EmbeddingDim)
	for _, term := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(term))
		vec[h.Sum32()%EmbeddingDim]++
	}
	normalize(vec)
	return vec
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// Cosine returns the cosine similarity of two equal-width vectors.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
