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

// Package fingerprint computes stable identifiers for data source
// schemas. Two sources with the same column name/type signature produce
// the same fingerprint regardless of column ordering, which makes the
// fingerprint usable as a recipe-memory lookup key.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
)

// ErrSchemaUnavailable is returned when a source's schema cannot be
// resolved. Callers handle it by skipping recipe lookup.
var ErrSchemaUnavailable = errors.New("schema unavailable")

// Column is one resolved schema column.
type Column struct {
	Name string
	Type string
}

// typeNormalization maps driver-specific type names to canonical forms
// so that structurally identical schemas fingerprint identically across
// backends.
var typeNormalization = map[string]string{
	"int":         "integer",
	"int2":        "integer",
	"int4":        "integer",
	"int8":        "integer",
	"int16":       "integer",
	"int32":       "integer",
	"int64":       "integer",
	"bigint":      "integer",
	"smallint":    "integer",
	"serial":      "integer",
	"float":       "float",
	"float4":      "float",
	"float8":      "float",
	"float32":     "float",
	"float64":     "float",
	"double":      "float",
	"real":        "float",
	"numeric":     "float",
	"decimal":     "float",
	"object":      "string",
	"text":        "string",
	"varchar":     "string",
	"char":        "string",
	"bool":        "boolean",
	"datetime":    "timestamp",
	"timestamptz": "timestamp",
	"date":        "timestamp",
}

// NormalizeType maps a driver-specific type name to its canonical form.
// Unknown types pass through lowercased with any length suffix stripped
// (varchar(255) -> string).
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.IndexByte(t, '('); i > 0 {
		t = t[:i]
	}
	if norm, ok := typeNormalization[t]; ok {
		return norm
	}
	return t
}

// Compute returns the SHA-256 hex fingerprint of a schema. Columns are
// sorted by name and types normalized before hashing, so the result is
// independent of declaration order.
func Compute(cols []Column) (string, error) {
	if len(cols) == 0 {
		return "", ErrSchemaUnavailable
	}

	items := make([]string, 0, len(cols))
	for _, c := range cols {
		items = append(items, c.Name+":"+NormalizeType(c.Type))
	}
	sort.Strings(items)

	sum := sha256.Sum256([]byte(strings.Join(items, ",")))
	return hex.EncodeToString(sum[:]), nil
}

// Combine folds several per-source fingerprints into one composite
// fingerprint for multi-source requests. Inputs are sorted first so the
// result does not depend on source ordering.
func Combine(fps ...string) (string, error) {
	if len(fps) == 0 {
		return "", ErrSchemaUnavailable
	}
	if len(fps) == 1 {
		return fps[0], nil
	}
	sorted := make([]string, len(fps))
	copy(sorted, fps)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, "-")))
	return hex.EncodeToString(sum[:]), nil
}

// Diff describes the differences between two schemas.
type Diff struct {
	AddedColumns   []string
	RemovedColumns []string
	ChangedTypes   map[string][2]string
	Compatible     bool
}

// Compare reports column-level differences between two schemas. A
// target schema is compatible when it removes nothing and changes no
// types relative to the base.
func Compare(base, target []Column) Diff {
	baseTypes := make(map[string]string, len(base))
	for _, c := range base {
		baseTypes[c.Name] = NormalizeType(c.Type)
	}
	targetTypes := make(map[string]string, len(target))
	for _, c := range target {
		targetTypes[c.Name] = NormalizeType(c.Type)
	}

	d := Diff{ChangedTypes: make(map[string][2]string)}
	for name := range targetTypes {
		if _, ok := baseTypes[name]; !ok {
			d.AddedColumns = append(d.AddedColumns, name)
		}
	}
	for name, bt := range baseTypes {
		tt, ok := targetTypes[name]
		if !ok {
			d.RemovedColumns = append(d.RemovedColumns, name)
			continue
		}
		if bt != tt {
			d.ChangedTypes[name] = [2]string{bt, tt}
		}
	}
	sort.Strings(d.AddedColumns)
	sort.Strings(d.RemovedColumns)
	d.Compatible = len(d.RemovedColumns) == 0 && len(d.ChangedTypes) == 0
	return d
}
