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

package source

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/teradata-labs/spindle/pkg/contract"
	"github.com/teradata-labs/spindle/pkg/fingerprint"
)

func resolveCSV(name string, ds contract.DataSource) (*Resolved, error) {
	f, err := os.Open(ds.FilePath)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	defer f.Close()

	t, err := LoadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	return &Resolved{Name: name, Type: contract.SourceCSV, Table: t, Columns: t.Columns}, nil
}

func resolveJSON(name string, ds contract.DataSource) (*Resolved, error) {
	f, err := os.Open(ds.FilePath)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	defer f.Close()

	t, err := LoadJSON(f)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	return &Resolved{Name: name, Type: contract.SourceJSON, Table: t, Columns: t.Columns}, nil
}

// LoadCSV reads a header-first CSV stream into a table, coercing cells
// to numbers and booleans where they parse cleanly.
func LoadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", fingerprint.ErrSchemaUnavailable)
	}
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = coerceCell(record[i])
			}
		}
		rows = append(rows, row)
	}
	return NewTable(header, rows), nil
}

// LoadJSON reads either a JSON array of objects or newline-delimited
// JSON objects. Column order follows first appearance across rows.
func LoadJSON(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty file", fingerprint.ErrSchemaUnavailable)
	}

	var rows []map[string]any
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &rows); err != nil {
			return nil, fmt.Errorf("parse json array: %w", err)
		}
	} else {
		for _, line := range strings.Split(trimmed, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var row map[string]any
			if err := json.Unmarshal([]byte(line), &row); err != nil {
				return nil, fmt.Errorf("parse jsonl row %d: %w", len(rows)+1, err)
			}
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", fingerprint.ErrSchemaUnavailable)
	}

	var columns []string
	seen := map[string]bool{}
	for _, row := range rows {
		for col := range row {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}
	// map iteration scrambles first-row order, so sort objects' keys
	// for a stable layout.
	sort.Strings(columns)
	return NewTable(columns, rows), nil
}

func coerceCell(s string) any {
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
