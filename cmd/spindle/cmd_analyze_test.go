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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/spindle/pkg/contract"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		spec    string
		want    contract.DataSource
		wantErr bool
	}{
		{
			spec: "sql:sqlite:///data/sales.db#sales",
			want: contract.DataSource{
				Type:             contract.SourceSQL,
				ConnectionString: "sqlite:///data/sales.db",
				Table:            "sales",
			},
		},
		{
			spec: "csv:/data/orders.csv",
			want: contract.DataSource{Type: contract.SourceCSV, FilePath: "/data/orders.csv"},
		},
		{
			spec: "json:/data/events.ndjson",
			want: contract.DataSource{Type: contract.SourceJSON, FilePath: "/data/events.ndjson"},
		},
		{spec: "sql:postgres://host/db", wantErr: true}, // no table fragment
		{spec: "parquet:/data/x.parquet", wantErr: true},
		{spec: "no-separator", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := parseSource(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildRequestFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
intent: show total revenue by region
data_sources:
  - type: sql
    connection_string: sqlite:///tmp/sales.db
    table: sales
deliverables: [table, chart]
constraints:
  row_limit: 1000
`), 0600))

	analyzeRequestFile = path
	t.Cleanup(func() { analyzeRequestFile = "" })

	req, err := buildRequest()
	require.NoError(t, err)
	assert.Equal(t, "show total revenue by region", req.Intent)
	require.Len(t, req.DataSources, 1)
	assert.Equal(t, "sales", req.DataSources[0].Table)
	assert.Equal(t, 1000, req.Constraints.RowLimit)
	assert.Equal(t,
		[]contract.DeliverableKind{contract.DeliverableTable, contract.DeliverableChart},
		req.Deliverables)
}
