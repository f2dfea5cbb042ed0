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

package contract

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() *AnalysisRequest {
	return &AnalysisRequest{
		Intent: "show total revenue by region",
		DataSources: []DataSource{{
			Type:             SourceSQL,
			ConnectionString: "sqlite:///tmp/sales.db",
			Table:            "sales",
		}},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	r := validRequest()
	r.Normalize()

	assert.NotEmpty(t, r.RequestID)
	assert.Equal(t, DefaultRowLimit, r.Constraints.RowLimit)
	assert.Equal(t, DefaultTimeoutSeconds, r.Constraints.TimeoutSeconds)
	assert.Equal(t, []DeliverableKind{DeliverableTable, DeliverableSummary}, r.Deliverables)
	assert.False(t, r.Timestamp.IsZero())
}

func TestNormalizePreservesExplicitValues(t *testing.T) {
	r := validRequest()
	r.RequestID = "req-42"
	r.Constraints = Constraints{RowLimit: 500, TimeoutSeconds: 10}
	r.Deliverables = []DeliverableKind{DeliverableChart}
	r.Normalize()

	assert.Equal(t, "req-42", r.RequestID)
	assert.Equal(t, 500, r.Constraints.RowLimit)
	assert.Equal(t, 10, r.Constraints.TimeoutSeconds)
	assert.Equal(t, []DeliverableKind{DeliverableChart}, r.Deliverables)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *AnalysisRequest)
		wantErr string
	}{
		{"valid", func(r *AnalysisRequest) {}, ""},
		{"empty intent", func(r *AnalysisRequest) { r.Intent = "" }, "intent"},
		{"intent too long", func(r *AnalysisRequest) { r.Intent = strings.Repeat("x", MaxIntentLength+1) }, "exceeds"},
		{"no sources", func(r *AnalysisRequest) { r.DataSources = nil }, "data source"},
		{"sql without dsn", func(r *AnalysisRequest) { r.DataSources[0].ConnectionString = "" }, "connection_string"},
		{"csv without path", func(r *AnalysisRequest) {
			r.DataSources[0] = DataSource{Type: SourceCSV}
		}, "file_path"},
		{"unknown source type", func(r *AnalysisRequest) {
			r.DataSources[0] = DataSource{Type: "parquet", FilePath: "/tmp/x"}
		}, "unknown source type"},
		{"row limit over cap", func(r *AnalysisRequest) { r.Constraints.RowLimit = MaxRowLimit + 1 }, "row_limit"},
		{"timeout over cap", func(r *AnalysisRequest) { r.Constraints.TimeoutSeconds = MaxTimeoutSeconds + 1 }, "timeout_seconds"},
		{"unknown deliverable", func(r *AnalysisRequest) { r.Deliverables = []DeliverableKind{"hologram"} }, "deliverable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			r.Normalize()
			tt.mutate(r)
			err := r.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTimeoutAndDeliverables(t *testing.T) {
	r := validRequest()
	r.Constraints.TimeoutSeconds = 45
	r.Deliverables = []DeliverableKind{DeliverableTable, DeliverableChart}

	assert.Equal(t, 45*time.Second, r.Timeout())
	assert.True(t, r.WantsDeliverable(DeliverableChart))
	assert.False(t, r.WantsDeliverable(DeliverableReport))
}
