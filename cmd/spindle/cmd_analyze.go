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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/spindle/pkg/contract"
)

var (
	analyzeIntent       string
	analyzeSources      []string
	analyzeDeliverables []string
	analyzeRowLimit     int
	analyzeTimeout      int
	analyzeRequestFile  string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one analysis request locally",
	Long: `Run a single analysis request without starting a server.

Sources are given as type:location, for example:
  --source sql:sqlite:///data/sales.db#sales
  --source csv:/data/orders.csv

For SQL sources the fragment after # names the table. Alternatively,
pass a full request document with --request-file (JSON).`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&analyzeIntent, "intent", "i", "", "natural-language analysis goal")
	analyzeCmd.Flags().StringArrayVarP(&analyzeSources, "source", "s", nil, "data source as type:location (repeatable)")
	analyzeCmd.Flags().StringSliceVar(&analyzeDeliverables, "deliverables", nil, "requested outputs (table, chart, report, summary)")
	analyzeCmd.Flags().IntVar(&analyzeRowLimit, "row-limit", 0, "maximum rows any step may return")
	analyzeCmd.Flags().IntVar(&analyzeTimeout, "timeout", 0, "request budget in seconds")
	analyzeCmd.Flags().StringVar(&analyzeRequestFile, "request-file", "", "JSON file with a full analysis request")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	req, err := buildRequest()
	if err != nil {
		return err
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	resp := rt.agent.Analyze(context.Background(), req)

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if resp.Status == contract.StatusFailed {
		os.Exit(1)
	}
	return nil
}

func buildRequest() (*contract.AnalysisRequest, error) {
	if analyzeRequestFile != "" {
		data, err := os.ReadFile(analyzeRequestFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read request file: %w", err)
		}
		if ext := filepath.Ext(analyzeRequestFile); ext == ".yaml" || ext == ".yml" {
			// The contract types carry json tags, so a YAML document
			// goes through a generic value and back through JSON.
			var doc map[string]any
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return nil, fmt.Errorf("failed to parse request file: %w", err)
			}
			if data, err = json.Marshal(doc); err != nil {
				return nil, err
			}
		}
		var req contract.AnalysisRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("failed to parse request file: %w", err)
		}
		return &req, nil
	}

	if analyzeIntent == "" {
		return nil, fmt.Errorf("--intent is required (or use --request-file)")
	}
	if len(analyzeSources) == 0 {
		return nil, fmt.Errorf("at least one --source is required")
	}

	req := &contract.AnalysisRequest{
		Intent: analyzeIntent,
		Constraints: contract.Constraints{
			RowLimit:       analyzeRowLimit,
			TimeoutSeconds: analyzeTimeout,
		},
	}
	for _, spec := range analyzeSources {
		ds, err := parseSource(spec)
		if err != nil {
			return nil, err
		}
		req.DataSources = append(req.DataSources, ds)
	}
	for _, d := range analyzeDeliverables {
		req.Deliverables = append(req.Deliverables, contract.DeliverableKind(d))
	}
	return req, nil
}

// parseSource parses type:location[#table] into a data source.
func parseSource(spec string) (contract.DataSource, error) {
	kind, rest, ok := strings.Cut(spec, ":")
	if !ok {
		return contract.DataSource{}, fmt.Errorf("malformed source %q, want type:location", spec)
	}
	switch contract.SourceType(kind) {
	case contract.SourceSQL:
		conn, table, _ := strings.Cut(rest, "#")
		if table == "" {
			return contract.DataSource{}, fmt.Errorf("SQL source %q needs a #table fragment", spec)
		}
		return contract.DataSource{Type: contract.SourceSQL, ConnectionString: conn, Table: table}, nil
	case contract.SourceCSV:
		return contract.DataSource{Type: contract.SourceCSV, FilePath: rest}, nil
	case contract.SourceJSON:
		return contract.DataSource{Type: contract.SourceJSON, FilePath: rest}, nil
	default:
		return contract.DataSource{}, fmt.Errorf("unknown source type %q (want sql, csv, or json)", kind)
	}
}
