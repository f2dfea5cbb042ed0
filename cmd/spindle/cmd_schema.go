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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/spindle/pkg/fingerprint"
	"github.com/teradata-labs/spindle/pkg/source"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect data source schemas",
}

var schemaDiffCmd = &cobra.Command{
	Use:   "diff <base-source> <target-source>",
	Short: "Compare two source schemas column by column",
	Long: `Compare the live schemas of two data sources. Sources use the same
type:location syntax as analyze --source. The target is compatible with
the base when it removes no column and changes no column type.`,
	Args: cobra.ExactArgs(2),
	RunE: runSchemaDiff,
}

func init() {
	schemaCmd.AddCommand(schemaDiffCmd)
	rootCmd.AddCommand(schemaCmd)
}

func runSchemaDiff(cmd *cobra.Command, args []string) error {
	d, baseFP, targetFP, err := diffSchemas(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Printf("base:   %s\n", baseFP)
	fmt.Printf("target: %s\n", targetFP)
	for _, col := range d.AddedColumns {
		fmt.Printf("+ %s\n", col)
	}
	for _, col := range d.RemovedColumns {
		fmt.Printf("- %s\n", col)
	}
	for col, types := range d.ChangedTypes {
		fmt.Printf("~ %s: %s -> %s\n", col, types[0], types[1])
	}
	if !d.Compatible {
		fmt.Println("INCOMPATIBLE")
		os.Exit(1)
	}
	fmt.Println("compatible")
	return nil
}

// diffSchemas resolves both sources and compares their live schemas.
func diffSchemas(ctx context.Context, baseSpec, targetSpec string) (fingerprint.Diff, string, string, error) {
	baseDS, err := parseSource(baseSpec)
	if err != nil {
		return fingerprint.Diff{}, "", "", err
	}
	targetDS, err := parseSource(targetSpec)
	if err != nil {
		return fingerprint.Diff{}, "", "", err
	}

	base, err := source.Resolve(ctx, "base", baseDS)
	if err != nil {
		return fingerprint.Diff{}, "", "", err
	}
	defer base.Close()
	target, err := source.Resolve(ctx, "target", targetDS)
	if err != nil {
		return fingerprint.Diff{}, "", "", err
	}
	defer target.Close()

	return fingerprint.Compare(base.Columns, target.Columns), base.Fingerprint, target.Fingerprint, nil
}
