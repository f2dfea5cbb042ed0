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
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/spindle/pkg/memory"
)

var recipesLimit int

var recipesCmd = &cobra.Command{
	Use:   "recipes",
	Short: "Manage recipe memory",
}

var recipesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored recipes",
	RunE:  runRecipesList,
}

func init() {
	recipesListCmd.Flags().IntVar(&recipesLimit, "limit", 50, "maximum recipes to list")
	recipesCmd.AddCommand(recipesListCmd)
	rootCmd.AddCommand(recipesCmd)
}

func runRecipesList(cmd *cobra.Command, args []string) error {
	store, err := memory.NewStore(cfg.Memory.Path, memory.NewHashingEmbedder())
	if err != nil {
		return fmt.Errorf("failed to open recipe store: %w", err)
	}
	defer store.Close()

	recipes, err := store.List(cmd.Context(), recipesLimit)
	if err != nil {
		return err
	}
	if len(recipes) == 0 {
		fmt.Println("No recipes stored.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RECIPE\tFINGERPRINT\tSUCCESSES\tLAST USED\tINTENT")
	for _, r := range recipes {
		fp := r.SchemaFingerprint
		if len(fp) > 12 {
			fp = fp[:12]
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			r.RecipeID, fp, r.SuccessCount, r.LastUsedAt.Format("2006-01-02 15:04"), r.IntentTemplate)
	}
	return w.Flush()
}
