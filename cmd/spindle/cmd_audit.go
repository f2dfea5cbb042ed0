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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/spindle/pkg/audit"
	"github.com/teradata-labs/spindle/pkg/config"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log hash chain",
	RunE:  runAuditVerify,
}

var auditTraceCmd = &cobra.Command{
	Use:   "trace <request-id>",
	Short: "Print the audit trail for one request",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTrace,
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the audit log by event kind",
	RunE:  runAuditStats,
}

func init() {
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTraceCmd)
	auditCmd.AddCommand(auditStatsCmd)
	rootCmd.AddCommand(auditCmd)
}

func openAuditLog() (*audit.Log, error) {
	logsDir, err := config.LogsDir()
	if err != nil {
		return nil, err
	}
	return audit.Open(filepath.Join(logsDir, "audit.log"))
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	l, err := openAuditLog()
	if err != nil {
		return err
	}
	defer l.Close()

	result, err := l.Verify()
	if err != nil {
		return err
	}
	if !result.Valid {
		fmt.Printf("INVALID: chain broken at entry %d: %s\n", result.BrokenIndex, result.Reason)
		os.Exit(1)
	}
	fmt.Printf("OK: %d entries, chain intact\n", result.Entries)
	return nil
}

func runAuditStats(cmd *cobra.Command, args []string) error {
	l, err := openAuditLog()
	if err != nil {
		return err
	}
	defer l.Close()

	stats, err := l.GetStats()
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !stats.ChainValid {
		os.Exit(1)
	}
	return nil
}

func runAuditTrace(cmd *cobra.Command, args []string) error {
	l, err := openAuditLog()
	if err != nil {
		return err
	}
	defer l.Close()

	entries, err := l.RequestTrace(args[0])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no audit entries for request %s", args[0])
	}
	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
