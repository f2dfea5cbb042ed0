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
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/internal/log"
	"github.com/teradata-labs/spindle/pkg/agent"
	"github.com/teradata-labs/spindle/pkg/artifact"
	"github.com/teradata-labs/spindle/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Spindle analysis server",
	Long: `Start the Spindle HTTP server.

The server will:
- Accept analysis requests on POST /v1/analyze
- Run them on a bounded worker pool
- Append every step to the hash-chained audit log

Press Ctrl+C to gracefully shutdown.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	watcher, err := artifact.NewWatcher(rt.artifacts, artifact.WatcherConfig{
		Logger: log.Named("artifact-watcher"),
		OnTamper: func(a *artifact.Artifact) {
			log.Error("Artifact tampered with on disk",
				zap.String("artifact_id", a.ID),
				zap.String("path", a.Path))
		},
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(context.Background()); err != nil {
		return err
	}
	defer watcher.Stop()

	sched := agent.NewScheduler(rt.agent, cfg.Scheduler.Workers, cfg.Scheduler.QueueSize)
	sched.Start()
	defer sched.Stop()

	srv := server.New(cfg.Server.Addr, sched, rt.auditLog, rt.memory)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("Shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
