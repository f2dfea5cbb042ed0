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

// Package server exposes the analysis agent over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/internal/log"
	"github.com/teradata-labs/spindle/internal/version"
	"github.com/teradata-labs/spindle/pkg/agent"
	"github.com/teradata-labs/spindle/pkg/audit"
	"github.com/teradata-labs/spindle/pkg/contract"
	"github.com/teradata-labs/spindle/pkg/memory"
)

// maxRequestBody caps an analyze request payload at 1 MiB.
const maxRequestBody = 1 << 20

// Server serves the analysis API.
type Server struct {
	scheduler *agent.Scheduler
	auditLog  *audit.Log
	memory    *memory.Store

	httpServer *http.Server
	logger     *zap.Logger
}

// New builds a server on top of a started scheduler. memory may be
// nil; the recipe listing endpoint then returns an empty list.
func New(addr string, scheduler *agent.Scheduler, auditLog *audit.Log, mem *memory.Store) *Server {
	s := &Server{
		scheduler: scheduler,
		auditLog:  auditLog,
		memory:    mem,
		logger:    log.Named("server"),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the route tree. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Route("/audit", func(r chi.Router) {
			r.Get("/verify", s.handleAuditVerify)
			r.Get("/stats", s.handleAuditStats)
			r.Get("/trace/{requestID}", s.handleAuditTrace)
		})
		r.Get("/recipes", s.handleRecipes)
	})
	return r
}

// ListenAndServe blocks until the listener fails or Shutdown is
// called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req contract.AnalysisRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, contract.ErrPlanInfeasible,
			"malformed request body: "+err.Error())
		return
	}

	resp, err := s.scheduler.Run(r.Context(), &req)
	if err != nil {
		// The client disconnected or the queue submission was
		// cancelled; nothing ran.
		s.writeError(w, http.StatusServiceUnavailable, contract.ErrInternal, err.Error())
		return
	}

	status := http.StatusOK
	if resp.Status == contract.StatusFailed && resp.Error != nil {
		switch resp.Error.ErrorType {
		case contract.ErrPolicyViolation:
			status = http.StatusForbidden
		case contract.ErrPlanInfeasible:
			status = http.StatusUnprocessableEntity
		case contract.ErrTimeout:
			status = http.StatusGatewayTimeout
		default:
			status = http.StatusInternalServerError
		}
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	result, err := s.auditLog.Verify()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, contract.ErrInternal, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"valid":        result.Valid,
		"entries":      result.Entries,
		"broken_index": result.BrokenIndex,
		"reason":       result.Reason,
	})
}

func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.auditLog.GetStats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, contract.ErrInternal, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAuditTrace(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	entries, err := s.auditLog.RequestTrace(requestID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, contract.ErrInternal, err.Error())
		return
	}
	if len(entries) == 0 {
		s.writeError(w, http.StatusNotFound, contract.ErrInternal,
			"no audit entries for request "+requestID)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRecipes(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}
	recipes, err := s.memory.List(r.Context(), 100)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, contract.ErrInternal, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, recipes)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"queue_depth": s.scheduler.Depth(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"service": "spindle",
		"version": version.Version,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Response encoding failed", zap.Error(err))
	}
}

// writeError mirrors the response contract's error shape so clients
// parse one format everywhere.
func (s *Server) writeError(w http.ResponseWriter, status int, errType contract.ErrorType, msg string) {
	s.writeJSON(w, status, map[string]any{
		"status": contract.StatusFailed,
		"error": map[string]any{
			"error_type":    errType,
			"error_message": msg,
		},
	})
}

// requestLogger logs one line per request with status and latency.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n
	return n, err
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		lvl := s.logger.Info
		if sw.status >= 500 {
			lvl = s.logger.Error
		} else if sw.status >= 400 {
			lvl = s.logger.Warn
		}
		lvl("Request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Int("bytes", sw.bytes),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr))
	})
}
