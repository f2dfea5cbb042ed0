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

package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/internal/log"
	"github.com/teradata-labs/spindle/pkg/contract"
)

// Scheduler runs requests on a fixed pool of workers over a bounded
// queue. When the queue is full, Submit waits for space instead of
// rejecting, so callers see latency rather than errors under load.
type Scheduler struct {
	agent   *Agent
	workers int
	jobs    chan *job
	queued  atomic.Int64
	active  atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
	logger    *zap.Logger
}

type job struct {
	ctx  context.Context
	req  *contract.AnalysisRequest
	done chan *contract.AnalysisResponse
}

// Ticket is the handle returned by Submit. Wait blocks until the
// response is ready or the caller's context expires.
type Ticket struct {
	// RequestID identifies the queued request.
	RequestID string
	// QueuePosition is the depth behind this request at submission
	// time (0 means it will run next).
	QueuePosition int

	done chan *contract.AnalysisResponse
}

// Wait returns the analysis response once a worker finishes the
// request.
func (t *Ticket) Wait(ctx context.Context) (*contract.AnalysisResponse, error) {
	select {
	case resp := <-t.done:
		if resp == nil {
			// The job was dropped because the submitting context
			// expired before a worker picked it up.
			return nil, context.Canceled
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NewScheduler builds a scheduler. workers and queueSize fall back to
// 4 and 64 when non-positive.
func NewScheduler(a *Agent, workers, queueSize int) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Scheduler{
		agent:   a,
		workers: workers,
		jobs:    make(chan *job, queueSize),
		logger:  log.Named("scheduler"),
	}
}

// Start launches the worker pool. Safe to call once; later calls are
// no-ops.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.worker(i)
		}
		s.logger.Info("Scheduler started",
			zap.Int("workers", s.workers),
			zap.Int("queue_size", cap(s.jobs)))
	})
}

// Stop closes the queue and waits for in-flight requests to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.jobs)
		s.wg.Wait()
		s.logger.Info("Scheduler stopped")
	})
}

// Submit queues a request. It normalizes a copy, never the caller's
// request, so the ticket carries a usable request ID, and blocks when
// the queue is full until space opens or ctx expires.
func (s *Scheduler) Submit(ctx context.Context, req *contract.AnalysisRequest) (*Ticket, error) {
	r := *req
	r.Normalize()
	j := &job{ctx: ctx, req: &r, done: make(chan *contract.AnalysisResponse, 1)}
	position := int(s.queued.Load() + s.active.Load())
	select {
	case s.jobs <- j:
		s.queued.Add(1)
		return &Ticket{RequestID: r.RequestID, QueuePosition: position, done: j.done}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("submission cancelled: %w", ctx.Err())
	}
}

// Run is the synchronous convenience path: submit and wait.
func (s *Scheduler) Run(ctx context.Context, req *contract.AnalysisRequest) (*contract.AnalysisResponse, error) {
	ticket, err := s.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return ticket.Wait(ctx)
}

// Depth reports how many requests are queued or running.
func (s *Scheduler) Depth() int {
	return int(s.queued.Load() + s.active.Load())
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	for j := range s.jobs {
		s.queued.Add(-1)
		s.active.Add(1)
		if err := j.ctx.Err(); err != nil {
			// The submitter gave up while the job sat in the queue.
			s.active.Add(-1)
			close(j.done)
			continue
		}
		s.logger.Debug("Worker picked up request",
			zap.Int("worker", id),
			zap.String("request_id", j.req.RequestID))
		resp := s.agent.Analyze(j.ctx, j.req)
		j.done <- resp
		s.active.Add(-1)
	}
}
