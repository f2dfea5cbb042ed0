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

// Package audit implements the append-only, hash-chained event log.
// Each entry embeds the SHA-256 hash of its predecessor, so any
// mutation of a stored entry is detectable by recomputing the chain
// forward from the genesis sentinel.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the all-zero parent sentinel of the first entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// EventKind identifies the type of one audit event.
type EventKind string

const (
	EventRequestSubmitted    EventKind = "request_submitted"
	EventPlanCreated         EventKind = "plan_created"
	EventToolCalled          EventKind = "tool_called"
	EventObservationRecorded EventKind = "observation_recorded"
	EventArtifactGenerated   EventKind = "artifact_generated"
	EventPolicyDecision      EventKind = "policy_decision"
	EventRequestCompleted    EventKind = "request_completed"
	EventRecipeStored        EventKind = "recipe_stored"
	EventRecipeRetrieved     EventKind = "recipe_retrieved"
)

// Actor identifies the component that emitted an event.
type Actor string

const (
	ActorPlanner Actor = "planner"
	ActorActor   Actor = "actor"
	ActorSafety  Actor = "safety"
	ActorSystem  Actor = "system"
)

// Entry is one immutable record in the chain.
type Entry struct {
	EntryID    string         `json:"entry_id"`
	RequestID  string         `json:"request_id"`
	Seq        uint64         `json:"seq"`
	ParentHash string         `json:"parent_hash"`
	Timestamp  string         `json:"timestamp"`
	EventKind  EventKind      `json:"event_kind"`
	Actor      Actor          `json:"actor"`
	Payload    map[string]any `json:"payload"`
	EntryHash  string         `json:"entry_hash"`
}

// ComputeHash returns the deterministic hash of the entry, computed
// over (parent_hash, timestamp, event_kind, canonical payload). The
// canonical payload encoding is encoding/json with sorted map keys.
func (e *Entry) ComputeHash() (string, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(e.ParentHash))
	h.Write([]byte(e.Timestamp))
	h.Write([]byte(e.EventKind))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Log is an append-only JSONL file holding one hash chain. A single
// mutex serializes the read-last-hash/compute/append sequence so the
// chain invariant holds under concurrent writers; tool execution
// itself remains parallel.
type Log struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	lastHash string
	lastSeq  uint64
}

// Open creates or reopens the chain file at path, recovering the last
// hash and sequence number from existing entries.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	l := &Log{path: path, lastHash: GenesisHash}
	if err := l.recover(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	l.file = f
	return l, nil
}

// recover scans the existing file for the last entry's hash and seq.
func (l *Log) recover() error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("corrupted audit log %s: %w", l.path, err)
		}
		l.lastHash = e.EntryHash
		l.lastSeq = e.Seq
	}
	return scanner.Err()
}

// Append chains and durably writes one event. The entry is fsynced
// before Append returns; a step is not considered complete until its
// audit entry is on disk.
func (l *Log) Append(requestID string, kind EventKind, actor Actor, payload map[string]any) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := &Entry{
		EntryID:    uuid.NewString(),
		RequestID:  requestID,
		Seq:        l.lastSeq + 1,
		ParentHash: l.lastHash,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		EventKind:  kind,
		Actor:      actor,
		Payload:    payload,
	}

	hash, err := e.ComputeHash()
	if err != nil {
		return nil, err
	}
	e.EntryHash = hash

	line, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("failed to append entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync audit log: %w", err)
	}

	l.lastHash = e.EntryHash
	l.lastSeq = e.Seq
	return e, nil
}

// Close releases the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Path returns the chain file location.
func (l *Log) Path() string {
	return l.path
}

// VerifyResult reports the outcome of a chain verification walk.
type VerifyResult struct {
	Valid bool

	// Entries is the number of entries examined.
	Entries int

	// BrokenIndex is the zero-based index of the first broken entry
	// (-1 when valid).
	BrokenIndex int

	// Reason explains the first failure.
	Reason string
}

// Verify walks the chain from the genesis sentinel, recomputing every
// hash and checking sequence monotonicity.
func (l *Log) Verify() (*VerifyResult, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}
	return VerifyEntries(entries), nil
}

// VerifyEntries validates an in-memory chain.
func VerifyEntries(entries []Entry) *VerifyResult {
	expectedParent := GenesisHash
	var expectedSeq uint64 = 1

	for i := range entries {
		e := &entries[i]
		if e.ParentHash != expectedParent {
			return &VerifyResult{
				Valid: false, Entries: len(entries), BrokenIndex: i,
				Reason: fmt.Sprintf("parent hash mismatch at entry %d: expected %.16s, got %.16s", i, expectedParent, e.ParentHash),
			}
		}
		if e.Seq != expectedSeq {
			return &VerifyResult{
				Valid: false, Entries: len(entries), BrokenIndex: i,
				Reason: fmt.Sprintf("sequence break at entry %d: expected %d, got %d", i, expectedSeq, e.Seq),
			}
		}
		recomputed, err := e.ComputeHash()
		if err != nil {
			return &VerifyResult{
				Valid: false, Entries: len(entries), BrokenIndex: i,
				Reason: fmt.Sprintf("unhashable entry %d: %v", i, err),
			}
		}
		if recomputed != e.EntryHash {
			return &VerifyResult{
				Valid: false, Entries: len(entries), BrokenIndex: i,
				Reason: fmt.Sprintf("hash mismatch at entry %d: stored %.16s, computed %.16s", i, e.EntryHash, recomputed),
			}
		}
		expectedParent = e.EntryHash
		expectedSeq++
	}

	return &VerifyResult{Valid: true, Entries: len(entries), BrokenIndex: -1}
}

// Entries reads the full chain from disk.
func (l *Log) Entries() ([]Entry, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("corrupted entry at index %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// RequestTrace returns all entries belonging to one request, in chain
// order.
func (l *Log) RequestTrace(requestID string) ([]Entry, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}
	var trace []Entry
	for _, e := range entries {
		if e.RequestID == requestID {
			trace = append(trace, e)
		}
	}
	return trace, nil
}

// Stats summarizes the chain contents.
type Stats struct {
	TotalEntries int               `json:"total_entries"`
	ByEventKind  map[EventKind]int `json:"by_event_kind"`
	ChainValid   bool              `json:"chain_valid"`
	ChainError   string            `json:"chain_error,omitempty"`
}

// GetStats counts entries per event kind and verifies the chain.
func (l *Log) GetStats() (*Stats, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}

	s := &Stats{
		TotalEntries: len(entries),
		ByEventKind:  make(map[EventKind]int),
	}
	for _, e := range entries {
		s.ByEventKind[e.EventKind]++
	}

	result := VerifyEntries(entries)
	s.ChainValid = result.Valid
	if !result.Valid {
		s.ChainError = result.Reason
	}
	return s, nil
}
