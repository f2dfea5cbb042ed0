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

package artifact

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// TamperCallback is called when a stored artifact no longer matches
// its recorded checksum.
type TamperCallback func(artifact *Artifact)

// WatcherConfig configures integrity watching of the artifact root.
type WatcherConfig struct {
	DebounceMs int // delay before re-verifying a changed file (default 500ms)
	Logger     *zap.Logger
	OnTamper   TamperCallback
}

// Watcher observes the artifact root and re-verifies checksums when
// files change out-of-band. Catalogued artifacts are immutable, so any
// modify event on a known path is suspect.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	config  WatcherConfig
	logger  *zap.Logger

	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex

	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool
	stopMu  sync.Mutex
}

// NewWatcher creates an integrity watcher over the store's root.
func NewWatcher(store *Store, config WatcherConfig) (*Watcher, error) {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.DebounceMs == 0 {
		config.DebounceMs = 500
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		store:          store,
		watcher:        fw,
		config:         config,
		logger:         config.Logger,
		debounceTimers: make(map[string]*time.Timer),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}, nil
}

// Start begins watching for file changes under the artifact root.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.store.Root()); err != nil {
		return fmt.Errorf("failed to watch artifact root: %w", err)
	}
	w.logger.Info("Artifact integrity watcher started",
		zap.String("directory", w.store.Root()),
		zap.Int("debounce_ms", w.config.DebounceMs))

	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to drain.
func (w *Watcher) Stop() error {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// New request directories must be added to the watch set
			// so writes inside them are seen.
			if event.Op&fsnotify.Create != 0 {
				if err := w.watcher.Add(event.Name); err == nil {
					continue
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Chmod) != 0 {
				w.debounce(ctx, event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Artifact watcher error", zap.Error(err))
		}
	}
}

// debounce coalesces rapid-fire events on the same path before
// re-verifying.
func (w *Watcher) debounce(ctx context.Context, path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, ok := w.debounceTimers[path]; ok {
		timer.Stop()
	}
	w.debounceTimers[path] = time.AfterFunc(
		time.Duration(w.config.DebounceMs)*time.Millisecond,
		func() {
			w.debounceMu.Lock()
			delete(w.debounceTimers, path)
			w.debounceMu.Unlock()
			w.reverify(ctx, path)
		})
}

func (w *Watcher) reverify(ctx context.Context, path string) {
	a, err := w.store.FindByPath(ctx, path)
	if err != nil {
		// Not a catalogued artifact (catalog db, temp file).
		return
	}
	ok, err := w.store.Verify(ctx, a.ID)
	if err != nil {
		w.logger.Warn("Artifact verification failed",
			zap.String("artifact_id", a.ID), zap.Error(err))
		return
	}
	if !ok {
		w.logger.Error("Artifact content modified on disk",
			zap.String("artifact_id", a.ID),
			zap.String("path", path))
		if w.config.OnTamper != nil {
			w.config.OnTamper(a)
		}
	}
}
