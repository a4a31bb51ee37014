/* Copyright 2025 Fullsync Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package events defines the markers emitted by the sync engine and the
// listeners that receive them
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fullsync/fullsync/pkg/fullsync/log"
	"github.com/fullsync/fullsync/pkg/fullsync/status"
)

// Start announces a new run
type Start struct {
	Config    status.Config
	Ranges    map[string]status.Range
	Context   map[string]interface{}
	StartedAt time.Time
}

// ChunkSent carries one chunk of module objects
type ChunkSent struct {
	Module  string
	Action  string
	IDs     []int64
	Objects map[int64]interface{}
	SentAt  time.Time
}

// End announces a completed run
type End struct {
	Ranges     map[string]status.Range
	StartedAt  time.Time
	FinishedAt time.Time
}

// Cancelled announces that an unfinished run was superseded
type Cancelled struct {
	StartedAt   time.Time
	CancelledAt time.Time
	Progress    map[string]status.ModuleProgress
}

// Listener receives the engine's markers. A returned error fails the
// corresponding step, which is retried on a later pass.
type Listener interface {
	OnStart(ctx context.Context, e Start) error
	OnChunkSent(ctx context.Context, e ChunkSent) error
	OnEnd(ctx context.Context, e End) error
	OnCancelled(ctx context.Context, e Cancelled) error
}

// RetryAfterError is returned by a listener when the remote side asks the
// engine to back off until the given time
type RetryAfterError struct {
	Until time.Time
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %s", e.Until.Format(time.RFC3339))
}

// Nop is a listener that accepts every marker
type Nop struct{}

// OnStart implements Listener
func (Nop) OnStart(context.Context, Start) error { return nil }

// OnChunkSent implements Listener
func (Nop) OnChunkSent(context.Context, ChunkSent) error { return nil }

// OnEnd implements Listener
func (Nop) OnEnd(context.Context, End) error { return nil }

// OnCancelled implements Listener
func (Nop) OnCancelled(context.Context, Cancelled) error { return nil }

type multi []Listener

// Multi fans markers out to the given listeners in order, stopping at the
// first error
func Multi(listeners ...Listener) Listener {
	var ret multi
	for _, l := range listeners {
		if l != nil {
			ret = append(ret, l)
		}
	}

	return ret
}

func (m multi) OnStart(ctx context.Context, e Start) error {
	for _, l := range m {
		if err := l.OnStart(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m multi) OnChunkSent(ctx context.Context, e ChunkSent) error {
	for _, l := range m {
		if err := l.OnChunkSent(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m multi) OnEnd(ctx context.Context, e End) error {
	for _, l := range m {
		if err := l.OnEnd(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m multi) OnCancelled(ctx context.Context, e Cancelled) error {
	for _, l := range m {
		if err := l.OnCancelled(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Logger writes every marker to the structured log. It stands in for a
// remote endpoint when none is configured.
type Logger struct{}

// OnStart implements Listener
func (Logger) OnStart(_ context.Context, e Start) error {
	log.WithFields(log.Fields{
		"modules": e.Config.Modules(),
		"ranges":  e.Ranges,
	}).Info("Full sync started.")
	return nil
}

// OnChunkSent implements Listener
func (Logger) OnChunkSent(_ context.Context, e ChunkSent) error {
	log.WithFields(log.Fields{
		"module": e.Module,
		"action": e.Action,
		"count":  len(e.IDs),
	}).Debug("Chunk sent.")
	return nil
}

// OnEnd implements Listener
func (Logger) OnEnd(_ context.Context, e End) error {
	log.WithFields(log.Fields{
		"ranges":  e.Ranges,
		"elapsed": e.FinishedAt.Sub(e.StartedAt),
	}).Info("Full sync finished.")
	return nil
}

// OnCancelled implements Listener
func (Logger) OnCancelled(_ context.Context, e Cancelled) error {
	log.WithFields(log.Fields{
		"started_at": e.StartedAt,
	}).Warn("Full sync cancelled.")
	return nil
}

// Recorder keeps every marker it receives in memory. OnChunk, when set, is
// invoked for each chunk and its error returned to the engine.
type Recorder struct {
	mu        sync.Mutex
	Starts    []Start
	Chunks    []ChunkSent
	Ends      []End
	Cancelled []Cancelled
	OnChunk   func(e ChunkSent) error
}

// OnStart implements Listener
func (r *Recorder) OnStart(_ context.Context, e Start) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Starts = append(r.Starts, e)
	return nil
}

// OnChunkSent implements Listener
func (r *Recorder) OnChunkSent(_ context.Context, e ChunkSent) error {
	r.mu.Lock()
	hook := r.OnChunk
	r.mu.Unlock()

	if hook != nil {
		if err := hook(e); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.Chunks = append(r.Chunks, e)
	return nil
}

// OnEnd implements Listener
func (r *Recorder) OnEnd(_ context.Context, e End) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Ends = append(r.Ends, e)
	return nil
}

// OnCancelled implements Listener
func (r *Recorder) OnCancelled(_ context.Context, e Cancelled) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Cancelled = append(r.Cancelled, e)
	return nil
}

// ChunkSizes returns the number of ids in each recorded chunk of the given
// module
func (r *Recorder) ChunkSizes(module string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ret := []int{}
	for _, c := range r.Chunks {
		if c.Module == module {
			ret = append(ret, len(c.IDs))
		}
	}

	return ret
}

// SentIDs returns every recorded id of the given module in send order
func (r *Recorder) SentIDs(module string) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ret := []int64{}
	for _, c := range r.Chunks {
		if c.Module == module {
			ret = append(ret, c.IDs...)
		}
	}

	return ret
}
