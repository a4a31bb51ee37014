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

// Package engine drives a full sync: it starts a run, walks the registered
// modules chunk by chunk within a time budget, and persists progress after
// every chunk so that any pass can be resumed by the next one.
package engine

import (
	"context"
	"time"

	"github.com/fullsync/fullsync/pkg/clock"
	"github.com/fullsync/fullsync/pkg/fullsync/events"
	"github.com/fullsync/fullsync/pkg/fullsync/lock"
	"github.com/fullsync/fullsync/pkg/fullsync/log"
	"github.com/fullsync/fullsync/pkg/fullsync/modules"
	"github.com/fullsync/fullsync/pkg/fullsync/status"
	"github.com/pkg/errors"
)

const (
	// DefaultSendDuration is the time budget of one send pass
	DefaultSendDuration = 15 * time.Second
	// DefaultChunkSize is the number of objects requested per chunk
	DefaultChunkSize = 100
	// DefaultLockName is the name of the lease guarding send passes
	DefaultLockName = "full_sync"
)

var (
	// ErrEmptyStore is an error for a missing status store
	ErrEmptyStore = errors.New("No status store was provided")
	// ErrEmptyLocker is an error for a missing locker
	ErrEmptyLocker = errors.New("No locker was provided")
	// ErrEmptyRegistry is an error for a missing module registry
	ErrEmptyRegistry = errors.New("No module registry was provided")
	// ErrEmptyClock is an error for a missing clock
	ErrEmptyClock = errors.New("No clock was provided")
	// ErrLockTTLTooShort is an error for a lease that would expire within one
	// send pass
	ErrLockTTLTooShort = errors.New("lock TTL must exceed the send duration")

	// ErrNoModules is returned when a run would include no module
	ErrNoModules = errors.New("no registered module is enabled")
	// ErrNotStarted is returned by Send when no run is in progress
	ErrNotStarted = errors.New("full sync has not been started")
	// ErrStaleRun is returned when the run was restarted during a pass
	ErrStaleRun = errors.New("full sync was restarted during the pass")
	// ErrModuleFailed is returned when a module fails to produce or deliver
	// a chunk
	ErrModuleFailed = errors.New("module failed")
)

// Settings tunes the send loop
type Settings struct {
	SendDuration     time.Duration
	ChunkSize        int
	ModuleChunkSizes map[string]int
	// MaxChunksPerPass bounds the chunks of one pass. Zero means unbounded.
	MaxChunksPerPass int
	LockName         string
}

func (s Settings) withDefaults() Settings {
	if s.SendDuration <= 0 {
		s.SendDuration = DefaultSendDuration
	}
	if s.ChunkSize <= 0 {
		s.ChunkSize = DefaultChunkSize
	}
	if s.LockName == "" {
		s.LockName = DefaultLockName
	}

	return s
}

func (s Settings) chunkSize(module string) int {
	if n, ok := s.ModuleChunkSizes[module]; ok && n > 0 {
		return n
	}

	return s.ChunkSize
}

// Params are the dependencies of an Engine
type Params struct {
	Store     *status.Store
	Locker    *lock.Locker
	Registry  *modules.Registry
	Clock     clock.Clock
	Listeners []events.Listener
	Settings  Settings
}

// Engine drives full sync runs
type Engine struct {
	store    *status.Store
	locker   *lock.Locker
	registry *modules.Registry
	clock    clock.Clock
	listener events.Listener
	settings Settings
}

func (p Params) validate() error {
	if p.Store == nil {
		return ErrEmptyStore
	}
	if p.Locker == nil {
		return ErrEmptyLocker
	}
	if p.Registry == nil {
		return ErrEmptyRegistry
	}
	if p.Clock == nil {
		return ErrEmptyClock
	}

	return nil
}

// New returns an engine
func New(p Params) (*Engine, error) {
	if err := p.validate(); err != nil {
		return nil, errors.Wrap(err, "validating engine parameters")
	}

	settings := p.Settings.withDefaults()
	if p.Locker.TTL() <= settings.SendDuration {
		return nil, errors.Wrapf(ErrLockTTLTooShort, "ttl %s, send duration %s", p.Locker.TTL(), settings.SendDuration)
	}

	return &Engine{
		store:    p.Store,
		locker:   p.Locker,
		registry: p.Registry,
		clock:    p.Clock,
		listener: events.Multi(p.Listeners...),
		settings: settings,
	}, nil
}

// Registry returns the module registry
func (e *Engine) Registry() *modules.Registry {
	return e.registry
}

// Status returns the persisted status
func (e *Engine) Status(ctx context.Context) (status.Status, error) {
	return e.store.Get(ctx)
}

// Reset clears the persisted status and the retry-after deadline, and
// force-releases the lease
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "clearing status")
	}
	if err := e.locker.Clear(ctx, e.settings.LockName); err != nil {
		return errors.Wrap(err, "clearing lock")
	}
	if err := e.store.ClearRetryAfter(ctx); err != nil {
		return errors.Wrap(err, "clearing retry-after")
	}

	return nil
}

// cancel announces and discards an unfinished run
func (e *Engine) cancel(ctx context.Context, st status.Status) error {
	err := e.listener.OnCancelled(ctx, events.Cancelled{
		StartedAt:   st.Started,
		CancelledAt: e.clock.Now(),
		Progress:    st.Progress,
	})
	if err != nil {
		return errors.Wrap(err, "announcing cancellation")
	}

	log.WithFields(log.Fields{
		"started_at": st.Started,
		"sent":       st.Sent(),
		"total":      st.Total(),
	}).Warn("Cancelling unfinished full sync.")

	return e.Reset(ctx)
}

// ranges computes the range of every enabled range-based module
func (e *Engine) ranges(ctx context.Context, cfg status.Config) (map[string]status.Range, error) {
	ret := map[string]status.Range{}

	for _, m := range e.registry.Ordered() {
		mc, ok := cfg[m.Name()]
		if !ok || !mc.Enabled {
			continue
		}

		r, ok := m.(modules.Ranger)
		if !ok {
			continue
		}

		rng, err := r.Range(ctx, mc)
		if err != nil {
			return nil, errors.Wrapf(err, "computing range of %s", m.Name())
		}
		ret[m.Name()] = rng
	}

	return ret, nil
}

// Start begins a new run over the modules enabled in cfg, or over every
// registered module if cfg is empty. An unfinished run is cancelled first.
func (e *Engine) Start(ctx context.Context, cfg status.Config, startContext map[string]interface{}) error {
	if len(cfg) == 0 {
		cfg = e.registry.DefaultConfig()
	}
	cfg, unknown := e.registry.Filter(cfg)
	if len(unknown) > 0 {
		log.WithFields(log.Fields{
			"modules": unknown,
		}).Warn("Ignoring unknown modules.")
	}
	if len(cfg) == 0 {
		return ErrNoModules
	}

	current, err := e.store.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting status")
	}
	if current.IsSending() {
		if err := e.cancel(ctx, current); err != nil {
			return err
		}
	}

	ranges, err := e.ranges(ctx, cfg)
	if err != nil {
		return err
	}

	progress := map[string]status.ModuleProgress{}
	for _, m := range e.registry.Ordered() {
		mc, ok := cfg[m.Name()]
		if !ok {
			continue
		}

		var rng *status.Range
		if r, ok := ranges[m.Name()]; ok {
			rng = &r
		}

		total, err := m.Total(ctx, mc, rng)
		if err != nil {
			return errors.Wrapf(err, "computing total of %s", m.Name())
		}

		p := status.ModuleProgress{Total: total}
		if rng != nil {
			p.MaxID = rng.Max
			p.Finished = rng.Count == 0
		}
		progress[m.Name()] = p
	}

	now := e.clock.Now()
	err = e.listener.OnStart(ctx, events.Start{
		Config:    cfg,
		Ranges:    ranges,
		Context:   startContext,
		StartedAt: now,
	})
	if err != nil {
		if rerr := e.recordRetryAfter(ctx, err); rerr != nil {
			return rerr
		}
		return errors.Wrap(err, "announcing start")
	}

	if err := e.store.Set(ctx, status.Status{Started: now, Config: cfg, Progress: progress}); err != nil {
		return errors.Wrap(err, "persisting status")
	}

	log.WithFields(log.Fields{
		"modules": cfg.Modules(),
	}).Info("Full sync started.")

	return nil
}

// recordRetryAfter persists the remote retry-after deadline carried by err,
// if any
func (e *Engine) recordRetryAfter(ctx context.Context, err error) error {
	var retry *events.RetryAfterError
	if !errors.As(err, &retry) {
		return nil
	}

	if err := e.store.SetRetryAfter(ctx, retry.Until); err != nil {
		return errors.Wrap(err, "persisting retry-after")
	}

	log.WithFields(log.Fields{
		"until": retry.Until,
	}).Warn("Remote asked to retry later.")

	return nil
}

// Continue runs one send pass under the lease. It returns whether a pass
// ran. Nothing happens when no run is in progress, while a remote
// retry-after deadline is pending, or when another caller holds the lease.
// The lease is released only after a successful pass.
func (e *Engine) Continue(ctx context.Context) (bool, error) {
	st, err := e.store.Get(ctx)
	if err != nil {
		return false, errors.Wrap(err, "getting status")
	}
	if !st.IsSending() {
		return false, nil
	}

	retryAfter, err := e.store.RetryAfter(ctx)
	if err != nil {
		return false, errors.Wrap(err, "getting retry-after")
	}
	if !retryAfter.IsZero() {
		if e.clock.Now().Before(retryAfter) {
			log.WithFields(log.Fields{
				"until": retryAfter,
			}).Debug("Waiting for retry-after deadline.")
			return false, nil
		}

		if err := e.store.ClearRetryAfter(ctx); err != nil {
			return false, errors.Wrap(err, "clearing retry-after")
		}
	}

	expiry, ok, err := e.locker.Attempt(ctx, e.settings.LockName)
	if err != nil {
		return false, errors.Wrap(err, "attempting lock")
	}
	if !ok {
		log.Debug("Full sync lock is held elsewhere.")
		return false, nil
	}

	if err := e.Send(ctx); err != nil {
		if errors.Cause(err) == ErrStaleRun {
			log.Info("Abandoning pass of a superseded full sync.")
			return false, nil
		}

		return false, err
	}

	if _, err := e.locker.Remove(ctx, e.settings.LockName, expiry); err != nil {
		return true, errors.Wrap(err, "releasing lock")
	}

	return true, nil
}
