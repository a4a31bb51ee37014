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

package engine

import (
	"context"
	"time"

	"github.com/fullsync/fullsync/pkg/fullsync/events"
	"github.com/fullsync/fullsync/pkg/fullsync/log"
	"github.com/fullsync/fullsync/pkg/fullsync/modules"
	"github.com/fullsync/fullsync/pkg/fullsync/status"
	"github.com/pkg/errors"
)

// pass is the state of one send pass
type pass struct {
	started  time.Time
	deadline time.Time
	chunks   int
}

// Send sends chunks until every module is finished, the time budget is
// spent or MaxChunksPerPass is reached. A partial pass returns nil. The
// caller is expected to hold the lease.
func (e *Engine) Send(ctx context.Context) error {
	st, err := e.store.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting status")
	}
	if !st.IsStarted() {
		return ErrNotStarted
	}
	if st.IsFinished() {
		return nil
	}

	ps := &pass{
		started:  st.Started,
		deadline: e.clock.Now().Add(e.settings.SendDuration),
	}

	for _, m := range e.registry.Ordered() {
		mc, ok := st.Config[m.Name()]
		if !ok || !mc.Enabled {
			continue
		}

		done, err := e.sendModule(ctx, ps, m, mc, st.Progress[m.Name()])
		if err != nil {
			return err
		}
		if !done {
			log.WithFields(log.Fields{
				"module": m.Name(),
				"chunks": ps.chunks,
			}).Debug("Send pass budget spent.")
			return nil
		}
	}

	return e.finish(ctx, ps, st.Config)
}

func (e *Engine) budgetSpent(ps *pass) bool {
	if e.settings.MaxChunksPerPass > 0 && ps.chunks >= e.settings.MaxChunksPerPass {
		return true
	}

	return !e.clock.Now().Before(ps.deadline)
}

// checkStale fails if the run was restarted since the pass began
func (e *Engine) checkStale(ctx context.Context, ps *pass) error {
	current, err := e.store.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "getting status")
	}
	if !current.Started.Equal(ps.started) {
		return ErrStaleRun
	}

	return nil
}

// persist writes the progress of one module unless the run was restarted
func (e *Engine) persist(ctx context.Context, ps *pass, name string, p status.ModuleProgress) error {
	err := e.store.Update(ctx, status.Update{
		Progress:  map[string]status.ModuleProgress{name: p},
		IfStarted: ps.started,
	})
	if errors.Cause(err) == status.ErrStartedMismatch {
		return ErrStaleRun
	} else if err != nil {
		return errors.Wrapf(err, "persisting progress of %s", name)
	}

	return nil
}

// fail records err against the module and returns it as a module failure
func (e *Engine) fail(ctx context.Context, ps *pass, name string, p status.ModuleProgress, err error) error {
	log.WithFields(log.Fields{
		"module": name,
		"sent":   p.Sent,
		"total":  p.Total,
	}).ErrorWrap(err, "Full sync module failed")

	p.Error = err.Error()
	if perr := e.persist(ctx, ps, name, p); perr != nil {
		return perr
	}

	return errors.Wrapf(ErrModuleFailed, "%s: %v", name, err)
}

// sendModule sends chunks of one module. It reports whether the module is
// finished.
func (e *Engine) sendModule(ctx context.Context, ps *pass, m modules.Module, mc status.ModuleConfig, p status.ModuleProgress) (bool, error) {
	name := m.Name()

	for !p.Finished {
		if e.budgetSpent(ps) {
			return false, nil
		}
		if err := e.checkStale(ctx, ps); err != nil {
			return false, err
		}

		chunk, err := m.NextChunk(ctx, mc, p, e.settings.chunkSize(name))
		if err != nil {
			return false, e.fail(ctx, ps, name, p, err)
		}

		if len(chunk.IDs) > 0 {
			err := e.listener.OnChunkSent(ctx, events.ChunkSent{
				Module:  name,
				Action:  m.FullSyncActionName(),
				IDs:     chunk.IDs,
				Objects: chunk.Objects,
				SentAt:  e.clock.Now(),
			})
			if err != nil {
				if rerr := e.recordRetryAfter(ctx, err); rerr != nil {
					return false, rerr
				}
				return false, e.fail(ctx, ps, name, p, err)
			}
		}

		p = p.Advance(len(chunk.IDs), chunk.LastID, chunk.Finished)
		if err := e.persist(ctx, ps, name, p); err != nil {
			return false, err
		}
		ps.chunks++
	}

	return true, nil
}

// finish announces the end of the run and records its completion
func (e *Engine) finish(ctx context.Context, ps *pass, cfg status.Config) error {
	if err := e.checkStale(ctx, ps); err != nil {
		return err
	}

	ranges, err := e.ranges(ctx, cfg)
	if err != nil {
		return err
	}

	now := e.clock.Now()
	err = e.listener.OnEnd(ctx, events.End{
		Ranges:     ranges,
		StartedAt:  ps.started,
		FinishedAt: now,
	})
	if err != nil {
		if rerr := e.recordRetryAfter(ctx, err); rerr != nil {
			return rerr
		}
		return errors.Wrap(err, "announcing end")
	}

	err = e.store.Update(ctx, status.Update{Finished: &now, IfStarted: ps.started})
	if errors.Cause(err) == status.ErrStartedMismatch {
		return ErrStaleRun
	} else if err != nil {
		return errors.Wrap(err, "persisting finish")
	}

	log.WithFields(log.Fields{
		"elapsed": now.Sub(ps.started),
	}).Info("Full sync finished.")

	return nil
}
