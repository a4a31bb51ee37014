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
	"fmt"
	"testing"
	"time"

	"github.com/fullsync/fullsync/pkg/assert"
	"github.com/fullsync/fullsync/pkg/clock"
	"github.com/fullsync/fullsync/pkg/fullsync/events"
	"github.com/fullsync/fullsync/pkg/fullsync/lock"
	"github.com/fullsync/fullsync/pkg/fullsync/modules"
	"github.com/fullsync/fullsync/pkg/fullsync/status"
	"github.com/fullsync/fullsync/pkg/fullsync/testutils"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type brokenModule struct{}

func (brokenModule) Name() string               { return "broken" }
func (brokenModule) Global() bool               { return false }
func (brokenModule) FullSyncActionName() string { return "full_sync_broken" }

func (brokenModule) Total(context.Context, status.ModuleConfig, *status.Range) (int64, error) {
	return 1, nil
}

func (brokenModule) NextChunk(context.Context, status.ModuleConfig, status.ModuleProgress, int) (modules.Chunk, error) {
	return modules.Chunk{}, errors.New("reading rows")
}

// contendedModule advances the clock on every chunk and lets a rival locker
// try to take the lease mid-pass
type contendedModule struct {
	*modules.TermsModule
	clock    *clock.Mock
	rival    *lock.Locker
	acquired bool
}

func (m *contendedModule) NextChunk(ctx context.Context, cfg status.ModuleConfig, p status.ModuleProgress, size int) (modules.Chunk, error) {
	m.clock.Add(1100 * time.Millisecond)

	_, ok, err := m.rival.Attempt(ctx, DefaultLockName)
	if err != nil {
		return modules.Chunk{}, err
	}
	if ok {
		m.acquired = true
	}

	return m.TermsModule.NextChunk(ctx, cfg, p, size)
}

type fixture struct {
	db       *gorm.DB
	clock    *clock.Mock
	recorder *events.Recorder
	locker   *lock.Locker
	store    *status.Store
	engine   *Engine
}

func newFixture(t *testing.T, settings Settings, mods func(db *gorm.DB) []modules.Module) fixture {
	t.Helper()

	db := testutils.InitMemoryDB(t)
	c := clock.NewMock()
	rec := &events.Recorder{}

	registry, err := modules.NewRegistry(mods(db)...)
	if err != nil {
		t.Fatal(errors.Wrap(err, "creating registry"))
	}

	store := status.NewStore(db)
	locker := lock.NewLocker(db, c, lock.DefaultTTL)
	e, err := New(Params{
		Store:     store,
		Locker:    locker,
		Registry:  registry,
		Clock:     c,
		Listeners: []events.Listener{rec},
		Settings:  settings,
	})
	if err != nil {
		t.Fatal(errors.Wrap(err, "creating engine"))
	}

	return fixture{db: db, clock: c, recorder: rec, locker: locker, store: store, engine: e}
}

func termsOnly(db *gorm.DB) []modules.Module {
	return []modules.Module{modules.NewTermsModule(db, nil)}
}

func (f fixture) status(t *testing.T) status.Status {
	t.Helper()

	st, err := f.store.Get(context.Background())
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting status"))
	}

	return st
}

func (f fixture) start(t *testing.T, cfg status.Config) {
	t.Helper()

	if err := f.engine.Start(context.Background(), cfg, nil); err != nil {
		t.Fatal(errors.Wrap(err, "starting"))
	}
}

func TestNew(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	registry, err := modules.NewRegistry()
	if err != nil {
		t.Fatal(errors.Wrap(err, "creating registry"))
	}

	testCases := []struct {
		params   Params
		expected error
	}{
		{
			params:   Params{Locker: &lock.Locker{}, Registry: registry, Clock: clock.New()},
			expected: ErrEmptyStore,
		},
		{
			params:   Params{Store: status.NewStore(db), Registry: registry, Clock: clock.New()},
			expected: ErrEmptyLocker,
		},
		{
			params:   Params{Store: status.NewStore(db), Locker: &lock.Locker{}, Clock: clock.New()},
			expected: ErrEmptyRegistry,
		},
		{
			params:   Params{Store: status.NewStore(db), Locker: &lock.Locker{}, Registry: registry},
			expected: ErrEmptyClock,
		},
		{
			params: Params{
				Store:    status.NewStore(db),
				Locker:   lock.NewLocker(db, clock.New(), 10*time.Second),
				Registry: registry,
				Clock:    clock.New(),
			},
			expected: ErrLockTTLTooShort,
		},
		{
			params: Params{
				Store:    status.NewStore(db),
				Locker:   lock.NewLocker(db, clock.New(), 0),
				Registry: registry,
				Clock:    clock.New(),
			},
			expected: nil,
		},
	}

	for idx, tc := range testCases {
		t.Run(fmt.Sprintf("test case %d", idx), func(t *testing.T) {
			_, err := New(tc.params)
			assert.Equal(t, errors.Cause(err), tc.expected, "error mismatch")
		})
	}
}

func TestSend_chunkSequence(t *testing.T) {
	f := newFixture(t, Settings{ChunkSize: 10}, termsOnly)
	testutils.SetupTerms(t, f.db, 1, 25, "category")
	f.start(t, nil)

	st := f.status(t)
	assert.Equal(t, st.Progress["terms"].Total, int64(25), "total mismatch")
	assert.Equal(t, st.Progress["terms"].MaxID, int64(25), "max id mismatch")
	assert.Equal(t, len(f.recorder.Starts), 1, "start marker count mismatch")
	assert.Equal(t, f.recorder.Starts[0].Ranges["terms"], status.Range{Min: 1, Max: 25, Count: 25}, "start range mismatch")

	if err := f.engine.Send(context.Background()); err != nil {
		t.Fatal(errors.Wrap(err, "sending"))
	}

	assert.DeepEqual(t, f.recorder.ChunkSizes("terms"), []int{10, 10, 5}, "chunk sizes mismatch")
	assert.Equal(t, f.recorder.Chunks[0].Action, "full_sync_terms", "action mismatch")

	st = f.status(t)
	assert.Equal(t, st.IsFinished(), true, "run should be finished")
	assert.Equal(t, st.Progress["terms"].Sent, int64(25), "sent mismatch")
	assert.Equal(t, st.Progress["terms"].LastSent, int64(25), "cursor mismatch")
	assert.Equal(t, len(f.recorder.Ends), 1, "end marker count mismatch")
}

func TestSend_notStarted(t *testing.T) {
	f := newFixture(t, Settings{}, termsOnly)

	err := f.engine.Send(context.Background())
	assert.Equal(t, errors.Cause(err), ErrNotStarted, "error mismatch")
}

func TestSend_resumesFromCursor(t *testing.T) {
	f := newFixture(t, Settings{ChunkSize: 10, MaxChunksPerPass: 1}, termsOnly)
	testutils.SetupTerms(t, f.db, 1, 25, "category")
	f.start(t, nil)

	ctx := context.Background()
	if err := f.engine.Send(ctx); err != nil {
		t.Fatal(errors.Wrap(err, "sending first pass"))
	}

	st := f.status(t)
	assert.Equal(t, st.IsFinished(), false, "run should not be finished")
	assert.Equal(t, st.Progress["terms"].LastSent, int64(10), "cursor mismatch after first pass")
	assert.Equal(t, st.Progress["terms"].Sent, int64(10), "sent mismatch after first pass")

	// rows added past the captured ceiling are not part of this run
	testutils.SetupTerms(t, f.db, 26, 5, "category")

	for i := 0; i < 2; i++ {
		if err := f.engine.Send(ctx); err != nil {
			t.Fatal(errors.Wrap(err, "sending"))
		}
	}

	var expected []int64
	for id := int64(1); id <= 25; id++ {
		expected = append(expected, id)
	}
	assert.DeepEqual(t, f.recorder.SentIDs("terms"), expected, "sent ids mismatch")
	assert.Equal(t, f.status(t).IsFinished(), true, "run should be finished")
}

func TestSend_timeBudget(t *testing.T) {
	f := newFixture(t, Settings{ChunkSize: 10, SendDuration: 15 * time.Second}, termsOnly)
	testutils.SetupTerms(t, f.db, 1, 25, "category")
	f.start(t, nil)

	f.recorder.OnChunk = func(events.ChunkSent) error {
		f.clock.Add(10 * time.Second)
		return nil
	}

	if err := f.engine.Send(context.Background()); err != nil {
		t.Fatal(errors.Wrap(err, "sending"))
	}

	assert.DeepEqual(t, f.recorder.ChunkSizes("terms"), []int{10, 10}, "chunk sizes mismatch")
	assert.Equal(t, f.status(t).Progress["terms"].LastSent, int64(20), "cursor mismatch")
}

func TestSend_emptyRange(t *testing.T) {
	f := newFixture(t, Settings{}, termsOnly)
	f.start(t, nil)

	st := f.status(t)
	assert.Equal(t, st.Progress["terms"].Finished, true, "empty module should start finished")

	if err := f.engine.Send(context.Background()); err != nil {
		t.Fatal(errors.Wrap(err, "sending"))
	}

	assert.Equal(t, len(f.recorder.Chunks), 0, "chunk count mismatch")
	assert.Equal(t, len(f.recorder.Ends), 1, "end marker count mismatch")
	assert.Equal(t, f.status(t).IsFinished(), true, "run should be finished")
}

func TestSend_globalModulesFirst(t *testing.T) {
	f := newFixture(t, Settings{ChunkSize: 10}, func(db *gorm.DB) []modules.Module {
		return []modules.Module{
			modules.NewTermsModule(db, nil),
			modules.NewConstantsModule(map[string]string{"WP_DEBUG": "false"}),
		}
	})
	testutils.SetupTerms(t, f.db, 1, 3, "category")
	f.start(t, nil)

	if err := f.engine.Send(context.Background()); err != nil {
		t.Fatal(errors.Wrap(err, "sending"))
	}

	if len(f.recorder.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(f.recorder.Chunks))
	}
	assert.Equal(t, f.recorder.Chunks[0].Module, "constants", "first module mismatch")
	assert.Equal(t, f.recorder.Chunks[1].Module, "terms", "second module mismatch")
}

func TestSend_moduleError(t *testing.T) {
	f := newFixture(t, Settings{}, func(db *gorm.DB) []modules.Module {
		return []modules.Module{brokenModule{}}
	})
	f.start(t, nil)

	err := f.engine.Send(context.Background())
	assert.Equal(t, errors.Cause(err), ErrModuleFailed, "error mismatch")

	st := f.status(t)
	assert.Equal(t, st.IsFinished(), false, "run should not be finished")
	assert.Equal(t, st.Errors()["broken"], "reading rows", "recorded error mismatch")
	assert.Equal(t, len(f.recorder.Ends), 0, "end marker count mismatch")
}

func TestSend_staleRun(t *testing.T) {
	f := newFixture(t, Settings{ChunkSize: 10}, termsOnly)
	testutils.SetupTerms(t, f.db, 1, 25, "category")
	f.start(t, nil)

	ctx := context.Background()
	restarted := false
	f.recorder.OnChunk = func(events.ChunkSent) error {
		if restarted {
			return nil
		}
		restarted = true

		f.clock.Add(time.Second)
		return f.engine.Start(ctx, nil, nil)
	}

	err := f.engine.Send(ctx)
	assert.Equal(t, errors.Cause(err), ErrStaleRun, "error mismatch")

	st := f.status(t)
	assert.Equal(t, st.Started.Equal(f.clock.Now()), true, "new run should be kept")
	assert.Equal(t, st.Progress["terms"].Sent, int64(0), "superseded pass wrote progress")
	assert.Equal(t, st.Progress["terms"].LastSent, int64(0), "superseded pass moved the cursor")
	assert.Equal(t, len(f.recorder.Cancelled), 1, "cancel marker count mismatch")
}

func TestStart_cancelsUnfinished(t *testing.T) {
	f := newFixture(t, Settings{ChunkSize: 10, MaxChunksPerPass: 1}, termsOnly)
	testutils.SetupTerms(t, f.db, 1, 25, "category")
	f.start(t, nil)

	if err := f.engine.Send(context.Background()); err != nil {
		t.Fatal(errors.Wrap(err, "sending"))
	}

	f.clock.Add(time.Minute)
	f.start(t, nil)

	st := f.status(t)
	assert.Equal(t, len(f.recorder.Cancelled), 1, "cancel marker count mismatch")
	assert.Equal(t, f.recorder.Cancelled[0].Progress["terms"].Sent, int64(10), "cancelled progress mismatch")
	assert.Equal(t, st.Progress["terms"].Sent, int64(0), "progress should be reset")
	assert.Equal(t, st.Started.Equal(f.clock.Now()), true, "started mismatch")
}

func TestStart_filtersModules(t *testing.T) {
	f := newFixture(t, Settings{}, func(db *gorm.DB) []modules.Module {
		return []modules.Module{
			modules.NewTermsModule(db, nil),
			modules.NewPostsModule(db),
		}
	})
	testutils.SetupTerms(t, f.db, 1, 5, "category")

	f.start(t, status.Config{
		"terms": {Enabled: true, IDs: []int64{2, 4}},
		"bogus": {Enabled: true},
	})

	st := f.status(t)
	assert.DeepEqual(t, st.Config.Modules(), []string{"terms"}, "modules mismatch")
	assert.Equal(t, st.Progress["terms"].Total, int64(2), "subset total mismatch")

	err := f.engine.Start(context.Background(), status.Config{"bogus": {Enabled: true}}, nil)
	assert.Equal(t, errors.Cause(err), ErrNoModules, "error mismatch")
}

func TestContinue_untilFinished(t *testing.T) {
	f := newFixture(t, Settings{ChunkSize: 10, MaxChunksPerPass: 1}, termsOnly)
	testutils.SetupTerms(t, f.db, 1, 25, "category")
	f.start(t, nil)

	ctx := context.Background()
	passes := 0
	for !f.status(t).IsFinished() {
		if passes > 10 {
			t.Fatal("full sync did not finish")
		}

		ran, err := f.engine.Continue(ctx)
		if err != nil {
			t.Fatal(errors.Wrap(err, "continuing"))
		}
		assert.Equal(t, ran, true, "pass should run")
		passes++
	}

	assert.Equal(t, passes, 3, "pass count mismatch")
	assert.Equal(t, len(f.recorder.Ends), 1, "end marker count mismatch")

	ran, err := f.engine.Continue(ctx)
	if err != nil {
		t.Fatal(errors.Wrap(err, "continuing finished run"))
	}
	assert.Equal(t, ran, false, "finished run should not run a pass")
	assert.Equal(t, len(f.recorder.Ends), 1, "end marker count mismatch after finish")
}

func TestContinue_notStarted(t *testing.T) {
	f := newFixture(t, Settings{}, termsOnly)

	ran, err := f.engine.Continue(context.Background())
	if err != nil {
		t.Fatal(errors.Wrap(err, "continuing"))
	}
	assert.Equal(t, ran, false, "pass should not run")
}

func TestContinue_lockHeld(t *testing.T) {
	f := newFixture(t, Settings{ChunkSize: 10}, termsOnly)
	testutils.SetupTerms(t, f.db, 1, 5, "category")
	f.start(t, nil)

	ctx := context.Background()
	if _, ok, err := f.locker.Attempt(ctx, DefaultLockName); err != nil || !ok {
		t.Fatalf("acquiring lock: ok %t, err %v", ok, err)
	}

	ran, err := f.engine.Continue(ctx)
	if err != nil {
		t.Fatal(errors.Wrap(err, "continuing"))
	}
	assert.Equal(t, ran, false, "pass should not run while the lock is held")
	assert.Equal(t, len(f.recorder.Chunks), 0, "chunk count mismatch")

	f.clock.Add(lock.DefaultTTL)

	ran, err = f.engine.Continue(ctx)
	if err != nil {
		t.Fatal(errors.Wrap(err, "continuing after expiry"))
	}
	assert.Equal(t, ran, true, "pass should run after the lock expires")

	_, ok, err := f.locker.Attempt(ctx, DefaultLockName)
	if err != nil {
		t.Fatal(errors.Wrap(err, "attempting lock"))
	}
	assert.Equal(t, ok, true, "lock should be released after a successful pass")
}

func TestContinue_leaseOutlivesPass(t *testing.T) {
	var m *contendedModule
	f := newFixture(t, Settings{ChunkSize: 1}, func(db *gorm.DB) []modules.Module {
		m = &contendedModule{TermsModule: modules.NewTermsModule(db, nil)}
		return []modules.Module{m}
	})
	m.clock = f.clock
	m.rival = lock.NewLocker(f.db, f.clock, lock.DefaultTTL)

	testutils.SetupTerms(t, f.db, 1, 30, "category")
	f.start(t, nil)

	ran, err := f.engine.Continue(context.Background())
	if err != nil {
		t.Fatal(errors.Wrap(err, "continuing"))
	}

	assert.Equal(t, ran, true, "pass should run")
	assert.Equal(t, len(f.recorder.Chunks), 14, "the pass should spend its whole send budget")
	assert.Equal(t, m.acquired, false, "no other holder may take the lease during a pass")
}

func TestContinue_staleRunKeepsLock(t *testing.T) {
	f := newFixture(t, Settings{ChunkSize: 10}, termsOnly)
	testutils.SetupTerms(t, f.db, 1, 25, "category")
	f.start(t, nil)

	ctx := context.Background()
	restarted := false
	f.recorder.OnChunk = func(events.ChunkSent) error {
		if restarted {
			return nil
		}
		restarted = true

		f.clock.Add(time.Second)
		return f.engine.Start(ctx, nil, nil)
	}

	ran, err := f.engine.Continue(ctx)
	if err != nil {
		t.Fatal(errors.Wrap(err, "continuing"))
	}
	assert.Equal(t, ran, false, "superseded pass should not report success")
}

func TestContinue_retryAfter(t *testing.T) {
	f := newFixture(t, Settings{ChunkSize: 10}, termsOnly)
	testutils.SetupTerms(t, f.db, 1, 5, "category")
	f.start(t, nil)

	ctx := context.Background()
	until := f.clock.Now().Add(time.Minute)
	f.recorder.OnChunk = func(events.ChunkSent) error {
		return &events.RetryAfterError{Until: until}
	}

	ran, err := f.engine.Continue(ctx)
	assert.Equal(t, ran, false, "failed pass should not report success")
	assert.Equal(t, errors.Cause(err), ErrModuleFailed, "error mismatch")

	retryAfter, err := f.store.RetryAfter(ctx)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting retry-after"))
	}
	assert.Equal(t, retryAfter.Equal(until), true, "retry-after mismatch")
	assert.NotEqual(t, f.status(t).Errors()["terms"], "", "error should be recorded")

	f.recorder.OnChunk = nil

	f.clock.Add(30 * time.Second)
	ran, err = f.engine.Continue(ctx)
	if err != nil {
		t.Fatal(errors.Wrap(err, "continuing before deadline"))
	}
	assert.Equal(t, ran, false, "pass should wait for the retry-after deadline")

	f.clock.Add(31 * time.Second)
	ran, err = f.engine.Continue(ctx)
	if err != nil {
		t.Fatal(errors.Wrap(err, "continuing after deadline"))
	}
	assert.Equal(t, ran, true, "pass should run after the deadline")

	st := f.status(t)
	assert.Equal(t, st.IsFinished(), true, "run should be finished")
	assert.Equal(t, len(st.Errors()), 0, "errors should be cleared")

	retryAfter, err = f.store.RetryAfter(ctx)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting retry-after"))
	}
	assert.Equal(t, retryAfter.IsZero(), true, "retry-after should be cleared")
}

func TestReset(t *testing.T) {
	f := newFixture(t, Settings{}, termsOnly)
	testutils.SetupTerms(t, f.db, 1, 5, "category")
	f.start(t, nil)

	ctx := context.Background()
	if _, _, err := f.locker.Attempt(ctx, DefaultLockName); err != nil {
		t.Fatal(errors.Wrap(err, "acquiring lock"))
	}
	if err := f.store.SetRetryAfter(ctx, f.clock.Now().Add(time.Hour)); err != nil {
		t.Fatal(errors.Wrap(err, "setting retry-after"))
	}

	if err := f.engine.Reset(ctx); err != nil {
		t.Fatal(errors.Wrap(err, "resetting"))
	}

	assert.Equal(t, f.status(t).IsStarted(), false, "status should be cleared")

	_, ok, err := f.locker.Attempt(ctx, DefaultLockName)
	if err != nil {
		t.Fatal(errors.Wrap(err, "attempting lock"))
	}
	assert.Equal(t, ok, true, "lock should be cleared")

	retryAfter, err := f.store.RetryAfter(ctx)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting retry-after"))
	}
	assert.Equal(t, retryAfter.IsZero(), true, "retry-after should be cleared")
}
