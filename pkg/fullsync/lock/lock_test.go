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

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/fullsync/fullsync/pkg/assert"
	"github.com/fullsync/fullsync/pkg/clock"
	"github.com/fullsync/fullsync/pkg/fullsync/testutils"
	"github.com/pkg/errors"
)

func TestAttempt(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	c := clock.NewMock()
	l := NewLocker(db, c, 10*time.Second)
	ctx := context.Background()

	expiry, ok, err := l.Attempt(ctx, "full_sync")
	if err != nil {
		t.Fatal(errors.Wrap(err, "first attempt"))
	}
	assert.Equal(t, ok, true, "first attempt should acquire")
	assert.Equal(t, expiry.Equal(c.Now().Add(10*time.Second)), true, "expiry mismatch")

	_, ok, err = l.Attempt(ctx, "full_sync")
	if err != nil {
		t.Fatal(errors.Wrap(err, "second attempt"))
	}
	assert.Equal(t, ok, false, "second attempt should not acquire an unexpired lease")

	_, ok, err = l.Attempt(ctx, "other")
	if err != nil {
		t.Fatal(errors.Wrap(err, "other attempt"))
	}
	assert.Equal(t, ok, true, "leases are independent per name")

	c.Add(10 * time.Second)
	newExpiry, ok, err := l.Attempt(ctx, "full_sync")
	if err != nil {
		t.Fatal(errors.Wrap(err, "attempt after expiry"))
	}
	assert.Equal(t, ok, true, "an expired lease should be taken over")
	assert.Equal(t, newExpiry.After(expiry), true, "new lease should expire later")
}

func TestRemove(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	c := clock.NewMock()
	l := NewLocker(db, c, 0)
	ctx := context.Background()

	assert.Equal(t, l.TTL(), DefaultTTL, "default ttl mismatch")

	stale, ok, err := l.Attempt(ctx, "full_sync")
	if err != nil || !ok {
		t.Fatalf("acquiring lease: ok=%v err=%v", ok, err)
	}

	// the holder stalls and another caller takes over the expired lease
	c.Add(DefaultTTL + time.Second)
	current, ok, err := l.Attempt(ctx, "full_sync")
	if err != nil || !ok {
		t.Fatalf("taking over lease: ok=%v err=%v", ok, err)
	}

	removed, err := l.Remove(ctx, "full_sync", stale)
	if err != nil {
		t.Fatal(errors.Wrap(err, "removing stale lease"))
	}
	assert.Equal(t, removed, false, "a stale holder must not release the new lease")

	got, err := l.Expiry(ctx, "full_sync")
	if err != nil {
		t.Fatal(errors.Wrap(err, "reading expiry"))
	}
	assert.Equal(t, got.Equal(current), true, "lease should still be held")

	removed, err = l.Remove(ctx, "full_sync", current)
	if err != nil {
		t.Fatal(errors.Wrap(err, "removing lease"))
	}
	assert.Equal(t, removed, true, "the holder should release its lease")

	_, ok, err = l.Attempt(ctx, "full_sync")
	if err != nil {
		t.Fatal(errors.Wrap(err, "attempt after release"))
	}
	assert.Equal(t, ok, true, "a released lease should be acquirable")
}

func TestClear(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	c := clock.NewMock()
	l := NewLocker(db, c, time.Minute)
	ctx := context.Background()

	if _, ok, err := l.Attempt(ctx, "full_sync"); err != nil || !ok {
		t.Fatalf("acquiring lease: ok=%v err=%v", ok, err)
	}
	if err := l.Clear(ctx, "full_sync"); err != nil {
		t.Fatal(errors.Wrap(err, "clearing lease"))
	}

	got, err := l.Expiry(ctx, "full_sync")
	if err != nil {
		t.Fatal(errors.Wrap(err, "reading expiry"))
	}
	assert.Equal(t, got.IsZero(), true, "lease should be cleared")
}

func TestAttempt_exclusive(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	c := clock.NewMock()
	ctx := context.Background()

	// two lockers sharing the datastore stand in for two processes
	a := NewLocker(db, c, time.Minute)
	b := NewLocker(db, c, time.Minute)

	acquired := 0
	for i := 0; i < 5; i++ {
		for _, l := range []*Locker{a, b} {
			_, ok, err := l.Attempt(ctx, "full_sync")
			if err != nil {
				t.Fatal(errors.Wrap(err, "attempting"))
			}
			if ok {
				acquired++
			}
		}
	}

	assert.Equal(t, acquired, 1, "exactly one attempt should acquire the lease")
}
