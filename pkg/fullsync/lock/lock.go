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

// Package lock implements an advisory lease stored in the database. A lease
// is not a fence: a holder that stalls past its expiry can be overtaken.
package lock

import (
	"context"
	"time"

	"github.com/fullsync/fullsync/pkg/clock"
	"github.com/fullsync/fullsync/pkg/fullsync/database"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// DefaultTTL is the lease duration used when none is configured. It is twice
// the default send budget so a pass that spends its whole budget still holds
// the lease while it sends its last chunk.
const DefaultTTL = 30 * time.Second

const attemptQuery = `INSERT INTO sync_locks (name, expires_at) VALUES (?, ?)
ON CONFLICT (name) DO UPDATE SET expires_at = excluded.expires_at
WHERE sync_locks.expires_at <= ?`

// Locker acquires and releases named leases
type Locker struct {
	db    *gorm.DB
	clock clock.Clock
	ttl   time.Duration
}

// NewLocker returns a locker with the given lease duration. A non-positive
// ttl selects DefaultTTL.
func NewLocker(db *gorm.DB, c clock.Clock, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Locker{db: db, clock: c, ttl: ttl}
}

// TTL returns the lease duration
func (l *Locker) TTL() time.Duration {
	return l.ttl
}

// Attempt acquires the named lease if no unexpired lease exists. It returns
// the expiry of the new lease and whether it was acquired. Losing the race is
// not an error.
func (l *Locker) Attempt(ctx context.Context, name string) (time.Time, bool, error) {
	now := l.clock.Now()
	expiry := now.Add(l.ttl)

	res := l.db.WithContext(ctx).Exec(attemptQuery, name, expiry.UnixNano(), now.UnixNano())
	if res.Error != nil {
		return time.Time{}, false, errors.Wrapf(res.Error, "acquiring lock %s", name)
	}
	if res.RowsAffected != 1 {
		return time.Time{}, false, nil
	}

	return time.Unix(0, expiry.UnixNano()).UTC(), true, nil
}

// Remove releases the named lease only if it still carries the expiry issued
// to the caller. It reports whether a lease was removed.
func (l *Locker) Remove(ctx context.Context, name string, expectedExpiry time.Time) (bool, error) {
	res := l.db.WithContext(ctx).
		Where("name = ? AND expires_at = ?", name, expectedExpiry.UnixNano()).
		Delete(&database.SyncLock{})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "releasing lock %s", name)
	}

	return res.RowsAffected == 1, nil
}

// Clear removes the named lease regardless of its holder
func (l *Locker) Clear(ctx context.Context, name string) error {
	if err := l.db.WithContext(ctx).Where("name = ?", name).Delete(&database.SyncLock{}).Error; err != nil {
		return errors.Wrapf(err, "clearing lock %s", name)
	}

	return nil
}

// Expiry returns the expiry of the named lease, or the zero time if none is
// held
func (l *Locker) Expiry(ctx context.Context, name string) (time.Time, error) {
	var lk database.SyncLock
	err := l.db.WithContext(ctx).Where("name = ?", name).First(&lk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	} else if err != nil {
		return time.Time{}, errors.Wrapf(err, "reading lock %s", name)
	}

	return time.Unix(0, lk.ExpiresAt).UTC(), nil
}
