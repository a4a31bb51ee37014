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

package status

import (
	"context"
	"strconv"
	"time"

	"github.com/fullsync/fullsync/pkg/fullsync/database"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// KeyStatus is the option name under which the status is stored
	KeyStatus = "full_sync_status"
	// KeyRetryAfter is the option name under which the remote retry-after
	// deadline is stored
	KeyRetryAfter = "full_sync_retry_after"
)

// ErrStartedMismatch is returned by a conditional update when the stored
// run was started at a different time
var ErrStartedMismatch = errors.New("stored run start time does not match")

// Store persists the status in the sync_options table
type Store struct {
	db *gorm.DB
}

// NewStore returns a store backed by the given database
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func getOption(tx *gorm.DB, name string) (string, bool, error) {
	var opt database.SyncOption
	err := tx.Where("name = ?", name).First(&opt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	} else if err != nil {
		return "", false, errors.Wrapf(err, "reading option %s", name)
	}

	return opt.Value, true, nil
}

func putOption(tx *gorm.DB, name, value string) error {
	opt := database.SyncOption{Name: name, Value: value, UpdatedAt: time.Now().UTC()}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&opt).Error
	if err != nil {
		return errors.Wrapf(err, "writing option %s", name)
	}

	return nil
}

func deleteOption(tx *gorm.DB, name string) error {
	if err := tx.Where("name = ?", name).Delete(&database.SyncOption{}).Error; err != nil {
		return errors.Wrapf(err, "deleting option %s", name)
	}

	return nil
}

func get(tx *gorm.DB) (Status, error) {
	value, ok, err := getOption(tx, KeyStatus)
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return Empty(), nil
	}

	return decode(value)
}

func set(tx *gorm.DB, s Status) error {
	value, err := encode(s)
	if err != nil {
		return err
	}

	return putOption(tx, KeyStatus, value)
}

// Get returns the persisted status or the empty status if none is persisted
func (s *Store) Get(ctx context.Context) (Status, error) {
	return get(s.db.WithContext(ctx))
}

// Set replaces the persisted status
func (s *Store) Set(ctx context.Context, st Status) error {
	return set(s.db.WithContext(ctx), st)
}

// Update merges the given partial status into the persisted one
func (s *Store) Update(ctx context.Context, u Update) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := get(tx)
		if err != nil {
			return err
		}

		if !u.IfStarted.IsZero() && !current.Started.Equal(u.IfStarted) {
			return ErrStartedMismatch
		}

		return set(tx, u.apply(current))
	})
}

// Clear removes the persisted status
func (s *Store) Clear(ctx context.Context) error {
	return deleteOption(s.db.WithContext(ctx), KeyStatus)
}

// RetryAfter returns the remote retry-after deadline, or the zero time if
// none is set
func (s *Store) RetryAfter(ctx context.Context) (time.Time, error) {
	value, ok, err := getOption(s.db.WithContext(ctx), KeyRetryAfter)
	if err != nil || !ok {
		return time.Time{}, err
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parsing retry-after '%s'", value)
	}

	return fromUnixNano(n), nil
}

// SetRetryAfter persists the remote retry-after deadline
func (s *Store) SetRetryAfter(ctx context.Context, t time.Time) error {
	return putOption(s.db.WithContext(ctx), KeyRetryAfter, strconv.FormatInt(toUnixNano(t), 10))
}

// ClearRetryAfter removes the remote retry-after deadline
func (s *Store) ClearRetryAfter(ctx context.Context) error {
	return deleteOption(s.db.WithContext(ctx), KeyRetryAfter)
}
