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

package database

import (
	"path/filepath"
	"testing"

	"github.com/fullsync/fullsync/pkg/assert"
	"github.com/fullsync/fullsync/pkg/fullsync/log"
	"github.com/pkg/errors"
	"gorm.io/gorm/logger"
)

func TestGetDBLogLevel(t *testing.T) {
	testCases := []struct {
		level    string
		expected logger.LogLevel
	}{
		{level: log.LevelDebug, expected: logger.Info},
		{level: log.LevelInfo, expected: logger.Silent},
		{level: log.LevelWarn, expected: logger.Warn},
		{level: log.LevelError, expected: logger.Error},
		{level: "", expected: logger.Silent},
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			assert.Equal(t, getDBLogLevel(tc.level), tc.expected, "log level mismatch")
		})
	}
}

func TestOpen_createsDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fullsync.db")

	db := Open(DriverSQLite, path)
	defer Close(db)
	InitSchema(db)

	if err := db.Create(&SyncOption{Name: "k", Value: "v"}).Error; err != nil {
		t.Fatal(errors.Wrap(err, "writing option"))
	}

	var got SyncOption
	if err := db.Where("name = ?", "k").First(&got).Error; err != nil {
		t.Fatal(errors.Wrap(err, "reading option"))
	}
	assert.Equal(t, got.Value, "v", "value mismatch")
}

func TestGetDialector_unsupported(t *testing.T) {
	if _, err := getDialector("mysql", "dsn"); err == nil {
		t.Error("expected an error for an unsupported driver")
	}
}
