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

// Package database opens the datastore and owns the schema of both the
// source tables read by the sync modules and the engine's own tables
package database

import (
	"os"
	"path/filepath"

	"github.com/fullsync/fullsync/pkg/fullsync/log"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	// DriverSQLite is the sqlite driver name
	DriverSQLite = "sqlite"
	// DriverPostgres is the postgres driver name
	DriverPostgres = "postgres"
)

// InitSchema migrates database schema to reflect the latest model definition
func InitSchema(db *gorm.DB) {
	if err := db.AutoMigrate(
		&SyncOption{},
		&SyncLock{},
		&Term{},
		&TermTaxonomy{},
		&TermRelationship{},
		&Post{},
		&PostMeta{},
		&Comment{},
		&Option{},
	); err != nil {
		panic(errors.Wrap(err, "migrating schema"))
	}
}

// getDBLogLevel maps the application log level to the gorm log level
func getDBLogLevel(level string) logger.LogLevel {
	switch level {
	case log.LevelDebug:
		return logger.Info
	case log.LevelWarn:
		return logger.Warn
	case log.LevelError:
		return logger.Error
	default:
		return logger.Silent
	}
}

func getDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverSQLite, "":
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.Wrapf(err, "creating database directory at %s", dir)
			}
		}

		return sqlite.Open(dsn), nil
	case DriverPostgres:
		return postgres.Open(dsn), nil
	default:
		return nil, errors.Errorf("unsupported database driver '%s'", driver)
	}
}

// Open initializes the database connection
func Open(driver, dsn string) *gorm.DB {
	dialector, err := getDialector(driver, dsn)
	if err != nil {
		panic(errors.Wrap(err, "preparing database dialector"))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(getDBLogLevel(log.Level())),
	})
	if err != nil {
		panic(errors.Wrap(err, "opening database connection"))
	}

	return db
}

// Close closes the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "getting sql.DB")
	}

	return sqlDB.Close()
}
