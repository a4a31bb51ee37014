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

// Package config builds the runtime configuration from command line
// parameters, environment variables, an optional .env file and an optional
// YAML settings file
package config

import (
	"net/url"
	"os"
	"strings"

	"github.com/fullsync/fullsync/pkg/dirs"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	// DriverSQLite is the default database driver
	DriverSQLite = "sqlite"
	// DriverPostgres selects the postgres driver
	DriverPostgres = "postgres"
	// DefaultDBFilename is the default database filename
	DefaultDBFilename = "fullsync.db"
	// DefaultSettingsFilename is the default settings filename
	DefaultSettingsFilename = "settings.yml"
	// DefaultSchedule is the cron schedule on which the server continues a run
	DefaultSchedule = "@every 30s"
)

var (
	// ErrDBMissingPath is an error for an incomplete configuration missing the database path
	ErrDBMissingPath = errors.New("DB path is empty")
	// ErrDBDriverInvalid is an error for an unsupported database driver
	ErrDBDriverInvalid = errors.New("Invalid DB driver")
	// ErrEndpointInvalid is an error for a malformed remote endpoint
	ErrEndpointInvalid = errors.New("Invalid endpoint")
	// ErrPortInvalid is an error for an incomplete configuration with invalid port
	ErrPortInvalid = errors.New("Invalid port")
	// ErrScheduleMissing is an error for an empty continue schedule
	ErrScheduleMissing = errors.New("Schedule is empty")
)

// DefaultDBPath returns the default path to the SQLite database file
func DefaultDBPath() string {
	return dirs.DataPath(DefaultDBFilename)
}

// DefaultSettingsPath returns the default path to the settings file
func DefaultSettingsPath() string {
	return dirs.ConfigPath(DefaultSettingsFilename)
}

// getOrEnv returns value if non-empty, otherwise env var, otherwise default
func getOrEnv(value, envKey, defaultVal string) string {
	if value != "" {
		return value
	}
	if env := os.Getenv(envKey); env != "" {
		return env
	}
	return defaultVal
}

// ResolveSettingsPath returns the given settings path, falling back to the
// environment and then to the standard location
func ResolveSettingsPath(path string) string {
	return getOrEnv(path, "FULLSYNC_SETTINGS", DefaultSettingsPath())
}

// LoadEnv loads environment variables from the given .env files. Missing
// files are ignored and variables already set are not overridden.
func LoadEnv(filenames ...string) error {
	var existing []string
	for _, f := range filenames {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return errors.Wrap(err, "loading env files")
	}

	return nil
}

// Config is an application configuration
type Config struct {
	DBDriver     string
	DBPath       string
	Endpoint     string
	APIKey       string
	Port         string
	Schedule     string
	LogLevel     string
	SettingsPath string
	Settings     Settings
}

// Params are the configuration parameters for creating a new Config
type Params struct {
	DBDriver     string
	DBPath       string
	Endpoint     string
	APIKey       string
	Port         string
	Schedule     string
	LogLevel     string
	SettingsPath string
}

// New constructs and returns a new validated config.
// Empty string params will fall back to environment variables and defaults.
func New(p Params) (Config, error) {
	c := Config{
		DBDriver:     strings.ToLower(getOrEnv(p.DBDriver, "FULLSYNC_DB_DRIVER", DriverSQLite)),
		DBPath:       getOrEnv(p.DBPath, "FULLSYNC_DB_PATH", DefaultDBPath()),
		Endpoint:     strings.TrimRight(getOrEnv(p.Endpoint, "FULLSYNC_ENDPOINT", ""), "/"),
		APIKey:       getOrEnv(p.APIKey, "FULLSYNC_API_KEY", ""),
		Port:         getOrEnv(p.Port, "PORT", "3010"),
		Schedule:     getOrEnv(p.Schedule, "FULLSYNC_SCHEDULE", DefaultSchedule),
		LogLevel:     getOrEnv(p.LogLevel, "LOG_LEVEL", "info"),
		SettingsPath: ResolveSettingsPath(p.SettingsPath),
	}

	settings, err := ReadSettings(c.SettingsPath)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading settings")
	}
	c.Settings = settings

	if err := validate(c); err != nil {
		return Config{}, err
	}

	return c, nil
}

// HasEndpoint reports whether a remote endpoint is configured
func (c Config) HasEndpoint() bool {
	return c.Endpoint != ""
}

func validate(c Config) error {
	if c.DBPath == "" {
		return ErrDBMissingPath
	}
	if c.DBDriver != DriverSQLite && c.DBDriver != DriverPostgres {
		return errors.Wrapf(ErrDBDriverInvalid, "'%s'", c.DBDriver)
	}
	if c.Endpoint != "" {
		if _, err := url.ParseRequestURI(c.Endpoint); err != nil {
			return errors.Wrapf(ErrEndpointInvalid, "'%s'", c.Endpoint)
		}
	}
	if c.Port == "" {
		return ErrPortInvalid
	}
	if c.Schedule == "" {
		return ErrScheduleMissing
	}

	return validateSettings(c.Settings)
}
