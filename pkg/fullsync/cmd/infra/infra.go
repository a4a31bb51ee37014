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

// Package infra initializes the context shared by the commands
package infra

import (
	"io"

	"github.com/fullsync/fullsync/pkg/clock"
	"github.com/fullsync/fullsync/pkg/fullsync/app"
	"github.com/fullsync/fullsync/pkg/fullsync/cmd/root"
	"github.com/fullsync/fullsync/pkg/fullsync/config"
	"github.com/fullsync/fullsync/pkg/fullsync/database"
	"github.com/fullsync/fullsync/pkg/fullsync/log"
	"github.com/fullsync/fullsync/pkg/fullsync/output"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// Ctx is the context of a command
type Ctx struct {
	App     *app.App
	Printer *output.Printer
	close   func() error
}

// Close releases the resources held by the context
func (c *Ctx) Close() error {
	if c.close == nil {
		return nil
	}

	return c.close()
}

// New returns a context around an existing app, printing to w
func New(a *app.App, w io.Writer) *Ctx {
	return &Ctx{App: a, Printer: output.New(w)}
}

func initDB(cfg config.Config) (db *gorm.DB, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("opening database: %v", r)
		}
	}()

	db = database.Open(cfg.DBDriver, cfg.DBPath)
	database.InitSchema(db)
	if err := database.Migrate(db); err != nil {
		database.Close(db)
		return nil, errors.Wrap(err, "running migrations")
	}

	return db, nil
}

// Init reads the configuration, opens the database and builds the app
func Init(p config.Params) (*Ctx, error) {
	cfg, err := config.New(p)
	if err != nil {
		return nil, errors.Wrap(err, "reading configuration")
	}

	log.SetLevel(cfg.LogLevel)

	db, err := initDB(cfg)
	if err != nil {
		return nil, err
	}

	a, err := app.New(app.Params{DB: db, Clock: clock.New(), Config: cfg})
	if err != nil {
		database.Close(db)
		return nil, errors.Wrap(err, "initializing app")
	}

	log.WithFields(log.Fields{
		"driver":   cfg.DBDriver,
		"endpoint": cfg.Endpoint,
	}).Debug("Context initialized.")

	ctx := New(a, nil)
	ctx.close = func() error { return database.Close(db) }

	return ctx, nil
}

// RunFunc is the body of a command run with an initialized context
type RunFunc func(c *Ctx, cmd *cobra.Command, args []string) error

// NewRunE initializes the context from the persistent flags, adjusted by
// the given options, before running fn
func NewRunE(fn RunFunc, opts ...func(p *config.Params)) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		p := root.GetParams()
		for _, opt := range opts {
			opt(&p)
		}

		c, err := Init(p)
		if err != nil {
			return err
		}
		defer c.Close()

		c.Printer = output.New(cmd.OutOrStdout())

		return fn(c, cmd, args)
	}
}
