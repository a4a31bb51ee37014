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

// Package app wires the full sync components into an application context
package app

import (
	"time"

	"github.com/fullsync/fullsync/pkg/clock"
	"github.com/fullsync/fullsync/pkg/fullsync/client"
	"github.com/fullsync/fullsync/pkg/fullsync/config"
	"github.com/fullsync/fullsync/pkg/fullsync/engine"
	"github.com/fullsync/fullsync/pkg/fullsync/events"
	"github.com/fullsync/fullsync/pkg/fullsync/lock"
	"github.com/fullsync/fullsync/pkg/fullsync/metrics"
	"github.com/fullsync/fullsync/pkg/fullsync/modules"
	"github.com/fullsync/fullsync/pkg/fullsync/status"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	// ErrEmptyDB is an error for missing database connection in the app configuration
	ErrEmptyDB = errors.New("No database connection was provided")
	// ErrEmptyClock is an error for missing clock in the app configuration
	ErrEmptyClock = errors.New("No clock was provided")
	// ErrEmptyEngine is an error for a missing engine in the app configuration
	ErrEmptyEngine = errors.New("No engine was provided")
)

// App is an application context
type App struct {
	DB      *gorm.DB
	Clock   clock.Clock
	Config  config.Config
	Store   *status.Store
	Locker  *lock.Locker
	Metrics *metrics.Metrics
	Engine  *engine.Engine

	Terms         *modules.TermsModule
	Relationships *modules.TermsModule
	Meta          *modules.MetaModule
}

// Validate validates the app configuration
func (a *App) Validate() error {
	if a.DB == nil {
		return ErrEmptyDB
	}
	if a.Clock == nil {
		return ErrEmptyClock
	}
	if a.Engine == nil {
		return ErrEmptyEngine
	}

	return nil
}

// Params are the parameters for creating an App
type Params struct {
	DB     *gorm.DB
	Clock  clock.Clock
	Config config.Config
	// Listeners receive markers in addition to the logger, the metrics and,
	// when an endpoint is configured, the remote client
	Listeners []events.Listener
}

// New builds the module registry and the engine from the given configuration
func New(p Params) (*App, error) {
	if p.DB == nil {
		return nil, ErrEmptyDB
	}
	if p.Clock == nil {
		return nil, ErrEmptyClock
	}

	s := p.Config.Settings
	a := &App{
		DB:            p.DB,
		Clock:         p.Clock,
		Config:        p.Config,
		Store:         status.NewStore(p.DB),
		Locker:        lock.NewLocker(p.DB, p.Clock, time.Duration(s.LockTTL)),
		Metrics:       metrics.New(),
		Terms:         modules.NewTermsModule(p.DB, s.BlacklistedTaxonomies),
		Relationships: modules.NewTermRelationshipsModule(p.DB, s.BlacklistedTaxonomies),
		Meta:          modules.NewMetaModule(p.DB, s.MetaKeys, s.MaxPredicateBytes),
	}

	registry, err := modules.NewRegistry(
		modules.NewOptionsModule(p.DB, s.OptionWhitelist),
		modules.NewConstantsModule(s.Constants),
		a.Terms,
		a.Relationships,
		modules.NewPostsModule(p.DB),
		a.Meta,
		modules.NewCommentsModule(p.DB),
	)
	if err != nil {
		return nil, errors.Wrap(err, "registering modules")
	}

	listeners := []events.Listener{events.Logger{}, a.Metrics}
	if p.Config.HasEndpoint() {
		cl, err := client.New(client.Params{
			Endpoint: p.Config.Endpoint,
			APIKey:   p.Config.APIKey,
			Clock:    p.Clock,
		})
		if err != nil {
			return nil, errors.Wrap(err, "initializing client")
		}
		listeners = append(listeners, cl)
	}
	listeners = append(listeners, p.Listeners...)

	chunkSizes := map[string]int{}
	for _, name := range registry.Names() {
		chunkSizes[name] = s.ChunkSizeFor(name)
	}

	a.Engine, err = engine.New(engine.Params{
		Store:     a.Store,
		Locker:    a.Locker,
		Registry:  registry,
		Clock:     p.Clock,
		Listeners: listeners,
		Settings: engine.Settings{
			SendDuration:     time.Duration(s.SendDuration),
			ChunkSize:        s.ChunkSize,
			ModuleChunkSizes: chunkSizes,
			MaxChunksPerPass: s.MaxChunksPerPass,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "initializing engine")
	}

	return a, nil
}
