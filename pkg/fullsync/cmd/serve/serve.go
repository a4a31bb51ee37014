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

package serve

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fullsync/fullsync/pkg/fullsync/cmd/infra"
	"github.com/fullsync/fullsync/pkg/fullsync/config"
	"github.com/fullsync/fullsync/pkg/fullsync/log"
	"github.com/fullsync/fullsync/pkg/fullsync/server"
	"github.com/pkg/errors"
	"github.com/robfig/cron"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	portFlag     string
	scheduleFlag string
)

// NewCmd returns a new serve command
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin API and continue the full sync on a schedule",
		RunE: infra.NewRunE(func(c *infra.Ctx, cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return Do(ctx, c)
		}, func(p *config.Params) {
			p.Port = portFlag
			p.Schedule = scheduleFlag
		}),
	}

	f := cmd.Flags()
	f.StringVar(&portFlag, "port", "", "server port (env: PORT, default: 3010)")
	f.StringVar(&scheduleFlag, "schedule", "", "cron schedule of send passes (env: FULLSYNC_SCHEDULE, default: @every 30s)")

	return cmd
}

// runPass runs one scheduled send pass
func runPass(ctx context.Context, c *infra.Ctx) {
	ran, err := c.App.Engine.Continue(ctx)
	if err != nil {
		log.ErrorWrap(err, "running scheduled pass")
		return
	}

	log.WithFields(log.Fields{
		"ran": ran,
	}).Debug("Scheduled pass done.")
}

// newScheduler returns a scheduler running a send pass on the given schedule
func newScheduler(ctx context.Context, c *infra.Ctx, schedule string) (*cron.Cron, error) {
	sched := cron.New()
	if err := sched.AddFunc(schedule, func() { runPass(ctx, c) }); err != nil {
		return nil, errors.Wrapf(err, "parsing schedule '%s'", schedule)
	}

	return sched, nil
}

// Do serves the admin API and runs scheduled passes until ctx is done
func Do(ctx context.Context, c *infra.Ctx) error {
	cfg := c.App.Config

	srv, err := server.New(fmt.Sprintf(":%s", cfg.Port), server.Params{
		Syncer:  c.App.Engine,
		Clock:   c.App.Clock,
		Metrics: c.App.Metrics.Handler(),
	})
	if err != nil {
		return errors.Wrap(err, "initializing server")
	}

	sched, err := newScheduler(ctx, c, cfg.Schedule)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		sched.Stop()
		return nil
	})

	g.Go(func() error {
		log.WithFields(log.Fields{
			"port":     cfg.Port,
			"schedule": cfg.Schedule,
		}).Info("fullsync server starting")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serving")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutting down server")
		}
		return nil
	})

	return g.Wait()
}
