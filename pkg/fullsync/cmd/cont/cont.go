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

// Package cont provides the continue command
package cont

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/fullsync/fullsync/pkg/fullsync/cmd/infra"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  * Run one send pass
  fullsync continue

  * Keep sending until the full sync is finished
  fullsync continue --until-finished`

var (
	untilFinishedFlag bool
	waitFlag          time.Duration
)

// NewCmd returns a new continue command
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "continue",
		Short:   "Run a send pass of the current full sync",
		Example: example,
		RunE: infra.NewRunE(func(c *infra.Ctx, cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return Do(ctx, c, Params{UntilFinished: untilFinishedFlag, Wait: waitFlag})
		}),
	}

	f := cmd.Flags()
	f.BoolVar(&untilFinishedFlag, "until-finished", false, "keep running passes until the full sync is finished")
	f.DurationVar(&waitFlag, "wait", time.Second, "pause before retrying when a pass could not run")

	return cmd
}

// Params are the parameters of the continue command
type Params struct {
	UntilFinished bool
	Wait          time.Duration
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs send passes and prints the progress after each one
func Do(ctx context.Context, c *infra.Ctx, p Params) error {
	for {
		ran, err := c.App.Engine.Continue(ctx)
		if err != nil {
			return errors.Wrap(err, "continuing full sync")
		}

		st, err := c.App.Engine.Status(ctx)
		if err != nil {
			return errors.Wrap(err, "getting status")
		}

		if !st.IsSending() {
			c.Printer.Status(st)
			return nil
		}

		if ran {
			c.Printer.Infof("sent %d/%d\n", st.Sent(), st.Total())
		} else {
			c.Printer.Warnf("no pass ran: another process holds the lock or the remote asked to wait\n")
		}

		if !p.UntilFinished {
			return nil
		}

		if !ran {
			if err := wait(ctx, p.Wait); err != nil {
				return errors.Wrap(err, "waiting for the next pass")
			}
		} else if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "continuing full sync")
		}
	}
}
