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

package start

import (
	"context"
	"strings"

	"github.com/fullsync/fullsync/pkg/fullsync/cmd/infra"
	"github.com/fullsync/fullsync/pkg/fullsync/status"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  * Start a full sync of every module
  fullsync start

  * Start a full sync of terms and of three posts
  fullsync start terms posts:1,2,3`

var sourceFlag string

// NewCmd returns a new start command
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start [modules...]",
		Short:   "Start a full sync, cancelling any unfinished one",
		Example: example,
		RunE: infra.NewRunE(func(c *infra.Ctx, cmd *cobra.Command, args []string) error {
			return Do(cmd.Context(), c, args, sourceFlag)
		}),
	}

	f := cmd.Flags()
	f.StringVar(&sourceFlag, "source", "cli", "label sent with the start marker")

	return cmd
}

// Do starts a full sync of the selected modules, or of every module if none
// is selected
func Do(ctx context.Context, c *infra.Ctx, selections []string, source string) error {
	cfg, err := status.ParseConfig(selections)
	if err != nil {
		return errors.Wrap(err, "parsing modules")
	}

	if err := c.App.Engine.Start(ctx, cfg, map[string]interface{}{"source": source}); err != nil {
		return errors.Wrap(err, "starting full sync")
	}

	st, err := c.App.Engine.Status(ctx)
	if err != nil {
		return errors.Wrap(err, "getting status")
	}

	c.Printer.Successf("started full sync of %s (%d objects)\n", strings.Join(st.Config.Modules(), ", "), st.Total())

	return nil
}
