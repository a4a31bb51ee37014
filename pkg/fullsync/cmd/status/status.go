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

	"github.com/fullsync/fullsync/pkg/fullsync/cmd/infra"
	"github.com/fullsync/fullsync/pkg/fullsync/server"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var jsonFlag bool

// NewCmd returns a new status command
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the progress of the full sync",
		RunE: infra.NewRunE(func(c *infra.Ctx, cmd *cobra.Command, args []string) error {
			return Do(cmd.Context(), c, jsonFlag)
		}),
	}

	f := cmd.Flags()
	f.BoolVar(&jsonFlag, "json", false, "print the status as JSON")

	return cmd
}

// Do prints the status
func Do(ctx context.Context, c *infra.Ctx, asJSON bool) error {
	st, err := c.App.Engine.Status(ctx)
	if err != nil {
		return errors.Wrap(err, "getting status")
	}

	if asJSON {
		return c.Printer.JSON(server.PresentStatus(st))
	}

	c.Printer.Status(st)

	return nil
}
