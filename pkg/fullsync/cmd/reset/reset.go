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

package reset

import (
	"context"

	"github.com/fullsync/fullsync/pkg/fullsync/cmd/infra"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewCmd returns a new reset command
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard the full sync status and release the lock",
		RunE: infra.NewRunE(func(c *infra.Ctx, cmd *cobra.Command, args []string) error {
			return Do(cmd.Context(), c)
		}),
	}

	return cmd
}

// Do resets the full sync
func Do(ctx context.Context, c *infra.Ctx) error {
	if err := c.App.Engine.Reset(ctx); err != nil {
		return errors.Wrap(err, "resetting full sync")
	}

	c.Printer.Successf("full sync reset\n")

	return nil
}
