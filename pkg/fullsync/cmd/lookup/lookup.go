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

// Package lookup provides commands resolving objects the way the modules
// send them
package lookup

import (
	"context"
	"strconv"

	"github.com/fullsync/fullsync/pkg/fullsync/cmd/infra"
	"github.com/fullsync/fullsync/pkg/fullsync/helpers"
	"github.com/fullsync/fullsync/pkg/fullsync/modules"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// ErrPairsInvalid is returned when meta arguments do not form id/key pairs
var ErrPairsInvalid = errors.New("expected pairs of post id and meta key")

var example = `
  * Look up terms by id
  fullsync lookup term 1 2 3

  * Look up the terms of two posts
  fullsync lookup relationship 10,11

  * Look up meta values
  fullsync lookup meta 10 color 11 color`

// NewCmd returns a new lookup command
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "lookup",
		Short:   "Resolve objects by id as they would be sent",
		Example: example,
	}

	cmd.AddCommand(newKindCmd("term", "Look up terms by term id", modules.ObjectTerm))
	cmd.AddCommand(newKindCmd("taxonomy", "Look up term taxonomies by id", modules.ObjectTermTaxonomy))
	cmd.AddCommand(newKindCmd("relationship", "Look up the terms of objects by object id", modules.ObjectTermRelationship))
	cmd.AddCommand(&cobra.Command{
		Use:   "meta <post id> <key> [<post id> <key>...]",
		Short: "Look up whitelisted meta values",
		Args:  cobra.MinimumNArgs(2),
		RunE: infra.NewRunE(func(c *infra.Ctx, cmd *cobra.Command, args []string) error {
			return Meta(cmd.Context(), c, args)
		}),
	})

	return cmd
}

func newKindCmd(use, short string, kind modules.ObjectKind) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <ids...>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: infra.NewRunE(func(c *infra.Ctx, cmd *cobra.Command, args []string) error {
			return Terms(cmd.Context(), c, kind, args)
		}),
	}
}

// Terms prints the term objects of the given kind
func Terms(ctx context.Context, c *infra.Ctx, kind modules.ObjectKind, args []string) error {
	ids, err := helpers.ParseIDs(args)
	if err != nil {
		return errors.Wrap(err, "parsing ids")
	}

	m := c.App.Terms
	if kind == modules.ObjectTermRelationship {
		m = c.App.Relationships
	}

	objects, err := m.GetObjectsByID(ctx, kind, ids)
	if err != nil {
		return errors.Wrap(err, "looking up objects")
	}

	return c.Printer.JSON(objects)
}

// parsePairs reads alternating post ids and meta keys
func parsePairs(args []string) ([]modules.MetaKey, error) {
	if len(args)%2 != 0 {
		return nil, ErrPairsInvalid
	}

	var ret []modules.MetaKey
	for i := 0; i < len(args); i += 2 {
		id, err := strconv.ParseInt(args[i], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing post id '%s'", args[i])
		}

		ret = append(ret, modules.MetaKey{ObjectID: id, Key: args[i+1]})
	}

	return ret, nil
}

// Meta prints the values of the given post id and meta key pairs. A single
// pair prints the first value only.
func Meta(ctx context.Context, c *infra.Ctx, args []string) error {
	pairs, err := parsePairs(args)
	if err != nil {
		return err
	}

	if len(pairs) == 1 {
		v, err := c.App.Meta.GetObjectByID(ctx, pairs[0].ObjectID, pairs[0].Key)
		if err != nil {
			return errors.Wrap(err, "looking up meta value")
		}
		if v == nil {
			c.Printer.Warnf("no value for %s on %d\n", pairs[0].Key, pairs[0].ObjectID)
			return nil
		}

		return c.Printer.JSON(v)
	}

	values, err := c.App.Meta.GetObjectsByID(ctx, pairs)
	if err != nil {
		return errors.Wrap(err, "looking up meta values")
	}

	return c.Printer.JSON(values)
}
