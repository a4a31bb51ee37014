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
	"strings"

	"github.com/fullsync/fullsync/pkg/fullsync/helpers"
	"github.com/pkg/errors"
)

// ErrModuleNameEmpty is returned for a module selection without a name
var ErrModuleNameEmpty = errors.New("module name is empty")

// ParseConfig builds a config from module selections of the form "name" or
// "name:1,2,3". Repeating a name merges its id lists, and selecting a module
// without ids selects all of its records.
func ParseConfig(selections []string) (Config, error) {
	ret := Config{}
	all := map[string]bool{}

	for _, sel := range selections {
		name, ids, hasIDs := strings.Cut(strings.TrimSpace(sel), ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.Wrapf(ErrModuleNameEmpty, "parsing '%s'", sel)
		}

		mc := ret[name]
		mc.Enabled = true

		if !hasIDs {
			all[name] = true
		} else {
			parsed, err := helpers.ParseIDs([]string{ids})
			if err != nil {
				return nil, errors.Wrapf(err, "parsing ids of %s", name)
			}
			mc.IDs = append(mc.IDs, parsed...)
		}

		ret[name] = mc
	}

	for name, mc := range ret {
		if all[name] {
			mc.IDs = nil
		} else {
			mc.IDs = helpers.SanitizeIDs(mc.IDs)
		}
		ret[name] = mc
	}

	return ret, nil
}
