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

package helpers

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SanitizeIDs drops non-positive ids, removes duplicates and sorts the rest
// in ascending order
func SanitizeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	ret := make([]int64, 0, len(ids))

	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}

		seen[id] = true
		ret = append(ret, id)
	}

	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })

	return ret
}

// ParseIDs parses a list of ids given as strings, each of which may itself
// be a comma separated list
func ParseIDs(args []string) ([]int64, error) {
	var ret []int64

	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}

			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing id '%s'", part)
			}

			ret = append(ret, id)
		}
	}

	return ret, nil
}
