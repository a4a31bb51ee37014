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

package modules

import (
	"context"
	"sort"

	"github.com/fullsync/fullsync/pkg/fullsync/status"
)

// ConstantsModule syncs configured name/value pairs in one chunk. Ids are
// assigned by ascending name, starting at 1.
type ConstantsModule struct {
	values map[string]string
}

// NewConstantsModule returns the constants module
func NewConstantsModule(values map[string]string) *ConstantsModule {
	return &ConstantsModule{values: values}
}

// Name implements Module
func (m *ConstantsModule) Name() string { return "constants" }

// Global implements Module
func (m *ConstantsModule) Global() bool { return true }

// FullSyncActionName implements Module
func (m *ConstantsModule) FullSyncActionName() string { return actionName(m.Name()) }

func (m *ConstantsModule) settings(cfg status.ModuleConfig) map[int64]Setting {
	names := make([]string, 0, len(m.values))
	for name := range m.values {
		names = append(names, name)
	}
	sort.Strings(names)

	selected := map[int64]bool{}
	for _, id := range cfg.IDs {
		selected[id] = true
	}

	ret := map[int64]Setting{}
	for i, name := range names {
		id := int64(i + 1)
		if len(selected) > 0 && !selected[id] {
			continue
		}
		ret[id] = Setting{Name: name, Value: m.values[name]}
	}

	return ret
}

// Total implements Module
func (m *ConstantsModule) Total(_ context.Context, cfg status.ModuleConfig, _ *status.Range) (int64, error) {
	return int64(len(m.settings(cfg))), nil
}

// NextChunk implements Module
func (m *ConstantsModule) NextChunk(_ context.Context, cfg status.ModuleConfig, p status.ModuleProgress, _ int) (Chunk, error) {
	c := Chunk{Objects: map[int64]interface{}{}, LastID: p.LastSent, Finished: true}

	settings := m.settings(cfg)
	for id := range settings {
		c.IDs = append(c.IDs, id)
	}
	sort.Slice(c.IDs, func(i, j int) bool { return c.IDs[i] < c.IDs[j] })

	for _, id := range c.IDs {
		c.Objects[id] = settings[id]
		c.LastID = id
	}

	return c, nil
}
