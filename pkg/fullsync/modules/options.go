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

	"github.com/fullsync/fullsync/pkg/fullsync/database"
	"github.com/fullsync/fullsync/pkg/fullsync/status"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Setting is a named site-wide value
type Setting struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// OptionsModule syncs whitelisted rows of the options table in one chunk
type OptionsModule struct {
	db        *gorm.DB
	whitelist []string
}

// NewOptionsModule returns the options module
func NewOptionsModule(db *gorm.DB, whitelist []string) *OptionsModule {
	return &OptionsModule{db: db, whitelist: whitelist}
}

// Name implements Module
func (m *OptionsModule) Name() string { return "options" }

// Global implements Module
func (m *OptionsModule) Global() bool { return true }

// FullSyncActionName implements Module
func (m *OptionsModule) FullSyncActionName() string { return actionName(m.Name()) }

func (m *OptionsModule) query(ctx context.Context, cfg status.ModuleConfig) *gorm.DB {
	q := m.db.WithContext(ctx).Model(&database.Option{}).Where("option_name IN ?", m.whitelist)
	if len(cfg.IDs) > 0 {
		q = q.Where("option_id IN ?", cfg.IDs)
	}

	return q
}

// Total implements Module
func (m *OptionsModule) Total(ctx context.Context, cfg status.ModuleConfig, _ *status.Range) (int64, error) {
	if len(m.whitelist) == 0 {
		return 0, nil
	}

	var n int64
	if err := m.query(ctx, cfg).Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, "counting options")
	}

	return n, nil
}

// NextChunk implements Module
func (m *OptionsModule) NextChunk(ctx context.Context, cfg status.ModuleConfig, p status.ModuleProgress, _ int) (Chunk, error) {
	c := Chunk{Objects: map[int64]interface{}{}, LastID: p.LastSent, Finished: true}
	if len(m.whitelist) == 0 {
		return c, nil
	}

	var rows []database.Option
	if err := m.query(ctx, cfg).Order("option_id").Find(&rows).Error; err != nil {
		return Chunk{}, errors.Wrap(err, "querying options")
	}

	for _, r := range rows {
		c.IDs = append(c.IDs, r.OptionID)
		c.Objects[r.OptionID] = Setting{Name: r.OptionName, Value: r.OptionValue}
		c.LastID = r.OptionID
	}

	return c, nil
}
