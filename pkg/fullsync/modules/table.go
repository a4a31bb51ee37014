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
	"fmt"
	"strings"

	"github.com/fullsync/fullsync/pkg/fullsync/status"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// TableModule syncs the rows of one table, keyed by its integer primary key
// and restricted to a column whitelist
type TableModule struct {
	db      *gorm.DB
	name    string
	table   string
	id      string
	where   string
	args    []interface{}
	columns []Column
}

// TableParams configures a TableModule
type TableParams struct {
	Name     string
	Table    string
	IDColumn string
	Where    string
	Args     []interface{}
	Columns  []Column
}

// NewTableModule returns a module over the given table
func NewTableModule(db *gorm.DB, p TableParams) *TableModule {
	return &TableModule{
		db:      db,
		name:    p.Name,
		table:   p.Table,
		id:      p.IDColumn,
		where:   p.Where,
		args:    p.Args,
		columns: p.Columns,
	}
}

// NewPostsModule returns the module over posts. Revisions and auto drafts
// are not synced.
func NewPostsModule(db *gorm.DB) *TableModule {
	return NewTableModule(db, TableParams{
		Name:     "posts",
		Table:    "posts",
		IDColumn: "id",
		Where:    "post_type <> ? AND post_status <> ?",
		Args:     []interface{}{"revision", "auto-draft"},
		Columns: append(
			intColumns("id", "post_author"),
			stringColumns("post_title", "post_content", "post_status", "post_type", "post_date")...,
		),
	})
}

// NewCommentsModule returns the module over comments. Spam is not synced.
func NewCommentsModule(db *gorm.DB) *TableModule {
	return NewTableModule(db, TableParams{
		Name:     "comments",
		Table:    "comments",
		IDColumn: "comment_id",
		Where:    "comment_approved <> ?",
		Args:     []interface{}{"spam"},
		Columns: append(
			intColumns("comment_id", "comment_post_id"),
			stringColumns("comment_author", "comment_content", "comment_approved")...,
		),
	})
}

// Name implements Module
func (m *TableModule) Name() string { return m.name }

// Global implements Module
func (m *TableModule) Global() bool { return false }

// FullSyncActionName implements Module
func (m *TableModule) FullSyncActionName() string { return actionName(m.name) }

func (m *TableModule) rangeSpec() RangeSpec {
	return RangeSpec{
		Table:    m.table,
		IDColumn: m.id,
		Where:    m.where,
		Args:     m.args,
	}
}

// Range implements Ranger
func (m *TableModule) Range(ctx context.Context, cfg status.ModuleConfig) (status.Range, error) {
	return GetRange(ctx, m.db, m.rangeSpec().withIDs(cfg.IDs))
}

// Total implements Module
func (m *TableModule) Total(ctx context.Context, cfg status.ModuleConfig, rng *status.Range) (int64, error) {
	return rangedTotal(ctx, m, cfg, rng)
}

// NextChunk implements Module
func (m *TableModule) NextChunk(ctx context.Context, cfg status.ModuleConfig, p status.ModuleProgress, size int) (Chunk, error) {
	ids, err := nextIDs(ctx, m.db, m.rangeSpec(), cfg, p, size)
	if err != nil {
		return Chunk{}, err
	}

	c := newChunk(ids, p, size)
	if len(ids) == 0 {
		return c, nil
	}

	objects, err := m.GetObjectsByID(ctx, ids)
	if err != nil {
		return Chunk{}, err
	}
	c.Objects = objects

	return c, nil
}

// GetObjectsByID returns the whitelisted columns of the given rows
func (m *TableModule) GetObjectsByID(ctx context.Context, ids []int64) (map[int64]interface{}, error) {
	names := make([]string, len(m.columns))
	for i, c := range m.columns {
		names[i] = c.Name
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN ? ORDER BY %s",
		strings.Join(names, ", "), m.table, m.id, m.id)

	var rows []map[string]interface{}
	if err := m.db.WithContext(ctx).Raw(query, ids).Scan(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "querying %s rows", m.table)
	}

	ret := make(map[int64]interface{}, len(rows))
	for _, row := range rows {
		ret[toInt64(row[m.id])] = castRow(row, m.columns)
	}

	return ret, nil
}
