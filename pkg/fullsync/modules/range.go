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
	"database/sql"
	"fmt"
	"strings"

	"github.com/fullsync/fullsync/pkg/fullsync/status"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// RangeSpec describes the rows of a module. Table may be a join expression
// and Where a filter with gorm placeholders bound to Args. Distinct counts
// distinct ids for tables holding several rows per id.
type RangeSpec struct {
	Table    string
	IDColumn string
	Where    string
	Args     []interface{}
	Distinct bool
}

// withIDs restricts the spec to the given ids
func (s RangeSpec) withIDs(ids []int64) RangeSpec {
	if len(ids) == 0 {
		return s
	}

	clause := fmt.Sprintf("%s IN ?", s.IDColumn)
	args := append(append([]interface{}{}, s.Args...), ids)
	if s.Where != "" {
		clause = fmt.Sprintf("(%s) AND %s", s.Where, clause)
	}
	s.Where = clause
	s.Args = args

	return s
}

func (s RangeSpec) whereSQL(extra ...string) string {
	var clauses []string
	if s.Where != "" {
		clauses = append(clauses, "("+s.Where+")")
	}
	clauses = append(clauses, extra...)

	if len(clauses) == 0 {
		return ""
	}

	return " WHERE " + strings.Join(clauses, " AND ")
}

type rangeRow struct {
	MinID    sql.NullInt64
	MaxID    sql.NullInt64
	RowCount int64
}

// GetRange returns the minimum and maximum id and the row count of the rows
// described by spec, in one query
func GetRange(ctx context.Context, db *gorm.DB, spec RangeSpec) (status.Range, error) {
	count := spec.IDColumn
	if spec.Distinct {
		count = "DISTINCT " + count
	}

	query := fmt.Sprintf("SELECT MIN(%s) AS min_id, MAX(%s) AS max_id, COUNT(%s) AS row_count FROM %s%s",
		spec.IDColumn, spec.IDColumn, count, spec.Table, spec.whereSQL())

	var row rangeRow
	if err := db.WithContext(ctx).Raw(query, spec.Args...).Scan(&row).Error; err != nil {
		return status.Range{}, errors.Wrapf(err, "querying range of %s", spec.Table)
	}

	return status.Range{
		Min:   row.MinID.Int64,
		Max:   row.MaxID.Int64,
		Count: row.RowCount,
	}, nil
}

// nextIDs returns up to size ids after the progress cursor, bounded by the
// progress ceiling
func nextIDs(ctx context.Context, db *gorm.DB, spec RangeSpec, cfg status.ModuleConfig, p status.ModuleProgress, size int) ([]int64, error) {
	spec = spec.withIDs(cfg.IDs)

	args := append([]interface{}{}, spec.Args...)
	extra := []string{spec.IDColumn + " > ?"}
	args = append(args, p.LastSent)
	if p.MaxID > 0 {
		extra = append(extra, spec.IDColumn+" <= ?")
		args = append(args, p.MaxID)
	}
	args = append(args, size)

	selected := spec.IDColumn
	if spec.Distinct {
		selected = "DISTINCT " + selected
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT ?",
		selected, spec.Table, spec.whereSQL(extra...), spec.IDColumn)

	var ids []int64
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&ids).Error; err != nil {
		return nil, errors.Wrapf(err, "querying ids of %s", spec.Table)
	}

	return ids, nil
}

// newChunk wraps ids fetched for a request of the given size. The module is
// finished once a short page is returned or the ceiling is reached.
func newChunk(ids []int64, p status.ModuleProgress, size int) Chunk {
	c := Chunk{
		IDs:     ids,
		Objects: make(map[int64]interface{}, len(ids)),
		LastID:  p.LastSent,
	}

	if len(ids) > 0 {
		c.LastID = ids[len(ids)-1]
	}
	c.Finished = len(ids) < size || (p.MaxID > 0 && c.LastID >= p.MaxID)

	return c
}

// rangedTotal returns the count of rng, computing the range if absent
func rangedTotal(ctx context.Context, r Ranger, cfg status.ModuleConfig, rng *status.Range) (int64, error) {
	if rng != nil {
		return rng.Count, nil
	}

	got, err := r.Range(ctx, cfg)
	if err != nil {
		return 0, err
	}

	return got.Count, nil
}
