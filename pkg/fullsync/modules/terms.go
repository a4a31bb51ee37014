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
	"html"
	"strings"

	"github.com/fullsync/fullsync/pkg/fullsync/helpers"
	"github.com/fullsync/fullsync/pkg/fullsync/status"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ObjectKind selects the shape of the objects resolved by the terms module
type ObjectKind string

const (
	// ObjectTerm resolves terms keyed by term id
	ObjectTerm ObjectKind = "term"
	// ObjectTermTaxonomy resolves term taxonomies keyed by term taxonomy id
	ObjectTermTaxonomy ObjectKind = "term_taxonomy"
	// ObjectTermRelationship resolves the relationships of objects keyed by
	// object id
	ObjectTermRelationship ObjectKind = "term_relationship"
)

// ErrUnknownObjectKind is returned for an unsupported object kind
var ErrUnknownObjectKind = errors.New("unknown object kind")

var (
	termColumns = append(intColumns("term_id", "term_group"), stringColumns("name", "slug")...)

	termTaxonomyColumns = append(
		intColumns("term_taxonomy_id", "term_id", "parent", "count"),
		stringColumns("taxonomy", "description")...,
	)

	termRelationshipColumns = append(
		intColumns("object_id", "term_taxonomy_id", "term_order", "term_id"),
		stringColumns("taxonomy")...,
	)
)

// ObjectRelationships holds every relationship of one object
type ObjectRelationships struct {
	ObjectID      int64                    `json:"object_id"`
	Relationships []map[string]interface{} `json:"relationships"`
}

// termQuery describes how one object kind is fetched and reshaped
type termQuery struct {
	from     string
	idColumn string
	selects  []string
	distinct bool
	orderBy  string
	reshape  func(rows []map[string]interface{}) map[int64]interface{}
}

var termQueries = map[ObjectKind]termQuery{
	ObjectTerm: {
		from:     "terms t INNER JOIN term_taxonomy tt ON tt.term_id = t.term_id",
		idColumn: "t.term_id",
		selects:  []string{"t.term_id AS term_id", "t.name AS name", "t.slug AS slug", "t.term_group AS term_group"},
		distinct: true,
		orderBy:  "t.term_id",
		reshape:  reshapeTerms,
	},
	ObjectTermTaxonomy: {
		from:     "term_taxonomy tt",
		idColumn: "tt.term_taxonomy_id",
		selects: []string{
			"tt.term_taxonomy_id AS term_taxonomy_id", "tt.term_id AS term_id", "tt.taxonomy AS taxonomy",
			"tt.description AS description", "tt.parent AS parent", "tt.count AS count",
		},
		orderBy: "tt.term_taxonomy_id",
		reshape: reshapeTermTaxonomies,
	},
	ObjectTermRelationship: {
		from:     "term_relationships tr INNER JOIN term_taxonomy tt ON tt.term_taxonomy_id = tr.term_taxonomy_id",
		idColumn: "tr.object_id",
		selects: []string{
			"tr.object_id AS object_id", "tr.term_taxonomy_id AS term_taxonomy_id", "tr.term_order AS term_order",
			"tt.term_id AS term_id", "tt.taxonomy AS taxonomy",
		},
		orderBy: "tr.object_id, tr.term_order, tr.term_taxonomy_id",
		reshape: reshapeTermRelationships,
	},
}

// reshapeTerms flattens term rows. Names are stored entity encoded; name
// carries the decoded form and raw_name the stored bytes.
func reshapeTerms(rows []map[string]interface{}) map[int64]interface{} {
	ret := make(map[int64]interface{}, len(rows))

	for _, row := range rows {
		obj := castRow(row, termColumns)
		raw := toString(row["name"])
		obj["raw_name"] = raw
		obj["name"] = html.UnescapeString(raw)

		ret[toInt64(row["term_id"])] = obj
	}

	return ret
}

func reshapeTermTaxonomies(rows []map[string]interface{}) map[int64]interface{} {
	ret := make(map[int64]interface{}, len(rows))

	for _, row := range rows {
		ret[toInt64(row["term_taxonomy_id"])] = castRow(row, termTaxonomyColumns)
	}

	return ret
}

// reshapeTermRelationships groups flat relationship rows under their object
func reshapeTermRelationships(rows []map[string]interface{}) map[int64]interface{} {
	grouped := map[int64]*ObjectRelationships{}

	for _, row := range rows {
		id := toInt64(row["object_id"])

		o, ok := grouped[id]
		if !ok {
			o = &ObjectRelationships{ObjectID: id}
			grouped[id] = o
		}

		rel := castRow(row, termRelationshipColumns)
		delete(rel, "object_id")
		o.Relationships = append(o.Relationships, rel)
	}

	ret := make(map[int64]interface{}, len(grouped))
	for id, o := range grouped {
		ret[id] = *o
	}

	return ret
}

// TermsModule syncs the taxonomy tables. The same fetch resolves terms, term
// taxonomies and object relationships; kind selects what the module chunks.
type TermsModule struct {
	db        *gorm.DB
	name      string
	kind      ObjectKind
	blacklist []string
}

// NewTermsModule returns the module that chunks term taxonomies
func NewTermsModule(db *gorm.DB, blacklist []string) *TermsModule {
	return &TermsModule{db: db, name: "terms", kind: ObjectTermTaxonomy, blacklist: blacklist}
}

// NewTermRelationshipsModule returns the module that chunks object
// relationships
func NewTermRelationshipsModule(db *gorm.DB, blacklist []string) *TermsModule {
	return &TermsModule{db: db, name: "term_relationships", kind: ObjectTermRelationship, blacklist: blacklist}
}

// Name implements Module
func (m *TermsModule) Name() string { return m.name }

// Global implements Module
func (m *TermsModule) Global() bool { return false }

// FullSyncActionName implements Module
func (m *TermsModule) FullSyncActionName() string { return actionName(m.name) }

func (m *TermsModule) blacklistClause() (string, []interface{}) {
	if len(m.blacklist) == 0 {
		return "", nil
	}

	return "tt.taxonomy NOT IN ?", []interface{}{m.blacklist}
}

func (m *TermsModule) rangeSpec() RangeSpec {
	q := termQueries[m.kind]
	where, args := m.blacklistClause()

	return RangeSpec{
		Table:    q.from,
		IDColumn: q.idColumn,
		Where:    where,
		Args:     args,
		Distinct: m.kind != ObjectTermTaxonomy,
	}
}

// Range implements Ranger
func (m *TermsModule) Range(ctx context.Context, cfg status.ModuleConfig) (status.Range, error) {
	return GetRange(ctx, m.db, m.rangeSpec().withIDs(cfg.IDs))
}

// Total implements Module
func (m *TermsModule) Total(ctx context.Context, cfg status.ModuleConfig, rng *status.Range) (int64, error) {
	return rangedTotal(ctx, m, cfg, rng)
}

// NextChunk implements Module
func (m *TermsModule) NextChunk(ctx context.Context, cfg status.ModuleConfig, p status.ModuleProgress, size int) (Chunk, error) {
	ids, err := nextIDs(ctx, m.db, m.rangeSpec(), cfg, p, size)
	if err != nil {
		return Chunk{}, err
	}

	c := newChunk(ids, p, size)
	if len(ids) == 0 {
		return c, nil
	}

	objects, err := m.GetObjectsByID(ctx, m.kind, ids)
	if err != nil {
		return Chunk{}, err
	}
	c.Objects = objects

	return c, nil
}

// GetObjectsByID resolves the objects of the given kind with one query.
// Ids are sanitized first and rows in blacklisted taxonomies are excluded.
func (m *TermsModule) GetObjectsByID(ctx context.Context, kind ObjectKind, ids []int64) (map[int64]interface{}, error) {
	q, ok := termQueries[kind]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownObjectKind, "'%s'", kind)
	}

	ids = helpers.SanitizeIDs(ids)
	if len(ids) == 0 {
		return map[int64]interface{}{}, nil
	}

	clauses := []string{q.idColumn + " IN ?"}
	args := []interface{}{ids}
	if where, whereArgs := m.blacklistClause(); where != "" {
		clauses = append(clauses, where)
		args = append(args, whereArgs...)
	}

	selected := strings.Join(q.selects, ", ")
	if q.distinct {
		selected = "DISTINCT " + selected
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		selected, q.from, strings.Join(clauses, " AND "), q.orderBy)

	var rows []map[string]interface{}
	if err := m.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "querying %s objects", kind)
	}

	return q.reshape(rows), nil
}
