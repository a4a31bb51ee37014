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
	"sort"
	"strings"

	"github.com/fullsync/fullsync/pkg/fullsync/database"
	"github.com/fullsync/fullsync/pkg/fullsync/status"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// DefaultMaxPredicateBytes is the default ceiling of a generated predicate
const DefaultMaxPredicateBytes = 15 * 1024

// ErrPredicateTooLarge is returned when a single object/key clause exceeds
// the predicate ceiling
var ErrPredicateTooLarge = errors.New("predicate exceeds the size ceiling")

const predicateSeparator = " OR "

// MetaKey is one attribute of one object
type MetaKey struct {
	ObjectID int64
	Key      string
}

// MetaValue is a stored attribute value
type MetaValue struct {
	MetaID   int64  `json:"meta_id"`
	ObjectID int64  `json:"object_id"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

// MetaResultKey returns the key of an attribute in the map returned by
// GetObjectsByID
func MetaResultKey(objectID int64, key string) string {
	return fmt.Sprintf("%d-%s", objectID, key)
}

// MetaModule syncs the attribute table of posts. Values are looked up in
// batches whose predicate stays under MaxPredicateBytes.
type MetaModule struct {
	db                *gorm.DB
	keys              []string
	MaxPredicateBytes int
}

// NewMetaModule returns a module over postmeta restricted to the given keys.
// An empty key list syncs every key.
func NewMetaModule(db *gorm.DB, keys []string, maxPredicateBytes int) *MetaModule {
	if maxPredicateBytes <= 0 {
		maxPredicateBytes = DefaultMaxPredicateBytes
	}

	return &MetaModule{db: db, keys: keys, MaxPredicateBytes: maxPredicateBytes}
}

// Name implements Module
func (m *MetaModule) Name() string { return "postmeta" }

// Global implements Module
func (m *MetaModule) Global() bool { return false }

// FullSyncActionName implements Module
func (m *MetaModule) FullSyncActionName() string { return actionName(m.Name()) }

func (m *MetaModule) whitelisted(key string) bool {
	if len(m.keys) == 0 {
		return true
	}
	for _, k := range m.keys {
		if k == key {
			return true
		}
	}
	return false
}

func (m *MetaModule) rangeSpec() RangeSpec {
	spec := RangeSpec{
		Table:    "postmeta",
		IDColumn: "post_id",
		Distinct: true,
	}
	if len(m.keys) > 0 {
		spec.Where = "meta_key IN ?"
		spec.Args = []interface{}{m.keys}
	}

	return spec
}

// Range implements Ranger
func (m *MetaModule) Range(ctx context.Context, cfg status.ModuleConfig) (status.Range, error) {
	return GetRange(ctx, m.db, m.rangeSpec().withIDs(cfg.IDs))
}

// Total implements Module
func (m *MetaModule) Total(ctx context.Context, cfg status.ModuleConfig, rng *status.Range) (int64, error) {
	return rangedTotal(ctx, m, cfg, rng)
}

// NextChunk implements Module. Each object maps its keys to their values.
func (m *MetaModule) NextChunk(ctx context.Context, cfg status.ModuleConfig, p status.ModuleProgress, size int) (Chunk, error) {
	ids, err := nextIDs(ctx, m.db, m.rangeSpec(), cfg, p, size)
	if err != nil {
		return Chunk{}, err
	}

	c := newChunk(ids, p, size)
	if len(ids) == 0 {
		return c, nil
	}

	pairs, err := m.keysOf(ctx, ids)
	if err != nil {
		return Chunk{}, err
	}

	values, err := m.GetObjectsByID(ctx, pairs)
	if err != nil {
		return Chunk{}, err
	}

	for _, id := range ids {
		c.Objects[id] = map[string][]string{}
	}
	for _, pair := range pairs {
		obj := c.Objects[pair.ObjectID].(map[string][]string)
		obj[pair.Key] = values[MetaResultKey(pair.ObjectID, pair.Key)]
	}

	return c, nil
}

// keysOf returns the distinct whitelisted keys stored for the given objects
func (m *MetaModule) keysOf(ctx context.Context, ids []int64) ([]MetaKey, error) {
	q := m.db.WithContext(ctx).Model(&database.PostMeta{}).
		Distinct("post_id", "meta_key").
		Where("post_id IN ?", ids)
	if len(m.keys) > 0 {
		q = q.Where("meta_key IN ?", m.keys)
	}

	var rows []database.PostMeta
	if err := q.Order("post_id").Order("meta_key").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "querying meta keys")
	}

	ret := make([]MetaKey, 0, len(rows))
	for _, r := range rows {
		ret = append(ret, MetaKey{ObjectID: r.PostID, Key: r.MetaKey})
	}

	return ret, nil
}

// quote renders s as a SQL string literal
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// metaClause renders the predicate selecting the given keys of one object
func metaClause(objectID int64, keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = quote(k)
	}

	return fmt.Sprintf("(post_id = %d AND meta_key IN (%s))", objectID, strings.Join(quoted, ","))
}

// groupMetaKeys groups pairs by object, dropping duplicate keys. Objects are
// returned in ascending id order and keys in request order.
func groupMetaKeys(pairs []MetaKey) ([]int64, map[int64][]string) {
	grouped := map[int64][]string{}
	seen := map[string]bool{}
	var ids []int64

	for _, p := range pairs {
		rk := MetaResultKey(p.ObjectID, p.Key)
		if seen[rk] {
			continue
		}
		seen[rk] = true

		if _, ok := grouped[p.ObjectID]; !ok {
			ids = append(ids, p.ObjectID)
		}
		grouped[p.ObjectID] = append(grouped[p.ObjectID], p.Key)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, grouped
}

// objectClauses renders the clauses of one object. An object whose clause
// is over the ceiling is split by keys.
func objectClauses(objectID int64, keys []string, max int) ([]string, error) {
	if c := metaClause(objectID, keys); len(c) <= max {
		return []string{c}, nil
	}

	var ret []string
	var batch []string
	for _, k := range keys {
		if single := metaClause(objectID, []string{k}); len(single) > max {
			return nil, errors.Wrapf(ErrPredicateTooLarge, "object %d key '%s'", objectID, k)
		}

		next := append(append([]string{}, batch...), k)
		if len(batch) > 0 && len(metaClause(objectID, next)) > max {
			ret = append(ret, metaClause(objectID, batch))
			batch = nil
		}
		batch = append(batch, k)
	}
	if len(batch) > 0 {
		ret = append(ret, metaClause(objectID, batch))
	}

	return ret, nil
}

// buildMetaPredicates ORs per-object clauses together, starting a new
// predicate whenever the next clause would push the current one over max
// bytes
func buildMetaPredicates(pairs []MetaKey, max int) ([]string, error) {
	ids, grouped := groupMetaKeys(pairs)

	var ret []string
	var current strings.Builder

	for _, id := range ids {
		clauses, err := objectClauses(id, grouped[id], max)
		if err != nil {
			return nil, err
		}

		for _, c := range clauses {
			if current.Len() > 0 && current.Len()+len(predicateSeparator)+len(c) > max {
				ret = append(ret, current.String())
				current.Reset()
			}

			if current.Len() > 0 {
				current.WriteString(predicateSeparator)
			}
			current.WriteString(c)
		}
	}

	if current.Len() > 0 {
		ret = append(ret, current.String())
	}

	return ret, nil
}

// GetObjectsByID resolves the values of the given object/key pairs. The
// result is keyed by MetaResultKey and lists every value of a key in storage
// order. Keys outside the whitelist are ignored.
func (m *MetaModule) GetObjectsByID(ctx context.Context, pairs []MetaKey) (map[string][]string, error) {
	var allowed []MetaKey
	for _, p := range pairs {
		if p.ObjectID > 0 && m.whitelisted(p.Key) {
			allowed = append(allowed, p)
		}
	}

	predicates, err := buildMetaPredicates(allowed, m.MaxPredicateBytes)
	if err != nil {
		return nil, err
	}

	ret := map[string][]string{}
	for _, predicate := range predicates {
		var rows []database.PostMeta
		if err := m.db.WithContext(ctx).Where(predicate).Order("meta_id").Find(&rows).Error; err != nil {
			return nil, errors.Wrap(err, "querying meta values")
		}

		for _, r := range rows {
			k := MetaResultKey(r.PostID, r.MetaKey)
			ret[k] = append(ret[k], r.MetaValue)
		}
	}

	return ret, nil
}

// GetObjectByID returns the first value of one key of one object, or nil if
// there is none
func (m *MetaModule) GetObjectByID(ctx context.Context, objectID int64, key string) (*MetaValue, error) {
	if !m.whitelisted(key) {
		return nil, nil
	}

	var row database.PostMeta
	err := m.db.WithContext(ctx).
		Where("post_id = ? AND meta_key = ?", objectID, key).
		Order("meta_id").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "querying meta value")
	}

	return &MetaValue{
		MetaID:   row.MetaID,
		ObjectID: row.PostID,
		Key:      row.MetaKey,
		Value:    row.MetaValue,
	}, nil
}
