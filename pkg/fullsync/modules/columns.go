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
	"fmt"
	"strconv"
	"time"
)

// ColumnKind is the declared type a column is cast to
type ColumnKind int

const (
	// ColumnInt casts to int64
	ColumnInt ColumnKind = iota
	// ColumnString casts to string
	ColumnString
)

// Column is a whitelisted column of a module's rows
type Column struct {
	Name string
	Kind ColumnKind
}

func intColumns(names ...string) []Column {
	ret := make([]Column, 0, len(names))
	for _, n := range names {
		ret = append(ret, Column{Name: n, Kind: ColumnInt})
	}
	return ret
}

func stringColumns(names ...string) []Column {
	ret := make([]Column, 0, len(names))
	for _, n := range names {
		ret = append(ret, Column{Name: n, Kind: ColumnString})
	}
	return ret
}

func toInt64(v interface{}) int64 {
	switch v := v.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int8:
		return int64(v)
	case uint:
		return int64(v)
	case uint64:
		return int64(v)
	case uint32:
		return int64(v)
	case uint16:
		return int64(v)
	case uint8:
		return int64(v)
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func toString(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(v)
	}
}

// castRow keeps the whitelisted columns of row, cast to their declared kinds
func castRow(row map[string]interface{}, columns []Column) map[string]interface{} {
	ret := make(map[string]interface{}, len(columns))

	for _, c := range columns {
		v := row[c.Name]

		switch c.Kind {
		case ColumnInt:
			ret[c.Name] = toInt64(v)
		default:
			ret[c.Name] = toString(v)
		}
	}

	return ret
}
