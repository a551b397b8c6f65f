/*
 * Copyright 2025 The RuleGo Authors.
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

package operator

import "sort"

// OrderField is one ORDER BY term.
type OrderField struct {
	Field string
	Desc  bool
}

// OrderByLimitOp sorts and slices one emission batch — per window
// trigger, never across the unbounded stream. ORDER BY outside a
// window-triggered context has no finite semantics and is rejected at
// plan-instantiation time, so it never reaches this operator.
type OrderByLimitOp struct {
	orderBy []OrderField
	limit   int // <=0 means no limit
	offset  int
}

func NewOrderByLimitOp(orderBy []OrderField, limit, offset int) *OrderByLimitOp {
	return &OrderByLimitOp{orderBy: orderBy, limit: limit, offset: offset}
}

func (o *OrderByLimitOp) Apply(rows []map[string]interface{}) []map[string]interface{} {
	if len(o.orderBy) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, f := range o.orderBy {
				cmp := compareAny(rows[i][f.Field], rows[j][f.Field])
				if cmp == 0 {
					continue
				}
				if f.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}

	if o.offset > 0 {
		if o.offset >= len(rows) {
			return nil
		}
		rows = rows[o.offset:]
	}
	if o.limit > 0 && o.limit < len(rows) {
		rows = rows[:o.limit]
	}
	return rows
}

// compareAny orders two loosely-typed values: numerics compare numerically,
// everything else falls back to string comparison, the same cast-based
// coercion used throughout window/aggregator code.
func compareAny(a, b interface{}) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := toString(a), toString(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
