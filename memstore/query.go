// Copyright 2025 The FireSchema Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memstore

import (
	"bytes"
	"context"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/shtse8/fireschema-go-runtime/driver"
	"github.com/shtse8/fireschema-go-runtime/internal/fserr"
)

// RunQuery implements driver.Collection.RunQuery.
func (c *collection) RunQuery(ctx context.Context, q *driver.Query) ([]driver.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkQuery(q); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var results []result
	for id, doc := range c.docs {
		if !filtersMatch(q.Filters, doc.Fields) {
			continue
		}
		// A document missing a sort key has no position in the order and is
		// excluded from the result set.
		if hasOrderFields(doc.Fields, q.Orders) {
			results = append(results, result{id: id, doc: doc})
		}
	}
	sortResults(results, q.Orders)

	results, err := applyCursors(results, q)
	if err != nil {
		return nil, err
	}
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	if q.LimitToLast > 0 && len(results) > q.LimitToLast {
		results = results[len(results)-q.LimitToLast:]
	}

	snaps := make([]driver.Snapshot, len(results))
	for i, r := range results {
		snaps[i] = driver.Snapshot{
			ID:         r.id,
			Fields:     copyMap(r.doc.Fields),
			Exists:     true,
			UpdateTime: r.doc.UpdateTime,
		}
	}
	return snaps, nil
}

type result struct {
	id  string
	doc *storedDoc
}

func checkQuery(q *driver.Query) error {
	if q.Limit > 0 && q.LimitToLast > 0 {
		return fserr.Newf(fserr.InvalidArgument, nil, "memstore: query cannot have both Limit and LimitToLast")
	}
	if q.LimitToLast > 0 && len(q.Orders) == 0 {
		return fserr.Newf(fserr.InvalidArgument, nil, "memstore: LimitToLast requires at least one OrderBy clause")
	}
	for _, cur := range []*driver.Cursor{q.Start, q.End} {
		if cur == nil {
			continue
		}
		// A snapshot anchor needs no OrderBy clause; it anchors on the
		// document ID order. A value tuple must align with the sort keys.
		if len(cur.Values) > len(q.Orders) {
			return fserr.Newf(fserr.InvalidArgument, nil,
				"memstore: cursor has %d values but the query has only %d OrderBy clauses", len(cur.Values), len(q.Orders))
		}
	}
	return nil
}

func filtersMatch(fs []driver.Filter, fields map[string]interface{}) bool {
	for _, f := range fs {
		if !filterMatches(f, fields) {
			return false
		}
	}
	return true
}

func filterMatches(f driver.Filter, fields map[string]interface{}) bool {
	docval, ok := getAtFieldPath(fields, f.FieldPath)
	// A missing field matches nothing, not even "!=" and "not-in".
	if !ok {
		return false
	}
	switch f.Op {
	case driver.ArrayContainsOp:
		arr, ok := docval.([]interface{})
		return ok && containsElem(arr, f.Value)
	case driver.InOp:
		return inCandidates(docval, f.Value)
	case driver.NotInOp:
		return !inCandidates(docval, f.Value)
	case driver.ArrayContainsAnyOp:
		arr, ok := docval.([]interface{})
		if !ok {
			return false
		}
		for _, cand := range candidateSlice(f.Value) {
			if containsElem(arr, cand) {
				return true
			}
		}
		return false
	case driver.NotEqualOp:
		return !equalValues(docval, f.Value)
	default:
		c, ok := compare(docval, f.Value)
		if !ok {
			return false
		}
		return applyComparison(f.Op, c)
	}
}

// applyComparison evaluates an ordering operator against the result of
// compare.
func applyComparison(op string, c int) bool {
	switch op {
	case driver.EqualOp:
		return c == 0
	case driver.GreaterThanOp:
		return c > 0
	case driver.LessThanOp:
		return c < 0
	case driver.GreaterThanEqualOp:
		return c >= 0
	case driver.LessThanEqualOp:
		return c <= 0
	default:
		panic("bad op")
	}
}

func inCandidates(docval, value interface{}) bool {
	for _, cand := range candidateSlice(value) {
		if equalValues(docval, cand) {
			return true
		}
	}
	return false
}

// candidateSlice flattens the candidate set of a set operator into
// []interface{}. The typed layer guarantees the value is a slice or array.
func candidateSlice(value interface{}) []interface{} {
	if s, ok := value.([]interface{}); ok {
		return s
	}
	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil
	}
	out := make([]interface{}, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = v.Index(i).Interface()
	}
	return out
}

// compare orders two stored values. It reports false if the values are not
// mutually comparable.
func compare(x1, x2 interface{}) (int, bool) {
	if x1 == nil || x2 == nil {
		if x1 == nil && x2 == nil {
			return 0, true
		}
		return 0, false
	}
	v1 := reflect.ValueOf(x1)
	v2 := reflect.ValueOf(x2)
	if v1.Kind() == reflect.String && v2.Kind() == reflect.String {
		return strings.Compare(v1.String(), v2.String()), true
	}
	if b1, ok := x1.([]byte); ok {
		if b2, ok := x2.([]byte); ok {
			return bytes.Compare(b1, b2), true
		}
		return 0, false
	}
	if c, err := driver.CompareNumbers(v1, v2); err == nil {
		return c, true
	}
	if t1, ok := x1.(time.Time); ok {
		if t2, ok := x2.(time.Time); ok {
			return driver.CompareTimes(t1, t2), true
		}
		return 0, false
	}
	if v1.Kind() == reflect.Bool && v2.Kind() == reflect.Bool {
		b1, b2 := v1.Bool(), v2.Bool()
		switch {
		case b1 == b2:
			return 0, true
		case b1:
			return 1, true
		default:
			return -1, true
		}
	}
	return 0, false
}

func equalValues(x1, x2 interface{}) bool {
	if c, ok := compare(x1, x2); ok {
		return c == 0
	}
	return reflect.DeepEqual(x1, x2)
}

// getAtFieldPath gets the value of fields at fp. The second return value
// reports whether the full path was present.
func getAtFieldPath(fields map[string]interface{}, fp []string) (interface{}, bool) {
	m, err := getParentMap(fields, fp, false)
	if err != nil || m == nil {
		return nil, false
	}
	v, ok := m[fp[len(fp)-1]]
	return v, ok
}

func hasOrderFields(fields map[string]interface{}, orders []driver.Order) bool {
	for _, o := range orders {
		if _, ok := getAtFieldPath(fields, o.FieldPath); !ok {
			return false
		}
	}
	return true
}

// sortResults sorts by each sort key in turn, with the document ID as the
// final tie-break so the order is total and deterministic. The tie-break
// takes the direction of the last sort key, the way the service orders its
// implicit __name__ key, so that compareToAnchor agrees with the sort.
func sortResults(results []result, orders []driver.Order) {
	sort.Slice(results, func(i, j int) bool {
		for _, o := range orders {
			vi, _ := getAtFieldPath(results[i].doc.Fields, o.FieldPath)
			vj, _ := getAtFieldPath(results[j].doc.Fields, o.FieldPath)
			c, ok := compare(vi, vj)
			if !ok || c == 0 {
				continue
			}
			if o.Ascending {
				return c < 0
			}
			return c > 0
		}
		less := results[i].id < results[j].id
		if len(orders) > 0 && !orders[len(orders)-1].Ascending {
			less = !less
		}
		return less
	})
}

// applyCursors narrows the sorted results to the window between the query's
// start and end anchors.
func applyCursors(results []result, q *driver.Query) ([]result, error) {
	if q.Start != nil {
		vals, withID, err := anchorValues(q.Start, q.Orders)
		if err != nil {
			return nil, err
		}
		i := 0
		for i < len(results) {
			c := compareToAnchor(results[i], vals, withID, q.Orders)
			if c > 0 || (c == 0 && q.Start.Inclusive) {
				break
			}
			i++
		}
		results = results[i:]
	}
	if q.End != nil {
		vals, withID, err := anchorValues(q.End, q.Orders)
		if err != nil {
			return nil, err
		}
		i := 0
		for i < len(results) {
			c := compareToAnchor(results[i], vals, withID, q.Orders)
			if c > 0 || (c == 0 && !q.End.Inclusive) {
				break
			}
			i++
		}
		results = results[:i]
	}
	return results, nil
}

// anchorValues resolves a cursor to the tuple of sort-key values that fixes
// its position. A snapshot anchor yields one value per sort key plus the
// document ID as a tie-break; an explicit tuple is used as given.
func anchorValues(cur *driver.Cursor, orders []driver.Order) (vals []interface{}, id string, err error) {
	if cur.Doc != nil {
		for _, o := range orders {
			v, ok := getAtFieldPath(cur.Doc.Fields, o.FieldPath)
			if !ok {
				return nil, "", fserr.Newf(fserr.InvalidArgument, nil,
					"memstore: cursor document %q has no field %q", cur.Doc.ID, strings.Join(o.FieldPath, "."))
			}
			vals = append(vals, v)
		}
		return vals, cur.Doc.ID, nil
	}
	return cur.Values, "", nil
}

// compareToAnchor orders a result against an anchor position: negative if
// the result is before it, zero at it, positive after it.
func compareToAnchor(r result, vals []interface{}, id string, orders []driver.Order) int {
	for i, av := range vals {
		o := orders[i]
		dv, _ := getAtFieldPath(r.doc.Fields, o.FieldPath)
		c, ok := compare(dv, av)
		if !ok {
			continue
		}
		if !o.Ascending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	if id != "" {
		c := strings.Compare(r.id, id)
		if len(orders) > 0 && !orders[len(orders)-1].Ascending {
			c = -c
		}
		return c
	}
	return 0
}
