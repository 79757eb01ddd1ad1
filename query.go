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

package fireschema

import (
	"context"
	"reflect"

	"github.com/shtse8/fireschema-go-runtime/driver"
)

// Query represents a query over a collection. A Query is a value: each
// clause method returns a new Query and leaves its receiver unchanged, so
// partial queries can be stored and extended along several branches. A
// malformed clause does not panic; the error is carried in the value and
// returned by the terminal Fetch call.
type Query[T any] struct {
	coll *CollectionRef[T]
	dq   driver.Query
	err  error
}

// Query creates a new, unconstrained Query over the collection.
func (c *CollectionRef[T]) Query() Query[T] {
	return Query[T]{coll: c}
}

// Where returns a query which, in addition to the receiver's conditions,
// requires the field at fp to relate to value by op. Valid ops are
// "==", "!=", "<", "<=", ">", ">=", "array-contains", "in", "not-in" and
// "array-contains-any". The three set operators ("in", "not-in",
// "array-contains-any") take a slice or array of 1 to 30 candidate values.
func (q Query[T]) Where(fp FieldPath, op string, value interface{}) Query[T] {
	if q.err != nil {
		return q
	}
	pfp, err := parseFieldPath(fp)
	if err != nil {
		q.err = err
		return q
	}
	if !validOp[op] {
		return q.invalidf("invalid filter operator: %q", op)
	}
	if setOps[op] {
		n, ok := setOpLen(value)
		if !ok {
			return q.invalidf("operator %q requires a slice or array value, got %T", op, value)
		}
		if n < 1 || n > maxSetOpValues {
			return q.invalidf("operator %q requires between 1 and %d values, got %d", op, maxSetOpValues, n)
		}
	}
	q.dq.Filters = appendCloned(q.dq.Filters, driver.Filter{
		FieldPath: pfp,
		Op:        op,
		Value:     value,
	})
	return q
}

// maxSetOpValues is the largest candidate set the store accepts for the
// "in", "not-in" and "array-contains-any" operators.
const maxSetOpValues = 30

var validOp = map[string]bool{
	driver.EqualOp:            true,
	driver.NotEqualOp:         true,
	driver.LessThanOp:         true,
	driver.LessThanEqualOp:    true,
	driver.GreaterThanOp:      true,
	driver.GreaterThanEqualOp: true,
	driver.ArrayContainsOp:    true,
	driver.InOp:               true,
	driver.NotInOp:            true,
	driver.ArrayContainsAnyOp: true,
}

var setOps = map[string]bool{
	driver.InOp:               true,
	driver.NotInOp:            true,
	driver.ArrayContainsAnyOp: true,
}

func setOpLen(value interface{}) (int, bool) {
	if value == nil {
		return 0, false
	}
	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return 0, false
	}
	return v.Len(), true
}

// Ascending and Descending are constants for use in the OrderBy method.
const (
	Ascending  = "asc"
	Descending = "desc"
)

// OrderBy returns a query with an additional sort key. Results are ordered
// by the first OrderBy clause, then by the second within equal values of the
// first, and so on.
func (q Query[T]) OrderBy(fp FieldPath, direction string) Query[T] {
	if q.err != nil {
		return q
	}
	pfp, err := parseFieldPath(fp)
	if err != nil {
		q.err = err
		return q
	}
	if direction != Ascending && direction != Descending {
		return q.invalidf("OrderBy: direction must be one of %q or %q", Ascending, Descending)
	}
	q.dq.Orders = appendCloned(q.dq.Orders, driver.Order{FieldPath: pfp, Ascending: direction == Ascending})
	return q
}

// Limit returns a query restricted to the first n results.
// n must be positive. Applying Limit again replaces the earlier value.
func (q Query[T]) Limit(n int) Query[T] {
	if q.err != nil {
		return q
	}
	if n <= 0 {
		return q.invalidf("limit value of %d must be greater than zero", n)
	}
	q.dq.Limit = n
	return q
}

// LimitToLast returns a query restricted to the final n results in query
// order. The query must have at least one OrderBy clause when it runs.
// n must be positive. Applying LimitToLast again replaces the earlier value.
func (q Query[T]) LimitToLast(n int) Query[T] {
	if q.err != nil {
		return q
	}
	if n <= 0 {
		return q.invalidf("limit value of %d must be greater than zero", n)
	}
	q.dq.LimitToLast = n
	return q
}

// StartAt returns a query whose results begin at the position of the given
// anchor, inclusive. The anchor is either a single driver.Snapshot from a
// previous fetch, or a tuple of field values aligned with the query's
// OrderBy clauses. The tuple may name a prefix of the sort keys.
func (q Query[T]) StartAt(anchor ...interface{}) Query[T] {
	return q.cursor("StartAt", anchor, true, true)
}

// StartAfter is like StartAt, except that the result set begins immediately
// after the anchor position.
func (q Query[T]) StartAfter(anchor ...interface{}) Query[T] {
	return q.cursor("StartAfter", anchor, false, true)
}

// EndAt returns a query whose results end at the position of the given
// anchor, inclusive. The anchor forms are those of StartAt.
func (q Query[T]) EndAt(anchor ...interface{}) Query[T] {
	return q.cursor("EndAt", anchor, true, false)
}

// EndBefore is like EndAt, except that the result set ends immediately
// before the anchor position.
func (q Query[T]) EndBefore(anchor ...interface{}) Query[T] {
	return q.cursor("EndBefore", anchor, false, false)
}

// cursor sets the start or end anchor on its receiver copy and returns it.
// The receiver is a value, so assignment must happen on q itself for the
// caller to see the cursor.
func (q Query[T]) cursor(method string, anchor []interface{}, inclusive, start bool) Query[T] {
	if q.err != nil {
		return q
	}
	if len(anchor) == 0 {
		return q.invalidf("%s: no anchor values", method)
	}
	c := &driver.Cursor{Inclusive: inclusive}
	if snap, ok := anchor[0].(driver.Snapshot); ok {
		if len(anchor) > 1 {
			return q.invalidf("%s: a snapshot anchor must be the only argument", method)
		}
		c.Doc = &snap
	} else {
		c.Values = anchor
	}
	if start {
		q.dq.Start = c
	} else {
		q.dq.End = c
	}
	return q
}

// FetchRaw executes the query and returns the matching documents as raw
// snapshots, in query order.
func (q Query[T]) FetchRaw(ctx context.Context) (snaps []driver.Snapshot, err error) {
	if err := q.initFetch(); err != nil {
		return nil, wrapError(q.coll.driver, err)
	}
	ctx = q.coll.tracer.Start(ctx, "Query.FetchRaw")
	defer func() { q.coll.tracer.End(ctx, err) }()
	snaps, err = q.coll.driver.RunQuery(ctx, &q.dq)
	return snaps, wrapError(q.coll.driver, err)
}

// Fetch executes the query and decodes the matching documents, in query
// order. Each record's identity field is set from its document ID.
func (q Query[T]) Fetch(ctx context.Context) (recs []*T, err error) {
	if err := q.initFetch(); err != nil {
		return nil, wrapError(q.coll.driver, err)
	}
	ctx = q.coll.tracer.Start(ctx, "Query.Fetch")
	defer func() { q.coll.tracer.End(ctx, err) }()
	snaps, err := q.coll.driver.RunQuery(ctx, &q.dq)
	if err != nil {
		return nil, wrapError(q.coll.driver, err)
	}
	recs = make([]*T, 0, len(snaps))
	for _, snap := range snaps {
		rec, err := q.coll.conv.FromStorage(snap.ID, snap.Fields, snap.Exists)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (q Query[T]) initFetch() error {
	if q.err != nil {
		return q.err
	}
	return q.coll.checkClosed()
}

func (q Query[T]) invalidf(format string, args ...interface{}) Query[T] {
	q.err = invalidf(format, args...)
	return q
}

// appendCloned appends x to a copy of s, so that extending two queries
// derived from the same receiver never aliases storage.
func appendCloned[E any](s []E, x E) []E {
	out := make([]E, len(s), len(s)+1)
	copy(out, s)
	return append(out, x)
}
