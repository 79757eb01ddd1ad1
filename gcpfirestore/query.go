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

package gcpfirestore

import (
	"context"
	"io"
	"math"
	"path"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/shtse8/fireschema-go-runtime/driver"
	"github.com/shtse8/fireschema-go-runtime/internal/fserr"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RunQuery implements driver.Collection.RunQuery by calling the RunQuery RPC
// with a StructuredQuery.
//
// LimitToLast is not supported by the service directly: the query is sent
// with every order direction inverted and Limit set, and the results are
// reversed before they are returned.
func (c *collection) RunQuery(ctx context.Context, q *driver.Query) ([]driver.Snapshot, error) {
	if err := checkQuery(q); err != nil {
		return nil, err
	}
	sq, err := c.queryToProto(q)
	if err != nil {
		return nil, err
	}
	req := &pb.RunQueryRequest{
		Parent:    path.Dir(c.collPath),
		QueryType: &pb.RunQueryRequest_StructuredQuery{StructuredQuery: sq},
	}
	ctx, cancel := context.WithCancel(withResourceHeader(ctx, c.dbPath))
	defer cancel()
	sc, err := c.client.RunQuery(ctx, req)
	if err != nil {
		return nil, err
	}
	var snaps []driver.Snapshot
	for {
		res, err := sc.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		// No document => partial progress; keep receiving.
		if res.Document == nil {
			continue
		}
		snap, err := decodeDoc(res.Document, "")
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if q.LimitToLast > 0 {
		for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
			snaps[i], snaps[j] = snaps[j], snaps[i]
		}
	}
	return snaps, nil
}

func checkQuery(q *driver.Query) error {
	if q.Limit > 0 && q.LimitToLast > 0 {
		return fserr.Newf(fserr.InvalidArgument, nil, "gcpfirestore: query cannot have both Limit and LimitToLast")
	}
	if q.LimitToLast > 0 && len(q.Orders) == 0 {
		return fserr.Newf(fserr.InvalidArgument, nil, "gcpfirestore: LimitToLast requires at least one OrderBy clause")
	}
	if q.LimitToLast > 0 && (q.Start != nil || q.End != nil) {
		return fserr.Newf(fserr.InvalidArgument, nil, "gcpfirestore: LimitToLast cannot be combined with cursors")
	}
	for _, cur := range []*driver.Cursor{q.Start, q.End} {
		if cur == nil {
			continue
		}
		// A snapshot anchor works without OrderBy clauses; the service
		// orders by __name__ implicitly. A value tuple must align with the
		// sort keys.
		if len(cur.Values) > len(q.Orders) {
			return fserr.Newf(fserr.InvalidArgument, nil,
				"gcpfirestore: cursor has %d values but the query has only %d OrderBy clauses", len(cur.Values), len(q.Orders))
		}
	}
	return nil
}

// queryToProto converts the query to a Firestore proto.
func (c *collection) queryToProto(q *driver.Query) (*pb.StructuredQuery, error) {
	// The collection ID is the last component of the collection path.
	collID := path.Base(c.collPath)
	p := &pb.StructuredQuery{
		From: []*pb.StructuredQuery_CollectionSelector{{CollectionId: collID}},
	}
	if q.Limit > 0 {
		p.Limit = &wrapperspb.Int32Value{Value: int32(q.Limit)}
	}
	if q.LimitToLast > 0 {
		p.Limit = &wrapperspb.Int32Value{Value: int32(q.LimitToLast)}
	}

	// If there is only one filter, use it directly. Otherwise, construct
	// a CompositeFilter.
	var pfs []*pb.StructuredQuery_Filter
	for _, f := range q.Filters {
		pf, err := filterToProto(f)
		if err != nil {
			return nil, err
		}
		pfs = append(pfs, pf)
	}
	if len(pfs) == 1 {
		p.Where = pfs[0]
	} else if len(pfs) > 1 {
		p.Where = &pb.StructuredQuery_Filter{
			FilterType: &pb.StructuredQuery_Filter_CompositeFilter{CompositeFilter: &pb.StructuredQuery_CompositeFilter{
				Op:      pb.StructuredQuery_CompositeFilter_AND,
				Filters: pfs,
			}},
		}
	}

	// A query that anchors at a snapshot needs a total order, so the
	// document name joins the sort keys, the way the Firestore client
	// libraries do it.
	orders := q.Orders
	if (q.Start != nil && q.Start.Doc != nil) || (q.End != nil && q.End.Doc != nil) {
		// The appended key takes the direction of the last explicit sort
		// key, or ascending when there is none.
		asc := true
		if len(orders) > 0 {
			asc = orders[len(orders)-1].Ascending
		}
		orders = append(append([]driver.Order{}, orders...), driver.Order{
			FieldPath: []string{"__name__"},
			Ascending: asc,
		})
	}
	for _, o := range orders {
		dir := pb.StructuredQuery_ASCENDING
		if o.Ascending == (q.LimitToLast > 0) {
			dir = pb.StructuredQuery_DESCENDING
		}
		p.OrderBy = append(p.OrderBy, &pb.StructuredQuery_Order{Field: fieldRef(o.FieldPath), Direction: dir})
	}

	var err error
	if p.StartAt, err = c.cursorToProto(q.Start, orders, true); err != nil {
		return nil, err
	}
	if p.EndAt, err = c.cursorToProto(q.End, orders, false); err != nil {
		return nil, err
	}
	return p, nil
}

// cursorToProto converts a cursor to its proto form. For the start position
// the proto's Before field means inclusive; for the end position it means
// exclusive.
func (c *collection) cursorToProto(cur *driver.Cursor, orders []driver.Order, isStart bool) (*pb.Cursor, error) {
	if cur == nil {
		return nil, nil
	}
	pc := &pb.Cursor{}
	if isStart {
		pc.Before = cur.Inclusive
	} else {
		pc.Before = !cur.Inclusive
	}
	if cur.Doc != nil {
		// One value per sort key, with the document reference standing in
		// for the appended __name__ order.
		for _, o := range orders {
			if len(o.FieldPath) == 1 && o.FieldPath[0] == "__name__" {
				pc.Values = append(pc.Values, &pb.Value{
					ValueType: &pb.Value_ReferenceValue{ReferenceValue: c.collPath + "/" + cur.Doc.ID},
				})
				continue
			}
			v, ok := getAtFieldPath(cur.Doc.Fields, o.FieldPath)
			if !ok {
				return nil, fserr.Newf(fserr.InvalidArgument, nil,
					"gcpfirestore: cursor document %q has no field %q", cur.Doc.ID, toServiceFieldPath(o.FieldPath))
			}
			pv, err := encodeValue(v)
			if err != nil {
				return nil, err
			}
			pc.Values = append(pc.Values, pv)
		}
		return pc, nil
	}
	for _, v := range cur.Values {
		pv, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		pc.Values = append(pc.Values, pv)
	}
	return pc, nil
}

func getAtFieldPath(fields map[string]interface{}, fp []string) (interface{}, bool) {
	var cur interface{} = fields
	for _, k := range fp {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[k]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func filterToProto(f driver.Filter) (*pb.StructuredQuery_Filter, error) {
	// "== nil" and "== NaN" are handled specially, as are their negations.
	if uop, ok := unaryOpFor(f.Value, f.Op); ok {
		return &pb.StructuredQuery_Filter{
			FilterType: &pb.StructuredQuery_Filter_UnaryFilter{
				UnaryFilter: &pb.StructuredQuery_UnaryFilter{
					OperandType: &pb.StructuredQuery_UnaryFilter_Field{
						Field: fieldRef(f.FieldPath),
					},
					Op: uop,
				},
			},
		}, nil
	}
	pv, err := encodeValue(f.Value)
	if err != nil {
		return nil, err
	}
	return newFieldFilter(f.FieldPath, f.Op, pv)
}

func unaryOpFor(value interface{}, op string) (pb.StructuredQuery_UnaryFilter_Operator, bool) {
	isNull := value == nil
	if !isNull && !isNaN(value) {
		return pb.StructuredQuery_UnaryFilter_OPERATOR_UNSPECIFIED, false
	}
	switch op {
	case driver.EqualOp:
		if isNull {
			return pb.StructuredQuery_UnaryFilter_IS_NULL, true
		}
		return pb.StructuredQuery_UnaryFilter_IS_NAN, true
	case driver.NotEqualOp:
		if isNull {
			return pb.StructuredQuery_UnaryFilter_IS_NOT_NULL, true
		}
		return pb.StructuredQuery_UnaryFilter_IS_NOT_NAN, true
	default:
		return pb.StructuredQuery_UnaryFilter_OPERATOR_UNSPECIFIED, false
	}
}

func isNaN(x interface{}) bool {
	switch x := x.(type) {
	case float32:
		return math.IsNaN(float64(x))
	case float64:
		return math.IsNaN(x)
	default:
		return false
	}
}

func fieldRef(fp []string) *pb.StructuredQuery_FieldReference {
	return &pb.StructuredQuery_FieldReference{FieldPath: toServiceFieldPath(fp)}
}

func newFieldFilter(fp []string, op string, val *pb.Value) (*pb.StructuredQuery_Filter, error) {
	var fop pb.StructuredQuery_FieldFilter_Operator
	switch op {
	case driver.LessThanOp:
		fop = pb.StructuredQuery_FieldFilter_LESS_THAN
	case driver.LessThanEqualOp:
		fop = pb.StructuredQuery_FieldFilter_LESS_THAN_OR_EQUAL
	case driver.GreaterThanOp:
		fop = pb.StructuredQuery_FieldFilter_GREATER_THAN
	case driver.GreaterThanEqualOp:
		fop = pb.StructuredQuery_FieldFilter_GREATER_THAN_OR_EQUAL
	case driver.EqualOp:
		fop = pb.StructuredQuery_FieldFilter_EQUAL
	case driver.NotEqualOp:
		fop = pb.StructuredQuery_FieldFilter_NOT_EQUAL
	case driver.ArrayContainsOp:
		fop = pb.StructuredQuery_FieldFilter_ARRAY_CONTAINS
	case driver.InOp:
		fop = pb.StructuredQuery_FieldFilter_IN
	case driver.NotInOp:
		fop = pb.StructuredQuery_FieldFilter_NOT_IN
	case driver.ArrayContainsAnyOp:
		fop = pb.StructuredQuery_FieldFilter_ARRAY_CONTAINS_ANY
	default:
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "gcpfirestore: invalid operator: %q", op)
	}
	return &pb.StructuredQuery_Filter{
		FilterType: &pb.StructuredQuery_Filter_FieldFilter{
			FieldFilter: &pb.StructuredQuery_FieldFilter{
				Field: fieldRef(fp),
				Op:    fop,
				Value: val,
			},
		},
	}, nil
}
