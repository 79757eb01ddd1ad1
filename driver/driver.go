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

// Package driver defines interfaces to be implemented by fireschema drivers,
// which will be used by the fireschema package to interact with the
// underlying document stores. Application code should use package fireschema.
package driver // import "github.com/shtse8/fireschema-go-runtime/driver"

import (
	"context"
	"time"

	"github.com/shtse8/fireschema-go-runtime/fserrors"
)

// A Collection is a named set of documents in a database.
type Collection interface {
	// Doc returns a reference to the document in the collection with the
	// given ID. The ID must be non-empty and must not contain a '/'.
	Doc(id string) (DocumentRef, error)

	// RunQuery executes a Query and returns the matching documents in query
	// order. Every returned Snapshot has Exists set.
	RunQuery(ctx context.Context, q *Query) ([]Snapshot, error)

	// ErrorCode should return a code that describes the error, which was
	// returned by one of the other methods in this interface.
	ErrorCode(error) fserrors.ErrorCode

	// Close cleans up any resources used by the Collection. Once Close is
	// called, there will be no method calls to the Collection other than
	// ErrorCode.
	Close() error
}

// A DocumentRef is a reference to a single document within a collection.
type DocumentRef interface {
	// ID returns the document's storage key within its collection.
	ID() string

	// Get reads the document's current field map. If the document does not
	// exist, Get returns a Snapshot with Exists false and a nil error; the
	// caller decides whether absence is an error.
	Get(ctx context.Context) (Snapshot, error)

	// Set writes the field map, overwriting any existing document.
	Set(ctx context.Context, fields map[string]interface{}) (WriteResult, error)

	// Update applies the mods to the document atomically. The document must
	// exist. The mods are guaranteed to be non-empty and to have distinct,
	// non-overlapping field paths.
	Update(ctx context.Context, mods []Mod) (WriteResult, error)

	// Delete deletes the document. Deleting a nonexistent document is not an
	// error.
	Delete(ctx context.Context) error
}

// A Snapshot is the raw, wire-level form of one stored document.
type Snapshot struct {
	// ID is the document's storage key.
	ID string
	// Fields is the document's stored field map. It is nil if the document
	// does not exist.
	Fields map[string]interface{}
	// Exists reports whether the document exists in the store.
	Exists bool
	// UpdateTime is the time of the document's last write, if the store
	// reports one.
	UpdateTime time.Time
}

// A WriteResult is the store's acknowledgment of a write.
type WriteResult struct {
	// UpdateTime is the commit time reported by the store.
	UpdateTime time.Time
}

// A Query defines a query operation to find documents within a collection
// based on a set of requirements.
type Query struct {
	// Filters contain a list of filters for the query. If there are more
	// than one filter, they should be combined with AND.
	Filters []Filter

	// Orders is the ordered list of sort specifications. Duplicate field
	// paths are not deduplicated; the store decides which takes precedence.
	Orders []Order

	// Limit caps the number of results, counted from the start of the result
	// set. When Limit <= 0 there is no cap.
	Limit int

	// LimitToLast caps the number of results, counted from the end of the
	// result set. Setting both Limit and LimitToLast is rejected by drivers.
	LimitToLast int

	// Start and End are optional pagination cursors.
	Start *Cursor
	End   *Cursor
}

// A Filter defines a filter expression used to filter the query result.
type Filter struct {
	FieldPath []string    // the field path to filter
	Op        string      // the operation; one of the Op constants below
	Value     interface{} // the value to compare using the operation
}

// An Order is a single sort specification.
type Order struct {
	FieldPath []string
	Ascending bool
}

// A Cursor is a pagination anchor. Exactly one of Doc and Values is set:
// either the anchor is a previously returned Snapshot, or it is an explicit
// tuple of values aligned (possibly as a prefix) with the query's Orders.
type Cursor struct {
	Doc    *Snapshot
	Values []interface{}
	// Inclusive reports whether the anchor position itself is part of the
	// result window (start-at/end-at as opposed to start-after/end-before).
	Inclusive bool
}

// A Mod is a modification to a field path in a document. The Value is either
// a literal replacement value or one of the sentinel marker types below.
type Mod struct {
	FieldPath []string
	Value     interface{}
}

// DeleteOp is a value representing a field-deletion modification.
type DeleteOp struct{}

// ServerTimestampOp is a value representing a modification that sets the
// field to the store's commit timestamp.
type ServerTimestampOp struct{}

// IncOp is a value representing an increment modification.
type IncOp struct {
	Amount interface{}
}

// ArrayUnionOp is a value representing a modification that appends the
// elements not already present to an array field.
type ArrayUnionOp struct {
	Elems []interface{}
}

// ArrayRemoveOp is a value representing a modification that removes all
// occurrences of the elements from an array field.
type ArrayRemoveOp struct {
	Elems []interface{}
}

// Query operators.
const (
	// EqualOp is the name of the equality operator.
	// It is defined here to avoid confusion between "=" and "==".
	EqualOp            = "=="
	NotEqualOp         = "!="
	LessThanOp         = "<"
	LessThanEqualOp    = "<="
	GreaterThanOp      = ">"
	GreaterThanEqualOp = ">="
	ArrayContainsOp    = "array-contains"
	InOp               = "in"
	NotInOp            = "not-in"
	ArrayContainsAnyOp = "array-contains-any"
)
