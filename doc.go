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

/*
Package fireschema provides a typed runtime for working with collections of
documents in a document store. It is the support library that generated
per-collection accessor code builds on, and it can be used directly.

A collection holds documents of one record type, a Go struct whose stored
fields carry "fire" tags:

	type Player struct {
		ID    string `fire:",id"`
		Name  string `fire:"name"`
		Score int    `fire:"score"`
	}

Open a CollectionRef with a driver constructor, such as the in-memory driver
in the memstore package or the Cloud Firestore driver in the gcpfirestore
package:

	dc, err := memstore.OpenCollection(nil)
	if err != nil {
		return err
	}
	coll, err := fireschema.NewCollection[Player](dc)
	if err != nil {
		return err
	}
	defer coll.Close()

# Reading and writing

DocRef.Get, Set and Delete operate on a single document by ID. Add creates a
document under a generated unique ID and records the ID in the record's
identity field. Updates accumulate field mutations (set, delete, server
timestamp, increment, array union, array remove) and apply them in one
atomic commit:

	_, err := coll.Update(ctx, id, func(u *fireschema.Update) {
		u.Increment("score", 10).ServerTimestamp("updatedAt")
	})

# Queries

Query values are built by chaining clauses; each clause returns a new value,
so partial queries can be shared and extended independently:

	top := coll.Query().Where("score", ">=", 100).OrderBy("score", fireschema.Descending)
	players, err := top.Limit(5).Fetch(ctx)

# Errors

The errors returned by this package can be examined with fserrors.Code.
Errors from the underlying store keep the code the store's driver assigns
them.

# OpenCensus Integration

OpenCensus supports tracing and metric collection for multiple languages and
backend providers. See https://opencensus.io.

This API collects OpenCensus traces and metrics for the following methods:
  - DocRef.Get, DocRef.GetRaw, DocRef.Set, DocRef.Delete
  - CollectionRef.Add
  - Update.Commit
  - Query.Fetch, Query.FetchRaw

All trace and metric names begin with the package import path.
The traces add the method name.
For example, "github.com/shtse8/fireschema-go-runtime/DocRef.Get".
The metrics are "completed_calls", a count of completed method calls by
driver, method and status (error code); and "latency", a distribution of
method latency by driver and method.

To enable trace collection in your application, see "Configure Exporter" at
https://opencensus.io/quickstart/go/tracing.
To enable metric collection in your application, see "Exporting stats" at
https://opencensus.io/quickstart/go/metrics.
*/
package fireschema // import "github.com/shtse8/fireschema-go-runtime"
