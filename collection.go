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
	"fmt"
	"log"
	"reflect"
	"runtime"
	"sync"

	"github.com/shtse8/fireschema-go-runtime/driver"
	"github.com/shtse8/fireschema-go-runtime/internal/fserr"
	"github.com/shtse8/fireschema-go-runtime/internal/oc"
)

const pkgName = "github.com/shtse8/fireschema-go-runtime"

var (
	latencyMeasure = oc.LatencyMeasure(pkgName)

	// OpenCensusViews are predefined views for OpenCensus metrics.
	// The views include counts and latency distributions for API method calls.
	// See the example at https://godoc.org/go.opencensus.io/stats/view for usage.
	OpenCensusViews = oc.Views(pkgName, latencyMeasure)
)

// collCore holds the untyped part of a CollectionRef, shared by the typed
// layers so queries and updates need not be parameterized on it.
type collCore struct {
	driver driver.Collection
	tracer *oc.Tracer
	mu     sync.Mutex
	closed bool
}

// A CollectionRef is a typed handle on a named set of documents. It is the
// foundation that generated per-collection accessors build on, and can also
// be used directly. A CollectionRef is safe for concurrent use.
type CollectionRef[T any] struct {
	conv *Converter[T]
	*collCore
}

// NewCollection makes a CollectionRef for records of type T over the driver
// collection d. It returns an InvalidArgument error if T's field tags are
// malformed. Close the CollectionRef when done with it.
func NewCollection[T any](d driver.Collection) (*CollectionRef[T], error) {
	conv, err := ConverterOf[T]()
	if err != nil {
		return nil, err
	}
	c := &CollectionRef[T]{
		conv: conv,
		collCore: &collCore{
			driver: d,
			tracer: &oc.Tracer{
				Package:        pkgName,
				Provider:       oc.ProviderName(d),
				LatencyMeasure: latencyMeasure,
			},
		},
	}
	_, file, lineno, ok := runtime.Caller(1)
	runtime.SetFinalizer(c, func(c *CollectionRef[T]) {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			var caller string
			if ok {
				caller = fmt.Sprintf(" (%s:%d)", file, lineno)
			}
			log.Printf("A fireschema.CollectionRef was never closed%s", caller)
		}
	})
	return c, nil
}

// Converter returns the collection's converter, for encoding records and
// resolving typed field paths.
func (c *CollectionRef[T]) Converter() *Converter[T] {
	return c.conv
}

// Doc returns a reference to the document with the given ID. The ID must be
// non-empty.
func (c *CollectionRef[T]) Doc(id string) (*DocRef[T], error) {
	if id == "" {
		return nil, invalidf("empty document ID")
	}
	dr, err := c.driver.Doc(id)
	if err != nil {
		return nil, wrapError(c.driver, err)
	}
	return &DocRef[T]{coll: c, dr: dr}, nil
}

// Add creates a new document holding rec under a freshly generated unique
// ID, sets rec's identity field to that ID, and returns its DocRef.
func (c *CollectionRef[T]) Add(ctx context.Context, rec *T) (_ *DocRef[T], err error) {
	fields, err := c.conv.ToFieldMap(rec)
	if err != nil {
		return nil, err
	}
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	d, err := c.Doc(driver.UniqueString())
	if err != nil {
		return nil, err
	}
	ctx = c.tracer.Start(ctx, "CollectionRef.Add")
	defer func() { c.tracer.End(ctx, err) }()
	if _, err = d.dr.Set(ctx, fields); err != nil {
		return nil, wrapError(c.driver, err)
	}
	c.setID(rec, d.ID())
	return d, nil
}

// Update applies the mutations registered by configure to the document with
// the given ID, in one atomic commit.
func (c *CollectionRef[T]) Update(ctx context.Context, id string, configure func(*Update)) (driver.WriteResult, error) {
	d, err := c.Doc(id)
	if err != nil {
		return driver.WriteResult{}, err
	}
	return d.Update(ctx, configure)
}

func (c *CollectionRef[T]) setID(rec *T, id string) {
	if f := c.conv.table.id; f != nil {
		reflect.ValueOf(rec).Elem().Field(f.index).SetString(id)
	}
}

var errClosed = fserr.Newf(fserr.FailedPrecondition, nil, "fireschema: CollectionRef has been closed")

// Close releases any resources used for the collection.
func (c *CollectionRef[T]) Close() error {
	c.mu.Lock()
	prev := c.closed
	c.closed = true
	c.mu.Unlock()
	if prev {
		return errClosed
	}
	return wrapError(c.driver, c.driver.Close())
}

func (cc *collCore) checkClosed() error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.closed {
		return errClosed
	}
	return nil
}

// A DocRef is a typed reference to a single document.
type DocRef[T any] struct {
	coll *CollectionRef[T]
	dr   driver.DocumentRef
}

// ID returns the document's ID within its collection.
func (d *DocRef[T]) ID() string { return d.dr.ID() }

// Get reads the document and decodes it. If the document does not exist, Get
// returns a NotFound error.
func (d *DocRef[T]) Get(ctx context.Context) (_ *T, err error) {
	c := d.coll
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	ctx = c.tracer.Start(ctx, "DocRef.Get")
	defer func() { c.tracer.End(ctx, err) }()
	snap, err := d.dr.Get(ctx)
	if err != nil {
		return nil, wrapError(c.driver, err)
	}
	rec, err := c.conv.FromStorage(snap.ID, snap.Fields, snap.Exists)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fserr.Newf(fserr.NotFound, nil, "fireschema: document %q not found", d.ID())
	}
	return rec, nil
}

// GetRaw reads the document's raw snapshot. An absent document is not an
// error; the snapshot's Exists field reports it.
func (d *DocRef[T]) GetRaw(ctx context.Context) (snap driver.Snapshot, err error) {
	c := d.coll
	if err := c.checkClosed(); err != nil {
		return driver.Snapshot{}, err
	}
	ctx = c.tracer.Start(ctx, "DocRef.GetRaw")
	defer func() { c.tracer.End(ctx, err) }()
	snap, err = d.dr.Get(ctx)
	return snap, wrapError(c.driver, err)
}

// Set writes rec as the document's full contents, overwriting any existing
// document.
func (d *DocRef[T]) Set(ctx context.Context, rec *T) (wr driver.WriteResult, err error) {
	c := d.coll
	fields, err := c.conv.ToFieldMap(rec)
	if err != nil {
		return driver.WriteResult{}, err
	}
	if err := c.checkClosed(); err != nil {
		return driver.WriteResult{}, err
	}
	ctx = c.tracer.Start(ctx, "DocRef.Set")
	defer func() { c.tracer.End(ctx, err) }()
	wr, err = d.dr.Set(ctx, fields)
	return wr, wrapError(c.driver, err)
}

// Delete deletes the document. Deleting a nonexistent document is not an
// error.
func (d *DocRef[T]) Delete(ctx context.Context) (err error) {
	c := d.coll
	if err := c.checkClosed(); err != nil {
		return err
	}
	ctx = c.tracer.Start(ctx, "DocRef.Delete")
	defer func() { c.tracer.End(ctx, err) }()
	return wrapError(c.driver, d.dr.Delete(ctx))
}

// NewUpdate returns an Update builder bound to this document. Call Commit on
// the builder to apply the mutations.
func (d *DocRef[T]) NewUpdate() *Update {
	return newUpdate(d.coll.collCore, d.dr)
}

// Update applies the mutations registered by configure in one atomic commit.
// It is shorthand for configuring a NewUpdate and committing it.
func (d *DocRef[T]) Update(ctx context.Context, configure func(*Update)) (driver.WriteResult, error) {
	u := d.NewUpdate()
	configure(u)
	return u.Commit(ctx)
}

func invalidf(format string, args ...interface{}) error {
	return fserr.Newf(fserr.InvalidArgument, nil, format, args...)
}

func wrapError(c driver.Collection, err error) error {
	if err == nil {
		return nil
	}
	if fserr.DoNotWrap(err) {
		return err
	}
	if _, ok := err.(*fserr.Error); ok {
		return err
	}
	return fserr.New(c.ErrorCode(err), err, "fireschema")
}
