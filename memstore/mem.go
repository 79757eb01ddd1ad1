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

// Package memstore provides an in-process in-memory fireschema driver. It is
// suitable for local development and testing.
//
// Every document is keyed by its string ID. All query operators, sort keys,
// cursors and field mutations are supported locally, so typed code exercised
// against memstore behaves the way it does against a real store.
package memstore // import "github.com/shtse8/fireschema-go-runtime/memstore"

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shtse8/fireschema-go-runtime/driver"
	"github.com/shtse8/fireschema-go-runtime/fserrors"
	"github.com/shtse8/fireschema-go-runtime/internal/fserr"
)

// Options are optional arguments to OpenCollection.
type Options struct {
	// The filename associated with this collection.
	// When a collection is opened with a non-nil filename, the collection
	// is loaded from the file if it exists. Otherwise, an empty collection is created.
	// When the collection is closed, its contents are saved to the file.
	Filename string

	// Call this function when the collection is closed.
	// For internal use only.
	onClose func()
}

// OpenCollection creates a driver.Collection backed by memory.
func OpenCollection(opts *Options) (driver.Collection, error) {
	if opts == nil {
		opts = &Options{}
	}
	docs, err := loadDocs(opts.Filename)
	if err != nil {
		return nil, err
	}
	return &collection{docs: docs, opts: opts}, nil
}

// A storedDoc is a document as stored in a collection.
//
// Documents are stored as copies of the maps handed to Set, so later changes
// to a caller's map never reach into the store, and snapshots handed out by
// Get are copies for the same reason. The fields are exported for gob.
type storedDoc struct {
	Fields     map[string]interface{}
	UpdateTime time.Time
}

type mapOfDocs = map[string]*storedDoc

type collection struct {
	opts *Options
	mu   sync.Mutex
	docs mapOfDocs
}

// Doc implements driver.Collection.Doc.
func (c *collection) Doc(id string) (driver.DocumentRef, error) {
	if id == "" {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "memstore: empty document ID")
	}
	if strings.ContainsRune(id, '/') {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "memstore: document ID %q contains '/'", id)
	}
	return &docRef{coll: c, id: id}, nil
}

// ErrorCode implements driver.Collection.ErrorCode.
func (c *collection) ErrorCode(err error) fserrors.ErrorCode {
	return fserrors.Code(err)
}

// Close implements driver.Collection.Close.
// If the collection was created with a Filename option, Close writes the
// collection's documents to the file.
func (c *collection) Close() error {
	if c.opts.onClose != nil {
		c.opts.onClose()
	}
	return saveDocs(c.opts.Filename, c.docs)
}

type docRef struct {
	coll *collection
	id   string
}

func (d *docRef) ID() string { return d.id }

// Get implements driver.DocumentRef.Get. An absent document is reported
// through the snapshot's Exists field, not as an error.
func (d *docRef) Get(ctx context.Context) (driver.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return driver.Snapshot{}, err
	}
	c := d.coll
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[d.id]
	if !ok {
		return driver.Snapshot{ID: d.id}, nil
	}
	return driver.Snapshot{
		ID:         d.id,
		Fields:     copyMap(doc.Fields),
		Exists:     true,
		UpdateTime: doc.UpdateTime,
	}, nil
}

// Set implements driver.DocumentRef.Set.
func (d *docRef) Set(ctx context.Context, fields map[string]interface{}) (driver.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return driver.WriteResult{}, err
	}
	c := d.coll
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	c.docs[d.id] = &storedDoc{Fields: copyMap(fields), UpdateTime: now}
	return driver.WriteResult{UpdateTime: now}, nil
}

// Update implements driver.DocumentRef.Update. The mods are applied
// atomically: either every mod succeeds, or the document is unchanged.
func (d *docRef) Update(ctx context.Context, mods []driver.Mod) (driver.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return driver.WriteResult{}, err
	}
	c := d.coll
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[d.id]
	if !ok {
		return driver.WriteResult{}, fserr.Newf(fserr.NotFound, nil, "memstore: document with ID %q does not exist", d.id)
	}
	now := time.Now().UTC()
	if err := applyMods(doc.Fields, mods, now); err != nil {
		return driver.WriteResult{}, err
	}
	doc.UpdateTime = now
	return driver.WriteResult{UpdateTime: now}, nil
}

// Delete implements driver.DocumentRef.Delete. Deleting a nonexistent
// document is not an error.
func (d *docRef) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := d.coll
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, d.id)
	return nil
}

// applyMods applies mods to fields using the commit time now.
//
// To make the update atomic, the mods are first converted into a form that
// can't fail, and only then executed.
func applyMods(fields map[string]interface{}, mods []driver.Mod, now time.Time) error {
	type guaranteedMod struct {
		parentMap map[string]interface{} // the map holding the key to be modified
		key       string
		newValue  interface{}
		isDelete  bool
	}

	gmods := make([]guaranteedMod, len(mods))
	for i, mod := range mods {
		gmod := &gmods[i]
		// Check that the field path is valid. That is, every component of the
		// path but the last refers to a map, and no component along the way is
		// a non-map.
		parent, err := getParentMap(fields, mod.FieldPath, true)
		if err != nil {
			return err
		}
		gmod.parentMap = parent
		gmod.key = mod.FieldPath[len(mod.FieldPath)-1]
		cur := parent[gmod.key]
		switch v := mod.Value.(type) {
		case driver.DeleteOp:
			gmod.isDelete = true
		case driver.ServerTimestampOp:
			gmod.newValue = now
		case driver.IncOp:
			nv, err := add(cur, v.Amount)
			if err != nil {
				return err
			}
			gmod.newValue = nv
		case driver.ArrayUnionOp:
			nv, err := arrayUnion(cur, v.Elems)
			if err != nil {
				return err
			}
			gmod.newValue = nv
		case driver.ArrayRemoveOp:
			nv, err := arrayRemove(cur, v.Elems)
			if err != nil {
				return err
			}
			gmod.newValue = nv
		default:
			gmod.newValue = copyValue(mod.Value)
		}
	}
	// Now execute the guaranteed mods.
	for _, m := range gmods {
		if m.isDelete {
			delete(m.parentMap, m.key)
		} else {
			m.parentMap[m.key] = m.newValue
		}
	}
	return nil
}

// add adds the increment amount y to the stored value x.
// Adding a float to an int produces a float. An absent stored value counts
// as zero.
func add(x, y interface{}) (interface{}, error) {
	yi, yf, yIsInt, err := toNumber(y)
	if err != nil {
		return nil, err
	}
	if x == nil {
		if yIsInt {
			return yi, nil
		}
		return yf, nil
	}
	switch x := x.(type) {
	case int64:
		if yIsInt {
			return x + yi, nil
		}
		return float64(x) + yf, nil
	case float64:
		if yIsInt {
			return x + float64(yi), nil
		}
		return x + yf, nil
	default:
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "memstore: value %v being incremented is not a number", x)
	}
}

func toNumber(y interface{}) (int64, float64, bool, error) {
	switch y := y.(type) {
	case int:
		return int64(y), 0, true, nil
	case int8:
		return int64(y), 0, true, nil
	case int16:
		return int64(y), 0, true, nil
	case int32:
		return int64(y), 0, true, nil
	case int64:
		return y, 0, true, nil
	case uint:
		return int64(y), 0, true, nil
	case uint8:
		return int64(y), 0, true, nil
	case uint16:
		return int64(y), 0, true, nil
	case uint32:
		return int64(y), 0, true, nil
	case uint64:
		return int64(y), 0, true, nil
	case float32:
		return 0, float64(y), false, nil
	case float64:
		return 0, y, false, nil
	default:
		return 0, 0, false, fserr.Newf(fserr.InvalidArgument, nil, "memstore: bad increment amount type %T", y)
	}
}

// arrayUnion appends to the stored array the elements not already present.
// Presence is decided by deep equality. An absent stored value counts as an
// empty array.
func arrayUnion(cur interface{}, elems []interface{}) (interface{}, error) {
	arr, err := asArray(cur)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, len(arr), len(arr)+len(elems))
	copy(out, arr)
	for _, e := range elems {
		if !containsElem(out, e) {
			out = append(out, copyValue(e))
		}
	}
	return out, nil
}

// arrayRemove removes all occurrences of the elements from the stored array.
func arrayRemove(cur interface{}, elems []interface{}) (interface{}, error) {
	arr, err := asArray(cur)
	if err != nil {
		return nil, err
	}
	var out []interface{}
	for _, v := range arr {
		if !containsElem(elems, v) {
			out = append(out, v)
		}
	}
	if out == nil {
		out = []interface{}{}
	}
	return out, nil
}

func asArray(cur interface{}) ([]interface{}, error) {
	if cur == nil {
		return nil, nil
	}
	arr, ok := cur.([]interface{})
	if !ok {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "memstore: value %v of type %[1]T is not an array", cur)
	}
	return arr, nil
}

func containsElem(arr []interface{}, e interface{}) bool {
	for _, v := range arr {
		if equalValues(v, e) {
			return true
		}
	}
	return false
}

// getParentMap returns the map that directly contains the given field path;
// that is, the value of m at the field path that excludes the last component
// of fp. If a non-map is encountered along the way, an InvalidArgument error
// is returned. If nil is encountered, nil is returned unless create is true,
// in which case a map is added at that point.
func getParentMap(m map[string]interface{}, fp []string, create bool) (map[string]interface{}, error) {
	var ok bool
	for _, k := range fp[:len(fp)-1] {
		if m[k] == nil {
			if !create {
				return nil, nil
			}
			m[k] = map[string]interface{}{}
		}
		m, ok = m[k].(map[string]interface{})
		if !ok {
			return nil, fserr.Newf(fserr.InvalidArgument, nil, "memstore: invalid field path %q at %q", strings.Join(fp, "."), k)
		}
	}
	return m, nil
}

// copyMap deep-copies a stored field map.
func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		return copyMap(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = copyValue(e)
		}
		return out
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out
	default:
		return v
	}
}

func init() {
	// Concrete types that can appear inside interface values in a persisted
	// collection.
	gob.Register(time.Time{})
	gob.Register([]interface{}(nil))
	gob.Register(map[string]interface{}(nil))
}

// loadDocs reads a map from the filename if it is not empty and the file
// exists. Otherwise it returns an empty (not nil) map.
func loadDocs(filename string) (mapOfDocs, error) {
	if filename == "" {
		return mapOfDocs{}, nil
	}
	f, err := os.Open(filename)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		// If the file doesn't exist, return an empty map without error.
		return mapOfDocs{}, nil
	}
	defer f.Close()
	var m mapOfDocs
	if err := gob.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode from %q: %v", filename, err)
	}
	return m, nil
}

// saveDocs saves m to filename if filename is not empty.
func saveDocs(filename string, m mapOfDocs) error {
	if filename == "" {
		return nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(m); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode to %q: %v", filename, err)
	}
	return f.Close()
}
