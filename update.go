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
	"sort"
	"strings"

	"github.com/shtse8/fireschema-go-runtime/driver"
	"github.com/shtse8/fireschema-go-runtime/internal/fserr"
)

// An Update accumulates field mutations for a single document and applies
// them in one atomic commit. Each field path holds at most one mutation:
// registering a second mutation for the same path replaces the first. An
// Update is not safe for concurrent use.
type Update struct {
	core *collCore
	dr   driver.DocumentRef
	mods map[string]interface{}
	err  error
}

func newUpdate(core *collCore, dr driver.DocumentRef) *Update {
	return &Update{core: core, dr: dr, mods: map[string]interface{}{}}
}

// Set registers a mutation that sets the field at fp to value.
func (u *Update) Set(fp FieldPath, value interface{}) *Update {
	return u.add(fp, value)
}

// Delete registers a mutation that removes the field at fp from the
// document.
func (u *Update) Delete(fp FieldPath) *Update {
	return u.add(fp, driver.DeleteOp{})
}

// ServerTimestamp registers a mutation that sets the field at fp to the
// store's time at commit.
func (u *Update) ServerTimestamp(fp FieldPath) *Update {
	return u.add(fp, driver.ServerTimestampOp{})
}

// Increment registers a mutation that atomically adds amount to the numeric
// field at fp. amount must be an integer or floating-point value.
func (u *Update) Increment(fp FieldPath, amount interface{}) *Update {
	return u.add(fp, driver.IncOp{Amount: amount})
}

// ArrayUnion registers a mutation that appends to the array field at fp the
// given elements that are not already present.
func (u *Update) ArrayUnion(fp FieldPath, elems ...interface{}) *Update {
	return u.add(fp, driver.ArrayUnionOp{Elems: elems})
}

// ArrayRemove registers a mutation that removes all occurrences of the given
// elements from the array field at fp.
func (u *Update) ArrayRemove(fp FieldPath, elems ...interface{}) *Update {
	return u.add(fp, driver.ArrayRemoveOp{Elems: elems})
}

func (u *Update) add(fp FieldPath, value interface{}) *Update {
	if u.err != nil {
		return u
	}
	if _, err := parseFieldPath(fp); err != nil {
		u.err = err
		return u
	}
	u.mods[string(fp)] = value
	return u
}

// Commit applies the registered mutations to the document in one atomic
// write and returns the store's commit time. Commit fails with a
// FailedPrecondition error, without contacting the store, if no mutations
// were registered. No registered field path may be a prefix of another.
func (u *Update) Commit(ctx context.Context) (wr driver.WriteResult, err error) {
	dmods, err := u.driverMods()
	if err != nil {
		return driver.WriteResult{}, err
	}
	if err := u.core.checkClosed(); err != nil {
		return driver.WriteResult{}, err
	}
	ctx = u.core.tracer.Start(ctx, "Update.Commit")
	defer func() { u.core.tracer.End(ctx, err) }()
	wr, err = u.dr.Update(ctx, dmods)
	return wr, wrapError(u.core.driver, err)
}

// driverMods flattens the mutation map into a sorted driver.Mod slice,
// enforcing the prefix rule and the increment-amount type rule.
func (u *Update) driverMods() ([]driver.Mod, error) {
	if u.err != nil {
		return nil, u.err
	}
	if len(u.mods) == 0 {
		return nil, fserr.Newf(fserr.FailedPrecondition, nil, "fireschema: Commit with no mutations")
	}

	// Sort keys so commits are deterministic.
	// After sorting, a key might not immediately follow its prefix. Consider
	// the sorted list of keys "a", "a+b", "a.b". "a" is a prefix of "a.b",
	// but since '+' sorts before '.', it is not adjacent to it. All we can
	// assume is that the prefix is before the key.
	keys := make([]string, 0, len(u.mods))
	for k := range u.mods {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var dmods []driver.Mod
	for _, k := range keys {
		v := u.mods[k]
		fp, err := parseFieldPath(FieldPath(k))
		if err != nil {
			return nil, err
		}
		for _, d := range dmods {
			if fpHasPrefix(fp, d.FieldPath) {
				return nil, invalidf("field path %q is a prefix of %q", strings.Join(d.FieldPath, "."), k)
			}
		}
		if inc, ok := v.(driver.IncOp); ok && !isIncNumber(inc.Amount) {
			return nil, invalidf("Increment amount %v of type %[1]T must be an integer or floating-point number", inc.Amount)
		}
		dmods = append(dmods, driver.Mod{FieldPath: fp, Value: v})
	}
	return dmods, nil
}

// fpHasPrefix reports whether the field path fp begins with prefix.
func fpHasPrefix(fp, prefix []string) bool {
	if len(fp) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if fp[i] != p {
			return false
		}
	}
	return true
}

func isIncNumber(x interface{}) bool {
	if x == nil {
		return false
	}
	switch reflect.TypeOf(x).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	case reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
