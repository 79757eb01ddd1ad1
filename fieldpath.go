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
	"strings"
	"unicode/utf8"

	"github.com/shtse8/fireschema-go-runtime/internal/fserr"
)

// A FieldPath is a dot-separated sequence of UTF-8 stored field names.
// Examples:
//
//	score
//	profile.city
//	profile.address.zip
//
// A FieldPath selects a top-level field or an element of a sub-document.
// There is no way to select a single list element.
type FieldPath string

func parseFieldPath(fp FieldPath) ([]string, error) {
	if len(fp) == 0 {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "empty field path")
	}
	if !utf8.ValidString(string(fp)) {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "invalid UTF-8 field path %q", fp)
	}
	parts := strings.Split(string(fp), ".")
	for _, p := range parts {
		if p == "" {
			return nil, fserr.Newf(fserr.InvalidArgument, nil, "empty component in field path %q", fp)
		}
	}
	return parts, nil
}

// Path resolves a chain of declared Go field names to the FieldPath of their
// stored names, descending through nested record types in order. For
//
//	type Address struct{ Zip string `fire:"zip"` }
//	type Player struct{ Home Address `fire:"home"` }
//
// c.Path("Home", "Zip") is "home.zip". Path returns an InvalidArgument error
// if a name is not a declared store-eligible field of the type at its
// position, or if a non-final name does not lead to a nested record type.
func (c *Converter[T]) Path(names ...string) (FieldPath, error) {
	if len(names) == 0 {
		return "", fserr.Newf(fserr.InvalidArgument, nil, "fireschema: Path: no field names")
	}
	table := c.table
	segs := make([]string, len(names))
	for i, name := range names {
		if table == nil {
			return "", fserr.Newf(fserr.InvalidArgument, nil,
				"fireschema: Path: %s is not a record type, cannot descend to %q",
				strings.Join(names[:i], "."), name)
		}
		f, ok := table.byGoName[name]
		if !ok {
			return "", fserr.Newf(fserr.InvalidArgument, nil,
				"fireschema: Path: %s has no stored field %q", table.typ, name)
		}
		segs[i] = f.wireName
		table = f.sub
	}
	return FieldPath(strings.Join(segs, ".")), nil
}

// MustPath is like Path but panics on error. It is intended for generated
// accessor code, where field names are statically known.
func (c *Converter[T]) MustPath(names ...string) FieldPath {
	fp, err := c.Path(names...)
	if err != nil {
		panic(err)
	}
	return fp
}
