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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shtse8/fireschema-go-runtime/fserrors"
)

func TestParseFieldPath(t *testing.T) {
	for _, test := range []struct {
		in      FieldPath
		want    []string
		wantErr bool
	}{
		{"a", []string{"a"}, false},
		{"a.b.c", []string{"a", "b", "c"}, false},
		{"", nil, true},
		{".a", nil, true},
		{"a..b", nil, true},
		{"a.", nil, true},
		{"\x80", nil, true}, // invalid UTF-8
	} {
		got, err := parseFieldPath(test.in)
		if test.wantErr {
			if fserrors.Code(err) != fserrors.InvalidArgument {
				t.Errorf("%q: got error %v, want InvalidArgument", test.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", test.in, err)
			continue
		}
		if !cmp.Equal(got, test.want) {
			t.Errorf("%q: got %v, want %v", test.in, got, test.want)
		}
	}
}

func TestConverterPath(t *testing.T) {
	conv := MustConverter[Customer]()
	for _, test := range []struct {
		names   []string
		want    FieldPath
		wantErr bool
	}{
		{[]string{"Name"}, "name", false},
		{[]string{"Home"}, "home", false},
		{[]string{"Home", "Zip"}, "home.zip", false},
		{nil, "", true},
		{[]string{"Nope"}, "", true},
		// Name is not a nested record type.
		{[]string{"Name", "Zip"}, "", true},
		// Zip is declared on Address, not Customer.
		{[]string{"Zip"}, "", true},
	} {
		got, err := conv.Path(test.names...)
		if test.wantErr {
			if fserrors.Code(err) != fserrors.InvalidArgument {
				t.Errorf("%v: got error %v, want InvalidArgument", test.names, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%v: %v", test.names, err)
			continue
		}
		if got != test.want {
			t.Errorf("%v: got %q, want %q", test.names, got, test.want)
		}
	}
}

func TestMustPathPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustPath did not panic on an unknown field")
		}
	}()
	MustConverter[Customer]().MustPath("Bogus")
}
