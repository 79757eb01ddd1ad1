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
	"testing"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/google/go-cmp/cmp"
	"github.com/shtse8/fireschema-go-runtime/driver"
	"github.com/shtse8/fireschema-go-runtime/fserrors"
	"google.golang.org/protobuf/proto"
)

func TestResourceIDRegexp(t *testing.T) {
	for _, good := range []string{
		"projects/abc-_.309/databases/(default)/documents/C",
		"projects/P/databases/mydb/documents/C",
		"projects/P/databases/(default)/documents/C/D/E",
	} {
		if !resourceIDRE.MatchString(good) {
			t.Errorf("%q did not match but should have", good)
		}
	}

	for _, bad := range []string{
		"",
		"Projects/P/databases/(default)/documents/C",
		"P/databases/(default)/documents/C",
		"projects/P/Q/databases/(default)/documents/C",
		"projects/P/databases/(default)/C",
		"projects/P/databases/(default)/documents/",
		"projects/P/databases/(default)",
	} {
		if resourceIDRE.MatchString(bad) {
			t.Errorf("%q matched but should not have", bad)
		}
	}
}

func TestOpenCollection(t *testing.T) {
	dc, err := OpenCollection(nil, CollectionResourceID("myproject", "mycoll"))
	if err != nil {
		t.Fatal(err)
	}
	c := dc.(*collection)
	if got, want := c.dbPath, "projects/myproject/databases/(default)"; got != want {
		t.Errorf("dbPath = %q, want %q", got, want)
	}
	if got, want := c.collPath, "projects/myproject/databases/(default)/documents/mycoll"; got != want {
		t.Errorf("collPath = %q, want %q", got, want)
	}

	dc, err = OpenCollection(nil, CollectionResourceIDWithDatabase("myproject", "mydb", "mycoll"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := dc.(*collection).dbPath, "projects/myproject/databases/mydb"; got != want {
		t.Errorf("dbPath = %q, want %q", got, want)
	}

	if _, err := OpenCollection(nil, "bad resource ID"); fserrors.Code(err) != fserrors.InvalidArgument {
		t.Errorf("got %v, want InvalidArgument", err)
	}
}

func TestDocIDValidation(t *testing.T) {
	dc, err := OpenCollection(nil, CollectionResourceID("P", "C"))
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"", "a/b"} {
		if _, err := dc.Doc(id); fserrors.Code(err) != fserrors.InvalidArgument {
			t.Errorf("%q: got %v, want InvalidArgument", id, err)
		}
	}
	d, err := dc.Doc("d1")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := d.(*docRef).docPath, "projects/P/databases/(default)/documents/C/d1"; got != want {
		t.Errorf("docPath = %q, want %q", got, want)
	}
}

func TestToServiceFieldPath(t *testing.T) {
	for _, test := range []struct {
		in   []string
		want string
	}{
		{[]string{"a"}, "a"},
		{[]string{"a", "b_2"}, "a.b_2"},
		{[]string{"a-b"}, "`a-b`"},
		{[]string{"0a"}, "`0a`"},
		{[]string{"a`b"}, "`a\\`b`"},
		{[]string{`a\b`}, "`a\\\\b`"},
		{[]string{"a", "b c"}, "a.`b c`"},
	} {
		if got := toServiceFieldPath(test.in); got != test.want {
			t.Errorf("%v: got %q, want %q", test.in, got, test.want)
		}
	}
}

func TestProcessMods(t *testing.T) {
	fields, maskPaths, transforms, err := processMods([]driver.Mod{
		{FieldPath: []string{"a"}, Value: int64(1)},
		{FieldPath: []string{"b", "c"}, Value: "x"},
		{FieldPath: []string{"gone"}, Value: driver.DeleteOp{}},
		{FieldPath: []string{"at"}, Value: driver.ServerTimestampOp{}},
		{FieldPath: []string{"n"}, Value: driver.IncOp{Amount: int64(2)}},
		{FieldPath: []string{"tags"}, Value: driver.ArrayUnionOp{Elems: []interface{}{"x"}}},
		{FieldPath: []string{"tags2"}, Value: driver.ArrayRemoveOp{Elems: []interface{}{"y"}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	wantFields := map[string]*pb.Value{
		"a": intval(1),
		"b": {ValueType: &pb.Value_MapValue{MapValue: &pb.MapValue{Fields: map[string]*pb.Value{
			"c": {ValueType: &pb.Value_StringValue{StringValue: "x"}},
		}}}},
	}
	if diff := cmp.Diff(fields, wantFields, cmp.Comparer(proto.Equal)); diff != "" {
		t.Errorf("fields mismatch: %s", diff)
	}

	// Deleted fields join the mask but not the fields.
	wantMask := []string{"a", "b.c", "gone"}
	if diff := cmp.Diff(wantMask, maskPaths); diff != "" {
		t.Errorf("mask mismatch (-want, +got):\n%s", diff)
	}

	wantTransforms := []*pb.DocumentTransform_FieldTransform{
		{
			FieldPath: "at",
			TransformType: &pb.DocumentTransform_FieldTransform_SetToServerValue{
				SetToServerValue: pb.DocumentTransform_FieldTransform_REQUEST_TIME,
			},
		},
		{
			FieldPath: "n",
			TransformType: &pb.DocumentTransform_FieldTransform_Increment{
				Increment: intval(2),
			},
		},
		{
			FieldPath: "tags",
			TransformType: &pb.DocumentTransform_FieldTransform_AppendMissingElements{
				AppendMissingElements: &pb.ArrayValue{Values: []*pb.Value{{ValueType: &pb.Value_StringValue{StringValue: "x"}}}},
			},
		},
		{
			FieldPath: "tags2",
			TransformType: &pb.DocumentTransform_FieldTransform_RemoveAllFromArray{
				RemoveAllFromArray: &pb.ArrayValue{Values: []*pb.Value{{ValueType: &pb.Value_StringValue{StringValue: "y"}}}},
			},
		},
	}
	if diff := cmp.Diff(transforms, wantTransforms, cmp.Comparer(proto.Equal)); diff != "" {
		t.Errorf("transforms mismatch: %s", diff)
	}
}
