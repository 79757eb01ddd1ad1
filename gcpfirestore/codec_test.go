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
	"math"
	"testing"
	"time"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/google/go-cmp/cmp"
	"github.com/shtse8/fireschema-go-runtime/fserrors"
	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/protobuf/proto"
	tspb "google.golang.org/protobuf/types/known/timestamppb"
)

func TestEncodeValue(t *testing.T) {
	tm := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ll := &latlng.LatLng{Latitude: 1, Longitude: 2}
	for _, test := range []struct {
		in   interface{}
		want *pb.Value
	}{
		{nil, nullValue},
		{true, &pb.Value{ValueType: &pb.Value_BooleanValue{BooleanValue: true}}},
		{"x", &pb.Value{ValueType: &pb.Value_StringValue{StringValue: "x"}}},
		{int(3), intval(3)},
		{int8(3), intval(3)},
		{int32(-3), intval(-3)},
		{int64(3), intval(3)},
		{uint8(3), intval(3)},
		{uint32(3), intval(3)},
		{uint64(3), intval(3)},
		{float32(1.5), floatval(1.5)},
		{2.5, floatval(2.5)},
		{[]byte{1, 2}, &pb.Value{ValueType: &pb.Value_BytesValue{BytesValue: []byte{1, 2}}}},
		{tm, &pb.Value{ValueType: &pb.Value_TimestampValue{TimestampValue: tspb.New(tm)}}},
		{ll, &pb.Value{ValueType: &pb.Value_GeoPointValue{GeoPointValue: ll}}},
		{(*latlng.LatLng)(nil), nullValue},
		{
			[]interface{}{int64(1), "x"},
			&pb.Value{ValueType: &pb.Value_ArrayValue{ArrayValue: &pb.ArrayValue{Values: []*pb.Value{
				intval(1),
				{ValueType: &pb.Value_StringValue{StringValue: "x"}},
			}}}},
		},
		{
			// Typed slices arrive as the candidate sets of "in" filters.
			[]string{"a", "b"},
			&pb.Value{ValueType: &pb.Value_ArrayValue{ArrayValue: &pb.ArrayValue{Values: []*pb.Value{
				{ValueType: &pb.Value_StringValue{StringValue: "a"}},
				{ValueType: &pb.Value_StringValue{StringValue: "b"}},
			}}}},
		},
		{
			map[string]interface{}{"a": int64(1)},
			&pb.Value{ValueType: &pb.Value_MapValue{MapValue: &pb.MapValue{Fields: map[string]*pb.Value{
				"a": intval(1),
			}}}},
		},
		{
			map[string]string{"a": "b"},
			&pb.Value{ValueType: &pb.Value_MapValue{MapValue: &pb.MapValue{Fields: map[string]*pb.Value{
				"a": {ValueType: &pb.Value_StringValue{StringValue: "b"}},
			}}}},
		},
	} {
		got, err := encodeValue(test.in)
		if err != nil {
			t.Fatalf("%v: %v", test.in, err)
		}
		if diff := cmp.Diff(got, test.want, cmp.Comparer(proto.Equal)); diff != "" {
			t.Errorf("%v: %s", test.in, diff)
		}
	}
}

func TestEncodeValueErrors(t *testing.T) {
	for _, in := range []interface{}{
		uint64(math.MaxInt64) + 1,
		make(chan int),
		map[int]string{1: "x"},
	} {
		if _, err := encodeValue(in); fserrors.Code(err) != fserrors.InvalidArgument {
			t.Errorf("%v: got %v, want InvalidArgument", in, err)
		}
	}
}

func TestDecodeValue(t *testing.T) {
	tm := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ll := &latlng.LatLng{Latitude: 1, Longitude: 2}
	for _, test := range []struct {
		in   *pb.Value
		want interface{}
	}{
		{nullValue, nil},
		{&pb.Value{ValueType: &pb.Value_BooleanValue{BooleanValue: true}}, true},
		{intval(3), int64(3)},
		{floatval(2.5), 2.5},
		{&pb.Value{ValueType: &pb.Value_StringValue{StringValue: "x"}}, "x"},
		{&pb.Value{ValueType: &pb.Value_BytesValue{BytesValue: []byte{1, 2}}}, []byte{1, 2}},
		{&pb.Value{ValueType: &pb.Value_TimestampValue{TimestampValue: tspb.New(tm)}}, tm},
		{&pb.Value{ValueType: &pb.Value_GeoPointValue{GeoPointValue: ll}}, ll},
		{
			&pb.Value{ValueType: &pb.Value_ArrayValue{ArrayValue: &pb.ArrayValue{Values: []*pb.Value{
				intval(1),
				{ValueType: &pb.Value_StringValue{StringValue: "x"}},
			}}}},
			[]interface{}{int64(1), "x"},
		},
		{
			&pb.Value{ValueType: &pb.Value_MapValue{MapValue: &pb.MapValue{Fields: map[string]*pb.Value{
				"a": intval(1),
			}}}},
			map[string]interface{}{"a": int64(1)},
		},
	} {
		got, err := decodeValue(test.in)
		if err != nil {
			t.Fatalf("%v: %v", test.in, err)
		}
		if diff := cmp.Diff(test.want, got, cmp.Comparer(proto.Equal)); diff != "" {
			t.Errorf("%v: %s", test.in, diff)
		}
	}
}

func TestDecodeValueReference(t *testing.T) {
	in := &pb.Value{ValueType: &pb.Value_ReferenceValue{ReferenceValue: "projects/P/databases/(default)/documents/C/d"}}
	if _, err := decodeValue(in); err == nil {
		t.Error("got nil, want error for reference value")
	}
}

func TestDocRoundTrip(t *testing.T) {
	fields := map[string]interface{}{
		"name":  "Ann",
		"score": int64(3),
		"f":     2.5,
		"b":     []byte{1, 2},
		"at":    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		"tags":  []interface{}{"a", "b"},
		"home":  map[string]interface{}{"city": "Springfield"},
	}
	pdoc, err := encodeDoc(fields)
	if err != nil {
		t.Fatal(err)
	}
	pdoc.Name = "projects/P/databases/(default)/documents/C/doc1"
	snap, err := decodeDoc(pdoc, "")
	if err != nil {
		t.Fatal(err)
	}
	if snap.ID != "doc1" {
		t.Errorf("got ID %q, want %q", snap.ID, "doc1")
	}
	if !snap.Exists {
		t.Error("got Exists false")
	}
	if diff := cmp.Diff(fields, snap.Fields); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}
}
