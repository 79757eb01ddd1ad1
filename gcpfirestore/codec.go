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

// Encoding and decoding between stored field maps and Firestore protos.

import (
	"fmt"
	"math"
	"path"
	"reflect"
	"time"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/shtse8/fireschema-go-runtime/driver"
	"github.com/shtse8/fireschema-go-runtime/internal/fserr"
	"google.golang.org/genproto/googleapis/type/latlng"
	tspb "google.golang.org/protobuf/types/known/timestamppb"
)

// encodeDoc encodes a stored field map into Firestore's representation.
// A Firestore document (*pb.Document) is just a Go map from strings to
// *pb.Values.
func encodeDoc(fields map[string]interface{}) (*pb.Document, error) {
	pfields := make(map[string]*pb.Value, len(fields))
	for k, v := range fields {
		pv, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		pfields[k] = pv
	}
	return &pb.Document{Fields: pfields}, nil
}

var nullValue = &pb.Value{ValueType: &pb.Value_NullValue{}}

// encodeValue encodes a Go value as a Firestore Value.
// The Firestore proto definition for Value is a oneof of various types,
// including basic types like string as well as lists and maps.
func encodeValue(x interface{}) (*pb.Value, error) {
	switch x := x.(type) {
	case nil:
		return nullValue, nil
	case bool:
		return &pb.Value{ValueType: &pb.Value_BooleanValue{BooleanValue: x}}, nil
	case string:
		return &pb.Value{ValueType: &pb.Value_StringValue{StringValue: x}}, nil
	case int:
		return intval(int64(x)), nil
	case int8:
		return intval(int64(x)), nil
	case int16:
		return intval(int64(x)), nil
	case int32:
		return intval(int64(x)), nil
	case int64:
		return intval(x), nil
	case uint8:
		return intval(int64(x)), nil
	case uint16:
		return intval(int64(x)), nil
	case uint32:
		return intval(int64(x)), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fserr.Newf(fserr.InvalidArgument, nil, "gcpfirestore: unsigned value %d overflows int64", x)
		}
		return intval(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fserr.Newf(fserr.InvalidArgument, nil, "gcpfirestore: unsigned value %d overflows int64", x)
		}
		return intval(int64(x)), nil
	case float32:
		return floatval(float64(x)), nil
	case float64:
		return floatval(x), nil
	case []byte:
		return &pb.Value{ValueType: &pb.Value_BytesValue{BytesValue: x}}, nil
	case time.Time:
		return &pb.Value{ValueType: &pb.Value_TimestampValue{TimestampValue: tspb.New(x)}}, nil
	case *tspb.Timestamp:
		if x == nil {
			return nullValue, nil
		}
		return &pb.Value{ValueType: &pb.Value_TimestampValue{TimestampValue: x}}, nil
	case *latlng.LatLng:
		if x == nil {
			return nullValue, nil
		}
		return &pb.Value{ValueType: &pb.Value_GeoPointValue{GeoPointValue: x}}, nil
	case []interface{}:
		return encodeArrayValue(x)
	case map[string]interface{}:
		fields := make(map[string]*pb.Value, len(x))
		for k, v := range x {
			pv, err := encodeValue(v)
			if err != nil {
				return nil, err
			}
			fields[k] = pv
		}
		return &pb.Value{ValueType: &pb.Value_MapValue{MapValue: &pb.MapValue{Fields: fields}}}, nil
	}
	// Query filter values can be typed slices, like the []string candidates
	// of an "in" filter. Flatten them through reflection.
	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		vals := make([]*pb.Value, v.Len())
		for i := 0; i < v.Len(); i++ {
			pv, err := encodeValue(v.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			vals[i] = pv
		}
		return &pb.Value{ValueType: &pb.Value_ArrayValue{ArrayValue: &pb.ArrayValue{Values: vals}}}, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			break
		}
		fields := make(map[string]*pb.Value, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			pv, err := encodeValue(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			fields[iter.Key().String()] = pv
		}
		return &pb.Value{ValueType: &pb.Value_MapValue{MapValue: &pb.MapValue{Fields: fields}}}, nil
	}
	return nil, fserr.Newf(fserr.InvalidArgument, nil, "gcpfirestore: cannot encode value %v of type %[1]T", x)
}

func encodeArrayValue(s []interface{}) (*pb.Value, error) {
	av, err := encodeArray(s)
	if err != nil {
		return nil, err
	}
	return &pb.Value{ValueType: &pb.Value_ArrayValue{ArrayValue: av}}, nil
}

func encodeArray(s []interface{}) (*pb.ArrayValue, error) {
	vals := make([]*pb.Value, len(s))
	for i, e := range s {
		pv, err := encodeValue(e)
		if err != nil {
			return nil, err
		}
		vals[i] = pv
	}
	return &pb.ArrayValue{Values: vals}, nil
}

func intval(x int64) *pb.Value {
	return &pb.Value{ValueType: &pb.Value_IntegerValue{IntegerValue: x}}
}

func floatval(x float64) *pb.Value {
	return &pb.Value{ValueType: &pb.Value_DoubleValue{DoubleValue: x}}
}

// decodeDoc decodes a Firestore document into a snapshot. If id is empty the
// document ID is taken from the last component of the document's resource
// name.
func decodeDoc(pdoc *pb.Document, id string) (driver.Snapshot, error) {
	if id == "" {
		id = path.Base(pdoc.Name)
	}
	fields := make(map[string]interface{}, len(pdoc.Fields))
	for k, pv := range pdoc.Fields {
		v, err := decodeValue(pv)
		if err != nil {
			return driver.Snapshot{}, err
		}
		fields[k] = v
	}
	snap := driver.Snapshot{ID: id, Fields: fields, Exists: true}
	if pdoc.UpdateTime != nil {
		snap.UpdateTime = pdoc.UpdateTime.AsTime()
	}
	return snap, nil
}

func decodeValue(v *pb.Value) (interface{}, error) {
	switch v := v.ValueType.(type) {
	case *pb.Value_NullValue:
		return nil, nil
	case *pb.Value_BooleanValue:
		return v.BooleanValue, nil
	case *pb.Value_IntegerValue:
		return v.IntegerValue, nil
	case *pb.Value_DoubleValue:
		return v.DoubleValue, nil
	case *pb.Value_StringValue:
		return v.StringValue, nil
	case *pb.Value_BytesValue:
		return v.BytesValue, nil
	case *pb.Value_TimestampValue:
		// Return TimestampValue as time.Time.
		return v.TimestampValue.AsTime(), nil
	case *pb.Value_ReferenceValue:
		return nil, fmt.Errorf("gcpfirestore: references are not currently supported")
	case *pb.Value_GeoPointValue:
		// Return GeoPointValue as *latlng.LatLng.
		return v.GeoPointValue, nil
	case *pb.Value_ArrayValue:
		s := make([]interface{}, len(v.ArrayValue.Values))
		for i, pv := range v.ArrayValue.Values {
			e, err := decodeValue(pv)
			if err != nil {
				return nil, err
			}
			s[i] = e
		}
		return s, nil
	case *pb.Value_MapValue:
		m := make(map[string]interface{}, len(v.MapValue.Fields))
		for k, pv := range v.MapValue.Fields {
			e, err := decodeValue(pv)
			if err != nil {
				return nil, err
			}
			m[k] = e
		}
		return m, nil
	}
	return nil, fmt.Errorf("gcpfirestore: unknown firestore value type %T", v.ValueType)
}
