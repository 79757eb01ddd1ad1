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
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/shtse8/fireschema-go-runtime/internal/fserr"
)

// A Converter translates between record values of type T and the stored
// field maps of their documents. It is built from T's struct tags exactly
// once, at first use, and is safe for concurrent use.
//
// Store-eligible fields are the exported struct fields carrying a "fire"
// tag. The tag's first element is the stored field name; an empty name means
// the Go field name is used as is. Recognized options are "id", marking the
// field that holds the document ID (it must have string kind and is never
// written to storage), and "omitempty", which drops zero values on encode:
//
//	type Player struct {
//	    ID    string `fire:",id"`
//	    Name  string `fire:"name"`
//	    Score int    `fire:"score,omitempty"`
//	    cache map[string]bool // untagged: not stored
//	}
type Converter[T any] struct {
	table *descTable
}

// ConverterOf returns the Converter for T, building and caching its field
// descriptor table on first call. It returns an InvalidArgument error if T is
// not a struct type or its tags are malformed.
func ConverterOf[T any]() (*Converter[T], error) {
	t, err := tableForType(reflect.TypeOf((*T)(nil)).Elem(), true)
	if err != nil {
		return nil, err
	}
	return &Converter[T]{table: t}, nil
}

// MustConverter is like ConverterOf but panics on error. It is intended for
// generated accessor code, where the record type is known to be well-formed.
func MustConverter[T any]() *Converter[T] {
	c, err := ConverterOf[T]()
	if err != nil {
		panic(err)
	}
	return c
}

// IDField returns the Go name of T's identity field, or "" if T has none.
func (c *Converter[T]) IDField() string {
	if c.table.id == nil {
		return ""
	}
	return c.table.id.goName
}

// ToFieldMap encodes rec into a stored field map. The identity field is
// excluded; nil-valued fields are omitted; all other values are normalized to
// the wire forms (int64, float64, bool, string, []byte, time.Time, []any and
// map[string]any trees).
func (c *Converter[T]) ToFieldMap(rec *T) (map[string]interface{}, error) {
	if rec == nil {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "fireschema: nil record")
	}
	return c.table.encode(reflect.ValueOf(rec).Elem())
}

// FromStorage decodes a stored field map into a new T. If exists is false the
// document is absent and FromStorage returns (nil, nil). Stored fields with
// no matching descriptor are ignored; declared fields missing from the map
// keep their zero values. The identity field is set from id, overriding any
// value the map may carry under the same stored name.
func (c *Converter[T]) FromStorage(id string, fields map[string]interface{}, exists bool) (*T, error) {
	if !exists {
		return nil, nil
	}
	rec := new(T)
	v := reflect.ValueOf(rec).Elem()
	if err := c.table.decode(v, fields); err != nil {
		return nil, err
	}
	if f := c.table.id; f != nil {
		v.Field(f.index).SetString(id)
	}
	return rec, nil
}

// A fieldDesc describes one store-eligible struct field.
type fieldDesc struct {
	goName    string
	wireName  string
	index     int
	isID      bool
	omitEmpty bool
	sub       *descTable // non-nil when the field's element type is a tagged struct
}

// A descTable is the per-type table of field descriptors. Tables for nested
// struct types are built recursively and shared through the package cache.
type descTable struct {
	typ      reflect.Type
	fields   []*fieldDesc
	byGoName map[string]*fieldDesc
	id       *fieldDesc
}

var tableCache sync.Map // reflect.Type -> *descTable

func tableForType(t reflect.Type, topLevel bool) (*descTable, error) {
	if cached, ok := tableCache.Load(t); ok {
		return cached.(*descTable), nil
	}
	if t.Kind() != reflect.Struct {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "fireschema: record type %s is not a struct", t)
	}
	table := &descTable{typ: t, byGoName: map[string]*fieldDesc{}}
	wireSeen := map[string]string{}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, ok := sf.Tag.Lookup("fire")
		if !ok {
			continue
		}
		if sf.PkgPath != "" {
			return nil, fserr.Newf(fserr.InvalidArgument, nil, "fireschema: %s.%s: cannot store unexported field", t, sf.Name)
		}
		d := &fieldDesc{goName: sf.Name, index: i}
		parts := strings.Split(tag, ",")
		d.wireName = parts[0]
		if d.wireName == "" {
			d.wireName = sf.Name
		}
		for _, opt := range parts[1:] {
			switch opt {
			case "id":
				d.isID = true
			case "omitempty":
				d.omitEmpty = true
			case "":
			default:
				return nil, fserr.Newf(fserr.InvalidArgument, nil, "fireschema: %s.%s: unknown tag option %q", t, sf.Name, opt)
			}
		}
		if strings.Contains(d.wireName, ".") {
			return nil, fserr.Newf(fserr.InvalidArgument, nil, "fireschema: %s.%s: stored name %q must not contain '.'", t, sf.Name, d.wireName)
		}
		if prev, ok := wireSeen[d.wireName]; ok {
			return nil, fserr.Newf(fserr.InvalidArgument, nil, "fireschema: %s: fields %s and %s share stored name %q", t, prev, sf.Name, d.wireName)
		}
		wireSeen[d.wireName] = sf.Name
		if d.isID {
			if !topLevel {
				return nil, fserr.Newf(fserr.InvalidArgument, nil, "fireschema: %s.%s: id field in nested struct", t, sf.Name)
			}
			if sf.Type.Kind() != reflect.String {
				return nil, fserr.Newf(fserr.InvalidArgument, nil, "fireschema: %s.%s: id field must have string kind, not %s", t, sf.Name, sf.Type.Kind())
			}
			if table.id != nil {
				return nil, fserr.Newf(fserr.InvalidArgument, nil, "fireschema: %s: fields %s and %s both marked id", t, table.id.goName, sf.Name)
			}
			table.id = d
		}
		if st := structElemType(sf.Type); st != nil && hasFireTags(st) {
			sub, err := tableForType(st, false)
			if err != nil {
				return nil, err
			}
			d.sub = sub
		}
		table.fields = append(table.fields, d)
		table.byGoName[sf.Name] = d
	}
	actual, _ := tableCache.LoadOrStore(t, table)
	return actual.(*descTable), nil
}

// structElemType returns the struct type underlying t (through one pointer),
// or nil if t does not contain a struct. time.Time is opaque, not a nested
// document.
func structElemType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct && t != timeType {
		return t
	}
	return nil
}

func hasFireTags(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		if _, ok := t.Field(i).Tag.Lookup("fire"); ok {
			return true
		}
	}
	return false
}

var timeType = reflect.TypeOf(time.Time{})

func (dt *descTable) encode(v reflect.Value) (map[string]interface{}, error) {
	m := make(map[string]interface{}, len(dt.fields))
	for _, f := range dt.fields {
		if f.isID {
			continue
		}
		fv := v.Field(f.index)
		if isNilValue(fv) {
			continue
		}
		if f.omitEmpty && fv.IsZero() {
			continue
		}
		ev, err := encodeValue(fv, f.sub)
		if err != nil {
			return nil, fserr.Newf(fserr.Conversion, err, "fireschema: encoding field %s.%s", dt.typ, f.goName)
		}
		m[f.wireName] = ev
	}
	return m, nil
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}

// encodeValue normalizes one Go value to its wire form. sub is the
// descriptor table for v's struct type, when it has one.
func encodeValue(v reflect.Value, sub *descTable) (interface{}, error) {
	if v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil
		}
		return encodeValue(v.Elem(), sub)
	}
	if v.Type() == timeType {
		return v.Interface().(time.Time), nil
	}
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("unsigned value %d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(b), v)
			return b, nil
		}
		elemSub := tableForElem(v.Type().Elem())
		s := make([]interface{}, v.Len())
		for i := 0; i < v.Len(); i++ {
			ev, err := encodeValue(v.Index(i), elemSub)
			if err != nil {
				return nil, err
			}
			s[i] = ev
		}
		return s, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key type %s is not a string", v.Type().Key())
		}
		elemSub := tableForElem(v.Type().Elem())
		m := make(map[string]interface{}, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			ev, err := encodeValue(iter.Value(), elemSub)
			if err != nil {
				return nil, err
			}
			m[iter.Key().String()] = ev
		}
		return m, nil
	case reflect.Struct:
		if sub == nil {
			return nil, fmt.Errorf("struct type %s has no stored fields", v.Type())
		}
		return sub.encode(v)
	default:
		return nil, fmt.Errorf("cannot encode value of type %s", v.Type())
	}
}

// tableForElem returns the cached descriptor table for a container element
// type, or nil if the element is not a tagged struct. Tables for element
// types are built during registration of the enclosing record, so a cache
// miss here means the element is untyped (interface{}) or plain data.
func tableForElem(t reflect.Type) *descTable {
	st := structElemType(t)
	if st == nil {
		return nil
	}
	if cached, ok := tableCache.Load(st); ok {
		return cached.(*descTable)
	}
	if hasFireTags(st) {
		table, err := tableForType(st, false)
		if err == nil {
			return table
		}
	}
	return nil
}

func (dt *descTable) decode(v reflect.Value, fields map[string]interface{}) error {
	for _, f := range dt.fields {
		if f.isID {
			continue
		}
		sv, ok := fields[f.wireName]
		if !ok {
			continue
		}
		if err := decodeValue(v.Field(f.index), sv, f.sub); err != nil {
			return fserr.Newf(fserr.Conversion, err, "fireschema: decoding field %s.%s", dt.typ, f.goName)
		}
	}
	return nil
}

// decodeValue assigns the wire value sv to the Go value v, widening or
// narrowing numbers as v's type requires.
func decodeValue(v reflect.Value, sv interface{}, sub *descTable) error {
	if sv == nil {
		v.Set(reflect.Zero(v.Type()))
		return nil
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return decodeValue(v.Elem(), sv, sub)
	}
	if v.Kind() == reflect.Interface && v.NumMethod() == 0 {
		v.Set(reflect.ValueOf(sv))
		return nil
	}
	if v.Type() == timeType {
		t, ok := sv.(time.Time)
		if !ok {
			return decodeMismatch(v, sv)
		}
		v.Set(reflect.ValueOf(t))
		return nil
	}
	switch v.Kind() {
	case reflect.Bool:
		b, ok := sv.(bool)
		if !ok {
			return decodeMismatch(v, sv)
		}
		v.SetBool(b)
	case reflect.String:
		s, ok := sv.(string)
		if !ok {
			return decodeMismatch(v, sv)
		}
		v.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, ok := asInt64(sv)
		if !ok {
			return decodeMismatch(v, sv)
		}
		if v.OverflowInt(i) {
			return fmt.Errorf("value %d overflows %s", i, v.Type())
		}
		v.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, ok := asInt64(sv)
		if !ok || i < 0 {
			return decodeMismatch(v, sv)
		}
		if v.OverflowUint(uint64(i)) {
			return fmt.Errorf("value %d overflows %s", i, v.Type())
		}
		v.SetUint(uint64(i))
	case reflect.Float32, reflect.Float64:
		f, ok := asFloat64(sv)
		if !ok {
			return decodeMismatch(v, sv)
		}
		v.SetFloat(f)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b, ok := sv.([]byte)
			if !ok {
				return decodeMismatch(v, sv)
			}
			v.SetBytes(b)
			return nil
		}
		s, ok := sv.([]interface{})
		if !ok {
			return decodeMismatch(v, sv)
		}
		elemSub := tableForElem(v.Type().Elem())
		out := reflect.MakeSlice(v.Type(), len(s), len(s))
		for i, e := range s {
			if err := decodeValue(out.Index(i), e, elemSub); err != nil {
				return err
			}
		}
		v.Set(out)
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return decodeMismatch(v, sv)
		}
		m, ok := sv.(map[string]interface{})
		if !ok {
			return decodeMismatch(v, sv)
		}
		elemSub := tableForElem(v.Type().Elem())
		out := reflect.MakeMapWithSize(v.Type(), len(m))
		for k, e := range m {
			ev := reflect.New(v.Type().Elem()).Elem()
			if err := decodeValue(ev, e, elemSub); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(v.Type().Key()), ev)
		}
		v.Set(out)
	case reflect.Struct:
		m, ok := sv.(map[string]interface{})
		if !ok || sub == nil {
			return decodeMismatch(v, sv)
		}
		return sub.decode(v, m)
	default:
		return decodeMismatch(v, sv)
	}
	return nil
}

func decodeMismatch(v reflect.Value, sv interface{}) error {
	return fmt.Errorf("cannot decode %v (type %T) into %s", sv, sv, v.Type())
}

func asInt64(x interface{}) (int64, bool) {
	switch x := x.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		if x == math.Trunc(x) && x >= math.MinInt64 && x <= math.MaxInt64 {
			return int64(x), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func asFloat64(x interface{}) (float64, bool) {
	switch x := x.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
