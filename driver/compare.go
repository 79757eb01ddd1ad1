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

// Ordering helpers shared by drivers that evaluate filters and sort keys
// themselves.

package driver

import (
	"fmt"
	"math/big"
	"reflect"
	"time"
)

// CompareTimes orders two times: -1 if t1 is before t2, 1 if after, 0 if
// they denote the same instant.
func CompareTimes(t1, t2 time.Time) int {
	if t1.Before(t2) {
		return -1
	}
	if t1.After(t2) {
		return 1
	}
	return 0
}

// CompareNumbers orders two numeric values: -1 if n1 is less than n2, 1 if
// greater, 0 if equal. Each operand is a signed integer, unsigned integer or
// floating-point value, or a reflect.Value holding one; the two need not
// share a type.
//
// Mixed integer and floating-point operands are compared by their exact
// mathematical values. In particular a large int64 and the float64 nearest
// to it are not equal, which a conversion to float64 would report.
func CompareNumbers(n1, n2 interface{}) (int, error) {
	f1, err := asBigFloat(n1)
	if err != nil {
		return 0, err
	}
	f2, err := asBigFloat(n2)
	if err != nil {
		return 0, err
	}
	return f1.Cmp(f2), nil
}

func asBigFloat(n interface{}) (*big.Float, error) {
	v, ok := n.(reflect.Value)
	if !ok {
		v = reflect.ValueOf(n)
	}
	var f big.Float
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f.SetInt64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		f.SetUint64(v.Uint())
	case reflect.Float32, reflect.Float64:
		f.SetFloat64(v.Float())
	default:
		typ := "nil"
		if v.IsValid() {
			typ = fmt.Sprint(v.Type())
		}
		return nil, fmt.Errorf("%v of type %s is not a number", v, typ)
	}
	return &f, nil
}
