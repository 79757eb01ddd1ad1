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

package driver

import (
	"math"
	"testing"
	"time"
)

func TestCompareNumbers(t *testing.T) {
	check := func(n1, n2 interface{}, want int) {
		t.Helper()
		got, err := CompareNumbers(n1, n2)
		if err != nil {
			t.Fatalf("CompareNumbers(%v, %v): %v", n1, n2, err)
		}
		if got != want {
			t.Errorf("CompareNumbers(%v, %v) = %d, want %d", n1, n2, got, want)
		}
	}

	check(1, 1, 0)
	check(1, 2, -1)
	check(2, 1, 1)
	check(int8(1), int64(2), -1)
	check(uint64(math.MaxUint64), int64(math.MaxInt64), 1)
	check(1.5, 1.5, 0)
	check(float32(1.5), 2, -1)
	// An integer this large is not representable as a float64, so a float
	// comparison would report equality. The mathematical values differ.
	big := int64(math.MaxInt64)
	check(big, float64(big), -1)
	check(math.Inf(1), big, 1)
	check(math.Inf(-1), big, -1)

	for _, bad := range []interface{}{nil, "1", true} {
		if _, err := CompareNumbers(bad, 1); err == nil {
			t.Errorf("CompareNumbers(%v, 1): got nil, want error", bad)
		}
	}
}

func TestCompareTimes(t *testing.T) {
	t1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)
	if got := CompareTimes(t1, t2); got != -1 {
		t.Errorf("got %d, want -1", got)
	}
	if got := CompareTimes(t2, t1); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
	if got := CompareTimes(t1, t1); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestFieldPathsEqual(t *testing.T) {
	for _, test := range []struct {
		fp1, fp2 []string
		want     bool
	}{
		{nil, nil, true},
		{[]string{"a"}, []string{"a"}, true},
		{[]string{"a", "b"}, []string{"a", "b"}, true},
		{[]string{"a"}, []string{"b"}, false},
		{[]string{"a"}, []string{"a", "b"}, false},
	} {
		if got := FieldPathsEqual(test.fp1, test.fp2); got != test.want {
			t.Errorf("FieldPathsEqual(%v, %v) = %t, want %t", test.fp1, test.fp2, got, test.want)
		}
	}
}

func TestUniqueStringsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		s := UniqueString()
		if s == "" {
			t.Fatal("got empty string")
		}
		if seen[s] {
			t.Fatalf("duplicate string %q", s)
		}
		seen[s] = true
	}
}
