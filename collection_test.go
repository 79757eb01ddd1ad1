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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shtse8/fireschema-go-runtime/fserrors"
	"github.com/shtse8/fireschema-go-runtime/memstore"
)

type Item struct {
	ID    string   `fire:",id"`
	Name  string   `fire:"name"`
	Value int      `fire:"value"`
	Tags  []string `fire:"tags"`
}

func openItemCollection(t *testing.T) *CollectionRef[Item] {
	t.Helper()
	dc, err := memstore.OpenCollection(nil)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewCollection[Item](dc)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestAddGeneratesID(t *testing.T) {
	c := openItemCollection(t)
	ctx := context.Background()

	rec := &Item{Name: "Ann", Value: 10}
	d, err := c.Add(ctx, rec)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID == "" {
		t.Fatal("Add did not populate the identity field")
	}
	if d.ID() != rec.ID {
		t.Errorf("DocRef ID %q does not match record ID %q", d.ID(), rec.ID)
	}
	got, err := d.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}
}

func TestGetNotFound(t *testing.T) {
	c := openItemCollection(t)
	d, err := c.Doc("nope")
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.Get(context.Background())
	if fserrors.Code(err) != fserrors.NotFound {
		t.Errorf("got %v, want NotFound", err)
	}
}

func TestSetGetDelete(t *testing.T) {
	c := openItemCollection(t)
	ctx := context.Background()
	d, err := c.Doc("i1")
	if err != nil {
		t.Fatal(err)
	}

	want := &Item{ID: "i1", Name: "Bob", Value: 3, Tags: []string{"a"}}
	if _, err := d.Set(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := d.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}

	if err := d.Delete(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Get(ctx); fserrors.Code(err) != fserrors.NotFound {
		t.Errorf("after Delete: got %v, want NotFound", err)
	}
	// Deleting again is not an error.
	if err := d.Delete(ctx); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestUpdateEndToEnd(t *testing.T) {
	c := openItemCollection(t)
	ctx := context.Background()
	d, err := c.Doc("i2")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Set(ctx, &Item{ID: "i2", Name: "Cam", Value: 700, Tags: []string{"a", "b"}}); err != nil {
		t.Fatal(err)
	}

	before := time.Now().Add(-time.Second)
	_, err = d.Update(ctx, func(u *Update) {
		u.Increment("value", 1).
			ArrayUnion("tags", "b", "c").
			ServerTimestamp("updatedAt").
			Set("name", "Cameron")
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Update(ctx, func(u *Update) { u.ArrayRemove("tags", "a") }); err != nil {
		t.Fatal(err)
	}

	got, err := d.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := &Item{ID: "i2", Name: "Cameron", Value: 701, Tags: []string{"b", "c"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}

	// The record type does not declare updatedAt; check it on the raw snapshot.
	snap, err := d.GetRaw(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ts, ok := snap.Fields["updatedAt"].(time.Time)
	if !ok {
		t.Fatalf("updatedAt is %T, want time.Time", snap.Fields["updatedAt"])
	}
	if ts.Before(before) {
		t.Errorf("server timestamp %v is before the update", ts)
	}
}

func TestUpdateMissingDocument(t *testing.T) {
	c := openItemCollection(t)
	_, err := c.Update(context.Background(), "ghost", func(u *Update) {
		u.Set("name", "x")
	})
	if fserrors.Code(err) != fserrors.NotFound {
		t.Errorf("got %v, want NotFound", err)
	}
}

func TestQueryEndToEnd(t *testing.T) {
	c := openItemCollection(t)
	ctx := context.Background()
	seed := []*Item{
		{ID: "a", Name: "Ann", Value: 700},
		{ID: "b", Name: "Bob", Value: 701},
		{ID: "c", Name: "Cam", Value: 701},
		{ID: "d", Name: "Dee", Value: 702},
	}
	for _, rec := range seed {
		d, err := c.Doc(rec.ID)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := d.Set(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("equality", func(t *testing.T) {
		got, err := c.Query().Where("value", "==", 701).OrderBy("name", Ascending).Fetch(ctx)
		if err != nil {
			t.Fatal(err)
		}
		want := []*Item{seed[1], seed[2]}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("mismatch (-want, +got):\n%s", diff)
		}
	})

	t.Run("limit to last", func(t *testing.T) {
		got, err := c.Query().OrderBy("value", Ascending).LimitToLast(2).Fetch(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].ID != "c" || got[1].ID != "d" {
			t.Errorf("got %v, want items c, d", ids(got))
		}
	})

	t.Run("cursor from snapshot", func(t *testing.T) {
		snaps, err := c.Query().OrderBy("value", Ascending).FetchRaw(ctx)
		if err != nil {
			t.Fatal(err)
		}
		got, err := c.Query().OrderBy("value", Ascending).StartAfter(snaps[1]).Fetch(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].ID != "c" || got[1].ID != "d" {
			t.Errorf("got %v, want items c, d", ids(got))
		}
	})
}

func ids(recs []*Item) []string {
	var out []string
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestClosedErrors(t *testing.T) {
	c := openItemCollection(t)
	ctx := context.Background()
	d, err := c.Doc("x")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); fserrors.Code(err) != fserrors.FailedPrecondition {
		t.Errorf("second Close: got %v, want FailedPrecondition", err)
	}

	check := func(name string, err error) {
		t.Helper()
		if fserrors.Code(err) != fserrors.FailedPrecondition {
			t.Errorf("%s on closed collection: got %v, want FailedPrecondition", name, err)
		}
	}
	_, err = d.Get(ctx)
	check("Get", err)
	_, err = d.Set(ctx, &Item{ID: "x"})
	check("Set", err)
	check("Delete", d.Delete(ctx))
	_, err = d.Update(ctx, func(u *Update) { u.Set("name", "y") })
	check("Update", err)
	_, err = c.Query().Fetch(ctx)
	check("Query.Fetch", err)
	_, err = c.Add(ctx, &Item{})
	check("Add", err)
}
