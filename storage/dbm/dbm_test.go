package dbm

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"

	"github.com/deneonet/benc"
	bstd "github.com/deneonet/benc/std"
	"github.com/google/go-cmp/cmp"
	"github.com/zond/satchel"
)

type testObj struct {
	I uint32
	S string
}

func (o *testObj) Size() int {
	return bstd.SizeUint32() + bstd.SizeString(o.S)
}

func (o *testObj) Marshal(b []byte) {
	n := bstd.MarshalUint32(0, b, o.I)
	bstd.MarshalString(n, b, o.S)
}

func (o *testObj) Unmarshal(b []byte) error {
	n, i, err := bstd.UnmarshalUint32(0, b)
	if err != nil {
		return satchel.WithStack(err)
	}
	o.I = i
	n, s, err := bstd.UnmarshalString(n, b)
	if err != nil {
		return satchel.WithStack(err)
	}
	o.S = s
	return satchel.WithStack(benc.VerifyUnmarshal(n, b))
}

func TestTypeHashGetSet(t *testing.T) {
	WithTypeHash(t, func(th *TypeHash[testObj, *testObj]) {
		want := &testObj{I: 1, S: "s"}
		if err := th.Set("a", want, true); err != nil {
			t.Fatal(err)
		}
		got, err := th.Get("a")
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %+v, want %+v", got, want)
		}
		if _, err := th.Get("missing"); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("got %v, want %v", err, os.ErrNotExist)
		}
	})
}

func TestTypeHashGetMulti(t *testing.T) {
	WithTypeHash(t, func(th *TypeHash[testObj, *testObj]) {
		want := map[string]*testObj{"s": {I: 1, S: "s"}, "s2": {I: 2, S: "s2"}}
		for _, obj := range want {
			if err := th.Set(obj.S, obj, true); err != nil {
				t.Fatal(err)
			}
		}
		got, err := th.GetMulti(map[string]bool{"s": true, "s2": true})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(got, want); diff != "" {
			t.Errorf("got %+v, want %+v: %v", got, want, diff)
		}
	})
}

func TestProc(t *testing.T) {
	WithTypeHash(t, func(th *TypeHash[testObj, *testObj]) {
		want := map[string]*testObj{"s": {I: 1, S: "s"}, "s2": {I: 2, S: "s2"}}
		for _, obj := range want {
			if err := th.Set(obj.S, obj, true); err != nil {
				t.Fatal(err)
			}
		}
		wantErr := fmt.Errorf("wantErr")
		if err := th.Proc([]Proc{
			th.SProc("s", func(s string, to *testObj) (*testObj, error) {
				to.I = 14
				return to, nil
			}),
			th.SProc("s2", func(s string, to *testObj) (*testObj, error) {
				return nil, wantErr
			}),
		}, true); !errors.Is(err, wantErr) {
			t.Errorf("got %v, want %v", err, wantErr)
		}
		got, err := th.GetMulti(map[string]bool{"s": true, "s2": true})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(got, want); diff != "" {
			t.Errorf("got %+v, want %+v: %v", got, want, diff)
		}
		if err := th.Proc([]Proc{
			th.SProc("s", func(s string, to *testObj) (*testObj, error) {
				to.I = 14
				return to, nil
			}),
			th.SProc("s2", func(s string, to *testObj) (*testObj, error) {
				to.I = 44
				return to, nil
			}),
		}, true); err != nil {
			t.Fatal(err)
		}
		got, err = th.GetMulti(map[string]bool{"s": true, "s2": true})
		if err != nil {
			t.Fatal(err)
		}
		want["s"].I = 14
		want["s2"].I = 44
		if diff := cmp.Diff(got, want); diff != "" {
			t.Errorf("got %+v, want %+v: %v", got, want, diff)
		}
	})
}

func TestProcDelete(t *testing.T) {
	WithTypeHash(t, func(th *TypeHash[testObj, *testObj]) {
		if err := th.Set("s", &testObj{I: 1, S: "s"}, true); err != nil {
			t.Fatal(err)
		}
		if err := th.Proc([]Proc{
			th.SProc("s", func(s string, to *testObj) (*testObj, error) {
				return nil, nil
			}),
		}, true); err != nil {
			t.Fatal(err)
		}
		if _, err := th.Get("s"); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("got %v, want %v", err, os.ErrNotExist)
		}
	})
}

func TestTypeHashEach(t *testing.T) {
	WithTypeHash(t, func(th *TypeHash[testObj, *testObj]) {
		want := map[string]*testObj{"s": {I: 1, S: "s"}, "s2": {I: 2, S: "s2"}, "s3": {I: 3, S: "s3"}}
		for _, obj := range want {
			if err := th.Set(obj.S, obj, true); err != nil {
				t.Fatal(err)
			}
		}
		got := map[string]*testObj{}
		for obj, err := range th.Each() {
			if err != nil {
				t.Fatal(err)
			}
			got[obj.S] = obj
		}
		if diff := cmp.Diff(got, want); diff != "" {
			t.Errorf("got %+v, want %+v: %v", got, want, diff)
		}
	})
}

func TestHashEachEmpty(t *testing.T) {
	WithHash(t, func(h *Hash) {
		for range h.Each() {
			t.Error("got entry, want none")
		}
	})
}

func TestTreeEachPrefix(t *testing.T) {
	WithTree(t, func(tr *Tree) {
		for key, value := range map[string]string{
			"h/alice/one": "1",
			"h/alice/two": "2",
			"h/bob/one":   "3",
			"g/alice/one": "4",
		} {
			if err := tr.Set(key, []byte(value), true); err != nil {
				t.Fatal(err)
			}
		}
		got := map[string]string{}
		for entry, err := range tr.EachPrefix("h/alice/") {
			if err != nil {
				t.Fatal(err)
			}
			got[entry.Key] = string(entry.Value)
		}
		want := map[string]string{"one": "1", "two": "2"}
		if diff := cmp.Diff(got, want); diff != "" {
			t.Errorf("got %+v, want %+v: %v", got, want, diff)
		}
		count := 0
		for _, err := range tr.EachPrefix("h/") {
			if err != nil {
				t.Fatal(err)
			}
			count++
		}
		if count != 3 {
			t.Errorf("got %v entries, want 3", count)
		}
		for range tr.EachPrefix("h/zed/") {
			t.Error("got entry, want none")
		}
	})
}
