package structs

import (
	"bytes"
	"log"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/bxcodec/faker/v4"
	"github.com/bxcodec/faker/v4/pkg/options"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/zond/satchel"

	crand "crypto/rand"

	goccy "github.com/goccy/go-json"
)

type fakeItem struct {
	Kind  string
	Name  string
	Count uint32
	Meta  map[string][]byte `faker:"byteMap"`
}

func init() {
	if err := faker.AddProvider("byteMap", func(v reflect.Value) (any, error) {
		result := map[string][]byte{}
		size := rand.Intn(6)
		for i := 0; i < size; i++ {
			key := make([]byte, 8)
			if _, err := crand.Read(key); err != nil {
				return nil, satchel.WithStack(err)
			}
			val := make([]byte, rand.Intn(32)+1)
			if _, err := crand.Read(val); err != nil {
				return nil, satchel.WithStack(err)
			}
			result[string(key)] = val
		}
		return result, nil
	}); err != nil {
		log.Panic(err)
	}
}

func fakeItems(t *testing.T, count int) []*Item {
	t.Helper()
	result := make([]*Item, count)
	for i := range result {
		fake := &fakeItem{}
		if err := faker.FakeData(fake, options.WithRandomMapAndSliceMaxSize(10)); err != nil {
			t.Fatal(err)
		}
		item, err := MakeItem(fake.Kind, fake.Name, fake.Count)
		if err != nil {
			t.Fatal(err)
		}
		item.Meta = fake.Meta
		result[i] = item
	}
	return result
}

func TestItemMarshalRoundTrip(t *testing.T) {
	for _, item := range fakeItems(t, 100) {
		b := make([]byte, item.Size())
		item.Marshal(b)
		loaded := &Item{}
		if err := loaded.Unmarshal(b); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(item, loaded, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("round trip mismatch: %v", diff)
		}
	}
}

func TestItemUnmarshalTruncated(t *testing.T) {
	for _, item := range fakeItems(t, 10) {
		b := make([]byte, item.Size())
		item.Marshal(b)
		for cut := 0; cut < len(b); cut++ {
			loaded := &Item{}
			if err := loaded.Unmarshal(b[:cut]); err == nil {
				t.Errorf("unmarshal of %d/%d bytes succeeded", cut, len(b))
			}
		}
	}
}

func TestMetaMarshalDeterminism(t *testing.T) {
	m1 := map[string][]byte{}
	m2 := map[string][]byte{}
	keys := []string{"gamma", "alpha", "delta", "beta"}
	for _, k := range keys {
		m1[k] = []byte(k + "-value")
	}
	for i := len(keys) - 1; i >= 0; i-- {
		m2[keys[i]] = []byte(keys[i] + "-value")
	}
	b1 := MarshalMeta(m1)
	b2 := MarshalMeta(m2)
	if !bytes.Equal(b1, b2) {
		t.Errorf("got %v, want %v", b2, b1)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	for _, m := range []map[string][]byte{
		nil,
		{},
		{"single": []byte("value")},
		{"empty": nil},
		{"a": []byte{0, 1, 2}, "b": []byte{0xff}, "": []byte("anonymous")},
	} {
		loaded, err := UnmarshalMeta(MarshalMeta(m))
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(m, loaded, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("round trip mismatch: %v", diff)
		}
	}
	if MarshalMeta(nil) != nil {
		t.Errorf("empty meta should marshal to nil")
	}
}

func TestItemStack(t *testing.T) {
	for _, item := range fakeItems(t, 20) {
		stack := item.Stack()
		if stack.Kind != item.Kind || stack.Count != item.Count {
			t.Errorf("got %v/%v, want %v/%v", stack.Kind, stack.Count, item.Kind, item.Count)
		}
		meta, err := UnmarshalMeta(stack.Meta)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(item.Meta, meta, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("meta mismatch: %v", diff)
		}
	}
}

func TestStackIsEmpty(t *testing.T) {
	if !(Stack{}).IsEmpty() {
		t.Errorf("zero stack should be empty")
	}
	for _, stack := range []Stack{
		{Kind: "stone"},
		{Count: 1},
		{Meta: []byte{1}},
		{Kind: "stone", Count: 64},
	} {
		if stack.IsEmpty() {
			t.Errorf("%+v should not be empty", stack)
		}
	}
}

func TestNextItemIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id, err := NextItemID()
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestServiceConfigJSON(t *testing.T) {
	config := NewServiceConfig()
	config.SetVaultDir("/tmp/vault")
	config.SetAuditPath("/tmp/audit.jsonl")
	config.SetAuditRotation(16, 4, 7)
	config.SetLedgerPath("/tmp/ledger.sqlite")
	config.SetTextureTTL(90 * time.Second)
	config.SetTextureCacheMax(32)
	config.SetTrayRoom(27)

	b, err := goccy.Marshal(config)
	if err != nil {
		t.Fatal(err)
	}
	loaded := &ServiceConfig{}
	if err := goccy.Unmarshal(b, loaded); err != nil {
		t.Fatal(err)
	}
	if got, want := loaded.GetVaultDir(), config.GetVaultDir(); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := loaded.GetAuditPath(), config.GetAuditPath(); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	gotSize, gotBackups, gotAge := loaded.GetAuditRotation()
	if gotSize != 16 || gotBackups != 4 || gotAge != 7 {
		t.Errorf("got %v/%v/%v, want 16/4/7", gotSize, gotBackups, gotAge)
	}
	if got, want := loaded.GetLedgerPath(), config.GetLedgerPath(); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := loaded.GetTextureTTL(), config.GetTextureTTL(); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := loaded.GetTextureCacheMax(), config.GetTextureCacheMax(); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := loaded.GetTrayRoom(), config.GetTrayRoom(); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
