package structs

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"maps"
	"sort"

	"github.com/zond/satchel"

	"github.com/deneonet/benc"
	bstd "github.com/deneonet/benc/std"
)

var (
	lastItemCounter uint64 = 0
	encoding               = base64.StdEncoding.WithPadding(base64.NoPadding)
)

const (
	itemIDLen = 16
)

// Serializable is the contract the storage layer is generic over: a pointer
// type that can report its marshaled size, fill a preallocated buffer, and
// reconstruct itself from one.
type Serializable[T any] interface {
	*T
	Size() int
	Marshal([]byte)
	Unmarshal([]byte) error
}

// NextItemID returns a unique id: 8 bytes of monotonic nanosecond counter
// followed by 8 random bytes, base64 encoded.
func NextItemID() (string, error) {
	itemCounter := satchel.Increment(&lastItemCounter)
	timeSize := binary.Size(itemCounter)
	result := make([]byte, itemIDLen)
	binary.BigEndian.PutUint64(result, itemCounter)
	if _, err := rand.Read(result[timeSize:]); err != nil {
		return "", satchel.WithStack(err)
	}
	return encoding.EncodeToString(result), nil
}

// Item is one item instance in a holder's possession. Meta is the named tag
// map the host attaches arbitrary data to; container identity and contents
// live under reserved keys in it.
type Item struct {
	Id    string
	Kind  string
	Name  string
	Count uint32
	Meta  map[string][]byte
}

// MakeItem creates an item of the given kind with a fresh id.
func MakeItem(kind string, name string, count uint32) (*Item, error) {
	id, err := NextItemID()
	if err != nil {
		return nil, satchel.WithStack(err)
	}
	return &Item{
		Id:    id,
		Kind:  kind,
		Name:  name,
		Count: count,
	}, nil
}

func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	result := *i
	result.Meta = maps.Clone(i.Meta)
	return &result
}

// Tag returns the meta value under key.
func (i *Item) Tag(key string) ([]byte, bool) {
	if i == nil || i.Meta == nil {
		return nil, false
	}
	b, found := i.Meta[key]
	return b, found
}

// SetTag replaces the meta value under key, allocating the map if needed.
func (i *Item) SetTag(key string, value []byte) {
	if i.Meta == nil {
		i.Meta = map[string][]byte{}
	}
	i.Meta[key] = value
}

func (i *Item) DelTag(key string) {
	delete(i.Meta, key)
}

// Stack converts the item to a slot stack. The item's tag map travels along
// as the stack's opaque meta blob, so whatever marks the item (container
// identity included) survives the trip into and out of a slot.
func (i *Item) Stack() Stack {
	return Stack{
		Kind:  i.Kind,
		Count: i.Count,
		Meta:  MarshalMeta(i.Meta),
	}
}

func (i *Item) Size() int {
	return bstd.SizeString(i.Id) +
		bstd.SizeString(i.Kind) +
		bstd.SizeString(i.Name) +
		bstd.SizeUint32() +
		sizeMeta(i.Meta)
}

func (i *Item) Marshal(b []byte) {
	n := bstd.MarshalString(0, b, i.Id)
	n = bstd.MarshalString(n, b, i.Kind)
	n = bstd.MarshalString(n, b, i.Name)
	n = bstd.MarshalUint32(n, b, i.Count)
	marshalMeta(n, b, i.Meta)
}

func (i *Item) Unmarshal(b []byte) error {
	var err error
	n := 0
	if n, i.Id, err = bstd.UnmarshalString(n, b); err != nil {
		return satchel.WithStack(err)
	}
	if n, i.Kind, err = bstd.UnmarshalString(n, b); err != nil {
		return satchel.WithStack(err)
	}
	if n, i.Name, err = bstd.UnmarshalString(n, b); err != nil {
		return satchel.WithStack(err)
	}
	if n, i.Count, err = bstd.UnmarshalUint32(n, b); err != nil {
		return satchel.WithStack(err)
	}
	if n, i.Meta, err = unmarshalMeta(n, b); err != nil {
		return satchel.WithStack(err)
	}
	return satchel.WithStack(benc.VerifyUnmarshal(n, b))
}

// Stack is the content of one occupied slot: a quantity of one item kind
// plus an opaque meta blob that is never interpreted by the content codec.
type Stack struct {
	Kind  string
	Count uint32
	Meta  []byte
}

// IsEmpty reports whether the stack denotes an empty slot.
func (s Stack) IsEmpty() bool {
	return s.Kind == "" && s.Count == 0 && len(s.Meta) == 0
}

func (s Stack) Clone() Stack {
	result := s
	if s.Meta != nil {
		result.Meta = append([]byte(nil), s.Meta...)
	}
	return result
}

// MarshalMeta encodes a tag map deterministically (keys sorted). An empty
// map encodes as nil.
func MarshalMeta(m map[string][]byte) []byte {
	if len(m) == 0 {
		return nil
	}
	b := make([]byte, sizeMeta(m))
	marshalMeta(0, b, m)
	return b
}

// UnmarshalMeta decodes a tag map produced by MarshalMeta. nil input yields
// a nil map.
func UnmarshalMeta(b []byte) (map[string][]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	n, m, err := unmarshalMeta(0, b)
	if err != nil {
		return nil, satchel.WithStack(err)
	}
	if err := benc.VerifyUnmarshal(n, b); err != nil {
		return nil, satchel.WithStack(err)
	}
	return m, nil
}

func sizeMeta(m map[string][]byte) int {
	s := bstd.SizeUint16()
	for k, v := range m {
		s += bstd.SizeString(k) + bstd.SizeString(string(v))
	}
	return s
}

func marshalMeta(n int, b []byte, m map[string][]byte) int {
	n = bstd.MarshalUint16(n, b, uint16(len(m)))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n = bstd.MarshalString(n, b, k)
		n = bstd.MarshalString(n, b, string(m[k]))
	}
	return n
}

func unmarshalMeta(n int, b []byte) (int, map[string][]byte, error) {
	var err error
	var count uint16
	if n, count, err = bstd.UnmarshalUint16(n, b); err != nil {
		return 0, nil, satchel.WithStack(err)
	}
	if count == 0 {
		return n, nil, nil
	}
	m := make(map[string][]byte, count)
	for i := 0; i < int(count); i++ {
		var k, v string
		if n, k, err = bstd.UnmarshalString(n, b); err != nil {
			return 0, nil, satchel.WithStack(err)
		}
		if n, v, err = bstd.UnmarshalString(n, b); err != nil {
			return 0, nil, satchel.WithStack(err)
		}
		if len(v) == 0 {
			m[k] = nil
		} else {
			m[k] = []byte(v)
		}
	}
	return n, m, nil
}
