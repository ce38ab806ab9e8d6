package pack

import (
	"github.com/zond/satchel"
	"github.com/zond/satchel/structs"

	"github.com/deneonet/benc"
	bstd "github.com/deneonet/benc/std"
)

const (
	// identityTagKey and contentTagKey are the reserved item meta keys the
	// codecs own. Nothing else reads or writes them.
	identityTagKey = "satchel/identity"
	contentTagKey  = "satchel/content"
	textureTagKey  = "satchel/texture"

	identityMarker = byte('S')
)

// Identity is what makes an item a container: a display name, an opaque
// visual key selecting its appearance, and its declared slot capacity.
type Identity struct {
	Name      string
	VisualKey string
	Capacity  uint8
}

// Stamp writes the identity tag onto the item, overwriting any previous tag.
// Factory use only; capacity is immutable once an item is in circulation.
func Stamp(item *structs.Item, identity Identity) {
	item.SetTag(identityTagKey, encodeIdentityTag(identity))
}

// IsContainer reports whether the item carries a well-formed identity tag.
// It never fails: nil items, absent tags and malformed tags are all false.
func IsContainer(item *structs.Item) bool {
	if item == nil {
		return false
	}
	b, found := item.Tag(identityTagKey)
	if !found {
		return false
	}
	_, err := decodeIdentityTag(b)
	return err == nil
}

// IsContainerStack reports whether a proposed slot stack carries a container
// item. The stack's meta blob is only ever inspected here; everywhere else
// it stays opaque.
func IsContainerStack(stack structs.Stack) bool {
	if len(stack.Meta) == 0 {
		return false
	}
	meta, err := structs.UnmarshalMeta(stack.Meta)
	if err != nil {
		return false
	}
	b, found := meta[identityTagKey]
	if !found {
		return false
	}
	_, err = decodeIdentityTag(b)
	return err == nil
}

// ReadCapacity returns the declared slot capacity of a container item.
func ReadCapacity(item *structs.Item) (int, error) {
	identity, err := ReadIdentity(item)
	if err != nil {
		return 0, satchel.WithStack(err)
	}
	return int(identity.Capacity), nil
}

// ReadIdentity returns the full container identity of the item.
func ReadIdentity(item *structs.Item) (Identity, error) {
	if item == nil {
		return Identity{}, satchel.WithStack(ErrNotAContainer)
	}
	b, found := item.Tag(identityTagKey)
	if !found {
		return Identity{}, satchel.WithStack(ErrNotAContainer)
	}
	identity, err := decodeIdentityTag(b)
	if err != nil {
		return Identity{}, satchel.WithStack(ErrNotAContainer)
	}
	identity.Name = item.Name
	return identity, nil
}

func encodeIdentityTag(identity Identity) []byte {
	b := make([]byte, bstd.SizeByte()+bstd.SizeString(identity.VisualKey)+bstd.SizeByte())
	n := bstd.MarshalByte(0, b, identityMarker)
	n = bstd.MarshalString(n, b, identity.VisualKey)
	bstd.MarshalByte(n, b, identity.Capacity)
	return b
}

func decodeIdentityTag(b []byte) (Identity, error) {
	var identity Identity
	n, marker, err := bstd.UnmarshalByte(0, b)
	if err != nil {
		return Identity{}, satchel.WithStack(err)
	}
	if marker != identityMarker {
		return Identity{}, satchel.WithStack(ErrNotAContainer)
	}
	if n, identity.VisualKey, err = bstd.UnmarshalString(n, b); err != nil {
		return Identity{}, satchel.WithStack(err)
	}
	if n, identity.Capacity, err = bstd.UnmarshalByte(n, b); err != nil {
		return Identity{}, satchel.WithStack(err)
	}
	if err := benc.VerifyUnmarshal(n, b); err != nil {
		return Identity{}, satchel.WithStack(err)
	}
	if !ValidCapacity(int(identity.Capacity)) {
		return Identity{}, satchel.WithStack(ErrInvalidCapacity)
	}
	return identity, nil
}
