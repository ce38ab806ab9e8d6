package pack

import (
	"github.com/pkg/errors"
	"github.com/zond/satchel"
	"github.com/zond/satchel/structs"

	"github.com/deneonet/benc"
	bstd "github.com/deneonet/benc/std"
)

// payloadVersion is the only supported content payload version. Anything
// else decodes as malformed.
const payloadVersion = byte(1)

// EncodeContent serializes a slot sequence into a content payload. Empty
// slots cost one presence byte; occupied slots carry kind, count and the
// meta blob byte-for-byte.
func EncodeContent(slots []structs.Stack) []byte {
	size := bstd.SizeByte() + bstd.SizeUint16()
	for _, slot := range slots {
		size += bstd.SizeBool()
		if !slot.IsEmpty() {
			size += bstd.SizeString(slot.Kind) + bstd.SizeUint32() + bstd.SizeString(string(slot.Meta))
		}
	}
	b := make([]byte, size)
	n := bstd.MarshalByte(0, b, payloadVersion)
	n = bstd.MarshalUint16(n, b, uint16(len(slots)))
	for _, slot := range slots {
		if slot.IsEmpty() {
			n = bstd.MarshalBool(n, b, false)
			continue
		}
		n = bstd.MarshalBool(n, b, true)
		n = bstd.MarshalString(n, b, slot.Kind)
		n = bstd.MarshalUint32(n, b, slot.Count)
		n = bstd.MarshalString(n, b, string(slot.Meta))
	}
	return b
}

// WriteContent encodes slots and attaches the payload to the item.
func WriteContent(item *structs.Item, slots []structs.Stack) {
	item.SetTag(contentTagKey, EncodeContent(slots))
}

// DecodeContent reconstructs the slot sequence attached to a container
// item. A stamped item with no payload yet decodes to all-empty slots of
// the declared capacity. A stored slot count that contradicts the declared
// capacity is a DecodeError with DecodeLengthMismatch; any structural
// problem is a DecodeError with DecodeMalformed.
func DecodeContent(item *structs.Item) ([]structs.Stack, error) {
	capacity, err := ReadCapacity(item)
	if err != nil {
		return nil, satchel.WithStack(err)
	}
	b, found := item.Tag(contentTagKey)
	if !found || len(b) == 0 {
		return make([]structs.Stack, capacity), nil
	}

	n, version, err := bstd.UnmarshalByte(0, b)
	if err != nil {
		return nil, malformed(err)
	}
	if version != payloadVersion {
		return nil, malformed(errors.Errorf("unknown payload version %d", version))
	}
	var length uint16
	if n, length, err = bstd.UnmarshalUint16(n, b); err != nil {
		return nil, malformed(err)
	}
	if int(length) != capacity {
		return nil, satchel.WithStack(&DecodeError{
			Reason:   DecodeLengthMismatch,
			Declared: capacity,
			Stored:   int(length),
		})
	}
	slots := make([]structs.Stack, length)
	for i := range slots {
		var present bool
		if n, present, err = bstd.UnmarshalBool(n, b); err != nil {
			return nil, malformed(err)
		}
		if !present {
			continue
		}
		if n, slots[i].Kind, err = bstd.UnmarshalString(n, b); err != nil {
			return nil, malformed(err)
		}
		if n, slots[i].Count, err = bstd.UnmarshalUint32(n, b); err != nil {
			return nil, malformed(err)
		}
		var meta string
		if n, meta, err = bstd.UnmarshalString(n, b); err != nil {
			return nil, malformed(err)
		}
		if len(meta) > 0 {
			slots[i].Meta = []byte(meta)
		}
	}
	if err := benc.VerifyUnmarshal(n, b); err != nil {
		return nil, malformed(err)
	}
	return slots, nil
}

func malformed(err error) error {
	return satchel.WithStack(&DecodeError{
		Reason: DecodeMalformed,
		Err:    err,
	})
}
