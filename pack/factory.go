package pack

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/zond/satchel"
	"github.com/zond/satchel/storage"
	"github.com/zond/satchel/structs"
)

// ContainerKind is the item kind every minted container carries.
const ContainerKind = "satchel"

// Create makes a fresh container item: stamped identity, all-empty payload,
// new item ID. Capacity must be a positive multiple of SlotsPerRow, at most
// MaxCapacity.
func Create(name string, visualKey string, capacity int) (*structs.Item, error) {
	if !ValidCapacity(capacity) {
		return nil, errors.Wrapf(ErrInvalidCapacity, "%d isn't a positive multiple of %d at most %d", capacity, SlotsPerRow, MaxCapacity)
	}
	item, err := structs.MakeItem(ContainerKind, name, 1)
	if err != nil {
		return nil, satchel.WithStack(err)
	}
	Stamp(item, Identity{
		Name:      name,
		VisualKey: visualKey,
		Capacity:  uint8(capacity),
	})
	WriteContent(item, make([]structs.Stack, capacity))
	return item, nil
}

// Mint is Create for the ops flow: the visual key is resolved through the
// texture catalog onto the item, and the mint lands in the ledger and the
// audit log. A visual key absent from the catalog mints untextured rather
// than failing.
func Mint(ctx context.Context, store *storage.Storage, name string, visualKey string, capacity int) (*structs.Item, error) {
	item, err := Create(name, visualKey, capacity)
	if err != nil {
		return nil, satchel.WithStack(err)
	}
	blob, err := store.Textures().Resolve(ctx, visualKey)
	if err == nil {
		item.SetTag(textureTagKey, blob)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, satchel.WithStack(err)
	}
	payload, _ := item.Tag(contentTagKey)
	if err := store.RecordMint(ctx, item, visualKey, capacity, storage.PayloadFingerprint(payload)); err != nil {
		return nil, satchel.WithStack(err)
	}
	return item, nil
}

// Texture returns the texture blob resolved onto the item at mint time.
func Texture(item *structs.Item) ([]byte, bool) {
	return item.Tag(textureTagKey)
}
