package storage

import (
	"context"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"
	"github.com/zond/satchel"
)

// Textures resolves visual keys to texture blobs. Mint bursts hit the same
// few keys over and over, so reads go through an expiring LRU in front of
// the ledger.
type Textures struct {
	ledger *Ledger
	cache  cache.Cache[string, []byte]
}

func NewTextures(ledger *Ledger, ttl time.Duration, maxKeys int) *Textures {
	return &Textures{
		ledger: ledger,
		cache:  cache.NewCache[string, []byte]().WithTTL(ttl).WithMaxKeys(maxKeys).WithLRU(),
	}
}

// Resolve returns the texture blob for a visual key. os.ErrNotExist when
// the catalog has no such key.
func (t *Textures) Resolve(ctx context.Context, visualKey string) ([]byte, error) {
	if blob, found := t.cache.Get(visualKey); found {
		return blob, nil
	}
	blob, err := t.ledger.Texture(ctx, visualKey)
	if err != nil {
		return nil, satchel.WithStack(err)
	}
	t.cache.Set(visualKey, blob, 0)
	return blob, nil
}

// Import stores or replaces a texture blob and drops any cached copy.
func (t *Textures) Import(ctx context.Context, visualKey string, blob []byte) error {
	if err := t.ledger.SetTexture(ctx, visualKey, blob); err != nil {
		return satchel.WithStack(err)
	}
	t.cache.Invalidate(visualKey)
	return nil
}

// Keys lists the catalog's visual keys.
func (t *Textures) Keys(ctx context.Context) ([]string, error) {
	return t.ledger.TextureKeys(ctx)
}
