// Package storage persists container items and their surrounding service
// state: a tkrzw vault for item records, a holder index, a SQL mint ledger
// with the texture catalog, and the audit log.
package storage

import (
	"context"
	"fmt"
	"io"
	"iter"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/zond/satchel"
	"github.com/zond/satchel/storage/dbm"
	"github.com/zond/satchel/structs"
)

type opener struct {
	dir string
	err error
}

func openTypeHash[T any, S structs.Serializable[T]](o *opener, name string) *dbm.TypeHash[T, S] {
	if o.err != nil {
		return nil
	}
	h, err := dbm.OpenTypeHash[T, S](filepath.Join(o.dir, name))
	if err != nil {
		o.err = err
	}
	return h
}

func (o *opener) openTree(name string) *dbm.Tree {
	if o.err != nil {
		return nil
	}
	t, err := dbm.OpenTree(filepath.Join(o.dir, name))
	if err != nil {
		o.err = err
	}
	return t
}

func resolvePath(dir string, override string, base string) string {
	if override == "" {
		return filepath.Join(dir, base)
	}
	if filepath.IsAbs(override) {
		return override
	}
	return filepath.Join(dir, override)
}

type Storage struct {
	config   *structs.ServiceConfig
	items    *dbm.TypeHash[structs.Item, *structs.Item]
	holders  *dbm.Tree
	ledger   *Ledger
	textures *Textures
	audit    *AuditLogger
}

// New opens the storage rooted at dir. Configuration is read from
// service.json in dir when present, defaults otherwise.
func New(ctx context.Context, dir string) (*Storage, error) {
	config, err := structs.LoadServiceConfig(filepath.Join(dir, "service.json"))
	if err != nil {
		return nil, satchel.WithStack(err)
	}
	vaultDir := dir
	if config.GetVaultDir() != "" {
		vaultDir = resolvePath(dir, config.GetVaultDir(), "")
	}
	ledger, err := OpenLedger(resolvePath(dir, config.GetLedgerPath(), "ledger.sqlite"))
	if err != nil {
		return nil, satchel.WithStack(err)
	}
	maxSizeMB, maxBackups, maxAgeDays := config.GetAuditRotation()
	o := &opener{dir: vaultDir}
	s := &Storage{
		config:   config,
		items:    openTypeHash[structs.Item, *structs.Item](o, "items"),
		holders:  o.openTree("holders"),
		ledger:   ledger,
		textures: NewTextures(ledger, config.GetTextureTTL(), config.GetTextureCacheMax()),
		audit:    NewAuditLogger(resolvePath(dir, config.GetAuditPath(), "audit.log"), maxSizeMB, maxBackups, maxAgeDays),
	}
	if o.err != nil {
		ledger.Close()
		return nil, satchel.WithStack(o.err)
	}
	return s, nil
}

func (s *Storage) Config() *structs.ServiceConfig {
	return s.config
}

func (s *Storage) Audit() *AuditLogger {
	return s.audit
}

func (s *Storage) Textures() *Textures {
	return s.textures
}

func (s *Storage) Close() error {
	var first error
	for _, closer := range []io.Closer{s.items, s.holders, s.ledger, s.audit} {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return satchel.WithStack(first)
}

func (s *Storage) SaveItem(ctx context.Context, item *structs.Item) error {
	return satchel.WithStack(s.items.Set(item.Id, item, true))
}

func (s *Storage) LoadItem(ctx context.Context, id string) (*structs.Item, error) {
	return s.items.Get(id)
}

func (s *Storage) LoadItems(ctx context.Context, ids map[string]bool) (map[string]*structs.Item, error) {
	return s.items.GetMulti(ids)
}

func (s *Storage) RemoveItem(ctx context.Context, id string) error {
	return satchel.WithStack(s.items.Del(id))
}

// EachItem yields every item in the vault, in storage order.
func (s *Storage) EachItem(ctx context.Context) iter.Seq2[*structs.Item, error] {
	return s.items.Each()
}

// UpdateItem applies f to the stored item under the vault transaction, so
// concurrent updates can't lose writes. f gets nil when the item doesn't
// exist.
func (s *Storage) UpdateItem(ctx context.Context, id string, f func(*structs.Item) (*structs.Item, error)) error {
	return satchel.WithStack(s.items.Proc([]dbm.Proc{
		s.items.SProc(id, func(_ string, item *structs.Item) (*structs.Item, error) {
			return f(item)
		}),
	}, true))
}

func holdingKey(holder string, itemID string) string {
	return fmt.Sprintf("%s/%s", holder, itemID)
}

func holdingPrefix(holder string) string {
	return fmt.Sprintf("%s/", holder)
}

func (s *Storage) SetHolding(ctx context.Context, holder string, itemID string) error {
	return satchel.WithStack(s.holders.Set(holdingKey(holder, itemID), []byte(itemID), true))
}

func (s *Storage) DropHolding(ctx context.Context, holder string, itemID string) error {
	return satchel.WithStack(s.holders.Del(holdingKey(holder, itemID)))
}

// EachHolding yields the item IDs held by holder, in ID order.
func (s *Storage) EachHolding(ctx context.Context, holder string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for entry, err := range s.holders.EachPrefix(holdingPrefix(holder)) {
			if err != nil {
				yield("", satchel.WithStack(err))
				return
			}
			if !yield(entry.Key, nil) {
				return
			}
		}
	}
}

// Holding is one holder/item association.
type Holding struct {
	Holder string
	ItemId string
}

// AllHoldings yields every holder/item association, ordered by holder.
func (s *Storage) AllHoldings(ctx context.Context) iter.Seq2[Holding, error] {
	return func(yield func(Holding, error) bool) {
		for entry, err := range s.holders.EachPrefix("") {
			if err != nil {
				yield(Holding{}, satchel.WithStack(err))
				return
			}
			sep := strings.LastIndexByte(entry.Key, '/')
			if sep == -1 {
				continue
			}
			if !yield(Holding{Holder: entry.Key[:sep], ItemId: entry.Key[sep+1:]}, nil) {
				return
			}
		}
	}
}

func (s *Storage) HoldingCount(ctx context.Context, holder string) (int, error) {
	count := 0
	for _, err := range s.EachHolding(ctx, holder) {
		if err != nil {
			return 0, satchel.WithStack(err)
		}
		count++
	}
	return count, nil
}

// Holdings loads all items held by holder.
func (s *Storage) Holdings(ctx context.Context, holder string) (map[string]*structs.Item, error) {
	ids := map[string]bool{}
	for id, err := range s.EachHolding(ctx, holder) {
		if err != nil {
			return nil, satchel.WithStack(err)
		}
		ids[id] = true
	}
	return s.items.GetMulti(ids)
}

// MoveHolding reassigns an item between holders in one index transaction.
func (s *Storage) MoveHolding(ctx context.Context, itemID string, from string, to string) error {
	return satchel.WithStack(s.holders.Proc([]dbm.Proc{
		&dbm.BProc{
			K: holdingKey(from, itemID),
			F: func(k string, v []byte) ([]byte, error) {
				if v == nil {
					return nil, errors.Errorf("%q doesn't hold %q", from, itemID)
				}
				return nil, nil
			},
		},
		&dbm.BProc{
			K: holdingKey(to, itemID),
			F: func(k string, v []byte) ([]byte, error) {
				return []byte(itemID), nil
			},
		},
	}, true))
}

// Deliver saves the item and hands it to the holder. When the holder's tray
// is already at trayRoom the vault keeps the record but the holder index
// doesn't, matching an item dropped at their feet, and kept is false.
func (s *Storage) Deliver(ctx context.Context, holder string, item *structs.Item, trayRoom int) (bool, error) {
	if err := s.SaveItem(ctx, item); err != nil {
		return false, satchel.WithStack(err)
	}
	count, err := s.HoldingCount(ctx, holder)
	if err != nil {
		return false, satchel.WithStack(err)
	}
	kept := count < trayRoom
	if kept {
		if err := s.SetHolding(ctx, holder, item.Id); err != nil {
			return false, satchel.WithStack(err)
		}
	}
	if err := s.ledger.SetMintRecipient(ctx, item.Id, holder); err != nil {
		return kept, satchel.WithStack(err)
	}
	s.audit.Log(ctx, "DELIVER", AuditItemDelivered{Holder: holder, Item: ItemRef(item), Kept: kept})
	return kept, nil
}

// RecordMint writes the ledger row and audit entry for a freshly minted
// container.
func (s *Storage) RecordMint(ctx context.Context, item *structs.Item, visualKey string, capacity int, fingerprint string) error {
	if err := s.ledger.RecordMint(ctx, &Mint{
		ItemId:      item.Id,
		Name:        item.Name,
		VisualKey:   visualKey,
		Capacity:    capacity,
		Fingerprint: fingerprint,
		MintedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return satchel.WithStack(err)
	}
	s.audit.Log(ctx, "MINT", AuditContainerMinted{
		Item:      ItemRef(item),
		VisualKey: visualKey,
		Capacity:  capacity,
	})
	return nil
}

// Mints lists the mint ledger.
func (s *Storage) Mints(ctx context.Context) ([]Mint, error) {
	return s.ledger.Mints(ctx)
}
