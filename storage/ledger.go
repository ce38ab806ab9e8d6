package storage

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/zond/satchel"
	_ "modernc.org/sqlite"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS mints (
	item_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	visual_key TEXT NOT NULL,
	capacity INTEGER NOT NULL,
	recipient TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL,
	minted_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS textures (
	visual_key TEXT PRIMARY KEY,
	blob BLOB NOT NULL,
	imported_at TEXT NOT NULL
);
`

// Ledger is the SQL side of the storage layer: one row per minted
// container, plus the texture catalog backing visual keys.
type Ledger struct {
	db *sqlx.DB
}

// Mint is one ledger row. Recipient stays empty until the item is
// delivered to a holder.
type Mint struct {
	ItemId      string `db:"item_id"`
	Name        string `db:"name"`
	VisualKey   string `db:"visual_key"`
	Capacity    int    `db:"capacity"`
	Recipient   string `db:"recipient"`
	Fingerprint string `db:"fingerprint"`
	MintedAt    string `db:"minted_at"`
}

func OpenLedger(path string) (*Ledger, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, satchel.WithStack(err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, satchel.WithStack(err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return satchel.WithStack(l.db.Close())
}

func (l *Ledger) RecordMint(ctx context.Context, mint *Mint) error {
	if mint.MintedAt == "" {
		mint.MintedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	_, err := l.db.NamedExecContext(ctx, `
INSERT INTO mints (item_id, name, visual_key, capacity, recipient, fingerprint, minted_at)
VALUES (:item_id, :name, :visual_key, :capacity, :recipient, :fingerprint, :minted_at)`, mint)
	return satchel.WithStack(err)
}

// SetMintRecipient records who an item was delivered to. Items that never
// went through the mint ledger are ignored.
func (l *Ledger) SetMintRecipient(ctx context.Context, itemID string, recipient string) error {
	_, err := l.db.ExecContext(ctx, `UPDATE mints SET recipient = ? WHERE item_id = ?`, recipient, itemID)
	return satchel.WithStack(err)
}

func (l *Ledger) Mint(ctx context.Context, itemID string) (*Mint, error) {
	mint := &Mint{}
	if err := l.db.GetContext(ctx, mint, `SELECT * FROM mints WHERE item_id = ?`, itemID); err != nil {
		if err == sql.ErrNoRows {
			return nil, satchel.WithStack(os.ErrNotExist)
		}
		return nil, satchel.WithStack(err)
	}
	return mint, nil
}

func (l *Ledger) Mints(ctx context.Context) ([]Mint, error) {
	mints := []Mint{}
	if err := l.db.SelectContext(ctx, &mints, `SELECT * FROM mints ORDER BY minted_at`); err != nil {
		return nil, satchel.WithStack(err)
	}
	return mints, nil
}

func (l *Ledger) SetTexture(ctx context.Context, visualKey string, blob []byte) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO textures (visual_key, blob, imported_at)
VALUES (?, ?, ?)
ON CONFLICT (visual_key) DO UPDATE SET blob = excluded.blob, imported_at = excluded.imported_at`,
		visualKey, blob, time.Now().UTC().Format(time.RFC3339Nano))
	return satchel.WithStack(err)
}

func (l *Ledger) Texture(ctx context.Context, visualKey string) ([]byte, error) {
	var blob []byte
	if err := l.db.GetContext(ctx, &blob, `SELECT blob FROM textures WHERE visual_key = ?`, visualKey); err != nil {
		if err == sql.ErrNoRows {
			return nil, satchel.WithStack(os.ErrNotExist)
		}
		return nil, satchel.WithStack(err)
	}
	return blob, nil
}

func (l *Ledger) TextureKeys(ctx context.Context) ([]string, error) {
	keys := []string{}
	if err := l.db.SelectContext(ctx, &keys, `SELECT visual_key FROM textures ORDER BY visual_key`); err != nil {
		return nil, satchel.WithStack(err)
	}
	return keys, nil
}
