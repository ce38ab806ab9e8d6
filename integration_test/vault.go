package integration

import (
	"context"
	"os"

	"github.com/zond/satchel/pack"
	"github.com/zond/satchel/storage"
)

// TestVault wraps a storage instance and session registry for testing.
type TestVault struct {
	Store  *storage.Storage
	Reg    *pack.Registry
	tmpDir string
}

// NewTestVault creates a test vault in a fresh temp directory.
func NewTestVault() (*TestVault, error) {
	tmpDir, err := os.MkdirTemp("", "satchel-integration-*")
	if err != nil {
		return nil, err
	}
	store, err := storage.New(context.Background(), tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}
	return &TestVault{
		Store:  store,
		Reg:    pack.NewRegistry(store),
		tmpDir: tmpDir,
	}, nil
}

// Restart closes the storage and opens it again over the same directory,
// like a service restart. The registry starts out empty afterwards.
func (tv *TestVault) Restart() error {
	if err := tv.Store.Close(); err != nil {
		return err
	}
	store, err := storage.New(context.Background(), tv.tmpDir)
	if err != nil {
		return err
	}
	tv.Store = store
	tv.Reg = pack.NewRegistry(store)
	return nil
}

// Close shuts down the vault and cleans up.
func (tv *TestVault) Close() {
	tv.Store.Close()
	os.RemoveAll(tv.tmpDir)
}
