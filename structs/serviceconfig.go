package structs

import (
	"os"
	"sync"
	"time"

	"github.com/zond/satchel"

	goccy "github.com/goccy/go-json"
)

// ServiceConfig holds service-wide configuration with thread-safe access.
// All fields are private and accessed via getters/setters that handle locking.
type ServiceConfig struct {
	mu              sync.RWMutex
	vaultDir        string
	auditPath       string
	auditMaxSizeMB  int
	auditMaxBackups int
	auditMaxAgeDays int
	ledgerPath      string
	textureTTL      time.Duration
	textureCacheMax int
	trayRoom        int
}

// NewServiceConfig creates a ServiceConfig with usable defaults.
func NewServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		auditMaxSizeMB:  64,
		auditMaxBackups: 8,
		auditMaxAgeDays: 28,
		textureTTL:      time.Hour,
		textureCacheMax: 1024,
		trayRoom:        36,
	}
}

func (c *ServiceConfig) GetVaultDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vaultDir
}

func (c *ServiceConfig) SetVaultDir(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vaultDir = dir
}

func (c *ServiceConfig) GetAuditPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auditPath
}

func (c *ServiceConfig) SetAuditPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auditPath = path
}

// GetAuditRotation returns max size in MB, max backups, and max age in days
// for the audit log.
func (c *ServiceConfig) GetAuditRotation() (int, int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auditMaxSizeMB, c.auditMaxBackups, c.auditMaxAgeDays
}

func (c *ServiceConfig) SetAuditRotation(maxSizeMB int, maxBackups int, maxAgeDays int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auditMaxSizeMB = maxSizeMB
	c.auditMaxBackups = maxBackups
	c.auditMaxAgeDays = maxAgeDays
}

func (c *ServiceConfig) GetLedgerPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledgerPath
}

func (c *ServiceConfig) SetLedgerPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ledgerPath = path
}

func (c *ServiceConfig) GetTextureTTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.textureTTL
}

func (c *ServiceConfig) SetTextureTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.textureTTL = ttl
}

func (c *ServiceConfig) GetTextureCacheMax() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.textureCacheMax
}

func (c *ServiceConfig) SetTextureCacheMax(max int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.textureCacheMax = max
}

// GetTrayRoom returns how many loose items a holder's tray accommodates
// before deliveries overflow to the ground.
func (c *ServiceConfig) GetTrayRoom() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trayRoom
}

func (c *ServiceConfig) SetTrayRoom(room int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trayRoom = room
}

// serviceConfigJSON is the JSON serialization format for ServiceConfig.
type serviceConfigJSON struct {
	VaultDir string
	Audit    struct {
		Path       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}
	LedgerPath string
	Textures   struct {
		TTLSeconds int
		CacheMax   int
	}
	TrayRoom int
}

// MarshalJSON implements json.Marshaler for ServiceConfig.
func (c *ServiceConfig) MarshalJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	j := serviceConfigJSON{
		VaultDir:   c.vaultDir,
		LedgerPath: c.ledgerPath,
		TrayRoom:   c.trayRoom,
	}
	j.Audit.Path = c.auditPath
	j.Audit.MaxSizeMB = c.auditMaxSizeMB
	j.Audit.MaxBackups = c.auditMaxBackups
	j.Audit.MaxAgeDays = c.auditMaxAgeDays
	j.Textures.TTLSeconds = int(c.textureTTL / time.Second)
	j.Textures.CacheMax = c.textureCacheMax

	return goccy.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler for ServiceConfig.
func (c *ServiceConfig) UnmarshalJSON(data []byte) error {
	var j serviceConfigJSON
	if err := goccy.Unmarshal(data, &j); err != nil {
		return satchel.WithStack(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.vaultDir = j.VaultDir
	c.auditPath = j.Audit.Path
	c.auditMaxSizeMB = j.Audit.MaxSizeMB
	c.auditMaxBackups = j.Audit.MaxBackups
	c.auditMaxAgeDays = j.Audit.MaxAgeDays
	c.ledgerPath = j.LedgerPath
	c.textureTTL = time.Duration(j.Textures.TTLSeconds) * time.Second
	c.textureCacheMax = j.Textures.CacheMax
	c.trayRoom = j.TrayRoom

	return nil
}

// LoadServiceConfig reads a JSON config file. A missing file yields the
// defaults.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	config := NewServiceConfig()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	} else if err != nil {
		return nil, satchel.WithStack(err)
	}
	if err := goccy.Unmarshal(b, config); err != nil {
		return nil, satchel.WithStack(err)
	}
	return config, nil
}
