package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/zond/satchel/structs"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditLogger writes container lifecycle events to a rotating log file as JSON.
type AuditLogger struct {
	mu  sync.Mutex
	out *lumberjack.Logger
	enc *json.Encoder
}

// AuditItem identifies an item by both ID and name for audit logging.
type AuditItem struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

// ItemRef creates an AuditItem from an item.
func ItemRef(item *structs.Item) AuditItem {
	return AuditItem{Id: item.Id, Name: item.Name}
}

// AuditData is the interface for typed audit event data.
type AuditData interface {
	auditData()
}

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	Time  string    `json:"time"`
	Event string    `json:"event"`
	Data  AuditData `json:"data"`
}

// AuditSessionOpened is logged when a holder opens a container.
type AuditSessionOpened struct {
	Actor string    `json:"actor"`
	Item  AuditItem `json:"item"`
	Slots int       `json:"slots"`
}

func (AuditSessionOpened) auditData() {}

// AuditSessionReplaced is logged when opening a container while the actor
// already had another session open. The abandoned session is discarded
// without a flush.
type AuditSessionReplaced struct {
	Actor     string    `json:"actor"`
	Abandoned AuditItem `json:"abandoned"`
	Item      AuditItem `json:"item"`
}

func (AuditSessionReplaced) auditData() {}

// AuditSessionClosed is logged when a session is flushed and removed.
// Warning carries any non-fatal flush failure.
type AuditSessionClosed struct {
	Actor       string    `json:"actor"`
	Item        AuditItem `json:"item"`
	Fingerprint string    `json:"fingerprint"`
	Warning     string    `json:"warning,omitempty"`
}

func (AuditSessionClosed) auditData() {}

// AuditSessionAborted is logged when a session is discarded without a flush.
type AuditSessionAborted struct {
	Actor string    `json:"actor"`
	Item  AuditItem `json:"item"`
}

func (AuditSessionAborted) auditData() {}

// AuditMutationRejected is logged when a slot mutation is refused.
type AuditMutationRejected struct {
	Actor  string    `json:"actor"`
	Item   AuditItem `json:"item"`
	Slot   int       `json:"slot"`
	Reason string    `json:"reason"`
}

func (AuditMutationRejected) auditData() {}

// AuditContainerMinted is logged when a new container item is created.
type AuditContainerMinted struct {
	Item      AuditItem `json:"item"`
	VisualKey string    `json:"visual_key"`
	Capacity  int       `json:"capacity"`
}

func (AuditContainerMinted) auditData() {}

// AuditItemDelivered is logged when an item is handed to a holder. Kept is
// false when the holder's tray had no room and the item was dropped at
// their feet instead.
type AuditItemDelivered struct {
	Holder string    `json:"holder"`
	Item   AuditItem `json:"item"`
	Kept   bool      `json:"kept"`
}

func (AuditItemDelivered) auditData() {}

// PayloadFingerprint returns a stable hex digest of an encoded content
// payload, for correlating audit entries with stored state.
func PayloadFingerprint(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// NewAuditLogger creates an audit logger writing to the specified file,
// rotating it when it outgrows maxSizeMB.
func NewAuditLogger(path string, maxSizeMB int, maxBackups int, maxAgeDays int) *AuditLogger {
	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return &AuditLogger{
		out: out,
		enc: json.NewEncoder(out),
	}
}

// Log writes a structured audit entry as JSON.
// Panics if encoding fails (indicates a bug in the typed AuditData structs).
func (a *AuditLogger) Log(ctx context.Context, event string, data AuditData) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enc.Encode(AuditEntry{
		Time:  time.Now().UTC().Format(time.RFC3339Nano),
		Event: event,
		Data:  data,
	}); err != nil {
		panic(fmt.Sprintf("audit log encode failed: %v", err))
	}
}

// Close closes the audit log file.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.out.Close()
}
