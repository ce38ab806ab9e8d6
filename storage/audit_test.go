package storage

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
)

// auditEntry is a test-friendly version of AuditEntry that uses
// json.RawMessage for Data.
type auditEntry struct {
	Time  string          `json:"time"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readAuditLog reads all audit log entries from the storage's audit log file.
func readAuditLog(t *testing.T, dir string) []auditEntry {
	t.Helper()
	path := filepath.Join(dir, "audit.log")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("Failed to open audit log: %v", err)
	}
	defer f.Close()

	var entries []auditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var entry auditEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Failed to parse audit log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}
	return entries
}

// filterAuditByEvent returns only entries with the given event type.
func filterAuditByEvent(entries []auditEntry, event string) []auditEntry {
	var result []auditEntry
	for _, e := range entries {
		if e.Event == event {
			result = append(result, e)
		}
	}
	return result
}

// parseAuditData parses the Data field of an audit entry into the given struct.
func parseAuditData(t *testing.T, entry auditEntry, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(entry.Data, v); err != nil {
		t.Fatalf("Failed to parse audit data for event %s: %v", entry.Event, err)
	}
}

func TestAuditMint(t *testing.T) {
	WithStorage(t, func(ctx context.Context, s *Storage, dir string) {
		item := testItem(t, "satchel", "Witch's Satchel")
		if err := s.RecordMint(ctx, item, "witch", 27, "cafe"); err != nil {
			t.Fatal(err)
		}

		entries := filterAuditByEvent(readAuditLog(t, dir), "MINT")
		if len(entries) != 1 {
			t.Fatalf("Expected 1 MINT entry, got %d", len(entries))
		}
		if entries[0].Time == "" {
			t.Error("Time is empty")
		}

		var data AuditContainerMinted
		parseAuditData(t, entries[0], &data)
		if data.Item.Id != item.Id {
			t.Errorf("Item.Id = %q, want %q", data.Item.Id, item.Id)
		}
		if data.Item.Name != "Witch's Satchel" {
			t.Errorf("Item.Name = %q, want %q", data.Item.Name, "Witch's Satchel")
		}
		if data.VisualKey != "witch" {
			t.Errorf("VisualKey = %q, want %q", data.VisualKey, "witch")
		}
		if data.Capacity != 27 {
			t.Errorf("Capacity = %d, want 27", data.Capacity)
		}
	})
}

func TestAuditDeliver(t *testing.T) {
	WithStorage(t, func(ctx context.Context, s *Storage, dir string) {
		first := testItem(t, "satchel", "First")
		second := testItem(t, "satchel", "Second")
		if _, err := s.Deliver(ctx, "alice", first, 1); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Deliver(ctx, "alice", second, 1); err != nil {
			t.Fatal(err)
		}

		entries := filterAuditByEvent(readAuditLog(t, dir), "DELIVER")
		if len(entries) != 2 {
			t.Fatalf("Expected 2 DELIVER entries, got %d", len(entries))
		}

		var kept, dropped AuditItemDelivered
		parseAuditData(t, entries[0], &kept)
		parseAuditData(t, entries[1], &dropped)
		if kept.Holder != "alice" || !kept.Kept {
			t.Errorf("first delivery = %+v, want kept by alice", kept)
		}
		if dropped.Item.Id != second.Id || dropped.Kept {
			t.Errorf("second delivery = %+v, want dropped", dropped)
		}
	})
}

func TestPayloadFingerprint(t *testing.T) {
	a := PayloadFingerprint([]byte("payload"))
	b := PayloadFingerprint([]byte("payload"))
	c := PayloadFingerprint([]byte("other"))
	if a != b {
		t.Errorf("fingerprint not stable: %q != %q", a, b)
	}
	if a == c {
		t.Errorf("distinct payloads share fingerprint %q", a)
	}
	if len(a) != 64 {
		t.Errorf("got %d hex chars, want 64", len(a))
	}
}
