package ledger

import (
	"fmt"
	"testing"
	"time"
)

func TestAppendAndRecent(t *testing.T) {
	l := New(10)
	now := time.Now()
	for i := 0; i < 5; i++ {
		l.Append("user_input", map[string]any{"n": i}, now)
	}
	if l.Len() != 5 {
		t.Fatalf("Expected 5 records, got %d", l.Len())
	}
	recent := l.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("Expected 3 recent records, got %d", len(recent))
	}
	if recent[2].Payload["n"] != 4 {
		t.Errorf("Expected newest record last, got %v", recent[2].Payload)
	}
}

func TestEvictsOldestOnOverflow(t *testing.T) {
	l := New(3)
	now := time.Now()
	for i := 0; i < 5; i++ {
		l.Append("event", map[string]any{"n": i}, now)
	}
	all := l.All()
	if len(all) != 3 {
		t.Fatalf("Expected capacity 3, got %d", len(all))
	}
	if all[0].Payload["n"] != 2 {
		t.Errorf("Expected oldest surviving record n=2, got %v", all[0].Payload)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	l := New(10)
	l.Append("event", map[string]any{"text": "hello"}, time.Now())
	all := l.All()
	all[0].Type = "mutated"
	all[0].Payload["text"] = "mutated"
	if l.All()[0].Type != "event" {
		t.Error("Snapshot mutation leaked into the ledger")
	}
	if l.All()[0].Payload["text"] != "hello" {
		t.Error("Payload mutation leaked into the ledger")
	}
}

func TestAppendCopiesPayload(t *testing.T) {
	l := New(10)
	payload := map[string]any{"text": "hello"}
	l.Append("event", payload, time.Now())
	payload["text"] = "mutated"
	if l.All()[0].Payload["text"] != "hello" {
		t.Error("Caller mutation of the payload leaked into the ledger")
	}
}

func TestReplaceTruncatesToCapacity(t *testing.T) {
	l := New(2)
	records := make([]Record, 5)
	for i := range records {
		records[i] = Record{Type: fmt.Sprintf("r%d", i), Timestamp: time.Now()}
	}
	l.Replace(records)
	all := l.All()
	if len(all) != 2 {
		t.Fatalf("Expected 2 records after replace, got %d", len(all))
	}
	if all[0].Type != "r3" || all[1].Type != "r4" {
		t.Errorf("Expected newest records retained, got %v %v", all[0].Type, all[1].Type)
	}
}
