package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRecordDisabled(t *testing.T) {
	var nilTrail *Trail
	if err := nilTrail.Record(Event{Operation: "install"}); err != nil {
		t.Fatalf("nil trail should be a no-op: %v", err)
	}
	if err := New("").Record(Event{Operation: "install"}); err != nil {
		t.Fatalf("empty-path trail should be a no-op: %v", err)
	}
}

func TestRecordAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "trail.jsonl")
	trail := New(path)

	events := []Event{
		{Operation: "install", Skill: "greeter", Version: "1.0.0", Outcome: "success", Threat: "low"},
		{Operation: "uninstall", Skill: "greeter", Outcome: "success"},
	}
	for _, ev := range events {
		if err := trail.Record(ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read trail: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(blob)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var got Event
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if _, err := time.Parse(time.RFC3339Nano, got.Timestamp); err != nil {
		t.Fatalf("timestamp not RFC3339Nano: %v", err)
	}
	if got.Skill != "greeter" || got.Outcome != "success" || got.Threat != "low" {
		t.Fatalf("unexpected event body: %+v", got)
	}
}

func TestRecordReportsWriteFailure(t *testing.T) {
	dir := t.TempDir()
	// Using a directory as the trail path forces the open to fail.
	if err := New(dir).Record(Event{Operation: "install"}); err == nil {
		t.Fatal("expected open failure")
	}
}
