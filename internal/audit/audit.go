// Package audit appends a JSONL trail of pipeline operations. One
// line per event keeps the file greppable and tail-friendly.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one audit line. Outcome and Threat use the string forms of
// the installer outcome and threat level.
type Event struct {
	Timestamp string `json:"timestamp"`
	Operation string `json:"operation"`
	Skill     string `json:"skill,omitempty"`
	Version   string `json:"version,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Threat    string `json:"threat,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Trail appends events to a single file. A nil Trail or an empty path
// disables auditing without branching at call sites.
type Trail struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Trail {
	return &Trail{path: path}
}

func (t *Trail) Record(ev Event) error {
	if t == nil || t.path == "" {
		return nil
	}
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}
