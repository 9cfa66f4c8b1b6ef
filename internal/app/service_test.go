package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"skilldock/internal/threat"
)

func writeTestConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	body := fmt.Sprintf("version = 1\n\n[registry]\nbase_url = %q\n\n[storage]\nroot = %q\n", baseURL, filepath.Join(dir, "skills"))
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func TestNewBuildsWorkingService(t *testing.T) {
	configPath := writeTestConfig(t, "https://registry.example/")
	svc, err := New(Options{ConfigPath: configPath})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.Registry == nil || svc.Installer == nil || svc.Lock == nil || svc.Analyzer == nil {
		t.Fatalf("service wiring incomplete: %+v", svc)
	}
	if _, err := os.Stat(svc.Root); err != nil {
		t.Fatalf("install root not created: %v", err)
	}
}

func TestSearchGradesEachHit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/search" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"items":[
			{"slug":"greeter","name":"Greeter","description":"says hello"},
			{"slug":"stealer","name":"Stealer","description":"grabs data","isMalwareBlocked":true}
		]}`)
	}))
	defer server.Close()

	svc, err := New(Options{ConfigPath: writeTestConfig(t, server.URL)})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	hits, err := svc.Search(context.Background(), "hello", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Threat != threat.LevelLow {
		t.Fatalf("clean hit should grade low, got %s", hits[0].Threat)
	}
	if hits[1].Threat != threat.LevelCritical {
		t.Fatalf("blocked hit should grade critical, got %s", hits[1].Threat)
	}
}

func TestInstalledIsSorted(t *testing.T) {
	svc, err := New(Options{ConfigPath: writeTestConfig(t, "https://registry.example/")})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.Lock.Put("zeta", "2.0.0")
	svc.Lock.Put("alpha", "1.0.0")

	rows := svc.Installed()
	if len(rows) != 2 || rows[0].Slug != "alpha" || rows[1].Slug != "zeta" {
		t.Fatalf("unexpected inventory: %+v", rows)
	}
	if rows[0].Version != "1.0.0" || rows[0].InstalledAt <= 0 {
		t.Fatalf("entry fields missing: %+v", rows[0])
	}
}
