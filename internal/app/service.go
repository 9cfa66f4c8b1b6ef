// Package app wires configuration, registry access, the extractor,
// the analyzer, and the install coordinator into one service consumed
// by the CLI or an embedding agent runtime.
package app

import (
	"context"
	"net/http"
	"path/filepath"

	"skilldock/internal/archive"
	"skilldock/internal/audit"
	"skilldock/internal/config"
	"skilldock/internal/fsutil"
	"skilldock/internal/installer"
	"skilldock/internal/lockstore"
	"skilldock/internal/logging"
	"skilldock/internal/registry"
	"skilldock/internal/threat"
)

type Options struct {
	ConfigPath string
	HTTPClient *http.Client
	Reloader   installer.Reloader
}

type Service struct {
	ConfigPath string
	Config     config.Config
	Root       string

	Registry  *registry.Client
	Analyzer  *threat.Analyzer
	Lock      *lockstore.Store
	Installer *installer.Service
	Audit     *audit.Trail
}

func New(opts Options) (*Service, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	cfg, err := config.Ensure(configPath)
	if err != nil {
		return nil, err
	}
	logging.Initialize(cfg.Logging.Level, cfg.Logging.Format)

	root := cfg.Storage.Root
	if root == "" {
		root = config.DefaultInstallRoot()
	}
	if err := fsutil.EnsureDir(root); err != nil {
		return nil, err
	}

	client, err := registry.New(cfg.Registry.BaseURL, cfg.Registry.APIVersion, cfg.RegistryTimeout(), opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	extractor := archive.NewExtractor(archive.Limits{
		MaxEntries:    cfg.Security.MaxEntries,
		MaxNameLength: cfg.Security.MaxNameLength,
		MaxEntryBytes: cfg.Security.MaxEntryBytes,
		MaxTotalBytes: cfg.Security.MaxTotalBytes,
	})
	analyzer := threat.NewAnalyzer(cfg.Security.DisabledCategories)
	lock := lockstore.New(root)
	trail := audit.New(filepath.Join(root, ".lock", "audit.jsonl"))
	coordinator := installer.New(root, client, extractor, lock, analyzer, trail, opts.Reloader)

	return &Service{
		ConfigPath: configPath,
		Config:     cfg,
		Root:       root,
		Registry:   client,
		Analyzer:   analyzer,
		Lock:       lock,
		Installer:  coordinator,
		Audit:      trail,
	}, nil
}

// AssessedSummary is a search or browse hit decorated with the quick
// metadata-only threat verdict, cheap enough to compute per row.
type AssessedSummary struct {
	registry.SkillSummary
	Threat threat.Level
}

// AssessedPage is one browse page with decorated rows.
type AssessedPage struct {
	Items      []AssessedSummary
	NextCursor string
}

// Search queries the registry and grades each hit.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]AssessedSummary, error) {
	hits, err := s.Registry.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return s.assess(hits), nil
}

// Browse lists registry skills page by page, graded like Search.
func (s *Service) Browse(ctx context.Context, cursor string) (AssessedPage, error) {
	page, err := s.Registry.List(ctx, cursor)
	if err != nil {
		return AssessedPage{}, err
	}
	return AssessedPage{Items: s.assess(page.Items), NextCursor: page.NextCursor}, nil
}

func (s *Service) assess(hits []registry.SkillSummary) []AssessedSummary {
	out := make([]AssessedSummary, 0, len(hits))
	for _, hit := range hits {
		mod := threat.Moderation{
			IsSuspicious:     hit.Moderation.IsSuspicious,
			IsMalwareBlocked: hit.Moderation.IsMalwareBlocked,
		}
		out = append(out, AssessedSummary{
			SkillSummary: hit,
			Threat:       s.Analyzer.QuickAssess(hit.Name, hit.Description, &mod),
		})
	}
	return out
}

// InstalledSkill is one row of the local inventory.
type InstalledSkill struct {
	Slug        string
	Version     string
	InstalledAt int64
}

// Installed returns the local inventory in slug order.
func (s *Service) Installed() []InstalledSkill {
	skills := s.Lock.ListAll()
	out := make([]InstalledSkill, 0, len(skills))
	for _, slug := range s.Lock.Slugs() {
		entry := skills[slug]
		out = append(out, InstalledSkill{Slug: slug, Version: entry.Version, InstalledAt: entry.InstalledAt})
	}
	return out
}
