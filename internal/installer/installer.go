// Package installer drives the per-skill lifecycle: download, extract,
// assess, commit to the lock ledger, and remove. All mutating
// operations are serialized behind one mutex because they read, modify,
// and write the single shared lock document; registry latency, not
// local disk contention, dominates anyway.
package installer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"skilldock/internal/archive"
	"skilldock/internal/audit"
	"skilldock/internal/lockstore"
	"skilldock/internal/logging"
	"skilldock/internal/registry"
	"skilldock/internal/threat"
)

// Outcome is the caller-facing result class of a lifecycle operation.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeAlreadyInstalled
	OutcomeFailed
	OutcomeNotInstalled
	OutcomeAlreadyUpToDate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeAlreadyInstalled:
		return "already-installed"
	case OutcomeFailed:
		return "failed"
	case OutcomeNotInstalled:
		return "not-installed"
	case OutcomeAlreadyUpToDate:
		return "already-up-to-date"
	default:
		return "unknown"
	}
}

// MarshalJSON renders outcomes as their string form.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// Result reports one lifecycle operation. Err is set only when the
// outcome is OutcomeFailed; Assessment is set only by DownloadAndAssess.
type Result struct {
	Outcome    Outcome            `json:"outcome"`
	Slug       string             `json:"slug"`
	Version    string             `json:"version,omitempty"`
	Assessment *threat.Assessment `json:"assessment,omitempty"`
	Err        error              `json:"-"`
}

// Registry is the slice of the registry client the coordinator needs.
type Registry interface {
	Resolve(ctx context.Context, slug, contentHash string) (registry.Resolution, error)
	GetDetail(ctx context.Context, slug string) (registry.SkillDetail, error)
	Download(ctx context.Context, slug, version string) (io.ReadCloser, error)
}

// Reloader is signalled after every committed change so downstream
// consumers (the agent runtime holding skills in memory) can refresh.
type Reloader interface {
	Reload(ctx context.Context)
}

type Service struct {
	mu        sync.Mutex
	root      string
	registry  Registry
	extractor *archive.Extractor
	lock      *lockstore.Store
	analyzer  *threat.Analyzer
	audit     *audit.Trail
	reloader  Reloader
}

func New(root string, reg Registry, ex *archive.Extractor, lock *lockstore.Store, analyzer *threat.Analyzer, trail *audit.Trail, reloader Reloader) *Service {
	return &Service{
		root:      root,
		registry:  reg,
		extractor: ex,
		lock:      lock,
		analyzer:  analyzer,
		audit:     trail,
		reloader:  reloader,
	}
}

var slugPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

func validateSlug(slug string) error {
	if !slugPattern.MatchString(slug) || strings.Contains(slug, "..") {
		return fmt.Errorf("INS_BAD_SLUG: %q is not a valid skill slug", slug)
	}
	return nil
}

func (s *Service) skillDir(slug string) string {
	return filepath.Join(s.root, slug)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Install performs the single-phase path: resolve, download, extract,
// verify, commit. With force=false a tracked slug whose directory is
// already present short-circuits without touching the network.
func (s *Service) Install(ctx context.Context, slug, version string, force bool) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateSlug(slug); err != nil {
		return s.report("install", Result{Outcome: OutcomeFailed, Slug: slug, Err: err})
	}
	if entry, tracked := s.lock.Get(slug); tracked && dirExists(s.skillDir(slug)) && !force {
		return s.report("install", Result{Outcome: OutcomeAlreadyInstalled, Slug: slug, Version: entry.Version})
	}

	resolved := s.resolveVersion(ctx, slug, version)
	if err := s.downloadAndExtract(ctx, slug, resolved); err != nil {
		return s.report("install", Result{Outcome: OutcomeFailed, Slug: slug, Version: resolved, Err: err})
	}
	s.lock.Put(slug, resolved)
	s.reload(ctx)
	return s.report("install", Result{Outcome: OutcomeSuccess, Slug: slug, Version: resolved})
}

// DownloadAndAssess performs everything Install does except the lock
// commit, and runs the deep scan over the extracted bundle. The bundle
// is left pending on disk for ConfirmInstall or CancelPendingInstall.
func (s *Service) DownloadAndAssess(ctx context.Context, slug, version string, force bool) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateSlug(slug); err != nil {
		return s.report("download-assess", Result{Outcome: OutcomeFailed, Slug: slug, Err: err})
	}
	if entry, tracked := s.lock.Get(slug); tracked && dirExists(s.skillDir(slug)) && !force {
		return s.report("download-assess", Result{Outcome: OutcomeAlreadyInstalled, Slug: slug, Version: entry.Version})
	}

	resolved := s.resolveVersion(ctx, slug, version)
	if err := s.downloadAndExtract(ctx, slug, resolved); err != nil {
		return s.report("download-assess", Result{Outcome: OutcomeFailed, Slug: slug, Version: resolved, Err: err})
	}

	// Moderation is a best-effort extra signal. An unreachable detail
	// endpoint means the signal is absent, never that the skill is clean.
	var mod *threat.Moderation
	if detail, err := s.registry.GetDetail(ctx, slug); err == nil {
		mod = &threat.Moderation{
			IsSuspicious:     detail.Moderation.IsSuspicious,
			IsMalwareBlocked: detail.Moderation.IsMalwareBlocked,
		}
	} else {
		logging.Warnw("moderation lookup failed, assessing without it", "slug", slug, "error", err)
	}
	assessment := s.analyzer.DeepAssess(s.skillDir(slug), mod)
	return s.report("download-assess", Result{Outcome: OutcomeSuccess, Slug: slug, Version: resolved, Assessment: &assessment})
}

// ConfirmInstall commits a pending bundle. It re-checks only that the
// entry point still exists; the caller is trusted to have acted on the
// assessment from DownloadAndAssess.
func (s *Service) ConfirmInstall(ctx context.Context, slug, version string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateSlug(slug); err != nil {
		return s.report("confirm", Result{Outcome: OutcomeFailed, Slug: slug, Err: err})
	}
	if _, err := os.Stat(filepath.Join(s.skillDir(slug), threat.ManifestName)); err != nil {
		return s.report("confirm", Result{Outcome: OutcomeNotInstalled, Slug: slug, Err: fmt.Errorf("INS_NOT_PENDING: no pending bundle for %q", slug)})
	}
	s.lock.Put(slug, version)
	s.reload(ctx)
	return s.report("confirm", Result{Outcome: OutcomeSuccess, Slug: slug, Version: version})
}

// CancelPendingInstall deletes a pending bundle. A slug that is
// tracked in the ledger is refused: the directory then belongs to a
// confirmed installation, not to the pending download being cancelled.
func (s *Service) CancelPendingInstall(ctx context.Context, slug string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateSlug(slug); err != nil {
		return s.report("cancel", Result{Outcome: OutcomeFailed, Slug: slug, Err: err})
	}
	if entry, tracked := s.lock.Get(slug); tracked {
		return s.report("cancel", Result{Outcome: OutcomeAlreadyInstalled, Slug: slug, Version: entry.Version})
	}
	if !dirExists(s.skillDir(slug)) {
		return s.report("cancel", Result{Outcome: OutcomeNotInstalled, Slug: slug})
	}
	if err := os.RemoveAll(s.skillDir(slug)); err != nil {
		return s.report("cancel", Result{Outcome: OutcomeFailed, Slug: slug, Err: err})
	}
	return s.report("cancel", Result{Outcome: OutcomeSuccess, Slug: slug})
}

// Update re-installs a tracked slug when the registry has something
// newer. The local content hash lets the registry answer "already up
// to date" without a download.
func (s *Service) Update(ctx context.Context, slug, version string, force bool) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateSlug(slug); err != nil {
		return s.report("update", Result{Outcome: OutcomeFailed, Slug: slug, Err: err})
	}
	if _, tracked := s.lock.Get(slug); !tracked {
		return s.report("update", Result{Outcome: OutcomeNotInstalled, Slug: slug})
	}

	hash, err := contentHash(s.skillDir(slug))
	if err != nil {
		logging.Warnw("content hash failed, updating unconditionally", "slug", slug, "error", err)
		hash = ""
	}
	resolved := version
	if res, resolveErr := s.registry.Resolve(ctx, slug, hash); resolveErr == nil {
		if version == "" && !force && res.Matching != "" && res.Matching == res.Latest {
			return s.report("update", Result{Outcome: OutcomeAlreadyUpToDate, Slug: slug, Version: res.Matching})
		}
		if resolved == "" {
			resolved = res.Latest
		}
	} else {
		logging.Warnw("resolve failed, falling back to registry default version", "slug", slug, "error", resolveErr)
	}

	if err := s.downloadAndExtract(ctx, slug, resolved); err != nil {
		return s.report("update", Result{Outcome: OutcomeFailed, Slug: slug, Version: resolved, Err: err})
	}
	s.lock.Put(slug, resolved)
	s.reload(ctx)
	return s.report("update", Result{Outcome: OutcomeSuccess, Slug: slug, Version: resolved})
}

// Uninstall removes the skill directory and its ledger entry.
func (s *Service) Uninstall(ctx context.Context, slug string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateSlug(slug); err != nil {
		return s.report("uninstall", Result{Outcome: OutcomeFailed, Slug: slug, Err: err})
	}
	_, tracked := s.lock.Get(slug)
	dir := s.skillDir(slug)
	if !tracked && !dirExists(dir) {
		return s.report("uninstall", Result{Outcome: OutcomeNotInstalled, Slug: slug})
	}
	if err := os.RemoveAll(dir); err != nil {
		return s.report("uninstall", Result{Outcome: OutcomeFailed, Slug: slug, Err: err})
	}
	s.lock.Remove(slug)
	s.reload(ctx)
	return s.report("uninstall", Result{Outcome: OutcomeSuccess, Slug: slug})
}

// CleanOrphans reconciles the install root with the ledger: untracked
// skill directories are deleted and ledger entries whose directory is
// gone are dropped. Returns the affected slugs, sorted.
func (s *Service) CleanOrphans(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.lock.Load()
	entries, err := os.ReadDir(s.root)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	var affected []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, tracked := doc.Skills[entry.Name()]; tracked {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, entry.Name())); err != nil {
			logging.Warnw("orphan directory not removed", "slug", entry.Name(), "error", err)
			continue
		}
		affected = append(affected, entry.Name())
	}
	for slug := range doc.Skills {
		if !dirExists(s.skillDir(slug)) {
			s.lock.Remove(slug)
			affected = append(affected, slug)
		}
	}
	sort.Strings(affected)
	if len(affected) > 0 {
		s.reload(ctx)
		_ = s.audit.Record(audit.Event{Operation: "clean", Detail: strings.Join(affected, ",")})
	}
	return affected, nil
}

// resolveVersion is best-effort: a resolve failure degrades to the
// download endpoint's default instead of aborting the install.
func (s *Service) resolveVersion(ctx context.Context, slug, version string) string {
	if version != "" {
		return version
	}
	res, err := s.registry.Resolve(ctx, slug, "")
	if err != nil {
		logging.Warnw("resolve failed, using registry default version", "slug", slug, "error", err)
		return ""
	}
	return res.Latest
}

// downloadAndExtract replaces any stale directory for slug with a
// freshly extracted bundle and verifies the entry point is present.
// On any failure the partial directory is removed: the filesystem may
// never hold a manifest-less skill.
func (s *Service) downloadAndExtract(ctx context.Context, slug, version string) error {
	dir := s.skillDir(slug)
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	body, err := s.registry.Download(ctx, slug, version)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := s.extractor.Extract(body, dir); err != nil {
		_ = os.RemoveAll(dir)
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, threat.ManifestName)); err != nil {
		_ = os.RemoveAll(dir)
		return fmt.Errorf("INS_MANIFEST_MISSING: bundle for %q has no %s", slug, threat.ManifestName)
	}
	return nil
}

// contentHash folds the installed files into one digest: relative
// path bytes, then file bytes, over paths in sorted order. The same
// directory content always hashes the same, which is what makes the
// registry's "already up to date" answer meaningful.
func contentHash(dir string) (string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, rel := range paths {
		h.Write([]byte(rel))
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return "", err
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Service) reload(ctx context.Context) {
	if s.reloader != nil {
		s.reloader.Reload(ctx)
	}
}

func (s *Service) report(operation string, r Result) Result {
	ev := audit.Event{
		Operation: operation,
		Skill:     r.Slug,
		Version:   r.Version,
		Outcome:   r.Outcome.String(),
	}
	if r.Assessment != nil {
		ev.Threat = r.Assessment.Level.String()
	}
	if r.Err != nil {
		ev.Detail = r.Err.Error()
	}
	if err := s.audit.Record(ev); err != nil {
		logging.Warnw("audit record failed", "operation", operation, "error", err)
	}
	if r.Err != nil {
		var se *archive.SecurityError
		if errors.As(r.Err, &se) {
			logging.Errorw("bundle rejected", "operation", operation, "slug", r.Slug, "error", r.Err)
		} else {
			logging.Warnw("operation failed", "operation", operation, "slug", r.Slug, "error", r.Err)
		}
	}
	return r
}
