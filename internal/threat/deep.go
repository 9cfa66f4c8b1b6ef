package threat

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	// binarySampleBytes is how much of a file the null-byte heuristic
	// inspects.
	binarySampleBytes = 512
	// maxScanFileBytes bounds per-file text-scan cost; larger files
	// are only sampled for the binary heuristic.
	maxScanFileBytes = 500 * 1024
)

// DeepAssess statically scans an extracted bundle directory. It is
// deterministic and side-effect free: two calls over an unchanged
// directory return identical assessments, and nothing under dir is
// modified. Moderation flags are advisory extra input; passing nil
// means the registry offered no verdict.
func (a *Analyzer) DeepAssess(dir string, mod *Moderation) Assessment {
	var indicators []Indicator

	if mod != nil {
		if mod.IsMalwareBlocked {
			indicators = append(indicators, Indicator{LevelCritical, CategoryModeration, "Registry has blocked this skill as malware"})
		}
		if mod.IsSuspicious {
			indicators = append(indicators, Indicator{LevelCritical, CategoryModeration, "Registry has flagged this skill as suspicious"})
		}
	}

	manifestRaw, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		// Without the entry point there is nothing trustworthy to
		// scan; report the structural failure and stop.
		indicators = append(indicators, Indicator{LevelCritical, CategoryStructure, "Bundle is missing its " + ManifestName + " entry point"})
		return finalize(indicators)
	}

	manifest, body := parseManifest(string(manifestRaw))
	if !a.categoryDisabled(CategoryCapability) {
		if manifest.Command != "" {
			indicators = append(indicators, Indicator{LevelHigh, CategoryCapability, "Manifest declares an execution command: " + manifest.Command})
		}
		if len(manifest.Binaries) > 0 {
			indicators = append(indicators, Indicator{LevelMedium, CategoryCapability, fmt.Sprintf("Manifest declares %d native binary dependency(ies)", len(manifest.Binaries))})
		}
	}

	text, binaryIndicators := a.collectText(dir)
	indicators = append(indicators, binaryIndicators...)
	bodyText := strings.ToLower(body)

	if !a.categoryDisabled(CategoryPipeToShell) {
		indicators = append(indicators, scanPatterns(text, CategoryPipeToShell, pipeToShellPatterns)...)
	}
	if !a.categoryDisabled(CategoryURL) {
		indicators = append(indicators, assessURLs(text)...)
	}
	if !a.categoryDisabled(CategoryAIManipulation) {
		indicators = append(indicators, scanPatterns(bodyText, CategoryAIManipulation, aiManipulationPatterns)...)
	}
	if !a.categoryDisabled(CategoryHiddenContent) {
		indicators = append(indicators, assessHiddenContent(bodyText)...)
	}
	if !a.categoryDisabled(CategoryNetwork) {
		indicators = append(indicators, scanPatterns(text, CategoryNetwork, networkPatterns)...)
	}
	if !a.categoryDisabled(CategorySensitivePath) {
		indicators = append(indicators, assessSensitive(text)...)
	}
	if !a.categoryDisabled(CategoryObfuscation) {
		indicators = append(indicators, scanPatterns(text, CategoryObfuscation, obfuscationPatterns)...)
	}
	if !a.categoryDisabled(CategoryPromptInjection) {
		indicators = append(indicators, scanPatterns(bodyText, CategoryPromptInjection, promptInjectionPatterns)...)
	}
	if !a.categoryDisabled(CategoryDestructive) {
		indicators = append(indicators, scanPatterns(text, CategoryDestructive, destructivePatterns)...)
	}
	if !a.categoryDisabled(CategoryNaming) {
		slug := strings.ToLower(filepath.Base(dir))
		if versionInNamePattern.MatchString(slug) {
			indicators = append(indicators, Indicator{LevelHigh, CategoryNaming, "Install directory name embeds a version number: " + slug})
		}
	}

	return finalize(indicators)
}

// collectText walks the bundle in lexical order and concatenates the
// lowercased content of every scannable file. Files failing the
// null-byte density heuristic are reported as uninspectable instead of
// scanned. Files above maxScanFileBytes are excluded from the text scan
// to bound cost, but the binary heuristic still samples them so a large
// payload cannot hide behind the size cap.
func (a *Analyzer) collectText(dir string) (string, []Indicator) {
	var b strings.Builder
	var indicators []Indicator
	flagBinary := func(path string, d fs.DirEntry) {
		if a.categoryDisabled(CategoryBinary) {
			return
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = d.Name()
		}
		indicators = append(indicators, Indicator{LevelHigh, CategoryBinary, "Uninspectable binary file in bundle: " + rel})
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxScanFileBytes {
			if sampleIsBinary(path) {
				flagBinary(path, d)
			}
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if isBinary(data) {
			flagBinary(path, d)
			return nil
		}
		b.WriteString(strings.ToLower(string(data)))
		b.WriteByte('\n')
		return nil
	})
	return b.String(), indicators
}

// sampleIsBinary reads at most binarySampleBytes from the head of the
// file and applies the null-byte heuristic.
func sampleIsBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	sample := make([]byte, binarySampleBytes)
	n, _ := io.ReadFull(f, sample)
	return isBinary(sample[:n])
}

// isBinary samples the first 512 bytes and flags content with more
// than 10% null bytes.
func isBinary(data []byte) bool {
	sample := data
	if len(sample) > binarySampleBytes {
		sample = sample[:binarySampleBytes]
	}
	if len(sample) == 0 {
		return false
	}
	nulls := 0
	for _, c := range sample {
		if c == 0 {
			nulls++
		}
	}
	return nulls*10 > len(sample)
}

// scanPatterns raises one indicator per matching pattern definition,
// in table order.
func scanPatterns(text, category string, patterns []PatternDef) []Indicator {
	var out []Indicator
	for _, p := range patterns {
		if p.Pattern.MatchString(text) {
			out = append(out, Indicator{p.Severity, category, p.Description})
		}
	}
	return out
}

// assessURLs tiers URL literals: paste/tunnel/raw-content hosts and
// runnable-content extensions are HIGH; anything else is merely a
// MEDIUM "verify trust" note. A benign instruction document rarely
// needs to reference raw URLs at all.
func assessURLs(text string) []Indicator {
	urls := urlPattern.FindAllString(text, -1)
	suspicious := make(map[string]bool)
	other := make(map[string]bool)
	for _, u := range urls {
		if isSuspiciousURL(u) {
			suspicious[u] = true
		} else {
			other[u] = true
		}
	}
	var out []Indicator
	if len(suspicious) > 0 {
		out = append(out, Indicator{LevelHigh, CategoryURL, fmt.Sprintf("%d URL(s) point at paste/tunnel hosts or runnable content", len(suspicious))})
	}
	if len(other) > 0 {
		out = append(out, Indicator{LevelMedium, CategoryURL, fmt.Sprintf("%d external URL(s) in bundle content; verify before trusting", len(other))})
	}
	return out
}

func isSuspiciousURL(u string) bool {
	rest := u
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	host := rest
	path := ""
	if idx := strings.IndexAny(rest, "/?#"); idx >= 0 {
		host = rest[:idx]
		path = rest[idx:]
	}
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	for _, h := range suspiciousURLHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	for _, ext := range suspiciousURLExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// assessHiddenContent flags HTML comments whose text carries download,
// execution, or credential keywords. Comments are invisible to a human
// skimming rendered output but the agent reads the raw text.
func assessHiddenContent(body string) []Indicator {
	for _, comment := range htmlCommentPattern.FindAllString(body, -1) {
		if containsAny(comment, hiddenContentKeywords) {
			return []Indicator{{LevelCritical, CategoryHiddenContent, "Hidden instructions inside an HTML comment"}}
		}
	}
	return nil
}

// assessSensitive raises one HIGH indicator per distinct sensitive
// pattern and escalates with a CRITICAL indicator once three or more
// distinct patterns appear in the same bundle.
func assessSensitive(text string) []Indicator {
	out := scanPatterns(text, CategorySensitivePath, sensitivePatterns)
	if len(out) >= 3 {
		out = append(out, Indicator{LevelCritical, CategorySensitivePath, fmt.Sprintf("%d distinct sensitive-data references in one bundle", len(out))})
	}
	return out
}
