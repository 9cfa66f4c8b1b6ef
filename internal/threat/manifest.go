package threat

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestName is the entry-point document every bundle must carry.
const ManifestName = "SKILL.md"

// Manifest holds the frontmatter fields the analyzer cares about.
// Registries add fields over time, so unknown keys are ignored.
type Manifest struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Version     string   `yaml:"version"`
	Command     string   `yaml:"command"`
	Binaries    []string `yaml:"binaries"`
}

// parseManifest extracts the YAML frontmatter of a SKILL.md document
// and returns the parsed fields plus the instruction body. A document
// without frontmatter, or with frontmatter that fails to parse, yields
// a zero Manifest and the whole text as body; the scan still runs over
// whatever text is there.
func parseManifest(raw string) (Manifest, string) {
	front, body, ok := splitFrontmatter(raw)
	if !ok {
		return Manifest{}, body
	}
	var m Manifest
	if err := yaml.Unmarshal([]byte(front), &m); err != nil {
		return Manifest{}, body
	}
	m.Name = strings.TrimSpace(m.Name)
	m.Command = strings.TrimSpace(m.Command)
	return m, body
}

func splitFrontmatter(raw string) (frontmatter string, body string, ok bool) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	if !strings.HasPrefix(raw, "---\n") {
		return "", strings.TrimSpace(raw), false
	}
	lines := strings.Split(raw, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end <= 0 {
		return "", strings.TrimSpace(raw), false
	}
	front := strings.Join(lines[1:end], "\n")
	bodyPart := ""
	if end+1 < len(lines) {
		bodyPart = strings.Join(lines[end+1:], "\n")
	}
	return strings.TrimSpace(front), strings.TrimSpace(bodyPart), true
}
