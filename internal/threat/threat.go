package threat

import (
	"encoding/json"
	"sort"
	"strings"
)

// Level grades assessment results, ordered by severity.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalJSON renders levels as their string form.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// ParseLevel converts a level string to its typed value.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return LevelCritical
	case "high":
		return LevelHigh
	case "medium":
		return LevelMedium
	case "low":
		return LevelLow
	default:
		return LevelHigh // safe default
	}
}

// Indicator is a single issue found by the analyzer.
type Indicator struct {
	Severity    Level  `json:"severity"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Assessment is the analyzer's verdict over one bundle.
type Assessment struct {
	Level      Level       `json:"level"`
	Indicators []Indicator `json:"indicators"`
	Summary    string      `json:"summary"`
}

// Moderation carries the registry's out-of-band verdict. It feeds the
// analyzer as an extra signal; it never replaces the local scan.
type Moderation struct {
	IsSuspicious     bool
	IsMalwareBlocked bool
}

// Analyzer runs metadata and content scans. Category names listed in
// disabled are skipped during deep scans; moderation and structural
// checks always run.
type Analyzer struct {
	disabled map[string]bool
}

func NewAnalyzer(disabledCategories []string) *Analyzer {
	disabled := make(map[string]bool, len(disabledCategories))
	for _, c := range disabledCategories {
		disabled[strings.ToLower(strings.TrimSpace(c))] = true
	}
	return &Analyzer{disabled: disabled}
}

func (a *Analyzer) categoryDisabled(category string) bool {
	return a.disabled[category]
}

func summaryFor(level Level) string {
	switch level {
	case LevelCritical:
		return "Critical threats found. Do not install this skill."
	case LevelHigh:
		return "High-risk content found. Install only if you trust the author."
	case LevelMedium:
		return "Some suspicious content found. Review before installing."
	default:
		return "No significant threats found."
	}
}

// finalize orders indicators by descending severity (stable, so checks
// keep their relative order within a severity band), derives the
// aggregate level as the maximum indicator severity, and attaches the
// canned summary for that level.
func finalize(indicators []Indicator) Assessment {
	sort.SliceStable(indicators, func(i, j int) bool {
		return indicators[i].Severity > indicators[j].Severity
	})
	level := LevelLow
	for _, ind := range indicators {
		if ind.Severity > level {
			level = ind.Severity
		}
	}
	return Assessment{Level: level, Indicators: indicators, Summary: summaryFor(level)}
}
