package threat

import "strings"

// Keyword sets for metadata-only triage. A listing that advertises
// both execution ability and access to sensitive capabilities is far
// more likely to be bait than either alone.
var execKeywords = []string{
	"termux", "shell", "script", "bash", "terminal",
	"execute", "command", "interpreter",
}

var sensitiveKeywords = []string{
	"sms", "contacts", "location", "camera", "microphone",
	"call log", "clipboard", "root", "accessibility", "keylog",
}

var installPhraseKeywords = []string{
	"curl", "wget", "| sh", "| bash", "pipe to shell", "install script",
}

// QuickAssess grades a listing from registry metadata alone. It is
// cheap enough to run over every row of a search page, before anything
// is downloaded. The result is the maximum signal observed.
func (a *Analyzer) QuickAssess(name, description string, mod *Moderation) Level {
	if mod != nil && (mod.IsMalwareBlocked || mod.IsSuspicious) {
		return LevelCritical
	}

	level := LevelLow
	raise := func(l Level) {
		if l > level {
			level = l
		}
	}

	if versionInNamePattern.MatchString(strings.ToLower(name)) {
		raise(LevelHigh)
	}

	text := strings.ToLower(name + " " + description)
	hasExec := containsAny(text, execKeywords)
	hasSensitive := containsAny(text, sensitiveKeywords)
	switch {
	case hasExec && hasSensitive:
		raise(LevelHigh)
	case hasExec || hasSensitive:
		raise(LevelMedium)
	}

	if containsAny(text, installPhraseKeywords) {
		raise(LevelHigh)
	}

	return level
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
