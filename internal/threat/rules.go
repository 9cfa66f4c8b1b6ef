package threat

import "regexp"

// RulesetVersion identifies the built-in pattern tables. Bump when a
// table changes so cached assessments can be invalidated.
const RulesetVersion = "2026.08"

// Category names. Deep-scan categories can be switched off via
// config security.disabled_categories.
const (
	CategoryModeration      = "moderation"
	CategoryStructure       = "structure"
	CategoryCapability      = "capability"
	CategoryBinary          = "binary"
	CategoryPipeToShell     = "pipe-to-shell"
	CategoryURL             = "url"
	CategoryAIManipulation  = "ai-manipulation"
	CategoryHiddenContent   = "hidden-content"
	CategoryNetwork         = "network"
	CategorySensitivePath   = "sensitive-path"
	CategoryObfuscation     = "obfuscation"
	CategoryPromptInjection = "prompt-injection"
	CategoryDestructive     = "destructive"
	CategoryNaming          = "naming"
)

// PatternDef couples a compiled pattern with the severity and message
// of the indicator it raises. All deep-scan input is lowercased before
// matching, so the tables are written in lowercase instead of using (?i).
type PatternDef struct {
	Pattern     *regexp.Regexp
	Severity    Level
	Description string
}

var pipeToShellPatterns = []PatternDef{
	{regexp.MustCompile(`(?:curl|wget)\s[^|\n]*\|\s*(?:sudo\s+)?(?:ba|z|da)?sh\b`), LevelCritical, "Download piped directly into a shell"},
	{regexp.MustCompile(`(?:curl|wget)\s[^|\n]*\|\s*(?:sudo\s+)?(?:python3?|perl|ruby|node)\b`), LevelCritical, "Download piped directly into an interpreter"},
	{regexp.MustCompile(`(?:curl|wget)\s[^\n]*-o\s*/tmp/[^\s;&]+[^\n]*(?:;|&&)\s*(?:sh|bash|chmod\s+\+?x)`), LevelCritical, "Download to temp file followed by execution"},
	{regexp.MustCompile(`\biwr\b[^|\n]*\|\s*iex\b`), LevelCritical, "PowerShell download piped into invoke-expression"},
	{regexp.MustCompile(`base64\s+(?:-d|--decode)[^|\n]*\|\s*(?:ba)?sh\b`), LevelCritical, "Decoded payload piped into a shell"},
}

var aiManipulationPatterns = []PatternDef{
	{regexp.MustCompile(`download\s+and\s+(?:run|execute)`), LevelCritical, "Instruction body tells the agent to download and execute content"},
	{regexp.MustCompile(`run\s+this\s+(?:command|script)\s+first`), LevelCritical, "Instruction body demands running a command before use"},
	{regexp.MustCompile(`required\s+prerequisite`), LevelCritical, "Instruction body claims a required prerequisite install"},
	{regexp.MustCompile(`install\s+this\s+first`), LevelCritical, "Instruction body demands installing something first"},
	{regexp.MustCompile(`before\s+using\s+this\s+skill[^\n]{0,40}(?:run|install|execute)`), LevelCritical, "Instruction body gates usage on running external content"},
	{regexp.MustCompile(`you\s+must\s+(?:install|download|run)\b`), LevelCritical, "Instruction body orders the agent to fetch or run content"},
}

var networkPatterns = []PatternDef{
	{regexp.MustCompile(`\bcurl\s+`), LevelHigh, "curl invocation in bundle content"},
	{regexp.MustCompile(`\bwget\s+`), LevelHigh, "wget invocation in bundle content"},
	{regexp.MustCompile(`\b(?:nc|netcat|ncat)\s+`), LevelHigh, "netcat invocation in bundle content"},
	{regexp.MustCompile(`\burllib\.request\b`), LevelHigh, "Python HTTP client call in bundle content"},
	{regexp.MustCompile(`\brequests\.(?:get|post)\s*\(`), LevelHigh, "Python requests call in bundle content"},
	{regexp.MustCompile(`\bfetch\s*\(\s*['"]https?:`), LevelHigh, "JavaScript fetch of a remote URL in bundle content"},
	{regexp.MustCompile(`\bhttpurlconnection\b`), LevelHigh, "Java HTTP client call in bundle content"},
	{regexp.MustCompile(`\bscp\s+[^\n]*@`), LevelHigh, "scp transfer to a remote host in bundle content"},
}

var sensitivePatterns = []PatternDef{
	{regexp.MustCompile(`\.ssh/(?:id_rsa|id_ed25519|authorized_keys)`), LevelHigh, "Reference to SSH key material"},
	{regexp.MustCompile(`wallet\.dat\b`), LevelHigh, "Reference to a cryptocurrency wallet file"},
	{regexp.MustCompile(`/data/data/`), LevelHigh, "Reference to Android private app storage"},
	{regexp.MustCompile(`(?:cookies\.sqlite|login data|local state)\b`), LevelHigh, "Reference to a browser credential store"},
	{regexp.MustCompile(`\.aws/credentials`), LevelHigh, "Reference to AWS credentials file"},
	{regexp.MustCompile(`/etc/(?:shadow|passwd)\b`), LevelHigh, "Reference to system account files"},
	{regexp.MustCompile(`\b(?:password|passphrase)s?\b`), LevelHigh, "Password token in bundle content"},
	{regexp.MustCompile(`\bsecret(?:s|_key)?\b`), LevelHigh, "Secret token in bundle content"},
	{regexp.MustCompile(`\b(?:mnemonic|seed\s+phrase|recovery\s+phrase)\b`), LevelHigh, "Wallet recovery phrase token in bundle content"},
	{regexp.MustCompile(`\bprivate\s+key\b`), LevelHigh, "Private key token in bundle content"},
}

var obfuscationPatterns = []PatternDef{
	{regexp.MustCompile(`[a-z0-9+/=]{120,}`), LevelHigh, "Long base64-like blob"},
	{regexp.MustCompile(`\beval\s*\(`), LevelHigh, "eval call"},
	{regexp.MustCompile(`\bexec\s*\(`), LevelHigh, "exec call"},
	{regexp.MustCompile(`(?:\\x[0-9a-f]{2}){10,}`), LevelHigh, "Long hex escape run"},
	{regexp.MustCompile(`(?:\\u[0-9a-f]{4}){6,}`), LevelHigh, "Long unicode escape run"},
	{regexp.MustCompile(`fromcharcode\s*\(`), LevelHigh, "Charcode-based string building"},
	{regexp.MustCompile(`chr\s*\(\s*\d+\s*\)\s*\+\s*chr\s*\(`), LevelHigh, "Charcode-based string building"},
	{regexp.MustCompile(`base64\s+(?:-d|--decode)\b`), LevelHigh, "base64 decode invocation"},
}

var promptInjectionPatterns = []PatternDef{
	{regexp.MustCompile(`ignore\s+(?:all\s+)?(?:previous|prior|above)\s+instructions`), LevelCritical, "Prompt injection: ignore previous instructions"},
	{regexp.MustCompile(`disregard\s+(?:all\s+)?(?:previous|prior|above)`), LevelCritical, "Prompt injection: disregard prior context"},
	{regexp.MustCompile(`forget\s+(?:all\s+)?(?:previous|prior)\s+(?:instructions|context)`), LevelCritical, "Prompt injection: forget prior context"},
	{regexp.MustCompile(`you\s+are\s+now\s+(?:a\s+|an\s+)?\w`), LevelCritical, "Prompt injection: identity override"},
	{regexp.MustCompile(`\bbypass\b[^\n]{0,30}\b(?:safety|security|restriction|filter)`), LevelCritical, "Prompt injection: bypass instruction"},
	{regexp.MustCompile(`\bjailbreak\b`), LevelCritical, "Prompt injection: jailbreak token"},
	{regexp.MustCompile(`(?:do\s+not|don't|never)\s+(?:tell|inform|warn)\s+the\s+user`), LevelCritical, "Concealment instruction aimed at the agent"},
}

var destructivePatterns = []PatternDef{
	{regexp.MustCompile(`rm\s+-[a-z]*r[a-z]*f[a-z]*\s+(?:/|~|\$home)(?:\s|$|\*|/)`), LevelCritical, "Recursive deletion of a root or home directory"},
	{regexp.MustCompile(`dd\s+[^\n]*of=/dev/(?:sd[a-z]|mmcblk|nvme|block)`), LevelCritical, "Raw write to a block device"},
	{regexp.MustCompile(`mkfs\.[a-z0-9]+\s+/dev/`), LevelCritical, "Filesystem format of a device"},
	{regexp.MustCompile(`:\s*\(\s*\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;`), LevelCritical, "Fork bomb"},
	{regexp.MustCompile(`>\s*/dev/sd[a-z]\b`), LevelCritical, "Redirect onto a block device"},
}

// versionInNamePattern flags names/slugs that embed a release number.
// Legitimate entries carry the version in a dedicated field, so a
// version baked into the display name is a social-engineering tell.
var versionInNamePattern = regexp.MustCompile(`(?:^|[\s_-])v?\d+\.\d+(?:\.\d+)?(?:$|[\s_-])`)

// suspiciousURLHosts are anonymous-paste, tunnel, and raw-content
// hosts that a benign instruction document has no business linking.
var suspiciousURLHosts = []string{
	"pastebin.com",
	"paste.ee",
	"hastebin.com",
	"ghostbin.com",
	"dpaste.org",
	"termbin.com",
	"ix.io",
	"0x0.st",
	"transfer.sh",
	"file.io",
	"anonfiles.com",
	"ngrok.io",
	"ngrok-free.app",
	"trycloudflare.com",
	"serveo.net",
	"localhost.run",
	"raw.githubusercontent.com",
	"gist.githubusercontent.com",
	"objects.githubusercontent.com",
}

// suspiciousURLExtensions mark a URL as pointing at runnable content.
var suspiciousURLExtensions = []string{
	".sh", ".bash", ".zsh", ".py", ".pl", ".rb", ".ps1",
	".exe", ".apk", ".dex", ".jar", ".bin", ".elf", ".so", ".dylib", ".dll",
}

var urlPattern = regexp.MustCompile(`https?://[^\s"'` + "`" + `<>\)\]]+`)

// hiddenContentKeywords, when found inside an HTML comment of the
// instruction body, mark the comment as hidden instructions. Comments
// are invisible in rendered output but the agent reads raw text.
var hiddenContentKeywords = []string{
	"curl", "wget", "http://", "https://",
	"download", "install", "execute", "run ",
	"password", "token", "secret", "credential",
	"upload", "exfiltrat", "send ",
}

var htmlCommentPattern = regexp.MustCompile(`(?s)<!--.*?-->`)
