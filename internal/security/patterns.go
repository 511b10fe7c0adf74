package security

import (
	"regexp"
)

type pattern struct {
	name string
	re   *regexp.Regexp
}

// maliciousPatterns is checked against raw input before sanitizing and
// against model output before it is shown.
var maliciousPatterns = []pattern{
	{"sql_injection", regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`)},
	{"sql_injection", regexp.MustCompile(`(?i);\s*(drop|truncate|alter|delete|insert|update)\s+`)},
	{"sql_injection", regexp.MustCompile(`(?i)\bdrop\s+(table|database)\b`)},
	{"sql_injection", regexp.MustCompile(`(?i)'\s*(or|and)\s+'?\w+'?\s*=\s*'?\w+`)},
	{"sql_injection", regexp.MustCompile(`(?i)'\s*(--|#|/\*)`)},
	{"sql_injection", regexp.MustCompile(`(?i)\b(xp_cmdshell|information_schema|sleep\s*\(\s*\d+\s*\)|benchmark\s*\()`)},
	{"script_injection", regexp.MustCompile(`(?i)<\s*/?\s*(script|iframe|object|embed|svg|style|meta|link)\b`)},
	{"script_injection", regexp.MustCompile(`(?i)(javascript|vbscript)\s*:`)},
	{"script_injection", regexp.MustCompile(`(?i)data\s*:\s*text/html`)},
	{"script_injection", regexp.MustCompile(`(?i)<[^>]*\son\w+\s*=`)},
	{"shell_injection", regexp.MustCompile("`[^`]*`")},
	{"shell_injection", regexp.MustCompile(`\$\(|\$\{`)},
	{"shell_injection", regexp.MustCompile(`(?i)(;|&&|\|\|?)\s*(rm|cat|curl|wget|bash|sh|zsh|nc|ncat|chmod|chown|python|perl|powershell|cmd)\b`)},
	{"path_traversal", regexp.MustCompile(`\.\.[/\\]`)},
	{"path_traversal", regexp.MustCompile(`(?i)%2e%2e(%2f|%5c|/|\\)`)},
	{"credential", regexp.MustCompile(`(?i)\b(password|passwd|pwd|api[_-]?key|secret|access[_-]?token|private[_-]?key)\s*[:=]\s*\S+`)},
	{"credential", regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9\-._~+/]{20,}=*`)},
	{"credential", regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{20,}`)},
	{"credential", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"credential", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
}

// matchMalicious returns the name of the first matching pattern.
func matchMalicious(s string) (string, bool) {
	for _, p := range maliciousPatterns {
		if p.re.MatchString(s) {
			return p.name, true
		}
	}
	return "", false
}
