package security

import (
	"regexp"
	"strings"
	"unicode"
)

// InputType selects the validation rule applied to a value.
type InputType string

const (
	InputChat        InputType = "chat"
	InputTitle       InputType = "title"
	InputDescription InputType = "description"
	InputEmail       InputType = "email"
	InputPhone       InputType = "phone"
	InputPlace       InputType = "place"
	InputURL         InputType = "url"
	InputModelOutput InputType = "model_output"
)

// Rule describes how one input type is checked and cleaned. Format, when
// set, must match the sanitized value.
type Rule struct {
	MaxLen   int
	Sanitize func(string) string
	Format   *regexp.Regexp
}

var (
	emailFormat = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)
	phoneFormat = regexp.MustCompile(`^\+?[0-9][0-9\-]{6,18}$`)
	urlFormat   = regexp.MustCompile(`^https?://[^\s]+$`)

	markupRe = regexp.MustCompile(`(?s)<[^>]*>`)
	spacesRe = regexp.MustCompile(`[ \t\f\v]+`)
)

// DefaultRules returns the built-in rule table. Callers may add entries
// before passing the table to NewGate.
func DefaultRules() map[InputType]Rule {
	return map[InputType]Rule{
		InputChat:        {MaxLen: 2000, Sanitize: sanitizeLine},
		InputTitle:       {MaxLen: 200, Sanitize: sanitizeLine},
		InputDescription: {MaxLen: 5000, Sanitize: sanitizeText},
		InputEmail:       {MaxLen: 254, Sanitize: sanitizeEmail, Format: emailFormat},
		InputPhone:       {MaxLen: 20, Sanitize: sanitizePhone, Format: phoneFormat},
		InputPlace:       {MaxLen: 200, Sanitize: sanitizeLine},
		InputURL:         {MaxLen: 2048, Sanitize: strings.TrimSpace, Format: urlFormat},
		InputModelOutput: {MaxLen: 8000, Sanitize: sanitizeText},
	}
}

// StripMarkup removes anything that looks like an HTML/XML tag.
func StripMarkup(s string) string {
	return markupRe.ReplaceAllString(s, "")
}

func dropControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// sanitizeLine strips markup and collapses all whitespace to single spaces.
func sanitizeLine(s string) string {
	return strings.Join(strings.Fields(dropControl(StripMarkup(s))), " ")
}

// sanitizeText is sanitizeLine that keeps line breaks and at most one
// blank line between paragraphs.
func sanitizeText(s string) string {
	s = strings.ReplaceAll(dropControl(StripMarkup(s)), "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(spacesRe.ReplaceAllString(line, " "))
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func sanitizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func sanitizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '+' || r == '-' {
			return r
		}
		return -1
	}, s)
}
