package conversation

import (
	"github.com/capitalize-ai/event-assistant/internal/textnorm"
)

// Confirmation is the interpretation of a reply to a yes/no prompt.
type Confirmation int

const (
	Ambiguous Confirmation = iota
	Yes
	No
)

func (c Confirmation) String() string {
	switch c {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "ambiguous"
	}
}

// maxConfirmationWords bounds how long a reply may be and still count as
// a yes or no. Longer messages are treated as new requests.
const maxConfirmationWords = 8

// Tokens is the allow-list of affirmative and negative replies. Matching
// is case and diacritic insensitive on whole words.
type Tokens struct {
	Affirmative []string `yaml:"affirmative"`
	Negative    []string `yaml:"negative"`
}

// DefaultTokens returns the built-in Vietnamese and English tokens.
func DefaultTokens() Tokens {
	return Tokens{
		Affirmative: []string{
			"có", "đồng ý", "ok", "oke", "okay", "được", "xác nhận", "vâng", "ừ", "uh",
			"chắc chắn", "tiếp tục", "yes", "y", "yep", "sure", "confirm",
		},
		Negative: []string{
			"không", "ko", "k", "hủy", "huỷ", "thôi", "dừng", "bỏ qua",
			"no", "n", "nope", "cancel", "stop",
		},
	}
}

// ParseConfirmation classifies text against tokens. A reply matching both
// lists, or neither, is ambiguous.
func ParseConfirmation(text string, tokens Tokens) Confirmation {
	if n := len(textnorm.Tokens(text)); n == 0 || n > maxConfirmationWords {
		return Ambiguous
	}
	yes := containsAny(text, tokens.Affirmative)
	no := containsAny(text, tokens.Negative)
	switch {
	case yes && !no:
		return Yes
	case no && !yes:
		return No
	default:
		return Ambiguous
	}
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if textnorm.ContainsWord(text, p) {
			return true
		}
	}
	return false
}
