package ordering

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/internal/security"
	"github.com/capitalize-ai/event-assistant/internal/textnorm"
)

var (
	emailRe    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe    = regexp.MustCompile(`\+?\d[\d .\-]{6,16}\d`)
	quantityRe = regexp.MustCompile(`(?i)(\d{1,2})\s*(?:vé|ve|tickets?|chỗ)`)
	segmentRe  = regexp.MustCompile(`[,;\n]+`)
)

// namePrefixes are folded lead-ins that introduce a participant name,
// longest first.
var namePrefixes = [][]string{
	{"ho", "va", "ten", "la"},
	{"ho", "va", "ten"},
	{"ho", "ten", "la"},
	{"ho", "ten"},
	{"ten", "toi", "la"},
	{"ten", "minh", "la"},
	{"ten", "em", "la"},
	{"ten", "la"},
	{"ten"},
	{"toi", "la"},
	{"minh", "la"},
	{"my", "name", "is"},
	{"name", "is"},
	{"name"},
	{"i", "am"},
}

// labelWords are dropped from text left over after contact details are
// cut out of a message.
var labelWords = map[string]bool{
	"email": true, "e-mail": true, "mail": true, "sdt": true, "dt": true,
	"so": true, "dien": true, "thoai": true, "phone": true, "cua": true, "va": true, "and": true,
}

// choose picks an option by label, then by position or id.
func choose(text string, opts []model.Option) (model.Option, bool) {
	if opt, ok := chooseByLabel(text, opts); ok {
		return opt, true
	}
	for _, tok := range textnorm.Tokens(text) {
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			continue
		}
		if n >= 1 && n <= int64(len(opts)) {
			return opts[n-1], true
		}
		for _, opt := range opts {
			if opt.ID == n {
				return opt, true
			}
		}
		break
	}
	return model.Option{}, false
}

// chooseByLabel matches option labels mentioned in text. When several
// match, the longest label wins if it is unique. Failing that, a text of
// three or more runes may match inside a single label.
func chooseByLabel(text string, opts []model.Option) (model.Option, bool) {
	var best model.Option
	bestLen, ties := 0, 0
	for _, opt := range opts {
		if !textnorm.ContainsWord(text, opt.Label) {
			continue
		}
		l := len([]rune(textnorm.Fold(opt.Label)))
		switch {
		case l > bestLen:
			best, bestLen, ties = opt, l, 1
		case l == bestLen:
			ties++
		}
	}
	if ties == 1 {
		return best, true
	}
	if ties > 1 {
		return model.Option{}, false
	}

	folded := textnorm.Fold(text)
	if len([]rune(folded)) < 3 {
		return model.Option{}, false
	}
	var hits []model.Option
	for _, opt := range opts {
		if strings.Contains(textnorm.Fold(opt.Label), folded) {
			hits = append(hits, opt)
		}
	}
	if len(hits) == 1 {
		return hits[0], true
	}
	return model.Option{}, false
}

// parseQuantity finds "2 vé" style quantities and returns the text with
// the match removed.
func parseQuantity(text string) (int, string, bool) {
	loc := quantityRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return 0, text, false
	}
	q, err := strconv.Atoi(text[loc[2]:loc[3]])
	if err != nil || q < 1 || q > maxQuantity {
		return 0, text, false
	}
	return q, text[:loc[0]] + " " + text[loc[1]:], true
}

// fillContact extracts email, phone and name from text and reports
// whether any field changed. Bare names without a lead-in are accepted
// only while collecting contact details.
func (n *Negotiator) fillContact(o *model.PendingOrder, text string) bool {
	bare := o.Step == model.StepCollectInfo
	changed := false
	for _, seg := range segmentRe.Split(text, -1) {
		if m := emailRe.FindString(seg); m != "" {
			changed = n.setEmail(o, m) || changed
			seg = strings.Replace(seg, m, " ", 1)
		}
		if m := phoneRe.FindString(seg); m != "" {
			changed = n.setPhone(o, m) || changed
			seg = strings.Replace(seg, m, " ", 1)
		}
		if name, ok := n.nameFrom(seg, bare); ok {
			changed = n.setName(o, name) || changed
		}
	}
	return changed
}

func (n *Negotiator) nameFrom(seg string, bare bool) (string, bool) {
	var words []string
	for _, w := range strings.Fields(seg) {
		w = strings.Trim(w, ":.-")
		if w == "" || labelWords[textnorm.Fold(w)] {
			continue
		}
		words = append(words, w)
	}
	for _, prefix := range namePrefixes {
		if len(words) < len(prefix) || !hasPrefix(words, prefix) {
			continue
		}
		rest := words[len(prefix):]
		if len(rest) == 0 || !allLetters(rest) {
			return "", false
		}
		return strings.Join(rest, " "), true
	}
	if !bare || len(words) < 2 || len(words) > 6 || !allLetters(words) {
		return "", false
	}
	joined := strings.Join(words, " ")
	for _, tok := range append(n.tokens.Affirmative, n.tokens.Negative...) {
		if textnorm.ContainsWord(joined, tok) {
			return "", false
		}
	}
	return joined, true
}

func hasPrefix(words, prefix []string) bool {
	for i, p := range prefix {
		if textnorm.Fold(words[i]) != p {
			return false
		}
	}
	return true
}

func allLetters(words []string) bool {
	for _, w := range words {
		for _, r := range w {
			if !unicode.IsLetter(r) && r != '\'' {
				return false
			}
		}
	}
	return true
}

func (n *Negotiator) setName(o *model.PendingOrder, v string) bool {
	return n.set(o, &o.ParticipantName, v, security.InputTitle)
}

func (n *Negotiator) setEmail(o *model.PendingOrder, v string) bool {
	return n.set(o, &o.Email, v, security.InputEmail)
}

func (n *Negotiator) setPhone(o *model.PendingOrder, v string) bool {
	return n.set(o, &o.Phone, v, security.InputPhone)
}

func (n *Negotiator) set(o *model.PendingOrder, field *string, v string, t security.InputType) bool {
	if strings.TrimSpace(v) == "" {
		return false
	}
	clean, err := n.gate.ValidateString(v, t)
	if err != nil {
		n.log.Info("contact detail rejected",
			zap.String("user_id", o.UserID),
			zap.String("input_type", string(t)),
			zap.Error(err))
		return false
	}
	if clean == *field {
		return false
	}
	*field = clean
	return true
}
