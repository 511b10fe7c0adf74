package extract

import (
	"strings"
	"time"

	"github.com/capitalize-ai/event-assistant/internal/model"
)

// intArgs are converted to int64 when they hold a number or numeric string.
var intArgs = []string{"event_id", "ticket_type_id", "quantity", "remind_before_minutes"}

// timeArgs are parsed into time.Time.
var timeArgs = []string{"start_time", "end_time"}

// timeLayouts are tried in order. Layouts without a zone are interpreted
// in the extractor's location.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04",
	"2006-01-02",
}

// Coerce converts raw JSON arguments into typed model.Args. Values that do
// not parse are kept as they are, so validation can report them.
func Coerce(raw map[string]any, loc *time.Location) model.Args {
	if loc == nil {
		loc = time.UTC
	}
	args := make(model.Args, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		args[k] = v
	}
	for _, k := range intArgs {
		if n, ok := args.Int64(k); ok {
			args[k] = n
		}
	}
	for _, k := range timeArgs {
		s, ok := args[k].(string)
		if !ok || s == "" {
			continue
		}
		if t, ok := ParseTime(s, loc); ok {
			args[k] = t
		}
	}
	return args
}

// ParseTime parses s with the accepted layouts.
func ParseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
