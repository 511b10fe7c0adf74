package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ToolName identifies the operation an Action requests.
type ToolName string

const (
	ToolAddEvent    ToolName = "ADD_EVENT"
	ToolUpdateEvent ToolName = "UPDATE_EVENT"
	ToolDeleteEvent ToolName = "DELETE_EVENT"
	ToolAddReminder ToolName = "ADD_REMINDER"
	ToolOrderTicket ToolName = "ORDER_TICKET"
	ToolUnknown     ToolName = "UNKNOWN"
)

// KnownTools lists every tool the assistant can execute.
var KnownTools = []ToolName{
	ToolAddEvent,
	ToolUpdateEvent,
	ToolDeleteEvent,
	ToolAddReminder,
	ToolOrderTicket,
}

// ParseToolName normalizes a tool name produced by the model. Names such as
// "add-event", "addEvent" or "add event" map to ADD_EVENT. Unrecognized
// names map to ToolUnknown.
func ParseToolName(s string) ToolName {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '-' || r == ' ' || r == '.':
			b.WriteByte('_')
		case r >= 'A' && r <= 'Z' && i > 0 && s[i-1] >= 'a' && s[i-1] <= 'z':
			b.WriteByte('_')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	name := ToolName(strings.ToUpper(b.String()))
	for _, t := range KnownTools {
		if t == name {
			return t
		}
	}
	return ToolUnknown
}

// Args holds loosely typed tool arguments. Values are coerced by the
// extractor: ids become int64 and timestamps become time.Time.
type Args map[string]any

// String returns the argument as a trimmed string.
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Int64 returns the argument as an integer.
func (a Args) Int64(key string) (int64, bool) {
	switch v := a[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	case string:
		n, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(v), "#"), 10, 64)
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

// Time returns the argument as a time value.
func (a Args) Time(key string) (time.Time, bool) {
	t, ok := a[key].(time.Time)
	return t, ok && !t.IsZero()
}

// Has reports whether the argument is present and non-empty.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// Action is a single requested operation extracted from model output.
type Action struct {
	Tool ToolName `json:"tool"`
	Args Args     `json:"args"`
}

// Summary is a short description used in logs and audit records.
func (a Action) Summary() string {
	title := a.Args.String("title")
	if title == "" {
		title = a.Args.String("original_title")
	}
	if id, ok := a.Args.Int64("event_id"); ok {
		return fmt.Sprintf("%s #%d %q", a.Tool, id, title)
	}
	return fmt.Sprintf("%s %q", a.Tool, title)
}
