package extract

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/jsonc"
)

// ErrMalformed is returned when a JSON block was located but no element of
// it is a recognizable tool call.
var ErrMalformed = errors.New("malformed tool call block")

// Call is a tool call as written by the model, before validation.
type Call struct {
	Name string
	Args map[string]any
}

// nameKeys and argKeys list the field spellings accepted for a tool call.
var (
	nameKeys = []string{"tool", "toolName", "tool_name", "name", "action", "function"}
	argKeys  = []string{"args", "arguments", "parameters", "params", "input"}
)

// ParseCalls finds the first balanced JSON array of tool calls in reply and
// returns it together with the surrounding prose. A reply without such an
// array returns no calls and no error. When no array is present, a single
// top-level tool-call object is accepted.
func ParseCalls(reply string) ([]Call, string, error) {
	start, end, ok := findBlock(reply, '[', ']', looksLikeCallArray)
	if !ok {
		start, end, ok = findBlock(reply, '{', '}', looksLikeCallObject)
	}
	if !ok {
		return nil, strings.TrimSpace(reply), nil
	}

	prose := strings.TrimSpace(stripFence(reply[:start]) + " " + stripFence(reply[end:]))
	var raw any
	if err := json.Unmarshal(jsonc.ToJSON([]byte(reply[start:end])), &raw); err != nil {
		return nil, prose, ErrMalformed
	}

	var elems []any
	switch v := raw.(type) {
	case []any:
		elems = v
	case map[string]any:
		elems = []any{v}
	}

	calls := make([]Call, 0, len(elems))
	for _, e := range elems {
		obj, isObj := e.(map[string]any)
		if !isObj {
			continue
		}
		if c, ok := toCall(obj); ok {
			calls = append(calls, c)
		}
	}
	if len(calls) == 0 && len(elems) > 0 {
		return nil, prose, ErrMalformed
	}
	return calls, prose, nil
}

func toCall(obj map[string]any) (Call, bool) {
	var c Call
	for _, k := range nameKeys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			c.Name = strings.TrimSpace(s)
			break
		}
		// {"function": {"name": ..., "arguments": ...}}
		if nested, ok := obj[k].(map[string]any); ok {
			return toCall(nested)
		}
	}
	if c.Name == "" {
		return Call{}, false
	}
	for _, k := range argKeys {
		switch v := obj[k].(type) {
		case map[string]any:
			c.Args = v
		case string:
			// Function-calling APIs encode arguments as a JSON string.
			var m map[string]any
			if err := json.Unmarshal(jsonc.ToJSON([]byte(v)), &m); err == nil {
				c.Args = m
			}
		}
		if c.Args != nil {
			break
		}
	}
	if c.Args == nil {
		// Flat form: {"tool": "ADD_EVENT", "title": ...}
		c.Args = make(map[string]any, len(obj))
		for k, v := range obj {
			if !isNameKey(k) {
				c.Args[k] = v
			}
		}
	}
	return c, true
}

func isNameKey(k string) bool {
	for _, n := range nameKeys {
		if n == k {
			return true
		}
	}
	return false
}

// findBlock returns the bounds of the first balanced open/close block for
// which accept returns true. Brackets inside JSON strings are ignored.
func findBlock(s string, open, close byte, accept func(string) bool) (int, int, bool) {
	for from := 0; from < len(s); {
		i := strings.IndexByte(s[from:], open)
		if i < 0 {
			return 0, 0, false
		}
		start := from + i
		if end, ok := matchBracket(s, start, open, close); ok && accept(s[start:end]) {
			return start, end, true
		}
		from = start + 1
	}
	return 0, 0, false
}

// matchBracket returns the index just past the bracket closing s[start].
func matchBracket(s string, start int, open, close byte) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

func looksLikeCallArray(block string) bool {
	inner := strings.TrimSpace(block[1 : len(block)-1])
	return inner == "" || strings.HasPrefix(inner, "{")
}

func looksLikeCallObject(block string) bool {
	for _, k := range nameKeys {
		if strings.Contains(block, `"`+k+`"`) {
			return true
		}
	}
	return false
}

// stripFence removes Markdown code fence markers left around a block.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```json")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimPrefix(s, "```")
	return strings.TrimSpace(s)
}
