// Package templating resolves {{token}} references in node configuration
// against the current node input and the outputs of nodes that already ran.
//
// A token path is either rooted at "input" or at a node id:
//
//	{{input}}  {{input.user.name}}  {{fetch.data.items[0].id}}
//
// Tokens that cannot be resolved are left in place so a partially wired
// workflow shows exactly which reference is missing.
package templating

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Tsinling0525/canvasflow/model"
)

// InputRoot is the path root that refers to the node input.
const InputRoot = "input"

var (
	tokenRE   = regexp.MustCompile(`\{\{([^{}]*)\}\}`)
	bracketRE = regexp.MustCompile(`\[([^\[\]]*)\]`)
)

// Resolve substitutes every resolvable token in text.
// Non-string text is returned as its string form.
func Resolve(text any, input any, previous map[model.ID]any) string {
	s, ok := text.(string)
	if !ok {
		return Stringify(text)
	}
	if !strings.Contains(s, "{{") {
		return s
	}
	return tokenRE.ReplaceAllStringFunc(s, func(tok string) string {
		path := strings.TrimSpace(tok[2 : len(tok)-2])
		if path == "" {
			return tok
		}
		v, ok := Lookup(path, input, previous)
		if !ok {
			return tok
		}
		return Stringify(v)
	})
}

// ResolveValue resolves tokens in strings nested anywhere inside v.
// Maps and slices are copied; other values are returned as is.
func ResolveValue(v any, input any, previous map[model.ID]any) any {
	switch t := v.(type) {
	case string:
		return Resolve(t, input, previous)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = ResolveValue(vv, input, previous)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = ResolveValue(vv, input, previous)
		}
		return out
	default:
		return v
	}
}

// Segments normalizes bracket access to dots and splits the path.
// Empty segments are dropped.
func Segments(path string) []string {
	path = bracketRE.ReplaceAllString(path, ".$1")
	parts := strings.Split(path, ".")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Lookup evaluates a token path. The first segment selects the root:
// "input" or a node id present in previous.
func Lookup(path string, input any, previous map[model.ID]any) (any, bool) {
	segs := Segments(path)
	if len(segs) == 0 {
		return nil, false
	}
	var root any
	if segs[0] == InputRoot {
		root = input
	} else {
		out, ok := previous[model.ID(segs[0])]
		if !ok {
			return nil, false
		}
		root = out
	}
	return Walk(root, segs[1:])
}

// Walk descends into v one segment at a time.
func Walk(v any, segs []string) (any, bool) {
	cur := normalize(v)
	if cur == nil {
		return nil, false
	}
	for _, seg := range segs {
		switch t := cur.(type) {
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(t) {
				return nil, false
			}
			cur = normalize(t[idx])
		case map[string]any:
			next, ok := t[seg]
			if !ok {
				return nil, false
			}
			cur = normalize(next)
		default:
			// Includes a null met midway: it is a valid leaf but has no children.
			return nil, false
		}
	}
	return cur, true
}

// Stringify converts a value for interpolation: scalars as plain text,
// objects and arrays as compact JSON, nil as "null".
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// IsScalar reports whether v interpolates as plain text rather than JSON.
func IsScalar(v any) bool {
	switch normalize(v).(type) {
	case map[string]any, []any:
		return false
	}
	return true
}

// normalize maps typed Go containers (structs, []map[string]any, ...) onto
// the generic JSON shapes Walk understands.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number, map[string]any, []any:
		return t
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
