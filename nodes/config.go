// Package nodes holds helpers shared by the built-in node handlers.
package nodes

import (
	"strconv"
	"strings"

	"github.com/Tsinling0525/canvasflow/model"
	"github.com/Tsinling0525/canvasflow/templating"
)

// String reads a config value as text. Missing or nil values yield "".
func String(cfg map[string]any, key string) string {
	v, ok := cfg[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return templating.Stringify(v)
}

// Number reads a config value as a float. Numeric strings are accepted.
func Number(cfg map[string]any, key string) (float64, bool) {
	switch v := cfg[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// MergeDefaults returns cfg layered over defaults. Neither map is modified.
func MergeDefaults(defaults, cfg map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(cfg))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range cfg {
		out[k] = v
	}
	return out
}

// ResolveFields resolves {{token}} references in the named fields of cfg.
// cfg is modified in place; callers pass a copy.
func ResolveFields(cfg map[string]any, fields []string, input any, previous map[model.ID]any) {
	for _, f := range fields {
		v, ok := cfg[f]
		if !ok {
			continue
		}
		cfg[f] = templating.ResolveValue(v, input, previous)
	}
}
