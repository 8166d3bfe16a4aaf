package logic

import (
	"context"
	"strconv"
	"strings"

	"github.com/Tsinling0525/canvasflow/model"
	"github.com/Tsinling0525/canvasflow/nodes"
	"github.com/Tsinling0525/canvasflow/plugin"
	"github.com/Tsinling0525/canvasflow/templating"
)

// Switch compares a property value against a list of case labels and emits
// "case_<index>" for the first exact match, "default" otherwise.
// Config: property (path), cases (newline separated labels)
type Switch struct{}

func (n *Switch) Execute(ctx context.Context, ec plugin.ExecutionContext) (any, error) {
	value := PropertyValue(nodes.String(ec.Config, "property"), ec.Input, ec.PreviousOutputs)
	branch := model.BranchDefault
	for i, c := range ParseCases(nodes.String(ec.Config, "cases")) {
		if c == value {
			branch = CaseTag(i)
			break
		}
	}
	return map[string]any{
		model.BranchField: branch,
		"value":           value,
		"input":           ec.Input,
	}, nil
}

// CaseTag is the branch tag for the case at index i.
func CaseTag(i int) string { return "case_" + strconv.Itoa(i) }

// ParseCases splits newline separated labels, trimming blanks and dropping
// duplicates while keeping first-seen order.
func ParseCases(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	return out
}

// PropertyValue resolves path to a scalar string. The path is rooted at the
// input unless its first segment is "input" or a node id that already ran.
// Unresolvable paths and non-scalar values yield "".
func PropertyValue(path string, input any, previous map[model.ID]any) string {
	path = strings.TrimSpace(path)
	path = strings.TrimSuffix(strings.TrimPrefix(path, "{{"), "}}")
	segs := templating.Segments(path)

	var (
		v  any
		ok bool
	)
	switch {
	case len(segs) == 0:
		v, ok = templating.Walk(input, nil)
	case segs[0] == templating.InputRoot:
		v, ok = templating.Walk(input, segs[1:])
	default:
		if out, found := previous[model.ID(segs[0])]; found {
			v, ok = templating.Walk(out, segs[1:])
		} else {
			v, ok = templating.Walk(input, segs)
		}
	}
	if !ok || !templating.IsScalar(v) {
		return ""
	}
	return templating.Stringify(v)
}

var _ plugin.NodeHandler = (*Switch)(nil)
