// Package n8n imports workflows exported from n8n into the canvas model.
package n8n

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Tsinling0525/canvasflow/model"
	"github.com/Tsinling0525/canvasflow/nodes"
	"github.com/Tsinling0525/canvasflow/nodes/logic"
)

// N8nWorkflow represents the n8n workflow format
type N8nWorkflow struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Active      bool                      `json:"active"`
	Nodes       []N8nNode                 `json:"nodes"`
	Connections map[string]N8nConnections `json:"connections"`
	Settings    map[string]interface{}    `json:"settings"`
}

// N8nNode represents an n8n node
type N8nNode struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	TypeVersion float64                `json:"typeVersion"`
	Position    []float64              `json:"position"`
	Parameters  map[string]interface{} `json:"parameters"`
	Disabled    bool                   `json:"disabled,omitempty"`
}

// N8nConnections holds the outgoing connections of one node, grouped by
// output index.
type N8nConnections struct {
	Main [][]N8nConnection `json:"main"`
}

type N8nConnection struct {
	Node  string `json:"node"`
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// N8nRequest wraps a workflow with optional per-node input data.
type N8nRequest struct {
	Workflow N8nWorkflow            `json:"workflow"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// typeMap translates n8n node types. Unlisted types are kept verbatim and
// fail at run time as unknown node types.
var typeMap = map[string]model.NodeType{
	"n8n-nodes-base.manualTrigger":   model.TypeManualTrigger,
	"n8n-nodes-base.start":           model.TypeManualTrigger,
	"n8n-nodes-base.webhook":         model.TypeWebhookTrigger,
	"n8n-nodes-base.scheduleTrigger": model.TypeScheduleTrigger,
	"n8n-nodes-base.cron":            model.TypeScheduleTrigger,
	"n8n-nodes-base.httpRequest":     model.TypeHTTPRequest,
	"n8n-nodes-base.code":            model.TypeDataTransform,
	"n8n-nodes-base.function":        model.TypeDataTransform,
	"n8n-nodes-base.emailSend":       model.TypeSendEmail,
	"n8n-nodes-base.if":              model.TypeIfElse,
	"n8n-nodes-base.switch":          model.TypeSwitch,
	"n8n-nodes-base.wait":            model.TypeDelay,
	"n8n-nodes-base.openAi":          model.TypeAIChat,

	"@n8n/n8n-nodes-langchain.openAi":             model.TypeAIChat,
	"@n8n/n8n-nodes-langchain.agent":              model.TypeAIChat,
	"@n8n/n8n-nodes-langchain.chainLlm":           model.TypeAIChat,
	"@n8n/n8n-nodes-langchain.chainSummarization": model.TypeAISummarize,
}

// MapType returns the canvas node type for an n8n type.
func MapType(t string) model.NodeType {
	if mt, ok := typeMap[t]; ok {
		return mt
	}
	return model.NodeType(t)
}

// Parse decodes either a bare n8n workflow or an N8nRequest envelope.
func Parse(data []byte) (model.Workflow, map[model.ID]any, error) {
	var probe struct {
		Workflow json.RawMessage `json:"workflow"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return model.Workflow{}, nil, fmt.Errorf("decode n8n workflow: %w", err)
	}
	if len(probe.Workflow) > 0 {
		var req N8nRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return model.Workflow{}, nil, fmt.Errorf("decode n8n request: %w", err)
		}
		return ToCanvas(req)
	}
	var wf N8nWorkflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return model.Workflow{}, nil, fmt.Errorf("decode n8n workflow: %w", err)
	}
	out, err := ParseWorkflow(wf)
	return out, nil, err
}

// ParseWorkflow converts an n8n workflow. Connections are keyed by node name
// in n8n and are resolved to node ids here; branch outputs become edge tags.
// Disabled nodes are dropped together with their connections.
func ParseWorkflow(n8nWF N8nWorkflow) (model.Workflow, error) {
	wf := model.Workflow{
		ID:   model.ID(n8nWF.ID),
		Name: n8nWF.Name,
	}
	ids := make(map[string]model.ID, len(n8nWF.Nodes))
	kept := make([]N8nNode, 0, len(n8nWF.Nodes))
	keptIDs := make([]model.ID, 0, len(n8nWF.Nodes))
	for _, n := range n8nWF.Nodes {
		if n.Disabled {
			continue
		}
		id := model.ID(n.ID)
		if id == "" {
			id = model.ID(n.Name)
		}
		if id == "" {
			return model.Workflow{}, fmt.Errorf("n8n node without id or name")
		}
		if _, dup := ids[n.Name]; dup && n.Name != "" {
			return model.Workflow{}, fmt.Errorf("duplicate n8n node name %q", n.Name)
		}
		ids[n.Name] = id
		kept = append(kept, n)
		keptIDs = append(keptIDs, id)
	}

	for i, n := range kept {
		t := MapType(n.Type)
		wf.Nodes = append(wf.Nodes, model.Node{
			ID:     keptIDs[i],
			Type:   t,
			Name:   n.Name,
			Config: convertParameters(t, n.Parameters, ids),
		})
	}

	for i, n := range kept {
		conns, ok := n8nWF.Connections[n.Name]
		if !ok {
			continue
		}
		src := keptIDs[i]
		t := MapType(n.Type)
		for out, group := range conns.Main {
			tag := branchTag(t, out, n.Parameters)
			for _, c := range group {
				dst, ok := ids[c.Node]
				if !ok {
					if disabled(n8nWF.Nodes, c.Node) {
						continue
					}
					return model.Workflow{}, fmt.Errorf("connection from %q to unknown node %q", n.Name, c.Node)
				}
				wf.Edges = append(wf.Edges, model.Edge{
					ID:        fmt.Sprintf("%s-%d-%s", src, out, dst),
					Source:    src,
					Target:    dst,
					BranchTag: tag,
				})
			}
		}
	}
	return wf, nil
}

func disabled(all []N8nNode, name string) bool {
	for _, n := range all {
		if n.Name == name {
			return n.Disabled
		}
	}
	return false
}

// branchTag maps an n8n output index to the tag the canvas node emits.
func branchTag(t model.NodeType, out int, params map[string]interface{}) string {
	switch t {
	case model.TypeIfElse:
		if out == 0 {
			return model.BranchTrue
		}
		return model.BranchFalse
	case model.TypeSwitch:
		if fb, ok := nodes.Number(params, "fallbackOutput"); ok && int(fb) == out {
			return model.BranchDefault
		}
		for i, r := range switchRules(params) {
			if r.output == out {
				return logic.CaseTag(i)
			}
		}
		return model.BranchDefault
	}
	return ""
}

// ParseInputData converts n8n input data keyed by node name or id. A single
// item becomes the node input as is; several items are passed as a list.
func ParseInputData(data map[string]interface{}, ids map[string]model.ID) map[model.ID]any {
	result := make(map[model.ID]any, len(data))
	for key, v := range data {
		id, ok := ids[key]
		if !ok {
			id = model.ID(key)
		}
		if items, ok := v.([]interface{}); ok && len(items) == 1 {
			v = items[0]
		}
		result[id] = v
	}
	return result
}

// ToCanvas converts a full n8n request.
func ToCanvas(req N8nRequest) (model.Workflow, map[model.ID]any, error) {
	wf, err := ParseWorkflow(req.Workflow)
	if err != nil {
		return model.Workflow{}, nil, err
	}
	ids := make(map[string]model.ID, len(wf.Nodes))
	for _, n := range wf.Nodes {
		ids[n.Name] = n.ID
	}
	return wf, ParseInputData(req.Data, ids), nil
}

var (
	nodeRefRE  = regexp.MustCompile(`\$node\[["']([^"'\]]+)["']\]\.json`)
	nodeCallRE = regexp.MustCompile(`\$\(["']([^"')]+)["']\)\.(?:item|first\(\)|last\(\))\.json`)
	jsonKeyRE  = regexp.MustCompile(`\$json\[["']([^"'\]]+)["']\]`)
)

// Expression rewrites an n8n expression body to canvas paths: $json becomes
// input and references to other nodes become their ids.
func Expression(expr string, ids map[string]model.ID) string {
	ref := func(re *regexp.Regexp) func(string) string {
		return func(m string) string {
			name := re.FindStringSubmatch(m)[1]
			if id, ok := ids[name]; ok {
				return string(id)
			}
			return name
		}
	}
	expr = nodeRefRE.ReplaceAllStringFunc(expr, ref(nodeRefRE))
	expr = nodeCallRE.ReplaceAllStringFunc(expr, ref(nodeCallRE))
	expr = jsonKeyRE.ReplaceAllString(expr, "$$json.$1")
	return strings.ReplaceAll(expr, "$json", "input")
}

// template turns an n8n parameter value into a config value. Strings of the
// form "={{ ... }}" keep their tokens with rewritten paths.
func template(v interface{}, ids map[string]model.ID) interface{} {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "=") {
		return v
	}
	return Expression(strings.TrimPrefix(s, "="), ids)
}

// scriptValue renders a parameter value as a JavaScript operand for the
// sandbox, where node outputs live under previousNodes.
func scriptValue(v interface{}, ids map[string]model.ID) string {
	if s, ok := v.(string); ok && strings.HasPrefix(s, "=") {
		body := strings.TrimSpace(strings.TrimPrefix(s, "="))
		if strings.HasPrefix(body, "{{") && strings.HasSuffix(body, "}}") && strings.Count(body, "{{") == 1 {
			expr := strings.TrimSpace(body[2 : len(body)-2])
			scoped := make(map[string]model.ID, len(ids))
			for name, id := range ids {
				scoped[name] = model.ID("previousNodes[" + strconv.Quote(string(id)) + "]")
			}
			return "(" + Expression(expr, scoped) + ")"
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "undefined"
	}
	return string(b)
}

func convertParameters(t model.NodeType, params map[string]interface{}, ids map[string]model.ID) map[string]any {
	cfg := make(map[string]any, len(params))
	for k, v := range params {
		cfg[k] = template(v, ids)
	}
	str := func(keys ...string) (interface{}, bool) {
		for _, k := range keys {
			if v, ok := cfg[k]; ok && v != nil {
				return v, true
			}
		}
		return nil, false
	}
	set := func(dst string, keys ...string) {
		if v, ok := str(keys...); ok {
			cfg[dst] = v
		}
	}

	switch t {
	case model.TypeWebhookTrigger:
		set("method", "httpMethod")
	case model.TypeScheduleTrigger:
		set("cron", "cronExpression")
	case model.TypeHTTPRequest:
		set("method", "requestMethod", "method")
		set("body", "jsonBody", "body")
		set("headers", "jsonHeaders", "headerParametersJson")
	case model.TypeDataTransform:
		set("code", "jsCode", "functionCode")
		if code, ok := cfg["code"].(string); ok {
			cfg["code"] = Expression(code, nil)
		}
	case model.TypeSendEmail:
		set("to", "toEmail")
		set("body", "text", "html")
	case model.TypeIfElse:
		cfg["operator"] = "javascript"
		cfg["condition"] = ifCondition(params, ids)
	case model.TypeSwitch:
		if v, ok := params["value1"]; ok {
			if s, ok := template(v, ids).(string); ok {
				cfg["property"] = s
			}
		}
		rules := switchRules(params)
		labels := make([]string, len(rules))
		for i, r := range rules {
			labels[i] = r.value
		}
		cfg["cases"] = strings.Join(labels, "\n")
	case model.TypeDelay:
		amount, ok := nodes.Number(params, "amount")
		if !ok {
			break
		}
		switch nodes.String(params, "unit") {
		case "minutes":
			amount *= 60
		case "hours":
			amount *= 3600
		case "days":
			amount *= 86400
		}
		cfg["duration"] = amount
		cfg["unit"] = "seconds"
	case model.TypeAIChat:
		set("prompt", "text", "prompt")
		if m, ok := cfg["model"].(map[string]interface{}); ok {
			cfg["model"] = m["value"]
		}
	case model.TypeAISummarize:
		set("text", "text")
	}
	return cfg
}

// ifOperators renders n8n v1 IF comparisons as JavaScript.
var ifOperators = map[string]string{
	"equal":        "%s === %s",
	"notEqual":     "%s !== %s",
	"larger":       "%s > %s",
	"largerEqual":  "%s >= %s",
	"smaller":      "%s < %s",
	"smallerEqual": "%s <= %s",
	"contains":     "String(%s).includes(%s)",
	"notContains":  "!String(%s).includes(%s)",
	"startsWith":   "String(%s).startsWith(%s)",
	"endsWith":     "String(%s).endsWith(%s)",
	"regex":        "new RegExp(%[2]s).test(String(%[1]s))",
}

// ifCondition builds a single JavaScript expression from the n8n v1 IF
// conditions. Without conditions it is "true".
func ifCondition(params map[string]interface{}, ids map[string]model.ID) string {
	conds, _ := params["conditions"].(map[string]interface{})
	var parts []string
	for _, kind := range []string{"boolean", "number", "string", "dateTime"} {
		list, _ := conds[kind].([]interface{})
		for _, raw := range list {
			c, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			a := scriptValue(c["value1"], ids)
			b := scriptValue(c["value2"], ids)
			op := nodes.String(c, "operation")
			switch op {
			case "isEmpty":
				parts = append(parts, fmt.Sprintf("(%s === undefined || %s === null || %s === '')", a, a, a))
			case "isNotEmpty":
				parts = append(parts, fmt.Sprintf("!(%s === undefined || %s === null || %s === '')", a, a, a))
			case "":
				parts = append(parts, fmt.Sprintf("%s === %s", a, b))
			default:
				format, ok := ifOperators[op]
				if !ok {
					format = ifOperators["equal"]
				}
				parts = append(parts, fmt.Sprintf(format, a, b))
			}
		}
	}
	if len(parts) == 0 {
		return "true"
	}
	join := " && "
	if nodes.String(params, "combineOperation") == "any" {
		join = " || "
	}
	return strings.Join(parts, join)
}

type switchRule struct {
	value  string
	output int
}

// switchRules reads n8n v1 switch rules ordered by output index.
func switchRules(params map[string]interface{}) []switchRule {
	wrapper, _ := params["rules"].(map[string]interface{})
	list, _ := wrapper["rules"].([]interface{})
	var out []switchRule
	for i, raw := range list {
		r, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		output := i
		if o, ok := nodes.Number(r, "output"); ok {
			output = int(o)
		}
		out = append(out, switchRule{value: nodes.String(r, "value2"), output: output})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].output < out[j].output })
	return out
}
