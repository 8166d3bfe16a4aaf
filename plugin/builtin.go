package plugin

import "github.com/Tsinling0525/canvasflow/model"

// DefaultRegistry returns a registry holding every built-in node type.
func DefaultRegistry() *Registry {
	return NewRegistry(Builtins()...)
}

func Builtins() []Definition {
	return []Definition{
		{
			Type: model.TypeManualTrigger, Category: model.CategoryTrigger, Label: "Manual Trigger",
			DefaultConfig: map[string]any{},
		},
		{
			Type: model.TypeWebhookTrigger, Category: model.CategoryTrigger, Label: "Webhook",
			ConfigFields: []ConfigField{
				{Name: "path", Label: "Path", Kind: FieldText},
				{Name: "method", Label: "Method", Kind: FieldSelect, Options: []string{"GET", "POST"}},
			},
			DefaultConfig: map[string]any{"path": "/webhook", "method": "POST"},
		},
		{
			Type: model.TypeScheduleTrigger, Category: model.CategoryTrigger, Label: "Schedule",
			ConfigFields: []ConfigField{
				{Name: "cron", Label: "Cron expression", Kind: FieldText},
			},
			DefaultConfig: map[string]any{"cron": "0 * * * *"},
		},
		{
			Type: model.TypeAIChat, Category: model.CategoryAI, Label: "AI Chat",
			ConfigFields: []ConfigField{
				{Name: "provider", Label: "Provider", Kind: FieldSelect, Options: []string{"openai", "ollama"}},
				{Name: "model", Label: "Model", Kind: FieldText},
				{Name: "systemPrompt", Label: "System prompt", Kind: FieldTextarea, Templated: true},
				{Name: "prompt", Label: "Prompt", Kind: FieldTextarea, Templated: true},
				{Name: "temperature", Label: "Temperature", Kind: FieldNumber},
				{Name: "maxTokens", Label: "Max tokens", Kind: FieldNumber},
			},
			DefaultConfig: map[string]any{"prompt": "{{input}}", "temperature": 0.7, "maxTokens": float64(512)},
		},
		{
			Type: model.TypeAISummarize, Category: model.CategoryAI, Label: "AI Summarize",
			ConfigFields: []ConfigField{
				{Name: "provider", Label: "Provider", Kind: FieldSelect, Options: []string{"openai", "ollama"}},
				{Name: "model", Label: "Model", Kind: FieldText},
				{Name: "text", Label: "Text", Kind: FieldTextarea, Templated: true},
				{Name: "maxWords", Label: "Max words", Kind: FieldNumber},
			},
			DefaultConfig: map[string]any{"text": "{{input}}", "maxWords": float64(100)},
		},
		{
			Type: model.TypeHTTPRequest, Category: model.CategoryAction, Label: "HTTP Request",
			ConfigFields: []ConfigField{
				{Name: "url", Label: "URL", Kind: FieldText, Templated: true},
				{Name: "method", Label: "Method", Kind: FieldSelect, Options: []string{"GET", "POST", "PUT", "PATCH", "DELETE"}},
				{Name: "headers", Label: "Headers", Kind: FieldJSON, Templated: true},
				{Name: "body", Label: "Body", Kind: FieldTextarea, Templated: true},
			},
			DefaultConfig: map[string]any{"method": "GET", "headers": "{}", "body": ""},
		},
		{
			Type: model.TypeDataTransform, Category: model.CategoryAction, Label: "Transform Data",
			ConfigFields: []ConfigField{
				{Name: "code", Label: "Code", Kind: FieldCode},
			},
			DefaultConfig: map[string]any{"code": "return input;"},
		},
		{
			Type: model.TypeSendEmail, Category: model.CategoryAction, Label: "Send Email",
			ConfigFields: []ConfigField{
				{Name: "to", Label: "To", Kind: FieldText, Templated: true},
				{Name: "subject", Label: "Subject", Kind: FieldText, Templated: true},
				{Name: "body", Label: "Body", Kind: FieldTextarea, Templated: true},
			},
			DefaultConfig: map[string]any{"to": "", "subject": "", "body": ""},
		},
		{
			Type: model.TypeIfElse, Category: model.CategoryLogic, Label: "If / Else", Branching: true,
			ConfigFields: []ConfigField{
				{Name: "operator", Label: "Operator", Kind: FieldSelect, Options: []string{"javascript"}},
				{Name: "condition", Label: "Condition", Kind: FieldCode},
			},
			DefaultConfig: map[string]any{"operator": "javascript", "condition": "true"},
		},
		{
			Type: model.TypeSwitch, Category: model.CategoryLogic, Label: "Switch", Branching: true,
			ConfigFields: []ConfigField{
				{Name: "property", Label: "Property path", Kind: FieldText},
				{Name: "cases", Label: "Cases (one per line)", Kind: FieldTextarea},
			},
			DefaultConfig: map[string]any{"property": "input", "cases": ""},
		},
		{
			Type: model.TypeDelay, Category: model.CategoryLogic, Label: "Delay",
			ConfigFields: []ConfigField{
				{Name: "duration", Label: "Duration", Kind: FieldNumber},
				{Name: "unit", Label: "Unit", Kind: FieldSelect, Options: []string{"milliseconds", "seconds"}},
			},
			DefaultConfig: map[string]any{"duration": float64(1), "unit": "seconds"},
		},
	}
}
