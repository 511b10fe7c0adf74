package extract

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/capitalize-ai/event-assistant/internal/model"
)

const (
	idSchema   = `{"type": ["integer", "string"]}`
	textSchema = `{"type": "string"}`
)

// toolSchemas constrains the arguments of each tool before coercion.
var toolSchemas = map[model.ToolName]string{
	model.ToolAddEvent: `{
		"type": "object",
		"required": ["title"],
		"properties": {
			"title": ` + textSchema + `,
			"description": ` + textSchema + `,
			"start_time": ` + textSchema + `,
			"end_time": ` + textSchema + `,
			"place": ` + textSchema + `,
			"event_type": ` + textSchema + `,
			"outdoor": {"type": "boolean"}
		}
	}`,
	model.ToolUpdateEvent: `{
		"type": "object",
		"anyOf": [{"required": ["event_id"]}, {"required": ["original_title"]}],
		"properties": {
			"event_id": ` + idSchema + `,
			"original_title": ` + textSchema + `,
			"title": ` + textSchema + `,
			"description": ` + textSchema + `,
			"start_time": ` + textSchema + `,
			"end_time": ` + textSchema + `,
			"place": ` + textSchema + `,
			"event_type": ` + textSchema + `
		}
	}`,
	model.ToolDeleteEvent: `{
		"type": "object",
		"anyOf": [{"required": ["event_id"]}, {"required": ["original_title"]}, {"required": ["title"]}],
		"properties": {
			"event_id": ` + idSchema + `,
			"original_title": ` + textSchema + `,
			"title": ` + textSchema + `
		}
	}`,
	model.ToolAddReminder: `{
		"type": "object",
		"anyOf": [{"required": ["event_id"]}, {"required": ["original_title"]}, {"required": ["title"]}],
		"properties": {
			"event_id": ` + idSchema + `,
			"original_title": ` + textSchema + `,
			"title": ` + textSchema + `,
			"remind_before_minutes": {"type": ["integer", "string"]},
			"note": ` + textSchema + `
		}
	}`,
	model.ToolOrderTicket: `{
		"type": "object",
		"properties": {
			"event_id": ` + idSchema + `,
			"event_title": ` + textSchema + `,
			"ticket_type_id": ` + idSchema + `,
			"ticket_type": ` + textSchema + `,
			"quantity": {"type": ["integer", "string"]},
			"name": ` + textSchema + `,
			"email": ` + textSchema + `,
			"phone": ` + textSchema + `
		}
	}`,
}

// ToolFirewall admits only known tools whose arguments satisfy the tool's
// JSON Schema.
type ToolFirewall struct {
	schemas map[model.ToolName]*jsonschema.Schema
}

// NewToolFirewall compiles the built-in tool schemas.
func NewToolFirewall() (*ToolFirewall, error) {
	f := &ToolFirewall{schemas: make(map[model.ToolName]*jsonschema.Schema, len(toolSchemas))}
	for tool, schema := range toolSchemas {
		if err := f.Allow(tool, schema); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Allow adds a tool with its argument schema.
func (f *ToolFirewall) Allow(tool model.ToolName, schema string) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://event-assistant.local/tools/%s.schema.json", strings.ToLower(string(tool)))
	if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
		return fmt.Errorf("tool schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("tool schema compile failed: %w", err)
	}
	f.schemas[tool] = compiled
	return nil
}

// Check resolves the call's tool name and validates its arguments.
func (f *ToolFirewall) Check(c Call) (model.ToolName, error) {
	tool := model.ParseToolName(c.Name)
	schema, ok := f.schemas[tool]
	if !ok {
		return model.ToolUnknown, fmt.Errorf("tool %q not in allowlist", c.Name)
	}
	args := c.Args
	if args == nil {
		args = map[string]any{}
	}
	if err := schema.Validate(args); err != nil {
		return tool, fmt.Errorf("tool %s: schema validation failed: %w", tool, err)
	}
	return tool, nil
}
