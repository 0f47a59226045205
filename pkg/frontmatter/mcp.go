package frontmatter

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agpm-project/agpm/pkg/core"
)

// MCPServerPayload is the rendered body of an mcp-server resource: a single
// JSON object describing how to launch (or connect to) the server, merged
// by alias into a tool's settings file (spec.md §4.H "Merge-target tools").
// Adapted from the shape of the teacher's MCPServerConfig
// (pkg/parser/mcp.go), trimmed of GitHub-Actions-specific fields (builtin
// tool name, safe-output wiring) that have no AGPM analogue.
type MCPServerPayload struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"` // for remote/streamable-http servers
	Headers map[string]string `json:"headers,omitempty"`
}

// mcpServerSchema is a minimal JSON Schema requiring either a local command
// or a remote url, matching spec.md §3's "opaque" resource bodies: AGPM
// validates structure, never resource-specific business rules.
const mcpServerSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "oneOf": [
    {"required": ["command"]},
    {"required": ["url"]}
  ],
  "properties": {
    "command": {"type": "string"},
    "args": {"type": "array", "items": {"type": "string"}},
    "env": {"type": "object", "additionalProperties": {"type": "string"}},
    "url": {"type": "string"},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}}
  }
}`

var compiledMCPSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("mcp-server.schema.json", bytes.NewReader([]byte(mcpServerSchema))); err != nil {
		panic("frontmatter: invalid embedded mcp-server schema: " + err.Error())
	}
	schema, err := c.Compile("mcp-server.schema.json")
	if err != nil {
		panic("frontmatter: compiling embedded mcp-server schema: " + err.Error())
	}
	compiledMCPSchema = schema
}

// ParseMCPServerPayload validates body as an mcp-server resource payload
// and decodes it into an MCPServerPayload.
func ParseMCPServerPayload(body []byte) (*MCPServerPayload, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, core.NewInstallError(core.CodeMergeTargetBad, "mcp-server payload is not valid JSON: %v", err)
	}
	if err := compiledMCPSchema.Validate(raw); err != nil {
		return nil, core.NewInstallError(core.CodeMergeTargetBad, "mcp-server payload failed schema validation: %v", err)
	}
	var payload MCPServerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, core.NewInstallError(core.CodeMergeTargetBad, "decoding mcp-server payload: %v", err)
	}
	return &payload, nil
}
