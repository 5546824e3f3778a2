// Package toolauth implements Tool Authorization: per-agent allow/deny
// policy with guardrails, hot-reloaded on file mtime advance.
package toolauth

// PolicyDecision is either "allow" or "deny".
type PolicyDecision string

const (
	PolicyAllow PolicyDecision = "allow"
	PolicyDeny  PolicyDecision = "deny"
)

// Guardrails are the numeric/enum caps enforced on every tool
// invocation by the caller (the Worker Scheduler / Agent Session
// Engine); the authorizer only attaches them, it does not enforce them.
type Guardrails struct {
	MaxOutputBytes        int64    `json:"maxOutputBytes"`
	ExecTimeoutSeconds     int      `json:"execTimeoutSeconds"`
	MaxProcesses           int      `json:"maxProcesses"`
	MaxToolCallsPerMinute  int      `json:"maxToolCallsPerMinute"`
	DeniedCommandPrefixes  []string `json:"deniedCommandPrefixes"`
	// AllowedWriteRoots/AllowedExecRoots both start empty (deny) and
	// must be populated explicitly by policy.
	AllowedWriteRoots []string `json:"allowedWriteRoots"`
	AllowedExecRoots  []string `json:"allowedExecRoots"`
	WebEnabled        bool     `json:"webEnabled"`
}

// DefaultGuardrails is the conservative baseline: no write/exec roots,
// web disabled, modest caps.
func DefaultGuardrails() Guardrails {
	return Guardrails{
		MaxOutputBytes:        1 << 20,
		ExecTimeoutSeconds:    30,
		MaxProcesses:          4,
		MaxToolCallsPerMinute: 30,
		DeniedCommandPrefixes: []string{"rm -rf /", "sudo"},
		AllowedWriteRoots:     nil,
		AllowedExecRoots:      nil,
		WebEnabled:            false,
	}
}

// Policy is an agent's AgentToolsPolicy.
type Policy struct {
	Version       int             `json:"version"`
	DefaultPolicy PolicyDecision  `json:"defaultPolicy"`
	Tools         map[string]bool `json:"tools"`
	Guardrails    Guardrails      `json:"guardrails"`
}

// Decision is the result of an authorize() call.
type Decision struct {
	Allowed    bool
	Reason     string
	Guardrails Guardrails
}

const policySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "defaultPolicy"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "defaultPolicy": {"enum": ["allow", "deny"]},
    "tools": {"type": "object", "additionalProperties": {"type": "boolean"}},
    "guardrails": {"type": "object"}
  }
}`
