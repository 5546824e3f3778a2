package toolauth

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/slopoverlord/slopoverlord/internal/apperr"
	"github.com/slopoverlord/slopoverlord/internal/metrics"
)

var policySchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("policy.json", mustUnmarshalSchema()); err != nil {
		panic(fmt.Sprintf("toolauth: add policy schema resource: %v", err))
	}
	s, err := c.Compile("policy.json")
	if err != nil {
		panic(fmt.Sprintf("toolauth: compile policy schema: %v", err))
	}
	return s
}

func mustUnmarshalSchema() any {
	var v any
	if err := json.Unmarshal([]byte(policySchemaJSON), &v); err != nil {
		panic(fmt.Sprintf("toolauth: unmarshal policy schema: %v", err))
	}
	return v
}

// cacheEntry is the (mtime, parsed) pair the authorizer caches per
// agent: stat-before-use, reload on mtime advance, no file watcher
// required.
type cacheEntry struct {
	mtime  time.Time
	policy Policy
}

// PathResolver maps an agentId to its policy file path, e.g.
// <workspaceRoot>/agents/<agentId>/tools/tools.json.
type PathResolver func(agentID string) string

// Authorizer is the Tool Authorization component.
type Authorizer struct {
	resolvePath PathResolver

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New creates an Authorizer that resolves each agent's policy path via
// resolvePath.
func New(resolvePath PathResolver) *Authorizer {
	return &Authorizer{
		resolvePath: resolvePath,
		cache:       make(map[string]cacheEntry),
	}
}

// Authorize decides whether agentID may invoke toolID. Unknown agents
// (no resolvable policy, ever) are denied by default.
func (a *Authorizer) Authorize(agentID, toolID string) (Decision, error) {
	policy, err := a.load(agentID)
	if err != nil {
		metrics.ToolAuthorizationDeniedTotal.WithLabelValues("policy_missing").Inc()
		return Decision{Allowed: false, Reason: "policy_missing"}, err
	}

	if allowed, overridden := policy.Tools[toolID]; overridden {
		if !allowed {
			metrics.ToolAuthorizationDeniedTotal.WithLabelValues("tool_denied_by_override").Inc()
			return Decision{Allowed: false, Reason: string(apperr.KindToolForbidden), Guardrails: policy.Guardrails}, nil
		}
		return Decision{Allowed: true, Guardrails: policy.Guardrails}, nil
	}

	allowed := policy.DefaultPolicy == PolicyAllow
	if !allowed {
		metrics.ToolAuthorizationDeniedTotal.WithLabelValues("default_policy_deny").Inc()
		return Decision{Allowed: false, Reason: string(apperr.KindToolForbidden), Guardrails: policy.Guardrails}, nil
	}
	return Decision{Allowed: allowed, Guardrails: policy.Guardrails}, nil
}

func (a *Authorizer) load(agentID string) (Policy, error) {
	path := a.resolvePath(agentID)

	info, statErr := os.Stat(path)

	a.mu.Lock()
	defer a.mu.Unlock()

	if statErr != nil {
		return Policy{}, apperr.Wrap(apperr.KindPolicyMissing, agentID, statErr)
	}

	if cached, ok := a.cache[agentID]; ok && !info.ModTime().After(cached.mtime) {
		return cached.policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, apperr.Wrap(apperr.KindPolicyMissing, agentID, err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Policy{}, apperr.Wrap(apperr.KindPolicyMissing, "malformed policy json", err)
	}
	if err := policySchema.Validate(doc); err != nil {
		return Policy{}, apperr.Wrap(apperr.KindPolicyMissing, "policy schema validation", err)
	}

	var policy Policy
	if err := json.Unmarshal(raw, &policy); err != nil {
		return Policy{}, apperr.Wrap(apperr.KindPolicyMissing, "unmarshal policy", err)
	}
	if policy.DefaultPolicy == "" {
		policy.DefaultPolicy = PolicyDeny
	}

	a.cache[agentID] = cacheEntry{mtime: info.ModTime(), policy: policy}
	return policy, nil
}

// CheckCommandPrefix returns apperr.KindDeniedCommandPrefix if command
// starts with any of g's denied prefixes.
func (g Guardrails) CheckCommandPrefix(command string) error {
	for _, prefix := range g.DeniedCommandPrefixes {
		if strings.HasPrefix(command, prefix) {
			return apperr.New(apperr.KindDeniedCommandPrefix, prefix)
		}
	}
	return nil
}
