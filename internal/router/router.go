// Package router implements the Route Decider: a pure function mapping
// an incoming message and a rolling channel feature vector to a
// RouteDecision.
package router

import (
	"regexp"
	"strings"

	"github.com/slopoverlord/slopoverlord/internal/envelope"
)

// RouteDecision is the Route Decider's output.
type RouteDecision = envelope.RouteDecidedPayload

const (
	ActionRespond     = "respond"
	ActionSpawnBranch = "spawn_branch"
	ActionSpawnWorker = "spawn_worker"
)

const (
	defaultTokenBudget = 1200
	shortMessageChars  = 160
)

// approvalCommandRE matches "pick up #N" or "pick up #<uuid>",
// case-insensitive and whitespace-tolerant.
var approvalCommandRE = regexp.MustCompile(`(?i)pick\s+up\s*#\s*(\S+)`)

// toolKeywords are heuristic signals that a message names an objective
// requiring tool access (shell exec, file writes, network fetch).
var toolKeywords = []string{
	"run ", "build ", "deploy ", "install ", "execute ", "fetch ",
	"fix ", "implement ", "refactor ", "write a ", "create a file",
	"commit ", "push ", "test suite", "migrate",
}

// reasoningKeywords are heuristic signals that a message needs
// multi-step reasoning/synthesis but not tool I/O.
var reasoningKeywords = []string{
	"compare ", "summarize ", "analyze ", "design ", "evaluate ",
	"plan ", "outline ", "brainstorm ", "explain why",
}

// Features is the rolling per-channel feature vector the dispatcher
// maintains and feeds to Decide.
type Features struct {
	PriorAction        string
	OpenWorkers        int
	ChannelUtilization float64
	KeywordHits        int
}

// ApprovalCommandMatch reports the index-or-id referenced by an
// approval command in content, if any. Shared with internal/visor so
// both the router and the extraction logic agree on what counts as an
// approval.
func ApprovalCommandMatch(content string) (ref string, ok bool) {
	m := approvalCommandRE.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Decide maps content and the rolling feature vector to a RouteDecision.
// Tie-breaks favor respond over spawn_branch, spawn_branch over
// spawn_worker.
func Decide(content string, f Features) RouteDecision {
	trimmed := strings.TrimSpace(content)
	lower := strings.ToLower(trimmed)

	if _, ok := ApprovalCommandMatch(trimmed); ok {
		return RouteDecision{
			Action:      ActionRespond,
			Reason:      "task_approved_command",
			Confidence:  1.0,
			TokenBudget: defaultTokenBudget,
		}
	}

	needsTools := containsAny(lower, toolKeywords)
	needsReasoning := containsAny(lower, reasoningKeywords)

	switch {
	case needsTools:
		return RouteDecision{
			Action:      ActionSpawnWorker,
			Reason:      "objective_requires_tools",
			Confidence:  confidenceFor(f, 0.75),
			TokenBudget: defaultTokenBudget * 2,
		}

	case needsReasoning && !needsTools:
		return RouteDecision{
			Action:      ActionSpawnBranch,
			Reason:      "multi_step_reasoning",
			Confidence:  confidenceFor(f, 0.65),
			TokenBudget: defaultTokenBudget,
		}

	case len(trimmed) <= shortMessageChars && f.OpenWorkers == 0:
		return RouteDecision{
			Action:      ActionRespond,
			Reason:      "short_conversational",
			Confidence:  confidenceFor(f, 0.8),
			TokenBudget: defaultTokenBudget,
		}

	default:
		// Longer, ambiguous message: prefer a branch over a worker per
		// the stated tie-break order.
		return RouteDecision{
			Action:      ActionSpawnBranch,
			Reason:      "ambiguous_long_message",
			Confidence:  confidenceFor(f, 0.5),
			TokenBudget: defaultTokenBudget,
		}
	}
}

func confidenceFor(f Features, base float64) float64 {
	c := base
	if f.ChannelUtilization > 0.85 {
		c -= 0.1
	}
	if f.KeywordHits > 0 {
		c += 0.05
	}
	if c > 1.0 {
		c = 1.0
	}
	if c < 0 {
		c = 0
	}
	return c
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Degraded is the fallback decision used when the Route Decider itself
// errors (it is specified as synchronous and pure, but callers should
// never propagate a panic/error as a dispatch failure).
func Degraded() RouteDecision {
	return RouteDecision{
		Action:      ActionRespond,
		Reason:      "router_degraded",
		Confidence:  0,
		TokenBudget: defaultTokenBudget,
	}
}
