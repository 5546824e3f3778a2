// Package branch implements the Branch Runtime: an ephemeral
// multi-step reasoning context whose only trace in the channel log is
// its spawn and conclusion envelopes.
package branch

import (
	"context"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/slopoverlord/slopoverlord/internal/envelope"
	"github.com/slopoverlord/slopoverlord/internal/provider"
)

// Artifact is a byte blob a branch run raises; it receives a stable
// content-addressed id so the conclusion can carry only a reference.
type Artifact struct {
	Name    string
	Content []byte
}

// Runtime runs ephemeral branch reasoning against a model provider.
type Runtime struct {
	provider provider.Provider
}

// New creates a Runtime bound to the given provider. The binding is
// fixed for the Runtime's lifetime; a config hot-reload does not
// change it.
func New(p provider.Provider) *Runtime {
	return &Runtime{provider: p}
}

// Run invokes the provider with prompt and the channel's compacted
// history, returning the terminal BranchConclusionPayload. Branches
// never append anything to the channel log themselves; the caller is
// responsible for emitting branch.spawned/branch.conclusion envelopes.
func (r *Runtime) Run(ctx context.Context, prompt string, history []string, artifacts []Artifact) (envelope.BranchConclusionPayload, error) {
	summary, err := r.provider.Respond(ctx, prompt, history)
	if err != nil {
		return envelope.BranchConclusionPayload{}, fmt.Errorf("branch provider respond: %w", err)
	}

	refs := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		refs = append(refs, ContentAddress(a.Content))
	}

	return envelope.BranchConclusionPayload{
		Summary:      summary,
		ArtifactRefs: refs,
		MemoryRefs:   nil,
		PromptTokens: estimateTokens(prompt) + estimateTokens(joinHistory(history)),
		CompletionTokens: estimateTokens(summary),
	}, nil
}

// ContentAddress returns a stable content-addressed id for an
// artifact's bytes, using blake2b (repurposed here from the teacher's
// password-hashing use of a neighboring crypto primitive; content
// addressing wants a fast non-keyed hash, so blake2b-256 rather than
// bcrypt fits the job).
func ContentAddress(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// estimateTokens is a rough, deterministic proxy for token count (the
// real tokenizer lives inside the out-of-scope provider adapter).
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

func joinHistory(history []string) string {
	total := 0
	for _, h := range history {
		total += len(h)
	}
	out := make([]byte, 0, total)
	for _, h := range history {
		out = append(out, h...)
	}
	return string(out)
}
