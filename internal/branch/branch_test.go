package branch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopoverlord/slopoverlord/internal/branch"
	"github.com/slopoverlord/slopoverlord/internal/provider"
)

func TestRun_ReturnsConclusionWithArtifactRefs(t *testing.T) {
	rt := branch.New(provider.NullProvider{})
	concl, err := rt.Run(context.Background(), "summarize this", nil, []branch.Artifact{
		{Name: "plan.md", Content: []byte("step one")},
	})
	require.NoError(t, err)
	assert.Equal(t, provider.InlineUnconfiguredResponse, concl.Summary)
	require.Len(t, concl.ArtifactRefs, 1)
	assert.Len(t, concl.ArtifactRefs[0], 64) // hex-encoded blake2b-256
}

func TestContentAddress_Stable(t *testing.T) {
	a := branch.ContentAddress([]byte("hello"))
	b := branch.ContentAddress([]byte("hello"))
	c := branch.ContentAddress([]byte("world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
