package router_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slopoverlord/slopoverlord/internal/router"
)

func TestDecide_ShortConversationalRespondsInline(t *testing.T) {
	d := router.Decide("hey, how's it going?", router.Features{})
	assert.Equal(t, router.ActionRespond, d.Action)
}

func TestDecide_ApprovalCommandRespondsWithReason(t *testing.T) {
	d := router.Decide("pick up #2", router.Features{})
	assert.Equal(t, router.ActionRespond, d.Action)
	assert.Equal(t, "task_approved_command", d.Reason)
}

func TestDecide_ToolObjectiveSpawnsWorkerWithDoubleBudget(t *testing.T) {
	d := router.Decide("please deploy the staging environment now", router.Features{})
	assert.Equal(t, router.ActionSpawnWorker, d.Action)
	assert.Equal(t, 2400, d.TokenBudget)
}

func TestDecide_ReasoningSpawnsBranch(t *testing.T) {
	d := router.Decide("can you compare these two approaches and summarize the tradeoffs", router.Features{})
	assert.Equal(t, router.ActionSpawnBranch, d.Action)
}

func TestApprovalCommandMatch(t *testing.T) {
	ref, ok := router.ApprovalCommandMatch("Pick Up   #7")
	assert.True(t, ok)
	assert.Equal(t, "7", ref)

	_, ok = router.ApprovalCommandMatch("nothing here")
	assert.False(t, ok)
}
