package actorboard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slopoverlord/slopoverlord/internal/actorboard"
)

func TestResolveOneWay(t *testing.T) {
	b := &actorboard.Board{
		Links: []actorboard.Link{
			{FromID: "a", ToID: "b", Direction: actorboard.DirectionOneWay, CommunicationType: actorboard.CommChat},
		},
	}
	assert.Equal(t, []string{"b"}, b.Resolve("a", actorboard.CommChat))
	assert.Empty(t, b.Resolve("b", actorboard.CommChat))
}

func TestResolveTwoWayFromEitherEndpoint(t *testing.T) {
	b := &actorboard.Board{
		Links: []actorboard.Link{
			{FromID: "a", ToID: "b", Direction: actorboard.DirectionTwoWay, CommunicationType: actorboard.CommChat},
		},
	}
	assert.Equal(t, []string{"b"}, b.Resolve("a", actorboard.CommChat))
	assert.Equal(t, []string{"a"}, b.Resolve("b", actorboard.CommChat))
}

func TestResolveFilterByCommunicationType(t *testing.T) {
	b := &actorboard.Board{
		Links: []actorboard.Link{
			{FromID: "a", ToID: "b", Direction: actorboard.DirectionOneWay, CommunicationType: actorboard.CommTask},
			{FromID: "a", ToID: "c", Direction: actorboard.DirectionOneWay, CommunicationType: actorboard.CommChat},
		},
	}
	assert.Equal(t, []string{"b"}, b.Resolve("a", actorboard.CommTask))
	assert.Equal(t, []string{"b", "c"}, b.Resolve("a", ""))
}

func TestCanClaim(t *testing.T) {
	b := actorboard.NewDefault()
	assert.True(t, b.CanClaim("human:dispatcher", "agent:assistant"))
	assert.False(t, b.CanClaim("agent:assistant", "human:dispatcher"))
}
