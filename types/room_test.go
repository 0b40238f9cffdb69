package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDMRoomName(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"bob", "alice"},
		{"Zed", "amy"},
		{"a_b", "a"},
	}
	for _, p := range pairs {
		assert.Equal(t, DMRoomName(p[0], p[1]), DMRoomName(p[1], p[0]))
	}
	assert.Equal(t, "dm_alice_bob", DMRoomName("bob", "alice"))
	assert.True(t, IsDMRoom(DMRoomName("bob", "alice")))
	assert.False(t, IsDMRoom("general"))
}

func TestStatusRank(t *testing.T) {
	assert.Less(t, StatusPending.Rank(), StatusSent.Rank())
	assert.Less(t, StatusSent.Rank(), StatusDelivered.Rank())
	assert.Less(t, StatusDelivered.Rank(), StatusSeen.Rank())
	assert.False(t, Status("bogus").Valid())
	assert.True(t, InvitationDeclined.Terminal())
	assert.False(t, InvitationPending.Terminal())
}
