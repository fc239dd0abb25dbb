package trades

import (
	"testing"

	"lv-escrow/internal/model"
	"lv-escrow/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestRoleOf(t *testing.T) {
	tr := model.Trade{InitiatorID: "alice", CounterpartyID: "bob"}

	role, ok := RoleOf(tr, "alice")
	assert.True(t, ok)
	assert.Equal(t, types.ActorRoleInitiator, role)

	role, ok = RoleOf(tr, "bob")
	assert.True(t, ok)
	assert.Equal(t, types.ActorRoleCounterparty, role)

	_, ok = RoleOf(tr, "mallory")
	assert.False(t, ok)
}

func TestRoleOfBuyerActsAsCounterparty(t *testing.T) {
	buyer := "carol"
	tr := model.Trade{InitiatorID: "alice", CounterpartyID: "bob", BuyerID: &buyer}

	role, ok := RoleOf(tr, "carol")
	assert.True(t, ok)
	assert.Equal(t, types.ActorRoleCounterparty, role)

	// The named parties keep their own roles regardless of buyer_id.
	role, ok = RoleOf(tr, "alice")
	assert.True(t, ok)
	assert.Equal(t, types.ActorRoleInitiator, role)
}
