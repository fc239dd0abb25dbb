package transition

import (
	"testing"

	"lv-escrow/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allRoles = []types.ActorRole{
	types.ActorRoleInitiator,
	types.ActorRoleCounterparty,
	types.ActorRoleSystem,
}

func TestValidateTotality(t *testing.T) {
	for _, from := range types.AllStatuses {
		for _, to := range types.AllStatuses {
			for _, role := range allRoles {
				d := Validate(from, to, role)
				if d.Allowed {
					require.Empty(t, d.Reason, "%s->%s by %s", from, to, role)
				} else {
					require.NotEmpty(t, d.Reason, "%s->%s by %s", from, to, role)
				}
			}
		}
	}
}

func TestNoOpAlwaysDenied(t *testing.T) {
	for _, s := range types.AllStatuses {
		for _, role := range allRoles {
			d := Validate(s, s, role)
			assert.False(t, d.Allowed, "no-op %s by %s must be denied", s, role)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range []types.TradeStatus{types.TradeStatusCompleted, types.TradeStatusCancelled, types.TradeStatusExpired} {
		assert.Empty(t, Targets(from))
		for _, to := range types.AllStatuses {
			for _, role := range allRoles {
				assert.False(t, Validate(from, to, role).Allowed, "%s->%s by %s", from, to, role)
			}
		}
	}
}

func TestRoleEnforcement(t *testing.T) {
	cases := []struct {
		from, to types.TradeStatus
		allowed  []types.ActorRole
	}{
		{types.TradeStatusOpen, types.TradeStatusAccepted, []types.ActorRole{types.ActorRoleCounterparty}},
		{types.TradeStatusOpen, types.TradeStatusEscrowed, allRoles},
		{types.TradeStatusOpen, types.TradeStatusCancelled, allRoles},
		{types.TradeStatusOpen, types.TradeStatusExpired, []types.ActorRole{types.ActorRoleSystem}},
		{types.TradeStatusAccepted, types.TradeStatusEscrowed, allRoles},
		{types.TradeStatusAccepted, types.TradeStatusPaymentSent, []types.ActorRole{types.ActorRoleInitiator, types.ActorRoleCounterparty}},
		{types.TradeStatusAccepted, types.TradeStatusCancelled, allRoles},
		{types.TradeStatusAccepted, types.TradeStatusExpired, []types.ActorRole{types.ActorRoleSystem}},
		{types.TradeStatusEscrowed, types.TradeStatusAccepted, []types.ActorRole{types.ActorRoleCounterparty}},
		{types.TradeStatusEscrowed, types.TradeStatusPaymentSent, []types.ActorRole{types.ActorRoleInitiator, types.ActorRoleCounterparty}},
		{types.TradeStatusEscrowed, types.TradeStatusCompleted, allRoles},
		{types.TradeStatusEscrowed, types.TradeStatusCancelled, allRoles},
		{types.TradeStatusEscrowed, types.TradeStatusDisputed, []types.ActorRole{types.ActorRoleInitiator, types.ActorRoleCounterparty}},
		{types.TradeStatusEscrowed, types.TradeStatusExpired, []types.ActorRole{types.ActorRoleSystem}},
		{types.TradeStatusPaymentSent, types.TradeStatusCompleted, allRoles},
		{types.TradeStatusPaymentSent, types.TradeStatusDisputed, []types.ActorRole{types.ActorRoleInitiator, types.ActorRoleCounterparty}},
		{types.TradeStatusPaymentSent, types.TradeStatusExpired, []types.ActorRole{types.ActorRoleSystem}},
		{types.TradeStatusDisputed, types.TradeStatusCompleted, []types.ActorRole{types.ActorRoleSystem}},
		{types.TradeStatusDisputed, types.TradeStatusCancelled, []types.ActorRole{types.ActorRoleSystem}},
	}

	allowedSet := map[[3]string]bool{}
	for _, c := range cases {
		for _, role := range c.allowed {
			allowedSet[[3]string{string(c.from), string(c.to), string(role)}] = true
		}
	}

	for _, from := range types.AllStatuses {
		for _, to := range types.AllStatuses {
			for _, role := range allRoles {
				want := allowedSet[[3]string{string(from), string(to), string(role)}]
				got := Validate(from, to, role).Allowed
				assert.Equal(t, want, got, "%s->%s by %s", from, to, role)
			}
		}
	}
}

func TestDenialCarriesLegalTargets(t *testing.T) {
	d := Validate(types.TradeStatusPaymentSent, types.TradeStatusCancelled, types.ActorRoleInitiator)
	require.False(t, d.Allowed)
	assert.Equal(t, []types.TradeStatus{
		types.TradeStatusCompleted,
		types.TradeStatusDisputed,
		types.TradeStatusExpired,
	}, d.LegalTargets)
	assert.Contains(t, d.Reason, "payment_sent")
}

func TestRoleMismatchReason(t *testing.T) {
	d := Validate(types.TradeStatusOpen, types.TradeStatusAccepted, types.ActorRoleInitiator)
	require.False(t, d.Allowed)
	assert.True(t, d.RoleMismatch)
	assert.Contains(t, d.Reason, "role initiator")

	// A missing edge is not a role problem.
	d = Validate(types.TradeStatusOpen, types.TradeStatusCompleted, types.ActorRoleSystem)
	require.False(t, d.Allowed)
	assert.False(t, d.RoleMismatch)
}

func TestUnknownStatusDenied(t *testing.T) {
	assert.False(t, Validate("escrow_pending", types.TradeStatusCompleted, types.ActorRoleSystem).Allowed)
	assert.False(t, Validate(types.TradeStatusOpen, "releasing", types.ActorRoleSystem).Allowed)
}

func TestRoles(t *testing.T) {
	assert.Equal(t, []types.ActorRole{types.ActorRoleCounterparty}, Roles(types.TradeStatusOpen, types.TradeStatusAccepted))
	assert.Nil(t, Roles(types.TradeStatusPaymentSent, types.TradeStatusCancelled))
}
