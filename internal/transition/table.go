package transition

import (
	"fmt"
	"sort"
	"strings"

	"lv-escrow/internal/types"
)

// Decision is the outcome of validating one requested transition.
type Decision struct {
	Allowed bool
	Reason  string
	// RoleMismatch marks denials where the edge exists but the actor's role
	// is not in its allowed set.
	RoleMismatch bool
	// LegalTargets is populated on denial so callers can surface the
	// currently valid next states.
	LegalTargets []types.TradeStatus
}

type edge struct {
	to    types.TradeStatus
	roles []types.ActorRole
}

func anyParty() []types.ActorRole {
	return []types.ActorRole{types.ActorRoleInitiator, types.ActorRoleCounterparty}
}

func anyActor() []types.ActorRole {
	return []types.ActorRole{types.ActorRoleInitiator, types.ActorRoleCounterparty, types.ActorRoleSystem}
}

func systemOnly() []types.ActorRole {
	return []types.ActorRole{types.ActorRoleSystem}
}

// adjacency is the single source of truth for the trade lifecycle.
var adjacency = map[types.TradeStatus][]edge{
	types.TradeStatusOpen: {
		{to: types.TradeStatusAccepted, roles: []types.ActorRole{types.ActorRoleCounterparty}},
		{to: types.TradeStatusEscrowed, roles: anyActor()},
		{to: types.TradeStatusCancelled, roles: anyActor()},
		{to: types.TradeStatusExpired, roles: systemOnly()},
	},
	types.TradeStatusAccepted: {
		{to: types.TradeStatusEscrowed, roles: anyActor()},
		{to: types.TradeStatusPaymentSent, roles: anyParty()},
		{to: types.TradeStatusCancelled, roles: anyActor()},
		{to: types.TradeStatusExpired, roles: systemOnly()},
	},
	types.TradeStatusEscrowed: {
		// Re-acceptance path for multi-party trades.
		{to: types.TradeStatusAccepted, roles: []types.ActorRole{types.ActorRoleCounterparty}},
		{to: types.TradeStatusPaymentSent, roles: anyParty()},
		{to: types.TradeStatusCompleted, roles: anyActor()},
		{to: types.TradeStatusCancelled, roles: anyActor()},
		{to: types.TradeStatusDisputed, roles: anyParty()},
		{to: types.TradeStatusExpired, roles: systemOnly()},
	},
	types.TradeStatusPaymentSent: {
		{to: types.TradeStatusCompleted, roles: anyActor()},
		{to: types.TradeStatusDisputed, roles: anyParty()},
		{to: types.TradeStatusExpired, roles: systemOnly()},
	},
	types.TradeStatusDisputed: {
		{to: types.TradeStatusCompleted, roles: systemOnly()},
		{to: types.TradeStatusCancelled, roles: systemOnly()},
	},
	types.TradeStatusCompleted: {},
	types.TradeStatusCancelled: {},
	types.TradeStatusExpired:   {},
}

// Validate decides whether actor role may move a trade from current to
// requested. Pure: no I/O, total over all status pairs.
func Validate(current, requested types.TradeStatus, role types.ActorRole) Decision {
	if !types.IsValidStatus(current) {
		return Decision{Reason: fmt.Sprintf("unknown current status %q", current)}
	}
	if !types.IsValidStatus(requested) {
		return Decision{Reason: fmt.Sprintf("unknown requested status %q", requested), LegalTargets: Targets(current)}
	}
	if current == requested {
		return Decision{Reason: "no-op: trade is already " + string(current), LegalTargets: Targets(current)}
	}
	if types.IsTerminal(current) {
		return Decision{Reason: string(current) + " is terminal"}
	}
	edges := adjacency[current]
	for _, e := range edges {
		if e.to != requested {
			continue
		}
		for _, r := range e.roles {
			if r == role {
				return Decision{Allowed: true}
			}
		}
		return Decision{
			Reason:       fmt.Sprintf("role %s may not move %s to %s", role, current, requested),
			RoleMismatch: true,
			LegalTargets: Targets(current),
		}
	}
	return Decision{
		Reason:       fmt.Sprintf("cannot move %s to %s; legal targets: %s", current, requested, joinStatuses(Targets(current))),
		LegalTargets: Targets(current),
	}
}

// Targets returns the legal next states from current, sorted.
func Targets(current types.TradeStatus) []types.TradeStatus {
	edges := adjacency[current]
	out := make([]types.TradeStatus, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Roles returns the roles allowed to move current to requested, or nil when
// the edge does not exist.
func Roles(current, requested types.TradeStatus) []types.ActorRole {
	for _, e := range adjacency[current] {
		if e.to == requested {
			return append([]types.ActorRole(nil), e.roles...)
		}
	}
	return nil
}

func joinStatuses(list []types.TradeStatus) string {
	parts := make([]string, len(list))
	for i, s := range list {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
