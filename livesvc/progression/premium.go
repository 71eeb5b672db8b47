package progression

import (
	"strings"

	"github.com/google/uuid"

	"github.com/orbis/livesvc/livesvc/async"
	"github.com/orbis/livesvc/livesvc/entitlements"
)

const DefaultPremiumKey = "battlepass_premium"

// EntitlementChecker is the part of the entitlement cache premium lookups need.
type EntitlementChecker interface {
	Has(playerID uuid.UUID, scope entitlements.Scope, serverID, key string) *async.Future[bool]
}

// PremiumResolver answers whether a player owns the premium pass.
type PremiumResolver struct {
	checker  EntitlementChecker
	scope    entitlements.Scope
	serverID string
	key      string
}

// NewPremiumResolver maps scope NETWORK or GLOBAL to a network-wide check and
// anything else to a check against serverID.
func NewPremiumResolver(checker EntitlementChecker, scope, serverID, key string) *PremiumResolver {
	r := &PremiumResolver{
		checker: checker,
		scope:   entitlements.ParseScope(scope),
		key:     strings.TrimSpace(key),
	}
	if r.key == "" {
		r.key = DefaultPremiumKey
	}
	if r.scope == entitlements.ScopeServer {
		r.serverID = serverID
	}
	return r
}

func (r *PremiumResolver) IsPremium(playerID uuid.UUID) *async.Future[bool] {
	return r.checker.Has(playerID, r.scope, r.serverID, r.key)
}

func (r *PremiumResolver) Scope() entitlements.Scope { return r.scope }
func (r *PremiumResolver) Key() string               { return r.key }
