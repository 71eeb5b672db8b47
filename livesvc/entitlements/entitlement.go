package entitlements

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlankKey      = errors.New("entitlement key must not be blank")
	ErrMissingServer = errors.New("server id is required for SERVER scope")
	ErrMissingPlayer = errors.New("player id must be set")
)

// Scope is the authorization breadth of an entitlement or booster.
type Scope string

const (
	ScopeServer  Scope = "SERVER"
	ScopeNetwork Scope = "NETWORK"
)

// ParseScope maps NETWORK and GLOBAL to ScopeNetwork, anything else to
// ScopeServer.
func ParseScope(raw string) Scope {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "NETWORK", "GLOBAL":
		return ScopeNetwork
	default:
		return ScopeServer
	}
}

// Resolve returns the server id to store for scope. Network scope never
// carries a server id.
func (s Scope) Resolve(serverID string) (string, error) {
	if s == ScopeNetwork {
		return "", nil
	}
	serverID = strings.TrimSpace(serverID)
	if serverID == "" {
		return "", ErrMissingServer
	}
	return serverID, nil
}

type Entitlement struct {
	PlayerID uuid.UUID
	Scope    Scope
	ServerID string
	Key      string
	// ExpiresAt nil means the entitlement never expires.
	ExpiresAt *time.Time
}

// Lookup identifies one entitlement regardless of expiry.
type Lookup struct {
	PlayerID uuid.UUID
	Scope    Scope
	ServerID string
	Key      string
}

func newLookup(playerID uuid.UUID, scope Scope, serverID, key string) (Lookup, error) {
	if playerID == uuid.Nil {
		return Lookup{}, ErrMissingPlayer
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Lookup{}, ErrBlankKey
	}
	sid, err := scope.Resolve(serverID)
	if err != nil {
		return Lookup{}, err
	}
	return Lookup{PlayerID: playerID, Scope: scope, ServerID: sid, Key: key}, nil
}

func (l Lookup) cacheKey() string {
	return l.PlayerID.String() + "|" + string(l.Scope) + "|" + l.ServerID + "|" + l.Key
}

func playerPrefix(playerID uuid.UUID) string {
	return playerID.String() + "|"
}
