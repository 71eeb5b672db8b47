package boosters

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orbis/livesvc/livesvc/entitlements"
)

type Kind string

const (
	KindPoints   Kind = "BATTLEPASS_POINTS"
	KindProgress Kind = "BATTLEPASS_PROGRESS"
	KindRewards  Kind = "BATTLEPASS_REWARDS"
	KindPetsXP   Kind = "PETS_XP"
)

func ParseKind(raw string) (Kind, bool) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(raw))); k {
	case KindPoints, KindProgress, KindRewards, KindPetsXP:
		return k, true
	default:
		return "", false
	}
}

const (
	minMultiplier = 0.01
	maxMultiplier = 100.0
)

// Grant is one timed multiplier. PlayerID is uuid.Nil for grants that apply to
// every player in scope.
type Grant struct {
	ID         int64
	Scope      entitlements.Scope
	ServerID   string
	PlayerID   uuid.UUID
	Kind       Kind
	Multiplier float64
	ExpiresAt  time.Time
}

func (g Grant) ForAll() bool { return g.PlayerID == uuid.Nil }

// Sanitize clamps m to [0.01, 100]. Non-finite values become 1.
func Sanitize(m float64) float64 {
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return 1
	}
	return min(maxMultiplier, max(minMultiplier, m))
}
