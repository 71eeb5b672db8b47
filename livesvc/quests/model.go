package quests

import (
	"slices"
	"strings"

	"github.com/orbis/livesvc/livesvc/actions"
)

type Cadence string

const (
	CadenceSeason Cadence = "SEASON"
	CadenceDaily  Cadence = "DAILY"
	CadenceWeekly Cadence = "WEEKLY"
)

// ParseCadence falls back to CadenceSeason for anything unrecognized.
func ParseCadence(raw string) Cadence {
	switch c := Cadence(strings.ToUpper(strings.TrimSpace(raw))); c {
	case CadenceDaily, CadenceWeekly:
		return c
	default:
		return CadenceSeason
	}
}

// Step is one stage of a quest. Steps complete strictly in order.
type Step struct {
	Type     string
	Key      string
	Value    string
	Required int64
}

// Matches reports whether ev counts toward the step. Comparison uses the same
// normalization as the index. A blank key or value matches anything.
func (s Step) Matches(ev actions.ActionEvent) bool {
	if normalize(s.Type) != normalize(ev.Type()) {
		return false
	}
	if k := normalize(s.Key); k != "" && k != normalize(ev.Key()) {
		return false
	}
	if v := normalize(s.Value); v != "" && v != normalize(ev.Value()) {
		return false
	}
	return true
}

type Quest struct {
	ID                 string
	Name               string
	Points             int64
	PremiumOnly        bool
	PremiumBonusPoints int64
	Cadence            Cadence
	AvailableWeeks     []int
	Steps              []Step
}

// ActiveIn reports whether the quest runs during the given pass week. Only
// weekly quests with an explicit week list are ever inactive.
func (q *Quest) ActiveIn(week int) bool {
	if q.Cadence != CadenceWeekly || len(q.AvailableWeeks) == 0 {
		return true
	}
	return slices.Contains(q.AvailableWeeks, week)
}

// Reward is the points granted on completion before boosters.
func (q *Quest) Reward(premium bool) int64 {
	base := q.Points
	if base <= 0 {
		return 0
	}
	if premium && q.PremiumBonusPoints > 0 {
		base += q.PremiumBonusPoints
	}
	return base
}
