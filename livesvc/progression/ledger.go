package progression

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// QuestState is how far a player is through one quest.
type QuestState struct {
	StepIdx  int
	Progress int64
}

// Claim is one claimed reward track for a tier.
type Claim struct {
	Tier    int
	Premium bool
}

// Delta is everything that changed on a ledger since the previous snapshot.
type Delta struct {
	WriteProgress bool
	Points        int64
	Tier          int
	Quests        map[string]QuestState
	Claims        []Claim
}

func (d Delta) Empty() bool {
	return !d.WriteProgress && len(d.Quests) == 0 && len(d.Claims) == 0
}

// Ledger is one player's in-memory progression. It is the authoritative copy;
// the store only ever sees what SnapshotDeltaAndClear hands out.
type Ledger struct {
	playerID uuid.UUID

	mu             sync.Mutex
	points         int64
	tier           int
	quests         map[string]QuestState
	claimedFree    map[int]struct{}
	claimedPremium map[int]struct{}

	progressDirty bool
	dirtyQuests   map[string]struct{}
	pendingClaims []Claim

	premium  atomic.Bool
	departed atomic.Bool

	// flushMu is held from snapshot through store write so two writes of the
	// same ledger commit in the order their snapshots were taken.
	flushMu sync.Mutex
}

func NewLedger(playerID uuid.UUID) *Ledger {
	return &Ledger{
		playerID:       playerID,
		quests:         make(map[string]QuestState),
		claimedFree:    make(map[int]struct{}),
		claimedPremium: make(map[int]struct{}),
		dirtyQuests:    make(map[string]struct{}),
	}
}

func (l *Ledger) PlayerID() uuid.UUID { return l.playerID }

// SeedProgress, SeedQuest and SeedClaim load stored state without marking
// anything dirty.
func (l *Ledger) SeedProgress(points int64, tier int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.points = points
	l.tier = tier
}

func (l *Ledger) SeedQuest(questID string, st QuestState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quests[questID] = st
}

func (l *Ledger) SeedClaim(c Claim) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.claimSet(c.Premium)[c.Tier] = struct{}{}
}

// EnsureQuest adds a zero state for questID if the ledger has none.
func (l *Ledger) EnsureQuest(questID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.quests[questID]; !ok {
		l.quests[questID] = QuestState{}
	}
}

// AddPoints applies a signed delta. Zero is ignored.
func (l *Ledger) AddPoints(delta int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if delta != 0 {
		l.points += delta
		l.progressDirty = true
	}
	return l.points
}

func (l *Ledger) SetTier(tier int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tier != tier {
		l.tier = tier
		l.progressDirty = true
	}
}

func (l *Ledger) Points() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.points
}

func (l *Ledger) Tier() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tier
}

// SetQuest moves a quest forward. Moving it backward is ignored; use
// ResetQuest for rollovers.
func (l *Ledger) SetQuest(questID string, stepIdx int, progress int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.quests[questID]
	if stepIdx < cur.StepIdx || (stepIdx == cur.StepIdx && progress < cur.Progress) {
		return false
	}
	next := QuestState{StepIdx: stepIdx, Progress: progress}
	if next == cur {
		return false
	}
	l.quests[questID] = next
	l.dirtyQuests[questID] = struct{}{}
	return true
}

func (l *Ledger) Quest(questID string) QuestState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quests[questID]
}

// ResetQuest zeroes a quest and marks it dirty so the reset is persisted.
func (l *Ledger) ResetQuest(questID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quests[questID] = QuestState{}
	l.dirtyQuests[questID] = struct{}{}
}

// MarkClaim records a claim. It returns false when the tier was already
// claimed on that track.
func (l *Ledger) MarkClaim(premium bool, tier int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := l.claimSet(premium)
	if _, ok := set[tier]; ok {
		return false
	}
	set[tier] = struct{}{}
	l.pendingClaims = append(l.pendingClaims, Claim{Tier: tier, Premium: premium})
	return true
}

func (l *Ledger) HasClaim(premium bool, tier int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.claimSet(premium)[tier]
	return ok
}

func (l *Ledger) claimSet(premium bool) map[int]struct{} {
	if premium {
		return l.claimedPremium
	}
	return l.claimedFree
}

func (l *Ledger) Premium() bool     { return l.premium.Load() }
func (l *Ledger) SetPremium(p bool) { l.premium.Store(p) }

// SnapshotDeltaAndClear captures every dirty value and marks the ledger clean
// in the same critical section.
func (l *Ledger) SnapshotDeltaAndClear() Delta {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := Delta{
		WriteProgress: l.progressDirty,
		Points:        l.points,
		Tier:          l.tier,
	}
	if len(l.dirtyQuests) > 0 {
		d.Quests = make(map[string]QuestState, len(l.dirtyQuests))
		for id := range l.dirtyQuests {
			d.Quests[id] = l.quests[id]
		}
		clear(l.dirtyQuests)
	}
	if len(l.pendingClaims) > 0 {
		d.Claims = l.pendingClaims
		l.pendingClaims = nil
	}
	l.progressDirty = false
	return d
}

// Remerge marks the contents of an unwritten delta dirty again. Current values
// win over the delta's since they are at least as new.
func (l *Ledger) Remerge(d Delta) {
	if d.Empty() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if d.WriteProgress {
		l.progressDirty = true
	}
	for id := range d.Quests {
		l.dirtyQuests[id] = struct{}{}
	}
	pending := make(map[Claim]struct{}, len(l.pendingClaims))
	for _, c := range l.pendingClaims {
		pending[c] = struct{}{}
	}
	for _, c := range d.Claims {
		if _, ok := pending[c]; !ok {
			l.pendingClaims = append(l.pendingClaims, c)
		}
	}
}
