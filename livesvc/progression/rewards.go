package progression

import (
	"fmt"
	"math"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type RewardType string

const (
	RewardCommand RewardType = "COMMAND"
	RewardMessage RewardType = "MESSAGE"
)

type Reward struct {
	ID       string
	Type     RewardType
	Commands []string
	Messages []string
}

type TierRewards struct {
	Tier           int
	PointsRequired int64
	Free           []Reward
	Premium        []Reward
}

func (t TierRewards) Track(premium bool) []Reward {
	if premium {
		return t.Premium
	}
	return t.Free
}

// RewardsTable is the season's tier curve. Tier numbers run 1..MaxTier and
// point requirements never decrease with tier.
type RewardsTable struct {
	tiers    []TierRewards
	required []int64 // index 1..MaxTier
}

func NewRewardsTable(tiers []TierRewards) *RewardsTable {
	sorted := slices.Clone(tiers)
	slices.SortFunc(sorted, func(a, b TierRewards) int { return a.Tier - b.Tier })

	maxTier := 0
	if len(sorted) > 0 {
		maxTier = max(0, sorted[len(sorted)-1].Tier)
	}
	required := make([]int64, maxTier+1)
	for _, t := range sorted {
		if t.Tier <= 0 {
			continue
		}
		required[t.Tier] = max(0, t.PointsRequired)
	}
	var last int64
	for i := 1; i < len(required); i++ {
		required[i] = max(required[i], last)
		last = required[i]
	}
	return &RewardsTable{tiers: sorted, required: required}
}

func (t *RewardsTable) MaxTier() int {
	return max(0, len(t.required)-1)
}

// PointsRequired returns math.MaxInt64 for tiers outside the table.
func (t *RewardsTable) PointsRequired(tier int) int64 {
	if tier <= 0 || tier >= len(t.required) {
		return math.MaxInt64
	}
	return t.required[tier]
}

// TierForPoints is the highest tier whose requirement is met.
func (t *RewardsTable) TierForPoints(points int64) int {
	if len(t.required) <= 1 {
		return 0
	}
	points = max(0, points)
	thresholds := t.required[1:]
	return sort.Search(len(thresholds), func(i int) bool { return thresholds[i] > points })
}

func (t *RewardsTable) Tier(tier int) (TierRewards, bool) {
	i, found := slices.BinarySearchFunc(t.tiers, tier, func(tr TierRewards, n int) int { return tr.Tier - n })
	if !found {
		return TierRewards{}, false
	}
	return t.tiers[i], true
}

func (t *RewardsTable) All() []TierRewards {
	return t.tiers
}

type rewardsDoc struct {
	Tiers map[string]tierDoc `yaml:"tiers"`
}

type tierDoc struct {
	PointsRequired *int64               `yaml:"pointsRequired"`
	Free           map[string]rewardDoc `yaml:"free"`
	Premium        map[string]rewardDoc `yaml:"premium"`
}

type rewardDoc struct {
	Type     string   `yaml:"type"`
	Commands []string `yaml:"commands"`
	Messages []string `yaml:"messages"`
}

func LoadRewardsFile(path string) (*RewardsTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rewards file: %w", err)
	}
	return ParseRewards(raw)
}

// ParseRewards reads the tiers map. Non-numeric tier keys are skipped and a
// missing pointsRequired defaults to tier*100.
func ParseRewards(raw []byte) (*RewardsTable, error) {
	var doc rewardsDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rewards: %w", err)
	}

	tiers := make([]TierRewards, 0, len(doc.Tiers))
	for key, td := range doc.Tiers {
		tier, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			continue
		}
		required := int64(max(0, tier)) * 100
		if td.PointsRequired != nil {
			required = *td.PointsRequired
		}
		tiers = append(tiers, TierRewards{
			Tier:           tier,
			PointsRequired: required,
			Free:           buildRewards(td.Free),
			Premium:        buildRewards(td.Premium),
		})
	}
	return NewRewardsTable(tiers), nil
}

func buildRewards(docs map[string]rewardDoc) []Reward {
	if len(docs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]Reward, 0, len(ids))
	for _, id := range ids {
		d := docs[id]
		typ := RewardType(strings.ToUpper(strings.TrimSpace(d.Type)))
		if typ != RewardMessage {
			typ = RewardCommand
		}
		out = append(out, Reward{ID: id, Type: typ, Commands: d.Commands, Messages: d.Messages})
	}
	return out
}
