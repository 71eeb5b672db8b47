package quests

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Quests map[string]questDoc `yaml:"quests"`
}

type questDoc struct {
	Name               string    `yaml:"name"`
	Points             int64     `yaml:"points"`
	Enabled            *bool     `yaml:"enabled"`
	PremiumOnly        bool      `yaml:"premiumOnly"`
	PremiumBonusPoints int64     `yaml:"premiumBonusPoints"`
	Cadence            string    `yaml:"cadence"`
	AvailableWeeks     []int     `yaml:"availableWeeks"`
	Steps              []stepDoc `yaml:"steps"`
}

type stepDoc struct {
	Type     string `yaml:"type"`
	Key      string `yaml:"key"`
	Value    string `yaml:"value"`
	Required *int64 `yaml:"required"`
}

// LoadFile reads a quest catalog from a YAML file.
func LoadFile(path string) ([]*Quest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quests file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a quest catalog. Disabled quests, steps without a type and
// quests left with no steps are dropped. Quests come back ordered by id.
func Parse(raw []byte) ([]*Quest, error) {
	var doc catalogFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("quests.yaml: %w", err)
	}

	ids := make([]string, 0, len(doc.Quests))
	for id := range doc.Quests {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*Quest, 0, len(ids))
	for _, id := range ids {
		if q := buildQuest(id, doc.Quests[id]); q != nil {
			out = append(out, q)
		}
	}
	return out, nil
}

func buildQuest(id string, d questDoc) *Quest {
	if d.Enabled != nil && !*d.Enabled {
		return nil
	}

	steps := make([]Step, 0, len(d.Steps))
	for _, s := range d.Steps {
		typ := strings.TrimSpace(s.Type)
		if typ == "" {
			continue
		}
		required := int64(1)
		if s.Required != nil {
			required = max(1, *s.Required)
		}
		steps = append(steps, Step{
			Type:     typ,
			Key:      strings.TrimSpace(s.Key),
			Value:    strings.TrimSpace(s.Value),
			Required: required,
		})
	}
	if len(steps) == 0 {
		return nil
	}

	name := d.Name
	if name == "" {
		name = id
	}

	return &Quest{
		ID:                 id,
		Name:               name,
		Points:             d.Points,
		PremiumOnly:        d.PremiumOnly,
		PremiumBonusPoints: d.PremiumBonusPoints,
		Cadence:            ParseCadence(d.Cadence),
		AvailableWeeks:     dedupWeeks(d.AvailableWeeks),
		Steps:              steps,
	}
}

func dedupWeeks(weeks []int) []int {
	if len(weeks) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(weeks))
	out := make([]int, 0, len(weeks))
	for _, w := range weeks {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
