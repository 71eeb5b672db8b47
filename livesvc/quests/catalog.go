package quests

import (
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/sahilm/fuzzy"
)

type snapshot struct {
	index *Index
	byID  map[string]*Quest
	names questNames
}

// questNames implements fuzzy.Source over quest names.
type questNames []*Quest

func (n questNames) Len() int            { return len(n) }
func (n questNames) String(i int) string { return strings.ToLower(n[i].Name) }

// Catalog is the active quest set. Reload swaps the whole set at once, so a
// reader sees either the old catalog or the new one.
type Catalog struct {
	current atomic.Pointer[snapshot]
}

func NewCatalog(quests []*Quest) *Catalog {
	c := &Catalog{}
	c.Replace(quests)
	return c
}

// Replace installs quests as the active catalog.
func (c *Catalog) Replace(quests []*Quest) {
	byID := make(map[string]*Quest, len(quests))
	for _, q := range quests {
		byID[q.ID] = q
	}
	c.current.Store(&snapshot{
		index: NewIndex(quests),
		byID:  byID,
		names: questNames(quests),
	})
}

// Reload reads path and swaps it in. On error the active catalog is kept.
func (c *Catalog) Reload(path string) error {
	quests, err := LoadFile(path)
	if err != nil {
		return err
	}
	c.Replace(quests)
	slog.Info("Quest catalog reloaded",
		slog.String("type", "sys"),
		slog.String("path", path),
		slog.Int("quests", len(quests)))
	return nil
}

func (c *Catalog) Index() *Index {
	return c.current.Load().index
}

func (c *Catalog) Quest(id string) (*Quest, bool) {
	q, ok := c.current.Load().byID[id]
	return q, ok
}

func (c *Catalog) All() []*Quest {
	return c.current.Load().index.All()
}

// IDsWithCadence lists quests that reset on cadence.
func (c *Catalog) IDsWithCadence(cadence Cadence) []string {
	var ids []string
	for _, q := range c.All() {
		if q.Cadence == cadence {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

// Search fuzzy-matches pattern against quest names, best match first.
func (c *Catalog) Search(pattern string) []*Quest {
	snap := c.current.Load()
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return nil
	}
	matches := fuzzy.FindFrom(pattern, snap.names)
	out := make([]*Quest, len(matches))
	for i, m := range matches {
		out[i] = snap.names[m.Index]
	}
	return out
}
