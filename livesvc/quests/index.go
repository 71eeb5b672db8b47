package quests

import (
	"strings"

	"github.com/orbis/livesvc/livesvc/actions"
)

type indexKey struct {
	typ, key, value string
}

func newIndexKey(typ, key, value string) indexKey {
	return indexKey{typ: normalize(typ), key: normalize(key), value: normalize(value)}
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Index maps an event shape to the quests that have a step of that shape.
// It is immutable once built.
type Index struct {
	byKey map[indexKey][]*Quest
	all   []*Quest
}

func NewIndex(quests []*Quest) *Index {
	idx := &Index{
		byKey: make(map[indexKey][]*Quest),
		all:   append([]*Quest(nil), quests...),
	}
	for _, q := range quests {
		seen := make(map[indexKey]struct{}, len(q.Steps))
		for _, step := range q.Steps {
			k := newIndexKey(step.Type, step.Key, step.Value)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			idx.byKey[k] = append(idx.byKey[k], q)
		}
	}
	return idx
}

// Candidates returns the quests ev may advance. Each quest appears at most
// once. When only one probe hits, the indexed slice is returned as is and must
// not be modified.
func (idx *Index) Candidates(ev actions.ActionEvent) []*Quest {
	a := idx.byKey[newIndexKey(ev.Type(), ev.Key(), ev.Value())]
	b := idx.byKey[newIndexKey(ev.Type(), ev.Key(), "")]
	c := idx.byKey[newIndexKey(ev.Type(), "", "")]

	switch {
	case len(b) == 0 && len(c) == 0:
		return a
	case len(a) == 0 && len(c) == 0:
		return b
	case len(a) == 0 && len(b) == 0:
		return c
	}

	seen := make(map[string]struct{}, len(a)+len(b)+len(c))
	out := make([]*Quest, 0, len(a)+len(b)+len(c))
	for _, list := range [][]*Quest{a, b, c} {
		for _, q := range list {
			if _, ok := seen[q.ID]; ok {
				continue
			}
			seen[q.ID] = struct{}{}
			out = append(out, q)
		}
	}
	return out
}

func (idx *Index) All() []*Quest {
	return idx.all
}

func (idx *Index) Len() int {
	return len(idx.all)
}
