package local

import (
	"maps"
	"sync"

	"github.com/kailas-cloud/docstore/internal/domain"
)

// collection is one in-memory collection mirrored to <name>.json.
// Reads share mu; mutations hold it exclusively through persistence.
type collection struct {
	name string
	path string

	mu   sync.RWMutex
	ids  []string
	docs map[string]map[string]any
}

func newCollection(name, path string) *collection {
	return &collection{name: name, path: path, docs: make(map[string]map[string]any)}
}

// view returns a deep copy of the stored document with its id under _id.
func (c *collection) view(id string) domain.Document {
	d := domain.Clone(c.docs[id])
	if d == nil {
		d = domain.Document{}
	}
	d[domain.IDField] = id
	return d
}

// snapshot copies every document matching pred in scan order. Caller holds mu.
func (c *collection) snapshot(pred predicate) []domain.Document {
	out := make([]domain.Document, 0, len(c.ids))
	for _, id := range c.ids {
		d := c.view(id)
		if pred(d) {
			out = append(out, d)
		}
	}
	return out
}

// matchingIDs lists ids of matching documents in scan order. Caller holds mu.
func (c *collection) matchingIDs(pred predicate, limit int) []string {
	var out []string
	for _, id := range c.ids {
		if pred(c.view(id)) {
			out = append(out, id)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// state captures ids and document references for rollback after a failed write.
type state struct {
	ids  []string
	docs map[string]map[string]any
}

func (c *collection) save() state {
	return state{ids: append([]string(nil), c.ids...), docs: maps.Clone(c.docs)}
}

func (c *collection) restore(s state) {
	c.ids = s.ids
	c.docs = s.docs
}

func (c *collection) remove(ids []string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
		delete(c.docs, id)
	}
	kept := c.ids[:0]
	for _, id := range c.ids {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	c.ids = kept
}
