package transform

import (
	"sort"
	"time"

	"github.com/agenthands/rsgwm/internal/core/model"
)

// History is the time-indexed pose cache of one Transform connection.
// Entries may arrive in any order; they are kept sorted by stamp on insert
// and entries with equal stamps keep arrival order, so the latest arrival
// wins a lookup. History is not synchronised; the owning store guards it.
type History struct {
	entries []model.StampedTransform
	maxAge  time.Duration
}

// NewHistory returns an empty cache. A positive maxAge drops entries older
// than the newest stamp minus maxAge; the newest entry always survives.
func NewHistory(maxAge time.Duration) *History {
	return &History{maxAge: maxAge}
}

func (h *History) Insert(e model.StampedTransform) {
	if e.Unit == "" {
		e.Unit = model.DefaultUnit
	}
	i := sort.Search(len(h.entries), func(i int) bool {
		return h.entries[i].Stamp > e.Stamp
	})
	h.entries = append(h.entries, model.StampedTransform{})
	copy(h.entries[i+1:], h.entries[i:])
	h.entries[i] = e
	h.prune()
}

func (h *History) prune() {
	if h.maxAge <= 0 || len(h.entries) < 2 {
		return
	}
	newest := h.entries[len(h.entries)-1].Stamp
	cutoff := newest - model.Stamp(h.maxAge)
	if cutoff > newest {
		// underflow near MinStamp
		return
	}
	drop := sort.Search(len(h.entries), func(i int) bool {
		return h.entries[i].Stamp >= cutoff
	})
	if drop > 0 {
		h.entries = append(h.entries[:0], h.entries[drop:]...)
	}
}

// At implements last-known-value semantics: the entry with the greatest
// stamp not after s.
func (h *History) At(s model.Stamp) (model.StampedTransform, bool) {
	i := sort.Search(len(h.entries), func(i int) bool {
		return h.entries[i].Stamp > s
	})
	if i == 0 {
		return model.StampedTransform{}, false
	}
	return h.entries[i-1], true
}

func (h *History) Latest() (model.StampedTransform, bool) {
	if len(h.entries) == 0 {
		return model.StampedTransform{}, false
	}
	return h.entries[len(h.entries)-1], true
}

func (h *History) Len() int {
	return len(h.entries)
}

func (h *History) Entries() []model.StampedTransform {
	return append([]model.StampedTransform(nil), h.entries...)
}
