// Package rangestore implements a sorted, non-overlapping interval
// container keyed by integer [start, end) bounds, with overlap resolution
// by block height. It is the leaf of the state core: every other component
// builds on top of it.
package rangestore

import (
	"math/big"
	"sort"
	"sync"

	"github.com/nikeshnazareth/plasma-core/types"
)

// Store is a sorted, non-overlapping collection of *types.StateObject
// entries. AddRange and RemoveRange keep entries non-overlapping by
// construction and re-sort afterwards; no separate validation pass is run.
// Queries return defensive copies: callers must treat them as snapshots.
type Store struct {
	mu      sync.RWMutex
	entries []*types.StateObject
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

func overlap(a, b *types.StateObject) (start, end *big.Int, ok bool) {
	start = a.Start
	if b.Start.Cmp(start) > 0 {
		start = b.Start
	}
	end = a.End
	if b.End.Cmp(end) < 0 {
		end = b.End
	}
	return start, end, start.Cmp(end) < 0
}

func (s *Store) sortLocked() {
	sort.Slice(s.entries, func(i, j int) bool {
		a, b := s.entries[i], s.entries[j]
		if c := a.Start.Cmp(b.Start); c != 0 {
			return c < 0
		}
		return a.End.Cmp(b.End) < 0
	})
}

// AddRange inserts r, resolving overlaps by block height: wherever r
// overlaps an existing entry e, the side with the lower block loses that
// slice. Equal blocks favor the existing entry (r does not supersede).
// Rejects r.Start >= r.End with types.ErrInvalidRange.
func (s *Store) AddRange(r *types.StateObject) error {
	if r.Start.Cmp(r.End) >= 0 {
		return types.ErrInvalidRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addRangeLocked(r)
	return nil
}

func (s *Store) addRangeLocked(r *types.StateObject) {
	remaining := []*types.StateObject{r.Clone()}

	for _, e := range s.snapshotEntriesLocked() {
		next := make([]*types.StateObject, 0, len(remaining))
		for _, piece := range remaining {
			if piece.Start.Cmp(piece.End) >= 0 {
				continue
			}
			ovStart, ovEnd, ok := overlap(piece, e)
			if !ok {
				next = append(next, piece)
				continue
			}
			if e.Block.Cmp(piece.Block) > 0 {
				// e wins: drop piece's overlapping slice, keep remainders.
				if piece.Start.Cmp(ovStart) < 0 {
					left := piece.Clone()
					left.End = new(big.Int).Set(ovStart)
					next = append(next, left)
				}
				if ovEnd.Cmp(piece.End) < 0 {
					right := piece.Clone()
					right.Start = new(big.Int).Set(ovEnd)
					next = append(next, right)
				}
				continue
			}
			if e.Block.Cmp(piece.Block) == 0 {
				// Tie: existing entry is not superseded; piece's overlap
				// is dropped, same as the e-wins case.
				if piece.Start.Cmp(ovStart) < 0 {
					left := piece.Clone()
					left.End = new(big.Int).Set(ovStart)
					next = append(next, left)
				}
				if ovEnd.Cmp(piece.End) < 0 {
					right := piece.Clone()
					right.Start = new(big.Int).Set(ovEnd)
					next = append(next, right)
				}
				continue
			}
			// piece wins: remove e's overlapping slice from the store,
			// piece is untouched by this particular e.
			s.removeRangeLocked(&types.StateObject{Start: ovStart, End: ovEnd})
			next = append(next, piece)
		}
		remaining = next
	}

	for _, piece := range remaining {
		if piece.Start.Cmp(piece.End) < 0 {
			s.entries = append(s.entries, piece)
		}
	}
	s.sortLocked()
}

// RemoveRange deletes every overlapping slice of range from the store,
// re-inserting the non-overlapping remainders of any entry it cuts into.
func (s *Store) RemoveRange(r *types.StateObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeRangeLocked(r)
	s.sortLocked()
}

func (s *Store) removeRangeLocked(r *types.StateObject) {
	kept := make([]*types.StateObject, 0, len(s.entries))
	for _, e := range s.entries {
		ovStart, ovEnd, ok := overlap(r, e)
		if !ok {
			kept = append(kept, e)
			continue
		}
		if e.Start.Cmp(ovStart) < 0 {
			left := e.Clone()
			left.End = new(big.Int).Set(ovStart)
			kept = append(kept, left)
		}
		if ovEnd.Cmp(e.End) < 0 {
			right := e.Clone()
			right.Start = new(big.Int).Set(ovEnd)
			kept = append(kept, right)
		}
	}
	s.entries = kept
}

func (s *Store) snapshotEntriesLocked() []*types.StateObject {
	out := make([]*types.StateObject, len(s.entries))
	copy(out, s.entries)
	return out
}

// GetOverlapping returns defensive copies of every entry intersecting r,
// in (start, end) order.
func (s *Store) GetOverlapping(r *types.StateObject) []*types.StateObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.StateObject, 0)
	for _, e := range s.entries {
		if _, _, ok := overlap(r, e); ok {
			out = append(out, e.Clone())
		}
	}
	return out
}

// IncrementBlocks advances Block by one for every entry fully contained in
// r whose Block equals r.Block - 1, the implicit-component application
// rule a snapshot.Manager uses when applying a transition.
func (s *Store) IncrementBlocks(r *types.StateObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := new(big.Int).Sub(r.Block, big.NewInt(1))
	for _, e := range s.entries {
		if r.Start.Cmp(e.Start) <= 0 && e.End.Cmp(r.End) <= 0 && e.Block.Cmp(want) == 0 {
			e.Block = new(big.Int).Add(e.Block, big.NewInt(1))
		}
	}
}

// All returns defensive copies of every entry in (start, end) order.
func (s *Store) All() []*types.StateObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.StateObject, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of entries currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
