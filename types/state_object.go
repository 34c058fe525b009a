// Package types holds the data model of the Plasma coin-range state core:
// StateObject, Transaction, TransactionProof, Deposit, Exit, block
// commitments and anchor-chain event identities.
package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ErrInvalidRange is returned whenever a [start, end) bound is not
// start < end.
var ErrInvalidRange = errors.New("invalid range: start must be less than end")

// StateObject is the unit of ownership over the coin-space: a half-open
// integer range [Start, End) owned by whatever Predicate.State encodes.
// Block is the plasma block number at which this object was last written;
// higher always wins when two objects overlap (see rangestore).
type StateObject struct {
	Start     *big.Int
	End       *big.Int
	Block     *big.Int
	Predicate common.Address
	State     []byte

	// Implicit bounds, set by ProofVerifier from a sum-tree inclusion
	// proof. Zero value (nil) means "absent" per the data model.
	Implicit      bool
	ImplicitStart *big.Int
	ImplicitEnd   *big.Int
}

// NewStateObject constructs a StateObject, validating Start < End.
func NewStateObject(start, end, block *big.Int, predicate common.Address, state []byte) (*StateObject, error) {
	if start == nil || end == nil || start.Cmp(end) >= 0 {
		return nil, ErrInvalidRange
	}
	if block == nil || block.Sign() < 0 {
		return nil, errors.New("block must be non-negative")
	}
	return &StateObject{
		Start:     new(big.Int).Set(start),
		End:       new(big.Int).Set(end),
		Block:     new(big.Int).Set(block),
		Predicate: predicate,
		State:     append([]byte(nil), state...),
	}, nil
}

// Clone returns a defensive, independent copy. RangeStore hands these out
// to callers instead of its internal pointers.
func (s *StateObject) Clone() *StateObject {
	if s == nil {
		return nil
	}
	c := &StateObject{
		Start:     new(big.Int).Set(s.Start),
		End:       new(big.Int).Set(s.End),
		Block:     new(big.Int).Set(s.Block),
		Predicate: s.Predicate,
		State:     append([]byte(nil), s.State...),
		Implicit:  s.Implicit,
	}
	if s.ImplicitStart != nil {
		c.ImplicitStart = new(big.Int).Set(s.ImplicitStart)
	}
	if s.ImplicitEnd != nil {
		c.ImplicitEnd = new(big.Int).Set(s.ImplicitEnd)
	}
	return c
}

// Equal compares the five core fields pointwise, per the data model's
// equality rule for StateObject (Start, End, Block, Predicate, State).
func (s *StateObject) Equal(o *StateObject) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Start.Cmp(o.Start) == 0 &&
		s.End.Cmp(o.End) == 0 &&
		s.Block.Cmp(o.Block) == 0 &&
		s.Predicate == o.Predicate &&
		bytesEqual(s.State, o.State)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Overlaps reports whether s and o's [Start, End) ranges intersect.
func (s *StateObject) Overlaps(o Ranged) bool {
	return s.Start.Cmp(o.RangeEnd()) < 0 && o.RangeStart().Cmp(s.End) < 0
}

// RangeStart, RangeEnd and RangeBlock implement the Ranged interface.
func (s *StateObject) RangeStart() *big.Int { return s.Start }
func (s *StateObject) RangeEnd() *big.Int   { return s.End }
func (s *StateObject) RangeBlock() *big.Int { return s.Block }

// Ranged is the minimal surface of a ranged entry: [start, end) bounds and
// a block. rangestore.Store itself holds *StateObject values directly and
// does not refer to this interface.
type Ranged interface {
	RangeStart() *big.Int
	RangeEnd() *big.Int
	RangeBlock() *big.Int
}

// Components decomposes a StateObject: when ImplicitStart
// and ImplicitEnd are both set, it yields up to three pieces — a left
// implicit slice, the explicit slice, and a right implicit slice. Implicit
// slices carry Implicit=true so SnapshotManager.applyTransition treats them
// as block bumps rather than ownership overwrites. With no implicit bounds
// the object itself is the only (non-implicit) component.
func (s *StateObject) Components() []*StateObject {
	if s.ImplicitStart == nil && s.ImplicitEnd == nil {
		explicit := s.Clone()
		explicit.Implicit = false
		return []*StateObject{explicit}
	}

	components := make([]*StateObject, 0, 3)
	if s.ImplicitStart != nil && s.ImplicitStart.Cmp(s.Start) < 0 {
		left := s.Clone()
		left.End = new(big.Int).Set(s.Start)
		left.Start = new(big.Int).Set(s.ImplicitStart)
		left.Implicit = true
		components = append(components, left)
	}

	explicit := s.Clone()
	explicit.Implicit = false
	components = append(components, explicit)

	if s.ImplicitEnd != nil && s.End.Cmp(s.ImplicitEnd) < 0 {
		right := s.Clone()
		right.Start = new(big.Int).Set(s.End)
		right.End = new(big.Int).Set(s.ImplicitEnd)
		right.Implicit = true
		components = append(components, right)
	}
	return components
}
