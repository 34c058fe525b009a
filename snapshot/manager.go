// Package snapshot applies deposits and transitions over a
// rangestore.Store, and merges transient post-state managers into an
// authoritative head. It has no exit operation: exits are applied by
// callers directly on the underlying store.
package snapshot

import (
	"github.com/nikeshnazareth/plasma-core/rangestore"
	"github.com/nikeshnazareth/plasma-core/types"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "snapshot")

// Manager wraps a rangestore.Store with the deposit and transition
// application rules of the state core. Multiple Managers can exist at
// once — ProofVerifier builds a fresh one per applyProof call before its
// result is merged into the authoritative head Manager.
type Manager struct {
	store *rangestore.Store
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{store: rangestore.New()}
}

// Store exposes the underlying rangestore.Store for read-only callers
// (balances, coin selection) that need to enumerate ranges directly.
func (m *Manager) Store() *rangestore.Store {
	return m.store
}

// ApplyDeposit folds a single deposit into head state. Deposits should
// never overlap existing state, but if one does (e.g. a range mid-exit),
// the higher-block policy in rangestore resolves the conflict.
func (m *Manager) ApplyDeposit(d *types.StateObject) error {
	return m.store.AddRange(d)
}

// ApplyTransition decomposes tx.NewState into its components and applies
// each: implicit components only bump the covered entries' block number,
// the explicit component overwrites ownership outright. The explicit
// component is applied first, so the remainders it splits off an existing
// entry fall inside the implicit slices and get bumped. The predicate
// check itself happens upstream, in ProofVerifier.
func (m *Manager) ApplyTransition(tx *types.Transaction) error {
	components := tx.NewState.Components()
	for _, component := range components {
		if component.Implicit {
			continue
		}
		if err := m.store.AddRange(component); err != nil {
			return err
		}
	}
	for _, component := range components {
		if component.Implicit {
			m.store.IncrementBlocks(component)
		}
	}
	return nil
}

// HasStateObject reports whether some overlapping entry equals s on the
// five core fields.
func (m *Manager) HasStateObject(s *types.StateObject) bool {
	for _, e := range m.store.GetOverlapping(s) {
		if e.Equal(s) {
			return true
		}
	}
	return false
}

// GetOldStates returns every entry overlapping s — the set of
// predecessors a transition to s must be validated against.
func (m *Manager) GetOldStates(s *types.StateObject) []*types.StateObject {
	return m.store.GetOverlapping(s)
}

// Merge folds every entry of other into m. Per-entry errors are swallowed
// so the merge is total: a transient post-state computed by ProofVerifier
// should always be mergeable into head, and losing one malformed entry is
// preferable to losing the whole merge.
func (m *Manager) Merge(other *Manager) {
	for _, e := range other.store.All() {
		if err := m.store.AddRange(e); err != nil {
			log.WithError(err).WithField("start", e.Start).WithField("end", e.End).
				Warn("dropping unmergeable entry")
		}
	}
}

// Equal reports whether two Managers hold the same set of state objects;
// applying the same proof twice should yield equal post-states.
func (m *Manager) Equal(other *Manager) bool {
	a, b := m.store.All(), other.store.All()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
