package snapshot

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nikeshnazareth/plasma-core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bi(v int64) *big.Int { return big.NewInt(v) }

func obj(t *testing.T, start, end, block int64, owner byte) *types.StateObject {
	o, err := types.NewStateObject(bi(start), bi(end), bi(block), common.Address{owner}, nil)
	require.NoError(t, err)
	return o
}

func TestDepositThenBalance(t *testing.T) {
	m := New()
	require.NoError(t, m.ApplyDeposit(obj(t, 0, 100, 1, 'A')))

	entries := m.Store().All()
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].Start.Cmp(bi(0)))
	assert.Equal(t, 0, entries[0].End.Cmp(bi(100)))
}

func TestApplyTransition_Decomposition(t *testing.T) {
	m := New()
	require.NoError(t, m.ApplyDeposit(obj(t, 0, 100, 1, 'A')))

	newState := obj(t, 30, 70, 2, 'B')
	newState.ImplicitStart = bi(0)
	newState.ImplicitEnd = bi(100)

	tx := &types.Transaction{Block: bi(2), NewState: newState}
	require.NoError(t, m.ApplyTransition(tx))

	entries := m.Store().All()
	require.Len(t, entries, 3)
	// left implicit [0,30) block-bumped to 2, explicit [30,70) owner B
	// block 2, right implicit [70,100) block-bumped to 2.
	assert.Equal(t, 0, entries[0].Block.Cmp(bi(2)))
	assert.Equal(t, common.Address{'B'}, entries[1].Predicate)
	assert.Equal(t, 0, entries[2].Block.Cmp(bi(2)))
}

func TestHasStateObject(t *testing.T) {
	m := New()
	s := obj(t, 0, 100, 1, 'A')
	require.NoError(t, m.ApplyDeposit(s))
	assert.True(t, m.HasStateObject(s))
	assert.False(t, m.HasStateObject(obj(t, 0, 100, 2, 'A')))
}

func TestMerge_FoldsOtherEntriesIntoHead(t *testing.T) {
	head := New()
	require.NoError(t, head.ApplyDeposit(obj(t, 0, 50, 1, 'A')))

	other := New()
	require.NoError(t, other.ApplyDeposit(obj(t, 50, 100, 1, 'B')))

	head.Merge(other)
	entries := head.Store().All()
	require.Len(t, entries, 2)
}

func TestEqual(t *testing.T) {
	a := New()
	b := New()
	require.NoError(t, a.ApplyDeposit(obj(t, 0, 100, 1, 'A')))
	require.NoError(t, b.ApplyDeposit(obj(t, 0, 100, 1, 'A')))
	assert.True(t, a.Equal(b))

	require.NoError(t, b.ApplyDeposit(obj(t, 100, 200, 1, 'A')))
	assert.False(t, a.Equal(b))
}
