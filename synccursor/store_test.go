package synccursor

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nikeshnazareth/plasma-core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bi(v int64) *big.Int { return big.NewInt(v) }

func setupStore(t *testing.T) *Store {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestEventCursor_RoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	got, err := s.GetLastLoggedEventBlock(ctx, "Deposit")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(bi(0)))

	require.NoError(t, s.SetLastLoggedEventBlock(ctx, "Deposit", bi(42)))
	got, err = s.GetLastLoggedEventBlock(ctx, "Deposit")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(bi(42)))
}

func TestAddEvents_IdempotentAndSeenExactlyOnce(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	e := &types.AnchorEvent{BlockNumber: bi(1), LogIndex: bi(0), TransactionHash: common.HexToHash("0xaa")}

	seen, err := s.HasEvent(ctx, e)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.AddEvents(ctx, []*types.AnchorEvent{e}))
	require.NoError(t, s.AddEvents(ctx, []*types.AnchorEvent{e}))

	seen, err = s.HasEvent(ctx, e)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestLastSyncedBlock_RoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	got, err := s.GetLastSyncedBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(bi(0)))

	require.NoError(t, s.SetLastSyncedBlock(ctx, bi(99)))
	got, err = s.GetLastSyncedBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(bi(99)))
}

func TestFailedTransactions_RoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	empty, err := s.GetFailedTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	pending := []PendingTx{{Sender: common.Address{1}, Encoded: []byte{1, 2, 3}}}
	require.NoError(t, s.SetFailedTransactions(ctx, pending))

	got, err := s.GetFailedTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending[0].Sender, got[0].Sender)
}
