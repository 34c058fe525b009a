package sync

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikeshnazareth/plasma-core/types"
)

func bi(v int64) *big.Int { return big.NewInt(v) }

func TestHandle_Deposit_FansOutToSubscribers(t *testing.T) {
	h := NewHandler()
	ch := make(chan *DepositEvent, 1)
	sub := h.SubscribeDeposits(ch)
	defer sub.Unsubscribe()

	owner := common.Address{5}
	raw := &types.AnchorEvent{
		Name:            EventDeposit,
		BlockNumber:     bi(1),
		LogIndex:        bi(0),
		TransactionHash: common.HexToHash("0xaa"),
		ReturnValues: map[string]interface{}{
			"token": bi(0), "start": bi(0), "end": bi(100), "owner": owner,
		},
	}

	h.Handle(EventDeposit, []*types.AnchorEvent{raw})

	select {
	case ev := <-ch:
		gotOwner, _ := types.DecodeOwnerState(ev.State.State)
		assert.Equal(t, owner, gotOwner)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for deposit event")
	}
}

func TestHandle_MalformedEvent_DroppedNotPanicked(t *testing.T) {
	h := NewHandler()
	ch := make(chan *DepositEvent, 1)
	sub := h.SubscribeDeposits(ch)
	defer sub.Unsubscribe()

	raw := &types.AnchorEvent{
		Name:            EventDeposit,
		BlockNumber:     bi(1),
		LogIndex:        bi(0),
		TransactionHash: common.HexToHash("0xaa"),
		ReturnValues:    map[string]interface{}{},
	}

	require.NotPanics(t, func() { h.Handle(EventDeposit, []*types.AnchorEvent{raw}) })

	select {
	case <-ch:
		t.Fatal("malformed event should not have been delivered")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandle_ExitStarted(t *testing.T) {
	h := NewHandler()
	ch := make(chan *ExitStartedEvent, 1)
	sub := h.SubscribeExitStarted(ch)
	defer sub.Unsubscribe()

	owner := common.Address{7}
	raw := &types.AnchorEvent{
		Name:            EventExitStarted,
		BlockNumber:     bi(4),
		LogIndex:        bi(0),
		TransactionHash: common.HexToHash("0xbb"),
		ReturnValues: map[string]interface{}{
			"exitId": bi(9), "owner": owner, "token": bi(0), "start": bi(0), "end": bi(50),
		},
	}

	h.Handle(EventExitStarted, []*types.AnchorEvent{raw})

	select {
	case ev := <-ch:
		assert.Equal(t, owner, ev.Exit.Owner)
		assert.Equal(t, 0, ev.Exit.ID.Cmp(bi(9)))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for exit-started event")
	}
}
