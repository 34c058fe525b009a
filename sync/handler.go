// Package sync lifts raw anchor events into domain events (Deposit,
// BlockSubmitted, ExitStarted, ExitFinalized) and drives the separate
// transaction-import loop that pulls proofs from the operator. Domain
// events fan out locally through one event.Feed per kind.
package sync

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nikeshnazareth/plasma-core/types"
)

var log = logrus.WithField("prefix", "sync")

// Raw anchor event names the Handler knows how to lift.
const (
	EventDeposit       = "Deposit"
	EventBlockSubmitted = "BlockSubmitted"
	EventExitStarted    = "ExitStarted"
	EventExitFinalized  = "ExitFinalized"
)

// DomainEvent wraps a lifted event with its identity hash, used for
// logging and for downstream de-duplication alongside the raw anchor
// event identity SyncCursorStore already tracks.
type DomainEvent struct {
	Name   string
	Hash   common.Hash
	Raw    *types.AnchorEvent
}

func domainHash(name string, raw *types.AnchorEvent) common.Hash {
	return crypto.Keccak256Hash([]byte(name), raw.ID().Bytes())
}

// Handler lifts raw AnchorEvents into typed domain events and fans them
// out to local subscribers. Its Handle method takes the event name as well
// as the batch, so registering it with an eventwatcher takes one closure
// per raw event name that supplies that name.
type Handler struct {
	depositFeed       event.Feed
	blockFeed         event.Feed
	exitStartedFeed   event.Feed
	exitFinalizedFeed event.Feed
}

// NewHandler builds an empty Handler.
func NewHandler() *Handler { return &Handler{} }

// DepositEvent is emitted once per lifted Deposit anchor event.
type DepositEvent struct {
	DomainEvent
	State *types.StateObject
}

// BlockSubmittedEvent is emitted once per lifted BlockSubmitted anchor
// event.
type BlockSubmittedEvent struct {
	DomainEvent
	Commitment *types.BlockCommitment
}

// ExitStartedEvent is emitted once per lifted ExitStarted anchor event.
type ExitStartedEvent struct {
	DomainEvent
	Exit *types.Exit
}

// ExitFinalizedEvent is emitted once per lifted ExitFinalized anchor
// event; only the exit's identity tuple is known from the anchor log.
type ExitFinalizedEvent struct {
	DomainEvent
	Token, Start, End *big.Int
}

// SubscribeDeposits registers ch on the deposit feed.
func (h *Handler) SubscribeDeposits(ch chan<- *DepositEvent) event.Subscription {
	return h.depositFeed.Subscribe(ch)
}

// SubscribeBlocks registers ch on the block-submission feed.
func (h *Handler) SubscribeBlocks(ch chan<- *BlockSubmittedEvent) event.Subscription {
	return h.blockFeed.Subscribe(ch)
}

// SubscribeExitStarted registers ch on the exit-started feed.
func (h *Handler) SubscribeExitStarted(ch chan<- *ExitStartedEvent) event.Subscription {
	return h.exitStartedFeed.Subscribe(ch)
}

// SubscribeExitFinalized registers ch on the exit-finalized feed.
func (h *Handler) SubscribeExitFinalized(ch chan<- *ExitFinalizedEvent) event.Subscription {
	return h.exitFinalizedFeed.Subscribe(ch)
}

// Handle lifts a batch of raw anchor events of a single name and fans out
// the results. Wrapped in a closure that fixes name, it serves as an
// eventwatcher.Listener: errors for individual malformed events are logged
// and skipped, never returned, since eventwatcher listeners cannot fail the
// batch.
func (h *Handler) Handle(name string, events []*types.AnchorEvent) {
	for _, raw := range events {
		if err := h.handleOne(name, raw); err != nil {
			log.WithError(err).WithField("event", name).Warn("dropping malformed anchor event")
		}
	}
}

func (h *Handler) handleOne(name string, raw *types.AnchorEvent) error {
	base := DomainEvent{Name: name, Hash: domainHash(name, raw), Raw: raw}
	switch name {
	case EventDeposit:
		state, err := depositFromEvent(raw)
		if err != nil {
			return err
		}
		h.depositFeed.Send(&DepositEvent{DomainEvent: base, State: state})
	case EventBlockSubmitted:
		commitment, err := blockFromEvent(raw)
		if err != nil {
			return err
		}
		h.blockFeed.Send(&BlockSubmittedEvent{DomainEvent: base, Commitment: commitment})
	case EventExitStarted:
		exit, err := exitFromEvent(raw)
		if err != nil {
			return err
		}
		h.exitStartedFeed.Send(&ExitStartedEvent{DomainEvent: base, Exit: exit})
	case EventExitFinalized:
		token, start, end, err := exitIdentityFromEvent(raw)
		if err != nil {
			return err
		}
		h.exitFinalizedFeed.Send(&ExitFinalizedEvent{DomainEvent: base, Token: token, Start: start, End: end})
	default:
		return errors.Errorf("unknown anchor event name %q", name)
	}
	return nil
}

func returnBigInt(values map[string]interface{}, key string) (*big.Int, error) {
	v, ok := values[key]
	if !ok {
		return nil, errors.Errorf("return value %q missing", key)
	}
	switch n := v.(type) {
	case *big.Int:
		return n, nil
	case int64:
		return big.NewInt(n), nil
	default:
		return nil, errors.Errorf("return value %q has unsupported type %T", key, v)
	}
}

func returnAddress(values map[string]interface{}, key string) (common.Address, error) {
	v, ok := values[key]
	if !ok {
		return common.Address{}, errors.Errorf("return value %q missing", key)
	}
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, errors.Errorf("return value %q has unsupported type %T", key, v)
	}
	return addr, nil
}

func returnBytes(values map[string]interface{}, key string) ([]byte, error) {
	v, ok := values[key]
	if !ok {
		return nil, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, errors.Errorf("return value %q has unsupported type %T", key, v)
	}
	return b, nil
}

func returnHash(values map[string]interface{}, key string) (common.Hash, error) {
	v, ok := values[key]
	if !ok {
		return common.Hash{}, errors.Errorf("return value %q missing", key)
	}
	h, ok := v.(common.Hash)
	if !ok {
		return common.Hash{}, errors.Errorf("return value %q has unsupported type %T", key, v)
	}
	return h, nil
}

func depositFromEvent(raw *types.AnchorEvent) (*types.StateObject, error) {
	token, err := returnBigInt(raw.ReturnValues, "token")
	if err != nil {
		return nil, err
	}
	start, err := returnBigInt(raw.ReturnValues, "start")
	if err != nil {
		return nil, err
	}
	end, err := returnBigInt(raw.ReturnValues, "end")
	if err != nil {
		return nil, err
	}
	owner, err := returnAddress(raw.ReturnValues, "owner")
	if err != nil {
		return nil, err
	}
	predicate, err := returnAddress(raw.ReturnValues, "predicate")
	if err != nil {
		predicate = common.Address{}
	}
	extra, _ := returnBytes(raw.ReturnValues, "extra")

	global := types.JoinTypedValue(token, start)
	globalEnd := types.JoinTypedValue(token, end)
	return types.NewStateObject(global, globalEnd, raw.BlockNumber, predicate, types.EncodeOwnerState(owner, extra))
}

func blockFromEvent(raw *types.AnchorEvent) (*types.BlockCommitment, error) {
	number, err := returnBigInt(raw.ReturnValues, "blockNumber")
	if err != nil {
		return nil, err
	}
	root, err := returnHash(raw.ReturnValues, "rootHash")
	if err != nil {
		return nil, err
	}
	return &types.BlockCommitment{Number: number, RootHash: root}, nil
}

func exitFromEvent(raw *types.AnchorEvent) (*types.Exit, error) {
	id, err := returnBigInt(raw.ReturnValues, "exitId")
	if err != nil {
		return nil, err
	}
	owner, err := returnAddress(raw.ReturnValues, "owner")
	if err != nil {
		return nil, err
	}
	token, err := returnBigInt(raw.ReturnValues, "token")
	if err != nil {
		return nil, err
	}
	start, err := returnBigInt(raw.ReturnValues, "start")
	if err != nil {
		return nil, err
	}
	end, err := returnBigInt(raw.ReturnValues, "end")
	if err != nil {
		return nil, err
	}
	return &types.Exit{ID: id, Owner: owner, Token: token, Start: start, End: end, Block: raw.BlockNumber}, nil
}

func exitIdentityFromEvent(raw *types.AnchorEvent) (token, start, end *big.Int, err error) {
	token, err = returnBigInt(raw.ReturnValues, "token")
	if err != nil {
		return nil, nil, nil, err
	}
	start, err = returnBigInt(raw.ReturnValues, "start")
	if err != nil {
		return nil, nil, nil, err
	}
	end, err = returnBigInt(raw.ReturnValues, "end")
	if err != nil {
		return nil, nil, nil, err
	}
	return token, start, end, nil
}
