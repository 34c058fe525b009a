package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Exit is a started withdrawal of a coin range. Completed is derived, not
// stored: block + challengePeriod < currentAnchorBlock. Finalized is a
// persisted mark set once the operator/anchor contract confirms payout.
type Exit struct {
	ID        *big.Int
	Owner     common.Address
	Token     *big.Int
	Start     *big.Int
	End       *big.Int
	Block     *big.Int
	Finalized bool
}

// Completed reports whether the challenge period for this exit has elapsed
// as of currentAnchorBlock, given challengePeriod blocks.
func (e *Exit) Completed(currentAnchorBlock, challengePeriod *big.Int) bool {
	deadline := new(big.Int).Add(e.Block, challengePeriod)
	return deadline.Cmp(currentAnchorBlock) < 0
}

// BlockCommitment is an anchor-chain-committed plasma block: once observed,
// immutable, and LatestBlock tracking must be monotone non-decreasing.
type BlockCommitment struct {
	Number   *big.Int
	RootHash common.Hash
}

// AnchorEvent is a single log entry observed on the anchor chain. Identity
// is keccak256(transactionHash ‖ logIndex).
type AnchorEvent struct {
	Name            string
	BlockNumber     *big.Int
	LogIndex        *big.Int
	TransactionHash common.Hash
	ReturnValues    map[string]interface{}
}
