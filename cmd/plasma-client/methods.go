package main

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nikeshnazareth/plasma-core/chainstore"
	"github.com/nikeshnazareth/plasma-core/rpc"
	"github.com/nikeshnazareth/plasma-core/synccursor"
)

// GetBlockHeaderParams is the decoded params for pg_getBlockHeader.
type GetBlockHeaderParams struct {
	Block *big.Int
}

// GetExitsParams is the decoded params for pg_getExits.
type GetExitsParams struct {
	Owner common.Address
}

// buildMethodTable wires the "pg_" method table to the store-backed reads
// that are available without a concrete AnchorClient/OperatorClient —
// those transports are deployment-resolved plug-ins (ethProvider,
// operatorProvider) this process does not construct. Balance, transaction,
// and exit-submission methods that need a running chainservice.Service are
// left for the provider that assembles one.
func buildMethodTable(chainDB *chainstore.Store, cursorDB *synccursor.Store) rpc.MethodTable {
	ctx := context.Background()

	return rpc.MethodTable{
		Prefix: "pg_",
		Methods: map[string]rpc.Callable{
			"getCurrentBlock": func(_ interface{}) (interface{}, error) {
				return chainDB.GetLatestBlock(ctx)
			},
			"getBlockHeader": func(params interface{}) (interface{}, error) {
				p, ok := params.(*GetBlockHeaderParams)
				if !ok || p.Block == nil {
					return nil, rpc.ErrInvalidParams
				}
				root, found, err := chainDB.GetBlockHeader(ctx, p.Block)
				if err != nil {
					return nil, err
				}
				if !found {
					return nil, nil
				}
				return root, nil
			},
			"getExits": func(params interface{}) (interface{}, error) {
				p, ok := params.(*GetExitsParams)
				if !ok {
					return nil, rpc.ErrInvalidParams
				}
				return chainDB.GetExits(ctx, p.Owner)
			},
			"getLastSyncedBlock": func(_ interface{}) (interface{}, error) {
				return cursorDB.GetLastSyncedBlock(ctx)
			},
		},
	}
}
