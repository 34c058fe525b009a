package main

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikeshnazareth/plasma-core/chainstore"
	"github.com/nikeshnazareth/plasma-core/rpc"
	"github.com/nikeshnazareth/plasma-core/synccursor"
)

func setupMethodTable(t *testing.T) rpc.MethodTable {
	chainDB, err := chainstore.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, chainDB.Close()) })

	cursorDB, err := synccursor.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, cursorDB.Close()) })

	return buildMethodTable(chainDB, cursorDB)
}

func TestBuildMethodTable_GetCurrentBlockDefaultsToZero(t *testing.T) {
	table := setupMethodTable(t)
	result, err := table.Methods["getCurrentBlock"](nil)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(0), result)
}

func TestBuildMethodTable_GetBlockHeaderRejectsMissingParams(t *testing.T) {
	table := setupMethodTable(t)
	_, err := table.Methods["getBlockHeader"](nil)
	assert.ErrorIs(t, err, rpc.ErrInvalidParams)
}

func TestBuildMethodTable_GetExitsReturnsEmptyForUnknownOwner(t *testing.T) {
	table := setupMethodTable(t)
	result, err := table.Methods["getExits"](&GetExitsParams{Owner: common.HexToAddress("0x01")})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestBuildMethodTable_GetLastSyncedBlockDefaultsToZero(t *testing.T) {
	table := setupMethodTable(t)
	result, err := table.Methods["getLastSyncedBlock"](nil)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(0), result)
}
