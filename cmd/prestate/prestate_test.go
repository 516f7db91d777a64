// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/go-test/deep"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/erigon-postchain/common"
	"github.com/erigontech/erigon-postchain/core/state"
	"github.com/erigontech/erigon-postchain/core/types/accounts"
	"github.com/erigontech/erigon-postchain/kv"
	"github.com/erigontech/erigon-postchain/kv/memdb"
)

func putTransition(id common.TransitionId) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

func acc(balance, nonce uint64) *accounts.Account {
	return &accounts.Account{Balance: uint256.NewInt(balance), Nonce: nonce}
}

// TestDumpPrestate_Scenario (spec.md section 8, "prestate dump"): resolves a
// tx hash to its position within a block, then renders the state touched by
// the preceding transactions in that block, as of just before the target
// transaction.
func TestDumpPrestate_Scenario(t *testing.T) {
	db := memdb.New()
	ctx := context.Background()
	tx, err := db.BeginRw(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	block := common.BlockNumber(5)
	blockHash := common.BytesToHash([]byte("block-5-hash"))
	tx0 := []byte("raw-rlp-transaction-0")
	tx1 := []byte("raw-rlp-transaction-1")
	txHash := keccak256(tx1)

	require.NoError(t, tx.Put(kv.CanonicalHeaders, encodeBlockNum(block), blockHash.Bytes()))

	cumKey := append(append([]byte{}, encodeBlockNum(block)...), blockHash.Bytes()...)
	require.NoError(t, tx.Put(kv.CumulativeTxCount, cumKey, encodeTxNumber(0)))

	require.NoError(t, tx.Put(kv.Transactions, encodeTxNumber(0), tx0))
	require.NoError(t, tx.Put(kv.Transactions, encodeTxNumber(1), tx1))

	require.NoError(t, tx.Put(kv.TxTransitions, encodeTxNumber(0), putTransition(100)))
	require.NoError(t, tx.Put(kv.TxTransitions, encodeTxNumber(1), putTransition(101)))

	a := common.BytesToAddress([]byte{0xAA})

	first := state.New()
	first.CreateAccount(a, acc(10, 0))
	first.FinishTransition()
	require.NoError(t, state.WriteToDB(tx, first, 100, state.PersistConfig{}, nil))
	require.NoError(t, state.WriteHistoryIndex(tx, first, 100))

	second := state.New()
	second.ChangeAccount(a, acc(10, 0), acc(20, 1))
	second.FinishTransition()
	require.NoError(t, state.WriteToDB(tx, second, 101, state.PersistConfig{}, nil))
	require.NoError(t, state.WriteHistoryIndex(tx, second, 101))

	got, err := DumpPrestate(tx, block, txHash, nil)
	require.NoError(t, err)

	want := map[string]prestateAccount{
		a.String(): {
			Balance: "0xa",
			Nonce:   "0x0",
			Storage: map[string]string{},
		},
	}

	if diff := deep.Equal(got, want); diff != nil {
		t.Fatalf("prestate mismatch: %v", diff)
	}
}

func TestDumpPrestate_UnknownTxHash(t *testing.T) {
	db := memdb.New()
	ctx := context.Background()
	tx, err := db.BeginRw(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	block := common.BlockNumber(1)
	blockHash := common.BytesToHash([]byte("block-1-hash"))
	require.NoError(t, tx.Put(kv.CanonicalHeaders, encodeBlockNum(block), blockHash.Bytes()))
	cumKey := append(append([]byte{}, encodeBlockNum(block)...), blockHash.Bytes()...)
	require.NoError(t, tx.Put(kv.CumulativeTxCount, cumKey, encodeTxNumber(0)))
	require.NoError(t, tx.Put(kv.Transactions, encodeTxNumber(0), []byte("only-tx")))

	_, err = DumpPrestate(tx, block, common.BytesToHash([]byte("not-a-real-hash")), nil)
	require.Error(t, err)
	require.ErrorIs(t, err, common.ErrNotFound)
}
