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
	"encoding/binary"
	"encoding/hex"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/erigontech/erigon-postchain/common"
	"github.com/erigontech/erigon-postchain/core/state"
	"github.com/erigontech/erigon-postchain/kv"
)

// prestateAccount is one entry of the prestate dump, per spec.md section 6:
// balance/nonce as 0x-prefixed quantities, storage keys/values as 0x-prefixed
// 64-nibble hex, code omitted when empty.
type prestateAccount struct {
	Balance string            `json:"balance"`
	Nonce   string            `json:"nonce"`
	Storage map[string]string `json:"storage"`
	Code    string            `json:"code,omitempty"`
}

func encodeBlockNum(n common.BlockNumber) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	return b[:]
}

func encodeTxNumber(n common.TxNumber) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	return b[:]
}

func decodeTxNumber(b []byte) (common.TxNumber, error) {
	if len(b) != 8 {
		return 0, errors.Errorf("%v: tx number must be 8 bytes, got %d", common.ErrCorruption, len(b))
	}
	return common.TxNumber(binary.BigEndian.Uint64(b)), nil
}

func keccak256(b []byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return common.BytesToHash(h.Sum(nil))
}

// findTransactionNumber locates txHash among block's transactions, scanning
// the tx-number range [firstTx, nextBlockFirstTx) recorded by
// CumulativeTxCount. Transactions are opaque RLP blobs in this repository
// (RLP decoding is out of scope, spec.md section 1) — the lookup only needs
// their keccak256, never their fields.
func findTransactionNumber(tx kv.Tx, block common.BlockNumber, txHash common.Hash) (firstTx, target common.TxNumber, err error) {
	firstTx, err = blockFirstTxNumber(tx, block)
	if err != nil {
		return 0, 0, err
	}

	var end common.TxNumber
	nextFirstTx, err := blockFirstTxNumber(tx, block+1)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return 0, 0, err
	}
	if err == nil {
		end = nextFirstTx
	}

	cur, err := tx.Cursor(kv.Transactions)
	if err != nil {
		return 0, 0, errors.Wrap(err, "opening Transactions cursor")
	}
	defer cur.Close()

	for k, v, err := cur.Seek(encodeTxNumber(firstTx)); k != nil; k, v, err = cur.Next() {
		if err != nil {
			return 0, 0, errors.Wrap(err, "iterating Transactions")
		}
		n, decErr := decodeTxNumber(k)
		if decErr != nil {
			return 0, 0, decErr
		}
		if end != 0 && n >= end {
			break
		}
		if keccak256(v) == txHash {
			return firstTx, n, nil
		}
	}
	return 0, 0, errors.Wrapf(common.ErrNotFound, "transaction %s not found in block %d", txHash, block)
}

// blockFirstTxNumber returns the tx number at which block's transactions
// begin, via CanonicalHeaders (block -> hash) then CumulativeTxCount
// (block+hash -> tx number).
func blockFirstTxNumber(tx kv.Tx, block common.BlockNumber) (common.TxNumber, error) {
	hashBytes, err := tx.GetOne(kv.CanonicalHeaders, encodeBlockNum(block))
	if err != nil {
		return 0, errors.Wrapf(err, "reading CanonicalHeaders[%d]", block)
	}
	if hashBytes == nil {
		return 0, errors.Wrapf(common.ErrNotFound, "block %d has no canonical header", block)
	}

	key := append(append([]byte{}, encodeBlockNum(block)...), hashBytes...)
	v, err := tx.GetOne(kv.CumulativeTxCount, key)
	if err != nil {
		return 0, errors.Wrapf(err, "reading CumulativeTxCount[%d]", block)
	}
	if v == nil {
		return 0, errors.Wrapf(common.ErrNotFound, "block %d has no recorded tx count", block)
	}
	return decodeTxNumber(v)
}

// txTransition returns the global transition id assigned to txNumber's own
// execution.
func txTransition(tx kv.Tx, txNumber common.TxNumber) (common.TransitionId, error) {
	v, err := tx.GetOne(kv.TxTransitions, encodeTxNumber(txNumber))
	if err != nil {
		return 0, errors.Wrapf(err, "reading TxTransitions[%d]", txNumber)
	}
	if v == nil {
		return 0, errors.Wrapf(common.ErrNotFound, "no transition recorded for tx %d", txNumber)
	}
	if len(v) != 8 {
		return 0, errors.Wrapf(common.ErrCorruption, "TxTransitions[%d] malformed", txNumber)
	}
	return common.TransitionId(binary.BigEndian.Uint64(v)), nil
}

// touchedInRange scans AccountChangeSet and StorageChangeSet for every
// address (and, per address, every storage slot) that changed at a
// transition in [lo, hi) — the transitions contributed by the transactions
// preceding the target one in its block (spec.md section 6, "executes all
// preceding transactions"). No EVM replay is needed: those transactions
// already ran when the journal that produced this range was persisted: this
// is a direct read of their recorded effect, not a re-execution of it.
func touchedInRange(tx kv.Tx, lo, hi common.TransitionId) (accounts []common.Address, storage map[common.Address][]uint256.Int, err error) {
	storage = make(map[common.Address][]uint256.Int)
	seenAccount := make(map[common.Address]struct{})

	if hi > lo {
		acur, err := tx.Cursor(kv.AccountChangeSet)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening AccountChangeSet cursor")
		}
		defer acur.Close()

		for k, v, err := acur.Seek(state.EncodeTransitionKey(lo)); k != nil; k, v, err = acur.Next() {
			if err != nil {
				return nil, nil, errors.Wrap(err, "iterating AccountChangeSet")
			}
			id, decErr := state.DecodeTransitionKey(k)
			if decErr != nil {
				return nil, nil, decErr
			}
			if id >= hi {
				break
			}
			address, _, decErr := state.DecodeAccountBeforeTx(v)
			if decErr != nil {
				return nil, nil, decErr
			}
			if _, ok := seenAccount[address]; !ok {
				seenAccount[address] = struct{}{}
				accounts = append(accounts, address)
			}
		}

		scur, err := tx.Cursor(kv.StorageChangeSet)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening StorageChangeSet cursor")
		}
		defer scur.Close()

		var zero common.Address
		for k, v, err := scur.Seek(state.EncodeTransitionAddressKey(lo, zero)); k != nil; k, v, err = scur.Next() {
			if err != nil {
				return nil, nil, errors.Wrap(err, "iterating StorageChangeSet")
			}
			id, address, decErr := state.DecodeTransitionAddressKey(k)
			if decErr != nil {
				return nil, nil, decErr
			}
			if id >= hi {
				break
			}
			slot, _, decErr := state.DecodeStorageEntry(v)
			if decErr != nil {
				return nil, nil, decErr
			}
			if _, ok := seenAccount[address]; !ok {
				seenAccount[address] = struct{}{}
				accounts = append(accounts, address)
			}
			storage[address] = append(storage[address], slot)
		}
	}

	return accounts, storage, nil
}

// DumpPrestate implements the prestate command's core logic (spec.md section
// 6): resolve txHash to its position within block, then emit the state of
// every account (and storage slot) the preceding transactions in that block
// touched, read as of the instant immediately before the target transaction.
//
// Limitation: "touched" here means "recorded a changeset row", i.e. written.
// The original reth prestate dumper walks substate.accounts, the EVM's
// full read+write access set, but this repository has no EVM and persisted
// changesets never record pure reads. An account T1 reads but never writes
// is therefore silently absent from T2's dump; replaying T1 against the EVM
// is the only way to recover it, and the EVM executor is out of scope
// (spec.md section 1).
func DumpPrestate(tx kv.Tx, block common.BlockNumber, txHash common.Hash, log *zap.Logger) (map[string]prestateAccount, error) {
	if log == nil {
		log = zap.NewNop()
	}

	firstTx, targetTx, err := findTransactionNumber(tx, block, txHash)
	if err != nil {
		return nil, err
	}

	blockFirstTransition, err := txTransition(tx, firstTx)
	if err != nil {
		return nil, err
	}
	targetTransition, err := txTransition(tx, targetTx)
	if err != nil {
		return nil, err
	}

	addresses, storageSlots, err := touchedInRange(tx, blockFirstTransition, targetTransition)
	if err != nil {
		return nil, err
	}
	log.Debug("resolved prestate range",
		zap.Uint64("blockFirstTransition", uint64(blockFirstTransition)),
		zap.Uint64("targetTransition", uint64(targetTransition)),
		zap.Int("touchedAccounts", len(addresses)))

	provider, err := state.NewHistoricalStateProvider(tx, state.DefaultBytecodeCacheSize, log)
	if err != nil {
		return nil, err
	}

	out := make(map[string]prestateAccount, len(addresses))
	for _, address := range addresses {
		account, exists, err := provider.ReadAccount(address, targetTransition)
		if err != nil {
			return nil, errors.Wrapf(err, "reading account %s", address)
		}
		if !exists {
			continue
		}

		entry := prestateAccount{
			Balance: common.QuantityHex(account.Balance),
			Nonce:   common.Uint64QuantityHex(account.Nonce),
			Storage: make(map[string]string, len(storageSlots[address])),
		}

		for _, slot := range storageSlots[address] {
			value, _, err := provider.ReadStorage(address, slot, targetTransition)
			if err != nil {
				return nil, errors.Wrapf(err, "reading storage %s/%s", address, slot.Hex())
			}
			entry.Storage[common.Padded32Hex(&slot)] = common.Padded32Hex(&value)
		}

		if account.HasCode() {
			code, found, err := provider.ReadBytecode(account.CodeHash)
			if err != nil {
				return nil, errors.Wrapf(err, "reading bytecode for %s", address)
			}
			if found && len(code) > 0 {
				entry.Code = "0x" + hex.EncodeToString(code)
			}
		}

		out[address.String()] = entry
	}

	if len(out) != len(addresses) {
		log.Warn("some touched accounts no longer exist at target transition",
			zap.Int("touched", len(addresses)), zap.Int("emitted", len(out)))
	}

	return out, nil
}
