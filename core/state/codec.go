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

package state

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/erigontech/erigon-postchain/common"
	"github.com/erigontech/erigon-postchain/core/types/accounts"
)

// encodeTransitionKey encodes a global transition id as the big-endian
// AccountChangeSet key.
func encodeTransitionKey(id common.TransitionId) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

func decodeTransitionKey(b []byte) (common.TransitionId, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: transition key must be 8 bytes, got %d", common.ErrCorruption, len(b))
	}
	return common.TransitionId(binary.BigEndian.Uint64(b)), nil
}

// encodeTransitionAddressKey encodes the composite StorageChangeSet key
// (global transition id, address).
func encodeTransitionAddressKey(id common.TransitionId, address common.Address) []byte {
	out := make([]byte, 8+common.AddressLength)
	binary.BigEndian.PutUint64(out[:8], uint64(id))
	copy(out[8:], address[:])
	return out
}

func decodeTransitionAddressKey(b []byte) (common.TransitionId, common.Address, error) {
	if len(b) != 8+common.AddressLength {
		return 0, common.Address{}, fmt.Errorf("%w: transition-address key must be %d bytes, got %d", common.ErrCorruption, 8+common.AddressLength, len(b))
	}
	id := common.TransitionId(binary.BigEndian.Uint64(b[:8]))
	return id, common.BytesToAddress(b[8:]), nil
}

// encodeAccountBeforeTx encodes the AccountChangeSet dup-value: the address
// (the dup-sort subkey) followed by the optional pre-change account. info
// == nil means the account did not exist before this transition (it was
// AccountCreated).
func encodeAccountBeforeTx(address common.Address, info *accounts.Account) []byte {
	out := make([]byte, common.AddressLength, common.AddressLength+64)
	copy(out, address[:])
	if info != nil {
		out = append(out, info.EncodeForStorage()...)
	}
	return out
}

func decodeAccountBeforeTx(enc []byte) (address common.Address, info *accounts.Account, err error) {
	if len(enc) < common.AddressLength {
		return address, nil, fmt.Errorf("%w: account-before-tx value too short", common.ErrCorruption)
	}
	copy(address[:], enc[:common.AddressLength])
	if len(enc) == common.AddressLength {
		return address, nil, nil
	}
	info, err = accounts.DecodeAccountForStorage(enc[common.AddressLength:])
	return address, info, err
}

// encodeStorageEntry encodes a {key, value} pair the way PlainStorageState
// and StorageChangeSet store it: the storage key (the dup-sort subkey) as a
// 32-byte hash, followed by the 32-byte big-endian value.
func encodeStorageEntry(slot uint256.Int, value uint256.Int) []byte {
	out := make([]byte, 64)
	slot.WriteToArray32((*[32]byte)(out[:32]))
	value.WriteToArray32((*[32]byte)(out[32:]))
	return out
}

func decodeStorageEntry(enc []byte) (slot, value uint256.Int, err error) {
	if len(enc) != 64 {
		return slot, value, fmt.Errorf("%w: storage entry must be 64 bytes, got %d", common.ErrCorruption, len(enc))
	}
	slot.SetBytes(enc[:32])
	value.SetBytes(enc[32:])
	return slot, value, nil
}

// storageEntrySubkey encodes slot as the 32-byte storage-key subkey that
// leads every encoded storage entry, for seek_by_key_subkey-style lookups.
func storageEntrySubkey(slot uint256.Int) []byte {
	var b [32]byte
	slot.WriteToArray32(&b)
	return b[:]
}

// Exported wrappers around this file's key/value codecs, for readers living
// outside this package (cmd/prestate's block-range changeset scan) that need
// to decode AccountChangeSet/StorageChangeSet entries directly rather than
// through HistoricalStateProvider's single-address point lookups.

// EncodeTransitionKey encodes a global transition id as an AccountChangeSet key.
func EncodeTransitionKey(id common.TransitionId) []byte { return encodeTransitionKey(id) }

// DecodeTransitionKey is the inverse of EncodeTransitionKey.
func DecodeTransitionKey(b []byte) (common.TransitionId, error) { return decodeTransitionKey(b) }

// EncodeTransitionAddressKey encodes the composite StorageChangeSet key.
func EncodeTransitionAddressKey(id common.TransitionId, address common.Address) []byte {
	return encodeTransitionAddressKey(id, address)
}

// DecodeTransitionAddressKey is the inverse of EncodeTransitionAddressKey.
func DecodeTransitionAddressKey(b []byte) (common.TransitionId, common.Address, error) {
	return decodeTransitionAddressKey(b)
}

// DecodeAccountBeforeTx decodes an AccountChangeSet dup-value into its
// address subkey and optional pre-change account.
func DecodeAccountBeforeTx(enc []byte) (common.Address, *accounts.Account, error) {
	return decodeAccountBeforeTx(enc)
}

// DecodeStorageEntry decodes a PlainStorageState/StorageChangeSet dup-value
// into its slot and value.
func DecodeStorageEntry(enc []byte) (slot, value uint256.Int, err error) {
	return decodeStorageEntry(enc)
}
