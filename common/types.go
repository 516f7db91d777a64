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

// Package common holds the scalar types shared by the changeset model, the
// journal, the persistence protocol and the historical state provider.
package common

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the number of bytes in an Address.
const AddressLength = 20

// HashLength is the number of bytes in a Hash (aka H256).
const HashLength = 32

// Address is a 20-byte account identifier.
type Address [AddressLength]byte

// BytesToAddress right-aligns b into an Address, truncating from the left if
// b is longer than AddressLength.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func (a Address) Bytes() []byte { return a[:] }

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// Hash is a 32-byte hash (H256 in the spec's nomenclature).
type Hash [HashLength]byte

// BytesToHash right-aligns b into a Hash, truncating from the left if b is
// longer than HashLength.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// HexToHash parses a 0x-prefixed (or bare) hex string into a Hash. It is
// used by cmd/prestate to parse the <tx_hash> positional argument.
func HexToHash(s string) (Hash, error) {
	b, err := decodeHexArg(s)
	if err != nil {
		return Hash{}, err
	}
	return BytesToHash(b), nil
}

// HexToAddress parses a 0x-prefixed (or bare) hex string into an Address.
func HexToAddress(s string) (Address, error) {
	b, err := decodeHexArg(s)
	if err != nil {
		return Address{}, err
	}
	return BytesToAddress(b), nil
}

func decodeHexArg(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return b, nil
}

// TransitionId is a monotonic index identifying a transition (one executed
// transaction, or a block-level reward/withdrawal bundle) within a single
// PostState. It becomes a global id once offset by a persistence call's
// firstTransitionID.
type TransitionId uint64

// TxNumber is a monotonic, chain-global transaction sequence number.
type TxNumber uint64

// BlockNumber identifies a block by height.
type BlockNumber uint64

// CompareAddress orders two addresses lexicographically, matching the
// ordering MDBX uses for plain byte-string keys. Used wherever changes must
// be sorted by (TransitionId, Address) before being written to dup-sort
// tables (see core/state/persist.go).
func CompareAddress(a, b Address) int {
	for i := 0; i < AddressLength; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// CompareHash orders two hashes lexicographically.
func CompareHash(a, b Hash) int {
	for i := 0; i < HashLength; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (id TransitionId) String() string { return fmt.Sprintf("%d", uint64(id)) }
