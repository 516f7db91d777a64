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

// Package accounts holds the Account value type persisted in
// PlainAccountState and carried through the changeset model.
package accounts

import (
	"bytes"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/erigontech/erigon-postchain/common"
)

// EmptyCodeHash is the hash of an empty bytecode, used to tell "no code" from
// "a zero hash was explicitly assigned".
var EmptyCodeHash = common.Hash{0xc5, 0xd2, 0x46, 0x01, 0x86, 0xf7, 0x23, 0x3c, 0x92, 0x7e,
	0x7d, 0xb2, 0xdc, 0xc7, 0x03, 0xc0, 0xe5, 0x00, 0xb6, 0x53, 0xca, 0x82, 0x27, 0x3b,
	0x7b, 0xfa, 0xd8, 0x04, 0x5d, 0x85, 0xa4, 0x70}

// Account is the current state of one Ethereum account: balance, nonce, and
// a pointer to its bytecode by hash. Two accounts are equal iff balance,
// nonce and code hash compare equal (spec.md section 3, "Equality is
// component-wise").
//
// Incarnation counts how many times this account has been
// created-then-self-destructed at its address; it is not part of the
// equality the spec requires of Account proper (the spec's Account tuple is
// balance/nonce/bytecode_hash only) but erigon threads it alongside the
// account record to disambiguate storage across self-destructs, so it is
// carried here as an auxiliary field rather than reintroduced as a versioned
// key in PlainStorageState.
type Account struct {
	Balance     *uint256.Int
	Nonce       uint64
	CodeHash    common.Hash
	Incarnation uint64
}

// NewEmptyAccount returns a freshly created account: zero balance, zero
// nonce, no code.
func NewEmptyAccount() *Account {
	return &Account{Balance: new(uint256.Int)}
}

// HasCode reports whether the account references non-empty bytecode.
func (a *Account) HasCode() bool {
	return a.CodeHash != (common.Hash{}) && a.CodeHash != EmptyCodeHash
}

// IsEmpty reports whether the account is "empty" under EIP-161: zero
// balance, zero nonce, and no code. Used by the optional
// DeleteEmptyAccounts persistence toggle (SPEC_FULL.md section 4).
func (a *Account) IsEmpty() bool {
	return a.Nonce == 0 && (a.Balance == nil || a.Balance.IsZero()) && !a.HasCode()
}

// Equals reports component-wise equality, per spec.md section 3.
func (a *Account) Equals(b *Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	aBal, bBal := a.Balance, b.Balance
	if aBal == nil {
		aBal = new(uint256.Int)
	}
	if bBal == nil {
		bBal = new(uint256.Int)
	}
	return aBal.Eq(bBal) && a.Nonce == b.Nonce && a.CodeHash == b.CodeHash
}

// Copy returns a deep copy, since *uint256.Int is a mutable pointer field.
func (a *Account) Copy() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Balance != nil {
		cp.Balance = new(uint256.Int).Set(a.Balance)
	}
	return &cp
}

// EncodeForStorage serializes the account the way PlainAccountState stores
// it: a length-prefixed field set, mirroring erigon's compact "encoding for
// storage" that omits zero fields rather than writing fixed-width records.
// Field order: nonce, balance, incarnation, code hash — each preceded by one
// length byte (0 meaning "absent/zero").
func (a *Account) EncodeForStorage() []byte {
	var buf bytes.Buffer

	nonceBytes := trimBigEndian(uint64ToBytes(a.Nonce))
	buf.WriteByte(byte(len(nonceBytes)))
	buf.Write(nonceBytes)

	balBytes := []byte{}
	if a.Balance != nil && !a.Balance.IsZero() {
		balBytes = a.Balance.Bytes()
	}
	buf.WriteByte(byte(len(balBytes)))
	buf.Write(balBytes)

	incBytes := trimBigEndian(uint64ToBytes(a.Incarnation))
	buf.WriteByte(byte(len(incBytes)))
	buf.Write(incBytes)

	if a.HasCode() {
		buf.WriteByte(byte(common.HashLength))
		buf.Write(a.CodeHash[:])
	} else {
		buf.WriteByte(0)
	}

	return buf.Bytes()
}

// DecodeAccountForStorage is the inverse of EncodeForStorage.
func DecodeAccountForStorage(enc []byte) (*Account, error) {
	a := &Account{Balance: new(uint256.Int)}
	pos := 0

	readField := func() ([]byte, error) {
		if pos >= len(enc) {
			return nil, fmt.Errorf("account encoding truncated at field length")
		}
		n := int(enc[pos])
		pos++
		if pos+n > len(enc) {
			return nil, fmt.Errorf("account encoding truncated at field value")
		}
		v := enc[pos : pos+n]
		pos += n
		return v, nil
	}

	nonceBytes, err := readField()
	if err != nil {
		return nil, err
	}
	a.Nonce = bytesToUint64(nonceBytes)

	balBytes, err := readField()
	if err != nil {
		return nil, err
	}
	a.Balance.SetBytes(balBytes)

	incBytes, err := readField()
	if err != nil {
		return nil, err
	}
	a.Incarnation = bytesToUint64(incBytes)

	codeHashBytes, err := readField()
	if err != nil {
		return nil, err
	}
	if len(codeHashBytes) == common.HashLength {
		copy(a.CodeHash[:], codeHashBytes)
	}

	return a, nil
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func trimBigEndian(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}
