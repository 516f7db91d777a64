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

package accounts

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/erigon-postchain/common"
)

func TestAccount_EncodeDecodeRoundTrip(t *testing.T) {
	a := &Account{
		Balance:     uint256.NewInt(123456789),
		Nonce:       7,
		CodeHash:    common.BytesToHash([]byte("some-code")),
		Incarnation: 3,
	}
	enc := a.EncodeForStorage()
	got, err := DecodeAccountForStorage(enc)
	require.NoError(t, err)
	require.True(t, got.Equals(a))
	require.Equal(t, a.Incarnation, got.Incarnation)
}

func TestAccount_EncodeDecodeZeroFieldsElided(t *testing.T) {
	a := NewEmptyAccount()
	enc := a.EncodeForStorage()
	// nonce (0), balance (0), incarnation (0), code hash (0) each elide to a
	// single zero length byte: four bytes total, no value bytes.
	require.Equal(t, []byte{0, 0, 0, 0}, enc)

	got, err := DecodeAccountForStorage(enc)
	require.NoError(t, err)
	require.True(t, got.Equals(a))
}

func TestAccount_HasCode(t *testing.T) {
	a := NewEmptyAccount()
	require.False(t, a.HasCode())

	a.CodeHash = EmptyCodeHash
	require.False(t, a.HasCode())

	a.CodeHash = common.BytesToHash([]byte("nonempty"))
	require.True(t, a.HasCode())
}

func TestAccount_IsEmpty(t *testing.T) {
	a := NewEmptyAccount()
	require.True(t, a.IsEmpty())

	a.Nonce = 1
	require.False(t, a.IsEmpty())

	a = NewEmptyAccount()
	a.Balance = uint256.NewInt(1)
	require.False(t, a.IsEmpty())

	a = NewEmptyAccount()
	a.CodeHash = common.BytesToHash([]byte("code"))
	require.False(t, a.IsEmpty())
}

func TestAccount_Equals(t *testing.T) {
	var nilA, nilB *Account
	require.True(t, nilA.Equals(nilB))

	a := &Account{Balance: uint256.NewInt(1), Nonce: 1}
	require.False(t, a.Equals(nilB))

	b := &Account{Balance: uint256.NewInt(1), Nonce: 1}
	require.True(t, a.Equals(b))

	b.Nonce = 2
	require.False(t, a.Equals(b))
}

func TestAccount_Copy(t *testing.T) {
	a := &Account{Balance: uint256.NewInt(42), Nonce: 1}
	cp := a.Copy()
	require.True(t, a.Equals(cp))

	cp.Balance.SetUint64(100)
	require.False(t, a.Balance.Eq(cp.Balance), "Copy must deep-copy the mutable Balance pointer")
}
