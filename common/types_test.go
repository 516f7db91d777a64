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

package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHexToHash_RoundTrip(t *testing.T) {
	h, err := HexToHash("0x000000000000000000000000000000000000000000000000000000000000002a")
	require.NoError(t, err)
	require.Equal(t, "0x000000000000000000000000000000000000000000000000000000000000002a", h.String())
}

func TestHexToHash_BarePrefixAccepted(t *testing.T) {
	withPrefix, err := HexToHash("0xabcd")
	require.NoError(t, err)
	bare, err := HexToHash("abcd")
	require.NoError(t, err)
	require.Equal(t, withPrefix, bare)
}

func TestHexToHash_InvalidHexIsErrInvalidInput(t *testing.T) {
	_, err := HexToHash("0xzz")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidInput))
}

func TestHexToAddress_RoundTrip(t *testing.T) {
	a, err := HexToAddress("0x0000000000000000000000000000000000000001")
	require.NoError(t, err)
	require.Equal(t, "0x0000000000000000000000000000000000000001", a.String())
}

func TestBytesToAddress_TruncatesFromLeft(t *testing.T) {
	long := make([]byte, 25)
	for i := range long {
		long[i] = byte(i)
	}
	a := BytesToAddress(long)
	require.Equal(t, long[5:], a.Bytes())
}

func TestBytesToHash_RightAligns(t *testing.T) {
	h := BytesToHash([]byte{0x01, 0x02})
	require.Equal(t, byte(0x01), h[HashLength-2])
	require.Equal(t, byte(0x02), h[HashLength-1])
	for i := 0; i < HashLength-2; i++ {
		require.Zero(t, h[i])
	}
}

func TestCompareAddress_Ordering(t *testing.T) {
	a := BytesToAddress([]byte{0x01})
	b := BytesToAddress([]byte{0x02})
	require.Equal(t, -1, CompareAddress(a, b))
	require.Equal(t, 1, CompareAddress(b, a))
	require.Equal(t, 0, CompareAddress(a, a))
}

func TestCompareHash_Ordering(t *testing.T) {
	a := BytesToHash([]byte{0x01})
	b := BytesToHash([]byte{0x02})
	require.Equal(t, -1, CompareHash(a, b))
	require.Equal(t, 1, CompareHash(b, a))
	require.Equal(t, 0, CompareHash(a, a))
}

func TestTransitionId_String(t *testing.T) {
	require.Equal(t, "42", TransitionId(42).String())
}
