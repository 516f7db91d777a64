// Copyright 2017 The go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
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
	"fmt"

	"github.com/holiman/uint256"
)

// QuantityHex renders n the way a JSON-RPC "quantity" is rendered: 0x-prefixed,
// no leading zeros (0 itself renders as "0x0"). Used for balance and nonce in
// the prestate dump (spec.md section 6).
func QuantityHex(n *uint256.Int) string {
	if n == nil || n.IsZero() {
		return "0x0"
	}
	return "0x" + n.Hex()[2:]
}

// Uint64QuantityHex renders a uint64 the same way as QuantityHex.
func Uint64QuantityHex(n uint64) string {
	return fmt.Sprintf("0x%x", n)
}

// Padded32Hex renders n as a 0x-prefixed, 64-nibble (32-byte) zero-padded hex
// string, matching the storage-key/value encoding the original reth prestate
// dumper used (geth_alloc_compat in original_source/bin/reth/src/prestate/mod.rs):
// format!("0x{:0>64x}", n).
func Padded32Hex(n *uint256.Int) string {
	var b [32]byte
	if n != nil {
		n.WriteToArray32(&b)
	}
	return "0x" + bytesToHex(b[:])
}

// HashPadded32Hex renders an H256 the same way as Padded32Hex, for storage
// keys (which are hashes, not necessarily small integers).
func HashPadded32Hex(h Hash) string {
	return "0x" + bytesToHex(h[:])
}

const hexDigits = "0123456789abcdef"

func bytesToHex(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
