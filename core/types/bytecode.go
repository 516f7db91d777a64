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

package types

import "github.com/golang/snappy"

// Bytecode is an opaque, immutable byte sequence addressed by its hash
// (spec.md section 3). It is kept in plain (uncompressed) form in memory;
// the Bytecodes table stores it snappy-compressed, matching erigon's own
// convention for the Code table (SPEC_FULL.md section 3).
type Bytecode []byte

// CompressForStorage returns the snappy-encoded form written to the
// Bytecodes table.
func CompressForStorage(code Bytecode) []byte {
	return snappy.Encode(nil, code)
}

// DecompressFromStorage is the inverse of CompressForStorage.
func DecompressFromStorage(enc []byte) (Bytecode, error) {
	dec, err := snappy.Decode(nil, enc)
	if err != nil {
		return nil, err
	}
	return Bytecode(dec), nil
}
