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

import "github.com/erigontech/erigon-postchain/common"

// Log is a single event emitted by a contract during execution.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Receipt is the tiny, node-operations shape of a transaction's execution
// result: enough to answer "did it succeed" and "how much gas" without
// paying to store every log. Per spec.md's Open Question in section 9, this
// is deliberately split from Logs rather than sharing one record shape —
// the original sketch's Receipts/Logs split was a placeholder, not intent.
type Receipt struct {
	Success           bool
	CumulativeGasUsed uint64
	Bloom             [256]byte
	LogCount          uint32
}

// LogRecord is what the Logs table stores per transaction: the full set of
// logs, kept separate from Receipt so that light/pruned nodes can retain
// receipts without the (much larger) log payloads.
type LogRecord struct {
	Logs []Log
}
