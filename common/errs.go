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

import "errors"

// Sentinel error kinds, per spec.md section 7. Wrap these with errors.Wrap
// (github.com/pkg/errors) at I/O boundaries and test with errors.Is.
var (
	// ErrNotFound covers missing blocks, transactions, or accounts.
	ErrNotFound = errors.New("not found")

	// ErrCorruption covers a malformed history shard or a change log missing
	// its paired wipe.
	ErrCorruption = errors.New("data corruption")

	// ErrInvalidInput covers an unrecoverable signer or a malformed CLI argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIO covers a database transaction or cursor failure not otherwise
	// classified. Callers roll back the enclosing transaction on this error.
	ErrIO = errors.New("database io error")
)
