// Copyright 2021 The Erigon Authors
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

package kv

// Table names, per spec.md section 6. Naming and the dupsort documentation
// style follow erigon-lib/kv/tables.go.
const (
	// CanonicalHeaders: block_num_u64 -> header hash
	CanonicalHeaders = "CanonicalHeaders"

	// HeaderNumbers: header hash -> block_num_u64
	HeaderNumbers = "HeaderNumbers"

	// Headers: block_num_u64 + hash -> header (RLP)
	Headers = "Headers"

	// BlockBodies: block_num_u64 + hash -> stored block body
	BlockBodies = "BlockBodies"

	// CumulativeTxCount: block_num_u64 + hash -> tx number at which the block's
	// transactions begin
	CumulativeTxCount = "CumulativeTxCount"

	// Transactions: tx number -> RLP-encoded signed transaction (canonical only)
	Transactions = "Transactions"

	// Receipts: tx number -> Receipt (canonical only). Deliberately split
	// from Logs (SPEC_FULL.md section 4; spec.md section 9 Open Questions).
	Receipts = "Receipts"

	// Logs: tx number -> []Log (canonical only)
	Logs = "Logs"

	// PlainAccountState: address -> account, encoded for storage
	PlainAccountState = "PlainAccountState"

	// PlainStorageState (dup-sort, subkey = storage key): address ->
	// StorageEntry{key, value}. A zero value is never materialized; writing
	// zero means delete (spec.md section 3).
	PlainStorageState = "PlainStorageState"

	// Bytecodes: code hash -> snappy-compressed bytecode
	Bytecodes = "Bytecodes"

	// AccountChangeSet (dup-sort, subkey = address): transition id ->
	// {address, info: pre-change account or absent if the account did not
	// exist before the transition}.
	AccountChangeSet = "AccountChangeSet"

	// StorageChangeSet (dup-sort, subkey = storage key): (transition id,
	// address) -> StorageEntry{key, value}, the pre-change value.
	StorageChangeSet = "StorageChangeSet"

	// AccountHistory: address + shard id -> RoaringBitmap-encoded sorted list
	// of transitions at which the address changed, sharded at ~2KB
	// (core/state/historyindex.go).
	AccountHistory = "AccountHistory"

	// StorageHistory: address + storage key + shard id -> RoaringBitmap-encoded
	// sorted list of transitions at which the slot changed.
	StorageHistory = "StorageHistory"

	// TxSenders: tx number -> sender address
	TxSenders = "TxSenders"

	// TxTransitions: tx_number -> transition id assigned to that transaction's
	// own execution (the transition FinishTransition closed immediately after
	// the transaction's changes were folded into the journal). A companion to
	// CumulativeTxCount: where that table maps a block to where its
	// transactions begin, this one maps a transaction to where its own
	// changes landed in the global transition sequence, which is what
	// cmd/prestate needs to anchor a historical read without replaying any
	// EVM execution (SPEC_FULL.md section 4).
	TxTransitions = "TxTransitions"

	// SyncStage: stage id -> highest synced block number for that stage
	SyncStage = "SyncStage"

	// Config: arbitrary config key -> config value
	Config = "Config"
)

// TableFlags mirrors erigon-lib/kv's table configuration flags; only
// DupSort is meaningful to this fragment's cursor contract.
type TableFlags uint

const (
	Default TableFlags = 0x00
	DupSort TableFlags = 0x04
)

// TableCfgItem describes one table's physical layout.
type TableCfgItem struct {
	Flags TableFlags
}

// ChaindataTablesCfg lists every table this fragment knows about, along
// with its dup-sort configuration. A store implementation (kv/memdb,
// kv/mdbxkv) uses this to decide which tables need dup-sort support.
var ChaindataTablesCfg = map[string]TableCfgItem{
	CanonicalHeaders:  {Flags: Default},
	HeaderNumbers:     {Flags: Default},
	Headers:           {Flags: Default},
	BlockBodies:       {Flags: Default},
	CumulativeTxCount: {Flags: Default},
	Transactions:      {Flags: Default},
	Receipts:          {Flags: Default},
	Logs:              {Flags: Default},
	PlainAccountState: {Flags: Default},
	PlainStorageState: {Flags: DupSort},
	Bytecodes:         {Flags: Default},
	AccountChangeSet:  {Flags: DupSort},
	StorageChangeSet:  {Flags: DupSort},
	AccountHistory:    {Flags: Default},
	StorageHistory:    {Flags: Default},
	TxSenders:         {Flags: Default},
	TxTransitions:     {Flags: Default},
	SyncStage:         {Flags: Default},
	Config:            {Flags: Default},
}

// ChaindataTables is ChaindataTablesCfg's key set, in the order tables
// should be created in a fresh environment.
var ChaindataTables = []string{
	CanonicalHeaders,
	HeaderNumbers,
	Headers,
	BlockBodies,
	CumulativeTxCount,
	Transactions,
	Receipts,
	Logs,
	PlainAccountState,
	PlainStorageState,
	Bytecodes,
	AccountChangeSet,
	StorageChangeSet,
	AccountHistory,
	StorageHistory,
	TxSenders,
	TxTransitions,
	SyncStage,
	Config,
}
