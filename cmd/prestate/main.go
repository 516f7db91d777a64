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

// Command prestate dumps the pre-transaction state accessed by a single
// transaction: every account (and storage slot) touched by the transactions
// preceding it in its block, as of the instant immediately before it runs
// (spec.md section 6). It reads already-persisted changesets; it never
// replays the EVM.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/erigontech/erigon-postchain/common"
	"github.com/erigontech/erigon-postchain/kv/mdbxkv"
)

var (
	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "path to the chaindata directory",
		Value: defaultDataDir(),
	}
	jsonLogsFlag = &cli.BoolFlag{
		Name:  "json-logs",
		Usage: "emit logs as production JSON instead of the human-readable development encoder",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "prestate"
	app.Usage = "dump the pre-transaction state a transaction reads"
	app.ArgsUsage = "<block> <tx_hash>"
	app.Flags = []cli.Flag{dbFlag, jsonLogsFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "prestate:", err)
		os.Exit(1)
	}
}

func newLogger(jsonLogs bool) (*zap.Logger, error) {
	if jsonLogs {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return errors.Errorf("expected exactly 2 arguments, <block> <tx_hash>, got %d", c.Args().Len())
	}

	blockArg := c.Args().Get(0)
	blockNum, err := strconv.ParseUint(blockArg, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "parsing block number %q", blockArg)
	}

	txHashArg := c.Args().Get(1)
	txHash, err := common.HexToHash(txHashArg)
	if err != nil {
		return errors.Wrapf(err, "parsing transaction hash %q", txHashArg)
	}

	log, err := newLogger(c.Bool(jsonLogsFlag.Name))
	if err != nil {
		return errors.Wrap(err, "constructing logger")
	}
	defer log.Sync() //nolint:errcheck

	dataDir := c.String(dbFlag.Name)
	lock, err := lockDataDir(dataDir)
	if err != nil {
		return err
	}
	defer lock.Unlock() //nolint:errcheck

	db, err := mdbxkv.Open(dataDir, log)
	if err != nil {
		return errors.Wrapf(err, "opening database at %s", dataDir)
	}
	defer db.Close()

	ctx := context.Background()
	tx, err := db.BeginRo(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning read-only transaction")
	}
	defer tx.Rollback()

	prestate, err := DumpPrestate(tx, common.BlockNumber(blockNum), txHash, log)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(prestate)
}
