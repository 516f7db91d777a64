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

package main

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// appDirName is the directory component reserved for this program's data
// under whichever OS-specific base path defaultDataDir resolves.
const appDirName = "erigon-postchain"

// defaultDataDir resolves the OS-specific default data directory, matching
// the doc comment on Command in
// original_source/bin/reth/src/prestate/mod.rs:
//
//   - Linux:   $XDG_DATA_HOME/erigon-postchain or $HOME/.local/share/erigon-postchain
//   - Windows: %APPDATA%/erigon-postchain
//   - macOS:   $HOME/Library/Application Support/erigon-postchain
//
// Falls back to "./erigon-postchain" if no base directory can be determined.
func defaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appDirName)
		}
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", appDirName)
		}
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appDirName)
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "share", appDirName)
		}
	}
	return "." + string(os.PathSeparator) + appDirName
}

// lockDataDir creates dir if needed and takes an advisory file lock on it,
// the same guard erigon places on its own datadir, so two prestate
// invocations (or a prestate run against a datadir a live node also has
// open for writing) cannot corrupt each other's mdbx environment. The
// returned flock must be released (Unlock) by the caller on exit.
func lockDataDir(dir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating data directory %s", dir)
	}

	lock := flock.New(filepath.Join(dir, "LOCK"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "locking data directory %s", dir)
	}
	if !locked {
		return nil, errors.Errorf("data directory %s is locked by another process", dir)
	}
	return lock, nil
}
