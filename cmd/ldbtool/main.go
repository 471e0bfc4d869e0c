// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Command ldbtool inspects the on-disk files of an ldb database: sstables
// and write-ahead logs (§4.K). It is additive tooling around the engine, not
// a dependency of it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "ldbtool",
		Short: "Inspect ldb sstable and WAL files",
	}
	root.AddCommand(newSSTableCmd(), newWALCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
