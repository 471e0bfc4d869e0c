// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkrump/ldb"
	"github.com/mkrump/ldb/internal/record"
)

func newWALCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wal",
		Short: "WAL introspection tools",
	}
	root.AddCommand(&cobra.Command{
		Use:   "dump <file>...",
		Short: "print the contents of WAL files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runWALDump,
	})
	return root
}

func runWALDump(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, arg := range args {
		if err := dumpOneWAL(out, arg); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", arg, err)
		}
	}
	return nil
}

func dumpOneWAL(out io.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(out, "%s\n", name)
	rr := record.NewReader(f)
	for {
		data, err := rr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := ldb.DumpBatch(data, out); err != nil {
			fmt.Fprintf(out, "corrupt batch: %s\n", err)
		}
	}
}
