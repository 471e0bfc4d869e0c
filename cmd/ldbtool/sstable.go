// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkrump/ldb/internal/base"
	"github.com/mkrump/ldb/sstable"
)

func newSSTableCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sstable",
		Short: "sstable introspection tools",
	}
	root.AddCommand(&cobra.Command{
		Use:   "dump <file>...",
		Short: "print a table's size, filter presence and entries",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSSTableDump,
	})
	return root
}

func runSSTableDump(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, arg := range args {
		if err := dumpOneTable(out, arg); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", arg, err)
		}
	}
	return nil
}

func dumpOneTable(out interface{ Write([]byte) (int, error) }, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return err
	}
	r, err := sstable.NewReader(f, stat.Size(), sstable.ReaderOptions{
		Compare:         base.DefaultCompare,
		VerifyChecksums: true,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n", name)
	return r.Dump(out)
}
