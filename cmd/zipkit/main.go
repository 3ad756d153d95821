// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// zipkit is a small archiver over the library: create, list, extract,
// validate and prune zip files.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"zipkit/zip"
)

var (
	verbose bool
	level   int
	align   int64
	zip64   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "zipkit",
		Short: "Read and write zip archives",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debugging output")

	createCmd := &cobra.Command{
		Use:   "create ARCHIVE FILE...",
		Short: "Create an archive from files",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runCreate,
	}
	createCmd.Flags().IntVarP(&level, "level", "l", 6, "compression level, 0 stores")
	createCmd.Flags().Int64Var(&align, "align", 0, "align entry headers to this power of two")
	createCmd.Flags().BoolVar(&zip64, "zip64", false, "force ZIP64 records")

	listCmd := &cobra.Command{
		Use:   "list ARCHIVE [PATTERN]",
		Short: "List entries, optionally matching a glob",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runList,
	}

	extractCmd := &cobra.Command{
		Use:   "extract ARCHIVE [DIR]",
		Short: "Extract everything into a directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 1 {
				dir = args[1]
			}
			return zip.ExtractAll(args[0], dir)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate ARCHIVE",
		Short: "Check every entry's headers, sizes and CRCs",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete ARCHIVE PATTERN...",
		Short: "Remove matching entries, rewriting the archive in place",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := zip.DeleteEntries(args[0], args[1:]...)
			if err != nil {
				return err
			}
			fmt.Printf("%d entries removed\n", n)
			return nil
		},
	}

	rootCmd.AddCommand(createCmd, listCmd, extractCmd, validateCmd, deleteCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCreate(cmd *cobra.Command, args []string) error {
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	w := zip.NewWriterOptions(f, &zip.WriterOptions{
		Alignment:  align,
		ForceZip64: zip64,
	})
	for _, p := range args[1:] {
		name := strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "/")
		slog.Debug("adding", "name", name)
		if err := w.AddFile(name, p, &zip.AddOptions{Level: level}); err != nil {
			return err
		}
	}
	if err := w.Finalize(); err != nil {
		return err
	}
	return f.Close()
}

func runList(cmd *cobra.Command, args []string) error {
	z, err := zip.OpenReader(args[0])
	if err != nil {
		return err
	}
	defer z.Close()
	files := z.File
	if len(args) > 1 {
		files, err = z.Glob(args[1])
		if err != nil {
			return err
		}
	}
	const tfmt = "2006-01-02 15:04:05"
	for _, f := range files {
		fmt.Printf("%10d %10d %s %08x %s\n",
			f.UncompressedSize, f.CompressedSize,
			f.Modified.Format(tfmt), f.CRC32, f.Name)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	z, err := zip.OpenReader(args[0])
	if err != nil {
		return err
	}
	defer z.Close()
	bad := 0
	for _, f := range z.File {
		if err := f.Validate(0); err != nil {
			fmt.Printf("%s: %v\n", f.Name, err)
			bad++
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d entries failed validation", bad, len(z.File))
	}
	fmt.Printf("%d entries OK\n", len(z.File))
	return nil
}
