package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/annul"
)

func newFetchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url> <dest>",
		Short: "Archive a source package (.dsc) or a single file by URL",
		Long: `Archive a source package or a single file by URL.

A URL ending in .dsc is read as a Debian source package manifest; every file
it lists is fetched next to it, verified and archived. Any other URL is
archived as a single file. Each file becomes <dest>/<name>.annul; files whose
container already exists are skipped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arch, err := a.archiver()
			if err != nil {
				return err
			}
			results, err := arch.Archive(cmd.Context(), args[0], args[1])
			printResults(cmd.OutOrStdout(), results)
			return a.finish(err)
		},
	}
}

func newFileCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "file <path> <dest>",
		Short: "Archive a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arch, err := a.archiver()
			if err != nil {
				return err
			}
			res, err := arch.ArchiveFile(cmd.Context(), args[0], args[1])
			printResults(cmd.OutOrStdout(), []*annul.FileResult{res})
			return a.finish(err)
		},
	}
}

// printResults writes one line per file followed by a summary.
func printResults(w io.Writer, results []*annul.FileResult) {
	var published, skipped, failed int
	var total uint64
	for _, r := range results {
		if r == nil {
			continue
		}
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(w, "failed     %s: %v\n", r.Name, r.Err)
		case r.Skipped:
			skipped++
			fmt.Fprintf(w, "skipped    %s\n", r.Path)
		default:
			published++
			total += uint64(r.Size) //nolint:gosec // sizes are non-negative
			fmt.Fprintf(w, "published  %s  %s  %d frames  %s\n",
				r.Path, humanize.IBytes(uint64(r.Size)), r.Frames, r.Digest) //nolint:gosec // sizes are non-negative
		}
	}
	fmt.Fprintf(w, "%d published (%s), %d skipped, %d failed\n",
		published, humanize.IBytes(total), skipped, failed)
}
