package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/annul"
	"github.com/meigma/annul/internal/iox"
)

func newInspectCommand(a *app) *cobra.Command {
	var data bool
	cmd := &cobra.Command{
		Use:   "inspect <container>",
		Short: "List the frames of a container",
		Long: `List the frames of a container in order: content tag, status, content
length and path, with nested archive boundaries shown as "//".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var opts []annul.ReadOption
			if dir := a.cfg.Compression.DictionaryDir; dir != "" {
				opts = append(opts, annul.ReadWithDictionaryDir(dir))
			}
			if data {
				return dumpContainer(cmd, out, args[0], opts)
			}

			res, err := annul.Inspect(cmd.Context(), args[0], func(h *annul.FrameHeader) error {
				printHeader(out, h)
				return nil
			}, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d frames, %s content\n", res.Frames, humanize.IBytes(res.ContentBytes))
			return nil
		},
	}
	cmd.Flags().BoolVar(&data, "data", false, "also print each frame's sanitized content")
	return cmd
}

func printHeader(w io.Writer, h *annul.FrameHeader) {
	fmt.Fprintf(w, "%-8s %-12s %10d %s\n", h.Content, h.Status, h.DataLen, h.DisplayPath())
}

// dumpContainer prints every header followed by the frame's content.
func dumpContainer(cmd *cobra.Command, w io.Writer, path string, opts []annul.ReadOption) error {
	c, err := annul.OpenContainer(path, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	buf := make([]byte, 32<<10)
	for {
		h, err := c.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		printHeader(w, h)
		if h.DataLen == 0 {
			continue
		}
		if _, err := iox.CopyWithContext(cmd.Context(), w, c, buf); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
}
