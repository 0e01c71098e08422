package main

import (
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/openvdir/vdirsync/internal/etag"
	"github.com/openvdir/vdirsync/internal/utils"
)

var tokenCmd = &cobra.Command{
	Use:   "token PATH|GLOB...",
	Short: "Print the change token for one or more files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var paths []string
		for _, arg := range args {
			matches, err := doublestar.FilepathGlob(arg)
			if err != nil {
				return fmt.Errorf("bad pattern %q: %w", arg, err)
			}
			if len(matches) == 0 {
				// Not a pattern match; treat as a literal path so missing
				// files produce a proper stat error below.
				matches = []string{arg}
			}
			paths = append(paths, matches...)
		}

		cmd.SilenceUsage = true
		var failed bool
		for _, path := range utils.Uniq(paths) {
			tok, err := etag.FromPath(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				failed = true
				continue
			}
			fmt.Printf("%s\t%s\n", tok, path)
		}
		if failed {
			return fmt.Errorf("some paths could not be read")
		}
		return nil
	},
}
