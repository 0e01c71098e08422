package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openvdir/vdirsync/internal/etag"
	"github.com/openvdir/vdirsync/internal/journal"
	"github.com/openvdir/vdirsync/internal/scan"
)

var (
	addedTag   = color.New(color.FgHiGreen).SprintFunc()
	changedTag = color.New(color.FgHiYellow).SprintFunc()
	removedTag = color.New(color.FgHiRed).SprintFunc()
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the collection and report changes against the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		update, _ := cmd.Flags().GetBool("update")
		cmd.SilenceUsage = true

		j := journal.New(cfg.JournalPath)
		if err := j.Open(); err != nil {
			return err
		}
		defer j.Close()

		records, err := j.All()
		if err != nil {
			return err
		}
		known := make(map[string]etag.ETag, len(records))
		for path, rec := range records {
			known[path] = rec.ETag
		}

		states, err := scan.NewScanner(cfg.Collection).Scan(cmd.Context())
		if err != nil {
			return err
		}

		diff := scan.DiffTokens(known, states)
		if diff.Empty() {
			fmt.Printf("%d items, no changes\n", len(states))
			return nil
		}

		for _, path := range diff.Added {
			printState(addedTag("added"), states[path])
		}
		for _, path := range diff.Changed {
			printState(changedTag("changed"), states[path])
		}
		for _, path := range diff.Removed {
			fmt.Printf("%-10s %s\n", removedTag("removed"), path)
		}

		if !update {
			return nil
		}
		for _, path := range append(diff.Added, diff.Changed...) {
			state := states[path]
			err := j.Set(&journal.Record{
				Path:         state.Path,
				Size:         state.Size,
				ETag:         state.ETag,
				LastModified: state.ModTime,
			})
			if err != nil {
				return err
			}
		}
		for _, path := range diff.Removed {
			if err := j.Delete(path); err != nil {
				return err
			}
		}
		fmt.Println("journal updated")
		return nil
	},
}

func printState(tag string, state *scan.FileState) {
	fmt.Printf("%-10s %s\t%s\t%s\t%s\n",
		tag, state.Path, state.ETag,
		humanize.Bytes(uint64(state.Size)),
		humanize.Time(state.ModTime))
}

func init() {
	addCollectionFlags(scanCmd)
	scanCmd.Flags().Bool("update", false, "persist the observed state to the journal")
}
