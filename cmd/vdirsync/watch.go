package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openvdir/vdirsync/internal/scan"
	"github.com/openvdir/vdirsync/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream change events for the collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		w, err := watch.New(cfg.Collection)
		if err != nil {
			return err
		}

		ignore := scan.NewIgnoreList(cfg.Collection)
		ignore.Load()
		w.FilterPaths(func(path string) bool {
			rel, err := filepath.Rel(cfg.Collection, path)
			if err != nil {
				return false
			}
			return ignore.ShouldIgnore(filepath.ToSlash(rel))
		})

		if err := w.Start(cmd.Context()); err != nil {
			return err
		}
		defer w.Stop()

		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case ev, ok := <-w.Events():
				if !ok {
					return nil
				}
				rel, err := filepath.Rel(cfg.Collection, ev.Path)
				if err != nil || strings.HasPrefix(rel, "..") {
					continue
				}
				rel = filepath.ToSlash(rel)
				if ev.ETag == "" {
					fmt.Printf("%-10s %s\n", removedTag("removed"), rel)
					continue
				}
				fmt.Printf("%-10s %s\t%s\n", changedTag("changed"), rel, ev.ETag)
			}
		}
	},
}

func init() {
	addCollectionFlags(watchCmd)
}
