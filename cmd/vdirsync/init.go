package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openvdir/vdirsync/internal/config"
	"github.com/openvdir/vdirsync/internal/vdir"
)

var initCmd = &cobra.Command{
	Use:   "init DIR",
	Short: "Create a collection directory and write the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ext, _ := cmd.Flags().GetString("extension")
		journal, _ := cmd.Flags().GetString("journal")
		configPath, _ := cmd.Flags().GetString("config")

		storage, err := vdir.NewStorage(args[0], ext, true)
		if err != nil {
			return err
		}

		cfg := &config.Config{
			Collection:  storage.Root(),
			Extension:   ext,
			JournalPath: journal,
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.Save(configPath); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		green := color.New(color.FgHiGreen).SprintFunc()
		fmt.Printf("%s collection %s\n", green("initialized"), storage.Root())
		fmt.Printf("config written to %s\n", configPath)
		return nil
	},
}

func init() {
	addCollectionFlags(initCmd)
}
