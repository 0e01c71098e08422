package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openvdir/vdirsync/internal/config"
	"github.com/openvdir/vdirsync/internal/version"
)

var logLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:     "vdirsync",
	Short:   "Change detection for vdir collections",
	Long:    "vdirsync tracks vdir collections (one item per file) using cheap mtime-based change tokens instead of content hashes.",
	Version: version.Detailed(),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			logLevel.Set(slog.LevelDebug)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "config file")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.AddCommand(tokenCmd, initCmd, scanCmd, watchCmd)
}

func main() {
	logLevel.Set(slog.LevelInfo)
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the effective config from file, env and flags, in
// ascending precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	if cmd.Flags().Changed("config") {
		path, _ := cmd.Flags().GetString("config")
		v.SetConfigFile(path)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(home, ".vdirsync"))
		v.AddConfigPath(filepath.Join(home, ".config", "vdirsync"))
		v.SetConfigName("config")
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config read %q: %w", v.ConfigFileUsed(), err)
		}
	}

	v.BindPFlag("collection", cmd.Flags().Lookup("collection"))
	v.BindPFlag("extension", cmd.Flags().Lookup("extension"))
	v.BindPFlag("journal_path", cmd.Flags().Lookup("journal"))

	v.SetEnvPrefix("VDIRSYNC")
	v.AutomaticEnv()

	cfg := &config.Config{
		Path:        v.ConfigFileUsed(),
		Collection:  v.GetString("collection"),
		Extension:   v.GetString("extension"),
		JournalPath: v.GetString("journal_path"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// addCollectionFlags attaches the flags loadConfig binds.
func addCollectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("collection", "C", "", "collection directory")
	cmd.Flags().StringP("extension", "x", "", "item file extension (e.g. .ics, .vcf)")
	cmd.Flags().String("journal", "", "journal database path")
}
