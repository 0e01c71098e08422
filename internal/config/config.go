package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/openvdir/vdirsync/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".vdirsync", "config.json")
	DefaultJournalPath = filepath.Join(home, ".vdirsync", "journal.db")
)

type Config struct {
	Collection  string `json:"collection"`
	Extension   string `json:"extension"`
	JournalPath string `json:"journal_path"`
	Path        string `json:"-"`
}

func (c *Config) Validate() error {
	if c.Collection == "" {
		return errors.New("collection directory is required")
	}
	resolved, err := utils.ResolvePath(c.Collection)
	if err != nil {
		return err
	}
	c.Collection = resolved

	if c.JournalPath == "" {
		c.JournalPath = DefaultJournalPath
	}
	return nil
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.Path = path
	return &cfg, nil
}
