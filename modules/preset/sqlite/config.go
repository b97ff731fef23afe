package sqlite

import (
	"errors"
	"fmt"
)

// Config is the preset.sqlite section of tavern.yaml.
type Config struct {
	// Path of the database file. Empty means {DataDir}/presets.db; relative
	// paths resolve against the workspace.
	Path string `yaml:"path"`

	// WAL switches the journal to write-ahead logging. On unless set false.
	WAL *bool `yaml:"wal"`

	// BusyTimeout in milliseconds, 5000 when zero.
	BusyTimeout int `yaml:"busy_timeout"`

	// ImportDir is scanned once at provision time. Each *.json preset file
	// whose derived name is not stored yet gets imported.
	ImportDir string `yaml:"import_dir"`
}

const dbFile = "presets.db"

func (c *Config) defaults() {
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5000
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) validate() error {
	var errs []error
	if c.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("sqlite: busy_timeout %d is negative", c.BusyTimeout))
	}
	if c.ImportDir != "" && c.ImportDir == c.Path {
		errs = append(errs, errors.New("sqlite: import_dir must not be the database path"))
	}
	return errors.Join(errs...)
}
