package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"docpipe/internal/config"
	"docpipe/internal/docstore"
	"docpipe/internal/sink"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStores opens the document store and the isolation sink for the duration
// of fn. Both live in shared SQLite databases, so commands can operate on them
// while the daemon holds its own connections.
func (c *commandContext) withStores(fn func(*config.Config, *docstore.Store, *sink.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := docstore.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	isolated, err := sink.Open(cfg)
	if err != nil {
		return err
	}
	defer isolated.Close()

	return fn(cfg, store, isolated)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
