package main

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mindwtr/mindwtr/internal/backend"
	"github.com/mindwtr/mindwtr/internal/cache"
	"github.com/mindwtr/mindwtr/internal/config"
	"github.com/mindwtr/mindwtr/internal/store"
	"github.com/mindwtr/mindwtr/internal/syncer"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "mw",
	Short: "Mindwtr task manager",
	Long: `mw manages your tasks and projects from the terminal and keeps the
data file in sync across devices through a file folder, a WebDAV share,
a self-hosted server, or Dropbox.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"config directory (default ~/.config/mindwtr, or $MINDWTR_CONFIG_DIR)")
	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Task commands:"},
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
	)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.DataPath, nil)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	return st, nil
}

func newSyncer(cfg *config.Config, st *store.Store, logger *log.Logger) (*syncer.Syncer, error) {
	be, err := backend.FromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	return syncer.New(st, be, cfg, logger), nil
}

// openCache opens the query cache next to the data file and rebuilds it
// from the snapshot, so reads always reflect the latest state.
func openCache(cmd *cobra.Command, cfg *config.Config, st *store.Store) (*cache.Cache, error) {
	path := filepath.Join(filepath.Dir(cfg.DataPath), "cache.db")
	c, err := cache.Open(path)
	if err != nil {
		return nil, err
	}
	if err := c.Rebuild(cmd.Context(), st.Get()); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("rebuild cache: %w", err)
	}
	return c, nil
}
