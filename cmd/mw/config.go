package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mindwtr/mindwtr/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change settings",
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		v := cfg.Get(args[0])
		if v == nil {
			return fmt.Errorf("unknown key %q", args[0])
		}
		fmt.Println(v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long: `Change one setting and save the config file. Common keys:

  sync.backend                   off | file | webdav | cloud
  sync.file_path                 snapshot path for the file backend
  sync.webdav.url                WebDAV base URL
  sync.cloud.url                 self-hosted server URL
  sync.cloud.provider            selfhosted | dropbox
  sync.tombstone_retention_days  how long deletions propagate
  daemon.interval                e.g. 15m
  dashboard_port                 WebSocket feed port`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("%s %s = %s\n", ui.Success("Set"), args[0], args[1])
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Println(cfg.Path())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
