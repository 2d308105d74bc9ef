package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mindwtr/mindwtr/internal/ui"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:     "history",
	GroupID: "sync",
	Short:   "Show recent sync attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}

		history := st.Get().Settings.LastSyncHistory
		if len(history) == 0 {
			fmt.Println(ui.Faint("No sync history yet."))
			return nil
		}
		if historyLimit > 0 && len(history) > historyLimit {
			history = history[:historyLimit]
		}
		for _, h := range history {
			line := fmt.Sprintf("%s  %s  %s", ui.Faint(h.At), ui.StatusBadge(h.Status), ui.Accent(h.Backend))
			if h.Conflicts > 0 {
				line += fmt.Sprintf("  %d conflicts", h.Conflicts)
			}
			if h.Error != "" {
				line += "  " + ui.Error(h.Error)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 5, "number of entries to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}
