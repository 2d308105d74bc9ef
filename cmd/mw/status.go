package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mindwtr/mindwtr/internal/backend"
	"github.com/mindwtr/mindwtr/internal/task"
	"github.com/mindwtr/mindwtr/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show data file and sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		data := st.Get()

		liveProjects := 0
		for _, p := range data.Projects {
			if p.DeletedAt == "" {
				liveProjects++
			}
		}
		fmt.Println(ui.Title("Data"))
		fmt.Printf("  file: %s\n", ui.Faint(st.Path()))
		fmt.Printf("  %d tasks, %d projects, %d areas\n",
			len(task.FilterDeleted(data.Tasks)), liveProjects, len(data.Areas))

		fmt.Println(ui.Title("Sync"))
		be, err := backend.FromConfig(cfg, nil)
		switch {
		case err != nil:
			fmt.Printf("  backend: %s\n", ui.Error(err.Error()))
		case be == nil:
			fmt.Println("  backend: " + ui.Faint("off"))
		default:
			fmt.Printf("  backend: %s (%s)\n", ui.Accent(be.Kind()), ui.Faint(be.Description()))
		}

		s := data.Settings
		if s.LastSyncAt == "" {
			fmt.Println("  last sync: " + ui.Faint("never"))
			return nil
		}
		fmt.Printf("  last sync: %s %s\n", ui.StatusBadge(s.LastSyncStatus), ui.Faint(s.LastSyncAt))
		if s.LastSyncError != "" {
			fmt.Println("  error: " + ui.Error(s.LastSyncError))
		}
		if s.LastSyncStats != nil && s.LastSyncStats.TotalConflicts() > 0 {
			fmt.Printf("  conflicts last run: %d\n", s.LastSyncStats.TotalConflicts())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
