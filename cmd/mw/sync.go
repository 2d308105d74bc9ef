package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mindwtr/mindwtr/internal/task"
	"github.com/mindwtr/mindwtr/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Sync the data file with the configured backend",
	Long: `Fetch the remote snapshot, merge it with local data, commit the
result locally, then push it back. Conflicts are resolved automatically
by last-write-wins; the losing side is reported, never silently lost
before the merge.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		sy, err := newSyncer(cfg, st, nil)
		if err != nil {
			return err
		}

		res := sy.Sync(cmd.Context())
		if res.Skipped {
			fmt.Println(ui.Faint("Sync is off. Enable a backend with: mw config set sync.backend <file|webdav|cloud>"))
			return nil
		}
		if res.Err != nil {
			return fmt.Errorf("sync failed: %w", res.Err)
		}

		fmt.Printf("%s via %s\n", ui.StatusBadge(res.Status), ui.Accent(res.Entry.Backend))
		if res.Status == task.SyncStatusConflict {
			fmt.Printf("  %d conflicts resolved", res.Entry.Conflicts)
			if len(res.Entry.ConflictIds) > 0 {
				fmt.Printf(" (%s)", ui.Faint(joinIDs(res.Entry.ConflictIds, 5)))
			}
			fmt.Println()
		}
		if res.Entry.TimestampAdjustments > 0 {
			fmt.Printf("  %d timestamps repaired, max clock skew %dms\n",
				res.Entry.TimestampAdjustments, res.Entry.MaxClockSkewMs)
		}
		if res.Entry.Details != "" {
			fmt.Println("  " + ui.Warn(res.Entry.Details))
		}
		return nil
	},
}

func joinIDs(ids []string, max int) string {
	if len(ids) <= max {
		out := ""
		for i, id := range ids {
			if i > 0 {
				out += ", "
			}
			out += id
		}
		return out
	}
	return joinIDs(ids[:max], max) + fmt.Sprintf(", +%d more", len(ids)-max)
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
