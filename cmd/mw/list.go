package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mindwtr/mindwtr/internal/cache"
	"github.com/mindwtr/mindwtr/internal/ui"
)

var listFlags struct {
	status  string
	project string
	tag     string
	context string
	all     bool
	limit   int
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "tasks",
	Short:   "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		c, err := openCache(cmd, cfg, st)
		if err != nil {
			return err
		}
		defer c.Close()

		// +Title resolves to a project id the same way quick-add does.
		projectID := listFlags.project
		if projectID != "" {
			projects, err := c.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range projects {
				if p.Title == listFlags.project {
					projectID = p.ID
					break
				}
			}
		}

		tasks, err := c.ListTasks(cmd.Context(), cache.Filter{
			Status:         listFlags.status,
			ProjectID:      projectID,
			Tag:            listFlags.tag,
			Context:        listFlags.context,
			IncludeDeleted: listFlags.all,
			Limit:          listFlags.limit,
		})
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println(ui.Faint("No matching tasks."))
			return nil
		}
		for _, t := range tasks {
			line := fmt.Sprintf("%s %s", ui.Faint(shortID(t.ID)), t.Title)
			if t.Status != "" {
				line += "  " + ui.Accent("/"+t.Status)
			}
			if t.DueDate != "" {
				line += "  " + ui.Warn("due "+t.DueDate)
			}
			if t.DeletedAt != "" {
				line += "  " + ui.Error("(deleted)")
			}
			fmt.Println(line)
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	listCmd.Flags().StringVarP(&listFlags.status, "status", "s", "", "filter by status")
	listCmd.Flags().StringVarP(&listFlags.project, "project", "p", "", "filter by project title or id")
	listCmd.Flags().StringVarP(&listFlags.tag, "tag", "t", "", "filter by tag")
	listCmd.Flags().StringVarP(&listFlags.context, "context", "c", "", "filter by context")
	listCmd.Flags().BoolVarP(&listFlags.all, "all", "a", false, "include deleted tasks")
	listCmd.Flags().IntVarP(&listFlags.limit, "limit", "n", 0, "limit results (0 for all)")
	rootCmd.AddCommand(listCmd)
}
