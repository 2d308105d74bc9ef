package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mindwtr/mindwtr/internal/task"
	"github.com/mindwtr/mindwtr/internal/ui"
)

var addCmd = &cobra.Command{
	Use:     "add <text>",
	GroupID: "tasks",
	Short:   "Add a task using quick-add syntax",
	Long: `Add a task. The text is parsed for quick-add tokens:

  @context        assign a context
  #tag            assign a tag
  +Project        file under a project (matched by title)
  /next /waiting  set the status
  /due:tomorrow   set a due date (natural language)
  /note:...       everything after becomes the description

Example:
  mw add "Call the landlord @phone #home +Apartment /due:friday"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}

		line := strings.Join(args, " ")
		var added task.Task
		err = st.Update(func(d *task.AppData) error {
			res := task.ParseQuickAdd(line, d.Projects, time.Now())
			if res.Task.Title == "" {
				return fmt.Errorf("no task title in %q", line)
			}
			added = res.Task
			d.Tasks = append(d.Tasks, res.Task)
			return nil
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s %s\n", ui.Success("Added"), added.Title)
		var detail []string
		if added.Status != task.StatusInbox {
			detail = append(detail, "status "+added.Status)
		}
		if added.ProjectID != "" {
			detail = append(detail, "project "+added.ProjectID)
		}
		if added.DueDate != "" {
			detail = append(detail, "due "+added.DueDate)
		}
		if len(detail) > 0 {
			fmt.Println("  " + ui.Faint(strings.Join(detail, ", ")))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
}
