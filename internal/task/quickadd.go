package task

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// QuickAddResult is a parsed quick-capture line.
type QuickAddResult struct {
	Task Task
	// ProjectTitle is set when the line referenced a project by +Title that
	// could not be resolved against the provided project list.
	ProjectTitle string
}

var statusKeywords = map[string]string{
	"inbox":   StatusInbox,
	"next":    StatusNext,
	"waiting": StatusWaiting,
	"someday": StatusSomeday,
	"done":    StatusDone,
}

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseQuickAdd turns a capture line like
//
//	"Call mom @phone #family +Errands /next /due:tomorrow 5pm /note:ask about trip"
//
// into a new Task. Tokens: @context, #tag, +ProjectTitle, /status, /due:<when>,
// /note:<text>. Everything else becomes the title. The new task gets a fresh
// uuid and createdAt/updatedAt set to now.
func ParseQuickAdd(line string, projects []Project, now time.Time) QuickAddResult {
	t := Task{
		ID:        uuid.NewString(),
		Status:    StatusInbox,
		CreatedAt: FormatTime(now),
		UpdatedAt: FormatTime(now),
	}
	result := QuickAddResult{}

	// /note: swallows the rest of the line.
	if idx := strings.Index(line, "/note:"); idx >= 0 {
		t.Description = strings.TrimSpace(line[idx+len("/note:"):])
		line = line[:idx]
	}

	if idx := strings.Index(line, "/due:"); idx >= 0 {
		rest := line[idx+len("/due:"):]
		// The due expression runs until the next slash token or end of line.
		end := len(rest)
		if slash := strings.Index(rest, " /"); slash >= 0 {
			end = slash
		}
		expr := strings.TrimSpace(rest[:end])
		if r, err := dateParser.Parse(expr, now); err == nil && r != nil {
			t.DueDate = FormatTime(r.Time)
		}
		line = line[:idx] + rest[end:]
	}

	var titleParts []string
	for _, word := range strings.Fields(line) {
		switch {
		case strings.HasPrefix(word, "@") && len(word) > 1:
			t.Contexts = append(t.Contexts, word)
		case strings.HasPrefix(word, "#") && len(word) > 1:
			t.Tags = append(t.Tags, word)
		case strings.HasPrefix(word, "+") && len(word) > 1:
			title := word[1:]
			if id := findProjectByTitle(projects, title); id != "" {
				t.ProjectID = id
			} else {
				result.ProjectTitle = title
			}
		case strings.HasPrefix(word, "/") && len(word) > 1:
			if status, ok := statusKeywords[strings.ToLower(word[1:])]; ok {
				t.Status = status
			}
		default:
			titleParts = append(titleParts, word)
		}
	}
	t.Title = strings.Join(titleParts, " ")

	result.Task = t
	return result
}

func findProjectByTitle(projects []Project, title string) string {
	for _, p := range projects {
		if p.DeletedAt == "" && strings.EqualFold(p.Title, title) {
			return p.ID
		}
	}
	return ""
}
