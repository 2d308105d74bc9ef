// Package task defines the Mindwtr data model: the entities that make up an
// AppData snapshot, plus the merge statistics and sync history types that
// travel inside it.
//
// Timestamps are ISO-8601 strings on the wire (the snapshot is shared with
// non-Go clients); helpers parse them on demand. An entity with DeletedAt set
// is a tombstone: logically gone, but retained in its collection so deletions
// can be merged across devices instead of silently resurrected.
package task

import (
	"time"
)

// TaskStatus values mirror the GTD workflow buckets.
const (
	StatusInbox    = "inbox"
	StatusNext     = "next"
	StatusWaiting  = "waiting"
	StatusSomeday  = "someday"
	StatusDone     = "done"
	StatusArchived = "archived"
)

// ChecklistItem is a lightweight subtask inside a Task.
type ChecklistItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	IsCompleted bool   `json:"isCompleted"`
}

// Task is a single actionable item.
type Task struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Status      string          `json:"status"`
	Priority    string          `json:"priority,omitempty"`
	StartTime   string          `json:"startTime,omitempty"`
	DueDate     string          `json:"dueDate,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Contexts    []string        `json:"contexts,omitempty"`
	Checklist   []ChecklistItem `json:"checklist,omitempty"`
	Description string          `json:"description,omitempty"`
	ProjectID   string          `json:"projectId,omitempty"`
	SectionID   string          `json:"sectionId,omitempty"`
	CompletedAt string          `json:"completedAt,omitempty"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
	DeletedAt   string          `json:"deletedAt,omitempty"`
}

// Project groups tasks.
type Project struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	Color        string `json:"color,omitempty"`
	IsSequential bool   `json:"isSequential,omitempty"`
	SupportNotes string `json:"supportNotes,omitempty"`
	ReviewAt     string `json:"reviewAt,omitempty"`
	AreaID       string `json:"areaId,omitempty"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
	DeletedAt    string `json:"deletedAt,omitempty"`
}

// Section is a named slice of a project's task list.
type Section struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ProjectID string `json:"projectId,omitempty"`
	Order     int    `json:"order"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	DeletedAt string `json:"deletedAt,omitempty"`
}

// Area is a top-level grouping in the sidebar (e.g. Work, Home).
// Older snapshots may lack timestamps; the merge engine fills them in.
type Area struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Icon      string `json:"icon,omitempty"`
	Order     int    `json:"order"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	DeletedAt string `json:"deletedAt,omitempty"`
}

// ExternalCalendar is a read-only ICS subscription synced as part of settings.
type ExternalCalendar struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

// AISettings configure the optional copilot. The APIKey is device-local and
// must never be written to a remote backend.
type AISettings struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Provider string `json:"provider,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Settings sync group keys. Each group is merged as a unit using the matching
// SyncPreferencesUpdatedAt timestamp.
const (
	GroupAppearance        = "appearance"
	GroupLanguage          = "language"
	GroupExternalCalendars = "externalCalendars"
	GroupAI                = "ai"
	GroupPreferences       = "preferences"
)

// SyncGroups lists the settings groups that participate in sync.
var SyncGroups = []string{GroupAppearance, GroupLanguage, GroupExternalCalendars, GroupAI}

// Settings holds user preferences plus the sync status surface.
type Settings struct {
	Theme           string `json:"theme,omitempty"`
	KeybindingStyle string `json:"keybindingStyle,omitempty"`
	Language        string `json:"language,omitempty"`
	WeekStart       string `json:"weekStart,omitempty"`
	DateFormat      string `json:"dateFormat,omitempty"`

	NotificationsEnabled   bool `json:"notificationsEnabled,omitempty"`
	AutoArchiveDays        int  `json:"autoArchiveDays,omitempty"`
	TombstoneRetentionDays int  `json:"tombstoneRetentionDays,omitempty"`

	ExternalCalendars []ExternalCalendar `json:"externalCalendars,omitempty"`
	AI                *AISettings        `json:"ai,omitempty"`

	// SyncPreferences flags which groups this device shares; the updatedAt
	// map carries the last edit time per group for LWW resolution.
	SyncPreferences          map[string]bool   `json:"syncPreferences,omitempty"`
	SyncPreferencesUpdatedAt map[string]string `json:"syncPreferencesUpdatedAt,omitempty"`

	LastSyncAt      string             `json:"lastSyncAt,omitempty"`
	LastSyncStatus  string             `json:"lastSyncStatus,omitempty"`
	LastSyncError   string             `json:"lastSyncError,omitempty"`
	LastSyncStats   *MergeStats        `json:"lastSyncStats,omitempty"`
	LastSyncHistory []SyncHistoryEntry `json:"lastSyncHistory,omitempty"`
}

// AppData is the full serializable state exchanged with a backend.
// It is treated as one atomic document per sync cycle.
type AppData struct {
	Tasks    []Task    `json:"tasks"`
	Projects []Project `json:"projects"`
	Sections []Section `json:"sections"`
	Areas    []Area    `json:"areas"`
	Settings Settings  `json:"settings"`
}

// ParseTime parses an ISO-8601 timestamp. The second return is false for
// empty or malformed values.
func ParseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatTime renders a time in the canonical wire format.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
