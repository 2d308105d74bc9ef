package task

import (
	"fmt"
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2026-03-15T12:00:00.000Z", true},
		{"2026-03-15T12:00:00Z", true},
		{"2026-03-15T12:00:00+02:00", true},
		{"", false},
		{"yesterday", false},
		{"2026-03-15", false},
	}
	for _, c := range cases {
		if _, ok := ParseTime(c.in); ok != c.ok {
			t.Errorf("ParseTime(%q) ok = %v, want %v", c.in, ok, c.ok)
		}
	}
}

func TestFormatTimeRoundTrip(t *testing.T) {
	in := time.Date(2026, 3, 15, 9, 30, 0, 250_000_000, time.FixedZone("CET", 3600))
	out := FormatTime(in)
	if out != "2026-03-15T08:30:00.250Z" {
		t.Errorf("FormatTime = %q", out)
	}
	parsed, ok := ParseTime(out)
	if !ok || !parsed.Equal(in) {
		t.Errorf("round trip lost the instant: %v vs %v", parsed, in)
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := Empty()
	orig.Tasks = []Task{{ID: "a", Title: "one", Tags: []string{"x"}, CreatedAt: "2026-01-01T00:00:00.000Z", UpdatedAt: "2026-01-01T00:00:00.000Z"}}
	orig.Settings.SyncPreferences = map[string]bool{GroupAppearance: true}

	clone := orig.Clone()
	clone.Tasks[0].Title = "changed"
	clone.Tasks[0].Tags[0] = "y"
	clone.Settings.SyncPreferences[GroupAppearance] = false

	if orig.Tasks[0].Title != "one" || orig.Tasks[0].Tags[0] != "x" {
		t.Error("clone shares task memory with the original")
	}
	if !orig.Settings.SyncPreferences[GroupAppearance] {
		t.Error("clone shares settings maps with the original")
	}
}

func TestValidate(t *testing.T) {
	good := Empty()
	good.Tasks = []Task{{ID: "a", Title: "fine", CreatedAt: "2026-01-01T00:00:00.000Z", UpdatedAt: "2026-01-02T00:00:00.000Z"}}
	if err := good.Validate(); err != nil {
		t.Errorf("valid snapshot rejected: %v", err)
	}

	noID := Empty()
	noID.Tasks = []Task{{UpdatedAt: "2026-01-01T00:00:00.000Z"}}
	if err := noID.Validate(); err == nil {
		t.Error("missing id accepted")
	}

	badTime := Empty()
	badTime.Tasks = []Task{{ID: "a", UpdatedAt: "soon"}}
	if err := badTime.Validate(); err == nil {
		t.Error("unparseable updatedAt accepted")
	}

	reversed := Empty()
	reversed.Tasks = []Task{{ID: "a", CreatedAt: "2026-01-02T00:00:00.000Z", UpdatedAt: "2026-01-01T00:00:00.000Z"}}
	if err := reversed.Validate(); err == nil {
		t.Error("updatedAt before createdAt accepted")
	}
}

func TestCheckShape(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"full snapshot", `{"tasks":[],"projects":[],"settings":{}}`, true},
		{"missing collections", `{"settings":{}}`, true},
		{"tasks not an array", `{"tasks":{"a":1}}`, false},
		{"not an object", `[1,2,3]`, false},
		{"not json", `<html>`, false},
	}
	for _, c := range cases {
		err := CheckShape([]byte(c.raw))
		if (err == nil) != c.ok {
			t.Errorf("%s: CheckShape err = %v, want ok=%v", c.name, err, c.ok)
		}
	}
}

func TestSanitizeForRemote(t *testing.T) {
	d := Empty()
	d.Settings = Settings{
		Theme:                "dark",
		Language:             "de",
		NotificationsEnabled: true,
		AI:                   &AISettings{Enabled: true, Provider: "openai", APIKey: "sk-secret"},
		SyncPreferences: map[string]bool{
			GroupAppearance: true,
			GroupAI:         true,
			// language group not shared
		},
		LastSyncError: "password hunter2 leaked",
	}

	out := d.SanitizeForRemote()

	if out.Settings.Theme != "dark" {
		t.Error("shared appearance group was stripped")
	}
	if out.Settings.Language != "" {
		t.Error("unshared language group leaked")
	}
	if out.Settings.AI == nil || out.Settings.AI.APIKey != "" {
		t.Errorf("api key leaked: %+v", out.Settings.AI)
	}
	if out.Settings.LastSyncError != "" || out.Settings.NotificationsEnabled {
		t.Error("device-local settings leaked")
	}
	// The original must be untouched.
	if d.Settings.AI.APIKey != "sk-secret" {
		t.Error("sanitize mutated the source snapshot")
	}
}

func TestAppendHistory(t *testing.T) {
	var history []SyncHistoryEntry
	for i := 0; i < HistoryLimit+10; i++ {
		history = AppendHistory(history, SyncHistoryEntry{
			At:     fmt.Sprintf("2026-01-01T00:00:%02d.000Z", i%60),
			Status: SyncStatusSuccess,
		}, HistoryLimit)
	}
	if len(history) != HistoryLimit {
		t.Errorf("history length = %d, want %d", len(history), HistoryLimit)
	}

	latest := SyncHistoryEntry{At: "2026-02-01T00:00:00.000Z", Status: SyncStatusError}
	history = AppendHistory(history, latest, HistoryLimit)
	if history[0].At != latest.At {
		t.Error("newest entry is not first")
	}

	withJunk := []SyncHistoryEntry{{At: ""}, {At: "2026-01-01T00:00:00.000Z", Status: SyncStatusSuccess}}
	out := AppendHistory(withJunk, latest, HistoryLimit)
	if len(out) != 2 {
		t.Errorf("malformed entry survived: %+v", out)
	}
}

func TestFilterDeleted(t *testing.T) {
	tasks := []Task{
		{ID: "a"},
		{ID: "b", DeletedAt: "2026-01-01T00:00:00.000Z"},
	}
	out := FilterDeleted(tasks)
	if len(out) != 1 || out[0].ID != "a" {
		t.Errorf("FilterDeleted = %+v", out)
	}
}
