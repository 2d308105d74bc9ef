package merge

import (
	"testing"
	"time"

	"github.com/mindwtr/mindwtr/internal/task"
)

func TestSettingsGroupLWW(t *testing.T) {
	local := task.Settings{
		Theme: "light",
		SyncPreferencesUpdatedAt: map[string]string{
			task.GroupAppearance: at(-2 * time.Hour),
		},
	}
	incoming := task.Settings{
		Theme: "dark",
		SyncPreferencesUpdatedAt: map[string]string{
			task.GroupAppearance: at(-time.Hour),
		},
	}

	merged := mergeSettings(local, incoming)

	if merged.Theme != "dark" {
		t.Errorf("theme = %q, want the newer group to win", merged.Theme)
	}
	if got := merged.SyncPreferencesUpdatedAt[task.GroupAppearance]; got != at(-time.Hour) {
		t.Errorf("group timestamp = %s, want the newer one", got)
	}
}

func TestSettingsStaleGroupLoses(t *testing.T) {
	local := task.Settings{
		Language: "de",
		SyncPreferencesUpdatedAt: map[string]string{
			task.GroupLanguage: at(-time.Hour),
		},
	}
	incoming := task.Settings{
		Language: "fr",
		SyncPreferencesUpdatedAt: map[string]string{
			task.GroupLanguage: at(-2 * time.Hour),
		},
	}

	if merged := mergeSettings(local, incoming); merged.Language != "de" {
		t.Errorf("language = %q, stale incoming group must not win", merged.Language)
	}
}

func TestSettingsUnknownEnumRejected(t *testing.T) {
	local := task.Settings{
		Theme: "dark",
		SyncPreferencesUpdatedAt: map[string]string{
			task.GroupAppearance: at(-2 * time.Hour),
		},
	}
	incoming := task.Settings{
		Theme: "hologram", // from some future version
		SyncPreferencesUpdatedAt: map[string]string{
			task.GroupAppearance: at(-time.Hour),
		},
	}

	if merged := mergeSettings(local, incoming); merged.Theme != "dark" {
		t.Errorf("theme = %q, unknown value should fall back to local", merged.Theme)
	}
}

func TestSettingsAPIKeyStaysLocal(t *testing.T) {
	local := task.Settings{
		AI: &task.AISettings{Enabled: true, Provider: "openai", APIKey: "sk-local-secret"},
		SyncPreferencesUpdatedAt: map[string]string{
			task.GroupAI: at(-2 * time.Hour),
		},
	}
	incoming := task.Settings{
		AI: &task.AISettings{Enabled: true, Provider: "anthropic", APIKey: "sk-leaked"},
		SyncPreferencesUpdatedAt: map[string]string{
			task.GroupAI: at(-time.Hour),
		},
	}

	merged := mergeSettings(local, incoming)

	if merged.AI.Provider != "anthropic" {
		t.Errorf("provider = %q, newer group should win", merged.AI.Provider)
	}
	if merged.AI.APIKey != "sk-local-secret" {
		t.Errorf("apiKey = %q, must keep the local key", merged.AI.APIKey)
	}
}

func TestSettingsCalendarsSanitized(t *testing.T) {
	local := task.Settings{
		ExternalCalendars: []task.ExternalCalendar{
			{ID: "c1", Name: "Team", URL: "https://example.com/team.ics"},
		},
		SyncPreferencesUpdatedAt: map[string]string{
			task.GroupExternalCalendars: at(-2 * time.Hour),
		},
	}
	incoming := task.Settings{
		ExternalCalendars: []task.ExternalCalendar{
			{ID: "c2", Name: "Home", URL: "https://example.com/home.ics"},
			{ID: "c2", Name: "Home dup", URL: "https://example.com/home.ics"},
			{ID: "", Name: "broken", URL: "https://example.com/x.ics"},
		},
		SyncPreferencesUpdatedAt: map[string]string{
			task.GroupExternalCalendars: at(-time.Hour),
		},
	}

	merged := mergeSettings(local, incoming)

	if len(merged.ExternalCalendars) != 1 || merged.ExternalCalendars[0].ID != "c2" {
		t.Errorf("calendars = %+v, want the deduped valid incoming entry", merged.ExternalCalendars)
	}
}

func TestSettingsDeviceLocalKeysUntouched(t *testing.T) {
	local := task.Settings{
		NotificationsEnabled:   true,
		TombstoneRetentionDays: 30,
		LastSyncStatus:         task.SyncStatusSuccess,
	}
	incoming := task.Settings{
		NotificationsEnabled:   false,
		TombstoneRetentionDays: 365,
		LastSyncStatus:         task.SyncStatusError,
		SyncPreferencesUpdatedAt: map[string]string{
			task.GroupAppearance: at(-time.Minute),
		},
	}

	merged := mergeSettings(local, incoming)

	if !merged.NotificationsEnabled || merged.TombstoneRetentionDays != 30 {
		t.Errorf("device-local keys overridden: %+v", merged)
	}
	if merged.LastSyncStatus != task.SyncStatusSuccess {
		t.Errorf("sync status surface overridden: %q", merged.LastSyncStatus)
	}
}
