package merge

import (
	"github.com/mindwtr/mindwtr/internal/task"
)

// Settings merge differs from entity merge: settings are single-valued, not a
// collection, so they are resolved group-by-group with last-write-wins per
// sync group (appearance, language, externalCalendars, ai). Device-local keys
// (notification toggles, retention, the sync status surface itself) always
// come from the local side; a remote snapshot never overrides what this
// device keeps private.
func mergeSettings(local, incoming task.Settings) task.Settings {
	merged := local

	updatedAt := map[string]string{}
	for k, v := range local.SyncPreferencesUpdatedAt {
		updatedAt[k] = v
	}
	for k, v := range incoming.SyncPreferencesUpdatedAt {
		if existing, ok := updatedAt[k]; !ok || incomingNewer(existing, v) {
			updatedAt[k] = v
		}
	}

	// The preference flags themselves are versioned under "preferences".
	if incomingNewer(local.SyncPreferencesUpdatedAt[task.GroupPreferences],
		incoming.SyncPreferencesUpdatedAt[task.GroupPreferences]) {
		merged.SyncPreferences = incoming.SyncPreferences
	}

	if groupIncomingWins(local, incoming, task.GroupAppearance) {
		merged.Theme = pickString(incoming.Theme, local.Theme, supportedThemes)
		merged.KeybindingStyle = pickString(incoming.KeybindingStyle, local.KeybindingStyle, supportedKeybindings)
	}
	if groupIncomingWins(local, incoming, task.GroupLanguage) {
		merged.Language = incoming.Language
		merged.WeekStart = pickString(incoming.WeekStart, local.WeekStart, supportedWeekStarts)
		merged.DateFormat = incoming.DateFormat
	}
	if groupIncomingWins(local, incoming, task.GroupExternalCalendars) {
		merged.ExternalCalendars = sanitizeCalendars(incoming.ExternalCalendars, local.ExternalCalendars)
	}
	if groupIncomingWins(local, incoming, task.GroupAI) {
		merged.AI = mergeAISettings(incoming.AI, local.AI)
	}

	if len(updatedAt) > 0 {
		merged.SyncPreferencesUpdatedAt = updatedAt
	}
	return merged
}

var supportedThemes = []string{"light", "dark", "system", "eink", "nord", "sepia", "oled"}
var supportedKeybindings = []string{"vim", "emacs"}
var supportedWeekStarts = []string{"monday", "sunday"}

func groupIncomingWins(local, incoming task.Settings, group string) bool {
	return incomingNewer(local.SyncPreferencesUpdatedAt[group], incoming.SyncPreferencesUpdatedAt[group])
}

// incomingNewer reports whether the incoming timestamp beats the local one.
// A missing or unparseable incoming timestamp never wins; a missing local one
// always loses to a valid incoming one.
func incomingNewer(localAt, incomingAt string) bool {
	incomingTime, ok := task.ParseTime(incomingAt)
	if !ok {
		return false
	}
	localTime, ok := task.ParseTime(localAt)
	if !ok {
		return true
	}
	return incomingTime.After(localTime)
}

// pickString accepts an incoming enum value only when it is recognized,
// falling back to the local value otherwise. Unknown values from newer app
// versions must not corrupt this device's settings.
func pickString(incoming, local string, supported []string) string {
	if incoming == "" {
		return incoming
	}
	for _, s := range supported {
		if incoming == s {
			return incoming
		}
	}
	return local
}

func sanitizeCalendars(incoming, local []task.ExternalCalendar) []task.ExternalCalendar {
	out := make([]task.ExternalCalendar, 0, len(incoming))
	seen := map[string]bool{}
	for _, c := range incoming {
		if c.ID == "" || c.Name == "" || c.URL == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	if len(incoming) > 0 && len(out) == 0 {
		return local
	}
	return out
}

// mergeAISettings takes the incoming copilot settings but keeps the local
// API key: credentials are stripped before upload, so the incoming side
// never carries one worth keeping.
func mergeAISettings(incoming, local *task.AISettings) *task.AISettings {
	if incoming == nil {
		return local
	}
	next := *incoming
	if local != nil {
		next.APIKey = local.APIKey
	} else {
		next.APIKey = ""
	}
	return &next
}
