package task

import (
	"encoding/json"
	"fmt"
)

// Empty returns a fresh AppData with all collections present but empty.
// This is the snapshot created at first launch, and the stand-in for a
// missing remote document.
func Empty() *AppData {
	return &AppData{
		Tasks:    []Task{},
		Projects: []Project{},
		Sections: []Section{},
		Areas:    []Area{},
	}
}

// Normalize replaces nil collections with empty slices so downstream code
// never has to distinguish "absent" from "empty". Operates in place and
// returns the receiver for chaining.
func (d *AppData) Normalize() *AppData {
	if d.Tasks == nil {
		d.Tasks = []Task{}
	}
	if d.Projects == nil {
		d.Projects = []Project{}
	}
	if d.Sections == nil {
		d.Sections = []Section{}
	}
	if d.Areas == nil {
		d.Areas = []Area{}
	}
	return d
}

// Clone returns a deep copy via JSON round-trip. The snapshot is JSON-shaped
// by definition, so this is both correct and cheap enough for the data sizes
// a single user produces.
func (d *AppData) Clone() *AppData {
	if d == nil {
		return Empty()
	}
	raw, err := json.Marshal(d)
	if err != nil {
		// AppData contains only marshalable fields; this cannot fail for a
		// value built through the public API.
		panic(fmt.Sprintf("task: clone marshal: %v", err))
	}
	var out AppData
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("task: clone unmarshal: %v", err))
	}
	return out.Normalize()
}

// Validate checks the invariants a merged snapshot must satisfy before it is
// committed anywhere: every entity has a non-empty id, a parseable updatedAt,
// and updatedAt >= createdAt. A snapshot that fails here must not be written.
func (d *AppData) Validate() error {
	for i, t := range d.Tasks {
		if err := validateEntity("tasks", i, t.ID, t.CreatedAt, t.UpdatedAt); err != nil {
			return err
		}
	}
	for i, p := range d.Projects {
		if err := validateEntity("projects", i, p.ID, p.CreatedAt, p.UpdatedAt); err != nil {
			return err
		}
	}
	for i, s := range d.Sections {
		if err := validateEntity("sections", i, s.ID, s.CreatedAt, s.UpdatedAt); err != nil {
			return err
		}
	}
	for i, a := range d.Areas {
		if a.ID == "" {
			return fmt.Errorf("areas[%d]: id is required", i)
		}
		if a.Name == "" {
			return fmt.Errorf("areas[%d]: name is required", i)
		}
		// Area timestamps are optional for backward compatibility with old
		// snapshots, but must parse when present.
		if a.UpdatedAt != "" {
			if _, ok := ParseTime(a.UpdatedAt); !ok {
				return fmt.Errorf("areas[%d] %s: invalid updatedAt %q", i, a.ID, a.UpdatedAt)
			}
		}
	}
	return nil
}

func validateEntity(label string, index int, id, createdAt, updatedAt string) error {
	if id == "" {
		return fmt.Errorf("%s[%d]: id is required", label, index)
	}
	updated, ok := ParseTime(updatedAt)
	if !ok {
		return fmt.Errorf("%s[%d] %s: invalid updatedAt %q", label, index, id, updatedAt)
	}
	if createdAt != "" {
		created, ok := ParseTime(createdAt)
		if !ok {
			return fmt.Errorf("%s[%d] %s: invalid createdAt %q", label, index, id, createdAt)
		}
		if updated.Before(created) {
			return fmt.Errorf("%s[%d] %s: updatedAt %q precedes createdAt %q", label, index, id, updatedAt, createdAt)
		}
	}
	return nil
}

// CheckShape verifies a decoded payload has the required collections before
// it is fed into a merge. Unlike Validate it tolerates entity-level noise;
// only a structurally unusable document fails.
func CheckShape(raw []byte) error {
	var probe struct {
		Tasks    json.RawMessage `json:"tasks"`
		Projects json.RawMessage `json:"projects"`
		Settings json.RawMessage `json:"settings"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("payload is not a JSON object: %w", err)
	}
	for _, field := range []struct {
		name string
		raw  json.RawMessage
	}{{"tasks", probe.Tasks}, {"projects", probe.Projects}} {
		if len(field.raw) == 0 {
			continue // absent is fine, Normalize fills it in
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(field.raw, &arr); err != nil {
			return fmt.Errorf("field %q must be an array", field.name)
		}
	}
	return nil
}

// FilterDeleted returns tasks without tombstones, for display paths.
func FilterDeleted(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.DeletedAt == "" {
			out = append(out, t)
		}
	}
	return out
}

// SanitizeForRemote strips device-local secrets and non-synced settings from
// a snapshot before it is written to a backend. Entity collections pass
// through untouched; only the settings block is reduced to the synced groups.
func (d *AppData) SanitizeForRemote() *AppData {
	out := d.Clone()
	local := d.Settings
	prefs := local.SyncPreferences

	s := Settings{
		SyncPreferences:          copyBoolMap(local.SyncPreferences),
		SyncPreferencesUpdatedAt: copyStringMap(local.SyncPreferencesUpdatedAt),
	}
	if prefs[GroupAppearance] {
		s.Theme = local.Theme
		s.KeybindingStyle = local.KeybindingStyle
	}
	if prefs[GroupLanguage] {
		s.Language = local.Language
		s.WeekStart = local.WeekStart
		s.DateFormat = local.DateFormat
	}
	if prefs[GroupExternalCalendars] {
		s.ExternalCalendars = append([]ExternalCalendar(nil), local.ExternalCalendars...)
	}
	if prefs[GroupAI] && local.AI != nil {
		ai := *local.AI
		ai.APIKey = "" // never leaves the device
		s.AI = &ai
	}
	out.Settings = s
	return out
}

func copyBoolMap(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
