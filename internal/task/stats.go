package task

// EntityMergeStats quantifies how one collection fared during a merge.
type EntityMergeStats struct {
	LocalTotal    int `json:"localTotal"`
	IncomingTotal int `json:"incomingTotal"`
	MergedTotal   int `json:"mergedTotal"`
	LocalOnly     int `json:"localOnly"`
	IncomingOnly  int `json:"incomingOnly"`

	// Conflicts counts entities both sides changed independently since the
	// last checkpoint. ConflictIds is capped for display; the count is not.
	Conflicts   int      `json:"conflicts"`
	ConflictIds []string `json:"conflictIds"`

	ResolvedUsingLocal    int `json:"resolvedUsingLocal"`
	ResolvedUsingIncoming int `json:"resolvedUsingIncoming"`
	DeletionsWon          int `json:"deletionsWon"`

	// MaxClockSkewMs is the largest future-dated delta seen between an
	// incoming timestamp and the local clock; TimestampAdjustments counts
	// entities whose timestamps were clamped or repaired.
	MaxClockSkewMs       int64 `json:"maxClockSkewMs"`
	TimestampAdjustments int   `json:"timestampAdjustments"`
}

// MergeStats aggregates per-collection statistics for one sync.
type MergeStats struct {
	Tasks    EntityMergeStats `json:"tasks"`
	Projects EntityMergeStats `json:"projects"`
	Sections EntityMergeStats `json:"sections"`
	Areas    EntityMergeStats `json:"areas"`
}

// TotalConflicts sums conflicts across collections.
func (s *MergeStats) TotalConflicts() int {
	return s.Tasks.Conflicts + s.Projects.Conflicts + s.Sections.Conflicts + s.Areas.Conflicts
}

// TotalAdjustments sums timestamp adjustments across collections.
func (s *MergeStats) TotalAdjustments() int {
	return s.Tasks.TimestampAdjustments + s.Projects.TimestampAdjustments +
		s.Sections.TimestampAdjustments + s.Areas.TimestampAdjustments
}

// MaxSkewMs returns the largest clock skew seen in any collection.
func (s *MergeStats) MaxSkewMs() int64 {
	max := s.Tasks.MaxClockSkewMs
	for _, v := range []int64{s.Projects.MaxClockSkewMs, s.Sections.MaxClockSkewMs, s.Areas.MaxClockSkewMs} {
		if v > max {
			max = v
		}
	}
	return max
}

// ConflictIDs collects conflict ids across collections, capped at limit.
func (s *MergeStats) ConflictIDs(limit int) []string {
	out := []string{}
	for _, ids := range [][]string{s.Tasks.ConflictIds, s.Projects.ConflictIds, s.Sections.ConflictIds, s.Areas.ConflictIds} {
		for _, id := range ids {
			if len(out) >= limit {
				return out
			}
			out = append(out, id)
		}
	}
	return out
}

// Sync status values surfaced to the UI.
const (
	SyncStatusIdle     = "idle"
	SyncStatusSuccess  = "success"
	SyncStatusConflict = "conflict"
	SyncStatusError    = "error"
)

// SyncHistoryEntry records one sync attempt, success or not.
type SyncHistoryEntry struct {
	At                   string   `json:"at"`
	Status               string   `json:"status"`
	Backend              string   `json:"backend,omitempty"`
	Type                 string   `json:"type,omitempty"`
	Conflicts            int      `json:"conflicts"`
	ConflictIds          []string `json:"conflictIds,omitempty"`
	MaxClockSkewMs       int64    `json:"maxClockSkewMs"`
	TimestampAdjustments int      `json:"timestampAdjustments"`
	Details              string   `json:"details,omitempty"`
	Error                string   `json:"error,omitempty"`
}

// HistoryLimit bounds the retained sync history ring. The UI shows the most
// recent five; the rest exist for diagnostics.
const HistoryLimit = 50

// AppendHistory prepends entry to history, dropping malformed entries and
// truncating to limit. Most-recent-first ordering.
func AppendHistory(history []SyncHistoryEntry, entry SyncHistoryEntry, limit int) []SyncHistoryEntry {
	if limit < 1 {
		limit = 1
	}
	out := make([]SyncHistoryEntry, 0, len(history)+1)
	out = append(out, entry)
	for _, h := range history {
		if h.At == "" {
			continue
		}
		out = append(out, h)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
