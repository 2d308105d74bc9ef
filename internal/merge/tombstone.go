package merge

import (
	"time"

	"github.com/mindwtr/mindwtr/internal/task"
)

// Tombstone retention bounds. Tombstones must outlive the longest plausible
// offline gap between two devices, or a stale replica will resurrect deleted
// items; they cannot live forever or the snapshot grows without bound.
const (
	DefaultTombstoneRetentionDays = 90
	MinTombstoneRetentionDays     = 1
	MaxTombstoneRetentionDays     = 3650
)

// ResolveRetentionDays clamps a configured retention value into the legal
// range, substituting the default for zero or negative input.
func ResolveRetentionDays(days int) int {
	if days <= 0 {
		return DefaultTombstoneRetentionDays
	}
	if days < MinTombstoneRetentionDays {
		return MinTombstoneRetentionDays
	}
	if days > MaxTombstoneRetentionDays {
		return MaxTombstoneRetentionDays
	}
	return days
}

// PurgeExpiredTombstones removes soft-deleted entities whose deletion is
// older than the retention window. This is a policy applied around the merge
// by the orchestrator, not part of the merge contract itself: the engine
// always preserves tombstones it is given.
//
// Returns the number of tombstones removed. Operates in place.
func PurgeExpiredTombstones(data *task.AppData, now time.Time, retentionDays int) int {
	cutoff := now.AddDate(0, 0, -ResolveRetentionDays(retentionDays))
	removed := 0

	tasks := data.Tasks[:0]
	for _, t := range data.Tasks {
		if tombstoneExpired(t.DeletedAt, t.UpdatedAt, cutoff) {
			removed++
			continue
		}
		tasks = append(tasks, t)
	}
	data.Tasks = tasks

	projects := data.Projects[:0]
	for _, p := range data.Projects {
		if tombstoneExpired(p.DeletedAt, p.UpdatedAt, cutoff) {
			removed++
			continue
		}
		projects = append(projects, p)
	}
	data.Projects = projects

	sections := data.Sections[:0]
	for _, s := range data.Sections {
		if tombstoneExpired(s.DeletedAt, s.UpdatedAt, cutoff) {
			removed++
			continue
		}
		sections = append(sections, s)
	}
	data.Sections = sections

	areas := data.Areas[:0]
	for _, a := range data.Areas {
		if tombstoneExpired(a.DeletedAt, a.UpdatedAt, cutoff) {
			removed++
			continue
		}
		areas = append(areas, a)
	}
	data.Areas = areas

	return removed
}

// tombstoneExpired reports whether a deletion is old enough to purge. The
// deletion instant is the later of deletedAt and updatedAt; an unparseable
// deletedAt keeps the tombstone forever rather than risking data loss.
func tombstoneExpired(deletedAt, updatedAt string, cutoff time.Time) bool {
	if deletedAt == "" {
		return false
	}
	deleted, ok := task.ParseTime(deletedAt)
	if !ok {
		return false
	}
	if updated, ok := task.ParseTime(updatedAt); ok && updated.After(deleted) {
		deleted = updated
	}
	return deleted.Before(cutoff)
}
