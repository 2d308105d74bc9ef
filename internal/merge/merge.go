// Package merge implements the snapshot reconciliation engine: a pure
// function folding two independently mutated AppData snapshots into one,
// while quantifying disagreement (conflicts, clock skew, timestamp repairs).
//
// The engine never performs I/O and never rejects data: questionable
// timestamps are clamped, disagreements resolved deterministically, and every
// entity id present on either side survives into the merged snapshot.
package merge

import (
	"encoding/json"
	"time"

	"github.com/mindwtr/mindwtr/internal/task"
)

const (
	// DefaultJitterTolerance absorbs serialization rounding between clients:
	// updatedAt values closer than this are treated as simultaneous.
	DefaultJitterTolerance = time.Second

	// DefaultSkewTolerance is how far in the future an incoming timestamp may
	// sit before it is considered untrustworthy and clamped to now.
	DefaultSkewTolerance = 5 * time.Second
)

// Options tune a merge run.
type Options struct {
	// Now is the local device clock reading for this run. Zero means
	// time.Now at call time; tests pass a fixed value.
	Now time.Time

	// Checkpoint is the last instant local and remote were known to agree
	// (the previous successful sync). Entities modified on both sides after
	// this point count as conflicts. A zero checkpoint disables conflict
	// counting: with no agreed-upon baseline there is nothing to diverge
	// from, so ordering is resolved silently by last-write-wins.
	Checkpoint time.Time

	JitterTolerance time.Duration
	SkewTolerance   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.JitterTolerance <= 0 {
		o.JitterTolerance = DefaultJitterTolerance
	}
	if o.SkewTolerance <= 0 {
		o.SkewTolerance = DefaultSkewTolerance
	}
	return o
}

// Merge reconciles local and remote into a single snapshot. Neither input is
// modified. Deterministic given its inputs and opts.Now: merging the same
// pair twice yields byte-identical output, and Merge(X, X) returns X with
// zero conflicts.
func Merge(local, remote *task.AppData, opts Options) (*task.AppData, *task.MergeStats) {
	opts = opts.withDefaults()
	l := local.Clone()
	r := remote.Clone()

	stats := &task.MergeStats{}
	out := task.Empty()

	out.Tasks = mergeCollection(l.Tasks, r.Tasks, taskOps, opts, &stats.Tasks)
	out.Projects = mergeCollection(l.Projects, r.Projects, projectOps, opts, &stats.Projects)
	out.Sections = mergeCollection(l.Sections, r.Sections, sectionOps, opts, &stats.Sections)
	out.Areas = mergeCollection(normalizeAreas(l.Areas, opts.Now), normalizeAreas(r.Areas, opts.Now), areaOps, opts, &stats.Areas)
	out.Settings = mergeSettings(l.Settings, r.Settings)

	return out, stats
}

// entityOps adapts one concrete entity type to the generic merge loop.
type entityOps[T any] struct {
	id           func(*T) string
	createdAt    func(*T) string
	setCreatedAt func(*T, string)
	updatedAt    func(*T) string
	setUpdatedAt func(*T, string)
	deletedAt    func(*T) string
}

var taskOps = entityOps[task.Task]{
	id:           func(t *task.Task) string { return t.ID },
	createdAt:    func(t *task.Task) string { return t.CreatedAt },
	setCreatedAt: func(t *task.Task, v string) { t.CreatedAt = v },
	updatedAt:    func(t *task.Task) string { return t.UpdatedAt },
	setUpdatedAt: func(t *task.Task, v string) { t.UpdatedAt = v },
	deletedAt:    func(t *task.Task) string { return t.DeletedAt },
}

var projectOps = entityOps[task.Project]{
	id:           func(p *task.Project) string { return p.ID },
	createdAt:    func(p *task.Project) string { return p.CreatedAt },
	setCreatedAt: func(p *task.Project, v string) { p.CreatedAt = v },
	updatedAt:    func(p *task.Project) string { return p.UpdatedAt },
	setUpdatedAt: func(p *task.Project, v string) { p.UpdatedAt = v },
	deletedAt:    func(p *task.Project) string { return p.DeletedAt },
}

var sectionOps = entityOps[task.Section]{
	id:           func(s *task.Section) string { return s.ID },
	createdAt:    func(s *task.Section) string { return s.CreatedAt },
	setCreatedAt: func(s *task.Section, v string) { s.CreatedAt = v },
	updatedAt:    func(s *task.Section) string { return s.UpdatedAt },
	setUpdatedAt: func(s *task.Section, v string) { s.UpdatedAt = v },
	deletedAt:    func(s *task.Section) string { return s.DeletedAt },
}

var areaOps = entityOps[task.Area]{
	id:           func(a *task.Area) string { return a.ID },
	createdAt:    func(a *task.Area) string { return a.CreatedAt },
	setCreatedAt: func(a *task.Area, v string) { a.CreatedAt = v },
	updatedAt:    func(a *task.Area) string { return a.UpdatedAt },
	setUpdatedAt: func(a *task.Area, v string) { a.UpdatedAt = v },
	deletedAt:    func(a *task.Area) string { return a.DeletedAt },
}

// normalizeAreas backfills timestamps older snapshots lack, so areas can run
// through the same merge loop as everything else.
func normalizeAreas(areas []task.Area, now time.Time) []task.Area {
	nowISO := task.FormatTime(now)
	out := make([]task.Area, len(areas))
	for i, a := range areas {
		if a.CreatedAt == "" {
			if a.UpdatedAt != "" {
				a.CreatedAt = a.UpdatedAt
			} else {
				a.CreatedAt = nowISO
			}
		}
		if a.UpdatedAt == "" {
			a.UpdatedAt = a.CreatedAt
		}
		out[i] = a
	}
	return out
}

func mergeCollection[T any](local, incoming []T, ops entityOps[T], opts Options, stats *task.EntityMergeStats) []T {
	stats.LocalTotal = len(local)
	stats.IncomingTotal = len(incoming)
	stats.ConflictIds = []string{}

	incomingByID := make(map[string]*T, len(incoming))
	for i := range incoming {
		incomingByID[ops.id(&incoming[i])] = &incoming[i]
	}
	localIDs := make(map[string]bool, len(local))

	merged := make([]T, 0, len(local)+len(incoming))

	// Local ordering first, then incoming-only items in their own order.
	// Keeps output stable across repeated merges of the same pair.
	for i := range local {
		localItem := &local[i]
		id := ops.id(localItem)
		localIDs[id] = true
		normalizeTimestamps(localItem, ops, opts, stats, false)

		incomingItem, ok := incomingByID[id]
		if !ok {
			stats.LocalOnly++
			stats.ResolvedUsingLocal++
			merged = append(merged, *localItem)
			continue
		}
		normalizeTimestamps(incomingItem, ops, opts, stats, true)
		merged = append(merged, resolvePair(localItem, incomingItem, ops, opts, stats))
	}
	for i := range incoming {
		incomingItem := &incoming[i]
		id := ops.id(incomingItem)
		if localIDs[id] {
			continue
		}
		normalizeTimestamps(incomingItem, ops, opts, stats, true)
		stats.IncomingOnly++
		stats.ResolvedUsingIncoming++
		merged = append(merged, *incomingItem)
	}

	stats.MergedTotal = len(merged)
	return merged
}

// normalizeTimestamps repairs an item in place: createdAt after updatedAt is
// pulled back, and an updatedAt beyond the skew tolerance in the future is
// clamped to now. Clamping, never rejection, keeps updatedAt usable for
// ordering on the next merge.
func normalizeTimestamps[T any](item *T, ops entityOps[T], opts Options, stats *task.EntityMergeStats, fromIncoming bool) {
	updated, okU := task.ParseTime(ops.updatedAt(item))
	if okU {
		if delta := updated.Sub(opts.Now); delta > opts.SkewTolerance {
			ops.setUpdatedAt(item, task.FormatTime(opts.Now))
			stats.TimestampAdjustments++
			if skewMs := delta.Milliseconds(); fromIncoming && skewMs > stats.MaxClockSkewMs {
				stats.MaxClockSkewMs = skewMs
			}
			updated = opts.Now
		}
	}
	created, okC := task.ParseTime(ops.createdAt(item))
	if okU && okC && updated.Before(created) {
		ops.setCreatedAt(item, ops.updatedAt(item))
		stats.TimestampAdjustments++
	}
}

func resolvePair[T any](localItem, incomingItem *T, ops entityOps[T], opts Options, stats *task.EntityMergeStats) T {
	id := ops.id(localItem)
	localTime, _ := task.ParseTime(ops.updatedAt(localItem))
	incomingTime, _ := task.ParseTime(ops.updatedAt(incomingItem))
	localDeleted := ops.deletedAt(localItem) != ""
	incomingDeleted := ops.deletedAt(incomingItem) != ""
	localOp := operationTime(localItem, ops)
	incomingOp := operationTime(incomingItem, ops)

	contentDiffers := signature(localItem, ops) != signature(incomingItem, ops)

	// A conflict needs three things: content actually differs, a checkpoint
	// exists, and both sides moved past it. Unambiguous ordering (one side
	// unchanged since the checkpoint) is plain last-write-wins, not a
	// conflict.
	if contentDiffers && !opts.Checkpoint.IsZero() &&
		localOp.After(opts.Checkpoint) && incomingOp.After(opts.Checkpoint) {
		stats.Conflicts++
		if len(stats.ConflictIds) < conflictIDCap {
			stats.ConflictIds = append(stats.ConflictIds, id)
		}
	}

	var winner *T
	switch {
	case localDeleted != incomingDeleted:
		// Deletion against edit: the later operation wins, so an edit newer
		// than the tombstone resurrects the entity. On an exact tie the
		// tombstone is preferred.
		switch {
		case incomingOp.After(localOp):
			winner = incomingItem
		case localOp.After(incomingOp):
			winner = localItem
		case localDeleted:
			winner = localItem
		default:
			winner = incomingItem
		}
	case absDuration(incomingTime.Sub(localTime)) <= opts.JitterTolerance:
		winner = deterministicWinner(localItem, incomingItem, ops)
	case incomingTime.After(localTime):
		winner = incomingItem
	default:
		winner = localItem
	}

	if winner == incomingItem {
		stats.ResolvedUsingIncoming++
	} else {
		stats.ResolvedUsingLocal++
	}
	if ops.deletedAt(winner) != "" && (!localDeleted || !incomingDeleted || contentDiffers) {
		stats.DeletionsWon++
	}
	return *winner
}

const conflictIDCap = 20

// operationTime is the instant of an item's most recent operation: its
// updatedAt, or its deletedAt when that is later. Tombstones carry their
// deletion instant even if updatedAt lagged behind.
func operationTime[T any](item *T, ops entityOps[T]) time.Time {
	updated, _ := task.ParseTime(ops.updatedAt(item))
	if deleted, ok := task.ParseTime(ops.deletedAt(item)); ok && deleted.After(updated) {
		return deleted
	}
	return updated
}

// deterministicWinner breaks exact ties so every replica converges on the
// same entity regardless of which side it called local. Compares canonical
// content signatures; identical content prefers the incoming copy.
func deterministicWinner[T any](localItem, incomingItem *T, ops entityOps[T]) *T {
	localSig := signature(localItem, ops)
	incomingSig := signature(incomingItem, ops)
	if localSig == incomingSig {
		return incomingItem
	}
	if incomingSig > localSig {
		return incomingItem
	}
	return localItem
}

// signature renders an item's content as canonical JSON with volatile
// metadata stripped, so equality checks see through timestamp churn.
func signature[T any](item *T, ops entityOps[T]) string {
	raw, err := json.Marshal(item)
	if err != nil {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return string(raw)
	}
	delete(m, "updatedAt")
	delete(m, "createdAt")
	canonical, err := json.Marshal(m) // map keys marshal sorted
	if err != nil {
		return string(raw)
	}
	return string(canonical)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
