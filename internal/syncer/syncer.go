// Package syncer orchestrates a full sync cycle: fetch the remote snapshot,
// merge it with local data, commit locally, then push the merged result back.
// The local commit lands before the remote write, so a failed push never
// costs local edits; rerunning sync converges because merge is idempotent.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mindwtr/mindwtr/internal/backend"
	"github.com/mindwtr/mindwtr/internal/config"
	"github.com/mindwtr/mindwtr/internal/merge"
	"github.com/mindwtr/mindwtr/internal/store"
	"github.com/mindwtr/mindwtr/internal/task"
)

// Step tags the phase of a sync cycle an error occurred in.
type Step string

const (
	StepReadRemote  Step = "read-remote"
	StepMerge       Step = "merge"
	StepWriteLocal  Step = "write-local"
	StepWriteRemote Step = "write-remote"
	StepRefresh     Step = "refresh"
)

// StepError attributes a failure to its sync phase.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Result summarizes one sync cycle.
type Result struct {
	// Status is one of the task.SyncStatus values.
	Status string

	// Stats is nil when the cycle failed before the merge ran.
	Stats *task.MergeStats

	// Entry is the history record written for this cycle.
	Entry task.SyncHistoryEntry

	// Skipped is true when the backend is off and nothing was done.
	Skipped bool

	// Err is non-nil on failure, wrapping a *StepError.
	Err error
}

// Syncer runs sync cycles against one backend. Concurrent Sync calls
// collapse onto a single in-flight cycle; the late caller gets the same
// result instead of racing a second cycle against the first.
type Syncer struct {
	store   *store.Store
	backend backend.Backend
	cfg     *config.Config
	logger  *log.Logger
	group   singleflight.Group

	// now is stubbed in tests.
	now func() time.Time

	// refresh is invoked after a successful cycle so the UI reloads.
	refresh func() error
}

// New builds a Syncer. A nil backend means sync is off; cycles become
// no-ops reporting Skipped.
func New(st *store.Store, be backend.Backend, cfg *config.Config, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.New(log.Writer(), "[sync] ", log.LstdFlags)
	}
	return &Syncer{
		store:   st,
		backend: be,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// OnRefresh registers the post-sync refresh hook.
func (s *Syncer) OnRefresh(fn func() error) { s.refresh = fn }

// Sync runs one cycle. Calls arriving while a cycle is in flight share its
// result.
func (s *Syncer) Sync(ctx context.Context) *Result {
	v, _, _ := s.group.Do("sync", func() (any, error) {
		return s.syncOnce(ctx), nil
	})
	return v.(*Result)
}

func (s *Syncer) syncOnce(ctx context.Context) *Result {
	if s.backend == nil {
		return &Result{Status: task.SyncStatusIdle, Skipped: true}
	}
	now := s.now().UTC()
	local := s.store.Get()
	checkpoint, _ := task.ParseTime(local.Settings.LastSyncAt)

	// Step 1: read the remote snapshot. A missing or unreadable remote is
	// recoverable: we merge against local data only and overwrite on push.
	var remote *task.AppData
	var detail string
	remote, err := s.backend.Fetch(ctx)
	switch {
	case err == nil:
	case errors.Is(err, backend.ErrNotFound):
		s.logger.Printf("no remote snapshot yet, pushing local data")
		remote = nil
	case errors.Is(err, backend.ErrFormat):
		s.logger.Printf("remote snapshot unreadable, keeping local data: %v", err)
		detail = "remote snapshot was unreadable; local data kept"
		remote = nil
	default:
		return s.fail(now, StepReadRemote, err)
	}

	// Step 2: merge. Expired tombstones are dropped from both inputs first
	// so they neither resurrect nor survive the merge.
	retention := merge.ResolveRetentionDays(s.cfg.Sync.TombstoneRetentionDays)
	merge.PurgeExpiredTombstones(local, now, retention)
	if remote != nil {
		merge.PurgeExpiredTombstones(remote, now, retention)
	}
	merged, stats := merge.Merge(local, remote, merge.Options{
		Now:        now,
		Checkpoint: checkpoint,
	})
	merge.PurgeExpiredTombstones(merged, now, retention)

	// A merged snapshot that violates its own invariants must not be
	// committed anywhere, locally or remotely.
	if err := merged.Validate(); err != nil {
		return s.fail(now, StepMerge, err)
	}

	status := task.SyncStatusSuccess
	if stats.TotalConflicts() > 0 {
		status = task.SyncStatusConflict
	}
	entry := task.SyncHistoryEntry{
		At:                   task.FormatTime(now),
		Status:               status,
		Backend:              s.backend.Kind(),
		Type:                 "merge",
		Conflicts:            stats.TotalConflicts(),
		ConflictIds:          stats.ConflictIDs(20),
		MaxClockSkewMs:       stats.MaxSkewMs(),
		TimestampAdjustments: stats.TotalAdjustments(),
		Details:              detail,
	}
	merged.Settings.LastSyncAt = task.FormatTime(now)
	merged.Settings.LastSyncStatus = status
	merged.Settings.LastSyncError = ""
	merged.Settings.LastSyncStats = stats
	merged.Settings.LastSyncHistory = task.AppendHistory(merged.Settings.LastSyncHistory, entry, task.HistoryLimit)

	// Step 3: commit locally before touching the remote. If the push below
	// fails, local state is already merged and a retry converges.
	if err := s.store.Set(merged); err != nil {
		return s.fail(now, StepWriteLocal, err)
	}

	// Step 4: push. Device-local settings and secrets stay home.
	if err := s.backend.Store(ctx, merged.SanitizeForRemote()); err != nil {
		return s.fail(now, StepWriteRemote, err)
	}

	// Step 5: let the UI catch up.
	if s.refresh != nil {
		if err := s.refresh(); err != nil {
			return s.fail(now, StepRefresh, err)
		}
	}

	s.logger.Printf("sync complete via %s: %d conflicts, %d timestamp adjustments",
		s.backend.Kind(), stats.TotalConflicts(), stats.TotalAdjustments())
	return &Result{Status: status, Stats: stats, Entry: entry}
}

// fail records a failed cycle in settings and history (best effort) and
// returns the step-tagged result.
func (s *Syncer) fail(now time.Time, step Step, err error) *Result {
	stepErr := &StepError{Step: step, Err: err}
	msg := s.Sanitize(stepErr.Error())
	s.logger.Printf("sync failed at %s: %s", step, msg)

	entry := task.SyncHistoryEntry{
		At:      task.FormatTime(now),
		Status:  task.SyncStatusError,
		Backend: s.backend.Kind(),
		Error:   msg,
	}
	updateErr := s.store.Update(func(d *task.AppData) error {
		d.Settings.LastSyncStatus = task.SyncStatusError
		d.Settings.LastSyncError = msg
		d.Settings.LastSyncHistory = task.AppendHistory(d.Settings.LastSyncHistory, entry, task.HistoryLimit)
		return nil
	})
	if updateErr != nil {
		s.logger.Printf("could not record sync failure: %v", updateErr)
	}
	return &Result{Status: task.SyncStatusError, Entry: entry, Err: stepErr}
}

// Sanitize scrubs configured credentials out of text destined for settings,
// history, or the dashboard.
func (s *Syncer) Sanitize(text string) string {
	if s.cfg == nil {
		return text
	}
	secrets := []string{
		s.cfg.Sync.WebDAV.Password,
		s.cfg.Sync.Cloud.Token,
		s.cfg.Sync.Dropbox.AccessToken,
		s.cfg.Sync.Dropbox.RefreshToken,
	}
	for _, secret := range secrets {
		if len(secret) >= 4 {
			text = strings.ReplaceAll(text, secret, "***")
		}
	}
	return text
}
