package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mindwtr/mindwtr/internal/backend"
	"github.com/mindwtr/mindwtr/internal/config"
	"github.com/mindwtr/mindwtr/internal/store"
	"github.com/mindwtr/mindwtr/internal/task"
)

var syncNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func at(offset time.Duration) string {
	return task.FormatTime(syncNow.Add(offset))
}

type fakeBackend struct {
	mu         sync.Mutex
	remote     *task.AppData
	fetchErr   error
	storeErr   error
	fetchCount int
	storeCount int
	delay      time.Duration
}

func (f *fakeBackend) Kind() string        { return "fake" }
func (f *fakeBackend) Description() string { return "in-memory fake" }

func (f *fakeBackend) Fetch(ctx context.Context) (*task.AppData, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCount++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.remote == nil {
		return nil, fmt.Errorf("%w: empty fake", backend.ErrNotFound)
	}
	return f.remote.Clone(), nil
}

func (f *fakeBackend) Store(ctx context.Context, data *task.AppData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storeCount++
	if f.storeErr != nil {
		return f.storeErr
	}
	f.remote = data.Clone()
	return nil
}

func mkTask(id, title, updated string) task.Task {
	return task.Task{
		ID:        id,
		Title:     title,
		Status:    task.StatusInbox,
		CreatedAt: at(-24 * time.Hour),
		UpdatedAt: updated,
	}
}

func newTestSyncer(t *testing.T, be backend.Backend, local *task.AppData) (*Syncer, *store.Store) {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(filepath.Join(t.TempDir(), "data.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if local != nil {
		if err := st.Set(local); err != nil {
			t.Fatal(err)
		}
	}
	s := New(st, be, cfg, nil)
	s.now = func() time.Time { return syncNow }
	return s, st
}

func localWith(tasks ...task.Task) *task.AppData {
	d := task.Empty()
	d.Tasks = tasks
	return d
}

func TestSyncSkippedWhenOff(t *testing.T) {
	s, _ := newTestSyncer(t, nil, nil)
	res := s.Sync(context.Background())
	if !res.Skipped || res.Err != nil {
		t.Errorf("res = %+v, want skipped no-op", res)
	}
}

func TestFirstSyncPushesLocal(t *testing.T) {
	be := &fakeBackend{}
	s, st := newTestSyncer(t, be, localWith(mkTask("a", "mine", at(-time.Hour))))

	res := s.Sync(context.Background())

	if res.Err != nil {
		t.Fatalf("sync: %v", res.Err)
	}
	if res.Status != task.SyncStatusSuccess {
		t.Errorf("status = %q", res.Status)
	}
	if be.remote == nil || len(be.remote.Tasks) != 1 {
		t.Fatalf("remote after first sync = %+v", be.remote)
	}
	got := st.Get()
	if got.Settings.LastSyncAt != task.FormatTime(syncNow) {
		t.Errorf("lastSyncAt = %q", got.Settings.LastSyncAt)
	}
	if len(got.Settings.LastSyncHistory) != 1 {
		t.Errorf("history = %+v", got.Settings.LastSyncHistory)
	}
}

func TestSyncRejectsInvalidMergedSnapshot(t *testing.T) {
	bad := task.Task{Title: "no id", Status: task.StatusInbox, UpdatedAt: "not-a-timestamp"}
	be := &fakeBackend{remote: localWith(bad)}
	s, st := newTestSyncer(t, be, localWith(mkTask("a", "mine", at(-time.Hour))))

	res := s.Sync(context.Background())

	if res.Err == nil {
		t.Fatal("sync accepted a merged snapshot with an invalid entity")
	}
	var stepErr *StepError
	if !errors.As(res.Err, &stepErr) || stepErr.Step != StepMerge {
		t.Errorf("err = %v, want merge step failure", res.Err)
	}
	if be.storeCount != 0 {
		t.Error("invalid snapshot was pushed to the remote")
	}
	got := st.Get()
	if len(got.Tasks) != 1 || got.Tasks[0].ID != "a" {
		t.Errorf("local tasks after rejected sync = %+v", got.Tasks)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("committed snapshot fails validation: %v", err)
	}
}

func TestSyncDropsExpiredTombstones(t *testing.T) {
	ancient := task.FormatTime(syncNow.AddDate(0, 0, -120))
	gone := task.Task{ID: "gone", Title: "old delete", Status: task.StatusInbox,
		CreatedAt: ancient, UpdatedAt: ancient, DeletedAt: ancient}
	be := &fakeBackend{}
	s, st := newTestSyncer(t, be, localWith(mkTask("a", "mine", at(-time.Hour)), gone))

	res := s.Sync(context.Background())
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	for _, d := range []*task.AppData{st.Get(), be.remote} {
		for _, tk := range d.Tasks {
			if tk.ID == "gone" {
				t.Error("expired tombstone survived the sync")
			}
		}
	}
}

func TestSyncHistoryEntryType(t *testing.T) {
	be := &fakeBackend{}
	s, _ := newTestSyncer(t, be, localWith(mkTask("a", "mine", at(-time.Hour))))

	res := s.Sync(context.Background())
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.Entry.Type != "merge" {
		t.Errorf("entry type = %q, want merge", res.Entry.Type)
	}
}

func TestSyncMergesRemoteChanges(t *testing.T) {
	be := &fakeBackend{remote: localWith(mkTask("b", "theirs", at(-time.Minute)))}
	s, st := newTestSyncer(t, be, localWith(mkTask("a", "mine", at(-time.Hour))))

	res := s.Sync(context.Background())
	if res.Err != nil {
		t.Fatal(res.Err)
	}

	local := st.Get()
	if len(local.Tasks) != 2 {
		t.Errorf("local tasks after sync = %+v", local.Tasks)
	}
	if len(be.remote.Tasks) != 2 {
		t.Errorf("remote tasks after sync = %+v", be.remote.Tasks)
	}
}

func TestSyncReportsConflict(t *testing.T) {
	local := localWith(mkTask("a", "edited here", at(-30*time.Minute)))
	local.Settings.LastSyncAt = at(-time.Hour) // checkpoint
	be := &fakeBackend{remote: localWith(mkTask("a", "edited there", at(-10*time.Minute)))}
	s, _ := newTestSyncer(t, be, local)

	res := s.Sync(context.Background())
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.Status != task.SyncStatusConflict {
		t.Errorf("status = %q, want conflict", res.Status)
	}
	if res.Entry.Conflicts != 1 {
		t.Errorf("conflicts = %d", res.Entry.Conflicts)
	}
}

func TestSyncRecoversFromUnreadableRemote(t *testing.T) {
	be := &fakeBackend{fetchErr: fmt.Errorf("%w: garbage payload", backend.ErrFormat)}
	s, st := newTestSyncer(t, be, localWith(mkTask("a", "mine", at(-time.Hour))))

	res := s.Sync(context.Background())

	if res.Err != nil {
		t.Fatalf("format error should be recovered, got %v", res.Err)
	}
	if res.Entry.Details == "" {
		t.Error("recovery not surfaced in history details")
	}
	if len(st.Get().Tasks) != 1 {
		t.Error("local data lost during recovery")
	}
	if be.storeCount != 1 {
		t.Errorf("storeCount = %d, recovered sync should overwrite remote", be.storeCount)
	}
}

func TestSyncNetworkFailureIsStepTagged(t *testing.T) {
	be := &fakeBackend{fetchErr: fmt.Errorf("%w: connection refused", backend.ErrNetwork)}
	s, st := newTestSyncer(t, be, localWith(mkTask("a", "mine", at(-time.Hour))))

	res := s.Sync(context.Background())

	if res.Err == nil {
		t.Fatal("expected failure")
	}
	var stepErr *StepError
	if !errors.As(res.Err, &stepErr) || stepErr.Step != StepReadRemote {
		t.Errorf("err = %v, want StepError at read-remote", res.Err)
	}
	got := st.Get().Settings
	if got.LastSyncStatus != task.SyncStatusError || got.LastSyncError == "" {
		t.Errorf("failure not recorded: %+v", got)
	}
	// The local data itself must be untouched.
	if len(st.Get().Tasks) != 1 || st.Get().Tasks[0].Title != "mine" {
		t.Error("failed sync modified task data")
	}
}

func TestLocalCommitSurvivesPushFailure(t *testing.T) {
	be := &fakeBackend{
		remote:   localWith(mkTask("b", "theirs", at(-time.Minute))),
		storeErr: fmt.Errorf("%w: disk full", backend.ErrNetwork),
	}
	s, st := newTestSyncer(t, be, localWith(mkTask("a", "mine", at(-time.Hour))))

	res := s.Sync(context.Background())

	var stepErr *StepError
	if !errors.As(res.Err, &stepErr) || stepErr.Step != StepWriteRemote {
		t.Fatalf("err = %v, want StepError at write-remote", res.Err)
	}
	// The merge landed locally even though the push failed.
	if len(st.Get().Tasks) != 2 {
		t.Errorf("local tasks = %+v, merged result should be committed before the push", st.Get().Tasks)
	}

	// Retry converges.
	be.storeErr = nil
	res = s.Sync(context.Background())
	if res.Err != nil {
		t.Fatalf("retry: %v", res.Err)
	}
	if len(be.remote.Tasks) != 2 {
		t.Errorf("remote tasks after retry = %+v", be.remote.Tasks)
	}
}

func TestSyncSingleFlight(t *testing.T) {
	be := &fakeBackend{delay: 50 * time.Millisecond}
	s, _ := newTestSyncer(t, be, localWith(mkTask("a", "mine", at(-time.Hour))))

	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]*Result, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = s.Sync(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	if be.fetchCount != 1 {
		t.Errorf("fetchCount = %d, concurrent calls should share one cycle", be.fetchCount)
	}
	for i, res := range results {
		if res == nil || res.Err != nil {
			t.Errorf("result %d = %+v", i, res)
		}
	}
}

func TestSyncScrubsCredentialsFromErrors(t *testing.T) {
	be := &fakeBackend{fetchErr: fmt.Errorf("%w: server said token sk-super-secret is expired", backend.ErrAuth)}
	s, st := newTestSyncer(t, be, localWith(mkTask("a", "mine", at(-time.Hour))))
	s.cfg.Sync.Cloud.Token = "sk-super-secret"

	s.Sync(context.Background())

	got := st.Get().Settings.LastSyncError
	if got == "" {
		t.Fatal("error not recorded")
	}
	if strings.Contains(got, "sk-super-secret") {
		t.Errorf("lastSyncError leaks the token: %q", got)
	}
}

func TestSyncSanitizesRemoteSnapshot(t *testing.T) {
	local := localWith(mkTask("a", "mine", at(-time.Hour)))
	local.Settings.AI = &task.AISettings{Enabled: true, APIKey: "sk-device-local"}
	local.Settings.SyncPreferences = map[string]bool{task.GroupAI: true}
	be := &fakeBackend{}
	s, _ := newTestSyncer(t, be, local)

	if res := s.Sync(context.Background()); res.Err != nil {
		t.Fatal(res.Err)
	}
	if be.remote.Settings.AI != nil && be.remote.Settings.AI.APIKey != "" {
		t.Error("api key pushed to remote")
	}
	if be.remote.Settings.LastSyncHistory != nil {
		t.Error("sync status surface pushed to remote")
	}
}

func TestSyncHistoryRing(t *testing.T) {
	be := &fakeBackend{}
	s, st := newTestSyncer(t, be, localWith(mkTask("a", "mine", at(-time.Hour))))

	for i := 0; i < task.HistoryLimit+5; i++ {
		if res := s.Sync(context.Background()); res.Err != nil {
			t.Fatal(res.Err)
		}
	}

	history := st.Get().Settings.LastSyncHistory
	if len(history) != task.HistoryLimit {
		t.Errorf("history length = %d, want %d", len(history), task.HistoryLimit)
	}
}

func TestRefreshHookRuns(t *testing.T) {
	be := &fakeBackend{}
	s, _ := newTestSyncer(t, be, localWith(mkTask("a", "mine", at(-time.Hour))))

	called := false
	s.OnRefresh(func() error {
		called = true
		return nil
	})
	if res := s.Sync(context.Background()); res.Err != nil {
		t.Fatal(res.Err)
	}
	if !called {
		t.Error("refresh hook not invoked")
	}
}
