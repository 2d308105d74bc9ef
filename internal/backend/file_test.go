package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mindwtr/mindwtr/internal/task"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func testSnapshot(t *testing.T) *task.AppData {
	t.Helper()
	d := task.Empty()
	d.Tasks = []task.Task{{
		ID:        "t1",
		Title:     "write me",
		Status:    task.StatusInbox,
		CreatedAt: "2026-03-01T10:00:00.000Z",
		UpdatedAt: "2026-03-01T10:00:00.000Z",
	}}
	return d
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync", "data.json")
	f := NewFile(path, nil).WithRetryPolicy(fastRetry())
	ctx := context.Background()

	if err := f.Store(ctx, testSnapshot(t)); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := f.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].ID != "t1" {
		t.Errorf("fetched tasks = %+v", got.Tasks)
	}
}

func TestFileFetchMissing(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "absent.json"), nil).WithRetryPolicy(fastRetry())
	_, err := f.Fetch(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFileFetchMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte(`{"tasks": "nope"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	f := NewFile(path, nil).WithRetryPolicy(fastRetry())
	_, err := f.Fetch(context.Background())
	if !errors.Is(err, ErrFormat) {
		t.Errorf("err = %v, want ErrFormat", err)
	}
}

func TestFileFetchZeroAttemptsStillBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte(`{"tasks": "nope"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	f := NewFile(path, nil).WithRetryPolicy(RetryPolicy{
		MaxAttempts:     0,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.Fetch(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrFormat) {
			t.Errorf("err = %v, want ErrFormat", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("fetch with MaxAttempts 0 never returned")
	}
}

func TestFileStoreLeavesNoTempOnSuccess(t *testing.T) {
	dir := t.TempDir()
	f := NewFile(filepath.Join(dir, "data.json"), nil)
	if err := f.Store(context.Background(), testSnapshot(t)); err != nil {
		t.Fatalf("store: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "data.json" {
		t.Errorf("directory contents = %v, temp file left behind", entries)
	}
}

func TestFileStoreAtomicReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	f := NewFile(path, nil)
	ctx := context.Background()

	if err := f.Store(ctx, testSnapshot(t)); err != nil {
		t.Fatal(err)
	}
	second := testSnapshot(t)
	second.Tasks[0].Title = "replaced"
	if err := f.Store(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := f.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tasks[0].Title != "replaced" {
		t.Errorf("title = %q after replace", got.Tasks[0].Title)
	}
}

func TestFileStorePermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root, permission bits are not enforced")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0o755)

	f := NewFile(filepath.Join(dir, "data.json"), nil)
	err := f.Store(context.Background(), testSnapshot(t))
	if !errors.Is(err, ErrPermission) {
		t.Errorf("err = %v, want ErrPermission", err)
	}
}

func TestFileStoreCancelledContext(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "data.json"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Store(ctx, testSnapshot(t)); err == nil {
		t.Error("store with cancelled context succeeded")
	}
}
