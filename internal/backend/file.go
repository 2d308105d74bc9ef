package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mindwtr/mindwtr/internal/task"
)

// RetryPolicy parameterizes the file backend's read retries. The sync file
// lives in a folder shared with an external sync client (Syncthing, Dropbox
// folder sync), which may be mid-write when we read; a short retry rides
// that out.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is a few attempts with tens-of-milliseconds increasing
// delay, enough to ride out one in-progress external write.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     4,
		InitialInterval: 30 * time.Millisecond,
		MaxInterval:     250 * time.Millisecond,
	}
}

// File syncs against a JSON document on the local filesystem.
type File struct {
	path   string
	retry  RetryPolicy
	logger *log.Logger
}

// NewFile creates a file backend for the given document path.
func NewFile(path string, logger *log.Logger) *File {
	if logger == nil {
		logger = log.New(os.Stderr, "[backend/file] ", log.LstdFlags)
	}
	return &File{path: path, retry: DefaultRetryPolicy(), logger: logger}
}

// WithRetryPolicy overrides the read retry schedule.
func (f *File) WithRetryPolicy(p RetryPolicy) *File {
	f.retry = p
	return f
}

func (f *File) Kind() string        { return "file" }
func (f *File) Description() string { return f.path }

// Fetch reads and decodes the sync file. A missing file is ErrNotFound.
// Transient read failures are retried per the retry policy; a file that
// still will not parse after that is reported as ErrFormat, which the
// orchestrator treats as "no remote data" rather than a fatal error.
func (f *File) Fetch(ctx context.Context) (*task.AppData, error) {
	var raw []byte

	attempts := f.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.retry.InitialInterval
	bo.MaxInterval = f.retry.MaxInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts)-1), ctx)

	err := backoff.Retry(func() error {
		data, err := os.ReadFile(f.path)
		if err != nil {
			if os.IsNotExist(err) {
				return backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, f.path))
			}
			if os.IsPermission(err) {
				return backoff.Permanent(fmt.Errorf("%w: read %s: %v", ErrPermission, f.path, err))
			}
			return err // transient, retry
		}
		if err := task.CheckShape(data); err != nil {
			// Possibly caught mid-write by the external sync client.
			return fmt.Errorf("%w: %s: %v", ErrFormat, f.path, err)
		}
		raw = data
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}

	var data task.AppData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrFormat, f.path, err)
	}
	return data.Normalize(), nil
}

// Store writes the snapshot atomically: temp file in the target directory,
// then rename. A reader (or a crash) never observes a half-written document.
// The temp write doubles as the write probe for read-only destinations.
func (f *File) Store(ctx context.Context, data *task.AppData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: create %s: %v", ErrPermission, dir, err)
		}
		return fmt.Errorf("create sync directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".mindwtr-sync-*.tmp")
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %s is not writable: %v", ErrPermission, dir, err)
		}
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: replace %s: %v", ErrPermission, f.path, err)
		}
		return fmt.Errorf("replace sync file: %w", err)
	}
	return nil
}
