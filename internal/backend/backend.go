// Package backend provides interchangeable storage adapters for the sync
// engine. A backend is pure byte storage for one JSON snapshot: it holds no
// conflict-resolution logic and mutates nothing locally. All adapters speak
// the same contract so the orchestrator can treat a Syncthing-watched folder,
// a WebDAV share, a self-hosted endpoint, and Dropbox identically.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mindwtr/mindwtr/internal/config"
	"github.com/mindwtr/mindwtr/internal/task"
)

// DefaultTimeout bounds every fetch or store round-trip unless the caller's
// context is stricter.
const DefaultTimeout = 30 * time.Second

// Typed failures. Adapters wrap these sentinels with fmt.Errorf("%w") so
// callers classify with errors.Is while keeping transport detail in the
// message.
var (
	// ErrNotFound means the remote has no snapshot yet. Not a failure: the
	// first device to sync always sees this.
	ErrNotFound = errors.New("no remote snapshot")

	// ErrConfig means the selected backend is missing required settings.
	ErrConfig = errors.New("backend not configured")

	// ErrNetwork covers timeouts, refused connections, and non-2xx noise.
	ErrNetwork = errors.New("network failure")

	// ErrAuth means credentials were rejected (after any one-shot refresh).
	ErrAuth = errors.New("authentication failed")

	// ErrFormat means the remote payload is not a usable snapshot. The
	// orchestrator recovers from this by merging against local data only.
	ErrFormat = errors.New("malformed remote payload")

	// ErrPermission means the destination refused a write.
	ErrPermission = errors.New("permission denied")
)

// Backend is one remote snapshot store.
type Backend interface {
	// Kind returns the config tag for this backend (file, webdav, ...).
	Kind() string

	// Description returns a redacted, human-readable target for logs.
	Description() string

	// Fetch returns the remote snapshot, or an error wrapping ErrNotFound
	// when none exists yet.
	Fetch(ctx context.Context) (*task.AppData, error)

	// Store replaces the remote snapshot.
	Store(ctx context.Context, data *task.AppData) error
}

// FromConfig builds the configured backend. BackendOff yields (nil, nil):
// sync is disabled, and the orchestrator short-circuits to a no-op success.
func FromConfig(cfg *config.Config, logger *log.Logger) (Backend, error) {
	switch cfg.Sync.Backend {
	case config.BackendOff, "":
		return nil, nil
	case config.BackendFile:
		if cfg.Sync.FilePath == "" {
			return nil, fmt.Errorf("%w: file backend needs sync.file_path", ErrConfig)
		}
		return NewFile(cfg.Sync.FilePath, logger), nil
	case config.BackendWebDAV:
		if cfg.Sync.WebDAV.URL == "" {
			return nil, fmt.Errorf("%w: webdav backend needs sync.webdav.url", ErrConfig)
		}
		b, err := NewWebDAV(cfg.Sync.WebDAV.URL, cfg.Sync.WebDAV.Username, cfg.Sync.WebDAV.Password, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendCloud:
		if cfg.Sync.Cloud.Provider == config.ProviderDropbox {
			d := cfg.Sync.Dropbox
			if d.RefreshToken == "" && d.AccessToken == "" {
				return nil, fmt.Errorf("%w: dropbox backend needs sync.dropbox tokens", ErrConfig)
			}
			return NewDropbox(d, cfg.SetDropboxAccessToken, logger), nil
		}
		if cfg.Sync.Cloud.URL == "" || cfg.Sync.Cloud.Token == "" {
			return nil, fmt.Errorf("%w: cloud backend needs sync.cloud.url and sync.cloud.token", ErrConfig)
		}
		b, err := NewCloud(cfg.Sync.Cloud.URL, cfg.Sync.Cloud.Token, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrConfig, cfg.Sync.Backend)
	}
}
