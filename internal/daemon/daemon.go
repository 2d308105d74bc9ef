// Package daemon runs background sync: a periodic timer plus a filesystem
// watch on the snapshot, so edits made by other processes (a desktop client,
// a Syncthing peer dropping a new file) trigger a sync without waiting for
// the next tick. File events are debounced because editors and sync tools
// produce bursts of writes for one logical change.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mindwtr/mindwtr/internal/store"
	"github.com/mindwtr/mindwtr/internal/syncer"
)

// Config tunes the daemon loop.
type Config struct {
	// Interval between periodic syncs. Zero disables the timer, leaving
	// only file-triggered syncs.
	Interval time.Duration

	// Debounce is how long the watcher waits after the last file event
	// before syncing.
	Debounce time.Duration

	// LogFile, when set, routes daemon logs to a size-rotated file instead
	// of stderr.
	LogFile string
}

// DefaultConfig returns the stock daemon tuning.
func DefaultConfig() Config {
	return Config{
		Interval: 15 * time.Minute,
		Debounce: 2 * time.Second,
	}
}

// Daemon watches the snapshot and syncs on change and on a timer.
type Daemon struct {
	store  *store.Store
	syncer *syncer.Syncer
	cfg    Config
	logger *log.Logger

	watcher *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   bool
	lastEvent time.Time

	// suppressUntil drops file events caused by our own sync commit, which
	// would otherwise re-trigger a sync per write, forever.
	suppressUntil time.Time

	wg sync.WaitGroup

	// OnStart and OnResult, when set, receive sync lifecycle events (the
	// dashboard hooks in here).
	OnStart  func()
	OnResult func(*syncer.Result)
}

// New builds a daemon. The watcher is created eagerly so a platform without
// inotify support fails at startup rather than mid-run.
func New(st *store.Store, sy *syncer.Syncer, cfg Config) (*Daemon, error) {
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("interval cannot be negative")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
			Compress:   true,
		}
	}
	return &Daemon{
		store:   st,
		syncer:  sy,
		cfg:     cfg,
		logger:  log.New(out, "[daemon] ", log.LstdFlags),
		watcher: watcher,
	}, nil
}

// Run syncs once, then watches and ticks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Printf("starting: interval=%s debounce=%s", d.cfg.Interval, d.cfg.Debounce)

	// Watch the directory, not the file: atomic renames replace the inode
	// and a watch on the old file would go quiet after the first sync.
	dir := filepath.Dir(d.store.Path())
	if err := d.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	d.runSync(ctx, "startup")

	d.wg.Add(2)
	go d.watchLoop(ctx)
	go d.tickLoop(ctx)

	<-ctx.Done()
	_ = d.watcher.Close()
	d.wg.Wait()
	d.logger.Printf("stopped")
	return nil
}

func (d *Daemon) watchLoop(ctx context.Context) {
	defer d.wg.Done()
	debounce := time.NewTicker(d.cfg.Debounce / 2)
	defer debounce.Stop()

	target := filepath.Base(d.store.Path())
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			d.pendingMu.Lock()
			if time.Now().Before(d.suppressUntil) {
				d.pendingMu.Unlock()
				continue
			}
			d.pending = true
			d.lastEvent = time.Now()
			d.pendingMu.Unlock()
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Printf("watch error: %v", err)
		case <-debounce.C:
			d.pendingMu.Lock()
			fire := d.pending && time.Since(d.lastEvent) >= d.cfg.Debounce
			if fire {
				d.pending = false
			}
			d.pendingMu.Unlock()
			if fire {
				if err := d.store.Reload(); err != nil {
					d.logger.Printf("reload after file change: %v", err)
					continue
				}
				d.runSync(ctx, "file change")
			}
		}
	}
}

func (d *Daemon) tickLoop(ctx context.Context) {
	defer d.wg.Done()
	if d.cfg.Interval == 0 {
		return
	}
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runSync(ctx, "interval")
		}
	}
}

func (d *Daemon) runSync(ctx context.Context, reason string) {
	if d.OnStart != nil {
		d.OnStart()
	}
	res := d.syncer.Sync(ctx)
	d.pendingMu.Lock()
	d.pending = false
	d.suppressUntil = time.Now().Add(d.cfg.Debounce * 2)
	d.pendingMu.Unlock()
	switch {
	case res.Skipped:
		d.logger.Printf("sync (%s): backend off, skipped", reason)
	case res.Err != nil:
		d.logger.Printf("sync (%s) failed: %v", reason, res.Err)
	default:
		d.logger.Printf("sync (%s): %s, %d conflicts", reason, res.Status, res.Entry.Conflicts)
	}
	if d.OnResult != nil {
		d.OnResult(res)
	}
}
