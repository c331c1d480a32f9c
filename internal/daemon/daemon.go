// Package daemon coordinates the long-running delivery service: it
// enforces single-instance execution via a lock file, runs the scan
// scheduler in the background and exposes the admin HTTP API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"courier/internal/config"
	"courier/internal/deliverylog"
	"courier/internal/ledger"
	"courier/internal/logging"
	"courier/internal/scheduler"
	"courier/internal/sizecache"
)

// Daemon owns the scheduler lifecycle and the admin surface.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	history *ledger.Store
	sizes   *sizecache.Cache
	audit   *deliverylog.Store
	sched   *scheduler.Scheduler

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
	done    sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool     `json:"running"`
	Folders          []string `json:"folders"`
	LedgerEntries    int      `json:"ledger_entries"`
	SizeCacheEntries int      `json:"size_cache_entries"`
	LockFilePath     string   `json:"lock_file_path"`
	DeliveryLogPath  string   `json:"delivery_log_path"`
}

// New constructs a daemon with initialized dependencies.
func New(
	cfg *config.Config,
	history *ledger.Store,
	sizes *sizecache.Cache,
	audit *deliverylog.Store,
	sched *scheduler.Scheduler,
	logger *slog.Logger,
) (*Daemon, error) {
	if cfg == nil || history == nil || sched == nil {
		return nil, errors.New("daemon requires config, ledger store and scheduler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.DataDir, "courierd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		history:  history,
		sizes:    sizes,
		audit:    audit,
		sched:    sched,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the instance lock and launches the scheduler and the
// admin API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another courier daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			_ = d.lock.Unlock()
			cancel()
			d.cancel = nil
			return err
		}
	}

	d.done.Add(1)
	go func() {
		defer d.done.Done()
		_ = d.sched.Run(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("courier daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down the scheduler, waits for the in-flight candidate to
// finish and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.done.Wait()
	if d.api != nil {
		d.api.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("courier daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.audit != nil {
		return d.audit.Close()
	}
	return nil
}

// Status reports runtime information for the admin surface.
func (d *Daemon) Status() Status {
	status := Status{
		Running:         d.running.Load(),
		Folders:         d.cfg.Watch.Folders,
		LedgerEntries:   d.history.Len(),
		LockFilePath:    d.lockPath,
		DeliveryLogPath: d.cfg.DeliveryLogPath(),
	}
	if d.sizes != nil {
		status.SizeCacheEntries = d.sizes.Len()
	}
	return status
}

// ResetState clears all persisted JSON state (ledger and size cache).
// The scheduler reloads at the start of each cycle, so clearing here is
// safe to run concurrently with a cycle in flight.
func (d *Daemon) ResetState() error {
	if err := d.history.Reset(); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	if d.sizes != nil {
		if err := d.sizes.Reset(); err != nil {
			return fmt.Errorf("reset size cache: %w", err)
		}
	}
	d.logger.Info("persisted state cleared by admin request")
	return nil
}

// ClearDeliveryLogs truncates the delivery audit trail and the active
// log file.
func (d *Daemon) ClearDeliveryLogs(ctx context.Context) error {
	if d.audit != nil {
		if err := d.audit.Clear(ctx); err != nil {
			return err
		}
	}
	if err := os.Truncate(d.cfg.LogFilePath(), 0); err != nil && !errors.Is(err, fs.ErrNotExist) {
		d.logger.Warn("failed to truncate log file",
			logging.String("path", d.cfg.LogFilePath()),
			logging.Error(err))
	}
	d.logger.Info("delivery logs cleared by admin request")
	return nil
}
