package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"comic2kindle/internal/config"
	"comic2kindle/internal/fileutil"
	"comic2kindle/internal/jobs"
	"comic2kindle/internal/logging"
	"comic2kindle/internal/metadata"
	"comic2kindle/internal/notifications"
	"comic2kindle/internal/services/calibre"
	"comic2kindle/internal/sessions"
	"comic2kindle/internal/workflow"
)

// Daemon coordinates the conversion service and enforces single-instance
// execution.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *jobs.Store
	sessions    *sessions.Store
	coordinator *workflow.Coordinator
	catalog     *metadata.Service

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool               `json:"running"`
	JobsDBPath   string             `json:"jobs_db_path"`
	LockFilePath string             `json:"lock_file_path"`
	ActiveJobs   int                `json:"active_jobs"`
	UploadBytes  int64              `json:"upload_bytes"`
	OutputBytes  int64              `json:"output_bytes"`
	Jobs         jobs.HealthSummary `json:"jobs"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := jobs.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	sessionStore, err := sessions.NewStore(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}

	var converter calibre.Converter
	if cli := calibre.NewCLI(); cli.Available() {
		converter = cli
	} else {
		logger.Warn("ebook-convert not found, legacy MOBI output disabled")
	}

	notifier := notifications.NewService(cfg)
	coordinator := workflow.NewCoordinator(cfg, store, sessionStore, converter, notifier, logger)

	lockPath := filepath.Join(cfg.Paths.DataDir, "comic2kindled.lock")
	d := &Daemon{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "daemon"),
		store:       store,
		sessions:    sessionStore,
		coordinator: coordinator,
		catalog:     metadata.NewService(cfg, logger),
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another comic2kindle daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if err := d.api.start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down the API server, waits for in-flight jobs, and releases
// the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.coordinator.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the bound API address once the daemon is started.
func (d *Daemon) Addr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status returns current runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	summary, err := d.store.Health(ctx)
	if err != nil {
		d.logger.Warn("job health query failed", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		JobsDBPath:   d.store.Path(),
		LockFilePath: d.lockPath,
		ActiveJobs:   d.coordinator.ActiveJobs(),
		UploadBytes:  d.dirSize(d.cfg.Paths.UploadDir),
		OutputBytes:  d.dirSize(d.cfg.Paths.OutputDir),
		Jobs:         summary,
	}
}

// dirSize reports workspace usage, tolerating directories that do not exist
// yet.
func (d *Daemon) dirSize(dir string) int64 {
	size, err := fileutil.DirSize(dir)
	if err != nil && !os.IsNotExist(err) {
		d.logger.Warn("workspace size query failed", logging.String("dir", dir), logging.Error(err))
	}
	return size
}
