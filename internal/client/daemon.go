// Package client composes the savebox daemon: the locked data dir, the
// persisted engine state, the sync engine, the save watcher, the job
// queue and the local control plane API.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/savebox/savebox/internal/client/config"
	"github.com/savebox/savebox/internal/enginestate"
	"github.com/savebox/savebox/internal/queue"
	"github.com/savebox/savebox/internal/serversdk"
	"github.com/savebox/savebox/internal/sync"
	"github.com/savebox/savebox/internal/vault"
	"github.com/savebox/savebox/internal/version"
)

const (
	DefaultRefreshInterval = 5 * time.Minute
	MinRefreshInterval     = 30 * time.Second

	shutdownTimeout = 10 * time.Second
)

// refreshSnapshot is the outcome of the most recent refresh, swapped in
// atomically so control plane reads never block the scheduler.
type refreshSnapshot struct {
	Records []sync.StatusRecord
	At      time.Time
}

// Daemon is the long-running savebox process. It owns the workspace lock,
// keeps the registry and engine state in step, schedules sync jobs and
// serves the control plane API.
type Daemon struct {
	cfg      *config.Config
	ws       *Workspace
	store    *enginestate.Store
	state    *enginestate.State
	registry *vault.Registry
	server   serversdk.Server
	journal  *sync.PackJournal
	engine   *sync.Engine
	jobs     *queue.JobQueue
	cps      *ControlPlaneServer

	refreshInterval time.Duration
	watchEnabled    bool
	startedAt       time.Time

	// watcher is owned by the scheduler goroutine after Start; handlers
	// request a rebuild through the rewatch channel instead of touching it.
	watcher *sync.SaveWatcher
	rewatch chan struct{}

	lastRefresh atomic.Pointer[refreshSnapshot]
}

// DaemonOption configures a Daemon beyond its config file.
type DaemonOption func(*daemonOptions)

type daemonOptions struct {
	stateKey      []byte
	server        serversdk.Server
	stateRecovery func(error) bool
}

// WithStateKey encrypts the engine state with an explicit key instead of
// the machine-bound one.
func WithStateKey(key []byte) DaemonOption {
	return func(o *daemonOptions) {
		o.stateKey = key
	}
}

// WithStateRecovery installs a consent callback for a corrupt engine
// state. Returning true discards the blob and starts fresh; without the
// callback, or when it declines, construction fails with the load error.
func WithStateRecovery(consent func(error) bool) DaemonOption {
	return func(o *daemonOptions) {
		o.stateRecovery = consent
	}
}

// WithServer uses the given sync backend instead of building one from the
// configured server URL.
func WithServer(server serversdk.Server) DaemonOption {
	return func(o *daemonOptions) {
		o.server = server
	}
}

// NewDaemon wires a daemon from a validated config. It loads the engine
// state but does not lock the workspace or open the journal until Start.
func NewDaemon(cfg *config.Config, opts ...DaemonOption) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var options daemonOptions
	for _, opt := range opts {
		opt(&options)
	}

	ws, err := NewWorkspace(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	var storeOpts []enginestate.StoreOption
	if options.stateKey != nil {
		storeOpts = append(storeOpts, enginestate.WithKey(options.stateKey))
	}

	store, err := enginestate.NewStore(ws.StatePath, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("open engine state: %w", err)
	}

	state, err := store.Load()
	if errors.Is(err, os.ErrNotExist) {
		state = &enginestate.State{}
	} else if err != nil {
		// corrupt state never resets without explicit consent
		var corrupt *enginestate.CorruptStateError
		if !errors.As(err, &corrupt) || options.stateRecovery == nil || !options.stateRecovery(err) {
			return nil, err
		}
		if err := store.Reset(); err != nil {
			return nil, fmt.Errorf("reset engine state: %w", err)
		}
		slog.Warn("corrupt engine state discarded", "path", ws.StatePath)
		state = &enginestate.State{}
	}

	// explicit config wins over persisted state; the state blob is kept in
	// step so the server credentials stay encrypted at rest
	serverURL, serverToken := cfg.ServerURL, cfg.ServerToken
	if serverURL == "" && state.HasServer() {
		serverURL = state.Server.URL
		serverToken = state.Server.Token
	}

	var server serversdk.Server
	if serverURL != "" {
		client, err := serversdk.New(serverURL, serverToken)
		if err != nil {
			return nil, fmt.Errorf("create server client: %w", err)
		}
		server = client
		state.Server = &enginestate.ServerConfig{URL: serverURL, Token: serverToken}
	}
	if options.server != nil {
		server = options.server
	}

	packExcludes := append([]string{}, state.Settings.PackExcludes...)
	packExcludes = append(packExcludes, cfg.PackExcludes...)

	registry := vault.NewRegistry(
		vault.WithStagingDir(ws.StagingDir),
		vault.WithPackExcludes(packExcludes...),
	)
	if len(state.Saves) > 0 {
		if _, err := registry.Deserialize(state.Saves); err != nil {
			return nil, fmt.Errorf("load saves from engine state: %w", err)
		}
	}

	journal := sync.NewPackJournal(ws.JournalPath)
	engine := sync.NewEngine(registry, server, journal, &sync.EngineConfig{
		StagingDir: ws.StagingDir,
	})

	d := &Daemon{
		cfg:             cfg,
		ws:              ws,
		store:           store,
		state:           state,
		registry:        registry,
		server:          server,
		journal:         journal,
		engine:          engine,
		jobs:            queue.NewJobQueue(),
		refreshInterval: resolveRefreshInterval(cfg, state),
		watchEnabled:    cfg.WatchEnabled,
		rewatch:         make(chan struct{}, 1),
	}

	u, _ := url.Parse(cfg.ClientURL)
	cps, err := NewControlPlaneServer(&ControlPlaneConfig{
		Addr:      u.Host,
		AuthToken: cfg.ClientToken,
	}, d)
	if err != nil {
		return nil, err
	}
	d.cps = cps

	return d, nil
}

func resolveRefreshInterval(cfg *config.Config, state *enginestate.State) time.Duration {
	secs := cfg.RefreshIntervalSecs
	if secs == 0 {
		secs = state.Settings.RefreshIntervalSecs
	}
	if secs == 0 {
		return DefaultRefreshInterval
	}

	interval := time.Duration(secs) * time.Second
	if interval < MinRefreshInterval {
		slog.Warn("refresh interval below minimum, clamping", "requested", interval, "minimum", MinRefreshInterval)
		return MinRefreshInterval
	}
	return interval
}

// Open locks the workspace and opens the pack journal for direct engine
// operations, without the scheduler or control plane. Callers that do not
// go through Start must pair it with Close.
func (d *Daemon) Open() error {
	if err := d.ws.Setup(); err != nil {
		return err
	}

	if err := d.journal.Open(); err != nil {
		d.ws.Unlock()
		return fmt.Errorf("open pack journal: %w", err)
	}

	return nil
}

// Close releases what Open acquired.
func (d *Daemon) Close() error {
	if err := d.journal.Close(); err != nil {
		slog.Warn("close pack journal", "error", err)
	}
	return d.ws.Unlock()
}

// Start runs the daemon until the context is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("savebox daemon start",
		"version", version.Short(),
		"dataDir", d.ws.Root,
		"server", d.serverURLForLog(),
		"refreshInterval", d.refreshInterval,
	)

	if err := d.Open(); err != nil {
		return err
	}

	// first run creates the state blob; later runs refresh its timestamp view
	if err := d.persistState(); err != nil {
		d.Close()
		return err
	}

	if d.watchEnabled {
		d.startWatcher(ctx)
	}

	d.startedAt = time.Now()

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return d.runScheduler(egCtx)
	})

	eg.Go(func() error {
		if err := d.cps.Start(egCtx); err != nil {
			return fmt.Errorf("control plane: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("received interrupt signal, stopping daemon")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return d.Stop(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("savebox daemon failure", "error", err)
		return err
	}

	slog.Info("savebox daemon stopped")
	return nil
}

// Stop shuts down the control plane, closes the journal and releases the
// workspace lock. The scheduler and watcher stop through their context.
func (d *Daemon) Stop(ctx context.Context) error {
	if err := d.cps.Stop(ctx); err != nil {
		return fmt.Errorf("stop control plane: %w", err)
	}

	if err := d.journal.Close(); err != nil {
		slog.Warn("close pack journal", "error", err)
	}

	return d.ws.Unlock()
}

// runScheduler is the daemon's single job-execution loop. It alone owns
// the watcher and the job queue drain.
func (d *Daemon) runScheduler(ctx context.Context) error {
	defer func() {
		if d.watcher != nil {
			d.watcher.Stop()
		}
	}()

	ticker := time.NewTicker(d.refreshInterval)
	defer ticker.Stop()

	// prime the status view right after boot
	d.jobs.Enqueue(queue.KindRefresh, "", queue.SourcePeriodic)

	for {
		var events <-chan string
		if d.watcher != nil {
			events = d.watcher.Events()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			d.jobs.Enqueue(queue.KindRefresh, "", queue.SourcePeriodic)

		case save, ok := <-events:
			if !ok {
				d.watcher = nil
				continue
			}
			slog.Debug("save changed on disk", "save", save)
			d.jobs.Enqueue(queue.KindRefresh, save, queue.SourceWatcher)

		case <-d.rewatch:
			d.restartWatcher(ctx)

		case <-d.jobs.Wake():
			if d.drainJobs(ctx) {
				// a refresh just ran, start the periodic clock over
				ticker.Reset(d.refreshInterval)
			}
		}
	}
}

// drainJobs empties the queue, reporting whether any refresh ran.
func (d *Daemon) drainJobs(ctx context.Context) bool {
	refreshed := false
	for {
		job, ok := d.jobs.Dequeue()
		if !ok {
			return refreshed
		}

		if err := d.runJob(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return refreshed
			}
			slog.Error("sync job failed", "kind", job.Kind, "save", job.Save, "source", job.Source, "error", err)
			continue
		}

		if job.Kind == queue.KindRefresh {
			refreshed = true
		}
	}
}

func (d *Daemon) runJob(ctx context.Context, job *queue.Job) error {
	started := time.Now()
	slog.Debug("sync job start", "kind", job.Kind, "save", job.Save, "source", job.Source)
	defer func() {
		slog.Debug("sync job done", "kind", job.Kind, "save", job.Save, "took", time.Since(started))
	}()

	switch job.Kind {
	case queue.KindRefresh:
		if job.Save != "" {
			return d.runRefreshOne(ctx, job.Save)
		}
		// manual refreshes bypass the remote hash cache
		return d.runRefresh(ctx, job.Source == queue.SourceManual)

	case queue.KindPush:
		err := d.engine.Push(ctx, job.Save)
		if errors.Is(err, sync.ErrAlreadyInSync) {
			slog.Info("push skipped, already in sync", "save", job.Save)
			err = nil
		}
		if err != nil {
			return err
		}
		d.jobs.Enqueue(queue.KindRefresh, job.Save, job.Source)
		return nil

	case queue.KindPull:
		if d.watcher != nil {
			// quiet the watcher while the extract rewrites the save; a
			// late extract past the window only costs a spurious refresh
			d.watcher.SuppressFor(job.Save, sync.DefaultSuppressTimeout)
		}
		if err := d.engine.Pull(ctx, job.Save); err != nil {
			return err
		}
		d.jobs.Enqueue(queue.KindRefresh, job.Save, job.Source)
		return nil

	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// Refresh resolves every save's status right now, bypassing the job queue,
// and records the outcome as the latest snapshot.
func (d *Daemon) Refresh(ctx context.Context, force bool) ([]sync.StatusRecord, error) {
	records, err := d.engine.Refresh(ctx, force)
	if err != nil {
		return nil, err
	}
	d.lastRefresh.Store(&refreshSnapshot{Records: records, At: time.Now().UTC()})
	return records, nil
}

// Status resolves one save's status right now.
func (d *Daemon) Status(ctx context.Context, name string) (sync.StatusRecord, error) {
	return d.engine.Status(ctx, name)
}

// Push uploads one save synchronously. Daemon mode schedules uploads
// through EnqueuePush instead.
func (d *Daemon) Push(ctx context.Context, name string) error {
	return d.engine.Push(ctx, name)
}

// Pull downloads one save synchronously.
func (d *Daemon) Pull(ctx context.Context, name string) error {
	return d.engine.Pull(ctx, name)
}

func (d *Daemon) runRefresh(ctx context.Context, force bool) error {
	_, err := d.Refresh(ctx, force)
	return err
}

func (d *Daemon) runRefreshOne(ctx context.Context, name string) error {
	rec, err := d.engine.Status(ctx, name)
	if err != nil {
		var notFound *vault.NotFoundError
		if errors.As(err, &notFound) {
			// the save was removed while the job sat in the queue
			d.dropRecord(name)
			return nil
		}
		return err
	}
	d.mergeRecord(rec)
	return nil
}

// mergeRecord swaps in a new snapshot with one row replaced or appended.
func (d *Daemon) mergeRecord(rec sync.StatusRecord) {
	old := d.lastRefresh.Load()

	var records []sync.StatusRecord
	if old != nil {
		records = make([]sync.StatusRecord, len(old.Records))
		copy(records, old.Records)
	}

	replaced := false
	for i := range records {
		if records[i].Name == rec.Name {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}

	d.lastRefresh.Store(&refreshSnapshot{Records: records, At: time.Now().UTC()})
}

func (d *Daemon) dropRecord(name string) {
	old := d.lastRefresh.Load()
	if old == nil {
		return
	}

	records := make([]sync.StatusRecord, 0, len(old.Records))
	for _, rec := range old.Records {
		if rec.Name != name {
			records = append(records, rec)
		}
	}

	d.lastRefresh.Store(&refreshSnapshot{Records: records, At: old.At})
}

// Records returns the rows of the last refresh and when it ran.
func (d *Daemon) Records() ([]sync.StatusRecord, time.Time) {
	snap := d.lastRefresh.Load()
	if snap == nil {
		return nil, time.Time{}
	}
	return snap.Records, snap.At
}

// HasServer reports whether a sync backend is configured.
func (d *Daemon) HasServer() bool {
	return d.server != nil
}

// Saves returns the registered saves, sorted by name.
func (d *Daemon) Saves() []vault.Save {
	return d.registry.Snapshot()
}

// DataDir returns the resolved workspace root.
func (d *Daemon) DataDir() string {
	return d.ws.Root
}

// AddSave registers a save, persists the state blob and schedules its
// first status resolve. A failed persist rolls the registry back.
func (d *Daemon) AddSave(name string, location string) (vault.Save, error) {
	save, err := d.registry.AddSave(name, location)
	if err != nil {
		return vault.Save{}, err
	}

	if err := d.persistState(); err != nil {
		_ = d.registry.RemoveSave(name)
		return vault.Save{}, err
	}

	slog.Info("save added", "name", save.Name, "location", save.Location)
	d.requestRewatch()
	d.jobs.Enqueue(queue.KindRefresh, name, queue.SourceManual)
	return save, nil
}

// RemoveSave forgets a save. Local files and remote copies are untouched.
// A failed persist rolls the registry back.
func (d *Daemon) RemoveSave(name string) error {
	save, ok := d.registry.Get(name)
	if !ok {
		return &vault.NotFoundError{Name: name}
	}

	if err := d.registry.RemoveSave(name); err != nil {
		return err
	}

	if err := d.persistState(); err != nil {
		_, _ = d.registry.AddSave(save.Name, save.Location)
		return err
	}

	d.engine.ForgetSave(name)
	d.dropRecord(name)

	slog.Info("save removed", "name", name)
	d.requestRewatch()
	return nil
}

// EnqueuePush schedules a manual upload for a registered save.
func (d *Daemon) EnqueuePush(name string) (*queue.Job, error) {
	if !d.HasServer() {
		return nil, sync.ErrNoServer
	}
	if !d.registry.Has(name) {
		return nil, &vault.NotFoundError{Name: name}
	}
	return d.jobs.Enqueue(queue.KindPush, name, queue.SourceManual), nil
}

// EnqueuePull schedules a manual download for a registered save.
func (d *Daemon) EnqueuePull(name string) (*queue.Job, error) {
	if !d.HasServer() {
		return nil, sync.ErrNoServer
	}
	if !d.registry.Has(name) {
		return nil, &vault.NotFoundError{Name: name}
	}
	return d.jobs.Enqueue(queue.KindPull, name, queue.SourceManual), nil
}

// EnqueueRefresh schedules a full manual refresh.
func (d *Daemon) EnqueueRefresh() *queue.Job {
	return d.jobs.Enqueue(queue.KindRefresh, "", queue.SourceManual)
}

func (d *Daemon) persistState() error {
	saves, err := d.registry.Serialize()
	if err != nil {
		return fmt.Errorf("serialize saves: %w", err)
	}
	d.state.Saves = saves
	if err := d.store.Save(d.state); err != nil {
		return fmt.Errorf("persist engine state: %w", err)
	}
	return nil
}

func (d *Daemon) requestRewatch() {
	if !d.watchEnabled {
		return
	}
	select {
	case d.rewatch <- struct{}{}:
	default:
	}
}

func (d *Daemon) startWatcher(ctx context.Context) {
	ignore := sync.NewIgnoreList(d.ws.Root)
	ignore.Load()

	w := sync.NewSaveWatcher(sync.RootsForSaves(d.registry.Snapshot()), ignore)
	if err := w.Start(ctx); err != nil {
		slog.Warn("save watcher disabled", "error", err)
		return
	}
	d.watcher = w
}

func (d *Daemon) restartWatcher(ctx context.Context) {
	if d.watcher != nil {
		d.watcher.Stop()
		d.watcher = nil
	}
	d.startWatcher(ctx)
	slog.Debug("save watcher rebuilt", "saves", d.registry.Len())
}

func (d *Daemon) serverURLForLog() string {
	if d.state.HasServer() {
		return d.state.Server.URL
	}
	return "none"
}
