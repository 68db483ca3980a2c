package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/savebox/savebox/internal/serversdk"
	"github.com/savebox/savebox/internal/utils"
	"github.com/savebox/savebox/internal/vault"
)

const (
	DefaultWorkers  = 4
	DefaultCacheTTL = 30 * time.Second
)

// EngineConfig tunes the sync engine. Zero values pick the defaults.
type EngineConfig struct {
	// StagingDir holds transient containers while packing and pulling.
	StagingDir string
	// Workers bounds concurrent per-save resolution during a refresh.
	Workers int
	// CacheTTL is how long remote hash answers stay fresh.
	CacheTTL time.Duration
}

// Engine resolves sync statuses and moves containers between the local
// registry and the backend. server is nil when none is configured, which
// short-circuits every resolution to StatusNoServer.
type Engine struct {
	registry *vault.Registry
	server   serversdk.Server
	journal  *PackJournal
	cache    *RemoteHashCache
	staging  string
	workers  int
}

func NewEngine(registry *vault.Registry, server serversdk.Server, journal *PackJournal, cfg *EngineConfig) *Engine {
	if cfg == nil {
		cfg = &EngineConfig{}
	}

	staging := cfg.StagingDir
	if staging == "" {
		staging = filepath.Join(os.TempDir(), "savebox-staging")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &Engine{
		registry: registry,
		server:   server,
		journal:  journal,
		cache:    NewRemoteHashCache(ttl),
		staging:  staging,
		workers:  workers,
	}
}

// HasServer reports whether a backend is configured.
func (e *Engine) HasServer() bool {
	return e.server != nil
}

// Refresh resolves the status of every registered save plus the saves only
// the backend knows about. It either returns the complete set of rows or an
// error, never a partial picture. force drops cached remote answers first.
func (e *Engine) Refresh(ctx context.Context, force bool) ([]StatusRecord, error) {
	started := time.Now()
	saves := e.registry.Snapshot()

	if e.server == nil {
		return e.uniformRecords(saves, StatusNoServer), nil
	}

	if force {
		e.cache.Purge()
	}

	if !e.server.OnlineStatus(ctx) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return e.uniformRecords(saves, StatusOffline), nil
	}

	records := make([]StatusRecord, len(saves))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.workers)
	for i, save := range saves {
		eg.Go(func() error {
			rec, err := e.resolveOne(egCtx, save)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	remoteOnly, err := e.remoteOnly(ctx, saves)
	if err != nil {
		// per-save calls just succeeded, so this is a transient blip; the
		// local rows are still complete without the remote-only supplement
		slog.Warn("refresh could not enumerate server saves", "error", err)
	} else {
		records = append(records, remoteOnly...)
	}

	slog.Debug("refresh complete",
		"saves", len(saves),
		"remote_only", len(records)-len(saves),
		"took", time.Since(started),
	)
	return records, nil
}

// Status resolves a single save. Names the registry does not hold are
// answered with StatusOnServer when the backend has them, and with
// vault.NotFoundError otherwise.
func (e *Engine) Status(ctx context.Context, name string) (StatusRecord, error) {
	save, found := e.registry.Get(name)
	if found {
		if e.server == nil {
			return e.plainRecord(save, StatusNoServer), nil
		}
		if !e.server.OnlineStatus(ctx) {
			if err := ctx.Err(); err != nil {
				return StatusRecord{}, err
			}
			return e.plainRecord(save, StatusOffline), nil
		}
		return e.resolveOne(ctx, save)
	}

	if e.server != nil && e.server.OnlineStatus(ctx) {
		if _, onServer, err := e.cachedRemoteHash(ctx, name); err == nil && onServer {
			return StatusRecord{Name: name, Status: StatusOnServer, CheckedAt: time.Now()}, nil
		}
	}
	return StatusRecord{}, &vault.NotFoundError{Name: name}
}

// Push packs a save and uploads the container. Returns ErrAlreadyInSync
// when the backend already holds an identical container.
func (e *Engine) Push(ctx context.Context, name string) error {
	if e.server == nil {
		return ErrNoServer
	}

	save, found := e.registry.Get(name)
	if !found {
		return &vault.NotFoundError{Name: name}
	}
	if !utils.PathExists(save.Location) {
		return &vault.NotFoundError{Name: name, Path: save.Location}
	}

	fingerprint, err := Fingerprint(save.Location)
	if err != nil {
		return fmt.Errorf("fingerprint save %q: %w", name, err)
	}

	containerPath, localHash, err := e.packContainer(ctx, save)
	if err != nil {
		return err
	}
	defer os.Remove(containerPath)
	e.recordPack(name, fingerprint, localHash)

	if remoteHash, onServer, err := e.server.RemoteSaveHash(ctx, name); err == nil && onServer && remoteHash == localHash {
		return ErrAlreadyInSync
	}

	if err := e.server.UploadSaveData(ctx, name, containerPath); err != nil {
		return fmt.Errorf("upload save %q: %w", name, err)
	}
	e.cache.Set(name, localHash, true)

	if info, err := os.Stat(containerPath); err == nil {
		slog.Info("push complete", "save", name, "hash", localHash, "size", humanize.Bytes(uint64(info.Size())))
	} else {
		slog.Info("push complete", "save", name, "hash", localHash)
	}
	return nil
}

// Pull downloads a save's container and unpacks it over the registered
// location. The journal is updated so the save reads as synced without
// another pack.
func (e *Engine) Pull(ctx context.Context, name string) error {
	if e.server == nil {
		return ErrNoServer
	}

	save, found := e.registry.Get(name)
	if !found {
		return &vault.NotFoundError{Name: name}
	}

	if err := utils.EnsureDir(e.staging); err != nil {
		return err
	}
	containerPath := filepath.Join(e.staging, containerFileName(name))
	defer os.Remove(containerPath)

	if err := e.server.DownloadSaveData(ctx, name, containerPath); err != nil {
		if serversdk.HasErrorCode(err, serversdk.CodeSaveNotFound) {
			return fmt.Errorf("%w: %q", ErrNotOnServer, name)
		}
		return fmt.Errorf("download save %q: %w", name, err)
	}

	hash, err := e.server.LocalSaveHash(ctx, containerPath)
	if err != nil {
		return err
	}

	if err := e.registry.ExtractSaveData(ctx, name, containerPath); err != nil {
		return err
	}

	// local content now mirrors the downloaded container
	if fingerprint, err := Fingerprint(save.Location); err == nil {
		e.recordPack(name, fingerprint, hash)
	} else {
		_ = e.journal.Delete(name)
	}
	e.cache.Set(name, hash, true)

	slog.Info("pull complete", "save", name, "hash", hash)
	return nil
}

// InvalidateRemote drops the cached remote answer for one save, forcing the
// next resolution to ask the backend again.
func (e *Engine) InvalidateRemote(name string) {
	e.cache.Invalidate(name)
}

// ForgetSave clears journal and cache traces of a removed save.
func (e *Engine) ForgetSave(name string) {
	if err := e.journal.Delete(name); err != nil {
		slog.Warn("pack journal delete failed", "save", name, "error", err)
	}
	e.cache.Invalidate(name)
}

func (e *Engine) resolveOne(ctx context.Context, save vault.Save) (StatusRecord, error) {
	rec := StatusRecord{
		Name:      save.Name,
		Location:  save.Location,
		CheckedAt: time.Now(),
	}

	if err := ctx.Err(); err != nil {
		return rec, err
	}

	if !utils.PathExists(save.Location) {
		rec.Status = StatusNoLocalSave
		return rec, nil
	}
	if size, err := utils.SizeOf(save.Location); err == nil {
		rec.Size = size
	}

	remoteHash, onServer, err := e.cachedRemoteHash(ctx, save.Name)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return rec, err
		}
		// network failure mid-refresh reads as offline
		rec.Status = StatusOffline
		return rec, nil
	}

	if !onServer {
		rec.Status = StatusNotUploaded
		return rec, nil
	}
	rec.RemoteHash = remoteHash

	localHash, err := e.localContainerHash(ctx, save)
	if err != nil {
		return rec, fmt.Errorf("hash save %q: %w", save.Name, err)
	}
	rec.LocalHash = localHash

	if localHash == remoteHash {
		rec.Status = StatusSynced
	} else {
		rec.Status = StatusNotSynced
	}
	return rec, nil
}

// remoteOnly lists backend saves absent from the registry.
func (e *Engine) remoteOnly(ctx context.Context, saves []vault.Save) ([]StatusRecord, error) {
	names, err := e.server.SaveNames(ctx)
	if err != nil {
		return nil, err
	}

	local := mapset.NewSet[string]()
	for _, save := range saves {
		local.Add(save.Name)
	}
	remote := mapset.NewSet(names...)

	onServer := remote.Difference(local).ToSlice()
	sort.Strings(onServer)

	now := time.Now()
	records := make([]StatusRecord, 0, len(onServer))
	for _, name := range onServer {
		records = append(records, StatusRecord{Name: name, Status: StatusOnServer, CheckedAt: now})
	}
	return records, nil
}

func (e *Engine) cachedRemoteHash(ctx context.Context, name string) (string, bool, error) {
	if hash, onServer, cached := e.cache.Get(name); cached {
		return hash, onServer, nil
	}

	hash, onServer, err := e.server.RemoteSaveHash(ctx, name)
	if err != nil {
		return "", false, err
	}
	e.cache.Set(name, hash, onServer)
	return hash, onServer, nil
}

// localContainerHash returns the container hash a pack of this save would
// produce, reusing the journaled hash while the fingerprint holds.
func (e *Engine) localContainerHash(ctx context.Context, save vault.Save) (string, error) {
	fingerprint, err := Fingerprint(save.Location)
	if err != nil {
		return "", err
	}

	rec, err := e.journal.Get(save.Name)
	if err != nil {
		slog.Warn("pack journal read failed", "save", save.Name, "error", err)
	} else if rec != nil && rec.Fingerprint == fingerprint {
		return rec.Hash, nil
	}

	containerPath, hash, err := e.packContainer(ctx, save)
	if err != nil {
		return "", err
	}
	defer os.Remove(containerPath)

	e.recordPack(save.Name, fingerprint, hash)
	return hash, nil
}

// packContainer packs a save into the staging directory and hashes it. The
// caller owns the returned file.
func (e *Engine) packContainer(ctx context.Context, save vault.Save) (string, string, error) {
	if err := utils.EnsureDir(e.staging); err != nil {
		return "", "", err
	}

	containerPath := filepath.Join(e.staging, containerFileName(save.Name))
	if err := e.registry.ArchiveSaveData(ctx, save.Name, containerPath); err != nil {
		return "", "", err
	}

	hash, err := e.server.LocalSaveHash(ctx, containerPath)
	if err != nil {
		os.Remove(containerPath)
		return "", "", err
	}
	return containerPath, hash, nil
}

func (e *Engine) recordPack(name string, fingerprint string, hash string) {
	err := e.journal.Set(&PackRecord{
		Name:        name,
		Fingerprint: fingerprint,
		Hash:        hash,
		PackedAt:    time.Now(),
	})
	if err != nil {
		slog.Warn("pack journal write failed", "save", name, "error", err)
	}
}

func (e *Engine) uniformRecords(saves []vault.Save, status Status) []StatusRecord {
	records := make([]StatusRecord, 0, len(saves))
	for _, save := range saves {
		records = append(records, e.plainRecord(save, status))
	}
	return records
}

func (e *Engine) plainRecord(save vault.Save, status Status) StatusRecord {
	rec := StatusRecord{
		Name:      save.Name,
		Location:  save.Location,
		Status:    status,
		CheckedAt: time.Now(),
	}
	if size, err := utils.SizeOf(save.Location); err == nil {
		rec.Size = size
	}
	return rec
}

// save names are filesystem-safe, so they can key staging files directly
func containerFileName(name string) string {
	return fmt.Sprintf("%s-%s.zip", name, uuid.NewString())
}
