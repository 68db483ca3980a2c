package vault

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/savebox/savebox/internal/archive"
	"github.com/savebox/savebox/internal/packspec"
	"github.com/savebox/savebox/internal/utils"
)

// ArchiveSaveData packs the named save's location into a container at
// destContainerPath. The container is the upload payload and the input to
// local hashing, so the same call serves both. A partial container left by a
// failed pack is removed before the error returns.
func (r *Registry) ArchiveSaveData(ctx context.Context, name string, destContainerPath string) error {
	save, ok := r.Get(name)
	if !ok {
		return &NotFoundError{Name: name}
	}

	if err := utils.EnsureParent(destContainerPath); err != nil {
		return fmt.Errorf("prepare container path: %w", err)
	}
	out, err := os.Create(destContainerPath)
	if err != nil {
		return fmt.Errorf("create container %q: %w", destContainerPath, err)
	}

	err = archive.Pack(ctx, save.Location, save.Name, out, &archive.PackOptions{
		Exclude: r.excludesFor(save),
	})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// a partial container must never be mistaken for a valid one
		if rmErr := os.Remove(destContainerPath); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Warn("failed to remove partial container", "path", destContainerPath, "error", rmErr)
		}
		return err
	}
	return nil
}

// ExtractSaveData applies the container at srcContainerPath to the named
// save. The container is unpacked into a fresh staging directory, checked
// for exactly one top-level item of the right type, and only then copied
// onto the live location. The live save is never touched with a partially
// extracted payload.
func (r *Registry) ExtractSaveData(ctx context.Context, name string, srcContainerPath string) error {
	save, ok := r.Get(name)
	if !ok {
		return &NotFoundError{Name: name}
	}
	if !utils.FileExists(srcContainerPath) {
		return &NotFoundError{Name: name, Path: srcContainerPath}
	}

	stage, err := archive.NewStagingDir(r.stagingDir)
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if err := stage.Remove(); err != nil {
			slog.Warn("failed to remove staging dir", "path", stage.Path(), "error", err)
		}
	}()

	// payload does not exist yet, so a single-file container lands there as
	// a file and a directory container builds its tree beneath it
	payload := filepath.Join(stage.Path(), "payload")
	if err := archive.Unpack(ctx, srcContainerPath, payload); err != nil {
		return err
	}

	item, itemIsDir, err := soleItem(payload, srcContainerPath)
	if err != nil {
		return err
	}
	if itemIsDir != save.IsDir() {
		if itemIsDir {
			return &InvalidContainerError{Path: srcContainerPath, Reason: fmt.Sprintf("holds a directory but save %q is a file", name)}
		}
		return &InvalidContainerError{Path: srcContainerPath, Reason: fmt.Sprintf("holds a file but save %q is a directory", name)}
	}

	// last check before the only observable mutation
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := utils.CopyPath(item, filepath.Clean(save.Location)); err != nil {
		return fmt.Errorf("apply extracted payload to %q: %w", save.Location, err)
	}
	return nil
}

// soleItem resolves the single top-level item a container produced in the
// staging payload path.
func soleItem(payload string, containerPath string) (string, bool, error) {
	info, err := os.Stat(payload)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, &InvalidContainerError{Path: containerPath, Reason: "container produced no items"}
		}
		return "", false, err
	}

	if !info.IsDir() {
		return payload, false, nil
	}

	items, err := archive.TopLevelItems(payload)
	if err != nil {
		return "", false, err
	}
	if len(items) != 1 {
		return "", false, &InvalidContainerError{Path: containerPath, Reason: fmt.Sprintf("expected one top-level item, found %d", len(items))}
	}

	item := filepath.Join(payload, items[0])
	return item, utils.DirExists(item), nil
}

// excludesFor merges the registry's global pack excludes with the save's own
// packspec sidecar. The sidecar itself never lands in a container.
func (r *Registry) excludesFor(save Save) []string {
	exclude := append([]string(nil), r.packExcludes...)
	if !save.IsDir() {
		return exclude
	}

	if packspec.Exists(save.Location) {
		spec, err := packspec.LoadFromFile(save.Location)
		if err != nil {
			slog.Warn("unreadable pack spec, packing everything", "save", save.Name, "error", err)
			return append(exclude, packspec.SpecFileName)
		}
		return append(exclude, spec.Patterns()...)
	}
	return append(exclude, packspec.SpecFileName)
}
