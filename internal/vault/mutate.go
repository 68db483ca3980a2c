package vault

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/savebox/savebox/internal/utils"
)

// AddSave validates name and location and inserts the save. Validate and
// insert happen under one lock, so concurrent callers never observe a
// half-applied add and on any failure the registry is exactly as before.
func (r *Registry) AddSave(name string, location string) (Save, error) {
	if err := validateName(name); err != nil {
		return Save{}, err
	}

	normalized, err := utils.Normalize(location)
	if err != nil {
		return Save{}, &InvalidSaveError{Name: name, Reason: fmt.Sprintf("bad location %q: %v", location, err)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.saves[name]; exists {
		return Save{}, &InvalidSaveError{Name: name, Reason: "a save with this name already exists"}
	}

	for _, other := range r.saves {
		if other.Location == normalized {
			return Save{}, &InvalidSaveError{Name: name, Reason: fmt.Sprintf("location already registered as save %q", other.Name)}
		}
		if utils.PathContains(other.Location, normalized) {
			return Save{}, &InvalidSaveError{Name: name, Reason: fmt.Sprintf("location is inside save %q", other.Name)}
		}
		if utils.PathContains(normalized, other.Location) {
			return Save{}, &InvalidSaveError{Name: name, Reason: fmt.Sprintf("location contains save %q", other.Name)}
		}
	}

	size, err := utils.SizeOf(normalized)
	if err != nil {
		return Save{}, fmt.Errorf("resolve size of %q: %w", normalized, err)
	}
	if size > MaxArchiveSize {
		return Save{}, &SaveTooLargeError{Name: name, Size: size, Limit: MaxArchiveSize}
	}

	save := Save{Name: name, Location: normalized}
	r.saves[name] = save
	slog.Debug("save added", "name", name, "location", normalized, "size", humanize.Bytes(uint64(size)))
	return save, nil
}

// RemoveSave deletes the named save.
func (r *Registry) RemoveSave(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.saves[name]; !ok {
		return &NotFoundError{Name: name}
	}
	delete(r.saves, name)
	slog.Debug("save removed", "name", name)
	return nil
}

// validateName enforces the identifier rules: 1 to MaxNameLength characters
// and no path separator characters.
func validateName(name string) error {
	if name == "" {
		return &InvalidSaveError{Name: name, Reason: "name cannot be empty"}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return &InvalidSaveError{Name: name, Reason: fmt.Sprintf("name longer than %d characters", MaxNameLength)}
	}
	if strings.ContainsAny(name, `/\`) {
		return &InvalidSaveError{Name: name, Reason: "name cannot contain path separators"}
	}
	return nil
}
