package vault

import (
	"fmt"

	"github.com/savebox/savebox/internal/utils"
)

// InvalidSaveError reports a save that failed name or location validation:
// bad name, duplicate name or location, or a containment conflict with an
// existing save. The registry is unchanged.
type InvalidSaveError struct {
	Name   string
	Reason string
}

func (e *InvalidSaveError) Error() string {
	return fmt.Sprintf("invalid save %q: %s", e.Name, e.Reason)
}

// SaveTooLargeError reports a location whose resolved size exceeds the
// archive size cap. The registry is unchanged.
type SaveTooLargeError struct {
	Name  string
	Size  int64
	Limit int64
}

func (e *SaveTooLargeError) Error() string {
	return fmt.Sprintf("save %q is %s, over the %s limit", e.Name, utils.FormatSize(e.Size), utils.FormatSize(e.Limit))
}

// NotFoundError reports an operation against an unknown save name, or a
// container path that does not exist.
type NotFoundError struct {
	Name string
	Path string
}

func (e *NotFoundError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("save %q: container %q not found", e.Name, e.Path)
	}
	return fmt.Sprintf("save %q not found", e.Name)
}

// InvalidContainerError reports a container whose extracted payload cannot
// be applied to the save: nothing extracted, more than one top-level item,
// or an item type that does not match the save location.
type InvalidContainerError struct {
	Path   string
	Reason string
}

func (e *InvalidContainerError) Error() string {
	return fmt.Sprintf("invalid container %q: %s", e.Path, e.Reason)
}
