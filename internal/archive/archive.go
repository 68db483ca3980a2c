// Package archive packs a save location (single file or directory tree) into
// a zip container and unpacks containers back onto disk. Containers are the
// unit of upload, download and local hash computation, so packing walks the
// tree in a fixed order and keeps entry metadata stable for unchanged input.
package archive

import (
	"fmt"
)

// copyBufferSize is the chunk size for streaming entry payloads. Containers
// larger than available memory must still pack and unpack.
const copyBufferSize = 4 * 1024

// IOError reports a filesystem or archive failure that aborted a pack or
// unpack mid-operation. Any partially written container or destination tree
// must be discarded by the caller.
type IOError struct {
	Op   string // "pack" or "unpack"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("archive %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
