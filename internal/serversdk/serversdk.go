// Package serversdk is the client for the SaveBox sync backend. The core
// consumes the narrow Server capability; the HTTP Client here is the one
// production implementation, and FakeServer stands in for tests.
package serversdk

import (
	"context"
)

// Server is the remote cloud-storage capability the sync core talks to.
// OnlineStatus is probed per session and never persisted. Hashes are
// container fingerprints: local and remote values compare directly.
type Server interface {
	// OnlineStatus reports whether the backend is reachable right now. Any
	// transport failure reads as offline.
	OnlineStatus(ctx context.Context) bool

	// SaveNames enumerates the saves the server holds.
	SaveNames(ctx context.Context) ([]string, error)

	// RemoteSaveHash returns the server's container hash for a save. ok is
	// false when the server has never seen the save.
	RemoteSaveHash(ctx context.Context, name string) (hash string, ok bool, err error)

	// LocalSaveHash fingerprints a packed container file the same way the
	// server does on upload.
	LocalSaveHash(ctx context.Context, containerPath string) (string, error)

	// UploadSaveData sends a packed container as the new content of a save.
	UploadSaveData(ctx context.Context, name string, containerPath string) error

	// DownloadSaveData streams a save's container from the server into
	// destPath.
	DownloadSaveData(ctx context.Context, name string, destPath string) error
}
