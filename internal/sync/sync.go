// Package sync resolves how registered saves relate to their uploaded
// counterparts and moves packed containers both ways. The Engine owns the
// whole pipeline: fingerprint-gated packing, container hashing, remote hash
// lookups and the final status decision per save.
package sync

import (
	"errors"
	"time"
)

// Status is the sync verdict for a single save.
type Status string

const (
	// StatusNoServer means no backend is configured at all.
	StatusNoServer Status = "no_server"
	// StatusOffline means a backend is configured but unreachable.
	StatusOffline Status = "offline"
	// StatusNoLocalSave means the registered location is gone from disk.
	StatusNoLocalSave Status = "no_local_save"
	// StatusNotUploaded means the save exists locally but the backend has
	// never seen it.
	StatusNotUploaded Status = "not_uploaded"
	// StatusSynced means local and remote container hashes agree.
	StatusSynced Status = "synced"
	// StatusNotSynced means both sides exist but their hashes differ.
	StatusNotSynced Status = "not_synced"
	// StatusOnServer marks saves the backend holds that are not registered
	// locally.
	StatusOnServer Status = "on_server"
)

// Label is the human-readable form of a status.
func (s Status) Label() string {
	switch s {
	case StatusNoServer:
		return "No Server"
	case StatusOffline:
		return "Offline"
	case StatusNoLocalSave:
		return "No Local Save"
	case StatusNotUploaded:
		return "Not Uploaded"
	case StatusSynced:
		return "Synced"
	case StatusNotSynced:
		return "Not Synced"
	case StatusOnServer:
		return "On Server"
	default:
		return string(s)
	}
}

// StatusRecord is one resolved row of a refresh.
type StatusRecord struct {
	Name       string    `json:"name"`
	Location   string    `json:"location,omitempty"`
	Status     Status    `json:"status"`
	Size       int64     `json:"size,omitempty"`
	LocalHash  string    `json:"local_hash,omitempty"`
	RemoteHash string    `json:"remote_hash,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

var (
	ErrNoServer      = errors.New("sync: no server configured")
	ErrNotOnServer   = errors.New("sync: save not on server")
	ErrAlreadyInSync = errors.New("sync: already in sync")
)
