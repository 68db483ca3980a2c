package client

import "github.com/savebox/savebox/internal/sync"

// ControlPlaneConfig contains configuration for the control plane server
type ControlPlaneConfig struct {
	Addr      string // Address to bind the control plane server
	AuthToken string // Access token for the control plane server, empty disables auth
}

const (
	CodeOk              = "OK"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeNotFound     = "ERR_NOT_FOUND"
	ErrCodeInvalidSave  = "ERR_INVALID_SAVE"
	ErrCodeSaveTooLarge = "ERR_SAVE_TOO_LARGE"
	ErrCodeNoServer     = "ERR_NO_SERVER"
	ErrCodeUnknownError = "ERR_UNKNOWN_ERROR"
)

type ControlPlaneResponse struct {
	Code string `json:"code"`
}

type ControlPlaneError struct {
	ErrorCode string `json:"code"`
	Error     string `json:"error"`
}

// StatusResponse represents the health of the daemon.
type StatusResponse struct {
	Status      string        `json:"status"`      // health status ("ok").
	Timestamp   string        `json:"ts"`          // when the status was sampled.
	Version     string        `json:"version"`     // version of the daemon.
	Revision    string        `json:"revision"`    // revision of the daemon.
	BuildDate   string        `json:"buildDate"`   // build date of the daemon.
	HasServer   bool          `json:"hasServer"`   // whether a sync backend is configured.
	Saves       int           `json:"saves"`       // registered save count.
	QueuedJobs  int           `json:"queuedJobs"`  // jobs waiting in the scheduler.
	LastRefresh string        `json:"lastRefresh,omitempty"`
	Process     *ProcessStats `json:"process,omitempty"`
}

// ProcessStats is a small resource snapshot of the daemon process.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpuPercent"`
	MemoryRSS  uint64  `json:"memoryRss"`
	NumThreads int32   `json:"numThreads"`
	UptimeSecs int64   `json:"uptimeSecs"`
}

type SavesResponse struct {
	Saves       []sync.StatusRecord `json:"saves"`
	RefreshedAt string              `json:"refreshedAt,omitempty"`
}

type AddSaveRequest struct {
	Name     string `json:"name" binding:"required"`
	Location string `json:"location" binding:"required"`
}

// JobResponse acknowledges scheduled work; the job runs asynchronously.
type JobResponse struct {
	JobID  string `json:"jobId"`
	Kind   string `json:"kind"`
	Save   string `json:"save,omitempty"`
	Source string `json:"source"`
}
