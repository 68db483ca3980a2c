package client

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/savebox/savebox/internal/queue"
	"github.com/savebox/savebox/internal/sync"
	"github.com/savebox/savebox/internal/vault"
	"github.com/savebox/savebox/internal/version"
)

func abortWithError(c *gin.Context, status int, code string, err error) {
	c.Abort()
	c.Error(err)
	c.PureJSON(status, ControlPlaneError{
		ErrorCode: code,
		Error:     err.Error(),
	})
}

// statusHandler reports daemon health.
type statusHandler struct {
	daemon *Daemon
}

func newStatusHandler(daemon *Daemon) *statusHandler {
	return &statusHandler{daemon: daemon}
}

func (h *statusHandler) Status(c *gin.Context) {
	d := h.daemon

	resp := &StatusResponse{
		Status:     "ok",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    version.Version,
		Revision:   version.Revision,
		BuildDate:  version.BuildDate,
		HasServer:  d.HasServer(),
		Saves:      d.registry.Len(),
		QueuedJobs: d.jobs.Len(),
		Process:    currentProcessStats(d.startedAt),
	}

	if _, at := d.Records(); !at.IsZero() {
		resp.LastRefresh = at.Format(time.RFC3339)
	}

	c.PureJSON(http.StatusOK, resp)
}

// currentProcessStats samples this process via gopsutil. Any probe failure
// degrades that field to zero rather than failing the status call.
func currentProcessStats(startedAt time.Time) *ProcessStats {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil
	}

	stats := &ProcessStats{PID: proc.Pid}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		stats.MemoryRSS = mem.RSS
	}
	if threads, err := proc.NumThreads(); err == nil {
		stats.NumThreads = threads
	}
	if !startedAt.IsZero() {
		stats.UptimeSecs = int64(time.Since(startedAt).Seconds())
	}
	return stats
}

// savesHandler manages the registry over HTTP.
type savesHandler struct {
	daemon *Daemon
}

func newSavesHandler(daemon *Daemon) *savesHandler {
	return &savesHandler{daemon: daemon}
}

func (h *savesHandler) List(c *gin.Context) {
	records, at := h.daemon.Records()

	resp := SavesResponse{Saves: records}
	if !at.IsZero() {
		resp.RefreshedAt = at.Format(time.RFC3339)
	}
	if resp.Saves == nil {
		// no refresh has run yet; serve bare registry rows with an
		// empty status until the first pass lands
		saves := h.daemon.registry.Snapshot()
		resp.Saves = make([]sync.StatusRecord, 0, len(saves))
		for _, save := range saves {
			resp.Saves = append(resp.Saves, sync.StatusRecord{
				Name:     save.Name,
				Location: save.Location,
			})
		}
	}

	c.PureJSON(http.StatusOK, resp)
}

func (h *savesHandler) Add(c *gin.Context) {
	var req AddSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	save, err := h.daemon.AddSave(req.Name, req.Location)
	if err != nil {
		var invalid *vault.InvalidSaveError
		var tooLarge *vault.SaveTooLargeError
		switch {
		case errors.As(err, &invalid):
			abortWithError(c, http.StatusBadRequest, ErrCodeInvalidSave, err)
		case errors.As(err, &tooLarge):
			abortWithError(c, http.StatusRequestEntityTooLarge, ErrCodeSaveTooLarge, err)
		default:
			abortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		}
		return
	}

	c.PureJSON(http.StatusCreated, save)
}

func (h *savesHandler) Remove(c *gin.Context) {
	name := c.Param("name")

	if err := h.daemon.RemoveSave(name); err != nil {
		var notFound *vault.NotFoundError
		if errors.As(err, &notFound) {
			abortWithError(c, http.StatusNotFound, ErrCodeNotFound, err)
			return
		}
		abortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	c.PureJSON(http.StatusOK, ControlPlaneResponse{Code: CodeOk})
}

// syncHandler schedules sync work; jobs run asynchronously on the
// daemon's scheduler.
type syncHandler struct {
	daemon *Daemon
}

func newSyncHandler(daemon *Daemon) *syncHandler {
	return &syncHandler{daemon: daemon}
}

func (h *syncHandler) Push(c *gin.Context) {
	h.schedule(c, h.daemon.EnqueuePush)
}

func (h *syncHandler) Pull(c *gin.Context) {
	h.schedule(c, h.daemon.EnqueuePull)
}

func (h *syncHandler) schedule(c *gin.Context, enqueue func(string) (*queue.Job, error)) {
	name := c.Param("name")

	job, err := enqueue(name)
	if err != nil {
		var notFound *vault.NotFoundError
		switch {
		case errors.Is(err, sync.ErrNoServer):
			abortWithError(c, http.StatusConflict, ErrCodeNoServer, err)
		case errors.As(err, &notFound):
			abortWithError(c, http.StatusNotFound, ErrCodeNotFound, err)
		default:
			abortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		}
		return
	}

	c.PureJSON(http.StatusAccepted, jobResponse(job))
}

func (h *syncHandler) Refresh(c *gin.Context) {
	job := h.daemon.EnqueueRefresh()
	c.PureJSON(http.StatusAccepted, jobResponse(job))
}

func jobResponse(job *queue.Job) JobResponse {
	return JobResponse{
		JobID:  job.ID,
		Kind:   string(job.Kind),
		Save:   job.Save,
		Source: job.Source.String(),
	}
}
