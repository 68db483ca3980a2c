// Package queue schedules the daemon's sync jobs. Jobs are ordered by
// who asked for them (manual beats watcher beats periodic) and FIFO
// within the same rank, and duplicate work for the same save collapses
// into a single entry.
package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the sync operation a job performs.
type Kind string

const (
	// KindRefresh recomputes sync status. An empty Save means the whole registry.
	KindRefresh Kind = "refresh"

	// KindPush uploads a save's container to the server.
	KindPush Kind = "push"

	// KindPull downloads and extracts a save from the server.
	KindPull Kind = "pull"
)

// Source ranks who requested a job. Lower values drain first.
type Source int

const (
	// SourceManual is an explicit user request via the CLI or control plane.
	SourceManual Source = iota

	// SourceWatcher is a filesystem change detected by the save watcher.
	SourceWatcher

	// SourcePeriodic is the daemon's background refresh timer.
	SourcePeriodic
)

func (s Source) String() string {
	switch s {
	case SourceManual:
		return "manual"
	case SourceWatcher:
		return "watcher"
	case SourcePeriodic:
		return "periodic"
	default:
		return "unknown"
	}
}

// Job is one unit of sync work for the daemon.
type Job struct {
	ID       string
	Kind     Kind
	Save     string
	Source   Source
	QueuedAt time.Time

	seq   uint64 // arrival order, tiebreak within a rank
	index int    // heap index, maintained by jobHeap
}

// Key identifies the work a job performs, ignoring who asked for it.
// Two jobs with the same key are the same work.
func (j *Job) Key() string {
	return string(j.Kind) + "/" + j.Save
}

// jobHeap implements heap.Interface ordered by source rank then arrival.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Source != h[j].Source {
		return h[i].Source < h[j].Source
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	job := x.(*Job)
	job.index = len(*h)
	*h = append(*h, job)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil // avoid memory leak
	job.index = -1 // for safety
	*h = old[:n-1]
	return job
}

// JobQueue is a thread-safe priority queue of sync jobs. Enqueueing work
// that is already queued does not add a duplicate; it upgrades the
// existing job's source rank if the new request outranks it.
type JobQueue struct {
	mu    sync.Mutex
	heap  jobHeap
	byKey map[string]*Job
	seq   uint64
	wake  chan struct{}
}

// NewJobQueue creates an empty job queue.
func NewJobQueue() *JobQueue {
	q := &JobQueue{
		heap:  make(jobHeap, 0),
		byKey: make(map[string]*Job),
		wake:  make(chan struct{}, 1),
	}
	heap.Init(&q.heap)
	return q
}

// Len returns the number of queued jobs.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Wake returns a channel that receives a signal whenever a job is
// enqueued. The channel is buffered, so signals coalesce; drain the
// queue fully after each wakeup.
func (q *JobQueue) Wake() <-chan struct{} {
	return q.wake
}

// Enqueue adds a job, or upgrades the rank of an already-queued job for
// the same work. It returns the job that will run.
func (q *JobQueue) Enqueue(kind Kind, save string, source Source) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := string(kind) + "/" + save
	if existing, ok := q.byKey[key]; ok {
		if source < existing.Source {
			existing.Source = source
			heap.Fix(&q.heap, existing.index)
		}
		return existing
	}

	job := &Job{
		ID:       uuid.NewString(),
		Kind:     kind,
		Save:     save,
		Source:   source,
		QueuedAt: time.Now(),
		seq:      q.seq,
	}
	q.seq++
	heap.Push(&q.heap, job)
	q.byKey[key] = job

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return job
}

// Dequeue removes and returns the highest-ranked job, or false when the
// queue is empty.
func (q *JobQueue) Dequeue() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil, false
	}
	job := heap.Pop(&q.heap).(*Job)
	delete(q.byKey, job.Key())
	return job, true
}

// DequeueAll removes and returns every queued job in rank order.
func (q *JobQueue) DequeueAll() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]*Job, 0, len(q.heap))
	for len(q.heap) > 0 {
		job := heap.Pop(&q.heap).(*Job)
		delete(q.byKey, job.Key())
		jobs = append(jobs, job)
	}
	return jobs
}
