package uploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/lecture-agent/internal/events"
	"github.com/snarg/lecture-agent/internal/metrics"
	"github.com/snarg/lecture-agent/internal/remote"
)

// ErrTaskNotFound is returned when a task id doesn't match any task.
var ErrTaskNotFound = errors.New("task not found")

// ErrNotFailed is returned when Retry is called on a task that isn't failed.
var ErrNotFailed = errors.New("task is not in failed state")

// JobClient is the remote service boundary the queue drives tasks through.
type JobClient interface {
	SubmitJob(ctx context.Context, audioPath string, opts remote.SubmitOpts) (*remote.Job, error)
	GetJobStatus(ctx context.Context, id string) (*remote.Job, error)
}

// Options configures the upload task queue. Zero durations and counts take
// the production defaults.
type Options struct {
	Client      JobClient
	Bus         *events.Bus
	OnCompleted func(Task) // fired once per task reaching terminal success

	PollInterval   time.Duration // default 5s
	PollDeadline   time.Duration // default 30m, total polling time per task
	MaxPollErrors  int           // default 5 consecutive status-check failures
	UploadAttempts int           // default 3 attempts for transient upload errors
	UploadBackoff  time.Duration // default 2s, grows linearly per attempt
	RemoveDelay    time.Duration // default 3s, grace before a completed task disappears

	Log zerolog.Logger
}

// task is the queue-private mutable state. The embedded Task is copied out
// for observers; cancel tears down the task's active upload/poll goroutine.
type task struct {
	Task
	cancel  context.CancelFunc
	removed bool
}

// Queue owns the set of in-flight upload tasks. Each task runs its upload
// and polling phases on its own goroutine; all shared state is guarded by
// one mutex, and change notifications are published to the event bus only
// after the mutating critical section ends.
type Queue struct {
	opts Options
	log  zerolog.Logger

	mu     sync.Mutex
	tasks  []*task
	closed bool
	wg     sync.WaitGroup
}

// New creates a queue. Call Close to cancel in-flight tasks and wait for
// their goroutines.
func New(opts Options) *Queue {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.PollDeadline <= 0 {
		opts.PollDeadline = 30 * time.Minute
	}
	if opts.MaxPollErrors <= 0 {
		opts.MaxPollErrors = 5
	}
	if opts.UploadAttempts <= 0 {
		opts.UploadAttempts = 3
	}
	if opts.UploadBackoff <= 0 {
		opts.UploadBackoff = 2 * time.Second
	}
	if opts.RemoveDelay <= 0 {
		opts.RemoveDelay = 3 * time.Second
	}
	return &Queue{
		opts: opts,
		log:  opts.Log.With().Str("component", "upload-queue").Logger(),
	}
}

// AddTask enqueues an upload for filePath and returns immediately; the
// upload runs in the background. Deduplicates by path: if a task for the
// path exists and is failed it is retried, otherwise the call is a no-op
// returning the existing task.
func (q *Queue) AddTask(filePath, title, language string) Task {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Task{}
	}

	for _, t := range q.tasks {
		if t.FilePath != filePath {
			continue
		}
		if t.Status == TaskFailed {
			snap := q.restartLocked(t)
			q.mu.Unlock()
			q.notify("retried", snap)
			return snap
		}
		snap := t.Task
		q.mu.Unlock()
		return snap
	}

	t := &task{Task: Task{
		ID:       uuid.NewString(),
		FilePath: filePath,
		Title:    title,
		Language: language,
		Status:   TaskUploading,
	}}
	q.tasks = append(q.tasks, t)
	snap := q.startLocked(t)
	q.mu.Unlock()

	metrics.TasksEnqueuedTotal.Inc()
	q.log.Info().Str("task_id", snap.ID).Str("path", filePath).Msg("task enqueued")
	q.notify("enqueued", snap)
	return snap
}

// Retry restarts a failed task from the upload phase. Only valid when the
// task is failed.
func (q *Queue) Retry(id string) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrTaskNotFound
	}
	t := q.findLocked(id)
	if t == nil {
		q.mu.Unlock()
		return ErrTaskNotFound
	}
	if t.Status != TaskFailed {
		q.mu.Unlock()
		return ErrNotFailed
	}
	snap := q.restartLocked(t)
	q.mu.Unlock()

	q.notify("retried", snap)
	return nil
}

// Remove cancels any active phase for the task and drops it from the list
// unconditionally.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	t := q.findLocked(id)
	if t == nil {
		q.mu.Unlock()
		return ErrTaskNotFound
	}
	q.removeLocked(t)
	snap := t.Task
	q.mu.Unlock()

	q.notify("removed", snap)
	return nil
}

// Tasks returns a snapshot of the observable task list, oldest first.
func (q *Queue) Tasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Task, len(q.tasks))
	for i, t := range q.tasks {
		out[i] = t.Task
	}
	return out
}

// Close cancels all in-flight tasks and waits for their goroutines to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, t := range q.tasks {
		if t.cancel != nil {
			t.cancel()
		}
	}
	q.mu.Unlock()

	q.wg.Wait()
	q.log.Info().Msg("upload queue closed")
}

// startLocked launches the task's background phases. Caller holds q.mu.
func (q *Queue) startLocked(t *task) Task {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	q.wg.Add(1)
	go q.run(ctx, t)
	return t.Task
}

// restartLocked resets a failed task and re-enters the upload phase. The
// previous polling loop is guaranteed gone: a task only becomes failed
// after its phase goroutine has exited or is about to.
func (q *Queue) restartLocked(t *task) Task {
	t.Status = TaskUploading
	t.UploadProgress = 0
	t.ProcessingProgress = 0
	t.RemoteJobID = ""
	t.ErrorMessage = ""
	t.ProcessingStartedAt = time.Time{}
	return q.startLocked(t)
}

func (q *Queue) findLocked(id string) *task {
	for _, t := range q.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (q *Queue) removeLocked(t *task) {
	t.removed = true
	if t.cancel != nil {
		t.cancel()
	}
	for i, cur := range q.tasks {
		if cur == t {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			return
		}
	}
}

// run drives one task through upload then polling. All failures are
// converted into task state; nothing escapes the goroutine.
func (q *Queue) run(ctx context.Context, t *task) {
	defer q.wg.Done()

	jobID, ok := q.runUpload(ctx, t)
	if !ok {
		return
	}
	q.runPoll(ctx, t, jobID)
}

// runUpload streams the file to the remote submission endpoint. Transient
// transport errors are retried with linearly increasing backoff; a missing
// file fails immediately and is never auto-retried.
func (q *Queue) runUpload(ctx context.Context, t *task) (string, bool) {
	if _, err := os.Stat(t.FilePath); err != nil {
		q.failTask(t, "file not found: "+t.FilePath, "file_not_found")
		return "", false
	}

	var lastErr error
	for attempt := 1; attempt <= q.opts.UploadAttempts; attempt++ {
		job, err := q.opts.Client.SubmitJob(ctx, t.FilePath, remote.SubmitOpts{
			Title:    t.Title,
			Language: t.Language,
			Progress: func(f float64) { q.setUploadProgress(t, f) },
		})
		if err == nil {
			q.mu.Lock()
			if q.closed || t.removed {
				q.mu.Unlock()
				return "", false
			}
			t.UploadProgress = 1
			t.Status = TaskProcessing
			t.RemoteJobID = job.ID
			t.ProcessingStartedAt = time.Now()
			snap := t.Task
			q.mu.Unlock()

			metrics.UploadsSucceededTotal.Inc()
			q.log.Info().Str("task_id", t.ID).Str("job_id", job.ID).Msg("upload accepted")
			q.notify("processing", snap)
			return job.ID, true
		}

		lastErr = err
		if ctx.Err() != nil || !remote.IsTransient(err) {
			break
		}
		q.log.Warn().Err(err).Str("task_id", t.ID).Int("attempt", attempt).Msg("transient upload error, retrying")

		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(q.opts.UploadBackoff * time.Duration(attempt)):
		}
	}

	q.failTask(t, fmt.Sprintf("upload failed: %v", lastErr), "upload")
	return "", false
}

// runPoll queries the job status immediately and then on a fixed interval
// until a terminal state, the consecutive-error budget, or the overall
// deadline ends the loop. Every exit path cancels via return, releasing the
// tickers.
func (q *Queue) runPoll(ctx context.Context, t *task, jobID string) {
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(q.opts.PollDeadline)
	defer deadline.Stop()

	consecutive := 0
	for {
		metrics.PollRequestsTotal.Inc()
		job, err := q.opts.Client.GetJobStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.PollErrorsTotal.Inc()
			consecutive++
			if consecutive >= q.opts.MaxPollErrors {
				msg := "connection error while checking transcription status"
				if remote.IsTimeout(err) {
					msg = "transcription server unresponsive"
				}
				q.failTask(t, msg, "poll_budget")
				return
			}
			q.log.Warn().Err(err).Str("task_id", t.ID).Int("consecutive", consecutive).Msg("status check failed")
		} else {
			consecutive = 0
			switch job.Status {
			case remote.StatusCompleted:
				q.completeTask(t)
				return
			case remote.StatusFailed:
				q.failTask(t, "transcription failed on server", "processing")
				return
			default:
				if job.Progress >= 0 {
					q.setProcessingProgress(t, job.Progress)
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			q.failTask(t, fmt.Sprintf("transcription timed out after %s", q.opts.PollDeadline), "poll_timeout")
			return
		case <-ticker.C:
		}
	}
}

func (q *Queue) completeTask(t *task) {
	q.mu.Lock()
	if q.closed || t.removed {
		q.mu.Unlock()
		return
	}
	t.Status = TaskCompleted
	t.ProcessingProgress = 1
	snap := t.Task
	cb := q.opts.OnCompleted
	q.mu.Unlock()

	metrics.TasksCompletedTotal.Inc()
	q.log.Info().Str("task_id", t.ID).Str("job_id", snap.RemoteJobID).Msg("task completed")
	q.notify("completed", snap)
	if cb != nil {
		cb(snap)
	}

	// Keep the completed task visible briefly so observers can show the
	// success state before it disappears.
	time.AfterFunc(q.opts.RemoveDelay, func() {
		q.mu.Lock()
		if q.closed || t.removed {
			q.mu.Unlock()
			return
		}
		q.removeLocked(t)
		q.mu.Unlock()
		q.notify("removed", snap)
	})
}

func (q *Queue) failTask(t *task, msg, reason string) {
	q.mu.Lock()
	if q.closed || t.removed {
		q.mu.Unlock()
		return
	}
	t.Status = TaskFailed
	t.ErrorMessage = msg
	snap := t.Task
	q.mu.Unlock()

	metrics.TasksFailedTotal.WithLabelValues(reason).Inc()
	q.log.Warn().Str("task_id", t.ID).Str("reason", reason).Str("error", msg).Msg("task failed")
	q.notify("failed", snap)
}

func (q *Queue) setUploadProgress(t *task, f float64) {
	q.mu.Lock()
	if !q.closed && !t.removed && f > t.UploadProgress {
		t.UploadProgress = f
	}
	q.mu.Unlock()
}

func (q *Queue) setProcessingProgress(t *task, f float64) {
	q.mu.Lock()
	if !q.closed && !t.removed {
		t.ProcessingProgress = f
	}
	q.mu.Unlock()
}

func (q *Queue) notify(action string, snap Task) {
	if q.opts.Bus == nil {
		return
	}
	q.opts.Bus.Publish(events.Event{
		Type:   events.TypeTask,
		Action: action,
		Data:   snap,
	})
}
