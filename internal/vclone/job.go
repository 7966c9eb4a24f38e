package vclone

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle of an interactive synthesis job.
type JobState string

const (
	JobStateIdle    JobState = "idle"
	JobStateRunning JobState = "running"
	JobStateDone    JobState = "done"
	JobStateFailed  JobState = "failed"
)

// ErrBusy is returned when a job is submitted while another is in
// flight. Submission is serialized: one synthesis per process at a time.
var ErrBusy = errors.New("a synthesis job is already in progress")

// Snapshot is a point-in-time view of the current job for polling
// front ends.
type Snapshot struct {
	JobID      string      `json:"job_id,omitempty"`
	State      JobState    `json:"state"`
	Progress   int         `json:"progress"`
	Status     string      `json:"status"`
	Logs       []string    `json:"logs"`
	Message    string      `json:"message,omitempty"`
	OutputPath string      `json:"output_path,omitempty"`
	SampleRate int         `json:"sample_rate,omitempty"`
	Runtime    RuntimeInfo `json:"runtime"`
}

// JobRunner runs one synthesis at a time on a background goroutine and
// publishes progress for pollers. While the model works there is no
// real progress signal, so the indicator ramps on a fixed sub-second
// cadence and parks below completion until the terminal result lands.
// The terminal state is always the last mutation: the ramp ticker is
// stopped before the result is recorded, and nothing mutates the
// snapshot afterwards.
type JobRunner struct {
	run       func(context.Context, Request) Result
	preflight func() []string
	tick      time.Duration

	mu   sync.Mutex
	snap Snapshot
}

// NewJobRunner builds a runner around the synthesis function and an
// environment preflight. tick is the progress cadence; 0 means the
// default 800ms.
func NewJobRunner(run func(context.Context, Request) Result, preflight func() []string, tick time.Duration) *JobRunner {
	if tick <= 0 {
		tick = 800 * time.Millisecond
	}
	return &JobRunner{
		run:       run,
		preflight: preflight,
		tick:      tick,
		snap:      Snapshot{State: JobStateIdle, Status: "waiting"},
	}
}

// Snapshot returns a copy of the current job view.
func (r *JobRunner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.snap
	out.Logs = append([]string(nil), r.snap.Logs...)
	return out
}

// Start submits a job. It returns ErrBusy while another job is
// running; otherwise the new job ID.
func (r *JobRunner) Start(ctx context.Context, req Request) (string, error) {
	r.mu.Lock()
	if r.snap.State == JobStateRunning {
		r.mu.Unlock()
		return "", ErrBusy
	}
	id := uuid.NewString()
	r.snap = Snapshot{
		JobID:    id,
		State:    JobStateRunning,
		Progress: 5,
		Status:   "checking inputs",
		Logs:     []string{"checking inputs..."},
	}
	r.mu.Unlock()

	go r.work(ctx, req)
	return id, nil
}

func (r *JobRunner) work(ctx context.Context, req Request) {
	if issues := r.preflight(); len(issues) > 0 {
		r.mu.Lock()
		r.snap.Logs = append(r.snap.Logs, "preflight found problems:")
		for _, issue := range issues {
			r.snap.Logs = append(r.snap.Logs, "- "+issue)
		}
		r.finishLocked(Result{Message: "environment preflight failed"})
		r.mu.Unlock()
		return
	}

	if problems := ValidateRequest(req); len(problems) > 0 {
		r.mu.Lock()
		r.snap.Logs = append(r.snap.Logs, "input problems:")
		for _, p := range problems {
			r.snap.Logs = append(r.snap.Logs, "- "+p)
		}
		r.finishLocked(Result{Message: "input validation failed"})
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	r.snap.Progress = 12
	r.snap.Status = "preparing"
	r.snap.Logs = append(r.snap.Logs,
		"device token: "+req.DeviceToken,
		"starting synthesis; the first load of a model can take a while.")
	r.mu.Unlock()

	resultCh := make(chan Result, 1)
	go func() { resultCh <- r.run(ctx, req) }()

	r.mu.Lock()
	r.snap.Progress = 20
	r.snap.Status = "generating"
	r.mu.Unlock()

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case res := <-resultCh:
			ticker.Stop()
			r.mu.Lock()
			r.snap.Logs = append(r.snap.Logs, res.Message)
			r.finishLocked(res)
			r.mu.Unlock()
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.snap.Progress < 92 {
				r.snap.Progress += 2
			}
			r.snap.Status = "generating..."
			r.mu.Unlock()
		}
	}
}

// finishLocked records the terminal result. Callers hold r.mu.
func (r *JobRunner) finishLocked(res Result) {
	r.snap.Message = res.Message
	r.snap.Runtime = res.Runtime
	if res.OK {
		r.snap.State = JobStateDone
		r.snap.Progress = 100
		r.snap.Status = "done"
		r.snap.OutputPath = res.OutputPath
		r.snap.SampleRate = res.SampleRate
		r.snap.Logs = append(r.snap.Logs, "completed; the output file is ready.")
		return
	}
	r.snap.State = JobStateFailed
	r.snap.Progress = 0
	r.snap.Status = "failed"
}
