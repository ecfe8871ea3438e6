// Package taskcoordinator is the small concurrent state machine per
// request described in spec §4.D: it allocates GPU assignments, builds
// and dispatches sub-tasks, polls them to completion, and publishes
// progress to the Progress Bus. Its shape (owner context, running-task
// cancel tracking, periodic tick loop) is grounded on the teacher's
// task.TaskScheduler, simplified from a database-backed multi-type
// scheduler down to one in-memory state machine per submitted task.
package taskcoordinator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amd-agi/genforge/internal/apierrors"
	"github.com/amd-agi/genforge/internal/argsvector"
	"github.com/amd-agi/genforge/internal/gpuscheduler"
	"github.com/amd-agi/genforge/internal/logger/log"
	"github.com/amd-agi/genforge/internal/progressbus"
	"github.com/amd-agi/genforge/internal/workersupervisor"
)

// Status is one of the five states a Task can be in (spec §3).
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusError    Status = "error"
	StatusCanceled Status = "canceled"
)

const (
	defaultPollInterval   = 500 * time.Millisecond
	defaultSubTaskTimeout = 30 * time.Minute
	maxRandomSeed         = int64(1) << 31
)

// GpuAssignment is the (device, imageCount) pair a sub-task was assigned
// (spec §3 Task.assignments).
type GpuAssignment struct {
	Device     int `json:"device"`
	ImageCount int `json:"images"`
}

// SubTask is exclusively owned by its parent Task (spec §3).
type SubTask struct {
	ID         string
	Device     int
	ImageCount int
	Seed       int64

	mu            sync.Mutex
	percentage    int
	statusText    string
	preview       *string
	results       []string
	finished      bool
	errMsg        string
	startedAt     time.Time
	stopRequested bool
}

func (s *SubTask) isTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// markStopRequested returns true the first time it is called for this
// sub-task, false on every subsequent call — the caller uses this to
// issue at most one stop() RPC per worker still holding an open
// sub-task.
func (s *SubTask) markStopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopRequested {
		return false
	}
	s.stopRequested = true
	return true
}

// Task is mutated only by the Task Coordinator's owner goroutine for this
// task; Snapshot reads take the same mutex so concurrent HTTP reads are
// safe (spec §5 shared-resource policy).
type Task struct {
	ID          string
	TotalImages int
	CreatedAt   time.Time

	mu                sync.Mutex
	status            Status
	percentage        int
	statusText        string
	preview           *string
	results           []string
	assignments       []GpuAssignment
	subTasks          []*SubTask
	errors            []string
	terminalPublished bool
}

// Snapshot is the read-only view of a Task returned to HTTP callers.
type Snapshot struct {
	ID          string          `json:"id"`
	TotalImages int             `json:"totalImages"`
	CreatedAt   time.Time       `json:"createdAt"`
	Status      Status          `json:"status"`
	Percentage  int             `json:"percentage"`
	StatusText  string          `json:"statusText"`
	Preview     *string         `json:"preview"`
	Results     []string        `json:"results"`
	Assignments []GpuAssignment `json:"assignments"`
	Errors      []string        `json:"errors"`
}

func (t *Task) snapshotLocked() Snapshot {
	return Snapshot{
		ID:          t.ID,
		TotalImages: t.TotalImages,
		CreatedAt:   t.CreatedAt,
		Status:      t.status,
		Percentage:  t.percentage,
		StatusText:  t.statusText,
		Preview:     t.preview,
		Results:     append([]string(nil), t.results...),
		Assignments: append([]GpuAssignment(nil), t.assignments...),
		Errors:      append([]string(nil), t.errors...),
	}
}

// Snapshot returns a point-in-time copy of the task's public fields.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Request is the caller-facing submission: Template carries every
// ArgsVector-builder field except ImageNumber/Seed/SeedRandom, which the
// Coordinator overwrites per sub-task (spec §4.D step 6).
type Request struct {
	Template    argsvector.Request
	TotalImages int
	Seed        int64
	SeedRandom  bool
}

// WorkerClient is the subset of *workersupervisor.Supervisor the
// Coordinator needs, pulled out as an interface so tests can exercise the
// state machine without spawning real worker processes.
type WorkerClient interface {
	Generate(ctx context.Context, device int, taskID string, argsVector []interface{}, contractVersion int) error
	Progress(ctx context.Context, device int, taskID string) (workersupervisor.ProgressResult, error)
	Stop(ctx context.Context, device int) (workersupervisor.StopResult, error)
}

// Coordinator owns the in-memory task table and drives every submitted
// task's sub-tasks to completion.
type Coordinator struct {
	scheduler  *gpuscheduler.Scheduler
	supervisor WorkerClient
	bus        *progressbus.Bus

	pollInterval   time.Duration
	subTaskTimeout time.Duration

	mu     sync.RWMutex
	tasks  map[string]*Task
	nextID uint64
}

// New constructs a Coordinator with the default poll interval (500ms) and
// sub-task wall-clock cap (30 minutes, spec §9 open question (b)).
func New(scheduler *gpuscheduler.Scheduler, supervisor WorkerClient, bus *progressbus.Bus) *Coordinator {
	return &Coordinator{
		scheduler:      scheduler,
		supervisor:     supervisor,
		bus:            bus,
		pollInterval:   defaultPollInterval,
		subTaskTimeout: defaultSubTaskTimeout,
		tasks:          make(map[string]*Task),
	}
}

// WithSubTaskTimeout overrides the default 30-minute wall-clock cap.
func (c *Coordinator) WithSubTaskTimeout(d time.Duration) *Coordinator {
	c.subTaskTimeout = d
	return c
}

func (c *Coordinator) newTaskID() string {
	n := atomic.AddUint64(&c.nextID, 1)
	return fmt.Sprintf("task-%d", n)
}

// Submit allocates a task_id, asks the Scheduler for an assignment, and
// dispatches one sub-task per assignment (spec §4.D "Entry"). It returns
// as soon as every sub-task's generate call has been accepted or rejected;
// the caller observes subsequent progress via GetTask/Snapshot or the
// WebSocket bus.
func (c *Coordinator) Submit(req Request) (*Task, error) {
	totalImages := req.TotalImages
	if totalImages <= 0 {
		totalImages = 1
	}

	task := &Task{
		ID:          c.newTaskID(),
		TotalImages: totalImages,
		CreatedAt:   time.Now(),
		status:      StatusPending,
	}
	c.putTask(task)

	assignments := c.scheduler.Distribute(totalImages)
	if len(assignments) == 0 {
		c.publishTerminalError(task, "no GPU available")
		return task, apierrors.New().WithCode(apierrors.NoGPUAvailable).WithMessage("no gpu available")
	}

	for _, a := range assignments {
		c.scheduler.MarkBusy(a.Slot.Device, true)
	}

	seed := req.Seed
	if req.SeedRandom || seed == 0 {
		seed = rand.Int63n(maxRandomSeed)
	}

	task.mu.Lock()
	task.status = StatusRunning
	task.statusText = fmt.Sprintf("Distributing to %d GPU(s)", len(assignments))
	task.percentage = 5
	for _, a := range assignments {
		task.assignments = append(task.assignments, GpuAssignment{Device: a.Slot.Device, ImageCount: a.ImageCount})
	}
	task.mu.Unlock()

	subTasks, acceptedDevices := c.dispatch(task.ID, assignments, seed, req.Template)

	task.mu.Lock()
	task.subTasks = subTasks
	task.mu.Unlock()

	// Open question (c): a later generate() failure cancels sub-tasks that
	// already accepted, for symmetry with an explicit Cancel call.
	anyFailed := false
	for _, st := range subTasks {
		if st.isTerminal() {
			anyFailed = true
			break
		}
	}
	if anyFailed {
		for _, device := range acceptedDevices {
			_, _ = c.supervisor.Stop(context.Background(), device)
		}
	}

	go c.runPollLoop(task)

	return task, nil
}

// dispatch builds and sends one generate call per assignment, seeding each
// sub-task so seeds never collide across GPUs for one submission (spec
// §4.D step 6). It returns the sub-task records and the devices whose
// generate call was accepted.
func (c *Coordinator) dispatch(taskID string, assignments []gpuscheduler.Assignment, seed int64, template argsvector.Request) ([]*SubTask, []int) {
	subTasks := make([]*SubTask, 0, len(assignments))
	var accepted []int
	baseSeed := seed

	for i, a := range assignments {
		subID := fmt.Sprintf("%s_%d", taskID, i)
		st := &SubTask{
			ID:         subID,
			Device:     a.Slot.Device,
			ImageCount: a.ImageCount,
			Seed:       baseSeed,
			startedAt:  time.Now(),
		}

		subReq := template
		subReq.ImageNumber = a.ImageCount
		subReq.Seed = baseSeed
		subReq.SeedRandom = false

		vec := argsvector.Build(subReq)
		if err := argsvector.Validate(vec); err != nil {
			st.finished = true
			st.errMsg = err.Error()
		} else if genErr := c.supervisor.Generate(context.Background(), a.Slot.Device, subID, vec, argsvector.ContractVersion); genErr != nil {
			st.finished = true
			st.errMsg = genErr.Error()
			log.Warnf("sub-task %s: generate rejected: %v", subID, genErr)
		} else {
			accepted = append(accepted, a.Slot.Device)
		}

		subTasks = append(subTasks, st)
		baseSeed += int64(a.ImageCount)
	}

	return subTasks, accepted
}

func (c *Coordinator) runPollLoop(task *Task) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		if c.tick(task) {
			return
		}
	}
}

// tick polls every unfinished sub-task once and reports whether the task
// as a whole is now done.
func (c *Coordinator) tick(task *Task) bool {
	task.mu.Lock()
	subTasks := task.subTasks
	task.mu.Unlock()

	allDone := true
	for _, st := range subTasks {
		if st.isTerminal() {
			continue
		}

		if time.Since(st.startedAt) > c.subTaskTimeout {
			_, _ = c.supervisor.Stop(context.Background(), st.Device)
			st.mu.Lock()
			st.finished = true
			st.errMsg = "sub-task exceeded wall-clock cap"
			st.mu.Unlock()
			continue
		}

		res, err := c.supervisor.Progress(context.Background(), st.Device, st.ID)
		if err != nil {
			// Transport errors are retried on the next tick (spec §4.D
			// "Failure semantics"), unless the worker is gone for good;
			// workersupervisor surfaces that as a permanent RPC error too,
			// so we treat any progress error as retry-able here and rely
			// on the wall-clock cap to eventually bound it.
			allDone = false
			continue
		}

		st.mu.Lock()
		st.percentage = res.Percentage
		if res.StatusText != "" {
			st.statusText = res.StatusText
		}
		st.preview = res.Preview
		if res.Error != "" {
			st.errMsg = res.Error
		}
		if res.Finished {
			st.finished = true
			st.results = res.Results
		} else {
			allDone = false
		}
		st.mu.Unlock()
	}

	c.applyProgress(task, subTasks)

	if allDone {
		c.finalize(task, subTasks)
		return true
	}
	return false
}

func (c *Coordinator) applyProgress(task *Task, subTasks []*SubTask) {
	task.mu.Lock()

	maxPct := task.percentage
	var statusText string
	var preview *string
	var errs []string

	for _, st := range subTasks {
		st.mu.Lock()
		if st.percentage > maxPct {
			maxPct = st.percentage
		}
		if st.statusText != "" {
			statusText = st.statusText
		}
		if st.preview != nil {
			preview = st.preview
		}
		if st.errMsg != "" {
			errs = append(errs, st.errMsg)
		}
		st.mu.Unlock()
	}

	task.percentage = maxPct
	if statusText != "" {
		task.statusText = statusText
	}
	task.preview = preview
	task.errors = errs

	snapshot := task.snapshotLocked()
	task.mu.Unlock()

	// Only finalize publishes the terminal update; a canceled task keeps
	// reporting in-progress updates until its sub-tasks settle.
	update := toUpdate(snapshot)
	update.Finished = false
	c.bus.Publish(update)
}

func (c *Coordinator) finalize(task *Task, subTasks []*SubTask) {
	var results []string
	successImages := 0
	for _, st := range subTasks {
		st.mu.Lock()
		if st.errMsg == "" && st.finished {
			results = append(results, st.results...)
			successImages += st.ImageCount
		}
		st.mu.Unlock()
	}

	task.mu.Lock()
	task.results = results
	task.percentage = 100
	task.preview = nil
	if task.status == StatusCanceled {
		task.statusText = fmt.Sprintf("Canceled (%d/%d images)", successImages, task.TotalImages)
	} else {
		task.statusText = fmt.Sprintf("Finished (%d/%d images)", successImages, task.TotalImages)
		if successImages == 0 {
			task.status = StatusError
		} else {
			task.status = StatusFinished
		}
	}
	publish := !task.terminalPublished
	task.terminalPublished = true
	snapshot := task.snapshotLocked()
	devices := append([]GpuAssignment(nil), task.assignments...)
	task.mu.Unlock()

	for _, d := range devices {
		c.scheduler.MarkBusy(d.Device, false)
	}

	if publish {
		c.bus.Publish(toUpdate(snapshot))
	}
}

func (c *Coordinator) publishTerminalError(task *Task, message string) {
	task.mu.Lock()
	task.status = StatusError
	task.statusText = message
	task.percentage = 100
	publish := !task.terminalPublished
	task.terminalPublished = true
	task.errors = append(task.errors, message)
	snapshot := task.snapshotLocked()
	task.mu.Unlock()

	if publish {
		c.bus.Publish(toUpdate(snapshot))
	}
}

func toUpdate(s Snapshot) progressbus.Update {
	return progressbus.Update{
		Type:       "progress",
		TaskID:     s.ID,
		Percentage: s.Percentage,
		StatusText: s.StatusText,
		Finished:   s.Status == StatusFinished || s.Status == StatusError || s.Status == StatusCanceled,
		Preview:    s.Preview,
		Results:    s.Results,
	}
}

func (c *Coordinator) putTask(task *Task) {
	c.mu.Lock()
	c.tasks[task.ID] = task
	c.mu.Unlock()
}

// GetTask returns the task with the given id, if it is still tracked.
func (c *Coordinator) GetTask(id string) (*Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks[id]
	return t, ok
}

// Cancel issues stop() to every worker owning an incomplete sub-task of
// id. Idempotent: calling it again after the task is already done is a
// no-op (spec §4.D "Cancellation").
func (c *Coordinator) Cancel(id string) (bool, error) {
	task, ok := c.GetTask(id)
	if !ok {
		return false, apierrors.New().WithCode(apierrors.RequestDataNotFound).WithMessagef("task %s not found", id)
	}
	return c.cancelTask(task), nil
}

// CancelAll issues stop() to every worker owning an incomplete sub-task
// across every tracked task (spec §6 "POST /stop": global, best-effort).
// It returns how many tasks had an in-flight cancel request sent and how
// many of those succeeded in reaching at least one worker.
func (c *Coordinator) CancelAll() (requested, succeeded int) {
	c.mu.RLock()
	tasks := make([]*Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		tasks = append(tasks, t)
	}
	c.mu.RUnlock()

	for _, t := range tasks {
		t.mu.Lock()
		inFlight := t.status == StatusRunning || t.status == StatusPending
		t.mu.Unlock()
		if !inFlight {
			continue
		}
		requested++
		if c.cancelTask(t) {
			succeeded++
		}
	}
	return requested, succeeded
}

func (c *Coordinator) cancelTask(task *Task) bool {
	task.mu.Lock()
	subTasks := task.subTasks
	if task.status == StatusRunning || task.status == StatusPending {
		task.status = StatusCanceled
	}
	task.mu.Unlock()

	any := false
	for _, st := range subTasks {
		if st.isTerminal() {
			continue
		}
		if !st.markStopRequested() {
			continue
		}
		if _, err := c.supervisor.Stop(context.Background(), st.Device); err == nil {
			any = true
		}
	}
	return any
}
