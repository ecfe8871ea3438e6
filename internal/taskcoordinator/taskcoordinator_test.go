package taskcoordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amd-agi/genforge/internal/argsvector"
	"github.com/amd-agi/genforge/internal/gpuscheduler"
	"github.com/amd-agi/genforge/internal/progressbus"
	"github.com/amd-agi/genforge/internal/workersupervisor"
)

// fakeWorkerClient is a scriptable WorkerClient: each device has its own
// ordered queue of progress responses, consumed one per Progress call.
type fakeWorkerClient struct {
	mu            sync.Mutex
	generateErr   map[int]error
	progressQueue map[int][]workersupervisor.ProgressResult
	stopped       map[int]int
	generated     map[int]int
}

func newFakeWorkerClient() *fakeWorkerClient {
	return &fakeWorkerClient{
		generateErr:   map[int]error{},
		progressQueue: map[int][]workersupervisor.ProgressResult{},
		stopped:       map[int]int{},
		generated:     map[int]int{},
	}
}

func (f *fakeWorkerClient) Generate(ctx context.Context, device int, taskID string, argsVector []interface{}, contractVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated[device]++
	return f.generateErr[device]
}

func (f *fakeWorkerClient) Progress(ctx context.Context, device int, taskID string) (workersupervisor.ProgressResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.progressQueue[device]
	if len(q) == 0 {
		return workersupervisor.ProgressResult{Percentage: 100, Finished: true}, nil
	}
	next := q[0]
	f.progressQueue[device] = q[1:]
	return next, nil
}

func (f *fakeWorkerClient) Stop(ctx context.Context, device int) (workersupervisor.StopResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped[device]++
	return workersupervisor.StopResult{Success: true}, nil
}

func waitForStatus(t *testing.T, task *Task, want Status) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := task.Snapshot()
		if s.Status == want {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %s, last was %s", want, task.Snapshot().Status)
	return Snapshot{}
}

func fastCoordinator(scheduler *gpuscheduler.Scheduler, worker WorkerClient) *Coordinator {
	c := New(scheduler, worker, progressbus.New())
	c.pollInterval = 5 * time.Millisecond
	return c
}

func TestSubmitSingleGpuSingleImage(t *testing.T) {
	sched := gpuscheduler.New(false, true, []gpuscheduler.Slot{{Device: 0, Weight: 1}})
	worker := newFakeWorkerClient()
	worker.progressQueue[0] = []workersupervisor.ProgressResult{
		{Percentage: 10},
		{Percentage: 50},
		{Percentage: 100, Finished: true, Results: []string{"a.png"}},
	}

	c := fastCoordinator(sched, worker)
	task, err := c.Submit(Request{Template: argsvector.Request{Prompt: "a cat"}, TotalImages: 1})
	require.NoError(t, err)

	snap := waitForStatus(t, task, StatusFinished)
	assert.Equal(t, 100, snap.Percentage)
	assert.Equal(t, []string{"a.png"}, snap.Results)
	assert.Equal(t, "Finished (1/1 images)", snap.StatusText)
}

func TestSubmitTwoGpuWeightedSplitSeedsDoNotCollide(t *testing.T) {
	sched := gpuscheduler.New(true, true, []gpuscheduler.Slot{{Device: 0, Weight: 3}, {Device: 1, Weight: 1}})
	worker := newFakeWorkerClient()
	worker.progressQueue[0] = []workersupervisor.ProgressResult{{Percentage: 100, Finished: true, Results: []string{"a"}}}
	worker.progressQueue[1] = []workersupervisor.ProgressResult{{Percentage: 100, Finished: true, Results: []string{"b"}}}

	c := fastCoordinator(sched, worker)
	task, err := c.Submit(Request{Template: argsvector.Request{Prompt: "x"}, TotalImages: 8, Seed: 100})
	require.NoError(t, err)

	snap := waitForStatus(t, task, StatusFinished)
	require.Len(t, snap.Assignments, 2)

	seeds := map[int]int64{}
	task.mu.Lock()
	for _, st := range task.subTasks {
		seeds[st.Device] = st.Seed
	}
	task.mu.Unlock()

	assert.Equal(t, int64(100), seeds[0])
	assert.Equal(t, int64(106), seeds[1]) // device 0 got 6 images, so device 1 starts at 100+6
}

func TestSubmitPartialFailureKeepsSurvivingResults(t *testing.T) {
	sched := gpuscheduler.New(true, true, []gpuscheduler.Slot{{Device: 0, Weight: 1}, {Device: 1, Weight: 1}})
	worker := newFakeWorkerClient()
	worker.progressQueue[0] = []workersupervisor.ProgressResult{{Percentage: 0, Finished: true, Error: "OOM"}}
	worker.progressQueue[1] = []workersupervisor.ProgressResult{{Percentage: 100, Finished: true, Results: []string{"b1", "b2"}}}

	c := fastCoordinator(sched, worker)
	task, err := c.Submit(Request{Template: argsvector.Request{Prompt: "x"}, TotalImages: 4})
	require.NoError(t, err)

	snap := waitForStatus(t, task, StatusFinished)
	assert.Equal(t, []string{"b1", "b2"}, snap.Results)
	assert.Equal(t, "Finished (2/4 images)", snap.StatusText)
}

func TestSubmitAllSubTasksFailProducesErrorStatus(t *testing.T) {
	sched := gpuscheduler.New(false, true, []gpuscheduler.Slot{{Device: 0, Weight: 1}})
	worker := newFakeWorkerClient()
	worker.progressQueue[0] = []workersupervisor.ProgressResult{{Percentage: 0, Finished: true, Error: "OOM"}}

	c := fastCoordinator(sched, worker)
	task, err := c.Submit(Request{Template: argsvector.Request{Prompt: "x"}, TotalImages: 1})
	require.NoError(t, err)

	snap := waitForStatus(t, task, StatusError)
	assert.Empty(t, snap.Results)
}

func TestCancelStopsEveryBusyWorker(t *testing.T) {
	sched := gpuscheduler.New(true, true, []gpuscheduler.Slot{{Device: 0, Weight: 1}, {Device: 1, Weight: 1}})
	worker := newFakeWorkerClient()

	c := New(sched, worker, progressbus.New())
	c.pollInterval = time.Second // the poll loop must not race the assertions below

	task, err := c.Submit(Request{Template: argsvector.Request{Prompt: "x"}, TotalImages: 2})
	require.NoError(t, err)

	ok, err := c.Cancel(task.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	worker.mu.Lock()
	stoppedDevices := len(worker.stopped)
	worker.mu.Unlock()
	assert.Equal(t, 2, stoppedDevices)

	// Cancel is idempotent: a second Cancel before sub-tasks naturally
	// finish must not re-issue stop() to workers that already got one.
	ok2, err := c.Cancel(task.ID)
	require.NoError(t, err)
	assert.False(t, ok2, "second cancel must not report a fresh stop sent")

	worker.mu.Lock()
	defer worker.mu.Unlock()
	assert.Equal(t, 1, worker.stopped[0], "device 0 must receive at most one stop() RPC")
	assert.Equal(t, 1, worker.stopped[1], "device 1 must receive at most one stop() RPC")
}

func TestGenerateFailureOnOneDeviceStopsAlreadyAcceptedSiblings(t *testing.T) {
	sched := gpuscheduler.New(true, true, []gpuscheduler.Slot{{Device: 0, Weight: 1}, {Device: 1, Weight: 1}})
	worker := newFakeWorkerClient()
	worker.generateErr[1] = fakeError{"worker 1 refused"}
	worker.progressQueue[0] = []workersupervisor.ProgressResult{{Percentage: 100, Finished: true, Results: []string{"a"}}}

	c := fastCoordinator(sched, worker)
	_, err := c.Submit(Request{Template: argsvector.Request{Prompt: "x"}, TotalImages: 2})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	worker.mu.Lock()
	defer worker.mu.Unlock()
	assert.Equal(t, 1, worker.stopped[0], "device 0's accepted generate must be canceled when device 1's generate fails")
}

func TestSubmitWithNoGPUsReturnsError(t *testing.T) {
	sched := gpuscheduler.New(false, true, nil)
	worker := newFakeWorkerClient()
	c := fastCoordinator(sched, worker)

	task, err := c.Submit(Request{Template: argsvector.Request{Prompt: "x"}, TotalImages: 1})
	require.Error(t, err)
	assert.Equal(t, StatusError, task.Snapshot().Status)
}

type fakeError struct{ msg string }

func (e fakeError) Error() string { return e.msg }
