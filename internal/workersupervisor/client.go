// Package workersupervisor owns the inference worker child processes and
// exposes a typed RPC API to the rest of the system (spec §4.C). Each
// worker is driven over a line-delimited JSON-RPC 2.0 channel on its
// stdin/stdout; this file implements the client side of that channel,
// the orchestrator-side mirror of the line-delimited JSON-RPC framing
// the teacher's MCP STDIO transport uses on the server side.
package workersupervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amd-agi/genforge/internal/apierrors"
	"github.com/amd-agi/genforge/internal/logger/log"
)

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type pendingCall struct {
	resultCh chan rpcResponse
}

// client is the single-producer, single-consumer RPC channel to one
// worker process's stdin/stdout. Writes to stdin are serialized by
// writeMu; stdout is drained by exactly one reader goroutine.
type client struct {
	device int

	stdin  io.WriteCloser
	stdout io.ReadCloser

	writeMu sync.Mutex
	nextID  int64

	pendingMu sync.Mutex
	pending   map[int64]*pendingCall

	closed    chan struct{}
	closeOnce sync.Once

	onExit func()
}

// newClient starts the client's reader goroutine. onExit, if non-nil, is
// invoked once after the worker's stdout closes (process exit) and every
// pending call has been failed, letting the owning Supervisor drop its
// table entry for the device instead of leaving a stale record behind.
func newClient(device int, stdin io.WriteCloser, stdout io.ReadCloser, onExit func()) *client {
	c := &client{
		device:  device,
		stdin:   stdin,
		stdout:  stdout,
		pending: make(map[int64]*pendingCall),
		closed:  make(chan struct{}),
		onExit:  onExit,
	}
	go c.readLoop()
	return c
}

// readLoop drains stdout, dispatching each parseable JSON-RPC response
// line to its pending caller and forwarding everything else as worker log
// output (spec §4.C transport contract).
func (c *client) readLoop() {
	scanner := bufio.NewScanner(c.stdout)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil || resp.ID == nil {
			log.Infof("worker[%d] stdout: %s", c.device, string(line))
			continue
		}

		c.pendingMu.Lock()
		call, ok := c.pending[*resp.ID]
		if ok {
			delete(c.pending, *resp.ID)
		}
		c.pendingMu.Unlock()

		if ok {
			call.resultCh <- resp
		}
	}

	c.failAllPending(fmt.Errorf("worker exited"))
	if c.onExit != nil {
		c.onExit()
	}
}

func (c *client) failAllPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int64]*pendingCall)
	c.pendingMu.Unlock()

	for _, call := range pending {
		call.resultCh <- rpcResponse{Error: &rpcError{Message: err.Error()}}
	}
}

// call issues one JSON-RPC request and waits for its matching response,
// the request's own deadline, or process exit, whichever comes first.
func (c *client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	id := atomic.AddInt64(&c.nextID, 1)
	call := &pendingCall{resultCh: make(chan rpcResponse, 1)}

	c.pendingMu.Lock()
	c.pending[id] = call
	c.pendingMu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	line, err := json.Marshal(req)
	if err != nil {
		c.dropPending(id)
		return apierrors.New().WithCode(apierrors.RpcTransport).WithError(err)
	}

	c.writeMu.Lock()
	_, werr := c.stdin.Write(append(line, '\n'))
	c.writeMu.Unlock()
	if werr != nil {
		c.dropPending(id)
		return apierrors.New().WithCode(apierrors.RpcTransport).WithMessagef("write to worker[%d]", c.device).WithError(werr)
	}

	select {
	case resp := <-call.resultCh:
		if resp.Error != nil {
			return apierrors.New().WithCode(apierrors.RpcTransport).WithMessage(resp.Error.Message)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return apierrors.New().WithCode(apierrors.RpcTransport).WithError(err)
			}
		}
		return nil
	case <-ctx.Done():
		c.dropPending(id)
		return apierrors.New().WithCode(apierrors.RpcTransport).WithMessagef("worker[%d] %s timed out", c.device, method)
	case <-c.closed:
		return apierrors.New().WithCode(apierrors.RpcTransport).WithMessagef("worker[%d] closed", c.device)
	}
}

func (c *client) dropPending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.stdin.Close()
	})
}

// HealthResult is the response shape of the health RPC method.
type HealthResult struct {
	Status string `json:"status"`
}

// ProgressResult is the response shape of the progress RPC method.
type ProgressResult struct {
	Percentage int      `json:"percentage"`
	StatusText string   `json:"statusText"`
	Finished   bool     `json:"finished"`
	Preview    *string  `json:"preview"`
	Results    []string `json:"results"`
	Error      string   `json:"error,omitempty"`
}

// StopResult is the response shape of the stop RPC method.
type StopResult struct {
	Success bool `json:"success"`
}

const defaultCallTimeout = 10 * time.Second

// Health calls the health RPC method, used as a readiness probe.
func (c *client) Health(ctx context.Context) (HealthResult, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()
	var out HealthResult
	err := c.call(ctx, "health", struct{}{}, &out)
	return out, err
}

// Generate calls the generate RPC method, enqueuing a sub-task inside the
// worker. It returns after acceptance, not after completion.
func (c *client) Generate(ctx context.Context, taskID string, argsVector []interface{}, contractVersion int) error {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()
	params := map[string]interface{}{
		"task_id":                     taskID,
		"fooocus_args":                argsVector,
		"fooocus_args_contract_version": contractVersion,
	}
	return c.call(ctx, "generate", params, nil)
}

// Progress calls the progress RPC method for a sub-task.
func (c *client) Progress(ctx context.Context, taskID string) (ProgressResult, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()
	var out ProgressResult
	err := c.call(ctx, "progress", map[string]interface{}{"task_id": taskID}, &out)
	return out, err
}

// Stop calls the stop RPC method, cancelling the worker's currently
// running task on a best-effort basis.
func (c *client) Stop(ctx context.Context) (StopResult, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()
	var out StopResult
	err := c.call(ctx, "stop", struct{}{}, &out)
	return out, err
}
