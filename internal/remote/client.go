package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/batch"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/logger"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// DefaultCallTimeout bounds a single RPC
const DefaultCallTimeout = 10 * time.Second

// ClientConfig configures a Client
type ClientConfig struct {
	CallTimeout time.Duration
	Log         *slog.Logger
}

// Client is a batch.Executor backed by a remote SampleExecutor
type Client struct {
	conn grpc.ClientConnInterface
	cfg  ClientConfig
}

var _ batch.Executor = (*Client)(nil)

// NewClient creates a client over conn
func NewClient(conn grpc.ClientConnInterface, cfg ClientConfig) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Log == nil {
		cfg.Log = logger.Default
	}
	return &Client{conn: conn, cfg: cfg}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Submit dispatches the batch to the remote executor
func (c *Client) Submit(ctx context.Context, batchID string, reqs []models.SampleRequest) (batch.Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in, err := encodeSubmit(batchID, reqs)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	out, err := c.invoke(ctx, methodSubmit, in)
	if err != nil {
		return nil, err
	}
	id := executionID(out)
	if id == "" {
		return nil, fmt.Errorf("remote executor returned no execution id")
	}
	return &remoteExecution{
		client:  c,
		id:      id,
		log:     c.cfg.Log.With("batch_id", batchID, "execution_id", id),
		status:  batch.ExecutionStatus{Total: len(reqs)},
		running: true,
	}, nil
}

// remoteExecution mirrors a server-side execution. Once the server reports
// done or the execution is terminated no further RPCs are made.
type remoteExecution struct {
	client *Client
	id     string
	log    *slog.Logger

	mu      sync.Mutex
	status  batch.ExecutionStatus
	running bool
	closed  bool
	pending []batch.SlotResult
}

func (x *remoteExecution) IsRunning() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed || x.status.Fatal != nil {
		return false
	}
	out, err := x.client.invoke(context.Background(), methodStatus, executionRequest(x.id))
	if err != nil {
		x.fail("status", err)
		return false
	}
	running, st := decodeStatus(out)
	st.Fatal = x.status.Fatal
	x.status = st
	x.running = running
	return running
}

// Status returns the counters of the last status call
func (x *remoteExecution) Status() batch.ExecutionStatus {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.status
}

func (x *remoteExecution) Drain() []batch.SlotResult {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.drainLocked()
	out := x.pending
	x.pending = nil
	return out
}

func (x *remoteExecution) drainLocked() {
	if x.closed || x.status.Fatal != nil {
		return
	}
	out, err := x.client.invoke(context.Background(), methodDrain, executionRequest(x.id))
	if err != nil {
		x.fail("drain", err)
		return
	}
	results, err := decodeResults(out)
	if err != nil {
		x.fail("drain", err)
		return
	}
	x.pending = append(x.pending, results...)
	if done := out.GetFields()["done"]; done.GetBoolValue() {
		x.closed = true
		x.running = false
	}
}

// Terminate collects what has already finished and releases the remote
// execution.
func (x *remoteExecution) Terminate() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.drainLocked()
	if x.closed || x.status.Fatal != nil {
		return
	}
	x.closed = true
	x.running = false
	if _, err := x.client.invoke(context.Background(), methodTerminate, executionRequest(x.id)); err != nil {
		x.log.Warn("terminate failed", "error", err)
	}
}

func (x *remoteExecution) fail(op string, err error) {
	x.running = false
	x.status.Fatal = fmt.Errorf("remote %s %s: %w", op, x.id, err)
	x.log.Error("remote executor unreachable", "op", op, "error", err)
}
