package remote

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/batch"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/logger"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

type fixture struct {
	server *Server
	grpc   *grpc.Server
	client *Client
}

func newFixture(t *testing.T, sim batch.Simulator) *fixture {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(batch.NewLocalExecutor(sim, batch.LocalConfig{Workers: 2, Log: logger.Discard()}), logger.Discard())
	gs := grpc.NewServer()
	RegisterSampleExecutorServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		gs.Stop()
	})

	return &fixture{
		server: srv,
		grpc:   gs,
		client: NewClient(conn, ClientConfig{CallTimeout: 500 * time.Millisecond, Log: logger.Discard()}),
	}
}

func requests(n int) []models.SampleRequest {
	reqs := make([]models.SampleRequest, n)
	for i := range reqs {
		reqs[i] = models.SampleRequest{Slot: i, Iteration: 1, Inputs: map[string]float64{"x": float64(i)}}
	}
	return reqs
}

// blockingSim runs until the sample is cancelled or the test ends
func blockingSim(t *testing.T) batch.Simulator {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	return batch.SimulatorFunc(func(ctx context.Context, _ map[string]float64) (*models.SampleResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return nil, errors.New("released")
		}
	})
}

func TestRunnerOverRemoteExecutor(t *testing.T) {
	f := newFixture(t, batch.SimulatorFunc(func(_ context.Context, in map[string]float64) (*models.SampleResult, error) {
		if in["x"] == 1 {
			return nil, errors.New("solver diverged")
		}
		return &models.SampleResult{Outputs: map[string]float64{"y": 2 * in["x"]}}, nil
	}))

	r := batch.NewRunner(f.client, batch.Config{PollInterval: 5 * time.Millisecond, Log: logger.Discard()})
	job, err := r.Run(context.Background(), 1, requests(4))
	require.NoError(t, err)
	require.Equal(t, batch.StateCompleted, job.State())

	results := job.Results()
	require.Len(t, results, 4)
	for _, i := range []int{0, 2, 3} {
		require.NotNil(t, results[i])
		assert.Equal(t, models.SampleOK, results[i].Status)
		assert.Equal(t, float64(i), results[i].Inputs["x"])
		assert.Equal(t, 2*float64(i), results[i].Outputs["y"])
	}
	require.NotNil(t, results[1])
	assert.True(t, results[1].Failed())
	assert.Equal(t, models.ErrCodeException, results[1].ErrorCode)
	assert.Equal(t, "solver diverged", results[1].Message)

	assert.Equal(t, 1, job.Errors())
	assert.Equal(t, 0, f.server.Active(), "a drained execution must be released")
}

func TestResultsKeepMissingSlots(t *testing.T) {
	out, err := encodeResults([]batch.SlotResult{
		{Slot: 0, Result: &models.SampleResult{Status: models.SampleOK, Outputs: map[string]float64{"y": 1}, Duration: 1500 * time.Microsecond}},
		{Slot: 1},
	})
	require.NoError(t, err)

	got, err := decodeResults(out)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Result.Outputs["y"])
	assert.Nil(t, got[0].Result.Inputs)
	assert.Equal(t, 1500*time.Microsecond, got[0].Result.Duration)
	assert.Equal(t, 1, got[1].Slot)
	assert.Nil(t, got[1].Result)
}

func TestSubmitRejectsOutOfOrderSlots(t *testing.T) {
	reqs := requests(2)
	reqs[0].Slot, reqs[1].Slot = 1, 0
	in, err := encodeSubmit("b1", reqs)
	require.NoError(t, err)

	srv := NewServer(batch.NewLocalExecutor(blockingSim(t), batch.LocalConfig{Log: logger.Discard()}), logger.Discard())
	_, err = srv.Submit(context.Background(), in)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, 0, srv.Active())
}

func TestServerUnknownExecution(t *testing.T) {
	srv := NewServer(batch.NewLocalExecutor(blockingSim(t), batch.LocalConfig{Log: logger.Discard()}), logger.Discard())

	_, err := srv.Status(context.Background(), executionRequest("exec-missing"))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = srv.Drain(context.Background(), executionRequest(""))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestTerminateReleasesExecution(t *testing.T) {
	f := newFixture(t, blockingSim(t))

	x, err := f.client.Submit(context.Background(), "b1", requests(2))
	require.NoError(t, err)
	require.True(t, x.IsRunning())
	require.Equal(t, 1, f.server.Active())

	x.Terminate()
	assert.Equal(t, 0, f.server.Active())
	assert.False(t, x.IsRunning())
	assert.Nil(t, x.Status().Fatal)

	// a second terminate makes no call
	x.Terminate()
	assert.Nil(t, x.Status().Fatal)
}

func TestLostServerAbortsBatch(t *testing.T) {
	f := newFixture(t, blockingSim(t))

	r := batch.NewRunner(f.client, batch.Config{PollInterval: 5 * time.Millisecond, Log: logger.Discard()})
	h, err := r.Submit(context.Background(), 1, requests(2))
	require.NoError(t, err)

	f.grpc.Stop()

	err = r.Wait(context.Background(), h)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrExecution)
	assert.Equal(t, models.RunStatusExecutionError, models.StatusFromError(err))
	assert.Equal(t, batch.StateAborted, h.Job().State())
}

func TestSubmitFailsWithoutServer(t *testing.T) {
	f := newFixture(t, blockingSim(t))
	f.grpc.Stop()

	r := batch.NewRunner(f.client, batch.Config{PollInterval: 5 * time.Millisecond, Log: logger.Discard()})
	_, err := r.Run(context.Background(), 1, requests(1))
	assert.ErrorIs(t, err, models.ErrExecution)
}
