package remote

import (
	"context"
	"log/slog"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/batch"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/logger"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/utils"
)

// Server serves a batch.Executor to remote runners. Executions are kept
// until they are terminated or drained after finishing; the final Drain
// response carries done=true.
type Server struct {
	exec batch.Executor
	log  *slog.Logger

	mu         sync.Mutex
	executions map[string]batch.Execution
}

var _ SampleExecutorServer = (*Server)(nil)

// NewServer creates a server over exec
func NewServer(exec batch.Executor, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Default
	}
	return &Server{exec: exec, log: log, executions: make(map[string]batch.Execution)}
}

func (s *Server) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	batchID, reqs, err := decodeSubmit(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if batchID == "" {
		return nil, status.Error(codes.InvalidArgument, "batch_id is required")
	}

	x, err := s.exec.Submit(ctx, batchID, reqs)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}

	id := utils.GenerateExecutionID()
	s.mu.Lock()
	s.executions[id] = x
	s.mu.Unlock()

	s.log.Info("batch accepted", "batch_id", batchID, "execution_id", id, "samples", len(reqs))
	return executionRequest(id), nil
}

func (s *Server) Status(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	x, err := s.lookup(req)
	if err != nil {
		return nil, err
	}
	running := x.IsRunning()
	return encodeStatus(running, x.Status()), nil
}

func (s *Server) Drain(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	x, err := s.lookup(req)
	if err != nil {
		return nil, err
	}
	// checked before draining: a finished execution has all results queued
	finished := !x.IsRunning()
	out, err := encodeResults(x.Drain())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out.Fields["done"] = structpb.NewBoolValue(finished)
	if finished {
		s.forget(executionID(req))
	}
	return out, nil
}

func (s *Server) Terminate(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	x, err := s.lookup(req)
	if err != nil {
		return nil, err
	}
	x.Terminate()
	id := executionID(req)
	s.forget(id)
	s.log.Info("execution terminated", "execution_id", id)
	return &structpb.Struct{}, nil
}

// Active returns the number of executions being tracked
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.executions)
}

func (s *Server) lookup(req *structpb.Struct) (batch.Execution, error) {
	id := executionID(req)
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "execution_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	x, ok := s.executions[id]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "execution %s not found", id)
	}
	return x, nil
}

func (s *Server) forget(id string) {
	s.mu.Lock()
	delete(s.executions, id)
	s.mu.Unlock()
}
