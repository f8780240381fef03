package main

import (
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/batch"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/metrics"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/policy"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/remote"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/simexec"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/config"
)

// newExecutor builds the sample executor selected by the run file: a local
// worker pool over the simulator command, or a remote simworker.
func newExecutor(rf *config.RunFile, rec *metrics.Recorder, log *slog.Logger) (batch.Executor, func(), error) {
	if rf.Simulator.Remote != "" {
		timeout, err := rf.Simulator.GetCallTimeout()
		if err != nil {
			return nil, nil, err
		}
		// TODO: add TLS credentials once simworker serves TLS.
		conn, err := grpc.NewClient(rf.Simulator.Remote, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to %s: %w", rf.Simulator.Remote, err)
		}
		client := remote.NewClient(conn, remote.ClientConfig{CallTimeout: timeout, Log: log})
		log.Info("using remote simulator", "addr", rf.Simulator.Remote)
		return client, func() { _ = conn.Close() }, nil
	}

	sim, err := simexec.FromConfig(rf.Simulator)
	if err != nil {
		return nil, nil, err
	}
	exec, err := localExecutor(sim, rf.Runner, rec, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("using local simulator", "command", rf.Simulator.Command, "workers", rf.Runner.Workers)
	return exec, func() {}, nil
}

// localExecutor wires runner settings into a LocalExecutor
func localExecutor(sim batch.Simulator, r config.Runner, rec *metrics.Recorder, log *slog.Logger) (*batch.LocalExecutor, error) {
	slotTimeout, err := r.GetSlotTimeout()
	if err != nil {
		return nil, err
	}
	return batch.NewLocalExecutor(sim, batch.LocalConfig{
		Workers:      r.Workers,
		DispatchRate: r.DispatchRate,
		SlotTimeout:  slotTimeout,
		Retry:        policy.NewPolicyManager(r).GetRetry(),
		Metrics:      rec,
		Log:          log,
	}), nil
}
