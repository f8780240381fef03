package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"
	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/batch"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/metrics"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/policy"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/remote"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/simexec"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/config"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/logger"
)

func main() {
	var grpcAddr string
	var logLevel string
	var runner config.Runner
	var dir string

	flag.StringVar(&grpcAddr, "grpc-addr", ":50052", "gRPC listen address")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.IntVar(&runner.Workers, "workers", 0, "concurrent simulations (0 uses GOMAXPROCS)")
	flag.Float64Var(&runner.DispatchRate, "dispatch-rate", 0, "sample starts per second (0 is unlimited)")
	flag.StringVar(&runner.SlotTimeout, "slot-timeout", "", "timeout of one simulation attempt, e.g. 30s")
	flag.IntVar(&runner.Retries, "retries", 0, "resubmissions of a failed sample")
	flag.StringVar(&runner.RetryBackoff, "retry-backoff", "exponential", "retry backoff (exponential, linear, constant)")
	flag.IntVar(&runner.RetryBaseMs, "retry-base-ms", 100, "base retry delay in milliseconds")
	flag.StringVar(&dir, "dir", "", "working directory of the simulator command")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] -- program [args...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger.SetDefault(logger.NewText(logLevel, os.Stdout))
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Warn("failed to set GOMAXPROCS", "error", err)
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	sim, err := simexec.FromConfig(config.Simulator{Command: flag.Args(), Dir: dir})
	if err != nil {
		logger.Error("invalid simulator", "error", err)
		os.Exit(2)
	}
	slotTimeout, err := runner.GetSlotTimeout()
	if err != nil {
		logger.Error("invalid slot timeout", "error", err)
		os.Exit(2)
	}

	exec := batch.NewLocalExecutor(sim, batch.LocalConfig{
		Workers:      runner.Workers,
		DispatchRate: runner.DispatchRate,
		SlotTimeout:  slotTimeout,
		Retry:        policy.NewPolicyManager(runner).GetRetry(),
		Metrics:      metrics.NewRecorder(nil),
		Log:          logger.Default,
	})
	srv := remote.NewServer(exec, logger.Default)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// TODO: Configure gRPC server security (e.g., TLS, authentication)
	// before exposing the worker outside a trusted network.
	grpcServer := grpc.NewServer()
	remote.RegisterSampleExecutorServer(grpcServer, srv)

	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logger.Error("failed to listen for gRPC", "addr", grpcAddr, "error", err)
		stop()
		os.Exit(1)
	}

	go func() {
		logger.Info("simulation worker listening", "addr", grpcAddr, "command", flag.Args())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested", "active_executions", srv.Active())

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		grpcServer.Stop()
	}
}
