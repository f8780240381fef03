package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/coordinator"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/metrics"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/notify"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/problem"
	"github.com/GoSim-25-26J-441/optimization-driver/internal/progress"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/config"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/logger"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// Exit codes
const (
	exitSuccess = 0
	exitRunFail = 1
	exitSetup   = 2
)

func main() {
	var runPath string
	var metricsAddr string
	var logLevel string
	var restartIn string

	flag.StringVar(&runPath, "run", "config/run.yaml", "run file")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (disabled when empty)")
	flag.StringVar(&logLevel, "log-level", "", "override the run file's log level")
	flag.StringVar(&restartIn, "restart-in", "", "resume from a checkpoint file")
	flag.Parse()

	os.Exit(run(runPath, metricsAddr, logLevel, restartIn))
}

func run(runPath, metricsAddr, logLevel, restartIn string) int {
	rf, err := config.LoadRunFile(runPath)
	if err != nil {
		logger.Error("failed to load run file", "error", err)
		return exitSetup
	}
	if logLevel == "" {
		logLevel = rf.LogLevel
	}
	logger.SetDefault(logger.NewText(logLevel, os.Stderr))

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		logger.Warn("failed to set GOMAXPROCS", "error", err)
	}
	defer undo()

	logger.Debug("objective callbacks", "ids", callbacks.IDs())
	spec, err := problem.FromConfig(rf.Problem, callbacks)
	if err != nil {
		logger.Error("invalid problem", "error", err)
		return exitSetup
	}

	registry := prometheus.NewRegistry()
	rec := metrics.NewRecorder(registry)
	if metricsAddr != "" {
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		srv := serveMetrics(metricsAddr, registry)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics shutdown error", "error", err)
			}
		}()
	}

	notifier, err := notify.New(rf.Notify, logger.Default)
	if err != nil {
		logger.Error("invalid notify settings", "error", err)
		return exitSetup
	}

	executor, closeExecutor, err := newExecutor(rf, rec, logger.Default)
	if err != nil {
		logger.Error("failed to set up simulator", "error", err)
		return exitSetup
	}
	defer closeExecutor()

	if restartIn == "" {
		restartIn = rf.RestartIn
	}
	coord := coordinator.New(coordinator.Config{
		Executor: executor,
		Runner:   rf.Runner,
		Metrics:  rec,
		Log:      logger.Default,
	})
	rec.Stats().Start()
	r, err := coord.Start(coordinator.Request{
		Strategy:  rf.Strategy.Name,
		Problem:   spec,
		Options:   rf.Strategy.Options,
		RestartIn: restartIn,
	})
	if err != nil {
		logger.Error("failed to start run", "error", err)
		return exitSetup
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("stop requested, waiting for the active batch to wind down", "run_id", r.ID)
			r.Stop()
		case <-r.Done():
		}
	}()

	log := logger.ForRun(r.ID)
	for ev := range r.Events() {
		logEvent(log, ev)
	}

	res, err := r.Wait(context.Background())
	if err != nil {
		logger.Error("wait for run", "error", err)
		return exitRunFail
	}
	logSummary(log, rec)
	fmt.Println(res.String())

	notifyCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := notifier.Notify(notifyCtx, res); err != nil {
		log.Error("run notification failed", "error", err)
	}
	if res.Status != models.RunStatusSuccess {
		return exitRunFail
	}
	return exitSuccess
}

func logEvent(log *slog.Logger, ev progress.Event) {
	switch e := ev.(type) {
	case progress.IterationUpdate:
		log.Info("iteration", "iteration", e.Iteration, "best", e.Best)
	case progress.BestUpdate:
		log.Info("new best", "objectives", e.Best, "x", e.X)
	case progress.ProgressUpdate:
		log.Debug("batch progress", "iteration", e.Iteration, "finished", e.Finished, "total", e.Total,
			"errors", e.Errors, "cumulative_finished", e.CumulativeFinished, "cumulative_errors", e.CumulativeErrors)
	}
}

func logSummary(log *slog.Logger, rec *metrics.Recorder) {
	stats := rec.Stats()
	if stats == nil {
		return
	}
	stats.Stop()
	summary := stats.GetSummary()
	names := make([]string, 0, len(summary.Aggregations))
	for name := range summary.Aggregations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		agg := summary.Aggregations[name]
		log.Info("run summary", "series", name, "count", agg.Count, "mean", agg.Mean, "p95", agg.P95, "min", agg.Min, "max", agg.Max)
	}
	log.Info("run duration", "duration", summary.Duration)
}

func serveMetrics(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}
