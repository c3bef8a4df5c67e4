// Package observability provides production-grade observability features
// for stateflow: structured logging, metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds stateflow context to a logger.
// Returns a new logger with thread_id, node_id, and step fields.
func EnrichLogger(logger *slog.Logger, threadID, nodeID string, step int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("thread_id", threadID),
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogRunStart logs the start of a run.
func LogRunStart(logger *slog.Logger, threadID string) {
	if logger == nil {
		return
	}
	logger.Info("run starting",
		slog.String("thread_id", threadID),
	)
}

// LogRunComplete logs successful run completion.
func LogRunComplete(logger *slog.Logger, threadID string, durationMs float64, steps int) {
	if logger == nil {
		return
	}
	logger.Info("run completed",
		slog.String("thread_id", threadID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps_executed", steps),
	)
}

// LogRunSuspended logs a run suspension at its interrupt node.
func LogRunSuspended(logger *slog.Logger, threadID, nodeID string, stepSeq int) {
	if logger == nil {
		return
	}
	logger.Info("run suspended",
		slog.String("thread_id", threadID),
		slog.String("node_id", nodeID),
		slog.Int("step", stepSeq),
	)
}

// LogRunResume logs re-entry into a suspended run.
func LogRunResume(logger *slog.Logger, threadID, nodeID string, stepSeq int) {
	if logger == nil {
		return
	}
	logger.Info("run resuming",
		slog.String("thread_id", threadID),
		slog.String("node_id", nodeID),
		slog.Int("step", stepSeq),
	)
}

// LogRunError logs run failure.
func LogRunError(logger *slog.Logger, threadID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("run failed",
		slog.String("thread_id", threadID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogRoute logs a routing decision.
func LogRoute(logger *slog.Logger, fromNode, outcome, target string) {
	if logger == nil {
		return
	}
	logger.Debug("routed",
		slog.String("from", fromNode),
		slog.String("outcome", outcome),
		slog.String("target", target),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, nodeID string, stepSeq, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("node_id", nodeID),
		slog.Int("step", stepSeq),
		slog.Int("size_bytes", sizeBytes),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
