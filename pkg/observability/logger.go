// Package observability defines the structured logging surface shared by the provisioning,
// publication and monitoring phases.
package observability

import (
	"context"
	"time"
)

type SanitizerFunc func(key string, value any) any

type ErrorNotifier interface {
	Notify(ctx context.Context, entry LogEntry) error
}

// LogEntry represents a structured log entry.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`

	RunID       string `json:"run_id,omitempty"`
	Environment string `json:"environment,omitempty"`
	Stack       string `json:"stack,omitempty"`
	Component   string `json:"component,omitempty"`
	Entity      string `json:"entity,omitempty"`
}

// StructuredLogger is the logging surface used across the deployment phases: a message plus
// map fields, scoped by run, environment, stack, component and table entity.
type StructuredLogger interface {
	Debug(message string, fields ...map[string]any)
	Info(message string, fields ...map[string]any)
	Warn(message string, fields ...map[string]any)
	Error(message string, fields ...map[string]any)

	WithField(key string, value any) StructuredLogger
	WithFields(fields map[string]any) StructuredLogger

	WithRunID(runID string) StructuredLogger
	WithEnvironment(env string) StructuredLogger
	WithStack(stack string) StructuredLogger
	WithComponent(component string) StructuredLogger
	WithEntity(entity string) StructuredLogger

	Flush(ctx context.Context) error
	Close() error
	IsHealthy() bool
	GetStats() LoggerStats
}

type LoggerStats struct {
	LastFlush      time.Time     `json:"last_flush"`
	LastError      string        `json:"last_error,omitempty"`
	EntriesLogged  int64         `json:"entries_logged"`
	EntriesDropped int64         `json:"entries_dropped"`
	FlushCount     int64         `json:"flush_count"`
	ErrorCount     int64         `json:"error_count"`
	AverageFlush   time.Duration `json:"average_flush_time"`
}

// LoggerConfig configures logger implementations.
type LoggerConfig struct {
	Format       string        `json:"format" yaml:"format"`
	Level        string        `json:"level" yaml:"level"`
	RetryDelay   time.Duration `json:"retry_delay" yaml:"retryDelay"`
	BatchSize    int           `json:"batch_size" yaml:"batchSize"`
	BufferSize   int           `json:"buffer_size" yaml:"bufferSize"`
	MaxRetries   int           `json:"max_retries" yaml:"maxRetries"`
	EnableStack  bool          `json:"enable_stack" yaml:"enableStack"`
	EnableCaller bool          `json:"enable_caller" yaml:"enableCaller"`
}

type LoggerFactory interface {
	CreateConsoleLogger(config LoggerConfig) (StructuredLogger, error)
	CreateTestLogger() StructuredLogger
	CreateNoOpLogger() StructuredLogger
}

// OrNoOp returns l, or a no-op logger when l is nil.
func OrNoOp(l StructuredLogger) StructuredLogger {
	if l == nil {
		return NewNoOpLogger()
	}
	return l
}
