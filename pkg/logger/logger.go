// Package logger holds the process-wide structured logger used by the deployment binaries.
package logger

import (
	"context"
	"sync"

	"github.com/acorn-pups/dbinfra/pkg/awsapi"
	"github.com/acorn-pups/dbinfra/pkg/config"
	"github.com/acorn-pups/dbinfra/pkg/observability"
	obszap "github.com/acorn-pups/dbinfra/pkg/observability/zap"
	"github.com/acorn-pups/dbinfra/pkg/sanitization"
)

var (
	globalMu     sync.RWMutex
	globalLogger observability.StructuredLogger = observability.NewNoOpLogger()
)

// Logger returns the global structured logger singleton.
func Logger() observability.StructuredLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// SetLogger replaces the global structured logger singleton.
//
// Passing nil resets the logger to a no-op implementation.
func SetLogger(next observability.StructuredLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if next == nil {
		globalLogger = observability.NewNoOpLogger()
		return
	}
	globalLogger = next
}

// Component returns the global logger scoped to a deployment component.
func Component(name string) observability.StructuredLogger {
	return Logger().WithComponent(name)
}

// SanitizeFieldValue applies deterministic redaction rules to a field value.
func SanitizeFieldValue(key string, value any) any {
	return sanitization.SanitizeFieldValue(key, value)
}

// Init builds the zap logger described by cfg, installs it as the global logger and returns
// it. SNS error notifications are enabled when ACORN_PUPS_ERROR_TOPIC_ARN is set; the
// notifier's AWS client uses the same region and credentials as the deployment.
func Init(ctx context.Context, cfg *config.Config, opts ...obszap.Option) (observability.StructuredLogger, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	notifications := obszap.DefaultEnvironmentErrorNotifications()
	notifications.LoadOptions = awsapi.LoadOptions(cfg.AWS, cfg.Region)

	options := append([]obszap.Option{obszap.WithEnvironmentErrorNotifications(ctx, notifications)}, opts...)
	factory := obszap.NewZapLoggerFactory(options...)
	l, err := factory.CreateConsoleLogger(observability.LoggerConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, err
	}

	scoped := l.WithField("app", cfg.App).WithEnvironment(cfg.Environment)
	SetLogger(scoped)
	return scoped, nil
}
