package observability

import "time"

// PhaseEvent is emitted by the deploy orchestrator when a phase starts or finishes.
type PhaseEvent struct {
	Level       string
	Event       string
	RunID       string
	Environment string
	Phase       string
	Entity      string
	Duration    time.Duration
	ErrorCode   string
	Err         error
}

// Hooks receives orchestrator events.
type Hooks struct {
	Log func(PhaseEvent)
}

// HooksFromLogger routes phase events to logger, scoped by run and environment.
func HooksFromLogger(logger StructuredLogger) Hooks {
	if logger == nil {
		return Hooks{}
	}

	return Hooks{
		Log: func(ev PhaseEvent) {
			fields := map[string]any{
				"event": ev.Event,
				"phase": ev.Phase,
			}
			if ev.Duration > 0 {
				fields["duration_ms"] = ev.Duration.Milliseconds()
			}
			if ev.ErrorCode != "" {
				fields["error_code"] = ev.ErrorCode
			}
			if ev.Err != nil {
				fields["error"] = ev.Err.Error()
			}

			scoped := logger.
				WithRunID(ev.RunID).
				WithEnvironment(ev.Environment).
				WithComponent(ev.Phase)
			if ev.Entity != "" {
				scoped = scoped.WithEntity(ev.Entity)
			}

			switch ev.Level {
			case "error":
				scoped.Error(ev.Event, fields)
			case "warn":
				scoped.Warn(ev.Event, fields)
			case "debug":
				scoped.Debug(ev.Event, fields)
			default:
				scoped.Info(ev.Event, fields)
			}
		},
	}
}
