package monitoring

import (
	"context"
	"sort"
	"sync"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/observability"
)

// Service declares alarms and dashboards with a monitoring provider.
type Service interface {
	PutDashboard(ctx context.Context, d Dashboard) error
	PutAlarm(ctx context.Context, a Alarm) error
}

// StateReader reports the current state of declared alarms. Names the provider does not know
// are left out of the result.
type StateReader interface {
	AlarmStates(ctx context.Context, names ...string) (map[string]State, error)
}

type applyOptions struct {
	logger observability.StructuredLogger
}

type ApplyOption func(*applyOptions)

func WithLogger(l observability.StructuredLogger) ApplyOption {
	return func(o *applyOptions) {
		o.logger = l
	}
}

// Apply declares the dashboard and then every alarm in plan order. The first failure stops
// the run and is returned with the failing dashboard or alarm name.
func Apply(ctx context.Context, svc Service, plan Plan, opts ...ApplyOption) error {
	o := applyOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	logger := observability.OrNoOp(o.logger).WithComponent("monitor").WithEnvironment(plan.Environment)

	if svc == nil {
		return dbinfra.NewError(dbinfra.ErrorCodeMonitorFailed, "", "monitoring service is required")
	}
	if err := ctx.Err(); err != nil {
		return dbinfra.WrapError(dbinfra.ErrorCodeMonitorFailed, plan.Dashboard.Name, err)
	}

	if err := svc.PutDashboard(ctx, plan.Dashboard); err != nil {
		logger.Error("dashboard failed", map[string]any{"dashboard": plan.Dashboard.Name, "error": err})
		return dbinfra.WrapError(dbinfra.ErrorCodeMonitorFailed, plan.Dashboard.Name, err)
	}

	for _, a := range plan.Alarms() {
		if err := svc.PutAlarm(ctx, a); err != nil {
			logger.Error("alarm failed", map[string]any{"alarm": a.Name, "error": err})
			return dbinfra.WrapError(dbinfra.ErrorCodeMonitorFailed, a.Name, err)
		}
	}

	logger.Info("monitoring configured", map[string]any{
		"dashboard": plan.Dashboard.Name,
		"tables":    len(plan.Tables),
		"alarms":    len(plan.Alarms()),
	})
	return nil
}

// MemoryService records declarations in memory.
type MemoryService struct {
	mu         sync.Mutex
	dashboards map[string]Dashboard
	alarms     map[string]Alarm
	states     map[string]State
	failAlarm  map[string]error
}

var (
	_ Service     = (*MemoryService)(nil)
	_ StateReader = (*MemoryService)(nil)
)

func NewMemoryService() *MemoryService {
	return &MemoryService{
		dashboards: map[string]Dashboard{},
		alarms:     map[string]Alarm{},
		states:     map[string]State{},
		failAlarm:  map[string]error{},
	}
}

// FailAlarm makes PutAlarm return err for the named alarm.
func (s *MemoryService) FailAlarm(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAlarm[name] = err
}

func (s *MemoryService) PutDashboard(ctx context.Context, d Dashboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dashboards[d.Name] = d
	return nil
}

func (s *MemoryService) PutAlarm(ctx context.Context, a Alarm) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failAlarm[a.Name]; err != nil {
		return err
	}
	s.alarms[a.Name] = a
	if _, ok := s.states[a.Name]; !ok {
		s.states[a.Name] = StateNormal
	}
	return nil
}

// SetState records a state for a declared alarm.
func (s *MemoryService) SetState(name string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alarms[name]; ok {
		s.states[name] = state
	}
}

func (s *MemoryService) AlarmStates(ctx context.Context, names ...string) (map[string]State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State, len(names))
	for _, n := range names {
		if st, ok := s.states[n]; ok {
			out[n] = st
		}
	}
	return out, nil
}

// Dashboard returns the named dashboard.
func (s *MemoryService) Dashboard(name string) (Dashboard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dashboards[name]
	return d, ok
}

// AlarmNames returns every declared alarm name, sorted.
func (s *MemoryService) AlarmNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.alarms))
	for n := range s.alarms {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
