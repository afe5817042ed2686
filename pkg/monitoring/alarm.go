package monitoring

import "sync"

// Alarm operators and missing-data policies, spelled the way CloudWatch expects them.
const (
	ComparisonGreaterThanOrEqual = "GreaterThanOrEqualToThreshold"

	TreatMissingNotBreaching = "notBreaching"
	TreatMissingBreaching    = "breaching"
)

// Alarm name suffixes.
const (
	SuffixReadThrottle  = "read-throttle"
	SuffixWriteThrottle = "write-throttle"
	SuffixSystemErrors  = "system-errors"
)

// State is the alarm state. Providers translate their own state names at their boundary.
type State string

const (
	StateNormal State = "NORMAL"
	StateAlarm  State = "ALARM"
)

// Alarm is one alarm declaration. ID is the construct identifier, Name the physical alarm name.
type Alarm struct {
	ID                string  `json:"id" yaml:"id"`
	Name              string  `json:"name" yaml:"name"`
	Description       string  `json:"description" yaml:"description"`
	Metric            Metric  `json:"metric" yaml:"metric"`
	Threshold         float64 `json:"threshold" yaml:"threshold"`
	EvaluationPeriods int     `json:"evaluationPeriods" yaml:"evaluationPeriods"`
	DatapointsToAlarm int     `json:"datapointsToAlarm" yaml:"datapointsToAlarm"`
	Comparison        string  `json:"comparison" yaml:"comparison"`
	TreatMissingData  string  `json:"treatMissingData" yaml:"treatMissingData"`
}

func (a Alarm) breaching(v *float64) bool {
	if v == nil {
		return a.TreatMissingData == TreatMissingBreaching
	}
	// Only >= is supported.
	return *v >= a.Threshold
}

func (a Alarm) datapoints() int {
	if a.DatapointsToAlarm > 0 {
		return a.DatapointsToAlarm
	}
	return a.EvaluationPeriods
}

// Evaluate returns the state for a series of period aggregates ordered oldest first. Only the
// most recent EvaluationPeriods windows are considered; nil marks a window with no data, and a
// series shorter than EvaluationPeriods is padded with missing windows.
func (a Alarm) Evaluate(windows []*float64) State {
	n := a.EvaluationPeriods
	if n <= 0 {
		n = 1
	}
	if len(windows) > n {
		windows = windows[len(windows)-n:]
	}

	breaching := 0
	for _, w := range windows {
		if a.breaching(w) {
			breaching++
		}
	}
	if a.TreatMissingData == TreatMissingBreaching {
		breaching += n - len(windows)
	}

	if breaching >= a.datapoints() {
		return StateAlarm
	}
	return StateNormal
}

// Tracker feeds windows to an alarm one at a time and keeps its current state.
type Tracker struct {
	alarm Alarm

	mu      sync.Mutex
	windows []*float64
	state   State
}

func NewTracker(a Alarm) *Tracker {
	return &Tracker{alarm: a, state: StateNormal}
}

// Observe records the aggregate for the next window (nil when there was no data) and returns
// the resulting state and whether it changed.
func (t *Tracker) Observe(v *float64) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v != nil {
		c := *v
		v = &c
	}
	t.windows = append(t.windows, v)
	if keep := t.alarm.EvaluationPeriods; keep > 0 && len(t.windows) > keep {
		t.windows = append([]*float64(nil), t.windows[len(t.windows)-keep:]...)
	}

	next := t.alarm.Evaluate(t.windows)
	changed := next != t.state
	t.state = next
	return next, changed
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Value returns a pointer to v, for building window series.
func Value(v float64) *float64 {
	return &v
}
