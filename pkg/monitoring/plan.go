package monitoring

import (
	"fmt"
	"strings"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/naming"
	"github.com/acorn-pups/dbinfra/pkg/policy"
	"github.com/acorn-pups/dbinfra/pkg/provision"
	"github.com/acorn-pups/dbinfra/pkg/schema"
)

// DashboardID is the construct identifier of the dashboard.
const DashboardID = "AcornPupsDatabaseDashboard"

// Widget layout.
const (
	GraphWidth     = 12
	GraphHeight    = 6
	OverviewWidth  = 24
	OverviewHeight = 8
)

// WidgetType distinguishes graph and text widgets.
type WidgetType string

const (
	WidgetGraph WidgetType = "metric"
	WidgetText  WidgetType = "text"
)

// Widget is one dashboard widget. Graph widgets use Title, Left and Right; text widgets use
// Markdown.
type Widget struct {
	Type     WidgetType `json:"type" yaml:"type"`
	Title    string     `json:"title,omitempty" yaml:"title,omitempty"`
	Left     []Metric   `json:"left,omitempty" yaml:"left,omitempty"`
	Right    []Metric   `json:"right,omitempty" yaml:"right,omitempty"`
	Markdown string     `json:"markdown,omitempty" yaml:"markdown,omitempty"`
	Width    int        `json:"width" yaml:"width"`
	Height   int        `json:"height" yaml:"height"`
}

// Row is a group of widgets laid out side by side.
type Row []Widget

// Dashboard is the dashboard declaration.
type Dashboard struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Rows []Row  `json:"rows" yaml:"rows"`
}

// Widgets returns every widget in row order.
func (d Dashboard) Widgets() []Widget {
	var out []Widget
	for _, r := range d.Rows {
		out = append(out, r...)
	}
	return out
}

// TableMonitor is the monitoring derived for one table.
type TableMonitor struct {
	Entity    string       `json:"entity" yaml:"entity"`
	TableName string       `json:"tableName" yaml:"tableName"`
	Metrics   TableMetrics `json:"metrics" yaml:"metrics"`
	Alarms    []Alarm      `json:"alarms,omitempty" yaml:"alarms,omitempty"`
}

// Plan is the complete monitoring declaration for one environment.
type Plan struct {
	Environment string         `json:"environment" yaml:"environment"`
	Dashboard   Dashboard      `json:"dashboard" yaml:"dashboard"`
	Tables      []TableMonitor `json:"tables" yaml:"tables"`
}

// Alarms returns every alarm in table order.
func (p Plan) Alarms() []Alarm {
	var out []Alarm
	for _, t := range p.Tables {
		out = append(out, t.Alarms...)
	}
	return out
}

// Configure derives the monitoring plan for every catalog table. Every table must have a
// resolved handle; alarms are declared only when the policy enables them.
func Configure(app string, p policy.Policy, c schema.Catalog, handles provision.Handles) (Plan, error) {
	if err := handles.RequireResolved(dbinfra.ErrorCodeMonitorFailed, c.Entities()); err != nil {
		return Plan{}, err
	}

	plan := Plan{
		Environment: p.Environment,
		Dashboard: Dashboard{
			ID:   DashboardID,
			Name: naming.DashboardName(app, p.Environment),
		},
	}

	for _, t := range c.Tables {
		h, _ := handles.Get(t.Entity)
		tm := TableMonitor{
			Entity:    t.Entity,
			TableName: h.Name,
			Metrics:   NewTableMetrics(h.Name),
		}
		if p.AlarmsEnabled {
			tm.Alarms = tableAlarms(app, t.Entity, tm.Metrics)
		}
		plan.Tables = append(plan.Tables, tm)
		plan.Dashboard.Rows = append(plan.Dashboard.Rows, tableRow(t.Entity, tm.Metrics))
	}

	plan.Dashboard.Rows = append(plan.Dashboard.Rows, Row{{
		Type:     WidgetText,
		Markdown: Overview(app, c),
		Width:    OverviewWidth,
		Height:   OverviewHeight,
	}})
	return plan, nil
}

func tableAlarms(app, entity string, m TableMetrics) []Alarm {
	throttle := func(id, suffix, verb string, metric Metric) Alarm {
		return Alarm{
			ID:                entity + id,
			Name:              naming.AlarmName(app, entity, suffix),
			Description:       fmt.Sprintf("%s throttling detected on %s table", verb, entity),
			Metric:            metric,
			Threshold:         1,
			EvaluationPeriods: 2,
			DatapointsToAlarm: 2,
			Comparison:        ComparisonGreaterThanOrEqual,
			TreatMissingData:  TreatMissingNotBreaching,
		}
	}
	return []Alarm{
		throttle("ReadThrottleAlarm", SuffixReadThrottle, "Read", m.ReadThrottle),
		throttle("WriteThrottleAlarm", SuffixWriteThrottle, "Write", m.WriteThrottle),
		{
			ID:                entity + "SystemErrorAlarm",
			Name:              naming.AlarmName(app, entity, SuffixSystemErrors),
			Description:       fmt.Sprintf("System errors detected on %s table", entity),
			Metric:            m.SystemErrors,
			Threshold:         1,
			EvaluationPeriods: 1,
			DatapointsToAlarm: 1,
			Comparison:        ComparisonGreaterThanOrEqual,
			TreatMissingData:  TreatMissingNotBreaching,
		},
	}
}

func tableRow(entity string, m TableMetrics) Row {
	return Row{
		{
			Type:   WidgetGraph,
			Title:  entity + " - Consumed Capacity",
			Left:   []Metric{m.ConsumedRead},
			Right:  []Metric{m.ConsumedWrite},
			Width:  GraphWidth,
			Height: GraphHeight,
		},
		{
			Type:   WidgetGraph,
			Title:  entity + " - Throttles & Errors",
			Left:   []Metric{m.ReadThrottle, m.WriteThrottle},
			Right:  []Metric{m.SystemErrors},
			Width:  GraphWidth,
			Height: GraphHeight,
		},
	}
}

// Overview renders the markdown text widget listing the catalog tables, the key metrics and
// the alarm thresholds.
func Overview(app string, c schema.Catalog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Database Monitoring Dashboard\n\n", title(app))
	b.WriteString("## Tables Overview\n")
	for _, t := range c.Tables {
		desc := t.Description
		if desc == "" {
			desc = t.DisplayName
		}
		fmt.Fprintf(&b, "- **%s**: %s\n", t.Entity, desc)
	}
	b.WriteString("\n## Key Metrics\n")
	b.WriteString("- **Consumed Capacity**: Read/write units consumed\n")
	b.WriteString("- **Throttles**: Requests that were throttled\n")
	b.WriteString("- **System Errors**: Service-side errors\n")
	b.WriteString("\n## Alarm Thresholds (Production Only)\n")
	b.WriteString("- **Throttles**: ≥ 1 occurrence in 2 evaluation periods\n")
	b.WriteString("- **System Errors**: ≥ 1 occurrence in 1 evaluation period\n")
	return b.String()
}

func title(app string) string {
	parts := strings.FieldsFunc(app, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
