package cdkstack

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudwatch"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/acorn-pups/dbinfra/pkg/monitoring"
)

// MonitoringService declares the dashboard and alarms as constructs in its scope.
type MonitoringService struct {
	scope  constructs.Construct
	alarms []awscloudwatch.Alarm
}

var _ monitoring.Service = (*MonitoringService)(nil)

func NewMonitoringService(scope constructs.Construct) *MonitoringService {
	return &MonitoringService{scope: scope}
}

// PutDashboard declares the dashboard with one widget row per declared row.
func (s *MonitoringService) PutDashboard(_ context.Context, d monitoring.Dashboard) error {
	if s.scope.Node().TryFindChild(jsii.String(d.ID)) != nil {
		return fmt.Errorf("construct %s already exists in %s", d.ID, *s.scope.Node().Path())
	}
	dash := awscloudwatch.NewDashboard(s.scope, jsii.String(d.ID), &awscloudwatch.DashboardProps{
		DashboardName: jsii.String(d.Name),
	})
	for _, row := range d.Rows {
		widgets := make([]awscloudwatch.IWidget, 0, len(row))
		for _, w := range row {
			widgets = append(widgets, widget(w))
		}
		dash.AddWidgets(widgets...)
	}
	return nil
}

func (s *MonitoringService) PutAlarm(_ context.Context, a monitoring.Alarm) error {
	if s.scope.Node().TryFindChild(jsii.String(a.ID)) != nil {
		return fmt.Errorf("construct %s already exists in %s", a.ID, *s.scope.Node().Path())
	}
	op, err := comparisonOperator(a.Comparison)
	if err != nil {
		return fmt.Errorf("alarm %s: %w", a.Name, err)
	}
	missing, err := treatMissingData(a.TreatMissingData)
	if err != nil {
		return fmt.Errorf("alarm %s: %w", a.Name, err)
	}

	props := &awscloudwatch.AlarmProps{
		AlarmName:          jsii.String(a.Name),
		AlarmDescription:   jsii.String(a.Description),
		Metric:             metric(a.Metric),
		Threshold:          jsii.Number(a.Threshold),
		EvaluationPeriods:  jsii.Number(a.EvaluationPeriods),
		ComparisonOperator: op,
		TreatMissingData:   missing,
	}
	if a.DatapointsToAlarm > 0 {
		props.DatapointsToAlarm = jsii.Number(a.DatapointsToAlarm)
	}
	s.alarms = append(s.alarms, awscloudwatch.NewAlarm(s.scope, jsii.String(a.ID), props))
	return nil
}

// Alarms returns the declared alarm constructs in declaration order.
func (s *MonitoringService) Alarms() []awscloudwatch.Alarm {
	return append([]awscloudwatch.Alarm(nil), s.alarms...)
}

func widget(w monitoring.Widget) awscloudwatch.IWidget {
	if w.Type == monitoring.WidgetText {
		return awscloudwatch.NewTextWidget(&awscloudwatch.TextWidgetProps{
			Markdown: jsii.String(w.Markdown),
			Width:    jsii.Number(w.Width),
			Height:   jsii.Number(w.Height),
		})
	}
	return awscloudwatch.NewGraphWidget(&awscloudwatch.GraphWidgetProps{
		Title:  jsii.String(w.Title),
		Left:   metrics(w.Left),
		Right:  metrics(w.Right),
		Width:  jsii.Number(w.Width),
		Height: jsii.Number(w.Height),
	})
}

func metrics(ms []monitoring.Metric) *[]awscloudwatch.IMetric {
	if len(ms) == 0 {
		return nil
	}
	out := make([]awscloudwatch.IMetric, 0, len(ms))
	for _, m := range ms {
		out = append(out, metric(m))
	}
	return &out
}

func metric(m monitoring.Metric) awscloudwatch.Metric {
	dims := make(map[string]*string, len(m.Dimensions))
	for k, v := range m.Dimensions {
		dims[k] = jsii.String(v)
	}
	return awscloudwatch.NewMetric(&awscloudwatch.MetricProps{
		Namespace:     jsii.String(m.Namespace),
		MetricName:    jsii.String(m.Name),
		DimensionsMap: &dims,
		Statistic:     jsii.String(m.Statistic),
		Period:        awscdk.Duration_Seconds(jsii.Number(m.PeriodSeconds())),
	})
}

func comparisonOperator(op string) (awscloudwatch.ComparisonOperator, error) {
	switch op {
	case monitoring.ComparisonGreaterThanOrEqual:
		return awscloudwatch.ComparisonOperator_GREATER_THAN_OR_EQUAL_TO_THRESHOLD, nil
	case "GreaterThanThreshold":
		return awscloudwatch.ComparisonOperator_GREATER_THAN_THRESHOLD, nil
	case "LessThanThreshold":
		return awscloudwatch.ComparisonOperator_LESS_THAN_THRESHOLD, nil
	case "LessThanOrEqualToThreshold":
		return awscloudwatch.ComparisonOperator_LESS_THAN_OR_EQUAL_TO_THRESHOLD, nil
	}
	return "", fmt.Errorf("unsupported comparison operator %q", op)
}

func treatMissingData(v string) (awscloudwatch.TreatMissingData, error) {
	switch v {
	case monitoring.TreatMissingNotBreaching:
		return awscloudwatch.TreatMissingData_NOT_BREACHING, nil
	case monitoring.TreatMissingBreaching:
		return awscloudwatch.TreatMissingData_BREACHING, nil
	case "ignore":
		return awscloudwatch.TreatMissingData_IGNORE, nil
	case "missing", "":
		return awscloudwatch.TreatMissingData_MISSING, nil
	}
	return "", fmt.Errorf("unsupported missing data policy %q", v)
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
