package awsapi

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/acorn-pups/dbinfra/pkg/monitoring"
	"github.com/acorn-pups/dbinfra/pkg/observability"
)

// CloudWatchAPI is the subset of the CloudWatch client the monitoring service uses.
type CloudWatchAPI interface {
	PutMetricAlarm(ctx context.Context, params *cloudwatch.PutMetricAlarmInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricAlarmOutput, error)
	PutDashboard(ctx context.Context, params *cloudwatch.PutDashboardInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutDashboardOutput, error)
	DescribeAlarms(ctx context.Context, params *cloudwatch.DescribeAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error)
}

var _ CloudWatchAPI = (*cloudwatch.Client)(nil)

// MonitoringService declares dashboards and metric alarms in CloudWatch.
type MonitoringService struct {
	client       CloudWatchAPI
	region       string
	alarmActions []string
	logger       observability.StructuredLogger
}

var (
	_ monitoring.Service     = (*MonitoringService)(nil)
	_ monitoring.StateReader = (*MonitoringService)(nil)
)

// describeAlarmsPageSize is the DescribeAlarms limit on alarm names per request.
const describeAlarmsPageSize = 100

type MonitoringOption func(*MonitoringService)

// WithAlarmActions sets the actions (e.g. SNS topic ARNs) notified when an alarm fires.
func WithAlarmActions(arns ...string) MonitoringOption {
	return func(s *MonitoringService) {
		s.alarmActions = append(s.alarmActions, arns...)
	}
}

func WithMonitoringLogger(l observability.StructuredLogger) MonitoringOption {
	return func(s *MonitoringService) {
		s.logger = l
	}
}

func NewMonitoringService(client CloudWatchAPI, region string, opts ...MonitoringOption) *MonitoringService {
	s := &MonitoringService{client: client, region: region}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = observability.OrNoOp(s.logger).WithComponent("cloudwatch")
	return s
}

func (s *MonitoringService) PutDashboard(ctx context.Context, d monitoring.Dashboard) error {
	body, err := monitoring.DashboardBody(d, s.region)
	if err != nil {
		return fmt.Errorf("render dashboard %s: %w", d.Name, err)
	}
	out, err := s.client.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(d.Name),
		DashboardBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("put dashboard %s: %w", d.Name, err)
	}
	for _, m := range out.DashboardValidationMessages {
		s.logger.Warn("dashboard validation message", map[string]any{
			"dashboard": d.Name,
			"path":      aws.ToString(m.DataPath),
			"message":   aws.ToString(m.Message),
		})
	}
	return nil
}

func (s *MonitoringService) PutAlarm(ctx context.Context, a monitoring.Alarm) error {
	_, err := s.client.PutMetricAlarm(ctx, AlarmInput(a, s.alarmActions))
	if err != nil {
		return fmt.Errorf("put alarm %s: %w", a.Name, err)
	}
	return nil
}

// AlarmStates reads the current state of the named metric alarms.
func (s *MonitoringService) AlarmStates(ctx context.Context, names ...string) (map[string]monitoring.State, error) {
	out := make(map[string]monitoring.State, len(names))
	for start := 0; start < len(names); start += describeAlarmsPageSize {
		end := min(start+describeAlarmsPageSize, len(names))
		in := &cloudwatch.DescribeAlarmsInput{
			AlarmNames: names[start:end],
			AlarmTypes: []cwtypes.AlarmType{cwtypes.AlarmTypeMetricAlarm},
		}
		for {
			page, err := s.client.DescribeAlarms(ctx, in)
			if err != nil {
				return nil, fmt.Errorf("describe alarms: %w", err)
			}
			for _, a := range page.MetricAlarms {
				out[aws.ToString(a.AlarmName)] = AlarmState(a.StateValue)
			}
			if aws.ToString(page.NextToken) == "" {
				break
			}
			in.NextToken = page.NextToken
		}
	}
	return out, nil
}

// AlarmState maps a CloudWatch state to an alarm state. OK and INSUFFICIENT_DATA are normal:
// alarms treat missing data as not breaching.
func AlarmState(v cwtypes.StateValue) monitoring.State {
	if v == cwtypes.StateValueAlarm {
		return monitoring.StateAlarm
	}
	return monitoring.StateNormal
}

// AlarmInput converts an alarm declaration to a PutMetricAlarm request.
func AlarmInput(a monitoring.Alarm, actions []string) *cloudwatch.PutMetricAlarmInput {
	dims := make([]cwtypes.Dimension, 0, len(a.Metric.Dimensions))
	for _, k := range sortedDimensionKeys(a.Metric.Dimensions) {
		dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(a.Metric.Dimensions[k])})
	}

	in := &cloudwatch.PutMetricAlarmInput{
		AlarmName:          aws.String(a.Name),
		AlarmDescription:   aws.String(a.Description),
		Namespace:          aws.String(a.Metric.Namespace),
		MetricName:         aws.String(a.Metric.Name),
		Dimensions:         dims,
		Statistic:          cwtypes.Statistic(a.Metric.Statistic),
		Period:             aws.Int32(a.Metric.PeriodSeconds()),
		EvaluationPeriods:  aws.Int32(int32(a.EvaluationPeriods)),
		Threshold:          aws.Float64(a.Threshold),
		ComparisonOperator: cwtypes.ComparisonOperator(a.Comparison),
		TreatMissingData:   aws.String(a.TreatMissingData),
		ActionsEnabled:     aws.Bool(true),
	}
	if a.DatapointsToAlarm > 0 {
		in.DatapointsToAlarm = aws.Int32(int32(a.DatapointsToAlarm))
	}
	if len(actions) > 0 {
		in.AlarmActions = append([]string(nil), actions...)
	}
	return in
}

func sortedDimensionKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
