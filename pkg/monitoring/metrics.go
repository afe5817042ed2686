// Package monitoring derives the per-table metrics, alarms and dashboard for a set of
// provisioned tables, and evaluates the alarm state machine locally.
package monitoring

import "time"

// Metric names published by DynamoDB.
const (
	Namespace = "AWS/DynamoDB"

	MetricConsumedRead  = "ConsumedReadCapacityUnits"
	MetricConsumedWrite = "ConsumedWriteCapacityUnits"
	MetricReadThrottle  = "ReadThrottles"
	MetricWriteThrottle = "WriteThrottles"
	MetricSystemErrors  = "SystemErrors"

	DimensionTableName = "TableName"
	StatisticSum       = "Sum"
	DefaultPeriod      = 5 * time.Minute
)

// Metric is a metric query: one named metric for one table, aggregated over a fixed period.
type Metric struct {
	Namespace  string            `json:"namespace" yaml:"namespace"`
	Name       string            `json:"name" yaml:"name"`
	Dimensions map[string]string `json:"dimensions" yaml:"dimensions"`
	Statistic  string            `json:"statistic" yaml:"statistic"`
	Period     time.Duration     `json:"period" yaml:"period"`
}

// PeriodSeconds returns the period in whole seconds.
func (m Metric) PeriodSeconds() int32 {
	return int32(m.Period / time.Second)
}

// TableMetric returns the Sum over DefaultPeriod of metricName for tableName.
func TableMetric(tableName, metricName string) Metric {
	return Metric{
		Namespace:  Namespace,
		Name:       metricName,
		Dimensions: map[string]string{DimensionTableName: tableName},
		Statistic:  StatisticSum,
		Period:     DefaultPeriod,
	}
}

// TableMetrics is the metric set derived for one table.
type TableMetrics struct {
	ConsumedRead  Metric `json:"consumedRead" yaml:"consumedRead"`
	ConsumedWrite Metric `json:"consumedWrite" yaml:"consumedWrite"`
	ReadThrottle  Metric `json:"readThrottle" yaml:"readThrottle"`
	WriteThrottle Metric `json:"writeThrottle" yaml:"writeThrottle"`
	SystemErrors  Metric `json:"systemErrors" yaml:"systemErrors"`
}

func NewTableMetrics(tableName string) TableMetrics {
	return TableMetrics{
		ConsumedRead:  TableMetric(tableName, MetricConsumedRead),
		ConsumedWrite: TableMetric(tableName, MetricConsumedWrite),
		ReadThrottle:  TableMetric(tableName, MetricReadThrottle),
		WriteThrottle: TableMetric(tableName, MetricWriteThrottle),
		SystemErrors:  TableMetric(tableName, MetricSystemErrors),
	}
}

// All returns the five metrics in a fixed order.
func (m TableMetrics) All() []Metric {
	return []Metric{m.ConsumedRead, m.ConsumedWrite, m.ReadThrottle, m.WriteThrottle, m.SystemErrors}
}
