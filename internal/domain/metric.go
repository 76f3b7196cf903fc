package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type MetricKind string

const (
	MetricPercentage MetricKind = "percentage"
	MetricNumber     MetricKind = "number"
	MetricCurrency   MetricKind = "currency"
	MetricTime       MetricKind = "time"
	MetricRatio      MetricKind = "ratio"
)

func (k MetricKind) IsValid() bool {
	switch k {
	case MetricPercentage, MetricNumber, MetricCurrency, MetricTime, MetricRatio:
		return true
	}
	return false
}

type TrendDirection string

const (
	TrendHigherBetter TrendDirection = "higher_better"
	TrendLowerBetter  TrendDirection = "lower_better"
	TrendTargetRange  TrendDirection = "target_range"
)

func (t TrendDirection) IsValid() bool {
	switch t {
	case TrendHigherBetter, TrendLowerBetter, TrendTargetRange:
		return true
	}
	return false
}

type MetricStatus string

const (
	StatusExcellent MetricStatus = "excellent"
	StatusGood      MetricStatus = "good"
	StatusWarning   MetricStatus = "warning"
	StatusCritical  MetricStatus = "critical"
)

// MetricThresholds are ordered critical < warning < good < excellent for
// higher-better metrics and the inverse for lower-better ones.
type MetricThresholds struct {
	Critical  float64 `json:"critical" yaml:"critical"`
	Warning   float64 `json:"warning" yaml:"warning"`
	Good      float64 `json:"good" yaml:"good"`
	Excellent float64 `json:"excellent" yaml:"excellent"`
}

// VisionMetric tracks a measured value against a target and status bands.
type VisionMetric struct {
	ID                   string           `json:"id" yaml:"id"`
	Name                 string           `json:"name" yaml:"name"`
	Description          string           `json:"description" yaml:"description"`
	CurrentValue         float64          `json:"current_value" yaml:"current_value"`
	TargetValue          float64          `json:"target_value" yaml:"target_value"`
	Unit                 string           `json:"unit" yaml:"unit"`
	Kind                 MetricKind       `json:"kind" yaml:"kind"`
	Trend                TrendDirection   `json:"trend" yaml:"trend"`
	Thresholds           MetricThresholds `json:"thresholds" yaml:"thresholds"`
	DataSource           string           `json:"data_source" yaml:"data_source"`
	MeasurementFrequency string           `json:"measurement_frequency" yaml:"measurement_frequency"`
	LastUpdated          time.Time        `json:"last_updated" yaml:"last_updated"`
}

// NewVisionMetric returns a checked copy of m.
func NewVisionMetric(m VisionMetric) (VisionMetric, error) {
	var violations []string
	if strings.TrimSpace(m.Name) == "" {
		violations = append(violations, "metric name cannot be empty")
	}
	if !m.Kind.IsValid() {
		violations = append(violations, fmt.Sprintf("unknown metric kind %q", m.Kind))
	}
	if !m.Trend.IsValid() {
		violations = append(violations, fmt.Sprintf("unknown trend direction %q", m.Trend))
	}
	th := m.Thresholds
	switch m.Trend {
	case TrendHigherBetter:
		if !(th.Critical < th.Warning && th.Warning < th.Good && th.Good < th.Excellent) {
			violations = append(violations, "higher-better thresholds must ascend critical < warning < good < excellent")
		}
	case TrendLowerBetter:
		if !(th.Critical > th.Warning && th.Warning > th.Good && th.Good > th.Excellent) {
			violations = append(violations, "lower-better thresholds must descend critical > warning > good > excellent")
		}
	}
	if len(violations) > 0 {
		return VisionMetric{}, constructionError("new_metric", violations)
	}
	return m, nil
}

// Status maps the current value onto the threshold bands.
func (m VisionMetric) Status() MetricStatus {
	th := m.Thresholds
	switch m.Trend {
	case TrendLowerBetter:
		switch {
		case m.CurrentValue <= th.Excellent:
			return StatusExcellent
		case m.CurrentValue <= th.Good:
			return StatusGood
		case m.CurrentValue <= th.Warning:
			return StatusWarning
		default:
			return StatusCritical
		}
	case TrendTargetRange:
		distance := math.Abs(m.CurrentValue - m.TargetValue)
		band := math.Abs(th.Good - m.TargetValue)
		switch {
		case distance <= band*0.1:
			return StatusExcellent
		case distance <= band:
			return StatusGood
		case distance <= band*1.5:
			return StatusWarning
		default:
			return StatusCritical
		}
	default:
		switch {
		case m.CurrentValue >= th.Excellent:
			return StatusExcellent
		case m.CurrentValue >= th.Good:
			return StatusGood
		case m.CurrentValue >= th.Warning:
			return StatusWarning
		default:
			return StatusCritical
		}
	}
}

// FormatValue renders the current value for display.
func (m VisionMetric) FormatValue() string {
	v := m.CurrentValue
	switch m.Kind {
	case MetricPercentage:
		return fmt.Sprintf("%.1f%%", v)
	case MetricCurrency:
		if v < 0 {
			return "-$" + humanize.FormatFloat("#,###.##", -v)
		}
		return "$" + humanize.FormatFloat("#,###.##", v)
	case MetricRatio:
		return fmt.Sprintf("%.2f:1", v)
	default:
		return strings.TrimSpace(fmt.Sprintf("%.1f %s", v, m.Unit))
	}
}
