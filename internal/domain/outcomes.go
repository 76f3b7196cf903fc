package domain

import (
	"strings"
	"time"
)

// QualityStandard is an acceptance bar a branch commits to.
type QualityStandard struct {
	Name               string  `json:"name" yaml:"name"`
	Description        string  `json:"description" yaml:"description"`
	Threshold          float64 `json:"threshold" yaml:"threshold"`
	MeasurementMethod  string  `json:"measurement_method" yaml:"measurement_method"`
	ValidationApproach string  `json:"validation_approach" yaml:"validation_approach"`
}

// ExpectedOutcome is what a branch expects to deliver.
type ExpectedOutcome struct {
	Description       string    `json:"description" yaml:"description"`
	SuccessIndicator  string    `json:"success_indicator" yaml:"success_indicator"`
	MeasurementMethod string    `json:"measurement_method" yaml:"measurement_method"`
	TargetDate        time.Time `json:"target_date" yaml:"target_date"`
}

func (o ExpectedOutcome) IsMeasurable() bool {
	return strings.TrimSpace(o.SuccessIndicator) != "" && strings.TrimSpace(o.MeasurementMethod) != ""
}

// MeasurableOutcome tracks a metric from a baseline to a target.
type MeasurableOutcome struct {
	Description     string    `json:"description" yaml:"description"`
	MetricName      string    `json:"metric_name" yaml:"metric_name"`
	BaselineValue   float64   `json:"baseline_value" yaml:"baseline_value"`
	TargetValue     float64   `json:"target_value" yaml:"target_value"`
	MeasurementDate time.Time `json:"measurement_date" yaml:"measurement_date"`
}
