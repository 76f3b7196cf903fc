package domain

import (
	"fmt"
	"slices"
	"strings"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type Likelihood string

const (
	LikelihoodRare     Likelihood = "rare"
	LikelihoodUnlikely Likelihood = "unlikely"
	LikelihoodPossible Likelihood = "possible"
	LikelihoodLikely   Likelihood = "likely"
	LikelihoodCertain  Likelihood = "certain"
)

func (l Likelihood) IsValid() bool {
	switch l {
	case LikelihoodRare, LikelihoodUnlikely, LikelihoodPossible, LikelihoodLikely, LikelihoodCertain:
		return true
	}
	return false
}

// RiskFactor describes a threat to a vision and how it is mitigated.
type RiskFactor struct {
	ID                 string     `json:"id" yaml:"id"`
	Description        string     `json:"description" yaml:"description"`
	Severity           Severity   `json:"severity" yaml:"severity"`
	Likelihood         Likelihood `json:"likelihood" yaml:"likelihood"`
	ImpactAreas        []string   `json:"impact_areas" yaml:"impact_areas"`
	MitigationStrategy string     `json:"mitigation_strategy" yaml:"mitigation_strategy"`
}

// NewRiskFactor checks enum membership and normalizes impact areas into a sorted set.
func NewRiskFactor(r RiskFactor) (RiskFactor, error) {
	var violations []string
	if !r.Severity.IsValid() {
		violations = append(violations, fmt.Sprintf("unknown risk severity %q", r.Severity))
	}
	if !r.Likelihood.IsValid() {
		violations = append(violations, fmt.Sprintf("unknown risk likelihood %q", r.Likelihood))
	}
	if len(violations) > 0 {
		return RiskFactor{}, constructionError("new_risk_factor", violations)
	}
	r.ImpactAreas = dedupe(r.ImpactAreas)
	slices.Sort(r.ImpactAreas)
	return r, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
