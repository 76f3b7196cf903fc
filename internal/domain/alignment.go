package domain

import (
	"fmt"
	"math"
)

type AlignmentLevel string

const (
	AlignmentExcellent AlignmentLevel = "excellent"
	AlignmentStrong    AlignmentLevel = "strong"
	AlignmentGood      AlignmentLevel = "good"
	AlignmentModerate  AlignmentLevel = "moderate"
	AlignmentWeak      AlignmentLevel = "weak"
	AlignmentPoor      AlignmentLevel = "poor"
)

// VisionAlignment is a weighted composite of five sub-scores, each in [0,1].
type VisionAlignment struct {
	Objective  float64 `json:"objective_alignment" yaml:"objective_alignment"`
	Strategic  float64 `json:"strategic_alignment" yaml:"strategic_alignment"`
	Value      float64 `json:"value_alignment" yaml:"value_alignment"`
	Innovation float64 `json:"innovation_alignment" yaml:"innovation_alignment"`
	Risk       float64 `json:"risk_alignment" yaml:"risk_alignment"`
}

// NewVisionAlignment builds an alignment from all five sub-scores.
func NewVisionAlignment(objective, strategic, value, innovation, risk float64) (VisionAlignment, error) {
	a := VisionAlignment{
		Objective:  objective,
		Strategic:  strategic,
		Value:      value,
		Innovation: innovation,
		Risk:       risk,
	}
	var violations []string
	for _, s := range a.subScores() {
		if s.score < 0 || s.score > 1 || math.IsNaN(s.score) {
			violations = append(violations, fmt.Sprintf("%s must be between 0.0 and 1.0, got %g", s.key, s.score))
		}
	}
	if len(violations) > 0 {
		return VisionAlignment{}, constructionError("new_alignment", violations)
	}
	return a, nil
}

// NewDefaultVisionAlignment uses the default innovation and risk sub-scores.
func NewDefaultVisionAlignment(objective, strategic, value float64) (VisionAlignment, error) {
	return NewVisionAlignment(objective, strategic, value, DefaultInnovationAlignment, DefaultRiskAlignment)
}

type subScore struct {
	key   string
	label string
	score float64
}

func (a VisionAlignment) subScores() []subScore {
	return []subScore{
		{key: "objective_alignment", label: "Objective Alignment", score: a.Objective},
		{key: "strategic_alignment", label: "Strategic Alignment", score: a.Strategic},
		{key: "value_alignment", label: "Value Alignment", score: a.Value},
		{key: "innovation_alignment", label: "Innovation Alignment", score: a.Innovation},
		{key: "risk_alignment", label: "Risk Alignment", score: a.Risk},
	}
}

// OverallScore is the weighted sum rounded to three decimals.
func (a VisionAlignment) OverallScore() float64 {
	score := a.Objective*ObjectiveAlignmentWeight +
		a.Strategic*StrategicAlignmentWeight +
		a.Value*ValueAlignmentWeight +
		a.Innovation*InnovationAlignmentWeight +
		a.Risk*RiskAlignmentWeight
	return round(score, 3)
}

func (a VisionAlignment) IsAligned(threshold float64) bool {
	return a.OverallScore() >= threshold
}

func (a VisionAlignment) Level() AlignmentLevel {
	score := a.OverallScore()
	switch {
	case score >= 0.9:
		return AlignmentExcellent
	case score >= 0.8:
		return AlignmentStrong
	case score >= 0.7:
		return AlignmentGood
	case score >= 0.6:
		return AlignmentModerate
	case score >= 0.5:
		return AlignmentWeak
	default:
		return AlignmentPoor
	}
}

// ImprovementAreas names every sub-score below ImprovementThreshold.
func (a VisionAlignment) ImprovementAreas() []string {
	var areas []string
	for _, s := range a.subScores() {
		if s.score < ImprovementThreshold {
			areas = append(areas, s.label)
		}
	}
	return areas
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
