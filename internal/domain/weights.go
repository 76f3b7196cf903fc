package domain

// Alignment sub-score weights. They sum to 1.
const (
	ObjectiveAlignmentWeight  = 0.35
	StrategicAlignmentWeight  = 0.25
	ValueAlignmentWeight      = 0.20
	InnovationAlignmentWeight = 0.10
	RiskAlignmentWeight       = 0.10
)

const (
	DefaultInnovationAlignment = 0.8
	DefaultRiskAlignment       = 0.8
	DefaultAlignedThreshold    = 0.7
	// Sub-scores under this value are reported as improvement areas.
	ImprovementThreshold       = 0.7
)

// Task priority weights applied to 0-10 sub-scores.
const (
	BusinessValueWeight       = 0.30
	UserImpactWeight          = 0.25
	InnovationPriorityWeight  = 0.15
	TechnicalDebtWeight       = 0.10
	DefaultUrgencyFactor      = 1.0
	MaxTaskScore              = 10.0
	MinTechnicalDebtImpact    = -10.0
	MinBranchProjectAlignment = 0.5
)

// Vision health weights.
const (
	HealthObjectiveWeight = 0.4
	HealthBranchWeight    = 0.3
	HealthTaskWeight      = 0.3
)

const (
	// An objective is at risk when progress is below this share of its linear expectation.
	atRiskExpectedShare = 0.8
)
