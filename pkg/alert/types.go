package alert

import "time"

// Parameter identifies a measured water-quality dimension.
type Parameter string

const (
	ParameterPH        Parameter = "ph"
	ParameterTDS       Parameter = "tds"
	ParameterTurbidity Parameter = "turbidity"
)

func (p Parameter) Valid() bool {
	switch p {
	case ParameterPH, ParameterTDS, ParameterTurbidity:
		return true
	}
	return false
}

type Severity string

const (
	SeverityAdvisory Severity = "advisory"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityAdvisory, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

type Status string

const (
	StatusUnacknowledged Status = "unacknowledged"
	StatusAcknowledged   Status = "acknowledged"
	StatusResolved       Status = "resolved"
)

// SensorReading is one immutable measurement reported by a device.
type SensorReading struct {
	DeviceID   string    `json:"device_id"`
	Parameter  Parameter `json:"parameter"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// Band is one threshold tier. For pH both bounds apply and the nominal
// region is the closed interval [Min, Max]. For TDS and Turbidity only
// Max applies.
type Band struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ThresholdProfile holds the warning and critical bands for one parameter.
type ThresholdProfile struct {
	Parameter Parameter `yaml:"-"`
	Warning   Band      `yaml:"warning"`
	Critical  Band      `yaml:"critical"`
}

// ThresholdSet is a versioned collection of profiles. It is loaded from
// configuration and never mutated at runtime.
type ThresholdSet struct {
	Version  int
	Profiles map[Parameter]ThresholdProfile
}

func (s ThresholdSet) Profile(p Parameter) (ThresholdProfile, bool) {
	prof, ok := s.Profiles[p]
	return prof, ok
}

// Candidate is a raw alert produced by the evaluator. It is ephemeral:
// the dedup engine either merges it into an open alert or admits it.
type Candidate struct {
	DeviceID   string    `json:"device_id"`
	Parameter  Parameter `json:"parameter"`
	Severity   Severity  `json:"severity"`
	Value      float64   `json:"value"`
	Threshold  string    `json:"threshold"`
	ObservedAt time.Time `json:"observed_at"`
}

// Alert is the persisted record of a threshold violation.
//
// Invariants: at most one non-resolved alert per (device, parameter)
// inside the active cooldown window; OccurrenceCount never decreases
// before resolution; LastOccurrence >= FirstOccurrence.
type Alert struct {
	ID              string     `json:"id"`
	DeviceID        string     `json:"device_id"`
	Parameter       Parameter  `json:"parameter"`
	Severity        Severity   `json:"severity"`
	Status          Status     `json:"status"`
	CurrentValue    float64    `json:"current_value"`
	Threshold       string     `json:"threshold"`
	OccurrenceCount int        `json:"occurrence_count"`
	FirstOccurrence time.Time  `json:"first_occurrence"`
	LastOccurrence  time.Time  `json:"last_occurrence"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// Open reports whether the alert is still in a non-terminal state.
func (a *Alert) Open() bool {
	return a.Status != StatusResolved
}

type Filter struct {
	DeviceID  string
	Parameter Parameter
	Status    Status
	Severity  Severity
	Limit     int
	Offset    int
}
