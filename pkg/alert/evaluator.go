package alert

import (
	"fmt"
	"math"
)

// Evaluate classifies a reading against the parameter's threshold profile
// and returns at most one candidate. It has no side effects and is safe
// to call concurrently.
//
// Branch order matters: an exact-zero value is reported as a sensor-fault
// advisory before any range check, because a literal 0 almost always means
// a disconnected probe rather than a true reading. After that the critical
// band is checked before the warning band.
func Evaluate(r SensorReading, set ThresholdSet) (*Candidate, error) {
	if !r.Parameter.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownParameter, r.Parameter)
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return nil, fmt.Errorf("%w: non-finite value", ErrInvalidReading)
	}

	prof, ok := set.Profile(r.Parameter)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoProfile, r.Parameter)
	}

	if r.Value == 0 {
		return candidate(r, SeverityAdvisory, "sensor fault: zero reading"), nil
	}

	switch r.Parameter {
	case ParameterPH:
		if r.Value < prof.Critical.Min || r.Value > prof.Critical.Max {
			return candidate(r, SeverityCritical,
				fmt.Sprintf("outside [%.2f, %.2f]", prof.Critical.Min, prof.Critical.Max)), nil
		}
		if r.Value < prof.Warning.Min || r.Value > prof.Warning.Max {
			return candidate(r, SeverityWarning,
				fmt.Sprintf("outside [%.2f, %.2f]", prof.Warning.Min, prof.Warning.Max)), nil
		}
	default:
		// TDS and Turbidity carry upper bounds only.
		if r.Value > prof.Critical.Max {
			return candidate(r, SeverityCritical,
				fmt.Sprintf("above %.2f", prof.Critical.Max)), nil
		}
		if r.Value > prof.Warning.Max {
			return candidate(r, SeverityWarning,
				fmt.Sprintf("above %.2f", prof.Warning.Max)), nil
		}
	}

	return nil, nil
}

func candidate(r SensorReading, sev Severity, threshold string) *Candidate {
	return &Candidate{
		DeviceID:   r.DeviceID,
		Parameter:  r.Parameter,
		Severity:   sev,
		Value:      r.Value,
		Threshold:  threshold,
		ObservedAt: r.ObservedAt,
	}
}
