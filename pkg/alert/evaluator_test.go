package alert

import (
	"errors"
	"testing"
	"time"
)

func testThresholds() ThresholdSet {
	return ThresholdSet{
		Version: 1,
		Profiles: map[Parameter]ThresholdProfile{
			ParameterPH: {
				Parameter: ParameterPH,
				Warning:   Band{Min: 6.5, Max: 8.5},
				Critical:  Band{Min: 6.0, Max: 9.0},
			},
			ParameterTDS: {
				Parameter: ParameterTDS,
				Warning:   Band{Max: 500},
				Critical:  Band{Max: 1000},
			},
			ParameterTurbidity: {
				Parameter: ParameterTurbidity,
				Warning:   Band{Max: 5},
				Critical:  Band{Max: 10},
			},
		},
	}
}

func TestEvaluate(t *testing.T) {
	set := testThresholds()

	tests := []struct {
		name         string
		parameter    Parameter
		value        float64
		wantSeverity Severity
		wantNominal  bool
	}{
		{name: "ph above critical", parameter: ParameterPH, value: 9.4, wantSeverity: SeverityCritical},
		{name: "ph below critical", parameter: ParameterPH, value: 5.5, wantSeverity: SeverityCritical},
		{name: "ph warning band", parameter: ParameterPH, value: 8.8, wantSeverity: SeverityWarning},
		{name: "ph low warning band", parameter: ParameterPH, value: 6.2, wantSeverity: SeverityWarning},
		{name: "ph nominal", parameter: ParameterPH, value: 7.0, wantNominal: true},
		{name: "ph nominal at warning min", parameter: ParameterPH, value: 6.5, wantNominal: true},
		{name: "ph nominal at warning max", parameter: ParameterPH, value: 8.5, wantNominal: true},
		{name: "ph at critical bound stays warning", parameter: ParameterPH, value: 9.0, wantSeverity: SeverityWarning},
		{name: "tds nominal", parameter: ParameterTDS, value: 350, wantNominal: true},
		{name: "tds warning", parameter: ParameterTDS, value: 750, wantSeverity: SeverityWarning},
		{name: "tds critical", parameter: ParameterTDS, value: 1200, wantSeverity: SeverityCritical},
		{name: "tds at warning bound is nominal", parameter: ParameterTDS, value: 500, wantNominal: true},
		{name: "turbidity critical", parameter: ParameterTurbidity, value: 12.5, wantSeverity: SeverityCritical},
		{name: "zero reading is sensor fault advisory", parameter: ParameterTDS, value: 0, wantSeverity: SeverityAdvisory},
		{name: "zero ph is sensor fault not critical", parameter: ParameterPH, value: 0, wantSeverity: SeverityAdvisory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading := SensorReading{
				DeviceID:   "dev-1",
				Parameter:  tt.parameter,
				Value:      tt.value,
				ObservedAt: time.Now(),
			}

			cand, err := Evaluate(reading, set)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantNominal {
				if cand != nil {
					t.Fatalf("expected nominal, got candidate %+v", cand)
				}
				return
			}

			if cand == nil {
				t.Fatal("expected a candidate, got nil")
			}
			if cand.Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", cand.Severity, tt.wantSeverity)
			}
			if cand.DeviceID != "dev-1" || cand.Parameter != tt.parameter {
				t.Errorf("candidate key = (%s, %s), want (dev-1, %s)", cand.DeviceID, cand.Parameter, tt.parameter)
			}
			if cand.Value != tt.value {
				t.Errorf("value = %v, want %v", cand.Value, tt.value)
			}
		})
	}
}

func TestEvaluate_UnknownParameter(t *testing.T) {
	_, err := Evaluate(SensorReading{DeviceID: "dev-1", Parameter: "salinity", Value: 3}, testThresholds())
	if !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestEvaluate_MissingProfile(t *testing.T) {
	set := ThresholdSet{Profiles: map[Parameter]ThresholdProfile{}}
	_, err := Evaluate(SensorReading{DeviceID: "dev-1", Parameter: ParameterPH, Value: 7}, set)
	if !errors.Is(err, ErrNoProfile) {
		t.Fatalf("expected ErrNoProfile, got %v", err)
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	set := testThresholds()
	reading := SensorReading{DeviceID: "dev-1", Parameter: ParameterPH, Value: 9.4, ObservedAt: time.Now()}

	first, err := Evaluate(reading, set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Evaluate(reading, set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *first != *second {
		t.Errorf("repeated evaluation differs: %+v vs %+v", first, second)
	}
}
