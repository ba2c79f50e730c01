package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aquamon/aquamon/pkg/alert"
)

// thresholdFile is the on-disk YAML shape for a versioned threshold set.
type thresholdFile struct {
	Version  int                     `yaml:"version"`
	Profiles map[string]profileEntry `yaml:"profiles"`
}

type profileEntry struct {
	Warning  bandEntry `yaml:"warning"`
	Critical bandEntry `yaml:"critical"`
}

type bandEntry struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// DefaultThresholds returns the built-in drinking-water profile used
// when no threshold file is configured.
func DefaultThresholds() alert.ThresholdSet {
	return alert.ThresholdSet{
		Version: 1,
		Profiles: map[alert.Parameter]alert.ThresholdProfile{
			alert.ParameterPH: {
				Parameter: alert.ParameterPH,
				Warning:   alert.Band{Min: 6.5, Max: 8.5},
				Critical:  alert.Band{Min: 6.0, Max: 9.0},
			},
			alert.ParameterTDS: {
				Parameter: alert.ParameterTDS,
				Warning:   alert.Band{Max: 500},
				Critical:  alert.Band{Max: 1000},
			},
			alert.ParameterTurbidity: {
				Parameter: alert.ParameterTurbidity,
				Warning:   alert.Band{Max: 5},
				Critical:  alert.Band{Max: 10},
			},
		},
	}
}

// LoadThresholds reads a YAML threshold file. Parameters absent from
// the file fall back to the defaults so a partial file stays usable.
func LoadThresholds(path string) (alert.ThresholdSet, error) {
	set := DefaultThresholds()
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return set, fmt.Errorf("read threshold file: %w", err)
	}

	var f thresholdFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return set, fmt.Errorf("decode threshold YAML: %w", err)
	}

	if f.Version > 0 {
		set.Version = f.Version
	}
	for name, entry := range f.Profiles {
		p := alert.Parameter(name)
		if !p.Valid() {
			return set, fmt.Errorf("unknown parameter %q in threshold file", name)
		}
		profile := alert.ThresholdProfile{
			Parameter: p,
			Warning:   alert.Band{Min: entry.Warning.Min, Max: entry.Warning.Max},
			Critical:  alert.Band{Min: entry.Critical.Min, Max: entry.Critical.Max},
		}
		if err := validateProfile(profile); err != nil {
			return set, fmt.Errorf("parameter %q: %w", name, err)
		}
		set.Profiles[p] = profile
	}
	return set, nil
}

func validateProfile(p alert.ThresholdProfile) error {
	if p.Warning.Max <= 0 && p.Critical.Max <= 0 {
		return fmt.Errorf("no usable bounds")
	}
	if p.Parameter == alert.ParameterPH {
		if p.Warning.Min >= p.Warning.Max {
			return fmt.Errorf("warning band min %.2f >= max %.2f", p.Warning.Min, p.Warning.Max)
		}
		if p.Critical.Min >= p.Critical.Max {
			return fmt.Errorf("critical band min %.2f >= max %.2f", p.Critical.Min, p.Critical.Max)
		}
		if p.Critical.Min > p.Warning.Min || p.Critical.Max < p.Warning.Max {
			return fmt.Errorf("critical band must contain warning band")
		}
		return nil
	}
	if p.Critical.Max < p.Warning.Max {
		return fmt.Errorf("critical bound %.2f below warning bound %.2f", p.Critical.Max, p.Warning.Max)
	}
	return nil
}
