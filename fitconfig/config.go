// Package fitconfig loads optimizer tuning from YAML files and loads a
// .env file into the process environment, the way main.go in the reference
// repo loads its own runtime configuration. No tuning value is read from
// the environment.
package fitconfig

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bcdannyboy/hypermet/optimize"
)

// OptimizerConfig is the YAML-friendly mirror of optimize.Config: plain
// strings and numbers instead of Go-only enum types.
type OptimizerConfig struct {
	GradientSelection string  `yaml:"gradient_selection"`
	MaxIterations     int     `yaml:"max_iterations"`
	MaxPerturbations  int     `yaml:"max_perturbations"`
	Tolerance         float64 `yaml:"tolerance"`
	FiniteDiffStep    float64 `yaml:"finite_diff_step"`

	MinXDelta    float64 `yaml:"min_x_delta"`
	MinFDelta    float64 `yaml:"min_f_delta"`
	MinGNorm     float64 `yaml:"min_g_norm"`
	MaxCondition float64 `yaml:"max_condition"`

	UseEpsilonCheck bool    `yaml:"use_epsilon_check"`
	Epsilon         float64 `yaml:"epsilon"`

	PerformSanityChecks bool `yaml:"perform_sanity_checks"`
	Verbosity           int  `yaml:"verbosity"`
}

// Default mirrors optimize.DefaultConfig in YAML-friendly form.
func Default() OptimizerConfig {
	d := optimize.DefaultConfig()
	return OptimizerConfig{
		GradientSelection:   "default_to_finite",
		MaxIterations:       d.MaxIterations,
		MaxPerturbations:    d.MaxPerturbations,
		Tolerance:           d.Tolerance,
		FiniteDiffStep:      d.FiniteDiffStep,
		MinXDelta:           d.MinXDelta,
		MinFDelta:           d.MinFDelta,
		MinGNorm:            d.MinGNorm,
		MaxCondition:        d.MaxCondition,
		UseEpsilonCheck:     d.UseEpsilonCheck,
		Epsilon:             d.Epsilon,
		PerformSanityChecks: d.PerformSanityChecks,
		Verbosity:           d.Verbosity,
	}
}

// Load reads an OptimizerConfig from a YAML file at path over a copy of
// Default: keys the file omits keep their defaults, while keys it sets
// explicitly (including zero values) replace them.
func Load(path string) (OptimizerConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return OptimizerConfig{}, fmt.Errorf("fitconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return OptimizerConfig{}, fmt.Errorf("fitconfig: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnvironment loads a .env file into the process environment if
// present; a missing file is not an error, mirroring callers that only
// optionally override configuration locally.
func LoadEnvironment(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// ToOptimizeConfig translates the YAML form into optimize.Config, parsing
// GradientSelection by name.
func (c OptimizerConfig) ToOptimizeConfig() (optimize.Config, error) {
	var selection optimize.GradientSelection
	switch c.GradientSelection {
	case "", "default_to_finite":
		selection = optimize.DefaultToFinite
	case "analytic_always":
		selection = optimize.AnalyticAlways
	case "finite_always":
		selection = optimize.FiniteAlways
	default:
		return optimize.Config{}, fmt.Errorf("fitconfig: unknown gradient_selection %q", c.GradientSelection)
	}
	return optimize.Config{
		GradientSelection:   selection,
		MaxIterations:       c.MaxIterations,
		MaxPerturbations:    c.MaxPerturbations,
		Tolerance:           c.Tolerance,
		FiniteDiffStep:      c.FiniteDiffStep,
		MinXDelta:           c.MinXDelta,
		MinFDelta:           c.MinFDelta,
		MinGNorm:            c.MinGNorm,
		MaxCondition:        c.MaxCondition,
		UseEpsilonCheck:     c.UseEpsilonCheck,
		Epsilon:             c.Epsilon,
		PerformSanityChecks: c.PerformSanityChecks,
		Verbosity:           c.Verbosity,
	}, nil
}
