package schedule

import (
	"fmt"
	"math"
	"strings"
)

// #region base
// counter is the step state shared by every schedule here. Each schedule
// computes its rate purely from the base rate and the number of steps taken.
type counter struct {
	base  float64
	steps int
}

func (c *counter) Step()      { c.steps++ }
func (c *counter) Steps() int { return c.steps }
// #endregion base

// #region step-lr
// StepLR multiplies the rate by Gamma every StepSize steps.
type StepLR struct {
	counter
	StepSize int
	Gamma    float64
}

// NewStepLR falls back to stepSize 30 and gamma 0.1 for out-of-range values.
func NewStepLR(base float64, stepSize int, gamma float64) *StepLR {
	if stepSize <= 0 {
		stepSize = 30
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1
	}
	return &StepLR{counter: counter{base: base}, StepSize: stepSize, Gamma: gamma}
}

func (s *StepLR) Rates() []float64 {
	return []float64{s.base * math.Pow(s.Gamma, float64(s.steps/s.StepSize))}
}
// #endregion step-lr

// #region exponential-lr
// ExponentialLR multiplies the rate by Gamma on every step.
type ExponentialLR struct {
	counter
	Gamma float64
}

// NewExponentialLR falls back to gamma 0.95 for out-of-range values.
func NewExponentialLR(base, gamma float64) *ExponentialLR {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.95
	}
	return &ExponentialLR{counter: counter{base: base}, Gamma: gamma}
}

func (s *ExponentialLR) Rates() []float64 {
	return []float64{s.base * math.Pow(s.Gamma, float64(s.steps))}
}
// #endregion exponential-lr

// #region cosine-lr
// CosineLR anneals from the base rate to EtaMin over TMax steps, then holds.
type CosineLR struct {
	counter
	TMax   int
	EtaMin float64
}

// NewCosineLR falls back to tMax 100 for non-positive values.
func NewCosineLR(base float64, tMax int, etaMin float64) *CosineLR {
	if tMax <= 0 {
		tMax = 100
	}
	return &CosineLR{counter: counter{base: base}, TMax: tMax, EtaMin: etaMin}
}

func (s *CosineLR) Rates() []float64 {
	t := s.steps
	if t > s.TMax {
		t = s.TMax
	}
	cos := math.Cos(math.Pi * float64(t) / float64(s.TMax))
	return []float64{s.EtaMin + (s.base-s.EtaMin)*(1+cos)/2}
}
// #endregion cosine-lr

// #region parse
// Spec describes a schedule in configuration.
type Spec struct {
	Kind     string  `yaml:"kind" json:"kind" validate:"required,oneof=step exponential cosine"`
	BaseLR   float64 `yaml:"base_lr" json:"base_lr" validate:"gt=0"`
	StepSize int     `yaml:"step_size" json:"step_size"`
	Gamma    float64 `yaml:"gamma" json:"gamma"`
	TMax     int     `yaml:"t_max" json:"t_max"`
	EtaMin   float64 `yaml:"eta_min" json:"eta_min"`
}

// Schedule is the interface every schedule here satisfies.
type Schedule interface {
	Step()
	Steps() int
	Rates() []float64
}

// New builds the schedule named by spec.Kind.
func New(spec Spec) (Schedule, error) {
	switch strings.ToLower(spec.Kind) {
	case "step":
		return NewStepLR(spec.BaseLR, spec.StepSize, spec.Gamma), nil
	case "exponential":
		return NewExponentialLR(spec.BaseLR, spec.Gamma), nil
	case "cosine":
		return NewCosineLR(spec.BaseLR, spec.TMax, spec.EtaMin), nil
	}
	return nil, fmt.Errorf("unknown schedule kind %q", spec.Kind)
}
// #endregion parse
