package amrsweep

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrZeroStep       = errors.New("angle_increment must be nonzero")
	ErrWrongDirection = errors.New("angle_increment sign does not point from start_angle to end_angle")
	ErrNoMeasurements = errors.New("measurements_per_angle must be at least 1")
	ErrNoVelocity     = errors.New("velocity_deg_per_sec must be positive")
)

// Defaults observed on the rig. The return leg settles longer than the forward leg.
const (
	defaultMeasurementsPerAngle = 2
	defaultVelocity             = 10.0 // deg/s
	defaultRepositionMargin     = 5 * time.Second
	defaultForwardSettleMargin  = 250 * time.Millisecond
	defaultReturnSettleMargin   = time.Second
	defaultForwardPause         = 200 * time.Millisecond
	defaultReturnPause          = 2 * time.Second
	defaultMeasurementRetries   = 3
)

// SampleInfo is descriptive metadata about the sample and the environment. None of it
// affects motion; it is written to metadata.txt and used to name the session directory.
type SampleInfo struct {
	SampleID               string `json:"sample_id,omitempty" yaml:"sample_id"`
	SamplePad              string `json:"sample_pad,omitempty" yaml:"sample_pad"`
	AngleOfCurrent         string `json:"angle_of_current,omitempty" yaml:"angle_of_current"`
	AngleOfEasyAxis        string `json:"angle_of_easy_axis,omitempty" yaml:"angle_of_easy_axis"`
	ProbeRotationDirection string `json:"probe_rotation_direction,omitempty" yaml:"probe_rotation_direction"`
	Temperature            string `json:"temperature,omitempty" yaml:"temperature"`       // Kelvin
	FieldStrength          string `json:"field_strength,omitempty" yaml:"field_strength"` // Gauss
}

// SweepConfig is the fully resolved, read-only description of one run.
type SweepConfig struct {
	StartAngle           float64
	EndAngle             float64
	AngleIncrement       float64
	MeasurementsPerAngle int
	RotateThereAndBack   bool
	AngleOffset          float64
	TrackStdDev          bool

	Velocity            float64 // deg/s
	RepositionMargin    time.Duration
	ForwardSettleMargin time.Duration
	ReturnSettleMargin  time.Duration
	ForwardPause        time.Duration
	ReturnPause         time.Duration
	WaitForStop         bool
	MeasurementRetries  int

	SourceCurrent float64 // amps, passed through to metadata
	Sample        SampleInfo

	// OutputDir must already exist. Empty means rows are kept in memory only.
	OutputDir string
}

// Validate rejects configurations that would never terminate or cannot be measured.
func (c SweepConfig) Validate() error {
	if c.AngleIncrement == 0 {
		return ErrZeroStep
	}
	if c.EndAngle != c.StartAngle && math.Signbit(c.EndAngle-c.StartAngle) != math.Signbit(c.AngleIncrement) {
		return fmt.Errorf("%w: %v to %v by %v", ErrWrongDirection, c.StartAngle, c.EndAngle, c.AngleIncrement)
	}
	if c.MeasurementsPerAngle < 1 {
		return ErrNoMeasurements
	}
	if c.Velocity <= 0 {
		return ErrNoVelocity
	}
	return nil
}

// Direction is +1 or -1 following the sign of the increment.
func (c SweepConfig) Direction() int {
	if c.AngleIncrement < 0 {
		return -1
	}
	return +1
}

// ExpectedForwardSteps is the number of angles the forward leg visits.
func (c SweepConfig) ExpectedForwardSteps() int {
	return int(math.Floor(math.Abs(c.EndAngle-c.StartAngle)/math.Abs(c.AngleIncrement)+angleEpsilon)) + 1
}

// ExpectedRows counts both legs. The return leg starts one step past the last
// forward angle and ends at the start angle, so it has one row more.
func (c SweepConfig) ExpectedRows() int {
	n := c.ExpectedForwardSteps()
	if c.RotateThereAndBack {
		return 2*n + 1
	}
	return n
}

func travelTime(distance, velocity float64) time.Duration {
	return time.Duration(distance / velocity * float64(time.Second))
}

func secondsToDuration(sec float64, fallback time.Duration) time.Duration {
	if sec <= 0 {
		return fallback
	}
	return time.Duration(sec * float64(time.Second))
}
