package amrsweep

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RunFile is the operator-edited description of one sweep, read by cmd/amr-sweep.
type RunFile struct {
	Controller string `yaml:"controller"`
	RootDir    string `yaml:"root_dir"`

	StartAngle           float64  `yaml:"start_angle"`
	EndAngle             float64  `yaml:"end_angle"`
	AngleIncrement       float64  `yaml:"angle_increment"`
	MeasurementsPerAngle int      `yaml:"measurements_per_angle,omitempty"`
	RotateThereAndBack   *bool    `yaml:"rotate_there_and_back,omitempty"`
	AngleOffset          *float64 `yaml:"angle_offset,omitempty"`
	TrackStdDev          *bool    `yaml:"track_std_dev,omitempty"`
	Velocity             float64  `yaml:"velocity_deg_per_sec,omitempty"`
	SourceCurrent        *float64 `yaml:"source_current_amps,omitempty"`

	Sample SampleInfo `yaml:"sample"`
}

func LoadRunFile(path string) (*RunFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run file: %w", err)
	}
	var rf RunFile
	if err := yaml.Unmarshal(b, &rf); err != nil {
		return nil, fmt.Errorf("parsing run file %s: %w", path, err)
	}
	if rf.Controller == "" {
		return nil, fmt.Errorf("%s: controller is required", path)
	}
	if rf.RootDir == "" {
		rf.RootDir = "."
	}
	return &rf, nil
}

// Session returns what the operator has to confirm before the run starts.
func (rf *RunFile) Session() Session {
	return Session{
		RootDir:    rf.RootDir,
		Sample:     rf.Sample,
		StartAngle: rf.StartAngle,
		EndAngle:   rf.EndAngle,
		Increment:  rf.AngleIncrement,
	}
}

// Command builds the execute_sweep request that writes into outputDir.
func (rf *RunFile) Command(outputDir string) map[string]interface{} {
	cmd := map[string]interface{}{
		"command":         "execute_sweep",
		"output_dir":      outputDir,
		"start_angle":     rf.StartAngle,
		"end_angle":       rf.EndAngle,
		"angle_increment": rf.AngleIncrement,
	}
	for key, v := range map[string]string{
		"sample_id":                rf.Sample.SampleID,
		"sample_pad":               rf.Sample.SamplePad,
		"angle_of_current":         rf.Sample.AngleOfCurrent,
		"angle_of_easy_axis":       rf.Sample.AngleOfEasyAxis,
		"probe_rotation_direction": rf.Sample.ProbeRotationDirection,
		"temperature":              rf.Sample.Temperature,
		"field_strength":           rf.Sample.FieldStrength,
	} {
		if v != "" {
			cmd[key] = v
		}
	}
	if rf.MeasurementsPerAngle > 0 {
		cmd["measurements_per_angle"] = float64(rf.MeasurementsPerAngle)
	}
	if rf.Velocity > 0 {
		cmd["velocity_deg_per_sec"] = rf.Velocity
	}
	// Fields left out of the run file keep the controller's configured values.
	if rf.RotateThereAndBack != nil {
		cmd["rotate_there_and_back"] = *rf.RotateThereAndBack
	}
	if rf.AngleOffset != nil {
		cmd["angle_offset"] = *rf.AngleOffset
	}
	if rf.TrackStdDev != nil {
		cmd["track_std_dev"] = *rf.TrackStdDev
	}
	if rf.SourceCurrent != nil {
		cmd["source_current_amps"] = *rf.SourceCurrent
	}
	return cmd
}
