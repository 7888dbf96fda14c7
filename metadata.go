package amrsweep

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const MetadataFile = "metadata.txt"

// MetadataWriter serializes one titled group of parameters.
type MetadataWriter struct {
	Title  string
	Params map[string]interface{}
}

// DumpToFile appends the section to path, creating the file if needed.
func (m MetadataWriter) DumpToFile(path string) error {
	body, err := yaml.Marshal(m.Params)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", m.Title, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening metadata file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "# %s\n%s\n", m.Title, body); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", m.Title, err)
	}
	return f.Close()
}

// metadataSections groups the run configuration the way it is archived next to the data.
func (c SweepConfig) metadataSections() []MetadataWriter {
	return []MetadataWriter{
		{
			Title: "Experimental Parameters",
			Params: map[string]interface{}{
				"ROTATE_THERE_AND_BACK":    c.RotateThereAndBack,
				"SAMPLE_ID":                c.Sample.SampleID,
				"SAMPLE_PAD":               c.Sample.SamplePad,
				"ANGLE_OF_CURRENT":         c.Sample.AngleOfCurrent,
				"ANGLE_OF_EASY_AXIS":       c.Sample.AngleOfEasyAxis,
				"STARTING_ANGLE":           c.StartAngle,
				"ENDING_ANGLE":             c.EndAngle,
				"ANGLE_OFFSET":             c.AngleOffset,
				"ANGLE_INCREMENT":          c.AngleIncrement,
				"PROBE_ROTATION_DIRECTION": c.Sample.ProbeRotationDirection,
				"TEMPERATURE":              c.Sample.Temperature,
				"FIELD_STRENGTH":           c.Sample.FieldStrength,
				"OUTPUT_DIR":               c.OutputDir,
			},
		},
		{
			Title: "Source Meter Parameters",
			Params: map[string]interface{}{
				"NUM_POINTS":   c.MeasurementsPerAngle,
				"CURRENT":      c.SourceCurrent,
				"TRACK_STDDEV": c.TrackStdDev,
				"RETRIES":      c.MeasurementRetries,
			},
		},
		{
			Title: "Motion Controller Parameters",
			Params: map[string]interface{}{
				"UNITS":                 "degrees",
				"VELOCITY":              c.Velocity,
				"STARTING_ANGLE":        c.StartAngle,
				"ENDING_ANGLE":          c.EndAngle,
				"REPOSITION_MARGIN_SEC": c.RepositionMargin.Seconds(),
				"FORWARD_SETTLE_SEC":    c.ForwardSettleMargin.Seconds(),
				"RETURN_SETTLE_SEC":     c.ReturnSettleMargin.Seconds(),
				"WAIT_FOR_STOP":         c.WaitForStop,
			},
		},
	}
}
