package amrsweep

import (
	"context"
	"fmt"
	"io"
	"math"

	"go.viam.com/rdk/components/motor"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

var ResistanceMeter = resource.NewModel("viamlab", "amr-sweep", "resistance-meter")

func init() {
	resource.RegisterComponent(sensor.API, ResistanceMeter,
		resource.Registration[sensor.Sensor, *ResistanceMeterConfig]{
			Constructor: newResistanceMeter,
		},
	)
}

// ResistanceMeterConfig picks exactly one backend: a Keithley on a serial port, another
// sensor that already reports resistance, or the mock AMR curve.
type ResistanceMeterConfig struct {
	SerialPort        string  `json:"serial_port,omitempty"`
	BaudRate          int     `json:"baud_rate,omitempty"`
	SourceCurrentAmps float64 `json:"source_current_amps,omitempty"`

	Sensor        string `json:"sensor,omitempty"`
	ResistanceKey string `json:"resistance_key,omitempty"`

	UseMockCurve  bool    `json:"use_mock_curve,omitempty"`
	MockStage     string  `json:"mock_stage,omitempty"` // motor whose angle drives the mock curve
	MockBaseOhms  float64 `json:"mock_base_ohms,omitempty"`
	MockDeltaOhms float64 `json:"mock_delta_ohms,omitempty"`
	MockPhaseDeg  float64 `json:"mock_phase_deg,omitempty"`

	ReadingsPerSample    int     `json:"readings_per_sample,omitempty"`
	DegreesPerRevolution float64 `json:"degrees_per_revolution,omitempty"`
}

func (cfg *ResistanceMeterConfig) Validate(path string) ([]string, []string, error) {
	backends := 0
	if cfg.SerialPort != "" {
		backends++
	}
	if cfg.Sensor != "" {
		backends++
	}
	if cfg.UseMockCurve {
		backends++
	}
	if backends != 1 {
		return nil, nil, fmt.Errorf("%s: exactly one of serial_port, sensor or use_mock_curve is required", path)
	}
	if cfg.ReadingsPerSample < 0 {
		return nil, nil, fmt.Errorf("%s: readings_per_sample cannot be negative", path)
	}

	var deps []string
	if cfg.Sensor != "" {
		deps = append(deps, cfg.Sensor)
	}
	if cfg.UseMockCurve && cfg.MockStage != "" {
		deps = append(deps, cfg.MockStage)
	}
	return deps, nil, nil
}

type resistanceMeter struct {
	resource.AlwaysRebuild

	name   resource.Name
	logger logging.Logger
	reader ResistanceReader
	closer io.Closer

	readingsPerSample int
}

func newResistanceMeter(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*ResistanceMeterConfig](rawConf)
	if err != nil {
		return nil, err
	}

	m := &resistanceMeter{
		name:              rawConf.ResourceName(),
		logger:            logger,
		readingsPerSample: conf.ReadingsPerSample,
	}
	if m.readingsPerSample <= 0 {
		m.readingsPerSample = 1
	}

	switch {
	case conf.UseMockCurve:
		var angleFn func(context.Context) (float64, error)
		if conf.MockStage != "" {
			mot, err := motor.FromDependencies(deps, conf.MockStage)
			if err != nil {
				return nil, fmt.Errorf("getting mock_stage motor: %w", err)
			}
			angleFn = newMotorStage(mot, conf.DegreesPerRevolution, logger).Position
		}
		m.reader = newMockResistanceReader(conf.MockBaseOhms, conf.MockDeltaOhms, conf.MockPhaseDeg, angleFn)
		logger.Infof("resistance-meter using mock AMR curve (use_mock_curve=true)")
	case conf.Sensor != "":
		s, err := sensor.FromDependencies(deps, conf.Sensor)
		if err != nil {
			return nil, fmt.Errorf("getting sensor: %w", err)
		}
		m.reader = newSensorResistanceReader(s, conf.ResistanceKey)
		logger.Infof("resistance-meter wrapping sensor %q (key: %q)", conf.Sensor, conf.ResistanceKey)
	default:
		k, err := openKeithley(conf.SerialPort, conf.BaudRate, conf.SourceCurrentAmps)
		if err != nil {
			return nil, err
		}
		m.reader = k
		m.closer = k
		logger.Infof("resistance-meter using source meter on %s", conf.SerialPort)
	}

	return m, nil
}

func (m *resistanceMeter) Name() resource.Name {
	return m.name
}

// Readings takes one sample: the mean of readings_per_sample raw values.
func (m *resistanceMeter) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	raw, err := m.reader.ReadResistances(ctx, m.readingsPerSample)
	if err != nil {
		return nil, err
	}
	meas, err := summarizeReadings(raw)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"resistance": meas.Resistance,
		"std":        meas.StdDev,
		"count":      meas.Count,
	}, nil
}

func (m *resistanceMeter) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	command, ok := cmd["command"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'command' field")
	}

	switch command {
	case "read_resistances":
		return m.handleReadResistances(ctx, cmd)
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

func (m *resistanceMeter) handleReadResistances(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	n := m.readingsPerSample
	if v, ok := cmd["count"]; ok {
		f, ok := toFloat(v)
		if !ok || f < 1 || f != math.Trunc(f) {
			return nil, fmt.Errorf("count must be a positive whole number, got %v", v)
		}
		n = int(f)
	}

	raw, err := m.reader.ReadResistances(ctx, n)
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, len(raw))
	for i, v := range raw {
		values[i] = v
	}
	return map[string]interface{}{"resistances": values, "count": len(raw)}, nil
}

func (m *resistanceMeter) Close(context.Context) error {
	if m.closer != nil {
		return m.closer.Close()
	}
	return nil
}
