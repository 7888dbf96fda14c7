package amrsweep

import (
	"context"
	"math"
	"testing"

	"go.viam.com/rdk/components/motor"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/testutils/inject"
)

func TestResistanceMeterConfig(t *testing.T) {
	t.Run("requires a backend", func(t *testing.T) {
		cfg := &ResistanceMeterConfig{}
		if _, _, err := cfg.Validate("test"); err == nil {
			t.Error("expected error without serial_port, sensor or use_mock_curve")
		}
	})

	t.Run("only one backend", func(t *testing.T) {
		cfg := &ResistanceMeterConfig{SerialPort: "/dev/ttyUSB0", UseMockCurve: true}
		if _, _, err := cfg.Validate("test"); err == nil {
			t.Error("expected error for two backends")
		}
	})

	t.Run("sensor backend returns sensor as dependency", func(t *testing.T) {
		cfg := &ResistanceMeterConfig{Sensor: "dmm"}
		deps, _, err := cfg.Validate("test")
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if len(deps) != 1 || deps[0] != "dmm" {
			t.Errorf("expected [dmm], got %v", deps)
		}
	})

	t.Run("mock stage is a dependency", func(t *testing.T) {
		cfg := &ResistanceMeterConfig{UseMockCurve: true, MockStage: "stage"}
		deps, _, err := cfg.Validate("test")
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if len(deps) != 1 || deps[0] != "stage" {
			t.Errorf("expected [stage], got %v", deps)
		}
	})

	t.Run("serial backend has no dependencies", func(t *testing.T) {
		cfg := &ResistanceMeterConfig{SerialPort: "/dev/ttyUSB0"}
		deps, _, err := cfg.Validate("test")
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if len(deps) != 0 {
			t.Errorf("expected no dependencies, got %v", deps)
		}
	})
}

func meterRawConfig(conf *ResistanceMeterConfig) resource.Config {
	return resource.Config{
		Name:                "meter",
		API:                 sensor.API,
		Model:               ResistanceMeter,
		ConvertedAttributes: conf,
	}
}

func TestResistanceMeterMockCurve(t *testing.T) {
	logger := logging.NewTestLogger(t)
	stage := inject.NewMotor("stage")
	stage.PositionFunc = func(ctx context.Context, extra map[string]interface{}) (float64, error) {
		return 0.25, nil // 90 degrees
	}
	deps := resource.Dependencies{resource.NewName(motor.API, "stage"): stage}

	s, err := newResistanceMeter(context.Background(), deps, meterRawConfig(&ResistanceMeterConfig{
		UseMockCurve:      true,
		MockStage:         "stage",
		MockBaseOhms:      50,
		MockDeltaOhms:     5,
		MockPhaseDeg:      90,
		ReadingsPerSample: 3,
	}), logger)
	if err != nil {
		t.Fatalf("newResistanceMeter failed: %v", err)
	}
	defer s.Close(context.Background())

	readings, err := s.Readings(context.Background(), nil)
	if err != nil {
		t.Fatalf("Readings failed: %v", err)
	}
	if r := readings["resistance"].(float64); math.Abs(r-55) > 1e-9 {
		t.Errorf("resistance = %v, want 55", r)
	}
	if readings["count"] != 3 {
		t.Errorf("count = %v, want 3", readings["count"])
	}
	if readings["std"] != 0.0 {
		t.Errorf("std = %v, want 0", readings["std"])
	}
}

func TestResistanceMeterWrapsSensor(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dmm := inject.NewSensor("dmm")
	values := []float64{9, 11}
	calls := 0
	dmm.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
		v := values[calls%len(values)]
		calls++
		return map[string]interface{}{"ohms": v}, nil
	}
	deps := resource.Dependencies{resource.NewName(sensor.API, "dmm"): dmm}

	s, err := newResistanceMeter(context.Background(), deps, meterRawConfig(&ResistanceMeterConfig{
		Sensor:            "dmm",
		ResistanceKey:     "ohms",
		ReadingsPerSample: 2,
	}), logger)
	if err != nil {
		t.Fatalf("newResistanceMeter failed: %v", err)
	}

	readings, err := s.Readings(context.Background(), nil)
	if err != nil {
		t.Fatalf("Readings failed: %v", err)
	}
	if readings["resistance"] != 10.0 {
		t.Errorf("resistance = %v, want 10", readings["resistance"])
	}
	if math.Abs(readings["std"].(float64)-1) > 1e-12 {
		t.Errorf("std = %v, want 1", readings["std"])
	}

	t.Run("missing sensor dependency", func(t *testing.T) {
		_, err := newResistanceMeter(context.Background(), resource.Dependencies{}, meterRawConfig(&ResistanceMeterConfig{Sensor: "dmm"}), logger)
		if err == nil {
			t.Error("expected error when wrapped sensor is missing")
		}
	})
}

func TestResistanceMeterDoCommand(t *testing.T) {
	logger := logging.NewTestLogger(t)
	s, err := newResistanceMeter(context.Background(), resource.Dependencies{}, meterRawConfig(&ResistanceMeterConfig{UseMockCurve: true}), logger)
	if err != nil {
		t.Fatalf("newResistanceMeter failed: %v", err)
	}
	ctx := context.Background()

	res, err := s.DoCommand(ctx, map[string]interface{}{"command": "read_resistances", "count": 4.0})
	if err != nil {
		t.Fatalf("read_resistances failed: %v", err)
	}
	if res["count"] != 4 || len(res["resistances"].([]interface{})) != 4 {
		t.Errorf("read_resistances result = %v", res)
	}

	res, err = s.DoCommand(ctx, map[string]interface{}{"command": "read_resistances"})
	if err != nil {
		t.Fatalf("read_resistances failed: %v", err)
	}
	if res["count"] != 1 {
		t.Errorf("default count = %v, want 1", res["count"])
	}

	if _, err := s.DoCommand(ctx, map[string]interface{}{"command": "read_resistances", "count": 0.0}); err == nil {
		t.Error("expected error for zero count")
	}
	if _, err := s.DoCommand(ctx, map[string]interface{}{"command": "read_resistances", "count": 1.5}); err == nil {
		t.Error("expected error for fractional count")
	}
	if _, err := s.DoCommand(ctx, map[string]interface{}{"command": "calibrate"}); err == nil {
		t.Error("expected error for unknown command")
	}
	if _, err := s.DoCommand(ctx, map[string]interface{}{}); err == nil {
		t.Error("expected error for missing command")
	}
}
