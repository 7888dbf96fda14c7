package amrsweep

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.viam.com/rdk/components/sensor"
)

// ResistanceReader abstracts the source meter for mock vs hardware implementations.
type ResistanceReader interface {
	ReadResistances(ctx context.Context, n int) ([]float64, error)
}

// mockResistanceReader follows the textbook AMR curve R0 + dR*cos^2(theta - theta0)
// using the angle reported by angleFn.
type mockResistanceReader struct {
	baseOhms  float64
	deltaOhms float64
	phaseDeg  float64
	angleFn   func(ctx context.Context) (float64, error)

	mu    sync.Mutex
	reads int
}

func newMockResistanceReader(baseOhms, deltaOhms, phaseDeg float64, angleFn func(context.Context) (float64, error)) *mockResistanceReader {
	if baseOhms <= 0 {
		baseOhms = 100
	}
	if deltaOhms == 0 {
		deltaOhms = 1
	}
	return &mockResistanceReader{
		baseOhms:  baseOhms,
		deltaOhms: deltaOhms,
		phaseDeg:  phaseDeg,
		angleFn:   angleFn,
	}
}

func (m *mockResistanceReader) resistanceAt(angleDeg float64) float64 {
	c := math.Cos((angleDeg - m.phaseDeg) * math.Pi / 180)
	return m.baseOhms + m.deltaOhms*c*c
}

func (m *mockResistanceReader) ReadResistances(ctx context.Context, n int) ([]float64, error) {
	if n < 1 {
		return nil, ErrNoMeasurements
	}
	var angle float64
	if m.angleFn != nil {
		a, err := m.angleFn(ctx)
		if err != nil {
			return nil, fmt.Errorf("mock meter angle: %w", err)
		}
		angle = a
	}

	m.mu.Lock()
	m.reads += n
	m.mu.Unlock()

	r := m.resistanceAt(angle)
	out := make([]float64, n)
	for i := range out {
		out[i] = r
	}
	return out, nil
}

// sensorResistanceReader reads one value per Readings call from a Viam sensor.
type sensorResistanceReader struct {
	sensor sensor.Sensor
	key    string
}

func newSensorResistanceReader(s sensor.Sensor, key string) *sensorResistanceReader {
	if key == "" {
		key = "resistance"
	}
	return &sensorResistanceReader{sensor: s, key: key}
}

func (r *sensorResistanceReader) ReadResistances(ctx context.Context, n int) ([]float64, error) {
	if n < 1 {
		return nil, ErrNoMeasurements
	}
	out := make([]float64, 0, n)
	for range n {
		readings, err := r.sensor.Readings(ctx, nil)
		if err != nil {
			return nil, err
		}
		v, err := numericReading(readings, r.key)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func numericReading(readings map[string]interface{}, key string) (float64, error) {
	val, ok := readings[key]
	if !ok {
		return 0, fmt.Errorf("sensor readings missing %q key", key)
	}

	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("sensor reading %q is not numeric: %T", key, val)
	}
}
