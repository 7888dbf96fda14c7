package amrsweep

import (
	"context"
	"fmt"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

var DataSensor = resource.NewModel("viamlab", "amr-sweep", "data-sensor")

func init() {
	resource.RegisterComponent(sensor.API, DataSensor,
		resource.Registration[sensor.Sensor, *SensorConfig]{
			Constructor: newDataSensor,
		},
	)
}

type dataProvider interface {
	SweepData() SweepData
}

// dataSensor exposes the newest row of the sweep plus the AMR statistics of
// everything recorded so far. Readings are only marked for sync while a sweep runs.
type dataSensor struct {
	resource.AlwaysRebuild

	name       resource.Name
	logger     logging.Logger
	controller dataProvider
}

func newDataSensor(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*SensorConfig](rawConf)
	if err != nil {
		return nil, err
	}

	provider, err := controllerDep[dataProvider](deps, conf.Controller, "SweepData")
	if err != nil {
		return nil, err
	}

	return &dataSensor{
		name:       rawConf.ResourceName(),
		logger:     logger,
		controller: provider,
	}, nil
}

func (s *dataSensor) Name() resource.Name {
	return s.name
}

func (s *dataSensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	data := s.controller.SweepData()
	out := map[string]interface{}{
		"sweep_id":    data.SweepID,
		"row_count":   len(data.Rows),
		"should_sync": data.Running && len(data.Rows) > 0,
	}
	if len(data.Rows) == 0 {
		return out, nil
	}

	last := data.Rows[len(data.Rows)-1]
	out["angle"] = last.Angle
	out["resistance"] = last.Resistance
	out["std"] = last.StdDev

	summary, err := Summarize(data.Rows)
	if err != nil {
		s.logger.Debugf("no running stats yet: %v", err)
		return out, nil
	}
	out["amr"] = summary.AMR
	out["amr_ratio"] = summary.AMRRatio
	out["angle_at_max"] = summary.AngleAtMax
	out["angle_at_min"] = summary.AngleAtMin
	return out, nil
}

func (s *dataSensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, fmt.Errorf("DoCommand not supported on data-sensor")
}

func (s *dataSensor) Close(context.Context) error {
	return nil
}
