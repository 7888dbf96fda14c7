package amrsweep

import (
	"context"
	"fmt"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

var SweepSensor = resource.NewModel("viamlab", "amr-sweep", "sweep-sensor")

func init() {
	resource.RegisterComponent(sensor.API, SweepSensor,
		resource.Registration[sensor.Sensor, *SensorConfig]{
			Constructor: newSweepSensor,
		},
	)
}

// SensorConfig names the controller a read-only sensor reports on.
type SensorConfig struct {
	Controller string `json:"controller"`
}

func (cfg *SensorConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Controller == "" {
		return nil, nil, fmt.Errorf("%s: controller is required", path)
	}
	// A bare name would be looked up as a component.
	return []string{controllerName(cfg.Controller).String()}, nil, nil
}

func controllerName(name string) resource.Name {
	return resource.NewName(resource.APINamespaceRDK.WithServiceType("generic"), name)
}

// controllerDep finds the named controller in deps and checks that it provides T.
func controllerDep[T any](deps resource.Dependencies, name, what string) (T, error) {
	var zero T
	ctrl, ok := deps[controllerName(name)]
	if !ok {
		return zero, fmt.Errorf("controller %q not found in dependencies", name)
	}
	provider, ok := ctrl.(T)
	if !ok {
		return zero, fmt.Errorf("controller %q does not implement %s", name, what)
	}
	return provider, nil
}

type stateProvider interface {
	GetState() map[string]interface{}
}

type sweepSensor struct {
	resource.AlwaysRebuild

	name       resource.Name
	logger     logging.Logger
	controller stateProvider
}

func newSweepSensor(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*SensorConfig](rawConf)
	if err != nil {
		return nil, err
	}

	provider, err := controllerDep[stateProvider](deps, conf.Controller, "GetState")
	if err != nil {
		return nil, err
	}

	return &sweepSensor{
		name:       rawConf.ResourceName(),
		logger:     logger,
		controller: provider,
	}, nil
}

func (s *sweepSensor) Name() resource.Name {
	return s.name
}

func (s *sweepSensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	state := s.controller.GetState()
	state["should_sync"] = state["state"] == "running"
	return state, nil
}

func (s *sweepSensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, fmt.Errorf("DoCommand not supported on sweep-sensor")
}

func (s *sweepSensor) Close(context.Context) error {
	return nil
}
