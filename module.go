package amrsweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.viam.com/rdk/components/motor"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"
)

var Controller = resource.NewModel("viamlab", "amr-sweep", "controller")

var (
	ErrSweepRunning = errors.New("sweep already in progress")
	ErrNoSweep      = errors.New("no sweep in progress")
)

func init() {
	resource.RegisterService(generic.API, Controller,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newSweepController,
		},
	)
}

// Config holds the stage and meter names plus the default sweep. Any sweep field can
// be overridden per execute_sweep/start command.
type Config struct {
	Stage                string  `json:"stage"`
	Meter                string  `json:"meter"`
	ResistanceKey        string  `json:"resistance_key,omitempty"`
	DegreesPerRevolution float64 `json:"degrees_per_revolution,omitempty"`

	StartAngle           float64 `json:"start_angle"`
	EndAngle             float64 `json:"end_angle"`
	AngleIncrement       float64 `json:"angle_increment"`
	MeasurementsPerAngle int     `json:"measurements_per_angle,omitempty"`
	RotateThereAndBack   bool    `json:"rotate_there_and_back,omitempty"`
	AngleOffset          float64 `json:"angle_offset,omitempty"`
	TrackStdDev          bool    `json:"track_std_dev,omitempty"`

	VelocityDegPerSec   float64 `json:"velocity_deg_per_sec,omitempty"`
	RepositionMarginSec float64 `json:"reposition_margin_sec,omitempty"`
	ForwardSettleSec    float64 `json:"forward_settle_sec,omitempty"`
	ReturnSettleSec     float64 `json:"return_settle_sec,omitempty"`
	ForwardPauseSec     float64 `json:"forward_pause_sec,omitempty"`
	ReturnPauseSec      float64 `json:"return_pause_sec,omitempty"`
	WaitForStop         bool    `json:"wait_for_stop,omitempty"`
	MeasurementRetries  int     `json:"measurement_retries,omitempty"` // 0 = default, negative = no retries

	SourceCurrentAmps float64 `json:"source_current_amps,omitempty"`
	OutputDir         string  `json:"output_dir,omitempty"`

	Sample SampleInfo `json:"sample"`
}

func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.Stage == "" {
		return nil, nil, fmt.Errorf("%s: stage is required", path)
	}
	if cfg.Meter == "" {
		return nil, nil, fmt.Errorf("%s: meter is required", path)
	}
	if err := cfg.sweepConfig().Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return []string{cfg.Stage, cfg.Meter}, nil, nil
}

// sweepConfig resolves defaults into an immutable SweepConfig.
func (cfg *Config) sweepConfig() SweepConfig {
	sc := SweepConfig{
		StartAngle:           cfg.StartAngle,
		EndAngle:             cfg.EndAngle,
		AngleIncrement:       cfg.AngleIncrement,
		MeasurementsPerAngle: cfg.MeasurementsPerAngle,
		RotateThereAndBack:   cfg.RotateThereAndBack,
		AngleOffset:          cfg.AngleOffset,
		TrackStdDev:          cfg.TrackStdDev,
		Velocity:             cfg.VelocityDegPerSec,
		RepositionMargin:     secondsToDuration(cfg.RepositionMarginSec, defaultRepositionMargin),
		ForwardSettleMargin:  secondsToDuration(cfg.ForwardSettleSec, defaultForwardSettleMargin),
		ReturnSettleMargin:   secondsToDuration(cfg.ReturnSettleSec, defaultReturnSettleMargin),
		ForwardPause:         secondsToDuration(cfg.ForwardPauseSec, defaultForwardPause),
		ReturnPause:          secondsToDuration(cfg.ReturnPauseSec, defaultReturnPause),
		WaitForStop:          cfg.WaitForStop,
		MeasurementRetries:   cfg.MeasurementRetries,
		SourceCurrent:        cfg.SourceCurrentAmps,
		Sample:               cfg.Sample,
		OutputDir:            cfg.OutputDir,
	}
	if sc.MeasurementsPerAngle == 0 {
		sc.MeasurementsPerAngle = defaultMeasurementsPerAngle
	}
	if sc.Velocity == 0 {
		sc.Velocity = defaultVelocity
	}
	if sc.MeasurementRetries == 0 {
		sc.MeasurementRetries = defaultMeasurementRetries
	}
	return sc
}

type sweepController struct {
	resource.AlwaysRebuild

	name   resource.Name
	logger logging.Logger
	cfg    *Config

	stage Stage
	meter ResistanceReader

	cancelCtx  context.Context
	cancelFunc func()

	mu      sync.Mutex
	active  *activeSweep
	last    *SweepResult
	lastErr error

	// test hooks
	sleep      sleepFunc
	newBackOff func() backoff.BackOff
}

type activeSweep struct {
	sweep  *sweep
	cancel context.CancelFunc
	done   chan struct{}
}

func newSweepController(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}

	return NewController(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewController(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *Config, logger logging.Logger) (resource.Resource, error) {
	m, err := motor.FromDependencies(deps, conf.Stage)
	if err != nil {
		return nil, fmt.Errorf("getting stage motor: %w", err)
	}

	meter, err := sensor.FromDependencies(deps, conf.Meter)
	if err != nil {
		return nil, fmt.Errorf("getting meter sensor: %w", err)
	}

	stage := newMotorStage(m, conf.DegreesPerRevolution, logger)
	if err := stage.SetVelocity(conf.sweepConfig().Velocity); err != nil {
		return nil, err
	}

	cancelCtx, cancelFunc := context.WithCancel(context.Background())

	s := &sweepController{
		name:       name,
		logger:     logger,
		cfg:        conf,
		stage:      stage,
		meter:      newSensorResistanceReader(meter, conf.ResistanceKey),
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}
	return s, nil
}

func (s *sweepController) Name() resource.Name {
	return s.name
}

func (s *sweepController) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	command, ok := cmd["command"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'command' field")
	}

	switch command {
	case "execute_sweep":
		return s.handleExecuteSweep(ctx, cmd)
	case "start":
		return s.handleStart(cmd)
	case "stop":
		return s.handleStop(ctx)
	case "status":
		return s.GetState(), nil
	case "get_data":
		return s.handleGetData(), nil
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

// begin validates the run configuration and claims the controller for one sweep.
func (s *sweepController) begin(parent context.Context, cmd map[string]interface{}) (*activeSweep, context.Context, error) {
	sc, err := applyOverrides(s.cfg.sweepConfig(), cmd)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return nil, nil, ErrSweepRunning
	}

	id := "sweep-" + time.Now().Format("20060102-150405") + "-" + uuid.NewString()[:8]
	sw, err := newSweep(id, sc, s.stage, s.meter, s.logger)
	if err != nil {
		return nil, nil, err
	}
	if s.sleep != nil {
		sw.sleep = s.sleep
	}
	if s.newBackOff != nil {
		sw.exec.newBackOff = s.newBackOff
	}

	runCtx, cancel := context.WithCancel(parent)
	stopOnClose := context.AfterFunc(s.cancelCtx, cancel)
	a := &activeSweep{
		sweep: sw,
		cancel: func() {
			stopOnClose()
			cancel()
		},
		done: make(chan struct{}),
	}
	s.active = a
	s.logger.Infof("starting %s: %v to %v deg by %v, %d readings per angle",
		id, sc.StartAngle, sc.EndAngle, sc.AngleIncrement, sc.MeasurementsPerAngle)
	return a, runCtx, nil
}

// run executes the claimed sweep and releases the controller.
func (s *sweepController) run(ctx context.Context, a *activeSweep) (*SweepResult, error) {
	defer close(a.done)
	defer a.cancel()

	res, err := a.sweep.Run(ctx)

	s.mu.Lock()
	s.active = nil
	s.last = res
	s.lastErr = err
	s.mu.Unlock()
	return res, err
}

func (s *sweepController) handleExecuteSweep(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	a, runCtx, err := s.begin(ctx, cmd)
	if err != nil {
		return nil, err
	}
	res, err := s.run(runCtx, a)
	if err != nil {
		return nil, fmt.Errorf("sweep %s failed: %w", a.sweep.id, err)
	}
	out := resultMap(res)
	out["status"] = "completed"
	return out, nil
}

func (s *sweepController) handleStart(cmd map[string]interface{}) (map[string]interface{}, error) {
	a, runCtx, err := s.begin(s.cancelCtx, cmd)
	if err != nil {
		return nil, err
	}
	go func() {
		if _, err := s.run(runCtx, a); err != nil {
			s.logger.Errorf("background sweep %s: %v", a.sweep.id, err)
		}
	}()
	return map[string]interface{}{"status": "started", "sweep_id": a.sweep.id}, nil
}

func (s *sweepController) handleStop(ctx context.Context) (map[string]interface{}, error) {
	s.mu.Lock()
	a := s.active
	s.mu.Unlock()
	if a == nil {
		return nil, ErrNoSweep
	}

	a.cancel()
	select {
	case <-a.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	res := s.last
	s.mu.Unlock()

	out := map[string]interface{}{"status": "stopped", "sweep_id": a.sweep.id}
	if res != nil {
		out["row_count"] = len(res.Rows)
	}
	return out, nil
}

func (s *sweepController) handleGetData() map[string]interface{} {
	s.mu.Lock()
	a, last := s.active, s.last
	s.mu.Unlock()

	var id string
	var rows []DataRow
	switch {
	case a != nil:
		id, rows = a.sweep.id, a.sweep.table.Rows()
	case last != nil:
		id, rows = last.SweepID, last.Rows
	}
	return map[string]interface{}{
		"sweep_id":  id,
		"rows":      rowsToInterface(rows),
		"row_count": len(rows),
	}
}

// SweepData is a copy of the rows of the running sweep, or of the last one.
type SweepData struct {
	SweepID string
	Running bool
	Rows    []DataRow
}

func (s *sweepController) SweepData() SweepData {
	s.mu.Lock()
	a, last := s.active, s.last
	s.mu.Unlock()

	switch {
	case a != nil:
		return SweepData{SweepID: a.sweep.id, Running: true, Rows: a.sweep.table.Rows()}
	case last != nil:
		return SweepData{SweepID: last.SweepID, Rows: last.Rows}
	default:
		return SweepData{}
	}
}

// GetState reports the controller for status commands and the sweep sensor.
func (s *sweepController) GetState() map[string]interface{} {
	s.mu.Lock()
	a, last, lastErr := s.active, s.last, s.lastErr
	s.mu.Unlock()

	state := map[string]interface{}{"state": "idle"}
	if lastErr != nil {
		state["last_error"] = lastErr.Error()
	}
	if a == nil {
		if last != nil {
			state["sweep_id"] = last.SweepID
			state["phase"] = PhaseDone.String()
			state["row_count"] = len(last.Rows)
		}
		return state
	}

	p := a.sweep.progress()
	state["state"] = "running"
	state["sweep_id"] = a.sweep.id
	state["phase"] = p.Phase.String()
	state["row_count"] = p.Rows
	state["expected_rows"] = a.sweep.cfg.ExpectedRows()
	state["direction"] = a.sweep.cfg.Direction()
	state["elapsed_sec"] = p.Elapsed.Seconds()
	if !math.IsNaN(p.Angle) {
		state["current_angle"] = p.Angle
	}
	return state
}

func (s *sweepController) Close(context.Context) error {
	s.cancelFunc()

	s.mu.Lock()
	a := s.active
	s.mu.Unlock()
	if a != nil {
		<-a.done
	}
	return nil
}

// applyOverrides copies recognised per-command fields over the configured sweep.
func applyOverrides(sc SweepConfig, cmd map[string]interface{}) (SweepConfig, error) {
	floats := map[string]*float64{
		"start_angle":          &sc.StartAngle,
		"end_angle":            &sc.EndAngle,
		"angle_increment":      &sc.AngleIncrement,
		"angle_offset":         &sc.AngleOffset,
		"velocity_deg_per_sec": &sc.Velocity,
		"source_current_amps":  &sc.SourceCurrent,
	}
	for key, dst := range floats {
		if v, ok := cmd[key]; ok {
			f, ok := toFloat(v)
			if !ok {
				return sc, fmt.Errorf("%s must be a number, got %T", key, v)
			}
			*dst = f
		}
	}

	if v, ok := cmd["measurements_per_angle"]; ok {
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return sc, fmt.Errorf("measurements_per_angle must be a whole number, got %v", v)
		}
		sc.MeasurementsPerAngle = int(f)
	}

	bools := map[string]*bool{
		"rotate_there_and_back": &sc.RotateThereAndBack,
		"track_std_dev":         &sc.TrackStdDev,
		"wait_for_stop":         &sc.WaitForStop,
	}
	for key, dst := range bools {
		if v, ok := cmd[key]; ok {
			b, ok := v.(bool)
			if !ok {
				return sc, fmt.Errorf("%s must be a bool, got %T", key, v)
			}
			*dst = b
		}
	}

	strs := map[string]*string{
		"output_dir":               &sc.OutputDir,
		"sample_id":                &sc.Sample.SampleID,
		"sample_pad":               &sc.Sample.SamplePad,
		"angle_of_current":         &sc.Sample.AngleOfCurrent,
		"angle_of_easy_axis":       &sc.Sample.AngleOfEasyAxis,
		"probe_rotation_direction": &sc.Sample.ProbeRotationDirection,
		"temperature":              &sc.Sample.Temperature,
		"field_strength":           &sc.Sample.FieldStrength,
	}
	for key, dst := range strs {
		if v, ok := cmd[key]; ok {
			str, ok := v.(string)
			if !ok {
				return sc, fmt.Errorf("%s must be a string, got %T", key, v)
			}
			*dst = str
		}
	}

	return sc, sc.Validate()
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func resultMap(res *SweepResult) map[string]interface{} {
	out := map[string]interface{}{
		"sweep_id":    res.SweepID,
		"row_count":   len(res.Rows),
		"runtime":     formatRuntime(res.Runtime),
		"runtime_sec": res.Runtime.Seconds(),
	}
	if res.DataPath != "" {
		out["data_path"] = res.DataPath
	}
	if res.PlotPath != "" {
		out["plot_path"] = res.PlotPath
	}
	if res.Summary != nil {
		out["summary"] = map[string]interface{}{
			"amr":          res.Summary.AMR,
			"amr_ratio":    res.Summary.AMRRatio,
			"angle_at_max": res.Summary.AngleAtMax,
			"angle_at_min": res.Summary.AngleAtMin,
			"mean":         res.Summary.Mean,
		}
	} else {
		out["summary_error"] = res.SummaryErr
	}
	return out
}

func rowsToInterface(rows []DataRow) []interface{} {
	out := make([]interface{}, len(rows))
	for i, r := range rows {
		out[i] = map[string]interface{}{
			"angle":      r.Angle,
			"resistance": r.Resistance,
			"std":        r.StdDev,
		}
	}
	return out
}
