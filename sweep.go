package amrsweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.viam.com/rdk/logging"
)

// Phase is where the orchestrator is in a run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePositioning
	PhaseSweepingForward
	PhaseSweepingBack
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhasePositioning:
		return "positioning"
	case PhaseSweepingForward:
		return "sweeping_forward"
	case PhaseSweepingBack:
		return "sweeping_back"
	case PhaseDone:
		return "done"
	default:
		return "idle"
	}
}

// SweepResult is what a finished (or aborted) run leaves behind.
type SweepResult struct {
	SweepID    string
	Rows       []DataRow
	Summary    *Summary
	SummaryErr string
	Runtime    time.Duration
	DataPath   string
	PlotPath   string
}

// sweep runs one configured angular sweep. It is used once and then discarded.
type sweep struct {
	id     string
	cfg    SweepConfig
	stage  Stage
	exec   *stepExecutor
	table  *dataTable
	plot   *livePlot
	logger logging.Logger
	sleep  sleepFunc
	now    func() time.Time

	mu        sync.Mutex
	phase     Phase
	angle     float64
	startedAt time.Time
	lastRow   *DataRow
}

func newSweep(id string, cfg SweepConfig, stage Stage, meter ResistanceReader, logger logging.Logger) (*sweep, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	livePath := ""
	if cfg.OutputDir != "" {
		livePath = filepath.Join(cfg.OutputDir, LivePlotFile)
	}
	s := &sweep{
		id:     id,
		cfg:    cfg,
		stage:  stage,
		table:  newDataTable(cfg.TrackStdDev),
		plot:   newLivePlot(livePath, logger),
		logger: logger,
		sleep:  sleepCtx,
		now:    time.Now,
		angle:  math.NaN(),
	}
	s.exec = &stepExecutor{
		cfg:    cfg,
		stage:  stage,
		meter:  meter,
		logger: logger,
		sleep:  func(ctx context.Context, d time.Duration) error { return s.sleep(ctx, d) },
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			return b
		},
	}
	return s, nil
}

// Run executes the whole procedure. On a fatal error the stage is stopped and the
// rows recorded so far are still written before the error is returned.
func (s *sweep) Run(ctx context.Context) (*SweepResult, error) {
	created := s.now()
	runErr := s.run(ctx)
	return s.finish(runErr, created)
}

func (s *sweep) run(ctx context.Context) error {
	cfg := s.cfg
	if err := s.stage.SetVelocity(cfg.Velocity); err != nil {
		return fmt.Errorf("setting stage velocity: %w", err)
	}

	s.setPhase(PhasePositioning)
	pos, err := s.stage.Position(ctx)
	if err != nil {
		return err
	}
	wait := travelTime(math.Abs(pos-cfg.StartAngle), s.stage.Velocity()) + cfg.RepositionMargin
	if err := s.stage.Enable(ctx); err != nil {
		return fmt.Errorf("enabling stage: %w", err)
	}
	if err := s.stage.MoveTo(ctx, cfg.StartAngle); err != nil {
		return err
	}
	s.logger.Infof("waiting %v for motion controller to reposition", wait)
	if err := s.sleep(ctx, wait); err != nil {
		return err
	}

	s.mu.Lock()
	s.startedAt = s.now()
	s.mu.Unlock()

	s.setPhase(PhaseSweepingForward)
	turn, err := s.leg(ctx, cfg.StartAngle, cfg.EndAngle, cfg.AngleIncrement, cfg.ForwardSettleMargin, cfg.ForwardPause)
	if err != nil {
		return err
	}

	if cfg.RotateThereAndBack {
		s.setPhase(PhaseSweepingBack)
		// The angle keeps advancing: the return leg begins one step past the last forward angle.
		if _, err := s.leg(ctx, turn, cfg.StartAngle, -cfg.AngleIncrement, cfg.ReturnSettleMargin, cfg.ReturnPause); err != nil {
			return err
		}
	}
	return nil
}

// leg measures origin, origin+step, ... while the stopping condition allows and
// returns the first angle that failed it.
func (s *sweep) leg(ctx context.Context, origin, target, step float64, settle, pause time.Duration) (float64, error) {
	for i := 0; ; i++ {
		angle := legAngle(origin, step, i)
		if !notAtStoppingAngle(angle, target, step) {
			return angle, nil
		}
		if err := ctx.Err(); err != nil {
			return angle, err
		}

		s.logger.Infof("%v Degrees", angle)
		s.setAngle(angle)

		row, err := s.exec.measure(ctx, angle, settle)
		if err != nil {
			return angle, fmt.Errorf("measuring at %v deg: %w", angle, err)
		}
		s.table.Append(row)
		s.plot.Update(row.Angle, row.Resistance)
		s.setLastRow(row)

		if err := s.sleep(ctx, pause); err != nil {
			return angle, err
		}
	}
}

func (s *sweep) finish(runErr error, created time.Time) (*SweepResult, error) {
	s.setPhase(PhaseDone)

	// The run context may already be cancelled; the stage still has to stop.
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.stage.Disable(stopCtx); err != nil {
		s.logger.Errorf("failed to disable stage: %v", err)
	}
	s.plot.Close()

	res := &SweepResult{SweepID: s.id, Rows: s.table.Rows()}

	var flushErr error
	if dir := s.cfg.OutputDir; dir != "" {
		res.DataPath = filepath.Join(dir, DataTableFile)
		if flushErr = s.table.Flush(res.DataPath); flushErr != nil {
			s.logger.Errorf("failed to write data table: %v", flushErr)
		} else {
			s.logger.Infof("wrote %d rows to %s", len(res.Rows), res.DataPath)
		}

		res.PlotPath = filepath.Join(dir, PlotFile)
		if err := s.plot.Save(res.PlotPath); err != nil {
			s.logger.Warnf("failed to save plot: %v", err)
			res.PlotPath = ""
		}

		mdPath := filepath.Join(dir, MetadataFile)
		for _, md := range s.cfg.metadataSections() {
			if err := md.DumpToFile(mdPath); err != nil {
				s.logger.Warnf("failed to write metadata: %v", err)
				break
			}
		}
	}

	if summary, err := Summarize(res.Rows); err != nil {
		res.SummaryErr = "Failed to compute and print AMR stats"
		s.logger.Warnf("%s: %v", res.SummaryErr, err)
	} else {
		res.Summary = &summary
		for _, line := range summary.Lines() {
			s.logger.Info(line)
		}
	}

	s.mu.Lock()
	started := s.startedAt
	s.mu.Unlock()
	if started.IsZero() {
		started = created
	}
	res.Runtime = s.now().Sub(started)
	s.logger.Infof("Runtime: %s", formatRuntime(res.Runtime))

	if runErr != nil {
		s.logger.Errorf("sweep %s aborted after %d rows: %v", s.id, len(res.Rows), runErr)
	}
	return res, errors.Join(runErr, flushErr)
}

func (s *sweep) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *sweep) setAngle(a float64) {
	s.mu.Lock()
	s.angle = a
	s.mu.Unlock()
}

func (s *sweep) setLastRow(r DataRow) {
	s.mu.Lock()
	s.lastRow = &r
	s.mu.Unlock()
}

// progress is a point-in-time view for status readings.
type progress struct {
	Phase   Phase
	Angle   float64
	Rows    int
	LastRow *DataRow
	Elapsed time.Duration
}

func (s *sweep) progress() progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := progress{Phase: s.phase, Angle: s.angle, Rows: s.table.Len()}
	if s.lastRow != nil {
		r := *s.lastRow
		p.LastRow = &r
	}
	if !s.startedAt.IsZero() {
		p.Elapsed = s.now().Sub(s.startedAt)
	}
	return p
}
