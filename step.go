package amrsweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.viam.com/rdk/logging"
	"gonum.org/v1/gonum/stat"
)

const (
	stopPollInterval = 100 * time.Millisecond
	stopPollTimeout  = 30 * time.Second
)

// DataRow is one line of the data table.
type DataRow struct {
	Angle      float64 `json:"angle"`
	Resistance float64 `json:"resistance"`
	StdDev     float64 `json:"std"`
}

// Measurement is the mean of N raw readings and their population standard deviation.
type Measurement struct {
	Resistance float64
	StdDev     float64
	Count      int
}

func summarizeReadings(raw []float64) (Measurement, error) {
	if len(raw) == 0 {
		return Measurement{}, ErrNoMeasurements
	}
	mean, std := stat.PopMeanStdDev(raw, nil)
	return Measurement{Resistance: mean, StdDev: std, Count: len(raw)}, nil
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// stepExecutor performs one angle increment: move, settle, measure, average.
type stepExecutor struct {
	cfg        SweepConfig
	stage      Stage
	meter      ResistanceReader
	logger     logging.Logger
	sleep      sleepFunc
	newBackOff func() backoff.BackOff
}

func (e *stepExecutor) measure(ctx context.Context, angle float64, settleMargin time.Duration) (DataRow, error) {
	if err := e.retry(ctx, "move", func() error { return e.stage.MoveTo(ctx, angle) }); err != nil {
		return DataRow{}, err
	}

	settle := travelTime(math.Abs(e.cfg.AngleIncrement), e.stage.Velocity()) + settleMargin
	if err := e.sleep(ctx, settle); err != nil {
		return DataRow{}, err
	}
	if e.cfg.WaitForStop {
		if err := e.waitForStop(ctx); err != nil {
			return DataRow{}, err
		}
	}

	var raw []float64
	err := e.retry(ctx, "read resistance", func() error {
		var err error
		raw, err = e.meter.ReadResistances(ctx, e.cfg.MeasurementsPerAngle)
		return err
	})
	if err != nil {
		return DataRow{}, err
	}

	m, err := summarizeReadings(raw)
	if err != nil {
		return DataRow{}, err
	}
	row := DataRow{Angle: angle + e.cfg.AngleOffset, Resistance: m.Resistance}
	if e.cfg.TrackStdDev {
		row.StdDev = m.StdDev
	}
	return row, nil
}

// retry runs op with bounded exponential backoff. Context errors are never retried.
func (e *stepExecutor) retry(ctx context.Context, what string, op func() error) error {
	retries := e.cfg.MeasurementRetries
	if retries < 0 {
		retries = 0
	}
	newBackOff := e.newBackOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), uint64(retries)), ctx)

	err := backoff.RetryNotify(func() error {
		err := op()
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, next time.Duration) {
		e.logger.Warnf("%s failed, retrying in %v: %v", what, next, err)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// waitForStop polls the stage until it reports it is no longer moving.
func (e *stepExecutor) waitForStop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, stopPollTimeout)
	defer cancel()
	for {
		moving, err := e.stage.IsMoving(ctx)
		if err != nil {
			return fmt.Errorf("polling stage: %w", err)
		}
		if !moving {
			return nil
		}
		if err := e.sleep(ctx, stopPollInterval); err != nil {
			return fmt.Errorf("stage still moving: %w", err)
		}
	}
}
