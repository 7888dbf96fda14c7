package amrsweep

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.viam.com/rdk/components/motor"
	"go.viam.com/rdk/logging"
)

const defaultDegreesPerRevolution = 360.0

// Stage is the rotation stage as the sweep sees it: absolute moves in degrees and a
// velocity used to estimate travel time. MoveTo does not promise the stage has
// arrived when it returns; callers wait out the travel time themselves.
type Stage interface {
	SetVelocity(degPerSec float64) error
	Velocity() float64
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	MoveTo(ctx context.Context, angle float64) error
	Position(ctx context.Context) (float64, error)
	IsMoving(ctx context.Context) (bool, error)
}

// motorStage drives a Viam motor whose position is in revolutions.
type motorStage struct {
	motor     motor.Motor
	logger    logging.Logger
	degPerRev float64

	mu       sync.Mutex
	velocity float64
	enabled  bool
}

func newMotorStage(m motor.Motor, degPerRev float64, logger logging.Logger) *motorStage {
	if degPerRev <= 0 {
		degPerRev = defaultDegreesPerRevolution
	}
	return &motorStage{
		motor:     m,
		logger:    logger,
		degPerRev: degPerRev,
		velocity:  defaultVelocity,
	}
}

func (s *motorStage) SetVelocity(degPerSec float64) error {
	if degPerSec <= 0 {
		return ErrNoVelocity
	}
	s.mu.Lock()
	s.velocity = degPerSec
	s.mu.Unlock()
	return nil
}

func (s *motorStage) Velocity() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.velocity
}

// rpm converts the stage velocity into motor revolutions per minute.
func (s *motorStage) rpm() float64 {
	return s.Velocity() / s.degPerRev * 60
}

// Enable arms the stage for motion. Viam motors power up on the first command,
// so this only clears the disabled latch.
func (s *motorStage) Enable(ctx context.Context) error {
	s.mu.Lock()
	s.enabled = true
	s.mu.Unlock()
	s.logger.Debugf("stage enabled (%.3f rpm)", s.rpm())
	return nil
}

func (s *motorStage) Disable(ctx context.Context) error {
	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()
	if err := s.motor.Stop(ctx, nil); err != nil {
		return fmt.Errorf("stopping stage motor: %w", err)
	}
	return nil
}

func (s *motorStage) MoveTo(ctx context.Context, angle float64) error {
	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()
	if !enabled {
		return errors.New("stage is disabled")
	}
	if err := s.motor.GoTo(ctx, s.rpm(), angle/s.degPerRev, nil); err != nil {
		return fmt.Errorf("moving stage to %v deg: %w", angle, err)
	}
	return nil
}

func (s *motorStage) Position(ctx context.Context) (float64, error) {
	revs, err := s.motor.Position(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("reading stage position: %w", err)
	}
	return revs * s.degPerRev, nil
}

func (s *motorStage) IsMoving(ctx context.Context) (bool, error) {
	return s.motor.IsMoving(ctx)
}
