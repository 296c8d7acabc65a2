package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/tendermint/lattice/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when somebody tries to stop an already
	// stopped service.
	ErrAlreadyStopped = errors.New("already stopped")
	// ErrNotStarted is returned when somebody tries to stop a not running
	// service.
	ErrNotStarted = errors.New("not started")
)

// Service defines a background component that can be started once and
// stopped once.
type Service interface {
	// Start is called to start the service, which should run until
	// the context terminates. If the service is already running, Start
	// must report an error.
	Start(context.Context) error

	// Stop stops the service. Background routines observe Quit.
	Stop() error

	// Return true if the service is running
	IsRunning() bool

	// String representation of the service
	String() string

	// Wait blocks until the service is stopped.
	Wait()
}

// Implementation describes the implementation that the
// BaseService implementation wraps.
type Implementation interface {
	Service

	// Called by the Services Start Method
	OnStart(context.Context) error

	// Called when the service's context is canceled.
	OnStop()
}

/*
BaseService carries the start/stop bookkeeping for every background loop in
lattice (vote drain, weight recalculation, guardian sweep, election sweep).

Typical usage:

	type Sweeper struct {
		service.BaseService
		// private fields
	}

	func NewSweeper(logger log.Logger) *Sweeper {
		s := &Sweeper{}
		s.BaseService = *service.NewBaseService(logger, "Sweeper", s)
		return s
	}

	func (s *Sweeper) OnStart(ctx context.Context) error {
		go s.loop(ctx)
		return nil
	}

	func (s *Sweeper) OnStop() {}

Loops started in OnStart must return when either ctx is done or Quit() is
closed.
*/
type BaseService struct {
	logger  log.Logger
	name    string
	started atomic.Bool
	stopped atomic.Bool
	quit    chan struct{}

	// The "subclass" of BaseService
	impl Implementation
}

// NewBaseService creates a new BaseService.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &BaseService{
		logger: logger,
		name:   name,
		quit:   make(chan struct{}),
		impl:   impl,
	}
}

// Start starts the Service and calls its OnStart method. An error will be
// returned if the service is already running or stopped.
func (bs *BaseService) Start(ctx context.Context) error {
	if !bs.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if bs.stopped.Load() {
		bs.logger.Error("not starting service; already stopped", "service", bs.name)
		bs.started.Store(false)
		return ErrAlreadyStopped
	}

	bs.logger.Info("starting service", "service", bs.name)

	if err := bs.impl.OnStart(ctx); err != nil {
		bs.started.Store(false)
		return err
	}

	go func() {
		select {
		case <-bs.quit:
			// stopped explicitly
		case <-ctx.Done():
			if err := bs.Stop(); err != nil && !errors.Is(err, ErrAlreadyStopped) {
				bs.logger.Error("stopping service", "err", err, "service", bs.name)
			}
		}
	}()

	return nil
}

// Stop implements Service by calling OnStop and closing the quit channel. An
// error will be returned if the service is already stopped.
func (bs *BaseService) Stop() error {
	if !bs.stopped.CompareAndSwap(false, true) {
		return ErrAlreadyStopped
	}

	if !bs.started.Load() {
		bs.logger.Error("not stopping service; not started yet", "service", bs.name)
		bs.stopped.Store(false)
		return ErrNotStarted
	}

	bs.logger.Info("stopping service", "service", bs.name)
	bs.impl.OnStop()
	close(bs.quit)

	return nil
}

// IsRunning implements Service by returning true or false depending on the
// service's state.
func (bs *BaseService) IsRunning() bool {
	return bs.started.Load() && !bs.stopped.Load()
}

// Quit returns a channel that is closed once the service stops.
func (bs *BaseService) Quit() <-chan struct{} { return bs.quit }

// Wait blocks until the service is stopped.
func (bs *BaseService) Wait() { <-bs.quit }

// String implements Service by returning a string representation of the service.
func (bs *BaseService) String() string { return bs.name }
