// Package dispatch runs asynchronous driver operations. At most Workers of
// them execute at once; MaxPending optionally bounds how many may wait.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/tostrovsky/tp-so-alternativo/pkg/fs"
)

var (
	// ErrClosed is returned by Go once the dispatcher has been closed.
	ErrClosed = fmt.Errorf("dispatcher closed: %w", fs.ErrDriverClosed)

	// ErrBusy is returned by Go when MaxPending tasks are already scheduled.
	ErrBusy = fmt.Errorf("dispatcher queue full: %w", fs.ErrBusy)
)

// Config contains the dispatcher configuration
type Config struct {
	// Workers is the maximum number of tasks running at once
	Workers int

	// Rate limits how many tasks may start per second; zero disables the limit
	Rate float64

	// Burst is the number of tasks allowed to start at once when Rate is set
	Burst int

	// MaxPending bounds the tasks scheduled but not yet finished, running
	// ones included; zero means no bound
	MaxPending int

	Logger *slog.Logger
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Workers: 16,
		Burst:   1,
	}
}

// Dispatcher schedules tasks without blocking the submitter. Tasks wait for a
// free worker slot (and for the rate limiter, if any) on their own goroutine.
type Dispatcher struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	logger  *slog.Logger

	maxPending int64
	pending    atomic.Int64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a dispatcher.
func New(config Config) *Dispatcher {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	d := &Dispatcher{
		sem:        semaphore.NewWeighted(int64(config.Workers)),
		logger:     config.Logger,
		maxPending: int64(config.MaxPending),
	}
	if config.Rate > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(config.Rate), burst)
	}
	return d
}

// Go schedules task. It returns ErrClosed, without running task, once Close
// has been called, and ErrBusy when the pending bound is reached.
func (d *Dispatcher) Go(task func()) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	if n := d.pending.Add(1); d.maxPending > 0 && n > d.maxPending {
		d.pending.Add(-1)
		return ErrBusy
	}

	d.wg.Add(1)
	go d.run(task)
	return nil
}

// Close stops accepting tasks and waits for the scheduled ones to finish.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
}

// Pending returns the number of tasks scheduled but not yet finished.
func (d *Dispatcher) Pending() int {
	return int(d.pending.Load())
}

func (d *Dispatcher) run(task func()) {
	defer d.wg.Done()
	defer d.pending.Add(-1)

	// neither wait can fail on a background context
	ctx := context.Background()
	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.logger.Error("acquiring dispatcher slot", "error", err)
		return
	}
	defer d.sem.Release(1)

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			d.logger.Error("waiting for dispatcher rate limit", "error", err)
			return
		}
	}

	task()
}
