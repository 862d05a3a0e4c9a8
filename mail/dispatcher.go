package mail

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job is one delivery. Kind names it in logs and results.
type Job struct {
	Kind string
	To   string
	Send func(ctx context.Context, m Mailer) error
}

// Config controls buffering and concurrency of a Dispatcher.
type Config struct {
	BufferSize int
	Workers    int
	// Timeout bounds one delivery. Zero means 30s.
	Timeout time.Duration
}

// Dispatcher runs mail jobs on a fixed worker pool. Enqueue never blocks;
// a full queue drops the job and counts it.
type Dispatcher struct {
	mailer   Mailer
	cfg      Config
	logger   *slog.Logger
	onResult func(kind string, err error)

	jobs      chan Job
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
	mu        sync.RWMutex

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewDispatcher starts the workers. onResult, when set, is called after
// every delivery attempt.
func NewDispatcher(mailer Mailer, cfg Config, logger *slog.Logger, onResult func(kind string, err error)) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d := &Dispatcher{
		mailer:   mailer,
		cfg:      cfg,
		logger:   logger,
		onResult: onResult,
		jobs:     make(chan Job, cfg.BufferSize),
	}
	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.work()
	}
	return d
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.run(job)
	}
}

func (d *Dispatcher) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				d.logger.Error("mailer panicked", "kind", job.Kind, "panic", p)
				err = errMailerPanic
			}
		}()
		return job.Send(ctx, d.mailer)
	}()

	if err != nil {
		d.failed.Add(1)
		d.logger.Error("mail delivery failed", "kind", job.Kind, "to", job.To, "error", err)
	} else {
		d.sent.Add(1)
	}
	if d.onResult != nil {
		d.onResult(job.Kind, err)
	}
}

// Enqueue schedules job and reports whether it was accepted.
func (d *Dispatcher) Enqueue(job Job) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		d.dropped.Add(1)
		return false
	}
	select {
	case d.jobs <- job:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("mail queue full, dropping", "kind", job.Kind, "to", job.To)
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed.Store(true)
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) Sent() uint64    { return d.sent.Load() }
func (d *Dispatcher) Failed() uint64  { return d.failed.Load() }
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }
