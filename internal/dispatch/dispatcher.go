// Package dispatch fans one trading cycle out over a fixed pool of workers.
// Submission never blocks the caller and never skips an instrument: tasks wait
// in an unbounded backlog until a worker is free. A failing instrument never
// affects the others.
package dispatch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/engine"
	"github.com/bkviswam/tradeplatform/internal/models"
)

type Executor interface {
	ExecuteStrategyFor(ctx context.Context, instrument models.Instrument, cfg models.StrategyConfig, session models.MarketSession) (engine.Outcome, error)
}

type CycleID uint64

type Result struct {
	Cycle    CycleID
	Symbol   string
	Outcome  engine.Outcome
	Err      error
	Panicked bool
	Duration time.Duration
}

type Stats struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Traded    uint64 `json:"traded"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
	Panicked  uint64 `json:"panicked"`
	Dropped   uint64 `json:"dropped"`
	Pending   uint64 `json:"pending"`
}

type Options struct {
	// Workers defaults to runtime.NumCPU().
	Workers int
	// Observer is called from the worker goroutine after every task. A panic
	// in the observer is recovered and logged.
	Observer func(Result)
}

type task struct {
	ctx        context.Context
	cycle      CycleID
	instrument models.Instrument
	cfg        models.StrategyConfig
	session    models.MarketSession
}

type Dispatcher struct {
	exec     Executor
	observer func(Result)
	log      *zap.Logger

	mu      sync.Mutex
	ready   *sync.Cond
	closed  bool
	backlog []task

	workers  sync.WaitGroup
	inflight sync.WaitGroup
	cycle    atomic.Uint64

	submitted atomic.Uint64
	completed atomic.Uint64
	traded    atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
	panicked  atomic.Uint64
	dropped   atomic.Uint64
}

func New(exec Executor, opts Options, log *zap.Logger) *Dispatcher {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	d := &Dispatcher{
		exec:     exec,
		observer: opts.Observer,
		log:      log.Named("dispatch"),
	}
	d.ready = sync.NewCond(&d.mu)
	d.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	d.log.Info("dispatcher started", zap.Int("workers", workers))
	return d
}

// Run submits one task per instrument and returns without waiting for them.
// Tasks outlive ctx cancellation but keep its values. Only a closed
// dispatcher drops tasks.
func (d *Dispatcher) Run(ctx context.Context, instruments []models.Instrument, cfg models.StrategyConfig, session models.MarketSession) CycleID {
	cycle := CycleID(d.cycle.Add(1))
	taskCtx := context.WithoutCancel(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		for _, instrument := range instruments {
			d.drop(cycle, instrument.Symbol)
		}
		return cycle
	}
	for _, instrument := range instruments {
		d.inflight.Add(1)
		d.backlog = append(d.backlog, task{ctx: taskCtx, cycle: cycle, instrument: instrument, cfg: cfg, session: session})
		d.submitted.Add(1)
	}
	d.ready.Broadcast()
	return cycle
}

func (d *Dispatcher) drop(cycle CycleID, symbol string) {
	d.dropped.Add(1)
	d.log.Warn("task dropped", zap.Uint64("cycle", uint64(cycle)), zap.String("symbol", symbol))
}

// Wait blocks until every submitted task has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	pending := len(d.backlog)
	d.mu.Unlock()

	return Stats{
		Pending:   uint64(pending),
		Submitted: d.submitted.Load(),
		Completed: d.completed.Load(),
		Traded:    d.traded.Load(),
		Skipped:   d.skipped.Load(),
		Failed:    d.failed.Load(),
		Panicked:  d.panicked.Load(),
		Dropped:   d.dropped.Load(),
	}
}

// Close stops accepting tasks and waits for the workers to drain the backlog.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.ready.Broadcast()
	d.mu.Unlock()

	d.workers.Wait()
	d.log.Info("dispatcher stopped")
}

func (d *Dispatcher) work() {
	defer d.workers.Done()
	for {
		t, ok := d.next()
		if !ok {
			return
		}
		d.execute(t)
	}
}

// next blocks until a task is available. It reports false once the
// dispatcher is closed and the backlog is empty.
func (d *Dispatcher) next() (task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.backlog) == 0 {
		if d.closed {
			return task{}, false
		}
		d.ready.Wait()
	}
	t := d.backlog[0]
	d.backlog[0] = task{}
	d.backlog = d.backlog[1:]
	return t, true
}

func (d *Dispatcher) execute(t task) {
	defer d.inflight.Done()

	start := time.Now()
	result := Result{Cycle: t.cycle, Symbol: t.instrument.Symbol}

	func() {
		defer func() {
			if r := recover(); r != nil {
				result.Panicked = true
				result.Err = fmt.Errorf("panic: %v", r)
			}
		}()
		result.Outcome, result.Err = d.exec.ExecuteStrategyFor(t.ctx, t.instrument, t.cfg, t.session)
	}()
	result.Duration = time.Since(start)

	d.completed.Add(1)
	log := d.log.With(zap.Uint64("cycle", uint64(t.cycle)), zap.String("symbol", t.instrument.Symbol), zap.Duration("duration", result.Duration))
	switch {
	case result.Panicked:
		d.panicked.Add(1)
		log.Error("task panicked", zap.Error(result.Err))
	case result.Err != nil:
		d.failed.Add(1)
		log.Error("task failed", zap.Error(result.Err))
	case result.Outcome == engine.OutcomeTraded:
		d.traded.Add(1)
	default:
		d.skipped.Add(1)
	}

	d.observe(result)
}

func (d *Dispatcher) observe(result Result) {
	if d.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("observer panicked", zap.Uint64("cycle", uint64(result.Cycle)), zap.String("symbol", result.Symbol), zap.Any("panic", r))
		}
	}()
	d.observer(result)
}
