// internal/engine/replay.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/config"
)

// ErrUnknownReplayKind is returned for a case whose kind has no handler.
var ErrUnknownReplayKind = errors.New("unknown replay kind")

// Processor answers one replay case.
type Processor interface {
	Process(ctx context.Context, rc schemas.ReplayCase) (schemas.ReplayResult, error)
}

// Sink receives replay results. It is called from several workers at once.
type Sink interface {
	Record(ctx context.Context, result schemas.ReplayResult) error
}

// Process dispatches rc to the matching coordinator operation.
func (c *Coordinator) Process(ctx context.Context, rc schemas.ReplayCase) (schemas.ReplayResult, error) {
	result := schemas.ReplayResult{ID: rc.ID, Kind: rc.Kind}
	switch rc.Kind {
	case schemas.ReplayPlan:
		if rc.Plan == nil {
			return result, fmt.Errorf("case %q has no plan payload", rc.ID)
		}
		plan, err := c.PlanStep(ctx, *rc.Plan)
		if err != nil {
			return result, err
		}
		result.Plan = &plan
	case schemas.ReplayRecover:
		if rc.Recovery == nil {
			return result, fmt.Errorf("case %q has no recovery payload", rc.ID)
		}
		rec, err := c.Recover(ctx, *rc.Recovery)
		if err != nil {
			return result, err
		}
		result.Recovery = &rec
	case schemas.ReplayVerify:
		if rc.Verify == nil {
			return result, fmt.Errorf("case %q has no verify payload", rc.ID)
		}
		v, err := c.VerifyStep(ctx, *rc.Verify)
		if err != nil {
			return result, err
		}
		result.Verification = &v
	default:
		return result, fmt.Errorf("%w: %q", ErrUnknownReplayKind, rc.Kind)
	}
	return result, nil
}

// ReplayEngine distributes replay cases to a pool of workers.
type ReplayEngine struct {
	cfg       config.EngineConfig
	logger    *zap.Logger
	sink      Sink
	processor Processor
	wg        sync.WaitGroup

	// stateLock protects isRunning.
	stateLock sync.Mutex
	isRunning bool
}

// NewReplayEngine validates its dependencies and creates the pool.
func NewReplayEngine(cfg config.EngineConfig, logger *zap.Logger, sink Sink, processor Processor) (*ReplayEngine, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if sink == nil {
		return nil, errors.New("sink cannot be nil")
	}
	if processor == nil {
		return nil, errors.New("processor cannot be nil")
	}
	return &ReplayEngine{
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "replay_engine")),
		sink:      sink,
		processor: processor,
	}, nil
}

// Start launches the workers, which consume cases until the channel is
// closed or ctx is cancelled. A second Start while running is ignored.
func (e *ReplayEngine) Start(ctx context.Context, cases <-chan schemas.ReplayCase) {
	e.stateLock.Lock()
	if e.isRunning {
		e.stateLock.Unlock()
		e.logger.Warn("ReplayEngine.Start called, but engine is already running.")
		return
	}
	e.isRunning = true
	e.stateLock.Unlock()

	concurrency := e.cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	e.logger.Info("Starting replay worker pool", zap.Int("concurrency", concurrency))

	for i := 0; i < concurrency; i++ {
		e.wg.Add(1)
		go e.runWorker(ctx, i+1, cases)
	}
}

// Stop waits for every worker to exit.
func (e *ReplayEngine) Stop() {
	e.logger.Info("Stopping replay engine... waiting for workers to finish.")
	e.wg.Wait()

	e.stateLock.Lock()
	e.isRunning = false
	e.stateLock.Unlock()

	e.logger.Info("Replay engine stopped gracefully.")
}

func (e *ReplayEngine) runWorker(ctx context.Context, workerID int, cases <-chan schemas.ReplayCase) {
	defer e.wg.Done()
	logger := e.logger.With(zap.Int("worker_id", workerID))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Context cancelled, worker shutting down.", zap.Error(ctx.Err()))
			e.drain(ctx, cases, logger)
			return
		case rc, ok := <-cases:
			if !ok {
				logger.Debug("Case queue closed and drained, worker shutting down.")
				return
			}
			e.process(ctx, rc, logger)
		}
	}
}

// process runs one case under the per-case timeout. Every case produces a
// result; failures are recorded with their error text.
func (e *ReplayEngine) process(ctx context.Context, rc schemas.ReplayCase, logger *zap.Logger) {
	logger = logger.With(zap.String("case_id", rc.ID), zap.String("kind", string(rc.Kind)))
	logger.Debug("Processing replay case")

	var (
		result schemas.ReplayResult
		err    error
	)
	start := time.Now()
	if ctx.Err() != nil {
		logger.Warn("Context cancelled before case processing started", zap.Error(ctx.Err()))
		err = fmt.Errorf("case not started: %w", ctx.Err())
	} else {
		result, err = e.run(ctx, rc, logger)
	}
	result.ID, result.Kind = rc.ID, rc.Kind
	result.Duration = time.Since(start)
	result.Timestamp = time.Now().UTC()

	if err != nil {
		result.Error = err.Error()
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			logger.Warn("Replay case timed out", zap.Duration("timeout", e.caseTimeout()), zap.Error(err))
		case errors.Is(err, context.Canceled):
			logger.Warn("Replay case was cancelled", zap.Error(err))
		default:
			logger.Warn("Replay case failed", zap.Error(err))
		}
	}

	// Results are written even while the parent context shuts down.
	recordCtx, recordCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer recordCancel()
	if err := e.sink.Record(recordCtx, result); err != nil {
		logger.Error("Failed to record replay result", zap.Error(err))
	}
}

// run calls the processor. A panicking processor fails only its own case.
func (e *ReplayEngine) run(ctx context.Context, rc schemas.ReplayCase, logger *zap.Logger) (result schemas.ReplayResult, err error) {
	caseCtx, cancel := context.WithTimeout(ctx, e.caseTimeout())
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Replay case panicked", zap.Any("panic", r), zap.Stack("stack"))
			result, err = schemas.ReplayResult{}, fmt.Errorf("panic processing case: %v", r)
		}
	}()
	return e.processor.Process(caseCtx, rc)
}

func (e *ReplayEngine) caseTimeout() time.Duration {
	if e.cfg.DefaultTaskTimeout <= 0 {
		return 2 * time.Minute
	}
	return e.cfg.DefaultTaskTimeout
}

// drain records a cancelled result for every case already buffered in the
// queue. It does not wait for cases that were never queued.
func (e *ReplayEngine) drain(ctx context.Context, cases <-chan schemas.ReplayCase, logger *zap.Logger) {
	for {
		select {
		case rc, ok := <-cases:
			if !ok {
				return
			}
			e.process(ctx, rc, logger)
		default:
			return
		}
	}
}
