package sendqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Worker runs the processor on a fixed interval
type Worker struct {
	processor *Processor
	interval  time.Duration
	logger    *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	running bool
}

// NewWorker creates a queue worker that drains the send queue every interval
func NewWorker(processor *Processor, interval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval == 0 {
		interval = time.Minute
	}
	return &Worker{
		processor: processor,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the worker loop in a background goroutine
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Warn("send queue worker is already running")
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("send queue worker started", slog.Duration("interval", w.interval))

	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Drain once immediately on start
	w.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("send queue worker stopped: context cancelled")
			return
		case <-w.stopCh:
			w.logger.Info("send queue worker stopped")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	if err := w.processor.ProcessBatch(ctx); err != nil {
		w.logger.Error("send queue batch failed", slog.String("error", err.Error()))
	}
}

// Stop gracefully stops the worker and waits for the loop to exit
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
}

// IsRunning reports whether the worker loop is active
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
