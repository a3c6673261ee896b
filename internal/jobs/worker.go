package jobs

import (
	"context"
	"log"
	"time"
)

// JobProcessor defines the interface for one poll cycle of background work
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker drives a JobProcessor on a fixed polling interval
type Worker struct {
	processor JobProcessor
	interval  time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(processor JobProcessor, interval time.Duration) *Worker {
	return &Worker{
		processor: processor,
		interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs the polling loop until the context is cancelled or Stop is
// called. One cycle runs immediately so a restart does not leave work
// sitting for a full interval. Processor errors are logged, not fatal.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneCh)

	log.Printf("background worker started, polling every %v", w.interval)

	w.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("background worker stopped: context cancelled")
			return
		case <-w.stopCh:
			log.Println("background worker stopped")
			return
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

func (w *Worker) runCycle(ctx context.Context) {
	if err := w.processor.ProcessJobs(ctx); err != nil {
		log.Printf("background worker cycle failed: %v", err)
	}
}

// Stop signals the loop to exit and blocks until the current cycle finishes.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}
