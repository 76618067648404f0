package workers

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/travelhub/crm-escalation/services"
)

const DefaultEscalationInterval = 5 * time.Minute

// CycleRunner is what the worker schedules. *services.EscalationEngine implements it.
type CycleRunner interface {
	RunEscalationCycle(ctx context.Context) (*services.CycleSummary, error)
}

// EscalationWorker runs escalation cycles on a fixed interval
type EscalationWorker struct {
	Engine   CycleRunner
	Interval time.Duration
	// Timeout bounds a single cycle; zero means one interval.
	Timeout time.Duration
}

func NewEscalationWorker(engine CycleRunner, interval time.Duration) *EscalationWorker {
	if interval <= 0 {
		interval = DefaultEscalationInterval
	}
	return &EscalationWorker{Engine: engine, Interval: interval}
}

// StartEscalationWorker runs one cycle immediately and then one per tick until ctx is done.
// Ticks that fire while a cycle is still running are dropped by the ticker.
func (w *EscalationWorker) StartEscalationWorker(ctx context.Context) {
	log.Printf("Escalation worker started, running every %v", w.Interval)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("Escalation worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single cycle and logs its outcome.
func (w *EscalationWorker) RunOnce(ctx context.Context) *services.CycleSummary {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = w.Interval
	}
	cycleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	summary, err := w.Engine.RunEscalationCycle(cycleCtx)
	if errors.Is(err, services.ErrLockHeld) {
		log.Println("Worker: escalation cycle skipped, another cycle holds the lock")
		return nil
	}
	if err != nil {
		log.Printf("Worker: escalation cycle failed: %v", err)
		return nil
	}

	for _, e := range summary.Errors {
		log.Printf("Worker: escalation cycle error: %s", e)
	}
	return summary
}
