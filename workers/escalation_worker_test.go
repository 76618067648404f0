package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/travelhub/crm-escalation/services"
)

type stubRunner struct {
	calls   int32
	err     error
	summary *services.CycleSummary
}

func (s *stubRunner) RunEscalationCycle(ctx context.Context) (*services.CycleSummary, error) {
	atomic.AddInt32(&s.calls, 1)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("cycle context has no deadline")
	}
	return s.summary, s.err
}

func TestEscalationWorker_RunOnce(t *testing.T) {
	tests := []struct {
		name    string
		runner  *stubRunner
		wantNil bool
	}{
		{
			name:   "returns summary",
			runner: &stubRunner{summary: &services.CycleSummary{Escalated: 2, Errors: []string{"stale_contacts: timeout"}}},
		},
		{name: "lock held", runner: &stubRunner{err: services.ErrLockHeld}, wantNil: true},
		{name: "lock failure", runner: &stubRunner{err: errors.New("redis down")}, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewEscalationWorker(tt.runner, time.Minute)
			summary := w.RunOnce(context.Background())
			if tt.wantNil {
				assert.Nil(t, summary)
			} else {
				assert.Equal(t, tt.runner.summary, summary)
			}
			assert.EqualValues(t, 1, atomic.LoadInt32(&tt.runner.calls))
		})
	}
}

func TestEscalationWorker_StartStopsOnCancel(t *testing.T) {
	runner := &stubRunner{summary: &services.CycleSummary{}}
	w := NewEscalationWorker(runner, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.StartEscalationWorker(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runner.calls) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestNewEscalationWorker_DefaultInterval(t *testing.T) {
	w := NewEscalationWorker(&stubRunner{}, 0)
	assert.Equal(t, DefaultEscalationInterval, w.Interval)
}
