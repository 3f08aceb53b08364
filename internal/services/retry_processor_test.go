package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

// flakyPublisher fails the first n publishes.
type flakyPublisher struct {
	fakePublisher
	failures int
}

func (f *flakyPublisher) PublishTransaction(ctx context.Context, ev *amqp.TransactionEvent) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errors.New("broker down")
	}
	f.mu.Unlock()
	return f.fakePublisher.PublishTransaction(ctx, ev)
}

func testEvent(ref string) *amqp.TransactionEvent {
	return amqp.NewTransactionEvent(ref, core.Transaction{Type: core.Income, Amount: core.Money{Cents: 100}}, time.Now())
}

func TestRetryProcessorDefaults(t *testing.T) {
	p := NewRetryProcessor(&fakePublisher{}, RetryProcessorConfig{}, nil)
	if p.config != DefaultRetryProcessorConfig() {
		t.Fatalf("config = %+v, want defaults", p.config)
	}
}

func TestRetryProcessorEnqueueBounded(t *testing.T) {
	p := NewRetryProcessor(&fakePublisher{}, RetryProcessorConfig{Capacity: 2}, nil)
	if !p.Enqueue(testEvent("1")) || !p.Enqueue(testEvent("2")) {
		t.Fatal("enqueue below capacity failed")
	}
	if p.Enqueue(testEvent("3")) {
		t.Fatal("enqueue above capacity succeeded")
	}
	if st := p.Stats(); st.Pending != 2 || st.Dropped != 1 {
		t.Fatalf("Stats() = %+v", st)
	}
}

func TestRetryProcessorProcessBatch(t *testing.T) {
	t.Run("publishes pending events in order", func(t *testing.T) {
		pub := &fakePublisher{}
		p := NewRetryProcessor(pub, RetryProcessorConfig{BatchSize: 2}, nil)
		for _, ref := range []string{"1", "2", "3"} {
			p.Enqueue(testEvent(ref))
		}

		p.ProcessBatch(context.Background())
		if pub.count() != 2 || p.Stats().Pending != 1 {
			t.Fatalf("after first batch: published=%d stats=%+v", pub.count(), p.Stats())
		}
		p.ProcessBatch(context.Background())
		if pub.count() != 3 || pub.events[2].Ref != "3" {
			t.Fatalf("unexpected publish order")
		}
		if st := p.Stats(); st.Pending != 0 || st.Published != 3 {
			t.Fatalf("Stats() = %+v", st)
		}
	})

	t.Run("retries then succeeds", func(t *testing.T) {
		pub := &flakyPublisher{failures: 1}
		p := NewRetryProcessor(pub, RetryProcessorConfig{MaxRetries: 3}, nil)
		p.Enqueue(testEvent("1"))

		p.ProcessBatch(context.Background())
		if p.Stats().Pending != 1 {
			t.Fatalf("failed event should stay queued")
		}
		p.ProcessBatch(context.Background())
		if st := p.Stats(); st.Pending != 0 || st.Published != 1 {
			t.Fatalf("Stats() = %+v", st)
		}
	})

	t.Run("drops after max retries", func(t *testing.T) {
		p := NewRetryProcessor(&fakePublisher{err: errors.New("broker down")}, RetryProcessorConfig{MaxRetries: 2}, nil)
		p.Enqueue(testEvent("1"))

		p.ProcessBatch(context.Background())
		p.ProcessBatch(context.Background())
		if st := p.Stats(); st.Pending != 0 || st.Dropped != 1 {
			t.Fatalf("Stats() = %+v", st)
		}
	})

	t.Run("cancelled context keeps events", func(t *testing.T) {
		pub := &fakePublisher{}
		p := NewRetryProcessor(pub, RetryProcessorConfig{}, nil)
		p.Enqueue(testEvent("1"))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p.ProcessBatch(ctx)
		if pub.count() != 0 || p.Stats().Pending != 1 {
			t.Fatalf("published=%d stats=%+v", pub.count(), p.Stats())
		}
	})
}

func TestRetryProcessorLifecycle(t *testing.T) {
	pub := &fakePublisher{}
	p := NewRetryProcessor(pub, RetryProcessorConfig{PollInterval: 5 * time.Millisecond}, nil)
	ctx := context.Background()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start: %v", err)
	}
	if !p.IsRunning() {
		t.Fatal("expected running")
	}

	p.Enqueue(testEvent("1"))
	deadline := time.Now().Add(2 * time.Second)
	for pub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pub.count() != 1 {
		t.Fatal("queued event was never republished")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.IsRunning() {
		t.Fatal("expected stopped")
	}
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
