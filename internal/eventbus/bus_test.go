package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPublishFireAndForgetRunsAllHandlers(t *testing.T) {
	b := New()
	var count atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)
	b.Subscribe(SampleProcessed, func(ctx context.Context, ev Event) error {
		defer wg.Done()
		count.Add(1)
		return nil
	})
	b.Subscribe(SampleProcessed, func(ctx context.Context, ev Event) error {
		defer wg.Done()
		count.Add(1)
		return errors.New("boom")
	})

	b.Publish(NewEvent(SampleProcessed, nil))
	wg.Wait()

	if count.Load() != 2 {
		t.Errorf("count = %d, want 2", count.Load())
	}
}

func TestPublishAndWaitCollectsAllErrors(t *testing.T) {
	b := New()
	b.Subscribe(ViolationCreated, func(ctx context.Context, ev Event) error {
		return errors.New("err1")
	})
	b.Subscribe(ViolationCreated, func(ctx context.Context, ev Event) error {
		return errors.New("err2")
	})
	b.Subscribe(ViolationCreated, func(ctx context.Context, ev Event) error {
		return nil
	})

	errs := b.PublishAndWait(context.Background(), NewEvent(ViolationCreated, nil))
	if len(errs) != 2 {
		t.Errorf("errs = %v, want 2 errors", errs)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	var called atomic.Bool
	token := b.Subscribe(CharacteristicUpdated, func(ctx context.Context, ev Event) error {
		called.Store(true)
		return nil
	})
	b.Unsubscribe(CharacteristicUpdated, token)

	errs := b.PublishAndWait(context.Background(), NewEvent(CharacteristicUpdated, nil))
	if len(errs) != 0 {
		t.Errorf("errs = %v, want none", errs)
	}
	if called.Load() {
		t.Error("handler should not have been called after Unsubscribe")
	}
}

func TestShutdownWaitsForInFlightHandlers(t *testing.T) {
	b := New()
	var finished atomic.Bool
	b.Subscribe(SampleProcessed, func(ctx context.Context, ev Event) error {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	})

	b.Publish(NewEvent(SampleProcessed, nil))
	if err := b.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !finished.Load() {
		t.Error("Shutdown returned before handler finished")
	}
}
