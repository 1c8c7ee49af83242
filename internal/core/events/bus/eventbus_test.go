package bus

import (
	"errors"
	"testing"
	"time"
)

type testObserver struct {
	publishCount   int
	deliveredCount int
	lastErr        error
}

func (o *testObserver) OnPublish(_, _ string, _ Event) {
	o.publishCount++
}

func (o *testObserver) OnDelivered(_, _ string, handlers int, err error, _ int64) {
	o.deliveredCount += handlers
	o.lastErr = err
}

func TestBasicPublishSubscribe(t *testing.T) {
	b := New()
	done := make(chan struct{})
	_, err := b.Subscribe("test.event", func(e Event) error {
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err = b.Publish(NewEvent("test.event", "tester", 123, 0, nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("handler not called")
	}
}

func TestDeliveryFollowsSubscriptionOrder(t *testing.T) {
	b := New()
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		if _, err := b.Subscribe("ordered", func(e Event) error {
			got = append(got, i)
			return nil
		}); err != nil {
			t.Fatalf("subscribe %d: %v", i, err)
		}
	}
	if err := b.Publish(NewEvent("ordered", "src", nil, 0, nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("delivery order broken: %v", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 deliveries, got %d", len(got))
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := New()
	count := 0
	sub, err := b.Subscribe("ev", func(e Event) error { count++; return nil })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_ = b.Publish(NewEvent("ev", "src", nil, 0, nil))
	if err = sub.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_ = b.Publish(NewEvent("ev", "src", nil, 0, nil))
	if count != 1 {
		t.Fatalf("expected 1 delivery after cancel, got %d", count)
	}
}

func TestHandlerErrorsAggregate(t *testing.T) {
	b := New()
	errA := errors.New("a")
	errB := errors.New("b")
	_, _ = b.Subscribe("e", func(e Event) error { return errA })
	_, _ = b.Subscribe("e", func(e Event) error { return errB })
	err := b.Publish(NewEvent("e", "s", nil, 0, nil))
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both handler errors, got %v", err)
	}
}

func TestTopicsIsolation(t *testing.T) {
	b := New()
	if err := b.CreateTopic("t1", TopicConfig{}); err != nil {
		t.Fatalf("topic: %v", err)
	}
	if err := b.CreateTopic("t2", TopicConfig{}); err != nil {
		t.Fatalf("topic: %v", err)
	}
	count1 := 0
	count2 := 0
	_, _ = b.SubscribeTopic("t1", "ev", func(e Event) error { count1++; return nil })
	_, _ = b.SubscribeTopic("t2", "ev", func(e Event) error { count2++; return nil })
	_ = b.PublishToTopic("t1", NewEvent("ev", "src", nil, 0, nil))
	if count1 != 1 || count2 != 0 {
		t.Fatalf("topic isolation failed: %d %d", count1, count2)
	}
}

func TestRemoveTopicDeactivatesSubscriptions(t *testing.T) {
	b := New()
	_ = b.CreateTopic("doomed", TopicConfig{})
	count := 0
	sub, _ := b.SubscribeTopic("doomed", "ev", func(e Event) error { count++; return nil })
	if err := b.RemoveTopic("doomed"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_ = b.PublishToTopic("doomed", NewEvent("ev", "src", nil, 0, nil))
	if count != 0 {
		t.Fatalf("expected no delivery on removed topic, got %d", count)
	}
	if sub.IsActive() {
		t.Fatal("subscription should be inactive after topic removal")
	}
}

func TestObserverMetricsOptional(t *testing.T) {
	b := New()
	// without observer, metrics should remain zero despite activity
	_, _ = b.Subscribe("e", func(e Event) error { return nil })
	_ = b.Publish(NewEvent("e", "s", nil, 0, nil))
	m := b.GetMetrics()
	if m.Published != 0 && m.DeliveredHandlers != 0 {
		t.Fatalf("metrics should be zero without observers: %+v", m)
	}
	// now add observer and expect metrics to update
	obs := &testObserver{}
	b.AddObserver(obs)
	_ = b.Publish(NewEvent("e", "s", nil, 0, nil))
	m2 := b.GetMetrics()
	if m2.Published == 0 || m2.DeliveredHandlers == 0 {
		t.Fatalf("metrics should update with observer: %+v", m2)
	}
	if obs.publishCount == 0 || obs.deliveredCount == 0 {
		t.Fatalf("observer not called: %+v", obs)
	}
}
