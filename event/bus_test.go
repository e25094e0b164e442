package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/approve/event"
	"github.com/xraph/approve/scope"
	"github.com/xraph/approve/store/memory"
)

func TestBus_PublishCapturesScope(t *testing.T) {
	bus := event.NewBus(memory.New())
	ctx := scope.Restore(context.Background(), "acme")

	evt, err := bus.Publish(ctx, event.WorkflowStarted, []byte(`{"instance_id":"wfi_1"}`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if evt.ID.IsNil() {
		t.Error("event ID not assigned")
	}
	if evt.Name != event.WorkflowStarted {
		t.Errorf("name: want %q, got %q", event.WorkflowStarted, evt.Name)
	}
	if evt.TenantID != "acme" {
		t.Errorf("tenant: want %q, got %q", "acme", evt.TenantID)
	}
	if evt.Acked {
		t.Error("new event must start unacked")
	}
}

func TestBus_SubscribeReceivesPublished(t *testing.T) {
	bus := event.NewBus(memory.New())
	ctx := context.Background()

	pub, err := bus.Publish(ctx, event.TaskEscalated, []byte(`{}`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, err := bus.Subscribe(ctx, event.TaskEscalated, time.Second)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got == nil {
		t.Fatal("no event received")
	}
	if got.ID.String() != pub.ID.String() {
		t.Errorf("event ID: want %s, got %s", pub.ID, got.ID)
	}
}

func TestBus_SubscribeTimesOut(t *testing.T) {
	bus := event.NewBus(memory.New())

	got, err := bus.Subscribe(context.Background(), event.TaskOverdue, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got != nil {
		t.Errorf("want nil on timeout, got %+v", got)
	}
}

func TestBus_AckStopsRedelivery(t *testing.T) {
	bus := event.NewBus(memory.New())
	ctx := context.Background()

	pub, err := bus.Publish(ctx, event.WorkflowCompleted, nil)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err := bus.Subscribe(ctx, event.WorkflowCompleted, time.Second)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got == nil {
		t.Fatal("no event received")
	}

	if err := bus.Ack(ctx, pub.ID); err != nil {
		t.Fatalf("ack: %v", err)
	}

	again, err := bus.Subscribe(ctx, event.WorkflowCompleted, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("second subscribe: %v", err)
	}
	if again != nil {
		t.Errorf("acked event redelivered: %+v", again)
	}
}

func TestBus_SubscribeFiltersByName(t *testing.T) {
	bus := event.NewBus(memory.New())
	ctx := context.Background()

	if _, err := bus.Publish(ctx, event.TaskCreated, nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, err := bus.Subscribe(ctx, event.WorkflowFailed, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got != nil {
		t.Errorf("received event with mismatched name: %+v", got)
	}
}
