package chat

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesEveryRoomMemberIncludingSender(testContext *testing.T) {
	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streamA, _, cleanupA := registry.Join(ctx, 7)
	defer cleanupA()
	streamB, _, cleanupB := registry.Join(ctx, 7)
	defer cleanupB()
	streamC, _, cleanupC := registry.Join(ctx, 7)
	defer cleanupC()
	otherRoom, _, cleanupD := registry.Join(ctx, 9)
	defer cleanupD()

	envelope := Envelope{Type: EnvelopeTypeChatMessage, Message: "hello", User: "ada"}
	registry.Publish(7, envelope)

	for _, stream := range []<-chan Envelope{streamA, streamB, streamC} {
		select {
		case received := <-stream:
			if received.Message != "hello" {
				testContext.Fatalf("unexpected message: %s", received.Message)
			}
		case <-time.After(500 * time.Millisecond):
			testContext.Fatal("expected envelope within deadline")
		}
	}

	select {
	case <-otherRoom:
		testContext.Fatal("did not expect delivery to another course room")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLeaveStopsDelivery(testContext *testing.T) {
	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, connID, _ := registry.Join(ctx, 7)
	registry.Leave(7, connID)

	registry.Publish(7, Envelope{Message: "after leave"})

	select {
	case <-stream:
		testContext.Fatal("did not expect delivery after removal")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLeaveTwiceIsNoOp(testContext *testing.T) {
	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, connID, _ := registry.Join(ctx, 7)
	registry.Leave(7, connID)
	registry.Leave(7, connID)

	if size := registry.RoomSize(7); size != 0 {
		testContext.Fatalf("expected empty room, got %d", size)
	}
}

func TestContextCancellationDeregisters(testContext *testing.T) {
	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	registry.Join(ctx, 7)
	cancel()

	deadline := time.After(time.Second)
	for registry.RoomSize(7) != 0 {
		select {
		case <-deadline:
			testContext.Fatal("expected cancellation to deregister the connection")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPublishToEmptyRoomIsNoOp(testContext *testing.T) {
	registry := NewRegistry()
	registry.Publish(42, Envelope{Message: "nobody home"})
}

func TestSlowSubscriberDoesNotBlockPublish(testContext *testing.T) {
	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry.Join(ctx, 7)

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultStreamBuffer*2; i++ {
			registry.Publish(7, Envelope{Message: "flood"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		testContext.Fatal("publish must not block on a full subscriber buffer")
	}
}
