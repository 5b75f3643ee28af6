package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const defaultStreamBuffer = 16

// Registry is the broadcast group map: course id to the set of live
// connections subscribed to that course's room. It is the one piece of
// shared mutable state in the chat path and is safe for concurrent
// join/leave/publish.
type Registry struct {
	mu         sync.RWMutex
	rooms      map[uint]map[string]*subscriber
	bufferSize int
}

type subscriber struct {
	id     string
	stream chan Envelope
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:      make(map[uint]map[string]*subscriber),
		bufferSize: defaultStreamBuffer,
	}
}

// Join registers a new connection in the course room and returns its
// envelope stream, its connection id and a cleanup function. The stream is
// buffered; a subscriber that stops draining loses envelopes rather than
// blocking the room. Cancelling ctx deregisters the connection.
func (r *Registry) Join(ctx context.Context, courseID uint) (<-chan Envelope, string, func()) {
	sub := &subscriber{
		id:     uuid.NewString(),
		stream: make(chan Envelope, r.bufferSize),
	}

	r.mu.Lock()
	room, ok := r.rooms[courseID]
	if !ok {
		room = make(map[string]*subscriber)
		r.rooms[courseID] = room
	}
	room[sub.id] = sub
	r.mu.Unlock()

	cleanup := func() {
		r.Leave(courseID, sub.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, sub.id, cleanup
}

// Leave removes a connection from its course room. Leaving twice is a no-op.
// Once Leave returns, no further envelopes are sent to the connection.
func (r *Registry) Leave(courseID uint, connID string) {
	r.mu.Lock()
	if room, ok := r.rooms[courseID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, courseID)
		}
	}
	r.mu.Unlock()
}

// Publish delivers the envelope to every connection currently registered in
// the course room, sender included. Membership is snapshotted before
// sending: a connection joining mid-publish may miss this envelope, a
// connection that has left never receives it.
func (r *Registry) Publish(courseID uint, envelope Envelope) {
	r.mu.RLock()
	room := r.rooms[courseID]
	if len(room) == 0 {
		r.mu.RUnlock()
		return
	}
	snapshot := make([]*subscriber, 0, len(room))
	for _, sub := range room {
		snapshot = append(snapshot, sub)
	}
	r.mu.RUnlock()

	for _, sub := range snapshot {
		select {
		case sub.stream <- envelope:
		default:
		}
	}
}

// RoomSize reports the number of live connections in a course room.
func (r *Registry) RoomSize(courseID uint) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[courseID])
}
