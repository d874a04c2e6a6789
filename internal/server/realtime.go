package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventEntryChanged = "entry-change"
	realtimeEventHeartbeat    = "heartbeat"
	realtimeSourceBackend     = "journal-api"
	realtimeBufferSize        = 16
)

// EntryRef identifies an entry touched by a mutation. Key and Version are empty
// for attachment-only changes.
type EntryRef struct {
	EntryID string `json:"id"`
	Key     string `json:"key,omitempty"`
	Version int64  `json:"version,omitempty"`
}

type RealtimeMessage struct {
	UserID    string
	EventType string
	Entries   []EntryRef
	Timestamp time.Time
}

// RealtimeDispatcher fans entry mutations out to the open streams of the user
// that made them. Slow subscribers drop messages rather than block writers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]chan RealtimeMessage
	nextID      int64
	clock       func() time.Time
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]chan RealtimeMessage),
		clock:       time.Now,
	}
}

// Subscribe registers a stream for userID. The stream is released when ctx ends
// or the returned cleanup runs, whichever comes first.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		closed := make(chan RealtimeMessage)
		close(closed)
		return closed, func() {}
	}

	stream := make(chan RealtimeMessage, realtimeBufferSize)
	d.mu.Lock()
	d.nextID++
	subscriberID := d.nextID
	if d.subscribers[userID] == nil {
		d.subscribers[userID] = make(map[int64]chan RealtimeMessage)
	}
	d.subscribers[userID][subscriberID] = stream
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregister(userID, subscriberID) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = d.clock().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, stream := range d.subscribers[message.UserID] {
		select {
		case stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of open streams for userID.
func (d *RealtimeDispatcher) SubscriberCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *RealtimeDispatcher) unregister(userID string, subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subscribers := d.subscribers[userID]
	if subscribers == nil {
		return
	}
	delete(subscribers, subscriberID)
	if len(subscribers) == 0 {
		delete(d.subscribers, userID)
	}
}
