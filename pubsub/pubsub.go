// Package pubsub fans events out to any number of subscribers without
// letting a slow one hold up the publisher.
package pubsub

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var plog zerolog.Logger

func init() {
	plog = log.With().Str("component", "pubsub").Logger()
}

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

type SubscriptionID int64

type Pubsub[T any] struct {
	nextID      SubscriptionID
	subscribers map[SubscriptionID]chan T
	closed      bool
	mu          sync.RWMutex
}

func New[T any]() *Pubsub[T] {
	return &Pubsub[T]{
		subscribers: make(map[SubscriptionID]chan T),
	}
}

// Subscribe registers a new subscriber with room for buffer queued
// messages. The channel is closed on Unsubscribe or Close.
func (ps *Pubsub[T]) Subscribe(buffer int) (SubscriptionID, <-chan T) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan T, buffer)
	if ps.closed {
		close(ch)
		return -1, ch
	}

	id := ps.nextID
	ps.subscribers[id] = ch
	ps.nextID++

	return id, ch
}

func (ps *Pubsub[T]) Unsubscribe(id SubscriptionID) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ch, ok := ps.subscribers[id]
	if !ok {
		return
	}

	delete(ps.subscribers, id)
	close(ch)
}

// Publish queues msg for every subscriber. A subscriber whose queue is
// full misses the message.
func (ps *Pubsub[T]) Publish(msg T) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for id, ch := range ps.subscribers {
		select {
		case ch <- msg:
		default:
			plog.Warn().
				Int64("subscription_id", int64(id)).
				Interface("message", msg).
				Msg("Message dropped, channel full")
		}
	}
}

func (ps *Pubsub[T]) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.subscribers)
}

// Close unsubscribes everyone; later subscribers get a closed channel.
func (ps *Pubsub[T]) Close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for id, ch := range ps.subscribers {
		delete(ps.subscribers, id)
		close(ch)
	}
	ps.closed = true
}
