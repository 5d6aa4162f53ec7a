// Package events fans delivery log entries out to live stream subscribers.
package events

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/request-mailer/internal/deliverylog"
	"github.com/sungwon/request-mailer/internal/metrics"
)

const DefaultBuffer = 64

// Predicate decides whether a subscriber receives an entry.
type Predicate func(deliverylog.Entry) bool

// All matches every entry.
func All() Predicate {
	return func(deliverylog.Entry) bool { return true }
}

// OwnedBy matches entries written for userID.
func OwnedBy(userID uuid.UUID) Predicate {
	return func(e deliverylog.Entry) bool { return e.UserID == userID }
}

// ForViewer is All for privileged viewers and OwnedBy otherwise.
func ForViewer(userID uuid.UUID, privileged bool) Predicate {
	if privileged {
		return All()
	}
	return OwnedBy(userID)
}

// Publisher is what the dispatch path publishes to.
type Publisher interface {
	Publish(e deliverylog.Entry)
}

type Subscription struct {
	ch     chan deliverylog.Entry
	pred   Predicate
	broker *Broker
}

// C yields matching entries. It is closed on Close, Unsubscribe, or when the
// subscriber falls behind and is dropped.
func (s *Subscription) C() <-chan deliverylog.Entry {
	return s.ch
}

func (s *Subscription) Close() {
	s.broker.Unsubscribe(s)
}

// Broker delivers published entries to every subscriber whose predicate
// matches. Publish never blocks; there is no replay.
type Broker struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	logger zerolog.Logger
}

func NewBroker(buffer int, logger zerolog.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

func (b *Broker) Subscribe(pred Predicate) *Subscription {
	if pred == nil {
		pred = All()
	}
	sub := &Subscription{
		ch:     make(chan deliverylog.Entry, b.buffer),
		pred:   pred,
		broker: b,
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	metrics.StreamSubscribers.Inc()
	return sub
}

// Unsubscribe is idempotent.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

func (b *Broker) removeLocked(sub *Subscription) bool {
	if _, ok := b.subs[sub]; !ok {
		return false
	}
	delete(b.subs, sub)
	close(sub.ch)
	metrics.StreamSubscribers.Dec()
	return true
}

// Publish hands e to every matching subscriber. A subscriber with a full
// buffer is dropped.
func (b *Broker) Publish(e deliverylog.Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		if !sub.pred(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.removeLocked(sub)
			metrics.StreamEventsDroppedTotal.Inc()
			b.logger.Warn().
				Int64("log_id", e.ID).
				Msg("stream subscriber fell behind, dropping")
		}
	}
}

// Len reports the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
