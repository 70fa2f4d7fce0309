package service

import (
	"sync"

	"chatbridge/internal/models"

	"github.com/sirupsen/logrus"
)

// subscriberBuffer bounds how far one event stream reader may fall
// behind before it starts losing events.
const subscriberBuffer = 16

// EventHub fans dispatch results out to admin stream subscribers.
// Publishing never blocks the orchestrator: a subscriber that is not
// keeping up loses events rather than stalling dispatch.
type EventHub struct {
	mu          sync.Mutex
	subscribers map[int]chan models.DispatchResult
	nextID      int
	closed      bool
	logger      *logrus.Logger
}

// NewEventHub creates an empty hub.
func NewEventHub(logger *logrus.Logger) *EventHub {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &EventHub{
		subscribers: make(map[int]chan models.DispatchResult),
		logger:      logger,
	}
}

// Subscribe returns a channel of future dispatch results and a cancel
// function that must be called when the subscriber goes away. After the
// hub is closed, Subscribe returns an already-closed channel.
func (h *EventHub) Subscribe() (<-chan models.DispatchResult, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		ch := make(chan models.DispatchResult)
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	ch := make(chan models.DispatchResult, subscriberBuffer)
	h.subscribers[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the result to every subscriber without blocking.
func (h *EventHub) Publish(result models.DispatchResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	for id, ch := range h.subscribers {
		select {
		case ch <- result:
		default:
			h.logger.WithField("subscriber", id).Debug("Event subscriber is not keeping up, dropping event")
		}
	}
}

// SubscriberCount returns how many stream subscribers are attached.
func (h *EventHub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close drops every subscriber and closes their channels. Subsequent
// publishes are discarded.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}
