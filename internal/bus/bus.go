// Package bus passes action messages between isolated parts of the client.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("bus closed")

// Handler reacts to one message.
type Handler func(ctx context.Context, msg Message)

// Bus delivers published messages to the handlers subscribed to their
// action.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(action string, h Handler) (unsubscribe func())
	Close() error
}

type subscription struct {
	id int
	h  Handler
}

// Local is an in-process Bus. Handlers run synchronously on the
// publishing goroutine, in subscription order.
type Local struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID int
	closed bool
	logger *slog.Logger
}

// NewLocal creates an empty in-process bus.
func NewLocal(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		subs:   make(map[string][]subscription),
		logger: logger,
	}
}

// Publish delivers msg to every handler subscribed to msg.Action.
func (b *Local) Publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := append([]subscription(nil), b.subs[msg.Action]...)
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug("no subscribers for action", "action", msg.Action)
		return nil
	}
	for _, s := range subs {
		s.h(ctx, msg)
	}
	return nil
}

// Subscribe registers h for action. The returned func removes it.
func (b *Local) Subscribe(action string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[action] = append(b.subs[action], subscription{id: id, h: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[action]
		for i, s := range subs {
			if s.id == id {
				b.subs[action] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Close drops all subscriptions; later publishes fail with ErrClosed.
func (b *Local) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string][]subscription)
	return nil
}
