// Package hooks lets callers observe, and for Pre events veto, the phases of
// a snapshot run.
package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// HookManager dispatches events to registered listeners.
type HookManager interface {
	// Register adds a listener for one event type.
	Register(eventType EventType, listener HookListener)
	// Trigger runs the listeners of event in priority order. Listeners of
	// Pre events always run synchronously and the first error is returned;
	// errors from any other listener are only logged.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for asynchronous listeners to finish.
	Stop()
}

// HookListener receives events.
type HookListener interface {
	// OnEvent handles one event. An error from a Pre event aborts the
	// operation that raised it.
	OnEvent(ctx context.Context, event HookEvent) error

	// Priority orders listeners of the same event. Lower runs first.
	Priority() int

	// IsAsync asks for the listener to run on its own goroutine. It is
	// ignored for Pre events.
	IsAsync() bool
}

// ListenerFunc adapts a function to a synchronous HookListener.
type ListenerFunc struct {
	Fn    func(ctx context.Context, event HookEvent) error
	Order int
}

func (l ListenerFunc) OnEvent(ctx context.Context, event HookEvent) error { return l.Fn(ctx, event) }
func (l ListenerFunc) Priority() int                                      { return l.Order }
func (l ListenerFunc) IsAsync() bool                                      { return false }

// RegisterAll registers listener for each of eventTypes.
func RegisterAll(m HookManager, listener HookListener, eventTypes ...EventType) {
	for _, et := range eventTypes {
		m.Register(et, listener)
	}
}

type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is the HookManager used by the engine.
type DefaultHookManager struct {
	// Listener slices are kept sorted by priority.
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewHookManager creates an empty manager. A nil logger discards output.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger.With("component", "HookManager"),
	}
}

// Register inserts listener after every listener with the same or lower
// priority, so equal priorities run in registration order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{listener: listener, priority: listener.Priority()}
	l := m.listeners[eventType]
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority > item.priority
	})
	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item
	m.listeners[eventType] = l
}

// Trigger implements HookManager.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners := m.listeners[event.Type()]
	m.mu.RUnlock()
	if len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")
	for _, item := range listeners {
		if !isPreHook && item.listener.IsAsync() {
			m.wg.Add(1)
			go func(item *listenerWithPriority) {
				defer m.wg.Done()
				if err := item.listener.OnEvent(ctx, event); err != nil {
					m.logger.Error("Asynchronous listener failed", "event", event.Type(), "priority", item.priority, "error", err)
				}
			}(item)
			continue
		}

		if err := item.listener.OnEvent(ctx, event); err != nil {
			if isPreHook {
				return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
			}
			m.logger.Error("Listener failed", "event", event.Type(), "priority", item.priority, "error", err)
		}
	}
	return nil
}

// Stop implements HookManager.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
