// Package events provides the kernel.event_dispatcher service: a small
// synchronous event dispatcher in the shape of Symfony's EventDispatcher.
package events

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Event is what listeners receive. A listener may stop propagation, which
// skips every lower-priority listener for the same dispatch.
//
//	// Symfony: $event->stopPropagation()
type Event struct {
	Name string
	Data any

	stopped bool
}

// StopPropagation keeps the remaining listeners from running.
func (e *Event) StopPropagation() {
	e.stopped = true
}

// IsPropagationStopped reports whether a listener stopped this event.
func (e *Event) IsPropagationStopped() bool {
	return e.stopped
}

// Listener handles one dispatched event. Returning an error aborts the
// dispatch; later listeners do not run.
type Listener func(ctx context.Context, e *Event) error

type registeredListener struct {
	priority int
	fn       Listener
}

// Dispatcher routes events to listeners by name. Listeners run sorted by
// priority, highest first; equal priorities keep registration order.
//
//	// Symfony: $dispatcher->addListener('kernel.request', $fn, 10)
//	d.AddListener("kernel.request", fn, 10)
//
// Safe for concurrent use.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]registeredListener
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		listeners: make(map[string][]registeredListener),
	}
}

// AddListener registers a listener for an event name. Higher priority runs
// earlier.
func (d *Dispatcher) AddListener(name string, fn Listener, priority int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[name] = append(d.listeners[name], registeredListener{priority: priority, fn: fn})
}

// RemoveListeners drops every listener for an event name.
func (d *Dispatcher) RemoveListeners(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listeners, name)
}

// Dispatch runs the listeners for an event name against fresh event state.
// The returned Event carries whatever mutations listeners applied to Data.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, data any) (*Event, error) {
	d.mu.RLock()
	registered := d.listeners[name]
	ordered := make([]registeredListener, len(registered))
	copy(ordered, registered)
	d.mu.RUnlock()

	// stable keeps registration order within a priority
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].priority > ordered[j].priority })

	event := &Event{Name: name, Data: data}
	for _, l := range ordered {
		if err := ctx.Err(); err != nil {
			return event, err
		}
		if err := l.fn(ctx, event); err != nil {
			return event, fmt.Errorf("events: listener for %s: %w", strconv.Quote(name), err)
		}
		if event.IsPropagationStopped() {
			break
		}
	}
	return event, nil
}

// HasListeners reports whether any listener is registered for an event name.
func (d *Dispatcher) HasListeners(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[name]) > 0
}

// ListenerCount returns the number of listeners for an event name.
func (d *Dispatcher) ListenerCount(name string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[name])
}
