package debug

import "sync"

// Event is a list of subscribers for one kind of notification. Subscribing
// and unsubscribing are safe from any goroutine. Raise is called by the
// dispatcher only.
type Event[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers []eventHandler[T]
}

type eventHandler[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it.
func (e *Event[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.handlers = append(e.handlers, eventHandler[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

func (e *Event[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, h := range e.handlers {
		if h.id == id {
			e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
			return
		}
	}
}

// Len returns the number of subscribers.
func (e *Event[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}

// Raise calls every subscriber registered at the time of the call, in
// subscription order.
func (e *Event[T]) Raise(args T) {
	e.mu.Lock()
	handlers := e.handlers
	e.mu.Unlock()

	for _, h := range handlers {
		h.fn(args)
	}
}
