package debug

import (
	"io"

	"github.com/google/uuid"
	"github.com/modern-go/reflect2"
)

// Object is implemented by every debugger entity. Objects are created,
// mutated and closed on the dispatcher only.
type Object interface {
	// ID returns the object's identity.
	ID() uuid.UUID

	// IsClosed reports whether Close has run.
	IsClosed() bool

	// Close releases the object. Closing a closed object is a no-op.
	Close()

	// OnClosed registers fn to run once when the object closes. The returned
	// function cancels the registration.
	OnClosed(fn func()) (cancel func())

	base() *Base
}

// Base carries the identity, metadata, extension data and close lifecycle
// shared by all objects. It is embedded by the concrete entity types.
type Base struct {
	id       uuid.UUID
	closed   bool
	metadata map[string]string
	data     map[uintptr]any
	hooks    []closeHook
	hookID   int
}

type closeHook struct {
	id int
	fn func()
}

func newBase() Base {
	return Base{id: uuid.New()}
}

// ID implements Object.
func (b *Base) ID() uuid.UUID { return b.id }

// IsClosed implements Object.
func (b *Base) IsClosed() bool { return b.closed }

func (b *Base) base() *Base { return b }

// OnClosed implements Object. Registering on a closed object runs nothing.
func (b *Base) OnClosed(fn func()) func() {
	if b.closed {
		return func() {}
	}
	b.hookID++
	id := b.hookID
	b.hooks = append(b.hooks, closeHook{id: id, fn: fn})
	return func() {
		for i, h := range b.hooks {
			if h.id == id {
				b.hooks = append(b.hooks[:i:i], b.hooks[i+1:]...)
				return
			}
		}
	}
}

// Metadata returns an engine-assigned metadata value.
func (b *Base) Metadata(key string) (string, bool) {
	v, ok := b.metadata[key]
	return v, ok
}

// SetMetadata records an engine-assigned metadata value.
func (b *Base) SetMetadata(key, value string) {
	if b.metadata == nil {
		b.metadata = make(map[string]string)
	}
	b.metadata[key] = value
}

// finish marks the object closed, runs the close hooks and releases extension
// data. It reports false if the object was already closed.
func (b *Base) finish() bool {
	if b.closed {
		return false
	}
	b.closed = true

	hooks := b.hooks
	b.hooks = nil
	for _, h := range hooks {
		h.fn()
	}

	data := b.data
	b.data = nil
	for _, v := range data {
		closeData(v)
	}
	return true
}

func closeData(v any) {
	switch c := v.(type) {
	case io.Closer:
		_ = c.Close()
	case interface{ Close() }:
		c.Close()
	}
}

// GetOrCreateData returns the extension value of type T attached to o,
// calling create the first time. The value is released when o closes; values
// implementing io.Closer or Close() are closed. On a closed object create's
// result is returned without being stored.
func GetOrCreateData[T any](o Object, create func() T) T {
	b := o.base()
	key := reflect2.RTypeOf((*T)(nil))
	if v, ok := b.data[key]; ok {
		return v.(T)
	}

	v := create()
	if b.closed {
		return v
	}
	if b.data == nil {
		b.data = make(map[uintptr]any)
	}
	b.data[key] = v
	return v
}

// TryGetData returns the extension value of type T attached to o, if any.
func TryGetData[T any](o Object) (T, bool) {
	v, ok := o.base().data[reflect2.RTypeOf((*T)(nil))]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}
