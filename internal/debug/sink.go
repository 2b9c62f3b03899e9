package debug

import (
	"sync"

	"github.com/dshills/dbgcore/internal/debug/engine"
)

// engineSink receives an engine's messages on any goroutine and forwards
// them to the dispatcher in posting order. Messages posted before the engine
// is registered are held back until attach.
type engineSink struct {
	m    *Manager
	info *engineInfo

	mu       sync.Mutex
	attached bool
	closed   bool
	buffered []engine.Message
}

// Post implements engine.Sink.
func (s *engineSink) Post(msg engine.Message) {
	if msg == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return
	case !s.attached:
		s.buffered = append(s.buffered, msg)
	default:
		s.forward(msg)
	}
}

// attach starts forwarding. Called on the dispatcher by register.
func (s *engineSink) attach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.attached {
		return
	}
	s.attached = true
	for _, msg := range s.buffered {
		s.forward(msg)
	}
	s.buffered = nil
}

// close stops accepting messages.
func (s *engineSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buffered = nil
}

func (s *engineSink) forward(msg engine.Message) {
	m, info := s.m, s.info
	m.d.BeginInvoke(func() { m.onMessage(info, msg) })
}
