package recognition

import (
	"context"
	"sync"
)

// frameSlot is a single-slot buffer between capture and processing.
// A newer frame replaces (and closes) an unconsumed older one.
type frameSlot struct {
	mu      sync.Mutex
	frame   Frame
	err     error
	dropped int
	ready   chan struct{}
}

func newFrameSlot() *frameSlot {
	return &frameSlot{ready: make(chan struct{}, 1)}
}

func (s *frameSlot) put(f Frame) {
	s.mu.Lock()
	if s.frame != nil {
		_ = s.frame.Close()
		s.dropped++
	}
	s.frame = f
	s.mu.Unlock()
	s.notify()
}

// fail records a terminal capture error; take returns it once the slot is empty.
func (s *frameSlot) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.notify()
}

func (s *frameSlot) notify() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *frameSlot) take(ctx context.Context) (Frame, error) {
	for {
		s.mu.Lock()
		if f := s.frame; f != nil {
			s.frame = nil
			s.mu.Unlock()
			return f, nil
		}
		if err := s.err; err != nil {
			s.mu.Unlock()
			return nil, err
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// drain closes any frame left in the slot.
func (s *frameSlot) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame != nil {
		_ = s.frame.Close()
		s.frame = nil
	}
}

func (s *frameSlot) droppedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
