package recognition

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"
)

// Frame is one captured image. Implementations own native resources and
// must release them in Close.
type Frame interface {
	Close() error
}

// Detection is a face found in a frame.
type Detection struct {
	Box       image.Rectangle
	Signature Signature
}

// Extractor turns a frame into zero or more detections.
type Extractor interface {
	Extract(ctx context.Context, frame Frame) ([]Detection, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, frame Frame) ([]Detection, error)

func (f ExtractorFunc) Extract(ctx context.Context, frame Frame) ([]Detection, error) {
	return f(ctx, frame)
}

// TimeoutExtractor bounds each call to Inner. Model inference cannot be
// interrupted, so a timed-out call keeps running in the background and
// further calls fail with ErrExtractorBusy until it finishes. On timeout the
// extractor takes ownership of the frame and closes it when Inner returns;
// the returned error wraps ErrExtractTimeout.
type TimeoutExtractor struct {
	Inner   Extractor
	Timeout time.Duration

	mu        sync.Mutex
	inFlight  bool
	abandoned bool
}

func NewTimeoutExtractor(inner Extractor, timeout time.Duration) Extractor {
	if timeout <= 0 {
		return inner
	}
	return &TimeoutExtractor{Inner: inner, Timeout: timeout}
}

type extractResult struct {
	dets []Detection
	err  error
}

func (t *TimeoutExtractor) Extract(ctx context.Context, frame Frame) ([]Detection, error) {
	t.mu.Lock()
	if t.inFlight {
		t.mu.Unlock()
		return nil, ErrExtractorBusy
	}
	t.inFlight = true
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	done := make(chan extractResult, 1)
	go func() {
		dets, err := t.Inner.Extract(ctx, frame)
		t.mu.Lock()
		t.inFlight = false
		abandoned := t.abandoned
		t.abandoned = false
		t.mu.Unlock()
		if abandoned {
			_ = frame.Close()
			return
		}
		done <- extractResult{dets: dets, err: err}
	}()

	select {
	case res := <-done:
		return res.dets, res.err
	case <-ctx.Done():
		t.mu.Lock()
		defer t.mu.Unlock()
		if !t.inFlight {
			// finished while we were timing out
			res := <-done
			return res.dets, res.err
		}
		t.abandoned = true
		return nil, fmt.Errorf("extract exceeded %s: %w", t.Timeout, ErrExtractTimeout)
	}
}
