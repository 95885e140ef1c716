package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strings"
	"sync"
	"time"
)

// State is the orchestrator's position in its per-run state machine.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateDetecting
	StateMatching
	StateRecording
	StateRendering
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateDetecting:
		return "detecting"
	case StateMatching:
		return "matching"
	case StateRecording:
		return "recording"
	case StateRendering:
		return "rendering"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// FrameSource produces frames from a camera. Read returns an error once no
// more frames can be produced.
type FrameSource interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// SourceOpener acquires a frame source for one run.
type SourceOpener func(ctx context.Context) (FrameSource, error)

// Annotation describes one detected face for rendering.
type Annotation struct {
	Box      image.Rectangle
	Label    string
	Result   Result
	Recorded bool
}

// Renderer displays an annotated frame. Returning stop ends the run.
type Renderer interface {
	Render(frame Frame, annotations []Annotation) (stop bool, err error)
}

// PipelineMode selects how capture and processing are scheduled.
type PipelineMode string

const (
	// ModeSync captures and processes one frame at a time.
	ModeSync PipelineMode = "sync"
	// ModeLatest captures continuously and processes the newest frame, dropping older ones.
	ModeLatest PipelineMode = "latest"
)

func ParsePipelineMode(s string) (PipelineMode, error) {
	switch PipelineMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSync:
		return ModeSync, nil
	case ModeLatest:
		return ModeLatest, nil
	}
	return "", fmt.Errorf("unknown pipeline mode %q (want sync or latest)", s)
}

// Summary counts what happened during a run.
type Summary struct {
	Frames   int `json:"frames"`
	Dropped  int `json:"dropped"`
	Skipped  int `json:"skipped"`
	Faces    int `json:"faces"`
	Matched  int `json:"matched"`
	Recorded int `json:"recorded"`
}

// Pipeline wires extractor, matcher and recorder to a camera and a display.
type Pipeline struct {
	Open      SourceOpener
	Extractor Extractor
	Gallery   *Gallery
	Matcher   Matcher
	Recorder  *Recorder
	Renderer  Renderer
	Mode      PipelineMode
	Clock     func() time.Time
	OnState   func(State)

	mu    sync.Mutex
	state State
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	if p.OnState != nil {
		p.OnState(s)
	}
}

func (p *Pipeline) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

// Run opens the frame source and processes frames until the renderer asks to
// stop, ctx is cancelled or the camera fails. The source is always closed
// before Run returns. A camera failure returns an error wrapping
// ErrCameraUnavailable; a requested stop returns nil.
func (p *Pipeline) Run(ctx context.Context) (sum Summary, err error) {
	if p.Open == nil || p.Extractor == nil {
		return sum, errors.New("pipeline requires a frame source and an extractor")
	}
	p.setState(StateIdle)
	defer p.setState(StateStopped)

	src, err := p.Open(ctx)
	if err != nil {
		return sum, cameraErr(err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Printf("pipeline: failed to release camera: %v", cerr)
		}
	}()

	log.Printf("pipeline: recognition started (mode %s, %d identities)", p.mode(), p.Gallery.Len())
	defer func() {
		log.Printf("pipeline: recognition stopped after %d frames, %d events recorded", sum.Frames, sum.Recorded)
	}()

	if p.mode() == ModeLatest {
		return p.runLatest(ctx, src)
	}
	return p.runSync(ctx, src)
}

func (p *Pipeline) mode() PipelineMode {
	if p.Mode == "" {
		return ModeSync
	}
	return p.Mode
}

func (p *Pipeline) runSync(ctx context.Context, src FrameSource) (Summary, error) {
	var sum Summary
	for {
		if ctx.Err() != nil {
			return sum, nil
		}
		p.setState(StateCapturing)
		frame, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return sum, nil
			}
			return sum, cameraErr(err)
		}
		stop, err := p.processFrame(ctx, frame, &sum)
		if err != nil || stop {
			return sum, err
		}
	}
}

func (p *Pipeline) runLatest(ctx context.Context, src FrameSource) (sum Summary, err error) {
	slot := newFrameSlot()
	captureCtx, cancelCapture := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for captureCtx.Err() == nil {
			frame, err := src.Read(captureCtx)
			if err != nil {
				if captureCtx.Err() == nil {
					slot.fail(cameraErr(err))
				}
				return
			}
			if captureCtx.Err() != nil {
				_ = frame.Close()
				return
			}
			slot.put(frame)
		}
	}()
	defer func() {
		cancelCapture()
		wg.Wait()
		slot.drain()
		sum.Dropped = slot.droppedCount()
	}()

	for {
		p.setState(StateCapturing)
		frame, err := slot.take(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return sum, nil
			}
			return sum, err
		}
		stop, err := p.processFrame(ctx, frame, &sum)
		if err != nil || stop {
			return sum, err
		}
	}
}

// processFrame runs detect, match, record and render for one frame and
// releases it.
func (p *Pipeline) processFrame(ctx context.Context, frame Frame, sum *Summary) (bool, error) {
	owned := true
	defer func() {
		if owned {
			_ = frame.Close()
		}
	}()

	sum.Frames++
	now := p.now()

	p.setState(StateDetecting)
	dets, err := p.Extractor.Extract(ctx, frame)
	if err != nil {
		if errors.Is(err, ErrExtractTimeout) {
			owned = false
		}
		sum.Skipped++
		log.Printf("pipeline: skipping frame %d: %v", sum.Frames, err)
		return false, nil
	}

	p.setState(StateMatching)
	annotations := make([]Annotation, 0, len(dets))
	for _, det := range dets {
		if !det.Signature.Usable() {
			continue
		}
		sum.Faces++
		res := p.Matcher.Match(det.Signature, p.Gallery)
		if res.Known {
			sum.Matched++
		}
		annotations = append(annotations, Annotation{Box: det.Box, Label: res.Label(), Result: res})
	}

	p.setState(StateRecording)
	if p.Recorder != nil {
		for i := range annotations {
			a := &annotations[i]
			if !a.Result.Known {
				continue
			}
			recorded, err := p.Recorder.RecordIfDue(ctx, a.Result.ID, a.Result.Name, now)
			if err != nil {
				log.Printf("pipeline: attendance for %s (id %d) not recorded: %v", a.Result.Name, a.Result.ID, err)
				continue
			}
			if recorded {
				a.Recorded = true
				sum.Recorded++
			}
		}
	}

	p.setState(StateRendering)
	if p.Renderer == nil {
		return false, nil
	}
	stop, err := p.Renderer.Render(frame, annotations)
	if err != nil {
		return true, fmt.Errorf("failed to render frame: %w", err)
	}
	return stop, nil
}

func cameraErr(err error) error {
	if errors.Is(err, ErrCameraUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
}
