package recognition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequenceClock(times ...time.Time) func() time.Time {
	var mu sync.Mutex
	i := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func newTestPipeline(t *testing.T, src *fakeSource, store *memStore, query Signature, enrolled ...Entry) (*Pipeline, *recordingRenderer) {
	t.Helper()
	ctx := context.Background()
	g, err := LoadGallery(ctx, store)
	require.NoError(t, err)
	for _, e := range enrolled {
		require.NoError(t, g.Upsert(ctx, e.Identity, e.Signature))
	}
	r := &recordingRenderer{}
	return &Pipeline{
		Open:      src.opener(),
		Extractor: constExtractor(query),
		Gallery:   g,
		Matcher:   Matcher{Tolerance: 0.5, Policy: MatchClosest},
		Recorder:  NewRecorder(store),
		Renderer:  r,
		Mode:      ModeSync,
	}, r
}

func TestPipelineThreeFramesRecordThreeEvents(t *testing.T) {
	store := newMemStore()
	src := newFakeSource(3)
	p, r := newTestPipeline(t, src, store, Signature{0.1, 0.2, 0.31}, entry(1, "Ann", 0.1, 0.2, 0.3))
	r.stopAfter = 3
	p.Clock = sequenceClock(at(9, 0, 1), at(9, 0, 2), at(9, 0, 3))

	sum, err := p.Run(context.Background())
	require.NoError(t, err)

	events := store.Events()
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, int64(1), ev.IdentityID)
		assert.Equal(t, "Ann", ev.Name)
		assert.Equal(t, "2024-01-01", ev.Date)
		assert.Equal(t, at(9, 0, i+1).Format(TimeLayout), ev.Time)
	}
	assert.Equal(t, 3, sum.Frames)
	assert.Equal(t, 3, sum.Recorded)
	assert.Equal(t, [][]string{{"Ann"}, {"Ann"}, {"Ann"}}, r.rendered())
	assert.True(t, src.isClosed())
	for _, f := range src.frames {
		assert.True(t, f.isClosed())
	}
	assert.Equal(t, StateStopped, p.State())
}

func TestPipelineUnknownFaceRecordsNothing(t *testing.T) {
	store := newMemStore()
	src := newFakeSource(2)
	p, r := newTestPipeline(t, src, store, Signature{5, 5, 5}, entry(1, "Ann", 0.1, 0.2, 0.3))

	sum, err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrCameraUnavailable)

	assert.Empty(t, store.Events())
	assert.Equal(t, [][]string{{UnknownLabel}, {UnknownLabel}}, r.rendered())
	assert.Equal(t, 2, sum.Faces)
	assert.Equal(t, 0, sum.Matched)
}

func TestPipelineCameraFailureReleasesSource(t *testing.T) {
	src := newFakeSource(0)
	p, _ := newTestPipeline(t, src, newMemStore(), Signature{1})

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrCameraUnavailable)
	assert.True(t, src.isClosed())
	assert.Equal(t, StateStopped, p.State())
}

func TestPipelineOpenFailure(t *testing.T) {
	p, _ := newTestPipeline(t, newFakeSource(0), newMemStore(), Signature{1})
	p.Open = func(ctx context.Context) (FrameSource, error) {
		return nil, errors.New("device busy")
	}

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrCameraUnavailable)
	assert.Contains(t, err.Error(), "device busy")
}

func TestPipelineStopsBetweenFramesOnCancel(t *testing.T) {
	src := newFakeSource(10)
	p, _ := newTestPipeline(t, src, newMemStore(), Signature{1})

	ctx, cancel := context.WithCancel(context.Background())
	p.Renderer = rendererFunc(func(Frame, []Annotation) (bool, error) {
		cancel()
		return false, nil
	})

	sum, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Frames)
	assert.True(t, src.isClosed())
	assert.True(t, src.frames[0].isClosed())
}

func TestPipelineAttendanceFailureContinues(t *testing.T) {
	store := newMemStore()
	store.failAdd = true
	src := newFakeSource(2)
	p, r := newTestPipeline(t, src, store, Signature{0.1, 0.2, 0.3}, entry(1, "Ann", 0.1, 0.2, 0.3))

	sum, err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrCameraUnavailable)
	assert.Equal(t, 2, sum.Frames)
	assert.Equal(t, 2, sum.Matched)
	assert.Equal(t, 0, sum.Recorded)
	assert.Equal(t, [][]string{{"Ann"}, {"Ann"}}, r.rendered())
}

func TestPipelineRendererErrorIsFatal(t *testing.T) {
	src := newFakeSource(5)
	p, _ := newTestPipeline(t, src, newMemStore(), Signature{1})
	p.Renderer = rendererFunc(func(Frame, []Annotation) (bool, error) {
		return false, errors.New("window closed")
	})

	sum, err := p.Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCameraUnavailable)
	assert.Equal(t, 1, sum.Frames)
	assert.True(t, src.isClosed())
}

func TestPipelineStateSequence(t *testing.T) {
	src := newFakeSource(1)
	p, r := newTestPipeline(t, src, newMemStore(), Signature{1})
	r.stopAfter = 1

	var states []State
	p.OnState = func(s State) { states = append(states, s) }

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []State{
		StateIdle, StateCapturing, StateDetecting, StateMatching, StateRecording, StateRendering, StateStopped,
	}, states)
}

func TestPipelineLatestModeAccountsForEveryFrame(t *testing.T) {
	store := newMemStore()
	src := newFakeSource(5)
	p, _ := newTestPipeline(t, src, store, Signature{0.1, 0.2, 0.3}, entry(1, "Ann", 0.1, 0.2, 0.3))
	p.Mode = ModeLatest

	sum, err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrCameraUnavailable)

	assert.Equal(t, 5, sum.Frames+sum.Dropped)
	assert.GreaterOrEqual(t, sum.Frames, 1)
	assert.Equal(t, sum.Frames, sum.Matched)
	assert.Equal(t, sum.Frames, sum.Recorded)
	assert.Len(t, store.Events(), sum.Recorded)
	assert.True(t, src.isClosed())
	for _, f := range src.frames {
		assert.True(t, f.isClosed())
	}
}

func TestPipelineLatestModeStopFromRenderer(t *testing.T) {
	src := newFakeSource(50)
	p, r := newTestPipeline(t, src, newMemStore(), Signature{1})
	p.Mode = ModeLatest
	r.stopAfter = 1

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Frames)
	assert.True(t, src.isClosed())
	src.mu.Lock()
	read := src.frames[:src.next]
	src.mu.Unlock()
	for _, f := range read {
		assert.True(t, f.isClosed())
	}
}

func TestPipelineSkipsFrameOnExtractorError(t *testing.T) {
	src := newFakeSource(2)
	p, r := newTestPipeline(t, src, newMemStore(), Signature{1})
	calls := 0
	p.Extractor = ExtractorFunc(func(ctx context.Context, frame Frame) ([]Detection, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("inference failed")
		}
		return nil, nil
	})

	sum, err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrCameraUnavailable)
	assert.Equal(t, 1, sum.Skipped)
	assert.Len(t, r.rendered(), 1)
	assert.True(t, src.frames[0].isClosed())
}

func TestTimeoutExtractor(t *testing.T) {
	release := make(chan struct{})
	inner := ExtractorFunc(func(ctx context.Context, frame Frame) ([]Detection, error) {
		<-release
		return nil, nil
	})
	ext := NewTimeoutExtractor(inner, 20*time.Millisecond)

	slow := &fakeFrame{}
	_, err := ext.Extract(context.Background(), slow)
	require.ErrorIs(t, err, ErrExtractTimeout)

	_, err = ext.Extract(context.Background(), &fakeFrame{})
	require.ErrorIs(t, err, ErrExtractorBusy)

	close(release)
	assert.Eventually(t, slow.isClosed, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, err := ext.Extract(context.Background(), &fakeFrame{})
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestNewTimeoutExtractorDisabled(t *testing.T) {
	inner := constExtractor(Signature{1})
	_, wrapped := NewTimeoutExtractor(inner, 0).(*TimeoutExtractor)
	assert.False(t, wrapped)
	_, wrapped = NewTimeoutExtractor(inner, time.Second).(*TimeoutExtractor)
	assert.True(t, wrapped)
}

type rendererFunc func(Frame, []Annotation) (bool, error)

func (f rendererFunc) Render(frame Frame, a []Annotation) (bool, error) { return f(frame, a) }

func TestFrameSlotLatestWins(t *testing.T) {
	s := newFrameSlot()
	a, b := &fakeFrame{n: 1}, &fakeFrame{n: 2}
	s.put(a)
	s.put(b)

	got, err := s.take(context.Background())
	require.NoError(t, err)
	assert.Same(t, b, got)
	assert.True(t, a.isClosed())
	assert.Equal(t, 1, s.droppedCount())

	s.fail(ErrCameraUnavailable)
	_, err = s.take(context.Background())
	assert.ErrorIs(t, err, ErrCameraUnavailable)
}
