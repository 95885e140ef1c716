package recognition

import (
	"context"
	"errors"
	"image"
	"sort"
	"sync"
)

var errDiskFull = errors.New("disk full")

// memStore keeps signatures as encoded blobs so round trips go through the
// same byte form as the database.
type memStore struct {
	mu       sync.Mutex
	rows     map[int64]memRow
	events   []AttendanceEvent
	failSave bool
	failLoad bool
	failAdd  bool
	saves    int
}

type memRow struct {
	name string
	blob []byte
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]memRow)}
}

func (m *memStore) LoadSignatures(ctx context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoad {
		return nil, errDiskFull
	}
	var out []Entry
	for id, row := range m.rows {
		sig, err := DecodeSignature(row.blob)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Identity: Identity{ID: id, Name: row.name}, Signature: sig})
	}
	// map order is random; the gallery must sort regardless
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) SaveSignature(ctx context.Context, id Identity, sig Signature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errDiskFull
	}
	m.saves++
	m.rows[id.ID] = memRow{name: id.Name, blob: sig.Encode()}
	return nil
}

func (m *memStore) DeleteSignature(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errDiskFull
	}
	delete(m.rows, id)
	return nil
}

func (m *memStore) AppendAttendance(ctx context.Context, ev AttendanceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAdd {
		return errDiskFull
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) HasAttendanceOn(ctx context.Context, id int64, date string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.IdentityID == id && ev.Date == date {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Events() []AttendanceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AttendanceEvent(nil), m.events...)
}

type fakeFrame struct {
	n      int
	mu     sync.Mutex
	closed bool
}

func (f *fakeFrame) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeFrame) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeSource yields the given frames and then fails like an unplugged camera.
type fakeSource struct {
	mu     sync.Mutex
	frames []*fakeFrame
	next   int
	closed bool
	endErr error
}

func newFakeSource(n int) *fakeSource {
	s := &fakeSource{endErr: errors.New("no frame")}
	for i := 0; i < n; i++ {
		s.frames = append(s.frames, &fakeFrame{n: i})
	}
	return s
}

func (s *fakeSource) Read(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("read after close")
	}
	if s.next >= len(s.frames) {
		return nil, s.endErr
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSource) opener() SourceOpener {
	return func(ctx context.Context) (FrameSource, error) { return s, nil }
}

// constExtractor returns one detection with the same signature for every frame.
func constExtractor(sig Signature) Extractor {
	return ExtractorFunc(func(ctx context.Context, frame Frame) ([]Detection, error) {
		return []Detection{{Box: image.Rect(10, 20, 110, 140), Signature: sig}}, nil
	})
}

type recordingRenderer struct {
	mu        sync.Mutex
	labels    [][]string
	stopAfter int
}

func (r *recordingRenderer) Render(frame Frame, annotations []Annotation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var labels []string
	for _, a := range annotations {
		labels = append(labels, a.Label)
	}
	r.labels = append(r.labels, labels)
	return r.stopAfter > 0 && len(r.labels) >= r.stopAfter, nil
}

func (r *recordingRenderer) rendered() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.labels...)
}
