package device

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
)

// ErrPermissionDenied mimics a user refusing camera access.
var ErrPermissionDenied = errors.New("device: permission denied")

// MockSource is an in-memory source for tests and demos. It produces
// gradient frames of the configured size and counts opens and closes.
type MockSource struct {
	Width  int
	Height int

	// OpenErr makes Open fail when set.
	OpenErr error

	mu      sync.Mutex
	streams []*MockStream
	opens   atomic.Int32
}

// NewMockSource creates a mock source producing width x height frames.
func NewMockSource(width, height int) *MockSource {
	return &MockSource{Width: width, Height: height}
}

// Open returns a new MockStream unless OpenErr is set.
func (m *MockSource) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.opens.Add(1)
	s := &MockStream{width: m.Width, height: m.Height}
	m.streams = append(m.streams, s)
	return s, nil
}

// SetOpenErr changes the error returned by later Open calls.
func (m *MockSource) SetOpenErr(err error) {
	m.mu.Lock()
	m.OpenErr = err
	m.mu.Unlock()
}

// Opens returns how many streams were opened.
func (m *MockSource) Opens() int {
	return int(m.opens.Load())
}

// Streams returns every stream opened so far.
func (m *MockSource) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockStream, len(m.streams))
	copy(out, m.streams)
	return out
}

// MockStream is a stream created by MockSource.
type MockStream struct {
	width, height int
	closes        atomic.Int32
}

// Frame returns a deterministic gradient frame.
func (s *MockStream) Frame() (image.Image, error) {
	if s.closes.Load() > 0 {
		return nil, ErrReleased
	}
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			img.Set(x, y, color.RGBA{uint8((x * 255) / s.width), uint8((y * 255) / s.height), 128, 255})
		}
	}
	return img, nil
}

// Close records the close.
func (s *MockStream) Close() error {
	s.closes.Add(1)
	return nil
}

// Closes returns how many times Close was called.
func (s *MockStream) Closes() int {
	return int(s.closes.Load())
}
