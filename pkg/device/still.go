package device

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/menta2k/nonverb/pkg/raster"
)

// StillSource serves a single image as a live feed. It lets the live
// capture path run on machines without a camera.
type StillSource struct {
	Path string
}

// NewStillSource creates a source that replays the image at path.
func NewStillSource(path string) *StillSource {
	return &StillSource{Path: path}
}

// Open loads the image.
func (s *StillSource) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read still image: %w", err)
	}
	img, _, err := raster.Decode(data)
	if err != nil {
		return nil, err
	}
	return &stillStream{img: img}, nil
}

type stillStream struct {
	mu     sync.Mutex
	img    image.Image
	closed bool
}

func (s *stillStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrReleased
	}
	return s.img, nil
}

func (s *stillStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
