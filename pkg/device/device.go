// Package device acquires and releases live frame sources.
//
// A Source opens a Stream; the Manager wraps each opened stream in a Feed so
// that releasing is idempotent and a released feed is never read again.
package device

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/nonverb/pkg/types"
)

// ErrReleased is returned when reading from a feed after release.
var ErrReleased = errors.New("device: feed released")

// Source is a capture device that can be opened for video.
type Source interface {
	// Open starts the device. It fails when no device exists or access is
	// denied.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open, continuously updating frame source.
type Stream interface {
	// Frame returns the most recent frame at native resolution.
	Frame() (image.Image, error)
	// Close stops every track of the stream.
	Close() error
}

// Feed is a stream owned by the Manager for the duration it is active.
type Feed struct {
	ID string

	mu       sync.Mutex
	stream   Stream
	released bool
}

// Active reports whether the feed can still deliver frames.
func (f *Feed) Active() bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.released
}

// Frame reads the current frame.
func (f *Feed) Frame() (image.Image, error) {
	if f == nil {
		return nil, ErrReleased
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil, ErrReleased
	}
	return f.stream.Frame()
}

// release closes the stream once; later calls report false.
func (f *Feed) release() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return false, nil
	}
	f.released = true
	return true, f.stream.Close()
}

// Manager hands out feeds from a single source.
type Manager struct {
	source Source
	logger *zap.Logger
}

// NewManager creates a manager for source.
func NewManager(source Source, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{source: source, logger: logger.Named("device")}
}

// Acquire opens the source. Failures are reported as DeviceUnavailable.
func (m *Manager) Acquire(ctx context.Context) (*Feed, error) {
	if m.source == nil {
		return nil, types.NewError(types.KindDeviceUnavailable, "device.acquire", fmt.Errorf("no capture source configured"))
	}
	stream, err := m.source.Open(ctx)
	if err != nil {
		return nil, types.NewError(types.KindDeviceUnavailable, "device.acquire", err)
	}
	feed := &Feed{ID: uuid.NewString(), stream: stream}
	m.logger.Info("feed acquired", zap.String("feed_id", feed.ID))
	return feed, nil
}

// Release stops the feed. Releasing a nil or already released feed is a
// no-op.
func (m *Manager) Release(feed *Feed) {
	if feed == nil {
		return
	}
	released, err := feed.release()
	if !released {
		return
	}
	if err != nil {
		m.logger.Warn("feed release reported an error", zap.String("feed_id", feed.ID), zap.Error(err))
		return
	}
	m.logger.Debug("feed released", zap.String("feed_id", feed.ID))
}
