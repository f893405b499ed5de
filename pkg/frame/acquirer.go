// Package frame freezes single images out of live feeds or uploaded files.
package frame

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/menta2k/nonverb/pkg/device"
	"github.com/menta2k/nonverb/pkg/raster"
	"github.com/menta2k/nonverb/pkg/types"
)

// Acquirer produces raster buffers. It is the only reader of a device feed.
type Acquirer struct {
	devices *device.Manager
	logger  *zap.Logger
}

// NewAcquirer creates an acquirer that releases feeds through devices.
func NewAcquirer(devices *device.Manager, logger *zap.Logger) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acquirer{devices: devices, logger: logger.Named("frame")}
}

// CaptureFromFeed reads the current frame at the feed's native resolution
// and releases the feed. It fails with NoFeed when the feed is missing or
// already released; any other read failure also releases the feed.
func (a *Acquirer) CaptureFromFeed(feed *device.Feed) (*raster.Buffer, error) {
	if !feed.Active() {
		return nil, types.NewError(types.KindNoFeed, "frame.capture_feed", nil)
	}

	img, err := feed.Frame()
	a.devices.Release(feed)
	if err != nil {
		return nil, types.NewError(types.KindNoFeed, "frame.capture_feed", err)
	}

	buf := raster.New(img, "feed")
	a.logger.Debug("frame captured",
		zap.String("feed_id", feed.ID),
		zap.Int("width", buf.Width()),
		zap.Int("height", buf.Height()),
	)
	return buf, nil
}

// CaptureFromFile decodes image bytes at their native resolution.
func (a *Acquirer) CaptureFromFile(data []byte) (*raster.Buffer, error) {
	img, format, err := raster.Decode(data)
	if err != nil {
		return nil, types.NewError(types.KindDecodeError, "frame.capture_file", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, types.NewError(types.KindDecodeError, "frame.capture_file", fmt.Errorf("image has no pixels"))
	}

	buf := raster.New(img, format)
	a.logger.Debug("file decoded",
		zap.String("format", format),
		zap.Int("bytes", len(data)),
		zap.Int("width", buf.Width()),
		zap.Int("height", buf.Height()),
	)
	return buf, nil
}
