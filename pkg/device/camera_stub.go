//go:build !gocv

package device

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// CameraSource reports that webcam support was not compiled in. Build with
// -tags gocv to enable it.
type CameraSource struct {
	cfg CameraConfig
}

// NewCameraSource returns a source whose Open always fails.
func NewCameraSource(cfg CameraConfig, logger *zap.Logger) Source {
	return &CameraSource{cfg: cfg}
}

// Open returns an error on builds without gocv.
func (c *CameraSource) Open(ctx context.Context) (Stream, error) {
	return nil, fmt.Errorf("camera %d: built without gocv support", c.cfg.Index)
}
