//go:build gocv

package device

import (
	"context"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// CameraSource opens a webcam through OpenCV.
type CameraSource struct {
	cfg    CameraConfig
	logger *zap.Logger
}

// NewCameraSource creates an OpenCV backed webcam source.
func NewCameraSource(cfg CameraConfig, logger *zap.Logger) Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CameraSource{cfg: cfg, logger: logger.Named("camera")}
}

// Open starts the camera.
func (c *CameraSource) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cam, err := gocv.VideoCaptureDevice(c.cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", c.cfg.Index, err)
	}
	if !cam.IsOpened() {
		cam.Close()
		return nil, fmt.Errorf("camera %d did not open", c.cfg.Index)
	}
	if c.cfg.Width > 0 && c.cfg.Height > 0 {
		cam.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
		cam.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	}

	c.logger.Info("camera opened",
		zap.Int("index", c.cfg.Index),
		zap.Float64("width", cam.Get(gocv.VideoCaptureFrameWidth)),
		zap.Float64("height", cam.Get(gocv.VideoCaptureFrameHeight)),
	)

	mat := gocv.NewMat()
	return &cameraStream{cam: cam, frame: &mat}, nil
}

type cameraStream struct {
	mu     sync.Mutex
	cam    *gocv.VideoCapture
	frame  *gocv.Mat // reused between reads
	closed bool
}

func (s *cameraStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrReleased
	}
	if !s.cam.Read(s.frame) {
		return nil, fmt.Errorf("cannot read frame")
	}
	if s.frame.Empty() {
		return nil, fmt.Errorf("frame is empty")
	}
	return s.frame.ToImage()
}

func (s *cameraStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	frameErr := s.frame.Close()
	if err := s.cam.Close(); err != nil {
		return err
	}
	return frameErr
}
