package device

// CameraConfig selects and sizes a local webcam.
type CameraConfig struct {
	// Index is the OS device index (0 for the default camera).
	Index int
	// Width and Height request a capture resolution; 0 keeps the driver
	// default.
	Width  int
	Height int
}

// DefaultCameraConfig opens the default camera at 640x480.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{Index: 0, Width: 640, Height: 480}
}
