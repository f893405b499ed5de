// Package nonverb captures a still image, sends it to a remote emotion
// analysis service and renders the result over the image.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//		"os"
//
//		"github.com/menta2k/nonverb"
//		"github.com/menta2k/nonverb/pkg/analysis"
//		"github.com/menta2k/nonverb/pkg/device"
//	)
//
//	func main() {
//		backend, err := analysis.NewHTTPBackend("http://localhost:5000/analyze", 0)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		ctrl := nonverb.New(nonverb.Options{
//			Source:  device.NewCameraSource(device.DefaultCameraConfig(), nil),
//			Backend: backend,
//		})
//		defer ctrl.Close()
//
//		// Camera problems leave the session in Failed; uploads still work.
//		_ = ctrl.Start(context.Background())
//
//		data, _ := os.ReadFile("face.jpg")
//		if err := ctrl.Upload(context.Background(), data); err != nil {
//			log.Fatal(err)
//		}
//		ctrl.Wait()
//
//		snap := ctrl.Snapshot()
//		fmt.Println(snap.Phase, snap.Label, snap.AudioURL)
//	}
//
// The package consists of these components:
//
// 1. Device (pkg/device): acquires and releases the live frame source
// 2. Frame (pkg/frame): freezes a frame from the feed or an uploaded file
// 3. Analysis (pkg/analysis, pkg/ollama): encodes and submits the frame
// 4. Overlay (pkg/overlay): draws the returned region on the frozen image
// 5. Session (pkg/session): the state machine tying them together
package nonverb

import (
	"go.uber.org/zap"

	"github.com/menta2k/nonverb/pkg/analysis"
	"github.com/menta2k/nonverb/pkg/audio"
	"github.com/menta2k/nonverb/pkg/client"
	"github.com/menta2k/nonverb/pkg/device"
	"github.com/menta2k/nonverb/pkg/frame"
	"github.com/menta2k/nonverb/pkg/overlay"
	"github.com/menta2k/nonverb/pkg/raster"
	"github.com/menta2k/nonverb/pkg/session"
)

// Version of the nonverb library
const Version = "1.0.0"

// Options configures New. Only Backend is required.
type Options struct {
	// Source provides the live feed. Nil means uploads only.
	Source device.Source
	// Backend is the analysis service.
	Backend client.Backend
	// Encode controls how captures are encoded; zero value means JPEG.
	Encode raster.EncodeOptions
	// Renderer draws regions; nil uses the yellow 5px default.
	Renderer *overlay.Renderer
	// Player plays audio cues when Autoplay is set.
	Player   audio.Player
	Autoplay bool
	Logger   *zap.Logger
}

// New wires a session controller from opts. Call Start on the result.
func New(opts Options) *session.Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Encode == (raster.EncodeOptions{}) {
		opts.Encode = raster.DefaultEncodeOptions()
	}

	devices := device.NewManager(opts.Source, logger)
	return session.New(session.Dependencies{
		Devices:  devices,
		Frames:   frame.NewAcquirer(devices, logger),
		Analysis: analysis.NewClient(opts.Backend, opts.Encode, logger),
		Renderer: opts.Renderer,
		Player:   opts.Player,
		Logger:   logger,
		Autoplay: opts.Autoplay,
	})
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
