package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/nonverb"
	"github.com/menta2k/nonverb/internal/config"
	"github.com/menta2k/nonverb/internal/logging"
	"github.com/menta2k/nonverb/internal/server"
	"github.com/menta2k/nonverb/internal/utils"
	"github.com/menta2k/nonverb/pkg/analysis"
	"github.com/menta2k/nonverb/pkg/audio"
	"github.com/menta2k/nonverb/pkg/client"
	"github.com/menta2k/nonverb/pkg/device"
	"github.com/menta2k/nonverb/pkg/ollama"
	"github.com/menta2k/nonverb/pkg/overlay"
	"github.com/menta2k/nonverb/pkg/raster"
	"github.com/menta2k/nonverb/pkg/session"
	"github.com/menta2k/nonverb/pkg/types"
)

func main() {
	var configPath, saveConfig, in string
	var serve, showVersion bool

	cfg := config.Default()

	flag.StringVar(&configPath, "config", "", "config file (json or yaml)")
	flag.StringVar(&saveConfig, "save-config", "", "write the effective configuration to this file and exit")
	flag.StringVar(&in, "in", "", "analyze one image file and exit")
	flag.BoolVar(&serve, "serve", false, "run the control surface with the live feed")
	flag.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "control surface listen address")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")

	flag.StringVar(&cfg.Service.URL, "url", cfg.Service.URL, "analysis service URL")
	flag.StringVar(&cfg.Service.Backend, "backend", cfg.Service.Backend, "analysis backend: http or ollama")
	flag.StringVar(&cfg.Service.Model, "model", cfg.Service.Model, "model name (ollama backend)")
	flag.StringVar(&cfg.Service.Timeout, "timeout", cfg.Service.Timeout, "timeout for one exchange, e.g. 30s (default: none)")

	flag.IntVar(&cfg.Device.Index, "device", cfg.Device.Index, "camera index")
	flag.StringVar(&cfg.Device.StillImage, "feed-image", cfg.Device.StillImage, "use an image file as the live feed")

	flag.StringVar(&cfg.Encoding.Format, "sendfmt", cfg.Encoding.Format, "format sent to the service: jpg|png|webp")
	flag.IntVar(&cfg.Encoding.Quality, "sendq", cfg.Encoding.Quality, "JPEG/WebP quality sent to the service (1-100)")
	flag.IntVar(&cfg.Encoding.MaxDim, "sendsize", cfg.Encoding.MaxDim, "max long side sent to the service (px), 0=native size")

	flag.StringVar(&cfg.Output.Dir, "out", cfg.Output.Dir, "output directory for rendered results")
	flag.StringVar(&cfg.Output.Format, "ext", cfg.Output.Format, "output format for rendered results: jpg|png|webp")

	flag.BoolVar(&cfg.Audio.Autoplay, "autoplay", cfg.Audio.Autoplay, "play the audio cue when a result arrives")
	flag.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level: debug|info|warn|error")
	flag.BoolVar(&cfg.Log.Development, "dev", cfg.Log.Development, "human readable logs")

	flag.Parse()

	if showVersion {
		fmt.Println(nonverb.GetVersion())
		return
	}

	if configPath == "" && utils.FileExists(config.GetConfigPath()) {
		configPath = config.GetConfigPath()
	}
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatal(err)
		}
		// flags given on the command line win over the file
		overrideFromFlags(loaded, cfg)
		cfg = loaded
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if saveConfig != "" {
		if err := cfg.SaveToFile(saveConfig); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("configuration written to %s\n", saveConfig)
		return
	}

	if in == "" && !serve {
		log.Fatalf("usage: %s -in face.jpg | -serve [-addr 127.0.0.1:8090] [-config nonverb.yaml] [-url service_url] [-backend http|ollama] [-feed-image still.jpg]", filepath.Base(os.Args[0]))
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync() //nolint:errcheck

	backend, err := newBackend(cfg)
	if err != nil {
		logger.Fatal("failed to create analysis backend", zap.Error(err))
	}

	color, _ := config.ParseColor(cfg.Overlay.Color)
	renderer := &overlay.Renderer{Color: color, Stroke: cfg.Overlay.Stroke}

	var player audio.Player = audio.NopPlayer{}
	if cfg.Audio.Autoplay {
		player = audio.NewCommandPlayer(cfg.Audio.Command, logger)
	}

	encode := raster.EncodeOptions{
		Format:  cfg.Encoding.Format,
		Quality: cfg.Encoding.Quality,
		MaxDim:  cfg.Encoding.MaxDim,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if in != "" {
		ctrl := nonverb.New(nonverb.Options{
			Backend:  backend,
			Encode:   encode,
			Renderer: renderer,
			Logger:   logger,
		})
		code := analyzeFile(ctx, ctrl, cfg, in, player, logger)
		ctrl.Close()
		stop()
		logger.Sync() //nolint:errcheck
		os.Exit(code)
	}

	ctrl := nonverb.New(nonverb.Options{
		Source:   newSource(cfg, logger),
		Backend:  backend,
		Encode:   encode,
		Renderer: renderer,
		Player:   player,
		Autoplay: cfg.Audio.Autoplay,
		Logger:   logger,
	})
	defer ctrl.Close()

	ctrl.OnChange = func(s session.Snapshot) {
		logger.Debug("state changed",
			zap.Stringer("phase", s.Phase),
			zap.Uint64("generation", s.Generation),
			zap.Bool("loading", s.Loading),
		)
	}

	if err := ctrl.Start(ctx); err != nil {
		// uploads keep working without a camera
		logger.Warn("starting without a live feed", zap.String("notice", types.Notice(err)), zap.Error(err))
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.Server.Addr), zap.Error(err))
	}
	if err := server.New(ctrl, logger).Serve(ctx, listener, 15*time.Second); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// analyzeFile runs one upload cycle, writes the rendered image and prints
// the result. It returns the process exit code.
func analyzeFile(ctx context.Context, ctrl *session.Controller, cfg *config.Config, in string, player audio.Player, logger *zap.Logger) int {
	if !utils.FileExists(in) {
		logger.Error("input file not found", zap.String("path", in))
		return 1
	}
	if !utils.IsImageFile(in) {
		logger.Warn("input does not have an image extension, trying anyway", zap.String("path", in))
	}
	data, err := os.ReadFile(in)
	if err != nil {
		logger.Error("failed to read input", zap.Error(err))
		return 1
	}
	logger = logging.WithOperation(logger, "analyze_file", "")
	logger.Info("analyzing", zap.String("path", in), zap.String("size", utils.FormatFileSize(int64(len(data)))))

	// no device in this mode, the session fails acquisition and takes the upload path
	_ = ctrl.Start(ctx)
	if err := ctrl.Upload(ctx, data); err != nil {
		fmt.Fprintln(os.Stderr, types.Notice(err))
		return 1
	}
	ctrl.Wait()

	snap := ctrl.Snapshot()
	logger = logging.WithOperation(logger, "analyze_file", snap.SessionID)
	js, _ := json.MarshalIndent(snap, "", "  ")
	fmt.Println(string(js))

	if snap.Phase != types.PhaseResulted {
		fmt.Fprintln(os.Stderr, snap.Notice)
		return 1
	}

	if err := utils.EnsureDir(cfg.Output.Dir); err != nil {
		logger.Error("failed to create output directory", zap.Error(err))
		return 1
	}
	outPath := utils.GenerateOutputFilename(in, cfg.Output.Dir, snap.Label, raster.Extension(cfg.Output.Format))
	if err := raster.Save(snap.Display, outPath, cfg.Output.Format, cfg.Encoding.Quality, false); err != nil {
		logger.Error("failed to save rendered image", zap.String("path", outPath), zap.Error(err))
		return 1
	}
	logger.Info("wrote rendered image", zap.String("path", outPath))

	if snap.AudioURL != "" {
		if err := player.Play(ctx, snap.AudioURL); err != nil {
			logger.Warn("audio playback failed", zap.Error(err))
		}
	}
	return 0
}

func newBackend(cfg *config.Config) (client.Backend, error) {
	timeout, err := cfg.ServiceTimeout()
	if err != nil {
		return nil, err
	}
	switch cfg.Service.Backend {
	case "ollama":
		return ollama.NewClient(cfg.Service.URL, cfg.Service.Model, nil)
	default:
		return analysis.NewHTTPBackend(cfg.Service.URL, timeout)
	}
}

func newSource(cfg *config.Config, logger *zap.Logger) device.Source {
	if cfg.Device.StillImage != "" {
		return device.NewStillSource(cfg.Device.StillImage)
	}
	return device.NewCameraSource(device.CameraConfig{
		Index:  cfg.Device.Index,
		Width:  cfg.Device.Width,
		Height: cfg.Device.Height,
	}, logger)
}

// overrideFromFlags copies values of flags set on the command line from
// flagged onto loaded.
func overrideFromFlags(loaded, flagged *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			loaded.Service.URL = flagged.Service.URL
		case "backend":
			loaded.Service.Backend = flagged.Service.Backend
		case "model":
			loaded.Service.Model = flagged.Service.Model
		case "timeout":
			loaded.Service.Timeout = flagged.Service.Timeout
		case "device":
			loaded.Device.Index = flagged.Device.Index
		case "feed-image":
			loaded.Device.StillImage = flagged.Device.StillImage
		case "sendfmt":
			loaded.Encoding.Format = flagged.Encoding.Format
		case "sendq":
			loaded.Encoding.Quality = flagged.Encoding.Quality
		case "sendsize":
			loaded.Encoding.MaxDim = flagged.Encoding.MaxDim
		case "out":
			loaded.Output.Dir = flagged.Output.Dir
		case "ext":
			loaded.Output.Format = strings.ToLower(flagged.Output.Format)
		case "autoplay":
			loaded.Audio.Autoplay = flagged.Audio.Autoplay
		case "log-level":
			loaded.Log.Level = flagged.Log.Level
		case "dev":
			loaded.Log.Development = flagged.Log.Development
		case "addr":
			loaded.Server.Addr = flagged.Server.Addr
		}
	})
}
