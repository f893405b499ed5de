package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/menta2k/nonverb/pkg/analysis"
	"github.com/menta2k/nonverb/pkg/device"
	"github.com/menta2k/nonverb/pkg/overlay"
	"github.com/menta2k/nonverb/pkg/raster"
	"github.com/menta2k/nonverb/pkg/types"
)

// fakeSubmitter answers with a fixed outcome. When gate is set, Submit
// blocks until the gate closes or the context is canceled.
type fakeSubmitter struct {
	result *types.AnalysisResult
	err    error
	gate   chan struct{}

	mu       sync.Mutex
	calls    int
	canceled bool
}

func (f *fakeSubmitter) Submit(ctx context.Context, buf *raster.Buffer) (*types.AnalysisResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			f.mu.Lock()
			f.canceled = true
			f.mu.Unlock()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	return &res, nil
}

func (f *fakeSubmitter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSubmitter) Canceled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled
}

type recordingPlayer struct {
	mu    sync.Mutex
	plays []string
	stops int
}

func (p *recordingPlayer) Play(ctx context.Context, ref string) error {
	p.mu.Lock()
	p.plays = append(p.plays, ref)
	p.mu.Unlock()
	return nil
}

func (p *recordingPlayer) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
}

func (p *recordingPlayer) Plays() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.plays...)
}

func (p *recordingPlayer) Stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

func happyResult() *types.AnalysisResult {
	return &types.AnalysisResult{
		Label:    "happy",
		AudioURL: "https://x/a.mp3",
		Region:   &types.Region{Left: 0.2, Top: 0.1, Width: 0.3, Height: 0.4},
	}
}

func newTestController(t *testing.T, src device.Source, sub Submitter) *Controller {
	t.Helper()
	logger := zaptest.NewLogger(t)
	c := New(Dependencies{
		Devices:  device.NewManager(src, logger),
		Analysis: sub,
		Logger:   logger,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func createTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{0, 0, uint8(x), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func phases(ps ...types.Phase) []types.Phase { return ps }

func TestCaptureCycle(t *testing.T) {
	src := device.NewMockSource(640, 480)
	sub := &fakeSubmitter{result: happyResult()}
	c := newTestController(t, src, sub)

	require.NoError(t, c.Start(context.Background()))
	snap := c.Snapshot()
	assert.Equal(t, types.PhaseLiveFeed, snap.Phase)
	assert.True(t, snap.FeedActive)
	assert.Equal(t, uint64(1), snap.Generation)

	require.NoError(t, c.Capture(context.Background()))
	c.Wait()

	snap = c.Snapshot()
	assert.Equal(t, types.PhaseResulted, snap.Phase)
	assert.Equal(t, phases(types.PhaseIdle, types.PhaseLiveFeed, types.PhaseCaptured, types.PhaseSubmitting, types.PhaseResulted), snap.History)
	assert.Equal(t, "happy", snap.Label)
	assert.Equal(t, "https://x/a.mp3", snap.AudioURL)
	assert.True(t, snap.HasResult())
	assert.False(t, snap.Loading)
	assert.False(t, snap.FeedActive)
	assert.Empty(t, snap.Error)
	assert.Equal(t, 640, snap.Width)
	assert.Equal(t, 480, snap.Height)

	// overlay at (128,48)-(320,240)
	display, ok := snap.Display.(*image.NRGBA)
	require.True(t, ok)
	assert.Equal(t, overlay.DefaultColor, display.NRGBAAt(128, 48))
	assert.Equal(t, overlay.DefaultColor, display.NRGBAAt(319, 239))
	assert.NotEqual(t, overlay.DefaultColor, display.NRGBAAt(127, 47))
	assert.NotEqual(t, overlay.DefaultColor, display.NRGBAAt(220, 140))

	assert.Equal(t, 1, sub.Calls())
	require.Len(t, src.Streams(), 1)
	assert.Equal(t, 1, src.Streams()[0].Closes(), "capture must stop the feed")
}

func TestCaptureCycleOverHTTP(t *testing.T) {
	var uploads int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile(analysis.FileField)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"No file uploaded"}`)
			return
		}
		data, _ := io.ReadAll(file)
		img, _, err := raster.Decode(data)
		if err != nil || img.Bounds().Dx() != 640 || img.Bounds().Dy() != 480 {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"unexpected image"}`)
			return
		}
		mu.Lock()
		uploads++
		mu.Unlock()
		io.WriteString(w, `{"emotion":"happy","audioUrl":"https://x/a.mp3","boundingBox":{"Left":0.2,"Top":0.1,"Width":0.3,"Height":0.4}}`)
	}))
	defer srv.Close()

	backend, err := analysis.NewHTTPBackend(srv.URL+"/analyze", 5*time.Second)
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	player := &recordingPlayer{}
	c := New(Dependencies{
		Devices:  device.NewManager(device.NewMockSource(640, 480), logger),
		Analysis: analysis.NewClient(backend, raster.DefaultEncodeOptions(), logger),
		Player:   player,
		Autoplay: true,
		Logger:   logger,
	})
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Capture(context.Background()))
	c.Wait()

	snap := c.Snapshot()
	require.Equal(t, types.PhaseResulted, snap.Phase, snap.Error)
	assert.Equal(t, "happy", snap.Label)
	require.NotNil(t, snap.Region)
	assert.Equal(t, image.Rect(128, 48, 320, 240), overlay.PixelRect(*snap.Region, snap.Width, snap.Height))

	mu.Lock()
	assert.Equal(t, 1, uploads)
	mu.Unlock()

	assert.Eventually(t, func() bool {
		plays := player.Plays()
		return len(plays) == 1 && plays[0] == "https://x/a.mp3"
	}, time.Second, 10*time.Millisecond)
}

func TestServerErrorThenReset(t *testing.T) {
	src := device.NewMockSource(320, 240)
	serverErr := types.NewError(types.KindServerError, "analysis.http", errors.New("boom"))
	serverErr.StatusCode = http.StatusInternalServerError
	sub := &fakeSubmitter{err: serverErr}
	c := newTestController(t, src, sub)

	var mu sync.Mutex
	var seen []Snapshot
	c.OnChange = func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Capture(context.Background()))
	c.Wait()

	snap := c.Snapshot()
	assert.Equal(t, types.PhaseFailed, snap.Phase)
	assert.Equal(t, types.KindServerError, snap.ErrorKind)
	assert.NotEmpty(t, snap.Notice)
	assert.False(t, snap.Loading)
	assert.False(t, snap.HasResult())

	mu.Lock()
	var sawLoading bool
	for _, s := range seen {
		if s.Phase == types.PhaseSubmitting {
			sawLoading = sawLoading || s.Loading
		}
	}
	last := seen[len(seen)-1]
	mu.Unlock()
	assert.True(t, sawLoading, "loading should be reported while submitting")
	assert.Equal(t, types.PhaseFailed, last.Phase)
	assert.False(t, last.Loading)

	// a failed submission needs a reset
	assert.ErrorIs(t, c.Capture(context.Background()), ErrResetRequired)

	require.NoError(t, c.Reset(context.Background()))
	snap = c.Snapshot()
	assert.Equal(t, types.PhaseLiveFeed, snap.Phase)
	assert.Equal(t, uint64(2), snap.Generation)
	assert.Empty(t, snap.Error)
	assert.Equal(t, types.KindUnknown, snap.ErrorKind)
	assert.Equal(t, 2, src.Opens())
}

func TestUploadCorruptFile(t *testing.T) {
	src := device.NewMockSource(320, 240)
	sub := &fakeSubmitter{result: happyResult()}
	c := newTestController(t, src, sub)

	require.NoError(t, c.Start(context.Background()))

	err := c.Upload(context.Background(), []byte("this is not an image"))
	assert.ErrorIs(t, err, types.ErrDecodeError)
	c.Wait()

	snap := c.Snapshot()
	assert.Equal(t, types.PhaseFailed, snap.Phase)
	assert.Equal(t, types.KindDecodeError, snap.ErrorKind)
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.Display)
	assert.Equal(t, 0, sub.Calls(), "no request for an undecodable file")
	assert.Equal(t, 1, src.Streams()[0].Closes())

	// nothing was submitted, a valid upload may follow
	require.NoError(t, c.Upload(context.Background(), createTestPNG(t, 100, 80)))
	c.Wait()
	snap = c.Snapshot()
	assert.Equal(t, types.PhaseResulted, snap.Phase)
	assert.Equal(t, 100, snap.Width)
	assert.Empty(t, snap.Error)
}

func TestDeviceDeniedUploadStillWorks(t *testing.T) {
	src := device.NewMockSource(320, 240)
	src.SetOpenErr(device.ErrPermissionDenied)
	sub := &fakeSubmitter{result: happyResult()}
	c := newTestController(t, src, sub)

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, types.ErrDeviceUnavailable)

	snap := c.Snapshot()
	assert.Equal(t, types.PhaseFailed, snap.Phase)
	assert.Equal(t, types.KindDeviceUnavailable, snap.ErrorKind)
	assert.False(t, snap.FeedActive)

	_, err = c.LiveFrame()
	assert.ErrorIs(t, err, types.ErrNoFeed)

	require.NoError(t, c.Upload(context.Background(), createTestPNG(t, 200, 100)))
	c.Wait()

	snap = c.Snapshot()
	assert.Equal(t, types.PhaseResulted, snap.Phase)
	assert.Equal(t, "happy", snap.Label)
	assert.Empty(t, snap.Error, "result and error are exclusive")
	assert.Equal(t, 1, sub.Calls())
}

func TestCaptureWithoutFeed(t *testing.T) {
	src := device.NewMockSource(320, 240)
	src.SetOpenErr(device.ErrPermissionDenied)
	sub := &fakeSubmitter{result: happyResult()}
	c := newTestController(t, src, sub)

	_ = c.Start(context.Background())

	err := c.Capture(context.Background())
	assert.ErrorIs(t, err, types.ErrNoFeed)
	assert.Equal(t, types.KindNoFeed, c.Snapshot().ErrorKind)
	assert.Equal(t, 0, sub.Calls())
}

func TestStaleResponseIsDropped(t *testing.T) {
	src := device.NewMockSource(320, 240)
	sub := &fakeSubmitter{result: happyResult(), gate: make(chan struct{})}
	c := newTestController(t, src, sub)

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Capture(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, types.PhaseSubmitting, snap.Phase)
	assert.True(t, snap.Loading)

	require.NoError(t, c.Reset(context.Background()))
	close(sub.gate)
	c.Wait()

	snap = c.Snapshot()
	assert.Equal(t, types.PhaseLiveFeed, snap.Phase)
	assert.Equal(t, uint64(2), snap.Generation)
	assert.False(t, snap.HasResult(), "stale result leaked into the new session")
	assert.Nil(t, snap.Region)
	assert.Nil(t, snap.Display)
	assert.False(t, snap.Loading)
}

func TestResetCancelsSubmission(t *testing.T) {
	sub := &fakeSubmitter{result: happyResult(), gate: make(chan struct{})}
	c := newTestController(t, device.NewMockSource(64, 48), sub)

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Capture(context.Background()))

	require.Eventually(t, func() bool { return sub.Calls() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Reset(context.Background()))

	assert.Eventually(t, sub.Canceled, time.Second, 5*time.Millisecond)
	assert.Equal(t, types.PhaseLiveFeed, c.Snapshot().Phase)
}

func TestSecondCaptureIsRejected(t *testing.T) {
	sub := &fakeSubmitter{result: happyResult(), gate: make(chan struct{})}
	c := newTestController(t, device.NewMockSource(64, 48), sub)

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Capture(context.Background()))

	assert.ErrorIs(t, c.Capture(context.Background()), ErrSubmissionInFlight)
	assert.ErrorIs(t, c.Upload(context.Background(), createTestPNG(t, 10, 10)), ErrSubmissionInFlight)
	assert.Equal(t, types.PhaseSubmitting, c.Snapshot().Phase)

	close(sub.gate)
	c.Wait()
	assert.Equal(t, 1, sub.Calls())
	assert.Equal(t, types.PhaseResulted, c.Snapshot().Phase)

	assert.ErrorIs(t, c.Capture(context.Background()), ErrResetRequired)
	assert.ErrorIs(t, c.Upload(context.Background(), createTestPNG(t, 10, 10)), ErrResetRequired)
}

func TestResetReleasesFeedOnce(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, c *Controller, sub *fakeSubmitter)
		phase types.Phase
	}{
		{
			name:  "live feed",
			setup: func(t *testing.T, c *Controller, sub *fakeSubmitter) {},
			phase: types.PhaseLiveFeed,
		},
		{
			name: "submitting",
			setup: func(t *testing.T, c *Controller, sub *fakeSubmitter) {
				sub.gate = make(chan struct{})
				require.NoError(t, c.Capture(context.Background()))
			},
			phase: types.PhaseSubmitting,
		},
		{
			name: "resulted",
			setup: func(t *testing.T, c *Controller, sub *fakeSubmitter) {
				require.NoError(t, c.Capture(context.Background()))
				c.Wait()
			},
			phase: types.PhaseResulted,
		},
		{
			name: "failed",
			setup: func(t *testing.T, c *Controller, sub *fakeSubmitter) {
				require.Error(t, c.Upload(context.Background(), []byte("junk")))
			},
			phase: types.PhaseFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := device.NewMockSource(64, 48)
			sub := &fakeSubmitter{result: happyResult()}
			c := newTestController(t, src, sub)

			require.NoError(t, c.Start(context.Background()))
			tt.setup(t, c, sub)
			require.Equal(t, tt.phase, c.Snapshot().Phase)

			require.NoError(t, c.Reset(context.Background()))
			c.Wait()

			streams := src.Streams()
			require.Len(t, streams, 2)
			assert.Equal(t, 1, streams[0].Closes(), "old feed released exactly once")
			assert.Equal(t, 0, streams[1].Closes(), "new feed must stay open")
			assert.Equal(t, types.PhaseLiveFeed, c.Snapshot().Phase)

			require.NoError(t, c.Close())
			assert.Equal(t, 1, streams[1].Closes())
		})
	}
}

func TestResetStopsAudio(t *testing.T) {
	logger := zaptest.NewLogger(t)
	player := &recordingPlayer{}
	c := New(Dependencies{
		Devices:  device.NewManager(device.NewMockSource(64, 48), logger),
		Analysis: &fakeSubmitter{result: happyResult()},
		Player:   player,
		Logger:   logger,
	})
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Capture(context.Background()))
	c.Wait()
	assert.Empty(t, player.Plays(), "autoplay is off")

	require.NoError(t, c.Reset(context.Background()))
	assert.Equal(t, 1, player.Stops())
}

func TestRerenderIsIdempotent(t *testing.T) {
	c := newTestController(t, device.NewMockSource(160, 120), &fakeSubmitter{result: happyResult()})

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Capture(context.Background()))
	c.Wait()

	first := append([]byte(nil), c.Snapshot().Display.(*image.NRGBA).Pix...)
	c.Rerender()
	c.Rerender()
	assert.True(t, bytes.Equal(first, c.Snapshot().Display.(*image.NRGBA).Pix))
}

func TestResultWithoutRegion(t *testing.T) {
	sub := &fakeSubmitter{result: &types.AnalysisResult{Label: "calm"}}
	c := newTestController(t, device.NewMockSource(64, 48), sub)

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Capture(context.Background()))
	c.Wait()

	snap := c.Snapshot()
	assert.Equal(t, types.PhaseResulted, snap.Phase)
	assert.Nil(t, snap.Region)
	assert.Empty(t, snap.AudioURL)
}

func TestLiveFrame(t *testing.T) {
	c := newTestController(t, device.NewMockSource(64, 48), &fakeSubmitter{result: happyResult()})

	_, err := c.LiveFrame()
	assert.ErrorIs(t, err, types.ErrNoFeed)

	require.NoError(t, c.Start(context.Background()))
	img, err := c.LiveFrame()
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())

	require.NoError(t, c.Capture(context.Background()))
	_, err = c.LiveFrame()
	assert.ErrorIs(t, err, types.ErrNoFeed)
}

func TestLifecycleErrors(t *testing.T) {
	src := device.NewMockSource(64, 48)
	c := newTestController(t, src, &fakeSubmitter{result: happyResult()})

	assert.ErrorIs(t, c.Capture(context.Background()), ErrNotStarted)
	assert.ErrorIs(t, c.Upload(context.Background(), nil), ErrNotStarted)

	snap := c.Snapshot()
	assert.Equal(t, types.PhaseIdle, snap.Phase)

	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, src.Streams()[0].Closes())

	assert.ErrorIs(t, c.Capture(context.Background()), ErrClosed)
	assert.ErrorIs(t, c.Reset(context.Background()), ErrClosed)
	assert.ErrorIs(t, c.Start(context.Background()), ErrClosed)
}

func TestCloseDropsInFlightResult(t *testing.T) {
	sub := &fakeSubmitter{result: happyResult(), gate: make(chan struct{})}
	c := newTestController(t, device.NewMockSource(64, 48), sub)

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Capture(context.Background()))

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the submission")
	}
	assert.False(t, c.Snapshot().HasResult())
}

// gatedSource holds Open until gate is closed.
type gatedSource struct {
	*device.MockSource
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedSource) Open(ctx context.Context) (device.Stream, error) {
	close(g.entered)
	<-g.gate
	return g.MockSource.Open(ctx)
}

func TestUploadWhileAcquiring(t *testing.T) {
	src := &gatedSource{
		MockSource: device.NewMockSource(64, 48),
		entered:    make(chan struct{}),
		gate:       make(chan struct{}),
	}
	c := newTestController(t, src, &fakeSubmitter{result: happyResult()})

	started := make(chan error, 1)
	go func() { started <- c.Start(context.Background()) }()
	<-src.entered

	require.NoError(t, c.Upload(context.Background(), createTestPNG(t, 30, 20)))
	c.Wait()
	close(src.gate)
	require.NoError(t, <-started)

	snap := c.Snapshot()
	assert.Equal(t, types.PhaseResulted, snap.Phase)
	assert.False(t, snap.FeedActive)
	assert.Equal(t, 30, snap.Width)

	streams := src.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, 1, streams[0].Closes(), "late feed must be released")
}

func TestRetryAfterDecodeErrorClearsError(t *testing.T) {
	sub := &fakeSubmitter{result: happyResult(), gate: make(chan struct{})}
	c := newTestController(t, device.NewMockSource(64, 48), sub)

	require.NoError(t, c.Start(context.Background()))
	require.ErrorIs(t, c.Upload(context.Background(), []byte("not an image")), types.ErrDecodeError)
	require.Equal(t, types.KindDecodeError, c.Snapshot().ErrorKind)

	require.NoError(t, c.Upload(context.Background(), createTestPNG(t, 30, 20)))

	snap := c.Snapshot()
	assert.Equal(t, types.PhaseSubmitting, snap.Phase)
	assert.Equal(t, types.KindUnknown, snap.ErrorKind)
	assert.Empty(t, snap.Error)
	assert.Empty(t, snap.Notice)

	close(sub.gate)
	c.Wait()
	snap = c.Snapshot()
	assert.Equal(t, types.PhaseResulted, snap.Phase)
	assert.Empty(t, snap.Notice)
}

func TestRetryAfterDeviceDeniedClearsError(t *testing.T) {
	src := device.NewMockSource(64, 48)
	src.SetOpenErr(device.ErrPermissionDenied)
	sub := &fakeSubmitter{result: happyResult(), gate: make(chan struct{})}
	c := newTestController(t, src, sub)

	require.Error(t, c.Start(context.Background()))

	var mu sync.Mutex
	var seen []Snapshot
	c.OnChange = func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}

	require.NoError(t, c.Upload(context.Background(), createTestPNG(t, 30, 20)))
	close(sub.gate)
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for _, s := range seen {
		if s.Phase != types.PhaseFailed {
			assert.Empty(t, s.Error, "error shown in phase %s", s.Phase)
			assert.Empty(t, s.Notice, "notice shown in phase %s", s.Phase)
		}
	}
	assert.Equal(t, types.PhaseResulted, seen[len(seen)-1].Phase)
}

func TestWaitDuringResetAndCapture(t *testing.T) {
	c := newTestController(t, device.NewMockSource(16, 12), &fakeSubmitter{result: happyResult()})
	require.NoError(t, c.Start(context.Background()))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					c.Wait()
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		require.NoError(t, c.Reset(context.Background()))
		require.NoError(t, c.Capture(context.Background()))
	}
	c.Wait()
	close(stop)
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, types.PhaseResulted, snap.Phase)
	assert.Equal(t, uint64(501), snap.Generation)
}

func TestWaitWithoutSubmission(t *testing.T) {
	c := newTestController(t, device.NewMockSource(16, 12), &fakeSubmitter{result: happyResult()})

	done := make(chan struct{})
	go func() {
		c.Wait()
		assert.NoError(t, c.Start(context.Background()))
		c.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait blocked without a submission")
	}
}

func TestRerenderWithoutRegionShowsCapture(t *testing.T) {
	c := newTestController(t, device.NewMockSource(40, 30), &fakeSubmitter{result: &types.AnalysisResult{Label: "calm"}})

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Capture(context.Background()))
	c.Wait()

	c.Rerender()
	snap := c.Snapshot()
	frozen := snap.Display.(*image.NRGBA)
	for _, px := range []image.Point{{0, 0}, {20, 15}, {39, 29}} {
		assert.NotEqual(t, overlay.DefaultColor, frozen.NRGBAAt(px.X, px.Y))
	}
}
