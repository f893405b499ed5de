package session

import (
	"context"
	"image"
	"sync"

	"go.uber.org/zap"

	"github.com/menta2k/nonverb/pkg/audio"
	"github.com/menta2k/nonverb/pkg/device"
	"github.com/menta2k/nonverb/pkg/frame"
	"github.com/menta2k/nonverb/pkg/overlay"
	"github.com/menta2k/nonverb/pkg/raster"
	"github.com/menta2k/nonverb/pkg/types"
)

// Submitter exchanges a frozen buffer with the analysis service.
type Submitter interface {
	Submit(ctx context.Context, buf *raster.Buffer) (*types.AnalysisResult, error)
}

// Dependencies are the collaborators a Controller drives.
type Dependencies struct {
	Devices  *device.Manager
	Frames   *frame.Acquirer
	Analysis Submitter
	Renderer *overlay.Renderer
	Player   audio.Player
	Logger   *zap.Logger

	// Autoplay plays the audio cue as soon as a result arrives.
	Autoplay bool
}

// Controller owns the active Session and applies every transition.
type Controller struct {
	deps   Dependencies
	logger *zap.Logger

	// OnChange is called after every transition with a fresh snapshot.
	OnChange func(Snapshot)

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	gen      uint64
	sess     *Session
	closed   bool
	// inflight tracks every submission goroutine for Close. Adds happen
	// under mu and stop once closed is set.
	inflight sync.WaitGroup

	notifyMu sync.Mutex
}

// New creates a controller. Start must be called before any user action.
func New(deps Dependencies) *Controller {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Player == nil {
		deps.Player = audio.NopPlayer{}
	}
	if deps.Renderer == nil {
		deps.Renderer = overlay.New()
	}
	if deps.Frames == nil {
		deps.Frames = frame.NewAcquirer(deps.Devices, deps.Logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		deps:       deps,
		logger:     deps.Logger.Named("session"),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Start creates the first session and acquires the device feed. A failed
// acquisition leaves the session in Failed and is returned.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.sess != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	sess := c.nextSessionLocked()
	c.mu.Unlock()

	c.notify()
	return c.acquire(ctx, sess)
}

// Reset discards the current session, including any in-flight submission,
// and starts a new one that re-acquires the device feed.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.sess
	feed, cancel := detach(old)
	sess := c.nextSessionLocked()
	c.mu.Unlock()

	if old != nil {
		c.logger.Info("session reset",
			zap.String("session_id", old.ID),
			zap.Uint64("generation", old.Generation),
			zap.Stringer("phase", old.phase),
		)
	}
	if cancel != nil {
		cancel()
	}
	c.deps.Devices.Release(feed)
	c.deps.Player.Stop()

	c.notify()
	return c.acquire(ctx, sess)
}

// Capture freezes the live feed and submits the frame.
func (c *Controller) Capture(ctx context.Context) error {
	sess, feed, err := c.beginCapture()
	if err != nil {
		return err
	}

	buf, err := c.deps.Frames.CaptureFromFeed(feed)
	return c.finishCapture(sess, buf, err)
}

// Upload decodes a user supplied image and submits it. It works without a
// device feed; an active feed is released since it is no longer needed.
func (c *Controller) Upload(ctx context.Context, data []byte) error {
	sess, feed, err := c.beginCapture()
	if err != nil {
		return err
	}

	c.deps.Devices.Release(feed)
	buf, err := c.deps.Frames.CaptureFromFile(data)
	return c.finishCapture(sess, buf, err)
}

// Rerender rebuilds the display from the frozen image: the result region
// when there is one, the bare capture otherwise.
func (c *Controller) Rerender() {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.sess
	if sess == nil || sess.buffer == nil {
		return
	}
	if sess.phase == types.PhaseResulted && sess.result != nil && sess.result.Region != nil {
		c.deps.Renderer.DrawRegion(sess.buffer, sess.result.Region)
		return
	}
	sess.buffer.ClearOverlay()
}

// Snapshot returns the state of the current session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return Snapshot{Phase: types.PhaseIdle, History: []types.Phase{types.PhaseIdle}}
	}
	return c.sess.snapshot()
}

// LiveFrame returns the current feed frame while the session is live.
func (c *Controller) LiveFrame() (image.Image, error) {
	c.mu.Lock()
	var feed *device.Feed
	if c.sess != nil && c.sess.phase == types.PhaseLiveFeed {
		feed = c.sess.feed
	}
	c.mu.Unlock()
	if feed == nil {
		return nil, types.NewError(types.KindNoFeed, "session.live_frame", nil)
	}
	return feed.Frame()
}

// Wait blocks until the current session's submission, if any, has
// finished. Submissions of replaced sessions are not waited for; their
// outcomes are dropped anyway.
func (c *Controller) Wait() {
	c.mu.Lock()
	var done chan struct{}
	if c.sess != nil {
		done = c.sess.done
	}
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close cancels in-flight work and releases the device feed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	feed, cancel := detach(c.sess)
	c.gen++
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.baseCancel()
	c.deps.Devices.Release(feed)
	c.deps.Player.Stop()
	c.inflight.Wait()
	return nil
}

// nextSessionLocked replaces the current session with a fresh one.
func (c *Controller) nextSessionLocked() *Session {
	c.gen++
	c.sess = newSession(c.gen)
	return c.sess
}

// detach takes the feed and submission cancel out of a session being
// discarded so that each is handled exactly once.
func detach(s *Session) (*device.Feed, func()) {
	if s == nil {
		return nil, nil
	}
	feed, cancel := s.feed, s.cancel
	s.feed, s.cancel = nil, nil
	return feed, cancel
}

// currentLocked reports whether sess is still the active session.
func (c *Controller) currentLocked(sess *Session) bool {
	return !c.closed && c.sess == sess && c.gen == sess.Generation
}

func (c *Controller) acquire(ctx context.Context, sess *Session) error {
	feed, err := c.deps.Devices.Acquire(ctx)

	c.mu.Lock()
	if !c.currentLocked(sess) {
		c.mu.Unlock()
		c.deps.Devices.Release(feed)
		c.logger.Debug("discarding feed acquired for a replaced session", zap.Uint64("generation", sess.Generation))
		return nil
	}
	if sess.busy || sess.phase != types.PhaseIdle {
		// an upload moved the session on while the device was opening
		c.mu.Unlock()
		c.deps.Devices.Release(feed)
		c.logger.Debug("discarding feed acquired after an upload", zap.String("session_id", sess.ID))
		return nil
	}
	if err != nil {
		sess.fail(err)
		c.mu.Unlock()
		c.logger.Warn("device acquisition failed", zap.String("session_id", sess.ID), zap.Error(err))
		c.notify()
		return err
	}
	sess.feed = feed
	sess.setPhase(types.PhaseLiveFeed)
	c.mu.Unlock()

	c.logger.Info("live feed started", zap.String("session_id", sess.ID), zap.String("feed_id", feed.ID))
	c.notify()
	return nil
}

// beginCapture checks that a capture may start and takes the feed out of
// the session.
func (c *Controller) beginCapture() (*Session, *device.Feed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return nil, nil, ErrClosed
	case c.sess == nil:
		return nil, nil, ErrNotStarted
	case c.sess.inFlight():
		return nil, nil, ErrSubmissionInFlight
	case c.sess.cycleOver():
		return nil, nil, ErrResetRequired
	}
	sess := c.sess
	feed := sess.feed
	sess.feed = nil
	sess.busy = true
	return sess, feed, nil
}

func (c *Controller) finishCapture(sess *Session, buf *raster.Buffer, err error) error {
	c.mu.Lock()
	if !c.currentLocked(sess) {
		c.mu.Unlock()
		c.logger.Debug("discarding capture for a replaced session", zap.Uint64("generation", sess.Generation))
		return nil
	}
	sess.busy = false
	if err != nil {
		sess.fail(err)
		c.mu.Unlock()
		c.logger.Warn("capture failed", zap.String("session_id", sess.ID), zap.Error(err))
		c.notify()
		return err
	}

	sess.buffer = buf
	sess.setPhase(types.PhaseCaptured)
	c.logger.Info("image captured",
		zap.String("session_id", sess.ID),
		zap.String("source", buf.Source()),
		zap.Int("width", buf.Width()),
		zap.Int("height", buf.Height()),
	)

	// capture always submits
	ctx, cancel := context.WithCancel(c.baseCtx)
	sess.cancel = cancel
	done := make(chan struct{})
	sess.done = done
	sess.submitted = true
	sess.setPhase(types.PhaseSubmitting)
	c.inflight.Add(1)
	c.mu.Unlock()

	c.notify()
	go c.submit(ctx, cancel, done, sess, buf)
	return nil
}

func (c *Controller) submit(ctx context.Context, cancel context.CancelFunc, done chan struct{}, sess *Session, buf *raster.Buffer) {
	defer c.inflight.Done()
	defer close(done)
	defer cancel()

	result, err := c.deps.Analysis.Submit(ctx, buf)

	c.mu.Lock()
	if !c.currentLocked(sess) || sess.phase != types.PhaseSubmitting {
		c.mu.Unlock()
		c.logger.Debug("discarding stale analysis outcome",
			zap.String("session_id", sess.ID),
			zap.Uint64("generation", sess.Generation),
			zap.Bool("had_result", err == nil),
		)
		return
	}
	sess.cancel = nil
	if err != nil {
		sess.fail(err)
		c.mu.Unlock()
		c.logger.Warn("analysis failed",
			zap.String("session_id", sess.ID),
			zap.Stringer("kind", types.KindOf(err)),
			zap.Error(err),
		)
		c.notify()
		return
	}

	sess.resolve(result)
	c.deps.Renderer.DrawRegion(buf, result.Region)
	c.mu.Unlock()

	c.logger.Info("analysis resulted",
		zap.String("session_id", sess.ID),
		zap.String("label", result.Label),
		zap.Bool("region", result.Region != nil),
		zap.Bool("audio", result.AudioURL != ""),
	)
	c.notify()

	if c.deps.Autoplay && result.AudioURL != "" {
		go func(ref string) {
			if err := c.deps.Player.Play(c.baseCtx, ref); err != nil {
				c.logger.Warn("audio playback failed", zap.String("ref", ref), zap.Error(err))
			}
		}(result.AudioURL)
	}
}

func (c *Controller) notify() {
	if c.OnChange == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.OnChange(c.Snapshot())
}
