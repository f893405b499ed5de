// Package session runs the capture/submit/render cycle.
//
// One Session exists at a time. Every Session carries a generation number;
// asynchronous completions compare their generation with the current one
// and are dropped when a reset has replaced the session in between.
package session

import (
	"errors"
	"image"

	"github.com/google/uuid"

	"github.com/menta2k/nonverb/pkg/device"
	"github.com/menta2k/nonverb/pkg/raster"
	"github.com/menta2k/nonverb/pkg/types"
)

// Rejections for user actions that do not fit the current phase. They do
// not change the session.
var (
	// ErrSubmissionInFlight rejects a capture or upload while another one is
	// being acquired or submitted.
	ErrSubmissionInFlight = errors.New("session: a submission is already in flight")

	// ErrResetRequired rejects a capture or upload once the cycle has ended.
	ErrResetRequired = errors.New("session: reset required before a new capture")

	// ErrNotStarted is returned by actions issued before Start.
	ErrNotStarted = errors.New("session: controller not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("session: controller already started")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: controller closed")
)

// Session is the state of one capture/analysis cycle. It is owned by the
// Controller and only changed through its transitions.
type Session struct {
	ID         string
	Generation uint64

	phase   types.Phase
	history []types.Phase
	buffer  *raster.Buffer
	result  *types.AnalysisResult
	err     error

	feed      *device.Feed
	busy      bool // a frame is being frozen
	submitted bool // an analysis request was issued in this cycle
	cancel    func()
	done      chan struct{} // closed when the submission goroutine returns
}

func newSession(gen uint64) *Session {
	return &Session{
		ID:         uuid.NewString(),
		Generation: gen,
		phase:      types.PhaseIdle,
		history:    []types.Phase{types.PhaseIdle},
	}
}

// setPhase records a transition. Error information only survives in Failed.
func (s *Session) setPhase(p types.Phase) {
	if p != types.PhaseFailed {
		s.err = nil
	}
	s.phase = p
	s.history = append(s.history, p)
}

// resolve moves to Resulted; the previous error is dropped.
func (s *Session) resolve(result *types.AnalysisResult) {
	s.err = nil
	s.result = result
	s.setPhase(types.PhaseResulted)
}

// fail moves to Failed; any previous result is dropped.
func (s *Session) fail(err error) {
	s.result = nil
	s.err = err
	s.setPhase(types.PhaseFailed)
}

// cycleOver reports whether only a reset can move the session on.
func (s *Session) cycleOver() bool {
	return s.phase == types.PhaseResulted || (s.phase == types.PhaseFailed && s.submitted)
}

func (s *Session) inFlight() bool {
	return s.busy || s.phase == types.PhaseCaptured || s.phase == types.PhaseSubmitting
}

// Snapshot is a read-only view of the current session.
type Snapshot struct {
	SessionID  string        `json:"session_id"`
	Generation uint64        `json:"generation"`
	Phase      types.Phase   `json:"phase"`
	History    []types.Phase `json:"history"`
	Loading    bool          `json:"loading"`
	FeedActive bool          `json:"feed_active"`

	Label    string        `json:"label,omitempty"`
	AudioURL string        `json:"audio_url,omitempty"`
	Region   *types.Region `json:"region,omitempty"`

	ErrorKind types.Kind `json:"error_kind,omitempty"`
	Error     string     `json:"error,omitempty"`
	Notice    string     `json:"notice,omitempty"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Display is the captured image with any overlay, nil without a capture.
	Display image.Image `json:"-"`
}

// HasResult reports whether the snapshot carries an analysis result.
func (s Snapshot) HasResult() bool {
	return s.Label != ""
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:  s.ID,
		Generation: s.Generation,
		Phase:      s.phase,
		History:    append([]types.Phase(nil), s.history...),
		Loading:    s.busy || s.phase == types.PhaseSubmitting,
		FeedActive: s.feed.Active(),
	}
	if s.result != nil {
		snap.Label = s.result.Label
		snap.AudioURL = s.result.AudioURL
		if s.result.Region != nil {
			r := *s.result.Region
			snap.Region = &r
		}
	}
	if s.err != nil {
		snap.ErrorKind = types.KindOf(s.err)
		snap.Error = s.err.Error()
		snap.Notice = types.Notice(s.err)
	}
	if s.buffer != nil {
		snap.Width = s.buffer.Width()
		snap.Height = s.buffer.Height()
		snap.Display = s.buffer.Display()
	}
	return snap
}
