package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-tavern/client/internal/audio"
	"github.com/zhouzirui/z-tavern/client/internal/logging"
	"github.com/zhouzirui/z-tavern/client/internal/metrics"
	"github.com/zhouzirui/z-tavern/client/internal/model/speech"
)

var log = logging.For("recorder")

// UploadFilename is the multipart filename used for recorded audio.
const UploadFilename = "rec.wav"

// 录音错误
var (
	ErrTooShort         = errors.New("recording too short")
	ErrNoAudio          = errors.New("no audio captured")
	ErrPermissionDenied = audio.ErrPermissionDenied
	ErrDeviceNotFound   = audio.ErrDeviceNotFound
)

// State is the recording lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRequestingPermission
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingPermission:
		return "requesting_permission"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// View reflects the recording state in the UI.
type View interface {
	SetRecording(active bool)
	SetInputsEnabled(enabled bool)
	ShowTimer(elapsed string)
	HideTimer()
	ShowError(msg string)
}

// AudioSubmitter receives the finished recording.
type AudioSubmitter interface {
	SubmitAudio(ctx context.Context, payload []byte, filename string) error
}

// Options tunes the controller.
type Options struct {
	MinDuration   time.Duration
	SettleDelay   time.Duration
	TimerInterval time.Duration
	Constraints   speech.CaptureConstraints
}

// DefaultOptions mirrors the client defaults.
func DefaultOptions() Options {
	return Options{
		MinDuration:   200 * time.Millisecond,
		SettleDelay:   50 * time.Millisecond,
		TimerInterval: 50 * time.Millisecond,
		Constraints:   speech.DefaultCaptureConstraints(),
	}
}

// Status is a snapshot of the controller.
type Status struct {
	State     State         `json:"-"`
	StateName string        `json:"state"`
	SessionID string        `json:"session_id,omitempty"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

type session struct {
	id        string
	startedAt time.Time
	capture   audio.Capture

	// chunks 只由 collect 写入，collected 关闭后可读
	chunks    [][]byte
	bytes     int
	collected chan struct{}
}

func (s *session) collect() {
	defer close(s.collected)
	for chunk := range s.capture.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		s.chunks = append(s.chunks, chunk)
		s.bytes += len(chunk)
	}
}

// Controller 录音会话控制器，任意时刻至多一个活动会话。
type Controller struct {
	mu      sync.Mutex
	state   State
	session *session
	timer   *elapsedTimer

	device    audio.Device
	submitter AudioSubmitter
	view      View
	opts      Options
	now       func() time.Time
	metrics   *metrics.Metrics
}

// Option customises a Controller.
type Option func(*Controller)

// WithClock replaces time.Now for elapsed-time measurement.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithMetrics counts finished sessions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController creates an idle controller.
func NewController(device audio.Device, submitter AudioSubmitter, view View, opts Options, options ...Option) *Controller {
	c := &Controller{
		state:     StateIdle,
		device:    device,
		submitter: submitter,
		view:      view,
		opts:      opts,
		now:       time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot including the active session, if any.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.state, StateName: c.state.String()}
	if c.session != nil {
		st.SessionID = c.session.id
		st.Elapsed = c.now().Sub(c.session.startedAt)
	}
	return st
}

// Toggle starts a session when idle and stops it when recording.
func (c *Controller) Toggle(ctx context.Context) error {
	switch c.State() {
	case StateIdle:
		return c.Start(ctx)
	case StateRecording:
		return c.Stop(ctx)
	default:
		return nil
	}
}

// Start opens the capture device and begins a session. It is ignored unless
// the controller is idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		log.WithField("state", c.state).Debug("start ignored")
		c.mu.Unlock()
		return nil
	}
	c.state = StateRequestingPermission
	c.mu.Unlock()

	capture, err := c.device.Open(ctx, c.opts.Constraints)
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()

		log.WithError(err).Error("microphone error")
		c.metrics.ObserveRecording("device_error")
		c.view.ShowError("Microphone error: " + err.Error())
		c.view.SetRecording(false)
		c.view.SetInputsEnabled(true)
		return err
	}

	s := &session{
		id:        uuid.NewString(),
		startedAt: c.now(),
		capture:   capture,
		collected: make(chan struct{}),
	}
	go s.collect()

	timer := startElapsedTimer(s.startedAt, c.opts.TimerInterval, c.now, c.view)

	c.mu.Lock()
	c.session = s
	c.timer = timer
	c.state = StateRecording
	c.mu.Unlock()

	c.view.SetInputsEnabled(false)
	c.view.SetRecording(true)

	f := capture.Format()
	log.WithFields(logrus.Fields{
		"session":     s.id,
		"sample_rate": f.SampleRate,
		"channels":    f.Channels,
	}).Info("recording started")

	if c.opts.SettleDelay > 0 {
		t := time.NewTimer(c.opts.SettleDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
	return nil
}

// Stop ends the active session and finalizes it. It is a no-op unless
// recording.
func (c *Controller) Stop(ctx context.Context) error {
	s, elapsed, ok := c.halt(ctx)
	if !ok {
		return nil
	}
	return c.finalize(ctx, s, elapsed)
}

// Cancel ends the active session and discards its audio.
func (c *Controller) Cancel() {
	if s, _, ok := c.halt(context.Background()); ok {
		c.metrics.ObserveRecording("cancelled")
		log.WithField("session", s.id).Info("recording discarded")
	}
}

// halt releases the device and restores the controls, returning the
// stopped session.
func (c *Controller) halt(ctx context.Context) (*session, time.Duration, bool) {
	c.mu.Lock()
	if c.state != StateRecording || c.session == nil {
		log.WithField("state", c.state).Debug("stop ignored: already idle")
		c.mu.Unlock()
		return nil, 0, false
	}
	c.state = StateStopping
	s := c.session
	timer := c.timer
	c.session = nil
	c.timer = nil
	elapsed := c.now().Sub(s.startedAt)
	c.mu.Unlock()

	timer.stop()

	if err := s.capture.Stop(); err != nil {
		log.WithError(err).WithField("session", s.id).Warn("release capture failed; treating as already idle")
	}
	select {
	case <-s.collected:
	case <-ctx.Done():
		log.WithField("session", s.id).Warn("stop cancelled before capture flushed")
	}

	c.view.HideTimer()
	c.view.SetRecording(false)
	c.view.SetInputsEnabled(true)

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()

	log.WithFields(logrus.Fields{
		"session":    s.id,
		"elapsed_ms": elapsed.Milliseconds(),
	}).Info("recording stopped")
	return s, elapsed, true
}

func (c *Controller) finalize(ctx context.Context, s *session, elapsed time.Duration) error {
	select {
	case <-s.collected:
	default:
		// 取消的 Stop 不提交不完整的数据
		return ctx.Err()
	}

	if elapsed < c.opts.MinDuration {
		msg := fmt.Sprintf("Too short (%dms), need %dms", elapsed.Milliseconds(), c.opts.MinDuration.Milliseconds())
		c.metrics.ObserveRecording("too_short")
		c.view.ShowError(msg)
		return fmt.Errorf("%w: %s", ErrTooShort, msg)
	}

	if s.bytes == 0 {
		c.metrics.ObserveRecording("no_audio")
		c.view.ShowError("No audio captured")
		return ErrNoAudio
	}

	payload, err := audio.EncodeWAV(s.chunks, s.capture.Format())
	if err != nil {
		c.metrics.ObserveRecording("encode_error")
		c.view.ShowError("Error: " + err.Error())
		return err
	}

	log.WithFields(logrus.Fields{
		"session": s.id,
		"chunks":  len(s.chunks),
		"bytes":   len(payload),
	}).Debug("submitting recording")
	c.metrics.ObserveRecording("submitted")
	return c.submitter.SubmitAudio(ctx, payload, UploadFilename)
}
