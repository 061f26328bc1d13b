package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-tavern/client/internal/audio"
	"github.com/zhouzirui/z-tavern/client/internal/config"
	"github.com/zhouzirui/z-tavern/client/internal/logging"
	"github.com/zhouzirui/z-tavern/client/internal/metrics"
	model "github.com/zhouzirui/z-tavern/client/internal/model/chat"
	settingsmodel "github.com/zhouzirui/z-tavern/client/internal/model/settings"
	"github.com/zhouzirui/z-tavern/client/internal/model/speech"
	"github.com/zhouzirui/z-tavern/client/internal/service/chat"
	"github.com/zhouzirui/z-tavern/client/internal/service/gateway"
	"github.com/zhouzirui/z-tavern/client/internal/service/playback"
	"github.com/zhouzirui/z-tavern/client/internal/service/recorder"
	"github.com/zhouzirui/z-tavern/client/internal/service/settings"
	"github.com/zhouzirui/z-tavern/client/internal/service/transcript"
	"github.com/zhouzirui/z-tavern/client/internal/storage"
	"github.com/zhouzirui/z-tavern/client/internal/ui"
)

var log = logging.For("app")

var (
	// ErrNotConfirmed is returned when a destructive action lacks confirmation.
	ErrNotConfirmed = errors.New("confirmation required")
	// ErrInputsDisabled is returned for typed text while a recording is active.
	ErrInputsDisabled = errors.New("text input is disabled while recording")
)

// App 组装所有组件，并提供界面/控制接口调用的操作入口。
type App struct {
	cfg     *config.Config
	hub     *ui.Hub
	kv      storage.Store
	metrics *metrics.Metrics

	gateway    *gateway.Client
	monitor    *gateway.Monitor
	transcript *transcript.Store
	settings   *settings.Store
	playback   *playback.Controller
	chat       *chat.Service
	recorder   *recorder.Controller

	// audible 为 false 时音频写入 discard sink，一次性命令无需等待播放
	audible bool
}

type options struct {
	kv         storage.Store
	device     audio.Device
	player     playback.Player
	httpClient *http.Client
	hub        *ui.Hub
}

// Option overrides a dependency, mainly for tests and one-shot commands.
type Option func(*options)

// WithStore uses kv instead of opening the on-disk store.
func WithStore(kv storage.Store) Option {
	return func(o *options) { o.kv = kv }
}

// WithDevice replaces the configured capture device.
func WithDevice(d audio.Device) Option {
	return func(o *options) { o.device = d }
}

// WithPlayer replaces the configured audio player.
func WithPlayer(p playback.Player) Option {
	return func(o *options) { o.player = p }
}

// WithHTTPClient sets the client used for backend and audio requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithHub shares an existing event hub.
func WithHub(h *ui.Hub) Option {
	return func(o *options) { o.hub = h }
}

// New wires every component from cfg. Call Init before use and Close when
// done.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.kv == nil {
		kv, err := storage.OpenPebble(cfg.Storage.Dir)
		if err != nil {
			return nil, err
		}
		o.kv = kv
	}
	if o.hub == nil {
		o.hub = ui.NewHub()
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}
	if o.device == nil {
		o.device = newDevice(cfg.Recording)
	}
	audible := true
	if o.player == nil {
		o.player = playback.NewMP3Player(o.httpClient, newSink(cfg.Playback))
		audible = cfg.Playback.Sink == "command" || cfg.Playback.Sink == "file"
	}

	m := metrics.New()
	a := &App{
		cfg:     cfg,
		hub:     o.hub,
		kv:      o.kv,
		metrics: m,
		audible: audible,
	}

	a.gateway = gateway.New(cfg.Backend.BaseURL,
		gateway.WithHTTPClient(o.httpClient),
		gateway.WithTimeout(cfg.Backend.Timeout),
		gateway.WithMetrics(m),
	)
	a.monitor = gateway.NewMonitor(a.gateway, a.hub, cfg.Health.Interval)
	a.transcript = transcript.NewStore(o.kv, a.hub, transcript.WithMetrics(m))
	a.settings = settings.NewStore(o.kv, a.hub)
	a.playback = playback.NewController(o.player, a.hub)
	a.chat = chat.NewService(a.gateway, a.transcript, a.playback, a.settings, a.hub, cfg.Backend.Language)

	recOpts := recorder.Options{
		MinDuration:   cfg.Recording.MinDuration,
		SettleDelay:   cfg.Recording.SettleDelay,
		TimerInterval: cfg.Recording.TimerInterval,
		Constraints:   speech.DefaultCaptureConstraints(),
	}
	recOpts.Constraints.SampleRate = cfg.Recording.SampleRate
	recOpts.Constraints.Channels = cfg.Recording.Channels
	a.recorder = recorder.NewController(o.device, a.chat, a.hub, recOpts, recorder.WithMetrics(m))

	return a, nil
}

func newDevice(cfg config.RecordingConfig) audio.Device {
	if cfg.Device == "file" {
		return audio.NewFileDevice(cfg.InputFile)
	}
	return audio.NewCommandDevice(cfg.DeviceCommand)
}

func newSink(cfg config.PlaybackConfig) playback.SinkFactory {
	switch cfg.Sink {
	case "command":
		return playback.CommandSink(cfg.Command)
	case "file":
		return playback.FileSink(cfg.OutputFile)
	default:
		return playback.DiscardSink()
	}
}

// Init loads the preferences, checks the backend and restores the history,
// in that order.
func (a *App) Init(ctx context.Context) {
	a.settings.Load()
	a.monitor.CheckOnce(ctx)
	if err := a.transcript.Restore(); err != nil {
		log.WithError(err).Warn("restore history failed")
	}

	log.WithFields(logrus.Fields{
		"backend":  a.gateway.BaseURL(),
		"messages": len(a.transcript.Messages()),
	}).Info("client initialised")
}

// Run keeps the backend status fresh until ctx is done. It returns at once
// when periodic checks are disabled.
func (a *App) Run(ctx context.Context) {
	if a.cfg.Health.Interval <= 0 {
		return
	}
	a.monitor.Run(ctx)
}

// Close stops any active recording, releases playback and closes storage.
func (a *App) Close() error {
	// 退出时不提交未完成的录音
	a.recorder.Cancel()
	a.playback.Close()
	return a.kv.Close()
}

// Hub returns the event hub every view update goes through.
func (a *App) Hub() *ui.Hub { return a.hub }

// Metrics returns the client's collectors.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// ToggleRecording is the record button.
func (a *App) ToggleRecording(ctx context.Context) error {
	return a.recorder.Toggle(ctx)
}

// StartRecording is the press half of press-and-hold.
func (a *App) StartRecording(ctx context.Context) error {
	return a.recorder.Start(ctx)
}

// StopRecording is the release half of press-and-hold.
func (a *App) StopRecording(ctx context.Context) error {
	return a.recorder.Stop(ctx)
}

// SendText sends a typed message. It is refused while the recorder has the
// text inputs disabled.
func (a *App) SendText(ctx context.Context, text string) error {
	if !a.hub.State().InputsEnabled {
		return ErrInputsDisabled
	}
	return a.chat.SendText(ctx, text)
}

// ProcessFile submits a WAV file as if it had been recorded.
func (a *App) ProcessFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read audio file: %w", err)
	}
	if len(data) == 0 {
		return recorder.ErrNoAudio
	}
	return a.chat.SubmitAudio(ctx, data, filepath.Base(path))
}

// TogglePlayback is a message's play button.
func (a *App) TogglePlayback(url string) playback.Label {
	return a.playback.Toggle(url)
}

// ClearHistory clears the transcript. confirm must be true.
func (a *App) ClearHistory(confirm bool) error {
	if !confirm {
		return ErrNotConfirmed
	}
	// 清空后旧消息的播放按钮不复存在
	a.playback.Close()
	return a.transcript.Clear()
}

// WaitPlayback blocks until the reply audio that is playing finishes or ctx
// is done. One-shot commands call it before Close so the reply is heard.
func (a *App) WaitPlayback(ctx context.Context) error {
	if !a.audible {
		return nil
	}
	return a.playback.Wait(ctx)
}

// Messages returns the transcript.
func (a *App) Messages() []model.Message {
	return a.transcript.Messages()
}

// Settings returns the current preferences.
func (a *App) Settings() settingsmodel.Settings {
	return a.settings.Current()
}

// SetAutoPlay persists the auto-play toggle.
func (a *App) SetAutoPlay(enabled bool) error {
	return a.settings.SetAutoPlay(enabled)
}

// SetDarkMode persists the dark-mode toggle.
func (a *App) SetDarkMode(enabled bool) error {
	return a.settings.SetDarkMode(enabled)
}

// ToggleDarkMode flips dark mode.
func (a *App) ToggleDarkMode() (bool, error) {
	return a.settings.ToggleDarkMode()
}

// SetMicSensitivity persists the sensitivity slider.
func (a *App) SetMicSensitivity(value int) error {
	return a.settings.SetMicSensitivity(value)
}

// CheckBackend re-runs the health check.
func (a *App) CheckBackend(ctx context.Context) bool {
	return a.monitor.CheckOnce(ctx)
}

// Status is a snapshot for the control API.
type Status struct {
	View     ui.State        `json:"view"`
	Recorder recorder.Status `json:"recorder"`
	Messages int             `json:"messages"`
	Playing  string          `json:"playing,omitempty"`
	Backend  string          `json:"backend"`
}

// Status returns the current client state.
func (a *App) Status() Status {
	return Status{
		View:     a.hub.State(),
		Recorder: a.recorder.Status(),
		Messages: len(a.transcript.Messages()),
		Playing:  a.playback.Current(),
		Backend:  a.gateway.BaseURL(),
	}
}
