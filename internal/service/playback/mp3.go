package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

const (
	// go-mp3 always decodes to 16-bit stereo.
	mp3Channels       = 2
	mp3BytesPerSample = 2
	pumpChunk         = 4096
	// 允许输出领先播放进度的最大时长
	maxLead = 250 * time.Millisecond
)

// MP3Player streams MP3 responses from the backend into a PCM sink.
type MP3Player struct {
	client *http.Client
	sink   SinkFactory
}

// NewMP3Player creates a player writing to sink. A nil client uses
// http.DefaultClient.
func NewMP3Player(client *http.Client, sink SinkFactory) *MP3Player {
	if client == nil {
		client = http.DefaultClient
	}
	if sink == nil {
		sink = DiscardSink()
	}
	return &MP3Player{client: client, sink: sink}
}

// Open starts fetching url in the background; output is gated until Play.
func (p *MP3Player) Open(url string) (Handle, error) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &mp3Handle{
		url:    url,
		ctx:    ctx,
		cancel: cancel,
		paused: true,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go h.run(p)
	return h, nil
}

type mp3Handle struct {
	url    string
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	paused bool
	err    error
	played time.Duration

	wake chan struct{}
	done chan struct{}
}

func (h *mp3Handle) Play() error {
	select {
	case <-h.done:
		return errors.New("playback already finished")
	default:
	}

	h.mu.Lock()
	h.paused = false
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
	return nil
}

func (h *mp3Handle) Pause() {
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()
}

func (h *mp3Handle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

func (h *mp3Handle) Done() <-chan struct{} { return h.done }

func (h *mp3Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Position returns how much audio has been written to the sink.
func (h *mp3Handle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.played
}

func (h *mp3Handle) Close() error {
	h.cancel()
	<-h.done
	return nil
}

func (h *mp3Handle) run(p *MP3Player) {
	err := h.pump(p)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

func (h *mp3Handle) pump(p *MP3Player) error {
	req, err := http.NewRequestWithContext(h.ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("build audio request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch audio: HTTP %d", resp.StatusCode)
	}

	dec, err := mp3.NewDecoder(resp.Body)
	if err != nil {
		return fmt.Errorf("decode audio: %w", err)
	}

	sink, err := p.sink(dec.SampleRate(), mp3Channels)
	if err != nil {
		return err
	}
	defer sink.Close()

	bytesPerSecond := float64(dec.SampleRate() * mp3Channels * mp3BytesPerSample)
	buf := make([]byte, pumpChunk)
	var started time.Time

	for {
		if err := h.gate(&started); err != nil {
			return err
		}
		if started.IsZero() {
			started = time.Now()
		}

		n, readErr := dec.Read(buf)
		if n > 0 {
			if _, err := sink.Write(buf[:n]); err != nil {
				return fmt.Errorf("write audio: %w", err)
			}
			h.advance(time.Duration(float64(n) / bytesPerSecond * float64(time.Second)))
			if err := h.pace(started); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("decode audio: %w", readErr)
		}
	}
}

// waitPlaying blocks while the handle is paused.
func (h *mp3Handle) waitPlaying() error {
	for {
		if err := h.ctx.Err(); err != nil {
			return err
		}
		if !h.Paused() {
			return nil
		}
		select {
		case <-h.wake:
		case <-h.ctx.Done():
			return h.ctx.Err()
		}
	}
}

func (h *mp3Handle) advance(d time.Duration) {
	h.mu.Lock()
	h.played += d
	h.mu.Unlock()
}

// gate blocks while paused and shifts started by the paused time so resume
// does not burst.
func (h *mp3Handle) gate(started *time.Time) error {
	if !h.Paused() {
		return h.ctx.Err()
	}
	pausedAt := time.Now()
	if err := h.waitPlaying(); err != nil {
		return err
	}
	if !started.IsZero() {
		*started = started.Add(time.Since(pausedAt))
	}
	return nil
}

// pace keeps output at roughly real time.
func (h *mp3Handle) pace(started time.Time) error {
	ahead := h.Position() - time.Since(started)
	if ahead <= maxLead {
		return nil
	}

	timer := time.NewTimer(ahead - maxLead)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}
