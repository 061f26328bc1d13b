package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-tavern/client/internal/model/speech"
)

// FileDevice replays a WAV file as if it were the microphone. Useful for
// scripted sessions and machines without a capture device.
type FileDevice struct {
	Path string
	// Realtime paces chunks at the audio's own rate; otherwise the whole
	// file is delivered immediately.
	Realtime bool
}

// NewFileDevice returns a realtime file device for path.
func NewFileDevice(path string) *FileDevice {
	return &FileDevice{Path: path, Realtime: true}
}

func (d *FileDevice) Open(_ context.Context, c speech.CaptureConstraints) (Capture, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, d.Path)
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, d.Path)
		}
		return nil, fmt.Errorf("read input file: %w", err)
	}

	pcm, f, err := DecodeWAV(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if f.SampleRate != c.SampleRate || f.Channels != c.Channels {
		log.WithFields(logrus.Fields{
			"file_rate":     f.SampleRate,
			"file_channels": f.Channels,
			"want_rate":     c.SampleRate,
			"want_channels": c.Channels,
		}).Warn("input file does not match capture constraints, sending as-is")
	}

	capture := &fileCapture{
		format: f,
		chunks: make(chan []byte, 16),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go capture.replay(pcm, d.Realtime)
	return capture, nil
}

type fileCapture struct {
	format Format
	chunks chan []byte
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (c *fileCapture) Format() Format        { return c.format }
func (c *fileCapture) Chunks() <-chan []byte { return c.chunks }

func (c *fileCapture) replay(pcm []byte, realtime bool) {
	defer close(c.done)
	defer close(c.chunks)

	size := chunkBytes(c.format)
	interval := time.Duration(float64(size) / float64(c.format.BytesPerSecond()) * float64(time.Second))

	var ticker *time.Ticker
	if realtime {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	for off := 0; off < len(pcm); off += size {
		if ticker != nil {
			select {
			case <-ticker.C:
			case <-c.stop:
				return
			}
		}
		end := min(off+size, len(pcm))
		select {
		case c.chunks <- pcm[off:end]:
		case <-c.stop:
			return
		}
	}

	// 文件读完后保持静默，直到 Stop
	<-c.stop
}

func (c *fileCapture) Stop() error {
	c.once.Do(func() { close(c.stop) })
	<-c.done
	return nil
}
