package audio

import (
	"context"
	"errors"

	"github.com/zhouzirui/z-tavern/client/internal/logging"
	"github.com/zhouzirui/z-tavern/client/internal/model/speech"
)

var log = logging.For("audio")

// 设备错误
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrDeviceNotFound   = errors.New("requested device not found")
)

// Format describes captured PCM. Samples are signed little-endian.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// BytesPerSecond returns the PCM data rate.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

// Capture is an open microphone stream.
type Capture interface {
	Format() Format
	// Chunks delivers captured PCM. It is closed once Stop has flushed the
	// final chunk or the source fails.
	Chunks() <-chan []byte
	// Stop halts capture and releases the device. Calling it twice is safe.
	Stop() error
}

// Device opens captures honouring the requested constraints where it can.
type Device interface {
	Open(ctx context.Context, constraints speech.CaptureConstraints) (Capture, error)
}

// chunkBytes sizes chunks at roughly 100ms of audio.
func chunkBytes(f Format) int {
	n := f.BytesPerSecond() / 10
	frame := f.Channels * f.BitDepth / 8
	if frame > 0 {
		n -= n % frame
	}
	if n <= 0 {
		return 3200
	}
	return n
}
