package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-tavern/client/internal/model/speech"
)

// CommandDevice captures raw PCM from an arecord-compatible command.
type CommandDevice struct {
	Command string
	// Device is passed as -D when set.
	Device string
}

// NewCommandDevice returns a device running command (default arecord).
func NewCommandDevice(command string) *CommandDevice {
	if command == "" {
		command = "arecord"
	}
	return &CommandDevice{Command: command}
}

func (d *CommandDevice) Open(ctx context.Context, c speech.CaptureConstraints) (Capture, error) {
	path, err := exec.LookPath(d.Command)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, d.Command)
		}
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, d.Command)
	}

	f := Format{SampleRate: c.SampleRate, Channels: c.Channels, BitDepth: 16}
	args := []string{
		"-q",
		"-t", "raw",
		"-f", "S16_LE",
		"-r", strconv.Itoa(f.SampleRate),
		"-c", strconv.Itoa(f.Channels),
	}
	if d.Device != "" {
		args = append(args, "-D", d.Device)
	}

	// 不绑定 ctx：录音生命周期由 Stop 控制
	cmd := exec.Command(path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("start capture: %w", err)
	}

	log.WithFields(logrus.Fields{
		"command":     d.Command,
		"sample_rate": f.SampleRate,
		"channels":    f.Channels,
	}).Debug("capture started")

	capture := &commandCapture{
		cmd:     cmd,
		format:  f,
		chunks:  make(chan []byte, 64),
		readEnd: make(chan struct{}),
	}
	go capture.read(stdout)
	return capture, nil
}

type commandCapture struct {
	cmd    *exec.Cmd
	format Format
	chunks chan []byte

	once    sync.Once
	stopErr error
	readEnd chan struct{}
}

func (c *commandCapture) Format() Format        { return c.format }
func (c *commandCapture) Chunks() <-chan []byte { return c.chunks }

func (c *commandCapture) read(r io.Reader) {
	defer close(c.readEnd)
	defer close(c.chunks)

	size := chunkBytes(c.format)
	for {
		buf := make([]byte, size)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			c.chunks <- buf[:n]
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, os.ErrClosed) {
				log.WithError(err).Warn("capture read failed")
			}
			return
		}
	}
}

// Stop interrupts the command so it flushes and exits; the reader then drains
// the pipe and closes Chunks.
func (c *commandCapture) Stop() error {
	c.once.Do(func() {
		if c.cmd.Process == nil {
			return
		}
		if err := c.cmd.Process.Signal(os.Interrupt); err != nil {
			_ = c.cmd.Process.Kill()
		}
		// Wait 会关闭管道，必须先读完
		<-c.readEnd
		if err := c.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				c.stopErr = fmt.Errorf("stop capture: %w", err)
			}
		}
	})
	return c.stopErr
}
