package playback

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
)

// SinkFactory opens an output for signed 16-bit little-endian PCM.
type SinkFactory func(sampleRate, channels int) (io.WriteCloser, error)

// DiscardSink drops the PCM; playback still advances in real time.
func DiscardSink() SinkFactory {
	return func(int, int) (io.WriteCloser, error) {
		return nopWriteCloser{io.Discard}, nil
	}
}

// FileSink appends raw PCM to path.
func FileSink(path string) SinkFactory {
	return func(int, int) (io.WriteCloser, error) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open playback file: %w", err)
		}
		return f, nil
	}
}

// CommandSink pipes PCM into an aplay-compatible player.
func CommandSink(command string) SinkFactory {
	return func(sampleRate, channels int) (io.WriteCloser, error) {
		cmd := exec.Command(command,
			"-q",
			"-f", "S16_LE",
			"-r", strconv.Itoa(sampleRate),
			"-c", strconv.Itoa(channels),
		)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("player stdin: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start %s: %w", command, err)
		}
		return &commandSink{cmd: cmd, stdin: stdin}, nil
	}
}

type commandSink struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func (s *commandSink) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

func (s *commandSink) Close() error {
	_ = s.stdin.Close()
	return s.cmd.Wait()
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
