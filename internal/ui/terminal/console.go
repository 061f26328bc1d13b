package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/zhouzirui/z-tavern/client/internal/service/playback"
)

// Actions is the dispatch surface the console drives.
type Actions interface {
	ToggleRecording(ctx context.Context) error
	SendText(ctx context.Context, text string) error
	TogglePlayback(url string) playback.Label
	ClearHistory(confirm bool) error
	ToggleDarkMode() (bool, error)
	SetAutoPlay(enabled bool) error
	SetMicSensitivity(value int) error
	CheckBackend(ctx context.Context) bool
}

// LineReader reads one edited line; *term.Terminal implements it.
type LineReader interface {
	ReadLine() (string, error)
}

const inputsDisabledText = "Text input is disabled while recording (/rec to stop)."

const helpText = `Commands:
  <text>           send a message
  /rec             start or stop recording
  /play [n]        play, pause or resume audio n (default: latest)
  /clear           clear chat history
  /dark            toggle dark mode
  /autoplay on|off toggle automatic audio playback
  /sens <0-100>    set microphone sensitivity
  /health          re-check the backend
  /help            show this help
  /quit            exit`

// Console 交互式终端：读取输入行并分发为应用操作。
type Console struct {
	actions  Actions
	renderer *Renderer
	lines    LineReader
	out      io.Writer
}

// NewConsole creates a console reading from lines and printing to out.
func NewConsole(actions Actions, renderer *Renderer, lines LineReader, out io.Writer) *Console {
	return &Console{actions: actions, renderer: renderer, lines: lines, out: out}
}

// Session is an interactive terminal on stdin/stdout.
type Session struct {
	Terminal *term.Terminal
	Renderer *Renderer
	restore  func()
}

// Open puts stdin into raw mode when it is a terminal and returns a session
// whose renderer writes through the line editor.
func Open(in *os.File, out *os.File) (*Session, error) {
	restore := func() {}
	var esc *term.EscapeCodes

	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, fmt.Errorf("raw terminal: %w", err)
		}
		restore = func() { _ = term.Restore(fd, state) }
	}

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{in, out}, idlePrompt)
	if term.IsTerminal(fd) {
		esc = t.Escape
		if w, h, err := term.GetSize(fd); err == nil {
			_ = t.SetSize(w, h)
		}
	}

	return &Session{
		Terminal: t,
		Renderer: NewRenderer(t, esc, t),
		restore:  restore,
	}, nil
}

// Close restores the terminal state.
func (s *Session) Close() {
	s.restore()
}

// Run reads commands until /quit, EOF or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	c.println("Type a message, or /help for commands.")

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := c.lines.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if quit := c.Dispatch(ctx, line); quit {
			return nil
		}
	}
}

// Dispatch executes one input line and reports whether the console should
// exit. Failures are already shown through the view, so they are not
// printed again here.
func (c *Console) Dispatch(ctx context.Context, line string) bool {
	if !strings.HasPrefix(line, "/") {
		if !c.renderer.InputsEnabled() {
			c.println(inputsDisabledText)
			return false
		}
		_ = c.actions.SendText(ctx, line)
		return false
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		c.println(helpText)
	case "/rec", "/record":
		_ = c.actions.ToggleRecording(ctx)
	case "/play":
		c.play(args)
	case "/clear":
		c.clear()
	case "/dark":
		if _, err := c.actions.ToggleDarkMode(); err != nil {
			c.println("Could not save setting: " + err.Error())
		}
	case "/autoplay":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			c.println("usage: /autoplay on|off")
			return false
		}
		if err := c.actions.SetAutoPlay(args[0] == "on"); err != nil {
			c.println("Could not save setting: " + err.Error())
		}
	case "/sens":
		v, err := parseArgInt(args)
		if err != nil {
			c.println("usage: /sens <0-100>")
			return false
		}
		if err := c.actions.SetMicSensitivity(v); err != nil {
			c.println("Could not save setting: " + err.Error())
		}
	case "/health":
		c.actions.CheckBackend(ctx)
	default:
		c.println("Unknown command " + cmd + ", try /help")
	}
	return false
}

func (c *Console) play(args []string) {
	var (
		url string
		ok  bool
	)
	if len(args) == 0 {
		url, ok = c.renderer.LastAudioURL()
	} else if n, err := parseArgInt(args); err == nil {
		url, ok = c.renderer.AudioURL(n)
	}
	if !ok {
		c.println("No such audio message")
		return
	}
	c.actions.TogglePlayback(url)
}

func (c *Console) clear() {
	c.println("Clear chat history? [y/N]")
	answer, err := c.lines.ReadLine()
	if err != nil {
		return
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != "y" && answer != "yes" {
		c.println("Cancelled.")
		return
	}
	if err := c.actions.ClearHistory(true); err != nil {
		c.println("Clear failed: " + err.Error())
	}
}

func (c *Console) println(text string) {
	_, _ = io.WriteString(c.out, text+"\n")
}

func parseArgInt(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("expected one argument")
	}
	return strconv.Atoi(args[0])
}
