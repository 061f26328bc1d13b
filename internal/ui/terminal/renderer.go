package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/zhouzirui/z-tavern/client/internal/model/chat"
	"github.com/zhouzirui/z-tavern/client/internal/service/settings"
	"github.com/zhouzirui/z-tavern/client/internal/ui"
)

// PromptSetter is implemented by *term.Terminal.
type PromptSetter interface {
	SetPrompt(prompt string)
}

const (
	idlePrompt       = "> "
	processingPrompt = "… "
)

// Renderer 把界面事件渲染为终端输出。
type Renderer struct {
	mu     sync.Mutex
	out    io.Writer
	prompt PromptSetter
	esc    *term.EscapeCodes

	dark       bool
	recording  bool
	processing bool
	inputsOff  bool
	timer      string
	// 带音频的消息 URL，按渲染顺序，/play N 使用 1 起始编号
	audio []string
}

// NewRenderer writes to out. esc may be nil for plain output.
func NewRenderer(out io.Writer, esc *term.EscapeCodes, prompt PromptSetter) *Renderer {
	return &Renderer{out: out, esc: esc, prompt: prompt}
}

// Listener adapts the renderer for Hub.AddListener.
func (r *Renderer) Listener() ui.Listener {
	return r.handle
}

// AudioURL returns the URL of the nth (1-based) audio message.
func (r *Renderer) AudioURL(n int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n < 1 || n > len(r.audio) {
		return "", false
	}
	return r.audio[n-1], true
}

// InputsEnabled reports whether typed text is currently accepted.
func (r *Renderer) InputsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.inputsOff
}

// LastAudioURL returns the most recent audio message URL.
func (r *Renderer) LastAudioURL() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.audio) == 0 {
		return "", false
	}
	return r.audio[len(r.audio)-1], true
}

func (r *Renderer) handle(ev ui.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch data := ev.Data.(type) {
	case ui.MessageData:
		r.renderMessage(data)
	case ui.TextData:
		if ev.Type == ui.EventError {
			r.line(r.color(r.escRed()), "⚠️  "+data.Text)
		}
	case ui.ToggleData:
		r.toggle(ev.Type, data.Active)
	case ui.TimerData:
		r.timer = data.Elapsed
		r.updatePrompt()
	case ui.PlayButtonData:
		if n := r.audioIndex(data.URL); n > 0 {
			r.line(nil, fmt.Sprintf("   [%d] %s %s", n, data.Label.Icon, data.Label.Title))
		}
	case ui.BackendStatusData:
		r.line(nil, "Backend: "+data.Text)
	case ui.SettingsData:
		s := data.Settings
		r.line(nil, fmt.Sprintf("Settings: auto-play=%t dark=%t mic=%s",
			s.AutoPlayAudio, s.DarkMode, settings.SensitivityLabel(s.MicSensitivity)))
	}
}

func (r *Renderer) toggle(t ui.EventType, active bool) {
	switch t {
	case ui.EventWelcome:
		if active {
			r.audio = r.audio[:0]
			r.line(nil, ui.WelcomeText)
		}
	case ui.EventRecording:
		r.recording = active
		if active {
			r.line(nil, "🔴 Recording… (/rec to stop)")
		}
		r.updatePrompt()
	case ui.EventProcessing:
		r.processing = active
		r.updatePrompt()
	case ui.EventInputs:
		r.inputsOff = !active
	case ui.EventDarkMode:
		r.dark = active
	}
}

func (r *Renderer) renderMessage(m ui.MessageData) {
	name, colorCode := "You", r.userColor()
	if m.Sender == chat.SenderBot {
		name, colorCode = "Bot", r.botColor()
	}

	text := fmt.Sprintf("[%s] %s: %s", m.Timestamp, name, m.Text)
	if m.AudioURL != "" {
		r.audio = append(r.audio, m.AudioURL)
		text += fmt.Sprintf("  🔊 /play %d", len(r.audio))
	}
	r.line(r.color(colorCode), text)
}

func (r *Renderer) audioIndex(url string) int {
	for i := len(r.audio) - 1; i >= 0; i-- {
		if r.audio[i] == url {
			return i + 1
		}
	}
	return 0
}

func (r *Renderer) updatePrompt() {
	if r.prompt == nil {
		return
	}
	switch {
	case r.recording:
		r.prompt.SetPrompt(fmt.Sprintf("🔴 %s > ", orZero(r.timer)))
	case r.processing:
		r.prompt.SetPrompt(processingPrompt)
	default:
		r.prompt.SetPrompt(idlePrompt)
	}
}

func (r *Renderer) line(colorCode []byte, text string) {
	var b strings.Builder
	if colorCode != nil {
		b.Write(colorCode)
	}
	b.WriteString(text)
	if colorCode != nil && r.esc != nil {
		b.Write(r.esc.Reset)
	}
	b.WriteByte('\n')
	_, _ = io.WriteString(r.out, b.String())
}

func (r *Renderer) color(code []byte) []byte {
	if r.esc == nil {
		return nil
	}
	return code
}

func (r *Renderer) userColor() []byte {
	if r.esc == nil {
		return nil
	}
	if r.dark {
		return r.esc.Yellow
	}
	return r.esc.Green
}

func (r *Renderer) botColor() []byte {
	if r.esc == nil {
		return nil
	}
	if r.dark {
		return r.esc.Cyan
	}
	return r.esc.Blue
}

func (r *Renderer) escRed() []byte {
	if r.esc == nil {
		return nil
	}
	return r.esc.Red
}

func orZero(timer string) string {
	if timer == "" {
		return "00:00"
	}
	return timer
}
