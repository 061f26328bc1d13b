package ui

import (
	"time"

	"github.com/zhouzirui/z-tavern/client/internal/model/chat"
	"github.com/zhouzirui/z-tavern/client/internal/model/settings"
	"github.com/zhouzirui/z-tavern/client/internal/service/playback"
)

// EventType names a view update.
type EventType string

const (
	EventMessage       EventType = "message"
	EventWelcome       EventType = "welcome"
	EventRecording     EventType = "recording"
	EventInputs        EventType = "inputs"
	EventTimer         EventType = "timer"
	EventError         EventType = "error"
	EventProcessing    EventType = "processing"
	EventPlayButton    EventType = "play_button"
	EventBackendStatus EventType = "backend_status"
	EventSettings      EventType = "settings"
	EventDarkMode      EventType = "dark_mode"
)

// 界面文案
const (
	WelcomeText = "Welcome — Ready to chat"
	OnlineText  = "✅ Online"
	OfflineText = "Offline"
)

// Event is one view update fanned out to every listener.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// MessageData carries a rendered message, including its display timestamp.
type MessageData struct {
	Sender    chat.Sender `json:"sender"`
	Text      string      `json:"text"`
	AudioURL  string      `json:"audioUrl,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// ToggleData carries a boolean view flag.
type ToggleData struct {
	Active bool `json:"active"`
}

// TimerData carries the elapsed recording timer; Visible=false hides it.
type TimerData struct {
	Elapsed string `json:"elapsed,omitempty"`
	Visible bool   `json:"visible"`
}

// TextData carries a user-visible string.
type TextData struct {
	Text string `json:"text"`
}

// PlayButtonData carries the label of a message's play button.
type PlayButtonData struct {
	URL   string         `json:"url"`
	Label playback.Label `json:"label"`
}

// BackendStatusData carries the online indicator.
type BackendStatusData struct {
	Online bool   `json:"online"`
	Text   string `json:"text"`
}

// SettingsData carries the current preferences.
type SettingsData struct {
	Settings settings.Settings `json:"settings"`
}
