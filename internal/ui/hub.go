package ui

import (
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-tavern/client/internal/logging"
	"github.com/zhouzirui/z-tavern/client/internal/model/chat"
	"github.com/zhouzirui/z-tavern/client/internal/model/settings"
	"github.com/zhouzirui/z-tavern/client/internal/service/playback"
)

var log = logging.For("ui")

// Listener receives events synchronously and must not block.
type Listener func(Event)

// State is the current view, as the listeners have been told.
type State struct {
	Online        bool                      `json:"online"`
	StatusText    string                    `json:"status_text"`
	Recording     bool                      `json:"recording"`
	InputsEnabled bool                      `json:"inputs_enabled"`
	Processing    bool                      `json:"processing"`
	Timer         string                    `json:"timer,omitempty"`
	Welcome       bool                      `json:"welcome"`
	DarkMode      bool                      `json:"dark_mode"`
	Settings      settings.Settings         `json:"settings"`
	LastError     string                    `json:"last_error,omitempty"`
	PlayButtons   map[string]playback.Label `json:"play_buttons,omitempty"`
}

// Hub 实现所有组件的 View 接口，把每次界面更新转换为 Event 分发给监听者。
type Hub struct {
	mu        sync.RWMutex
	state     State
	nextID    int
	listeners map[int]Listener
	subs      map[int]chan Event
	now       func() time.Time
}

// NewHub creates a hub in the initial view state.
func NewHub() *Hub {
	return &Hub{
		state: State{
			StatusText:    OfflineText,
			InputsEnabled: true,
			Welcome:       true,
			Settings:      settings.Defaults(),
			PlayButtons:   make(map[string]playback.Label),
		},
		listeners: make(map[int]Listener),
		subs:      make(map[int]chan Event),
		now:       time.Now,
	}
}

// AddListener registers l and returns a function removing it.
func (h *Hub) AddListener(l Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = l
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

// Subscribe returns a buffered event channel. Slow subscribers lose events
// rather than blocking the hub.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// State returns a copy of the current view state.
func (h *Hub) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := h.state
	st.PlayButtons = maps.Clone(h.state.PlayButtons)
	return st
}

// transcript.View

func (h *Hub) RenderMessage(msg chat.Message) {
	h.publish(EventMessage, MessageData{
		Sender:    msg.Sender,
		Text:      msg.Text,
		AudioURL:  msg.AudioURL,
		Timestamp: msg.Timestamp,
	}, nil)
}

func (h *Hub) ShowWelcome() {
	h.publish(EventWelcome, ToggleData{Active: true}, func(s *State) {
		s.Welcome = true
		clear(s.PlayButtons)
	})
}

func (h *Hub) HideWelcome() {
	h.publish(EventWelcome, ToggleData{Active: false}, func(s *State) { s.Welcome = false })
}

// recorder.View

func (h *Hub) SetRecording(active bool) {
	h.publish(EventRecording, ToggleData{Active: active}, func(s *State) { s.Recording = active })
}

func (h *Hub) SetInputsEnabled(enabled bool) {
	h.publish(EventInputs, ToggleData{Active: enabled}, func(s *State) { s.InputsEnabled = enabled })
}

func (h *Hub) ShowTimer(elapsed string) {
	h.publish(EventTimer, TimerData{Elapsed: elapsed, Visible: true}, func(s *State) { s.Timer = elapsed })
}

func (h *Hub) HideTimer() {
	h.publish(EventTimer, TimerData{}, func(s *State) { s.Timer = "" })
}

// ShowError is shared by the recorder and the chat service.
func (h *Hub) ShowError(msg string) {
	h.publish(EventError, TextData{Text: msg}, func(s *State) { s.LastError = msg })
}

// chat.View

func (h *Hub) SetProcessing(active bool) {
	h.publish(EventProcessing, ToggleData{Active: active}, func(s *State) {
		s.Processing = active
		if active {
			s.LastError = ""
		}
	})
}

// playback.View

func (h *Hub) SetPlayButton(url string, label playback.Label) {
	h.publish(EventPlayButton, PlayButtonData{URL: url, Label: label}, func(s *State) {
		s.PlayButtons[url] = label
	})
}

// gateway.StatusView

func (h *Hub) SetBackendStatus(online bool) {
	text := OfflineText
	if online {
		text = OnlineText
	}
	h.publish(EventBackendStatus, BackendStatusData{Online: online, Text: text}, func(s *State) {
		s.Online = online
		s.StatusText = text
	})
}

// settings.View

func (h *Hub) SetDarkMode(enabled bool) {
	h.publish(EventDarkMode, ToggleData{Active: enabled}, func(s *State) { s.DarkMode = enabled })
}

func (h *Hub) SetSettings(st settings.Settings) {
	h.publish(EventSettings, SettingsData{Settings: st}, func(s *State) { s.Settings = st })
}

func (h *Hub) publish(t EventType, data any, mutate func(*State)) {
	ev := Event{
		ID:   uuid.NewString(),
		Type: t,
		Time: h.now(),
		Data: data,
	}

	h.mu.Lock()
	if mutate != nil {
		mutate(&h.state)
	}
	listeners := make([]Listener, 0, len(h.listeners))
	for _, l := range h.listeners {
		listeners = append(listeners, l)
	}
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			log.WithField("type", t).Debug("subscriber lagging, event dropped")
		}
	}
	h.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}
