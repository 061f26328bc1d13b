package ui

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tavern/client/internal/model/chat"
	"github.com/zhouzirui/z-tavern/client/internal/model/settings"
	"github.com/zhouzirui/z-tavern/client/internal/service/playback"
)

func TestHubInitialState(t *testing.T) {
	st := NewHub().State()
	assert.True(t, st.Welcome)
	assert.True(t, st.InputsEnabled)
	assert.False(t, st.Online)
	assert.Equal(t, OfflineText, st.StatusText)
	assert.Equal(t, settings.Defaults(), st.Settings)
}

func TestHubTracksState(t *testing.T) {
	h := NewHub()

	h.SetBackendStatus(true)
	h.SetRecording(true)
	h.SetInputsEnabled(false)
	h.ShowTimer("01:23")
	h.HideWelcome()
	h.SetDarkMode(true)
	h.SetPlayButton("http://b/a.mp3", playback.LabelPause)
	h.ShowError("Error: HTTP 500")

	st := h.State()
	assert.True(t, st.Online)
	assert.Equal(t, OnlineText, st.StatusText)
	assert.True(t, st.Recording)
	assert.False(t, st.InputsEnabled)
	assert.Equal(t, "01:23", st.Timer)
	assert.False(t, st.Welcome)
	assert.True(t, st.DarkMode)
	assert.Equal(t, playback.LabelPause, st.PlayButtons["http://b/a.mp3"])
	assert.Equal(t, "Error: HTTP 500", st.LastError)

	h.HideTimer()
	h.SetProcessing(true)
	h.ShowWelcome()
	st = h.State()
	assert.Empty(t, st.Timer)
	assert.Empty(t, st.LastError)
	assert.Empty(t, st.PlayButtons)
}

func TestHubStateIsACopy(t *testing.T) {
	h := NewHub()
	h.SetPlayButton("u", playback.LabelPlay)

	st := h.State()
	st.PlayButtons["u"] = playback.LabelPause
	assert.Equal(t, playback.LabelPlay, h.State().PlayButtons["u"])
}

func TestHubListenersAndSubscribers(t *testing.T) {
	h := NewHub()

	var got []Event
	remove := h.AddListener(func(ev Event) { got = append(got, ev) })
	events, cancel := h.Subscribe(4)

	h.RenderMessage(chat.Message{Sender: chat.SenderBot, Text: "hi there", Timestamp: "03:04 PM"})

	require.Len(t, got, 1)
	assert.Equal(t, EventMessage, got[0].Type)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, MessageData{Sender: chat.SenderBot, Text: "hi there", Timestamp: "03:04 PM"}, got[0].Data)

	ev := <-events
	assert.Equal(t, got[0].ID, ev.ID)

	remove()
	cancel()
	cancel()
	h.ShowError("x")
	assert.Len(t, got, 1)
	_, open := <-events
	assert.False(t, open)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub()
	events, cancel := h.Subscribe(1)
	defer cancel()

	h.SetProcessing(true)
	h.SetProcessing(false)

	ev := <-events
	assert.Equal(t, ToggleData{Active: true}, ev.Data)
	select {
	case <-events:
		t.Fatal("expected second event to be dropped")
	default:
	}
}

func TestNotifierOnlyErrors(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	n := &Notifier{notify: func(title, message, _ string) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, title+": "+message)
		return errors.New("no notification daemon")
	}}

	h := NewHub()
	h.AddListener(n.Listener())
	h.SetRecording(true)
	h.ShowError("Microphone error: permission denied")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sent) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"Voice Chat: Microphone error: permission denied"}, sent)
	mu.Unlock()
}

func TestSlowNotifierDoesNotBlockHub(t *testing.T) {
	release := make(chan struct{})
	delivered := make(chan string, 16)
	n := &Notifier{notify: func(_, message, _ string) error {
		<-release
		delivered <- message
		return nil
	}}

	h := NewHub()
	h.AddListener(n.Listener())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			h.ShowError("Error: backend down")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ShowError blocked on the notifier")
	}
	assert.Equal(t, "Error: backend down", h.State().LastError)

	close(release)
	select {
	case msg := <-delivered:
		assert.Equal(t, "Error: backend down", msg)
	case <-time.After(time.Second):
		t.Fatal("notification never delivered")
	}
}
