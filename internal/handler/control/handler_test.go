package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tavern/client/internal/app"
	"github.com/zhouzirui/z-tavern/client/internal/model/chat"
	"github.com/zhouzirui/z-tavern/client/internal/model/settings"
	chatService "github.com/zhouzirui/z-tavern/client/internal/service/chat"
	"github.com/zhouzirui/z-tavern/client/internal/service/gateway"
	"github.com/zhouzirui/z-tavern/client/internal/service/playback"
	"github.com/zhouzirui/z-tavern/client/internal/service/recorder"
	"github.com/zhouzirui/z-tavern/client/internal/ui"
)

type fakeClient struct {
	recordErr error
	sendErr   error
	clearErr  error
	online    bool
	recording bool

	messages []chat.Message
	settings settings.Settings
	toggled  []string
	ops      []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{settings: settings.Defaults(), online: true}
}

func (f *fakeClient) Status() app.Status {
	return app.Status{
		View:     ui.State{Recording: f.recording, InputsEnabled: !f.recording},
		Recorder: recorder.Status{StateName: "idle"},
		Messages: len(f.messages),
		Backend:  "http://backend",
	}
}

func (f *fakeClient) record(name string) error {
	f.ops = append(f.ops, name)
	return f.recordErr
}

func (f *fakeClient) ToggleRecording(context.Context) error { return f.record("toggle") }
func (f *fakeClient) StartRecording(context.Context) error  { return f.record("start") }
func (f *fakeClient) StopRecording(context.Context) error   { return f.record("stop") }

func (f *fakeClient) SendText(_ context.Context, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages = append(f.messages,
		chat.Message{Sender: chat.SenderUser, Text: text, Timestamp: "03:04 PM"},
		chat.Message{Sender: chat.SenderBot, Text: "re: " + text, AudioURL: "http://backend/a.mp3", Timestamp: "03:04 PM"},
	)
	return nil
}

func (f *fakeClient) Messages() []chat.Message { return f.messages }

func (f *fakeClient) ClearHistory(confirm bool) error {
	if !confirm {
		return app.ErrNotConfirmed
	}
	if f.clearErr != nil {
		return f.clearErr
	}
	f.messages = nil
	return nil
}

func (f *fakeClient) TogglePlayback(url string) playback.Label {
	f.toggled = append(f.toggled, url)
	return playback.LabelPause
}

func (f *fakeClient) Settings() settings.Settings { return f.settings }

func (f *fakeClient) SetAutoPlay(enabled bool) error {
	f.settings.AutoPlayAudio = enabled
	return nil
}

func (f *fakeClient) SetDarkMode(enabled bool) error {
	f.settings.DarkMode = enabled
	return nil
}

func (f *fakeClient) SetMicSensitivity(value int) error {
	if value < 0 || value > 100 {
		return fmt.Errorf("sensitivity %d out of range", value)
	}
	f.settings.MicSensitivity = value
	return nil
}

func (f *fakeClient) CheckBackend(context.Context) bool { return f.online }

func setupRouter(client *fakeClient) *chi.Mux {
	r := chi.NewRouter()
	New(client).RegisterRoutes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestStatus(t *testing.T) {
	r := setupRouter(newFakeClient())

	resp := do(t, r, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, "http://backend", got["backend"])
	assert.Contains(t, got, "recorder")
}

func TestRecordRoutes(t *testing.T) {
	client := newFakeClient()
	r := setupRouter(client)

	for _, path := range []string{"/record/start", "/record/stop", "/record/toggle"} {
		resp := do(t, r, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusOK, resp.Code, path)
	}
	assert.Equal(t, []string{"start", "stop", "toggle"}, client.ops)
}

func TestRecordErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"too short", fmt.Errorf("%w: 10ms", recorder.ErrTooShort), http.StatusUnprocessableEntity},
		{"no audio", recorder.ErrNoAudio, http.StatusUnprocessableEntity},
		{"permission", recorder.ErrPermissionDenied, http.StatusForbidden},
		{"no device", recorder.ErrDeviceNotFound, http.StatusServiceUnavailable},
		{"backend status", fmt.Errorf("%w: HTTP 500", gateway.ErrUnexpectedStatus), http.StatusBadGateway},
		{"backend failure", gateway.ErrBackendFailure, http.StatusBadGateway},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newFakeClient()
			client.recordErr = tc.err
			resp := do(t, setupRouter(client), http.MethodPost, "/record/stop", nil)

			assert.Equal(t, tc.code, resp.Code)
			assert.Contains(t, resp.Body.String(), "error")
		})
	}
}

func TestSendAndListMessages(t *testing.T) {
	client := newFakeClient()
	r := setupRouter(client)

	resp := do(t, r, http.MethodPost, "/messages", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = do(t, r, http.MethodGet, "/messages", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var got struct {
		Messages []messageView `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	require.Len(t, got.Messages, 2)
	assert.Equal(t, chat.SenderUser, got.Messages[0].Sender)
	assert.Equal(t, "re: hello", got.Messages[1].Text)
	assert.Equal(t, "http://backend/a.mp3", got.Messages[1].AudioURL)
	assert.Equal(t, "03:04 PM", got.Messages[1].Timestamp)
}

func TestSendMessageErrors(t *testing.T) {
	client := newFakeClient()
	client.sendErr = chatService.ErrEmptyMessage
	r := setupRouter(client)

	resp := do(t, r, http.MethodPost, "/messages", map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearMessagesRequiresConfirm(t *testing.T) {
	client := newFakeClient()
	r := setupRouter(client)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/messages", map[string]string{"text": "hi"}).Code)

	resp := do(t, r, http.MethodDelete, "/messages", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Len(t, client.messages, 2)

	resp = do(t, r, http.MethodDelete, "/messages?confirm=true", nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Empty(t, client.messages)
}

func TestTogglePlayback(t *testing.T) {
	client := newFakeClient()
	r := setupRouter(client)

	resp := do(t, r, http.MethodPost, "/playback/toggle", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(t, r, http.MethodPost, "/playback/toggle", map[string]string{"url": "http://backend/a.mp3"})
	require.Equal(t, http.StatusOK, resp.Code)

	var got struct {
		URL   string         `json:"url"`
		Label playback.Label `json:"label"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, playback.LabelPause, got.Label)
	assert.Equal(t, []string{"http://backend/a.mp3"}, client.toggled)
}

func TestUpdateSettingsPartial(t *testing.T) {
	client := newFakeClient()
	r := setupRouter(client)

	resp := do(t, r, http.MethodPatch, "/settings", map[string]any{"darkMode": true})
	require.Equal(t, http.StatusOK, resp.Code)

	var got settings.Settings
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.True(t, got.DarkMode)
	assert.True(t, got.AutoPlayAudio)
	assert.Equal(t, 50, got.MicSensitivity)

	resp = do(t, r, http.MethodPatch, "/settings", map[string]any{"autoPlayAudio": false, "micSensitivity": 300})
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.False(t, client.settings.AutoPlayAudio)
	assert.Equal(t, 50, client.settings.MicSensitivity)
}

func TestHealth(t *testing.T) {
	client := newFakeClient()
	r := setupRouter(client)

	resp := do(t, r, http.MethodPost, "/health", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), ui.OnlineText)

	client.online = false
	resp = do(t, r, http.MethodPost, "/health", nil)
	assert.Contains(t, resp.Body.String(), `"online":false`)
	assert.Contains(t, resp.Body.String(), ui.OfflineText)
}

func TestSendMessageRefusedWhileRecording(t *testing.T) {
	client := newFakeClient()
	client.recording = true
	r := setupRouter(client)

	resp := do(t, r, http.MethodPost, "/messages", map[string]string{"text": "typed while recording"})
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), app.ErrInputsDisabled.Error())
	assert.Empty(t, client.messages)

	client.recording = false
	resp = do(t, r, http.MethodPost, "/messages", map[string]string{"text": "after"})
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Len(t, client.messages, 2)
}
