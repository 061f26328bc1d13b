package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/z-tavern/client/internal/app"
	"github.com/zhouzirui/z-tavern/client/internal/model/chat"
	"github.com/zhouzirui/z-tavern/client/internal/model/settings"
	"github.com/zhouzirui/z-tavern/client/internal/service/playback"
	"github.com/zhouzirui/z-tavern/client/internal/ui"
)

type stubClient struct{}

func (stubClient) Status() app.Status                      { return app.Status{Backend: "http://backend"} }
func (stubClient) ToggleRecording(context.Context) error   { return nil }
func (stubClient) StartRecording(context.Context) error    { return nil }
func (stubClient) StopRecording(context.Context) error     { return nil }
func (stubClient) SendText(context.Context, string) error  { return nil }
func (stubClient) Messages() []chat.Message                { return nil }
func (stubClient) ClearHistory(bool) error                 { return nil }
func (stubClient) TogglePlayback(string) playback.Label    { return playback.LabelPlay }
func (stubClient) Settings() settings.Settings             { return settings.Defaults() }
func (stubClient) SetAutoPlay(bool) error                  { return nil }
func (stubClient) SetDarkMode(bool) error                  { return nil }
func (stubClient) SetMicSensitivity(int) error             { return nil }
func (stubClient) CheckBackend(context.Context) bool       { return true }

func TestRouter(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	r := NewRouter(stubClient{}, ui.NewHub(), metrics)

	cases := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/control/status", http.StatusOK},
		{http.MethodGet, "/control/settings", http.StatusOK},
		{http.MethodOptions, "/control/messages", http.StatusNoContent},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/unknown", http.StatusNotFound},
	}

	for _, tc := range cases {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.code, resp.Code, "%s %s", tc.method, tc.path)
	}
}

func TestRouterWithoutMetrics(t *testing.T) {
	r := NewRouter(stubClient{}, ui.NewHub(), nil)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
