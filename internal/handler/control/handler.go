package control

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tavern/client/internal/app"
	"github.com/zhouzirui/z-tavern/client/internal/logging"
	"github.com/zhouzirui/z-tavern/client/internal/model/chat"
	"github.com/zhouzirui/z-tavern/client/internal/model/settings"
	chatService "github.com/zhouzirui/z-tavern/client/internal/service/chat"
	"github.com/zhouzirui/z-tavern/client/internal/service/gateway"
	"github.com/zhouzirui/z-tavern/client/internal/service/playback"
	"github.com/zhouzirui/z-tavern/client/internal/service/recorder"
	"github.com/zhouzirui/z-tavern/client/internal/ui"
	"github.com/zhouzirui/z-tavern/client/pkg/utils"
)

var log = logging.For("control")

// Client is the application surface driven over HTTP.
type Client interface {
	Status() app.Status
	ToggleRecording(ctx context.Context) error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	SendText(ctx context.Context, text string) error
	Messages() []chat.Message
	ClearHistory(confirm bool) error
	TogglePlayback(url string) playback.Label
	Settings() settings.Settings
	SetAutoPlay(enabled bool) error
	SetDarkMode(enabled bool) error
	SetMicSensitivity(value int) error
	CheckBackend(ctx context.Context) bool
}

// Handler 本地控制接口的HTTP处理器
type Handler struct {
	client Client
}

// New 创建控制处理器
func New(client Client) *Handler {
	return &Handler{client: client}
}

// RegisterRoutes 注册控制相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.handleStatus)

	r.Route("/record", func(rr chi.Router) {
		rr.Post("/toggle", h.handleRecord(h.client.ToggleRecording))
		rr.Post("/start", h.handleRecord(h.client.StartRecording))
		rr.Post("/stop", h.handleRecord(h.client.StopRecording))
	})

	r.Get("/messages", h.handleListMessages)
	r.Post("/messages", h.handleSendMessage)
	r.Delete("/messages", h.handleClearMessages)

	r.Post("/playback/toggle", h.handleTogglePlayback)

	r.Get("/settings", h.handleGetSettings)
	r.Patch("/settings", h.handleUpdateSettings)

	r.Post("/health", h.handleHealth)
}

type messageView struct {
	Sender    chat.Sender `json:"sender"`
	Text      string      `json:"text"`
	AudioURL  string      `json:"audioUrl,omitempty"`
	Timestamp string      `json:"timestamp"`
}

func toViews(msgs []chat.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{
			Sender:    m.Sender,
			Text:      m.Text,
			AudioURL:  m.AudioURL,
			Timestamp: m.Timestamp,
		})
	}
	return out
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.client.Status())
}

// handleRecord 录音操作；录音结束时会同步等待后端处理完成
func (h *Handler) handleRecord(op func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(r.Context()); err != nil {
			log.WithError(err).Debug("record request failed")
			utils.RespondError(w, statusFor(err), err.Error())
			return
		}
		utils.RespondJSON(w, http.StatusOK, h.client.Status().Recorder)
	}
}

func (h *Handler) handleListMessages(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"messages": toViews(h.client.Messages()),
	})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if !utils.DecodeJSON(w, r, &payload) {
		return
	}
	if !h.client.Status().View.InputsEnabled {
		utils.RespondError(w, http.StatusConflict, app.ErrInputsDisabled.Error())
		return
	}

	if err := h.client.SendText(r.Context(), payload.Text); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"messages": toViews(h.client.Messages()),
	})
}

func (h *Handler) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	confirm := r.URL.Query().Get("confirm") == "true"
	if err := h.client.ClearHistory(confirm); err != nil {
		if errors.Is(err, app.ErrNotConfirmed) {
			utils.RespondError(w, http.StatusBadRequest, "confirm=true is required")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTogglePlayback(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		URL string `json:"url"`
	}
	if !utils.DecodeJSON(w, r, &payload) {
		return
	}
	if payload.URL == "" {
		utils.RespondError(w, http.StatusBadRequest, "url is required")
		return
	}

	label := h.client.TogglePlayback(payload.URL)
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"url":   payload.URL,
		"label": label,
	})
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.client.Settings())
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AutoPlayAudio  *bool `json:"autoPlayAudio"`
		DarkMode       *bool `json:"darkMode"`
		MicSensitivity *int  `json:"micSensitivity"`
	}
	if !utils.DecodeJSON(w, r, &payload) {
		return
	}

	var err error
	if payload.AutoPlayAudio != nil {
		err = errors.Join(err, h.client.SetAutoPlay(*payload.AutoPlayAudio))
	}
	if payload.DarkMode != nil {
		err = errors.Join(err, h.client.SetDarkMode(*payload.DarkMode))
	}
	if payload.MicSensitivity != nil {
		err = errors.Join(err, h.client.SetMicSensitivity(*payload.MicSensitivity))
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, h.client.Settings())
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	online := h.client.CheckBackend(r.Context())
	text := ui.OfflineText
	if online {
		text = ui.OnlineText
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"online": online,
		"status": text,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrInputsDisabled):
		return http.StatusConflict
	case errors.Is(err, recorder.ErrTooShort), errors.Is(err, recorder.ErrNoAudio):
		return http.StatusUnprocessableEntity
	case errors.Is(err, recorder.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, recorder.ErrDeviceNotFound):
		return http.StatusServiceUnavailable
	case errors.Is(err, gateway.ErrUnexpectedStatus), errors.Is(err, gateway.ErrBackendFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
