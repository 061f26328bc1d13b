package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-tavern/client/internal/logging"
	"github.com/zhouzirui/z-tavern/client/internal/model/chat"
	"github.com/zhouzirui/z-tavern/client/internal/model/speech"
)

var log = logging.For("chat")

var ErrEmptyMessage = errors.New("message text is required")

// Gateway is the subset of the backend client used for exchanges.
type Gateway interface {
	ProcessAudio(ctx context.Context, req *speech.ProcessRequest) (*speech.ProcessResponse, error)
	SendText(ctx context.Context, message, language string) (*speech.ChatResponse, error)
	ResolveURL(path string) string
}

// Transcript records exchange results.
type Transcript interface {
	Append(sender chat.Sender, text, audioURL string) (chat.Message, error)
}

// Player starts audio playback.
type Player interface {
	Play(url string)
}

// Preferences exposes the auto-play toggle.
type Preferences interface {
	AutoPlay() bool
}

// View shows request progress and failures.
type View interface {
	SetProcessing(active bool)
	ShowError(msg string)
}

// Service 负责一次完整的对话交换：请求后端、写入聊天记录、自动播放。
// 消息只在请求完全成功后追加。
type Service struct {
	gateway    Gateway
	transcript Transcript
	player     Player
	prefs      Preferences
	view       View
	language   string
}

// NewService wires an exchange service.
func NewService(gateway Gateway, transcript Transcript, player Player, prefs Preferences, view View, language string) *Service {
	if language == "" {
		language = "en"
	}
	return &Service{
		gateway:    gateway,
		transcript: transcript,
		player:     player,
		prefs:      prefs,
		view:       view,
		language:   language,
	}
}

// Language returns the language hint sent with every request.
func (s *Service) Language() string {
	return s.language
}

// SendText sends a typed message. Blank input is rejected without contacting
// the backend.
func (s *Service) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.view.SetProcessing(true)
	resp, err := s.gateway.SendText(ctx, text, s.language)
	s.view.SetProcessing(false)
	if err != nil {
		return s.fail("send text", err)
	}

	s.append(chat.SenderUser, text, "")
	s.reply(resp.Response, resp.AudioURL)
	return nil
}

// SubmitAudio uploads a finished recording and renders the reply.
func (s *Service) SubmitAudio(ctx context.Context, payload []byte, filename string) error {
	s.view.SetProcessing(true)
	resp, err := s.gateway.ProcessAudio(ctx, &speech.ProcessRequest{
		Payload:  payload,
		Filename: filename,
		Language: s.language,
	})
	s.view.SetProcessing(false)
	if err != nil {
		return s.fail("process audio", err)
	}

	log.WithFields(logrus.Fields{
		"transcribed": resp.TranscribedText != "",
		"response":    resp.ResponseText != "",
		"audio":       resp.AudioURL != "",
	}).Debug("audio processed")

	if resp.TranscribedText != "" {
		s.append(chat.SenderUser, resp.TranscribedText, "")
	}
	s.reply(resp.ResponseText, resp.AudioURL)
	return nil
}

func (s *Service) reply(text, audioPath string) {
	audioURL := ""
	if audioPath != "" {
		audioURL = s.gateway.ResolveURL(audioPath)
	}

	if text != "" {
		s.append(chat.SenderBot, text, audioURL)
	}
	if audioURL != "" && s.prefs.AutoPlay() {
		s.player.Play(audioURL)
	}
}

// append 存储失败只记录日志，消息已在内存与界面中
func (s *Service) append(sender chat.Sender, text, audioURL string) {
	if _, err := s.transcript.Append(sender, text, audioURL); err != nil {
		log.WithError(err).WithField("sender", sender).Warn("append message failed")
	}
}

func (s *Service) fail(op string, err error) error {
	log.WithError(err).Error(op + " failed")
	s.view.ShowError("Error: " + err.Error())
	return err
}
