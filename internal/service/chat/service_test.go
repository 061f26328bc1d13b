package chat_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/z-tavern/client/internal/model/chat"
	"github.com/zhouzirui/z-tavern/client/internal/model/speech"
	chat "github.com/zhouzirui/z-tavern/client/internal/service/chat"
	"github.com/zhouzirui/z-tavern/client/internal/service/gateway"
	"github.com/zhouzirui/z-tavern/client/internal/service/transcript"
	"github.com/zhouzirui/z-tavern/client/internal/storage"
)

type nopTranscriptView struct{}

func (nopTranscriptView) RenderMessage(model.Message) {}
func (nopTranscriptView) ShowWelcome()                {}
func (nopTranscriptView) HideWelcome()                {}

type fakePlayer struct {
	mu     sync.Mutex
	played []string
}

func (p *fakePlayer) Play(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, url)
}

type prefs bool

func (p prefs) AutoPlay() bool { return bool(p) }

type fakeView struct {
	processing []bool
	errors     []string
}

func (v *fakeView) SetProcessing(active bool) { v.processing = append(v.processing, active) }
func (v *fakeView) ShowError(msg string)      { v.errors = append(v.errors, msg) }

type fakeGateway struct {
	chatResp    *speech.ChatResponse
	processResp *speech.ProcessResponse
	err         error

	chatCalls    int
	processCalls int
	lastProcess  *speech.ProcessRequest
	lastLanguage string
}

func (g *fakeGateway) ProcessAudio(_ context.Context, req *speech.ProcessRequest) (*speech.ProcessResponse, error) {
	g.processCalls++
	g.lastProcess = req
	if g.err != nil {
		return nil, g.err
	}
	return g.processResp, nil
}

func (g *fakeGateway) SendText(_ context.Context, _ string, language string) (*speech.ChatResponse, error) {
	g.chatCalls++
	g.lastLanguage = language
	if g.err != nil {
		return nil, g.err
	}
	return g.chatResp, nil
}

func (g *fakeGateway) ResolveURL(path string) string {
	return "http://backend" + path
}

type pair struct {
	Sender model.Sender
	Text   string
}

func pairs(msgs []model.Message) []pair {
	out := make([]pair, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, pair{m.Sender, m.Text})
	}
	return out
}

func TestSendTextScenario(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, gateway.PathChat, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","response":"hi there","audio_url":"/audio/1.mp3"}`))
	}))
	defer backend.Close()

	client := gateway.New(backend.URL)
	store := transcript.NewStore(storage.NewMemoryStore(), nopTranscriptView{})
	player := &fakePlayer{}
	view := &fakeView{}
	svc := chat.NewService(client, store, player, prefs(true), view, "en")

	require.NoError(t, svc.SendText(context.Background(), "hello"))

	assert.Equal(t, []pair{
		{model.SenderUser, "hello"},
		{model.SenderBot, "hi there"},
	}, pairs(store.Messages()))
	assert.Equal(t, []string{backend.URL + "/audio/1.mp3"}, player.played)
	assert.Equal(t, backend.URL+"/audio/1.mp3", store.Messages()[1].AudioURL)
	assert.Equal(t, []bool{true, false}, view.processing)
	assert.Empty(t, view.errors)
}

func TestSendTextAutoPlayDisabled(t *testing.T) {
	gw := &fakeGateway{chatResp: &speech.ChatResponse{Response: "hi there", AudioURL: "/audio/1.mp3"}}
	store := transcript.NewStore(storage.NewMemoryStore(), nopTranscriptView{})
	player := &fakePlayer{}
	svc := chat.NewService(gw, store, player, prefs(false), &fakeView{}, "")

	require.NoError(t, svc.SendText(context.Background(), "hello"))
	assert.Empty(t, player.played)
	assert.Len(t, store.Messages(), 2)
	assert.Equal(t, "en", gw.lastLanguage)
}

func TestSendTextRejectsBlank(t *testing.T) {
	gw := &fakeGateway{}
	svc := chat.NewService(gw, transcript.NewStore(storage.NewMemoryStore(), nopTranscriptView{}), &fakePlayer{}, prefs(true), &fakeView{}, "en")

	err := svc.SendText(context.Background(), "   ")
	assert.True(t, errors.Is(err, chat.ErrEmptyMessage))
	assert.Zero(t, gw.chatCalls)
}

func TestFailureLeavesTranscriptUntouched(t *testing.T) {
	gw := &fakeGateway{err: errors.New("HTTP 500")}
	store := transcript.NewStore(storage.NewMemoryStore(), nopTranscriptView{})
	view := &fakeView{}
	svc := chat.NewService(gw, store, &fakePlayer{}, prefs(true), view, "en")

	require.Error(t, svc.SendText(context.Background(), "hello"))
	require.Error(t, svc.SubmitAudio(context.Background(), []byte("RIFF"), "rec.wav"))

	assert.Empty(t, store.Messages())
	assert.Equal(t, []string{"Error: HTTP 500", "Error: HTTP 500"}, view.errors)
	assert.Equal(t, []bool{true, false, true, false}, view.processing)
}

func TestSubmitAudioOneMessagePerField(t *testing.T) {
	cases := []struct {
		name string
		resp speech.ProcessResponse
		want []pair
		play int
	}{
		{
			name: "full reply",
			resp: speech.ProcessResponse{TranscribedText: "what time is it", ResponseText: "noon", AudioURL: "/api/audio/2.mp3"},
			want: []pair{{model.SenderUser, "what time is it"}, {model.SenderBot, "noon"}},
			play: 1,
		},
		{
			name: "transcription only",
			resp: speech.ProcessResponse{TranscribedText: "hmm"},
			want: []pair{{model.SenderUser, "hmm"}},
		},
		{
			name: "empty reply",
			resp: speech.ProcessResponse{},
			want: []pair{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := tc.resp
			gw := &fakeGateway{processResp: &resp}
			store := transcript.NewStore(storage.NewMemoryStore(), nopTranscriptView{})
			player := &fakePlayer{}
			svc := chat.NewService(gw, store, player, prefs(true), &fakeView{}, "zh")

			require.NoError(t, svc.SubmitAudio(context.Background(), []byte("RIFF...."), "rec.wav"))

			assert.Equal(t, tc.want, pairs(store.Messages()))
			assert.Len(t, player.played, tc.play)
			assert.Equal(t, "rec.wav", gw.lastProcess.Filename)
			assert.Equal(t, "zh", gw.lastProcess.Language)
		})
	}
}
