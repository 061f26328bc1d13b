package transcript

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tavern/client/internal/metrics"
	"github.com/zhouzirui/z-tavern/client/internal/model/chat"
	"github.com/zhouzirui/z-tavern/client/internal/storage"
)

type fakeView struct {
	rendered []chat.Message
	welcome  bool
	shows    int
}

func (v *fakeView) RenderMessage(msg chat.Message) { v.rendered = append(v.rendered, msg) }
func (v *fakeView) ShowWelcome() {
	v.welcome = true
	v.rendered = nil
	v.shows++
}
func (v *fakeView) HideWelcome() { v.welcome = false }

type failingKV struct{ *storage.MemoryStore }

func (failingKV) Set(string, string) error { return errors.New("disk full") }

func fixedClock() time.Time {
	return time.Date(2025, 1, 2, 15, 4, 0, 0, time.UTC)
}

func pairs(msgs []chat.Message) [][2]string {
	out := make([][2]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, [2]string{string(m.Sender), m.Text})
	}
	return out
}

func TestAppendRendersAndPersists(t *testing.T) {
	kv := storage.NewMemoryStore()
	view := &fakeView{}
	store := NewStore(kv, view, WithClock(fixedClock))

	require.True(t, view.welcome)
	require.True(t, store.WelcomeVisible())

	msg, err := store.Append(chat.SenderUser, "hello", "")
	require.NoError(t, err)

	assert.Equal(t, "03:04 PM", msg.Timestamp)
	assert.False(t, view.welcome)
	assert.False(t, store.WelcomeVisible())
	assert.Len(t, view.rendered, 1)

	raw, err := kv.Get(storage.KeyChatHistory)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"sender":"user","text":"hello"}]`, raw)
}

func TestAppendRejectsUnknownSender(t *testing.T) {
	store := NewStore(storage.NewMemoryStore(), &fakeView{})
	_, err := store.Append(chat.Sender("system"), "hi", "")
	assert.Error(t, err)
	assert.Empty(t, store.Messages())
}

func TestPersistRestoreRoundTrip(t *testing.T) {
	kv := storage.NewMemoryStore()
	first := NewStore(kv, &fakeView{})

	_, err := first.Append(chat.SenderUser, "hello", "")
	require.NoError(t, err)
	_, err = first.Append(chat.SenderBot, "hi there", "http://localhost:8000/api/audio/1.mp3")
	require.NoError(t, err)
	_, err = first.Append(chat.SenderUser, "hello", "")
	require.NoError(t, err)
	require.NoError(t, first.Persist())

	view := &fakeView{}
	second := NewStore(kv, view)
	require.NoError(t, second.Restore())

	assert.Equal(t, pairs(first.Messages()), pairs(second.Messages()))
	assert.Len(t, view.rendered, 3)
	assert.Equal(t, "http://localhost:8000/api/audio/1.mp3", second.Messages()[1].AudioURL)
	assert.False(t, second.WelcomeVisible())
}

func TestRestoreCorruptHistoryIsEmpty(t *testing.T) {
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Set(storage.KeyChatHistory, "{not json"))

	store := NewStore(kv, &fakeView{})
	require.NoError(t, store.Restore())
	assert.Empty(t, store.Messages())
	assert.True(t, store.WelcomeVisible())
}

func TestRestoreWithoutHistory(t *testing.T) {
	store := NewStore(storage.NewMemoryStore(), &fakeView{})
	require.NoError(t, store.Restore())
	assert.Empty(t, store.Messages())
}

func TestClear(t *testing.T) {
	kv := storage.NewMemoryStore()
	view := &fakeView{}
	store := NewStore(kv, view)

	_, err := store.Append(chat.SenderUser, "hello", "")
	require.NoError(t, err)
	_, err = store.Append(chat.SenderBot, "hi", "")
	require.NoError(t, err)

	require.NoError(t, store.Clear())

	assert.Empty(t, store.Messages())
	assert.True(t, store.WelcomeVisible())
	assert.True(t, view.welcome)
	assert.Empty(t, view.rendered)

	_, err = kv.Get(storage.KeyChatHistory)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestAppendSurfacesStorageError(t *testing.T) {
	store := NewStore(failingKV{storage.NewMemoryStore()}, &fakeView{})

	msg, err := store.Append(chat.SenderUser, "hello", "")
	require.Error(t, err)
	assert.Equal(t, "hello", msg.Text)
	assert.Len(t, store.Messages(), 1)
}

func TestRestoreDoesNotCountMessages(t *testing.T) {
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Set(storage.KeyChatHistory,
		`[{"sender":"user","text":"earlier"},{"sender":"bot","text":"reply"}]`))

	m := metrics.New()
	store := NewStore(kv, &fakeView{}, WithMetrics(m))
	require.NoError(t, store.Restore())
	require.Len(t, store.Messages(), 2)

	_, err := store.Append(chat.SenderUser, "new", "")
	require.NoError(t, err)

	expected := `
# HELP voicechat_transcript_messages_total Messages appended to the transcript by sender.
# TYPE voicechat_transcript_messages_total counter
voicechat_transcript_messages_total{sender="user"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"voicechat_transcript_messages_total"))
}
