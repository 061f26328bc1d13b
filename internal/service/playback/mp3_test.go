package playback

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, h Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not finish")
	}
}

func TestMP3PlayerHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	h, err := NewMP3Player(srv.Client(), DiscardSink()).Open(srv.URL + "/api/audio/missing.mp3")
	require.NoError(t, err)
	require.NoError(t, h.Play())

	waitDone(t, h)
	require.Error(t, h.Err())
	assert.Contains(t, h.Err().Error(), "HTTP 404")
}

func TestMP3PlayerDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("definitely not mpeg"))
	}))
	defer srv.Close()

	h, err := NewMP3Player(srv.Client(), nil).Open(srv.URL)
	require.NoError(t, err)

	waitDone(t, h)
	assert.Error(t, h.Err())
}

func TestMP3HandleCloseWhilePaused(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	h, err := NewMP3Player(srv.Client(), DiscardSink()).Open(srv.URL)
	require.NoError(t, err)
	assert.True(t, h.Paused())

	require.NoError(t, h.Close())
	assert.NoError(t, h.Err())
	assert.Error(t, h.Play())
}

func TestFileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pcm")
	sink, err := FileSink(path)(44100, 2)
	require.NoError(t, err)

	_, err = sink.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)
}
