package audiostore

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutSynthesizedRoundtrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	payload := []byte("fake mp3 bytes")
	name, err := store.PutSynthesized(payload, "mp3")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(name, "tts-"))
	require.True(t, strings.HasSuffix(name, ".mp3"))

	got, err := store.Read(name)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestPutUploadExtensionFromContentType(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	name, err := store.PutUpload([]byte("x"), "audio/wav")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(name, ".wav"))

	name, err = store.PutUpload([]byte("x"), "")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(name, ".webm"))
}

func TestEmptyPayloadRejected(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.PutSynthesized(nil, "mp3")
	require.Error(t, err)
	_, err = store.PutUpload(nil, "audio/webm")
	require.Error(t, err)
}

func TestServeHTTP(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	payload := []byte("served audio")
	name, err := store.PutSynthesized(payload, "mp3")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	store.ServeHTTP(rec, httptest.NewRequest("GET", "/audio/"+name, nil), name)
	require.Equal(t, 200, rec.Code)
	require.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	require.Equal(t, payload, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	store.ServeHTTP(rec, httptest.NewRequest("GET", "/audio/missing.mp3", nil), "missing.mp3")
	require.Equal(t, 404, rec.Code)
}

func TestPathTraversalRejected(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"../etc/passwd", "a/b.mp3", ".hidden", ""} {
		_, err := store.Read(name)
		require.Error(t, err, "name %q", name)
	}
}
