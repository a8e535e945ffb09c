package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voxaura/voxaura/pkg/pipeline"
	"github.com/voxaura/voxaura/pkg/provider"
)

func newAssemblyAITestServer(t *testing.T, finalStatus, text, apiErr string) *httptest.Server {
	t.Helper()
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example/upload/1"})
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "https://cdn.example/upload/1", body["audio_url"])
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "tr-1", "status": "queued"})
	})
	mux.HandleFunc("/v2/transcript/tr-1", func(w http.ResponseWriter, r *http.Request) {
		polls++
		status := "processing"
		if polls >= 2 {
			status = finalStatus
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id": "tr-1", "status": status, "text": text, "error": apiErr,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAssemblyAITranscribe(t *testing.T) {
	srv := newAssemblyAITestServer(t, "completed", "hello world", "")
	a := NewAssemblyAI("test-key", time.Second,
		WithAssemblyAIBaseURL(srv.URL),
		WithAssemblyAIPolling(time.Millisecond, 10))

	out, err := a.Call(context.Background(), pipeline.AudioInput{Data: []byte("pcm")})
	require.NoError(t, err)
	require.Equal(t, "hello world", out)
}

func TestAssemblyAIJobError(t *testing.T) {
	srv := newAssemblyAITestServer(t, "error", "", "audio too short")
	a := NewAssemblyAI("test-key", time.Second,
		WithAssemblyAIBaseURL(srv.URL),
		WithAssemblyAIPolling(time.Millisecond, 10))

	_, err := a.Call(context.Background(), pipeline.AudioInput{Data: []byte("pcm")})
	require.Error(t, err)
	require.Equal(t, provider.MalformedResponse, provider.KindOf(err))
}

func TestAssemblyAIErrorClassification(t *testing.T) {
	cases := map[int]provider.ErrorKind{
		http.StatusUnauthorized:        provider.AuthError,
		http.StatusTooManyRequests:     provider.QuotaExceeded,
		http.StatusInternalServerError: provider.NetworkError,
	}
	for status, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", status)
		}))
		a := NewAssemblyAI("test-key", time.Second, WithAssemblyAIBaseURL(srv.URL))
		_, err := a.Call(context.Background(), pipeline.AudioInput{Data: []byte("pcm")})
		require.Error(t, err)
		require.Equal(t, want, provider.KindOf(err), "status %d", status)
		srv.Close()
	}
}

func TestAssemblyAIMissingKey(t *testing.T) {
	a := NewAssemblyAI("", time.Second)
	_, err := a.Call(context.Background(), pipeline.AudioInput{Data: []byte("pcm")})
	require.Equal(t, provider.AuthError, provider.KindOf(err))
}

func TestWhisperTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		require.Equal(t, "whisper-1", r.FormValue("model"))
		require.Equal(t, "en", r.FormValue("language"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		require.Equal(t, "audio.webm", header.Filename)
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "good morning"})
	}))
	defer srv.Close()

	w := NewWhisper("test-key", "", time.Second, WithWhisperBaseURL(srv.URL))
	out, err := w.Call(context.Background(), pipeline.AudioInput{Data: []byte("pcm"), ContentType: "audio/webm"})
	require.NoError(t, err)
	require.Equal(t, "good morning", out)
}

func TestWhisperQuotaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	w := NewWhisper("test-key", "en", time.Second, WithWhisperBaseURL(srv.URL))
	_, err := w.Call(context.Background(), pipeline.AudioInput{Data: []byte("pcm")})
	require.Equal(t, provider.QuotaExceeded, provider.KindOf(err))
}

func TestWhisperEmptyTranscriptionIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  "})
	}))
	defer srv.Close()

	w := NewWhisper("test-key", "en", time.Second, WithWhisperBaseURL(srv.URL))
	_, err := w.Call(context.Background(), pipeline.AudioInput{Data: []byte("pcm")})
	require.Equal(t, provider.MalformedResponse, provider.KindOf(err))
}
