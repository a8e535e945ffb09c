// Package audiostore keeps synthesized and uploaded audio on disk. A stored
// filename always serves back the exact bytes that were written for it; files
// are content-named and never rewritten.
package audiostore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("audio store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "audio store: create directory")
	}
	return &Store{dir: dir}, nil
}

// PutSynthesized writes TTS output and returns the generated filename,
// tts-<hash8>-<uuid8>.<ext>.
func (s *Store) PutSynthesized(data []byte, ext string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("audio store: empty audio payload")
	}
	sum := sha256.Sum256(data)
	name := fmt.Sprintf("tts-%s-%s.%s",
		hex.EncodeToString(sum[:])[:8],
		strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		normalizeExt(ext))
	return name, s.write(name, data)
}

// PutUpload stores a browser upload and returns the generated filename,
// upload_<timestamp>_<uuid8>.<ext>.
func (s *Store) PutUpload(data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("audio store: empty upload")
	}
	name := fmt.Sprintf("upload_%s_%s.%s",
		time.Now().Format("20060102_150405"),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		extForContentType(contentType))
	return name, s.write(name, data)
}

func (s *Store) write(name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return errors.Wrap(err, "audio store: write file")
	}
	log.Debug().Str("file", name).Int("bytes", len(data)).Msg("stored audio file")
	return nil
}

// Read returns the stored bytes for a filename produced by Put*.
func (s *Store) Read(name string) ([]byte, error) {
	path, err := s.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("audio store: %s not found", name)
		}
		return nil, errors.Wrap(err, "audio store: read file")
	}
	return data, nil
}

// ServeHTTP serves /audio/{filename} with the right audio content type.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request, name string) {
	path, err := s.safePath(name)
	if err != nil {
		http.Error(w, "invalid audio filename", http.StatusBadRequest)
		return
	}
	if _, err := os.Stat(path); err != nil {
		http.Error(w, "audio file not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", contentTypeForName(name))
	http.ServeFile(w, r, path)
}

// safePath rejects anything that would escape the store directory.
func (s *Store) safePath(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", errors.Errorf("audio store: invalid filename %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

func normalizeExt(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		return "mp3"
	}
	return ext
}

func extForContentType(contentType string) string {
	switch {
	case strings.Contains(contentType, "mp4"):
		return "mp4"
	case strings.Contains(contentType, "wav"):
		return "wav"
	case strings.Contains(contentType, "mpeg"), strings.Contains(contentType, "mp3"):
		return "mp3"
	default:
		return "webm"
	}
}

func contentTypeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".webm":
		return "audio/webm"
	case ".mp4":
		return "audio/mp4"
	default:
		return "audio/mpeg"
	}
}
