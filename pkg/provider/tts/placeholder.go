package tts

import (
	"encoding/base64"
	"sync"

	"github.com/voxaura/voxaura/pkg/pipeline"
)

// short silent-ish WAV clip served when every synthesizer is down, so the
// client's audio element still has something playable
const placeholderWAVBase64 = "UklGRnoGAABXQVZFZm10IBAAAAABAAEAQB8AAEAfAAABAAgAZGF0YQoGAACBhYqFbF1fdJivrJBhNjVgodDbq2EcBj+a2/LDciUFLIHO8tiJNwgZaLvt559NEAxQp+PwtmMcBjiR1/LMeSwFJHfH8N2QQAoUXrTp66hVFApGn+DyvmcfCjuO0y7RgTEGHW/A7+OZUSI="

var (
	placeholderOnce sync.Once
	placeholderWAV  []byte
)

// Placeholder returns the canned audio clip used as the synthesize stage's
// last-resort output.
func Placeholder() pipeline.Audio {
	placeholderOnce.Do(func() {
		data, err := base64.StdEncoding.DecodeString(placeholderWAVBase64)
		if err != nil {
			panic("tts: invalid placeholder audio literal: " + err.Error())
		}
		placeholderWAV = data
	})
	return pipeline.Audio{Data: placeholderWAV, Format: "wav"}
}
