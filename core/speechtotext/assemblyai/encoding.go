package assemblyai

import (
	"fmt"

	"github.com/koscakluka/ema-live/core/audio"
)

func convertEncoding(encoding audio.EncodingInfo) (string, error) {
	if encoding.SampleRate < 8000 || encoding.SampleRate > 48000 {
		return "", fmt.Errorf("unsupported sample rate %d", encoding.SampleRate)
	}

	switch encoding.Format {
	case audio.EncodingLinear16:
		return "pcm_s16le", nil
	case audio.EncodingMulaw:
		return "pcm_mulaw", nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", encoding.Format.Name())
	}
}
