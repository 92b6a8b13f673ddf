package deepgram

import (
	"fmt"

	"github.com/koscakluka/ema-phone/core/audio"
)

type encodingInfo struct {
	SampleRate int
	Format     string
}

// convertEncoding maps an audio encoding onto the names and sample rates
// accepted by the listen API.
func convertEncoding(encoding audio.EncodingInfo) (encodingInfo, error) {
	switch encoding.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		return encodingInfo{}, fmt.Errorf("unsupported sample rate %d", encoding.SampleRate)
	}

	switch encoding.Format {
	case audio.EncodingLinear16:
	case audio.EncodingALaw, audio.EncodingMulaw:
		if encoding.SampleRate != 8000 {
			return encodingInfo{}, fmt.Errorf("unsupported sample rate %d for %s encoding", encoding.SampleRate, encoding.Format.Name())
		}
	default:
		return encodingInfo{}, fmt.Errorf("unsupported encoding %q", encoding.Format.Name())
	}

	return encodingInfo{SampleRate: encoding.SampleRate, Format: encoding.Format.Name()}, nil
}
