package deepgram

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/koscakluka/ema-phone/core/audio"
	"github.com/koscakluka/ema-phone/internal/utils"
)

const (
	DefaultSpeakURL          = "https://api.deepgram.com/v1/speak"
	DefaultStreamingSpeakURL = "wss://api.deepgram.com/v1/speak"
)

var ErrSynthesisFailed = errors.New("deepgram synthesis failed")

type deepgramVoice string

const (
	VoiceThalia    deepgramVoice = "aura-2-thalia-en"
	VoiceAndromeda deepgramVoice = "aura-2-andromeda-en"
	VoiceHelena    deepgramVoice = "aura-2-helena-en"
	VoiceApollo    deepgramVoice = "aura-2-apollo-en"
	VoiceArcas     deepgramVoice = "aura-2-arcas-en"
	VoiceAsteria   deepgramVoice = "aura-asteria-en"

	defaultVoice = VoiceThalia
)

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{VoiceThalia, VoiceAndromeda, VoiceHelena, VoiceApollo, VoiceArcas, VoiceAsteria}
}

// ParseVoice accepts a model name such as "aura-2-thalia-en". An empty name
// selects the default voice.
func ParseVoice(name string) (deepgramVoice, error) {
	if name == "" {
		return defaultVoice, nil
	}
	voice := deepgramVoice(name)
	if !slices.Contains(GetAvailableVoices(), voice) {
		return "", fmt.Errorf("invalid voice %q", name)
	}
	return voice, nil
}

type speechOptions struct {
	url          string
	voice        deepgramVoice
	encodingInfo audio.EncodingInfo
	chunkSize    int
	httpClient   *http.Client
}

type SpeechOption func(*speechOptions)

func WithURL(url string) SpeechOption {
	return func(o *speechOptions) {
		if url != "" {
			o.url = url
		}
	}
}

func WithVoice(voice deepgramVoice) SpeechOption {
	return func(o *speechOptions) {
		if voice != "" {
			o.voice = voice
		}
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SpeechOption {
	return func(o *speechOptions) {
		if !encodingInfo.IsZero() {
			o.encodingInfo = encodingInfo
		}
	}
}

// WithChunkSize caps the size of chunks read from a REST response body.
func WithChunkSize(size int) SpeechOption {
	return func(o *speechOptions) {
		if size > 0 {
			o.chunkSize = size
		}
	}
}

func WithHTTPClient(client *http.Client) SpeechOption {
	return func(o *speechOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func newSpeechOptions(defaultURL string, opts []SpeechOption) speechOptions {
	options := speechOptions{
		url:          defaultURL,
		voice:        defaultVoice,
		encodingInfo: audio.GetTelephonyEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.httpClient == nil {
		options.httpClient = utils.NewHTTPClient(0)
	}
	return options
}
