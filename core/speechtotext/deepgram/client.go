package deepgram

import (
	"errors"
	"net/http"

	"github.com/koscakluka/ema-phone/core/audio"
	"github.com/koscakluka/ema-phone/internal/utils"
)

const (
	DefaultTranscriptionURL = "https://api.deepgram.com/v1/listen"
	DefaultStreamingURL     = "wss://api.deepgram.com/v1/listen"
	DefaultModel            = "nova-3"
	DefaultLanguage         = "en-US"
)

var ErrTranscriptionFailed = errors.New("deepgram transcription failed")

type clientOptions struct {
	url          string
	model        string
	language     string
	encodingInfo audio.EncodingInfo
	httpClient   *http.Client
}

type ClientOption func(*clientOptions)

func WithURL(url string) ClientOption {
	return func(o *clientOptions) {
		if url != "" {
			o.url = url
		}
	}
}

func WithModel(model string) ClientOption {
	return func(o *clientOptions) {
		if model != "" {
			o.model = model
		}
	}
}

func WithLanguage(language string) ClientOption {
	return func(o *clientOptions) {
		if language != "" {
			o.language = language
		}
	}
}

// WithEncodingInfo overrides the telephony default of 8kHz mono mu-law.
func WithEncodingInfo(encodingInfo audio.EncodingInfo) ClientOption {
	return func(o *clientOptions) {
		if !encodingInfo.IsZero() {
			o.encodingInfo = encodingInfo
		}
	}
}

// WithHTTPClient is only used by [TranscriptionClient].
func WithHTTPClient(client *http.Client) ClientOption {
	return func(o *clientOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func newClientOptions(defaultURL string, opts []ClientOption) clientOptions {
	options := clientOptions{
		url:          defaultURL,
		model:        DefaultModel,
		language:     DefaultLanguage,
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
