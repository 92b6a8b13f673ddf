package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-phone/core/llms"
	"github.com/koscakluka/ema-phone/core/texttospeech"
)

const (
	DefaultSessionTimeout = 5 * time.Minute
	DefaultQueueCapacity  = 10
	DefaultWriteTimeout   = 10 * time.Second
	// DefaultMaxFrameSize fits several minutes of base64 encoded 8kHz
	// mu-law audio in one media frame.
	DefaultMaxFrameSize = 4 << 20
)

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, text string) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, history []llms.Turn, prompt string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (texttospeech.Stream, error)
}

// Providers are the adapters a session runs its turns through. They are
// shared between sessions and must be safe for concurrent use.
type Providers struct {
	Transcriber Transcriber
	Retriever   Retriever
	Generator   Generator
	Synthesizer Synthesizer
}

func (p Providers) missing() []string {
	var missing []string
	if p.Transcriber == nil {
		missing = append(missing, "transcriber")
	}
	if p.Retriever == nil {
		missing = append(missing, "retriever")
	}
	if p.Generator == nil {
		missing = append(missing, "generator")
	}
	if p.Synthesizer == nil {
		missing = append(missing, "synthesizer")
	}
	return missing
}

type stopper interface {
	Stop() bool
}

type sessionOptions struct {
	timeout       time.Duration
	queueCapacity int
	writeTimeout  time.Duration
	maxFrameSize  int

	now       func() time.Time
	afterFunc func(time.Duration, func()) stopper
}

func defaultSessionOptions() sessionOptions {
	return sessionOptions{
		timeout:       DefaultSessionTimeout,
		queueCapacity: DefaultQueueCapacity,
		writeTimeout:  DefaultWriteTimeout,
		maxFrameSize:  DefaultMaxFrameSize,
		now:           time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

type SessionOption func(*sessionOptions)

// WithTimeout sets the absolute session lifetime, counted from creation. It
// is never extended by activity.
func WithTimeout(timeout time.Duration) SessionOption {
	return func(o *sessionOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithQueueCapacity sets how many utterances may wait while a turn is being
// processed. Utterances beyond that are dropped.
func WithQueueCapacity(capacity int) SessionOption {
	return func(o *sessionOptions) {
		if capacity > 0 {
			o.queueCapacity = capacity
		}
	}
}

// WithWriteTimeout bounds each outbound frame write. Zero disables the
// deadline.
func WithWriteTimeout(timeout time.Duration) SessionOption {
	return func(o *sessionOptions) {
		if timeout >= 0 {
			o.writeTimeout = timeout
		}
	}
}

// WithMaxFrameSize bounds the size of one inbound frame. A larger frame is
// rejected with an error frame and the session stays open.
func WithMaxFrameSize(size int) SessionOption {
	return func(o *sessionOptions) {
		if size > 0 {
			o.maxFrameSize = size
		}
	}
}
