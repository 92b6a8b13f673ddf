package texttospeech

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"
)

const DefaultChunkSize = 4096

var ErrStreamConsumed = errors.New("speech stream already consumed")

// Stream is a finite, non-restartable sequence of synthesized audio chunks.
type Stream interface {
	// Chunks yields audio chunks in the order they are received. The
	// sequence ends at end of stream, on the first error, or when ctx is
	// cancelled. A second call yields ErrStreamConsumed.
	Chunks(ctx context.Context) iter.Seq2[[]byte, error]
	// Close releases the underlying connection. Repeated calls are ignored.
	Close() error
}

// ChunkStream adapts a pull function into a [Stream]. next returns io.EOF
// once no more audio will be produced.
type ChunkStream struct {
	next  func() ([]byte, error)
	close func() error

	consumed  atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func NewStream(next func() ([]byte, error), close func() error) *ChunkStream {
	if close == nil {
		close = func() error { return nil }
	}
	return &ChunkStream{next: next, close: close}
}

// NewReaderStream streams r in chunks of at most chunkSize bytes. Every
// successful read becomes one chunk so data is passed on as soon as it
// arrives.
func NewReaderStream(r io.ReadCloser, chunkSize int) *ChunkStream {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)
	return NewStream(func() ([]byte, error) {
		n, err := r.Read(buf)
		if n > 0 {
			return bytes.Clone(buf[:n]), err
		}
		return nil, err
	}, r.Close)
}

func (s *ChunkStream) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if s.consumed.Swap(true) {
			yield(nil, ErrStreamConsumed)
			return
		}

		// Unblocks a pending read once the caller gives up.
		stop := context.AfterFunc(ctx, func() { _ = s.Close() })
		defer stop()

		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			chunk, err := s.next()
			if len(chunk) > 0 {
				if !yield(chunk, nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				}
				yield(nil, err)
				return
			}
		}
	}
}

func (s *ChunkStream) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.close() })
	return s.closeErr
}
