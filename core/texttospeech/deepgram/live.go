package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-phone/core/texttospeech"
	"go.opentelemetry.io/otel/codes"
)

// StreamingSpeechClient synthesizes text over the speak websocket. Every
// call opens its own connection, so concurrent sessions never share one.
type StreamingSpeechClient struct {
	apiKey  string
	options speechOptions
	dialer  *websocket.Dialer
}

func NewStreamingSpeechClient(apiKey string, opts ...SpeechOption) *StreamingSpeechClient {
	return &StreamingSpeechClient{
		apiKey:  apiKey,
		options: newSpeechOptions(DefaultStreamingSpeakURL, opts),
		dialer:  websocket.DefaultDialer,
	}
}

func (c *StreamingSpeechClient) Synthesize(ctx context.Context, text string) (texttospeech.Stream, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech stream")
	defer span.End()

	speakURL, err := buildSpeakURL(c.options)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, speakURL,
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w: %s", ErrSynthesisFailed, resp.Status)
		} else {
			err = fmt.Errorf("failed to open socket connection to deepgram: %w", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	req := &streamingRequest{ws: conn}
	if err := req.sendWebsocketMessage(speakMsg{Type: "Speak", Text: text}); err != nil {
		_ = req.Close()
		return nil, err
	}
	if err := req.sendWebsocketMessage(flushMsg); err != nil {
		_ = req.Close()
		return nil, err
	}

	return texttospeech.NewStream(req.next, req.Close), nil
}

// streamingRequest reads one flushed utterance off the socket.
type streamingRequest struct {
	ws *websocket.Conn
	mu sync.Mutex

	flushed bool
	closed  bool
}

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const closeWriteTimeout = time.Second

var (
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)

// next returns the next audio chunk, or io.EOF once the server confirms the
// flush.
func (r *streamingRequest) next() ([]byte, error) {
	for {
		if r.flushed {
			return nil, io.EOF
		}

		msgType, msg, err := r.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("failed to read deepgram websocket message: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(msg) > 0 {
				return msg, nil
			}
		case websocket.TextMessage:
			var parsedMsg websocketMessage
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Debug("skipping unreadable deepgram message", "error", err)
				continue
			}
			switch parsedMsg.Type {
			case "Flushed":
				r.flushed = true
			case "Warning", "Error":
				logger.Warn("deepgram speak message", "message", string(msg))
			}
		}
	}
}

func (r *streamingRequest) sendWebsocketMessage(msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("websocket connection closed")
	}

	if err := r.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}

// Close asks the server to close the stream and drops the connection. It
// is safe to call while next is blocked on a read.
func (r *streamingRequest) Close() error {
	r.mu.Lock()
	var sendErr error
	if !r.closed {
		r.closed = true
		_ = r.ws.SetWriteDeadline(time.Now().Add(closeWriteTimeout))
		sendErr = r.ws.WriteJSON(closeMsg)
	}
	r.mu.Unlock()

	if err := r.ws.Close(); err != nil {
		return fmt.Errorf("failed to close websocket: %w", errors.Join(sendErr, err))
	}
	return nil
}
