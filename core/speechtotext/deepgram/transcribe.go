package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StreamingTranscriptionClient transcribes an utterance over the live listen
// websocket. Every call opens its own connection and collects the final
// segments until the server closes the stream.
type StreamingTranscriptionClient struct {
	apiKey  string
	options clientOptions
	dialer  *websocket.Dialer
}

func NewStreamingTranscriptionClient(apiKey string, opts ...ClientOption) *StreamingTranscriptionClient {
	return &StreamingTranscriptionClient{
		apiKey:  apiKey,
		options: newClientOptions(DefaultStreamingURL, opts),
		dialer:  websocket.DefaultDialer,
	}
}

func (c *StreamingTranscriptionClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe utterance stream")
	defer span.End()

	encoding, err := convertEncoding(c.options.encodingInfo)
	if err != nil {
		return "", fmt.Errorf("invalid encoding: %w", err)
	}

	conn, err := c.connectWebsocket(ctx, encoding)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	span.SetAttributes(attribute.Int("request.audio_bytes", len(audio)))
	if err := conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return "", c.fail(ctx, span, fmt.Errorf("failed to write to deepgram client: %w", err))
	}
	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return "", c.fail(ctx, span, fmt.Errorf("failed to close deepgram stream: %w", err))
	}

	var segments []string
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			return "", c.fail(ctx, span, fmt.Errorf("failed to read deepgram websocket message: %w", err))
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		segment, err := parseListenMessage(msg)
		if err != nil {
			logger.DebugContext(ctx, "skipping unreadable deepgram message", "error", err)
			continue
		}
		if segment != "" {
			segments = append(segments, segment)
		}
	}

	transcript := strings.Join(segments, " ")
	span.SetAttributes(attribute.Int("response.segments", len(segments)))
	return transcript, nil
}

func (c *StreamingTranscriptionClient) fail(ctx context.Context, span trace.Span, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (c *StreamingTranscriptionClient) connectWebsocket(ctx context.Context, encoding encodingInfo) (*websocket.Conn, error) {
	listenURL, err := url.Parse(c.options.url)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}
	queryParams := listenURL.Query()
	queryParams.Set("encoding", encoding.Format)
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", c.options.model)
	queryParams.Set("language", c.options.language)
	queryParams.Set("smart_format", "true")
	listenURL.RawQuery = queryParams.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %s", ErrTranscriptionFailed, resp.Status)
		}
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

// parseListenMessage returns the final transcript segment carried by msg,
// or "" for interim results and other message types.
func parseListenMessage(msg []byte) (string, error) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		return "", err
	}
	if api.TypeResponse(parsedMsg.Type) != api.TypeMessageResponse {
		return "", nil
	}

	var msgResp api.MessageResponse
	if err := json.Unmarshal(msg, &msgResp); err != nil {
		return "", err
	}
	if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript), nil
}
