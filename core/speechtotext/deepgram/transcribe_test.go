package deepgram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-phone/core/audio"
)

func newListenServer(t *testing.T, results ...string) (*httptest.Server, chan []byte) {
	t.Helper()
	received := make(chan []byte, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("encoding") != "mulaw" || r.URL.Query().Get("sample_rate") != "8000" {
			t.Errorf("unexpected listen query %q", r.URL.RawQuery)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("failed to read audio: %v", err)
			return
		}
		received <- payload

		var closeStream struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&closeStream); err != nil || closeStream.Type != string(api.TypeCloseStreamResponse) {
			t.Errorf("expected close stream message, got %+v (%v)", closeStream, err)
			return
		}

		for _, result := range results {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(result))
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = conn.ReadMessage()
	}))
	return server, received
}

func listenResult(t *testing.T, transcript string, isFinal bool) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"type":     string(api.TypeMessageResponse),
		"is_final": isFinal,
		"channel": map[string]any{
			"alternatives": []map[string]any{{"transcript": transcript}},
		},
	})
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}
	return string(raw)
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestStreamingTranscribeJoinsFinalSegments(t *testing.T) {
	server, received := newListenServer(t,
		listenResult(t, "hel", false),
		listenResult(t, "hello", true),
		`{"type":"Metadata"}`,
		listenResult(t, " there ", true),
	)
	defer server.Close()

	client := NewStreamingTranscriptionClient("dg-key", WithURL(wsURL(server)))
	transcript, err := client.Transcribe(context.Background(), []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transcript != "hello there" {
		t.Fatalf("expected joined final segments, got %q", transcript)
	}
	if payload := <-received; string(payload) != string([]byte{0x01, 0x02}) {
		t.Fatalf("unexpected audio payload %v", payload)
	}
}

func TestStreamingTranscribeReturnsEmptyWithoutFinalSegments(t *testing.T) {
	server, _ := newListenServer(t, listenResult(t, "uh", false))
	defer server.Close()

	client := NewStreamingTranscriptionClient("dg-key", WithURL(wsURL(server)))
	transcript, err := client.Transcribe(context.Background(), []byte{0x01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transcript != "" {
		t.Fatalf("expected empty transcript, got %q", transcript)
	}
}

func TestStreamingTranscribeRejectsUnsupportedEncoding(t *testing.T) {
	client := NewStreamingTranscriptionClient("dg-key",
		WithEncodingInfo(audio.EncodingInfo{SampleRate: 44100, Format: audio.EncodingLinear16}))
	if _, err := client.Transcribe(context.Background(), []byte{0x01}); err == nil {
		t.Fatalf("expected encoding error")
	}
}

func TestConvertEncoding(t *testing.T) {
	if _, err := convertEncoding(audio.GetTelephonyEncodingInfo()); err != nil {
		t.Fatalf("telephony encoding should be supported: %v", err)
	}
	if _, err := convertEncoding(audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingMulaw}); err == nil {
		t.Fatalf("expected mulaw at 16kHz to be rejected")
	}
	info, err := convertEncoding(audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingLinear16})
	if err != nil || info.Format != "linear16" {
		t.Fatalf("unexpected linear16 conversion %+v (%v)", info, err)
	}
}
