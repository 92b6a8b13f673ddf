package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeStart(t *testing.T) {
	event := Decode([]byte(`{"event":"start","start":{"streamSid":"SID1"}}`))

	start, ok := event.(StartEvent)
	if !ok {
		t.Fatalf("expected StartEvent, got %T", event)
	}
	if start.StreamID != "SID1" {
		t.Fatalf("expected stream id SID1, got %q", start.StreamID)
	}
}

func TestDecodeMediaDecodesPayload(t *testing.T) {
	audio := []byte{0xFF, 0x7F, 0x00, 0x10}
	raw := `{"event":"media","media":{"payload":"` + base64.StdEncoding.EncodeToString(audio) + `"}}`

	event := Decode([]byte(raw))

	media, ok := event.(MediaEvent)
	if !ok {
		t.Fatalf("expected MediaEvent, got %T", event)
	}
	if !bytes.Equal(media.Payload, audio) {
		t.Fatalf("expected payload %v, got %v", audio, media.Payload)
	}
}

func TestDecodeStop(t *testing.T) {
	if event := Decode([]byte(`{"event":"stop"}`)); event.Kind() != EventKindStop {
		t.Fatalf("expected stop event, got %T", event)
	}
}

func TestDecodeUnrecognisedInputIsUnknown(t *testing.T) {
	cases := map[string]string{
		"malformed json":       `{"event":`,
		"not an object":        `"start"`,
		"empty":                ``,
		"missing event":        `{"start":{"streamSid":"SID1"}}`,
		"unsupported event":    `{"event":"ping"}`,
		"mark event":           `{"event":"mark","mark":{"name":"m1"}}`,
		"start without fields": `{"event":"start"}`,
		"start empty sid":      `{"event":"start","start":{"streamSid":" "}}`,
		"media without fields": `{"event":"media"}`,
		"media empty payload":  `{"event":"media","media":{"payload":""}}`,
		"media bad base64":     `{"event":"media","media":{"payload":"%%%"}}`,
		"media wrong type":     `{"event":"media","media":{"payload":42}}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			event := Decode([]byte(raw))
			unknown, ok := event.(UnknownEvent)
			if !ok {
				t.Fatalf("expected UnknownEvent, got %T", event)
			}
			if unknown.Reason == "" {
				t.Fatalf("expected a reason for unknown event")
			}
		})
	}
}

func TestEncodeTextFrame(t *testing.T) {
	data, err := Encode(TextFrame{StreamID: "SID1", Content: "hi there"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"event":"msg","streamSid":"SID1","content":"hi there"}`
	if string(data) != expected {
		t.Fatalf("expected %s, got %s", expected, data)
	}
}

func TestEncodeAudioFrame(t *testing.T) {
	data, err := Encode(AudioFrame{StreamID: "SID1", Payload: []byte("chunk")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"event":"media","streamSid":"SID1","media":{"payload":"` +
		base64.StdEncoding.EncodeToString([]byte("chunk")) + `"}}`
	if string(data) != expected {
		t.Fatalf("expected %s, got %s", expected, data)
	}
}

func TestEncodeErrorFrame(t *testing.T) {
	data, err := Encode(ErrorFrame{StreamID: "SID1", Message: "generation failed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"event":"error","streamSid":"SID1","message":"generation failed"}`
	if string(data) != expected {
		t.Fatalf("expected %s, got %s", expected, data)
	}
}

func TestEncodeEmptyStreamIDKeepsField(t *testing.T) {
	data, err := Encode(ErrorFrame{Message: "boom"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), `"streamSid":""`) {
		t.Fatalf("expected empty streamSid to be present, got %s", data)
	}
}

func TestSchemaDescribesBothDirections(t *testing.T) {
	schemas := Schema()

	for _, direction := range []string{"inbound", "outbound"} {
		schema, ok := schemas[direction]
		if !ok || schema == nil {
			t.Fatalf("expected %s schema", direction)
		}

		data, err := json.Marshal(schema)
		if err != nil {
			t.Fatalf("failed to marshal %s schema: %v", direction, err)
		}
		if !strings.Contains(string(data), `"event"`) {
			t.Fatalf("expected %s schema to describe the event field, got %s", direction, data)
		}
	}
}
