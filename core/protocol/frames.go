package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

type FrameKind string

const (
	FrameKindText  FrameKind = "msg"
	FrameKindAudio FrameKind = "media"
	FrameKindError FrameKind = "error"
)

// Frame is one outbound frame. It is one of [TextFrame], [AudioFrame] or
// [ErrorFrame].
type Frame interface {
	Kind() FrameKind
}

type TextFrame struct {
	StreamID string
	Content  string
}

type AudioFrame struct {
	StreamID string
	Payload  []byte
}

type ErrorFrame struct {
	StreamID string
	Message  string
}

func (TextFrame) Kind() FrameKind  { return FrameKindText }
func (AudioFrame) Kind() FrameKind { return FrameKindAudio }
func (ErrorFrame) Kind() FrameKind { return FrameKindError }

type textWire struct {
	Event     FrameKind `json:"event"`
	StreamSid string    `json:"streamSid"`
	Content   string    `json:"content"`
}

type audioWire struct {
	Event     FrameKind   `json:"event"`
	StreamSid string      `json:"streamSid"`
	Media     MediaFields `json:"media"`
}

type errorWire struct {
	Event     FrameKind `json:"event"`
	StreamSid string    `json:"streamSid"`
	Message   string    `json:"message"`
}

// OutboundFrame is the union JSON shape of every outbound frame. It is only
// used to describe the wire contract, see [Schema].
type OutboundFrame struct {
	Event     string       `json:"event" jsonschema:"title=Event,enum=msg,enum=media,enum=error"`
	StreamSid string       `json:"streamSid" jsonschema:"description=Stream identifier from the start frame"`
	Content   string       `json:"content,omitempty" jsonschema:"description=Assistant reply text (msg frames)"`
	Media     *MediaFields `json:"media,omitempty" jsonschema:"description=Synthesized audio chunk (media frames)"`
	Message   string       `json:"message,omitempty" jsonschema:"description=Error description (error frames)"`
}

// Encode serializes an outbound frame into its wire representation.
func Encode(frame Frame) ([]byte, error) {
	var wire any
	switch f := frame.(type) {
	case TextFrame:
		wire = textWire{Event: FrameKindText, StreamSid: f.StreamID, Content: f.Content}
	case AudioFrame:
		wire = audioWire{
			Event:     FrameKindAudio,
			StreamSid: f.StreamID,
			Media:     MediaFields{Payload: base64.StdEncoding.EncodeToString(f.Payload)},
		}
	case ErrorFrame:
		wire = errorWire{Event: FrameKindError, StreamSid: f.StreamID, Message: f.Message}
	default:
		return nil, fmt.Errorf("unsupported frame type %T", frame)
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s frame: %w", frame.Kind(), err)
	}
	return data, nil
}
