package protocol

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

type EventKind string

const (
	EventKindStart   EventKind = "start"
	EventKindMedia   EventKind = "media"
	EventKindStop    EventKind = "stop"
	EventKindUnknown EventKind = "unknown"
)

// Event is one decoded inbound frame. It is one of [StartEvent],
// [MediaEvent], [StopEvent] or [UnknownEvent].
type Event interface {
	Kind() EventKind
}

type StartEvent struct {
	StreamID string
}

type MediaEvent struct {
	// Payload is raw 8kHz mono mu-law audio.
	Payload []byte
}

type StopEvent struct{}

// UnknownEvent is produced for frames that could not be understood. Name is
// the event discriminator when one was present and Reason says why the frame
// was not recognised.
type UnknownEvent struct {
	Name   string
	Reason string
}

func (StartEvent) Kind() EventKind   { return EventKindStart }
func (MediaEvent) Kind() EventKind   { return EventKindMedia }
func (StopEvent) Kind() EventKind    { return EventKindStop }
func (UnknownEvent) Kind() EventKind { return EventKindUnknown }

// InboundFrame is the JSON shape of every inbound frame.
type InboundFrame struct {
	Event string       `json:"event" jsonschema:"title=Event,description=Frame discriminator,enum=start,enum=media,enum=stop"`
	Start *StartFields `json:"start,omitempty" jsonschema:"description=Present on start frames"`
	Media *MediaFields `json:"media,omitempty" jsonschema:"description=Present on media frames"`
}

type StartFields struct {
	StreamSid string `json:"streamSid" jsonschema:"description=Identifier correlating frames to one call leg"`
}

type MediaFields struct {
	Payload string `json:"payload" jsonschema:"description=Base64 encoded 8kHz mono mu-law audio,contentEncoding=base64"`
}

// Decode parses one inbound frame. Unparseable input and unrecognised
// shapes map to [UnknownEvent].
func Decode(raw []byte) Event {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return UnknownEvent{Reason: "malformed json"}
	}

	switch EventKind(frame.Event) {
	case EventKindStart:
		if frame.Start == nil || strings.TrimSpace(frame.Start.StreamSid) == "" {
			return UnknownEvent{Name: frame.Event, Reason: "missing start.streamSid"}
		}
		return StartEvent{StreamID: frame.Start.StreamSid}

	case EventKindMedia:
		if frame.Media == nil || frame.Media.Payload == "" {
			return UnknownEvent{Name: frame.Event, Reason: "missing media.payload"}
		}
		payload, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
		if err != nil {
			return UnknownEvent{Name: frame.Event, Reason: "invalid base64 payload"}
		}
		return MediaEvent{Payload: payload}

	case EventKindStop:
		return StopEvent{}

	case "":
		return UnknownEvent{Reason: "missing event"}

	default:
		return UnknownEvent{Name: frame.Event, Reason: "unsupported event"}
	}
}
