// Package protocol defines the media-stream wire contract spoken over the
// caller socket.
//
// Inbound frames are JSON text messages discriminated by their "event" field:
//
//   - start: {"event":"start","start":{"streamSid":"..."}}
//   - media: {"event":"media","media":{"payload":"<base64 mu-law 8kHz mono>"}}
//   - stop:  {"event":"stop"}
//
// Anything else, including malformed JSON, decodes to [UnknownEvent].
// [Decode] never fails.
//
// Outbound frames carry the stream identifier set by the start event:
//
//   - msg:   {"event":"msg","streamSid":"...","content":"..."}
//   - media: {"event":"media","streamSid":"...","media":{"payload":"..."}}
//   - error: {"event":"error","streamSid":"...","message":"..."}
package protocol
