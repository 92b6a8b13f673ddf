package protocol

import "github.com/invopop/jsonschema"

// Schema describes both directions of the wire contract as JSON schemas,
// keyed by "inbound" and "outbound".
func Schema() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	return map[string]*jsonschema.Schema{
		"inbound":  reflector.Reflect(&InboundFrame{}),
		"outbound": reflector.Reflect(&OutboundFrame{}),
	}
}
