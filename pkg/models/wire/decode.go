package wire

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// DecodeError reports a payload rejected at the boundary. Callers treat a
// decode failure as a no-op: one corrupt message must not crash a session.
type DecodeError struct {
	EventName string
	Reason    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wire: %s: %s", e.EventName, e.Reason)
}

// Schemas validate structural requirements before unmarshalling, so every
// handler downstream can rely on required fields being present and typed.
// Unknown extra fields pass through untouched.
var schemaSources = map[string]string{
	EventStudentReady: `{
		"type": "object",
		"required": ["username"],
		"properties": {"username": {"type": "string", "minLength": 1}}
	}`,
	EventTeacherReady: `{
		"type": "object",
		"required": ["sessionCode"],
		"properties": {"sessionCode": {"type": "string", "minLength": 1}}
	}`,
	EventDrawBatch: `{
		"type": "object",
		"required": ["username", "batch"],
		"properties": {
			"username": {"type": "string", "minLength": 1},
			"batch": {"type": "array", "items": {"type": "object", "required": ["type"]}}
		}
	}`,
	EventStudentCanvas: `{
		"type": "object",
		"required": ["username", "canvasState"],
		"properties": {
			"username": {"type": "string", "minLength": 1},
			"canvasState": {
				"type": "object",
				"properties": {
					"paths": {"type": "array"},
					"backgroundImage": {"type": ["string", "null"]}
				}
			}
		}
	}`,
	EventSetBackground: `{
		"type": "object",
		"properties": {
			"imageData": {"type": ["string", "null"]},
			"vector": {"type": ["object", "null"]},
			"target": {"type": "string"},
			"__seq": {"type": "integer", "minimum": 0}
		}
	}`,
	EventNextQuestion: `{
		"type": "object",
		"required": ["questionNumber"],
		"properties": {
			"questionNumber": {"type": "integer", "minimum": 1},
			"initiatedAt": {"type": "integer"},
			"__seq": {"type": "integer", "minimum": 0}
		}
	}`,
	EventSessionStateRequest: `{
		"type": "object",
		"required": ["username"],
		"properties": {
			"username": {"type": "string", "minLength": 1},
			"lastSequence": {"type": "integer", "minimum": 0}
		}
	}`,
	EventSessionState: `{
		"type": "object",
		"required": ["snapshot"],
		"properties": {
			"snapshot": {"type": "object"},
			"events": {"type": "array"}
		}
	}`,
	EventTeacherAnnotations: `{
		"type": "object",
		"required": ["target"],
		"properties": {
			"target": {"type": "string", "minLength": 1},
			"annotations": {"type": "array"},
			"delta": {"type": ["object", "null"]}
		}
	}`,
	EventRequestCanvas: `{
		"type": "object",
		"required": ["target"],
		"properties": {"target": {"type": "string", "minLength": 1}}
	}`,
	EventForceSync:     `{"type": "object"}`,
	EventSessionClosed: `{
		"type": "object",
		"required": ["reason"],
		"properties": {"reason": {"type": "string"}}
	}`,
}

var schemas = map[string]*gojsonschema.Schema{}

func init() {
	for event, src := range schemaSources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			panic(fmt.Sprintf("wire: bad schema for %s: %v", event, err))
		}
		schemas[event] = schema
	}
}

// Decode is the single boundary through which raw payloads become typed
// messages. Unknown events, malformed JSON, and schema violations all come
// back as a *DecodeError; a non-nil Message is fully validated.
func Decode(event string, raw []byte) (Message, error) {
	canonical := event
	if IsCanvasEvent(event) {
		canonical = EventStudentCanvas
	}

	schema, ok := schemas[canonical]
	if !ok {
		return nil, &DecodeError{EventName: event, Reason: "unknown event"}
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, &DecodeError{EventName: event, Reason: "malformed JSON: " + err.Error()}
	}
	if !result.Valid() {
		return nil, &DecodeError{EventName: event, Reason: result.Errors()[0].String()}
	}

	msg := newMessage(canonical)
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, &DecodeError{EventName: event, Reason: err.Error()}
	}

	// An alias event name doubles as the push reason.
	if sc, ok := msg.(*StudentCanvas); ok && event != EventStudentCanvas && sc.Reason == "" {
		sc.Reason = event
	}
	return msg, nil
}

func newMessage(event string) Message {
	switch event {
	case EventStudentReady:
		return &StudentReady{}
	case EventTeacherReady:
		return &TeacherReady{}
	case EventDrawBatch:
		return &DrawBatch{}
	case EventStudentCanvas:
		return &StudentCanvas{}
	case EventSetBackground:
		return &SetBackground{}
	case EventNextQuestion:
		return &NextQuestion{}
	case EventSessionStateRequest:
		return &SessionStateRequest{}
	case EventSessionState:
		return &SessionState{}
	case EventTeacherAnnotations:
		return &TeacherAnnotations{}
	case EventRequestCanvas:
		return &RequestCanvas{}
	case EventForceSync:
		return &ForceSync{}
	case EventSessionClosed:
		return &SessionClosed{}
	}
	return nil
}

// Encode marshals a message for the transport. It is the inverse of Decode
// and exists so senders never hand-build JSON.
func Encode(msg Message) (string, []byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", nil, err
	}
	return msg.Event(), raw, nil
}
