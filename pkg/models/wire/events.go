// Package wire defines the message catalogue exchanged between teacher and
// student clients, and the single Decode boundary through which every raw
// payload enters the system.
package wire

// Event names. Drawing fragments (draw_batch) and canvas pushes are
// fire-and-forget; set_background and next_question carry a __seq stamp and
// pass through the receive guard.
const (
	EventStudentReady        = "student_ready"
	EventTeacherReady        = "teacher_ready"
	EventDrawBatch           = "draw_batch"
	EventStudentCanvas       = "student_canvas"
	EventSetBackground       = "set_background"
	EventNextQuestion        = "next_question"
	EventSessionStateRequest = "session_state_request"
	EventSessionState        = "session_state"
	EventTeacherAnnotations  = "teacher_annotations"
	EventRequestCanvas       = "request_canvas"
	EventForceSync           = "force_sync"
	EventSessionClosed       = "session_closed"
)

// Canvas-push aliases. The originals broadcast history navigation under its
// own event name with a payload identical to student_canvas; the alias
// doubles as the reason.
const (
	EventCanvasClear = "clear"
	EventCanvasErase = "erase"
	EventCanvasUndo  = "undo"
	EventCanvasRedo  = "redo"
)

// canvasAliases maps every event that carries a StudentCanvas payload to
// the canonical student_canvas schema.
var canvasAliases = map[string]bool{
	EventStudentCanvas: true,
	EventCanvasClear:   true,
	EventCanvasErase:   true,
	EventCanvasUndo:    true,
	EventCanvasRedo:    true,
}

// IsCanvasEvent reports whether an event name carries a student_canvas
// payload, either under the canonical name or an alias.
func IsCanvasEvent(event string) bool {
	return canvasAliases[event]
}
