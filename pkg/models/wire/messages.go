package wire

import (
	"encoding/json"

	"github.com/classboard/classboard/pkg/drawing"
	"github.com/classboard/classboard/pkg/geometry"
)

// Message is any decoded wire payload. Event returns the canonical event
// name the payload travels under.
type Message interface {
	Event() string
}

// Sequenced is implemented by control events guarded by the reliable
// sequence number.
type Sequenced interface {
	Message
	Sequence() int64
	SetSequence(int64)
}

// StudentReady announces a student's presence and identity.
type StudentReady struct {
	Username string `json:"username"`
}

func (*StudentReady) Event() string { return EventStudentReady }

// TeacherReady announces the teacher and the session code students join.
type TeacherReady struct {
	SessionCode string `json:"sessionCode"`
}

func (*TeacherReady) Event() string { return EventTeacherReady }

// DrawBatch carries low-latency in-progress stroke fragments. Not sequence
// guarded: fragments are visual-only and the next full canvas push makes
// any lost batch irrelevant.
type DrawBatch struct {
	Username string            `json:"username"`
	Batch    []geometry.DrawOp `json:"batch"`
}

func (*DrawBatch) Event() string { return EventDrawBatch }

// CanvasState is the full serialized drawing surface of one student.
type CanvasState struct {
	Paths            []geometry.WirePath     `json:"paths"`
	BackgroundImage  string                  `json:"backgroundImage,omitempty"`
	BackgroundVector *drawing.VectorTemplate `json:"backgroundVector,omitempty"`
	Width            float64                 `json:"width,omitempty"`
	Height           float64                 `json:"height,omitempty"`
}

// StudentCanvas is a full-state push, sent on stroke completion and under
// the clear/erase/undo/redo aliases on history navigation.
type StudentCanvas struct {
	Username    string      `json:"username"`
	Reason      string      `json:"reason,omitempty"`
	CanvasState CanvasState `json:"canvasState"`
}

func (*StudentCanvas) Event() string { return EventStudentCanvas }

// BackgroundSpec describes a background choice: a raster data URL, a
// vector template, or neither (cleared).
type BackgroundSpec struct {
	ImageData string                  `json:"imageData,omitempty"`
	Vector    *drawing.VectorTemplate `json:"vector,omitempty"`
	PresetID  string                  `json:"presetId,omitempty"`
	FileName  string                  `json:"fileName,omitempty"`
}

// IsEmpty reports whether this clears the background rather than
// setting one.
func (b BackgroundSpec) IsEmpty() bool {
	return b.ImageData == "" && b.Vector == nil
}

// SetBackground applies a background, either to one student (Target set)
// or to everyone. Sequence guarded.
type SetBackground struct {
	BackgroundSpec
	Target string `json:"target,omitempty"`
	Seq    int64  `json:"__seq,omitempty"`
}

func (*SetBackground) Event() string         { return EventSetBackground }
func (m *SetBackground) Sequence() int64     { return m.Seq }
func (m *SetBackground) SetSequence(n int64) { m.Seq = n }

// NextQuestion advances the session to a new question, wiping every
// student's canvas. Sequence guarded.
type NextQuestion struct {
	InitiatedAt    int64           `json:"initiatedAt"`
	QuestionNumber int             `json:"questionNumber"`
	Mode           string          `json:"mode,omitempty"`
	Background     *BackgroundSpec `json:"background,omitempty"`
	Seq            int64           `json:"__seq,omitempty"`
}

func (*NextQuestion) Event() string         { return EventNextQuestion }
func (m *NextQuestion) Sequence() int64     { return m.Seq }
func (m *NextQuestion) SetSequence(n int64) { m.Seq = n }

// SessionStateRequest asks the teacher for a snapshot plus every logged
// event after LastSequence.
type SessionStateRequest struct {
	Username     string `json:"username"`
	LastSequence int64  `json:"lastSequence"`
}

func (*SessionStateRequest) Event() string { return EventSessionStateRequest }

// Snapshot is the aggregate session state a catching-up student needs
// before replaying logged events.
type Snapshot struct {
	SessionCode    string          `json:"sessionCode,omitempty"`
	QuestionNumber int             `json:"questionNumber"`
	Mode           string          `json:"mode,omitempty"`
	Background     *BackgroundSpec `json:"background,omitempty"`
	Sequence       int64           `json:"sequence"`
}

// LoggedEvent is one replay-log entry. Payload stays raw: the receiver
// decodes it through the same boundary as a live event.
type LoggedEvent struct {
	ID        int64           `json:"id"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// SessionState answers a SessionStateRequest.
type SessionState struct {
	Target   string        `json:"target,omitempty"`
	Snapshot Snapshot      `json:"snapshot"`
	Events   []LoggedEvent `json:"events"`
}

func (*SessionState) Event() string { return EventSessionState }

// Annotation delta operation types.
const (
	DeltaAddPath      = "add_path"
	DeltaAppendPoints = "append_points"
	DeltaRemovePath   = "remove_path"
	DeltaClear        = "clear"
	DeltaReplace      = "replace"
)

// DeltaOp is one incremental annotation operation. The union is tagged by
// Type: add_path carries Index+Path, append_points carries ID+Points,
// remove_path carries ID+Index, clear carries nothing.
type DeltaOp struct {
	Type   string             `json:"type"`
	Index  int                `json:"index,omitempty"`
	Path   *geometry.WirePath `json:"path,omitempty"`
	ID     string             `json:"id,omitempty"`
	Points [][3]float64       `json:"points,omitempty"`
}

// AnnotationDelta groups the ops of one batch flush.
type AnnotationDelta struct {
	Ops []DeltaOp `json:"ops"`
}

// TeacherAnnotations carries the teacher's markup over one student's
// canvas: either a full replace (Annotations set) or an incremental delta.
type TeacherAnnotations struct {
	Target      string              `json:"target"`
	Reason      string              `json:"reason,omitempty"`
	Reviewed    bool                `json:"reviewed,omitempty"`
	Annotations []geometry.WirePath `json:"annotations,omitempty"`
	Delta       *AnnotationDelta    `json:"delta,omitempty"`
}

func (*TeacherAnnotations) Event() string { return EventTeacherAnnotations }

// IsReplace reports whether the message is a full resync rather than an
// incremental delta.
func (m *TeacherAnnotations) IsReplace() bool {
	return m.Reason == DeltaReplace || m.Delta == nil
}

// RequestCanvas asks one student to re-push full canvas state.
type RequestCanvas struct {
	Target      string `json:"target"`
	RequestedBy string `json:"requestedBy,omitempty"`
}

func (*RequestCanvas) Event() string { return EventRequestCanvas }

// ForceSync asks every student to re-push full canvas state.
type ForceSync struct {
	InitiatedAt int64 `json:"initiatedAt,omitempty"`
}

func (*ForceSync) Event() string { return EventForceSync }

// SessionClosed tells students the session ended and they must leave.
type SessionClosed struct {
	Reason string `json:"reason"`
}

func (*SessionClosed) Event() string { return EventSessionClosed }
