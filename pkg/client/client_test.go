package client

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classboard/classboard/pkg/drawing"
	"github.com/classboard/classboard/pkg/geometry"
	"github.com/classboard/classboard/pkg/models/wire"
	"github.com/classboard/classboard/pkg/transport"
)

func newClassroom(t *testing.T) (*TeacherClient, *StudentClient) {
	t.Helper()
	hub := transport.NewMemoryTransport(nil)
	ctx := context.Background()

	teacher := NewTeacherClient(TeacherConfig{SessionCode: "TEST01"}, hub, nil, nil)
	require.NoError(t, teacher.Connect(ctx))
	t.Cleanup(func() { teacher.Close() })

	student := NewStudentClient(StudentConfig{
		Username:    "alice",
		SessionCode: "TEST01",
	}, hub, nil, nil, nil)
	require.NoError(t, student.Connect(ctx))
	t.Cleanup(func() { student.Close() })

	require.NotNil(t, teacher.Registry().Student("alice"), "presence sync creates the mirror")
	return teacher, student
}

func TestStudentStrokeReachesTeacherMirror(t *testing.T) {
	teacher, student := newClassroom(t)

	var updates []string
	teacher.OnCanvasUpdate(func(username string) { updates = append(updates, username) })

	student.BeginStroke("#1d4ed8", 5, 100, 100, 0.5)
	student.ExtendStroke(150, 120, 0.6)
	student.ExtendStroke(200, 140, 0.7)
	student.EndStroke()

	mirror := teacher.Registry().Student("alice")
	require.Len(t, mirror.State.Paths(), 1)
	assert.Equal(t, "#1d4ed8", mirror.State.Paths()[0].Color)
	assert.True(t, mirror.Reviewed)
	assert.True(t, mirror.Synced)
	assert.Contains(t, updates, "alice")
}

func TestHistoryNavigationSyncsMirror(t *testing.T) {
	teacher, student := newClassroom(t)

	student.BeginStroke("#111", 5, 10, 10, 0.5)
	student.ExtendStroke(20, 20, 0.5)
	student.EndStroke()
	require.Len(t, teacher.Registry().Student("alice").State.Paths(), 1)

	student.Undo()
	assert.Empty(t, teacher.Registry().Student("alice").State.Paths())

	student.Redo()
	assert.Len(t, teacher.Registry().Student("alice").State.Paths(), 1)

	student.Clear()
	assert.Empty(t, teacher.Registry().Student("alice").State.Paths())
}

func TestEraseGestureSyncsMirror(t *testing.T) {
	teacher, student := newClassroom(t)

	student.BeginStroke("#111", 5, 10, 10, 0.5)
	student.ExtendStroke(30, 10, 0.5)
	student.EndStroke()

	student.BeginErase(20, 10)
	student.EndErase()
	assert.Empty(t, teacher.Registry().Student("alice").State.Paths())

	// a miss sends nothing and the mirror keeps its state
	student.BeginStroke("#111", 5, 10, 10, 0.5)
	student.ExtendStroke(30, 10, 0.5)
	student.EndStroke()
	student.BeginErase(700, 500)
	student.EndErase()
	assert.Len(t, teacher.Registry().Student("alice").State.Paths(), 1)
}

// A student joining after control events were sent must converge on the
// latest state: current question number and the last background, not an
// intermediate one.
func TestLateJoinerCatchesUp(t *testing.T) {
	hub := transport.NewMemoryTransport(nil)
	ctx := context.Background()

	teacher := NewTeacherClient(TeacherConfig{SessionCode: "TEST01"}, hub, nil, nil)
	require.NoError(t, teacher.Connect(ctx))
	defer teacher.Close()

	teacher.NextQuestion("", nil)
	q := teacher.NextQuestion("", nil)
	require.Equal(t, 3, q)
	teacher.SetBackground(wire.BackgroundSpec{PresetID: drawing.PresetGrid}, "")
	teacher.SetBackground(wire.BackgroundSpec{PresetID: drawing.PresetAxes}, "")
	teacher.SetBackground(wire.BackgroundSpec{PresetID: drawing.PresetRuledPage}, "")

	student := NewStudentClient(StudentConfig{
		Username:    "bob",
		SessionCode: "TEST01",
	}, hub, nil, nil, nil)
	require.NoError(t, student.Connect(ctx))
	defer student.Close()

	assert.Equal(t, 3, student.QuestionNumber())
	bg := student.State().Background()
	require.NotNil(t, bg.Vector)
	assert.Equal(t, drawing.PresetRuledPage, bg.Vector.ID)
}

// A catch-up snapshot taken after a next_question must wipe the canvas.
// The replayed copy of the event carries a question number the snapshot
// already adopted, so replay alone never fires the wipe.
func TestCatchUpAfterQuestionAdvanceWipesCanvas(t *testing.T) {
	student := NewStudentClient(StudentConfig{
		Username:    "alice",
		SessionCode: "TEST01",
	}, transport.NewMemoryTransport(nil), nil, nil, nil)
	t.Cleanup(func() { student.Close() })

	student.BeginStroke("#111", 5, 10, 10, 0.5)
	student.ExtendStroke(20, 20, 0.5)
	student.EndStroke()
	require.Len(t, student.State().Paths(), 1)
	require.Equal(t, 1, student.QuestionNumber())

	payload, err := json.Marshal(&wire.NextQuestion{QuestionNumber: 2, Seq: 5})
	require.NoError(t, err)
	student.applySessionState(&wire.SessionState{
		Snapshot: wire.Snapshot{QuestionNumber: 2, Sequence: 5},
		Events: []wire.LoggedEvent{
			{ID: 5, Event: wire.EventNextQuestion, Payload: payload},
		},
	})

	assert.Equal(t, 2, student.QuestionNumber())
	assert.Empty(t, student.State().Paths(), "catch-up onto a new question starts blank")
}

// The replay log is bounded, so after a long absence the advance arrives
// only through the snapshot's question number, with no event to replay.
func TestCatchUpWipesCanvasWhenAdvanceLeftTheLog(t *testing.T) {
	student := NewStudentClient(StudentConfig{
		Username:    "alice",
		SessionCode: "TEST01",
	}, transport.NewMemoryTransport(nil), nil, nil, nil)
	t.Cleanup(func() { student.Close() })

	student.BeginStroke("#111", 5, 10, 10, 0.5)
	student.ExtendStroke(20, 20, 0.5)
	student.EndStroke()

	student.applySessionState(&wire.SessionState{
		Snapshot: wire.Snapshot{QuestionNumber: 3, Sequence: 12},
	})

	assert.Equal(t, 3, student.QuestionNumber())
	assert.Empty(t, student.State().Paths())
}

// A same-question snapshot, as after a brief reconnect, keeps the work.
func TestCatchUpSameQuestionKeepsCanvas(t *testing.T) {
	student := NewStudentClient(StudentConfig{
		Username:    "alice",
		SessionCode: "TEST01",
	}, transport.NewMemoryTransport(nil), nil, nil, nil)
	t.Cleanup(func() { student.Close() })

	student.BeginStroke("#111", 5, 10, 10, 0.5)
	student.ExtendStroke(20, 20, 0.5)
	student.EndStroke()

	student.applySessionState(&wire.SessionState{
		Snapshot: wire.Snapshot{QuestionNumber: 1, Sequence: 2},
	})

	assert.Equal(t, 1, student.QuestionNumber())
	assert.Len(t, student.State().Paths(), 1)
}

func TestAnnotationRoundTrip(t *testing.T) {
	teacher, student := newClassroom(t)

	require.NoError(t, teacher.Attach("alice"))
	assert.Equal(t, "alice", teacher.Attached())
	assert.Empty(t, student.Overlay(), "attach replace carries the empty set")

	teacher.AnnotateBegin("#dc2626", 4, 100, 100, 0.8)
	teacher.AnnotateExtend(140, 120, 0.8)
	teacher.AnnotateEnd()

	overlay := student.Overlay()
	require.Len(t, overlay, 1)
	assert.Equal(t, "#dc2626", overlay[0].Color)
	assert.Len(t, overlay[0].Points, 2)

	// the teacher's undo removes only the teacher's markup
	student.BeginStroke("#111", 5, 10, 10, 0.5)
	student.ExtendStroke(20, 20, 0.5)
	student.EndStroke()

	teacher.AnnotateUndo()
	assert.Empty(t, student.Overlay())
	assert.Len(t, student.State().Paths(), 1, "student strokes are untouched")

	teacher.Detach()
	assert.Empty(t, teacher.Attached())
}

func TestAnnotationSurvivesDetachReattach(t *testing.T) {
	teacher, student := newClassroom(t)

	require.NoError(t, teacher.Attach("alice"))
	teacher.AnnotateBegin("#dc2626", 4, 50, 50, 0.7)
	teacher.AnnotateExtend(80, 60, 0.7)
	teacher.AnnotateEnd()
	teacher.Detach()

	require.NoError(t, teacher.Attach("alice"))
	require.Len(t, teacher.Markup().Paths(), 1, "reattach hydrates earlier markup")
	assert.Len(t, student.Overlay(), 1)
}

func TestAttachUnknownStudent(t *testing.T) {
	teacher, _ := newClassroom(t)
	assert.ErrorIs(t, teacher.Attach("ghost"), ErrUnknownStudent)
}

func TestNextQuestionWipesBothEnds(t *testing.T) {
	teacher, student := newClassroom(t)

	student.BeginStroke("#111", 5, 10, 10, 0.5)
	student.ExtendStroke(20, 20, 0.5)
	student.EndStroke()
	require.Len(t, teacher.Registry().Student("alice").State.Paths(), 1)

	q := teacher.NextQuestion("freehand", &wire.BackgroundSpec{PresetID: drawing.PresetGrid})
	assert.Equal(t, 2, q)

	assert.Empty(t, student.State().Paths())
	assert.Equal(t, 2, student.QuestionNumber())
	require.NotNil(t, student.State().Background().Vector)
	assert.Empty(t, teacher.Registry().Student("alice").State.Paths())
}

func TestTargetedBackgroundTouchesOneStudent(t *testing.T) {
	hub := transport.NewMemoryTransport(nil)
	ctx := context.Background()

	teacher := NewTeacherClient(TeacherConfig{SessionCode: "TEST01"}, hub, nil, nil)
	require.NoError(t, teacher.Connect(ctx))
	defer teacher.Close()

	alice := NewStudentClient(StudentConfig{Username: "alice", SessionCode: "TEST01"}, hub, nil, nil, nil)
	require.NoError(t, alice.Connect(ctx))
	defer alice.Close()
	bob := NewStudentClient(StudentConfig{Username: "bob", SessionCode: "TEST01"}, hub, nil, nil, nil)
	require.NoError(t, bob.Connect(ctx))
	defer bob.Close()

	teacher.SetBackground(wire.BackgroundSpec{PresetID: drawing.PresetAxes}, "alice")

	assert.NotNil(t, alice.State().Background().Vector)
	assert.True(t, bob.State().Background().IsEmpty())
}

func TestForceSyncRepushesCanvases(t *testing.T) {
	teacher, student := newClassroom(t)

	student.BeginStroke("#111", 5, 10, 10, 0.5)
	student.ExtendStroke(20, 20, 0.5)
	student.EndStroke()

	// simulate a stale mirror
	teacher.Registry().Student("alice").State.ReplacePaths(nil)
	require.Empty(t, teacher.Registry().Student("alice").State.Paths())

	teacher.ForceSync()
	assert.Len(t, teacher.Registry().Student("alice").State.Paths(), 1)
}

func TestSessionClosedForcesStudentOut(t *testing.T) {
	teacher, student := newClassroom(t)

	var reason string
	var badge Badge
	student.OnSessionClosed(func(r string) { reason = r })
	student.OnStatus(func(b Badge) { badge = b })

	require.NoError(t, teacher.Close())
	assert.Equal(t, "teacher_left", reason)
	assert.Equal(t, BadgeError, badge.State)
}

func TestDrawFragmentsAreCoalesced(t *testing.T) {
	hub := transport.NewMemoryTransport(nil)
	ctx := context.Background()

	teacher := NewTeacherClient(TeacherConfig{SessionCode: "TEST01"}, hub, nil, nil)
	require.NoError(t, teacher.Connect(ctx))
	defer teacher.Close()

	var mu sync.Mutex
	var batches int
	var ops int
	teacher.OnDrawFragment(func(username string, batch []geometry.DrawOp) {
		mu.Lock()
		batches++
		ops += len(batch)
		mu.Unlock()
	})

	student := NewStudentClient(StudentConfig{
		Username:         "alice",
		SessionCode:      "TEST01",
		FragmentInterval: 10 * time.Millisecond,
	}, hub, nil, nil, nil)
	require.NoError(t, student.Connect(ctx))
	defer student.Close()

	student.BeginStroke("#111", 5, 0, 0, 0.5)
	for i := 1; i <= 100; i++ {
		student.ExtendStroke(float64(i*2), float64(i), 0.5)
	}
	time.Sleep(40 * time.Millisecond)
	student.EndStroke()

	mu.Lock()
	defer mu.Unlock()
	require.Greater(t, ops, 0, "fragments carry the stroke's segments")
	assert.Less(t, batches, 50, "points are coalesced, not sent one-by-one")
	assert.LessOrEqual(t, ops, 101, "each op travels at most once")
}
