package drawing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classboard/classboard/pkg/geometry"
)

func testState() *State {
	return NewState(DefaultParams())
}

func drawStroke(s *State, color string, points ...[2]float64) *geometry.Path {
	s.BeginStroke(color, 5, false, points[0][0], points[0][1], 0.5)
	for _, pt := range points[1:] {
		s.ExtendStroke(pt[0], pt[1], 0.5)
	}
	return s.EndStroke()
}

func pathIDs(paths []*geometry.Path) []string {
	ids := make([]string, len(paths))
	for i, p := range paths {
		ids[i] = p.EnsureID()
	}
	return ids
}

func TestUndoRedoInverseLaw(t *testing.T) {
	s := testState()

	var snapshots [][]string
	snapshots = append(snapshots, pathIDs(s.Paths()))

	drawStroke(s, "#111", [2]float64{10, 10}, [2]float64{20, 20})
	snapshots = append(snapshots, pathIDs(s.Paths()))

	drawStroke(s, "#222", [2]float64{100, 100}, [2]float64{110, 110})
	snapshots = append(snapshots, pathIDs(s.Paths()))

	s.BeginErase(15, 15)
	s.EndErase()
	snapshots = append(snapshots, pathIDs(s.Paths()))

	s.Clear()
	snapshots = append(snapshots, pathIDs(s.Paths()))

	// walk all the way back, checking each undo restores the prior state
	for step := len(snapshots) - 1; step > 0; step-- {
		require.True(t, s.Undo(), "undo step %d", step)
		assert.Equal(t, snapshots[step-1], pathIDs(s.Paths()))
	}
	assert.False(t, s.Undo(), "undo on empty history is a no-op")

	// and forward again
	for step := 1; step < len(snapshots); step++ {
		require.True(t, s.Redo(), "redo step %d", step)
		assert.Equal(t, snapshots[step], pathIDs(s.Paths()))
	}
	assert.False(t, s.Redo(), "redo on empty stack is a no-op")
}

func TestEraseUndoRestoresOriginalOrder(t *testing.T) {
	s := testState()

	p1 := drawStroke(s, "#111", [2]float64{10, 10}, [2]float64{30, 10})
	p2 := drawStroke(s, "#222", [2]float64{200, 200}, [2]float64{220, 200})

	// erase P1 only
	s.BeginErase(20, 10)
	s.EndErase()
	require.Equal(t, []*geometry.Path{p2}, s.Paths())

	// undo reinserts P1 at its original index, not at the end
	require.True(t, s.Undo())
	assert.Equal(t, []*geometry.Path{p1, p2}, s.Paths())
}

func TestEraseGestureIsOneUndoStep(t *testing.T) {
	s := testState()

	drawStroke(s, "#111", [2]float64{10, 10}, [2]float64{20, 10})
	drawStroke(s, "#222", [2]float64{50, 10}, [2]float64{60, 10})
	require.Len(t, s.Paths(), 2)

	// one continuous drag across both strokes
	s.BeginErase(5, 10)
	s.ContinueErase(70, 10)
	s.EndErase()
	require.Empty(t, s.Paths())

	// a single undo restores both
	require.True(t, s.Undo())
	assert.Len(t, s.Paths(), 2)
}

func TestEraseMissRecordsNoHistory(t *testing.T) {
	s := testState()
	drawStroke(s, "#111", [2]float64{10, 10}, [2]float64{20, 10})

	s.BeginErase(700, 500)
	s.ContinueErase(710, 510)
	s.EndErase()

	assert.Len(t, s.Paths(), 1)
	require.True(t, s.Undo(), "only the draw should be undoable")
	assert.Empty(t, s.Paths())
	assert.False(t, s.Undo())
}

func TestCancelledStrokeLeavesNoTrace(t *testing.T) {
	s := testState()

	s.BeginStroke("#111", 5, false, 10, 10, 0.5)
	s.ExtendStroke(20, 20, 0.5)
	s.CancelStroke()

	assert.Empty(t, s.Paths())
	assert.False(t, s.CanUndo())
	assert.Nil(t, s.EndStroke(), "ending after cancel commits nothing")
}

func TestNewActionClearsRedoStack(t *testing.T) {
	s := testState()

	drawStroke(s, "#111", [2]float64{10, 10}, [2]float64{20, 20})
	drawStroke(s, "#222", [2]float64{30, 30}, [2]float64{40, 40})
	require.True(t, s.Undo())
	require.True(t, s.CanRedo())

	drawStroke(s, "#333", [2]float64{50, 50}, [2]float64{60, 60})
	assert.False(t, s.CanRedo(), "a fresh draw invalidates redo")
}

func TestClearSnapshotRestore(t *testing.T) {
	s := testState()

	p1 := drawStroke(s, "#111", [2]float64{10, 10}, [2]float64{20, 20})
	p2 := drawStroke(s, "#222", [2]float64{30, 30}, [2]float64{40, 40})

	s.Clear()
	require.Empty(t, s.Paths())

	require.True(t, s.Undo())
	assert.Equal(t, []*geometry.Path{p1, p2}, s.Paths())
}

func TestResetDropsEverything(t *testing.T) {
	s := testState()
	drawStroke(s, "#111", [2]float64{10, 10}, [2]float64{20, 20})
	s.SetBackground(Background{ImageData: "data:image/png;base64,xxxx"})

	s.Reset()

	assert.Empty(t, s.Paths())
	assert.False(t, s.CanUndo())
	assert.False(t, s.CanRedo())
	assert.True(t, s.Background().IsEmpty())
}

func TestRevertDrawFallsBackToIndex(t *testing.T) {
	// When the drawn path is no longer present by identity (concurrent
	// mutation), Revert falls back to the recorded index.
	a := geometry.NewPath("#111", 5, false)
	a.AppendPoint(1, 1, 0.5)
	b := geometry.NewPath("#222", 5, false)
	b.AppendPoint(2, 2, 0.5)

	action := DrawAction{Path: a, Index: 0}
	paths := []*geometry.Path{b} // a already gone; index 0 now holds b

	result := Revert(paths, action)
	assert.Empty(t, result)
}

func TestRenderIncludesInProgressStroke(t *testing.T) {
	s := testState()
	s.BeginStroke("#111", 5, false, 10, 10, 0.5)
	s.ExtendStroke(20, 20, 0.5)

	ops := s.Render(geometry.DefaultRenderParams())
	assert.NotEmpty(t, ops)
}
