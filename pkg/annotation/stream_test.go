package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classboard/classboard/pkg/geometry"
	"github.com/classboard/classboard/pkg/models/wire"
)

func annotationPath(color string, pts ...[2]float64) *geometry.Path {
	p := geometry.NewPath(color, 4, false)
	for _, pt := range pts {
		p.AppendPoint(pt[0], pt[1], 0.7)
	}
	p.EnsureID()
	return p
}

func opTypes(d *wire.AnnotationDelta) []string {
	out := make([]string, len(d.Ops))
	for i, op := range d.Ops {
		out[i] = op.Type
	}
	return out
}

// Applying the incremental deltas must land the receiver on exactly the
// state a single full replace of the final list would produce, with the
// sender and receiver on different canvas sizes.
func TestDeltaFullSyncEquivalence(t *testing.T) {
	sender := NewStreamState(800, 600)
	viaDelta := NewOverlay(400, 300)

	p1 := annotationPath("#e11", [2]float64{100, 100}, [2]float64{120, 110})
	current := []*geometry.Path{p1}

	delta, replace := sender.ComputeDelta(current)
	require.False(t, replace)
	require.Equal(t, []string{wire.DeltaAddPath}, opTypes(delta))
	require.NoError(t, viaDelta.ApplyDelta(delta))

	// the stroke grows: only the suffix travels
	p1.AppendPoint(140, 120, 0.8)
	p1.AppendPoint(160, 130, 0.9)
	delta, replace = sender.ComputeDelta(current)
	require.False(t, replace)
	require.Equal(t, []string{wire.DeltaAppendPoints}, opTypes(delta))
	assert.Len(t, delta.Ops[0].Points, 2, "only the new suffix is sent")
	require.NoError(t, viaDelta.ApplyDelta(delta))

	// erase p1, draw p2
	p2 := annotationPath("#11e", [2]float64{300, 300}, [2]float64{320, 310})
	current = []*geometry.Path{p2}
	delta, replace = sender.ComputeDelta(current)
	require.False(t, replace)
	assert.ElementsMatch(t, []string{wire.DeltaRemovePath, wire.DeltaAddPath}, opTypes(delta))
	require.NoError(t, viaDelta.ApplyDelta(delta))

	viaReplace := NewOverlay(400, 300)
	viaReplace.ApplyReplace(NewStreamState(800, 600).Replace(current))

	deltaPaths := viaDelta.Paths()
	replacePaths := viaReplace.Paths()
	require.Len(t, deltaPaths, len(replacePaths))
	for i := range deltaPaths {
		assert.Equal(t, *replacePaths[i], *deltaPaths[i])
	}
}

func TestNoChangeProducesNoDelta(t *testing.T) {
	sender := NewStreamState(800, 600)
	current := []*geometry.Path{annotationPath("#e11", [2]float64{10, 10})}

	_, replace := sender.ComputeDelta(current)
	require.False(t, replace)

	delta, replace := sender.ComputeDelta(current)
	assert.False(t, replace)
	assert.Nil(t, delta)
}

func TestShrinkingPathForcesReplace(t *testing.T) {
	sender := NewStreamState(800, 600)
	p := annotationPath("#e11", [2]float64{10, 10}, [2]float64{20, 20}, [2]float64{30, 30})
	_, replace := sender.ComputeDelta([]*geometry.Path{p})
	require.False(t, replace)

	// same ID, fewer points: not representable as a delta
	p.Points = p.Points[:1]
	delta, replace := sender.ComputeDelta([]*geometry.Path{p})
	assert.True(t, replace)
	assert.Nil(t, delta)

	// the replace resets the watermark, after which deltas resume
	sender.Replace([]*geometry.Path{p})
	p.AppendPoint(40, 40, 0.7)
	delta, replace = sender.ComputeDelta([]*geometry.Path{p})
	require.False(t, replace)
	require.Equal(t, []string{wire.DeltaAppendPoints}, opTypes(delta))
}

func TestWipeCollapsesToSingleClearOp(t *testing.T) {
	sender := NewStreamState(800, 600)
	current := []*geometry.Path{
		annotationPath("#e11", [2]float64{10, 10}),
		annotationPath("#1e1", [2]float64{20, 20}),
		annotationPath("#11e", [2]float64{30, 30}),
	}
	_, replace := sender.ComputeDelta(current)
	require.False(t, replace)

	delta, replace := sender.ComputeDelta(nil)
	require.False(t, replace)
	require.Equal(t, []string{wire.DeltaClear}, opTypes(delta))

	overlay := NewOverlay(400, 300)
	overlay.ApplyReplace(NewStreamState(800, 600).Replace(current))
	require.Len(t, overlay.Paths(), 3)
	require.NoError(t, overlay.ApplyDelta(delta))
	assert.Empty(t, overlay.Paths())
	assert.Zero(t, sender.Known())
}

func TestOverlayDesyncRecovery(t *testing.T) {
	overlay := NewOverlay(400, 300)

	err := overlay.ApplyDelta(&wire.AnnotationDelta{Ops: []wire.DeltaOp{
		{Type: wire.DeltaAppendPoints, ID: "ghost", Points: [][3]float64{{0.5, 0.5, 0.7}}},
	}})
	assert.ErrorIs(t, err, ErrDesync)

	err = overlay.ApplyDelta(&wire.AnnotationDelta{Ops: []wire.DeltaOp{
		{Type: wire.DeltaRemovePath, ID: "ghost", Index: 0},
	}})
	assert.ErrorIs(t, err, ErrDesync)

	// the next replace carries full state and recovers the overlay
	current := []*geometry.Path{annotationPath("#e11", [2]float64{10, 10})}
	overlay.ApplyReplace(NewStreamState(800, 600).Replace(current))
	assert.Len(t, overlay.Paths(), 1)
}

func TestOverlayDuplicateAddIsIdempotent(t *testing.T) {
	overlay := NewOverlay(400, 300)
	wp := geometry.Serialize(annotationPath("#e11", [2]float64{10, 10}), 800, 600)
	delta := &wire.AnnotationDelta{Ops: []wire.DeltaOp{{Type: wire.DeltaAddPath, Index: 0, Path: &wp}}}

	require.NoError(t, overlay.ApplyDelta(delta))
	require.NoError(t, overlay.ApplyDelta(delta), "duplicate delivery")
	assert.Len(t, overlay.Paths(), 1)
}

func TestOverlayAddPathRespectsIndex(t *testing.T) {
	overlay := NewOverlay(800, 600)
	a := geometry.Serialize(annotationPath("#a", [2]float64{10, 10}), 800, 600)
	b := geometry.Serialize(annotationPath("#b", [2]float64{20, 20}), 800, 600)
	c := geometry.Serialize(annotationPath("#c", [2]float64{30, 30}), 800, 600)

	require.NoError(t, overlay.ApplyDelta(&wire.AnnotationDelta{Ops: []wire.DeltaOp{
		{Type: wire.DeltaAddPath, Index: 0, Path: &a},
		{Type: wire.DeltaAddPath, Index: 1, Path: &b},
		{Type: wire.DeltaAddPath, Index: 0, Path: &c},
	}}))

	paths := overlay.Paths()
	require.Len(t, paths, 3)
	assert.Equal(t, "#c", paths[0].Color)
	assert.Equal(t, "#a", paths[1].Color)
	assert.Equal(t, "#b", paths[2].Color)
}
