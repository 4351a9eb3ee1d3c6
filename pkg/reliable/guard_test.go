package reliable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classboard/classboard/pkg/models/wire"
)

func TestGuardAdmitsEachSequenceOnce(t *testing.T) {
	guard := NewReceiveGuard(NewMemorySequenceStore(), "ABC123", nil)

	msg := &wire.NextQuestion{QuestionNumber: 2, Seq: 5}
	require.True(t, guard.Admit(msg))
	assert.False(t, guard.Admit(msg), "duplicate delivery is dropped")
	assert.Equal(t, int64(5), guard.LastApplied())
}

func TestGuardRejectsStaleSequences(t *testing.T) {
	guard := NewReceiveGuard(NewMemorySequenceStore(), "ABC123", nil)

	require.True(t, guard.Admit(&wire.SetBackground{Seq: 7}))
	assert.False(t, guard.Admit(&wire.SetBackground{Seq: 6}), "out-of-order stale event")
	assert.True(t, guard.Admit(&wire.SetBackground{Seq: 8}))
}

func TestGuardPassesUnguardedAndUnstamped(t *testing.T) {
	guard := NewReceiveGuard(NewMemorySequenceStore(), "ABC123", nil)

	assert.True(t, guard.Admit(&wire.DrawBatch{Username: "alice"}))
	assert.True(t, guard.Admit(&wire.DrawBatch{Username: "alice"}), "fire-and-forget events are never deduplicated")
	assert.True(t, guard.Admit(&wire.NextQuestion{QuestionNumber: 1}), "unstamped guarded message passes")
	assert.Zero(t, guard.LastApplied(), "unstamped messages do not advance the watermark")
}

func TestGuardWatermarkSurvivesGuardRecreation(t *testing.T) {
	// The store outlives the session object, so recreating the guard
	// (page reload, reconnect) does not replay applied events.
	store := NewMemorySequenceStore()

	first := NewReceiveGuard(store, "ABC123", nil)
	require.True(t, first.Admit(&wire.NextQuestion{QuestionNumber: 3, Seq: 9}))

	second := NewReceiveGuard(store, "ABC123", nil)
	assert.False(t, second.Admit(&wire.NextQuestion{QuestionNumber: 3, Seq: 9}))
	assert.Equal(t, int64(9), second.LastApplied())
}

func TestGuardIsolatesSessions(t *testing.T) {
	store := NewMemorySequenceStore()
	a := NewReceiveGuard(store, "AAA111", nil)
	b := NewReceiveGuard(store, "BBB222", nil)

	require.True(t, a.Admit(&wire.SetBackground{Seq: 4}))
	assert.True(t, b.Admit(&wire.SetBackground{Seq: 4}), "watermarks are per session code")
}
