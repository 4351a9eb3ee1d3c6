// Package drawing owns the per-student canvas state machine: the ordered
// path list, background, and the undo/redo history expressed as a tagged
// action union processed by a small interpreter. The interpreter is pure
// over path slices so the inverse law can be tested without a State.
package drawing

import "github.com/classboard/classboard/pkg/geometry"

// ActionKind discriminates history actions.
type ActionKind string

const (
	ActionDraw  ActionKind = "draw"
	ActionErase ActionKind = "erase"
	ActionClear ActionKind = "clear"
)

// Action is one entry in the undo/redo history.
type Action interface {
	Kind() ActionKind
}

// DrawAction records a committed stroke and where it was inserted.
type DrawAction struct {
	Path  *geometry.Path
	Index int
}

func (DrawAction) Kind() ActionKind { return ActionDraw }

// EraseEntry is a single removal inside an erase gesture. Index is the
// position the path occupied at removal time, used to restore ordering on
// undo even when paths were removed out of order.
type EraseEntry struct {
	Path  *geometry.Path
	Index int
}

// EraseAction accumulates every removal of one eraser gesture, so a whole
// drag undoes as a single step.
type EraseAction struct {
	Entries []EraseEntry
}

func (EraseAction) Kind() ActionKind { return ActionErase }

// ClearAction snapshots the paths that were wiped.
type ClearAction struct {
	Snapshot []*geometry.Path
}

func (ClearAction) Kind() ActionKind { return ActionClear }

// Apply performs an action against a path list and returns the result.
func Apply(paths []*geometry.Path, action Action) []*geometry.Path {
	switch a := action.(type) {
	case DrawAction:
		return insertAt(paths, a.Path, a.Index)
	case EraseAction:
		for _, entry := range a.Entries {
			paths = removePath(paths, entry.Path, entry.Index)
		}
		return paths
	case ClearAction:
		return nil
	default:
		return paths
	}
}

// Revert undoes an action against a path list and returns the result.
func Revert(paths []*geometry.Path, action Action) []*geometry.Path {
	switch a := action.(type) {
	case DrawAction:
		return removePath(paths, a.Path, a.Index)
	case EraseAction:
		// Reinsert in reverse removal order so earlier indices are valid
		// again by the time they are used.
		for i := len(a.Entries) - 1; i >= 0; i-- {
			paths = insertAt(paths, a.Entries[i].Path, a.Entries[i].Index)
		}
		return paths
	case ClearAction:
		restored := make([]*geometry.Path, len(a.Snapshot))
		copy(restored, a.Snapshot)
		return restored
	default:
		return paths
	}
}

// removePath removes by identity first; concurrent removals can shift a
// path away from its recorded position, so the stored index is only the
// fallback.
func removePath(paths []*geometry.Path, target *geometry.Path, fallbackIndex int) []*geometry.Path {
	for i, p := range paths {
		if p == target || (target.ID != "" && p.ID == target.ID) {
			return append(paths[:i], paths[i+1:]...)
		}
	}
	if fallbackIndex >= 0 && fallbackIndex < len(paths) {
		return append(paths[:fallbackIndex], paths[fallbackIndex+1:]...)
	}
	return paths
}

func insertAt(paths []*geometry.Path, p *geometry.Path, index int) []*geometry.Path {
	if index < 0 {
		index = 0
	}
	if index > len(paths) {
		index = len(paths)
	}
	paths = append(paths, nil)
	copy(paths[index+1:], paths[index:])
	paths[index] = p
	return paths
}
