// Package client assembles the synchronization core into the two
// endpoint state machines: the student client drawing on its own canvas
// and the teacher client mirroring every student with annotation and
// review tooling. Both run entirely on transport callbacks; the embedding
// application feeds pointer input in and renders draw ops out.
package client

import "github.com/classboard/classboard/pkg/transport"

// BadgeState is the connection indicator shown to the user. It is the
// only user-facing error surface; everything else recovers silently.
type BadgeState string

const (
	BadgeConnected BadgeState = "connected"
	BadgePending   BadgeState = "pending"
	BadgeError     BadgeState = "error"
)

// Badge is one status update.
type Badge struct {
	State   BadgeState
	Message string
}

// StatusFunc receives badge updates.
type StatusFunc func(Badge)

func badgeForStatus(status transport.Status) Badge {
	switch status {
	case transport.StatusSubscribed:
		return Badge{State: BadgeConnected, Message: "Connected"}
	case transport.StatusTimedOut:
		return Badge{State: BadgePending, Message: "Reconnecting..."}
	case transport.StatusClosed:
		return Badge{State: BadgePending, Message: "Connection closed"}
	default:
		return Badge{State: BadgeError, Message: "Connection error"}
	}
}
