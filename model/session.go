package model

import (
	"errors"
	"time"
)

// ErrMissingField is returned by response parsers when an expected key is
// absent from a remote payload.
var ErrMissingField = errors.New("missing field")

// Credentials identify the account used against the remote service.
type Credentials struct {
	AuthService string // e.g. "ptc" or "google"
	Username    string
	Password    string
}

// SessionState tracks the remote session lifecycle. Zero times mean unset.
type SessionState struct {
	LoggedInAt      time.Time
	TicketExpiresAt time.Time
}

// LoggedIn reports whether a login has ever succeeded.
func (s SessionState) LoggedIn() bool {
	return !s.LoggedInAt.IsZero()
}

// MapRequest is one location probe as handed to the remote client.
type MapRequest struct {
	Position ScanPoint

	// LatitudeFixed and LongitudeFixed carry the IEEE-754 bit pattern of
	// the coordinates.
	LatitudeFixed  uint64
	LongitudeFixed uint64

	// SinceTimestampMs holds one entry per cell id; zero asks for everything.
	SinceTimestampMs []int64
	CellIDs          []uint64
}
