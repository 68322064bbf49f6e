package playback

import "errors"

// ErrRoomNotFound is returned when room auto-creation is disabled and a
// command names a room that does not exist.
var ErrRoomNotFound = errors.New("room not found")

// ErrInvalidPosition is returned for positions that are not finite numbers.
// Negative positions are clamped, not rejected.
var ErrInvalidPosition = errors.New("invalid position")
