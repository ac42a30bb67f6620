package events

import "errors"

// ErrClosed is returned by Notify once the emitter has been closed.
var ErrClosed = errors.New("events: emitter closed")
