package ports

import "errors"

// ErrUnknownFrame reports a frame id the database has no message for. It is a
// normal control path during decode, never a pipeline failure.
var ErrUnknownFrame = errors.New("frame id not in database")

// Database is the externally supplied frame-definition database. Lookups are
// pure, synchronous and safe for shared use.
type Database interface {
	// Render produces the human-readable signal text for the console echo.
	// decodeChoices substitutes choice labels for scaled values; singleLine
	// collapses the rendering to one line. Returns ErrUnknownFrame when the
	// id has no message.
	Render(frameID uint32, payload []byte, decodeChoices, singleLine bool) (string, error)

	// DecodeSignals returns the raw signal name to value mapping with choice
	// substitution disabled, for the publish path. Returns ErrUnknownFrame
	// when the id has no message.
	DecodeSignals(frameID uint32, payload []byte) (map[string]any, error)

	// MessageName resolves the symbolic message name for a frame id.
	MessageName(frameID uint32) (string, bool)
}
