package session

import "errors"

var (
	// ErrInvalidTempo is returned for a tempo that is not a positive number.
	ErrInvalidTempo = errors.New("tempo must be a positive number of beats per minute")

	// ErrInvalidQuantum is returned when a mutator is given a non-positive quantum.
	ErrInvalidQuantum = errors.New("quantum must be positive")

	// ErrNotCaptured is returned when a zero Snapshot is mutated or committed.
	ErrNotCaptured = errors.New("snapshot was not captured from a session")

	// ErrAudioBound is returned when audio access is already held, and by app commits
	// while it is.
	ErrAudioBound = errors.New("audio access is bound")

	// ErrAudioReleased is returned by an Audio handle after Release.
	ErrAudioReleased = errors.New("audio access was released")

	// ErrClosed is returned once the session is closed.
	ErrClosed = errors.New("session is closed")
)
