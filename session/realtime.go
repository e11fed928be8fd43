package session

import "sync/atomic"

const dirtyBit = 4

// tripleBuffer hands values from one writer goroutine to one reader goroutine without
// locks. Each side owns one slot; the third is exchanged by an atomic swap, so neither
// side ever waits or sees a half-written value.
type tripleBuffer[T any] struct {
	slots  [3]T
	middle atomic.Uint32 // slot index, plus dirtyBit when it holds an unread write
	back   uint32        // writer-owned
	front  uint32        // reader-owned
}

func (b *tripleBuffer[T]) init(v T) {
	b.slots = [3]T{v, v, v}
	b.front, b.back = 0, 2
	b.middle.Store(1)
}

func (b *tripleBuffer[T]) write(v T) {
	b.slots[b.back] = v
	b.back = b.middle.Swap(b.back|dirtyBit) &^ dirtyBit
}

// read returns the latest written value and whether it is newer than the last read.
func (b *tripleBuffer[T]) read() (T, bool) {
	fresh := b.middle.Load()&dirtyBit != 0
	if fresh {
		b.front = b.middle.Swap(b.front) &^ dirtyBit
	}
	return b.slots[b.front], fresh
}

// audioState crosses between the app and audio domains.
//
// Towards audio, seq is the number of audio commits already folded into state.
// Towards the app, seq numbers the commit and the flags say which parts the audio
// domain changed since the app last acknowledged it.
type audioState struct {
	state
	seq              uint64
	timelineChanged  bool
	startStopChanged bool
}

// audioSide is owned by whichever Audio handle is bound.
type audioSide struct {
	seq              uint64
	local            state
	timelineChanged  bool
	startStopChanged bool
}

// Audio is exclusive real-time access to a Session. Its methods never block, lock or
// allocate, and it must only be used from one goroutine at a time. While an Audio is bound
// the session refuses app-path commits.
type Audio struct {
	s        *Session
	released atomic.Bool
}

// BindAudio acquires audio access. Only one Audio can be bound at a time; release it with
// Release before binding another.
func (s *Session) BindAudio() (*Audio, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	// app commits check the flag under s.mu
	if !s.audioBound.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return nil, ErrAudioBound
	}
	s.mu.Unlock()
	s.log.Debug("Audio bound")
	return &Audio{s: s}, nil
}

// IsAudioBound reports whether an Audio handle currently holds the session.
func (s *Session) IsAudioBound() bool {
	return s.audioBound.Load()
}

// CaptureSnapshot returns the current state. It includes this handle's own commits even
// before the app domain has folded them in.
func (a *Audio) CaptureSnapshot() Snapshot {
	if a.released.Load() {
		return Snapshot{}
	}
	side := &a.s.audio
	v, _ := a.s.toAudio.read()
	st := v.state
	if v.seq < side.seq {
		st = side.local
	} else {
		side.timelineChanged = false
		side.startStopChanged = false
	}
	return newSnapshot(st, a.s.peers.Load() > 0)
}

// CommitSnapshot publishes the changes made to snap. Unchanged snapshots are ignored.
func (a *Audio) CommitSnapshot(snap Snapshot) error {
	if a.released.Load() {
		return ErrAudioReleased
	}
	if !snap.captured {
		return ErrNotCaptured
	}
	tlChanged, ssChanged := snap.timelineChanged(), snap.startStopChanged()
	if !tlChanged && !ssChanged {
		return nil
	}

	side := &a.s.audio
	side.seq++
	if tlChanged {
		side.local.timeline = snap.current.timeline
		side.timelineChanged = true
	}
	if ssChanged {
		side.local.startStop = snap.current.startStop
		side.startStopChanged = true
	}
	if !side.timelineChanged {
		side.local.timeline = snap.original.timeline
	}
	if !side.startStopChanged {
		side.local.startStop = snap.original.startStop
	}

	a.s.fromAudio.write(audioState{
		state:            side.local,
		seq:              side.seq,
		timelineChanged:  side.timelineChanged,
		startStopChanged: side.startStopChanged,
	})
	select {
	case a.s.audioCommitted <- struct{}{}:
	default:
	}
	return nil
}

// Release gives audio access back to the session. It is safe to call more than once.
func (a *Audio) Release() {
	if a.released.CompareAndSwap(false, true) {
		a.s.audioBound.Store(false)
	}
}
