// Package abi is the flat, handle-based surface for bindings. Every function accepts nil
// or destroyed handles and answers with a fixed default instead of failing: tempo 120,
// beat, phase and time 0, not playing. Go callers should use package session directly.
package abi

import (
	"github.com/sirupsen/logrus"

	"github.com/robmorgan/halolink/clock"
	"github.com/robmorgan/halolink/logger"
	"github.com/robmorgan/halolink/session"
)

var log = logger.WithComponent("abi")

// SnapshotHandle owns one captured app snapshot until DestroySnapshot.
type SnapshotHandle struct {
	snap session.Snapshot
}

func (h *SnapshotHandle) get() *session.Snapshot {
	if h == nil {
		return nil
	}
	return &h.snap
}

func logFailure(op string, err error) {
	if err != nil {
		log.WithError(err).WithField("op", op).Debug("Ignoring failed call")
	}
}

// CreateSession returns a disabled session, or nil if bpm is not a usable tempo.
func CreateSession(bpm float64) *session.Session {
	s, err := session.New(session.Options{Tempo: bpm})
	if err != nil {
		log.WithFields(logrus.Fields{"bpm": bpm}).WithError(err).Warn("CreateSession failed")
		return nil
	}
	return s
}

func DestroySession(s *session.Session) {
	if s != nil {
		logFailure("DestroySession", s.Close())
	}
}

func Enable(s *session.Session, enable bool) {
	if s == nil {
		return
	}
	if enable {
		logFailure("Enable", s.Enable())
	} else {
		logFailure("Enable", s.Disable())
	}
}

func IsEnabled(s *session.Session) bool {
	return s != nil && s.IsEnabled()
}

func NumPeers(s *session.Session) int {
	if s == nil {
		return 0
	}
	return s.PeerCount()
}

// ClockMicros reads the session clock, or the process clock for a nil session.
func ClockMicros(s *session.Session) int64 {
	if s == nil {
		return clock.Now().Micros()
	}
	return s.Now().Micros()
}

func CaptureAppSnapshot(s *session.Session) *SnapshotHandle {
	if s == nil {
		return nil
	}
	return &SnapshotHandle{snap: s.CaptureAppSnapshot()}
}

func CommitAppSnapshot(s *session.Session, h *SnapshotHandle) {
	if s == nil || h == nil {
		return
	}
	logFailure("CommitAppSnapshot", s.CommitAppSnapshot(h.snap))
}

// DestroySnapshot releases the snapshot. The handle answers with defaults afterwards.
func DestroySnapshot(h *SnapshotHandle) {
	if h != nil {
		h.snap = session.Snapshot{}
	}
}

func Tempo(h *SnapshotHandle) float64 {
	if snap := h.get(); snap != nil {
		return snap.Tempo()
	}
	return session.DefaultTempo
}

func SetTempo(h *SnapshotHandle, bpm float64, atTime int64) {
	if snap := h.get(); snap != nil {
		logFailure("SetTempo", snap.SetTempo(bpm, clock.Instant(atTime)))
	}
}

func BeatAtTime(h *SnapshotHandle, t int64, quantum float64) float64 {
	if snap := h.get(); snap != nil {
		return snap.BeatAtTime(clock.Instant(t), quantum)
	}
	return 0
}

func PhaseAtTime(h *SnapshotHandle, t int64, quantum float64) float64 {
	if snap := h.get(); snap != nil {
		return snap.PhaseAtTime(clock.Instant(t), quantum)
	}
	return 0
}

func TimeAtBeat(h *SnapshotHandle, beat, quantum float64) int64 {
	if snap := h.get(); snap != nil {
		return snap.TimeAtBeat(beat, quantum).Micros()
	}
	return 0
}

func RequestBeatAtTime(h *SnapshotHandle, beat float64, t int64, quantum float64) {
	if snap := h.get(); snap != nil {
		logFailure("RequestBeatAtTime", snap.RequestBeatAtTime(beat, clock.Instant(t), quantum))
	}
}

func ForceBeatAtTime(h *SnapshotHandle, beat float64, t int64, quantum float64) {
	if snap := h.get(); snap != nil {
		logFailure("ForceBeatAtTime", snap.ForceBeatAtTime(beat, clock.Instant(t), quantum))
	}
}

func IsPlaying(h *SnapshotHandle) bool {
	if snap := h.get(); snap != nil {
		return snap.IsPlaying()
	}
	return false
}

func SetIsPlaying(h *SnapshotHandle, playing bool, t int64) {
	if snap := h.get(); snap != nil {
		logFailure("SetIsPlaying", snap.SetIsPlaying(playing, clock.Instant(t)))
	}
}
