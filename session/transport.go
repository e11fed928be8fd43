package session

import (
	"sync/atomic"

	"github.com/robmorgan/halolink/rhythm"
)

// transportCoordinator decides whether transport changes cross the session boundary.
// With sync disabled local start/stop stays local and remote changes are ignored.
type transportCoordinator struct {
	enabled atomic.Bool
}

func (c *transportCoordinator) shouldPublish(changed bool) bool {
	return changed && c.enabled.Load()
}

// accept returns the state to adopt for a remote change, if any.
func (c *transportCoordinator) accept(local, remote rhythm.StartStopState) (rhythm.StartStopState, bool) {
	if !c.enabled.Load() || remote == local {
		return local, false
	}
	return remote, true
}

// EnableTransportSync turns transport sharing with peers on or off. Turning it on does not
// push the current local transport state; the next committed change is shared.
func (s *Session) EnableTransportSync(enable bool) {
	if s.transport.enabled.Swap(enable) != enable {
		s.log.WithField("transport_sync", enable).Info("Transport sync changed")
	}
}

// IsTransportSyncEnabled reports whether transport changes are shared with peers.
func (s *Session) IsTransportSyncEnabled() bool {
	return s.transport.enabled.Load()
}
