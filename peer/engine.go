// Package peer defines the contract between a session and whatever reconciles its
// timeline with other peers, plus an in-process group implementation.
package peer

import (
	"github.com/google/uuid"

	"github.com/robmorgan/halolink/rhythm"
)

// NodeID identifies one session among its peers.
type NodeID string

// NewNodeID returns a random node id.
func NewNodeID() NodeID {
	return NodeID(uuid.NewString())
}

// Member is the session side of an Engine. Engines call these from their own goroutines;
// implementations must not call back into the Engine while handling them.
type Member interface {
	NodeID() NodeID

	// ApplySessionTimeline delivers the group timeline in local clock time.
	ApplySessionTimeline(tl rhythm.Timeline)

	// ApplyStartStop delivers a transport change published by another peer.
	ApplyStartStop(ss rhythm.StartStopState)

	// SetPeerCount reports how many other peers are in the group.
	SetPeerCount(n int)
}

// Engine reconciles timelines and transport state across peers.
type Engine interface {
	// Join adds m to the group. tl and ss are the member's current state, used to seed an
	// empty group.
	Join(m Member, tl rhythm.Timeline, ss rhythm.StartStopState) error

	// Leave removes the member from the group. Unknown ids are ignored.
	Leave(id NodeID)

	PublishTimeline(id NodeID, tl rhythm.Timeline)
	PublishStartStop(id NodeID, ss rhythm.StartStopState)
}

// Nop is an Engine for a peer that is always alone.
type Nop struct{}

func (Nop) Join(m Member, _ rhythm.Timeline, _ rhythm.StartStopState) error {
	m.SetPeerCount(0)
	return nil
}

func (Nop) Leave(NodeID)                                  {}
func (Nop) PublishTimeline(NodeID, rhythm.Timeline)       {}
func (Nop) PublishStartStop(NodeID, rhythm.StartStopState) {}
