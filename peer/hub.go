package peer

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/robmorgan/halolink/logger"
	"github.com/robmorgan/halolink/rhythm"
)

// Hub is an Engine whose members all live in this process and read the same clock, so
// timelines are exchanged without translation. The first member to join seeds the group
// state; later publishes replace it and are delivered to every other member.
type Hub struct {
	mu      sync.Mutex
	members map[NodeID]Member
	log     *logrus.Entry

	timeline     rhythm.Timeline
	hasTimeline  bool
	startStop    rhythm.StartStopState
	hasStartStop bool
}

// NewHub creates an empty group.
func NewHub() *Hub {
	return &Hub{
		members: make(map[NodeID]Member),
		log:     logger.WithComponent("hub"),
	}
}

func (h *Hub) Join(m Member, tl rhythm.Timeline, ss rhythm.StartStopState) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := m.NodeID()
	if _, found := h.members[id]; found {
		return fmt.Errorf("node %s already joined", id)
	}
	h.members[id] = m
	h.log.WithFields(logrus.Fields{"node": id, "members": len(h.members)}).Info("Join")

	if h.hasTimeline {
		m.ApplySessionTimeline(h.timeline)
	} else {
		h.timeline, h.hasTimeline = tl, true
	}

	if h.hasStartStop {
		m.ApplyStartStop(h.startStop)
	} else if ss.Time != 0 {
		h.startStop, h.hasStartStop = ss, true
	}

	h.announceLocked()
	return nil
}

func (h *Hub) Leave(id NodeID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, found := h.members[id]; !found {
		return
	}
	delete(h.members, id)
	h.log.WithFields(logrus.Fields{"node": id, "members": len(h.members)}).Info("Leave")

	if len(h.members) == 0 {
		h.hasTimeline = false
		h.hasStartStop = false
	}
	h.announceLocked()
}

func (h *Hub) PublishTimeline(id NodeID, tl rhythm.Timeline) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, found := h.members[id]; !found {
		return
	}
	h.timeline, h.hasTimeline = tl, true
	for other, m := range h.members {
		if other != id {
			m.ApplySessionTimeline(tl)
		}
	}
}

func (h *Hub) PublishStartStop(id NodeID, ss rhythm.StartStopState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, found := h.members[id]; !found {
		return
	}
	h.startStop, h.hasStartStop = ss, true
	for other, m := range h.members {
		if other != id {
			m.ApplyStartStop(ss)
		}
	}
}

// Size returns the number of members.
func (h *Hub) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.members)
}

func (h *Hub) announceLocked() {
	for _, m := range h.members {
		m.SetPeerCount(len(h.members) - 1)
	}
}
