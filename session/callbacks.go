package session

import "sync"

// notifier remembers the last values handed to callbacks so each change is reported
// once. Rapid changes coalesce into the latest value.
type notifier struct {
	mu          sync.Mutex
	onPeers     func(int)
	onTempo     func(float64)
	onTransport func(bool)

	peers   int
	tempo   float64
	playing bool
}

func (n *notifier) reset(peers int, tempo float64, playing bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers, n.tempo, n.playing = peers, tempo, playing
}

func (n *notifier) deliver(peers int, tempo float64, playing bool) {
	n.mu.Lock()
	var calls []func()
	if peers != n.peers {
		n.peers = peers
		if fn := n.onPeers; fn != nil {
			calls = append(calls, func() { fn(peers) })
		}
	}
	if tempo != n.tempo {
		n.tempo = tempo
		if fn := n.onTempo; fn != nil {
			calls = append(calls, func() { fn(tempo) })
		}
	}
	if playing != n.playing {
		n.playing = playing
		if fn := n.onTransport; fn != nil {
			calls = append(calls, func() { fn(playing) })
		}
	}
	n.mu.Unlock()

	for _, call := range calls {
		call()
	}
}

// OnPeerCountChanged registers fn to be called with the new peer count. Callbacks run on
// the session's own goroutine and may use the app path.
func (s *Session) OnPeerCountChanged(fn func(peers int)) {
	s.notify.mu.Lock()
	defer s.notify.mu.Unlock()
	s.notify.onPeers = fn
}

// OnTempoChanged registers fn to be called with the new tempo.
func (s *Session) OnTempoChanged(fn func(bpm float64)) {
	s.notify.mu.Lock()
	defer s.notify.mu.Unlock()
	s.notify.onTempo = fn
}

// OnTransportChanged registers fn to be called when the transport starts or stops.
func (s *Session) OnTransportChanged(fn func(playing bool)) {
	s.notify.mu.Lock()
	defer s.notify.mu.Unlock()
	s.notify.onTransport = fn
}
