package oscbridge

import "github.com/robmorgan/halolink/clock"

const maxSamples = 8

type sample struct {
	rtt    clock.Duration
	offset clock.Duration
}

// measurement estimates how far a remote clock runs ahead of ours from ping/pong round
// trips. The sample with the shortest round trip wins, its midpoint being the least
// skewed by queueing.
type measurement struct {
	samples [maxSamples]sample
	n       int
	next    int
}

// add records a round trip: sent and received on our clock, remoteAt on theirs.
func (m *measurement) add(sent, remoteAt, received clock.Instant) bool {
	rtt := received.Sub(sent)
	if rtt < 0 {
		return false
	}
	mid := sent.Add(rtt / 2)
	m.samples[m.next] = sample{rtt: rtt, offset: remoteAt.Sub(mid)}
	m.next = (m.next + 1) % maxSamples
	if m.n < maxSamples {
		m.n++
	}
	return true
}

func (m *measurement) ok() bool { return m.n > 0 }

// offset returns remote minus local time.
func (m *measurement) offset() clock.Duration {
	if m.n == 0 {
		return 0
	}
	best := m.samples[0]
	for _, s := range m.samples[1:m.n] {
		if s.rtt < best.rtt {
			best = s
		}
	}
	return best.offset
}

func (m *measurement) toLocal(remote clock.Instant) clock.Instant {
	return remote.Add(-m.offset())
}
