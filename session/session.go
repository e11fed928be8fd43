// Package session holds the shared timeline and its capture, mutate and commit protocol.
//
// A Session has two access paths. The app path (CaptureAppSnapshot, CommitAppSnapshot)
// is safe for any number of goroutines and may block briefly. The audio path (BindAudio)
// is a single exclusive handle whose methods never block or allocate.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/gruntwork-io/go-commons/errors"
	"github.com/sirupsen/logrus"

	"github.com/robmorgan/halolink/clock"
	"github.com/robmorgan/halolink/logger"
	"github.com/robmorgan/halolink/peer"
	"github.com/robmorgan/halolink/rhythm"
)

// Options configure a new Session.
type Options struct {
	// Tempo is the initial tempo in beats per minute.
	Tempo float64

	// Clock defaults to clock.Process().
	Clock *clock.Clock

	// Engine defaults to peer.Nop.
	Engine peer.Engine

	// NodeID defaults to a random id.
	NodeID peer.NodeID

	// TransportSync enables sharing transport changes with peers from the start.
	TransportSync bool

	Logger *logrus.Entry
}

// Session is the long-lived timeline shared with peers.
type Session struct {
	id     peer.NodeID
	clock  *clock.Clock
	engine peer.Engine
	log    *logrus.Entry

	enableMu sync.Mutex

	mu        sync.Mutex
	client    state
	timeline  rhythm.Timeline // session (group) timeline
	enabled   bool
	closed    bool
	audioSeen uint64

	peers     atomic.Int64
	transport transportCoordinator

	audioBound     atomic.Bool
	audio          audioSide
	toAudio        tripleBuffer[audioState]
	fromAudio      tripleBuffer[audioState]
	audioCommitted chan struct{}

	notify   notifier
	wake     chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	closeOnce sync.Once
}

// New creates a disabled session at the given tempo.
func New(opts Options) (*Session, error) {
	if !(opts.Tempo > 0) {
		return nil, errors.WithStackTrace(ErrInvalidTempo)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Process()
	}
	if opts.Engine == nil {
		opts.Engine = peer.Nop{}
	}
	if opts.NodeID == "" {
		opts.NodeID = peer.NewNodeID()
	}
	if opts.Logger == nil {
		opts.Logger = logger.WithComponent("session")
	}

	tl := rhythm.Timeline{Tempo: rhythm.Tempo(opts.Tempo).Clamp()}
	s := &Session{
		id:             opts.NodeID,
		clock:          opts.Clock,
		engine:         opts.Engine,
		log:            opts.Logger.WithField("node", opts.NodeID),
		client:         state{timeline: tl},
		timeline:       tl,
		audioCommitted: make(chan struct{}, 1),
		wake:           make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
	s.transport.enabled.Store(opts.TransportSync)
	s.toAudio.init(audioState{state: s.client})
	s.fromAudio.init(audioState{state: s.client})
	s.audio.local = s.client
	s.notify.reset(0, tl.Tempo.BPM(), false)

	s.wg.Add(1)
	go s.run()

	s.log.WithFields(logrus.Fields{"tempo": tl.Tempo.BPM()}).Info("Session created")
	return s, nil
}

// Close leaves the peer group and stops the session's goroutine. Later calls are no-ops.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.Disable()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		s.wg.Wait()
		s.log.Info("Session closed")
	})
	return err
}

// NodeID implements peer.Member.
func (s *Session) NodeID() peer.NodeID { return s.id }

// Clock returns the session's time source.
func (s *Session) Clock() *clock.Clock { return s.clock }

// Now reads the session clock.
func (s *Session) Now() clock.Instant { return s.clock.Now() }

// Enable joins the peer group. Tempo, beat mapping and transport are kept, although the
// group may replace them once joined.
func (s *Session) Enable() error {
	s.enableMu.Lock()
	defer s.enableMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.enabled {
		s.mu.Unlock()
		return nil
	}
	s.enabled = true
	tl, ss := s.timeline, s.client.startStop
	if !s.transport.enabled.Load() {
		// a zero state never becomes the group's transport
		ss = rhythm.StartStopState{}
	}
	s.mu.Unlock()

	if err := s.engine.Join(s, tl, ss); err != nil {
		s.mu.Lock()
		s.enabled = false
		s.mu.Unlock()
		return errors.WithStackTrace(err)
	}
	s.log.Info("Enabled")
	return nil
}

// Disable leaves the peer group. Local state is untouched.
func (s *Session) Disable() error {
	s.enableMu.Lock()
	defer s.enableMu.Unlock()

	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return nil
	}
	s.enabled = false
	s.mu.Unlock()

	s.engine.Leave(s.id)
	s.SetPeerCount(0)
	s.log.Info("Disabled")
	return nil
}

// IsEnabled reports whether the session takes part in the peer group.
func (s *Session) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// PeerCount returns the last reported number of other peers.
func (s *Session) PeerCount() int {
	return int(s.peers.Load())
}

// CaptureAppSnapshot returns the current state for use on the app path.
func (s *Session) CaptureAppSnapshot() Snapshot {
	s.mu.Lock()
	out := s.foldAudioLocked(s.clock.Now())
	snap := newSnapshot(s.client, s.peers.Load() > 0)
	s.mu.Unlock()

	s.flush(out)
	return snap
}

// CommitAppSnapshot applies the changes made to snap. It fails with ErrAudioBound while an
// Audio handle is bound.
func (s *Session) CommitAppSnapshot(snap Snapshot) error {
	if !snap.captured {
		return ErrNotCaptured
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.audioBound.Load() {
		s.mu.Unlock()
		return ErrAudioBound
	}
	now := s.clock.Now()
	out := s.foldAudioLocked(now)
	out.merge(s.applyLocked(snap.current, snap.timelineChanged(), snap.startStopChanged(), now))
	s.mu.Unlock()

	s.flush(out)
	s.log.WithFields(logrus.Fields{
		"tempo":     snap.Tempo(),
		"playing":   snap.IsPlaying(),
		"timeline":  snap.timelineChanged(),
		"transport": snap.startStopChanged(),
	}).Debug("CommitAppSnapshot")
	return nil
}

// ApplySessionTimeline implements peer.Member.
func (s *Session) ApplySessionTimeline(tl rhythm.Timeline) {
	s.mu.Lock()
	if s.closed || !s.enabled {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	s.timeline = tl
	s.client.timeline = rhythm.ClientFromSession(s.client.timeline, tl, now)
	s.publishToAudioLocked()
	s.mu.Unlock()

	s.signal()
}

// ApplyStartStop implements peer.Member.
func (s *Session) ApplyStartStop(ss rhythm.StartStopState) {
	s.mu.Lock()
	if s.closed || !s.enabled {
		s.mu.Unlock()
		return
	}
	next, ok := s.transport.accept(s.client.startStop, ss)
	if ok {
		s.client.startStop = next
		s.publishToAudioLocked()
	}
	s.mu.Unlock()

	if ok {
		s.signal()
	}
}

// SetPeerCount implements peer.Member.
func (s *Session) SetPeerCount(n int) {
	if s.peers.Swap(int64(n)) != int64(n) {
		s.log.WithField("peers", n).Info("Peer count changed")
		s.signal()
	}
}

// outbound is the work left after the session lock is released.
type outbound struct {
	publish   bool
	timeline  *rhythm.Timeline
	startStop *rhythm.StartStopState
}

func (o *outbound) merge(other outbound) {
	o.publish = o.publish || other.publish
	if other.timeline != nil {
		o.timeline = other.timeline
	}
	if other.startStop != nil {
		o.startStop = other.startStop
	}
}

// applyLocked folds a committed state into the session.
func (s *Session) applyLocked(st state, timelineChanged, startStopChanged bool, now clock.Instant) outbound {
	out := outbound{publish: s.enabled}
	if timelineChanged {
		st.timeline.Tempo = st.timeline.Tempo.Clamp()
		s.client.timeline = st.timeline
		s.timeline = rhythm.SessionFromClient(s.timeline, st.timeline, now)
		tl := s.timeline
		out.timeline = &tl
	}
	if startStopChanged && st.startStop != s.client.startStop {
		s.client.startStop = st.startStop
		if s.transport.shouldPublish(true) {
			ss := st.startStop
			out.startStop = &ss
		}
	}
	s.publishToAudioLocked()
	return out
}

// foldAudioLocked applies the latest audio commit, if the app has not seen it yet.
func (s *Session) foldAudioLocked(now clock.Instant) outbound {
	c, _ := s.fromAudio.read()
	if c.seq <= s.audioSeen {
		return outbound{}
	}
	s.audioSeen = c.seq
	return s.applyLocked(c.state, c.timelineChanged, c.startStopChanged, now)
}

func (s *Session) publishToAudioLocked() {
	s.toAudio.write(audioState{state: s.client, seq: s.audioSeen})
}

func (s *Session) flush(out outbound) {
	if out.publish {
		if out.timeline != nil {
			s.engine.PublishTimeline(s.id, *out.timeline)
		}
		if out.startStop != nil {
			s.engine.PublishStartStop(s.id, *out.startStop)
		}
	}
	if out.timeline != nil || out.startStop != nil {
		s.signal()
	}
}

// signal wakes the session goroutine to deliver callbacks.
func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run folds audio commits into the session and delivers callbacks, so neither happens
// on the audio goroutine or under an engine's lock.
func (s *Session) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case <-s.audioCommitted:
			s.mu.Lock()
			out := s.foldAudioLocked(s.clock.Now())
			s.mu.Unlock()
			s.flush(out)
			s.deliver()
		case <-s.wake:
			s.deliver()
		}
	}
}

func (s *Session) deliver() {
	s.mu.Lock()
	tempo := s.client.timeline.Tempo.BPM()
	playing := s.client.startStop.IsPlaying()
	s.mu.Unlock()

	s.notify.deliver(s.PeerCount(), tempo, playing)
}
