// Package oscbridge shares a session timeline with peers in other processes over OSC.
//
// Each peer broadcasts its node id, its listen address, the session timeline and the
// transport state once per heartbeat, and measures every other peer's clock with ping/pong
// round trips so remote instants can be translated into local time.
package oscbridge

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gruntwork-io/go-commons/errors"
	"github.com/hypebeast/go-osc/osc"
	"github.com/sirupsen/logrus"

	"github.com/robmorgan/halolink/clock"
	"github.com/robmorgan/halolink/logger"
	"github.com/robmorgan/halolink/peer"
	"github.com/robmorgan/halolink/rhythm"
)

const (
	DefaultHeartbeat = time.Second
	DefaultTimeout   = 5 * time.Second
)

// Config configures a Bridge.
type Config struct {
	// Listen is the UDP address to receive on.
	Listen string

	// Advertise is the address peers reply to. Defaults to Listen.
	Advertise string

	// Peers are addresses to announce to. Peers that announce themselves are added.
	Peers []string

	Heartbeat time.Duration
	Timeout   time.Duration

	Clock  *clock.Clock
	Logger *logrus.Entry
}

type sender interface {
	Send(packet osc.Packet) error
}

type remote struct {
	addr     string
	lastSeen clock.Instant
	lastPing clock.Instant
	pinged   bool
	clock    measurement

	// state received before the clock was measured
	pendingTimeline  *wireTimeline
	pendingStartStop *wireStartStop
}

var _ peer.Engine = (*Bridge)(nil)

// Bridge is a peer.Engine for a single local member.
type Bridge struct {
	cfg        Config
	clock      *clock.Clock
	log        *logrus.Entry
	dispatcher *osc.StandardDispatcher
	dial       func(addr string) (sender, error)

	mu           sync.Mutex
	member       peer.Member
	senders      map[string]sender
	remotes      map[peer.NodeID]*remote
	peers        int
	timeline     wireTimeline
	hasTimeline  bool
	startStop    wireStartStop
	hasStartStop bool
}

// New creates a bridge. It does not touch the network until Serve.
func New(cfg Config) (*Bridge, error) {
	if cfg.Listen == "" {
		return nil, errors.WithStackTrace(fmt.Errorf("oscbridge: listen address required"))
	}
	if cfg.Advertise == "" {
		cfg.Advertise = cfg.Listen
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Process()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.WithComponent("oscbridge")
	}

	b := &Bridge{
		cfg:        cfg,
		clock:      cfg.Clock,
		log:        cfg.Logger.WithField("listen", cfg.Listen),
		dispatcher: osc.NewStandardDispatcher(),
		dial:       dialOSC,
		senders:    make(map[string]sender),
		remotes:    make(map[peer.NodeID]*remote),
	}

	handlers := map[string]func(*osc.Message){
		AddrAlive:     b.handleAlive,
		AddrTimeline:  b.handleTimeline,
		AddrStartStop: b.handleStartStop,
		AddrPing:      b.handlePing,
		AddrPong:      b.handlePong,
	}
	for addr, fn := range handlers {
		if err := b.dispatcher.AddMsgHandler(addr, fn); err != nil {
			return nil, errors.WithStackTrace(err)
		}
	}
	return b, nil
}

func dialOSC(addr string) (sender, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, errors.WithStackTrace(err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return nil, errors.WithStackTrace(err)
	}
	return osc.NewClient(host, port), nil
}

// Serve receives peer messages and sends heartbeats until ctx is cancelled.
func (b *Bridge) Serve(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", b.cfg.Listen)
	if err != nil {
		return errors.WithStackTrace(err)
	}
	return b.ServeConn(ctx, conn)
}

// ServeConn is Serve on a connection the caller opened. conn is closed on return.
func (b *Bridge) ServeConn(ctx context.Context, conn net.PacketConn) error {
	server := &osc.Server{Dispatcher: b.dispatcher}

	errc := make(chan error, 1)
	go func() { errc <- server.Serve(conn) }()
	b.log.WithField("addr", conn.LocalAddr().String()).Info("Listening for peers")

	ticker := time.NewTicker(b.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			<-errc
			return nil
		case err := <-errc:
			conn.Close()
			return errors.WithStackTrace(err)
		case <-ticker.C:
			b.Heartbeat()
		}
	}
}

// Join implements peer.Engine. If remote peers already shared a timeline the member adopts
// it, otherwise tl founds a new session.
func (b *Bridge) Join(m peer.Member, tl rhythm.Timeline, ss rhythm.StartStopState) error {
	b.mu.Lock()
	if b.member != nil {
		b.mu.Unlock()
		return errors.WithStackTrace(fmt.Errorf("oscbridge: cannot join %s, another member already joined", m.NodeID()))
	}
	b.member = m

	var fx effects
	if b.hasTimeline {
		t := b.timeline.timeline
		fx.timeline = &t
	} else {
		b.timeline = wireTimeline{
			stamp:    stamp{founded: b.clock.Time(b.clock.Now()).UnixMicro(), session: m.NodeID(), author: m.NodeID()},
			timeline: tl,
		}
		b.hasTimeline = true
	}
	if b.hasStartStop {
		s := b.startStop.startStop
		fx.startStop = &s
	} else if ss.Time != 0 {
		b.startStop = wireStartStop{stamp: b.nextStartStopStampLocked(), startStop: ss}
		b.hasStartStop = true
	}
	peers := b.peers
	fx.peers = &peers
	fx.sends = b.announceLocked()
	now := b.clock.Now()
	for _, r := range b.remotes {
		fx.sends = append(fx.sends, b.pingLocked(r, now))
	}
	b.mu.Unlock()

	b.log.WithField("node", m.NodeID()).Info("Join")
	b.apply(m, fx)
	return nil
}

// Leave implements peer.Engine.
func (b *Bridge) Leave(id peer.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.member == nil || b.member.NodeID() != id {
		return
	}
	b.member = nil
	b.log.WithField("node", id).Info("Leave")
}

// PublishTimeline implements peer.Engine.
func (b *Bridge) PublishTimeline(id peer.NodeID, tl rhythm.Timeline) {
	b.mu.Lock()
	if b.member == nil || b.member.NodeID() != id {
		b.mu.Unlock()
		return
	}
	st := b.timeline.stamp
	st.version++
	st.author = id
	b.timeline = wireTimeline{stamp: st, timeline: tl}
	h := b.headerLocked()
	sends := b.broadcastLocked(timelineMessage(h, b.timeline))
	b.mu.Unlock()

	b.send(sends)
}

// PublishStartStop implements peer.Engine.
func (b *Bridge) PublishStartStop(id peer.NodeID, ss rhythm.StartStopState) {
	b.mu.Lock()
	if b.member == nil || b.member.NodeID() != id {
		b.mu.Unlock()
		return
	}
	b.startStop = wireStartStop{stamp: b.nextStartStopStampLocked(), startStop: ss}
	b.hasStartStop = true
	h := b.headerLocked()
	sends := b.broadcastLocked(startStopMessage(h, b.startStop))
	b.mu.Unlock()

	b.send(sends)
}

// Heartbeat drops silent peers, announces the shared state and measures every known peer.
// Serve calls it periodically.
func (b *Bridge) Heartbeat() {
	now := b.clock.Now()

	b.mu.Lock()
	var fx effects
	for id, r := range b.remotes {
		if now.Sub(r.lastSeen).Std() > b.cfg.Timeout {
			delete(b.remotes, id)
			b.log.WithField("node", id).Warn("Peer timed out")
		}
	}
	if len(b.remotes) != b.peers {
		b.peers = len(b.remotes)
		peers := b.peers
		fx.peers = &peers
	}
	if b.member != nil {
		fx.sends = b.announceLocked()
		for _, r := range b.remotes {
			fx.sends = append(fx.sends, b.pingLocked(r, now))
		}
	}
	m := b.member
	b.mu.Unlock()

	b.apply(m, fx)
}

// PeerCount returns the number of live remote peers.
func (b *Bridge) PeerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peers
}

func (b *Bridge) handleAlive(msg *osc.Message) {
	a := &args{msg: msg}
	h := a.header()
	if a.err != nil {
		b.log.WithError(a.err).Debug("Dropping message")
		return
	}
	b.receive(h, func(r *remote, fx *effects) {})
}

func (b *Bridge) handleTimeline(msg *osc.Message) {
	h, w, err := parseTimeline(msg)
	if err != nil {
		b.log.WithError(err).Debug("Dropping message")
		return
	}
	b.receive(h, func(r *remote, fx *effects) {
		if !r.clock.ok() {
			r.pendingTimeline = &w
			return
		}
		b.adoptTimelineLocked(r, w, fx)
	})
}

func (b *Bridge) handleStartStop(msg *osc.Message) {
	h, w, err := parseStartStop(msg)
	if err != nil {
		b.log.WithError(err).Debug("Dropping message")
		return
	}
	b.receive(h, func(r *remote, fx *effects) {
		if !r.clock.ok() {
			r.pendingStartStop = &w
			return
		}
		b.adoptStartStopLocked(r, w, fx)
	})
}

func (b *Bridge) handlePing(msg *osc.Message) {
	a := &args{msg: msg}
	h := a.header()
	sent := clock.Instant(a.readInt64())
	if a.err != nil {
		b.log.WithError(a.err).Debug("Dropping message")
		return
	}
	b.receive(h, func(r *remote, fx *effects) {
		fx.sends = append(fx.sends, outgoing{to: r.addr, msg: pongMessage(b.headerLocked(), sent, b.clock.Now())})
	})
}

func (b *Bridge) handlePong(msg *osc.Message) {
	a := &args{msg: msg}
	h := a.header()
	sent := clock.Instant(a.readInt64())
	remoteAt := clock.Instant(a.readInt64())
	if a.err != nil {
		b.log.WithError(a.err).Debug("Dropping message")
		return
	}
	received := b.clock.Now()
	b.receive(h, func(r *remote, fx *effects) {
		first := !r.clock.ok()
		if !r.clock.add(sent, remoteAt, received) || !first {
			return
		}
		b.log.WithFields(logrus.Fields{
			"node":   h.node,
			"offset": r.clock.offset().Millis(),
		}).Debug("Measured peer clock")
		if w := r.pendingTimeline; w != nil {
			r.pendingTimeline = nil
			b.adoptTimelineLocked(r, *w, fx)
		}
		if w := r.pendingStartStop; w != nil {
			r.pendingStartStop = nil
			b.adoptStartStopLocked(r, *w, fx)
		}
	})
}

// receive registers the sender, runs handle under the bridge lock and applies the effects
// once the lock is released.
func (b *Bridge) receive(h header, handle func(r *remote, fx *effects)) {
	b.mu.Lock()
	if h.node == "" || (b.member != nil && h.node == b.member.NodeID()) || h.addr == b.cfg.Advertise {
		b.mu.Unlock()
		return
	}

	var fx effects
	r, found := b.remotes[h.node]
	if !found {
		r = &remote{}
		b.remotes[h.node] = r
		b.peers = len(b.remotes)
		peers := b.peers
		fx.peers = &peers
		b.log.WithFields(logrus.Fields{"node": h.node, "addr": h.addr}).Info("Peer joined")
	}
	now := b.clock.Now()
	r.addr = h.addr
	r.lastSeen = now

	handle(r, &fx)
	if !r.clock.ok() && b.member != nil && (!r.pinged || now.Sub(r.lastPing).Std() >= b.cfg.Heartbeat) {
		fx.sends = append(fx.sends, b.pingLocked(r, now))
	}
	m := b.member
	b.mu.Unlock()

	b.apply(m, fx)
}

func (b *Bridge) adoptTimelineLocked(r *remote, w wireTimeline, fx *effects) {
	if b.hasTimeline && !w.supersedes(b.timeline.stamp) {
		return
	}
	w.timeline.TimeOrigin = r.clock.toLocal(w.timeline.TimeOrigin)
	b.timeline, b.hasTimeline = w, true
	tl := w.timeline
	fx.timeline = &tl
}

func (b *Bridge) adoptStartStopLocked(r *remote, w wireStartStop, fx *effects) {
	if !w.sameSession(b.timeline.stamp) {
		return
	}
	if b.hasStartStop && b.startStop.sameSession(w.stamp) && !w.supersedes(b.startStop.stamp) {
		return
	}
	w.startStop.Time = r.clock.toLocal(w.startStop.Time)
	b.startStop, b.hasStartStop = w, true
	ss := w.startStop
	fx.startStop = &ss
}

func (b *Bridge) nextStartStopStampLocked() stamp {
	st := b.timeline.stamp
	st.version = 1
	if b.hasStartStop && b.startStop.sameSession(st) {
		st.version = b.startStop.version + 1
	}
	if b.member != nil {
		st.author = b.member.NodeID()
	}
	return st
}

func (b *Bridge) pingLocked(r *remote, now clock.Instant) outgoing {
	r.pinged, r.lastPing = true, now
	return outgoing{to: r.addr, msg: pingMessage(b.headerLocked(), now)}
}

func (b *Bridge) headerLocked() header {
	h := header{addr: b.cfg.Advertise}
	if b.member != nil {
		h.node = b.member.NodeID()
	}
	return h
}

func (b *Bridge) announceLocked() []outgoing {
	h := b.headerLocked()
	sends := b.broadcastLocked(aliveMessage(h))
	if b.hasTimeline {
		sends = append(sends, b.broadcastLocked(timelineMessage(h, b.timeline))...)
	}
	if b.hasStartStop {
		sends = append(sends, b.broadcastLocked(startStopMessage(h, b.startStop))...)
	}
	return sends
}

// broadcastLocked addresses msg to every configured and discovered peer.
func (b *Bridge) broadcastLocked(msg *osc.Message) []outgoing {
	seen := make(map[string]bool)
	var sends []outgoing
	add := func(addr string) {
		if addr == "" || addr == b.cfg.Advertise || seen[addr] {
			return
		}
		seen[addr] = true
		sends = append(sends, outgoing{to: addr, msg: msg})
	}
	for _, addr := range b.cfg.Peers {
		add(addr)
	}
	for _, r := range b.remotes {
		add(r.addr)
	}
	return sends
}

type outgoing struct {
	to  string
	msg *osc.Message
}

// effects is the work a handler leaves for after the bridge lock is released.
type effects struct {
	timeline  *rhythm.Timeline
	startStop *rhythm.StartStopState
	peers     *int
	sends     []outgoing
}

func (b *Bridge) apply(m peer.Member, fx effects) {
	if m != nil {
		if fx.peers != nil {
			m.SetPeerCount(*fx.peers)
		}
		if fx.timeline != nil {
			m.ApplySessionTimeline(*fx.timeline)
		}
		if fx.startStop != nil {
			m.ApplyStartStop(*fx.startStop)
		}
	}
	b.send(fx.sends)
}

func (b *Bridge) send(sends []outgoing) {
	for _, s := range sends {
		c, err := b.sender(s.to)
		if err == nil {
			err = c.Send(s.msg)
		}
		if err != nil {
			b.log.WithError(err).WithField("to", s.to).Debug("Send failed")
		}
	}
}

func (b *Bridge) sender(addr string) (sender, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, found := b.senders[addr]; found {
		return c, nil
	}
	c, err := b.dial(addr)
	if err != nil {
		return nil, err
	}
	b.senders[addr] = c
	return c, nil
}
