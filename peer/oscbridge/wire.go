package oscbridge

import (
	"fmt"

	"github.com/hypebeast/go-osc/osc"

	"github.com/robmorgan/halolink/clock"
	"github.com/robmorgan/halolink/peer"
	"github.com/robmorgan/halolink/rhythm"
)

// Every message starts with the sender's node id and the address it listens on.
const (
	AddrAlive     = "/halo/alive"
	AddrTimeline  = "/halo/timeline"
	AddrStartStop = "/halo/startstop"
	AddrPing      = "/halo/ping"
	AddrPong      = "/halo/pong"
)

type header struct {
	node peer.NodeID
	addr string
}

// stamp orders competing versions of shared state. The oldest session wins, then the
// highest version, then the lowest author id.
type stamp struct {
	founded int64
	session peer.NodeID
	version int64
	author  peer.NodeID
}

func (s stamp) supersedes(o stamp) bool {
	if s.founded != o.founded || s.session != o.session {
		if s.founded != o.founded {
			return s.founded < o.founded
		}
		return s.session < o.session
	}
	if s.version != o.version {
		return s.version > o.version
	}
	return s.author < o.author
}

func (s stamp) sameSession(o stamp) bool {
	return s.founded == o.founded && s.session == o.session
}

// wireTimeline carries a timeline in the sender's clock.
type wireTimeline struct {
	stamp
	timeline rhythm.Timeline
}

type wireStartStop struct {
	stamp
	startStop rhythm.StartStopState
}

func newMessage(addr string, h header, args ...interface{}) *osc.Message {
	msg := osc.NewMessage(addr, string(h.node), h.addr)
	for _, arg := range args {
		msg.Append(arg)
	}
	return msg
}

func aliveMessage(h header) *osc.Message {
	return newMessage(AddrAlive, h)
}

func timelineMessage(h header, w wireTimeline) *osc.Message {
	return newMessage(AddrTimeline, h,
		w.founded, string(w.session), w.version, string(w.author),
		w.timeline.Tempo.BPM(), int64(w.timeline.BeatOrigin), w.timeline.TimeOrigin.Micros())
}

func startStopMessage(h header, w wireStartStop) *osc.Message {
	return newMessage(AddrStartStop, h,
		w.founded, string(w.session), w.version, string(w.author),
		w.startStop.IsPlaying(), w.startStop.Time.Micros())
}

func pingMessage(h header, sent clock.Instant) *osc.Message {
	return newMessage(AddrPing, h, sent.Micros())
}

func pongMessage(h header, sent, now clock.Instant) *osc.Message {
	return newMessage(AddrPong, h, sent.Micros(), now.Micros())
}

// args reads typed message arguments in order, keeping the first error.
type args struct {
	msg *osc.Message
	i   int
	err error
}

func (a *args) next() interface{} {
	if a.err != nil {
		return nil
	}
	if a.i >= len(a.msg.Arguments) {
		a.err = fmt.Errorf("%s: missing argument %d", a.msg.Address, a.i)
		return nil
	}
	v := a.msg.Arguments[a.i]
	a.i++
	return v
}

func (a *args) fail(v interface{}, want string) {
	if a.err == nil {
		a.err = fmt.Errorf("%s: argument %d is %T, want %s", a.msg.Address, a.i-1, v, want)
	}
}

func (a *args) readString() string {
	v := a.next()
	s, ok := v.(string)
	if !ok {
		a.fail(v, "string")
	}
	return s
}

func (a *args) readInt64() int64 {
	switch v := a.next().(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	default:
		a.fail(v, "int")
		return 0
	}
}

func (a *args) readFloat64() float64 {
	switch v := a.next().(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	default:
		a.fail(v, "float")
		return 0
	}
}

func (a *args) readBool() bool {
	v := a.next()
	b, ok := v.(bool)
	if !ok {
		a.fail(v, "bool")
	}
	return b
}

func (a *args) header() header {
	return header{node: peer.NodeID(a.readString()), addr: a.readString()}
}

func (a *args) stamp() stamp {
	return stamp{
		founded: a.readInt64(),
		session: peer.NodeID(a.readString()),
		version: a.readInt64(),
		author:  peer.NodeID(a.readString()),
	}
}

func parseTimeline(msg *osc.Message) (header, wireTimeline, error) {
	a := &args{msg: msg}
	h := a.header()
	w := wireTimeline{stamp: a.stamp()}
	w.timeline.Tempo = rhythm.Tempo(a.readFloat64())
	w.timeline.BeatOrigin = rhythm.Beats(a.readInt64())
	w.timeline.TimeOrigin = clock.Instant(a.readInt64())
	if a.err == nil && !(w.timeline.Tempo > 0) {
		a.err = fmt.Errorf("%s: invalid tempo %v", msg.Address, w.timeline.Tempo)
	}
	return h, w, a.err
}

func parseStartStop(msg *osc.Message) (header, wireStartStop, error) {
	a := &args{msg: msg}
	h := a.header()
	w := wireStartStop{stamp: a.stamp()}
	w.startStop.State = rhythm.StateOf(a.readBool())
	w.startStop.Time = clock.Instant(a.readInt64())
	return h, w, a.err
}
