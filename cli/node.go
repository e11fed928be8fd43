package cli

import (
	"context"
	"net"
	"sync"

	"github.com/gruntwork-io/go-commons/errors"
	"github.com/sirupsen/logrus"

	"github.com/robmorgan/halolink/clock"
	"github.com/robmorgan/halolink/config"
	"github.com/robmorgan/halolink/logger"
	"github.com/robmorgan/halolink/peer/oscbridge"
	"github.com/robmorgan/halolink/session"
)

// node is a session joined to its peers through the OSC bridge.
type node struct {
	session *session.Session
	bridge  *oscbridge.Bridge
	log     *logrus.Entry

	cancel context.CancelFunc
	wg     sync.WaitGroup
	err    error
}

func startNode(ctx context.Context, cfg *config.HaloConfig, c *clock.Clock) (*node, error) {
	log := logger.WithComponent("node")

	bridge, err := oscbridge.New(oscbridge.Config{
		Listen:    cfg.OSC.Listen,
		Advertise: cfg.OSC.Advertise,
		Peers:     cfg.OSC.Peers,
		Heartbeat: cfg.OSC.Heartbeat,
		Timeout:   cfg.OSC.Timeout,
		Clock:     c,
	})
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenPacket("udp", cfg.OSC.Listen)
	if err != nil {
		return nil, errors.WithStackTrace(err)
	}

	s, err := session.New(session.Options{
		Tempo:         cfg.Tempo,
		Clock:         c,
		Engine:        bridge,
		TransportSync: cfg.TransportSync,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	n := &node{session: s, bridge: bridge, log: log, cancel: cancel}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := bridge.ServeConn(ctx, conn); err != nil {
			log.WithError(err).Error("Peer bridge stopped")
			n.err = err
		}
	}()

	if cfg.Enabled {
		if err := s.Enable(); err != nil {
			n.Close()
			return nil, err
		}
	}
	return n, nil
}

// Close leaves the peer group and stops the bridge.
func (n *node) Close() error {
	err := n.session.Close()
	n.cancel()
	n.wg.Wait()
	if err == nil {
		err = n.err
	}
	return err
}
