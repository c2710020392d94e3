// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package bgp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
	"golang.org/x/time/rate"
	"gopkg.in/tomb.v2"

	"ribd/common/reporter"
)

var (
	errHoldTimerExpired = errors.New("hold timer expired")
	errNotification     = errors.New("notification received")
	errOpen             = errors.New("invalid OPEN message")
	errFSM              = errors.New("unexpected message")
	errDial             = errors.New("cannot connect")
)

// session is one incarnation of the session with a neighbor. A new
// session, with a new generation, is created each time the
// configuration of the neighbor changes.
type session struct {
	m          *Manager
	t          tomb.Tomb
	log        reporter.Logger
	generation uint64

	peer      netip.Addr
	port      uint16
	localAS   uint32
	remoteAS  uint32
	timers    Timers
	allowASIn uint8
}

func (s *session) internal() bool {
	return s.localAS == s.remoteAS
}

// run connects to the neighbor until the session is killed.
func (s *session) run() error {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = s.m.config.ConnectRetry.Initial
	retry.MaxInterval = s.m.config.ConnectRetry.Maximum
	retry.MaxElapsedTime = 0
	retry.Clock = s.m.d.Clock
	retry.Reset()
	errLimiter := rate.NewLimiter(rate.Every(10*time.Second), 3)

	for {
		s.setState(StateConnect)
		established, err := s.connect()
		if !s.t.Alive() {
			return nil
		}
		if established {
			retry.Reset()
			s.m.d.Sink.SessionDown(s.peer, s.generation)
		}
		if err != nil {
			if errLimiter.Allow() {
				s.log.Warn().Err(err).Msg("BGP session failed")
			}
			s.failed(err)
		}
		select {
		case <-s.t.Dying():
			return nil
		case <-s.m.d.Clock.After(retry.NextBackOff()):
		}
	}
}

// connect opens a TCP connection to the neighbor and runs the session
// over it. It returns true if the session was established.
func (s *session) connect() (bool, error) {
	ctx, cancel := context.WithTimeout(s.t.Context(nil), s.m.config.DialTimeout)
	defer cancel()
	address := netip.AddrPortFrom(s.peer, s.port).String()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		s.m.metrics.dialErrors.WithLabelValues(s.m.vrf, s.peer.String()).Inc()
		return false, fmt.Errorf("%w to %s: %w", errDial, address, err)
	}
	defer conn.Close()
	return s.exchange(conn)
}

// exchange runs the BGP finite state machine over a connection.
func (s *session) exchange(conn net.Conn) (established bool, err error) {
	local, remote := addrPort(conn.LocalAddr()), addrPort(conn.RemoteAddr())
	routerID := s.m.RouterID()
	if !s.m.update(s, func(n *neighbor) {
		s.m.setState(n, StateOpenSent)
		n.localAddr = local
		n.remoteAddr = remote
	}) {
		return false, nil
	}
	state := StateOpenSent

	closed := make(chan struct{})
	defer close(closed)
	messages := make(chan *bgp.BGPMessage)
	readErrors := make(chan error, 1)
	go s.read(conn, messages, readErrors, closed)

	if err := s.send(conn, openMessage(s.localAS, s.timers.Hold, routerID)); err != nil {
		return false, err
	}

	hold := s.m.d.Clock.Timer(s.m.config.OpenHoldTime)
	defer hold.Stop()
	var holdTime time.Duration
	var keepalives <-chan time.Time
	var ticker *clock.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-s.t.Dying():
			s.notify(conn, bgp.BGP_ERROR_CEASE, bgp.BGP_ERROR_SUB_ADMINISTRATIVE_SHUTDOWN)
			return established, nil
		case err := <-readErrors:
			var msgErr *bgp.MessageError
			if errors.As(err, &msgErr) {
				s.notify(conn, msgErr.TypeCode, msgErr.SubTypeCode)
			}
			return established, fmt.Errorf("cannot read from %s: %w", remote, err)
		case <-hold.C:
			s.notify(conn, bgp.BGP_ERROR_HOLD_TIMER_EXPIRED, 0)
			return established, errHoldTimerExpired
		case <-keepalives:
			if err := s.send(conn, bgp.NewBGPKeepAliveMessage()); err != nil {
				return established, err
			}
		case msg := <-messages:
			s.count("received", msg.Header.Type)
			if holdTime > 0 {
				hold.Reset(holdTime)
			}
			switch body := msg.Body.(type) {
			case *bgp.BGPOpen:
				if state != StateOpenSent {
					s.notify(conn, bgp.BGP_ERROR_FSM_ERROR, 0)
					return established, fmt.Errorf("%w: OPEN in state %s", errFSM, state)
				}
				negotiated, err := s.handleOpen(conn, body, routerID)
				if err != nil {
					return false, err
				}
				if err := s.send(conn, bgp.NewBGPKeepAliveMessage()); err != nil {
					return false, err
				}
				holdTime = time.Duration(negotiated.Hold) * time.Second
				if holdTime == 0 {
					hold.Stop()
				} else {
					hold.Reset(holdTime)
				}
				if interval := time.Duration(negotiated.Keepalive) * time.Second; interval > 0 {
					ticker = s.m.d.Clock.Ticker(interval)
					keepalives = ticker.C
				}
				state = StateOpenConfirm
				s.setState(state)
			case *bgp.BGPKeepAlive:
				switch state {
				case StateOpenConfirm:
					state = StateEstablished
					established = true
					s.setState(state)
				case StateOpenSent:
					s.notify(conn, bgp.BGP_ERROR_FSM_ERROR, 0)
					return false, fmt.Errorf("%w: KEEPALIVE in state %s", errFSM, state)
				}
			case *bgp.BGPUpdate:
				if state != StateEstablished {
					s.notify(conn, bgp.BGP_ERROR_FSM_ERROR, 0)
					return established, fmt.Errorf("%w: UPDATE in state %s", errFSM, state)
				}
				s.handleUpdate(body)
			case *bgp.BGPNotification:
				return established, fmt.Errorf("%w: code %d, subcode %d",
					errNotification, body.ErrorCode, body.ErrorSubcode)
			}
		}
	}
}

// handleOpen checks the OPEN message from the peer and returns the
// negotiated timers.
func (s *session) handleOpen(conn net.Conn, open *bgp.BGPOpen, routerID netip.Addr) (Timers, error) {
	if open.Version != 4 {
		s.notify(conn, bgp.BGP_ERROR_OPEN_MESSAGE_ERROR, bgp.BGP_ERROR_SUB_UNSUPPORTED_VERSION_NUMBER)
		return Timers{}, fmt.Errorf("%w: version %d", errOpen, open.Version)
	}
	if asn := peerAS(open); asn != s.remoteAS {
		s.notify(conn, bgp.BGP_ERROR_OPEN_MESSAGE_ERROR, bgp.BGP_ERROR_SUB_BAD_PEER_AS)
		return Timers{}, fmt.Errorf("%w: peer AS %d, expected %d", errOpen, asn, s.remoteAS)
	}
	if open.HoldTime == 1 || open.HoldTime == 2 {
		s.notify(conn, bgp.BGP_ERROR_OPEN_MESSAGE_ERROR, bgp.BGP_ERROR_SUB_UNACCEPTABLE_HOLD_TIME)
		return Timers{}, fmt.Errorf("%w: hold time %d", errOpen, open.HoldTime)
	}
	remoteID, _ := netip.AddrFromSlice(open.ID.To4())
	if !remoteID.IsValid() || remoteID.IsUnspecified() || (remoteID == routerID && s.internal()) {
		s.notify(conn, bgp.BGP_ERROR_OPEN_MESSAGE_ERROR, bgp.BGP_ERROR_SUB_BAD_BGP_IDENTIFIER)
		return Timers{}, fmt.Errorf("%w: router identifier %s", errOpen, open.ID)
	}
	hold := min(s.timers.Hold, open.HoldTime)
	negotiated := Timers{
		Hold:      hold,
		Keepalive: uint16(s.timers.keepaliveInterval(hold) / time.Second),
	}
	s.m.update(s, func(n *neighbor) {
		n.remoteID = remoteID
		n.negotiated = &negotiated
	})
	return negotiated, nil
}

// handleUpdate processes an UPDATE message and hands the routes to the
// sink.
func (s *session) handleUpdate(update *bgp.BGPUpdate) {
	announced, withdrawn := parseUpdate(update)
	accepted := make([]Path, 0, len(announced))
	denied := 0
	for _, path := range announced {
		if !path.NextHop.IsValid() || occurrences(path.ASPath, s.localAS) > int(s.allowASIn) {
			denied++
			withdrawn = append(withdrawn, path.Prefix)
			continue
		}
		accepted = append(accepted, path)
	}
	if denied > 0 {
		s.m.metrics.denied.WithLabelValues(s.m.vrf, s.peer.String()).Add(float64(denied))
		s.log.Debug().Int("denied", denied).Msg("prefixes denied")
	}
	if !s.m.update(s, func(n *neighbor) {
		for _, prefix := range withdrawn {
			delete(n.prefixes, prefix)
		}
		for _, path := range accepted {
			n.prefixes[path.Prefix] = struct{}{}
		}
		s.m.metrics.prefixes.WithLabelValues(s.m.vrf, s.peer.String()).Set(float64(len(n.prefixes)))
	}) {
		return
	}
	if len(accepted) > 0 || len(withdrawn) > 0 {
		s.m.d.Sink.LearnRoutes(s.peer, s.generation, s.internal(), accepted, withdrawn)
	}
}

// read reads messages from the connection until an error happens.
func (s *session) read(conn net.Conn, out chan<- *bgp.BGPMessage, errs chan<- error, closed <-chan struct{}) {
	header := make([]byte, headerLength)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			errs <- err
			return
		}
		length := binary.BigEndian.Uint16(header[16:18])
		if length < headerLength || length > maxMessageLength {
			errs <- bgp.NewMessageError(bgp.BGP_ERROR_MESSAGE_HEADER_ERROR,
				bgp.BGP_ERROR_SUB_BAD_MESSAGE_LENGTH, nil, fmt.Sprintf("invalid length %d", length))
			return
		}
		buf := make([]byte, length)
		copy(buf, header)
		if _, err := io.ReadFull(conn, buf[headerLength:]); err != nil {
			errs <- err
			return
		}
		msg, err := bgp.ParseBGPMessage(buf)
		if err != nil {
			errs <- err
			return
		}
		select {
		case out <- msg:
		case <-closed:
			return
		}
	}
}

// send serializes and sends a message.
func (s *session) send(conn net.Conn, msg *bgp.BGPMessage) error {
	data, err := msg.Serialize()
	if err != nil {
		return fmt.Errorf("cannot serialize %s message: %w", messageType(msg.Header.Type), err)
	}
	conn.SetWriteDeadline(time.Now().Add(s.m.config.DialTimeout))
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("cannot send %s message: %w", messageType(msg.Header.Type), err)
	}
	s.count("sent", msg.Header.Type)
	return nil
}

// notify sends a NOTIFICATION message. Errors are ignored as the
// connection is closed right after.
func (s *session) notify(conn net.Conn, code, subcode uint8) {
	s.send(conn, bgp.NewBGPNotificationMessage(code, subcode, nil))
}

func (s *session) count(direction string, msgType uint8) {
	s.m.metrics.messages.WithLabelValues(s.m.vrf, s.peer.String(), direction, messageType(msgType)).Inc()
	s.m.update(s, func(n *neighbor) {
		if direction == "sent" {
			n.sent.count(msgType)
		} else {
			n.received.count(msgType)
		}
	})
}

func (s *session) setState(state State) {
	s.m.update(s, func(n *neighbor) {
		s.m.setState(n, state)
	})
}

func (s *session) failed(err error) {
	kind := "io"
	switch {
	case errors.Is(err, errDial):
		kind = "dial"
	case errors.Is(err, errHoldTimerExpired):
		kind = "hold-timer"
	case errors.Is(err, errNotification):
		kind = "notification"
	case errors.Is(err, errOpen):
		kind = "open"
	case errors.Is(err, errFSM):
		kind = "fsm"
	}
	if kind != "dial" {
		s.m.metrics.sessionErrs.WithLabelValues(s.m.vrf, s.peer.String(), kind).Inc()
	}
	s.m.update(s, func(n *neighbor) {
		s.m.setState(n, StateActive)
		n.lastError = err.Error()
	})
}

func addrPort(addr net.Addr) netip.AddrPort {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		ap := tcp.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	return netip.AddrPort{}
}
