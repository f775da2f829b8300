package server

import (
	"errors"
	"net"
	"time"
)

var (
	// ErrNoDataChannel is returned when a transfer is requested without a
	// prior PASV or PORT.
	ErrNoDataChannel = errors.New("ftp: no data connection set up")

	// ErrChannelBusy is returned when a data channel is requested while one
	// is already listening or connected.
	ErrChannelBusy = errors.New("ftp: data connection already open")
)

type channelState int

const (
	stateIdle channelState = iota
	stateListening
	stateConnected
	stateConsumed
)

func (s channelState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateListening:
		return "listening"
	case stateConnected:
		return "connected"
	case stateConsumed:
		return "consumed"
	}
	return "unknown"
}

type acceptResult struct {
	conn net.Conn
	err  error
}

// dataChannel owns at most one data connection for a session.
//
// Passive mode: listen moves Idle to Listening and starts a goroutine that
// accepts exactly one connection, then closes the listener. take hands the
// connection to a transfer (Consumed); release returns to Idle whatever
// happened. Active mode stores a target address and take dials it once.
//
// Only the session goroutine calls its methods.
type dataChannel struct {
	state    channelState
	listener net.Listener
	accepted chan acceptResult
	conn     net.Conn

	activeAddr string
	timeout    time.Duration
}

func newDataChannel(timeout time.Duration) *dataChannel {
	return &dataChannel{timeout: timeout}
}

// busy reports whether a passive channel is listening, connected or in use.
func (d *dataChannel) busy() bool {
	if d.state == stateListening && d.accepted != nil {
		select {
		case r := <-d.accepted:
			d.accepted = nil
			if r.err != nil {
				// A failed accept leaves nothing to wait for.
				d.release()
				return false
			}
			d.conn = r.conn
			d.state = stateConnected
		default:
		}
	}
	return d.state != stateIdle
}

// listen starts accepting a single inbound connection on ln.
func (d *dataChannel) listen(ln net.Listener) {
	d.activeAddr = ""
	d.listener = ln
	d.state = stateListening
	d.accepted = make(chan acceptResult, 1)

	if tl, ok := ln.(*net.TCPListener); ok && d.timeout > 0 {
		_ = tl.SetDeadline(time.Now().Add(d.timeout))
	}

	go func(ln net.Listener, out chan<- acceptResult) {
		conn, err := ln.Accept()
		ln.Close()
		out <- acceptResult{conn: conn, err: err}
	}(ln, d.accepted)
}

// setActive records a PORT target for the next transfer.
func (d *dataChannel) setActive(addr string) {
	d.activeAddr = addr
}

// take returns the connection for exactly one transfer.
func (d *dataChannel) take() (net.Conn, error) {
	switch d.state {
	case stateListening:
		r := <-d.accepted
		d.accepted = nil
		if r.err != nil {
			d.release()
			return nil, r.err
		}
		d.conn = r.conn
	case stateConnected:
	case stateIdle:
		if d.activeAddr == "" {
			return nil, ErrNoDataChannel
		}
		addr := d.activeAddr
		d.activeAddr = ""
		conn, err := net.DialTimeout("tcp", addr, d.timeout)
		if err != nil {
			return nil, err
		}
		d.conn = conn
	default:
		return nil, ErrChannelBusy
	}

	d.state = stateConsumed
	if d.timeout > 0 {
		return &idleConn{Conn: d.conn, timeout: d.timeout}, nil
	}
	return d.conn, nil
}

// idleConn pushes the deadline forward on every read and write, so a
// transfer may take as long as it needs but never stalls longer than
// timeout.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleConn) Read(p []byte) (int, error) {
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	return c.Conn.Read(p)
}

func (c *idleConn) Write(p []byte) (int, error) {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.Conn.Write(p)
}

// release closes whatever the channel holds and returns it to Idle.
func (d *dataChannel) release() {
	if d.listener != nil {
		d.listener.Close()
		d.listener = nil
	}
	if d.accepted != nil {
		// The accept goroutine always delivers exactly one result.
		go func(ch <-chan acceptResult) {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}(d.accepted)
		d.accepted = nil
	}
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	d.activeAddr = ""
	d.state = stateIdle
}
