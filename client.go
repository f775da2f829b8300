package ftp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ventus/ftp/internal/ratelimit"
)

// DefaultTimeout bounds every control and data channel operation unless
// WithTimeout says otherwise.
const DefaultTimeout = 10 * time.Second

// Client is one logged-in control connection to a Ventus server.
//
// Commands are serialized on the control connection and at most one data
// transfer is open at a time, so a Client should not be shared between
// goroutines that transfer concurrently. Close may be called from any
// goroutine to abort.
type Client struct {
	conn net.Conn
	text *textproto.Conn

	// host is the control connection host, used when a PASV reply
	// advertises 0.0.0.0.
	host string

	dialer     *net.Dialer
	timeout    time.Duration
	activeMode bool
	limiter    *ratelimit.Limiter
	progress   ProgressFunc
	logger     logrus.FieldLogger

	// transferType is the TYPE last acknowledged by the server.
	transferType string

	mu   sync.Mutex
	data io.Closer
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Dial connects to addr ("host:port") and reads the server's 220 banner.
//
// Example:
//
//	client, err := ftp.Dial("127.0.0.1:2121")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Quit()
func Dial(addr string, options ...Option) (*Client, error) {
	return DialContext(context.Background(), addr, options...)
}

// DialContext is Dial with the connection attempt bound to ctx.
func DialContext(ctx context.Context, addr string, options ...Option) (*Client, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("ftp: address %q: %w", addr, err)
	}

	c := &Client{
		host:    host,
		dialer:  &net.Dialer{},
		timeout: DefaultTimeout,
		logger:  discardLogger(),
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("ftp: option: %w", err)
		}
	}
	c.dialer.Timeout = c.timeout

	c.logger.WithField("addr", addr).Debug("dialing")
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ftp: dial %s: %w", addr, err)
	}
	c.conn = conn
	c.text = textproto.NewConn(conn)

	banner, err := c.readReply()
	if err == nil && banner.Code != 220 {
		err = banner.mismatch("CONNECT")
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Login identifies the session. Any non-empty name is accepted without a
// password.
func (c *Client) Login(username string) error {
	_, err := c.expectCode(230, "USER", username)
	return err
}

// Quit closes any data transfer in flight, says QUIT and closes the
// control connection.
func (c *Client) Quit() error {
	if c.conn == nil {
		return nil
	}

	c.mu.Lock()
	if c.data != nil {
		c.data.Close()
		c.data = nil
	}
	c.mu.Unlock()

	// The reply does not matter; the connection goes away either way.
	_, _ = c.sendCommand("QUIT")
	return c.conn.Close()
}

// Close drops the control connection without QUIT. A blocked operation on
// another goroutine returns with an error.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Type switches the transfer type to "A" or "I". Repeating the current
// type sends nothing.
func (c *Client) Type(transferType string) error {
	if c.transferType == transferType {
		return nil
	}
	if _, err := c.expectCode(200, "TYPE", transferType); err != nil {
		return err
	}
	c.transferType = transferType
	return nil
}

// Noop checks the control connection is alive.
func (c *Client) Noop() error {
	_, err := c.expectCode(200, "NOOP")
	return err
}

// System returns the SYST text, "UNIX Type: L8" unless the server was
// configured otherwise.
func (c *Client) System() (string, error) {
	resp, err := c.expectCode(215, "SYST")
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}
