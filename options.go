package ftp

import (
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ventus/ftp/internal/ratelimit"
)

// Option configures a Client in Dial.
type Option func(*Client) error

// WithTimeout bounds dialing, each control channel exchange and each
// stall of a data transfer. Zero turns deadlines off.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout < 0 {
			return errors.New("negative timeout")
		}
		c.timeout = timeout
		return nil
	}
}

// WithLogger traces commands and replies at debug level.
//
//	logger := logrus.New()
//	logger.SetLevel(logrus.DebugLevel)
//	client, _ := ftp.Dial("127.0.0.1:2121", ftp.WithLogger(logger))
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) error {
		if logger == nil {
			return errors.New("nil logger")
		}
		c.logger = logger
		return nil
	}
}

// WithDialer dials control and passive data connections with dialer.
// Its Timeout is overwritten by WithTimeout.
func WithDialer(dialer *net.Dialer) Option {
	return func(c *Client) error {
		if dialer == nil {
			return errors.New("nil dialer")
		}
		c.dialer = dialer
		return nil
	}
}

// WithActiveMode makes the client listen and announce itself with PORT
// instead of dialing the address from PASV. The server must be able to
// reach the client.
func WithActiveMode() Option {
	return func(c *Client) error {
		c.activeMode = true
		return nil
	}
}

// WithBandwidthLimit caps uploads and downloads at bytesPerSecond. Zero
// leaves them unlimited.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(c *Client) error {
		if bytesPerSecond < 0 {
			return errors.New("negative bandwidth limit")
		}
		c.limiter = ratelimit.New(bytesPerSecond)
		return nil
	}
}
