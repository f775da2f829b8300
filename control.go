package ftp

import (
	"errors"
	"fmt"
	"net/textproto"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Response is one server reply. Continuation lines of a multi-line reply
// are joined into Message with "\n".
type Response struct {
	Code    int
	Message string
}

func (r *Response) String() string {
	return fmt.Sprintf("%d %s", r.Code, r.Message)
}

// preliminary reports a 1xx reply, the go-ahead for a data transfer.
func (r *Response) preliminary() bool {
	return r.Code/100 == 1
}

// mismatch turns an unexpected reply into a *ProtocolError for command.
func (r *Response) mismatch(command string) error {
	return &ProtocolError{Command: command, Response: r.Message, Code: r.Code}
}

// armDeadline bounds the next control channel operation. set is one of
// the net.Conn deadline setters.
func (c *Client) armDeadline(set func(time.Time) error) error {
	if c.timeout <= 0 {
		return nil
	}
	return set(time.Now().Add(c.timeout))
}

// readReply reads the next reply from the control channel without
// checking its code.
func (c *Client) readReply() (*Response, error) {
	if err := c.armDeadline(c.conn.SetReadDeadline); err != nil {
		return nil, err
	}
	code, msg, err := c.text.ReadResponse(0)
	if err != nil {
		var tpErr textproto.ProtocolError
		if errors.As(err, &tpErr) {
			return nil, fmt.Errorf("ftp: malformed reply: %w", err)
		}
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{"code": code, "message": msg}).Debug("reply")
	return &Response{Code: code, Message: msg}, nil
}

// sendCommand writes one command line and returns the server's reply.
// Exchanges are serialized on c.mu.
func (c *Client) sendCommand(command string, args ...string) (*Response, error) {
	line := strings.Join(append([]string{command}, args...), " ")
	c.logger.WithField("cmd", line).Debug("command")

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.armDeadline(c.conn.SetWriteDeadline); err != nil {
		return nil, err
	}
	if err := c.text.PrintfLine("%s", line); err != nil {
		return nil, fmt.Errorf("ftp: sending %s: %w", command, err)
	}
	resp, err := c.readReply()
	if err != nil {
		return nil, fmt.Errorf("ftp: reply to %s: %w", command, err)
	}
	return resp, nil
}

// expectCode sends a command and fails with a *ProtocolError unless the
// reply carries want.
func (c *Client) expectCode(want int, command string, args ...string) (*Response, error) {
	resp, err := c.sendCommand(command, args...)
	if err != nil {
		return nil, err
	}
	if resp.Code != want {
		return resp, resp.mismatch(command)
	}
	return resp, nil
}
