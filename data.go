package ftp

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// parsePASV extracts the address from a 227 reply text such as
// "Entering Passive Mode (192,168,1,1,195,149)." which names
// 192.168.1.1:50069.
func parsePASV(text string) (string, error) {
	open := strings.IndexByte(text, '(')
	end := strings.LastIndexByte(text, ')')
	if open < 0 || end < open {
		return "", fmt.Errorf("ftp: no address in PASV reply %q", text)
	}
	fields := strings.Split(text[open+1:end], ",")
	if len(fields) != 6 {
		return "", fmt.Errorf("ftp: PASV reply %q has %d fields, want 6", text, len(fields))
	}

	var b [6]byte
	for i, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 8)
		if err != nil {
			return "", fmt.Errorf("ftp: PASV field %q: %w", f, err)
		}
		b[i] = byte(v)
	}
	ap := netip.AddrPortFrom(netip.AddrFrom4([4]byte(b[:4])), uint16(b[4])<<8|uint16(b[5]))
	return ap.String(), nil
}

// formatPORT encodes an IPv4 listener address as the six PORT fields,
// so "192.168.1.100:50000" becomes "192,168,1,100,195,80".
func formatPORT(addr string) (string, error) {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return "", fmt.Errorf("ftp: PORT address: %w", err)
	}
	ip := ap.Addr().Unmap()
	if !ip.Is4() {
		return "", fmt.Errorf("ftp: PORT needs an IPv4 address, got %s", ip)
	}
	a := ip.As4()
	p := ap.Port()
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", a[0], a[1], a[2], a[3], p>>8, p&0xff), nil
}

// resolveDataAddr substitutes the control connection host when a PASV
// reply advertises an unspecified address.
func resolveDataAddr(pasvAddr, controlHost string) string {
	host, port, err := net.SplitHostPort(pasvAddr)
	if err != nil {
		return pasvAddr
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		return net.JoinHostPort(controlHost, port)
	}
	return pasvAddr
}

// idleConn moves the deadline forward before every Read and Write, so a
// data transfer fails after timeout without progress rather than after
// timeout in total.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleConn) Read(b []byte) (int, error) {
	if err := c.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *idleConn) Write(b []byte) (int, error) {
	if err := c.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}

// dataChannel is a data connection on its way up. A passive channel is
// dialed before the transfer command is sent; an active one holds a
// listener that the server connects to once it has accepted the command.
type dataChannel struct {
	conn     net.Conn
	listener net.Listener
	timeout  time.Duration
}

// establish returns the connected data channel, accepting the server's
// connection in active mode.
func (d *dataChannel) establish() (net.Conn, error) {
	if d.conn == nil {
		if tl, ok := d.listener.(*net.TCPListener); ok && d.timeout > 0 {
			_ = tl.SetDeadline(time.Now().Add(d.timeout))
		}
		conn, err := d.listener.Accept()
		d.listener.Close()
		d.listener = nil
		if err != nil {
			return nil, fmt.Errorf("ftp: waiting for data connection: %w", err)
		}
		d.conn = conn
	}
	if d.timeout > 0 {
		return &idleConn{Conn: d.conn, timeout: d.timeout}, nil
	}
	return d.conn, nil
}

func (d *dataChannel) Close() error {
	if d.listener != nil {
		d.listener.Close()
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// prepareData sets up a data channel in the configured mode.
func (c *Client) prepareData() (*dataChannel, error) {
	d := &dataChannel{timeout: c.timeout}

	if c.activeMode {
		host, _, err := net.SplitHostPort(c.conn.LocalAddr().String())
		if err != nil {
			host = "127.0.0.1"
		}
		ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
		if err != nil {
			return nil, fmt.Errorf("ftp: active mode listener: %w", err)
		}
		d.listener = ln

		arg, err := formatPORT(ln.Addr().String())
		if err == nil {
			_, err = c.expectCode(200, "PORT", arg)
		}
		if err != nil {
			d.Close()
			return nil, err
		}
		return d, nil
	}

	resp, err := c.expectCode(227, "PASV")
	if err != nil {
		return nil, err
	}
	addr, err := parsePASV(resp.Message)
	if err != nil {
		return nil, err
	}
	d.conn, err = c.dialer.Dial("tcp", resolveDataAddr(addr, c.host))
	if err != nil {
		return nil, fmt.Errorf("ftp: data connection: %w", err)
	}
	return d, nil
}

// openTransfer prepares a data channel, sends the transfer command and
// waits for the 1xx go-ahead. Every successful call must be paired with
// closeTransfer.
func (c *Client) openTransfer(command string, args ...string) (net.Conn, error) {
	d, err := c.prepareData()
	if err != nil {
		return nil, err
	}
	c.trackData(d)

	conn, err := func() (net.Conn, error) {
		resp, err := c.sendCommand(command, args...)
		if err != nil {
			return nil, err
		}
		if !resp.preliminary() {
			return nil, resp.mismatch(command)
		}
		return d.establish()
	}()
	if err != nil {
		d.Close()
		c.trackData(nil)
		return nil, err
	}
	return conn, nil
}

// closeTransfer closes the data connection, which marks end of file for
// an upload, and then expects the 226 completion reply.
func (c *Client) closeTransfer(conn net.Conn) error {
	c.trackData(nil)
	if err := conn.Close(); err != nil {
		return fmt.Errorf("ftp: closing data connection: %w", err)
	}

	c.mu.Lock()
	resp, err := c.readReply()
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("ftp: transfer completion: %w", err)
	}
	if resp.Code != 226 {
		return resp.mismatch("transfer")
	}
	return nil
}

// stream runs one binary transfer: command names STOR or RETR and move
// copies between the data connection and the caller.
func (c *Client) stream(command, remotePath string, move func(data net.Conn) (int64, error)) error {
	if err := c.Type("I"); err != nil {
		return fmt.Errorf("ftp: binary mode: %w", err)
	}

	start := time.Now()
	data, err := c.openTransfer(command, remotePath)
	if err != nil {
		return err
	}
	n, moveErr := move(data)
	doneErr := c.closeTransfer(data)

	c.logger.WithFields(logrus.Fields{
		"cmd":   command,
		"path":  remotePath,
		"bytes": n,
		"ms":    time.Since(start).Milliseconds(),
	}).Debug("transfer finished")

	if moveErr != nil {
		return fmt.Errorf("ftp: %s %s: %w", command, remotePath, moveErr)
	}
	return doneErr
}

// trackData records the data channel in flight so Quit can close it.
func (c *Client) trackData(d io.Closer) {
	c.mu.Lock()
	c.data = d
	c.mu.Unlock()
}
