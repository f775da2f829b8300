package server

import (
	"io"
	"net"
	"net/textproto"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// startTestServer serves a fresh temporary root on loopback. It returns the
// server, its address and the root directory.
func startTestServer(t *testing.T, options ...Option) (*Server, string, string) {
	t.Helper()
	rootDir := t.TempDir()

	options = append([]Option{
		WithRoot(rootDir),
		WithLogger(quietLogger()),
		WithDataTimeout(2 * time.Second),
	}, options...)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s, err := NewServer(ln.Addr().String(), options...)
	require.NoError(t, err)

	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() { _ = s.Shutdown() })

	return s, ln.Addr().String(), s.Root().Path()
}

// dialControl opens a raw control connection and consumes the banner.
func dialControl(t *testing.T, addr string) *textproto.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	c := textproto.NewConn(conn)
	t.Cleanup(func() { c.Close() })

	code, _, err := c.ReadCodeLine(220)
	require.NoError(t, err)
	require.Equal(t, 220, code)
	return c
}

// send writes one command line and returns the reply.
func send(t *testing.T, c *textproto.Conn, format string, args ...any) (int, string) {
	t.Helper()
	require.NoError(t, c.PrintfLine(format, args...))
	return readReply(t, c)
}

func readReply(t *testing.T, c *textproto.Conn) (int, string) {
	t.Helper()
	code, msg, err := c.ReadCodeLine(0)
	require.NoError(t, err)
	return code, msg
}

var pasvAddrRegex = regexp.MustCompile(`\((\d+),(\d+),(\d+),(\d+),(\d+),(\d+)\)`)

// openPassive sends PASV and dials the advertised port.
func openPassive(t *testing.T, c *textproto.Conn) net.Conn {
	t.Helper()
	code, msg := send(t, c, "PASV")
	require.Equal(t, 227, code, msg)

	m := pasvAddrRegex.FindStringSubmatch(msg)
	require.Len(t, m, 7, msg)
	p1, _ := strconv.Atoi(m[5])
	p2, _ := strconv.Atoi(m[6])

	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(p1*256+p2)), 2*time.Second)
	require.NoError(t, err)
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	t.Cleanup(func() { conn.Close() })
	return conn
}
