package ftp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockServer provides a simple way to script server responses
type mockServer struct {
	listener net.Listener
	addr     string
	banner   string
	// handlers overrides the default reply for a verb
	handlers map[string]func(conn *textproto.Conn, args string)

	mu sync.Mutex
	// dataListener is the listener opened by the last PASV
	dataListener net.Listener
	// receivedCommands records all commands received
	receivedCommands []string
	// done channel to signal server loop exit
	done chan struct{}
}

func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &mockServer{
		listener: l,
		addr:     l.Addr().String(),
		banner:   "220 Service ready",
		handlers: make(map[string]func(*textproto.Conn, string)),
		done:     make(chan struct{}),
	}
}

func (s *mockServer) start(t *testing.T) {
	t.Cleanup(s.stop)
	go func() {
		defer close(s.done)
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		fmt.Fprintf(conn, "%s\r\n", s.banner)

		textConn := textproto.NewConn(conn)
		defer textConn.Close()

		for {
			line, err := textConn.ReadLine()
			if err != nil {
				return
			}

			cmd, args, _ := strings.Cut(line, " ")
			cmd = strings.ToUpper(cmd)

			s.mu.Lock()
			s.receivedCommands = append(s.receivedCommands, cmd)
			s.mu.Unlock()

			if handler, ok := s.handlers[cmd]; ok {
				handler(textConn, args)
				continue
			}

			switch cmd {
			case "USER":
				_ = textConn.PrintfLine("230 User %s logged in, proceed.", args)
			case "QUIT":
				_ = textConn.PrintfLine("221 Service closing control connection.")
				return
			case "TYPE", "NOOP":
				_ = textConn.PrintfLine("200 Command okay.")
			case "PASV":
				s.openPassive(textConn)
			default:
				_ = textConn.PrintfLine("500 Unknown command %q.", cmd)
			}
		}
	}()
}

// openPassive listens for one data connection and answers 227.
func (s *mockServer) openPassive(conn *textproto.Conn) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = conn.PrintfLine("425 Can't open passive connection.")
		return
	}
	s.mu.Lock()
	s.dataListener = ln
	s.mu.Unlock()

	port := ln.Addr().(*net.TCPAddr).Port
	_ = conn.PrintfLine("227 Entering Passive Mode (127,0,0,1,%d,%d).", port/256, port%256)
}

// acceptData accepts the connection announced by the last PASV.
func (s *mockServer) acceptData() (net.Conn, error) {
	s.mu.Lock()
	ln := s.dataListener
	s.dataListener = nil
	s.mu.Unlock()
	if ln == nil {
		return nil, errors.New("no PASV")
	}
	defer ln.Close()
	return ln.Accept()
}

func (s *mockServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.receivedCommands...)
}

func (s *mockServer) stop() {
	s.listener.Close()
	s.mu.Lock()
	if s.dataListener != nil {
		s.dataListener.Close()
	}
	s.mu.Unlock()
	<-s.done
}

func dialMock(t *testing.T, ms *mockServer, options ...Option) *Client {
	t.Helper()
	options = append([]Option{WithTimeout(2 * time.Second)}, options...)
	c, err := Dial(ms.addr, options...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDial_ReadsBanner(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.start(t)

	c := dialMock(t, ms)
	require.NoError(t, c.Login("testuser"))
	require.NoError(t, c.Noop())
	require.NoError(t, c.Quit())

	<-ms.done
	assert.Equal(t, []string{"USER", "NOOP", "QUIT"}, ms.commands())
}

func TestDial_RejectsNon220Banner(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.banner = "421 Too many users, sorry."
	ms.start(t)

	_, err := Dial(ms.addr, WithTimeout(2*time.Second))
	require.Error(t, err)

	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "CONNECT", pe.Command)
	assert.Equal(t, 421, pe.Code)
}

func TestDial_InvalidAddress(t *testing.T) {
	t.Parallel()
	_, err := Dial("no-port-here")
	require.Error(t, err)
}

func TestLogin_UnexpectedCode(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.handlers["USER"] = func(conn *textproto.Conn, _ string) {
		_ = conn.PrintfLine("331 User name okay, need password.")
	}
	ms.start(t)

	c := dialMock(t, ms)
	err := c.Login("testuser")

	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "USER", pe.Command)
	assert.Equal(t, 331, pe.Code)
}

func TestCurrentDir(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.handlers["PWD"] = func(conn *textproto.Conn, _ string) {
		_ = conn.PrintfLine(`257 "/with \"quote\"" is the current directory.`)
	}
	ms.start(t)

	c := dialMock(t, ms)
	dir, err := c.CurrentDir()
	require.NoError(t, err)
	assert.Equal(t, `/with "quote"`, dir)
}

func TestSystem(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.handlers["SYST"] = func(conn *textproto.Conn, _ string) {
		_ = conn.PrintfLine("215 UNIX Type: L8")
	}
	ms.start(t)

	c := dialMock(t, ms)
	syst, err := c.System()
	require.NoError(t, err)
	assert.Equal(t, "UNIX Type: L8", syst)
}

func TestList_ParsesDataChannel(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.handlers["LIST"] = func(conn *textproto.Conn, args string) {
		data, err := ms.acceptData()
		if err != nil {
			_ = conn.PrintfLine("425 Can't open data connection.")
			return
		}
		_ = conn.PrintfLine("150 Here comes the directory listing.")
		io.WriteString(data, "DIR\t4096\tb\r\nFILE\t42\ta.txt\r\ngarbage\r\n")
		data.Close()
		_ = conn.PrintfLine("226 Directory send OK.")
	}
	ms.start(t)

	c := dialMock(t, ms)
	entries, err := c.List("/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, &Entry{Name: "b", Type: EntryTypeDir, Size: 4096}, entries[0])
	assert.Equal(t, &Entry{Name: "a.txt", Type: EntryTypeFile, Size: 42}, entries[1])
}

func TestStore_SendsBytes(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)

	received := make(chan []byte, 1)
	ms.handlers["STOR"] = func(conn *textproto.Conn, args string) {
		data, err := ms.acceptData()
		if err != nil {
			_ = conn.PrintfLine("425 Can't open data connection.")
			return
		}
		_ = conn.PrintfLine("150 Opening data connection for STOR.")
		b, _ := io.ReadAll(data)
		data.Close()
		received <- b
		_ = conn.PrintfLine("226 Transfer complete.")
	}
	ms.start(t)

	var progress []int64
	c := dialMock(t, ms, WithProgress(func(path string, n int64) {
		assert.Equal(t, "up.bin", path)
		progress = append(progress, n)
	}))

	payload := bytes.Repeat([]byte("ventus"), 1000)
	require.NoError(t, c.Store("up.bin", bytes.NewReader(payload)))
	assert.Equal(t, payload, <-received)
	require.NotEmpty(t, progress)
	assert.Equal(t, int64(len(payload)), progress[len(progress)-1])

	assert.Equal(t, []string{"TYPE", "PASV", "STOR"}, ms.commands())
}

func TestRetrieve_ErrorBeforeTransfer(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.handlers["RETR"] = func(conn *textproto.Conn, args string) {
		_ = conn.PrintfLine("550 No such file or directory.")
	}
	ms.start(t)

	c := dialMock(t, ms)
	var buf bytes.Buffer
	err := c.Retrieve("missing.txt", &buf)

	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "RETR", pe.Command)
	assert.Equal(t, 550, pe.Code)
	assert.True(t, pe.Is5xx())

	// The control connection is still usable.
	require.NoError(t, c.Noop())
}

func TestReadResponse_MultiLine(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.handlers["NOOP"] = func(conn *textproto.Conn, _ string) {
		_ = conn.PrintfLine("200-first")
		_ = conn.PrintfLine("second")
		_ = conn.PrintfLine("200 done")
	}
	ms.start(t)

	c := dialMock(t, ms)
	resp, err := c.sendCommand("NOOP")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Code)
	assert.Equal(t, "first\nsecond\ndone", resp.Message)
}

func TestOptions_Validation(t *testing.T) {
	t.Parallel()
	c := &Client{}
	assert.Error(t, WithTimeout(-time.Second)(c))
	assert.Error(t, WithLogger(nil)(c))
	assert.Error(t, WithDialer(nil)(c))
	assert.Error(t, WithBandwidthLimit(-1)(c))

	require.NoError(t, WithBandwidthLimit(0)(c))
	assert.Nil(t, c.limiter)
	require.NoError(t, WithBandwidthLimit(1024)(c))
	assert.NotNil(t, c.limiter)
}
