package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ventus/ftp/internal/ratelimit"
)

// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown.
var ErrServerClosed = errors.New("ftp: Server closed")

// Defaults applied by NewServer.
const (
	DefaultChunkSize   = 32 * 1024
	DefaultDataTimeout = 10 * time.Second
	DefaultMaxIdleTime = 5 * time.Minute
)

// Server serves one directory tree. Every accepted control connection
// runs as its own session goroutine; sessions share only the Root, which
// never changes.
//
//	s, err := server.NewServer(":2121", server.WithRoot("/srv/ventus"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(s.ListenAndServe())
//
// Shutdown closes the listener together with every open control and data
// connection.
type Server struct {
	addr   string
	root   *Root
	logger logrus.FieldLogger

	welcomeMessage string
	serverName     string

	// Control channel deadlines. A zero readTimeout leaves reads to
	// maxIdleTime; a zero writeTimeout leaves writes unbounded.
	maxIdleTime  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	// dataTimeout bounds waiting for a data connection and each stall of
	// a transfer.
	dataTimeout time.Duration
	chunkSize   int
	limiter     *ratelimit.Limiter

	// Passive mode. With pasvMinPort zero the kernel picks the port.
	publicHost  string
	pasvMinPort int
	pasvMaxPort int
	pasvCursor  atomic.Int32

	metrics MetricsCollector

	// slots holds one token per running session when maxConnections > 0.
	maxConnections int
	slots          chan struct{}

	mu       sync.Mutex
	listener net.Listener
	conns    connSet
	closed   atomic.Bool
}

// NewServer configures a server for addr. WithRoot is mandatory.
//
// Unless overridden the server logs to logrus.StandardLogger, drops idle
// sessions after DefaultMaxIdleTime, waits DefaultDataTimeout for data
// connections, moves DefaultChunkSize bytes per read and admits any number
// of sessions.
//
//	s, _ := server.NewServer(":2121",
//	    server.WithRoot("/srv/ventus"),
//	    server.WithMaxConnections(50),
//	    server.WithPassivePortRange(30000, 30100),
//	)
func NewServer(addr string, options ...Option) (*Server, error) {
	s := &Server{
		addr:           addr,
		logger:         logrus.StandardLogger(),
		welcomeMessage: "Ventus FTP server ready",
		serverName:     "UNIX Type: L8",
		maxIdleTime:    DefaultMaxIdleTime,
		dataTimeout:    DefaultDataTimeout,
		chunkSize:      DefaultChunkSize,
		conns:          connSet{},
	}
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.root == nil {
		return nil, errors.New("root is required (use WithRoot option)")
	}
	if s.maxConnections > 0 {
		s.slots = make(chan struct{}, s.maxConnections)
	}
	return s, nil
}

// ListenAndServe serves rootDir on addr with default settings.
func ListenAndServe(addr, rootDir string) error {
	s, err := NewServer(addr, WithRoot(rootDir))
	if err != nil {
		return err
	}
	return s.ListenAndServe()
}

// Root returns the directory the server is confined to.
func (s *Server) Root() *Root {
	return s.root
}

// ListenAndServe binds the configured address and calls Serve.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.logger.WithFields(logrus.Fields{
		"addr": ln.Addr().String(),
		"root": s.root.Path(),
	}).Info("FTP server listening")
	return s.Serve(ln)
}

// Serve accepts control connections on l until Shutdown. It always
// returns a non-nil error, ErrServerClosed after Shutdown.
//
// To stop on context cancellation:
//
//	go func() {
//	    <-ctx.Done()
//	    s.Shutdown()
//	}()
//	err := s.Serve(ln)
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.listener == l {
			s.listener = nil
		}
		s.mu.Unlock()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err == nil {
			go s.admit(conn)
			continue
		}
		if s.closed.Load() {
			return ErrServerClosed
		}
		if errors.Is(err, net.ErrClosed) {
			return err
		}
		if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
			s.logger.WithError(err).Error("accept error")
		}
	}
}

// Shutdown closes the listener and every control and data connection
// still open. Sessions end as their connections fail.
func (s *Server) Shutdown() error {
	s.closed.Store(true)

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	open := s.conns
	s.conns = connSet{}
	s.mu.Unlock()

	open.closeAll()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

// admit runs a session for conn, or turns it away with 421 when every
// slot is taken.
func (s *Server) admit(conn net.Conn) {
	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		default:
			s.reject(conn, "global_limit_reached")
			return
		}
	}

	if !s.track(conn) {
		return
	}
	defer s.untrack(conn)

	if s.metrics != nil {
		s.metrics.RecordConnection(true, "accepted")
	}
	newSession(s, conn).serve()
}

func (s *Server) reject(conn net.Conn, reason string) {
	ip, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	s.logger.WithFields(logrus.Fields{
		"remote_ip": ip,
		"reason":    reason,
		"limit":     s.maxConnections,
	}).Warn("connection_rejected")
	if s.metrics != nil {
		s.metrics.RecordConnection(false, reason)
	}
	_, _ = io.WriteString(conn, "421 Too many users, sorry.\r\n")
	conn.Close()
}

// track registers conn for Shutdown. After Shutdown it closes conn and
// reports false.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		conn.Close()
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

type connSet map[net.Conn]struct{}

func (cs connSet) closeAll() {
	for conn := range cs {
		conn.Close()
	}
}

// trackedConn is a data connection that leaves the server's set when
// closed.
type trackedConn struct {
	net.Conn
	server *Server
}

func (c *trackedConn) Close() error {
	c.server.untrack(c.Conn)
	return c.Conn.Close()
}
