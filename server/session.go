package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MaxCommandLength is the maximum length of a command line. A longer
// line is answered with 500 and skipped without being buffered; the
// session then reads the next command.
const MaxCommandLength = 4096

var errCommandTooLong = errors.New("command too long")

// session is the state of one control connection. Commands are handled
// strictly one after another on the session goroutine.
type session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex // Protects writer

	ctx    context.Context
	cancel context.CancelFunc
	log    logrus.FieldLogger

	sessionID string
	remoteIP  string

	// State
	cwd          string
	transferType TransferType
	user         string
	data         *dataChannel

	// lastCode is the code of the most recent reply, for metrics.
	lastCode int
}

// commandHandlers maps command kinds to their handlers.
// QUIT and unknown verbs are handled in handleCommand.
var commandHandlers = map[Kind]func(*session, Command){
	KindAuth: (*session).handleAUTH,
	KindUser: (*session).handleUSER,
	KindSyst: (*session).handleSYST,
	KindNoop: (*session).handleNOOP,
	KindPwd:  (*session).handlePWD,
	KindCwd:  (*session).handleCWD,
	KindCdUp: (*session).handleCDUP,
	KindMkd:  (*session).handleMKD,
	KindRmd:  (*session).handleRMD,
	KindList: (*session).handleLIST,
	KindType: (*session).handleTYPE,
	KindPasv: (*session).handlePASV,
	KindPort: (*session).handlePORT,
	KindStor: (*session).handleSTOR,
	KindRetr: (*session).handleRETR,
}

// generateSessionID returns a short random identifier for log correlation.
func generateSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func newSession(server *Server, conn net.Conn) *session {
	remoteIP, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		remoteIP = conn.RemoteAddr().String()
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := generateSessionID()

	return &session{
		server:       server,
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writer:       bufio.NewWriter(conn),
		ctx:          ctx,
		cancel:       cancel,
		sessionID:    id,
		remoteIP:     remoteIP,
		cwd:          "/",
		transferType: TypeImage,
		data:         newDataChannel(server.dataTimeout),
		log: server.logger.WithFields(logrus.Fields{
			"session_id": id,
			"remote_ip":  remoteIP,
		}),
	}
}

// serve runs the command loop until QUIT, a read error or an idle timeout.
func (s *session) serve() {
	defer s.close()

	s.reply(220, s.server.welcomeMessage)
	s.log.Info("session_started")

	for {
		if s.server.readTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.server.readTimeout))
		} else if s.server.maxIdleTime > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.server.maxIdleTime))
		}

		line, err := s.readCommand()
		if errors.Is(err, errCommandTooLong) {
			s.discardLine()
			s.reply(500, "Command line too long.")
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.WithError(err).Warn("read error")
			}
			return
		}

		if !s.handleCommand(line) {
			return
		}
	}
}

// readCommand reads one LF-terminated line, without the line ending.
func (s *session) readCommand() (string, error) {
	var line []byte
	for {
		b, err := s.reader.ReadByte()
		if err != nil {
			return string(line), err
		}
		if b == '\n' {
			return strings.TrimSuffix(string(line), "\r"), nil
		}
		if len(line) >= MaxCommandLength {
			return "", errCommandTooLong
		}
		line = append(line, b)
	}
}

// discardLine skips the rest of an over-long line.
func (s *session) discardLine() {
	for {
		if _, err := s.reader.ReadSlice('\n'); err != bufio.ErrBufferFull {
			return
		}
	}
}

// close releases the data channel and the control connection. It never
// waits on an open data channel.
func (s *session) close() {
	s.cancel()
	s.data.release()
	s.conn.Close()

	s.log.WithField("user", s.user).Debug("session_closed")
}

// handleCommand parses and dispatches one line. It returns false when the
// session should end.
func (s *session) handleCommand(line string) bool {
	if strings.TrimSpace(line) == "" {
		return true
	}

	start := time.Now()
	cmd, err := ParseCommand(line)

	s.log.WithFields(logrus.Fields{
		"cmd": cmd.Verb,
		"arg": cmd.Arg,
	}).Debug("command received")

	if s.server.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.server.writeTimeout))
		defer func() { _ = s.conn.SetWriteDeadline(time.Time{}) }()
	}

	keepGoing := true
	switch {
	case err != nil:
		if cmd.Kind == KindStor || cmd.Kind == KindRetr || cmd.Kind == KindList {
			s.data.release()
		}
		s.reply(501, "Syntax error in parameters or arguments: "+err.Error()+".")
	case cmd.Kind == KindQuit:
		s.reply(221, "Service closing control connection.")
		keepGoing = false
	case cmd.Kind == KindUnknown:
		s.reply(500, fmt.Sprintf("Unknown command %q.", cmd.Verb))
	default:
		commandHandlers[cmd.Kind](s, cmd)
	}

	if s.server.metrics != nil {
		name := cmd.Verb
		if cmd.Kind == KindUnknown {
			name = "UNKNOWN"
		}
		s.server.metrics.RecordCommand(name, s.lastCode < 400, time.Since(start))
	}
	return keepGoing
}

// resolve maps a client path through the server root.
func (s *session) resolve(p string) (Location, error) {
	loc, err := s.server.root.Resolve(s.cwd, p)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"cwd":  s.cwd,
			"path": p,
		}).Warn("path_violation")
	}
	return loc, err
}

// openData takes the data channel for one transfer and tracks the
// connection so Shutdown can close it.
func (s *session) openData() (net.Conn, error) {
	conn, err := s.data.take()
	if err != nil {
		s.log.WithError(err).Debug("data connection failed")
		return nil, err
	}
	if !s.server.track(conn) {
		return nil, ErrServerClosed
	}
	return &trackedConn{Conn: conn, server: s.server}, nil
}

// replyPathError answers a failed filesystem operation. violationCode is
// used when the path escaped the root; everything else is a 550.
func (s *session) replyPathError(violationCode int, err error) {
	switch {
	case errors.Is(err, ErrPathViolation):
		s.reply(violationCode, "Permission denied: path is outside the server root.")
	case errors.Is(err, fs.ErrNotExist):
		s.reply(550, "No such file or directory.")
	case errors.Is(err, fs.ErrExist):
		s.reply(550, "File exists.")
	case errors.Is(err, fs.ErrPermission):
		s.reply(550, "Permission denied.")
	default:
		s.reply(550, "Action failed: "+err.Error())
	}
}

// reply sends a single-line response to the client.
func (s *session) reply(code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCode = code
	fmt.Fprintf(s.writer, "%d %s\r\n", code, message)
	if err := s.writer.Flush(); err != nil {
		s.log.WithError(err).Debug("reply failed")
	}
}
