package server

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ventus/ftp/internal/ratelimit"
)

func (s *session) handleTYPE(cmd Command) {
	s.transferType = cmd.Type
	s.reply(200, fmt.Sprintf("Type set to %s.", cmd.Type))
}

// handlePORT records the client's listening port. The server only ever
// connects back to the control connection's peer address.
func (s *session) handlePORT(cmd Command) {
	if s.data.busy() {
		s.reply(425, "Data connection already open.")
		return
	}
	s.data.setActive(net.JoinHostPort(s.remoteIP, strconv.Itoa(cmd.Port)))
	s.reply(200, "PORT command successful.")
}

func (s *session) listenPassive() (net.Listener, error) {
	minPort, maxPort := s.server.pasvMinPort, s.server.pasvMaxPort
	if minPort == 0 {
		return net.Listen("tcp", ":0")
	}

	rangeLen := int32(maxPort - minPort + 1)
	startOffset := s.server.pasvCursor.Add(1)
	for i := range rangeLen {
		port := minPort + int((startOffset+i)%rangeLen)
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			return ln, nil
		}
	}
	return nil, fmt.Errorf("no available ports in range [%d, %d]", minPort, maxPort)
}

// handlePASV binds a one-shot listener and starts accepting on it. A
// second PASV while a channel is pending changes nothing.
func (s *session) handlePASV(_ Command) {
	if s.data.busy() {
		s.reply(125, "Data connection already open; already listening.")
		return
	}

	ln, err := s.listenPassive()
	if err != nil {
		s.log.WithError(err).Warn("passive listen failed")
		s.reply(425, "Can't open passive connection.")
		return
	}
	s.data.listen(ln)

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	ip := s.passiveIP()
	octets := []string{"0", "0", "0", "0"}
	if ip != nil {
		octets = strings.Split(ip.String(), ".")
	}

	s.reply(227, fmt.Sprintf("Entering Passive Mode (%s,%d,%d).",
		strings.Join(octets, ","), port/256, port%256))
}

// passiveIP returns the IPv4 address to advertise, or nil if there is none
// (the client then falls back to the control connection's host).
func (s *session) passiveIP() net.IP {
	host, _, _ := net.SplitHostPort(s.conn.LocalAddr().String())
	if s.server.publicHost != "" {
		host = s.server.publicHost
	}

	if ip := net.ParseIP(host); ip != nil {
		return ip.To4()
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4
		}
	}
	return nil
}

func (s *session) handleSTOR(cmd Command) {
	defer s.data.release()

	loc, err := s.resolve(cmd.Arg)
	if err != nil {
		s.replyPathError(553, err)
		return
	}

	conn, err := s.openData()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	defer conn.Close()

	file, err := s.server.root.Create(loc)
	if err != nil {
		s.log.WithError(err).WithField("path", loc.Logical).Warn("create failed")
		s.reply(450, "Requested file action not taken.")
		return
	}

	s.reply(150, "Opening data connection for STOR.")

	var src io.Reader = conn
	if s.transferType == TypeASCII {
		src = newLFReader(conn)
	}

	start := time.Now()
	n, err := s.copyData(file, src)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.transferFailed("STOR", loc, n, err)
		return
	}

	s.transferComplete("STOR", loc, n, time.Since(start))
}

func (s *session) handleRETR(cmd Command) {
	defer s.data.release()

	loc, err := s.resolve(cmd.Arg)
	if err != nil {
		s.replyPathError(550, err)
		return
	}

	file, err := s.server.root.Open(loc)
	if err != nil {
		s.replyPathError(550, err)
		return
	}
	defer file.Close()

	conn, err := s.openData()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	defer conn.Close()

	s.reply(150, "Opening data connection for RETR.")

	var src io.Reader = file
	if s.transferType == TypeASCII {
		src = newCRLFReader(file)
	}

	start := time.Now()
	n, err := s.copyData(conn, src)
	if err == nil {
		// The client sees EOF only once the data connection is closed.
		err = conn.Close()
	}
	if err != nil {
		s.transferFailed("RETR", loc, n, err)
		return
	}

	s.transferComplete("RETR", loc, n, time.Since(start))
}

// copyData streams src to dst in chunks of the configured size, applying
// the bandwidth limit if one is set.
func (s *session) copyData(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, s.server.chunkSize)
	src = ratelimit.NewReader(s.ctx, src, s.server.limiter)
	// Hide ReaderFrom/WriterTo so the chunk size is honoured.
	return io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, buf)
}

func (s *session) transferFailed(op string, loc Location, n int64, err error) {
	s.log.WithFields(logrus.Fields{
		"op":    op,
		"path":  loc.Logical,
		"bytes": n,
	}).WithError(err).Warn("transfer_failed")
	s.reply(450, "Transfer aborted: "+err.Error())
}

func (s *session) transferComplete(op string, loc Location, n int64, d time.Duration) {
	s.log.WithFields(logrus.Fields{
		"user":        s.user,
		"op":          op,
		"path":        loc.Logical,
		"bytes":       n,
		"duration_ms": d.Milliseconds(),
	}).Info("transfer_complete")

	if s.server.metrics != nil {
		s.server.metrics.RecordTransfer(op, n, d)
	}
	s.reply(226, "Transfer complete.")
}
