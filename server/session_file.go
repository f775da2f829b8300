package server

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ventus/ftp/internal/ratelimit"
)

func (s *session) handlePWD(_ Command) {
	s.reply(257, fmt.Sprintf("%q is the current directory.", s.cwd))
}

func (s *session) handleCWD(cmd Command) {
	if err := s.changeDir(cmd.Arg); err != nil {
		s.replyPathError(550, err)
		return
	}
	s.reply(250, "Directory successfully changed.")
}

func (s *session) handleCDUP(_ Command) {
	if s.cwd != "/" {
		if err := s.changeDir(".."); err != nil {
			s.replyPathError(550, err)
			return
		}
	}
	s.reply(200, "Directory changed to parent.")
}

func (s *session) changeDir(p string) error {
	loc, err := s.resolve(p)
	if err != nil {
		return err
	}
	info, err := s.server.root.Stat(loc)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", loc.Logical)
	}
	s.cwd = loc.Logical
	return nil
}

func (s *session) handleMKD(cmd Command) {
	loc, err := s.resolve(cmd.Arg)
	if err != nil {
		s.replyPathError(553, err)
		return
	}
	if err := s.server.root.MakeDir(loc); err != nil {
		if errors.Is(err, fs.ErrExist) {
			s.reply(550, "Directory already exists.")
			return
		}
		s.replyPathError(553, err)
		return
	}
	s.log.WithFields(logrus.Fields{
		"user": s.user,
		"path": loc.Logical,
	}).Info("directory_created")
	s.reply(257, fmt.Sprintf("%q created.", loc.Logical))
}

func (s *session) handleRMD(cmd Command) {
	loc, err := s.resolve(cmd.Arg)
	if err != nil {
		s.replyPathError(553, err)
		return
	}
	if err := s.server.root.RemoveDir(loc); err != nil {
		s.replyPathError(553, err)
		return
	}
	s.log.WithFields(logrus.Fields{
		"user": s.user,
		"path": loc.Logical,
	}).Info("directory_removed")
	s.reply(250, "Directory removed.")
}

// handleLIST writes one "DIR|FILE\tsize\tname" line per child of the
// target directory. The data connection closing ends the listing.
func (s *session) handleLIST(cmd Command) {
	defer s.data.release()

	loc, err := s.resolve(cmd.Arg)
	if err != nil {
		s.replyPathError(550, err)
		return
	}

	entries, err := s.server.root.ReadDir(loc)
	if err != nil {
		s.log.WithError(err).WithField("path", loc.Logical).Debug("list failed")
		s.reply(501, "Failed to list directory.")
		return
	}

	conn, err := s.openData()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	defer conn.Close()

	s.reply(150, "Here comes the directory listing.")

	start := time.Now()
	w := bufio.NewWriter(ratelimit.NewWriter(s.ctx, conn, s.server.limiter))
	var sent int64
	for _, entry := range entries {
		line := formatEntry(entry)
		sent += int64(len(line))
		_, _ = w.WriteString(line)
	}
	if err := w.Flush(); err != nil {
		s.log.WithError(err).Warn("list transfer failed")
		s.reply(450, "Transfer aborted: "+err.Error())
		return
	}
	conn.Close()

	if s.server.metrics != nil {
		s.server.metrics.RecordTransfer("LIST", sent, time.Since(start))
	}
	s.reply(226, "Directory send OK.")
}

func formatEntry(info fs.FileInfo) string {
	kind := "FILE"
	if info.IsDir() {
		kind = "DIR"
	}
	return fmt.Sprintf("%s\t%d\t%s\r\n", kind, info.Size(), info.Name())
}
