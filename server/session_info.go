package server

import "fmt"

func (s *session) handleAUTH(_ Command) {
	s.reply(502, "AUTH not supported.")
}

// handleUSER accepts any non-empty name; there is no password step.
func (s *session) handleUSER(cmd Command) {
	s.user = cmd.Arg
	s.log.WithField("user", s.user).Info("user_logged_in")
	s.reply(230, fmt.Sprintf("User %s logged in, proceed.", s.user))
}

func (s *session) handleSYST(_ Command) {
	s.reply(215, s.server.serverName)
}

func (s *session) handleNOOP(_ Command) {
	s.reply(200, "OK.")
}
