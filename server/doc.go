// Package server implements the Ventus file-transfer server.
//
// # Overview
//
// The server exposes one directory tree over a small FTP-style control
// protocol. Each control connection is a session with its own working
// directory, transfer type and at most one data channel. Every path a
// client sends is resolved against the server root; a path that would
// leave it (through ".." or a symlink) is refused, never clamped.
//
// # Getting Started
//
//	package main
//
//	import (
//	    "log"
//
//	    "github.com/ventus/ftp/server"
//	)
//
//	func main() {
//	    s, err := server.NewServer(":2121", server.WithRoot("/srv/ventus"))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    log.Fatal(s.ListenAndServe())
//	}
//
// # Commands
//
// The control protocol is line based (CRLF) with one reply line per
// command:
//
//	USER name   230            PASV        227 (h1,h2,h3,h4,p1,p2)
//	PWD         257            PORT h..p2  200 (501 for ports <= 1024)
//	TYPE A|I    200            STOR path   150 then 226
//	CWD path    250            RETR path   150 then 226
//	CDUP        200            LIST [path] 150 then 226
//	MKD path    257            SYST        215
//	RMD path    250            QUIT        221
//
// Malformed arguments get 501 and unknown verbs get 500; neither closes
// the connection.
//
// TYPE I (the default) moves bytes unchanged. Under TYPE A, RETR turns
// bare LF line endings into CRLF and STOR turns CRLF back into LF.
//
// # Listings
//
// LIST does not use the Unix ls format. Each entry is one line
//
//	DIR\t4096\tphotos\r\n
//	FILE\t42\ta.txt\r\n
//
// in name order, and the listing ends when the data connection closes.
// The client in the parent package parses exactly this format.
//
// # Data Channels
//
// PASV binds a listener and accepts exactly one connection, which the
// next STOR, RETR or LIST consumes. The channel is released after that
// command whether it succeeded or not. A second PASV while a channel is
// pending answers 125 and leaves the first channel usable. PORT is
// supported in its simplest form: the server dials the control
// connection's peer on the given port.
//
// # Logging and Metrics
//
// Sessions log through logrus with session_id and remote_ip fields:
//
//	logger := logrus.New()
//	logger.SetFormatter(&logrus.JSONFormatter{})
//	s, _ := server.NewServer(":2121",
//	    server.WithRoot(dir),
//	    server.WithLogger(logger),
//	    server.WithMetricsCollector(myCollector),
//	)
package server
