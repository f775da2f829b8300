package server

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ventus/ftp/internal/ratelimit"
)

// Option is a functional option for configuring a server.
type Option func(*Server) error

// WithRoot sets the directory served to clients.
// This option is required and can only be set once.
//
// Example:
//
//	s, _ := server.NewServer(":2121", server.WithRoot("/srv/ventus"))
func WithRoot(dir string) Option {
	return func(s *Server) error {
		if s.root != nil {
			return fmt.Errorf("root already set")
		}
		root, err := NewRoot(dir)
		if err != nil {
			return err
		}
		s.root = root
		return nil
	}
}

// WithLogger sets the logger for session and transfer events.
// If not specified, logrus.StandardLogger() is used.
//
// Example with debug logging:
//
//	logger := logrus.New()
//	logger.SetLevel(logrus.DebugLevel)
//	s, _ := server.NewServer(":2121",
//	    server.WithRoot(dir),
//	    server.WithLogger(logger),
//	)
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Server) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithMaxIdleTime sets how long a control connection may stay silent
// before it is closed. Defaults to 5 minutes.
func WithMaxIdleTime(d time.Duration) Option {
	return func(s *Server) error {
		s.maxIdleTime = d
		return nil
	}
}

// WithReadTimeout bounds each control channel read. It takes precedence
// over the idle time when set.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.readTimeout = d
		return nil
	}
}

// WithWriteTimeout bounds each control channel reply.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.writeTimeout = d
		return nil
	}
}

// WithDataTimeout bounds waiting for a passive data connection, dialing an
// active one, and any stall during a transfer. Defaults to 10 seconds.
func WithDataTimeout(d time.Duration) Option {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("data timeout must be positive")
		}
		s.dataTimeout = d
		return nil
	}
}

// WithChunkSize sets the buffer size used to stream STOR and RETR data.
// Defaults to 32 KiB.
func WithChunkSize(n int) Option {
	return func(s *Server) error {
		if n <= 0 {
			return fmt.Errorf("chunk size must be positive")
		}
		s.chunkSize = n
		return nil
	}
}

// WithPassivePortRange restricts passive listeners to [min, max].
//
// Example:
//
//	s, _ := server.NewServer(":2121",
//	    server.WithRoot(dir),
//	    server.WithPassivePortRange(30000, 30100),
//	)
func WithPassivePortRange(min, max int) Option {
	return func(s *Server) error {
		if min <= 1024 || max < min || max > 65535 {
			return fmt.Errorf("invalid passive port range [%d, %d]", min, max)
		}
		s.pasvMinPort = min
		s.pasvMaxPort = max
		return nil
	}
}

// WithPublicHost sets the IPv4 address or host name advertised in PASV
// replies, for servers behind NAT.
func WithPublicHost(host string) Option {
	return func(s *Server) error {
		s.publicHost = host
		return nil
	}
}

// WithWelcomeMessage sets the text of the 220 banner.
func WithWelcomeMessage(msg string) Option {
	return func(s *Server) error {
		s.welcomeMessage = msg
		return nil
	}
}

// WithServerName sets the system type reported by SYST.
func WithServerName(name string) Option {
	return func(s *Server) error {
		s.serverName = name
		return nil
	}
}

// WithMaxConnections sets the maximum number of simultaneous sessions.
// If 0, there is no limit. This is the default.
//
// When the limit is reached, new connections receive "421 Too many users".
func WithMaxConnections(max int) Option {
	return func(s *Server) error {
		s.maxConnections = max
		return nil
	}
}

// WithBandwidthLimit caps the combined throughput of all data connections
// in bytes per second. Zero disables the limit.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(s *Server) error {
		s.limiter = ratelimit.New(bytesPerSecond)
		return nil
	}
}

// WithMetricsCollector registers a collector for command, transfer and
// connection events.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(s *Server) error {
		s.metrics = collector
		return nil
	}
}
