// Package feed accepts entity-state event connections and queues typed
// events for the radar loop. The feed never touches the store directly:
// decoded events cross one buffered channel and the loop applies them,
// which keeps all store mutation on a single goroutine.
package feed

import (
	"bufio"
	"net"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teramod/radar/internal/metrics"
)

const maxLineBytes = 256 * 1024

// Server accepts TCP connections carrying NDJSON event streams.
type Server struct {
	listener net.Listener
	events   chan Event
	log      *zap.Logger
	closeCh  chan struct{}

	malformed atomic.Uint64
	dropped   atomic.Uint64
}

func NewServer(bindAddr string, queueSize int, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: ln,
		events:   make(chan Event, queueSize),
		log:      log,
		closeCh:  make(chan struct{}),
	}, nil
}

// AcceptLoop runs in its own goroutine. Each connection gets a reader
// goroutine that decodes lines onto the shared event queue.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return // server shutting down
			default:
			}
			s.log.Error("feed accept failed", zap.Error(err))
			continue
		}
		s.log.Info("feed connected", zap.String("remote", conn.RemoteAddr().String()))
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, ok := decodeLine(line)
		if !ok {
			s.malformed.Add(1)
			metrics.RecordFeedMalformed()
			continue
		}
		select {
		case s.events <- ev:
		default:
			// queue full: the loop is behind, shed the newest
			s.dropped.Add(1)
		}
	}
	if err := sc.Err(); err != nil {
		s.log.Warn("feed connection closed", zap.Error(err))
	} else {
		s.log.Info("feed disconnected", zap.String("remote", conn.RemoteAddr().String()))
	}
}

// Events returns the decoded event queue.
func (s *Server) Events() <-chan Event {
	return s.events
}

// MalformedCount returns rejected line count.
func (s *Server) MalformedCount() uint64 { return s.malformed.Load() }

// DroppedCount returns events dropped to a full queue.
func (s *Server) DroppedCount() uint64 { return s.dropped.Load() }

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
