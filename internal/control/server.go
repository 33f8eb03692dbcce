package control

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"

	"github.com/yanun0323/logs"

	"main/internal/event"
	"main/pkg/uds"
)

// Ack is the immediate per-command reply. Outcomes of asynchronous flows
// arrive later as events on the same connection.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Server speaks newline-delimited JSON over a Unix domain socket. Each
// frame from a client is one Command; every outbound Event is fanned out
// to all connected clients.
type Server struct {
	gateway *Gateway
	sock    *uds.Server

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer binds the gateway to a socket path.
func NewServer(gateway *Gateway, socketPath string) (*Server, error) {
	sock, err := uds.NewServer(socketPath)
	if err != nil {
		return nil, err
	}
	return &Server{
		gateway: gateway,
		sock:    sock,
		conns:   make(map[net.Conn]struct{}),
	}, nil
}

// Run listens and serves until the context is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.sock.Listen(); err != nil {
		return err
	}
	logs.Infof("control socket listening, path: %s", s.sock.Path())

	go func() {
		<-ctx.Done()
		_ = s.sock.Close()
	}()

	return s.sock.Serve(func(conn *net.UnixConn) {
		s.serveConn(ctx, conn)
	})
}

// Broadcast delivers one outbound event to every connected client.
// A client that cannot be written to is dropped.
func (s *Server) Broadcast(e event.Event) {
	frame, err := json.Marshal(e)
	if err != nil {
		logs.Errorf("encode event, type: %s, err: %+v", e.Type, err)
		return
	}

	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		if err := uds.WriteFrame(conn, frame); err != nil {
			s.drop(conn)
		}
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer s.drop(conn)

	reader := uds.NewFrameReader(conn)
	for {
		frame, err := reader.Read()
		if err != nil {
			if err != io.EOF {
				logs.Warnf("read control frame, err: %+v", err)
			}
			return
		}

		cmd, err := ParseCommand(frame)
		if err != nil {
			s.ack(conn, Ack{Error: err.Error()})
			continue
		}
		if err := s.gateway.Handle(ctx, cmd); err != nil {
			s.ack(conn, Ack{Error: err.Error()})
			continue
		}
		s.ack(conn, Ack{OK: true})
	}
}

func (s *Server) ack(conn net.Conn, a Ack) {
	frame, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := uds.WriteFrame(conn, frame); err != nil {
		s.drop(conn)
	}
}

func (s *Server) drop(conn net.Conn) {
	s.mu.Lock()
	_, ok := s.conns[conn]
	delete(s.conns, conn)
	s.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}
