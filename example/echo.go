package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/joejackson1993/cometd"
	"github.com/joejackson1993/cometd/ext/binary"
)

// Server echoes every message back to the peer that sent it. Binary payloads
// are reassembled on the way in and chunked again on the way out.
type Server struct {
	connID atomic.Int64

	sync.RWMutex
	clients map[int64]*cometd.Client
}

func newServer() *Server {
	return &Server{clients: make(map[int64]*cometd.Client)}
}

func (s *Server) Handle(ctx context.Context, conn *net.TCPConn) {
	connID := s.connID.Add(1)
	logger := cometd.WithFields(slog.Default(), "connID", connID)

	errorOption := cometd.OnErrorOption(func(err error) cometd.ErrorAction {
		logger.Error("connection error", "error", err)
		return cometd.Disconnect
	})

	// Echo
	onMessageOption := cometd.OnMessageOption(func(m *cometd.Message) error {
		if bin, ok := binary.FromMessageData(m.Data); ok {
			logger.Info("binary payload", "channel", m.Channel, "size", len(bin.Data))
		}
		c := s.getClient(connID)
		if c == nil {
			return cometd.ErrConnectionClosed
		}
		return c.Write(&cometd.Message{Channel: m.Channel, Data: m.Data})
	})

	t := cometd.NewTCPTransport(conn)
	client, err := cometd.NewClient(t, errorOption, onMessageOption, cometd.LoggerOption(logger))
	if err != nil {
		panic(err)
	}
	if _, err = binary.Register(client, binary.CompressionOption(binary.CompressionSnappy)); err != nil {
		panic(err)
	}

	s.addClient(connID, client, t.Addr())
	defer s.deleteClient(connID)

	if err = client.Run(ctx); err != nil {
		logger.Debug("connection ended", "error", err)
	}
}

func (s *Server) addClient(connID int64, c *cometd.Client, addr net.Addr) {
	s.Lock()
	defer s.Unlock()

	slog.Info("add new conn", "connID", connID, "addr", addr)
	s.clients[connID] = c
}

func (s *Server) deleteClient(connID int64) {
	s.Lock()
	defer s.Unlock()

	delete(s.clients, connID)
}

func (s *Server) getClient(connID int64) *cometd.Client {
	s.RLock()
	defer s.RUnlock()

	return s.clients[connID]
}

func main() {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:12345")
	if err != nil {
		panic(err)
	}

	server, err := cometd.NewServer(addr)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("server start", "addr", addr.String())
	if err := server.Serve(ctx, newServer()); err != nil && ctx.Err() == nil {
		slog.Error("server error", "error", err)
	}
}
