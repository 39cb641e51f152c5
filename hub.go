package cometd

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// defaultHubSendTimeout bounds the delivery of one message to one peer.
const defaultHubSendTimeout = 5 * time.Second

// Hub relays every message a peer sends to every other attached peer.
// It forwards wire messages untouched: extensions run only in clients.
// Each receiver sees a given sender's messages in the order they were sent.
type Hub struct {
	logger      Logger
	tcpOpts     []TCPOption
	sendTimeout time.Duration

	mu     sync.RWMutex
	peers  map[uint64]Transport
	nextID uint64
}

// NewHub creates an empty hub. tcpOpts configure the transports created by Handle.
func NewHub(logger Logger, tcpOpts ...TCPOption) *Hub {
	if logger == nil {
		logger = defaultLogger()
	}
	return &Hub{
		logger:      logger,
		tcpOpts:     tcpOpts,
		sendTimeout: defaultHubSendTimeout,
		peers:       make(map[uint64]Transport),
	}
}

// Handle implements Handler so a Hub can be served by a Server.
func (h *Hub) Handle(ctx context.Context, conn *net.TCPConn) {
	t := NewTCPTransport(conn, h.tcpOpts...)
	if err := h.Attach(ctx, t); err != nil {
		h.logger.Debug("peer detached", "remote_addr", conn.RemoteAddr(), "error", err)
	}
}

// Attach adds t to the hub and relays its messages until t ends or ctx is
// canceled. The transport is closed on return.
func (h *Hub) Attach(ctx context.Context, t Transport) error {
	id := h.add(t)
	defer h.remove(id)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = t.Close()
	}()

	h.logger.Debug("peer attached", "peer", id)
	for {
		msg, err := t.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		h.broadcast(ctx, id, msg)
	}
}

// Peers returns the number of attached peers.
func (h *Hub) Peers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *Hub) add(t Transport) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.peers[h.nextID] = t
	return h.nextID
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	t, ok := h.peers[id]
	delete(h.peers, id)
	h.mu.Unlock()

	if ok {
		_ = t.Close()
		h.logger.Debug("peer removed", "peer", id)
	}
}

func (h *Hub) broadcast(ctx context.Context, from uint64, msg *Message) {
	h.mu.RLock()
	targets := make(map[uint64]Transport, len(h.peers))
	for id, t := range h.peers {
		if id != from {
			targets[id] = t
		}
	}
	h.mu.RUnlock()

	for id, t := range targets {
		sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
		err := t.Send(sendCtx, msg)
		cancel()
		if err != nil {
			h.logger.Warn("relay send failed, dropping peer", "peer", id, "channel", msg.Channel, "error", err)
			_ = t.Close()
		}
	}
}
