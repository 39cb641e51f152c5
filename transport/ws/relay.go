package ws

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/joejackson1993/cometd"
)

// Relay upgrades HTTP requests to WebSocket and attaches each connection to a Hub.
type Relay struct {
	hub      *cometd.Hub
	logger   cometd.Logger
	opts     []Option
	upgrader websocket.Upgrader
}

// NewRelay creates a relay handler. opts configure the per-connection transports.
func NewRelay(hub *cometd.Hub, logger cometd.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = cometd.DefaultLogger()
	}
	return &Relay{
		hub:    hub,
		logger: logger,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP implements http.Handler. It blocks until the peer leaves.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "remote_addr", req.RemoteAddr, "error", err)
		return
	}

	r.logger.Info("websocket peer connected", "remote_addr", conn.RemoteAddr())
	if err = r.hub.Attach(req.Context(), New(conn, r.opts...)); err != nil {
		r.logger.Debug("websocket peer detached", "remote_addr", conn.RemoteAddr(), "error", err)
	}
	r.logger.Info("websocket peer disconnected", "remote_addr", conn.RemoteAddr())
}
