// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	applog "audiovis/internal/log"

	"github.com/gorilla/websocket"
)

const (
	broadcastQueue = 256
	writeTimeout   = time.Second
)

// WebSocketTransport broadcasts every sent value as JSON to all connected
// clients on /ws. Send never blocks; values are dropped when the queue is
// full.
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	server    *http.Server
	log       applog.Logger
}

// NewWebSocketTransport creates a transport and starts its broadcast loop.
// The HTTP listener is started by Run.
func NewWebSocketTransport(addr string) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Visualizers are served from anywhere
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, broadcastQueue),
		done:      make(chan struct{}),
		log:       applog.Named("transport[ws]"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	wst.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go wst.handleBroadcasts()
	return wst
}

// Handler returns the HTTP handler serving /ws.
func (wst *WebSocketTransport) Handler() http.Handler {
	return wst.server.Handler
}

// Run serves until ctx is cancelled, then closes the transport.
func (wst *WebSocketTransport) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		wst.log.Infof("serving /ws on %s", wst.addr)
		errCh <- wst.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return wst.Close()
	}
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// handleWebSocket upgrades HTTP connections to WebSocket.
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wst.log.Warnf("upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	wst.log.Infof("client connected, total: %d", total)

	// Clients never send; a read error means they went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	if ok {
		conn.Close()
		wst.log.Infof("client disconnected, total: %d", total)
	}
}

// handleBroadcasts sends queued values to all connected clients.
func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client := range wst.clients {
				_ = client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteJSON(data); err != nil {
					wst.log.Warnf("error sending to client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

// Send queues data for broadcast.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case wst.broadcast <- data:
	default:
		// Queue full, drop message
	}
	return nil
}

// Close disconnects every client and shuts the server down.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		wst.log.Debugf("closing server")
		close(wst.done)

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		err = wst.server.Close()
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
