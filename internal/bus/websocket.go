package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// WebSocket is a Bus whose publishes go to a remote peer. Messages read
// from the peer are delivered to local subscribers.
type WebSocket struct {
	url    string
	conn   *websocket.Conn
	local  *Local
	logger *slog.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
	done    chan struct{}
}

// Dial connects to a bus endpoint at url.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*WebSocket, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	b := newWebSocket(url, conn, logger)
	logger.Info("connected message bus", "url", url)
	return b, nil
}

// Accept upgrades an HTTP request into a bus connection.
func Accept(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*WebSocket, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	b := newWebSocket(r.RemoteAddr, conn, logger)
	logger.Info("accepted message bus peer", "remote", r.RemoteAddr)
	return b, nil
}

func newWebSocket(url string, conn *websocket.Conn, logger *slog.Logger) *WebSocket {
	b := &WebSocket{
		url:    url,
		conn:   conn,
		local:  NewLocal(logger),
		logger: logger,
		done:   make(chan struct{}),
	}
	go b.readLoop()
	return b
}

// Publish sends msg to the remote peer.
func (b *WebSocket) Publish(ctx context.Context, msg Message) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		b.conn.SetWriteDeadline(deadline)
		defer b.conn.SetWriteDeadline(time.Time{})
	}
	if err := b.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write %s: %w", msg.Action, err)
	}
	return nil
}

// Subscribe registers h for messages arriving from the peer.
func (b *WebSocket) Subscribe(action string, h Handler) func() {
	return b.local.Subscribe(action, h)
}

// Done is closed when the connection stops reading.
func (b *WebSocket) Done() <-chan struct{} {
	return b.done
}

// Close disconnects from the peer and waits for the read loop to exit.
func (b *WebSocket) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.writeMu.Lock()
	b.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	b.writeMu.Unlock()
	err := b.conn.Close()
	<-b.done

	b.local.Close()
	b.logger.Info("closed message bus", "url", b.url)
	return err
}

func (b *WebSocket) readLoop() {
	defer close(b.done)

	for {
		var msg Message
		if err := b.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				b.logger.Warn("message bus read failed", "url", b.url, "error", err)
			}
			return
		}
		if msg.Action == "" {
			b.logger.Warn("dropping message without action", "url", b.url)
			continue
		}
		if err := b.local.Publish(context.Background(), msg); err != nil {
			return
		}
	}
}
