package relay

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSConn adapts a WebSocket connection to Conn. Each WebSocket message is read
// like bytes arriving on a stream socket: a message larger than the read
// buffer is returned over several Read calls.
type WSConn struct {
	ws      *websocket.Conn
	pending []byte

	writeMu sync.Mutex // gorilla/websocket allows one concurrent writer
}

func NewWSConn(ws *websocket.Conn) *WSConn { return &WSConn{ws: ws} }

func (c *WSConn) Read(p []byte) (int, error) {
	for len(c.pending) == 0 {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return 0, io.EOF
			}
			return 0, err
		}
		c.pending = data
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *WSConn) Write(p []byte) (int, error) {
	mt := websocket.TextMessage
	if !utf8.Valid(p) {
		mt = websocket.BinaryMessage
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(mt, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *WSConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

func (c *WSConn) Close() error { return c.ws.Close() }

func (c *WSConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// WebSocketHandler upgrades HTTP requests and joins them to the relay as
// peers next to the TCP ones.
type WebSocketHandler struct {
	relay    *Relay
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewWebSocketHandler(r *Relay, readBuffer int) *WebSocketHandler {
	if readBuffer <= 0 {
		readBuffer = DefaultReadBuffer
	}
	return &WebSocketHandler{
		relay: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuffer,
			WriteBufferSize: readBuffer,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: r.log,
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		h.log.Warn("websocket_upgrade_error", zap.String("addr", r.RemoteAddr), zap.Error(err))
		return
	}
	_ = h.relay.ServeConn(NewWSConn(conn), TransportWebSocket)
}
