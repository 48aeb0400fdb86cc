// Package ws is the websocket boundary of the discussion hub: handshake
// authentication, the read loop feeding the router, and the write pump
// draining each connection's sink.
package ws

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"reviewroom/auth"
	"reviewroom/domain"
	"reviewroom/observability"
	"reviewroom/services"
	"reviewroom/sink"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 64 * 1024
)

type Server struct {
	log        *slog.Logger
	service    services.IDiscussionService
	tokens     auth.TokenManager
	metrics    *observability.Metrics
	upgrader   websocket.Upgrader
	bufferSize int
}

func NewServer(log *slog.Logger, service services.IDiscussionService,
	tokens auth.TokenManager, metrics *observability.Metrics,
	connectionBufferSize int) *Server {
	return &Server{
		log:     log,
		service: service,
		tokens:  tokens,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		bufferSize: connectionBufferSize,
	}
}

// HandleWS upgrades the connection, registers it with the hub, and runs
// the read loop until the client goes away. The deferred disconnect
// dispatch guarantees registry cleanup on every exit path.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	connSink := sink.NewConnSink(s.bufferSize, s.metrics.DeliveriesDropped.Inc)
	connID := s.service.Connect(connSink)
	s.log.Info("Client connected", "conn_id", connID, "user_id", claims.UserID)

	done := make(chan struct{})
	go s.writePump(conn, connSink, done)

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.readLoop(conn, connID, claims.UserID)

	// The read loop returned: the socket is gone or misbehaving.
	s.service.Dispatch(domain.DisconnectCommand{ConnID: connID})
	close(done)
	_ = conn.Close()
	s.log.Info("Client disconnected", "conn_id", connID, "user_id", claims.UserID)
}

func (s *Server) readLoop(conn *websocket.Conn, connID domain.ConnID, userID string) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Unexpected close", "conn_id", connID, "error", err)
			}
			return
		}

		cmd, err := decodeCommand(raw, connID, userID)
		if err != nil {
			// Malformed frames are dropped, never fatal for the connection.
			s.log.Warn("Dropping malformed frame",
				"conn_id", connID, "error", err)
			continue
		}
		s.service.Dispatch(cmd)
	}
}

// writePump serializes all writes to the socket: events drained from the
// connection sink plus the keepalive pings gorilla requires to come from
// a single writer goroutine.
func (s *Server) writePump(conn *websocket.Conn, connSink *sink.ConnSink, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case evt := <-connSink.Events:
			env, ok := encodeEvent(evt)
			if !ok {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				s.log.Debug("Write failed, awaiting read loop teardown", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// authenticate accepts the token either as a bearer header or as a
// query parameter, since browser websocket clients cannot set headers.
func (s *Server) authenticate(r *http.Request) (*auth.CustomClaims, error) {
	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		return nil, fmt.Errorf("missing token")
	}
	return s.tokens.Validate(token)
}
