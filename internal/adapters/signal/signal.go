// Package signal is the websocket command and signaling surface: room
// commands from clients, room-state broadcasts back, and peer-to-peer relay
// of voice negotiation messages.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pr-poehali-dev/video-viewing-app/internal/app"
	"github.com/pr-poehali-dev/video-viewing-app/internal/core"
	"github.com/pr-poehali-dev/video-viewing-app/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Sessions *app.SessionController
	Resolver core.MediaResolver

	limiter *RoomRateLimiter

	mu    sync.RWMutex
	conns map[domain.UserID]*WsSignalConn
}

func NewController(sessions *app.SessionController, resolver core.MediaResolver) *Controller {
	return &Controller{
		Sessions: sessions,
		Resolver: resolver,
		limiter:  NewRoomRateLimiter(10, time.Minute),
		conns:    make(map[domain.UserID]*WsSignalConn),
	}
}

// WsSignalConn is one client connection with a buffered outbound queue.
// Send never blocks; a full queue reports backpressure instead.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan []byte

	userID   domain.UserID
	userName string
	roomID   domain.RoomID

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection pumps. The
// client token minted by the router middleware doubles as the user id.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	uid := domain.UserID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("user", string(uid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn:   ws,
		send:   make(chan []byte, 32),
		userID: uid,
	}

	ctl.mu.Lock()
	if old, ok := ctl.conns[uid]; ok {
		old.Close()
	}
	ctl.conns[uid] = conn
	ctl.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, conn)
		ctl.disconnect(conn)
	}()
}

func (ctl *Controller) disconnect(conn *WsSignalConn) {
	if conn.roomID != "" {
		ctl.leaveCurrentRoom(conn)
	}
	ctl.mu.Lock()
	if ctl.conns[conn.userID] == conn {
		delete(ctl.conns, conn.userID)
	}
	ctl.mu.Unlock()
	log.Info().Str("module", "signal").Str("user", string(conn.userID)).Msg("disconnected")
}

func (ctl *Controller) connOf(uid domain.UserID) (*WsSignalConn, bool) {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	conn, ok := ctl.conns[uid]
	return conn, ok
}

// BroadcastRoom fans a payload out to every connected member of the room,
// except the sender when skip is non-empty.
func (ctl *Controller) BroadcastRoom(roomID domain.RoomID, skip domain.UserID, v any) {
	room, ok := ctl.Sessions.Room(roomID)
	if !ok {
		return
	}
	for _, m := range room.Members {
		if m.ID == skip {
			continue
		}
		if conn, ok := ctl.connOf(m.ID); ok {
			ctl.sendJSON(conn, v)
		}
	}
}
