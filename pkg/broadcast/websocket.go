package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oriva/eventsync/pkg/event"
	"github.com/oriva/eventsync/pkg/logger"
)

const writeTimeout = 10 * time.Second

// subscribeMessage is the first frame a client sends, naming the event
// patterns it wants. An empty list subscribes to everything for the user.
type subscribeMessage struct {
	EventTypes []string `json:"eventTypes"`
}

// frame is one pushed event.
type frame struct {
	EventType string      `json:"eventType"`
	Payload   event.Event `json:"payload"`
}

// WSServer upgrades HTTP requests into hub-backed live streams. The caller
// is responsible for authenticating the request and resolving the user id
// before handing the connection over.
type WSServer struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewWSServer creates a websocket front end for the hub.
func NewWSServer(hub *Hub, log *slog.Logger) *WSServer {
	if log == nil {
		log = slog.Default()
	}
	return &WSServer{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: log,
	}
}

// Serve upgrades the request and streams matching events to the client
// until either side disconnects. It blocks for the connection's lifetime.
func (s *WSServer) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("broadcast: upgrading connection: %w", err)
	}
	defer func() { _ = ws.Close() }()

	patterns, err := readSubscribe(ws)
	if err != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(writeTimeout))
		return err
	}

	handle, err := s.hub.Register(userID, patterns)
	if err != nil {
		code := websocket.CloseInternalServerErr
		if errors.Is(err, ErrConnectionLimit) {
			code = websocket.CloseTryAgainLater
		}
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, err.Error()),
			time.Now().Add(writeTimeout))
		return err
	}
	defer handle.Close()

	s.log.LogAttrs(r.Context(), slog.LevelInfo, "live stream opened",
		logger.UserID(userID), slog.Int("patterns", len(patterns)))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.readPump(cancel, ws, handle)
	return s.writePump(ctx, ws, handle)
}

// readSubscribe waits for the client's initial subscribe frame.
func readSubscribe(ws *websocket.Conn) ([]string, error) {
	_ = ws.SetReadDeadline(time.Now().Add(writeTimeout))
	var msg subscribeMessage
	if err := ws.ReadJSON(&msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubscribe, err)
	}
	for _, p := range msg.EventTypes {
		if !event.ValidPattern(p) {
			return nil, fmt.Errorf("%w: pattern %q", ErrInvalidSubscribe, p)
		}
	}
	return msg.EventTypes, nil
}

// readPump drains client frames so pong handlers run, and tears the stream
// down when the client goes away.
func (s *WSServer) readPump(cancel context.CancelFunc, ws *websocket.Conn, handle *Handle) {
	defer cancel()

	wait := time.Duration(MissedHeartbeatLimit) * s.hub.HeartbeatInterval()
	_ = ws.SetReadDeadline(time.Now().Add(wait))
	ws.SetPongHandler(func(string) error {
		handle.Pong()
		return ws.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pushes matched events and periodic pings until the handle or
// connection closes.
func (s *WSServer) writePump(ctx context.Context, ws *websocket.Conn, handle *Handle) error {
	pings := time.NewTicker(s.hub.HeartbeatInterval())
	defer pings.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-handle.Events():
			if !ok {
				// Dropped by the hub: slow consumer or shutdown.
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
					time.Now().Add(writeTimeout))
				return nil
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteJSON(frame{EventType: e.Key(), Payload: e}); err != nil {
				return fmt.Errorf("broadcast: writing frame: %w", err)
			}
		case <-pings.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("broadcast: writing ping: %w", err)
			}
		}
	}
}
