package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"pkt.systems/pslog"

	"github.com/bterminal/bterminal/internal/fanout"
	"github.com/bterminal/bterminal/internal/logx"
	"github.com/bterminal/bterminal/internal/metrics"
	"github.com/bterminal/bterminal/internal/session"
	"github.com/bterminal/bterminal/internal/shell"
	"github.com/bterminal/bterminal/pkg/types"
)

const (
	writeWait      = 10 * time.Second
	maxClientFrame = 1 << 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  shell.ChunkSize,
	WriteBufferSize: shell.ChunkSize,
}

var exitFrame, _ = json.Marshal(types.ExitMessage())

func (s *Server) terminalWebSocket(c echo.Context) error {
	id := c.Param("id")
	sess, ok := s.registry.Get(id)
	if !ok {
		logx.Ctx(c.Request().Context()).Info("session not found", "session", id)
		return c.String(http.StatusNotFound, "Session not found")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		return nil
	}

	clientID := uuid.NewString()
	log := logx.WithClient(logx.WithSession(logx.Ctx(c.Request().Context()), id), clientID)
	attach(c.Request().Context(), ws, sess, clientID, log)
	return nil
}

// attach runs one client connection until either direction ends. History
// is replayed as a single binary frame before any live output.
func attach(parent context.Context, ws *websocket.Conn, sess *session.Session, clientID string, log pslog.Logger) {
	history, sub := sess.Join()
	defer sess.Leave(clientID)
	defer ws.Close()

	log.Info("client attached", "history_bytes", len(history))
	defer log.Info("client detached")

	if len(history) > 0 {
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.BinaryMessage, history); err != nil {
			log.Debug("history replay failed", "err", err)
			return
		}
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		forwardOutput(ctx, ws, sub, log)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		readInput(ws, sess, clientID, log)
	}()

	<-ctx.Done()
	// Unblocks whichever loop is still inside a read or write.
	ws.Close()
	wg.Wait()
}

// forwardOutput is the only data writer on ws once attached.
func forwardOutput(ctx context.Context, ws *websocket.Conn, sub *session.Subscription, log pslog.Logger) {
	for {
		msg, err := sub.Recv(ctx)
		if err != nil {
			var lagged *fanout.LaggedError
			if errors.As(err, &lagged) {
				metrics.FanoutLaggedTotal.WithLabelValues("client").Add(float64(lagged.Skipped))
				log.Warn("client lagged behind output", "skipped", lagged.Skipped)
				continue
			}
			if errors.Is(err, fanout.ErrClosed) {
				sendExit(ws, log)
			}
			return
		}

		var frameType int
		switch msg.Kind {
		case session.KindOutput:
			frameType = websocket.BinaryMessage
		case session.KindControl:
			frameType = websocket.TextMessage
		case session.KindExit:
			sendExit(ws, log)
			return
		default:
			continue
		}

		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(frameType, msg.Data); err != nil {
			log.Debug("client write failed", "err", err)
			return
		}
	}
}

func sendExit(ws *websocket.Conn, log pslog.Logger) {
	deadline := time.Now().Add(writeWait)
	ws.SetWriteDeadline(deadline)
	if err := ws.WriteMessage(websocket.TextMessage, exitFrame); err != nil {
		log.Debug("exit notice failed", "err", err)
		return
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shell exited"),
		deadline)
}

// readInput decodes client text frames. Binary frames and anything that is
// not a well-formed Input or Resize message are dropped.
func readInput(ws *websocket.Conn, sess *session.Session, clientID string, log pslog.Logger) {
	ws.SetReadLimit(maxClientFrame)
	for {
		frameType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("client read failed", "err", err)
			}
			return
		}
		if frameType != websocket.TextMessage {
			continue
		}

		var msg types.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		if input, ok := msg.Input(); ok {
			if err := sess.Write([]byte(input)); err != nil {
				log.Warn("terminal write failed", "err", err)
			}
			continue
		}
		if size, ok := msg.Resize(); ok {
			err := sess.UpdateClientViewport(clientID, shell.Size{Rows: size.Rows, Cols: size.Cols})
			if err != nil && !errors.Is(err, session.ErrInvalidSize) {
				log.Warn("terminal resize failed", "err", err)
			}
		}
	}
}
