package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bterminal/bterminal/pkg/types"
)

// Terminal is an attached streaming connection to a session.
// Send methods are safe for concurrent use; ReadLoop must run on a single
// goroutine.
type Terminal struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Attach opens the streaming connection for session id.
func (c *Client) Attach(ctx context.Context, id string) (*Terminal, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + url.PathEscape(id)

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-API-Key", c.apiKey)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode == http.StatusNotFound {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return nil, fmt.Errorf("attach failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("attach: %w", err)
	}
	return &Terminal{conn: conn}, nil
}

func (t *Terminal) send(msg types.ClientMessage) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(msg)
}

// SendInput forwards keystrokes to the shell.
func (t *Terminal) SendInput(data string) error {
	return t.send(types.InputMessage(data))
}

// Resize reports this client's viewport.
func (t *Terminal) Resize(rows, cols uint16) error {
	return t.send(types.ResizeMessage(rows, cols))
}

// ReadLoop copies terminal output to out and hands control messages to
// onControl (which may be nil). It returns nil once the shell exits.
func (t *Terminal) ReadLoop(out io.Writer, onControl func(types.ServerMessage)) error {
	for {
		frameType, data, err := t.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		switch frameType {
		case websocket.BinaryMessage:
			if _, err := out.Write(data); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
		case websocket.TextMessage:
			var msg types.ServerMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type == types.MessageExit {
				return nil
			}
			if onControl != nil {
				onControl(msg)
			}
		}
	}
}

// Close closes the connection.
func (t *Terminal) Close() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}
