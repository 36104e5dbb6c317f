package types

import "encoding/json"

// MessageType tags a streaming-protocol text frame.
type MessageType string

const (
	// Client to server.
	MessageInput  MessageType = "Input"
	MessageResize MessageType = "Resize"

	// Server to client.
	MessageSetSize MessageType = "SetSize"
	MessageExit    MessageType = "Exit"
)

// TerminalSize is a viewport in character cells.
type TerminalSize struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// ClientMessage is a text frame sent by an attached client:
// {"type":"Input","data":"ls\n"} or {"type":"Resize","data":{"rows":24,"cols":80}}.
type ClientMessage struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// InputMessage builds an Input frame.
func InputMessage(data string) ClientMessage {
	raw, _ := json.Marshal(data)
	return ClientMessage{Type: MessageInput, Data: raw}
}

// ResizeMessage builds a Resize frame.
func ResizeMessage(rows, cols uint16) ClientMessage {
	raw, _ := json.Marshal(TerminalSize{Rows: rows, Cols: cols})
	return ClientMessage{Type: MessageResize, Data: raw}
}

// Input returns the keystrokes carried by an Input frame.
func (m ClientMessage) Input() (string, bool) {
	if m.Type != MessageInput {
		return "", false
	}
	var s string
	if err := json.Unmarshal(m.Data, &s); err != nil {
		return "", false
	}
	return s, true
}

// Resize returns the viewport carried by a Resize frame.
func (m ClientMessage) Resize() (TerminalSize, bool) {
	if m.Type != MessageResize {
		return TerminalSize{}, false
	}
	var size TerminalSize
	if err := json.Unmarshal(m.Data, &size); err != nil {
		return TerminalSize{}, false
	}
	return size, true
}

// ServerMessage is a text frame sent to attached clients:
// {"type":"SetSize","data":{"rows":24,"cols":80}} or {"type":"Exit"}.
type ServerMessage struct {
	Type MessageType   `json:"type"`
	Data *TerminalSize `json:"data,omitempty"`
}

// SetSizeMessage builds a SetSize frame.
func SetSizeMessage(rows, cols uint16) ServerMessage {
	return ServerMessage{Type: MessageSetSize, Data: &TerminalSize{Rows: rows, Cols: cols}}
}

// ExitMessage builds the frame sent when the shell terminates.
func ExitMessage() ServerMessage {
	return ServerMessage{Type: MessageExit}
}
