package types

import (
	"encoding/json"
	"testing"
)

func TestServerMessageWireFormat(t *testing.T) {
	data, err := json.Marshal(SetSizeMessage(40, 100))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"SetSize","data":{"rows":40,"cols":100}}` {
		t.Errorf("unexpected SetSize encoding %s", data)
	}

	data, err = json.Marshal(ExitMessage())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"Exit"}` {
		t.Errorf("unexpected Exit encoding %s", data)
	}
}

func TestClientMessageDecode(t *testing.T) {
	var msg ClientMessage
	if err := json.Unmarshal([]byte(`{"type":"Input","data":"echo hi\n"}`), &msg); err != nil {
		t.Fatalf("unmarshal input: %v", err)
	}
	in, ok := msg.Input()
	if !ok || in != "echo hi\n" {
		t.Fatalf("Input() = %q, %v", in, ok)
	}
	if _, ok := msg.Resize(); ok {
		t.Fatal("input frame decoded as resize")
	}

	msg = ClientMessage{}
	if err := json.Unmarshal([]byte(`{"type":"Resize","data":{"rows":24,"cols":80}}`), &msg); err != nil {
		t.Fatalf("unmarshal resize: %v", err)
	}
	size, ok := msg.Resize()
	if !ok || size.Rows != 24 || size.Cols != 80 {
		t.Fatalf("Resize() = %+v, %v", size, ok)
	}
}

func TestClientMessageRejectsMismatchedData(t *testing.T) {
	var msg ClientMessage
	if err := json.Unmarshal([]byte(`{"type":"Input","data":{"rows":1}}`), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := msg.Input(); ok {
		t.Fatal("expected object payload to be rejected as input")
	}

	msg = ClientMessage{}
	if err := json.Unmarshal([]byte(`{"type":"Resize","data":"big"}`), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := msg.Resize(); ok {
		t.Fatal("expected string payload to be rejected as resize")
	}
}

func TestBuiltClientMessagesRoundTrip(t *testing.T) {
	in, ok := InputMessage("ls\n").Input()
	if !ok || in != "ls\n" {
		t.Fatalf("InputMessage round trip = %q, %v", in, ok)
	}
	size, ok := ResizeMessage(30, 120).Resize()
	if !ok || size != (TerminalSize{Rows: 30, Cols: 120}) {
		t.Fatalf("ResizeMessage round trip = %+v, %v", size, ok)
	}
}
