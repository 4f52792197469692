package mq

import (
	"encoding/json"
	"testing"
)

func TestNewMessage_ParsePayload(t *testing.T) {
	msg, err := NewMessage(MessageTypeBackgroundStarted, BackgroundStartedPayload{BatchID: 42})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Errorf("message envelope not filled: %+v", msg)
	}

	// конверт переживает сериализацию, как при публикации
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Message
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	payload, err := ParsePayload[BackgroundStartedPayload](&decoded)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if payload.BatchID != 42 {
		t.Errorf("BatchID = %d, want 42", payload.BatchID)
	}
}

func TestParsePayload_Invalid(t *testing.T) {
	msg := &Message{Type: MessageTypeBackgroundStarted, Payload: json.RawMessage(`"not an object"`)}
	if _, err := ParsePayload[BackgroundStartedPayload](msg); err == nil {
		t.Error("expected error")
	}
}
