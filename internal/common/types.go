package common

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChangeEvent is one row change on a watched table. New is the row after
// the change (INSERT, UPDATE) and Old the row before it (UPDATE, DELETE).
type ChangeEvent struct {
	Table     string          `json:"table"`
	Type      EventType       `json:"eventType"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
	Origin    string          `json:"origin,omitempty"` // set once an event crossed the relay
	Timestamp time.Time       `json:"commit_timestamp"`
}

func NewChangeEvent(table string, eventType EventType, newRow, oldRow interface{}) (ChangeEvent, error) {
	event := ChangeEvent{
		Table:     table,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}

	if newRow != nil {
		raw, err := json.Marshal(newRow)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("failed to encode new row: %w", err)
		}
		event.New = raw
	}
	if oldRow != nil {
		raw, err := json.Marshal(oldRow)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("failed to encode old row: %w", err)
		}
		event.Old = raw
	}
	return event, nil
}

// Identity is a signed-in visitor. A nil *Identity means anonymous.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// Notice is a transient message shown to a visitor (toast).
type Notice struct {
	Level string    `json:"level"` // success, error
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

const (
	NoticeSuccess = "success"
	NoticeError   = "error"
)
