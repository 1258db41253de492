package events

import (
	"encoding/json"
	"time"
)

// EntryCreatedMessage announces that a ledger entry was durably saved.
// Consumers (achievement tracking, notifications) fetch the full entry by
// id; the message stays lightweight on purpose.
type EntryCreatedMessage struct {
	EntryID   string    `json:"entry_id"`
	PlanID    string    `json:"plan_id,omitempty"`
	Source    string    `json:"source"` // "manual" or "sweep"
	Timestamp time.Time `json:"timestamp"`
}

func NewEntryCreatedMessage(entryID, planID, source string) *EntryCreatedMessage {
	return &EntryCreatedMessage{
		EntryID:   entryID,
		PlanID:    planID,
		Source:    source,
		Timestamp: time.Now(),
	}
}

func (m *EntryCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EntryCreatedMessageFromJSON(data []byte) (*EntryCreatedMessage, error) {
	var msg EntryCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
