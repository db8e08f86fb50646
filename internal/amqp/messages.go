package amqp

import (
	"encoding/json"
	"time"
)

// SyncRequestMessage asks the worker to ingest one project now.
type SyncRequestMessage struct {
	ProjectID int64     `json:"project_id"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSyncRequestMessage(projectID int64, requestID string) *SyncRequestMessage {
	return &SyncRequestMessage{
		ProjectID: projectID,
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}

func (m *SyncRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SyncRequestMessageFromJSON(data []byte) (*SyncRequestMessage, error) {
	var msg SyncRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// PaymentsIngestedMessage announces a finished ingestion run. Consumers use
// it to refresh cached totals.
type PaymentsIngestedMessage struct {
	RunID       string    `json:"run_id"`
	ProjectID   int64     `json:"project_id"`
	NewPayments int       `json:"new_payments"`
	Accounts    int       `json:"accounts"`
	Failed      bool      `json:"failed"`
	Timestamp   time.Time `json:"timestamp"`
}

func (m *PaymentsIngestedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PaymentsIngestedMessageFromJSON(data []byte) (*PaymentsIngestedMessage, error) {
	var msg PaymentsIngestedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
