package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const EnvelopeContentType = "application/json"

// Transport-level property names duplicated from the body so brokers and
// operators can filter messages without a full decode.
const (
	PropertyMessageType = "MessageType"
	PropertyCreatedAt   = "CreatedAt"
)

// Envelope is the wire record for every command. The message id is unique per
// send and serves transport dedup/audit only; business idempotency lives in
// the saga store.
type Envelope struct {
	MessageID     string
	CorrelationID string
	Subject       string
	ContentType   string
	CreatedAt     time.Time
	Properties    map[string]string
	Body          []byte
}

type commandDocument struct {
	MessageType   string          `json:"message_type"`
	CorrelationID string          `json:"correlation_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Data          json.RawMessage `json:"data"`
}

// NewEnvelope builds a typed envelope around a command payload: fresh message
// id, correlation key equal to the order id, and discriminator/timestamp both
// in the body and as queryable properties.
func NewEnvelope(messageType, correlationID string, payload any, now time.Time) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", messageType, err)
	}
	body, err := json.Marshal(commandDocument{
		MessageType:   messageType,
		CorrelationID: correlationID,
		CreatedAt:     now,
		Data:          data,
	})
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s envelope: %w", messageType, err)
	}
	return Envelope{
		MessageID:     uuid.NewString(),
		CorrelationID: correlationID,
		Subject:       messageType,
		ContentType:   EnvelopeContentType,
		CreatedAt:     now,
		Properties: map[string]string{
			PropertyMessageType: messageType,
			PropertyCreatedAt:   now.Format(time.RFC3339Nano),
		},
		Body: body,
	}, nil
}

// DecodePayload unmarshals the type-specific payload fields out of the body.
// A missing or malformed document is a validation failure, rejected before any
// state is touched.
func (e Envelope) DecodePayload(v any) error {
	var doc commandDocument
	if err := json.Unmarshal(e.Body, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(doc.Data) == 0 {
		return fmt.Errorf("%w: envelope has no data document", ErrValidation)
	}
	if err := json.Unmarshal(doc.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
