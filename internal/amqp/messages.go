package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// EventTransactionRecorded is the AMQP message type of TransactionEvent.
const EventTransactionRecorded = "transaction.recorded"

// TransactionEvent announces a transaction accepted by the store. It carries
// the full record so consumers never need to read the store back.
type TransactionEvent struct {
	EventID     string    `json:"event_id"`
	Ref         string    `json:"ref"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Date        string    `json:"date,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

var ErrInvalidEvent = errors.New("invalid transaction event")

// NewTransactionEvent builds the event for a stored transaction.
func NewTransactionEvent(ref string, t core.Transaction, recordedAt time.Time) *TransactionEvent {
	return &TransactionEvent{
		EventID:     uuid.NewString(),
		Ref:         ref,
		Type:        string(t.Type),
		AmountCents: t.Amount.Cents,
		Description: t.Description,
		Category:    t.Category,
		Date:        t.Date.String(),
		RecordedAt:  recordedAt.UTC(),
	}
}

func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and validates a message body.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

func (e *TransactionEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("%w: missing event_id", ErrInvalidEvent)
	}
	if _, err := uuid.Parse(e.EventID); err != nil {
		return fmt.Errorf("%w: event_id: %v", ErrInvalidEvent, err)
	}
	if _, err := e.Transaction(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// Transaction rebuilds the domain record carried by the event.
func (e *TransactionEvent) Transaction() (core.Transaction, error) {
	d, err := core.ParseDate(e.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		Type:        core.TransactionType(e.Type),
		Amount:      core.Money{Cents: e.AmountCents},
		Description: e.Description,
		Category:    e.Category,
		Date:        d,
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}
