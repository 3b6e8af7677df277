// Package events carries payment lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind identifies the type of payment event.
type Kind string

const (
	KindPaymentSucceeded Kind = "payment.succeeded"
	KindPaymentFailed    Kind = "payment.failed"
	KindPaymentCancelled Kind = "payment.cancelled"
	KindTokenIssued      Kind = "payment.token_issued"
)

// Envelope wraps all events with common metadata. CorrelationID is the
// payment reference when one exists.
type Envelope struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// NewEnvelope creates a new event envelope.
func NewEnvelope(kind Kind, correlationID string, data any) (*Envelope, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		ID:            ulid.Make().String(),
		Kind:          kind,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
		Data:          jsonData,
	}, nil
}

// DecodeData decodes the event data into a struct.
func (e *Envelope) DecodeData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// PaymentSucceededData is the payload for payment.succeeded events.
type PaymentSucceededData struct {
	PaymentReference string  `json:"payment_reference"`
	OrderReference   string  `json:"order_reference,omitempty"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency,omitempty"`
	Mode             string  `json:"mode"`
	State            string  `json:"state"`
}

// PaymentFailedData is the payload for payment.failed and payment.cancelled
// events.
type PaymentFailedData struct {
	PaymentReference string `json:"payment_reference,omitempty"`
	Code             string `json:"code,omitempty"`
	Message          string `json:"message"`
	Mode             string `json:"mode"`
}

// TokenIssuedData is the payload for payment.token_issued events
// (Backend Mode, where settlement happens out of band).
type TokenIssuedData struct {
	PaymentReference      string `json:"payment_reference,omitempty"`
	TransactionIdentifier string `json:"transaction_identifier"`
	Mode                  string `json:"mode"`
}

// Publisher publishes events to an external broker.
type Publisher interface {
	Publish(ctx context.Context, env *Envelope) error
}

// Bus is the in-process subscription surface for push-style notifications.
// Delivery is synchronous; handlers must not block.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	subs     map[Kind]map[int]func(*Envelope)
	forwards []Publisher
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind]map[int]func(*Envelope))}
}

// Subscribe registers a handler for one event kind and returns its
// unsubscribe function.
func (b *Bus) Subscribe(kind Kind, fn func(*Envelope)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[kind] == nil {
		b.subs[kind] = make(map[int]func(*Envelope))
	}
	id := b.nextID
	b.nextID++
	b.subs[kind][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[kind], id)
	}
}

// Attach forwards every published event to an external publisher as well.
func (b *Bus) Attach(p Publisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forwards = append(b.forwards, p)
}

// Publish delivers the envelope to local subscribers and attached
// publishers. The first forwarding error is returned; local delivery always
// completes.
func (b *Bus) Publish(ctx context.Context, env *Envelope) error {
	b.mu.RLock()
	handlers := make([]func(*Envelope), 0, len(b.subs[env.Kind]))
	for _, fn := range b.subs[env.Kind] {
		handlers = append(handlers, fn)
	}
	forwards := make([]Publisher, len(b.forwards))
	copy(forwards, b.forwards)
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(env)
	}

	var firstErr error
	for _, p := range forwards {
		if err := p.Publish(ctx, env); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
