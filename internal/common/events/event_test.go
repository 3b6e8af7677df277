package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(KindPaymentSucceeded, "pr-1", PaymentSucceededData{
		PaymentReference: "pr-1",
		Amount:           10,
		Mode:             "sdk",
		State:            "completed",
	})
	require.NoError(t, err)
	require.NotEmpty(t, env.ID)
	require.Equal(t, KindPaymentSucceeded, env.Kind)
	require.Equal(t, "pr-1", env.CorrelationID)
	require.False(t, env.Timestamp.IsZero())

	var data PaymentSucceededData
	require.NoError(t, env.DecodeData(&data))
	require.Equal(t, "pr-1", data.PaymentReference)
	require.Equal(t, "completed", data.State)
}

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := NewBus()

	var succeeded, failed int
	bus.Subscribe(KindPaymentSucceeded, func(env *Envelope) { succeeded++ })
	bus.Subscribe(KindPaymentFailed, func(env *Envelope) { failed++ })

	env, err := NewEnvelope(KindPaymentSucceeded, "pr-1", PaymentSucceededData{PaymentReference: "pr-1"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), env))

	require.Equal(t, 1, succeeded)
	require.Equal(t, 0, failed)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	var calls int
	unsubscribe := bus.Subscribe(KindPaymentFailed, func(env *Envelope) { calls++ })

	env, err := NewEnvelope(KindPaymentFailed, "", PaymentFailedData{Message: "boom", Mode: "sdk"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), env))
	require.Equal(t, 1, calls)

	unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), env))
	require.Equal(t, 1, calls)
}

type stubPublisher struct {
	published []*Envelope
	err       error
}

func (p *stubPublisher) Publish(ctx context.Context, env *Envelope) error {
	p.published = append(p.published, env)
	return p.err
}

func TestBus_ForwardsToAttachedPublishers(t *testing.T) {
	bus := NewBus()
	forward := &stubPublisher{}
	bus.Attach(forward)

	env, err := NewEnvelope(KindTokenIssued, "pr-1", TokenIssuedData{TransactionIdentifier: "txn-1", Mode: "backend_data"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), env))

	require.Len(t, forward.published, 1)
	require.Equal(t, KindTokenIssued, forward.published[0].Kind)
}

func TestBus_ForwardErrorSurfaces(t *testing.T) {
	bus := NewBus()
	bus.Attach(&stubPublisher{err: errors.New("nats down")})

	env, err := NewEnvelope(KindPaymentFailed, "", PaymentFailedData{Message: "boom", Mode: "sdk"})
	require.NoError(t, err)
	require.EqualError(t, bus.Publish(context.Background(), env), "nats down")
}
