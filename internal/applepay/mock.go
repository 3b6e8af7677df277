package applepay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/oklog/ulid/v2"
)

// MockSheet is an in-process Sheet used for tests, the demo deployment and
// the mock-payments mode. The enable toggle is the only shared mutable state
// in the bridge; it is mutex-guarded because the bridge serves concurrent
// requests.
type MockSheet struct {
	mu         sync.Mutex
	enabled    bool
	configured *ConfigureRequest

	// CancelNext makes the next Present fail with a cancellation.
	CancelNext bool
	// FailNext makes the next Present fail with the given error.
	FailNext *SheetError
}

var _ Sheet = (*MockSheet)(nil)

// NewMockSheet creates a MockSheet with mock payments disabled.
func NewMockSheet() *MockSheet {
	return &MockSheet{}
}

// CanMakePayments reports true whenever mock payments are enabled.
func (m *MockSheet) CanMakePayments(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled, nil
}

// CanRequestRecurringToken mirrors CanMakePayments for the mock.
func (m *MockSheet) CanRequestRecurringToken(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled, nil
}

// Configure stores the sheet configuration for the next Present call.
func (m *MockSheet) Configure(ctx context.Context, req ConfigureRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.MerchantIdentifier == "" {
		return &SheetError{Code: "configure_failed", Message: "merchant identifier is required"}
	}

	m.configured = &req
	return nil
}

// Present returns a deterministic mock token for the configured payment, or
// the scripted cancellation/failure.
func (m *MockSheet) Present(ctx context.Context) (*TokenResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return nil, &SheetError{Code: "mock_disabled", Message: "mock payments are not enabled"}
	}
	if m.configured == nil {
		return nil, &SheetError{Code: "not_configured", Message: "payment sheet has not been configured"}
	}
	if m.CancelNext {
		m.CancelNext = false
		return nil, &SheetError{Code: CodeCancelled, Message: "payment was cancelled by the user"}
	}
	if m.FailNext != nil {
		failure := m.FailNext
		m.FailNext = nil
		return nil, failure
	}

	txnID := "MOCK-" + ulid.Make().String()

	payload, _ := json.Marshal(map[string]any{
		"version":   "EC_v1",
		"data":      "mock-payment-data",
		"signature": "mock-signature",
		"header": map[string]any{
			"transactionId": txnID,
		},
		"amount":   m.configured.Amount,
		"currency": m.configured.CurrencyCode,
	})

	return &TokenResult{
		Success:               true,
		PaymentData:           base64.StdEncoding.EncodeToString(payload),
		TransactionIdentifier: txnID,
		PaymentMethod: PaymentMethodInfo{
			DisplayName: "Mock Card 1234",
			Network:     "Visa",
			Type:        1,
		},
	}, nil
}

// SetMockPaymentsEnabled toggles the mock. It never fails.
func (m *MockSheet) SetMockPaymentsEnabled(ctx context.Context, enabled bool) (*MockResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = enabled
	return &MockResult{Success: true}, nil
}
