// Package applepay defines the boundary to the native Apple Pay sheet
// capability and ships a mock implementation of it.
package applepay

import "context"

// Reserved sheet error code for user dismissal. It is the single code the
// orchestration surfaces as a cancellation rather than a failure.
const CodeCancelled = "cancelled"

// ConfigureRequest configures the payment sheet before presentation.
type ConfigureRequest struct {
	Amount             float64          `json:"amount"`
	MerchantIdentifier string           `json:"merchant_identifier"`
	MerchantName       string           `json:"merchant_name"`
	CurrencyCode       string           `json:"currency_code"`
	CountryCode        string           `json:"country_code"`
	Recurring          *RecurringConfig `json:"recurring,omitempty"`
}

// RecurringConfig requests a recurring payment token (iOS 16+).
type RecurringConfig struct {
	Description      string `json:"description" validate:"required"`
	ManagementURL    string `json:"management_url" validate:"required,url"`
	BillingLabel     string `json:"billing_label,omitempty"`
	BillingAgreement string `json:"billing_agreement,omitempty"`
}

// PaymentMethodInfo describes the instrument the user selected on the sheet.
type PaymentMethodInfo struct {
	DisplayName string `json:"display_name"`
	Network     string `json:"network"`
	Type        int    `json:"type"`
}

// TokenResult is the signed token handed back by the sheet. PaymentData is a
// base64-encoded JSON payload.
type TokenResult struct {
	Success               bool              `json:"success"`
	PaymentData           string            `json:"payment_data"`
	TransactionIdentifier string            `json:"transaction_identifier"`
	PaymentMethod         PaymentMethodInfo `json:"payment_method"`
}

// MockResult reports the outcome of toggling mock payments.
type MockResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// SheetError is a sheet rejection carrying a machine code alongside the
// human message.
type SheetError struct {
	Code    string
	Message string
}

func (e *SheetError) Error() string {
	return e.Message
}

// Sheet is the native payment-sheet capability the orchestration depends on.
type Sheet interface {
	// CanMakePayments reports whether the device can present the sheet.
	CanMakePayments(ctx context.Context) (bool, error)

	// CanRequestRecurringToken reports recurring token support.
	CanRequestRecurringToken(ctx context.Context) (bool, error)

	// Configure prepares the sheet. Must be called before Present.
	Configure(ctx context.Context, req ConfigureRequest) error

	// Present shows the sheet and blocks until the user authorizes or
	// dismisses it. Dismissal is a *SheetError with CodeCancelled.
	Present(ctx context.Context) (*TokenResult, error)

	// SetMockPaymentsEnabled toggles mock payments.
	SetMockPaymentsEnabled(ctx context.Context, enabled bool) (*MockResult, error)
}
