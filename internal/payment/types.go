package payment

import (
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/applepay"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/everypay"
)

// Orchestration modes, used for events, metrics and attempt records.
const (
	ModeSDK         = "sdk"
	ModeBackendData = "backend_data"
	ModeLateInit    = "late_init"
)

// State tracks progress through a single orchestration.
type State string

const (
	StateIdle            State = "idle"
	StateMethodsFetched  State = "methods_fetched"
	StateInitialized     State = "initialized"
	StateSheetConfigured State = "sheet_configured"
	StateTokenReceived   State = "token_received"
	StateAuthorized      State = "authorized"
)

// successStates is the closed set of backend settlement states that count as
// success. Everything else is a rejection.
var successStates = map[string]bool{
	"completed":  true,
	"authorized": true,
	"captured":   true,
}

// Request starts the full SDK-mode flow.
type Request struct {
	Auth    everypay.AuthCredentials `json:"auth"`
	BaseURL string                   `json:"base_url" validate:"required"`
	Data    RequestData              `json:"data"`
}

// RequestData is the merchant's payment intent for the SDK-mode flow.
type RequestData struct {
	AccountName    string  `json:"account_name" validate:"required"`
	Amount         float64 `json:"amount" validate:"gte=0"`
	Label          string  `json:"label,omitempty"`
	CurrencyCode   string  `json:"currency_code,omitempty"`
	CountryCode    string  `json:"country_code,omitempty"`
	OrderReference string  `json:"order_reference,omitempty"`
}

// InitRequest initializes a payment with the backend, either standalone or
// as the late-init flow input.
type InitRequest struct {
	Auth    everypay.AuthCredentials `json:"auth"`
	BaseURL string                   `json:"base_url" validate:"required"`
	Data    InitRequestData          `json:"data"`
}

// InitRequestData carries the backend init fields plus the sheet fields the
// late-init flow needs before any backend contact.
type InitRequestData struct {
	AccountName    string  `json:"account_name" validate:"required"`
	Amount         float64 `json:"amount" validate:"gte=0"`
	Label          string  `json:"label,omitempty"`
	CurrencyCode   string  `json:"currency_code,omitempty"`
	CountryCode    string  `json:"country_code,omitempty"`
	OrderReference string  `json:"order_reference,omitempty"`
	CustomerURL    string  `json:"customer_url,omitempty"`
	Locale         string  `json:"locale,omitempty"`
	CustomerIP     string  `json:"customer_ip,omitempty"`
	CustomerEmail  string  `json:"customer_email,omitempty" validate:"omitempty,email"`
}

// InitResult is the backend init outcome handed back to the caller.
type InitResult struct {
	AccountName          string         `json:"account_name"`
	APIUsername          string         `json:"api_username"`
	PaymentReference     string         `json:"payment_reference"`
	OrderReference       string         `json:"order_reference"`
	MobileAccessToken    string         `json:"mobile_access_token"`
	Amount               float64        `json:"amount"`
	CurrencyCode         string         `json:"currency_code"`
	PaymentState         string         `json:"payment_state"`
	OriginalInitResponse map[string]any `json:"original_init_response,omitempty"`
}

// BackendData is the pre-fetched bundle for Backend Mode: the caller's own
// backend already performed methods discovery and init.
type BackendData struct {
	Amount             float64                   `json:"amount" validate:"gte=0"`
	MerchantIdentifier string                    `json:"merchant_identifier" validate:"required"`
	MerchantName       string                    `json:"merchant_name,omitempty"`
	CurrencyCode       string                    `json:"currency_code" validate:"required"`
	CountryCode        string                    `json:"country_code,omitempty"`
	PaymentReference   string                    `json:"payment_reference,omitempty"`
	MobileAccessToken  string                    `json:"mobile_access_token,omitempty"`
	Recurring          *applepay.RecurringConfig `json:"recurring,omitempty"`
}

// TokenOutcome is the Backend-Mode result: the captured token plus the
// passthrough references the caller needs to settle out of band.
type TokenOutcome struct {
	Success               bool                       `json:"success"`
	PaymentData           string                     `json:"payment_data"`
	TransactionIdentifier string                     `json:"transaction_identifier"`
	PaymentMethod         applepay.PaymentMethodInfo `json:"payment_method"`
	PaymentReference      string                     `json:"payment_reference,omitempty"`
	MobileAccessToken     string                     `json:"mobile_access_token,omitempty"`
}

// Result is the settled-payment success envelope. There is no failure
// variant: failure always travels the error channel.
type Result struct {
	Success          bool           `json:"success"`
	PaymentReference string         `json:"payment_reference"`
	Response         map[string]any `json:"response"`
	InitData         map[string]any `json:"init_data"`
}
