package everypay

// AuthCredentials authenticate Basic-auth calls against the merchant backend.
// They are used per request and never persisted.
type AuthCredentials struct {
	APIUsername string `json:"api_username" validate:"required"`
	APISecret   string `json:"api_secret" validate:"required"`
}

// InitConfig is the input for InitializePayment.
type InitConfig struct {
	BaseURL string
	Auth    AuthCredentials
	Data    InitData
}

// InitData is the merchant-supplied payment intent prior to backend contact.
type InitData struct {
	AccountName    string
	Amount         float64
	OrderReference string
	CustomerURL    string
	Locale         string
	CustomerIP     string
	CustomerEmail  string
}

// initRequestBody is the oneoff wire request.
type initRequestBody struct {
	APIUsername    string `json:"api_username"`
	AccountName    string `json:"account_name"`
	Amount         string `json:"amount"`
	OrderReference string `json:"order_reference"`
	Nonce          string `json:"nonce"`
	Timestamp      string `json:"timestamp"`
	MobilePayment  bool   `json:"mobile_payment"`
	CustomerURL    string `json:"customer_url"`
	Locale         string `json:"locale"`
	CustomerIP     string `json:"customer_ip"`
	CustomerEmail  string `json:"customer_email,omitempty"`
}

// initResponseBody is the oneoff wire response.
type initResponseBody struct {
	PaymentReference  string `json:"payment_reference"`
	MobileAccessToken string `json:"mobile_access_token"`
	AccountName       string `json:"account_name"`
	APIUsername       string `json:"api_username"`
	OrderReference    string `json:"order_reference"`
	StandingAmount    string `json:"standing_amount"`
	Currency          string `json:"currency"`
	PaymentState      string `json:"payment_state"`
}

// InitResponse is the backend-confirmed payment shell. OriginalResponse keeps
// the raw backend body for diagnostics and Backend-Mode callers.
type InitResponse struct {
	PaymentReference  string
	MobileAccessToken string
	AccountName       string
	APIUsername       string
	OrderReference    string
	Amount            float64
	CurrencyCode      string
	PaymentState      string
	OriginalResponse  map[string]any
}

// PaymentMethodsConfig is the input for GetPaymentMethods.
type PaymentMethodsConfig struct {
	BaseURL     string
	APIUsername string
	AccountName string
	Amount      float64
}

type paymentMethodEntry struct {
	Source        string `json:"source"`
	IOSIdentifier string `json:"ios_identifier"`
	Available     bool   `json:"available"`
}

type paymentMethodsBody struct {
	PaymentMethods []paymentMethodEntry `json:"payment_methods"`
}

// PaymentMethodsResponse carries the Apple Pay merchant identifier discovered
// for the account.
type PaymentMethodsResponse struct {
	ApplePayMerchantIdentifier string
	ApplePayAvailable          bool
}

// AuthorizeParams is the input for AuthorizePayment. AccessToken is the
// mobile access token issued by InitializePayment.
type AuthorizeParams struct {
	AuthorizeURL     string
	AccessToken      string
	PaymentReference string
	PaymentData      map[string]any
}

type authorizeRequestBody struct {
	PaymentReference string         `json:"payment_reference"`
	IOSApp           bool           `json:"ios_app"`
	PaymentData      map[string]any `json:"paymentData"`
}

// AuthorizeResponse is the settlement outcome as reported by the backend.
// State classification is the orchestrator's job, not the client's.
type AuthorizeResponse struct {
	State string
	Raw   map[string]any
}
