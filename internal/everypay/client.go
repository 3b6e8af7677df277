package everypay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	applePaySource     = "apple_pay"
	defaultCustomerURL = "https://example.com/mobile/callback"
	defaultLocale      = "en"
)

// Config holds client configuration.
type Config struct {
	Timeout time.Duration `envconfig:"EVERYPAY_HTTP_TIMEOUT" default:"30s"`
}

// Client performs the EveryPay REST operations: initialize a one-off payment,
// discover payment methods and authorize a captured Apple Pay token.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	observe    func(endpoint string, d time.Duration, failed bool)
}

// NewClient creates a new EveryPay API client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// WithRequestObserver installs a per-request timing callback.
func (c *Client) WithRequestObserver(fn func(endpoint string, d time.Duration, failed bool)) *Client {
	c.observe = fn
	return c
}

func (c *Client) do(req *http.Request, endpoint string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.observe != nil {
		c.observe(endpoint, time.Since(start), err != nil)
	}
	return resp, err
}

// formatAmount renders an amount the way the wire expects it: a fixed
// 2-decimal string regardless of input precision.
func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

func checkAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return fmt.Errorf("invalid amount: %v", amount)
	}
	return nil
}

// iso8601Timestamp returns the current UTC time without fractional seconds.
func iso8601Timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

// InitializePayment creates a one-off payment shell with the backend.
// A missing order reference is generated; nonce and timestamp are always
// fresh. Responses without payment_reference or mobile_access_token are a
// hard failure.
func (c *Client) InitializePayment(ctx context.Context, cfg InitConfig) (*InitResponse, error) {
	if err := checkAmount(cfg.Data.Amount); err != nil {
		return nil, err
	}

	endpoints, err := ResolveEndpoints(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	orderReference := cfg.Data.OrderReference
	if orderReference == "" {
		orderReference = "ios-payment-" + uuid.NewString()
	}

	customerURL := cfg.Data.CustomerURL
	if customerURL == "" {
		customerURL = defaultCustomerURL
	}
	locale := cfg.Data.Locale
	if locale == "" {
		locale = defaultLocale
	}

	reqBody := initRequestBody{
		APIUsername:    cfg.Auth.APIUsername,
		AccountName:    cfg.Data.AccountName,
		Amount:         formatAmount(cfg.Data.Amount),
		OrderReference: orderReference,
		Nonce:          uuid.NewString(),
		Timestamp:      iso8601Timestamp(),
		MobilePayment:  true,
		CustomerURL:    customerURL,
		Locale:         locale,
		CustomerIP:     cfg.Data.CustomerIP,
		CustomerEmail:  cfg.Data.CustomerEmail,
	}

	body, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoints.OneoffURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create init request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(cfg.Auth.APIUsername, cfg.Auth.APISecret)

	c.logger.Info("sending init request",
		"url", endpoints.OneoffURL,
		"account_name", cfg.Data.AccountName,
		"order_reference", orderReference,
	)

	resp, err := c.do(req, "oneoff")
	if err != nil {
		return nil, fmt.Errorf("init request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("init request failed",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return nil, fmt.Errorf("Init failed with HTTP status %d", resp.StatusCode)
	}

	var parsed initResponseBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode init response: %w", err)
	}

	if parsed.PaymentReference == "" || parsed.MobileAccessToken == "" {
		c.logger.Error("init response missing required fields")
		return nil, errors.New("Missing required fields in init response: payment_reference or mobile_access_token")
	}

	var original map[string]any
	_ = json.Unmarshal(respBody, &original)

	amount, err := strconv.ParseFloat(parsed.StandingAmount, 64)
	if err != nil {
		return nil, fmt.Errorf("parse standing_amount %q: %w", parsed.StandingAmount, err)
	}

	c.logger.Info("init response received", "payment_reference", parsed.PaymentReference)

	return &InitResponse{
		PaymentReference:  parsed.PaymentReference,
		MobileAccessToken: parsed.MobileAccessToken,
		AccountName:       parsed.AccountName,
		APIUsername:       parsed.APIUsername,
		OrderReference:    parsed.OrderReference,
		Amount:            amount,
		CurrencyCode:      parsed.Currency,
		PaymentState:      parsed.PaymentState,
		OriginalResponse:  original,
	}, nil
}

// GetPaymentMethods discovers the Apple Pay merchant identifier for the
// account. Absence of an apple_pay entry, or of its identifier, is a hard
// failure with distinct messages.
func (c *Client) GetPaymentMethods(ctx context.Context, cfg PaymentMethodsConfig) (*PaymentMethodsResponse, error) {
	if err := checkAmount(cfg.Amount); err != nil {
		return nil, err
	}

	endpoints, err := ResolveEndpoints(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("api_username", cfg.APIUsername)
	query.Set("amount", formatAmount(cfg.Amount))
	methodsURL := endpoints.PaymentMethodsURL + "/" + cfg.AccountName + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, methodsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create payment methods request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Info("fetching payment methods", "url", methodsURL)

	resp, err := c.do(req, "payment_methods")
	if err != nil {
		return nil, fmt.Errorf("payment methods request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("payment methods request failed",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return nil, fmt.Errorf("Payment methods request failed with HTTP status %d", resp.StatusCode)
	}

	var parsed paymentMethodsBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode payment methods response: %w", err)
	}

	for _, method := range parsed.PaymentMethods {
		if method.Source != applePaySource {
			continue
		}
		if method.IOSIdentifier == "" {
			return nil, errors.New("Apple Pay merchant identifier (ios_identifier) not found in response")
		}

		c.logger.Info("Apple Pay merchant identifier resolved", "merchant_id", method.IOSIdentifier)

		return &PaymentMethodsResponse{
			ApplePayMerchantIdentifier: method.IOSIdentifier,
			ApplePayAvailable:          method.Available,
		}, nil
	}

	return nil, errors.New("Apple Pay is not available for this account")
}

// AuthorizePayment submits a captured Apple Pay token for settlement. The
// response body is returned as-is; callers classify the state.
func (c *Client) AuthorizePayment(ctx context.Context, params AuthorizeParams) (*AuthorizeResponse, error) {
	reqBody := authorizeRequestBody{
		PaymentReference: params.PaymentReference,
		IOSApp:           true,
		PaymentData:      params.PaymentData,
	}

	body, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, params.AuthorizeURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create authorize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+params.AccessToken)

	c.logger.Info("sending authorization request",
		"url", params.AuthorizeURL,
		"payment_reference", params.PaymentReference,
	)

	resp, err := c.do(req, "payment_data")
	if err != nil {
		return nil, fmt.Errorf("authorize request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("authorization request failed",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return nil, fmt.Errorf("Authorization failed with HTTP status %d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("decode authorize response: %w", err)
	}

	state, _ := raw["state"].(string)

	c.logger.Info("authorization response received", "state", state)

	return &AuthorizeResponse{State: state, Raw: raw}, nil
}
