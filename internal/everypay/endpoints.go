// Package everypay is the HTTP client for the EveryPay merchant-processing API.
package everypay

import (
	"errors"
	"strings"
)

// Fixed API paths appended to the merchant base URL.
const (
	oneoffPath         = "/api/v4/payments/oneoff"
	paymentMethodsPath = "/api/v4/sdk/payment_methods"
	authorizePath      = "/api/v4/apple_pay/payment_data"
	paymentSessionPath = "/api/v4/apple_pay/payment_session"
	paymentDetailPath  = "/api/v4/apple_pay/link_data"
)

// ErrPaymentLinkRequired is returned when the merchant base URL is empty.
var ErrPaymentLinkRequired = errors.New("Payment link is required")

// Endpoints holds the resolved API endpoint URLs for one merchant backend.
type Endpoints struct {
	OneoffURL         string
	PaymentMethodsURL string
	AuthorizeURL      string
	SessionURL        string
	DetailURL         string
}

// ResolveEndpoints builds the full endpoint set from a merchant base URL.
// Reachability is not checked.
func ResolveEndpoints(baseURL string) (Endpoints, error) {
	if baseURL == "" {
		return Endpoints{}, ErrPaymentLinkRequired
	}

	base := strings.TrimRight(baseURL, "/")

	return Endpoints{
		OneoffURL:         base + oneoffPath,
		PaymentMethodsURL: base + paymentMethodsPath,
		AuthorizeURL:      base + authorizePath,
		SessionURL:        base + paymentSessionPath,
		DetailURL:         base + paymentDetailPath,
	}, nil
}
