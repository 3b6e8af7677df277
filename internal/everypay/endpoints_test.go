package everypay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveEndpoints(t *testing.T) {
	endpoints, err := ResolveEndpoints("https://pay.example.com")
	require.NoError(t, err)

	require.Equal(t, "https://pay.example.com/api/v4/payments/oneoff", endpoints.OneoffURL)
	require.Equal(t, "https://pay.example.com/api/v4/sdk/payment_methods", endpoints.PaymentMethodsURL)
	require.Equal(t, "https://pay.example.com/api/v4/apple_pay/payment_data", endpoints.AuthorizeURL)
	require.Equal(t, "https://pay.example.com/api/v4/apple_pay/payment_session", endpoints.SessionURL)
	require.Equal(t, "https://pay.example.com/api/v4/apple_pay/link_data", endpoints.DetailURL)
}

func TestResolveEndpoints_TrailingSlash(t *testing.T) {
	endpoints, err := ResolveEndpoints("https://pay.example.com/")
	require.NoError(t, err)
	require.Equal(t, "https://pay.example.com/api/v4/payments/oneoff", endpoints.OneoffURL)

	endpoints, err = ResolveEndpoints("https://pay.example.com///")
	require.NoError(t, err)
	require.Equal(t, "https://pay.example.com/api/v4/payments/oneoff", endpoints.OneoffURL)
}

func TestResolveEndpoints_EmptyBaseURL(t *testing.T) {
	_, err := ResolveEndpoints("")
	require.ErrorIs(t, err, ErrPaymentLinkRequired)
	require.EqualError(t, err, "Payment link is required")
}
