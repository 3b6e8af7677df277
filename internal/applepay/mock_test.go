package applepay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func enabledSheet(t *testing.T) *MockSheet {
	t.Helper()
	sheet := NewMockSheet()
	res, err := sheet.SetMockPaymentsEnabled(context.Background(), true)
	require.NoError(t, err)
	require.True(t, res.Success)
	return sheet
}

func TestMockSheet_DisabledByDefault(t *testing.T) {
	sheet := NewMockSheet()

	ok, err := sheet.CanMakePayments(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	_, err = sheet.Present(context.Background())
	var sheetErr *SheetError
	require.ErrorAs(t, err, &sheetErr)
	require.Equal(t, "mock_disabled", sheetErr.Code)
}

func TestMockSheet_PresentWithoutConfigure(t *testing.T) {
	sheet := enabledSheet(t)

	_, err := sheet.Present(context.Background())
	var sheetErr *SheetError
	require.ErrorAs(t, err, &sheetErr)
	require.Equal(t, "not_configured", sheetErr.Code)
}

func TestMockSheet_ConfigureRequiresMerchantIdentifier(t *testing.T) {
	sheet := enabledSheet(t)

	err := sheet.Configure(context.Background(), ConfigureRequest{Amount: 10})
	var sheetErr *SheetError
	require.ErrorAs(t, err, &sheetErr)
	require.Equal(t, "configure_failed", sheetErr.Code)
}

func TestMockSheet_PresentReturnsDecodableToken(t *testing.T) {
	sheet := enabledSheet(t)

	require.NoError(t, sheet.Configure(context.Background(), ConfigureRequest{
		Amount:             12.5,
		MerchantIdentifier: "merchant.com.example",
		MerchantName:       "Example Shop",
		CurrencyCode:       "EUR",
		CountryCode:        "EE",
	}))

	token, err := sheet.Present(context.Background())
	require.NoError(t, err)
	require.True(t, token.Success)
	require.NotEmpty(t, token.TransactionIdentifier)
	require.Equal(t, "Mock Card 1234", token.PaymentMethod.DisplayName)

	raw, err := base64.StdEncoding.DecodeString(token.PaymentData)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Equal(t, "EC_v1", payload["version"])
	require.Equal(t, 12.5, payload["amount"])
	require.Equal(t, "EUR", payload["currency"])
}

func TestMockSheet_CancelNext(t *testing.T) {
	sheet := enabledSheet(t)
	require.NoError(t, sheet.Configure(context.Background(), ConfigureRequest{
		MerchantIdentifier: "merchant.com.example",
	}))

	sheet.CancelNext = true
	_, err := sheet.Present(context.Background())

	var sheetErr *SheetError
	require.ErrorAs(t, err, &sheetErr)
	require.Equal(t, CodeCancelled, sheetErr.Code)

	// Cancellation is one-shot.
	_, err = sheet.Present(context.Background())
	require.NoError(t, err)
}

func TestMockSheet_FailNext(t *testing.T) {
	sheet := enabledSheet(t)
	require.NoError(t, sheet.Configure(context.Background(), ConfigureRequest{
		MerchantIdentifier: "merchant.com.example",
	}))

	sheet.FailNext = &SheetError{Code: "sheet_error", Message: "boom"}
	_, err := sheet.Present(context.Background())

	var sheetErr *SheetError
	require.ErrorAs(t, err, &sheetErr)
	require.Equal(t, "sheet_error", sheetErr.Code)
	require.EqualError(t, err, "boom")
}
