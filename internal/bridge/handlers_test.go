package bridge_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/applepay"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/bridge"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/common/database"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/everypay"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/payment"
)

type testEnv struct {
	router  chi.Router
	sheet   *applepay.MockSheet
	backend *httptest.Server

	authorizeState string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{authorizeState: "completed"}

	env.backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v4/sdk/payment_methods/"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"payment_methods": []map[string]any{
					{"source": "apple_pay", "ios_identifier": "merchant.com.test", "available": true},
				},
			})
		case r.URL.Path == "/api/v4/payments/oneoff":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"payment_reference":   "pr-test",
				"mobile_access_token": "tok-test",
				"standing_amount":     "25.00",
				"currency":            "EUR",
				"payment_state":       "initial",
			})
		case r.URL.Path == "/api/v4/apple_pay/payment_data":
			_ = json.NewEncoder(w).Encode(map[string]any{"state": env.authorizeState})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(env.backend.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.sheet = applepay.NewMockSheet()
	_, err := env.sheet.SetMockPaymentsEnabled(context.Background(), true)
	require.NoError(t, err)

	client := everypay.NewClient(everypay.Config{Timeout: 5 * time.Second}, logger)
	orchestrator := payment.NewOrchestrator(client, env.sheet, logger)

	env.router = chi.NewRouter()
	env.router.Mount("/", bridge.NewHandler(orchestrator, nil, logger).Routes())
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) paymentRequest() map[string]any {
	return map[string]any{
		"auth":     map[string]string{"api_username": "user1", "api_secret": "secret1"},
		"base_url": env.backend.URL,
		"data":     map[string]any{"account_name": "EUR3D1", "amount": 25},
	}
}

func TestCapabilitiesEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/capabilities", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data bridge.CapabilitiesResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Data.CanMakePayments)
	require.True(t, resp.Data.CanRequestRecurringToken)
}

func TestStartPaymentEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/payments", env.paymentRequest())
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data payment.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Data.Success)
	require.Equal(t, "pr-test", resp.Data.PaymentReference)
}

func TestStartPaymentEndpoint_ValidationError(t *testing.T) {
	env := newTestEnv(t)

	// Missing base_url and account_name.
	w := env.do(t, http.MethodPost, "/payments", map[string]any{
		"auth": map[string]string{"api_username": "u", "api_secret": "s"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestStartPaymentEndpoint_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	env.sheet.CancelNext = true

	w := env.do(t, http.MethodPost, "/payments", env.paymentRequest())
	require.Equal(t, http.StatusConflict, w.Code)

	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "cancelled", resp.Error.Code)
}

func TestStartPaymentEndpoint_BackendRejected(t *testing.T) {
	env := newTestEnv(t)
	env.authorizeState = "failed"

	w := env.do(t, http.MethodPost, "/payments", env.paymentRequest())
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "backend_rejected", resp.Error.Code)
}

func TestInitEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/init", env.paymentRequest())
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data payment.InitResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "pr-test", resp.Data.PaymentReference)
	require.Equal(t, "tok-test", resp.Data.MobileAccessToken)
}

func TestLateInitEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/payments/late-init", env.paymentRequest())
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data payment.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Data.Success)
}

func TestBackendDataPaymentsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/backend-data/payments", map[string]any{
		"amount":              10,
		"merchant_identifier": "merchant.com.test",
		"currency_code":       "EUR",
		"payment_reference":   "pr-backend",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data payment.TokenOutcome `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Data.Success)
	require.NotEmpty(t, resp.Data.PaymentData)
	require.Equal(t, "pr-backend", resp.Data.PaymentReference)
}

func TestTokensEndpoint_RequiresRecurring(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/backend-data/tokens", map[string]any{
		"amount":              0,
		"merchant_identifier": "merchant.com.test",
		"currency_code":       "EUR",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "invalid_config", resp.Error.Code)
}

func TestMockPaymentsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/mock-payments", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)

	ok, err := env.sheet.CanMakePayments(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAttemptsEndpoint_DisabledWithoutStore(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/attempts/pr-test", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

type stubStore struct {
	attempts map[string]*payment.Attempt
}

func (s *stubStore) RecordAttempt(_ context.Context, attempt *payment.Attempt) error {
	s.attempts[attempt.PaymentReference] = attempt
	return nil
}

func (s *stubStore) GetByReference(_ context.Context, ref string) (*payment.Attempt, error) {
	attempt, ok := s.attempts[ref]
	if !ok {
		return nil, fmt.Errorf("attempt not found %s: %w", ref, database.ErrNotFound)
	}
	return attempt, nil
}

func TestAttemptsEndpoint_WithStore(t *testing.T) {
	env := newTestEnv(t)
	store := &stubStore{attempts: map[string]*payment.Attempt{
		"pr-known": {ID: "01J0000000000000000000TEST", PaymentReference: "pr-known", Outcome: "success"},
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := everypay.NewClient(everypay.Config{Timeout: 5 * time.Second}, logger)
	orchestrator := payment.NewOrchestrator(client, env.sheet, logger)
	env.router = chi.NewRouter()
	env.router.Mount("/", bridge.NewHandler(orchestrator, store, logger).Routes())

	w := env.do(t, http.MethodGet, "/attempts/pr-known", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data payment.Attempt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "success", resp.Data.Outcome)

	// A missing reference is a lookup miss, not a server failure.
	w = env.do(t, http.MethodGet, "/attempts/pr-missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
