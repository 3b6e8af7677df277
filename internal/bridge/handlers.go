// Package bridge exposes the payment orchestration over HTTP for the host
// application.
package bridge

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/common/api"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/common/database"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/payment"
)

// Handler handles Apple Pay bridge HTTP requests
type Handler struct {
	orchestrator *payment.Orchestrator
	store        payment.AttemptStore
	logger       *slog.Logger
}

// NewHandler creates a new bridge handler. The store may be nil when attempt
// auditing is disabled.
func NewHandler(orchestrator *payment.Orchestrator, store payment.AttemptStore, logger *slog.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		store:        store,
		logger:       logger,
	}
}

// Routes returns the bridge routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/capabilities", h.GetCapabilities)
	r.Post("/init", h.InitPayment)
	r.Post("/payments", h.StartPayment)
	r.Post("/payments/late-init", h.StartPaymentLateInit)
	r.Post("/backend-data/payments", h.StartPaymentWithBackendData)
	r.Post("/backend-data/tokens", h.RequestToken)
	r.Put("/mock-payments", h.SetMockPayments)
	r.Get("/attempts/{reference}", h.GetAttempt)

	return r
}

// CapabilitiesResponse reports device-side payment capabilities
type CapabilitiesResponse struct {
	CanMakePayments          bool `json:"can_make_payments"`
	CanRequestRecurringToken bool `json:"can_request_recurring_token"`
}

// GetCapabilities handles GET /capabilities
func (h *Handler) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	canPay, err := h.orchestrator.CanMakePayments(r.Context())
	if err != nil {
		api.InternalError(w, err.Error())
		return
	}

	api.WriteData(w, http.StatusOK, CapabilitiesResponse{
		CanMakePayments:          canPay,
		CanRequestRecurringToken: h.orchestrator.CanRequestRecurringToken(r.Context()),
	})
}

// InitPayment handles POST /init
func (h *Handler) InitPayment(w http.ResponseWriter, r *http.Request) {
	var req payment.InitRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	res, err := h.orchestrator.Init(r.Context(), &req)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, res)
}

// StartPayment handles POST /payments
func (h *Handler) StartPayment(w http.ResponseWriter, r *http.Request) {
	var req payment.Request
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	res, err := h.orchestrator.Start(r.Context(), &req)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, res)
}

// StartPaymentLateInit handles POST /payments/late-init
func (h *Handler) StartPaymentLateInit(w http.ResponseWriter, r *http.Request) {
	var req payment.InitRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	res, err := h.orchestrator.StartWithLateInit(r.Context(), &req)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, res)
}

// StartPaymentWithBackendData handles POST /backend-data/payments
func (h *Handler) StartPaymentWithBackendData(w http.ResponseWriter, r *http.Request) {
	var req payment.BackendData
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	res, err := h.orchestrator.StartWithBackendData(r.Context(), &req)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, res)
}

// RequestToken handles POST /backend-data/tokens
func (h *Handler) RequestToken(w http.ResponseWriter, r *http.Request) {
	var req payment.BackendData
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	res, err := h.orchestrator.RequestToken(r.Context(), &req)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, res)
}

// MockPaymentsRequest toggles mock payments
type MockPaymentsRequest struct {
	Enabled bool `json:"enabled"`
}

// MockPaymentsResponse reports the applied mock payments state
type MockPaymentsResponse struct {
	Enabled bool `json:"enabled"`
}

// SetMockPayments handles PUT /mock-payments
func (h *Handler) SetMockPayments(w http.ResponseWriter, r *http.Request) {
	var req MockPaymentsRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	applied := h.orchestrator.SetMockPaymentsEnabled(r.Context(), req.Enabled)
	api.WriteData(w, http.StatusOK, MockPaymentsResponse{Enabled: applied && req.Enabled})
}

// GetAttempt handles GET /attempts/{reference}
func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		api.NotFound(w, "attempt auditing is not enabled")
		return
	}

	reference := chi.URLParam(r, "reference")
	if reference == "" {
		api.BadRequest(w, "payment reference required")
		return
	}

	attempt, err := h.store.GetByReference(r.Context(), reference)
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "attempt not found")
			return
		}
		api.InternalError(w, "failed to get attempt")
		return
	}

	api.WriteData(w, http.StatusOK, attempt)
}

// writePaymentError maps coded payment errors onto HTTP statuses. Uncoded
// errors are internal.
func (h *Handler) writePaymentError(w http.ResponseWriter, err error) {
	pe, ok := payment.AsError(err)
	if !ok {
		api.InternalError(w, err.Error())
		return
	}

	status := http.StatusInternalServerError
	code := api.ErrCodeInternalError
	switch pe.Code {
	case payment.CodeInvalidConfig:
		status = http.StatusBadRequest
		code = string(pe.Code)
	case payment.CodeCancelled:
		status = http.StatusConflict
		code = string(pe.Code)
	case payment.CodeBackendRejected:
		status = http.StatusPaymentRequired
		code = string(pe.Code)
	case payment.CodeInitFailed, payment.CodeAuthorizationFailed:
		status = http.StatusBadGateway
		code = string(pe.Code)
	}

	api.WriteError(w, status, code, pe.Message)
}
