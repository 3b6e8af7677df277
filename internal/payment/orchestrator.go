package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/applepay"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/common/events"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/everypay"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/metrics"
)

const defaultCountryCode = "EE"

// Orchestrator drives a payment from intent to settlement: backend init,
// sheet presentation, token capture and authorization. It holds no
// per-payment state between calls; every flow runs start to finish inside
// one method.
type Orchestrator struct {
	client    *everypay.Client
	sheet     applepay.Sheet
	publisher events.Publisher
	store     AttemptStore
	metrics   metrics.PaymentMetrics
	logger    *slog.Logger
}

// NewOrchestrator creates an orchestrator over the given backend client and
// payment sheet.
func NewOrchestrator(client *everypay.Client, sheet applepay.Sheet, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		client:  client,
		sheet:   sheet,
		metrics: metrics.Nop(),
		logger:  logger,
	}
}

// WithPublisher attaches an event publisher. Publish failures are logged,
// never surfaced to the payment caller.
func (o *Orchestrator) WithPublisher(p events.Publisher) *Orchestrator {
	o.publisher = p
	return o
}

// WithStore attaches an attempt audit store.
func (o *Orchestrator) WithStore(s AttemptStore) *Orchestrator {
	o.store = s
	return o
}

// WithMetrics attaches payment metrics.
func (o *Orchestrator) WithMetrics(m metrics.PaymentMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// Start runs the full SDK-mode flow: methods discovery, backend init, sheet
// configuration and presentation, then token authorization. The returned
// error is always coded; cancellation carries CodeCancelled.
func (o *Orchestrator) Start(ctx context.Context, req *Request) (*Result, error) {
	started := time.Now()
	o.metrics.IncPaymentStarted(ModeSDK)

	res, info, err := o.runSDK(ctx, req)
	o.finish(ctx, ModeSDK, info, started, err)
	if err != nil {
		return nil, o.asPaymentError(err)
	}
	return res, nil
}

func (o *Orchestrator) runSDK(ctx context.Context, req *Request) (*Result, *Attempt, error) {
	info := &Attempt{
		Mode:        ModeSDK,
		AccountName: req.Data.AccountName,
		Amount:      req.Data.Amount,
	}
	state := StateIdle

	methods, err := o.client.GetPaymentMethods(ctx, everypay.PaymentMethodsConfig{
		BaseURL:     req.BaseURL,
		APIUsername: req.Auth.APIUsername,
		AccountName: req.Data.AccountName,
		Amount:      req.Data.Amount,
	})
	if err != nil {
		return nil, info, NewError(CodeInitFailed, err.Error(), err)
	}
	state = o.transition(state, StateMethodsFetched, "")

	init, err := o.client.InitializePayment(ctx, everypay.InitConfig{
		BaseURL: req.BaseURL,
		Auth:    req.Auth,
		Data: everypay.InitData{
			AccountName:    req.Data.AccountName,
			Amount:         req.Data.Amount,
			OrderReference: req.Data.OrderReference,
		},
	})
	if err != nil {
		return nil, info, NewError(CodeInitFailed, err.Error(), err)
	}
	info.PaymentReference = init.PaymentReference
	info.OrderReference = init.OrderReference
	info.Currency = init.CurrencyCode
	state = o.transition(state, StateInitialized, init.PaymentReference)

	// The backend-confirmed amount and currency drive the sheet, not the
	// caller's original intent.
	if err := o.sheet.Configure(ctx, applepay.ConfigureRequest{
		Amount:             init.Amount,
		MerchantIdentifier: methods.ApplePayMerchantIdentifier,
		MerchantName:       merchantName(req.Data.Label, req.Data.AccountName),
		CurrencyCode:       init.CurrencyCode,
		CountryCode:        countryCode(req.Data.CountryCode),
	}); err != nil {
		return nil, info, fromSheetError(err)
	}
	state = o.transition(state, StateSheetConfigured, init.PaymentReference)

	token, err := o.sheet.Present(ctx)
	if err != nil {
		return nil, info, fromSheetError(err)
	}
	state = o.transition(state, StateTokenReceived, init.PaymentReference)

	auth, err := o.authorize(ctx, req.BaseURL, init, token)
	if err != nil {
		return nil, info, err
	}
	state = o.transition(state, StateAuthorized, init.PaymentReference)
	info.State = auth.State

	if !successStates[auth.State] {
		return nil, info, NewError(CodeBackendRejected,
			fmt.Sprintf("Payment rejected by backend (state: %s)", auth.State), nil)
	}

	return &Result{
		Success:          true,
		PaymentReference: init.PaymentReference,
		Response:         auth.Raw,
		InitData:         init.OriginalResponse,
	}, info, nil
}

// authorize decodes the sheet token and submits it for settlement.
func (o *Orchestrator) authorize(ctx context.Context, baseURL string, init *everypay.InitResponse, token *applepay.TokenResult) (*everypay.AuthorizeResponse, error) {
	paymentData, err := decodePaymentData(token.PaymentData)
	if err != nil {
		return nil, NewError(CodeAuthorizationFailed, "Failed to decode payment token", err)
	}

	endpoints, err := everypay.ResolveEndpoints(baseURL)
	if err != nil {
		return nil, NewError(CodeInvalidConfig, err.Error(), err)
	}

	auth, err := o.client.AuthorizePayment(ctx, everypay.AuthorizeParams{
		AuthorizeURL:     endpoints.AuthorizeURL,
		AccessToken:      init.MobileAccessToken,
		PaymentReference: init.PaymentReference,
		PaymentData:      paymentData,
	})
	if err != nil {
		return nil, NewError(CodeAuthorizationFailed, err.Error(), err)
	}
	return auth, nil
}

// Init performs a standalone backend init without touching the sheet.
func (o *Orchestrator) Init(ctx context.Context, req *InitRequest) (*InitResult, error) {
	resp, err := o.client.InitializePayment(ctx, everypay.InitConfig{
		BaseURL: req.BaseURL,
		Auth:    req.Auth,
		Data: everypay.InitData{
			AccountName:    req.Data.AccountName,
			Amount:         req.Data.Amount,
			OrderReference: req.Data.OrderReference,
			CustomerURL:    req.Data.CustomerURL,
			Locale:         req.Data.Locale,
			CustomerIP:     req.Data.CustomerIP,
			CustomerEmail:  req.Data.CustomerEmail,
		},
	})
	if err != nil {
		if pe, ok := AsError(err); ok {
			return nil, pe
		}
		return nil, NewError(CodeInitFailed,
			fmt.Sprintf("Payment initialization failed: %s", err), err)
	}

	return &InitResult{
		AccountName:          resp.AccountName,
		APIUsername:          resp.APIUsername,
		PaymentReference:     resp.PaymentReference,
		OrderReference:       resp.OrderReference,
		MobileAccessToken:    resp.MobileAccessToken,
		Amount:               resp.Amount,
		CurrencyCode:         resp.CurrencyCode,
		PaymentState:         resp.PaymentState,
		OriginalInitResponse: resp.OriginalResponse,
	}, nil
}

// StartWithBackendData runs Backend Mode: the caller's backend already did
// init, so the flow only presents the sheet and hands the raw token back for
// out-of-band settlement. No authorize call is made here.
func (o *Orchestrator) StartWithBackendData(ctx context.Context, data *BackendData) (*TokenOutcome, error) {
	started := time.Now()
	o.metrics.IncPaymentStarted(ModeBackendData)

	info := &Attempt{
		Mode:             ModeBackendData,
		PaymentReference: data.PaymentReference,
		Amount:           data.Amount,
		Currency:         data.CurrencyCode,
	}

	out, err := o.presentBackendData(ctx, data)
	o.finish(ctx, ModeBackendData, info, started, err)
	if err != nil {
		return nil, o.asPaymentError(err)
	}

	o.publishToken(ctx, data.PaymentReference, out.TransactionIdentifier)
	return out, nil
}

func (o *Orchestrator) presentBackendData(ctx context.Context, data *BackendData) (*TokenOutcome, error) {
	if err := o.sheet.Configure(ctx, applepay.ConfigureRequest{
		Amount:             data.Amount,
		MerchantIdentifier: data.MerchantIdentifier,
		MerchantName:       data.MerchantName,
		CurrencyCode:       data.CurrencyCode,
		CountryCode:        countryCode(data.CountryCode),
		Recurring:          data.Recurring,
	}); err != nil {
		return nil, fromSheetError(err)
	}

	token, err := o.sheet.Present(ctx)
	if err != nil {
		return nil, fromSheetError(err)
	}

	return &TokenOutcome{
		Success:               token.Success,
		PaymentData:           token.PaymentData,
		TransactionIdentifier: token.TransactionIdentifier,
		PaymentMethod:         token.PaymentMethod,
		PaymentReference:      data.PaymentReference,
		MobileAccessToken:     data.MobileAccessToken,
	}, nil
}

// RequestToken runs Backend Mode with a mandatory recurring configuration,
// yielding a merchant token for later charges.
func (o *Orchestrator) RequestToken(ctx context.Context, data *BackendData) (*TokenOutcome, error) {
	if data.Recurring == nil {
		return nil, NewError(CodeInvalidConfig,
			"Recurring configuration is required for token request", nil)
	}
	return o.StartWithBackendData(ctx, data)
}

// StartWithLateInit presents the sheet before any backend payment exists,
// then performs init and authorization after the user has approved. Methods
// discovery still runs first since the sheet needs the merchant identifier.
func (o *Orchestrator) StartWithLateInit(ctx context.Context, req *InitRequest) (*Result, error) {
	started := time.Now()
	o.metrics.IncPaymentStarted(ModeLateInit)

	res, info, err := o.runLateInit(ctx, req)
	o.finish(ctx, ModeLateInit, info, started, err)
	if err != nil {
		return nil, o.asPaymentError(err)
	}
	return res, nil
}

func (o *Orchestrator) runLateInit(ctx context.Context, req *InitRequest) (*Result, *Attempt, error) {
	info := &Attempt{
		Mode:        ModeLateInit,
		AccountName: req.Data.AccountName,
		Amount:      req.Data.Amount,
		Currency:    req.Data.CurrencyCode,
	}
	state := StateIdle

	methods, err := o.client.GetPaymentMethods(ctx, everypay.PaymentMethodsConfig{
		BaseURL:     req.BaseURL,
		APIUsername: req.Auth.APIUsername,
		AccountName: req.Data.AccountName,
		Amount:      req.Data.Amount,
	})
	if err != nil {
		return nil, info, NewError(CodeInitFailed, err.Error(), err)
	}
	state = o.transition(state, StateMethodsFetched, "")

	currency := req.Data.CurrencyCode
	if currency == "" {
		currency = "EUR"
	}
	if err := o.sheet.Configure(ctx, applepay.ConfigureRequest{
		Amount:             req.Data.Amount,
		MerchantIdentifier: methods.ApplePayMerchantIdentifier,
		MerchantName:       merchantName(req.Data.Label, req.Data.AccountName),
		CurrencyCode:       currency,
		CountryCode:        countryCode(req.Data.CountryCode),
	}); err != nil {
		return nil, info, fromSheetError(err)
	}
	state = o.transition(state, StateSheetConfigured, "")

	token, err := o.sheet.Present(ctx)
	if err != nil {
		return nil, info, fromSheetError(err)
	}
	state = o.transition(state, StateTokenReceived, "")

	// Init happens only now, with a token already in hand. A failure here
	// is still an init failure even though the user approved.
	init, err := o.client.InitializePayment(ctx, everypay.InitConfig{
		BaseURL: req.BaseURL,
		Auth:    req.Auth,
		Data: everypay.InitData{
			AccountName:    req.Data.AccountName,
			Amount:         req.Data.Amount,
			OrderReference: req.Data.OrderReference,
			CustomerURL:    req.Data.CustomerURL,
			Locale:         req.Data.Locale,
			CustomerIP:     req.Data.CustomerIP,
			CustomerEmail:  req.Data.CustomerEmail,
		},
	})
	if err != nil {
		return nil, info, NewError(CodeInitFailed, err.Error(), err)
	}
	info.PaymentReference = init.PaymentReference
	info.OrderReference = init.OrderReference
	info.Currency = init.CurrencyCode
	state = o.transition(state, StateInitialized, init.PaymentReference)

	auth, err := o.authorize(ctx, req.BaseURL, init, token)
	if err != nil {
		return nil, info, err
	}
	state = o.transition(state, StateAuthorized, init.PaymentReference)
	info.State = auth.State

	if !successStates[auth.State] {
		return nil, info, NewError(CodeBackendRejected,
			fmt.Sprintf("Payment rejected by backend (state: %s)", auth.State), nil)
	}

	return &Result{
		Success:          true,
		PaymentReference: init.PaymentReference,
		Response:         auth.Raw,
		InitData:         init.OriginalResponse,
	}, info, nil
}

// CanMakePayments reports whether the device can present the payment sheet.
func (o *Orchestrator) CanMakePayments(ctx context.Context) (bool, error) {
	ok, err := o.sheet.CanMakePayments(ctx)
	if err != nil {
		return false, fmt.Errorf("Failed to check payment availability: %w", err)
	}
	return ok, nil
}

// CanRequestRecurringToken reports recurring token support. Probe errors
// degrade to false.
func (o *Orchestrator) CanRequestRecurringToken(ctx context.Context) bool {
	ok, err := o.sheet.CanRequestRecurringToken(ctx)
	if err != nil {
		o.logger.Warn("recurring token capability check failed", "error", err)
		return false
	}
	return ok
}

// SetMockPaymentsEnabled toggles mock payments on the sheet.
func (o *Orchestrator) SetMockPaymentsEnabled(ctx context.Context, enabled bool) bool {
	res, err := o.sheet.SetMockPaymentsEnabled(ctx, enabled)
	if err != nil {
		o.logger.Warn("failed to toggle mock payments", "error", err)
		return false
	}
	return res.Success
}

func (o *Orchestrator) transition(from, to State, paymentReference string) State {
	o.logger.Debug("payment state transition",
		"from", string(from),
		"to", string(to),
		"payment_reference", paymentReference,
	)
	return to
}

// asPaymentError guarantees every surfaced error is coded. Anything that
// escaped phase classification becomes a generic wrapped failure.
func (o *Orchestrator) asPaymentError(err error) error {
	if _, ok := AsError(err); ok {
		return err
	}
	return fmt.Errorf("Apple Pay payment failed: %w", err)
}

// fromSheetError converts a sheet rejection into a coded payment error,
// preserving the cancellation code.
func fromSheetError(err error) error {
	var se *applepay.SheetError
	if errors.As(err, &se) {
		return NewError(Code(se.Code), se.Message, err)
	}
	return NewError(CodeAuthorizationFailed, err.Error(), err)
}

// decodePaymentData unwraps the base64 JSON payload the sheet hands back.
func decodePaymentData(encoded string) (map[string]any, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode payment data: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse payment data: %w", err)
	}
	return payload, nil
}

func merchantName(label, accountName string) string {
	if label != "" {
		return label
	}
	return accountName
}

func countryCode(code string) string {
	if code != "" {
		return code
	}
	return defaultCountryCode
}

// finish settles the bookkeeping for one orchestration: outcome metrics,
// the attempt audit record and the lifecycle event.
func (o *Orchestrator) finish(ctx context.Context, mode string, info *Attempt, started time.Time, err error) {
	outcome := outcomeFor(err)
	o.metrics.IncPaymentOutcome(mode, outcome)
	o.metrics.ObservePaymentDuration(mode, time.Since(started))

	if info != nil {
		o.recordAttempt(ctx, info, started, outcome, err)
	}
	o.publishOutcome(ctx, mode, info, err)
}

func outcomeFor(err error) string {
	if err == nil {
		return "success"
	}
	if pe, ok := AsError(err); ok {
		switch pe.Code {
		case CodeCancelled:
			return "cancelled"
		case CodeBackendRejected:
			return "rejected"
		}
	}
	return "failed"
}

func (o *Orchestrator) recordAttempt(ctx context.Context, info *Attempt, started time.Time, outcome string, err error) {
	if o.store == nil {
		return
	}
	rec := *info
	rec.Outcome = outcome
	rec.StartedAt = started
	rec.CompletedAt = time.Now()
	if pe, ok := AsError(err); ok {
		rec.ErrorCode = string(pe.Code)
		rec.ErrorMessage = pe.Message
	} else if err != nil {
		rec.ErrorMessage = err.Error()
	}
	if storeErr := o.store.RecordAttempt(ctx, &rec); storeErr != nil {
		o.logger.Warn("failed to record payment attempt", "error", storeErr)
	}
}

func (o *Orchestrator) publishOutcome(ctx context.Context, mode string, info *Attempt, err error) {
	if o.publisher == nil || info == nil {
		return
	}
	// Backend Mode settles out of band; the token event is its terminal
	// signal, not payment.succeeded.
	if err == nil && mode == ModeBackendData {
		return
	}

	var env *events.Envelope
	var buildErr error
	switch {
	case err == nil:
		env, buildErr = events.NewEnvelope(events.KindPaymentSucceeded, info.PaymentReference, events.PaymentSucceededData{
			PaymentReference: info.PaymentReference,
			OrderReference:   info.OrderReference,
			Amount:           info.Amount,
			Currency:         info.Currency,
			Mode:             mode,
			State:            info.State,
		})
	default:
		kind := events.KindPaymentFailed
		data := events.PaymentFailedData{
			PaymentReference: info.PaymentReference,
			Message:          err.Error(),
			Mode:             mode,
		}
		if pe, ok := AsError(err); ok {
			data.Code = string(pe.Code)
			if pe.Code == CodeCancelled {
				kind = events.KindPaymentCancelled
			}
		}
		env, buildErr = events.NewEnvelope(kind, info.PaymentReference, data)
	}
	if buildErr != nil {
		o.logger.Warn("failed to build payment event", "error", buildErr)
		return
	}
	if pubErr := o.publisher.Publish(ctx, env); pubErr != nil {
		o.logger.Warn("failed to publish payment event", "error", pubErr)
	}
}

func (o *Orchestrator) publishToken(ctx context.Context, paymentReference, transactionID string) {
	if o.publisher == nil {
		return
	}
	env, err := events.NewEnvelope(events.KindTokenIssued, paymentReference, events.TokenIssuedData{
		PaymentReference:      paymentReference,
		TransactionIdentifier: transactionID,
		Mode:                  ModeBackendData,
	})
	if err != nil {
		o.logger.Warn("failed to build token event", "error", err)
		return
	}
	if err := o.publisher.Publish(ctx, env); err != nil {
		o.logger.Warn("failed to publish token event", "error", err)
	}
}
