package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/gopos/infra/config"
	"github.com/mstgnz/gopos/infra/middle"
	"github.com/mstgnz/gopos/infra/response"
	"github.com/mstgnz/gopos/pos"
)

// PaymentServiceInterface defines the interface for gateway operations
type PaymentServiceInterface interface {
	Pay(ctx context.Context, bank string, conf map[string]string, order pos.Order, card *pos.Card) (*pos.PaymentResult, error)
	PreAuth(ctx context.Context, bank string, conf map[string]string, order pos.Order, card *pos.Card) (*pos.PaymentResult, error)
	Complete3D(ctx context.Context, bank string, conf map[string]string, order pos.Order, card *pos.Card, callback map[string]string) (*pos.Response, error)
	Capture(ctx context.Context, bank string, conf map[string]string, order pos.Order) (*pos.Response, error)
	Cancel(ctx context.Context, bank string, conf map[string]string, order pos.Order) (*pos.Response, error)
	Refund(ctx context.Context, bank string, conf map[string]string, order pos.Order) (*pos.Response, error)
	Status(ctx context.Context, bank string, conf map[string]string, order pos.Order) (*pos.Response, error)
	History(ctx context.Context, bank string, conf map[string]string, order pos.Order) (*pos.Response, error)
}

// PaymentHandler handles payment related HTTP requests
type PaymentHandler struct {
	paymentService PaymentServiceInterface
	accounts       *config.AccountConfig
	validate       *validator.Validate
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService PaymentServiceInterface, accounts *config.AccountConfig, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		accounts:       accounts,
		validate:       validate,
	}
}

// PaymentRequest is the request body for payment and pre-authorization
type PaymentRequest struct {
	Order   pos.Order `json:"order" validate:"required"`
	Card    *pos.Card `json:"card,omitempty"`
	PreAuth bool      `json:"preAuth,omitempty"`
}

// OrderRequest is the request body for capture, cancel and refund
type OrderRequest struct {
	Order pos.Order `json:"order" validate:"required"`
}

// accountConf resolves the merchant's account config for the requested bank
func (h *PaymentHandler) accountConf(r *http.Request) (string, map[string]string, error) {
	bank := chi.URLParam(r, "bank")
	if bank == "" {
		return "", nil, fmt.Errorf("bank path parameter is required")
	}

	merchantID := r.Header.Get("X-Merchant-ID")
	if merchantID == "" {
		merchantID = "default"
	}

	conf, err := h.accounts.GetAccountConfig(merchantID, bank)
	if err != nil {
		// Fall back to environment variables for unconfigured merchants
		conf, err = h.accounts.LoadFromEnv(merchantID, bank)
		if err != nil {
			return "", nil, fmt.Errorf("no account configured for bank %s", bank)
		}
	}

	return bank, conf, nil
}

// ProcessPayment handles sale and pre-authorization requests
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	bank, conf, err := h.accountConf(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Account resolution failed", err)
		return
	}

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if req.Order.IP == "" {
		req.Order.IP = middle.GetClientIP(r)
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	var result *pos.PaymentResult
	if req.PreAuth {
		result, err = h.paymentService.PreAuth(ctx, bank, conf, req.Order, req.Card)
	} else {
		result, err = h.paymentService.Pay(ctx, bank, conf, req.Order, req.Card)
	}
	if err != nil {
		h.gatewayError(w, err)
		return
	}

	if result.Form != nil {
		// Browsers get the auto-submitting redirect form directly
		if strings.Contains(r.Header.Get("Accept"), "text/html") {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(result.Form.HTML()))
			return
		}
		response.Success(w, http.StatusOK, "3D Secure redirect required", result.Form)
		return
	}
	response.Success(w, http.StatusOK, "Payment processed", result.Response)
}

// CapturePayment handles post-authorization capture requests
func (h *PaymentHandler) CapturePayment(w http.ResponseWriter, r *http.Request) {
	h.orderTrigger(w, r, "Payment captured", h.paymentService.Capture)
}

// CancelPayment handles same-day void requests
func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	h.orderTrigger(w, r, "Payment cancelled", h.paymentService.Cancel)
}

// RefundPayment handles refund requests
func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	h.orderTrigger(w, r, "Payment refunded", h.paymentService.Refund)
}

func (h *PaymentHandler) orderTrigger(w http.ResponseWriter, r *http.Request, message string, trigger func(context.Context, string, map[string]string, pos.Order) (*pos.Response, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	bank, conf, err := h.accountConf(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Account resolution failed", err)
		return
	}

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	resp, err := trigger(ctx, bank, conf, req.Order)
	if err != nil {
		h.gatewayError(w, err)
		return
	}

	response.Success(w, http.StatusOK, message, resp)
}

// GetPaymentStatus handles order status inquiries
func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	h.orderInquiry(w, r, "Order status retrieved", h.paymentService.Status)
}

// GetPaymentHistory handles order history inquiries
func (h *PaymentHandler) GetPaymentHistory(w http.ResponseWriter, r *http.Request) {
	h.orderInquiry(w, r, "Order history retrieved", h.paymentService.History)
}

func (h *PaymentHandler) orderInquiry(w http.ResponseWriter, r *http.Request, message string, trigger func(context.Context, string, map[string]string, pos.Order) (*pos.Response, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	bank, conf, err := h.accountConf(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Account resolution failed", err)
		return
	}

	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		response.Error(w, http.StatusBadRequest, "Missing order ID", nil)
		return
	}

	resp, err := trigger(ctx, bank, conf, pos.Order{ID: orderID})
	if err != nil {
		h.gatewayError(w, err)
		return
	}

	response.Success(w, http.StatusOK, message, resp)
}

// HandleCallback completes a 3D Secure payment with the bank's callback data
func (h *PaymentHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	bank, conf, err := h.accountConf(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Account resolution failed", err)
		return
	}

	if err := r.ParseForm(); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	// Combine form and query parameters
	callbackData := make(map[string]string)
	for key, values := range r.Form {
		if len(values) > 0 {
			callbackData[key] = values[0]
		}
	}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			callbackData[key] = values[0]
		}
	}

	// The order context travels through the callback URL query
	order := pos.Order{
		ID:       r.URL.Query().Get("orderId"),
		Currency: r.URL.Query().Get("currency"),
	}
	if amount := r.URL.Query().Get("amount"); amount != "" {
		if parsed, err := strconv.ParseFloat(amount, 64); err == nil {
			order.Amount = parsed
		}
	}
	if order.ID == "" {
		order.ID = callbackData["oid"]
	}

	// PayFlex repeats card data in the completion request, so merchants that
	// relay the ACS callback through their own backend include it here. The
	// other gateways carry the card context in the callback token and leave
	// these fields empty.
	var card *pos.Card
	if number := callbackData["cardNumber"]; number != "" {
		card = &pos.Card{
			Number:      number,
			ExpireMonth: callbackData["expireMonth"],
			ExpireYear:  callbackData["expireYear"],
			CVV:         callbackData["cvv"],
			HolderName:  callbackData["cardHolderName"],
		}
	}

	resp, err := h.paymentService.Complete3D(ctx, bank, conf, order, card, callbackData)
	if err != nil {
		h.handleCallbackError(w, r, err)
		return
	}

	if resp.Success {
		h.handleCallbackRedirect(w, r, resp, r.URL.Query().Get("successUrl"), "Payment completed successfully")
	} else {
		h.handleCallbackRedirect(w, r, resp, r.URL.Query().Get("failUrl"), "Payment failed")
	}
}

func (h *PaymentHandler) handleCallbackRedirect(w http.ResponseWriter, r *http.Request, resp *pos.Response, redirectURL, message string) {
	if redirectURL != "" {
		target := fmt.Sprintf("%s?orderId=%s&status=%s&transactionId=%s&authCode=%s",
			redirectURL, resp.OrderID, resp.Status, resp.TransactionID, resp.AuthCode)
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	response.Success(w, http.StatusOK, message, resp)
}

func (h *PaymentHandler) handleCallbackError(w http.ResponseWriter, r *http.Request, err error) {
	if failURL := r.URL.Query().Get("failUrl"); failURL != "" {
		target := fmt.Sprintf("%s?success=false&error=%s", failURL, err.Error())
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	h.gatewayError(w, err)
}

// gatewayError maps gateway error kinds to HTTP status codes
func (h *PaymentHandler) gatewayError(w http.ResponseWriter, err error) {
	var validationErr *pos.ValidationError
	var stateErr *pos.StateError
	var transportErr *pos.TransportError

	switch {
	case errors.Is(err, pos.ErrNotSupported):
		response.Error(w, http.StatusNotImplemented, "Operation not supported by gateway", err)
	case errors.As(err, &validationErr):
		response.Error(w, http.StatusBadRequest, "Validation error", err)
	case errors.As(err, &stateErr):
		response.Error(w, http.StatusConflict, "Transaction state error", err)
	case errors.As(err, &transportErr):
		response.Error(w, http.StatusBadGateway, "Bank gateway unreachable", err)
	default:
		response.Error(w, http.StatusInternalServerError, "Payment failed", err)
	}
}
