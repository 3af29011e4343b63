package pos

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
)

// TxType identifies the kind of transaction a gateway is prepared for.
type TxType string

const (
	TxPay     TxType = "pay"
	TxPrePay  TxType = "pre"
	TxPostPay TxType = "post"
	TxCancel  TxType = "cancel"
	TxRefund  TxType = "refund"
	TxStatus  TxType = "status"
	TxHistory TxType = "history"
)

// Status is the normalized outcome of a gateway round trip.
type Status string

const (
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
	StatusError    Status = "error"
)

// Response is the normalized result of a completed transaction. Remote
// declines and malformed bodies are represented here as data; only local
// validation, state and transport problems surface as errors.
type Response struct {
	Success        bool           `json:"success"`
	Status         Status         `json:"status"`
	OrderID        string         `json:"orderId,omitempty"`
	GroupID        string         `json:"groupId,omitempty"`
	TransactionID  string         `json:"transactionId,omitempty"`
	AuthCode       string         `json:"authCode,omitempty"`
	HostRefNum     string         `json:"hostRefNum,omitempty"`
	ProcReturnCode string         `json:"procReturnCode,omitempty"`
	ErrorCode      string         `json:"errorCode,omitempty"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
	SystemTime     *time.Time     `json:"systemTime,omitempty"`
	Raw            map[string]any `json:"raw,omitempty"`
}

// ThreeDFormData is the redirect form for a bank-hosted 3D Secure challenge.
// The caller renders it as an auto-submitting HTML form.
type ThreeDFormData struct {
	GatewayURL string            `json:"gatewayUrl"`
	Inputs     map[string]string `json:"inputs"`
}

// HTML renders the redirect form as a self-submitting page, for callers that
// want ready-made markup instead of the raw form data.
func (f *ThreeDFormData) HTML() string {
	var formFields strings.Builder
	for key, value := range f.Inputs {
		formFields.WriteString(fmt.Sprintf(`<input type="hidden" name="%s" value="%s" />`,
			html.EscapeString(key), html.EscapeString(value)))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<title>3D Secure Authentication</title>
	<meta charset="utf-8">
	<meta http-equiv="Content-Type" content="text/html; charset=UTF-8">
</head>
<body onload="document.threeDForm.submit();">
	<div style="text-align: center; margin-top: 50px;">
		<p>Ödeme işleminiz 3D güvenlik sayfasına yönlendiriliyor...</p>
		<p>Payment is being redirected to 3D secure page...</p>
	</div>
	<form name="threeDForm" method="POST" action="%s">
		%s
	</form>
</body>
</html>`, html.EscapeString(f.GatewayURL), formFields.String())
}

// ConfigField describes a required account configuration field for a gateway.
type ConfigField struct {
	Key         string `json:"key"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // "string", "number", "url", "email", "boolean"
	Description string `json:"description"`
	Example     string `json:"example"`
	Pattern     string `json:"pattern,omitempty"`
	MinLength   int    `json:"minLength,omitempty"`
	MaxLength   int    `json:"maxLength,omitempty"`
}

// Gateway is the interface every bank virtual-POS implementation satisfies.
//
// A gateway instance holds exactly one in-flight transaction between Prepare
// and the next Prepare. Instances are not safe for concurrent reuse; use one
// instance per transaction.
type Gateway interface {
	// Initialize sets up the gateway with account credentials and endpoints.
	Initialize(conf map[string]string) error

	// GetRequiredConfig returns the account fields this gateway needs.
	GetRequiredConfig(environment string) []ConfigField

	// ValidateConfig validates an account config against the requirements.
	ValidateConfig(conf map[string]string) error

	// Account returns the immutable account the gateway was initialized with.
	Account() Account

	// Prepare normalizes the order and stores the transaction context.
	// Card may be nil for kinds that do not carry card data.
	Prepare(order Order, tx TxType, card *Card) error

	// Payment fires the prepared pay/pre-pay/post-pay transaction. For 3D
	// models the enrollment round trip runs here and the redirect form
	// becomes available via Get3DFormData.
	Payment(ctx context.Context) error

	// Complete3DPayment re-enters the flow with the bank's 3D callback
	// payload and fires the final payment.
	Complete3DPayment(ctx context.Context, callback map[string]string) error

	// Cancel voids the prepared transaction.
	Cancel(ctx context.Context) error

	// Refund returns funds for the prepared transaction.
	Refund(ctx context.Context) error

	// Status queries the current state of the prepared order.
	Status(ctx context.Context) error

	// History queries the transaction history of the prepared order.
	History(ctx context.Context) error

	// Get3DFormData returns the redirect form computed by Payment for
	// 3D-model accounts.
	Get3DFormData() (*ThreeDFormData, error)

	// Response returns the normalized result of the completed transaction.
	Response() (*Response, error)

	IsSuccess() bool
	IsError() bool
}

// Factory creates an uninitialized gateway instance.
type Factory func() Gateway
