package pos

import (
	"context"
	"time"

	"github.com/mstgnz/gopos/infra/logger"
	"github.com/mstgnz/gopos/infra/opensearch"
)

// TransactionLogger records completed gateway transactions. Implemented by
// opensearch.Logger; a nil logger disables transaction logging.
type TransactionLogger interface {
	LogTransaction(ctx context.Context, log opensearch.TransactionLog) error
}

// PaymentService drives gateway transactions end to end: it builds a fresh
// gateway instance per call, runs the prepare/trigger cycle and records the
// normalized outcome.
type PaymentService struct {
	txLogger TransactionLogger
}

// NewPaymentService creates a new payment service
func NewPaymentService(txLogger TransactionLogger) *PaymentService {
	return &PaymentService{
		txLogger: txLogger,
	}
}

// PaymentResult is the outcome of a payment trigger. Exactly one of the two
// fields is set: Form for 3D-model accounts awaiting the ACS redirect,
// Response for completed transactions.
type PaymentResult struct {
	Response *Response       `json:"response,omitempty"`
	Form     *ThreeDFormData `json:"form,omitempty"`
}

// Pay runs a sale through the named bank gateway.
func (s *PaymentService) Pay(ctx context.Context, bank string, conf map[string]string, order Order, card *Card) (*PaymentResult, error) {
	return s.payment(ctx, bank, conf, order, card, TxPay)
}

// PreAuth runs a pre-authorization through the named bank gateway.
func (s *PaymentService) PreAuth(ctx context.Context, bank string, conf map[string]string, order Order, card *Card) (*PaymentResult, error) {
	return s.payment(ctx, bank, conf, order, card, TxPrePay)
}

func (s *PaymentService) payment(ctx context.Context, bank string, conf map[string]string, order Order, card *Card, tx TxType) (*PaymentResult, error) {
	gateway, err := NewGateway(bank, conf)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	if err := gateway.Prepare(order, tx, card); err != nil {
		return nil, err
	}
	if err := gateway.Payment(ctx); err != nil {
		return nil, err
	}

	// 3D-model accounts stop at the redirect form; the transaction finishes
	// in Complete3D when the bank calls back. A declined enrollment check
	// completes the flow right away, so the bank's outcome is returned as
	// data instead of demanding a form that never existed.
	if gateway.Account().Is3D() {
		if response, err := gateway.Response(); err == nil {
			s.logTransaction(ctx, bank, tx, order, response, time.Since(startTime))
			return &PaymentResult{Response: response}, nil
		}
		form, err := gateway.Get3DFormData()
		if err != nil {
			return nil, err
		}
		return &PaymentResult{Form: form}, nil
	}

	response, err := gateway.Response()
	if err != nil {
		return nil, err
	}

	s.logTransaction(ctx, bank, tx, order, response, time.Since(startTime))
	return &PaymentResult{Response: response}, nil
}

// Complete3D completes a 3D secure payment after user authentication. Card
// may be nil for gateways that carry the card context in the callback token;
// PayFlex requires it again because the final VposRequest repeats the CVV and
// holder name.
func (s *PaymentService) Complete3D(ctx context.Context, bank string, conf map[string]string, order Order, card *Card, callback map[string]string) (*Response, error) {
	gateway, err := NewGateway(bank, conf)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	if err := gateway.Prepare(order, TxPay, card); err != nil {
		return nil, err
	}
	if err := gateway.Complete3DPayment(ctx, callback); err != nil {
		return nil, err
	}

	response, err := gateway.Response()
	if err != nil {
		return nil, err
	}

	s.logTransaction(ctx, bank, TxPay, order, response, time.Since(startTime))
	return response, nil
}

// Capture captures a previously pre-authorized transaction.
func (s *PaymentService) Capture(ctx context.Context, bank string, conf map[string]string, order Order) (*Response, error) {
	return s.trigger(ctx, bank, conf, order, TxPostPay)
}

// Cancel voids a transaction on the same settlement day.
func (s *PaymentService) Cancel(ctx context.Context, bank string, conf map[string]string, order Order) (*Response, error) {
	return s.trigger(ctx, bank, conf, order, TxCancel)
}

// Refund returns funds for a settled transaction.
func (s *PaymentService) Refund(ctx context.Context, bank string, conf map[string]string, order Order) (*Response, error) {
	return s.trigger(ctx, bank, conf, order, TxRefund)
}

// Status queries the current state of an order.
func (s *PaymentService) Status(ctx context.Context, bank string, conf map[string]string, order Order) (*Response, error) {
	return s.trigger(ctx, bank, conf, order, TxStatus)
}

// History queries the transaction history of an order.
func (s *PaymentService) History(ctx context.Context, bank string, conf map[string]string, order Order) (*Response, error) {
	return s.trigger(ctx, bank, conf, order, TxHistory)
}

func (s *PaymentService) trigger(ctx context.Context, bank string, conf map[string]string, order Order, tx TxType) (*Response, error) {
	gateway, err := NewGateway(bank, conf)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	if err := gateway.Prepare(order, tx, nil); err != nil {
		return nil, err
	}

	switch tx {
	case TxPostPay:
		err = gateway.Payment(ctx)
	case TxCancel:
		err = gateway.Cancel(ctx)
	case TxRefund:
		err = gateway.Refund(ctx)
	case TxStatus:
		err = gateway.Status(ctx)
	case TxHistory:
		err = gateway.History(ctx)
	}
	if err != nil {
		return nil, err
	}

	response, err := gateway.Response()
	if err != nil {
		return nil, err
	}

	s.logTransaction(ctx, bank, tx, order, response, time.Since(startTime))
	return response, nil
}

// logTransaction records the normalized outcome. Logging failures never fail
// the transaction.
func (s *PaymentService) logTransaction(ctx context.Context, bank string, tx TxType, order Order, response *Response, elapsed time.Duration) {
	if s.txLogger == nil {
		return
	}

	txLog := opensearch.TransactionLog{
		Timestamp: time.Now(),
		Bank:      bank,
		TxType:    string(tx),
		OrderID:   order.ID,
		ClientIP:  order.IP,
		Result: opensearch.ResultLog{
			Status:           string(response.Status),
			ProcReturnCode:   response.ProcReturnCode,
			AuthCode:         response.AuthCode,
			HostRefNum:       response.HostRefNum,
			ErrorCode:        response.ErrorCode,
			ErrorMessage:     response.ErrorMessage,
			ProcessingTimeMs: elapsed.Milliseconds(),
		},
		Order: opensearch.OrderInfo{
			Amount:      order.Amount,
			Currency:    order.Currency,
			Installment: order.Installment,
		},
	}

	if err := s.txLogger.LogTransaction(ctx, txLog); err != nil {
		logger.Warn("Failed to log transaction", logger.LogContext{
			Bank:    bank,
			OrderID: order.ID,
			Fields: map[string]any{
				"tx_type": string(tx),
				"error":   err.Error(),
			},
		})
	}
}
