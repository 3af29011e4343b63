package pos

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the loosely-typed order description supplied by the caller.
// Zero values mean "absent"; PrepareOrder decides which fields a given
// transaction kind actually requires.
type Order struct {
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	Email       string  `json:"email,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	Installment int     `json:"installment,omitempty"`
	Currency    string  `json:"currency,omitempty"`
	SuccessURL  string  `json:"successUrl,omitempty"`
	FailURL     string  `json:"failUrl,omitempty"`
	IP          string  `json:"ip,omitempty"`
	Lang        string  `json:"lang,omitempty"`
	Rand        string  `json:"rand,omitempty"`

	// References to the original transaction, required by some banks for
	// cancel and refund.
	RefRetNum string `json:"refRetNum,omitempty"`
	AuthCode  string `json:"authCode,omitempty"`

	RecurringFrequency        int    `json:"recurringFrequency,omitempty"`
	RecurringFrequencyType    string `json:"recurringFrequencyType,omitempty"` // day, month, year
	RecurringInstallmentCount int    `json:"recurringInstallmentCount,omitempty"`
}

// Recurring carries the recurring-billing parameters of a prepared order.
// Present only when the caller supplied a complete recurring block.
type Recurring struct {
	Frequency        int
	FrequencyType    string
	InstallmentCount int
}

// PreparedOrder is the canonical order produced by PrepareOrder. The amount
// stays a decimal; builders format it to their bank's convention
// (two-decimal string or minor units).
type PreparedOrder struct {
	ID            string
	Amount        decimal.Decimal
	CurrencyCode  int    // numeric, e.g. 949
	CurrencyAlpha string // ISO alpha, e.g. TRY
	Installment   int    // 0 means single payment
	IP            string
	SuccessURL    string
	FailURL       string
	Email         string
	Name          string
	Lang          string
	Rand          string
	RefRetNum     string
	AuthCode      string
	Recurring     *Recurring
}

// amountRequired reports whether a transaction kind carries an amount.
func amountRequired(tx TxType) bool {
	switch tx {
	case TxPay, TxPrePay, TxPostPay, TxRefund:
		return true
	}
	return false
}

// PrepareOrder normalizes a raw order for the given transaction kind.
// It validates required fields, maps the currency, defaults the installment
// count and generates a nonce when the caller supplied none.
func PrepareOrder(order Order, tx TxType) (PreparedOrder, error) {
	if order.ID == "" {
		return PreparedOrder{}, &ValidationError{Field: "order id", Reason: "required"}
	}

	prepared := PreparedOrder{
		ID:         order.ID,
		IP:         order.IP,
		SuccessURL: order.SuccessURL,
		FailURL:    order.FailURL,
		Email:      order.Email,
		Name:       order.Name,
		Lang:       order.Lang,
		Rand:       order.Rand,
		RefRetNum:  order.RefRetNum,
		AuthCode:   order.AuthCode,
	}

	if amountRequired(tx) {
		if order.Amount <= 0 {
			return PreparedOrder{}, &ValidationError{Field: "order amount", Reason: "must be greater than 0"}
		}
		if order.Currency == "" {
			return PreparedOrder{}, &ValidationError{Field: "order currency", Reason: "required"}
		}
		code, err := CurrencyCode(order.Currency)
		if err != nil {
			return PreparedOrder{}, err
		}
		prepared.Amount = decimal.NewFromFloat(order.Amount)
		prepared.CurrencyCode = code
		prepared.CurrencyAlpha = order.Currency
	}

	if order.Installment > 1 {
		prepared.Installment = order.Installment
	}

	if prepared.Lang == "" {
		prepared.Lang = "tr"
	}

	// Nonce for replay-protection fields in 3D flows.
	if prepared.Rand == "" {
		prepared.Rand = uuid.New().String()
	}

	if order.RecurringFrequency > 0 && order.RecurringFrequencyType != "" && order.RecurringInstallmentCount > 0 {
		prepared.Recurring = &Recurring{
			Frequency:        order.RecurringFrequency,
			FrequencyType:    order.RecurringFrequencyType,
			InstallmentCount: order.RecurringInstallmentCount,
		}
	}

	return prepared, nil
}

// Amount2DP formats the amount as a two-decimal string with no thousands
// separator, e.g. 1000 → "1000.00" (EST and PayFlex convention).
func (o PreparedOrder) Amount2DP() string {
	return o.Amount.StringFixed(2)
}

// AmountMinor formats the amount in minor currency units as an integer
// string, e.g. 100.25 TRY → "10025" kuruş (Garanti and PosNet convention).
func (o PreparedOrder) AmountMinor() string {
	return o.Amount.Shift(2).Truncate(0).String()
}
