package pos

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareOrder(t *testing.T) {
	order := Order{
		ID:       "order-1",
		Amount:   100.25,
		Currency: "TRY",
		IP:       "127.0.0.1",
	}

	prepared, err := PrepareOrder(order, TxPay)
	require.NoError(t, err)

	assert.Equal(t, "order-1", prepared.ID)
	assert.Equal(t, 949, prepared.CurrencyCode)
	assert.Equal(t, "TRY", prepared.CurrencyAlpha)
	assert.Equal(t, "127.0.0.1", prepared.IP)
	assert.Equal(t, "tr", prepared.Lang)
	assert.True(t, prepared.Amount.Equal(decimal.NewFromFloat(100.25)))

	// A nonce must be generated when the caller supplied none
	assert.NotEmpty(t, prepared.Rand)
}

func TestPrepareOrder_MissingID(t *testing.T) {
	_, err := PrepareOrder(Order{}, TxPay)
	require.Error(t, err)

	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "order id", validationErr.Field)
}

func TestPrepareOrder_AmountRequired(t *testing.T) {
	tests := []struct {
		tx       TxType
		required bool
	}{
		{TxPay, true},
		{TxPrePay, true},
		{TxPostPay, true},
		{TxRefund, true},
		{TxCancel, false},
		{TxStatus, false},
		{TxHistory, false},
	}

	for _, tt := range tests {
		_, err := PrepareOrder(Order{ID: "order-1"}, tt.tx)
		if tt.required {
			assert.Error(t, err, "tx %s should require an amount", tt.tx)
		} else {
			assert.NoError(t, err, "tx %s should not require an amount", tt.tx)
		}
	}
}

func TestPrepareOrder_UnknownCurrency(t *testing.T) {
	_, err := PrepareOrder(Order{ID: "order-1", Amount: 10, Currency: "XXX"}, TxPay)
	require.Error(t, err)

	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "currency", validationErr.Field)
}

func TestPrepareOrder_Installment(t *testing.T) {
	order := Order{ID: "order-1", Amount: 10, Currency: "TRY"}

	// Single payment collapses to zero
	order.Installment = 1
	prepared, err := PrepareOrder(order, TxPay)
	require.NoError(t, err)
	assert.Equal(t, 0, prepared.Installment)

	order.Installment = 6
	prepared, err = PrepareOrder(order, TxPay)
	require.NoError(t, err)
	assert.Equal(t, 6, prepared.Installment)
}

func TestPrepareOrder_Recurring(t *testing.T) {
	order := Order{
		ID:       "order-1",
		Amount:   10,
		Currency: "TRY",
	}

	// Incomplete recurring block is ignored
	order.RecurringFrequency = 3
	prepared, err := PrepareOrder(order, TxPay)
	require.NoError(t, err)
	assert.Nil(t, prepared.Recurring)

	order.RecurringFrequencyType = "month"
	order.RecurringInstallmentCount = 12
	prepared, err = PrepareOrder(order, TxPay)
	require.NoError(t, err)
	require.NotNil(t, prepared.Recurring)
	assert.Equal(t, 3, prepared.Recurring.Frequency)
	assert.Equal(t, "month", prepared.Recurring.FrequencyType)
	assert.Equal(t, 12, prepared.Recurring.InstallmentCount)
}

func TestPrepareOrder_OriginalTransactionRefs(t *testing.T) {
	order := Order{
		ID:        "order-1",
		RefRetNum: "922810016639",
		AuthCode:  "901477",
	}

	prepared, err := PrepareOrder(order, TxCancel)
	require.NoError(t, err)
	assert.Equal(t, "922810016639", prepared.RefRetNum)
	assert.Equal(t, "901477", prepared.AuthCode)
}

func TestAmountFormats(t *testing.T) {
	prepared := PreparedOrder{Amount: decimal.NewFromFloat(100.25)}
	assert.Equal(t, "100.25", prepared.Amount2DP())
	assert.Equal(t, "10025", prepared.AmountMinor())

	prepared.Amount = decimal.NewFromInt(1000)
	assert.Equal(t, "1000.00", prepared.Amount2DP())
	assert.Equal(t, "100000", prepared.AmountMinor())

	prepared.Amount = decimal.NewFromFloat(1.7)
	assert.Equal(t, "1.70", prepared.Amount2DP())
	assert.Equal(t, "170", prepared.AmountMinor())
}

func TestCurrencyCode(t *testing.T) {
	tests := map[string]int{
		"TRY": 949,
		"USD": 840,
		"EUR": 978,
		"GBP": 826,
		"JPY": 392,
		"RUB": 643,
	}

	for alpha, want := range tests {
		code, err := CurrencyCode(alpha)
		require.NoError(t, err)
		assert.Equal(t, want, code)
	}

	_, err := CurrencyCode("CHF")
	assert.Error(t, err)

	assert.Len(t, Currencies(), len(tests))
}
