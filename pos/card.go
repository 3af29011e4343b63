package pos

import (
	"strings"
)

// Brand is a card scheme in gateway-agnostic form. Each gateway maps it to
// its own wire code on demand.
type Brand string

const (
	BrandVisa       Brand = "visa"
	BrandMasterCard Brand = "master"
	BrandAmex       Brand = "amex"
	BrandTroy       Brand = "troy"
)

// Card holds normalized card fields. Immutable after construction.
type Card struct {
	Number      string
	ExpireYear  string // "2021" or "21"
	ExpireMonth string // "01".."12"
	CVV         string
	HolderName  string
	Brand       Brand
}

// NewCard builds a Card, stripping spaces from the PAN and detecting the
// brand when the caller does not supply one.
func NewCard(number, year, month, cvv, holder string, brand Brand) (Card, error) {
	number = strings.ReplaceAll(number, " ", "")
	if brand == "" {
		brand = DetectBrand(number)
	}

	card := Card{
		Number:      number,
		ExpireYear:  year,
		ExpireMonth: month,
		CVV:         cvv,
		HolderName:  holder,
		Brand:       brand,
	}

	if err := card.Validate(); err != nil {
		return Card{}, err
	}
	return card, nil
}

// Validate checks the PAN (length + Luhn), expiry and CVV shape.
func (c Card) Validate() error {
	if len(c.Number) < 12 || len(c.Number) > 19 || !isDigits(c.Number) {
		return &ValidationError{Field: "card number", Reason: "must be 12-19 digits"}
	}
	if !luhnValid(c.Number) {
		return &ValidationError{Field: "card number", Reason: "failed check digit"}
	}
	if len(c.ExpireMonth) != 2 || c.ExpireMonth < "01" || c.ExpireMonth > "12" {
		return &ValidationError{Field: "card expire month", Reason: "must be 01-12"}
	}
	if l := len(c.ExpireYear); l != 2 && l != 4 {
		return &ValidationError{Field: "card expire year", Reason: "must be 2 or 4 digits"}
	}
	if l := len(c.CVV); l < 3 || l > 4 || !isDigits(c.CVV) {
		return &ValidationError{Field: "card cvv", Reason: "must be 3 or 4 digits"}
	}
	return nil
}

// ExpireYearShort returns the last two digits of the expiry year.
func (c Card) ExpireYearShort() string {
	if len(c.ExpireYear) > 2 {
		return c.ExpireYear[len(c.ExpireYear)-2:]
	}
	return c.ExpireYear
}

// ExpireYearLong returns the four digit expiry year.
func (c Card) ExpireYearLong() string {
	if len(c.ExpireYear) == 2 {
		return "20" + c.ExpireYear
	}
	return c.ExpireYear
}

// ExpiryYYYYMM renders the expiry as yyyymm (PayFlex convention, "202112").
func (c Card) ExpiryYYYYMM() string {
	return c.ExpireYearLong() + c.ExpireMonth
}

// ExpiryMMYY renders the expiry as mm/yy (EST convention, "12/21").
func (c Card) ExpiryMMYY() string {
	return c.ExpireMonth + "/" + c.ExpireYearShort()
}

// ExpiryMMYYCompact renders the expiry as mmyy without separator (Garanti
// convention, "1221").
func (c Card) ExpiryMMYYCompact() string {
	return c.ExpireMonth + c.ExpireYearShort()
}

// ExpiryYYMM renders the expiry as yymm (PosNet convention, "2112").
func (c Card) ExpiryYYMM() string {
	return c.ExpireYearShort() + c.ExpireMonth
}

// DetectBrand infers the card scheme from the PAN prefix.
func DetectBrand(number string) Brand {
	switch {
	case strings.HasPrefix(number, "4"):
		return BrandVisa
	case strings.HasPrefix(number, "9792"):
		return BrandTroy
	case strings.HasPrefix(number, "34"), strings.HasPrefix(number, "37"):
		return BrandAmex
	case strings.HasPrefix(number, "5"), strings.HasPrefix(number, "2"):
		return BrandMasterCard
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// luhnValid implements the standard mod-10 check digit algorithm.
func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
