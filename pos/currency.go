package pos

import "fmt"

// currencyCodes maps ISO alpha currency codes to the numeric codes used by
// most Turkish virtual-POS gateways. PosNet uses its own letter codes and
// maps them inside its builder.
var currencyCodes = map[string]int{
	"TRY": 949,
	"USD": 840,
	"EUR": 978,
	"GBP": 826,
	"JPY": 392,
	"RUB": 643,
}

// CurrencyCode maps an ISO alpha code to the numeric gateway code. Unknown
// currencies are a configuration error.
func CurrencyCode(alpha string) (int, error) {
	code, ok := currencyCodes[alpha]
	if !ok {
		return 0, &ValidationError{Field: "currency", Reason: fmt.Sprintf("unknown currency %q", alpha)}
	}
	return code, nil
}

// Currencies returns the supported ISO alpha codes.
func Currencies() []string {
	out := make([]string, 0, len(currencyCodes))
	for alpha := range currencyCodes {
		out = append(out, alpha)
	}
	return out
}
