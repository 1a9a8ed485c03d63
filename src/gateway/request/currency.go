package request

import (
	"regexp"
	"strings"
)

// numericCurrencyCodes maps ISO 4217 alpha codes to the 3-digit numeric codes
// the wire protocol requires. Unknown codes fail validation rather than
// silently defaulting.
var numericCurrencyCodes = map[string]string{
	"USD": "840",
	"EUR": "978",
	"GBP": "826",
	"CAD": "124",
	"AUD": "036",
	"JPY": "392",
	"SGD": "702",
	"HKD": "344",
	"INR": "356",
	"BRL": "986",
	"MXN": "484",
	"CHF": "756",
	"SEK": "752",
	"NZD": "554",
}

// NumericCurrencyCode resolves an ISO alpha currency code to its numeric wire
// form.
func NumericCurrencyCode(alpha string) (string, bool) {
	code, ok := numericCurrencyCodes[strings.ToUpper(alpha)]
	return code, ok
}

// amountPattern: non-negative decimal string with up to 3 fractional digits.
var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,3})?$`)

// ValidAmount reports whether the amount matches the wire format.
func ValidAmount(amount string) bool {
	return amountPattern.MatchString(amount)
}
