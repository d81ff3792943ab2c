package invoice

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency text: optional leading $, optional thousands separators, exactly
// two fractional digits.
var amountPattern = regexp.MustCompile(`^\$?(?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2}$`)

// ParseAmount converts currency text such as "$1,234.50" to an exact decimal
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if !amountPattern.MatchString(s) {
		return decimal.Zero, newParseError(KindInvalidAmount, s)
	}
	clean := strings.NewReplacer("$", "", ",", "").Replace(s)
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, newParseError(KindInvalidAmount, s)
	}
	return d, nil
}

// looksLikeAmount reports whether a row field was meant to be a currency
// value: it carries a $ sign or a digit. Such a field either parses or fails
// the document with InvalidAmount, so a rebate written "($110.00)" or a
// negative "-5.00" is never dropped silently. Anything else means the line
// is not a table row.
func looksLikeAmount(s string) bool {
	return strings.ContainsAny(s, "$0123456789")
}
