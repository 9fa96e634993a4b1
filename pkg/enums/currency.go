package enums

import "strings"

// Currency is an ISO currency code carried in business payloads.
type Currency string

// CurrencyHKD is the house currency; HKD cash movements stay local to the
// accounting participant.
const CurrencyHKD Currency = "HKD"

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// Is reports whether c names the same currency as other, ignoring case.
func (c Currency) Is(other Currency) bool {
	return strings.EqualFold(strings.TrimSpace(string(c)), string(other))
}
