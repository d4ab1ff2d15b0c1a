// Package phone normalizes Kenyan mobile numbers into the 254XXXXXXXXX form
// expected by M-Pesa and guesses the carrier from the prefix.
package phone

import (
	"regexp"
	"strings"
)

const CountryCode = "254"

const (
	NetworkSafaricom = "Safaricom"
	NetworkAirtel    = "Airtel"
	NetworkTelkom    = "Telkom"
	NetworkEquitel   = "Equitel"
	NetworkFaiba     = "Faiba"
)

const (
	ReasonEmpty   = "phone number is empty"
	ReasonInvalid = "phone number must be a Kenyan mobile number (07XXXXXXXX, 01XXXXXXXX or 2547XXXXXXXX)"
)

var validNumber = regexp.MustCompile(`^254[17]\d{8}$`)

// Result is the outcome of Normalize. E164 is set only when OK is true.
type Result struct {
	OK     bool   `json:"ok"`
	E164   string `json:"e164,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Normalize accepts local (07.., 01..), bare subscriber (7.., 1..) and
// international (254.., +254.., 00254..) forms. It never panics.
func Normalize(raw string) Result {
	digits := onlyDigits(raw)
	if digits == "" {
		return Result{Reason: ReasonEmpty}
	}

	var candidate string
	switch {
	case strings.HasPrefix(digits, "00"+CountryCode):
		candidate = digits[2:]
	case strings.HasPrefix(digits, CountryCode):
		candidate = digits
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		candidate = CountryCode + digits[1:]
	case len(digits) == 9:
		candidate = CountryCode + digits
	default:
		candidate = digits
	}

	if !validNumber.MatchString(candidate) {
		return Result{Reason: ReasonInvalid}
	}
	return Result{OK: true, E164: candidate}
}

// IsValid reports whether number is already in normalized form.
func IsValid(number string) bool {
	return validNumber.MatchString(number)
}

type prefixRange struct {
	from, to int
	network  string
}

// Three digit prefixes following the country code.
var networkRanges = []prefixRange{
	{700, 729, NetworkSafaricom},
	{740, 746, NetworkSafaricom},
	{747, 747, NetworkFaiba},
	{748, 748, NetworkSafaricom},
	{757, 759, NetworkSafaricom},
	{768, 769, NetworkSafaricom},
	{790, 799, NetworkSafaricom},
	{110, 115, NetworkSafaricom},
	{730, 739, NetworkAirtel},
	{750, 756, NetworkAirtel},
	{762, 762, NetworkAirtel},
	{780, 789, NetworkAirtel},
	{100, 102, NetworkAirtel},
	{770, 779, NetworkTelkom},
	{763, 766, NetworkEquitel},
}

// DetectNetwork returns the carrier for a phone number in any accepted form,
// or "" when the number is invalid or the prefix is unallocated. The result is
// a hint only and never gates a payment.
func DetectNetwork(number string) string {
	res := Normalize(number)
	if !res.OK {
		return ""
	}

	prefix := 0
	for _, c := range res.E164[3:6] {
		prefix = prefix*10 + int(c-'0')
	}

	for _, r := range networkRanges {
		if prefix >= r.from && prefix <= r.to {
			return r.network
		}
	}
	return ""
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
