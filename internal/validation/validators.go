// Package validation holds the field formatters and validators used by the
// onboarding wizard. Everything here is pure and deterministic.
package validation

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"onboard/internal/domain"
)

var (
	mobilePattern = regexp.MustCompile(`^[6-9]\d{9}$`)
	aadhaarDigits = regexp.MustCompile(`^\d{12}$`)
	panPattern    = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	cardDigits    = regexp.MustCompile(`^\d{13,19}$`)
	ifscPattern   = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	expiryPattern = regexp.MustCompile(`^(\d{1,2})/(\d{2})$`)
)

const (
	MaxCardDigits        = 19
	maxExpiryYearsAhead  = 10
	formattedAadhaarSize = 14
)

// DigitsOnly drops every non-digit rune.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripSeparators(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(s)
}

// groupDigits joins digits in blocks of four with '-'.
func groupDigits(digits string) string {
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// ValidateMobile accepts ten digits starting with 6-9 once separators are removed.
func ValidateMobile(s string) bool {
	return mobilePattern.MatchString(DigitsOnly(s))
}

func FormatMobile(s string) string {
	return truncate(DigitsOnly(s), 10)
}

func ValidateAadhaar(s string) bool {
	return aadhaarDigits.MatchString(stripSeparators(s))
}

// FormatAadhaar renders XXXX-XXXX-XXXX and never returns more than 14 characters.
func FormatAadhaar(s string) string {
	return truncate(groupDigits(DigitsOnly(s)), formattedAadhaarSize)
}

func ValidatePAN(s string) bool {
	return panPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

func FormatPAN(s string) string {
	return truncate(strings.ToUpper(strings.TrimSpace(s)), 10)
}

// NormalizeCardNumber is the digits-only form that gets persisted.
func NormalizeCardNumber(s string) string {
	return DigitsOnly(s)
}

// FormatCardNumber groups up to 19 digits by four.
func FormatCardNumber(s string) string {
	return groupDigits(truncate(DigitsOnly(s), MaxCardDigits))
}

// DetectCardNetwork maps the leading digits onto a card scheme.
func DetectCardNetwork(s string) domain.CardNetwork {
	d := DigitsOnly(s)
	switch {
	case strings.HasPrefix(d, "4"):
		return domain.CardNetworkVisa
	case len(d) >= 2 && d[0] == '5' && d[1] >= '1' && d[1] <= '5':
		return domain.CardNetworkMastercard
	case strings.HasPrefix(d, "34"), strings.HasPrefix(d, "37"):
		return domain.CardNetworkAmex
	case strings.HasPrefix(d, "6"):
		return domain.CardNetworkRuPay
	default:
		return domain.CardNetworkUnknown
	}
}

// MinCardLength is the shortest digit count the network issues.
func MinCardLength(network domain.CardNetwork) int {
	switch network {
	case domain.CardNetworkAmex:
		return 15
	case domain.CardNetworkMastercard, domain.CardNetworkRuPay:
		return 16
	default:
		return 13
	}
}

// ValidateCardNumber requires 13-19 digits and a valid Luhn checksum.
func ValidateCardNumber(s string) bool {
	d := stripSeparators(s)
	if !cardDigits.MatchString(d) {
		return false
	}
	return luhn(d)
}

func luhn(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		n := int(digits[i] - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}

// ValidateCVV wants four digits for Amex and three for every other network.
func ValidateCVV(cvv string, network domain.CardNetwork) bool {
	want := 3
	if network == domain.CardNetworkAmex {
		want = 4
	}
	if len(cvv) != want {
		return false
	}
	return DigitsOnly(cvv) == cvv
}

func ValidateExpiry(s string) bool {
	return ValidateExpiryAt(s, time.Now())
}

// ValidateExpiryAt checks an MM/YY expiry against the month of now. The
// current month is still valid; anything more than ten years out is not.
func ValidateExpiryAt(s string, now time.Time) bool {
	m := expiryPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return false
	}
	month, err := strconv.Atoi(m[1])
	if err != nil || month < 1 || month > 12 {
		return false
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return false
	}

	// Two-digit years fall in the century window starting at the current year.
	full := now.Year()/100*100 + year
	if full < now.Year() {
		full += 100
	}
	expiry := full*12 + month - 1
	current := now.Year()*12 + int(now.Month()) - 1
	return expiry >= current && full <= now.Year()+maxExpiryYearsAhead
}

// FormatExpiry turns typed digits into MM/YY.
func FormatExpiry(s string) string {
	d := truncate(DigitsOnly(s), 4)
	if len(d) >= 2 {
		return d[:2] + "/" + d[2:]
	}
	return d
}

func ValidateIFSC(s string) bool {
	return ifscPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

func FormatIFSC(s string) string {
	return truncate(strings.ToUpper(stripSeparators(s)), 11)
}

func ValidateEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// ValidateDayOfMonth accepts billing and due days.
func ValidateDayOfMonth(day int) bool {
	return day >= 1 && day <= 31
}
