package validation

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"onboard/internal/domain"
)

// String rules skip empty values; pair them with validation.Required where a
// field is mandatory.
var (
	MobileRule  = validation.NewStringRule(ValidateMobile, "must be a valid 10 digit mobile number")
	EmailRule   = validation.NewStringRule(ValidateEmail, "must be a valid email address")
	AadhaarRule = validation.NewStringRule(ValidateAadhaar, "must be a 12 digit Aadhaar number")
	PANRule     = validation.NewStringRule(ValidatePAN, "must be a valid PAN (ABCDE1234F)")
	IFSCRule    = validation.NewStringRule(ValidateIFSC, "must be a valid IFSC code")
	ExpiryRule  = validation.NewStringRule(ValidateExpiry, "must be a valid MM/YY expiry in the future")
)

// CardLengthRule checks the digit count against the detected network.
func CardLengthRule(network domain.CardNetwork) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if len(DigitsOnly(s)) < MinCardLength(network) {
			return errors.New("card number is too short")
		}
		return nil
	})
}

// CardNumberRule requires a Luhn-valid number.
var CardNumberRule = validation.NewStringRule(ValidateCardNumber, "must be a valid card number")

// CVVRule checks the CVV length for the network.
func CVVRule(network domain.CardNetwork) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if !ValidateCVV(s, network) {
			return errors.New("invalid CVV")
		}
		return nil
	})
}

// PositiveAmount rejects zero and negative decimals.
var PositiveAmount = validation.By(func(value interface{}) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("must be a number")
	}
	if !d.IsPositive() {
		return errors.New("must be greater than zero")
	}
	return nil
})

// DayOfMonthRule accepts 1-31 and treats zero as unset.
var DayOfMonthRule = validation.By(func(value interface{}) error {
	d, _ := value.(int)
	if d == 0 || ValidateDayOfMonth(d) {
		return nil
	}
	return errors.New("must be a day between 1 and 31")
})
