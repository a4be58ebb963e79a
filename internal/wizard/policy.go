package wizard

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"onboard/internal/domain"
	fv "onboard/internal/validation"
)

const (
	PolicyStrict  = "strict"
	PolicyRelaxed = "relaxed"
)

// Predicate validates one step of the draft. A nil result means the step is complete.
type Predicate func(d *domain.FormDraft) error

// Policy is the set of step predicates a wizard runs before letting the user move on.
type Policy struct {
	name       string
	predicates map[Step]Predicate
}

func (p Policy) Name() string { return p.name }

// Check runs the predicate for step and returns the failing fields keyed by path
// ("mobile", "creditCards.0.cvv"). The map is empty when the step is complete.
func (p Policy) Check(step Step, d *domain.FormDraft) map[string]string {
	out := make(map[string]string)
	pred, ok := p.predicates[step]
	if !ok {
		return out
	}
	flatten("", pred(d), out)
	return out
}

// StrictPolicy requires every step to be filled in.
func StrictPolicy() Policy {
	return Policy{
		name: PolicyStrict,
		predicates: map[Step]Predicate{
			StepPersonal:     personalRules,
			StepDocuments:    documentRules(true),
			StepBankAccounts: bankRules(true),
			StepCreditCards:  cardRules(true),
			StepReview:       reviewRules,
		},
	}
}

// RelaxedPolicy lets the user skip documents, bank accounts and cards, but
// anything started there has to be finished or removed.
func RelaxedPolicy() Policy {
	return Policy{
		name: PolicyRelaxed,
		predicates: map[Step]Predicate{
			StepPersonal:     personalRules,
			StepDocuments:    documentRules(false),
			StepBankAccounts: bankRules(false),
			StepCreditCards:  cardRules(false),
			StepReview:       reviewRules,
		},
	}
}

// PolicyByName maps the WIZARD_POLICY setting to a policy.
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyStrict:
		return StrictPolicy(), nil
	case PolicyRelaxed:
		return RelaxedPolicy(), nil
	default:
		return Policy{}, fmt.Errorf("unknown wizard policy %q", name)
	}
}

func requiredText(msg string) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, _ := value.(string)
		if strings.TrimSpace(s) == "" {
			return errors.New(msg)
		}
		return nil
	})
}

var tenDigits = validation.NewStringRule(func(s string) bool {
	return len(fv.DigitsOnly(s)) == 10
}, "must be 10 digits")

var accountNumberRule = validation.NewStringRule(func(s string) bool {
	n := len(fv.DigitsOnly(s))
	return n >= 9 && n <= 18 && n == len(strings.TrimSpace(s))
}, "must be 9 to 18 digits")

func personalRules(d *domain.FormDraft) error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Name, requiredText("Name is required")),
		validation.Field(&d.Mobile, requiredText("Mobile number is required"), fv.MobileRule.Error("Invalid mobile number")),
		validation.Field(&d.Email, fv.EmailRule.Error("Invalid email address")),
	)
}

func documentRules(strict bool) Predicate {
	return func(d *domain.FormDraft) error {
		errs := validation.Errors{}
		if err := validation.ValidateStruct(d,
			validation.Field(&d.AadhaarNumber, fv.AadhaarRule.Error("Invalid Aadhaar number")),
			validation.Field(&d.PANNumber, fv.PANRule.Error("Invalid PAN number")),
		); err != nil {
			var fieldErrs validation.Errors
			if !errors.As(err, &fieldErrs) {
				return err
			}
			for k, v := range fieldErrs {
				errs[k] = v
			}
		}

		front := d.AadhaarImages.URL(domain.ImageSideFront) != ""
		back := d.AadhaarImages.URL(domain.ImageSideBack) != ""
		sides := validation.Errors{}
		if (strict || back) && !front {
			sides["front"] = errors.New("Aadhaar front image is required")
		}
		if (strict || front) && !back {
			sides["back"] = errors.New("Aadhaar back image is required")
		}
		if len(sides) > 0 {
			errs["aadhaarImages"] = sides
		}
		if strict && d.PANImageURL == "" {
			errs["panImageUrl"] = errors.New("PAN card image is required")
		}
		return errs.Filter()
	}
}

func bankRules(strict bool) Predicate {
	return func(d *domain.FormDraft) error {
		entries := validation.Errors{}
		started := 0
		for i := range d.BankAccounts {
			acc := d.BankAccounts[i]
			if acc.IsBlank() {
				continue
			}
			started++
			if err := validation.ValidateStruct(&acc,
				validation.Field(&acc.AccountNumber, requiredText("Account number is required"), accountNumberRule),
				validation.Field(&acc.AccountHolderName, requiredText("Account holder name is required")),
				validation.Field(&acc.Mobile, requiredText("Mobile number is required"), fv.MobileRule.Error("Invalid mobile number")),
				validation.Field(&acc.BankName, requiredText("Bank name is required")),
				validation.Field(&acc.IFSCCode, requiredText("IFSC code is required"), fv.IFSCRule.Error("Invalid IFSC code")),
				validation.Field(&acc.Branch, requiredText("Branch is required")),
			); err != nil {
				entries[strconv.Itoa(i)] = err
			}
		}
		if len(entries) > 0 {
			return validation.Errors{"bankAccounts": entries}
		}
		if strict && started == 0 {
			return validation.Errors{"bankAccounts": errors.New("At least one bank account is required")}
		}
		return nil
	}
}

func cardRules(strict bool) Predicate {
	return func(d *domain.FormDraft) error {
		entries := validation.Errors{}
		started := 0
		for i := range d.CreditCards {
			card := d.CreditCards[i]
			if card.IsBlank() {
				continue
			}
			started++
			network := fv.DetectCardNetwork(card.CardNumber)
			numberRules := []validation.Rule{requiredText("Card number is required"), fv.CardLengthRule(network)}
			if strict {
				numberRules = append(numberRules, fv.CardNumberRule)
			}
			if err := validation.ValidateStruct(&card,
				validation.Field(&card.BankName, requiredText("Bank name is required")),
				validation.Field(&card.CardHolderName, requiredText("Card holder name is required")),
				validation.Field(&card.CardHolderMobile, requiredText("Card holder mobile is required"), tenDigits),
				validation.Field(&card.CardNumber, numberRules...),
				validation.Field(&card.CVV, requiredText("CVV is required"), fv.CVVRule(network)),
				validation.Field(&card.ExpiryDate, requiredText("Expiry date is required"), fv.ExpiryRule),
				validation.Field(&card.CardLimit, fv.PositiveAmount),
				validation.Field(&card.BillGenerationDate, fv.DayOfMonthRule),
				validation.Field(&card.DueDate, fv.DayOfMonthRule),
			); err != nil {
				entries[strconv.Itoa(i)] = err
			}
		}
		if len(entries) > 0 {
			return validation.Errors{"creditCards": entries}
		}
		if strict && started == 0 {
			return validation.Errors{"creditCards": errors.New("At least one credit card is required")}
		}
		return nil
	}
}

func reviewRules(d *domain.FormDraft) error {
	if !d.Confirmed {
		return validation.Errors{"confirmed": errors.New("Please confirm that your information is accurate")}
	}
	return nil
}

// flatten turns nested validation.Errors into dotted paths.
func flatten(prefix string, err error, out map[string]string) {
	if err == nil {
		return
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		keys := make([]string, 0, len(errs))
		for k := range errs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, errs[k], out)
		}
		return
	}
	if prefix == "" {
		prefix = "form"
	}
	out[prefix] = err.Error()
}
