package wizard

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"onboard/internal/domain"
	fv "onboard/internal/validation"
	"onboard/pkg/errors"
)

// FieldUpdate is one typed mutation of the draft. The set is closed: only the
// types in this file implement it.
type FieldUpdate interface {
	// Path names the field the update touches, used to clear its error.
	Path() string
	apply(d *domain.FormDraft) error
}

type SetName struct{ Value string }

type SetMobile struct{ Value string }

type SetEmail struct{ Value string }

type SetDateOfBirth struct{ Value string }

type SetAddress struct{ Value string }

type SetAadhaarNumber struct{ Value string }

type SetPANNumber struct{ Value string }

type SetConfirmed struct{ Value bool }

type SetAadhaarImage struct {
	Side domain.ImageSide
	URL  string
}

type SetPANImage struct{ URL string }

type AddCard struct{}

type RemoveCard struct{ Index int }

type AddBankAccount struct{}

type RemoveBankAccount struct{ Index int }

// CardField names an editable attribute of a card entry.
type CardField string

const (
	CardNumber             CardField = "cardNumber"
	CardCVV                CardField = "cvv"
	CardExpiryDate         CardField = "expiryDate"
	CardLimit              CardField = "cardLimit"
	CardBankName           CardField = "bankName"
	CardHolderName         CardField = "cardHolderName"
	CardHolderMobile       CardField = "cardHolderMobile"
	CardBillGenerationDate CardField = "billGenerationDate"
	CardDueDate            CardField = "dueDate"
)

type SetCardField struct {
	Index int
	Field CardField
	Value string
}

// BankField names an editable attribute of a bank account entry.
type BankField string

const (
	BankAccountNumber     BankField = "accountNumber"
	BankAccountHolderName BankField = "accountHolderName"
	BankMobile            BankField = "mobile"
	BankName              BankField = "bankName"
	BankIFSCCode          BankField = "ifscCode"
	BankBranch            BankField = "branch"
)

type SetBankField struct {
	Index int
	Field BankField
	Value string
}

func (u SetName) Path() string           { return "name" }
func (u SetMobile) Path() string         { return "mobile" }
func (u SetEmail) Path() string          { return "email" }
func (u SetDateOfBirth) Path() string    { return "dateOfBirth" }
func (u SetAddress) Path() string        { return "address" }
func (u SetAadhaarNumber) Path() string  { return "aadhaar" }
func (u SetPANNumber) Path() string      { return "pan" }
func (u SetConfirmed) Path() string      { return "confirmed" }
func (u SetAadhaarImage) Path() string   { return "aadhaarImages." + string(u.Side) }
func (u SetPANImage) Path() string       { return "panImageUrl" }
func (u AddCard) Path() string           { return "creditCards" }
func (u RemoveCard) Path() string        { return "creditCards" }
func (u AddBankAccount) Path() string    { return "bankAccounts" }
func (u RemoveBankAccount) Path() string { return "bankAccounts" }

func (u SetCardField) Path() string {
	return fmt.Sprintf("creditCards.%d.%s", u.Index, u.Field)
}

func (u SetBankField) Path() string {
	return fmt.Sprintf("bankAccounts.%d.%s", u.Index, u.Field)
}

func (u SetName) apply(d *domain.FormDraft) error {
	d.Name = u.Value
	return nil
}

func (u SetMobile) apply(d *domain.FormDraft) error {
	d.Mobile = fv.FormatMobile(u.Value)
	return nil
}

func (u SetEmail) apply(d *domain.FormDraft) error {
	d.Email = strings.TrimSpace(u.Value)
	return nil
}

func (u SetDateOfBirth) apply(d *domain.FormDraft) error {
	d.DateOfBirth = strings.TrimSpace(u.Value)
	return nil
}

func (u SetAddress) apply(d *domain.FormDraft) error {
	d.Address = u.Value
	return nil
}

func (u SetAadhaarNumber) apply(d *domain.FormDraft) error {
	d.AadhaarNumber = fv.FormatAadhaar(u.Value)
	return nil
}

func (u SetPANNumber) apply(d *domain.FormDraft) error {
	d.PANNumber = fv.FormatPAN(u.Value)
	return nil
}

func (u SetConfirmed) apply(d *domain.FormDraft) error {
	d.Confirmed = u.Value
	return nil
}

func (u SetAadhaarImage) apply(d *domain.FormDraft) error {
	if u.Side != domain.ImageSideFront && u.Side != domain.ImageSideBack {
		return errors.Wrap(errors.ErrInvalidField, "unknown Aadhaar side "+string(u.Side))
	}
	d.AadhaarImages = d.AadhaarImages.With(u.Side, u.URL)
	return nil
}

func (u SetPANImage) apply(d *domain.FormDraft) error {
	d.PANImageURL = u.URL
	return nil
}

func (u AddCard) apply(d *domain.FormDraft) error {
	if len(d.CreditCards) >= MaxCards {
		return errors.ErrTooManyCards
	}
	d.CreditCards = append(d.CreditCards, domain.NewCreditCardEntry())
	return nil
}

func (u RemoveCard) apply(d *domain.FormDraft) error {
	if err := checkIndex(u.Index, len(d.CreditCards)); err != nil {
		return err
	}
	d.CreditCards = append(d.CreditCards[:u.Index:u.Index], d.CreditCards[u.Index+1:]...)
	return nil
}

func (u AddBankAccount) apply(d *domain.FormDraft) error {
	d.BankAccounts = append(d.BankAccounts, domain.BankAccountEntry{})
	return nil
}

func (u RemoveBankAccount) apply(d *domain.FormDraft) error {
	if err := checkIndex(u.Index, len(d.BankAccounts)); err != nil {
		return err
	}
	d.BankAccounts = append(d.BankAccounts[:u.Index:u.Index], d.BankAccounts[u.Index+1:]...)
	return nil
}

// apply on a card number also re-derives the formatted number and the network.
func (u SetCardField) apply(d *domain.FormDraft) error {
	if err := checkIndex(u.Index, len(d.CreditCards)); err != nil {
		return err
	}
	card := &d.CreditCards[u.Index]
	switch u.Field {
	case CardNumber:
		card.CardNumber = fv.FormatCardNumber(u.Value)
		card.CardType = fv.DetectCardNetwork(card.CardNumber)
	case CardCVV:
		card.CVV = truncateDigits(u.Value, 4)
	case CardExpiryDate:
		card.ExpiryDate = fv.FormatExpiry(u.Value)
	case CardLimit:
		if strings.TrimSpace(u.Value) == "" {
			card.CardLimit = decimal.Zero
			return nil
		}
		v, err := decimal.NewFromString(strings.TrimSpace(u.Value))
		if err != nil {
			return errors.Wrap(errors.ErrInvalidField, "card limit must be a number")
		}
		card.CardLimit = v
	case CardBankName:
		card.BankName = u.Value
	case CardHolderName:
		card.CardHolderName = u.Value
	case CardHolderMobile:
		card.CardHolderMobile = fv.FormatMobile(u.Value)
	case CardBillGenerationDate, CardDueDate:
		day, err := parseDay(u.Value)
		if err != nil {
			return err
		}
		if u.Field == CardDueDate {
			card.DueDate = day
		} else {
			card.BillGenerationDate = day
		}
	default:
		return errors.Wrap(errors.ErrInvalidField, "unknown card field "+string(u.Field))
	}
	return nil
}

func (u SetBankField) apply(d *domain.FormDraft) error {
	if err := checkIndex(u.Index, len(d.BankAccounts)); err != nil {
		return err
	}
	acc := &d.BankAccounts[u.Index]
	switch u.Field {
	case BankAccountNumber:
		acc.AccountNumber = truncateDigits(u.Value, 18)
	case BankAccountHolderName:
		acc.AccountHolderName = u.Value
	case BankMobile:
		acc.Mobile = fv.FormatMobile(u.Value)
	case BankName:
		acc.BankName = u.Value
	case BankIFSCCode:
		acc.IFSCCode = fv.FormatIFSC(u.Value)
	case BankBranch:
		acc.Branch = u.Value
	default:
		return errors.Wrap(errors.ErrInvalidField, "unknown bank field "+string(u.Field))
	}
	return nil
}

func checkIndex(i, n int) error {
	if i < 0 || i >= n {
		return errors.Wrap(errors.ErrInvalidField, fmt.Sprintf("no entry at index %d", i))
	}
	return nil
}

func truncateDigits(s string, n int) string {
	d := fv.DigitsOnly(s)
	if len(d) > n {
		return d[:n]
	}
	return d
}

func parseDay(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	day, err := strconv.Atoi(s)
	if err != nil || !fv.ValidateDayOfMonth(day) {
		return 0, errors.Wrap(errors.ErrInvalidField, "day must be between 1 and 31")
	}
	return day, nil
}

// ParseFieldUpdate turns a dotted path and a raw JSON value from the HTTP
// layer into a typed update. Collections take "add" on their own path and
// null on an indexed path to remove an entry.
func ParseFieldUpdate(path string, raw json.RawMessage) (FieldUpdate, error) {
	parts := strings.Split(strings.TrimSpace(path), ".")
	value, isNull, err := rawString(raw)
	if err != nil {
		return nil, err
	}

	switch parts[0] {
	case "name", "mobile", "email", "dateOfBirth", "address", "aadhaar", "pan", "panImageUrl", "confirmed":
		if len(parts) != 1 {
			break
		}
		return scalarUpdate(parts[0], value)
	case "aadhaarImages":
		if len(parts) != 2 {
			break
		}
		side := domain.ImageSide(parts[1])
		if side != domain.ImageSideFront && side != domain.ImageSideBack {
			break
		}
		return SetAadhaarImage{Side: side, URL: value}, nil
	case "creditCards", "bankAccounts":
		cards := parts[0] == "creditCards"
		switch len(parts) {
		case 1:
			if value != "add" {
				break
			}
			if cards {
				return AddCard{}, nil
			}
			return AddBankAccount{}, nil
		case 2, 3:
			idx, convErr := strconv.Atoi(parts[1])
			if convErr != nil {
				break
			}
			if len(parts) == 2 {
				if !isNull {
					break
				}
				if cards {
					return RemoveCard{Index: idx}, nil
				}
				return RemoveBankAccount{Index: idx}, nil
			}
			if cards {
				return SetCardField{Index: idx, Field: CardField(parts[2]), Value: value}, nil
			}
			return SetBankField{Index: idx, Field: BankField(parts[2]), Value: value}, nil
		}
	}
	return nil, errors.Wrap(errors.ErrInvalidField, "unknown field "+path)
}

func scalarUpdate(name, value string) (FieldUpdate, error) {
	switch name {
	case "name":
		return SetName{Value: value}, nil
	case "mobile":
		return SetMobile{Value: value}, nil
	case "email":
		return SetEmail{Value: value}, nil
	case "dateOfBirth":
		return SetDateOfBirth{Value: value}, nil
	case "address":
		return SetAddress{Value: value}, nil
	case "aadhaar":
		return SetAadhaarNumber{Value: value}, nil
	case "pan":
		return SetPANNumber{Value: value}, nil
	case "panImageUrl":
		return SetPANImage{URL: value}, nil
	default:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, errors.Wrap(errors.ErrInvalidField, "confirmed must be true or false")
		}
		return SetConfirmed{Value: b}, nil
	}
}

// rawString accepts JSON strings, numbers, booleans and null.
func rawString(raw json.RawMessage) (string, bool, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", true, nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, errors.Wrap(errors.ErrInvalidField, "malformed value")
		}
		return s, false, nil
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return "", false, errors.Wrap(errors.ErrInvalidField, "value must be a scalar")
	}
	return trimmed, false, nil
}
