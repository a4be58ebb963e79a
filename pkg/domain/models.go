package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// CardNetwork is the card scheme detected from the leading digits.
type CardNetwork string

const (
	CardNetworkVisa       CardNetwork = "Visa"
	CardNetworkMastercard CardNetwork = "Mastercard"
	CardNetworkAmex       CardNetwork = "Amex"
	CardNetworkRuPay      CardNetwork = "Rupay"
	CardNetworkUnknown    CardNetwork = "Unknown"
)

// ImageSide tags the two faces of an Aadhaar card.
type ImageSide string

const (
	ImageSideFront ImageSide = "front"
	ImageSideBack  ImageSide = "back"
)

// SubmitMode distinguishes a first submission from an edit of an existing client.
type SubmitMode string

const (
	SubmitModeCreate SubmitMode = "create"
	SubmitModeEdit   SubmitMode = "edit"
)

// ReminderStatus is maintained by the downstream dashboard.
type ReminderStatus string

const (
	ReminderStatusPending ReminderStatus = "pending"
	ReminderStatusPaid    ReminderStatus = "paid"
)

// ClientSource marks records created through the public onboarding form.
const ClientSource = "client_form"

// CreditCardEntry is one card captured on the cards step.
type CreditCardEntry struct {
	CardNumber         string          `json:"cardNumber"`
	CVV                string          `json:"cvv"`
	ExpiryDate         string          `json:"expiryDate"`
	CardLimit          decimal.Decimal `json:"cardLimit"`
	BankName           string          `json:"bankName"`
	CardType           CardNetwork     `json:"cardType"`
	CardHolderName     string          `json:"cardHolderName"`
	CardHolderMobile   string          `json:"cardHolderMobile"`
	BillGenerationDate int             `json:"billGenerationDate"`
	DueDate            int             `json:"dueDate"`
}

// NewCreditCardEntry returns an empty card. The zero limit is built the same
// way a decoded "0" is, so a blank card survives a JSON round trip unchanged.
func NewCreditCardEntry() CreditCardEntry {
	return CreditCardEntry{CardType: CardNetworkUnknown, CardLimit: decimal.NewFromInt(0)}
}

// IsBlank reports whether the user has not started filling the entry.
func (c CreditCardEntry) IsBlank() bool {
	return c.CardNumber == "" && c.CVV == "" && c.ExpiryDate == "" &&
		c.CardLimit.IsZero() && c.BankName == "" && c.CardHolderName == "" &&
		c.CardHolderMobile == "" && c.BillGenerationDate == 0 && c.DueDate == 0
}

// BankAccountEntry is one account captured on the bank step.
type BankAccountEntry struct {
	AccountNumber     string `json:"accountNumber"`
	AccountHolderName string `json:"accountHolderName"`
	Mobile            string `json:"mobile"`
	BankName          string `json:"bankName"`
	IFSCCode          string `json:"ifscCode"`
	Branch            string `json:"branch"`
}

func (b BankAccountEntry) IsBlank() bool {
	return b.AccountNumber == "" && b.AccountHolderName == "" && b.Mobile == "" &&
		b.BankName == "" && b.IFSCCode == "" && b.Branch == ""
}

// AadhaarImage is a hosted image of one side of the Aadhaar card.
type AadhaarImage struct {
	Side ImageSide `json:"side"`
	URL  string    `json:"url"`
}

type CreditCardList []CreditCardEntry

type BankAccountList []BankAccountEntry

type AadhaarImageList []AadhaarImage

// URL returns the image for side, or "" when it has not been uploaded.
func (l AadhaarImageList) URL(side ImageSide) string {
	for _, img := range l {
		if img.Side == side {
			return img.URL
		}
	}
	return ""
}

// With returns a copy of l where side points at url. At most one image per side is kept.
func (l AadhaarImageList) With(side ImageSide, url string) AadhaarImageList {
	out := make(AadhaarImageList, 0, 2)
	for _, img := range l {
		if img.Side != side {
			out = append(out, img)
		}
	}
	if url != "" {
		out = append(out, AadhaarImage{Side: side, URL: url})
	}
	return out
}

// FormDraft is the in-progress aggregate owned by one wizard session.
type FormDraft struct {
	Name          string           `json:"name"`
	Mobile        string           `json:"mobile"`
	Email         string           `json:"email,omitempty"`
	DateOfBirth   string           `json:"dateOfBirth,omitempty"`
	Address       string           `json:"address,omitempty"`
	AadhaarNumber string           `json:"aadhaar,omitempty"`
	PANNumber     string           `json:"pan,omitempty"`
	AadhaarImages AadhaarImageList `json:"aadhaarImages"`
	PANImageURL   string           `json:"panImageUrl,omitempty"`
	CreditCards   CreditCardList   `json:"creditCards"`
	BankAccounts  BankAccountList  `json:"bankAccounts"`
	Confirmed     bool             `json:"confirmed"`
}

// NewFormDraft returns the state of a fresh form: one empty card slot.
func NewFormDraft() *FormDraft {
	return &FormDraft{
		AadhaarImages: AadhaarImageList{},
		CreditCards:   CreditCardList{NewCreditCardEntry()},
		BankAccounts:  BankAccountList{},
	}
}

// Normalize replaces missing collections with empty ones and gives zero card
// limits a single representation.
func (d *FormDraft) Normalize() {
	if d.AadhaarImages == nil {
		d.AadhaarImages = AadhaarImageList{}
	}
	if d.CreditCards == nil {
		d.CreditCards = CreditCardList{}
	}
	if d.BankAccounts == nil {
		d.BankAccounts = BankAccountList{}
	}
	for i := range d.CreditCards {
		if d.CreditCards[i].CardLimit.IsZero() {
			d.CreditCards[i].CardLimit = decimal.NewFromInt(0)
		}
	}
}

// Clone returns a deep copy so callers can read it without holding the session lock.
func (d *FormDraft) Clone() *FormDraft {
	c := *d
	c.AadhaarImages = append(AadhaarImageList{}, d.AadhaarImages...)
	c.CreditCards = append(CreditCardList{}, d.CreditCards...)
	c.BankAccounts = append(BankAccountList{}, d.BankAccounts...)
	return &c
}

// Distributor is the read-only referrer identified by the form link.
type Distributor struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ClientRecord is the persisted projection of a submitted FormDraft.
type ClientRecord struct {
	ClientID      string           `json:"clientId" db:"client_id"`
	DistributorID string           `json:"distributorId" db:"distributor_id"`
	UserID        *uuid.UUID       `json:"userId,omitempty" db:"user_id"`
	Name          string           `json:"name" db:"name"`
	Mobile        string           `json:"mobile" db:"mobile"`
	Email         string           `json:"email" db:"email"`
	DateOfBirth   string           `json:"dateOfBirth" db:"date_of_birth"`
	Address       string           `json:"address" db:"address"`
	AadhaarNumber string           `json:"aadhaar" db:"aadhaar_number"`
	PANNumber     string           `json:"pan" db:"pan_number"`
	AadhaarImages AadhaarImageList `json:"aadhaarImages" db:"aadhaar_images"`
	PANImageURL   string           `json:"panImageUrl" db:"pan_image_url"`
	CreditCards   CreditCardList   `json:"creditCards" db:"credit_cards"`
	BankAccounts  BankAccountList  `json:"bankAccounts" db:"bank_accounts"`
	Source        string           `json:"source" db:"source"`
	SubmittedAt   time.Time        `json:"submittedAt" db:"submitted_at"`
	UpdatedAt     time.Time        `json:"updatedAt" db:"updated_at"`
}

// ToDraft reloads a stored client into an editable draft.
func (c *ClientRecord) ToDraft() *FormDraft {
	d := &FormDraft{
		Name:          c.Name,
		Mobile:        c.Mobile,
		Email:         c.Email,
		DateOfBirth:   c.DateOfBirth,
		Address:       c.Address,
		AadhaarNumber: c.AadhaarNumber,
		PANNumber:     c.PANNumber,
		AadhaarImages: c.AadhaarImages,
		PANImageURL:   c.PANImageURL,
		CreditCards:   c.CreditCards,
		BankAccounts:  c.BankAccounts,
	}
	d.Normalize()
	return d.Clone()
}

// ReminderRecord tracks the payment due status of one card for the dashboard.
type ReminderRecord struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	ClientID           string          `json:"clientId" db:"client_id"`
	ClientName         string          `json:"clientName" db:"client_name"`
	ClientMobile       string          `json:"clientMobile" db:"client_mobile"`
	DistributorID      string          `json:"distributorId" db:"distributor_id"`
	CardNumber         string          `json:"cardNumber" db:"card_number"`
	CardType           CardNetwork     `json:"cardType" db:"card_type"`
	BankName           string          `json:"bankName" db:"bank_name"`
	CardHolderName     string          `json:"cardHolderName" db:"card_holder_name"`
	CardLimit          decimal.Decimal `json:"cardLimit" db:"card_limit"`
	BillGenerationDate int             `json:"billGenerationDate" db:"bill_generation_date"`
	DueDate            int             `json:"dueDate" db:"due_date"`
	Status             ReminderStatus  `json:"status" db:"status"`
	CreatedAt          time.Time       `json:"createdAt" db:"created_at"`
}

// User is the identity provider profile of a dashboard user.
type User struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	Name          string         `json:"name" db:"name"`
	Email         string         `json:"email" db:"email"`
	PasswordHash  *string        `json:"-" db:"password_hash"`
	GoogleSubject *string        `json:"-" db:"google_subject"`
	ClientIDs     pq.StringArray `json:"clientIds" db:"client_ids"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

func (l CreditCardList) Value() (driver.Value, error) {
	return jsonValue(l)
}

func (l *CreditCardList) Scan(value interface{}) error {
	return jsonScan(value, l)
}

func (l BankAccountList) Value() (driver.Value, error) {
	return jsonValue(l)
}

func (l *BankAccountList) Scan(value interface{}) error {
	return jsonScan(value, l)
}

func (l AadhaarImageList) Value() (driver.Value, error) {
	return jsonValue(l)
}

func (l *AadhaarImageList) Scan(value interface{}) error {
	return jsonScan(value, l)
}

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(value interface{}, dest interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, dest)
}

// ImageUpload is an image file received from the client, held in memory until
// it is pushed to the image host.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (f ImageUpload) Size() int64 {
	return int64(len(f.Data))
}
