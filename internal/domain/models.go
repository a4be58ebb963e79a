// Package domain re-exports core domain types so internal code can import
// `onboard/internal/domain` while using definitions from `onboard/pkg/domain`.
package domain

import pkg "onboard/pkg/domain"

// FormDraft is the in-progress form owned by one wizard session.
type FormDraft = pkg.FormDraft

type CreditCardEntry = pkg.CreditCardEntry

type BankAccountEntry = pkg.BankAccountEntry

type AadhaarImage = pkg.AadhaarImage

type CreditCardList = pkg.CreditCardList

type BankAccountList = pkg.BankAccountList

type AadhaarImageList = pkg.AadhaarImageList

// Distributor is the referrer resolved from the form link.
type Distributor = pkg.Distributor

// ClientRecord is a submitted client.
type ClientRecord = pkg.ClientRecord

// ReminderRecord is the per-card record derived at submit time.
type ReminderRecord = pkg.ReminderRecord

type User = pkg.User

// ImageUpload is an in-memory image awaiting upload.
type ImageUpload = pkg.ImageUpload

type CardNetwork = pkg.CardNetwork

const (
	CardNetworkVisa       = pkg.CardNetworkVisa
	CardNetworkMastercard = pkg.CardNetworkMastercard
	CardNetworkAmex       = pkg.CardNetworkAmex
	CardNetworkRuPay      = pkg.CardNetworkRuPay
	CardNetworkUnknown    = pkg.CardNetworkUnknown
)

type ImageSide = pkg.ImageSide

const (
	ImageSideFront = pkg.ImageSideFront
	ImageSideBack  = pkg.ImageSideBack
)

type SubmitMode = pkg.SubmitMode

const (
	SubmitModeCreate = pkg.SubmitModeCreate
	SubmitModeEdit   = pkg.SubmitModeEdit
)

type ReminderStatus = pkg.ReminderStatus

const (
	ReminderStatusPending = pkg.ReminderStatusPending
	ReminderStatusPaid    = pkg.ReminderStatusPaid
)

const ClientSource = pkg.ClientSource

// NewFormDraft returns an empty draft with one blank card slot.
func NewFormDraft() *FormDraft {
	return pkg.NewFormDraft()
}

func NewCreditCardEntry() CreditCardEntry {
	return pkg.NewCreditCardEntry()
}
