package wizard

import "fmt"

// Step is a 1-based position in the wizard.
type Step int

const (
	StepPersonal Step = iota + 1
	StepDocuments
	StepBankAccounts
	StepCreditCards
	StepReview
)

const (
	FirstStep  = StepPersonal
	LastStep   = StepReview
	TotalSteps = int(LastStep)
)

// MaxCards caps the number of card entries on one draft.
const MaxCards = 10

// Steps lists every step in display order.
var Steps = []Step{StepPersonal, StepDocuments, StepBankAccounts, StepCreditCards, StepReview}

func (s Step) Valid() bool {
	return s >= FirstStep && s <= LastStep
}

func (s Step) String() string {
	switch s {
	case StepPersonal:
		return "personal"
	case StepDocuments:
		return "documents"
	case StepBankAccounts:
		return "bank_accounts"
	case StepCreditCards:
		return "credit_cards"
	case StepReview:
		return "review"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}
