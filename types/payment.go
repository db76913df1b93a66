package types

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentKindDeposit     = "deposit"
	PaymentStatusSucceeded = "succeeded"
	DepositIntentTypeTag   = "trip_proposal_deposit"
	PaymentMetaProposalID  = "proposal_id"
	PaymentMetaProposalNum = "proposal_number"
	PaymentMetaType        = "type"
)

// PaymentRecord is one successful charge against a proposal. There is at most
// one record per (proposal, kind) and per provider charge reference.
type PaymentRecord struct {
	ID              int64           `json:"id"`
	ProposalID      int64           `json:"proposal_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Kind            string          `json:"kind"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

// DepositIntent is returned to the customer so the browser can complete the charge.
type DepositIntent struct {
	PaymentIntentID string          `json:"payment_intent_id"`
	ClientSecret    string          `json:"client_secret"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

// DepositConfirmation is the confirm-payment response body.
type DepositConfirmation struct {
	AlreadyPaid     bool            `json:"already_paid,omitempty"`
	DepositPaid     bool            `json:"deposit_paid"`
	DepositAmount   decimal.Decimal `json:"deposit_amount"`
	DepositPaidAt   *time.Time      `json:"deposit_paid_at,omitempty"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
}
