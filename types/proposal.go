package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProposalStatus string

const (
	ProposalStatusDraft     ProposalStatus = "draft"     // Being prepared by staff, not visible to the customer
	ProposalStatusSent      ProposalStatus = "sent"      // Emailed to the customer
	ProposalStatusViewed    ProposalStatus = "viewed"    // Customer opened the proposal link
	ProposalStatusAccepted  ProposalStatus = "accepted"  // Customer signed and agreed to terms
	ProposalStatusExpired   ProposalStatus = "expired"   // valid_until passed before acceptance
	ProposalStatusDeclined  ProposalStatus = "declined"  // Customer turned the offer down
	ProposalStatusCancelled ProposalStatus = "cancelled" // Withdrawn by staff
)

var proposalTransitions = map[ProposalStatus][]ProposalStatus{
	ProposalStatusDraft: {
		ProposalStatusSent,
		ProposalStatusCancelled,
	},
	ProposalStatusSent: {
		ProposalStatusViewed,
		ProposalStatusAccepted,
		ProposalStatusExpired,
		ProposalStatusDeclined,
		ProposalStatusCancelled,
	},
	ProposalStatusViewed: {
		ProposalStatusAccepted,
		ProposalStatusExpired,
		ProposalStatusDeclined,
		ProposalStatusCancelled,
	},
	ProposalStatusAccepted:  {}, // Terminal state
	ProposalStatusExpired:   {}, // Terminal state
	ProposalStatusDeclined:  {}, // Terminal state
	ProposalStatusCancelled: {}, // Terminal state
}

// IsValidTransition checks if a status transition is allowed
func (s ProposalStatus) IsValidTransition(newStatus ProposalStatus) bool {
	for _, allowed := range proposalTransitions[s] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// SourcesFor lists every status from which target can be reached.
func SourcesFor(target ProposalStatus) []ProposalStatus {
	var from []ProposalStatus
	for _, s := range []ProposalStatus{
		ProposalStatusDraft, ProposalStatusSent, ProposalStatusViewed,
		ProposalStatusAccepted, ProposalStatusExpired, ProposalStatusDeclined, ProposalStatusCancelled,
	} {
		if s.IsValidTransition(target) {
			from = append(from, s)
		}
	}
	return from
}

// IsAcceptable reports whether the customer may accept from this status.
func (s ProposalStatus) IsAcceptable() bool {
	return s == ProposalStatusSent || s == ProposalStatusViewed
}

// IsTerminal reports whether no further status change is possible.
func (s ProposalStatus) IsTerminal() bool {
	return len(proposalTransitions[s]) == 0 && s.IsValid()
}

func (s ProposalStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a known proposal status
func (s ProposalStatus) IsValid() bool {
	_, ok := proposalTransitions[s]
	return ok
}

// TripProposal is an offer sent to a customer. It is addressed externally by
// ProposalNumber and internally by ID.
type TripProposal struct {
	ID             int64   `json:"id"`
	ProposalNumber string  `json:"proposal_number"`
	BrandID        int64   `json:"brand_id"`
	BrandCode      string  `json:"brand_code"`
	CustomerName   string  `json:"customer_name"`
	CustomerEmail  string  `json:"customer_email"`
	CustomerPhone  *string `json:"customer_phone,omitempty"`
	TripTitle      string  `json:"trip_title"`
	TripType       string  `json:"trip_type"`
	// StartDate and EndDate are calendar dates; only the date part is meaningful.
	StartDate         time.Time       `json:"start_date"`
	EndDate           *time.Time      `json:"end_date,omitempty"`
	PartySize         int             `json:"party_size"`
	Total             decimal.Decimal `json:"total"`
	DepositAmount     decimal.Decimal `json:"deposit_amount"`
	Currency          string          `json:"currency"`
	Status            ProposalStatus  `json:"status"`
	DepositPaid       bool            `json:"deposit_paid"`
	DepositPaidAt     *time.Time      `json:"deposit_paid_at,omitempty"`
	PaymentIntentID   *string         `json:"payment_intent_id,omitempty"`
	ValidUntil        *time.Time      `json:"valid_until,omitempty"`
	SentAt            *time.Time      `json:"sent_at,omitempty"`
	ViewedAt          *time.Time      `json:"viewed_at,omitempty"`
	AcceptedAt        *time.Time      `json:"accepted_at,omitempty"`
	AcceptedSignature *string         `json:"accepted_signature,omitempty"`
	AcceptedIP        *string         `json:"accepted_ip,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// IsPastValidity reports whether valid_until is set and already behind now.
// valid_until is inclusive of its whole calendar day.
func (p *TripProposal) IsPastValidity(now time.Time) bool {
	if p.ValidUntil == nil {
		return false
	}
	v := p.ValidUntil.UTC()
	endOfDay := time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return !now.UTC().Before(endOfDay)
}

// ProposalCreate is the staff input for a new draft.
type ProposalCreate struct {
	BrandID       int64           `json:"brand_id" binding:"required"`
	CustomerName  string          `json:"customer_name" binding:"required"`
	CustomerEmail string          `json:"customer_email" binding:"required,email"`
	CustomerPhone *string         `json:"customer_phone"`
	TripTitle     string          `json:"trip_title" binding:"required"`
	TripType      string          `json:"trip_type"`
	StartDate     time.Time       `json:"start_date" binding:"required"`
	EndDate       *time.Time      `json:"end_date"`
	PartySize     int             `json:"party_size" binding:"required,min=1"`
	Total         decimal.Decimal `json:"total"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
	Currency      string          `json:"currency"`
	ValidUntil    *time.Time      `json:"valid_until"`
	Notes         string          `json:"notes"`
}

// ProposalUpdate changes a draft. Nil fields are left untouched.
type ProposalUpdate struct {
	CustomerName  *string          `json:"customer_name"`
	CustomerEmail *string          `json:"customer_email" binding:"omitempty,email"`
	CustomerPhone *string          `json:"customer_phone"`
	TripTitle     *string          `json:"trip_title"`
	TripType      *string          `json:"trip_type"`
	StartDate     *time.Time       `json:"start_date"`
	EndDate       *time.Time       `json:"end_date"`
	PartySize     *int             `json:"party_size" binding:"omitempty,min=1"`
	Total         *decimal.Decimal `json:"total"`
	DepositAmount *decimal.Decimal `json:"deposit_amount"`
	ValidUntil    *time.Time       `json:"valid_until"`
	Notes         *string          `json:"notes"`
}

// ProposalFilter narrows ListProposals. Zero values match everything.
type ProposalFilter struct {
	Status  ProposalStatus
	BrandID int64
	Search  string
}

// Acceptance is what gets persisted when a customer accepts.
type Acceptance struct {
	Signature string
	IPAddress string
	UserAgent string
	At        time.Time
}

// ActivityAction names an audited proposal event.
type ActivityAction string

const (
	ActivitySent        ActivityAction = "sent"
	ActivityViewed      ActivityAction = "viewed"
	ActivityAccepted    ActivityAction = "accepted"
	ActivityExpired     ActivityAction = "expired"
	ActivityDepositPaid ActivityAction = "deposit_paid"
	ActivityCancelled   ActivityAction = "cancelled"
	ActivityDeclined    ActivityAction = "declined"
)

// ActorType identifies who caused an activity.
type ActorType string

const (
	ActorCustomer ActorType = "customer"
	ActorStaff    ActorType = "staff"
	ActorSystem   ActorType = "system"
)

// ProposalActivity is one row of the proposal audit trail.
type ProposalActivity struct {
	ID         int64          `json:"id"`
	ProposalID int64          `json:"proposal_id"`
	Action     ActivityAction `json:"action"`
	ActorType  ActorType      `json:"actor_type"`
	ActorID    *string        `json:"actor_id,omitempty"`
	Signature  *string        `json:"signature,omitempty"`
	IPAddress  *string        `json:"ip_address,omitempty"`
	UserAgent  *string        `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Brand is an operating brand. Each may carry its own payment account.
type Brand struct {
	ID            int64  `json:"id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	FromEmail     string `json:"from_email"`
	PublicBaseURL string `json:"public_base_url"`
}
