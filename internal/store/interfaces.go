package store

import (
	"context"
	"time"

	"github.com/vinetrail/vinetrail-backend/types"
)

// ProposalStore persists trip proposals together with their payments and audit trail.
type ProposalStore interface {
	CreateProposal(ctx context.Context, p *types.TripProposal) (*types.TripProposal, error)
	GetProposal(ctx context.Context, id int64) (*types.TripProposal, error)
	GetProposalByNumber(ctx context.Context, number string) (*types.TripProposal, error)
	ListProposals(ctx context.Context, filter types.ProposalFilter, limit, offset int) ([]*types.TripProposal, error)
	// UpdateDraft applies update only while the proposal is still a draft.
	UpdateDraft(ctx context.Context, id int64, update types.ProposalUpdate) (*types.TripProposal, error)

	// TransitionStatus moves the proposal to `to` only if its current status is
	// one of `from`, and records activity in the same transaction. ErrConflict
	// when no row qualified.
	TransitionStatus(ctx context.Context, id int64, from []types.ProposalStatus, to types.ProposalStatus, activity types.ProposalActivity) (*types.TripProposal, error)
	AcceptProposal(ctx context.Context, id int64, acceptance types.Acceptance) (*types.TripProposal, error)
	MarkExpired(ctx context.Context, id int64) (*types.TripProposal, error)
	// ExpireOverdue expires every sent or viewed proposal whose validity ended before now.
	ExpireOverdue(ctx context.Context, now time.Time) ([]int64, error)

	// RecordDepositPayment marks the deposit paid and inserts the payment row
	// atomically. ErrConflict when the deposit is already paid.
	RecordDepositPayment(ctx context.Context, proposalID int64, payment types.PaymentRecord) (time.Time, error)
	ListPayments(ctx context.Context, proposalID int64) ([]types.PaymentRecord, error)
	ListActivity(ctx context.Context, proposalID int64) ([]types.ProposalActivity, error)
}

// VenueStore serves venue reference data.
type VenueStore interface {
	ListVenues(ctx context.Context) ([]types.Venue, error)
	UpsertVenues(ctx context.Context, venues []types.Venue) (int, error)
}

// BrandStore serves brand records.
type BrandStore interface {
	GetBrand(ctx context.Context, id int64) (*types.Brand, error)
}
