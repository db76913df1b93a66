package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/vinetrail/vinetrail-backend/errors"
	"github.com/vinetrail/vinetrail-backend/internal/store"
	"github.com/vinetrail/vinetrail-backend/pkg/valueobjects"
	"github.com/vinetrail/vinetrail-backend/types"
)

func validTripType(t string) bool {
	for _, known := range types.TripTypes {
		if known == t {
			return true
		}
	}
	return false
}

func validateAmounts(total, deposit *valueobjects.Money) error {
	if deposit.Amount().GreaterThan(total.Amount()) {
		return apperrors.ValidationFailed("Deposit cannot exceed the trip total", "")
	}
	return nil
}

// Create stores a new draft proposal.
func (s *ProposalService) Create(ctx context.Context, in types.ProposalCreate) (*types.TripProposal, error) {
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = s.defaultCurrency
	}
	total, err := valueobjects.NewMoney(in.Total, currency)
	if err != nil {
		return nil, err
	}
	deposit, err := valueobjects.NewMoney(in.DepositAmount, currency)
	if err != nil {
		return nil, err
	}
	if err := validateAmounts(total, deposit); err != nil {
		return nil, err
	}

	tripType := in.TripType
	if tripType == "" {
		tripType = "wine_tour"
	}
	if !validTripType(tripType) {
		return nil, apperrors.ValidationFailed("Invalid trip type",
			fmt.Sprintf("trip type must be one of %s", strings.Join(types.TripTypes, ", ")))
	}
	if in.EndDate != nil && in.EndDate.Before(in.StartDate) {
		return nil, apperrors.ValidationFailed("End date cannot be before start date", "")
	}

	created, err := s.store.CreateProposal(ctx, &types.TripProposal{
		BrandID:       in.BrandID,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerEmail: strings.TrimSpace(in.CustomerEmail),
		CustomerPhone: in.CustomerPhone,
		TripTitle:     strings.TrimSpace(in.TripTitle),
		TripType:      tripType,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		PartySize:     in.PartySize,
		Total:         total.Amount(),
		DepositAmount: deposit.Amount(),
		Currency:      string(total.Currency()),
		ValidUntil:    in.ValidUntil,
		Notes:         in.Notes,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("Brand", in.BrandID)
		}
		return nil, translateStoreError(err, in.BrandID)
	}
	return created, nil
}

// UpdateDraft edits a proposal that has not been sent yet.
func (s *ProposalService) UpdateDraft(ctx context.Context, id int64, update types.ProposalUpdate) (*types.TripProposal, error) {
	if update.TripType != nil && !validTripType(*update.TripType) {
		return nil, apperrors.ValidationFailed("Invalid trip type",
			fmt.Sprintf("trip type must be one of %s", strings.Join(types.TripTypes, ", ")))
	}
	if update.Total != nil || update.DepositAmount != nil {
		current, err := s.loadByID(ctx, id)
		if err != nil {
			return nil, err
		}
		totalAmt, depositAmt := current.Total, current.DepositAmount
		if update.Total != nil {
			totalAmt = *update.Total
		}
		if update.DepositAmount != nil {
			depositAmt = *update.DepositAmount
		}
		total, err := valueobjects.NewMoney(totalAmt, current.Currency)
		if err != nil {
			return nil, err
		}
		deposit, err := valueobjects.NewMoney(depositAmt, current.Currency)
		if err != nil {
			return nil, err
		}
		if err := validateAmounts(total, deposit); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.UpdateDraft(ctx, id, update)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperrors.InvalidStatusTransition("not_draft", "Only draft proposals can be edited")
		}
		return nil, translateStoreError(err, id)
	}
	return updated, nil
}

// transition moves a proposal to `to` from any status allowed to reach it.
func (s *ProposalService) transition(ctx context.Context, id int64, to types.ProposalStatus, activity types.ProposalActivity) (*types.TripProposal, error) {
	p, err := s.store.TransitionStatus(ctx, id, types.SourcesFor(to), to, activity)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, translateStoreError(err, id)
	}
	current, getErr := s.loadByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, apperrors.InvalidStatusTransition(string(current.Status),
		fmt.Sprintf("Cannot change a %s proposal to %s", current.Status, to))
}

// Send publishes a draft to the customer and emails them the link.
func (s *ProposalService) Send(ctx context.Context, id int64, actorID string) (*types.TripProposal, error) {
	sent, err := s.transition(ctx, id, types.ProposalStatusSent, types.ProposalActivity{
		Action:    types.ActivitySent,
		ActorType: types.ActorStaff,
		ActorID:   optional(actorID),
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher.Dispatch("proposal_sent", func(ctx context.Context) error {
		return s.notifier.ProposalSent(ctx, id)
	})
	return sent, nil
}

// Cancel withdraws a proposal that has not reached a terminal status.
func (s *ProposalService) Cancel(ctx context.Context, id int64, actorID string) (*types.TripProposal, error) {
	return s.transition(ctx, id, types.ProposalStatusCancelled, types.ProposalActivity{
		Action:    types.ActivityCancelled,
		ActorType: types.ActorStaff,
		ActorID:   optional(actorID),
	})
}

// Get returns a proposal by internal id.
func (s *ProposalService) Get(ctx context.Context, id int64) (*types.TripProposal, error) {
	return s.loadByID(ctx, id)
}

// List returns proposals newest first.
func (s *ProposalService) List(ctx context.Context, filter types.ProposalFilter, limit, offset int) ([]*types.TripProposal, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, apperrors.ValidationFailed("Invalid status filter", string(filter.Status))
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	proposals, err := s.store.ListProposals(ctx, filter, limit, offset)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return proposals, nil
}

// ListPayments returns the payments recorded against a proposal.
func (s *ProposalService) ListPayments(ctx context.Context, id int64) ([]types.PaymentRecord, error) {
	if _, err := s.loadByID(ctx, id); err != nil {
		return nil, err
	}
	records, err := s.store.ListPayments(ctx, id)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return records, nil
}

// ListActivity returns the audit trail of a proposal.
func (s *ProposalService) ListActivity(ctx context.Context, id int64) ([]types.ProposalActivity, error) {
	if _, err := s.loadByID(ctx, id); err != nil {
		return nil, err
	}
	activity, err := s.store.ListActivity(ctx, id)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return activity, nil
}

// ExpireOverdue expires every sent or viewed proposal past its validity.
func (s *ProposalService) ExpireOverdue(ctx context.Context) ([]int64, error) {
	ids, err := s.store.ExpireOverdue(ctx, s.now())
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	if len(ids) > 0 {
		s.log.Infow("Expired overdue proposals", "count", len(ids))
	}
	return ids, nil
}
