package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/vinetrail/vinetrail-backend/errors"
	"github.com/vinetrail/vinetrail-backend/internal/store"
	"github.com/vinetrail/vinetrail-backend/logger"
	"github.com/vinetrail/vinetrail-backend/pkg/payments"
	"github.com/vinetrail/vinetrail-backend/pkg/valueobjects"
	"github.com/vinetrail/vinetrail-backend/types"
)

// proposalNumberPattern is the externally visible number: letters, a dash, digits.
var proposalNumberPattern = regexp.MustCompile(`^[A-Za-z]+-\d+$`)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Customer-facing status messages.
const (
	msgNotSent         = "This proposal has not been sent and cannot be accepted"
	msgAlreadyAccepted = "This proposal has already been accepted"
	msgExpired         = "This proposal has expired"
	msgUnavailable     = "This proposal is no longer available"
)

// Dispatcher runs best-effort work after the caller's response is decided.
type Dispatcher interface {
	Dispatch(name string, fn func(ctx context.Context) error)
}

// Notifier sends proposal notifications.
type Notifier interface {
	ProposalSent(ctx context.Context, proposalID int64) error
	ProposalAccepted(ctx context.Context, proposalID int64) error
	DepositReceived(ctx context.Context, proposalID int64, amount decimal.Decimal) error
}

// AcceptInput is the customer's acceptance request.
type AcceptInput struct {
	Signature     string
	AgreedToTerms bool
	IPAddress     string
	UserAgent     string
}

// ProposalService drives the proposal lifecycle: staff editing and sending,
// customer acceptance and the deposit payment.
type ProposalService struct {
	store           store.ProposalStore
	payments        payments.Registry
	dispatcher      Dispatcher
	notifier        Notifier
	defaultCurrency string
	now             func() time.Time
	log             *zap.SugaredLogger
}

// Option configures a ProposalService.
type Option func(*ProposalService)

// WithClock overrides the time source used for validity checks.
func WithClock(now func() time.Time) Option {
	return func(s *ProposalService) { s.now = now }
}

// WithDefaultCurrency sets the currency of proposals created without one.
func WithDefaultCurrency(currency string) Option {
	return func(s *ProposalService) {
		if currency != "" {
			s.defaultCurrency = strings.ToUpper(currency)
		}
	}
}

// NewProposalService creates a new proposal service.
func NewProposalService(proposalStore store.ProposalStore, registry payments.Registry, dispatcher Dispatcher, notifier Notifier, opts ...Option) *ProposalService {
	s := &ProposalService{
		store:           proposalStore,
		payments:        registry,
		dispatcher:      dispatcher,
		notifier:        notifier,
		defaultCurrency: string(valueobjects.USD),
		now:             time.Now,
		log:             logger.GetLogger().Named("proposal_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateProposalNumber rejects malformed numbers before any lookup.
func ValidateProposalNumber(number string) error {
	if !proposalNumberPattern.MatchString(number) {
		return apperrors.ValidationFailed("Invalid proposal number", fmt.Sprintf("proposal number %q is not in the expected format", number))
	}
	return nil
}

func (s *ProposalService) loadByNumber(ctx context.Context, number string) (*types.TripProposal, error) {
	if err := ValidateProposalNumber(number); err != nil {
		return nil, err
	}
	p, err := s.store.GetProposalByNumber(ctx, number)
	if err != nil {
		return nil, translateStoreError(err, number)
	}
	return p, nil
}

func (s *ProposalService) loadByID(ctx context.Context, id int64) (*types.TripProposal, error) {
	p, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return nil, translateStoreError(err, id)
	}
	return p, nil
}

func translateStoreError(err error, id interface{}) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NotFound("Proposal", id)
	case errors.Is(err, store.ErrConflict):
		return apperrors.Conflict("Proposal was changed by another request", fmt.Sprintf("ID: %v", id))
	default:
		if _, ok := apperrors.As(err); ok {
			return err
		}
		return apperrors.NewDatabaseError(err)
	}
}

// acceptanceBlocked returns the customer message for a status that cannot be
// accepted, or nil.
func acceptanceBlocked(status types.ProposalStatus) error {
	switch status {
	case types.ProposalStatusSent, types.ProposalStatusViewed:
		return nil
	case types.ProposalStatusDraft:
		return apperrors.InvalidStatusTransition(string(status), msgNotSent)
	case types.ProposalStatusAccepted:
		return apperrors.InvalidStatusTransition(string(status), msgAlreadyAccepted)
	case types.ProposalStatusExpired:
		return apperrors.InvalidStatusTransition(string(status), msgExpired)
	default:
		return apperrors.InvalidStatusTransition(string(status), msgUnavailable)
	}
}

// expireIfOverdue moves a sent or viewed proposal past its validity to
// expired and reports whether it was overdue.
func (s *ProposalService) expireIfOverdue(ctx context.Context, p *types.TripProposal) bool {
	if !p.IsPastValidity(s.now()) {
		return false
	}
	if p.Status == types.ProposalStatusSent || p.Status == types.ProposalStatusViewed {
		expired, err := s.store.MarkExpired(ctx, p.ID)
		switch {
		case err == nil:
			*p = *expired
		case errors.Is(err, store.ErrConflict):
			// someone else moved it first
		default:
			s.log.Errorw("Failed to mark proposal expired", "proposalId", p.ID, "error", err)
		}
	}
	return true
}

// Accept records the customer's acceptance of a sent or viewed proposal.
func (s *ProposalService) Accept(ctx context.Context, number string, in AcceptInput) (*types.TripProposal, error) {
	p, err := s.loadByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if err := acceptanceBlocked(p.Status); err != nil {
		return nil, err
	}
	if s.expireIfOverdue(ctx, p) {
		return nil, apperrors.InvalidStatusTransition(string(types.ProposalStatusExpired), msgExpired)
	}

	signature := strings.TrimSpace(in.Signature)
	if signature == "" {
		return nil, apperrors.ValidationFailed("Signature is required", "")
	}
	if !in.AgreedToTerms {
		return nil, apperrors.ValidationFailed("You must agree to the terms and conditions", "")
	}

	accepted, err := s.store.AcceptProposal(ctx, p.ID, types.Acceptance{
		Signature: signature,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		At:        s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a race; report the status that won.
			current, getErr := s.loadByID(ctx, p.ID)
			if getErr != nil {
				return nil, getErr
			}
			if blocked := acceptanceBlocked(current.Status); blocked != nil {
				return nil, blocked
			}
		}
		return nil, translateStoreError(err, number)
	}

	s.log.Infow("Proposal accepted", "proposalId", accepted.ID, "proposalNumber", accepted.ProposalNumber)
	id := accepted.ID
	s.dispatcher.Dispatch("proposal_accepted", func(ctx context.Context) error {
		return s.notifier.ProposalAccepted(ctx, id)
	})
	return accepted, nil
}

// depositMoney validates the proposal's deposit as a chargeable amount.
func depositMoney(p *types.TripProposal) (*valueobjects.Money, error) {
	m, err := valueobjects.NewMoney(p.DepositAmount, p.Currency)
	if err != nil {
		return nil, err
	}
	if !m.IsPositive() {
		return nil, apperrors.ValidationFailed("This proposal has no deposit to pay", "")
	}
	return m, nil
}

// DepositIdempotencyKey is derived from proposal and amount so a retried
// intent creation never produces a second charge.
func DepositIdempotencyKey(proposalID int64, amountCents int64) string {
	return fmt.Sprintf("proposal-deposit-%d-%d", proposalID, amountCents)
}

func (s *ProposalService) providerFor(p *types.TripProposal) (payments.Provider, error) {
	provider, err := s.payments.ForBrand(p.BrandCode)
	if err != nil {
		if errors.Is(err, payments.ErrNotConfigured) {
			return nil, apperrors.PaymentFailed("payments_not_configured",
				"Online payment is not configured for this proposal. Please contact us to pay your deposit.")
		}
		return nil, apperrors.ExternalServiceFailed("payment_provider", err)
	}
	return provider, nil
}

// CreateDepositIntent opens a card charge for the deposit of an accepted,
// unpaid proposal.
func (s *ProposalService) CreateDepositIntent(ctx context.Context, number string) (*types.DepositIntent, error) {
	p, err := s.loadByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if p.Status != types.ProposalStatusAccepted {
		return nil, apperrors.InvalidStatusTransition(string(p.Status), "The deposit can only be paid after the proposal is accepted")
	}
	if p.DepositPaid {
		return nil, apperrors.InvalidStatusTransition("deposit_paid", "The deposit for this proposal has already been paid")
	}
	amount, err := depositMoney(p)
	if err != nil {
		return nil, err
	}
	provider, err := s.providerFor(p)
	if err != nil {
		return nil, err
	}

	intent, err := provider.CreatePaymentIntent(ctx, payments.CreateIntentParams{
		Amount:       amount.MinorUnits(),
		Currency:     amount.ProviderCurrency(),
		Description:  fmt.Sprintf("Deposit for %s (%s)", p.TripTitle, p.ProposalNumber),
		ReceiptEmail: p.CustomerEmail,
		Metadata: map[string]string{
			types.PaymentMetaProposalID:  strconv.FormatInt(p.ID, 10),
			types.PaymentMetaProposalNum: p.ProposalNumber,
			types.PaymentMetaType:        types.DepositIntentTypeTag,
		},
		IdempotencyKey: DepositIdempotencyKey(p.ID, amount.MinorUnits()),
	})
	if err != nil {
		return nil, apperrors.ExternalServiceFailed("payment_provider", err)
	}

	return &types.DepositIntent{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          amount.Amount(),
		Currency:        string(amount.Currency()),
	}, nil
}

func alreadyPaid(p *types.TripProposal) *types.DepositConfirmation {
	c := &types.DepositConfirmation{
		AlreadyPaid:   true,
		DepositPaid:   true,
		DepositAmount: p.DepositAmount,
		DepositPaidAt: p.DepositPaidAt,
	}
	if p.PaymentIntentID != nil {
		c.PaymentIntentID = *p.PaymentIntentID
	}
	return c
}

// ConfirmDeposit verifies a provider charge and records the deposit. A
// proposal that is already paid is reported as such without contacting the
// provider.
func (s *ProposalService) ConfirmDeposit(ctx context.Context, number, paymentIntentID string) (*types.DepositConfirmation, error) {
	p, err := s.loadByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if p.DepositPaid {
		return alreadyPaid(p), nil
	}

	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return nil, apperrors.ValidationFailed("Payment intent ID is required", "")
	}

	provider, err := s.providerFor(p)
	if err != nil {
		return nil, err
	}
	intent, err := provider.GetPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		var perr *payments.ProviderError
		if errors.As(err, &perr) && perr.IsNotFound() {
			return nil, apperrors.PaymentFailed("payment_not_found", "Payment could not be found")
		}
		return nil, apperrors.ExternalServiceFailed("payment_provider", err)
	}

	if intent.Status != types.PaymentStatusSucceeded {
		return nil, apperrors.PaymentFailed("payment_not_succeeded",
			fmt.Sprintf("Payment has not succeeded (status: %s)", intent.Status))
	}
	if intent.Metadata[types.PaymentMetaProposalID] != strconv.FormatInt(p.ID, 10) ||
		intent.Metadata[types.PaymentMetaType] != types.DepositIntentTypeTag {
		s.log.Warnw("Payment metadata does not match proposal",
			"proposalId", p.ID, "paymentIntentId", intent.ID, "metadata", intent.Metadata)
		return nil, apperrors.PaymentFailed("payment_mismatch", "Payment does not match this proposal")
	}

	charged, err := valueobjects.FromMinorUnits(intent.Amount, intent.Currency)
	if err != nil {
		return nil, err
	}

	paidAt, err := s.store.RecordDepositPayment(ctx, p.ID, types.PaymentRecord{
		PaymentIntentID: intent.ID,
		Amount:          charged.Amount(),
		Currency:        string(charged.Currency()),
		Kind:            types.PaymentKindDeposit,
		Status:          types.PaymentStatusSucceeded,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// A concurrent confirmation won.
			current, getErr := s.loadByID(ctx, p.ID)
			if getErr != nil {
				return nil, getErr
			}
			return alreadyPaid(current), nil
		}
		return nil, translateStoreError(err, number)
	}

	s.log.Infow("Deposit confirmed", "proposalId", p.ID, "paymentIntentId", intent.ID, "amount", charged.String())
	id, amount := p.ID, charged.Amount()
	s.dispatcher.Dispatch("deposit_received", func(ctx context.Context) error {
		return s.notifier.DepositReceived(ctx, id, amount)
	})

	return &types.DepositConfirmation{
		DepositPaid:     true,
		DepositAmount:   p.DepositAmount,
		DepositPaidAt:   &paidAt,
		PaymentIntentID: intent.ID,
	}, nil
}

// ViewByNumber returns a proposal to the customer and records the first view.
// Drafts are not visible.
func (s *ProposalService) ViewByNumber(ctx context.Context, number, ipAddress, userAgent string) (*types.TripProposal, error) {
	p, err := s.loadByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if p.Status == types.ProposalStatusDraft {
		return nil, apperrors.NotFound("Proposal", number)
	}
	if s.expireIfOverdue(ctx, p) {
		return p, nil
	}
	if p.Status != types.ProposalStatusSent {
		return p, nil
	}

	viewed, err := s.store.TransitionStatus(ctx, p.ID,
		[]types.ProposalStatus{types.ProposalStatusSent}, types.ProposalStatusViewed,
		types.ProposalActivity{
			Action:    types.ActivityViewed,
			ActorType: types.ActorCustomer,
			IPAddress: optional(ipAddress),
			UserAgent: optional(userAgent),
		})
	if err != nil {
		if !errors.Is(err, store.ErrConflict) {
			s.log.Errorw("Failed to record proposal view", "proposalId", p.ID, "error", err)
		}
		return p, nil
	}
	return viewed, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
