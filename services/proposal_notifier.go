package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vinetrail/vinetrail-backend/internal/store"
	"github.com/vinetrail/vinetrail-backend/logger"
	"github.com/vinetrail/vinetrail-backend/pkg/valueobjects"
	"github.com/vinetrail/vinetrail-backend/types"
)

// ProposalNotifier emails customers and staff about proposal milestones. It
// runs on the worker pool, after the state change has been committed.
type ProposalNotifier struct {
	proposals    store.ProposalStore
	brands       store.BrandStore
	email        types.EmailService
	staffAddress string
	// defaultBaseURL is used when the brand has no public URL of its own.
	defaultBaseURL string
	log            *zap.SugaredLogger
}

func NewProposalNotifier(proposals store.ProposalStore, brands store.BrandStore, email types.EmailService, staffAddress, defaultBaseURL string) *ProposalNotifier {
	return &ProposalNotifier{
		proposals:      proposals,
		brands:         brands,
		email:          email,
		staffAddress:   staffAddress,
		defaultBaseURL: strings.TrimRight(defaultBaseURL, "/"),
		log:            logger.GetLogger().Named("proposal_notifier"),
	}
}

type proposalContext struct {
	proposal *types.TripProposal
	brand    *types.Brand
	baseURL  string
}

func (n *ProposalNotifier) load(ctx context.Context, proposalID int64) (*proposalContext, error) {
	p, err := n.proposals.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("load proposal %d: %w", proposalID, err)
	}
	pc := &proposalContext{proposal: p, baseURL: n.defaultBaseURL}
	brand, err := n.brands.GetBrand(ctx, p.BrandID)
	if err != nil {
		// Generic sender and links are still usable.
		n.log.Warnw("Failed to load brand for notification", "proposalId", proposalID, "brandId", p.BrandID, "error", err)
		return pc, nil
	}
	pc.brand = brand
	if brand.PublicBaseURL != "" {
		pc.baseURL = strings.TrimRight(brand.PublicBaseURL, "/")
	}
	return pc, nil
}

func (pc *proposalContext) fromName() string {
	if pc.brand == nil {
		return ""
	}
	return pc.brand.Name
}

func (pc *proposalContext) proposalURL() string {
	return pc.baseURL + "/proposals/" + pc.proposal.ProposalNumber
}

func (pc *proposalContext) adminURL() string {
	return fmt.Sprintf("%s/admin/proposals/%d", pc.baseURL, pc.proposal.ID)
}

func formatAmount(amount decimal.Decimal, currency string) string {
	m, err := valueobjects.NewMoney(amount, currency)
	if err != nil {
		return amount.StringFixed(2) + " " + strings.ToUpper(currency)
	}
	return m.String()
}

// ProposalSent emails the customer a link to the proposal.
func (n *ProposalNotifier) ProposalSent(ctx context.Context, proposalID int64) error {
	pc, err := n.load(ctx, proposalID)
	if err != nil {
		return err
	}
	p := pc.proposal
	data := map[string]interface{}{
		"CustomerName":   p.CustomerName,
		"TripTitle":      p.TripTitle,
		"ProposalNumber": p.ProposalNumber,
		"ProposalURL":    pc.proposalURL(),
	}
	if p.ValidUntil != nil {
		data["ValidUntil"] = p.ValidUntil.Format("January 2, 2006")
	}
	return n.email.SendTemplatedEmail(ctx, types.EmailData{
		To:           p.CustomerEmail,
		Subject:      fmt.Sprintf("Your trip proposal %s", p.ProposalNumber),
		Template:     TemplateProposalSent,
		FromName:     pc.fromName(),
		TemplateData: data,
	})
}

// ProposalAccepted confirms the acceptance to the customer and alerts staff.
func (n *ProposalNotifier) ProposalAccepted(ctx context.Context, proposalID int64) error {
	pc, err := n.load(ctx, proposalID)
	if err != nil {
		return err
	}
	p := pc.proposal
	customerErr := n.email.SendTemplatedEmail(ctx, types.EmailData{
		To:       p.CustomerEmail,
		Subject:  fmt.Sprintf("Proposal %s accepted", p.ProposalNumber),
		Template: TemplateProposalAccepted,
		FromName: pc.fromName(),
		TemplateData: map[string]interface{}{
			"CustomerName":   p.CustomerName,
			"TripTitle":      p.TripTitle,
			"ProposalNumber": p.ProposalNumber,
			"ProposalURL":    pc.proposalURL(),
			"DepositAmount":  formatAmount(p.DepositAmount, p.Currency),
		},
	})
	staffErr := n.notifyStaff(ctx, pc, "Proposal accepted", fmt.Sprintf("Signed by %s.", deref(p.AcceptedSignature)))
	return errors.Join(customerErr, staffErr)
}

// DepositReceived thanks the customer for the charged amount and alerts staff.
func (n *ProposalNotifier) DepositReceived(ctx context.Context, proposalID int64, amount decimal.Decimal) error {
	pc, err := n.load(ctx, proposalID)
	if err != nil {
		return err
	}
	p := pc.proposal
	formatted := formatAmount(amount, p.Currency)
	customerErr := n.email.SendTemplatedEmail(ctx, types.EmailData{
		To:       p.CustomerEmail,
		Subject:  fmt.Sprintf("Deposit received for %s", p.ProposalNumber),
		Template: TemplateDepositReceived,
		FromName: pc.fromName(),
		TemplateData: map[string]interface{}{
			"CustomerName":   p.CustomerName,
			"TripTitle":      p.TripTitle,
			"ProposalNumber": p.ProposalNumber,
			"Amount":         formatted,
		},
	})
	staffErr := n.notifyStaff(ctx, pc, "Deposit received", "Amount paid: "+formatted+".")
	return errors.Join(customerErr, staffErr)
}

func (n *ProposalNotifier) notifyStaff(ctx context.Context, pc *proposalContext, headline, detail string) error {
	if n.staffAddress == "" {
		return nil
	}
	p := pc.proposal
	return n.email.SendTemplatedEmail(ctx, types.EmailData{
		To:       n.staffAddress,
		Subject:  fmt.Sprintf("%s: %s (%s)", headline, p.ProposalNumber, p.CustomerName),
		Template: TemplateStaffNotice,
		TemplateData: map[string]interface{}{
			"Headline":       headline,
			"ProposalNumber": p.ProposalNumber,
			"CustomerName":   p.CustomerName,
			"AdminURL":       pc.adminURL(),
			"Detail":         detail,
		},
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
