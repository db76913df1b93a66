package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	proposalsvc "github.com/vinetrail/vinetrail-backend/models/proposal/service"
	"github.com/vinetrail/vinetrail-backend/types"
)

// PublicProposalService is the customer-facing part of the proposal service.
type PublicProposalService interface {
	ViewByNumber(ctx context.Context, number, ipAddress, userAgent string) (*types.TripProposal, error)
	Accept(ctx context.Context, number string, in proposalsvc.AcceptInput) (*types.TripProposal, error)
	CreateDepositIntent(ctx context.Context, number string) (*types.DepositIntent, error)
	ConfirmDeposit(ctx context.Context, number, paymentIntentID string) (*types.DepositConfirmation, error)
}

var _ PublicProposalService = (*proposalsvc.ProposalService)(nil)

type ProposalHandler struct {
	proposals PublicProposalService
}

func NewProposalHandler(proposals PublicProposalService) *ProposalHandler {
	return &ProposalHandler{proposals: proposals}
}

// PublicProposal is what a customer sees. Staff notes, the accepting IP and
// payment references stay internal.
type PublicProposal struct {
	ProposalNumber string               `json:"proposal_number"`
	BrandCode      string               `json:"brand_code"`
	CustomerName   string               `json:"customer_name"`
	TripTitle      string               `json:"trip_title"`
	TripType       string               `json:"trip_type"`
	StartDate      time.Time            `json:"start_date"`
	EndDate        *time.Time           `json:"end_date,omitempty"`
	PartySize      int                  `json:"party_size"`
	Total          decimal.Decimal      `json:"total"`
	DepositAmount  decimal.Decimal      `json:"deposit_amount"`
	Currency       string               `json:"currency"`
	Status         types.ProposalStatus `json:"status"`
	DepositPaid    bool                 `json:"deposit_paid"`
	DepositPaidAt  *time.Time           `json:"deposit_paid_at,omitempty"`
	ValidUntil     *time.Time           `json:"valid_until,omitempty"`
	AcceptedAt     *time.Time           `json:"accepted_at,omitempty"`
	Signature      *string              `json:"accepted_signature,omitempty"`
}

func toPublicProposal(p *types.TripProposal) PublicProposal {
	return PublicProposal{
		ProposalNumber: p.ProposalNumber,
		BrandCode:      p.BrandCode,
		CustomerName:   p.CustomerName,
		TripTitle:      p.TripTitle,
		TripType:       p.TripType,
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		PartySize:      p.PartySize,
		Total:          p.Total,
		DepositAmount:  p.DepositAmount,
		Currency:       p.Currency,
		Status:         p.Status,
		DepositPaid:    p.DepositPaid,
		DepositPaidAt:  p.DepositPaidAt,
		ValidUntil:     p.ValidUntil,
		AcceptedAt:     p.AcceptedAt,
		Signature:      p.AcceptedSignature,
	}
}

// GetProposalHandler shows a proposal to its customer and records the first view.
// GET /v1/proposals/:proposalNumber
func (h *ProposalHandler) GetProposalHandler(c *gin.Context) {
	p, err := h.proposals.ViewByNumber(c.Request.Context(), c.Param("proposalNumber"), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toPublicProposal(p))
}

// AcceptRequest is the body of the accept endpoint.
type AcceptRequest struct {
	Signature     string `json:"signature"`
	AgreedToTerms bool   `json:"agreed_to_terms"`
}

// AcceptProposalHandler records the customer's signature.
// POST /v1/proposals/:proposalNumber/accept
func (h *ProposalHandler) AcceptProposalHandler(c *gin.Context) {
	var req AcceptRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.proposals.Accept(c.Request.Context(), c.Param("proposalNumber"), proposalsvc.AcceptInput{
		Signature:     req.Signature,
		AgreedToTerms: req.AgreedToTerms,
		IPAddress:     c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"status":      p.Status,
		"accepted_at": p.AcceptedAt,
		"proposal":    toPublicProposal(p),
	})
}

// CreateDepositIntentHandler starts the card payment for the deposit.
// POST /v1/proposals/:proposalNumber/deposit-intent
func (h *ProposalHandler) CreateDepositIntentHandler(c *gin.Context) {
	intent, err := h.proposals.CreateDepositIntent(c.Request.Context(), c.Param("proposalNumber"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

// ConfirmPaymentRequest is the body of the confirm-payment endpoint.
type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

// ConfirmPaymentHandler verifies a completed charge and marks the deposit paid.
// POST /v1/proposals/:proposalNumber/confirm-payment
func (h *ProposalHandler) ConfirmPaymentHandler(c *gin.Context) {
	var req ConfirmPaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	confirmation, err := h.proposals.ConfirmDeposit(c.Request.Context(), c.Param("proposalNumber"), req.PaymentIntentID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, confirmation)
}
