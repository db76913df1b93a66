package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vinetrail/vinetrail-backend/middleware"
	proposalsvc "github.com/vinetrail/vinetrail-backend/models/proposal/service"
	"github.com/vinetrail/vinetrail-backend/types"
)

// StaffProposalService is the staff-facing part of the proposal service.
type StaffProposalService interface {
	Create(ctx context.Context, in types.ProposalCreate) (*types.TripProposal, error)
	UpdateDraft(ctx context.Context, id int64, update types.ProposalUpdate) (*types.TripProposal, error)
	Send(ctx context.Context, id int64, actorID string) (*types.TripProposal, error)
	Cancel(ctx context.Context, id int64, actorID string) (*types.TripProposal, error)
	Get(ctx context.Context, id int64) (*types.TripProposal, error)
	List(ctx context.Context, filter types.ProposalFilter, limit, offset int) ([]*types.TripProposal, error)
	ListPayments(ctx context.Context, id int64) ([]types.PaymentRecord, error)
	ListActivity(ctx context.Context, id int64) ([]types.ProposalActivity, error)
}

var _ StaffProposalService = (*proposalsvc.ProposalService)(nil)

type AdminProposalHandler struct {
	proposals StaffProposalService
}

func NewAdminProposalHandler(proposals StaffProposalService) *AdminProposalHandler {
	return &AdminProposalHandler{proposals: proposals}
}

// CreateProposalHandler creates a draft.
// POST /v1/admin/proposals
func (h *AdminProposalHandler) CreateProposalHandler(c *gin.Context) {
	var req types.ProposalCreate
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.proposals.Create(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// ListProposalsHandler lists proposals, newest first.
// GET /v1/admin/proposals?status=&brand_id=&q=&limit=&offset=
func (h *AdminProposalHandler) ListProposalsHandler(c *gin.Context) {
	params := getPaginationParams(c, 20, 0)
	filter := types.ProposalFilter{
		Status: types.ProposalStatus(c.Query("status")),
		Search: c.Query("q"),
	}
	if raw := c.Query("brand_id"); raw != "" {
		if brandID, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.BrandID = brandID
		}
	}

	list, err := h.proposals.List(c.Request.Context(), filter, params.Limit, params.Offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": list,
		"pagination": gin.H{
			"limit":  params.Limit,
			"offset": params.Offset,
		},
	})
}

// GetProposalHandler returns one proposal with its internal fields.
// GET /v1/admin/proposals/:id
func (h *AdminProposalHandler) GetProposalHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	p, err := h.proposals.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateProposalHandler edits a draft.
// PUT /v1/admin/proposals/:id
func (h *AdminProposalHandler) UpdateProposalHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req types.ProposalUpdate
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.proposals.UpdateDraft(c.Request.Context(), id, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// SendProposalHandler moves a draft to sent and emails the customer.
// POST /v1/admin/proposals/:id/send
func (h *AdminProposalHandler) SendProposalHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	p, err := h.proposals.Send(c.Request.Context(), id, c.GetString(middleware.StaffIDKey))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// CancelProposalHandler withdraws a proposal that has not been accepted.
// POST /v1/admin/proposals/:id/cancel
func (h *AdminProposalHandler) CancelProposalHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	p, err := h.proposals.Cancel(c.Request.Context(), id, c.GetString(middleware.StaffIDKey))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListPaymentsHandler returns the recorded payments.
// GET /v1/admin/proposals/:id/payments
func (h *AdminProposalHandler) ListPaymentsHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	payments, err := h.proposals.ListPayments(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payments})
}

// ListActivityHandler returns the audit trail.
// GET /v1/admin/proposals/:id/activity
func (h *AdminProposalHandler) ListActivityHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	activity, err := h.proposals.ListActivity(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": activity})
}
