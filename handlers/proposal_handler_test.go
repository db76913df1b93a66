package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vinetrail/vinetrail-backend/errors"
	"github.com/vinetrail/vinetrail-backend/logger"
	"github.com/vinetrail/vinetrail-backend/middleware"
	proposalsvc "github.com/vinetrail/vinetrail-backend/models/proposal/service"
	"github.com/vinetrail/vinetrail-backend/types"
)

func init() {
	logger.IsTest = true
	gin.SetMode(gin.TestMode)
}

func setupProposalRouter(svc *MockProposalService) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	h := NewProposalHandler(svc)
	g := r.Group("/v1/proposals/:proposalNumber")
	g.GET("", h.GetProposalHandler)
	g.POST("/accept", h.AcceptProposalHandler)
	g.POST("/deposit-intent", h.CreateDepositIntentHandler)
	g.POST("/confirm-payment", h.ConfirmPaymentHandler)
	return r
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	req.RemoteAddr = "203.0.113.7:5000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func testProposal(status types.ProposalStatus) *types.TripProposal {
	ip := "198.51.100.1"
	return &types.TripProposal{
		ID:             42,
		ProposalNumber: "TP-20260001",
		BrandID:        1,
		BrandCode:      "wwt",
		CustomerName:   "Dana Smith",
		CustomerEmail:  "dana@example.com",
		TripTitle:      "Walla Walla Weekend",
		TripType:       "wine_tour",
		StartDate:      time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		PartySize:      6,
		Total:          decimal.NewFromInt(5000),
		DepositAmount:  decimal.NewFromInt(1250),
		Currency:       "USD",
		Status:         status,
		AcceptedIP:     &ip,
		Notes:          "VIP, comp tasting at stop 2",
	}
}

func TestGetProposalHandler_HidesInternalFields(t *testing.T) {
	svc := new(MockProposalService)
	svc.On("ViewByNumber", mock.Anything, "TP-20260001", "203.0.113.7", "handler-test").
		Return(testProposal(types.ProposalStatusViewed), nil)

	w := doJSON(setupProposalRouter(svc), http.MethodGet, "/v1/proposals/TP-20260001", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "viewed", body["status"])
	assert.Equal(t, "1250", body["deposit_amount"])
	assert.NotContains(t, body, "notes")
	assert.NotContains(t, body, "accepted_ip")
	assert.NotContains(t, body, "id")
	assert.NotContains(t, body, "customer_email")
	svc.AssertExpectations(t)
}

func TestGetProposalHandler_NotFound(t *testing.T) {
	svc := new(MockProposalService)
	svc.On("ViewByNumber", mock.Anything, "TP-9", mock.Anything, mock.Anything).
		Return(nil, apperrors.NotFound("Proposal", "TP-9"))

	w := doJSON(setupProposalRouter(svc), http.MethodGet, "/v1/proposals/TP-9", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(apperrors.NotFoundError), decodeBody(t, w)["type"])
}

func TestAcceptProposalHandler(t *testing.T) {
	accepted := testProposal(types.ProposalStatusAccepted)
	at := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	sig := "Dana Smith"
	accepted.AcceptedAt, accepted.AcceptedSignature = &at, &sig

	tests := []struct {
		name       string
		body       interface{}
		setupMock  func(*MockProposalService)
		wantStatus int
		wantType   string
		wantMsg    string
	}{
		{
			name: "accepted",
			body: AcceptRequest{Signature: "Dana Smith", AgreedToTerms: true},
			setupMock: func(m *MockProposalService) {
				m.On("Accept", mock.Anything, "TP-20260001", proposalsvc.AcceptInput{
					Signature: "Dana Smith", AgreedToTerms: true, IPAddress: "203.0.113.7", UserAgent: "handler-test",
				}).Return(accepted, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "already accepted",
			body: AcceptRequest{Signature: "Dana Smith", AgreedToTerms: true},
			setupMock: func(m *MockProposalService) {
				m.On("Accept", mock.Anything, "TP-20260001", mock.Anything).
					Return(nil, apperrors.InvalidStatusTransition("accepted", "This proposal has already been accepted"))
			},
			wantStatus: http.StatusBadRequest,
			wantType:   string(apperrors.InvalidStatusTransitionError),
			wantMsg:    "This proposal has already been accepted",
		},
		{
			name: "expired",
			body: AcceptRequest{Signature: "Dana Smith", AgreedToTerms: true},
			setupMock: func(m *MockProposalService) {
				m.On("Accept", mock.Anything, "TP-20260001", mock.Anything).
					Return(nil, apperrors.InvalidStatusTransition("expired", "This proposal has expired"))
			},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "This proposal has expired",
		},
		{
			name:       "malformed body",
			body:       map[string]interface{}{"signature": 12},
			setupMock:  func(m *MockProposalService) {},
			wantStatus: http.StatusBadRequest,
			wantType:   string(apperrors.ValidationError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockProposalService)
			tt.setupMock(svc)

			w := doJSON(setupProposalRouter(svc), http.MethodPost, "/v1/proposals/TP-20260001/accept", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeBody(t, w)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, true, body["success"])
				assert.Equal(t, "accepted", body["status"])
			}
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, body["type"])
			}
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body["message"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestCreateDepositIntentHandler(t *testing.T) {
	svc := new(MockProposalService)
	svc.On("CreateDepositIntent", mock.Anything, "TP-20260001").Return(&types.DepositIntent{
		PaymentIntentID: "pi_123",
		ClientSecret:    "pi_123_secret_abc",
		Amount:          decimal.NewFromInt(1250),
		Currency:        "USD",
	}, nil)

	w := doJSON(setupProposalRouter(svc), http.MethodPost, "/v1/proposals/TP-20260001/deposit-intent", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pi_123_secret_abc", decodeBody(t, w)["client_secret"])
}

func TestCreateDepositIntentHandler_NotConfigured(t *testing.T) {
	svc := new(MockProposalService)
	svc.On("CreateDepositIntent", mock.Anything, "TP-20260001").
		Return(nil, apperrors.PaymentFailed("payments_not_configured", "Online payment is not available for this proposal"))

	w := doJSON(setupProposalRouter(svc), http.MethodPost, "/v1/proposals/TP-20260001/deposit-intent", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "payments_not_configured", decodeBody(t, w)["error_code"])
}

func TestConfirmPaymentHandler(t *testing.T) {
	paidAt := time.Date(2026, 3, 10, 15, 5, 0, 0, time.UTC)

	tests := []struct {
		name       string
		result     *types.DepositConfirmation
		err        error
		wantStatus int
		check      func(t *testing.T, body map[string]interface{})
	}{
		{
			name: "paid",
			result: &types.DepositConfirmation{
				DepositPaid: true, DepositAmount: decimal.NewFromInt(1250), DepositPaidAt: &paidAt, PaymentIntentID: "pi_123",
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, true, body["deposit_paid"])
				assert.Equal(t, "pi_123", body["payment_intent_id"])
				assert.NotContains(t, body, "already_paid")
			},
		},
		{
			name:       "already paid",
			result:     &types.DepositConfirmation{AlreadyPaid: true, DepositPaid: true, DepositPaidAt: &paidAt},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, true, body["already_paid"])
				assert.Equal(t, "2026-03-10T15:05:00Z", body["deposit_paid_at"])
			},
		},
		{
			name:       "mismatch",
			err:        apperrors.PaymentFailed("payment_mismatch", "Payment does not match this proposal"),
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "Payment does not match this proposal", body["message"])
			},
		},
		{
			name:       "provider outage",
			err:        apperrors.ExternalServiceFailed("payment_provider", errors.New("timeout")),
			wantStatus: http.StatusBadGateway,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, string(apperrors.ExternalServiceError), body["type"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockProposalService)
			if tt.err != nil {
				svc.On("ConfirmDeposit", mock.Anything, "TP-20260001", "pi_123").Return(nil, tt.err)
			} else {
				svc.On("ConfirmDeposit", mock.Anything, "TP-20260001", "pi_123").Return(tt.result, nil)
			}

			w := doJSON(setupProposalRouter(svc), http.MethodPost, "/v1/proposals/TP-20260001/confirm-payment",
				ConfirmPaymentRequest{PaymentIntentID: "pi_123"})

			assert.Equal(t, tt.wantStatus, w.Code)
			tt.check(t, decodeBody(t, w))
			svc.AssertExpectations(t)
		})
	}
}
