package services

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/vinetrail/vinetrail-backend/config"
	"github.com/vinetrail/vinetrail-backend/logger"
	"github.com/vinetrail/vinetrail-backend/types"
)

func init() {
	logger.IsTest = true
}

// Mock Resend client
type mockEmailsService struct {
	mock.Mock
}

func (m *mockEmailsService) Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.SendEmailResponse), args.Error(1)
}

func (m *mockEmailsService) SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.SendEmailResponse), args.Error(1)
}

func (m *mockEmailsService) Update(params *resend.UpdateEmailRequest) (*resend.UpdateEmailResponse, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.UpdateEmailResponse), args.Error(1)
}

func (m *mockEmailsService) UpdateWithContext(ctx context.Context, params *resend.UpdateEmailRequest) (*resend.UpdateEmailResponse, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.UpdateEmailResponse), args.Error(1)
}

func (m *mockEmailsService) Cancel(id string) (*resend.CancelScheduledEmailResponse, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.CancelScheduledEmailResponse), args.Error(1)
}

func (m *mockEmailsService) CancelWithContext(ctx context.Context, id string) (*resend.CancelScheduledEmailResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.CancelScheduledEmailResponse), args.Error(1)
}

func (m *mockEmailsService) Get(id string) (*resend.Email, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.Email), args.Error(1)
}

func (m *mockEmailsService) GetWithContext(ctx context.Context, id string) (*resend.Email, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.Email), args.Error(1)
}

func testEmailConfig() *config.EmailConfig {
	return &config.EmailConfig{
		FromName:     "Vinetrail",
		FromAddress:  "tours@example.com",
		ResendAPIKey: "test-api-key",
	}
}

func newTestEmailService(t *testing.T) (*EmailService, *mockEmailsService) {
	t.Helper()
	service := NewEmailServiceWithRegistry(testEmailConfig(), prometheus.NewRegistry())
	mockEmails := &mockEmailsService{}
	service.client.Emails = mockEmails
	return service, mockEmails
}

func sentEmailData() types.EmailData {
	return types.EmailData{
		To:       "dana@example.com",
		Subject:  "Your trip proposal TP-20260001",
		Template: TemplateProposalSent,
		TemplateData: map[string]interface{}{
			"CustomerName":   "Dana",
			"TripTitle":      "Spring in Walla Walla",
			"ProposalNumber": "TP-20260001",
			"ProposalURL":    "https://tours.example.com/proposals/TP-20260001",
		},
	}
}

func TestNewEmailService(t *testing.T) {
	cfg := testEmailConfig()

	service := NewEmailServiceWithRegistry(cfg, prometheus.NewRegistry())

	assert.NotNil(t, service)
	assert.Equal(t, cfg, service.config)
	assert.NotNil(t, service.client)
	assert.NotNil(t, service.metrics)
}

func TestSendTemplatedEmail(t *testing.T) {
	tests := []struct {
		name        string
		emailData   func() types.EmailData
		setupMock   func(*mockEmailsService)
		expectError bool
	}{
		{
			name:      "successful email send",
			emailData: sentEmailData,
			setupMock: func(m *mockEmailsService) {
				m.On("SendWithContext", mock.Anything, mock.MatchedBy(func(req *resend.SendEmailRequest) bool {
					return req.From == "Vinetrail <tours@example.com>" &&
						req.To[0] == "dana@example.com" &&
						req.Subject == "Your trip proposal TP-20260001" &&
						len(req.Html) > 0
				})).Return(&resend.SendEmailResponse{Id: "test-id"}, nil)
			},
		},
		{
			name: "brand name overrides sender name",
			emailData: func() types.EmailData {
				d := sentEmailData()
				d.FromName = "Walla Walla Wine Tours"
				return d
			},
			setupMock: func(m *mockEmailsService) {
				m.On("SendWithContext", mock.Anything, mock.MatchedBy(func(req *resend.SendEmailRequest) bool {
					return req.From == "Walla Walla Wine Tours <tours@example.com>"
				})).Return(&resend.SendEmailResponse{Id: "test-id"}, nil)
			},
		},
		{
			name:      "failed email send",
			emailData: sentEmailData,
			setupMock: func(m *mockEmailsService) {
				m.On("SendWithContext", mock.Anything, mock.AnythingOfType("*resend.SendEmailRequest")).
					Return(nil, assert.AnError)
			},
			expectError: true,
		},
		{
			name: "unknown template",
			emailData: func() types.EmailData {
				d := sentEmailData()
				d.Template = "invitation"
				return d
			},
			expectError: true,
		},
		{
			name: "missing required template field",
			emailData: func() types.EmailData {
				d := sentEmailData()
				delete(d.TemplateData, "ProposalURL")
				return d
			},
			expectError: true,
		},
		{
			name: "missing recipient",
			emailData: func() types.EmailData {
				d := sentEmailData()
				d.To = ""
				return d
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, mockEmails := newTestEmailService(t)
			if tt.setupMock != nil {
				tt.setupMock(mockEmails)
			}

			err := service.SendTemplatedEmail(context.Background(), tt.emailData())

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			mockEmails.AssertExpectations(t)
		})
	}
}

func TestSendTemplatedEmail_RendersEscapedContent(t *testing.T) {
	service, mockEmails := newTestEmailService(t)

	var html string
	mockEmails.On("SendWithContext", mock.Anything, mock.AnythingOfType("*resend.SendEmailRequest")).
		Run(func(args mock.Arguments) {
			html = args.Get(1).(*resend.SendEmailRequest).Html
		}).
		Return(&resend.SendEmailResponse{Id: "test-id"}, nil)

	data := sentEmailData()
	data.TemplateData["CustomerName"] = "<script>alert(1)</script>"
	data.TemplateData["ValidUntil"] = "January 31, 2027"

	err := service.SendTemplatedEmail(context.Background(), data)
	assert.NoError(t, err)
	assert.Contains(t, html, "https://tours.example.com/proposals/TP-20260001")
	assert.Contains(t, html, "valid until January 31, 2027")
	assert.NotContains(t, html, "<script>")
}

func TestEmailMetrics(t *testing.T) {
	service, mockEmails := newTestEmailService(t)

	mockEmails.On("SendWithContext", mock.Anything, mock.AnythingOfType("*resend.SendEmailRequest")).
		Return(&resend.SendEmailResponse{Id: "test-id"}, nil).Once()

	err := service.SendTemplatedEmail(context.Background(), sentEmailData())
	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(service.metrics.sentCount))
	assert.Equal(t, 0.0, testutil.ToFloat64(service.metrics.errorCount))

	invalid := sentEmailData()
	invalid.TemplateData = map[string]interface{}{}
	err = service.SendTemplatedEmail(context.Background(), invalid)
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(service.metrics.errorCount))

	mockEmails.On("SendWithContext", mock.Anything, mock.AnythingOfType("*resend.SendEmailRequest")).
		Return(nil, assert.AnError).Once()

	err = service.SendTemplatedEmail(context.Background(), sentEmailData())
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(service.metrics.sentCount))
	assert.Equal(t, 2.0, testutil.ToFloat64(service.metrics.errorCount))

	mockEmails.AssertExpectations(t)
}
