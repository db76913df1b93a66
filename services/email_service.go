package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/resend/resend-go/v2"

	"github.com/vinetrail/vinetrail-backend/config"
	"github.com/vinetrail/vinetrail-backend/logger"
	"github.com/vinetrail/vinetrail-backend/types"
)

// Template names understood by SendTemplatedEmail.
const (
	TemplateProposalSent     = "proposal_sent"
	TemplateProposalAccepted = "proposal_accepted"
	TemplateDepositReceived  = "deposit_received"
	TemplateStaffNotice      = "staff_notice"
)

type emailTemplate struct {
	required []string
	tmpl     *template.Template
}

var emailTemplates = map[string]emailTemplate{
	TemplateProposalSent: {
		required: []string{"CustomerName", "TripTitle", "ProposalNumber", "ProposalURL"},
		tmpl:     mustEmailTemplate(TemplateProposalSent, proposalSentBody),
	},
	TemplateProposalAccepted: {
		required: []string{"CustomerName", "TripTitle", "ProposalNumber", "ProposalURL", "DepositAmount"},
		tmpl:     mustEmailTemplate(TemplateProposalAccepted, proposalAcceptedBody),
	},
	TemplateDepositReceived: {
		required: []string{"CustomerName", "TripTitle", "ProposalNumber", "Amount"},
		tmpl:     mustEmailTemplate(TemplateDepositReceived, depositReceivedBody),
	},
	TemplateStaffNotice: {
		required: []string{"Headline", "ProposalNumber", "CustomerName", "AdminURL"},
		tmpl:     mustEmailTemplate(TemplateStaffNotice, staffNoticeBody),
	},
}

func mustEmailTemplate(name, body string) *template.Template {
	return template.Must(template.New(name).Parse(emailLayoutStart + body + emailLayoutEnd))
}

type EmailMetrics struct {
	sendLatency prometheus.Histogram
	errorCount  prometheus.Counter
	sentCount   prometheus.Counter
}

// EmailService renders the proposal emails and delivers them through Resend.
type EmailService struct {
	config  *config.EmailConfig
	client  *resend.Client
	metrics *EmailMetrics
}

func NewEmailService(cfg *config.EmailConfig) *EmailService {
	return NewEmailServiceWithRegistry(cfg, prometheus.DefaultRegisterer)
}

func NewEmailServiceWithRegistry(cfg *config.EmailConfig, reg prometheus.Registerer) *EmailService {
	logger.GetLogger().Infow("Initializing email service",
		"from", cfg.FromAddress, "apiKeyConfigured", cfg.ResendAPIKey != "")
	client := resend.NewClient(cfg.ResendAPIKey)
	metrics := &EmailMetrics{
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vinetrail_email_send_duration_seconds",
			Help:    "Time taken to send emails",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		}),
		errorCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vinetrail_email_errors_total",
			Help: "Total number of email sending errors",
		}),
		sentCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vinetrail_emails_sent_total",
			Help: "Total number of emails sent",
		}),
	}

	reg.MustRegister(metrics.sendLatency)
	reg.MustRegister(metrics.errorCount)
	reg.MustRegister(metrics.sentCount)

	return &EmailService{
		config:  cfg,
		client:  client,
		metrics: metrics,
	}
}

// SendTemplatedEmail renders data.Template with data.TemplateData and sends it.
// data.FromName overrides the configured sender name.
func (s *EmailService) SendTemplatedEmail(ctx context.Context, data types.EmailData) error {
	startTime := time.Now()
	log := logger.GetLogger()
	defer func() {
		s.metrics.sendLatency.Observe(time.Since(startTime).Seconds())
	}()

	if data.To == "" {
		s.metrics.errorCount.Inc()
		return fmt.Errorf("email has no recipient")
	}

	et, ok := emailTemplates[data.Template]
	if !ok {
		s.metrics.errorCount.Inc()
		return fmt.Errorf("unknown email template: %q", data.Template)
	}
	for _, field := range et.required {
		if _, ok := data.TemplateData[field]; !ok {
			s.metrics.errorCount.Inc()
			err := fmt.Errorf("missing required template field: %s", field)
			log.Errorw("Invalid template data", "template", data.Template, "error", err)
			return err
		}
	}

	var htmlContent bytes.Buffer
	if err := et.tmpl.Execute(&htmlContent, data.TemplateData); err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("Failed to execute email template", "template", data.Template, "error", err)
		return fmt.Errorf("failed to execute template: %w", err)
	}

	fromName := s.config.FromName
	if data.FromName != "" {
		fromName = data.FromName
	}
	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", fromName, s.config.FromAddress),
		To:      []string{data.To},
		Subject: data.Subject,
		Html:    htmlContent.String(),
	}

	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("Failed to send email",
			"error", err,
			"to", logger.MaskEmail(data.To),
			"template", data.Template)
		return fmt.Errorf("email send failed: %w", err)
	}

	s.metrics.sentCount.Inc()
	log.Infow("Email sent successfully",
		"to", logger.MaskEmail(data.To),
		"template", data.Template)

	return nil
}

const emailLayoutStart = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body {
            font-family: Georgia, serif;
            background-color: #f7f4ef;
            color: #333333;
            margin: 0;
            padding: 20px;
        }
        .container {
            max-width: 600px;
            margin: 20px auto;
            background-color: #ffffff;
            padding: 30px;
            border-radius: 12px;
        }
        h1 {
            color: #6b1f3a;
            font-size: 26px;
        }
        p {
            font-size: 16px;
            line-height: 1.6;
        }
        .button {
            display: inline-block;
            padding: 12px 24px;
            font-weight: bold;
            text-decoration: none;
            background-color: #6b1f3a;
            color: #ffffff;
            border-radius: 8px;
        }
        .link {
            font-size: 14px;
            color: #777777;
            word-break: break-all;
        }
    </style>
</head>
<body>
    <div class="container">
`

const emailLayoutEnd = `
    </div>
</body>
</html>`

const proposalSentBody = `        <h1>Your trip proposal is ready</h1>
        <p>Hi {{.CustomerName}},</p>
        <p>Your proposal for "{{.TripTitle}}" ({{.ProposalNumber}}) is ready to review.</p>
        {{if .ValidUntil}}<p>It is valid until {{.ValidUntil}}.</p>{{end}}
        <p><a href="{{.ProposalURL}}" class="button">View Proposal</a></p>
        <p class="link">Or copy this link:<br/>{{.ProposalURL}}</p>`

const proposalAcceptedBody = `        <h1>Thank you for accepting</h1>
        <p>Hi {{.CustomerName}},</p>
        <p>We received your acceptance of "{{.TripTitle}}" ({{.ProposalNumber}}).</p>
        <p>To secure your date, please pay the deposit of {{.DepositAmount}}.</p>
        <p><a href="{{.ProposalURL}}" class="button">Pay Deposit</a></p>
        <p class="link">Or copy this link:<br/>{{.ProposalURL}}</p>`

const depositReceivedBody = `        <h1>Deposit received</h1>
        <p>Hi {{.CustomerName}},</p>
        <p>We received your deposit of {{.Amount}} for "{{.TripTitle}}" ({{.ProposalNumber}}).</p>
        <p>Your trip is confirmed. We will be in touch with final details.</p>`

const staffNoticeBody = `        <h1>{{.Headline}}</h1>
        <p>Proposal {{.ProposalNumber}} for {{.CustomerName}}.</p>
        {{if .Detail}}<p>{{.Detail}}</p>{{end}}
        <p><a href="{{.AdminURL}}" class="button">Open Proposal</a></p>`
