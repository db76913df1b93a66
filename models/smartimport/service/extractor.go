package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vinetrail/vinetrail-backend/logger"
	"github.com/vinetrail/vinetrail-backend/pkg/docparse"
	"github.com/vinetrail/vinetrail-backend/pkg/llm"
	"github.com/vinetrail/vinetrail-backend/types"
)

// MaxAttempts bounds the model calls made for one extraction.
const MaxAttempts = 2

// ErrUnstructuredResponse is the cause when the model output is not a JSON object.
var ErrUnstructuredResponse = errors.New("response is not a JSON object")

// ExtractionError reports an attempt whose output could not be used.
type ExtractionError struct {
	Attempt int
	// Transport is true when the call itself failed rather than its output.
	Transport bool
	Err       error
}

func (e *ExtractionError) Error() string {
	if e.Transport {
		return fmt.Sprintf("extraction attempt %d: model call failed: %v", e.Attempt, e.Err)
	}
	return fmt.Sprintf("extraction attempt %d: unusable model output: %v", e.Attempt, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

type extractorMetrics struct {
	attempts *prometheus.CounterVec
	failures prometheus.Counter
	duration prometheus.Histogram
}

func newExtractorMetrics(reg prometheus.Registerer) *extractorMetrics {
	m := &extractorMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smart_import_extraction_attempts_total",
			Help: "Language model extraction attempts by outcome",
		}, []string{"attempt", "outcome"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smart_import_extraction_failures_total",
			Help: "Extractions that failed on every allowed attempt",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smart_import_model_call_duration_seconds",
			Help:    "Duration of language model calls",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 120},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.failures, m.duration)
	}
	return m
}

// Extractor turns parsed documents into a SmartImportResult using a language model.
type Extractor struct {
	client      llm.Client
	model       string
	maxTokens   int
	callTimeout time.Duration
	validate    *validator.Validate
	metrics     *extractorMetrics
	log         *zap.SugaredLogger
}

// ExtractorConfig configures an Extractor.
type ExtractorConfig struct {
	Model     string
	MaxTokens int
	// CallTimeout bounds each model call. Zero means no extra deadline.
	CallTimeout time.Duration
}

// NewExtractor creates an extractor. Metrics are registered with reg when it is non-nil.
func NewExtractor(client llm.Client, cfg ExtractorConfig, reg prometheus.Registerer) *Extractor {
	return &Extractor{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		callTimeout: cfg.CallTimeout,
		validate:    validator.New(),
		metrics:     newExtractorMetrics(reg),
		log:         logger.GetLogger().Named("smart_import_extractor"),
	}
}

// Extract runs at most MaxAttempts model calls. The second call uses a
// stricter instruction and, when the first call produced output, shows the
// model its rejected reply. Result.Attempts records the calls made.
func (e *Extractor) Extract(ctx context.Context, parsed []docparse.Result, venues []types.Venue) (*types.SmartImportResult, error) {
	messages := []llm.Message{{Role: llm.RoleUser, Content: userContent(parsed)}}

	var lastErr, lastParseErr *ExtractionError
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		strict := attempt > 1
		if strict && lastErr != nil && !lastErr.Transport {
			// lastErr carries the rejected output only for parse failures.
			messages = append(messages,
				llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{llm.TextBlock(lastOutput(lastErr))}},
				llm.Message{Role: llm.RoleUser, Content: []llm.ContentBlock{llm.TextBlock(retryNotice)}},
			)
		}

		text, err := e.call(ctx, systemPrompt(venues, strict), messages)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.metrics.attempts.WithLabelValues(fmt.Sprint(attempt), "call_error").Inc()
			e.log.Warnw("Language model call failed", "attempt", attempt, "error", err)
			lastErr = &ExtractionError{Attempt: attempt, Transport: true, Err: err}
			continue
		}

		result, err := e.parseResponse(text)
		if err != nil {
			e.metrics.attempts.WithLabelValues(fmt.Sprint(attempt), "parse_error").Inc()
			e.log.Warnw("Language model output rejected", "attempt", attempt, "error", err, "outputLength", len(text))
			lastErr = &ExtractionError{Attempt: attempt, Err: &rejectedOutput{output: text, err: err}}
			lastParseErr = lastErr
			continue
		}

		e.metrics.attempts.WithLabelValues(fmt.Sprint(attempt), "ok").Inc()
		result.Attempts = attempt
		return result, nil
	}

	e.metrics.failures.Inc()
	// Once the model has answered with something unusable, the documents are
	// the likelier problem, even if a later call failed in transport.
	if lastParseErr != nil {
		return nil, lastParseErr
	}
	return nil, lastErr
}

func (e *Extractor) call(ctx context.Context, system string, messages []llm.Message) (string, error) {
	if e.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := e.client.Complete(ctx, &llm.Request{
		Model:     e.model,
		System:    system,
		Messages:  messages,
		MaxTokens: e.maxTokens,
	})
	e.metrics.duration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// rejectedOutput keeps the model reply that failed parsing so the retry can
// show it back to the model.
type rejectedOutput struct {
	output string
	err    error
}

func (r *rejectedOutput) Error() string { return r.err.Error() }
func (r *rejectedOutput) Unwrap() error { return r.err }

func lastOutput(e *ExtractionError) string {
	var r *rejectedOutput
	if errors.As(e.Err, &r) {
		return r.output
	}
	return ""
}

// stripCodeFences removes a surrounding ``` or ```json fence.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the language tag, which may sit on its own line or directly before the brace
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
	})
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseResponse decodes and validates one model reply.
func (e *Extractor) parseResponse(text string) (*types.SmartImportResult, error) {
	payload := stripCodeFences(text)
	if !strings.HasPrefix(payload, "{") {
		return nil, ErrUnstructuredResponse
	}

	var result types.SmartImportResult
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON: trailing data after object")
	}

	result.Confidence = clamp(result.Confidence)
	// Fields owned by this service are never taken from the model.
	result.ImportID = ""
	result.SourceFiles = nil
	result.Attempts = 0
	if result.Days == nil {
		result.Days = []types.ImportDay{}
	}
	for i := range result.Days {
		if result.Days[i].Stops == nil {
			result.Days[i].Stops = []types.ImportStop{}
		}
		for j := range result.Days[i].Stops {
			stop := &result.Days[i].Stops[j]
			stop.MatchedVenueID, stop.MatchedVenueName, stop.MatchConfidence, stop.MatchType = nil, nil, nil, nil
		}
	}
	if result.Guests == nil {
		result.Guests = []types.ImportGuest{}
	}
	if result.Inclusions == nil {
		result.Inclusions = []types.ImportInclusion{}
	}
	result.DropBlankFields()

	if err := e.validate.Struct(&result); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	return &result, nil
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
