package advisory

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/crop-advisory-service/internal/models"
	"github.com/kjstillabower/crop-advisory-service/internal/observability"
)

// Generator produces raw LLM text. *GeminiClient implements it.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, cfg *GenerationConfig) (string, error)
}

const (
	opAdvise    = "advise"
	opSummarize = "summarize"
)

// Default models.
const (
	DefaultModel        = "gemini-2.0-flash"
	DefaultSummaryModel = "gemini-2.0-flash"
)

var summaryConfig = &GenerationConfig{
	Temperature:      0.7,
	MaxOutputTokens:  150,
	ResponseMimeType: "application/json",
}

// Advisor applies per-call timeouts and the fixed fallbacks around a Generator.
type Advisor struct {
	gen          Generator
	model        string
	summaryModel string
	timeout      time.Duration
}

// NewAdvisor returns an Advisor. A nil gen serves fallbacks only.
func NewAdvisor(gen Generator, model, summaryModel string, timeout time.Duration) *Advisor {
	if model == "" {
		model = DefaultModel
	}
	if summaryModel == "" {
		summaryModel = DefaultSummaryModel
	}
	return &Advisor{gen: gen, model: model, summaryModel: summaryModel, timeout: timeout}
}

// Advise returns structured advice for req. It never fails: call errors yield
// CallFailureAdvisory and unparseable text yields ParseFailureAdvisory.
func (a *Advisor) Advise(ctx context.Context, req AdvisoryRequest) models.AdvisoryPayload {
	text, err := a.generate(ctx, opAdvise, a.model, AdvisoryPrompt(req), nil)
	if err != nil {
		a.logFallback(ctx, opAdvise, err)
		observability.RecordAdvisoryFallback(opAdvise, fallbackReason(err))
		return CallFailureAdvisory()
	}
	payload, err := ParseAdvisoryText(text)
	if err != nil {
		a.logFallback(ctx, opAdvise, err)
		observability.RecordAdvisoryFallback(opAdvise, "parse")
		return ParseFailureAdvisory(text)
	}
	return payload
}

// Summarize returns a quick summary for req, or SummaryFallback.
func (a *Advisor) Summarize(ctx context.Context, req SummaryRequest) models.QuickSummary {
	text, err := a.generate(ctx, opSummarize, a.summaryModel, SummaryPrompt(req), summaryConfig)
	if err != nil {
		a.logFallback(ctx, opSummarize, err)
		observability.RecordAdvisoryFallback(opSummarize, fallbackReason(err))
		return SummaryFallback()
	}
	s, err := ParseQuickSummary(text)
	if err != nil {
		a.logFallback(ctx, opSummarize, err)
		observability.RecordAdvisoryFallback(opSummarize, "parse")
		return SummaryFallback()
	}
	return s
}

func (a *Advisor) generate(ctx context.Context, op, model, prompt string, cfg *GenerationConfig) (string, error) {
	if a.gen == nil {
		return "", ErrDisabled
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	start := time.Now()
	text, err := a.gen.Generate(ctx, model, prompt, cfg)
	observability.AdvisoryAPIDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = fallbackReason(err)
	}
	observability.AdvisoryAPICallsTotal.WithLabelValues(op, status).Inc()
	return text, err
}

func (a *Advisor) logFallback(ctx context.Context, op string, err error) {
	if errors.Is(err, ErrDisabled) {
		return
	}
	observability.LoggerOrNop(ctx).Warn("advisory fallback", zap.String("operation", op), zap.Error(err))
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, ErrDisabled):
		return "disabled"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrParse):
		return "parse"
	default:
		return "error"
	}
}
