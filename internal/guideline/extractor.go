package guideline

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/adcraft/internal/creative"
	"github.com/TobiSchelling/adcraft/internal/llm"
)

// Options configures an Extractor.
type Options struct {
	ContextOptions
	MaxTokens int
	Timeout   time.Duration
}

// Extractor distills competitor ads and a brand identity into a
// VisualGuideline. It has no side effects beyond the oracle call.
type Extractor struct {
	provider llm.Provider
	opts     Options
	logger   *zap.Logger
}

// NewExtractor creates an extractor. A nil provider makes every extraction
// fail with OracleUnavailableError.
func NewExtractor(provider llm.Provider, opts Options, logger *zap.Logger) *Extractor {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{provider: provider, opts: opts, logger: logger}
}

// Extract runs the full extraction for one project. brand may be nil.
func (e *Extractor) Extract(ctx context.Context, projectID string, batches []creative.CompetitorBatch, brand *creative.BrandIdentity) (*creative.VisualGuideline, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, &creative.InvalidInputError{Field: "project_id", Reason: "required"}
	}
	if len(batches) == 0 {
		return nil, &creative.InsufficientDataError{Reason: "no competitor batches"}
	}
	usable := usableBatches(batches)
	if len(usable) == 0 {
		return nil, &creative.InsufficientDataError{Reason: "no competitor batch contains ad samples"}
	}

	signals := ComputeSignals(usable)

	contextJSON, err := BuildContext(usable, brand, e.opts.ContextOptions)
	if err != nil {
		return nil, err
	}

	raw, err := e.ask(ctx, BuildPrompt(contextJSON))
	if err != nil {
		return nil, err
	}

	answer, err := ParseOracleResponse(raw)
	if err != nil {
		e.logger.Warn("oracle response rejected",
			zap.String("project", projectID),
			zap.Error(err),
			zap.String("raw", raw),
		)
		return nil, err
	}

	if disagree(answer.Signals, signals) {
		e.logger.Info("replacing oracle performance signals with local values",
			zap.String("project", projectID),
			zap.Any("oracle", answer.Signals),
			zap.Float64("longevity_days", signals.LongevityDays),
			zap.Int("frequency_score", signals.FrequencyScore),
		)
	}

	g := &creative.VisualGuideline{
		ProjectID:          projectID,
		Category:           InferCategory(brand, corpusTexts(usable)),
		MarketPatterns:     answer.MarketPatterns,
		PerformanceSignals: signals,
		BrandAlignment:     answer.BrandAlignment,
	}
	if err := g.Validate(); err != nil {
		return nil, &creative.OracleContractError{Raw: raw, Err: err}
	}

	e.logger.Debug("guideline extracted",
		zap.String("project", projectID),
		zap.String("category", g.Category),
		zap.Int("competitors", len(usable)),
	)
	return g, nil
}

func (e *Extractor) ask(ctx context.Context, prompt string) (string, error) {
	if e.provider == nil {
		return "", &creative.OracleUnavailableError{Err: errors.New("no oracle provider configured")}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	raw, err := e.provider.Generate(callCtx, prompt, e.opts.MaxTokens)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = errors.Join(err, context.DeadlineExceeded)
		}
		return "", &creative.OracleUnavailableError{Err: err}
	}
	return raw, nil
}

// disagree reports whether the oracle's advisory numbers differ from the
// locally computed signals.
func disagree(oracle map[string]any, local creative.PerformanceSignals) bool {
	if len(oracle) == 0 {
		return false
	}
	if v, ok := oracle["longevity_days"].(float64); ok && math.Abs(v-local.LongevityDays) > 0.5 {
		return true
	}
	if v, ok := oracle["frequency_score"].(float64); ok && int(v) != local.FrequencyScore {
		return true
	}
	return false
}
