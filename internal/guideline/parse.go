package guideline

import (
	"errors"

	"github.com/TobiSchelling/adcraft/internal/creative"
	"github.com/TobiSchelling/adcraft/internal/llm"
)

// OracleAnswer is the validated, typed part of an oracle response.
// Signals holds the oracle's own performance numbers, which are only
// compared against the local ones and never kept.
type OracleAnswer struct {
	MarketPatterns creative.MarketPatterns
	BrandAlignment creative.BrandAlignment
	Signals        map[string]any
}

type oracleResponse struct {
	MarketPatterns     *creative.MarketPatterns `json:"market_patterns"`
	PerformanceSignals map[string]any           `json:"performance_signals"`
	BrandAlignment     *creative.BrandAlignment `json:"brand_alignment"`
}

// ParseOracleResponse extracts and validates the guideline object in raw.
// Any failure is an OracleContractError carrying raw unchanged.
func ParseOracleResponse(raw string) (*OracleAnswer, error) {
	var resp oracleResponse
	if err := llm.ParseJSONResponse(raw, &resp); err != nil {
		return nil, &creative.OracleContractError{Raw: raw, Err: err}
	}
	if resp.MarketPatterns == nil {
		return nil, &creative.OracleContractError{Raw: raw, Err: errors.New("market_patterns missing")}
	}

	patterns := *resp.MarketPatterns
	if patterns.DominantColors == nil {
		patterns.DominantColors = []string{}
	}
	if patterns.CompositionRules == nil {
		patterns.CompositionRules = []string{}
	}
	patterns.Normalize()
	if err := patterns.Validate(); err != nil {
		return nil, &creative.OracleContractError{Raw: raw, Err: err}
	}

	var alignment creative.BrandAlignment
	if resp.BrandAlignment != nil {
		alignment = *resp.BrandAlignment
	}
	if alignment.Overrides == nil {
		alignment.Overrides = map[string]string{}
	}
	if alignment.Adaptations == nil {
		alignment.Adaptations = map[string]string{}
	}

	return &OracleAnswer{
		MarketPatterns: patterns,
		BrandAlignment: alignment,
		Signals:        resp.PerformanceSignals,
	}, nil
}
