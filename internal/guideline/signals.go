package guideline

import (
	"slices"
	"strings"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

// FrequencyScore maps the number of independent competitors observed onto
// the 0..10 scale: two points per competitor, capped.
func FrequencyScore(competitors int) int {
	if competitors <= 0 {
		return 0
	}
	return min(10, 2*competitors)
}

// usableBatches drops competitors that contributed no ads.
func usableBatches(batches []creative.CompetitorBatch) []creative.CompetitorBatch {
	var out []creative.CompetitorBatch
	for _, b := range batches {
		if len(b.Ads) > 0 {
			out = append(out, b)
		}
	}
	return out
}

// ComputeSignals derives performance signals from the raw corpus. Ads with an
// unknown (or negative) longevity are left out of the mean; a corpus with no
// known values yields 0.
func ComputeSignals(batches []creative.CompetitorBatch) creative.PerformanceSignals {
	var sum float64
	var known int
	platforms := make(map[string]bool)
	competitors := make(map[string]bool)

	for _, b := range usableBatches(batches) {
		competitors[strings.ToLower(strings.TrimSpace(b.Competitor))] = true
		for _, p := range b.PlatformsObserved {
			addPlatform(platforms, p)
		}
		for _, ad := range b.Ads {
			if ad.LongevityDays != nil && *ad.LongevityDays >= 0 {
				sum += *ad.LongevityDays
				known++
			}
		}
	}

	signals := creative.PerformanceSignals{
		PlatformCoverage: make([]string, 0, len(platforms)),
		FrequencyScore:   FrequencyScore(len(competitors)),
	}
	if known > 0 {
		signals.LongevityDays = sum / float64(known)
	}
	for p := range platforms {
		signals.PlatformCoverage = append(signals.PlatformCoverage, p)
	}
	slices.Sort(signals.PlatformCoverage)
	return signals
}

func addPlatform(set map[string]bool, p string) {
	if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
		set[p] = true
	}
}
