package guideline

import (
	"strings"
	"unicode"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

// vocabulary maps a product vertical to the keywords that signal it.
var vocabulary = map[string][]string{
	"beauty":     {"beauty", "skincare", "makeup", "serum", "cosmetics", "moisturizer", "lipstick", "fragrance"},
	"fashion":    {"fashion", "apparel", "dress", "sneakers", "jacket", "outfit", "denim", "streetwear"},
	"finance":    {"bank", "banking", "loan", "credit", "invest", "investing", "savings", "insurance", "mortgage"},
	"fitness":    {"fitness", "workout", "gym", "training", "protein", "running", "yoga", "athlete"},
	"food":       {"food", "recipe", "meal", "snack", "coffee", "restaurant", "delicious", "organic"},
	"home":       {"furniture", "sofa", "kitchen", "decor", "mattress", "garden", "bedding"},
	"technology": {"software", "app", "cloud", "device", "laptop", "smartphone", "ai", "saas"},
	"travel":     {"travel", "flight", "flights", "hotel", "vacation", "booking", "resort", "trip"},
}

var keywordIndex = func() map[string]string {
	idx := make(map[string]string)
	for category, words := range vocabulary {
		for _, w := range words {
			idx[w] = category
		}
	}
	return idx
}()

// InferCategory picks the product vertical: an explicit brand category wins,
// then the vocabulary category with the most keyword hits in texts (ties go
// to the alphabetically first category), then DefaultCategory.
func InferCategory(brand *creative.BrandIdentity, texts []string) string {
	if brand != nil {
		if c := strings.ToLower(strings.TrimSpace(brand.Category)); c != "" {
			return c
		}
	}

	hits := make(map[string]int)
	for _, text := range texts {
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			if c, ok := keywordIndex[w]; ok {
				hits[c]++
			}
		}
	}

	best, bestHits := "", 0
	for c, n := range hits {
		if n > bestHits || (n == bestHits && c < best) {
			best, bestHits = c, n
		}
	}
	if best == "" {
		return creative.DefaultCategory
	}
	return best
}

func corpusTexts(batches []creative.CompetitorBatch) []string {
	var texts []string
	for _, b := range batches {
		for _, ad := range b.Ads {
			if t := ad.Text(); t != "" {
				texts = append(texts, t)
			}
			if ad.LandingText != "" {
				texts = append(texts, ad.LandingText)
			}
		}
	}
	return texts
}
