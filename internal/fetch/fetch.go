// Package fetch retrieves readable landing-page text for competitor ads.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/TobiSchelling/adcraft/internal/database"
)

const (
	minTextLen   = 100
	maxPageBytes = 5 << 20
)

// Result holds the results of a landing fetch run.
type Result struct {
	Fetched int
	Failed  int
}

// Store is the part of the datastore the fetcher needs.
type Store interface {
	AdsNeedingLanding(ctx context.Context, projectID string) ([]database.PendingLanding, error)
	UpdateLandingText(ctx context.Context, rowID int64, text *string) error
}

// LandingFetcher fetches landing-page text via HTTP + readability extraction.
type LandingFetcher struct {
	db     Store
	client *http.Client
	logger *zap.Logger
}

// NewLandingFetcher creates a new landing fetcher.
func NewLandingFetcher(db Store, timeout time.Duration, logger *zap.Logger) *LandingFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LandingFetcher{
		db: db,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		logger: logger,
	}
}

// FetchMissing fetches landing text for every ad of the project that has a
// landing URL and no fetch attempt yet. After an HTTP error, the remaining ads
// on the same domain are marked attempted without a request.
func (f *LandingFetcher) FetchMissing(ctx context.Context, projectID string) (*Result, error) {
	pending, err := f.db.AdsNeedingLanding(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing pending landings: %w", err)
	}
	if len(pending) == 0 {
		f.logger.Info("no landing pages need fetching", zap.String("project", projectID))
		return &Result{}, nil
	}

	result := &Result{}
	failedDomains := make(map[string]struct{})

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		domain := ""
		if u, err := url.Parse(p.URL); err == nil {
			domain = strings.ToLower(u.Host)
		}

		if _, failed := failedDomains[domain]; failed {
			if err := f.db.UpdateLandingText(ctx, p.RowID, nil); err != nil {
				return result, err
			}
			result.Failed++
			continue
		}

		text, httpErr := f.fetchLandingText(ctx, p.URL)
		if httpErr != nil {
			if err := f.db.UpdateLandingText(ctx, p.RowID, nil); err != nil {
				return result, err
			}
			result.Failed++
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			f.logger.Warn("landing fetch failed, skipping domain",
				zap.String("url", p.URL), zap.String("domain", domain), zap.Error(httpErr))
			continue
		}

		if text != "" {
			if err := f.db.UpdateLandingText(ctx, p.RowID, &text); err != nil {
				return result, err
			}
			result.Fetched++
			f.logger.Debug("fetched landing page", zap.String("competitor", p.Competitor), zap.String("url", p.URL))
		} else {
			if err := f.db.UpdateLandingText(ctx, p.RowID, nil); err != nil {
				return result, err
			}
			result.Failed++
			f.logger.Debug("no extractable landing text", zap.String("url", p.URL))
		}
	}

	f.logger.Info("landing fetch complete",
		zap.String("project", projectID),
		zap.Int("fetched", result.Fetched),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// fetchLandingText returns an httpError for 4xx/5xx responses. Connection and
// extraction problems yield empty text.
func (f *LandingFetcher) fetchLandingText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", nil
	}
	req.Header.Set("User-Agent", "adcraft/1.0 (creative research)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(io.LimitReader(resp.Body, maxPageBytes), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) > minTextLen {
		return text, nil
	}
	return "", nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
