package collect

import (
	"context"
	"math"
	"net/url"
	"sort"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

const maxPerFeed = 50

// FeedConfig is one exported ad-library feed.
type FeedConfig struct {
	URL        string
	Project    string
	Competitor string
	Platform   string
}

// FeedParser turns ad-library feeds into competitor batches.
type FeedParser struct {
	feeds  []FeedConfig
	parser *gofeed.Parser
	logger *zap.Logger
}

// NewFeedParser creates a new FeedParser.
func NewFeedParser(feeds []FeedConfig, logger *zap.Logger) *FeedParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedParser{feeds: feeds, parser: gofeed.NewParser(), logger: logger}
}

// FeedBatch is the batch read from one feed, tagged with its project.
type FeedBatch struct {
	Project string
	Batch   creative.CompetitorBatch
}

// ParseAll parses every configured feed. Feeds that fail are logged and skipped.
func (fp *FeedParser) ParseAll(ctx context.Context) []FeedBatch {
	var all []FeedBatch
	for _, fc := range fp.feeds {
		feed, err := fp.parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			fp.logger.Warn("failed to parse feed", zap.String("url", fc.URL), zap.Error(err))
			continue
		}
		b := BatchFromFeed(feed, fc)
		all = append(all, FeedBatch{Project: fc.Project, Batch: b})
		fp.logger.Info("parsed ad-library feed",
			zap.String("competitor", b.Competitor),
			zap.Int("ads", len(b.Ads)),
		)
	}
	return all
}

// BatchFromFeed converts a parsed feed into a competitor batch. The competitor
// name falls back to the feed title, then to the feed host.
func BatchFromFeed(feed *gofeed.Feed, fc FeedConfig) creative.CompetitorBatch {
	name := strings.TrimSpace(fc.Competitor)
	if name == "" {
		name = strings.TrimSpace(feed.Title)
	}
	if name == "" {
		name = extractSourceName(fc.URL)
	}
	platform := strings.ToLower(strings.TrimSpace(fc.Platform))

	b := creative.CompetitorBatch{
		Competitor:    name,
		TotalAdsKnown: len(feed.Items),
	}
	seen := make(map[string]struct{})
	for _, item := range feed.Items {
		if len(b.Ads) >= maxPerFeed {
			break
		}
		ad := parseItem(item)
		if ad == nil {
			continue
		}
		if platform != "" && len(ad.Platforms) == 0 {
			ad.Platforms = []string{platform}
		}
		for _, p := range ad.Platforms {
			seen[p] = struct{}{}
		}
		b.Ads = append(b.Ads, *ad)
	}
	if platform != "" {
		seen[platform] = struct{}{}
	}
	for p := range seen {
		b.PlatformsObserved = append(b.PlatformsObserved, p)
	}
	sort.Strings(b.PlatformsObserved)
	return b
}

// parseItem maps one feed entry to an ad sample. The title is the headline,
// the description or content the body, and the link the landing page. An
// entry with both published and updated dates ran for the days between them.
func parseItem(item *gofeed.Item) *creative.AdSample {
	id := strings.TrimSpace(item.GUID)
	if id == "" {
		id = strings.TrimSpace(item.Link)
	}
	headline := strings.TrimSpace(item.Title)
	if id == "" || headline == "" {
		return nil
	}

	ad := &creative.AdSample{
		ID:         id,
		Headline:   headline,
		LandingURL: strings.TrimSpace(item.Link),
	}
	if item.Description != "" {
		ad.Body = stripHTML(item.Description)
	} else if item.Content != "" {
		ad.Body = stripHTML(item.Content)
	}
	if item.Custom != nil {
		ad.CTA = strings.TrimSpace(item.Custom["cta"])
		if p := strings.ToLower(strings.TrimSpace(item.Custom["platform"])); p != "" {
			ad.Platforms = []string{p}
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		ad.SnapshotURL = item.Image.URL
	} else {
		for _, enc := range item.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") {
				ad.SnapshotURL = enc.URL
				break
			}
		}
	}
	if item.PublishedParsed != nil && item.UpdatedParsed != nil {
		days := item.UpdatedParsed.Sub(*item.PublishedParsed).Hours() / 24
		if days >= 0 {
			days = math.Round(days*10) / 10
			ad.LongevityDays = &days
		}
	}
	return ad
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(s)

	return strings.Join(strings.Fields(s), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "ads.", "library.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	name := host
	if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
