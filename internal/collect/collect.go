// Package collect imports competitor ad samples from exported JSON batch
// files and ad-library feeds.
package collect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/TobiSchelling/adcraft/internal/config"
	"github.com/TobiSchelling/adcraft/internal/creative"
)

// Result holds the results of a collection run.
type Result struct {
	TotalFound int
	NewAds     int
	Duplicates int
	Sources    map[string]int
}

func newResult() *Result {
	return &Result{Sources: make(map[string]int)}
}

// Store persists competitor batches.
type Store interface {
	ImportBatch(ctx context.Context, projectID string, b creative.CompetitorBatch) (int, error)
}

// Collector imports competitor ads into the store.
type Collector struct {
	db         Store
	feedParser *FeedParser
	logger     *zap.Logger
}

// NewCollector creates a collector for the feeds configured in cfg.
func NewCollector(cfg *config.Config, db Store, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{db: db, logger: logger}

	if len(cfg.Sources.Feeds) > 0 {
		feeds := make([]FeedConfig, len(cfg.Sources.Feeds))
		for i, f := range cfg.Sources.Feeds {
			feeds[i] = FeedConfig{URL: f.URL, Project: f.Project, Competitor: f.Competitor, Platform: f.Platform}
		}
		c.feedParser = NewFeedParser(feeds, logger)
	}
	return c
}

// CollectFeeds imports every configured ad-library feed. Feeds without a
// project are skipped.
func (c *Collector) CollectFeeds(ctx context.Context) (*Result, error) {
	r := newResult()
	if c.feedParser == nil {
		c.logger.Info("no ad-library feeds configured")
		return r, nil
	}

	for _, fb := range c.feedParser.ParseAll(ctx) {
		if fb.Project == "" {
			c.logger.Warn("feed has no project, skipping", zap.String("competitor", fb.Batch.Competitor))
			continue
		}
		if err := c.importOne(ctx, fb.Project, fb.Batch, r); err != nil {
			return r, err
		}
	}

	c.logger.Info("feed collection complete",
		zap.Int("found", r.TotalFound),
		zap.Int("new", r.NewAds),
		zap.Int("duplicates", r.Duplicates),
	)
	return r, nil
}

// ImportBatches stores batches under projectID.
func (c *Collector) ImportBatches(ctx context.Context, projectID string, batches []creative.CompetitorBatch) (*Result, error) {
	r := newResult()
	for _, b := range batches {
		if err := c.importOne(ctx, projectID, b, r); err != nil {
			return r, err
		}
	}
	c.logger.Info("batch import complete",
		zap.String("project", projectID),
		zap.Int("competitors", len(batches)),
		zap.Int("new", r.NewAds),
		zap.Int("duplicates", r.Duplicates),
	)
	return r, nil
}

func (c *Collector) importOne(ctx context.Context, projectID string, b creative.CompetitorBatch, r *Result) error {
	n, err := c.db.ImportBatch(ctx, projectID, b)
	if err != nil {
		return fmt.Errorf("importing %s: %w", b.Competitor, err)
	}
	r.TotalFound += len(b.Ads)
	r.NewAds += n
	r.Duplicates += len(b.Ads) - n
	r.Sources[b.Competitor] += n
	return nil
}

// LoadBatches reads competitor batches from a JSON file holding either one
// batch object or an array of them.
func LoadBatches(path string) ([]creative.CompetitorBatch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	return ParseBatches(data)
}

// ParseBatches decodes one batch object or an array of batches.
func ParseBatches(data []byte) ([]creative.CompetitorBatch, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, &creative.InvalidInputError{Field: "batches", Reason: "empty input"}
	}

	var batches []creative.CompetitorBatch
	if data[0] == '[' {
		if err := json.Unmarshal(data, &batches); err != nil {
			return nil, &creative.InvalidInputError{Field: "batches", Reason: err.Error()}
		}
	} else {
		var b creative.CompetitorBatch
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, &creative.InvalidInputError{Field: "batches", Reason: err.Error()}
		}
		batches = []creative.CompetitorBatch{b}
	}

	for i, b := range batches {
		if b.Competitor == "" {
			return nil, &creative.InvalidInputError{Field: fmt.Sprintf("batches[%d].competitor", i), Reason: "required"}
		}
	}
	return batches, nil
}
