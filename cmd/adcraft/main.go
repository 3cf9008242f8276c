package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/adcraft/internal/catalog"
	"github.com/TobiSchelling/adcraft/internal/collect"
	"github.com/TobiSchelling/adcraft/internal/compat"
	"github.com/TobiSchelling/adcraft/internal/config"
	"github.com/TobiSchelling/adcraft/internal/creative"
	"github.com/TobiSchelling/adcraft/internal/database"
	"github.com/TobiSchelling/adcraft/internal/fetch"
	"github.com/TobiSchelling/adcraft/internal/logging"
	"github.com/TobiSchelling/adcraft/internal/perception"
	"github.com/TobiSchelling/adcraft/internal/pipeline"
	"github.com/TobiSchelling/adcraft/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "adcraft",
	Short:         "Competitor-informed ad creatives",
	Long:          "adcraft distills competitor ads into visual guidelines, checks templates against images, and renders ad creatives.",
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "DEBUG"
		}
		logger, err = logging.New(level)
		if err != nil {
			return fmt.Errorf("configuring logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(brandCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(guidelineCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

// describe turns an error into a one-line message with a hint for the
// failure kinds a user can act on.
func describe(err error) string {
	var (
		insufficient *creative.InsufficientDataError
		unavailable  *creative.OracleUnavailableError
		contract     *creative.OracleContractError
		renderErr    *creative.RenderError
		incompatible *pipeline.IncompatibleError
	)
	switch {
	case errors.As(err, &insufficient):
		return err.Error() + " (import competitor ads first: adcraft import ads)"
	case errors.As(err, &unavailable):
		return err.Error() + " (check the oracle settings, then retry)"
	case errors.As(err, &contract):
		return err.Error() + " (the oracle answered in an unexpected shape; retry or switch model)"
	case errors.As(err, &incompatible):
		return err.Error() + " (pick another template or pass --override)"
	case errors.As(err, &renderErr):
		return err.Error() + " (check renderer.browser_bin)"
	}
	return err.Error()
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(filepath.Join(dataDir, "adcraft.db"), logger.Named("db"))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("adcraft", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/adcraft/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds, the oracle provider, perception and the renderer.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Corpus:")
		fmt.Printf("  Projects: %d\n", stats.Projects)
		fmt.Printf("  Competitors: %d\n", stats.Competitors)
		fmt.Printf("  Competitor ads: %d\n", stats.CompetitorAds)
		fmt.Println("\nOutput:")
		fmt.Printf("  Guidelines: %d\n", stats.Guidelines)
		fmt.Printf("  Templates: %d\n", stats.Templates)
		fmt.Printf("  Generated ads: %d\n", stats.GeneratedAds)
		fmt.Printf("  Cached image layouts: %d\n", stats.ImageLayouts)
		if stats.LastGenerated != "" {
			fmt.Printf("  Last generated: %s\n", stats.LastGenerated)
		}
		return nil
	},
}

// --- brand command ---

var brandProject string

var brandCmd = &cobra.Command{
	Use:   "brand",
	Short: "Manage brand identities",
}

var brandSetCmd = &cobra.Command{
	Use:   "set [file.yaml]",
	Short: "Store a project's brand identity from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading brand file: %w", err)
		}
		var brand creative.BrandIdentity
		if err := yaml.Unmarshal(data, &brand); err != nil {
			return &creative.InvalidInputError{Field: "brand", Reason: err.Error()}
		}
		if brandProject != "" {
			brand.ProjectID = brandProject
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.UpsertBrandIdentity(cmd.Context(), brand); err != nil {
			return err
		}
		fmt.Printf("Stored brand identity for %s\n", brand.ProjectID)
		return nil
	},
}

func init() {
	brandSetCmd.Flags().StringVarP(&brandProject, "project", "p", "", "Project id (overrides the file)")
	brandCmd.AddCommand(brandSetCmd)
}

// --- import commands ---

var importProject string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import competitor ads",
}

var importAdsCmd = &cobra.Command{
	Use:   "ads [file.json]",
	Short: "Import competitor batches from a JSON export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batches, err := collect.LoadBatches(args[0])
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		collector := collect.NewCollector(cfg, db, logger.Named("collect"))
		result, err := collector.ImportBatches(cmd.Context(), importProject, batches)
		if err != nil {
			return err
		}
		printCollectResult(result)
		return nil
	},
}

var importFeedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Import competitor ads from the configured feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Println("Collecting ads from feeds...")
		collector := collect.NewCollector(cfg, db, logger.Named("collect"))
		result, err := collector.CollectFeeds(cmd.Context())
		if err != nil {
			return err
		}
		printCollectResult(result)
		return nil
	},
}

func init() {
	importAdsCmd.Flags().StringVarP(&importProject, "project", "p", "", "Project id")
	_ = importAdsCmd.MarkFlagRequired("project")
	importCmd.AddCommand(importAdsCmd)
	importCmd.AddCommand(importFeedsCmd)
}

func printCollectResult(result *collect.Result) {
	fmt.Println("\nImport complete:")
	fmt.Printf("  Total found: %d\n", result.TotalFound)
	fmt.Printf("  New ads: %d\n", result.NewAds)
	fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)

	if len(result.Sources) > 0 {
		fmt.Println("\nAds by competitor:")
		type kv struct {
			key string
			val int
		}
		var sorted []kv
		for k, v := range result.Sources {
			sorted = append(sorted, kv{k, v})
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
		for _, s := range sorted {
			fmt.Printf("  %s: %d\n", s.key, s.val)
		}
	}
}

// --- fetch command ---

var fetchProject string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch landing-page text for imported ads",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fetcher := fetch.NewLandingFetcher(db, 0, logger.Named("fetch"))
		result, err := fetcher.FetchMissing(cmd.Context(), fetchProject)
		if err != nil {
			return err
		}
		fmt.Printf("Fetched %d landing pages, %d failed\n", result.Fetched, result.Failed)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchProject, "project", "p", "", "Project id")
	_ = fetchCmd.MarkFlagRequired("project")
}

// --- layout command ---

var layoutImage string

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Manage image layout analyses",
}

var layoutImportCmd = &cobra.Command{
	Use:   "import [file.json]",
	Short: "Cache an image layout map produced elsewhere",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := perception.LoadFile(args[0], layoutImage)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.PutImageLayout(cmd.Context(), *m); err != nil {
			return err
		}
		fmt.Printf("Cached layout for %s (contrast %s, noise %s, %d avoid zones)\n",
			m.ImageRef, m.ContrastLevel, m.VisualNoise, len(m.AvoidZones))
		return nil
	},
}

func init() {
	layoutImportCmd.Flags().StringVar(&layoutImage, "image", "", "Image reference (overrides the file)")
	layoutCmd.AddCommand(layoutImportCmd)
}

// --- guideline commands ---

var guidelineProject string

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract a new visual guideline from the competitor corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		c, err := pipeline.Build(cmd.Context(), cfg, db, logger)
		if err != nil {
			return err
		}
		fmt.Printf("Extracting guideline for %s...\n", guidelineProject)
		g, err := c.Guidelines.Generate(cmd.Context(), guidelineProject)
		if err != nil {
			return err
		}
		printGuideline(g)
		return nil
	},
}

var guidelineCmd = &cobra.Command{
	Use:   "guideline",
	Short: "Inspect visual guidelines",
}

var guidelineJSON bool

var guidelineShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active guideline of a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		g, err := db.LatestGuideline(cmd.Context(), guidelineProject)
		if err != nil {
			return err
		}
		if guidelineJSON {
			return printJSON(g)
		}
		printGuideline(g)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVarP(&guidelineProject, "project", "p", "", "Project id")
	_ = extractCmd.MarkFlagRequired("project")
	guidelineShowCmd.Flags().StringVarP(&guidelineProject, "project", "p", "", "Project id")
	_ = guidelineShowCmd.MarkFlagRequired("project")
	guidelineShowCmd.Flags().BoolVar(&guidelineJSON, "json", false, "Print as JSON")
	guidelineCmd.AddCommand(guidelineShowCmd)
}

func printGuideline(g *creative.VisualGuideline) {
	p := g.MarketPatterns
	fmt.Printf("\nGuideline #%d for %s (category %s)\n", g.ID, g.ProjectID, g.Category)
	fmt.Printf("  Image placement: %s\n", p.ImagePlacement)
	fmt.Printf("  Text hierarchy: %s\n", p.TextHierarchy)
	fmt.Printf("  CTA position: %s\n", p.CTAPosition)
	fmt.Printf("  Visual density: %s\n", p.VisualDensity)
	fmt.Printf("  Background: %s\n", p.BackgroundStyle)
	if len(p.DominantColors) > 0 {
		fmt.Printf("  Colors: %s\n", strings.Join(p.DominantColors, ", "))
	}
	for _, r := range p.CompositionRules {
		fmt.Printf("  - %s\n", r)
	}
	s := g.PerformanceSignals
	fmt.Printf("\nSignals: longevity %.1f days, frequency %d/10, platforms %s\n",
		s.LongevityDays, s.FrequencyScore, strings.Join(s.PlatformCoverage, ", "))
}

// --- templates commands ---

var (
	templatesPlatform string
	templatesProject  string
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage the template catalog",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates, optionally for one platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		cat := catalog.New(db, logger.Named("catalog"))
		if _, err := cat.Seed(cmd.Context()); err != nil {
			return err
		}
		templates, err := cat.ListForPlatform(cmd.Context(), templatesPlatform)
		if err != nil {
			return err
		}
		for _, t := range templates {
			platforms := "any"
			if len(t.Platforms) > 0 {
				platforms = strings.Join(t.Platforms, ",")
			}
			fmt.Printf("  %-38s %-28s contrast=%-6s zones=%d platforms=%s\n",
				t.ID, t.Name, t.Layout.RequiredContrast, len(t.Layout.TextZones), platforms)
		}
		return nil
	},
}

var templatesDeriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Derive a template from a project's active guideline",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		g, err := db.LatestGuideline(cmd.Context(), templatesProject)
		if err != nil {
			return err
		}
		t, err := catalog.New(db, logger.Named("catalog")).Derive(cmd.Context(), g)
		if err != nil {
			return err
		}
		fmt.Printf("Derived template %s (%s)\n", t.ID, t.Name)
		return nil
	},
}

func init() {
	templatesListCmd.Flags().StringVar(&templatesPlatform, "platform", "", "Only templates usable on this platform")
	templatesDeriveCmd.Flags().StringVarP(&templatesProject, "project", "p", "", "Project id")
	_ = templatesDeriveCmd.MarkFlagRequired("project")
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesDeriveCmd)
}

// --- validate command ---

var (
	validateTemplate string
	validateImage    string
	validateLayout   string
	validatePlatform string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Score a template against an image, or rank the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		c, err := pipeline.Build(ctx, cfg, db, logger)
		if err != nil {
			return err
		}

		var layout *creative.ImageLayoutMap
		if validateLayout != "" {
			layout, err = perception.LoadFile(validateLayout, validateImage)
		} else {
			layout, err = c.Perception.Analyze(ctx, validateImage)
		}
		if err != nil {
			return err
		}

		if validateTemplate == "" {
			templates, err := c.Catalog.ListForPlatform(ctx, validatePlatform)
			if err != nil {
				return err
			}
			ranked, err := compat.Rank(templates, layout)
			if err != nil {
				return err
			}
			for _, res := range ranked {
				printCompatibility(res)
			}
			return nil
		}

		tmpl, err := c.Catalog.Get(ctx, validateTemplate)
		if err != nil {
			return err
		}
		res, err := compat.Validate(tmpl, layout)
		if err != nil {
			return err
		}
		printCompatibility(res)
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateTemplate, "template", "t", "", "Template id (default: rank all templates)")
	validateCmd.Flags().StringVarP(&validateImage, "image", "i", "", "Image reference")
	validateCmd.Flags().StringVar(&validateLayout, "layout", "", "Layout map JSON file instead of the perception service")
	validateCmd.Flags().StringVar(&validatePlatform, "platform", "", "Only rank templates usable on this platform")
}

func printCompatibility(res creative.CompatibilityResult) {
	verdict := "compatible"
	if !res.Compatible {
		verdict = "incompatible"
	}
	fmt.Printf("%s: score %d (%s)\n", res.TemplateID, res.Score, verdict)
	for _, issue := range res.Issues {
		fmt.Printf("  - %s\n", issue)
	}
}

// --- run / render commands ---

var runReq pipeline.Request

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: guideline -> template -> analyze -> validate -> render -> persist",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
			result := p.Run(ctx, runReq)
			printRun(result)
			return result.Err
		})
	},
}

var renderCmd = &cobra.Command{
	Use:   "render [requests.json]",
	Short: "Render a batch of ad requests in parallel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading requests: %w", err)
		}
		var reqs []pipeline.Request
		if err := json.Unmarshal(data, &reqs); err != nil {
			return &creative.InvalidInputError{Field: "requests", Reason: err.Error()}
		}

		return withPipeline(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
			failed := 0
			for i, result := range p.RenderBatch(ctx, reqs) {
				if result.Err != nil {
					failed++
					fmt.Printf("[%d] %s: failed: %s\n", i+1, result.ProjectID, describe(result.Err))
					continue
				}
				fmt.Printf("[%d] %s: %s -> %s\n", i+1, result.ProjectID, result.Ad.ID, result.Ad.Metadata.ImagePath)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d renders failed", failed, len(reqs))
			}
			return nil
		})
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runReq.ProjectID, "project", "p", "", "Project id")
	f.StringVarP(&runReq.ImageRef, "image", "i", "", "Image URL")
	f.StringVar(&runReq.Content.Headline, "headline", "", "Headline copy")
	f.StringVar(&runReq.Content.BodyCopy, "body", "", "Body copy")
	f.StringVar(&runReq.Content.CTA, "cta", "", "Call-to-action copy")
	f.StringVar(&runReq.Dimensions, "dimensions", "", "Output size WxH (default from config)")
	f.StringVarP(&runReq.TemplateID, "template", "t", "", "Use this template instead of deriving one")
	f.BoolVar(&runReq.Override, "override", false, "Render even when the template is incompatible")
	f.BoolVar(&runReq.Regenerate, "regenerate", false, "Extract a fresh guideline first")
	_ = runCmd.MarkFlagRequired("project")
	_ = runCmd.MarkFlagRequired("image")
}

// withPipeline opens the store, builds the pipeline and runs fn with a
// context cancelled on SIGINT/SIGTERM.
func withPipeline(ctx context.Context, fn func(context.Context, *pipeline.Pipeline) error) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	p, _, err := pipeline.NewFromConfig(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	return fn(ctx, p)
}

func printRun(result *pipeline.Result) {
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d/6: %s\n", i+1, step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %s\n", describe(step.Err))
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
	if result.Compatibility != nil && len(result.Compatibility.Issues) > 0 {
		fmt.Println("\nCompatibility issues:")
		for _, issue := range result.Compatibility.Issues {
			fmt.Printf("  - %s\n", issue)
		}
	}
	if result.Err == nil && result.Ad != nil {
		fmt.Printf("\nAd %s written to %s\n", result.Ad.ID, result.Ad.Metadata.ImagePath)
	}
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		p, c, err := pipeline.NewFromConfig(ctx, cfg, db, logger)
		if err != nil {
			return err
		}
		srv, err := server.New(db, c.Guidelines, c.Catalog, p, logger.Named("server"))
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}
