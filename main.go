package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chyiyaqing/trendbot/internal/ai"
	"github.com/chyiyaqing/trendbot/internal/cluster"
	"github.com/chyiyaqing/trendbot/internal/config"
	"github.com/chyiyaqing/trendbot/internal/logger"
	"github.com/chyiyaqing/trendbot/internal/notify"
	"github.com/chyiyaqing/trendbot/internal/notify/natspub"
	"github.com/chyiyaqing/trendbot/internal/notify/telegram"
	"github.com/chyiyaqing/trendbot/internal/report"
	"github.com/chyiyaqing/trendbot/internal/scheduler"
	"github.com/chyiyaqing/trendbot/internal/server"
	"github.com/chyiyaqing/trendbot/internal/sources"
	"github.com/chyiyaqing/trendbot/internal/store"
	"github.com/chyiyaqing/trendbot/internal/synth"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "trendbot",
		Short: "Interior design trend reports from RSS, Reddit and SearXNG",
		Long: `Trendbot collects recent interior design content, groups it into themes
and writes social copy and poster concepts for each theme.

Examples:
  # Serve the trends page and API, refreshing every 10 minutes
  trendbot serve

  # Build one report and print it as JSON
  trendbot build > report.json

  # Show per-source fetch health for the last 3 days
  trendbot sources --window 3days`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "trendbot.yaml", "config file")

	root.AddCommand(newServeCmd(), newBuildCmd(), newSourcesCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var addr, schedule string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the trends page and API with scheduled refreshes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if schedule != "" {
				cfg.Pipeline.RefreshSchedule = schedule
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression for report refresh")
	return cmd
}

func newBuildCmd() *cobra.Command {
	var send bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build one trend report and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runBuild(cmd.Context(), cfg, send)
		},
	}
	cmd.Flags().BoolVar(&send, "notify", false, "send the report to configured notifiers")
	return cmd
}

func newSourcesCmd() *cobra.Command {
	var window string
	var limit int
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Show source fetch health and the latest fetches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runSources(cmd.Context(), cfg, window, limit)
		},
	}
	cmd.Flags().StringVar(&window, "window", "24h", "time window: 24h, 3days or 7days")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of recent fetches to list")
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

func openStore(path string) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// app is the wired pipeline plus what must be released on exit.
type app struct {
	db      *store.Store
	cache   *report.Cache
	closers []func()
}

func (a *app) Close() {
	a.cache.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.db.Close()
}

func newApp(ctx context.Context, cfg *config.Config, withListeners bool) (*app, error) {
	db, err := openStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	a := &app{db: db}

	chat, err := ai.NewChatter(ctx, cfg.LLM)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	fetcher := sources.New(sources.Options{
		Timeout:        cfg.Pipeline.SourceTimeout,
		MaxConcurrency: cfg.Pipeline.MaxConcurrency,
		MaxItems:       cfg.Pipeline.MaxItemsPerSource,
		EnrichExcerpts: cfg.Pipeline.EnrichExcerpts,
	}, db)
	clusterer := cluster.New(cluster.Options{
		Threshold:   cfg.Cluster.Threshold,
		MinMembers:  cfg.Cluster.MinMembers,
		MaxKeywords: cfg.Cluster.MaxKeywords,
	})
	synthesizer := synth.New(ai.NewGenerator(chat), synth.Options{
		Platforms: cfg.Synth.Platforms,
		Timeout:   cfg.Pipeline.SynthesisTimeout,
		RPM:       cfg.Synth.RPM,
		Burst:     cfg.Synth.Burst,
	})
	pipeline := report.NewPipeline(fetcher, clusterer, synthesizer, cfg.Sources, cfg.Pipeline.MaxThemes)

	var listeners []report.Listener
	if withListeners {
		if tg := telegram.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID); tg != nil {
			listeners = append(listeners, notify.NewReportListener(tg, telegram.FormatReport))
			logger.Log.Info("Telegram notifications enabled")
		}
		if cfg.NATS.URL != "" {
			nc, err := natspub.Connect(cfg.NATS.URL)
			if err != nil {
				// Reports are still served without the event stream.
				logger.Log.Warnf("NATS disabled: %v", err)
			} else {
				listeners = append(listeners, natspub.New(nc, cfg.NATS.Subject))
				a.closers = append(a.closers, func() {
					if err := nc.Drain(); err != nil {
						logger.Log.Warnf("drain nats: %v", err)
					}
				})
				logger.Log.Infof("Publishing report events to %s", cfg.NATS.Subject)
			}
		}
	}

	a.cache = report.NewCache(pipeline, report.CacheOptions{
		FreshnessWindow: cfg.Pipeline.FreshnessWindow,
		BuildTimeout:    cfg.Pipeline.BuildTimeout,
		Recorder:        db,
		Listeners:       listeners,
	})
	return a, nil
}

func runServe(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a.cache, a.db, server.Options{
		Addr:                 cfg.Server.Addr,
		CacheMaxAge:          cfg.Server.CacheMaxAge,
		StaleWhileRevalidate: cfg.Server.StaleWhileRevalidate,
		RequestTimeout:       cfg.Pipeline.BuildTimeout,
	})

	var (
		wg     sync.WaitGroup
		srvErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if srvErr = srv.Start(ctx); srvErr != nil {
			cancel()
		}
	}()

	// Blocks until ctx is cancelled.
	schedErr := scheduler.Run(ctx, a.cache, cfg.Pipeline.RefreshSchedule)
	cancel()
	wg.Wait()

	if srvErr != nil {
		return fmt.Errorf("http server: %w", srvErr)
	}
	if schedErr != nil {
		return fmt.Errorf("scheduler: %w", schedErr)
	}
	logger.Log.Info("Shut down")
	return nil
}

func runBuild(ctx context.Context, cfg *config.Config, send bool) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, send)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	r, err := a.cache.BuildTrendReport(ctx)
	if err != nil {
		return err
	}
	logger.Log.Infof("Built %d themes in %s", len(r.Themes), time.Since(start).Round(time.Millisecond))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func runSources(ctx context.Context, cfg *config.Config, window string, limit int) error {
	db, err := openStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	health, err := db.SourceHealthByWindow(ctx, window)
	if err != nil {
		return err
	}
	fmt.Printf("=== Source health (%s) ===\n\n", window)
	if len(health) == 0 {
		fmt.Println("No fetches recorded. Run 'trendbot build' first.")
	}
	for _, h := range health {
		fmt.Printf("%-24s fetches: %-4d failures: %-4d last: %s (%d items)\n",
			h.Source, h.Fetches, h.Failures, h.LastFetch.Local().Format("2006-01-02 15:04"), h.LastItems)
		if h.LastError != "" {
			fmt.Printf("    last error: %s\n", h.LastError)
		}
	}

	fetches, err := db.RecentFetches(ctx, limit)
	if err != nil {
		return err
	}
	if len(fetches) > 0 {
		fmt.Printf("\n=== Latest %d fetches ===\n\n", len(fetches))
	}
	for _, f := range fetches {
		status := fmt.Sprintf("%d items", f.Items)
		if f.Error != "" {
			status = "error: " + f.Error
		}
		fmt.Printf("  %s  [%s] %s (%s) %s\n",
			f.StartedAt.Local().Format("2006-01-02 15:04:05"), f.Kind, f.Source, f.Duration.Round(time.Millisecond), status)
	}
	return nil
}
