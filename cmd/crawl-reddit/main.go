// Command crawl-reddit runs the Reddit data-collection pipeline: subreddit
// crawling through a rotating credential/proxy pool, comment tracking for
// ledgered posts, historical backfill via PullPush, and an admin HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/config"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
	httpapi "github.com/AhaCompany/crawl-reddit-sub000/internal/http"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/observability"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/reddit"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/repo"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/services"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "crawl-reddit",
		Short:         "Reddit data-collection pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newCrawlCmd(),
		newHistoricalCmd(),
		newTrackCmd(),
		newCleanupCmd(),
		newAccountsCmd(),
		newProxiesCmd(),
		newStatsCmd(),
	)
	return root
}

// app bundles the wired collaborators shared by every subcommand.
type app struct {
	cfg      config.Config
	db       *gorm.DB
	accounts *services.CredentialPool
	proxies  *services.ProxyPool
	crawler  *services.Crawler
	tracker  *services.Tracker
}

// newApp loads configuration, opens the database, and wires the service
// graph. Callers must invoke close() when done.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	observability.SetupLogging(cfg.LogLevel, cfg.LogPretty)

	// Open also runs schema migrations.
	db, err := repo.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	accounts := services.NewCredentialPool(db, cfg)
	proxies := services.NewProxyPool(db, cfg)

	// A nil proxy provider means direct egress for every request.
	var proxyProvider services.ProxyProvider
	if cfg.UseProxies {
		proxyProvider = proxies
	}
	rotating := services.NewRotatingClient(accounts, proxyProvider, cfg)
	crawler := services.NewCrawler(db, rotating, cfg)

	// Ledger re-polls ride the same rotation so they share proxy accounting,
	// failure classification, and the retry schedule.
	tracker := services.NewTracker(db, rotating, cfg)

	return &app{
		cfg:      cfg,
		db:       db,
		accounts: accounts,
		proxies:  proxies,
		crawler:  crawler,
		tracker:  tracker,
	}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

//
// serve
//

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API with background crawl, track, and cleanup loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			return runServe(cmd.Context(), a)
		},
	}
}

func runServe(ctx context.Context, a *app) error {
	signalCtx, stop := signalContext(ctx)
	defer stop()

	shutdownOtel, err := observability.Setup(signalCtx, a.cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("trace exporter shutdown failed")
		}
	}()

	gin.SetMode(a.cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       a.db,
		Accounts: a.accounts,
		Proxies:  a.proxies,
		Tracking: a.tracker,
	}, a.cfg)

	srv := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      r,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	go a.accounts.StartResetLoop(signalCtx)
	go crawlLoop(signalCtx, a)
	go trackLoop(signalCtx, a)
	go cleanupLoop(signalCtx, a)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("admin API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// crawlLoop runs one crawl cycle per configured subreddit every interval.
func crawlLoop(ctx context.Context, a *app) {
	if a.cfg.CrawlInterval <= 0 || len(a.cfg.Subreddits) == 0 {
		log.Info().Msg("crawl loop disabled")
		return
	}
	ticker := time.NewTicker(a.cfg.CrawlInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, subreddit := range a.cfg.Subreddits {
				if _, err := a.crawler.CrawlSubreddit(ctx, subreddit, reddit.SortNew, 100, ""); err != nil {
					log.Error().Err(err).Str("subreddit", subreddit).Msg("crawl cycle failed")
				}
			}
		}
	}
}

// trackLoop enqueues freshly stored posts and polls the ledger.
func trackLoop(ctx context.Context, a *app) {
	if a.cfg.TrackInterval <= 0 {
		log.Info().Msg("track loop disabled")
		return
	}
	ticker := time.NewTicker(a.cfg.TrackInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.tracker.AutoTrack(ctx, 0); err != nil {
				log.Error().Err(err).Msg("auto-track pass failed")
			}
			result, err := a.tracker.ProcessNext(ctx)
			if err != nil {
				log.Error().Err(err).Msg("tracking pass failed")
				continue
			}
			if result.Processed > 0 {
				log.Info().
					Int("processed", result.Processed).
					Int("new_comments", result.NewComments).
					Int("failed", result.Failed).
					Msg("tracking pass complete")
			}
		}
	}
}

// cleanupLoop expires ledger entries past their deadline.
func cleanupLoop(ctx context.Context, a *app) {
	if a.cfg.CleanInterval <= 0 {
		log.Info().Msg("cleanup loop disabled")
		return
	}
	ticker := time.NewTicker(a.cfg.CleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.tracker.Cleanup(ctx); err != nil {
				log.Error().Err(err).Msg("ledger cleanup failed")
			}
		}
	}
}

//
// crawl / historical / track / cleanup
//

func newCrawlCmd() *cobra.Command {
	var (
		sort      string
		limit     int
		timeframe string
	)
	cmd := &cobra.Command{
		Use:   "crawl [subreddit...]",
		Short: "Run one crawl cycle for the given subreddits",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			subreddits := args
			if len(subreddits) == 0 {
				subreddits = a.cfg.Subreddits
			}
			if len(subreddits) == 0 {
				return fmt.Errorf("no subreddits given and none configured")
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			for _, subreddit := range subreddits {
				result, err := a.crawler.CrawlSubreddit(ctx, subreddit, sort, limit, timeframe)
				if err != nil {
					return err
				}
				if err := printJSON(result); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sort, "sort", reddit.SortNew, "listing sort: new|hot|top|rising")
	cmd.Flags().IntVar(&limit, "limit", 100, "posts per listing page (max 100)")
	cmd.Flags().StringVar(&timeframe, "timeframe", "", "top-sort window: hour|day|week|month|year|all")
	return cmd
}

func newHistoricalCmd() *cobra.Command {
	var (
		days     int
		maxPages int
	)
	cmd := &cobra.Command{
		Use:   "historical <subreddit>",
		Short: "Backfill a subreddit from the PullPush archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			since := time.Now().AddDate(0, 0, -days)
			stored, err := a.crawler.CrawlHistorical(ctx, args[0], since, maxPages)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"subreddit": args[0], "stored": stored})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "how far back to walk")
	cmd.Flags().IntVar(&maxPages, "max-pages", 50, "page budget per content kind")
	return cmd
}

func newTrackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "track",
		Short: "Run one comment-tracking pass over the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if _, err := a.tracker.AutoTrack(ctx, 0); err != nil {
				return err
			}
			result, err := a.tracker.ProcessNext(ctx)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Expire ledger entries past their tracking deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			expired, err := a.tracker.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(map[string]int64{"expired": expired})
		},
	}
}

//
// accounts / proxies / stats
//

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage the credential pool",
	}

	var (
		username     string
		password     string
		clientID     string
		clientSecret string
		userAgent    string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add or refresh one credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			return a.accounts.Add(cmd.Context(), domain.RedditCredential{
				Username:     username,
				Password:     password,
				ClientID:     clientID,
				ClientSecret: clientSecret,
				UserAgent:    userAgent,
			})
		},
	}
	add.Flags().StringVar(&username, "username", "", "Reddit username")
	add.Flags().StringVar(&password, "password", "", "Reddit password")
	add.Flags().StringVar(&clientID, "client-id", "", "app client id")
	add.Flags().StringVar(&clientSecret, "client-secret", "", "app client secret")
	add.Flags().StringVar(&userAgent, "user-agent", "", "user agent (defaulted when empty)")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Bulk-import credentials from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.accounts.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(map[string]int{"imported": n})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List pooled credentials (secrets redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			accounts, err := a.accounts.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(accounts)
		},
	}

	disable := &cobra.Command{
		Use:   "disable <username>",
		Short: "Soft-disable one credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			return a.accounts.Disable(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(add, importCmd, list, disable)
	return cmd
}

func newProxiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxies",
		Short: "Manage the proxy pool",
	}

	var (
		host     string
		port     int
		protocol string
		username string
		password string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add one proxy endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			id, err := a.proxies.Add(cmd.Context(), domain.ProxyEndpoint{
				Host:     host,
				Port:     port,
				Protocol: protocol,
				Username: username,
				Password: password,
			})
			if err != nil {
				return err
			}
			return printJSON(map[string]uint{"id": id})
		},
	}
	add.Flags().StringVar(&host, "host", "", "proxy host")
	add.Flags().IntVar(&port, "port", 0, "proxy port")
	add.Flags().StringVar(&protocol, "protocol", "http", "http|https|socks5")
	add.Flags().StringVar(&username, "username", "", "proxy auth username")
	add.Flags().StringVar(&password, "password", "", "proxy auth password")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Bulk-import proxies from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.proxies.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(map[string]int{"imported": n})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List pooled proxies (passwords redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			proxies, err := a.proxies.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(proxies)
		},
	}

	disable := &cobra.Command{
		Use:   "disable <id>",
		Short: "Soft-disable one proxy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			var id uint
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("proxy id must be a positive integer")
			}
			return a.proxies.Disable(cmd.Context(), id)
		},
	}

	cmd.AddCommand(add, importCmd, list, disable)
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print pool and storage stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			accountStats, err := a.accounts.Stats(ctx)
			if err != nil {
				return err
			}
			proxyStats, err := a.proxies.Stats(ctx)
			if err != nil {
				return err
			}
			storage, err := repo.CollectStorageStats(ctx, a.db)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"accounts": accountStats,
				"proxies":  proxyStats,
				"storage":  storage,
			})
		},
	}
}
