package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kestrelhq/dossier/internal/profile"
	"github.com/kestrelhq/dossier/internal/version"
	"github.com/kestrelhq/dossier/plugin/provider"
	"github.com/kestrelhq/dossier/server/finops"
	"github.com/kestrelhq/dossier/server/orchestrator"
	"github.com/kestrelhq/dossier/server/taskreg"
	"github.com/kestrelhq/dossier/store"
	"github.com/kestrelhq/dossier/store/cache"
	"github.com/kestrelhq/dossier/store/db"
)

var rootCmd = &cobra.Command{
	Use:     "dossier",
	Short:   "Company and person intelligence assembly engine",
	Version: version.Version,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `mode of the engine: "prod" or "dev"`)
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", `record store driver: "sqlite", "postgres" or "none"`)
	flags.String("dsn", "", "database connection string")

	for _, f := range []string{"mode", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(f, flags.Lookup(f)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("dossier")
	viper.AutomaticEnv()

	analyzeCmd := &cobra.Command{Use: "analyze", Short: "Assemble intelligence records"}
	analyzeCmd.AddCommand(newAnalyzeCompanyCmd(), newAnalyzePersonCmd())
	cacheCmd := &cobra.Command{Use: "cache", Short: "Inspect and manage cached records"}
	cacheCmd.AddCommand(newCachePurgeCmd())
	rootCmd.AddCommand(analyzeCmd, cacheCmd, newTasksCmd(), newStatsCmd())
}

func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:   viper.GetString("mode"),
		Data:   viper.GetString("data"),
		Driver: viper.GetString("driver"),
		DSN:    viper.GetString("dsn"),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// engine bundles the wired components and their teardown order.
type engine struct {
	profile      *profile.Profile
	store        *store.Store
	cache        *cache.Service
	orchestrator *orchestrator.Orchestrator
	logger       *slog.Logger
}

func newEngine() (*engine, error) {
	p, err := loadProfile()
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if p.IsDev() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var st *store.Store
	if p.Driver != "none" {
		driver, err := db.NewDBDriver(p)
		if err != nil {
			return nil, fmt.Errorf("creating db driver: %w", err)
		}
		st = store.New(driver, p)
	}

	cacheSvc := cache.NewService(cache.ServiceConfig{
		Capacity:        p.CacheCapacity,
		DefaultTTL:      p.CacheTTL,
		CleanupInterval: p.CacheCleanupInterval,
		PendingTimeout:  p.PendingTimeout,
		SchemaVersion:   p.SchemaVersion,
	}, st)

	registry := taskreg.NewRegistry()
	if err := registry.Validate(); err != nil {
		cacheSvc.Close()
		return nil, fmt.Errorf("validating task registry: %w", err)
	}

	knowledge := provider.NewKnowledgeAdapter(&provider.KnowledgeConfig{
		APIKey:      p.OpenAIAPIKey,
		BaseURL:     p.OpenAIBaseURL,
		Model:       p.OpenAIModel,
		CallTimeout: p.TaskTimeout,
	})
	var primary provider.Adapter
	if p.IsPrimarySourceEnabled() {
		primary = provider.NewPrimaryAdapter(&provider.PrimaryConfig{
			APIKey:      p.PrimaryAPIKey,
			BaseURL:     p.PrimaryBaseURL,
			CallTimeout: p.TaskTimeout,
		})
	}

	return &engine{
		profile: p,
		store:   st,
		cache:   cacheSvc,
		orchestrator: orchestrator.New(orchestrator.Config{
			Registry:  registry,
			Knowledge: knowledge,
			Primary:   primary,
			Cache:     cacheSvc,
			Store:     st,
			Profile:   p,
			Logger:    logger,
		}),
		logger: logger,
	}, nil
}

func (e *engine) close() {
	e.cache.Close()
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Warn("closing store", slog.String("error", err.Error()))
		}
	}
}

func runWithEngine(cmd *cobra.Command, run func(ctx context.Context, e *engine) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.close()
	return run(ctx, e)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAnalyzeCompanyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "company <name>",
		Short: "Assemble the intelligence record for a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithEngine(cmd, func(ctx context.Context, e *engine) error {
				res, err := e.orchestrator.AnalyzeCompany(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func newAnalyzePersonCmd() *cobra.Command {
	var title, company string
	cmd := &cobra.Command{
		Use:   "person <name>",
		Short: "Assemble the intelligence record for a person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithEngine(cmd, func(ctx context.Context, e *engine) error {
				res, err := e.orchestrator.AnalyzePerson(ctx, args[0], title, company)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "person's job title, if known")
	cmd.Flags().StringVar(&company, "company", "", "person's company, if known")
	return cmd
}

func newCachePurgeCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "purge [key]",
		Short: "Remove cached records from every tier",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithEngine(cmd, func(ctx context.Context, e *engine) error {
				if all {
					n, err := e.cache.PurgeAll(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("purged %d records\n", n)
					return nil
				}
				if len(args) == 0 {
					return fmt.Errorf("a cache key is required unless --all is set")
				}
				if err := e.cache.DeleteFromAllSources(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("purged %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "purge every cached record")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var key string
	var limit int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Report provider consumption from the audit trail",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithEngine(cmd, func(ctx context.Context, e *engine) error {
				if e.store == nil {
					return fmt.Errorf("stats require a persistent store; driver is %q", e.profile.Driver)
				}
				monitor := finops.NewUsageMonitor(e.store, e.logger)
				var report *finops.UsageReport
				var err error
				if key != "" {
					report, err = monitor.ReportForKey(ctx, key)
				} else {
					report, err = monitor.Report(ctx, limit)
				}
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "restrict the report to one cache key")
	cmd.Flags().IntVar(&limit, "limit", 0, "read at most this many audit entries (0 = all)")
	return cmd
}

func newTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the registered task templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := taskreg.NewRegistry()
			if err := registry.Validate(); err != nil {
				return err
			}
			fmt.Println(strings.Join(registry.Names(), "\n"))
			return nil
		},
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
