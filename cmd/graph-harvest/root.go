package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/graph-harvester/pkg/auth"
	"github.com/Sternrassler/graph-harvester/pkg/client"
	"github.com/Sternrassler/graph-harvester/pkg/config"
	"github.com/Sternrassler/graph-harvester/pkg/fanout"
	"github.com/Sternrassler/graph-harvester/pkg/harvest"
	"github.com/Sternrassler/graph-harvester/pkg/logging"
	"github.com/Sternrassler/graph-harvester/pkg/metrics"
	"github.com/Sternrassler/graph-harvester/pkg/pagination"
	"github.com/Sternrassler/graph-harvester/pkg/ratelimit"
)

// app carries the state shared by the subcommands.
type app struct {
	cfgFile     string
	outputFile  string
	sequential  bool
	workers     int
	logLevel    string
	metricsAddr string

	cfg       *config.Config
	logger    zerolog.Logger
	harvester *harvest.Harvester
	closers   []func() error

	// newSource builds the credential source; tests replace it.
	newSource func(cfg config.TenantConfig) (auth.Source, error)
}

func newApp() *app {
	return &app{newSource: clientSecretSource}
}

func clientSecretSource(cfg config.TenantConfig) (auth.Source, error) {
	source, err := auth.NewClientSecretSource(auth.ClientSecretConfig{
		TenantID:      cfg.TenantID,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		AuthorityHost: cfg.AuthorityHost,
	})
	if err != nil {
		return nil, err
	}
	return source, nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "graph-harvest",
		Short: "Export complete Microsoft Graph collections to JSON",
		Long: `graph-harvest downloads every item of a Microsoft Graph collection,
splitting the query into disjoint filtered partitions that are fetched in
parallel, and writes the sorted result to a JSON file.`,
		PersistentPreRunE: a.initialize,
		SilenceUsage:      true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./config.yaml)")
	flags.StringVarP(&a.outputFile, "output", "o", "", "output file (default <job>.json)")
	flags.BoolVar(&a.sequential, "sequential", false, "fetch with a single chased query instead of partitions")
	flags.IntVarP(&a.workers, "workers", "w", 0, "maximum concurrent partitions")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(newJobCmd(a, "signins", "Export sign-in logs", func(cfg *config.Config) harvest.Job {
		return harvest.SignIns(cfg.Partition.Days)
	}))
	root.AddCommand(newJobCmd(a, "users", "Export the user directory", func(cfg *config.Config) harvest.Job {
		return harvest.Users(cfg.Partition.Alphabet)
	}))

	return root
}

// initialize loads configuration and wires the harvester.
func (a *app) initialize(cmd *cobra.Command, _ []string) error {
	var err error
	a.cfg, err = config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.applyFlags(cmd)

	a.logger = logging.Setup(logging.Config{
		Enabled: a.cfg.Logging.Enabled,
		Level:   logging.LogLevel(a.cfg.Logging.Level),
		Pretty:  a.cfg.Logging.Format == "console",
		NoColor: !isTerminal(os.Stderr),
		Output:  os.Stderr,
	})

	source, err := a.newSource(a.cfg.Tenant)
	if err != nil {
		return fmt.Errorf("failed to create credential source: %w", err)
	}
	tokens := auth.NewManager(source,
		auth.WithSafetyMargin(a.cfg.Token.RefreshMargin),
		auth.WithLogger(a.logger),
	)

	throttle, err := a.throttleTracker(cmd.Context())
	if err != nil {
		return err
	}

	clientCfg := client.Config{
		Tokens:       tokens,
		BaseURL:      a.cfg.Graph.BaseURL,
		APIVersion:   a.cfg.Graph.APIVersion,
		RetryEnabled: a.cfg.Retry.Enabled,
		Retry: client.RetryConfig{
			MaxAttempts: a.cfg.Retry.MaxAttempts,
			WaitMin:     a.cfg.Retry.WaitMin,
			WaitMax:     a.cfg.Retry.WaitMax,
		},
		RequestsPerSecond: a.cfg.Graph.RequestsPerSecond,
		Timeout:           a.cfg.Graph.Timeout,
		Throttle:          throttle,
		Logger:            a.logger,
	}
	graphClient, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("failed to create Graph client: %w", err)
	}
	a.closers = append(a.closers, graphClient.Close)

	walker := pagination.NewWalker(graphClient, pagination.Config{
		Chase:    a.cfg.Graph.Chase,
		MaxPages: a.cfg.Graph.MaxPages,
	}, a.logger)
	executor := fanout.NewExecutor(walker, fanout.Config{
		MaxConcurrency: a.cfg.Concurrency.MaxWorkers,
	}, a.logger)
	a.harvester = harvest.New(executor, harvest.Config{
		Concurrent: a.cfg.Concurrency.Enabled,
	}, a.logger)

	if a.cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(cmd.Context(), a.cfg.Metrics.Addr, a.logger); err != nil {
				a.logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	return nil
}

// applyFlags lets command-line flags override the loaded configuration.
func (a *app) applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("output") {
		a.cfg.Output.File = a.outputFile
	}
	if flags.Changed("sequential") {
		a.cfg.Concurrency.Enabled = !a.sequential
	}
	if flags.Changed("workers") && a.workers > 0 {
		a.cfg.Concurrency.MaxWorkers = a.workers
	}
	if flags.Changed("log-level") {
		a.cfg.Logging.Level = a.logLevel
	}
	if flags.Changed("metrics-addr") {
		a.cfg.Metrics.Addr = a.metricsAddr
	}
}

// throttleTracker returns the shared back-off gate, or nil when disabled.
func (a *app) throttleTracker(ctx context.Context) (*ratelimit.Tracker, error) {
	if !a.cfg.Throttle.Shared {
		return nil, nil
	}
	if a.cfg.Throttle.RedisAddr == "" {
		return ratelimit.NewTracker(nil, a.logger), nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Throttle.RedisAddr,
		Password: a.cfg.Throttle.RedisPassword,
		DB:       a.cfg.Throttle.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", a.cfg.Throttle.RedisAddr, err)
	}
	a.closers = append(a.closers, redisClient.Close)

	a.logger.Info().Str("addr", a.cfg.Throttle.RedisAddr).Msg("Shared throttle gate enabled")
	return ratelimit.NewTracker(redisClient, a.logger), nil
}

// close releases clients in reverse order of creation.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("Close failed")
		}
	}
	a.closers = nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
