// Command fount queries the Fount API from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/fount-client/internal/config"
	"github.com/Sternrassler/fount-client/pkg/fount"
	"github.com/Sternrassler/fount-client/pkg/logging"
	"github.com/Sternrassler/fount-client/pkg/metrics"
	"github.com/Sternrassler/fount-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath  string
	envFile     string
	baseURL     string
	logLevel    string
	metricsAddr string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:          "fount",
		Short:        "Query the Fount API",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with "+config.EnvAPIKey)
	flags.StringVar(&opts.baseURL, "base-url", "", "Fount API base URL")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	root.AddCommand(newQueryCmd(opts), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fount %s\n", Version)
		},
	}
}

// loadConfig resolves the configuration and applies the global flags.
func (o *globalOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath, o.envFile)
	if err != nil {
		return config.Config{}, err
	}
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// session holds what a command needs for its lifetime.
type session struct {
	client  *fount.Client
	logger  zerolog.Logger
	closers []func() error
}

func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// newSession builds the Fount client from cfg. With a Redis URL the rate
// limit state is shared through Redis.
func (o *globalOptions) newSession(ctx context.Context, cfg config.Config) (*session, error) {
	logging.Setup(cfg.LoggingConfig())

	s := &session{logger: logging.NewLogger("cli")}

	clientCfg := fount.DefaultConfig(cfg.APIKey)
	clientCfg.HTTP = cfg.ClientConfig()
	fetchCfg, err := cfg.PaginationConfig()
	if err != nil {
		return nil, err
	}
	clientCfg.Fetch = fetchCfg

	if cfg.RedisURL != "" {
		redisOpts, err := cfg.RedisOptions()
		if err != nil {
			return nil, err
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", redisOpts.Addr, err)
		}
		s.closers = append(s.closers, redisClient.Close)
		s.logger.Debug().Str("addr", redisOpts.Addr).Msg("Sharing rate limit state via Redis")

		tracker := ratelimit.NewTracker(ratelimit.NewRedisStore(redisClient), s.logger)
		clientCfg.HTTP.Tracker = tracker
		clientCfg.Fetch.Tracker = tracker
	}

	if o.metricsAddr != "" {
		s.closers = append(s.closers, serveMetrics(o.metricsAddr, s.logger))
	}

	c, err := fount.New(clientCfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.client = c
	s.closers = append(s.closers, c.Close)
	return s, nil
}

// serveMetrics starts a /metrics endpoint and returns its shutdown function.
func serveMetrics(addr string, logger zerolog.Logger) func() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
}
