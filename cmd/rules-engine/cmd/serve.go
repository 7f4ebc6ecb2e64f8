package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidespo/rules-engine/internal/core/api"
	"github.com/davidespo/rules-engine/internal/core/config"
	"github.com/davidespo/rules-engine/internal/core/loader"
	"github.com/davidespo/rules-engine/internal/core/metrics"
	"github.com/davidespo/rules-engine/internal/core/server"
	"github.com/davidespo/rules-engine/internal/render"
)

const gracefulShutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC and HTTP insight service",
	Long: `Start the insight service. Rules come from --rules (optionally watched for
changes) or, when no file is given, from the database. SIGHUP reloads rules
from the active source.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().String("http-host", "0.0.0.0", "HTTP server host")
	serveCmd.Flags().Int("http-port", 8080, "HTTP server port")
	serveCmd.Flags().String("rules", "", "rules file (YAML or JSON); database is used when empty")
	serveCmd.Flags().Bool("watch", false, "reload the rules file when it changes")
}

// applyServeFlags overrides configuration with explicitly set flags.
func applyServeFlags(cmd *cobra.Command, cfg *config.ServiceConfig) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("http-host") {
		cfg.HTTPHost, _ = flags.GetString("http-host")
	}
	if flags.Changed("http-port") {
		cfg.HTTPPort, _ = flags.GetInt("http-port")
	}
	if flags.Changed("rules") {
		cfg.RulesFile, _ = flags.GetString("rules")
	}
	if flags.Changed("watch") {
		cfg.WatchRules, _ = flags.GetBool("watch")
	}
	if dbURL != "" {
		cfg.DBURL = dbURL
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	m := metrics.NewEvaluationMetrics(cfg.MetricsNamespace, nil)
	ruleSet := api.NewRuleSet(render.NewTextRenderer(), m, logger)

	var source api.RuleSource
	if cfg.RulesFile != "" {
		source = loader.FileSource{Path: cfg.RulesFile}
	} else {
		database, repo, err := openRepository()
		if err != nil {
			return err
		}
		defer database.Close()
		source = repo
	}

	if err := ruleSet.Reload(ctx, source); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	svc, err := api.NewService(ruleSet, cfg, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	grpcServer, err := server.NewGRPCServer(cfg, svc, logger)
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}
	httpServer, err := server.NewHTTPServer(cfg, svc, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	logger.Info("starting rules-engine",
		zap.String("version", Version),
		zap.String("grpc_addr", cfg.GRPCAddr()),
		zap.String("http_addr", cfg.HTTPAddr()),
		zap.Int("rules", ruleSet.Len()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(grpcServer.Start)
	g.Go(httpServer.Start)

	reload := func() error {
		if err := ruleSet.Reload(gctx, source); err != nil {
			logger.Error("rule reload rejected, keeping previous rules", zap.Error(err))
			return err
		}
		return nil
	}

	if cfg.WatchRules {
		watcher, err := loader.NewWatcher(cfg.RulesFile, loader.DefaultDebounce, logger)
		if err != nil {
			return fmt.Errorf("failed to watch rules file: %w", err)
		}
		defer watcher.Stop()
		g.Go(func() error { return watcher.Watch(gctx, reload) })
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-gctx.Done():
				return
			case <-hup:
				logger.Info("SIGHUP received, reloading rules")
				_ = reload()
			}
		}
	}()

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		grpcErr := grpcServer.Shutdown(shutdownCtx)
		httpErr := httpServer.Shutdown(shutdownCtx)
		if grpcErr != nil {
			return grpcErr
		}
		return httpErr
	})

	return g.Wait()
}
