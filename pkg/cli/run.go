package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/cli/config"
	httpctrl "github.com/secmon-lab/anemone/pkg/controller/http"
	"github.com/secmon-lab/anemone/pkg/service/worker"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

func cmdRun() *cli.Command {
	var addr string
	var apiToken string
	var rediscover string
	var agentCfg config.Agent
	var llmCfg config.LLM
	var searchCfg config.Search
	var slackCfg config.Slack

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP API address. Empty disables the API",
			Value:       "127.0.0.1:8080",
			Sources:     cli.EnvVars("ANEMONE_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "api-token",
			Usage:       "Bearer token required on /api routes",
			Sources:     cli.EnvVars("ANEMONE_API_TOKEN"),
			Destination: &apiToken,
		},
		&cli.StringFlag{
			Name:        "rediscover",
			Usage:       "Cron schedule for picking up newly hatched boxes (e.g. \"@every 1m\"). Empty disables it",
			Value:       "@every 1m",
			Sources:     cli.EnvVars("ANEMONE_REDISCOVER"),
			Destination: &rediscover,
		},
	}

	// Add shared config flags
	flags = append(flags, agentCfg.Flags()...)
	flags = append(flags, llmCfg.Flags()...)
	flags = append(flags, searchCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)

	return &cli.Command{
		Name:    "run",
		Aliases: []string{"serve"},
		Usage:   "Run every agent box under the root",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			settings, err := agentCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load agent settings")
			}

			builder := &agentBuilder{
				llm:      &llmCfg,
				search:   searchCfg.Configure(),
				settings: settings,
			}
			if builder.search == nil {
				logger.Info("OLLAMA_API_KEY not configured, web_search will fail")
			}

			var opts []worker.Option
			if rediscover != "" {
				opts = append(opts, worker.WithRediscovery(rediscover))
			}
			relay, err := slackCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure Slack relay")
			}
			if relay != nil {
				opts = append(opts, worker.WithSidecar(relay))
				logger.Info("Slack relay enabled", "slack", slackCfg)
			}

			sup := worker.New(agentCfg.Root(), builder.build, opts...)
			if err := sup.Start(ctx); err != nil {
				_ = sup.Stop()
				return goerr.Wrap(err, "failed to start agents")
			}
			logger.Info("agents started",
				"root", agentCfg.Root(),
				"running", len(sup.Agents()),
				"skipped", len(sup.Skipped()),
				"llm", llmCfg,
			)

			var server *http.Server
			errCh := make(chan error, 1)
			if addr != "" {
				httpOpts := []httpctrl.Options{
					httpctrl.WithHatching(agentCfg.Root(), sup.Rediscover),
				}
				if apiToken != "" {
					httpOpts = append(httpOpts, httpctrl.WithAPIToken(apiToken))
				}
				handler, err := httpctrl.New(sup, httpOpts...)
				if err != nil {
					_ = sup.Stop()
					return goerr.Wrap(err, "failed to create http server")
				}
				server = &http.Server{
					Addr:              addr,
					Handler:           handler,
					ReadHeaderTimeout: 30 * time.Second,
				}

				go func() {
					logger.Info("Starting HTTP server", "addr", addr, "auth", apiToken != "")
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errCh <- goerr.Wrap(err, "failed to start server")
					}
				}()
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			var runErr error
			select {
			case runErr = <-errCh:
			case sig := <-sigCh:
				logger.Info("Received shutdown signal", "signal", sig)
			case <-ctx.Done():
			}

			// agents first: their closed buses end open event streams
			if err := sup.Stop(); err != nil {
				logger.Warn("agent stopped with error", "error", err)
			}

			if server != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}
			}

			logger.Info("Shutdown completed")
			return runErr
		},
	}
}
