package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/mcphub-dev/mcphub/internal/auth"
	"github.com/mcphub-dev/mcphub/internal/connector"
	"github.com/mcphub-dev/mcphub/internal/dispatcher"
	"github.com/mcphub-dev/mcphub/internal/ingress"
	"github.com/mcphub-dev/mcphub/internal/logging"
	"github.com/mcphub-dev/mcphub/internal/metrics"
	"github.com/mcphub-dev/mcphub/internal/pool"
	"github.com/mcphub-dev/mcphub/internal/registry"
	"github.com/mcphub-dev/mcphub/internal/session"
	"github.com/mcphub-dev/mcphub/internal/settings"
	"github.com/mcphub-dev/mcphub/internal/smartroute"
)

// ServeCommand boots every component and serves the ingress router until a
// shutdown signal arrives.
var ServeCommand = &cli.Command{
	Name:  "serve",
	Usage: "mcphubd serve [--settings-path <path>] [--host <host>] [--port <port>]",
	Description: `Start the mcphub aggregation server.

Loads the settings document, connects every enabled upstream MCP server,
and serves the admin API plus the SSE/streamable-HTTP session endpoints
until interrupted.
`,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "settings-path", Usage: "Path to the settings document (default: MCPHUB_SETTING_PATH or ./mcp_settings.json)"},
		&cli.StringFlag{Name: "api-keys-path", Usage: "Path to the legacy static API key file (default: ~/.mcphub/api_keys.json)"},
		&cli.StringFlag{Name: "logs-dir", Usage: "Directory for the JSONL event log (default: ~/.mcphub/logs)"},
		&cli.StringFlag{Name: "host", Usage: "Listen host", Value: ingress.DefaultHost},
		&cli.StringFlag{Name: "port", Usage: "Listen port", Value: ingress.DefaultPort},
		&cli.StringFlag{Name: "base-path", Usage: "Path prefix for every route"},
		&cli.IntFlag{Name: "timeout", Usage: "HTTP read/write timeout in seconds", Value: 60},
		&cli.IntFlag{Name: "init-timeout", Usage: "Seconds to wait for initial connector boot", Value: 30},
		&cli.BoolFlag{Name: "readonly", Usage: "Reject mutating requests other than tool calls"},
	},
	Action: handleServe,
}

func handleServe(ctx context.Context, cmd *cli.Command) error {
	logger, err := logging.NewLogger(cmd.String("logs-dir"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	store := settings.NewStore(cmd.String("settings-path"), logger)
	doc := store.Load()
	fmt.Fprintf(os.Stderr, "[MCPHUB] loaded settings from %s (%d servers, %d groups)\n",
		store.Path(), len(doc.MCPServers), len(doc.Groups))

	connPool := pool.New(logger, time.Duration(cmd.Int("init-timeout"))*time.Second)
	if err := connPool.Boot(ctx, doc); err != nil {
		fmt.Fprintf(os.Stderr, "[MCPHUB] warning: some connectors failed initial boot: %v\n", err)
	}

	reg := registry.New(connPool)

	var index *smartroute.Index
	if doc.SystemConfig.SmartRouting.Enabled {
		index, err = buildSmartIndex(ctx, doc, connPool, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[MCPHUB] warning: smart routing disabled: %v\n", err)
			index = nil
		} else if err := index.Refresh(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "[MCPHUB] warning: initial smart-routing refresh failed: %v\n", err)
		}
	}

	if index != nil {
		connPool.OnChange(debouncedRefresh(index))
	}

	disp := dispatcher.New(connPool, reg, index)
	sessions := session.NewManager(store, reg, disp, logger, time.Duration(cmd.Int("timeout"))*time.Second)

	recorder, err := metrics.New()
	if err != nil {
		return fmt.Errorf("failed to create metrics recorder: %w", err)
	}
	defer func() { _ = recorder.Shutdown(context.Background()) }()
	disp.SetMetrics(recorder)

	secretPath, err := auth.DefaultJWTSecretPath()
	if err != nil {
		return fmt.Errorf("failed to resolve jwt secret path: %w", err)
	}
	secret, err := auth.LoadOrCreateJWTSecret(secretPath)
	if err != nil {
		return fmt.Errorf("failed to load jwt secret: %w", err)
	}
	tokens := auth.NewTokenAuthenticator(secret, time.Hour)

	apiKeys := loadAPIKeys(cmd.String("api-keys-path"))

	stopMetricsPoll := make(chan struct{})
	defer close(stopMetricsPoll)
	go pollConnectorMetrics(connPool, recorder, stopMetricsPoll)

	router := ingress.New(ingress.Config{
		Host:     cmd.String("host"),
		Port:     cmd.String("port"),
		Timeout:  int(cmd.Int("timeout")),
		BasePath: cmd.String("base-path"),
		Readonly: cmd.Bool("readonly"),
	}, ingress.Deps{
		Store:      store,
		Pool:       connPool,
		Registry:   reg,
		Dispatcher: disp,
		Sessions:   sessions,
		Index:      index,
		Metrics:    recorder,
		Logger:     logger,
		Tokens:     tokens,
		APIKeys:    apiKeys,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	errChan := make(chan error, 1)

	go func() {
		if err := router.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	fmt.Fprintf(os.Stderr, "[MCPHUB] listening on %s\n", router.Addr())
	fmt.Fprintf(os.Stderr, "[MCPHUB] press Ctrl+C to stop\n")

	select {
	case <-sigChan:
		fmt.Fprintf(os.Stderr, "\n[MCPHUB] received shutdown signal, stopping server...\n")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := router.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error during shutdown: %w", err)
		}
		fmt.Fprintf(os.Stderr, "[MCPHUB] server stopped successfully\n")
		return nil
	case err := <-errChan:
		return err
	}
}

// pollConnectorMetrics periodically diffs each connector's connected state
// against the last poll and reports the transition, since Connector exposes
// no on-transition callback to hook directly.
func pollConnectorMetrics(p *pool.Pool, recorder *metrics.Recorder, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	last := map[string]bool{}
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			seen := map[string]bool{}
			for _, c := range p.List() {
				seen[c.Name()] = true
				connected := c.Status() == connector.StatusConnected
				if last[c.Name()] != connected {
					delta := int64(-1)
					if connected {
						delta = 1
					}
					recorder.SetConnectorConnected(context.Background(), c.Name(), delta)
					last[c.Name()] = connected
				}
			}
			for name, wasConnected := range last {
				if !seen[name] {
					if wasConnected {
						recorder.SetConnectorConnected(context.Background(), name, -1)
					}
					delete(last, name)
				}
			}
		}
	}
}

// refreshDebounce coalesces a burst of pool changes (a Reconcile touches
// every named connector in one wg.Wait) into a single index refresh.
const refreshDebounce = 2 * time.Second

// debouncedRefresh returns a pool.ChangeListener that re-runs index.Refresh
// at most once per refreshDebounce window, so several pool changes in quick
// succession (Boot or Reconcile runs) trigger one re-embedding pass instead
// of one per change.
func debouncedRefresh(index *smartroute.Index) pool.ChangeListener {
	var mu sync.Mutex
	var timer *time.Timer
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(refreshDebounce, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := index.Refresh(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "[MCPHUB] warning: smart-routing refresh failed: %v\n", err)
			}
		})
	}
}

func buildSmartIndex(ctx context.Context, doc *settings.Document, p *pool.Pool, logger *logging.Logger) (*smartroute.Index, error) {
	cfg := doc.SystemConfig.SmartRouting
	embedder, err := smartroute.NewEmbedder(cfg.OpenAIAPIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIAPIEmbeddingModel)
	if err != nil {
		return nil, err
	}
	store, err := smartroute.NewStore(ctx, cfg.DBUrl, embedder.Dimensions(), embedder.ModelID())
	if err != nil {
		return nil, err
	}
	return smartroute.NewIndex(p, logger, embedder, store), nil
}

// loadAPIKeys loads the legacy static-key chain; absence of the file is not
// fatal, it just disables that chain (the JWT/bearer chains still work).
func loadAPIKeys(path string) *auth.APIKeyStore {
	var (
		store *auth.APIKeyStore
		err   error
	)
	if path != "" {
		store, err = auth.LoadAPIKeys(path)
	} else {
		store, err = auth.LoadDefaultAPIKeys()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "[MCPHUB] static api keys not loaded: %v\n", err)
		return nil
	}
	return store
}
