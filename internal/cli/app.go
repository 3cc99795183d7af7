package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/docsier/docsier-go/internal/aggregator"
	"github.com/docsier/docsier-go/internal/api"
	"github.com/docsier/docsier-go/internal/auth"
	"github.com/docsier/docsier-go/internal/config"
	"github.com/docsier/docsier-go/internal/domain"
	"github.com/docsier/docsier-go/internal/observability"
)

// app wires the client stack for one command invocation: config, telemetry,
// session manager and aggregator, assembled explicitly in dependency order.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	runtime *observability.Runtime
	manager *auth.Manager
	agg     *aggregator.Aggregator
}

func newApp(ctx context.Context) (*app, error) {
	if err := config.LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg.LogLevel)
	runtime, err := observability.InitRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := auth.OpenStore(cfg.SessionStorePath, cfg.SessionStoreDSN)
	if err != nil {
		return nil, err
	}
	authBase := cfg.AuthBaseURL
	if authBase == "" {
		authBase = cfg.APIBaseURL
	}
	provider := auth.NewHTTPProvider(authBase, store, cfg.HTTPTimeout)
	manager := auth.NewManager(provider, cfg.SiteBaseURL, stderrNotifier{}, logger)
	apiClient := api.New(cfg.APIBaseURL, cfg.HTTPTimeout, provider)

	return &app{
		cfg:     cfg,
		logger:  logger,
		runtime: runtime,
		manager: manager,
		agg:     aggregator.New(apiClient, logger),
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.runtime.Shutdown(ctx); err != nil {
		a.logger.Error("telemetry shutdown failed", "error", err)
	}
}

// requireUser bootstraps without an inbound token and fails the command when
// no session resolves, pointing at the external login flow instead of
// attempting credentials itself.
func (a *app) requireUser(ctx context.Context) (*domain.User, error) {
	outcome := a.manager.Bootstrap(ctx, url.Values{})
	if outcome.State != auth.StateResolved {
		if outcome.RedirectURL != "" {
			return nil, fmt.Errorf("not signed in; log in at %s and run 'docsier login --token <token>'", outcome.RedirectURL)
		}
		return nil, fmt.Errorf("not signed in; run 'docsier login --token <token>'")
	}
	return outcome.User, nil
}

// defaultClient resolves the client to operate on: an explicit --client flag
// wins, otherwise the backend-ordered first client is selected.
func (a *app) defaultClient(ctx context.Context, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if _, err := a.agg.LoadClients(ctx); err != nil {
		return "", err
	}
	selected := a.agg.SelectedClient()
	if selected == "" {
		return "", fmt.Errorf("no clients exist yet; create one with 'docsier clients create'")
	}
	return selected, nil
}

type stderrNotifier struct{}

func (stderrNotifier) Error(msg string)   { fmt.Fprintln(os.Stderr, "error: "+msg) }
func (stderrNotifier) Success(msg string) { fmt.Fprintln(os.Stderr, msg) }
