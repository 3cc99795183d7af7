package auth

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/docsier/docsier-go/internal/domain"
	"github.com/docsier/docsier-go/internal/observability"
)

type State int

const (
	StateLoading State = iota
	StateResolved
	StateRedirecting
)

func (s State) String() string {
	switch s {
	case StateResolved:
		return "resolved"
	case StateRedirecting:
		return "redirecting"
	default:
		return "loading"
	}
}

// Outcome is the result of a bootstrap attempt: exactly one of a resolved
// user or a redirect target. TokenConsumed tells the hosting surface that the
// inbound token was used and must be scrubbed from its address/history.
type Outcome struct {
	State         State
	User          *domain.User
	RedirectURL   string
	TokenConsumed bool
}

// Notifier surfaces transient, toast-level messages to the user.
type Notifier interface {
	Error(msg string)
	Success(msg string)
}

type NopNotifier struct{}

func (NopNotifier) Error(string)   {}
func (NopNotifier) Success(string) {}

// Manager owns the single session of the running instance. It is constructed
// explicitly and injected into whatever owns the UI; there is no package
// level session state.
type Manager struct {
	provider Provider
	siteURL  string
	notifier Notifier
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	user    *domain.User
	outcome Outcome
	done    bool
}

func NewManager(provider Provider, siteURL string, notifier Notifier, logger *slog.Logger) *Manager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Manager{
		provider: provider,
		siteURL:  strings.TrimRight(siteURL, "/"),
		notifier: notifier,
		logger:   logger,
		state:    StateLoading,
	}
}

// Bootstrap establishes the session: an inbound token (params "token") is
// exchanged first, then the provider is asked for an existing session and
// user. Any failure degrades to a redirect outcome; nothing is fatal.
// Without a new token, repeated calls return the converged outcome.
func (m *Manager) Bootstrap(ctx context.Context, params url.Values) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	token := params.Get("token")
	if m.done && token == "" {
		return m.outcome
	}

	source := "session"
	tokenConsumed := false
	if token != "" {
		source = "token"
		if err := m.provider.SetSessionFromToken(ctx, token, token); err != nil {
			m.logger.Error("token exchange failed", "error", err)
			m.notifier.Error("authentication failed")
			observability.RecordBootstrap("exchange_failed", source)
			return m.finish(Outcome{State: StateRedirecting, RedirectURL: m.loginURL()})
		}
		tokenConsumed = true
	}

	rec, err := m.provider.Session(ctx)
	if err != nil {
		m.logger.Error("session lookup failed", "error", err)
		m.notifier.Error("authentication failed")
		observability.RecordBootstrap("redirect", source)
		return m.finish(Outcome{State: StateRedirecting, RedirectURL: m.loginURL(), TokenConsumed: tokenConsumed})
	}
	if rec == nil {
		observability.RecordBootstrap("redirect", "none")
		return m.finish(Outcome{State: StateRedirecting, RedirectURL: m.loginURL(), TokenConsumed: tokenConsumed})
	}

	user, err := m.provider.User(ctx)
	if err != nil || user == nil {
		if err != nil {
			m.logger.Error("user lookup failed", "error", err)
			m.notifier.Error("authentication failed")
		}
		observability.RecordBootstrap("redirect", source)
		return m.finish(Outcome{State: StateRedirecting, RedirectURL: m.loginURL(), TokenConsumed: tokenConsumed})
	}

	observability.RecordBootstrap("resolved", source)
	m.logger.Info("session resolved", "user_id", user.ID)
	return m.finish(Outcome{State: StateResolved, User: user, TokenConsumed: tokenConsumed})
}

// SignOut ends the external session, clears the local user and returns the
// post-sign-out navigation target.
func (m *Manager) SignOut(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.provider.SignOut(ctx); err != nil {
		m.logger.Error("sign out failed", "error", err)
	}
	m.notifier.Success("signed out")
	m.user = nil
	m.state = StateRedirecting
	m.outcome = Outcome{State: StateRedirecting, RedirectURL: m.siteURL}
	m.done = true
	return m.siteURL
}

func (m *Manager) CurrentUser() *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) finish(o Outcome) Outcome {
	m.state = o.State
	m.user = o.User
	m.outcome = o
	m.done = true
	return o
}

func (m *Manager) loginURL() string {
	if m.siteURL == "" {
		return ""
	}
	return m.siteURL + "/auth"
}
