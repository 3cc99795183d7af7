package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"testing"

	"github.com/docsier/docsier-go/internal/domain"
)

type fakeProvider struct {
	setSessionErr error
	session       *SessionRecord
	sessionErr    error
	user          *domain.User
	userErr       error
	signOutErr    error

	setSessionCalls int
	sessionCalls    int
	signOutCalls    int
}

func (f *fakeProvider) SetSessionFromToken(_ context.Context, access, refresh string) error {
	f.setSessionCalls++
	if f.setSessionErr != nil {
		return f.setSessionErr
	}
	f.session = &SessionRecord{AccessToken: access, RefreshToken: refresh}
	return nil
}

func (f *fakeProvider) Session(context.Context) (*SessionRecord, error) {
	f.sessionCalls++
	return f.session, f.sessionErr
}

func (f *fakeProvider) User(context.Context) (*domain.User, error) {
	return f.user, f.userErr
}

func (f *fakeProvider) SignOut(context.Context) error {
	f.signOutCalls++
	f.session = nil
	return f.signOutErr
}

type recordingNotifier struct {
	errors    []string
	successes []string
}

func (n *recordingNotifier) Error(msg string)   { n.errors = append(n.errors, msg) }
func (n *recordingNotifier) Success(msg string) { n.successes = append(n.successes, msg) }

func newTestManager(p Provider, n Notifier) *Manager {
	return NewManager(p, "https://docsier.test", n, slog.Default())
}

func TestBootstrapResolvesExistingSession(t *testing.T) {
	p := &fakeProvider{
		session: &SessionRecord{AccessToken: "a"},
		user:    &domain.User{ID: "u1", Email: "u1@docsier.test", Name: "User One"},
	}
	m := newTestManager(p, nil)

	got := m.Bootstrap(context.Background(), url.Values{})
	if got.State != StateResolved {
		t.Fatalf("expected resolved state, got %s", got.State)
	}
	if got.User == nil || got.User.ID != "u1" {
		t.Fatalf("unexpected user %+v", got.User)
	}
	if got.RedirectURL != "" {
		t.Fatalf("resolved outcome must not carry a redirect, got %q", got.RedirectURL)
	}
	if m.State() != StateResolved {
		t.Fatalf("manager state should be resolved, got %s", m.State())
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	p := &fakeProvider{
		session: &SessionRecord{AccessToken: "a"},
		user:    &domain.User{ID: "u1", Email: "u1@docsier.test", Name: "User One"},
	}
	m := newTestManager(p, nil)

	first := m.Bootstrap(context.Background(), url.Values{})
	second := m.Bootstrap(context.Background(), url.Values{})
	if first.State != StateResolved || second.State != StateResolved {
		t.Fatalf("expected resolved both times, got %s then %s", first.State, second.State)
	}
	if first.User.ID != second.User.ID {
		t.Fatalf("bootstrap must converge to the same user: %q vs %q", first.User.ID, second.User.ID)
	}
	if p.sessionCalls != 1 {
		t.Fatalf("second bootstrap without a token must not re-query the provider, got %d calls", p.sessionCalls)
	}
}

func TestBootstrapRedirectsWhenNoSession(t *testing.T) {
	p := &fakeProvider{}
	m := newTestManager(p, nil)

	got := m.Bootstrap(context.Background(), url.Values{})
	if got.State != StateRedirecting {
		t.Fatalf("expected redirecting, got %s", got.State)
	}
	if got.RedirectURL != "https://docsier.test/auth" {
		t.Fatalf("unexpected redirect target %q", got.RedirectURL)
	}
	if got.User != nil {
		t.Fatalf("redirect outcome must not carry a user: %+v", got.User)
	}
}

func TestBootstrapTokenExchangeSuccess(t *testing.T) {
	p := &fakeProvider{
		user: &domain.User{ID: "u1", Email: "u1@docsier.test", Name: "User One"},
	}
	m := newTestManager(p, nil)

	got := m.Bootstrap(context.Background(), url.Values{"token": {"tok-123"}})
	if got.State != StateResolved {
		t.Fatalf("expected resolved after exchange, got %s", got.State)
	}
	if !got.TokenConsumed {
		t.Fatal("outcome must flag the inbound token as consumed")
	}
	if p.setSessionCalls != 1 {
		t.Fatalf("expected one exchange call, got %d", p.setSessionCalls)
	}
}

func TestBootstrapTokenExchangeFailureRedirectsAndNotifies(t *testing.T) {
	p := &fakeProvider{setSessionErr: errors.New("invalid token")}
	n := &recordingNotifier{}
	m := newTestManager(p, n)

	got := m.Bootstrap(context.Background(), url.Values{"token": {"bad"}})
	if got.State != StateRedirecting {
		t.Fatalf("expected redirecting after failed exchange, got %s", got.State)
	}
	if got.TokenConsumed {
		t.Fatal("failed exchange must not mark the token consumed")
	}
	if len(n.errors) != 1 {
		t.Fatalf("expected one user-visible error, got %v", n.errors)
	}
}

func TestBootstrapSessionLookupFailureRedirects(t *testing.T) {
	p := &fakeProvider{sessionErr: errors.New("provider down")}
	n := &recordingNotifier{}
	m := newTestManager(p, n)

	got := m.Bootstrap(context.Background(), url.Values{})
	if got.State != StateRedirecting {
		t.Fatalf("lookup failure must degrade to redirect, got %s", got.State)
	}
	if len(n.errors) != 1 {
		t.Fatalf("expected one user-visible error, got %v", n.errors)
	}
}

func TestSignOutClearsUserAndRedirects(t *testing.T) {
	p := &fakeProvider{
		session: &SessionRecord{AccessToken: "a"},
		user:    &domain.User{ID: "u1", Email: "u1@docsier.test", Name: "User One"},
	}
	m := newTestManager(p, nil)
	m.Bootstrap(context.Background(), url.Values{})

	target := m.SignOut(context.Background())
	if target != "https://docsier.test" {
		t.Fatalf("unexpected sign-out target %q", target)
	}
	if m.CurrentUser() != nil {
		t.Fatal("user must be cleared after sign out")
	}
	if m.State() != StateRedirecting {
		t.Fatalf("state after sign out should be redirecting, got %s", m.State())
	}
	if p.signOutCalls != 1 {
		t.Fatalf("expected one provider sign-out call, got %d", p.signOutCalls)
	}

	// A fresh instance now finds no session and redirects.
	m2 := newTestManager(p, nil)
	if got := m2.Bootstrap(context.Background(), url.Values{}); got.State != StateRedirecting {
		t.Fatalf("fresh bootstrap after sign out should redirect, got %s", got.State)
	}
}
