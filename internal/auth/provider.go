package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/docsier/docsier-go/internal/domain"
)

// Provider is the external identity collaborator: set a session from an
// inbound token, look up the current session and user, sign out.
type Provider interface {
	SetSessionFromToken(ctx context.Context, accessToken, refreshToken string) error
	Session(ctx context.Context) (*SessionRecord, error)
	User(ctx context.Context) (*domain.User, error)
	SignOut(ctx context.Context) error
}

// HTTPProvider speaks an OAuth2-style token endpoint plus user/logout
// endpoints, persisting the resulting session in its own store.
type HTTPProvider struct {
	baseURL string
	http    *http.Client
	store   Store
	oauth   *oauth2.Config
}

func NewHTTPProvider(baseURL string, store Store, timeout time.Duration) *HTTPProvider {
	base := strings.TrimRight(baseURL, "/")
	return &HTTPProvider{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		store:   store,
		oauth: &oauth2.Config{
			ClientID: "docsier-client",
			Endpoint: oauth2.Endpoint{TokenURL: base + "/auth/token"},
		},
	}
}

// SetSessionFromToken exchanges the inbound credential for a full session.
// The inbound token is presented as a refresh credential; the exchange is a
// standard refresh grant.
func (p *HTTPProvider) SetSessionFromToken(ctx context.Context, accessToken, refreshToken string) error {
	if refreshToken == "" {
		refreshToken = accessToken
	}
	tok, err := p.exchange(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	return p.saveToken(tok)
}

// Session returns the current session, refreshing it through the token
// endpoint when the access token has expired. A nil record with nil error
// means no session exists.
func (p *HTTPProvider) Session(ctx context.Context) (*SessionRecord, error) {
	rec, err := p.store.Load()
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil, nil
		}
		return nil, err
	}
	if !p.expired(rec) {
		return rec, nil
	}
	if rec.RefreshToken == "" {
		return nil, nil
	}
	tok, err := p.exchange(ctx, rec.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("session refresh: %w", err)
	}
	if err := p.saveToken(tok); err != nil {
		return nil, err
	}
	return p.store.Load()
}

type userPayload struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		FullName string `json:"full_name"`
	} `json:"user_metadata"`
}

func (p *HTTPProvider) User(ctx context.Context) (*domain.User, error) {
	rec, err := p.Session(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/auth/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+rec.AccessToken)
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch user: unexpected status %s", resp.Status)
	}
	var payload userPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	name := payload.UserMetadata.FullName
	if name == "" {
		name = payload.Email
	}
	if name == "" {
		name = "User"
	}
	return &domain.User{ID: payload.ID, Email: payload.Email, Name: name}, nil
}

func (p *HTTPProvider) SignOut(ctx context.Context) error {
	rec, loadErr := p.store.Load()
	if loadErr == nil && rec != nil {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/logout", nil)
		if err == nil {
			req.Header.Set("Authorization", "Bearer "+rec.AccessToken)
			if resp, doErr := p.http.Do(req); doErr == nil {
				_ = resp.Body.Close()
			}
		}
	}
	return p.store.Clear()
}

// AccessToken satisfies the API client's credential source.
func (p *HTTPProvider) AccessToken(ctx context.Context) (string, error) {
	rec, err := p.Session(ctx)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", errors.New("no active session")
	}
	return rec.AccessToken, nil
}

func (p *HTTPProvider) exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.http)
	// A stale expiry forces the token source to hit the refresh grant.
	seed := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Now().Add(-time.Hour)}
	return p.oauth.TokenSource(ctx, seed).Token()
}

func (p *HTTPProvider) saveToken(tok *oauth2.Token) error {
	rec := &SessionRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
	if exp, ok := accessTokenExpiry(tok.AccessToken); ok {
		rec.ExpiresAt = exp
	}
	return p.store.Save(rec)
}

func (p *HTTPProvider) expired(rec *SessionRecord) bool {
	if exp, ok := accessTokenExpiry(rec.AccessToken); ok {
		return exp.Before(time.Now())
	}
	return rec.Expired(time.Now())
}

// accessTokenExpiry reads the exp claim without verifying the signature;
// verification is the backend's job, the client only needs the deadline.
func accessTokenExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
