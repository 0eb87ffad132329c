package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
	"github.com/custodia-labs/tenantsync/internal/core/ports/driven"
)

// tokenExpiryMargin is how far ahead of expiry a cached token is
// refreshed.
const tokenExpiryMargin = 5 * time.Minute

// defaultScope requests every permission the app registration carries.
const defaultScope = "https://graph.microsoft.com/.default"

// CredentialProvider exchanges app credentials for bearer tokens via the
// client-credential grant, caching one auto-refreshing token source per
// tenant.
type CredentialProvider struct {
	clientID     string
	clientSecret string
	loginBaseURL string

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewCredentialProvider creates a provider for the given app registration.
// loginBaseURL is the identity endpoint root, without a tenant segment.
func NewCredentialProvider(clientID, clientSecret, loginBaseURL string) *CredentialProvider {
	return &CredentialProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		loginBaseURL: loginBaseURL,
		sources:      make(map[string]oauth2.TokenSource),
	}
}

// TokenProvider returns the cached token provider for one tenant,
// creating it on first use.
func (p *CredentialProvider) TokenProvider(tenantID string) driven.TokenProvider {
	p.mu.Lock()
	defer p.mu.Unlock()

	src, ok := p.sources[tenantID]
	if !ok {
		cfg := &clientcredentials.Config{
			ClientID:     p.clientID,
			ClientSecret: p.clientSecret,
			TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", p.loginBaseURL, tenantID),
			Scopes:       []string{defaultScope},
		}
		// ReuseTokenSourceWithExpiry refreshes ahead of actual expiry so a
		// token never goes stale mid-request.
		src = oauth2.ReuseTokenSourceWithExpiry(nil, cfg.TokenSource(context.Background()), tokenExpiryMargin)
		p.sources[tenantID] = src
	}

	return &tenantTokenProvider{tenantID: tenantID, source: src}
}

// tenantTokenProvider adapts an oauth2.TokenSource to the engine's
// TokenProvider port.
type tenantTokenProvider struct {
	tenantID string
	source   oauth2.TokenSource
}

// GetToken returns a valid bearer token, refreshing if needed. Failures
// wrap domain.ErrAuthFailed and are fatal for this tenant only.
func (t *tenantTokenProvider) GetToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tok, err := t.source.Token()
	if err != nil {
		return "", fmt.Errorf("%w: tenant %s: %w", domain.ErrAuthFailed, t.tenantID, err)
	}

	return tok.AccessToken, nil
}

// StaticTokenProvider returns a provider that always yields the given
// token. Used by tests and capability probes that already hold a token.
func StaticTokenProvider(token string) driven.TokenProvider {
	return staticTokenProvider(token)
}

type staticTokenProvider string

func (s staticTokenProvider) GetToken(_ context.Context) (string, error) {
	return string(s), nil
}
