package oidc

import (
	"context"
	"fmt"
	"slices"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/estatio/docrender/internal/config"
	"github.com/estatio/docrender/pkg/logger"
	"github.com/estatio/docrender/pkg/middleware"
)

// Verifier checks Keycloak-issued bearer tokens against the realm's keys.
type Verifier struct {
	clientID string
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers the provider at issuer. Keycloak access tokens carry
// the client in "azp" rather than "aud", so the audience is checked here
// instead of by the library.
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID, SkipClientIDCheck: true})
	return &Verifier{clientID: clientID, verifier: verifier}, nil
}

func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	tok, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	var party struct {
		AZP string `json:"azp"`
	}
	if err := tok.Claims(&party); err != nil {
		return nil, err
	}
	if !intendedFor(v.clientID, tok.Audience, party.AZP) {
		return nil, fmt.Errorf("token not issued for client %q", v.clientID)
	}
	return tok, nil
}

func intendedFor(clientID string, audience []string, azp string) bool {
	return clientID == "" || azp == clientID || slices.Contains(audience, clientID)
}

// FromConfig builds the verifier the configuration asks for. It returns nil
// when Keycloak is not configured, which leaves the API unauthenticated.
func FromConfig(ctx context.Context, cfg config.KeycloakConfig) (middleware.Verifier, error) {
	issuer := cfg.Issuer()
	if issuer == "" {
		return nil, nil
	}
	if cfg.Insecure {
		logger.Warnf("KEYCLOAK_INSECURE is set: bearer token signatures are NOT verified")
		return NewInsecureVerifier(cfg.ClientID), nil
	}
	v, err := NewVerifier(ctx, issuer, cfg.ClientID)
	if err != nil {
		return nil, err
	}
	return v, nil
}
