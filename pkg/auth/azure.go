package auth

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// GraphScope requests all application permissions granted to the app
// registration on Microsoft Graph.
const GraphScope = "https://graph.microsoft.com/.default"

// ClientSecretConfig identifies an app registration using a client secret.
type ClientSecretConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// AuthorityHost overrides the Azure AD endpoint for sovereign clouds
	// (e.g. "https://login.microsoftonline.us/"). Empty means public cloud.
	AuthorityHost string

	// Scopes defaults to GraphScope.
	Scopes []string
}

// ClientSecretSource exchanges client credentials for a Graph access token.
type ClientSecretSource struct {
	cred   *azidentity.ClientSecretCredential
	scopes []string
}

// NewClientSecretSource validates cfg and builds the underlying credential.
// No network call happens until Acquire.
func NewClientSecretSource(cfg ClientSecretConfig) (*ClientSecretSource, error) {
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}

	opts := &azidentity.ClientSecretCredentialOptions{}
	if cfg.AuthorityHost != "" {
		opts.Cloud.ActiveDirectoryAuthorityHost = cfg.AuthorityHost
	}

	cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, opts)
	if err != nil {
		return nil, fmt.Errorf("create client secret credential: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{GraphScope}
	}

	return &ClientSecretSource{cred: cred, scopes: scopes}, nil
}

// Acquire implements Source.
func (s *ClientSecretSource) Acquire(ctx context.Context) (Credential, error) {
	tok, err := s.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: s.scopes})
	if err != nil {
		return Credential{}, fmt.Errorf("get token: %w", err)
	}
	return Credential{AccessToken: tok.Token, ExpiresOn: tok.ExpiresOn}, nil
}
