package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderOAuthConfigKnownProviders(t *testing.T) {
	for _, provider := range []string{"drive", "onedrive"} {
		cfg, err := providerOAuthConfig(provider, "id", "secret")
		require.NoError(t, err, "providerOAuthConfig(%q)", provider)
		assert.Equal(t, "id", cfg.ClientID, "providerOAuthConfig(%q) did not carry through client credentials", provider)
		assert.Equal(t, "secret", cfg.ClientSecret, "providerOAuthConfig(%q) did not carry through client credentials", provider)
		assert.NotEmpty(t, cfg.Endpoint.AuthURL, "providerOAuthConfig(%q) missing endpoint", provider)
		assert.NotEmpty(t, cfg.Endpoint.TokenURL, "providerOAuthConfig(%q) missing endpoint", provider)
		assert.NotEmpty(t, cfg.Scopes, "providerOAuthConfig(%q) missing scopes", provider)
	}
}

func TestProviderOAuthConfigUnknownProvider(t *testing.T) {
	_, err := providerOAuthConfig("dropbox", "id", "secret")
	assert.Error(t, err, "expected an error for an unknown provider")
}
