package config

import (
	"fmt"
	"os"
	"strings"
)

// ClientConfig contains resolved API client settings.
type ClientConfig struct {
	BaseURL   string
	Token     string
	AccountID int
}

// ResolveOperatorClientConfig resolves operator client settings from the
// stored account or environment.
func ResolveOperatorClientConfig() (ClientConfig, error) {
	account, err := LoadAccount()
	if err != nil {
		return ClientConfig{}, err
	}
	return ClientConfig{
		BaseURL:   account.BaseURL,
		Token:     account.APIToken,
		AccountID: account.AccountID,
	}, nil
}

// ResolvePortalBaseURL resolves the server URL for client portal calls.
// Priority: explicit override, HOSTDESK_BASE_URL, stored account.
func ResolvePortalBaseURL(baseURLOverride string) (string, error) {
	var baseURL string

	if account, err := LoadAccount(); err == nil {
		baseURL = account.BaseURL
	}
	if envURL := strings.TrimSpace(os.Getenv("HOSTDESK_BASE_URL")); envURL != "" {
		baseURL = strings.TrimSuffix(envURL, "/")
	}
	if baseURLOverride != "" {
		baseURL = strings.TrimSuffix(baseURLOverride, "/")
	}

	if baseURL == "" {
		return "", fmt.Errorf("base URL not configured (set HOSTDESK_BASE_URL, run 'hostdesk auth login', or pass --base-url)")
	}
	return baseURL, nil
}
