package cmd

import (
	"fmt"
	"time"

	"github.com/hostdesk/hostdesk-cli/internal/api"
	"github.com/hostdesk/hostdesk-cli/internal/config"
)

type clientFactory struct {
	timeout   time.Duration
	userAgent string
}

func newClientFactory() *clientFactory {
	return &clientFactory{
		timeout:   flags.Timeout,
		userAgent: fmt.Sprintf("hostdesk-cli/%s", version),
	}
}

func (f *clientFactory) operator() (*api.Client, error) {
	cfg, err := config.ResolveOperatorClientConfig()
	if err != nil {
		return nil, err
	}
	return f.apply(api.New(cfg.BaseURL, cfg.Token, cfg.AccountID)), nil
}

func (f *clientFactory) portal(baseURLOverride, sessionToken string) (*api.Client, error) {
	baseURL, err := config.ResolvePortalBaseURL(baseURLOverride)
	if err != nil {
		return nil, err
	}
	return f.apply(api.NewClientPortal(baseURL, sessionToken)), nil
}

func (f *clientFactory) apply(client *api.Client) *api.Client {
	if f.timeout > 0 {
		client.HTTP.Timeout = f.timeout
	}
	if f.userAgent != "" {
		client.UserAgent = f.userAgent
	}
	applyRetryOverrides(client)
	return client
}

func applyRetryOverrides(client *api.Client) {
	cfg := client.RetryConfig

	if flags.MaxRateLimitRetriesSet {
		cfg.MaxRateLimitRetries = flags.MaxRateLimitRetries
	}
	if flags.Max5xxRetriesSet {
		cfg.Max5xxRetries = flags.Max5xxRetries
	}

	client.SetRetryConfig(cfg)
}
