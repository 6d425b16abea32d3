package controlplane

import (
	"fmt"
	"net/url"
)

const DefaultRateLimit = "20-S"

// CPServerConfig contains configuration for the control plane server
type CPServerConfig struct {
	Addr         string   // Address to bind the control plane server
	AuthToken    string   // Access token for the control plane server
	AllowOrigins []string // Browser origins allowed by CORS. Empty allows all.
	RateLimit    string   // ulule/limiter formatted rate, e.g. "20-S"
	LogFile      string   // Log file served by /v1/logs
}

// FromClientURL builds the server config from the client url in the user's
// config, e.g. http://localhost:7938 binds localhost:7938.
func FromClientURL(clientURL, token string) (*CPServerConfig, error) {
	u, err := url.Parse(clientURL)
	if err != nil {
		return nil, fmt.Errorf("parse client url: %w", err)
	}
	if u.Host == "" || u.Port() == "" {
		return nil, fmt.Errorf("client url %q needs a host and a port", clientURL)
	}
	return &CPServerConfig{
		Addr:      u.Host,
		AuthToken: token,
		RateLimit: DefaultRateLimit,
	}, nil
}
