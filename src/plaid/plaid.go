// Package plaid adapts the Plaid transactions API to the sync engine's aggregator contract.
package plaid

import (
	"fmt"
	"net/http"
	"time"

	"github.com/plaid/plaid-go/v41/plaid"
)

const requestTimeout = 30 * time.Second

var environments = map[string]plaid.Environment{
	"sandbox":    plaid.Sandbox,
	"production": plaid.Production,
}

// Environment maps a configured environment name onto a Plaid host.
func Environment(name string) (plaid.Environment, error) {
	env, ok := environments[name]
	if !ok {
		return "", fmt.Errorf("invalid Plaid environment: %q", name)
	}
	return env, nil
}

// NewPlaidClient builds an API client whose calls time out after requestTimeout.
func NewPlaidClient(clientID, secret, envName string) (*plaid.APIClient, error) {
	env, err := Environment(envName)
	if err != nil {
		return nil, err
	}
	if clientID == "" || secret == "" {
		return nil, fmt.Errorf("plaid client id and secret are required")
	}

	cfg := plaid.NewConfiguration()
	cfg.AddDefaultHeader("PLAID-CLIENT-ID", clientID)
	cfg.AddDefaultHeader("PLAID-SECRET", secret)
	cfg.UseEnvironment(env)
	cfg.HTTPClient = &http.Client{Timeout: requestTimeout}
	return plaid.NewAPIClient(cfg), nil
}
