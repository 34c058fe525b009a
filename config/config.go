// Package config holds the client's option set and validates it, rejecting
// an invalid configuration before any service in the graph starts.
package config

import (
	"time"

	"github.com/pkg/errors"
)

// Defaults applied by Default.
const (
	DefaultFinalityDepth           = 12
	DefaultEventPollInterval       = 15000 * time.Millisecond
	DefaultTransactionPollInterval = 15000 * time.Millisecond
	DefaultOperatorPingInterval    = 10000 * time.Millisecond
	DefaultEthereumEndpoint        = "http://localhost:8545"
)

// Config is the client's option set. Provider fields name plug-in
// implementations of the anchor/operator/wallet abstractions (ethProvider,
// operatorProvider, walletProvider); how those strings resolve to concrete
// types is a deployment concern this package does not own.
type Config struct {
	Debug string

	EthProvider       string
	OperatorProvider  string
	WalletProvider    string

	FinalityDepth            int64
	EventPollInterval        time.Duration
	TransactionPollInterval  time.Duration
	OperatorPingInterval     time.Duration

	RegistryAddress string
	PlasmaChainName string
	EthereumEndpoint string
}

// Default returns a Config with every documented default applied; the
// caller still must supply RegistryAddress/PlasmaChainName/providers.
func Default() *Config {
	return &Config{
		FinalityDepth:           DefaultFinalityDepth,
		EventPollInterval:       DefaultEventPollInterval,
		TransactionPollInterval: DefaultTransactionPollInterval,
		OperatorPingInterval:    DefaultOperatorPingInterval,
		EthereumEndpoint:        DefaultEthereumEndpoint,
	}
}

// Validate rejects a configuration that would leave any service unable to
// start.
func (c *Config) Validate() error {
	if c.FinalityDepth < 0 {
		return errors.New("finalityDepth must be non-negative")
	}
	if c.EventPollInterval <= 0 {
		return errors.New("eventPollInterval must be positive")
	}
	if c.TransactionPollInterval <= 0 {
		return errors.New("transactionPollInterval must be positive")
	}
	if c.OperatorPingInterval <= 0 {
		return errors.New("operatorPingInterval must be positive")
	}
	if c.EthereumEndpoint == "" {
		return errors.New("ethereumEndpoint must not be empty")
	}
	if c.PlasmaChainName == "" {
		return errors.New("plasmaChainName must be set")
	}
	return nil
}
