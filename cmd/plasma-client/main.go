// Command plasma-client wires the state-core services into a running
// process: it builds a config.Config from CLI flags, opens the
// bbolt-backed stores, registers the store-backed "pg_" RPC methods, and
// starts a service.Graph. No services are registered in that graph here.
// The eth/operator/wallet provider flags are only recorded in the config;
// this command does not construct any anchor, operator or wallet client.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/nikeshnazareth/plasma-core/chainstore"
	"github.com/nikeshnazareth/plasma-core/config"
	"github.com/nikeshnazareth/plasma-core/rpc"
	"github.com/nikeshnazareth/plasma-core/service"
	"github.com/nikeshnazareth/plasma-core/synccursor"
)

var log = logrus.WithField("prefix", "main")

var (
	debugFlag = &cli.StringFlag{Name: "debug", Usage: "enable debug channels matching a filter string"}

	ethProviderFlag      = &cli.StringFlag{Name: "eth-provider", Usage: "anchor-chain client plug-in name"}
	operatorProviderFlag = &cli.StringFlag{Name: "operator-provider", Usage: "operator client plug-in name"}
	walletProviderFlag   = &cli.StringFlag{Name: "wallet-provider", Usage: "wallet signer plug-in name"}

	finalityDepthFlag = &cli.Int64Flag{Name: "finality-depth", Value: config.DefaultFinalityDepth}
	eventPollFlag     = &cli.DurationFlag{Name: "event-poll-interval", Value: config.DefaultEventPollInterval}
	txPollFlag        = &cli.DurationFlag{Name: "transaction-poll-interval", Value: config.DefaultTransactionPollInterval}
	operatorPingFlag  = &cli.DurationFlag{Name: "operator-ping-interval", Value: config.DefaultOperatorPingInterval}

	registryAddressFlag = &cli.StringFlag{Name: "registry-address", Required: true}
	plasmaChainNameFlag = &cli.StringFlag{Name: "plasma-chain-name", Required: true}
	ethereumEndpointFlag = &cli.StringFlag{Name: "ethereum-endpoint", Value: config.DefaultEthereumEndpoint}

	dataDirFlag = &cli.StringFlag{Name: "datadir", Value: "./plasma-data"}
)

func main() {
	app := cli.NewApp()
	app.Name = "plasma-client"
	app.Usage = "state-core client for a Plasma-style layer-2 chain"
	app.Flags = []cli.Flag{
		debugFlag, ethProviderFlag, operatorProviderFlag, walletProviderFlag,
		finalityDepthFlag, eventPollFlag, txPollFlag, operatorPingFlag,
		registryAddressFlag, plasmaChainNameFlag, ethereumEndpointFlag, dataDirFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("plasma-client exited with an error")
	}
}

func run(ctx *cli.Context) error {
	if filter := ctx.String(debugFlag.Name); filter != "" {
		logrus.SetLevel(logrus.DebugLevel)
		log.WithField("filter", filter).Info("debug logging enabled")
	}

	cfg := &config.Config{
		Debug:                   ctx.String(debugFlag.Name),
		EthProvider:             ctx.String(ethProviderFlag.Name),
		OperatorProvider:        ctx.String(operatorProviderFlag.Name),
		WalletProvider:          ctx.String(walletProviderFlag.Name),
		FinalityDepth:           ctx.Int64(finalityDepthFlag.Name),
		EventPollInterval:       ctx.Duration(eventPollFlag.Name),
		TransactionPollInterval: ctx.Duration(txPollFlag.Name),
		OperatorPingInterval:    ctx.Duration(operatorPingFlag.Name),
		RegistryAddress:         ctx.String(registryAddressFlag.Name),
		PlasmaChainName:         ctx.String(plasmaChainNameFlag.Name),
		EthereumEndpoint:        ctx.String(ethereumEndpointFlag.Name),
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dataDir := ctx.String(dataDirFlag.Name)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	chainDB, err := chainstore.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("opening chain store: %w", err)
	}
	defer chainDB.Close()

	cursorDB, err := synccursor.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("opening sync cursor store: %w", err)
	}
	defer cursorDB.Close()

	dispatcher := rpc.New()
	if err := dispatcher.RegisterTable(buildMethodTable(chainDB, cursorDB)); err != nil {
		return fmt.Errorf("registering rpc methods: %w", err)
	}

	graph := service.New()
	log.WithField("plasma_chain", cfg.PlasmaChainName).Info("stores opened, service graph assembled")

	if err := graph.Start(); err != nil {
		return fmt.Errorf("starting service graph: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutdown signal received")
	graph.Stop()
	return nil
}
