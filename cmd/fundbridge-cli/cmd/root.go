package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fundbridge/fundbridge/internal/domain/entities"
	"github.com/fundbridge/fundbridge/internal/domain/services/attestation"
	"github.com/fundbridge/fundbridge/internal/domain/services/transfer"
	"github.com/fundbridge/fundbridge/internal/infrastructure/chains"
	"github.com/fundbridge/fundbridge/internal/infrastructure/config"
	"github.com/fundbridge/fundbridge/internal/infrastructure/evm"
	"github.com/fundbridge/fundbridge/internal/infrastructure/iris"
)

// privateKeyEnv holds the hex-encoded signing key. It is never accepted as a
// flag so it cannot leak into shell history.
const privateKeyEnv = "FUNDBRIDGE_PRIVATE_KEY"

var rootCmd = &cobra.Command{
	Use:   "fundbridge-cli",
	Short: "Cross-chain stablecoin transfers over CCTP V2",
	Long: `fundbridge-cli moves stablecoin between supported chains using Circle's
CCTP V2: burn on the source chain, wait for the attestation, mint on the
destination chain. A transfer interrupted after its burn can always be
resumed from the burn transaction hash.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles everything a command needs after bootstrap
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *chains.Registry
	iris     *iris.Client
}

func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	registry, err := chains.NewRegistry(cfg.Chains)
	if err != nil {
		return nil, fmt.Errorf("build chain registry: %w", err)
	}
	irisClient := iris.NewClient(iris.Config{
		BaseURL:     cfg.Iris.BaseURL,
		Environment: cfg.Iris.Environment,
		Timeout:     cfg.Iris.Timeout,
	}, logger)
	return &app{cfg: cfg, logger: logger, registry: registry, iris: irisClient}, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	return zapCfg.Build()
}

// resolveChain accepts a chain by numeric id or by name, case-insensitively
func (a *app) resolveChain(flag string) (entities.Chain, error) {
	if id, err := strconv.ParseUint(flag, 10, 64); err == nil {
		if chain, ok := a.registry.ChainByID(id); ok {
			return chain, nil
		}
		return entities.Chain{}, fmt.Errorf("unknown chain id %d, try one of: %s", id, a.chainNames())
	}
	normalized := strings.ReplaceAll(strings.ToLower(flag), "-", " ")
	normalized = strings.ReplaceAll(normalized, "_", " ")
	for _, chain := range a.registry.Chains() {
		if strings.ToLower(chain.Name) == normalized {
			return chain, nil
		}
	}
	return entities.Chain{}, fmt.Errorf("unknown chain %q, try one of: %s", flag, a.chainNames())
}

func (a *app) chainNames() string {
	var names []string
	for _, chain := range a.registry.Chains() {
		names = append(names, fmt.Sprintf("%q", chain.Name))
	}
	return strings.Join(names, ", ")
}

// newSigner builds the signing wallet from the key in the environment,
// pointed at activeChain and allowed to switch to every configured chain.
func (a *app) newSigner(activeChain entities.Chain) (*evm.KeyedSigner, error) {
	raw := strings.TrimPrefix(os.Getenv(privateKeyEnv), "0x")
	if raw == "" {
		return nil, fmt.Errorf("%s is not set", privateKeyEnv)
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key in %s: %w", privateKeyEnv, err)
	}
	var allowed []uint64
	for _, chain := range a.registry.Chains() {
		allowed = append(allowed, chain.ID)
	}
	return evm.NewKeyedSigner(key, activeChain.ID, allowed...)
}

// newOrchestrator wires the clients for one source and destination pair
func (a *app) newOrchestrator(source, dest entities.Chain, signer *evm.KeyedSigner) (*transfer.Orchestrator, error) {
	sourceClient, err := evm.NewClient(source, a.cfg.RPC, a.logger)
	if err != nil {
		return nil, err
	}
	destClient, err := evm.NewClient(dest, a.cfg.RPC, a.logger)
	if err != nil {
		return nil, err
	}
	sourceClient.BindSigner(signer)
	destClient.BindSigner(signer)

	poller := attestation.NewPoller(a.iris, a.logger,
		attestation.WithInterval(a.cfg.Attestation.Interval),
		attestation.WithMaxAttempts(a.cfg.Attestation.MaxAttempts))

	return transfer.NewOrchestrator(sourceClient, destClient, signer, poller, a.logger,
		transfer.WithNotifier(printStatus)), nil
}

// printStatus renders progress events for the terminal
func printStatus(event entities.StatusEvent) {
	line := fmt.Sprintf("[%s] %s", event.Phase, event.Label)
	if event.ExplorerURL != "" {
		line += " " + event.ExplorerURL
	}
	fmt.Fprintln(os.Stderr, line)
}
