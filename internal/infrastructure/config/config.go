package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the transfer engine
type Config struct {
	Environment string                 `mapstructure:"environment"`
	LogLevel    string                 `mapstructure:"log_level"`
	Iris        IrisConfig             `mapstructure:"iris"`
	RPC         RPCConfig              `mapstructure:"rpc"`
	Attestation AttestationConfig      `mapstructure:"attestation"`
	Chains      map[string]ChainConfig `mapstructure:"chains"`
}

// IrisConfig contains the attestation service settings
type IrisConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Environment string        `mapstructure:"environment"` // "sandbox" or "mainnet"
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RPCConfig contains per-call network settings for chain clients
type RPCConfig struct {
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
	ReceiptTimeout      time.Duration `mapstructure:"receipt_timeout"`
	ReadRetries         int           `mapstructure:"read_retries"`
	SnapshotTTL         time.Duration `mapstructure:"snapshot_ttl"`
}

// AttestationConfig bounds the polling loop
type AttestationConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// ChainConfig describes one supported network
type ChainConfig struct {
	Name               string `mapstructure:"name"`
	ChainID            uint64 `mapstructure:"chain_id"`
	Domain             uint32 `mapstructure:"domain"`
	RPC                string `mapstructure:"rpc"`
	Explorer           string `mapstructure:"explorer"`
	TokenMessenger     string `mapstructure:"token_messenger"`
	MessageTransmitter string `mapstructure:"message_transmitter"`
	StableToken        string `mapstructure:"stable_token"`
	FastTransfer       bool   `mapstructure:"fast_transfer"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	// Read from config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Attestation service
	viper.SetDefault("iris.environment", "sandbox")
	viper.SetDefault("iris.timeout", "30s")

	// Chain RPC
	viper.SetDefault("rpc.call_timeout", "30s")
	viper.SetDefault("rpc.receipt_poll_interval", "2s")
	viper.SetDefault("rpc.receipt_timeout", "3m")
	viper.SetDefault("rpc.read_retries", 2)
	viper.SetDefault("rpc.snapshot_ttl", "30s")

	// Attestation polling: 60 attempts at 5s spacing, ~5 minutes
	viper.SetDefault("attestation.interval", "5s")
	viper.SetDefault("attestation.max_attempts", 60)

	// CCTP V2 testnet chains. The TokenMessenger and MessageTransmitter are
	// deployed at the same address on every supported chain.
	const (
		tokenMessengerV2     = "0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA"
		messageTransmitterV2 = "0xE737e5cEBEEBa77EFE34D4aa090756590b1CE275"
	)

	viper.SetDefault("chains.sepolia.name", "Ethereum Sepolia")
	viper.SetDefault("chains.sepolia.chain_id", 11155111)
	viper.SetDefault("chains.sepolia.domain", 0)
	viper.SetDefault("chains.sepolia.rpc", "https://ethereum-sepolia-rpc.publicnode.com")
	viper.SetDefault("chains.sepolia.explorer", "https://sepolia.etherscan.io")
	viper.SetDefault("chains.sepolia.token_messenger", tokenMessengerV2)
	viper.SetDefault("chains.sepolia.message_transmitter", messageTransmitterV2)
	viper.SetDefault("chains.sepolia.stable_token", "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")
	viper.SetDefault("chains.sepolia.fast_transfer", true)

	viper.SetDefault("chains.fuji.name", "Avalanche Fuji")
	viper.SetDefault("chains.fuji.chain_id", 43113)
	viper.SetDefault("chains.fuji.domain", 1)
	viper.SetDefault("chains.fuji.rpc", "https://api.avax-test.network/ext/bc/C/rpc")
	viper.SetDefault("chains.fuji.explorer", "https://testnet.snowtrace.io")
	viper.SetDefault("chains.fuji.token_messenger", tokenMessengerV2)
	viper.SetDefault("chains.fuji.message_transmitter", messageTransmitterV2)
	viper.SetDefault("chains.fuji.stable_token", "0x5425890298aed601595a70AB815c96711a31Bc65")
	viper.SetDefault("chains.fuji.fast_transfer", false)

	viper.SetDefault("chains.arbitrum_sepolia.name", "Arbitrum Sepolia")
	viper.SetDefault("chains.arbitrum_sepolia.chain_id", 421614)
	viper.SetDefault("chains.arbitrum_sepolia.domain", 3)
	viper.SetDefault("chains.arbitrum_sepolia.rpc", "https://sepolia-rollup.arbitrum.io/rpc")
	viper.SetDefault("chains.arbitrum_sepolia.explorer", "https://sepolia.arbiscan.io")
	viper.SetDefault("chains.arbitrum_sepolia.token_messenger", tokenMessengerV2)
	viper.SetDefault("chains.arbitrum_sepolia.message_transmitter", messageTransmitterV2)
	viper.SetDefault("chains.arbitrum_sepolia.stable_token", "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d")
	viper.SetDefault("chains.arbitrum_sepolia.fast_transfer", true)

	viper.SetDefault("chains.base_sepolia.name", "Base Sepolia")
	viper.SetDefault("chains.base_sepolia.chain_id", 84532)
	viper.SetDefault("chains.base_sepolia.domain", 6)
	viper.SetDefault("chains.base_sepolia.rpc", "https://sepolia.base.org")
	viper.SetDefault("chains.base_sepolia.explorer", "https://sepolia.basescan.org")
	viper.SetDefault("chains.base_sepolia.token_messenger", tokenMessengerV2)
	viper.SetDefault("chains.base_sepolia.message_transmitter", messageTransmitterV2)
	viper.SetDefault("chains.base_sepolia.stable_token", "0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	viper.SetDefault("chains.base_sepolia.fast_transfer", true)
}

func validate(config *Config) error {
	if config.Iris.Environment != "sandbox" && config.Iris.Environment != "mainnet" {
		return fmt.Errorf("iris.environment must be sandbox or mainnet, got %q", config.Iris.Environment)
	}
	if config.Attestation.MaxAttempts <= 0 {
		return fmt.Errorf("attestation.max_attempts must be positive, got %d", config.Attestation.MaxAttempts)
	}
	if config.Attestation.Interval <= 0 {
		return fmt.Errorf("attestation.interval must be positive, got %s", config.Attestation.Interval)
	}
	if len(config.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	for key, chain := range config.Chains {
		if chain.ChainID == 0 {
			return fmt.Errorf("chain %q: chain_id is required", key)
		}
		if chain.RPC == "" {
			return fmt.Errorf("chain %q: rpc is required", key)
		}
	}
	return nil
}
