// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/luxfi/cctp/backend"
	"github.com/luxfi/cctp/bridge"
	"github.com/luxfi/cctp/service"
	"github.com/luxfi/cctp/vms/evm"
)

const (
	// Command line option keys
	configFileKey = "config-file"

	// Top-level configuration keys
	listenAddressKey     = "listen-address"
	logLevelKey          = "log-level"
	keysKey              = "keys"
	finalityThresholdKey = "finality-threshold"
	feeKey               = "fee"
	expiryWindowKey      = "expiry-window"
	sourceRPCURLKey      = "source-rpc-url"
	redisURLKey          = "redis-url"
	cacheSizeKey         = "attestation-cache-size"
)

const (
	defaultListenAddress = ":8080"
	defaultLogLevel      = "info"
)

// ServeConfig configures the attestation service process.
type ServeConfig struct {
	ListenAddress     string   `mapstructure:"listen-address"`
	LogLevel          string   `mapstructure:"log-level"`
	Keys              []string `mapstructure:"keys"`
	FinalityThreshold uint32   `mapstructure:"finality-threshold"`
	Fee               string   `mapstructure:"fee"`
	ExpiryWindow      uint64   `mapstructure:"expiry-window"`
	SourceRPCURL      string   `mapstructure:"source-rpc-url"`
	RedisURL          string   `mapstructure:"redis-url"`
	CacheSize         int      `mapstructure:"attestation-cache-size"`
}

func (c *ServeConfig) Validate() error {
	if len(c.Keys) == 0 {
		return errors.New("no attester keys configured")
	}
	if c.ListenAddress == "" {
		return errors.New("listen address not set")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the attestation service",
	Long: `Start the HTTP attestation service. Configuration is read from the
JSON file given by --config-file; flags and environment variables override it.`,
	Run: func(cmd *cobra.Command, args []string) {
		v, err := buildViper(cmd.Flags())
		if err != nil {
			fatalf("Could not read configuration: %v", err)
		}
		cfg, err := newServeConfig(v)
		if err != nil {
			fatalf("Invalid configuration: %v", err)
		}
		if err := runServe(cfg); err != nil {
			fatalf("Service failed: %v", err)
		}
	},
}

func init() {
	serveCmd.Flags().String(configFileKey, "", "Path to the JSON configuration file")
	serveCmd.Flags().String(listenAddressKey, defaultListenAddress, "Address the API listens on")
	serveCmd.Flags().String(logLevelKey, defaultLogLevel, "Log level")
}

// buildViper builds the viper instance. The config file must be provided via
// the command line flag or environment variable. All other config keys may be
// provided via config file or environment variable.
func buildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	// Map flag names to env var names. Hyphens are replaced with underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if !v.IsSet(configFileKey) {
		return nil, errors.New("config file not set")
	}

	v.SetConfigFile(v.GetString(configFileKey))
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return v, nil
}

func setDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(listenAddressKey, defaultListenAddress)
	v.SetDefault(logLevelKey, defaultLogLevel)
	v.SetDefault(feeKey, "0")
	v.SetDefault(cacheSizeKey, service.DefaultCacheSize)
}

// newServeConfig constructs the serve config using viper. Flags take
// precedence over the config file.
func newServeConfig(v *viper.Viper) (ServeConfig, error) {
	setDefaultConfigValues(v)

	var cfg ServeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ServeConfig{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

func runServe(cfg ServeConfig) error {
	logLevel, err := log.ToLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger := log.NewLogger(
		"cctp-attester",
		log.NewWrappedCore(logLevel, os.Stdout, log.JSON.ConsoleEncoder()),
	)

	signers, err := parseSigners(cfg.Keys)
	if err != nil {
		return fmt.Errorf("attester keys: %w", err)
	}

	var fee *uint256.Int
	if cfg.Fee != "" {
		if fee, err = uint256.FromDecimal(cfg.Fee); err != nil {
			return fmt.Errorf("fee: %w", err)
		}
	}

	var store backend.MessageStore
	if cfg.RedisURL != "" {
		redisStore, err := backend.NewRedisBackend(logger, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		store = redisStore
		logger.Info("using Redis attestation store")
	} else {
		store = backend.NewMemoryBackend()
		logger.Info("using in-memory attestation store")
	}

	// Burn expirations are anchored to the source chain tip. Without an RPC
	// endpoint the service reads height zero and stamps open-ended windows.
	var heights bridge.HeightProvider
	if cfg.SourceRPCURL != "" {
		heights, err = evm.Dial(context.Background(), logger, cfg.SourceRPCURL)
		if err != nil {
			return fmt.Errorf("source rpc: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	svc, err := service.New(service.Config{
		FinalityThreshold: cfg.FinalityThreshold,
		Fee:               fee,
		ExpiryWindow:      cfg.ExpiryWindow,
		CacheSize:         cfg.CacheSize,
	}, logger, signers, store, heights, service.NewMetrics(registry))
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	server := service.NewServer(logger, svc, registry)
	logger.Info("attestation service listening",
		log.String("address", cfg.ListenAddress),
		log.Uint64("attesters", uint64(len(signers))),
	)
	return server.Run(cfg.ListenAddress)
}
