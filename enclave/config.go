package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

const (
	networkVsock = "vsock"
	networkTCP   = "tcp"
)

// Config is the auction host configuration, read from a TOML file.
type Config struct {
	Listen     ListenConfig  `toml:"listen"`
	MaxWorkers int           `toml:"max_workers"`
	DataDir    string        `toml:"data_dir"`
	LogFile    string        `toml:"log_file"`
	Metrics    string        `toml:"metrics_addr"`
	Auction    AuctionConfig `toml:"auction"`
}

// ListenConfig selects the request transport: vsock inside an enclave, tcp for development.
type ListenConfig struct {
	Network   string `toml:"network"`
	VsockPort uint32 `toml:"vsock_port"`
	TCPAddr   string `toml:"tcp_addr"`
}

// AuctionConfig holds the parameters used when the host starts a fresh auction.
// A restored auction keeps the deadlines it was created with.
type AuctionConfig struct {
	Beneficiary        string   `toml:"beneficiary"`
	BiddingTime        Duration `toml:"bidding_time"`
	RevealTime         Duration `toml:"reveal_time"`
	AmountDecimals     int32    `toml:"amount_decimals"`
	AttestationEnabled bool     `toml:"attestation_enabled"`
}

// Duration decodes TOML strings such as "90m" with time.ParseDuration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns the settings used for keys absent from the file.
func DefaultConfig() Config {
	return Config{
		Listen: ListenConfig{
			Network:   networkVsock,
			VsockPort: 5000,
			TCPAddr:   "127.0.0.1:5000",
		},
		MaxWorkers: 8,
		DataDir:    "data",
		Auction: AuctionConfig{
			BiddingTime:    Duration{24 * time.Hour},
			RevealTime:     Duration{24 * time.Hour},
			AmountDecimals: 18,
		},
	}
}

// LoadConfig reads path over the defaults, applies environment overrides and validates
// the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	for _, key := range meta.Undecoded() {
		log.Printf("WARNING: Ignoring unknown config key %s", key.String())
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if _, set := os.LookupEnv("AUCTION_MAX_WORKERS"); set {
		workers, err := getRequiredEnvInt("AUCTION_MAX_WORKERS")
		if err != nil {
			return err
		}
		cfg.MaxWorkers = workers
	}
	return nil
}

// Validate rejects configurations the host cannot run with.
func (c Config) Validate() error {
	switch c.Listen.Network {
	case networkVsock:
		if c.Listen.VsockPort == 0 {
			return fmt.Errorf("listen.vsock_port is required for vsock")
		}
	case networkTCP:
		if strings.TrimSpace(c.Listen.TCPAddr) == "" {
			return fmt.Errorf("listen.tcp_addr is required for tcp")
		}
	default:
		return fmt.Errorf("unsupported listen.network %q (want %s or %s)", c.Listen.Network, networkVsock, networkTCP)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive, got %d", c.MaxWorkers)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is required")
	}
	if !common.IsHexAddress(c.Auction.Beneficiary) {
		return fmt.Errorf("auction.beneficiary %q is not a hex address", c.Auction.Beneficiary)
	}
	if c.Auction.BiddingTime.Duration <= 0 {
		return fmt.Errorf("auction.bidding_time must be positive")
	}
	if c.Auction.RevealTime.Duration <= 0 {
		return fmt.Errorf("auction.reveal_time must be positive")
	}
	if c.Auction.AmountDecimals < 0 || c.Auction.AmountDecimals > 77 {
		return fmt.Errorf("auction.amount_decimals out of range: %d", c.Auction.AmountDecimals)
	}
	return nil
}

// BeneficiaryAddress returns the parsed beneficiary. Only valid after Validate.
func (c AuctionConfig) BeneficiaryAddress() common.Address {
	return common.HexToAddress(c.Beneficiary)
}

// Helper function for required environment variable parsing
func getRequiredEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}

	log.Printf("INFO: Using %s=%d from environment", key, intValue)
	return intValue, nil
}
