package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lumeris/lumeris/internal/network"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultListenAddr   = "127.0.0.1:8130"
	defaultVaultDir     = "./vault"
	defaultJournalDir   = "./wal/submissions"
)

// EnvSecretKey names the env variable holding a signing secret to import
// at startup. Read once here; never logged.
const EnvSecretKey = "LUMERIS_SECRET_KEY"

type Config struct {
	Network      network.Mode
	PollInterval time.Duration
	ListenAddr   string
	VaultDir     string
	JournalDir   string
	ImportSecret string
	RunSetup     bool
}

type configTmp struct {
	Network      string        `yaml:"network"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	ListenAddr   string        `yaml:"listen_addr,omitempty"`
	VaultDir     string        `yaml:"vault_dir,omitempty"`
	JournalDir   string        `yaml:"journal_dir,omitempty"`
}

// Get reads configuration from flags, optionally a YAML file, and the
// environment. A secret in the environment takes priority so secrets can
// stay out of config files.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	networkFlag := flag.String("network", string(network.ModeTest), "network to connect to: test or main")
	pollInterval := flag.Duration("pollinterval", defaultPollInterval, "account state poll interval")
	listenAddr := flag.String("listen", defaultListenAddr, "address for the local wallet API")
	vaultDir := flag.String("vaultdir", defaultVaultDir, "directory for the key vault")
	journalDir := flag.String("journaldir", defaultJournalDir, "directory for the submission journal")
	setup := flag.Bool("setup", false, "run the interactive setup wizard")
	flag.Parse()

	// .env is optional; absence is not an error
	_ = godotenv.Load()

	cfg := Config{
		Network:      network.Mode(*networkFlag),
		PollInterval: *pollInterval,
		ListenAddr:   *listenAddr,
		VaultDir:     *vaultDir,
		JournalDir:   *journalDir,
		ImportSecret: os.Getenv(EnvSecretKey),
		RunSetup:     *setup,
	}

	if *configPath != "" {
		if err := applyYaml(&cfg, *configPath); err != nil {
			return Config{}, err
		}
	}

	if cfg.Network != network.ModeTest && cfg.Network != network.ModeMain {
		return Config{}, fmt.Errorf("invalid network %q, want %q or %q", cfg.Network, network.ModeTest, network.ModeMain)
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}

	return cfg, nil
}

func applyYaml(cfg *Config, path string) error {
	f, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return fmt.Errorf("parse yaml config: %w", err)
	}

	if tmp.Network != "" {
		cfg.Network = network.Mode(tmp.Network)
	}
	if tmp.PollInterval > 0 {
		cfg.PollInterval = tmp.PollInterval
	}
	if tmp.ListenAddr != "" {
		cfg.ListenAddr = tmp.ListenAddr
	}
	if tmp.VaultDir != "" {
		cfg.VaultDir = tmp.VaultDir
	}
	if tmp.JournalDir != "" {
		cfg.JournalDir = tmp.JournalDir
	}
	return nil
}
