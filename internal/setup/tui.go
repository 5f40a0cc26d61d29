// Package setup is the interactive first-run wizard: it picks a network,
// creates or imports a key into the vault, and writes the YAML config.
package setup

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/stellar/go/keypair"
	"gopkg.in/yaml.v3"

	"github.com/lumeris/lumeris/internal/domain"
	"github.com/lumeris/lumeris/internal/keyvault"
	"github.com/lumeris/lumeris/internal/network"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

type wizardConfig struct {
	Network      string        `yaml:"network"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ListenAddr   string        `yaml:"listen_addr"`
	VaultDir     string        `yaml:"vault_dir"`
	JournalDir   string        `yaml:"journal_dir"`
}

// RunTUI launches the terminal setup wizard, writing the config to
// configPath and the chosen key into a vault under vaultDir.
func RunTUI(configPath, vaultDir string) error {
	var (
		networkMode     string
		keySource       string
		secret          string
		pollIntervalStr string
		confirm         bool
	)

	pollIntervalStr = "10s"

	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("LUMERIS WALLET SETUP"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("A few questions and your wallet is ready.\n"))

	// network
	fmt.Println(stepStyle.Render("STEP 1: NETWORK"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose the Stellar network").
				Options(
					huh.NewOption("Testnet (free play money)", string(network.ModeTest)),
					huh.NewOption("Mainnet (real funds)", string(network.ModeMain)),
				).
				Value(&networkMode),
		),
	).Run()
	if err != nil {
		return err
	}

	// key material
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LUMERIS WALLET SETUP"))
	fmt.Println(stepStyle.Render("STEP 2: KEYS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Wallet keys").
				Options(
					huh.NewOption("Create a new keypair", "create"),
					huh.NewOption("Import an existing secret", "import"),
					huh.NewOption("Skip for now", "skip"),
				).
				Value(&keySource),
		),
	).Run()
	if err != nil {
		return err
	}

	if keySource == "import" {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Signing secret").
					Description("Starts with S; stored only in the local vault").
					EchoMode(huh.EchoModePassword).
					Value(&secret),
			),
		).Run()
		if err != nil {
			return err
		}
		if _, err := keypair.ParseFull(secret); err != nil {
			return fmt.Errorf("that is not a valid signing secret")
		}
	}

	// polling
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LUMERIS WALLET SETUP"))
	fmt.Println(stepStyle.Render("STEP 3: POLLING"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Account poll interval").
				Description("How often to refresh account state (e.g. 10s, 1m)").
				Value(&pollIntervalStr),
		),
	).Run()
	if err != nil {
		return err
	}
	pollInterval, err := time.ParseDuration(pollIntervalStr)
	if err != nil || pollInterval <= 0 {
		return fmt.Errorf("invalid poll interval %q", pollIntervalStr)
	}

	// confirm
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LUMERIS WALLET SETUP"))
	fmt.Println(stepStyle.Render("STEP 4: CONFIRM"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Write %s and set up the vault?", configPath)).
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled")
	}

	cfg := wizardConfig{
		Network:      networkMode,
		PollInterval: pollInterval,
		ListenAddr:   "127.0.0.1:8130",
		VaultDir:     vaultDir,
		JournalDir:   "./wal/submissions",
	}
	payload, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, payload, 0o644); err != nil {
		return err
	}

	switch keySource {
	case "create":
		kp, err := keypair.Random()
		if err != nil {
			return err
		}
		if err := storeKey(vaultDir, kp); err != nil {
			return err
		}
		fmt.Println(stepStyle.Render("Your new address: " + kp.Address()))
		fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("The secret is in the vault. Back it up before funding the account."))
	case "import":
		kp, err := keypair.ParseFull(secret)
		if err != nil {
			return err
		}
		if err := storeKey(vaultDir, kp); err != nil {
			return err
		}
		fmt.Println(stepStyle.Render("Imported address: " + kp.Address()))
	}

	fmt.Println(stepStyle.Render("Setup complete."))
	return nil
}

func storeKey(vaultDir string, kp *keypair.Full) error {
	vault, err := keyvault.NewFileVault(vaultDir)
	if err != nil {
		return err
	}
	return vault.Put(domain.KeyMaterial{PublicKey: kp.Address(), Secret: kp.Seed()})
}
