package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TheMichaelB/spacesync/internal/config"
	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/events"
	"github.com/TheMichaelB/spacesync/internal/state"
)

var (
	cfg    *config.Config
	logger *events.Logger

	configPath string
	jsonOutput bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "spacesync",
	Short: "Encrypted space sync toolkit",
	Long: `spacesync manages the local key index of encrypted spaces: it seals
and opens record blobs, rotates epoch keys, and verifies edit chains and
membership entries.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Config file (default: ./spacesync.yaml or ~/.config/spacesync/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.NewLoader(configPath).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		loaded.Log.Level = "debug"
	}
	if !loaded.Log.Color || jsonOutput {
		color.NoColor = true
	}

	l, err := events.NewLogger(&loaded.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	cfg = loaded
	logger = l
	return nil
}

// openStore opens the configured state store, creating its directories.
func openStore() (state.Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return state.New(cfg.Storage, logger)
}

// readKey decodes a hex epoch key from value, prompting without echo when
// value is empty.
func readKey(value, prompt string) ([]byte, error) {
	if value == "" {
		var err error
		value, err = promptSecret(prompt)
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
	}

	key, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if err := crypto.ValidateKeySize(key); err != nil {
		crypto.Zero(key)
		return nil, err
	}
	return key, nil
}

func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", err
	}
	return string(secret), nil
}

func printSuccess(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(os.Stdout, format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(os.Stderr, format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(os.Stdout, format+"\n", args...)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		printError("encode output: %v", err)
	}
}

// report prints result as JSON, or runs human when JSON output is off.
func report(result map[string]interface{}, human func()) {
	if jsonOutput {
		printJSON(result)
		return
	}
	human()
}
