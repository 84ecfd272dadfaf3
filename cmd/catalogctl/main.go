// catalogctl is the operator tool for an encrypted media catalog: it
// indexes media roots, rebuilds and repairs folder-derived albums, manages
// people data and performs store maintenance (backup, rekey, vacuum).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"media-catalog/internal/config"
	"media-catalog/internal/database"
	"media-catalog/internal/logging"
)

var (
	flagDBPath  string
	flagKey     string
	flagVerbose bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "catalogctl",
	Short: "Manage an encrypted local media catalog",
	Long: `catalogctl maintains a local-first media catalog: an encrypted SQLite
store holding indexed media, folder-derived albums and people data.

Configuration comes from the environment (or a .env file); flags override.
The store passphrase is read from --key, the CATALOG_KEY environment
variable, or an interactive prompt, in that order.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			logging.SetLevel(logging.LevelDebug)
		}
		cfg = config.Load()
		if flagDBPath != "" {
			cfg.StorePath = flagDBPath
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "path to the catalog database file")
	rootCmd.PersistentFlags().StringVar(&flagKey, "key", "", "store passphrase (prompted when omitted)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// passphrase resolves the store passphrase from flag, environment or an
// interactive prompt.
func passphrase(prompt string) (string, error) {
	if flagKey != "" {
		return flagKey, nil
	}
	if key := os.Getenv("CATALOG_KEY"); key != "" {
		return key, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no passphrase: set --key or CATALOG_KEY, or run interactively")
	}

	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty passphrase")
	}
	return string(raw), nil
}

// promptNewPassphrase reads a fresh passphrase twice and requires both
// entries to match. Unlike passphrase it never falls back to --key or the
// environment, which hold the current key.
func promptNewPassphrase(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("a new passphrase must be entered interactively")
	}

	fmt.Fprint(os.Stderr, prompt)
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(first) == 0 {
		return "", fmt.Errorf("empty passphrase")
	}

	fmt.Fprint(os.Stderr, "Confirm: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passphrases do not match")
	}
	return string(first), nil
}

// openStore opens the configured store, prompting for the passphrase when
// needed. Callers own the returned handle.
func openStore(ctx context.Context) (*database.Database, error) {
	key, err := passphrase("Store passphrase: ")
	if err != nil {
		return nil, err
	}
	return database.Open(ctx, cfg.StorePath, key)
}

// closeStore closes with a warning instead of an error path; commands have
// already done their work by the time this runs.
func closeStore(d *database.Database) {
	if err := d.Close(); err != nil {
		logging.Warn("failed to close store: %v", err)
	}
}
