package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show store location and table counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore(d)

		counts, err := d.TableCounts(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("store: %s\n", d.Path())
		if fi, statErr := os.Stat(d.Path()); statErr == nil {
			fmt.Printf("size:  %d bytes\n", fi.Size())
		}
		fmt.Println()

		tables := make([]string, 0, len(counts))
		for t := range counts {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		for _, t := range tables {
			fmt.Printf("%-18s %d\n", t, counts[t])
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the store schema",
	Long: `Opens the store, which applies any pending schema migrations, and
closes it again. Useful for provisioning a fresh store non-interactively.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		closeStore(d)
		fmt.Println("store schema is up to date")
		return nil
	},
}

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Compact the store file",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore(d)
		return d.Vacuum(cmd.Context())
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup <dest>",
	Short: "Write an encrypted copy of the store",
	Long: `Exports the store to a new encrypted file at <dest>. The backup is
keyed with its own passphrase, prompted separately, so it can be handed
off without sharing the primary key.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore(d)

		// The backup key is always prompted; reusing --key here would
		// silently produce a copy with the primary passphrase.
		backupKey, err := promptNewPassphrase("Backup passphrase: ")
		if err != nil {
			return err
		}
		if err := d.Backup(cmd.Context(), args[0], backupKey); err != nil {
			return err
		}
		fmt.Printf("backup written to %s\n", args[0])
		return nil
	},
}

var rekeyCmd = &cobra.Command{
	Use:   "rekey",
	Short: "Change the store passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore(d)

		newKey, err := promptNewPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		if err := d.Rekey(cmd.Context(), newKey); err != nil {
			return err
		}
		fmt.Println("passphrase changed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd, migrateCmd, vacuumCmd, backupCmd, rekeyCmd)
}
